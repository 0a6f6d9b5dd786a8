package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto de unicidad, o un hecho de billing
	// que ya pertenece a otro tenant.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica datos de entrada inválidos (ej: tenant vacío).
	ErrInvalidInput = errors.New("invalid input")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// RequireTenant devuelve ErrInvalidInput si tenantID está vacío.
func RequireTenant(tenantID string) error {
	if tenantID == "" {
		return ErrInvalidInput
	}
	return nil
}
