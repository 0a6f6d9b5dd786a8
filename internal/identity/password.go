package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/security/password"
)

var (
	ErrInvalidEmail       = errors.New("identity: invalid email")
	ErrWeakPassword       = errors.New("identity: password does not meet policy")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid email or password")
)

// PolicyError lleva los motivos por los que la contraseña no pasa la política.
type PolicyError struct{ Reasons []string }

func (e *PolicyError) Error() string { return "identity: weak password: " + strings.Join(e.Reasons, ",") }
func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

// Passwords implementa signup/login email+password sobre identidades
// provider=password, provider_user_id=email normalizado.
type Passwords struct {
	linker     *Linker
	subjects   repository.SubjectRepository
	identities repository.IdentityRepository
	params     password.Params
	policy     password.Policy
	// dummy se verifica cuando el email no existe, para no filtrar por timing
	dummy string
}

func NewPasswords(linker *Linker, subjects repository.SubjectRepository, identities repository.IdentityRepository,
	params password.Params, policy password.Policy) *Passwords {
	dummy, _ := password.Hash(params, "appbase-dummy-password")
	return &Passwords{
		linker:     linker,
		subjects:   subjects,
		identities: identities,
		params:     params,
		policy:     policy,
		dummy:      dummy,
	}
}

// NormalizeEmail valida y pasa a minúsculas.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// Signup crea el subject y la credencial. ErrEmailTaken si ya existe.
func (s *Passwords) Signup(ctx context.Context, tenantID, email, plain, displayName string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("identity"), logger.Op("Signup"),
		logger.TenantID(tenantID))

	norm, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	if ok, reasons := s.policy.Validate(plain); !ok {
		return "", &PolicyError{Reasons: reasons}
	}

	if err := s.checkAvailable(ctx, tenantID, norm); err != nil {
		return "", err
	}

	hash, err := password.Hash(s.params, plain)
	if err != nil {
		return "", err
	}
	subjectID, err := s.linker.LinkOrCreate(ctx, tenantID, repository.ProviderPassword, norm,
		repository.Profile{Email: norm, DisplayName: displayName})
	if err != nil {
		return "", err
	}
	// dos signups concurrentes convergen al mismo subject; solo uno guarda credencial
	if err := s.identities.CreatePasswordHash(ctx, tenantID, subjectID, hash); err != nil {
		if repository.IsConflict(err) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("identity: store credential: %w", err)
	}
	log.Info("password signup", logger.SubjectID(subjectID))
	return subjectID, nil
}

// checkAvailable: el email está tomado solo si ya tiene credencial. Una
// identidad sin hash es un signup previo que falló al guardar la credencial y
// se completa en este intento.
func (s *Passwords) checkAvailable(ctx context.Context, tenantID, email string) error {
	id, err := s.identities.FindIdentity(ctx, tenantID, repository.ProviderPassword, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("identity: lookup: %w", err)
	}
	_, err = s.identities.GetPasswordHash(ctx, tenantID, id.SubjectID)
	switch {
	case err == nil:
		return ErrEmailTaken
	case repository.IsNotFound(err):
		logger.From(ctx).Warn("password identity without credential, completing signup",
			logger.TenantID(tenantID), logger.SubjectID(id.SubjectID))
		return nil
	default:
		return fmt.Errorf("identity: credential: %w", err)
	}
}

// Login verifica la credencial. Cualquier falla es ErrInvalidCredentials,
// salvo errores de storage.
func (s *Passwords) Login(ctx context.Context, tenantID, email, plain string) (string, error) {
	norm, err := NormalizeEmail(email)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	id, err := s.identities.FindIdentity(ctx, tenantID, repository.ProviderPassword, norm)
	if err != nil {
		if repository.IsNotFound(err) {
			password.Verify(plain, s.dummy)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("identity: lookup: %w", err)
	}
	hash, err := s.identities.GetPasswordHash(ctx, tenantID, id.SubjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			password.Verify(plain, s.dummy)
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("identity: credential: %w", err)
	}
	if !password.Verify(plain, hash) {
		return "", ErrInvalidCredentials
	}
	// refresca last_login y devuelve el mismo subject
	return s.linker.LinkOrCreate(ctx, tenantID, repository.ProviderPassword, norm, repository.Profile{Email: norm})
}
