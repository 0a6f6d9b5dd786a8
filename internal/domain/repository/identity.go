package repository

import (
	"context"
	"time"
)

// ProviderPassword es el provider de identidades email+password.
const ProviderPassword = "password"

// Identity: (TenantID, Provider, ProviderUserID) es único y apunta a un SubjectID.
type Identity struct {
	TenantID       string
	SubjectID      string
	Provider       string
	ProviderUserID string
	Email          string
	CreatedAt      time.Time
	LastLoginAt    time.Time
}

type IdentityRepository interface {
	// FindIdentity retorna ErrNotFound si no hay identidad para la tripleta.
	FindIdentity(ctx context.Context, tenantID, provider, providerUserID string) (*Identity, error)

	// UpsertIdentity inserta con conflict target (tenant, provider, provider_user_id).
	// Si otra escritura ganó la carrera, devuelve el subject_id existente.
	UpsertIdentity(ctx context.Context, id Identity) (subjectID string, err error)

	// CreatePasswordHash guarda el hash argon2id del subject.
	// ErrConflict si el subject ya tiene credencial.
	CreatePasswordHash(ctx context.Context, tenantID, subjectID, hash string) error

	// GetPasswordHash retorna ErrNotFound si el subject no tiene credencial.
	GetPasswordHash(ctx context.Context, tenantID, subjectID string) (string, error)
}
