package repository

import (
	"context"
	"time"
)

// Subject es el end user dentro de un tenant. (TenantID, ID) es inmutable;
// Email y DisplayName se refrescan en cada login.
type Subject struct {
	TenantID    string
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Profile es lo que el proveedor de identidad informa del usuario.
type Profile struct {
	Email       string
	DisplayName string
	AvatarURL   string
}

type SubjectRepository interface {
	// CreateSubject inserta un end user nuevo con id ya generado.
	CreateSubject(ctx context.Context, s Subject) error

	GetSubject(ctx context.Context, tenantID, subjectID string) (*Subject, error)

	// TouchSubject actualiza last_login_at y el perfil cacheado.
	TouchSubject(ctx context.Context, tenantID, subjectID string, p Profile, at time.Time) error

	// DeleteSubject borra un subject huérfano (sin identidades). Idempotente.
	DeleteSubject(ctx context.Context, tenantID, subjectID string) error
}
