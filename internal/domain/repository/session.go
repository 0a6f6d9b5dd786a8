package repository

import (
	"context"
	"time"
)

// Session es el registro persistido. Solo guarda el digest del token, nunca el token.
type Session struct {
	TenantID  string
	SubjectID string
	Digest    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// SessionRepository: (TenantID, Digest) es único. Las sesiones no se mutan:
// se crean y se borran.
type SessionRepository interface {
	CreateSession(ctx context.Context, s Session) error

	// GetSession retorna ErrNotFound si no existe para ese tenant.
	GetSession(ctx context.Context, tenantID, digest string) (*Session, error)

	// DeleteSession es idempotente: borrar algo inexistente no es error.
	DeleteSession(ctx context.Context, tenantID, digest string) error

	// DeleteSubjectSessions borra todas las sesiones del subject en el tenant.
	DeleteSubjectSessions(ctx context.Context, tenantID, subjectID string) (int, error)

	// DeleteExpired borra sesiones con expires_at <= now, de todos los tenants.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
