package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type sessionRepo struct{ pool *pgxpool.Pool }

func (r *sessionRepo) CreateSession(ctx context.Context, s repository.Session) error {
	if err := repository.RequireTenant(s.TenantID); err != nil {
		return err
	}
	const q = `
		INSERT INTO end_user_sessions (app_id, token_hash, end_user_id, issued_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q, s.TenantID, s.Digest, s.SubjectID, s.IssuedAt, s.ExpiresAt,
		nullIfEmpty(s.IP), nullIfEmpty(s.UserAgent))
	return mapErr("create session", err)
}

func (r *sessionRepo) GetSession(ctx context.Context, tenantID, digest string) (*repository.Session, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT app_id, token_hash, end_user_id::text, issued_at, expires_at, ip, user_agent
		FROM end_user_sessions
		WHERE app_id = $1 AND token_hash = $2`
	var (
		s      repository.Session
		ip, ua *string
	)
	err := r.pool.QueryRow(ctx, q, tenantID, digest).Scan(
		&s.TenantID, &s.Digest, &s.SubjectID, &s.IssuedAt, &s.ExpiresAt, &ip, &ua)
	if err != nil {
		return nil, mapErr("get session", err)
	}
	s.IP, s.UserAgent = deref(ip), deref(ua)
	return &s, nil
}

func (r *sessionRepo) DeleteSession(ctx context.Context, tenantID, digest string) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM end_user_sessions WHERE app_id = $1 AND token_hash = $2`, tenantID, digest)
	return mapErr("delete session", err)
}

func (r *sessionRepo) DeleteSubjectSessions(ctx context.Context, tenantID, subjectID string) (int, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM end_user_sessions WHERE app_id = $1 AND end_user_id = $2`, tenantID, subjectID)
	if err != nil {
		return 0, mapErr("delete subject sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM end_user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapErr("delete expired sessions", err)
	}
	return int(tag.RowsAffected()), nil
}
