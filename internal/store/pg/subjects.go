package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type subjectRepo struct{ pool *pgxpool.Pool }

func (r *subjectRepo) CreateSubject(ctx context.Context, s repository.Subject) error {
	if err := repository.RequireTenant(s.TenantID); err != nil {
		return err
	}
	const q = `
		INSERT INTO end_users (app_id, id, email, display_name, avatar_url, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var lastLogin *time.Time
	if !s.LastLoginAt.IsZero() {
		lastLogin = &s.LastLoginAt
	}
	_, err := r.pool.Exec(ctx, q, s.TenantID, s.ID,
		nullIfEmpty(s.Email), nullIfEmpty(s.DisplayName), nullIfEmpty(s.AvatarURL), created, lastLogin)
	return mapErr("create subject", err)
}

func (r *subjectRepo) GetSubject(ctx context.Context, tenantID, subjectID string) (*repository.Subject, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT app_id, id::text, email, display_name, avatar_url, created_at, last_login_at
		FROM end_users WHERE app_id = $1 AND id = $2`
	var (
		s                   repository.Subject
		email, name, avatar *string
		lastLogin           *time.Time
	)
	err := r.pool.QueryRow(ctx, q, tenantID, subjectID).Scan(
		&s.TenantID, &s.ID, &email, &name, &avatar, &s.CreatedAt, &lastLogin)
	if err != nil {
		return nil, mapErr("get subject", err)
	}
	s.Email, s.DisplayName, s.AvatarURL = deref(email), deref(name), deref(avatar)
	if lastLogin != nil {
		s.LastLoginAt = *lastLogin
	}
	return &s, nil
}

func (r *subjectRepo) TouchSubject(ctx context.Context, tenantID, subjectID string, p repository.Profile, at time.Time) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	const q = `
		UPDATE end_users SET
			email = COALESCE($3, email),
			display_name = COALESCE($4, display_name),
			avatar_url = COALESCE($5, avatar_url),
			last_login_at = $6
		WHERE app_id = $1 AND id = $2`
	tag, err := r.pool.Exec(ctx, q, tenantID, subjectID,
		nullIfEmpty(p.Email), nullIfEmpty(p.DisplayName), nullIfEmpty(p.AvatarURL), at)
	if err != nil {
		return mapErr("touch subject", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *subjectRepo) DeleteSubject(ctx context.Context, tenantID, subjectID string) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM end_users WHERE app_id = $1 AND id = $2`, tenantID, subjectID)
	return mapErr("delete subject", err)
}
