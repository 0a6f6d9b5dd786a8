package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type identityRepo struct{ pool *pgxpool.Pool }

func (r *identityRepo) FindIdentity(ctx context.Context, tenantID, provider, providerUserID string) (*repository.Identity, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT app_id, end_user_id::text, provider, provider_user_id, email, created_at, last_login_at
		FROM end_user_identities
		WHERE app_id = $1 AND provider = $2 AND provider_user_id = $3`
	var (
		id        repository.Identity
		email     *string
		lastLogin *time.Time
	)
	err := r.pool.QueryRow(ctx, q, tenantID, provider, providerUserID).Scan(
		&id.TenantID, &id.SubjectID, &id.Provider, &id.ProviderUserID, &email, &id.CreatedAt, &lastLogin)
	if err != nil {
		return nil, mapErr("find identity", err)
	}
	id.Email = deref(email)
	if lastLogin != nil {
		id.LastLoginAt = *lastLogin
	}
	return &id, nil
}

// UpsertIdentity: el DO UPDATE no toca end_user_id, así RETURNING devuelve
// siempre el subject del primer writer.
func (r *identityRepo) UpsertIdentity(ctx context.Context, id repository.Identity) (string, error) {
	if err := repository.RequireTenant(id.TenantID); err != nil {
		return "", err
	}
	const q = `
		INSERT INTO end_user_identities (app_id, provider, provider_user_id, end_user_id, email, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		ON CONFLICT (app_id, provider, provider_user_id) DO UPDATE SET
			last_login_at = EXCLUDED.last_login_at,
			email = COALESCE(EXCLUDED.email, end_user_identities.email)
		RETURNING end_user_id::text`
	at := id.LastLoginAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var winner string
	err := r.pool.QueryRow(ctx, q, id.TenantID, id.Provider, id.ProviderUserID, id.SubjectID,
		nullIfEmpty(id.Email), at).Scan(&winner)
	if err != nil {
		return "", mapErr("upsert identity", err)
	}
	return winner, nil
}

func (r *identityRepo) CreatePasswordHash(ctx context.Context, tenantID, subjectID, hash string) error {
	if err := repository.RequireTenant(tenantID); err != nil {
		return err
	}
	const q = `
		INSERT INTO end_user_password_credentials (app_id, end_user_id, password_hash, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (app_id, end_user_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, tenantID, subjectID, hash)
	if err != nil {
		return mapErr("create password hash", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (r *identityRepo) GetPasswordHash(ctx context.Context, tenantID, subjectID string) (string, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return "", err
	}
	const q = `SELECT password_hash FROM end_user_password_credentials WHERE app_id = $1 AND end_user_id = $2`
	var h string
	if err := r.pool.QueryRow(ctx, q, tenantID, subjectID).Scan(&h); err != nil {
		return "", mapErr("get password hash", err)
	}
	return h, nil
}
