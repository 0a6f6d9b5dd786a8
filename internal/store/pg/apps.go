package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type appRepo struct{ pool *pgxpool.Pool }

func (r *appRepo) GetApp(ctx context.Context, appID string) (*repository.App, error) {
	const q = `
		SELECT id, name, COALESCE(config->'monetization'->>'type', ''), config, created_at
		FROM apps WHERE id = $1`
	var (
		a   repository.App
		cfg []byte
	)
	if err := r.pool.QueryRow(ctx, q, appID).Scan(&a.ID, &a.Name, &a.MonetizationType, &cfg, &a.CreatedAt); err != nil {
		return nil, mapErr("get app", err)
	}
	a.Config = cfg
	return &a, nil
}

func (r *appRepo) AccountOwner(ctx context.Context, accountID string) (string, error) {
	const q = `SELECT app_id FROM stripe_accounts WHERE stripe_user_id = $1 AND status = 'active'`
	var appID string
	if err := r.pool.QueryRow(ctx, q, accountID).Scan(&appID); err != nil {
		return "", mapErr("account owner", err)
	}
	return appID, nil
}

func (r *appRepo) AppAccount(ctx context.Context, appID string) (*repository.ConnectedAccount, error) {
	const q = `
		SELECT stripe_user_id, app_id, status, charges_enabled, updated_at
		FROM stripe_accounts
		WHERE app_id = $1 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1`
	var acc repository.ConnectedAccount
	err := r.pool.QueryRow(ctx, q, appID).Scan(&acc.AccountID, &acc.AppID, &acc.Status, &acc.ChargesEnabled, &acc.UpdatedAt)
	if err != nil {
		return nil, mapErr("app account", err)
	}
	return &acc, nil
}

func (r *appRepo) UpdateConnectedAccount(ctx context.Context, acc repository.ConnectedAccount) error {
	const q = `
		UPDATE stripe_accounts
		SET status = COALESCE($2, status), charges_enabled = $3, updated_at = $4
		WHERE stripe_user_id = $1`
	at := acc.UpdatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, q, acc.AccountID, nullIfEmpty(acc.Status), acc.ChargesEnabled, at)
	if err != nil {
		return mapErr("update connected account", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
