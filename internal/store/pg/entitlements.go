package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type entitlementRepo struct{ pool *pgxpool.Pool }

func (r *entitlementRepo) PutEntitlement(ctx context.Context, e repository.Entitlement) error {
	if err := repository.RequireTenant(e.TenantID); err != nil {
		return err
	}
	const q = `
		INSERT INTO end_user_entitlements (app_id, end_user_id, billing_status, access_until, source, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (app_id, end_user_id) DO UPDATE SET
			billing_status = EXCLUDED.billing_status,
			access_until = EXCLUDED.access_until,
			source = EXCLUDED.source,
			computed_at = EXCLUDED.computed_at`
	_, err := r.pool.Exec(ctx, q, e.TenantID, e.SubjectID, string(e.Status), e.AccessUntil,
		nullIfEmpty(e.Source), e.ComputedAt)
	return mapErr("put entitlement", err)
}

func (r *entitlementRepo) GetEntitlement(ctx context.Context, tenantID, subjectID string) (*repository.Entitlement, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT app_id, end_user_id::text, billing_status, access_until, source, computed_at
		FROM end_user_entitlements WHERE app_id = $1 AND end_user_id = $2`
	var (
		e      repository.Entitlement
		status string
		source *string
	)
	err := r.pool.QueryRow(ctx, q, tenantID, subjectID).Scan(
		&e.TenantID, &e.SubjectID, &status, &e.AccessUntil, &source, &e.ComputedAt)
	if err != nil {
		return nil, mapErr("get entitlement", err)
	}
	e.Status = repository.BillingStatus(status)
	e.Source = deref(source)
	return &e, nil
}
