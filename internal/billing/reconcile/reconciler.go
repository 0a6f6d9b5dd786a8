package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/metrics"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

// Reconciler lee el ledger, aplica Compute y persiste la foto.
type Reconciler struct {
	ledger       repository.LedgerRepository
	entitlements repository.EntitlementRepository
	cfg          Config
	now          func() time.Time
}

func NewReconciler(ledger repository.LedgerRepository, entitlements repository.EntitlementRepository, cfg Config) *Reconciler {
	return &Reconciler{
		ledger:       ledger,
		entitlements: entitlements,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
	}
}

// Reconcile recomputa y persiste el entitlement de (tenant, subject).
func (r *Reconciler) Reconcile(ctx context.Context, tenantID, subjectID string) (*repository.Entitlement, error) {
	if err := repository.RequireTenant(tenantID); err != nil || subjectID == "" {
		return nil, repository.ErrInvalidInput
	}

	var (
		subs []repository.Subscription
		pays []repository.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subs, err = r.ledger.ListSubscriptions(gctx, tenantID, subjectID)
		return err
	})
	g.Go(func() error {
		var err error
		pays, err = r.ledger.ListPayments(gctx, tenantID, subjectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile: load ledger: %w", err)
	}

	now := r.now().UTC()
	res := Compute(subs, pays, now, r.cfg)
	ent := repository.Entitlement{
		TenantID:    tenantID,
		SubjectID:   subjectID,
		Status:      res.Status,
		AccessUntil: res.AccessUntil.UTC(),
		Source:      res.Source,
		ComputedAt:  now,
	}
	if err := r.entitlements.PutEntitlement(ctx, ent); err != nil {
		return nil, fmt.Errorf("reconcile: persist: %w", err)
	}

	metrics.EntitlementReconciles.WithLabelValues(string(res.Status)).Inc()
	logger.From(ctx).Debug("entitlement reconciled",
		logger.Layer("service"), logger.Component("reconcile"),
		logger.TenantID(tenantID), logger.SubjectID(subjectID),
		logger.String("billing_status", string(res.Status)), logger.String("source", res.Source))
	return &ent, nil
}

// Current recomputa en cada lectura: el tiempo solo mueve access_until hacia
// el pasado, y la foto persistida puede haber quedado vieja.
func (r *Reconciler) Current(ctx context.Context, tenantID, subjectID string) (*repository.Entitlement, error) {
	return r.Reconcile(ctx, tenantID, subjectID)
}

// Rebuild recomputa un subject, o todos los subjects con hechos en el tenant
// si subjectID está vacío. Devuelve cuántos se recomputaron.
func (r *Reconciler) Rebuild(ctx context.Context, tenantID, subjectID string) (int, error) {
	if subjectID != "" {
		if _, err := r.Reconcile(ctx, tenantID, subjectID); err != nil {
			return 0, err
		}
		return 1, nil
	}

	ids, err := r.ledger.ListBilledSubjects(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("reconcile: list subjects: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := r.Reconcile(gctx, tenantID, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	logger.From(ctx).Info("entitlements rebuilt", logger.Component("reconcile"),
		logger.TenantID(tenantID), logger.Count(len(ids)))
	return len(ids), nil
}
