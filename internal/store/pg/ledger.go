package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
)

type ledgerRepo struct{ pool *pgxpool.Pool }

// fresh es true cuando la versión entrante (created del evento, rank) es >= a la guardada.
func freshExpr(alias string) string {
	return fmt.Sprintf("((EXCLUDED.last_event_at, EXCLUDED.last_event_rank) >= (%[1]s.last_event_at, %[1]s.last_event_rank))", alias)
}

var (
	upsertSubscriptionQ = strings.ReplaceAll(upsertSubscriptionSQL, "v.fresh", freshExpr("s"))
	upsertPaymentQ      = strings.ReplaceAll(upsertPaymentSQL, "v.fresh", freshExpr("p"))
)

// El WHERE del DO UPDATE exige mismo tenant y subject: si no matchea no se
// devuelve fila y lo reportamos como ErrConflict. Los campos mutables solo se
// pisan cuando la versión entrante es >= a la guardada.
const upsertSubscriptionSQL = `
	INSERT INTO app_user_subscriptions AS s (
		id, app_id, end_user_id, customer_id, status, price_id,
		current_period_start, current_period_end, cancel_at, canceled_at, trial_end,
		last_event_at, last_event_rank, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	ON CONFLICT (id) DO UPDATE SET
		customer_id          = CASE WHEN v.fresh THEN COALESCE(EXCLUDED.customer_id, s.customer_id) ELSE s.customer_id END,
		status               = CASE WHEN v.fresh THEN EXCLUDED.status ELSE s.status END,
		price_id             = CASE WHEN v.fresh THEN EXCLUDED.price_id ELSE s.price_id END,
		current_period_start = CASE WHEN v.fresh THEN EXCLUDED.current_period_start ELSE s.current_period_start END,
		current_period_end   = CASE WHEN v.fresh THEN EXCLUDED.current_period_end ELSE s.current_period_end END,
		cancel_at            = CASE WHEN v.fresh THEN EXCLUDED.cancel_at ELSE s.cancel_at END,
		canceled_at          = CASE WHEN v.fresh THEN EXCLUDED.canceled_at ELSE s.canceled_at END,
		trial_end            = CASE WHEN v.fresh THEN EXCLUDED.trial_end ELSE s.trial_end END,
		last_event_at        = CASE WHEN v.fresh THEN EXCLUDED.last_event_at ELSE s.last_event_at END,
		last_event_rank      = CASE WHEN v.fresh THEN EXCLUDED.last_event_rank ELSE s.last_event_rank END,
		updated_at           = now()
	WHERE s.app_id = EXCLUDED.app_id AND s.end_user_id = EXCLUDED.end_user_id
	RETURNING last_event_at, last_event_rank`

func (r *ledgerRepo) UpsertSubscription(ctx context.Context, sub repository.Subscription) (bool, error) {
	if err := repository.RequireTenant(sub.TenantID); err != nil || sub.ID == "" || sub.SubjectID == "" {
		return false, repository.ErrInvalidInput
	}
	var (
		gotAt   time.Time
		gotRank int
	)
	err := r.pool.QueryRow(ctx, upsertSubscriptionQ,
		sub.ID, sub.TenantID, sub.SubjectID, nullIfEmpty(sub.CustomerID), sub.Status, nullIfEmpty(sub.PriceID),
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAt, sub.CanceledAt, sub.TrialEnd,
		sub.Version.At, sub.Version.Rank,
	).Scan(&gotAt, &gotRank)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, repository.ErrConflict
	}
	if err != nil {
		return false, mapErr("upsert subscription", err)
	}
	return gotAt.Equal(sub.Version.At) && gotRank == sub.Version.Rank, nil
}

// refunded y refunded_amount son monótonos; paid_at conserva el más temprano.
// applied = ganó la versión entrante, aunque un stale sume datos de reembolso.
const upsertPaymentSQL = `
	INSERT INTO app_user_payments AS p (
		id, app_id, end_user_id, customer_id, amount, currency, status,
		refunded, refunded_amount, paid_at, last_event_at, last_event_rank, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
	ON CONFLICT (id) DO UPDATE SET
		customer_id     = CASE WHEN v.fresh THEN COALESCE(EXCLUDED.customer_id, p.customer_id) ELSE p.customer_id END,
		amount          = CASE WHEN v.fresh AND EXCLUDED.amount <> 0 THEN EXCLUDED.amount ELSE p.amount END,
		currency        = CASE WHEN v.fresh THEN COALESCE(EXCLUDED.currency, p.currency) ELSE p.currency END,
		status          = CASE WHEN v.fresh THEN EXCLUDED.status ELSE p.status END,
		refunded        = p.refunded OR EXCLUDED.refunded,
		refunded_amount = GREATEST(p.refunded_amount, EXCLUDED.refunded_amount),
		paid_at         = LEAST(p.paid_at, EXCLUDED.paid_at),
		last_event_at   = CASE WHEN v.fresh THEN EXCLUDED.last_event_at ELSE p.last_event_at END,
		last_event_rank = CASE WHEN v.fresh THEN EXCLUDED.last_event_rank ELSE p.last_event_rank END,
		updated_at      = now()
	WHERE p.app_id = EXCLUDED.app_id AND p.end_user_id = EXCLUDED.end_user_id
	RETURNING last_event_at, last_event_rank`

func (r *ledgerRepo) UpsertPayment(ctx context.Context, p repository.Payment) (bool, error) {
	if err := repository.RequireTenant(p.TenantID); err != nil || p.ID == "" || p.SubjectID == "" {
		return false, repository.ErrInvalidInput
	}
	var (
		gotAt   time.Time
		gotRank int
	)
	err := r.pool.QueryRow(ctx, upsertPaymentQ,
		p.ID, p.TenantID, p.SubjectID, nullIfEmpty(p.CustomerID), p.Amount, nullIfEmpty(p.Currency), p.Status,
		p.Refunded, p.RefundedAmount, p.PaidAt, p.Version.At, p.Version.Rank,
	).Scan(&gotAt, &gotRank)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, repository.ErrConflict
	}
	if err != nil {
		return false, mapErr("upsert payment", err)
	}
	return gotAt.Equal(p.Version.At) && gotRank == p.Version.Rank, nil
}

func (r *ledgerRepo) UpsertCustomer(ctx context.Context, c repository.Customer) error {
	if err := repository.RequireTenant(c.TenantID); err != nil || c.CustomerID == "" || c.SubjectID == "" {
		return repository.ErrInvalidInput
	}
	const q = `
		INSERT INTO billing_customers AS c (customer_id, app_id, end_user_id, account_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (customer_id) DO UPDATE SET
			account_id = COALESCE(EXCLUDED.account_id, c.account_id),
			updated_at = now()
		WHERE c.app_id = EXCLUDED.app_id AND c.end_user_id = EXCLUDED.end_user_id
		RETURNING customer_id`
	var id string
	err := r.pool.QueryRow(ctx, q, c.CustomerID, c.TenantID, c.SubjectID, nullIfEmpty(c.AccountID)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrConflict
	}
	return mapErr("upsert customer", err)
}

func (r *ledgerRepo) FindCustomer(ctx context.Context, tenantID, subjectID string) (*repository.Customer, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT customer_id, app_id, end_user_id::text, COALESCE(account_id, ''), updated_at
		FROM billing_customers
		WHERE app_id = $1 AND end_user_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`
	var c repository.Customer
	err := r.pool.QueryRow(ctx, q, tenantID, subjectID).Scan(&c.CustomerID, &c.TenantID, &c.SubjectID, &c.AccountID, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr("find customer", err)
	}
	return &c, nil
}

func (r *ledgerRepo) ListSubscriptions(ctx context.Context, tenantID, subjectID string) ([]repository.Subscription, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, app_id, end_user_id::text, customer_id, status, price_id,
			current_period_start, current_period_end, cancel_at, canceled_at, trial_end,
			last_event_at, last_event_rank
		FROM app_user_subscriptions
		WHERE app_id = $1 AND end_user_id = $2
		ORDER BY id`
	rows, err := r.pool.Query(ctx, q, tenantID, subjectID)
	if err != nil {
		return nil, mapErr("list subscriptions", err)
	}
	defer rows.Close()

	var out []repository.Subscription
	for rows.Next() {
		var (
			s             repository.Subscription
			customer, pid *string
		)
		if err := rows.Scan(&s.ID, &s.TenantID, &s.SubjectID, &customer, &s.Status, &pid,
			&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAt, &s.CanceledAt, &s.TrialEnd,
			&s.Version.At, &s.Version.Rank); err != nil {
			return nil, mapErr("scan subscription", err)
		}
		s.CustomerID, s.PriceID = deref(customer), deref(pid)
		out = append(out, s)
	}
	return out, mapErr("list subscriptions", rows.Err())
}

func (r *ledgerRepo) ListPayments(ctx context.Context, tenantID, subjectID string) ([]repository.Payment, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, app_id, end_user_id::text, customer_id, amount, currency, status,
			refunded, refunded_amount, paid_at, last_event_at, last_event_rank
		FROM app_user_payments
		WHERE app_id = $1 AND end_user_id = $2
		ORDER BY id`
	rows, err := r.pool.Query(ctx, q, tenantID, subjectID)
	if err != nil {
		return nil, mapErr("list payments", err)
	}
	defer rows.Close()

	var out []repository.Payment
	for rows.Next() {
		var (
			p                  repository.Payment
			customer, currency *string
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.SubjectID, &customer, &p.Amount, &currency, &p.Status,
			&p.Refunded, &p.RefundedAmount, &p.PaidAt, &p.Version.At, &p.Version.Rank); err != nil {
			return nil, mapErr("scan payment", err)
		}
		p.CustomerID, p.Currency = deref(customer), deref(currency)
		out = append(out, p)
	}
	return out, mapErr("list payments", rows.Err())
}

func (r *ledgerRepo) GetPayment(ctx context.Context, tenantID, paymentID string) (*repository.Payment, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT id, app_id, end_user_id::text, customer_id, amount, currency, status,
			refunded, refunded_amount, paid_at, last_event_at, last_event_rank
		FROM app_user_payments
		WHERE app_id = $1 AND id = $2`
	var (
		p                  repository.Payment
		customer, currency *string
	)
	err := r.pool.QueryRow(ctx, q, tenantID, paymentID).Scan(&p.ID, &p.TenantID, &p.SubjectID, &customer,
		&p.Amount, &currency, &p.Status, &p.Refunded, &p.RefundedAmount, &p.PaidAt, &p.Version.At, &p.Version.Rank)
	if err != nil {
		return nil, mapErr("get payment", err)
	}
	p.CustomerID, p.Currency = deref(customer), deref(currency)
	return &p, nil
}

func (r *ledgerRepo) ListBilledSubjects(ctx context.Context, tenantID string) ([]string, error) {
	if err := repository.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	const q = `
		SELECT end_user_id::text FROM app_user_subscriptions WHERE app_id = $1
		UNION
		SELECT end_user_id::text FROM app_user_payments WHERE app_id = $1
		ORDER BY 1`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, mapErr("list billed subjects", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapErr("scan billed subject", err)
		}
		out = append(out, id)
	}
	return out, mapErr("list billed subjects", rows.Err())
}
