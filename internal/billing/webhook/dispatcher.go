package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/metrics"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

// Metadata que el backend estampa al crear checkout/suscripción/pago.
const (
	MetaAppID     = "app_id"
	MetaEndUserID = "end_user_id"
)

// Outcome resume qué pasó con un evento. Todos responden 200 al proveedor.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
	OutcomeIgnored Outcome = "ignored"
	OutcomeDropped Outcome = "dropped"
)

// ErrIntegrity: el evento no se puede atribuir a un tenant/subject
// verificado. Se descarta (200) para que el proveedor no reintente.
var ErrIntegrity = errors.New("webhook: integrity violation")

// ErrPaymentNotRecorded: cargo sin metadata cuyo pago aún no está en el
// ledger. Reintentable.
var ErrPaymentNotRecorded = errors.New("webhook: payment not recorded yet")

func integrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}

// Rank dentro de un mismo segundo: qué evento describe un estado posterior.
const (
	rankSubCreated = 0
	rankSubUpdated = 1
	rankSubDeleted = 2

	rankPayCreated   = 0
	rankPayFailed    = 1
	rankPaySucceeded = 2
	rankPayRefunded  = 3
)

// TenantResolver verifica apps y cuentas conectadas contra lo guardado.
type TenantResolver interface {
	App(ctx context.Context, appID string) (*repository.App, error)
	AccountOwner(ctx context.Context, accountID string) (string, error)
	InvalidateAccount(ctx context.Context, accountID string)
}

type Reconciler interface {
	Reconcile(ctx context.Context, tenantID, subjectID string) (*repository.Entitlement, error)
}

type Dispatcher struct {
	tenants    TenantResolver
	apps       repository.AppRepository
	ledger     repository.LedgerRepository
	reconciler Reconciler
	now        func() time.Time
}

func NewDispatcher(tenants TenantResolver, apps repository.AppRepository, ledger repository.LedgerRepository, reconciler Reconciler) *Dispatcher {
	return &Dispatcher{
		tenants:    tenants,
		apps:       apps,
		ledger:     ledger,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// Dispatch enruta por tipo. Un error devuelto es reintentable (500); las
// violaciones de integridad se loguean y vuelven como OutcomeDropped sin error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (Outcome, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("billing.webhook"),
		logger.EventID(ev.ID), logger.EventType(ev.Type))
	if ev.Account != "" {
		log = log.With(logger.AccountID(ev.Account))
	}
	ctx = logger.ToContext(ctx, log)

	outcome, err := d.route(ctx, ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrIntegrity):
		log.Warn("webhook event dropped", logger.Err(err))
		outcome, err = OutcomeDropped, nil
	default:
		log.Error("webhook event failed", logger.Err(err))
		metrics.WebhookEvents.WithLabelValues(metricType(ev.Type), "failed").Inc()
		return "", err
	}
	metrics.WebhookEvents.WithLabelValues(metricType(ev.Type), string(outcome)).Inc()
	log.Info("webhook event handled", logger.String("outcome", string(outcome)))
	return outcome, nil
}

func (d *Dispatcher) route(ctx context.Context, ev *Event) (Outcome, error) {
	switch ev.Type {
	case TypeSubscriptionCreated:
		return d.onSubscription(ctx, ev, rankSubCreated)
	case TypeSubscriptionUpdated:
		return d.onSubscription(ctx, ev, rankSubUpdated)
	case TypeSubscriptionDeleted:
		return d.onSubscription(ctx, ev, rankSubDeleted)

	case TypePaymentIntentCreated:
		return d.onPaymentIntent(ctx, ev, rankPayCreated)
	case TypePaymentIntentSucceeded:
		return d.onPaymentIntent(ctx, ev, rankPaySucceeded)
	case TypePaymentIntentFailed:
		return d.onPaymentIntent(ctx, ev, rankPayFailed)

	case TypeChargeSucceeded:
		return d.onCharge(ctx, ev, rankPaySucceeded)
	case TypeChargeRefunded:
		return d.onCharge(ctx, ev, rankPayRefunded)

	case TypeCheckoutCompleted:
		return d.onCheckout(ctx, ev)

	case TypeAccountUpdated:
		return d.onAccountUpdated(ctx, ev)
	case TypeAccountDeauthorized:
		return d.onAccountDeauthorized(ctx, ev)

	case TypeSubscriptionTrialWillEnd, TypeChargeDisputeCreated,
		TypeInvoicePaymentSucceeded, TypeInvoicePaymentFailed:
		// informativos: el estado llega por subscription.updated / charge.*
		logger.From(ctx).Info("webhook event noted")
		return OutcomeIgnored, nil
	default:
		logger.From(ctx).Info("webhook event type not handled")
		return OutcomeIgnored, nil
	}
}

// resolveOwner valida la metadata contra apps y cuentas guardadas.
func (d *Dispatcher) resolveOwner(ctx context.Context, ev *Event, meta map[string]string) (tenantID, subjectID string, err error) {
	tenantID = strings.TrimSpace(meta[MetaAppID])
	subjectID = strings.TrimSpace(meta[MetaEndUserID])
	if tenantID == "" || subjectID == "" {
		return "", "", integrity("missing %s/%s metadata", MetaAppID, MetaEndUserID)
	}
	if _, perr := uuid.Parse(subjectID); perr != nil {
		return "", "", integrity("%s is not a uuid", MetaEndUserID)
	}
	if _, err := d.tenants.App(ctx, tenantID); err != nil {
		if repository.IsNotFound(err) {
			return "", "", integrity("unknown app %q", tenantID)
		}
		return "", "", fmt.Errorf("resolve app: %w", err)
	}
	if ev.Account != "" {
		owner, err := d.tenants.AccountOwner(ctx, ev.Account)
		if err != nil {
			if repository.IsNotFound(err) {
				return "", "", integrity("connected account not linked")
			}
			return "", "", fmt.Errorf("resolve account: %w", err)
		}
		if owner != tenantID {
			return "", "", integrity("account belongs to another app")
		}
	}
	return tenantID, subjectID, nil
}

func decodeObject(ev *Event, dst any) error {
	if len(ev.Object) == 0 {
		return integrity("empty data.object")
	}
	if err := json.Unmarshal(ev.Object, dst); err != nil {
		return integrity("decode data.object: %v", err)
	}
	return nil
}

func (d *Dispatcher) onSubscription(ctx context.Context, ev *Event, rank int) (Outcome, error) {
	var obj subscriptionObject
	if err := decodeObject(ev, &obj); err != nil {
		return "", err
	}
	if obj.ID == "" {
		return "", integrity("subscription without id")
	}
	tenantID, subjectID, err := d.resolveOwner(ctx, ev, obj.Metadata)
	if err != nil {
		return "", err
	}
	status := obj.Status
	if status == "" && rank == rankSubDeleted {
		status = repository.SubCanceled
	}
	start, end := obj.period()
	sub := repository.Subscription{
		ID:                 obj.ID,
		TenantID:           tenantID,
		SubjectID:          subjectID,
		CustomerID:         obj.Customer.ID,
		Status:             status,
		PriceID:            obj.priceID(),
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAt:           unixPtr(obj.CancelAt),
		CanceledAt:         unixPtr(obj.CanceledAt),
		TrialEnd:           unixPtr(obj.TrialEnd),
		Version:            repository.Version{At: ev.Created, Rank: rank},
	}
	applied, err := d.ledger.UpsertSubscription(ctx, sub)
	if err != nil {
		return "", ledgerErr("subscription", err)
	}
	d.recordCustomer(ctx, tenantID, subjectID, obj.Customer.ID, ev.Account)
	logger.From(ctx).Debug("subscription upserted", logger.SubscriptionID(obj.ID), logger.Bool("applied", applied))
	return d.settle(ctx, tenantID, subjectID, applied)
}

func (d *Dispatcher) onPaymentIntent(ctx context.Context, ev *Event, rank int) (Outcome, error) {
	var obj paymentIntentObject
	if err := decodeObject(ev, &obj); err != nil {
		return "", err
	}
	if obj.ID == "" {
		return "", integrity("payment intent without id")
	}
	tenantID, subjectID, err := d.resolveOwner(ctx, ev, obj.Metadata)
	if err != nil {
		return "", err
	}
	p := repository.Payment{
		ID:         obj.ID,
		TenantID:   tenantID,
		SubjectID:  subjectID,
		CustomerID: obj.Customer.ID,
		Amount:     obj.Amount,
		Currency:   obj.Currency,
		Status:     obj.Status,
		Version:    repository.Version{At: ev.Created, Rank: rank},
	}
	switch rank {
	case rankPaySucceeded:
		p.Status = repository.PaySucceeded
		if obj.AmountReceived > 0 {
			p.Amount = obj.AmountReceived
		}
		paid := ev.Created
		p.PaidAt = &paid
	case rankPayFailed:
		p.Status = repository.PayFailed
	}
	if p.Status == "" {
		p.Status = repository.PayProcessing
	}
	return d.upsertPayment(ctx, p, ev.Account)
}

// onCharge: los cargos no siempre heredan la metadata del payment intent. Sin
// metadata, el tenant sale de la cuenta conectada y el subject del pago ya
// registrado en ese tenant.
func (d *Dispatcher) onCharge(ctx context.Context, ev *Event, rank int) (Outcome, error) {
	var obj chargeObject
	if err := decodeObject(ev, &obj); err != nil {
		return "", err
	}
	if obj.ID == "" {
		return "", integrity("charge without id")
	}
	payID := obj.paymentID()

	var tenantID, subjectID string
	var err error
	if obj.Metadata[MetaAppID] != "" || obj.Metadata[MetaEndUserID] != "" {
		tenantID, subjectID, err = d.resolveOwner(ctx, ev, obj.Metadata)
	} else {
		tenantID, subjectID, err = d.resolveByPayment(ctx, ev, payID)
	}
	if err != nil {
		return "", err
	}

	p := repository.Payment{
		ID:             payID,
		TenantID:       tenantID,
		SubjectID:      subjectID,
		CustomerID:     obj.Customer.ID,
		Amount:         obj.Amount,
		Currency:       obj.Currency,
		Status:         repository.PaySucceeded,
		Refunded:       obj.Refunded,
		RefundedAmount: obj.AmountRefunded,
		PaidAt:         unixPtr(obj.Created),
		Version:        repository.Version{At: ev.Created, Rank: rank},
	}
	if obj.Status != "" && obj.Status != repository.PaySucceeded {
		p.Status = obj.Status
		p.PaidAt = nil
	}
	return d.upsertPayment(ctx, p, ev.Account)
}

func (d *Dispatcher) resolveByPayment(ctx context.Context, ev *Event, paymentID string) (string, string, error) {
	if ev.Account == "" {
		return "", "", integrity("charge without metadata nor connected account")
	}
	owner, err := d.tenants.AccountOwner(ctx, ev.Account)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", "", integrity("connected account not linked")
		}
		return "", "", fmt.Errorf("resolve account: %w", err)
	}
	p, err := d.ledger.GetPayment(ctx, owner, paymentID)
	if err != nil {
		if repository.IsNotFound(err) {
			// el payment intent con metadata todavía no llegó: que el proveedor reintente
			return "", "", fmt.Errorf("%w: %s", ErrPaymentNotRecorded, paymentID)
		}
		return "", "", fmt.Errorf("lookup payment: %w", err)
	}
	return owner, p.SubjectID, nil
}

func (d *Dispatcher) onCheckout(ctx context.Context, ev *Event) (Outcome, error) {
	var obj checkoutSessionObject
	if err := decodeObject(ev, &obj); err != nil {
		return "", err
	}
	tenantID, subjectID, err := d.resolveOwner(ctx, ev, obj.Metadata)
	if err != nil {
		return "", err
	}
	d.recordCustomer(ctx, tenantID, subjectID, obj.Customer.ID, ev.Account)

	if obj.Mode != "payment" || obj.PaymentIntent.ID == "" || obj.PaymentStatus != "paid" {
		// modo suscripción: el estado llega por customer.subscription.*
		return OutcomeApplied, nil
	}
	paid := ev.Created
	return d.upsertPayment(ctx, repository.Payment{
		ID:         obj.PaymentIntent.ID,
		TenantID:   tenantID,
		SubjectID:  subjectID,
		CustomerID: obj.Customer.ID,
		Amount:     obj.AmountTotal,
		Currency:   obj.Currency,
		Status:     repository.PaySucceeded,
		PaidAt:     &paid,
		Version:    repository.Version{At: ev.Created, Rank: rankPaySucceeded},
	}, ev.Account)
}

func (d *Dispatcher) onAccountUpdated(ctx context.Context, ev *Event) (Outcome, error) {
	var obj accountObject
	if err := decodeObject(ev, &obj); err != nil {
		return "", err
	}
	id := obj.ID
	if id == "" {
		id = ev.Account
	}
	if id == "" {
		return "", integrity("account.updated without account id")
	}
	return d.updateAccount(ctx, repository.ConnectedAccount{AccountID: id, ChargesEnabled: obj.ChargesEnabled, UpdatedAt: ev.Created})
}

func (d *Dispatcher) onAccountDeauthorized(ctx context.Context, ev *Event) (Outcome, error) {
	if ev.Account == "" {
		return "", integrity("deauthorization without account")
	}
	return d.updateAccount(ctx, repository.ConnectedAccount{AccountID: ev.Account, Status: "deauthorized", UpdatedAt: ev.Created})
}

func (d *Dispatcher) updateAccount(ctx context.Context, acc repository.ConnectedAccount) (Outcome, error) {
	err := d.apps.UpdateConnectedAccount(ctx, acc)
	d.tenants.InvalidateAccount(ctx, acc.AccountID)
	if repository.IsNotFound(err) {
		logger.From(ctx).Info("connected account not linked to any app")
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("update connected account: %w", err)
	}
	return OutcomeApplied, nil
}

func (d *Dispatcher) upsertPayment(ctx context.Context, p repository.Payment, accountID string) (Outcome, error) {
	applied, err := d.ledger.UpsertPayment(ctx, p)
	if err != nil {
		return "", ledgerErr("payment", err)
	}
	d.recordCustomer(ctx, p.TenantID, p.SubjectID, p.CustomerID, accountID)
	logger.From(ctx).Debug("payment upserted", logger.PaymentID(p.ID), logger.Bool("applied", applied))
	return d.settle(ctx, p.TenantID, p.SubjectID, applied)
}

// recordCustomer es best effort: un conflicto se loguea, no tumba el evento.
func (d *Dispatcher) recordCustomer(ctx context.Context, tenantID, subjectID, customerID, accountID string) {
	if customerID == "" {
		return
	}
	err := d.ledger.UpsertCustomer(ctx, repository.Customer{
		TenantID:   tenantID,
		SubjectID:  subjectID,
		CustomerID: customerID,
		AccountID:  accountID,
		UpdatedAt:  d.now().UTC(),
	})
	if err != nil {
		logger.From(ctx).Warn("customer mapping not recorded", logger.String("customer_id", customerID), logger.Err(err))
	}
}

// settle recomputa siempre: un replay stale igual deja la foto al día.
func (d *Dispatcher) settle(ctx context.Context, tenantID, subjectID string, applied bool) (Outcome, error) {
	if _, err := d.reconciler.Reconcile(ctx, tenantID, subjectID); err != nil {
		return "", fmt.Errorf("reconcile: %w", err)
	}
	if !applied {
		return OutcomeStale, nil
	}
	return OutcomeApplied, nil
}

// ledgerErr: conflicto de tenant/subject o input inválido no se arregla
// reintentando; el resto sí.
func ledgerErr(kind string, err error) error {
	if repository.IsConflict(err) || errors.Is(err, repository.ErrInvalidInput) {
		return integrity("%s ledger rejected: %v", kind, err)
	}
	return fmt.Errorf("upsert %s: %w", kind, err)
}

var knownTypes = map[string]bool{
	TypeSubscriptionCreated: true, TypeSubscriptionUpdated: true, TypeSubscriptionDeleted: true,
	TypeSubscriptionTrialWillEnd: true, TypePaymentIntentCreated: true, TypePaymentIntentSucceeded: true,
	TypePaymentIntentFailed: true, TypeChargeSucceeded: true, TypeChargeRefunded: true,
	TypeChargeDisputeCreated: true, TypeInvoicePaymentSucceeded: true, TypeInvoicePaymentFailed: true,
	TypeCheckoutCompleted: true, TypeAccountUpdated: true, TypeAccountDeauthorized: true,
}

// metricType acota la cardinalidad del label type.
func metricType(t string) string {
	if knownTypes[t] {
		return t
	}
	return "other"
}
