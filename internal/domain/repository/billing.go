package repository

import (
	"context"
	"time"
)

// Estados de suscripción tal como los informa el proveedor.
const (
	SubActive            = "active"
	SubTrialing          = "trialing"
	SubPastDue           = "past_due"
	SubCanceled          = "canceled"
	SubUnpaid            = "unpaid"
	SubIncomplete        = "incomplete"
	SubIncompleteExpired = "incomplete_expired"
	SubPaused            = "paused"
)

// Estados de pago relevantes.
const (
	PaySucceeded      = "succeeded"
	PayFailed         = "failed"
	PayProcessing     = "processing"
	PayRequiresAction = "requires_action"
)

// BillingStatus es el estado derivado que consume el access gate.
type BillingStatus string

const (
	BillingCurrent   BillingStatus = "current"
	BillingPastDue   BillingStatus = "past_due"
	BillingCancelled BillingStatus = "cancelled"
)

// Version ordena los eventos que escriben un mismo hecho: primero por el
// created del evento y, a igual segundo, por Rank (created < updated < deleted).
type Version struct {
	At   time.Time
	Rank int
}

// Before reporta si v es estrictamente anterior a o.
func (v Version) Before(o Version) bool {
	if !v.At.Equal(o.At) {
		return v.At.Before(o.At)
	}
	return v.Rank < o.Rank
}

// Subscription es el hecho de suscripción, clave = id del proveedor.
type Subscription struct {
	ID                 string
	TenantID           string
	SubjectID          string
	CustomerID         string
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAt           *time.Time
	CanceledAt         *time.Time
	TrialEnd           *time.Time
	Version            Version
}

// Payment es el hecho de pago, clave = id del payment intent.
type Payment struct {
	ID             string
	TenantID       string
	SubjectID      string
	CustomerID     string
	Amount         int64
	Currency       string
	Status         string
	Refunded       bool
	RefundedAmount int64
	PaidAt         *time.Time
	Version        Version
}

// Customer mapea el customer del proveedor con el subject.
type Customer struct {
	TenantID   string
	SubjectID  string
	CustomerID string
	AccountID  string
	UpdatedAt  time.Time
}

// Entitlement es la foto derivada del ledger. Siempre recomputable.
type Entitlement struct {
	TenantID    string
	SubjectID   string
	Status      BillingStatus
	AccessUntil time.Time
	// Source es el id del hecho que decidió el estado (vacío si ninguno).
	Source     string
	ComputedAt time.Time
}

// LedgerRepository persiste hechos de billing.
//
// Upserts: last-write-wins por Version. Un evento con Version anterior a la
// guardada no pisa campos mutables (applied=false). Si el id ya pertenece a
// otro tenant o subject se devuelve ErrConflict y no se escribe nada.
// En pagos, refunded/refunded_amount son monótonos y paid_at conserva el
// valor más temprano sin importar el orden; esos campos se fusionan aunque
// la versión entrante sea stale, y applied sigue siendo false.
type LedgerRepository interface {
	UpsertSubscription(ctx context.Context, s Subscription) (applied bool, err error)
	UpsertPayment(ctx context.Context, p Payment) (applied bool, err error)
	UpsertCustomer(ctx context.Context, c Customer) error
	// FindCustomer devuelve el customer más reciente del subject.
	// ErrNotFound si todavía no pasó por un checkout.
	FindCustomer(ctx context.Context, tenantID, subjectID string) (*Customer, error)

	ListSubscriptions(ctx context.Context, tenantID, subjectID string) ([]Subscription, error)
	ListPayments(ctx context.Context, tenantID, subjectID string) ([]Payment, error)

	// GetPayment busca un pago dentro del tenant. ErrNotFound si no existe
	// o pertenece a otro tenant.
	GetPayment(ctx context.Context, tenantID, paymentID string) (*Payment, error)

	// ListBilledSubjects lista subjects con al menos un hecho en el tenant.
	ListBilledSubjects(ctx context.Context, tenantID string) ([]string, error)
}

type EntitlementRepository interface {
	PutEntitlement(ctx context.Context, e Entitlement) error
	// GetEntitlement retorna ErrNotFound si nunca se computó.
	GetEntitlement(ctx context.Context, tenantID, subjectID string) (*Entitlement, error)
}
