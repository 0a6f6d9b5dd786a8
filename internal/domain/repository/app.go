package repository

import (
	"context"
	"encoding/json"
	"time"
)

// Valores de apps.config.monetization.type
const (
	MonetizationNone            = "none"
	MonetizationLoginRequired   = "login_required"
	MonetizationPaymentRequired = "payment_required"
)

// App es el tenant: frontera de aislamiento de sesiones y billing.
type App struct {
	ID               string
	Name             string
	MonetizationType string
	// Config es apps.config tal cual está guardado (objeto JSON).
	Config    json.RawMessage
	CreatedAt time.Time
}

// LoginEnabled: solo apps con login o pago requerido aceptan login de end users.
func (a *App) LoginEnabled() bool {
	return a.MonetizationType == MonetizationLoginRequired || a.MonetizationType == MonetizationPaymentRequired
}

// ConnectedAccount vincula una cuenta conectada del proveedor de pagos con su app dueña.
type ConnectedAccount struct {
	AccountID      string
	AppID          string
	Status         string // active | deauthorized
	ChargesEnabled bool
	UpdatedAt      time.Time
}

type AppRepository interface {
	// GetApp retorna ErrNotFound si la app no existe.
	GetApp(ctx context.Context, appID string) (*App, error)

	// AccountOwner resuelve la app dueña de una cuenta conectada activa.
	// ErrNotFound si la cuenta no existe o fue desautorizada.
	AccountOwner(ctx context.Context, accountID string) (appID string, err error)

	// AppAccount devuelve la cuenta conectada activa de la app.
	// ErrNotFound si no tiene ninguna.
	AppAccount(ctx context.Context, appID string) (*ConnectedAccount, error)

	// UpdateConnectedAccount actualiza estado de una cuenta ya vinculada.
	// ErrNotFound si no existe.
	UpdateConnectedAccount(ctx context.Context, acc ConnectedAccount) error
}
