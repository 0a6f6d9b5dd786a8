// Package checkout crea sesiones de checkout y de portal en la cuenta
// conectada de cada app.
//
// Toda sesión de checkout lleva en su metadata (y en la de la suscripción o
// payment intent que genera) el app_id y end_user_id del comprador: el
// dispatcher de webhooks resuelve el dueño de cada evento con esos valores.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dropDatabas3/appbase/internal/billing/webhook"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/metrics"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"

	// ProductAppKey es la key de metadata del producto que lo asigna a una app.
	ProductAppKey = webhook.MetaAppID
)

var (
	ErrNotConfigured  = errors.New("checkout: payment provider not configured")
	ErrNoAccount      = errors.New("checkout: app has no connected payment account")
	ErrPriceNotFound  = errors.New("checkout: price not found")
	ErrPriceInactive  = errors.New("checkout: price is not active")
	ErrPriceForbidden = errors.New("checkout: price does not belong to this app")
	ErrNoCustomer     = errors.New("checkout: subject has no billing customer")
)

// Price es un precio del proveedor con los datos de su producto.
type Price struct {
	ID                 string
	ProductID          string
	ProductName        string
	ProductDescription string
	AppID              string
	Active             bool
	Currency           string
	UnitAmount         int64
	Recurring          bool
	Interval           string
	IntervalCount      int64
}

// SessionRequest es lo que el proveedor necesita para abrir un checkout.
type SessionRequest struct {
	PriceID           string
	Mode              string
	CustomerID        string
	Email             string
	ClientReferenceID string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
}

// Provider habla con el proveedor de pagos en nombre de una cuenta conectada.
type Provider interface {
	// GetPrice retorna ErrPriceNotFound si el precio no existe en la cuenta.
	GetPrice(ctx context.Context, accountID, priceID string) (*Price, error)
	ListPrices(ctx context.Context, accountID string) ([]Price, error)
	CreateCheckoutSession(ctx context.Context, accountID string, req SessionRequest) (string, error)
	CreatePortalSession(ctx context.Context, accountID, customerID, returnURL string) (string, error)
}

// URLs de retorno. Vacías se derivan del origin del request.
type URLs struct {
	Success      string
	Cancel       string
	PortalReturn string
}

type Service struct {
	apps     repository.AppRepository
	subjects repository.SubjectRepository
	ledger   repository.LedgerRepository
	provider Provider
	urls     URLs
}

// NewService arma el servicio. provider nil deja checkout deshabilitado
// (ErrNotConfigured).
func NewService(apps repository.AppRepository, subjects repository.SubjectRepository,
	ledger repository.LedgerRepository, provider Provider, urls URLs) *Service {
	return &Service{apps: apps, subjects: subjects, ledger: ledger, provider: provider, urls: urls}
}

func (s *Service) account(ctx context.Context, tenantID string) (string, error) {
	if s.provider == nil {
		return "", ErrNotConfigured
	}
	acc, err := s.apps.AppAccount(ctx, tenantID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", ErrNoAccount
		}
		return "", fmt.Errorf("checkout: app account: %w", err)
	}
	return acc.AccountID, nil
}

// Prices lista los precios activos cuyo producto pertenece a la app.
func (s *Service) Prices(ctx context.Context, tenantID string) ([]Price, error) {
	acct, err := s.account(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	all, err := s.provider.ListPrices(ctx, acct)
	if err != nil {
		return nil, err
	}
	out := make([]Price, 0, len(all))
	for _, p := range all {
		if p.Active && p.AppID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

// StartCheckout valida el precio y abre un checkout para el subject. El modo
// sale del precio: recurrente = suscripción, si no pago único.
func (s *Service) StartCheckout(ctx context.Context, tenantID, subjectID, priceID, origin string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("checkout"), logger.Op("StartCheckout"),
		logger.TenantID(tenantID), logger.SubjectID(subjectID))

	acct, err := s.account(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(priceID) == "" {
		return "", ErrPriceNotFound
	}
	price, err := s.provider.GetPrice(ctx, acct, priceID)
	if err != nil {
		return "", err
	}
	switch {
	case !price.Active:
		metrics.BillingSessions.WithLabelValues("checkout", "rejected").Inc()
		return "", ErrPriceInactive
	case price.AppID != tenantID:
		metrics.BillingSessions.WithLabelValues("checkout", "rejected").Inc()
		log.Warn("checkout for foreign price", logger.String("price_id", priceID), logger.String("price_app_id", price.AppID))
		return "", ErrPriceForbidden
	}

	req := SessionRequest{
		PriceID:           price.ID,
		Mode:              ModePayment,
		ClientReferenceID: subjectID,
		Metadata:          map[string]string{webhook.MetaAppID: tenantID, webhook.MetaEndUserID: subjectID},
		SuccessURL:        s.successURL(origin, tenantID),
		CancelURL:         s.cancelURL(origin, tenantID),
	}
	if price.Recurring {
		req.Mode = ModeSubscription
	}

	c, err := s.ledger.FindCustomer(ctx, tenantID, subjectID)
	switch {
	case err == nil:
		// un customer de otra cuenta conectada no existe en esta
		if c.AccountID == "" || c.AccountID == acct {
			req.CustomerID = c.CustomerID
		}
	case !repository.IsNotFound(err):
		return "", fmt.Errorf("checkout: find customer: %w", err)
	}
	if req.CustomerID == "" {
		if sub, err := s.subjects.GetSubject(ctx, tenantID, subjectID); err == nil {
			req.Email = sub.Email
		}
	}

	u, err := s.provider.CreateCheckoutSession(ctx, acct, req)
	if err != nil {
		metrics.BillingSessions.WithLabelValues("checkout", "failed").Inc()
		return "", err
	}
	metrics.BillingSessions.WithLabelValues("checkout", "created").Inc()
	log.Info("checkout session created", logger.AccountID(acct), logger.String("price_id", price.ID), logger.String("mode", req.Mode))
	return u, nil
}

// Portal abre el portal de cliente del proveedor para el subject.
func (s *Service) Portal(ctx context.Context, tenantID, subjectID, origin string) (string, error) {
	acct, err := s.account(ctx, tenantID)
	if err != nil {
		return "", err
	}
	c, err := s.ledger.FindCustomer(ctx, tenantID, subjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", ErrNoCustomer
		}
		return "", fmt.Errorf("checkout: find customer: %w", err)
	}
	if c.AccountID != "" && c.AccountID != acct {
		return "", ErrNoCustomer
	}

	returnURL := s.urls.PortalReturn
	if returnURL == "" {
		returnURL = strings.TrimRight(origin, "/") + "/dashboard"
	}
	u, err := s.provider.CreatePortalSession(ctx, acct, c.CustomerID, returnURL)
	if err != nil {
		metrics.BillingSessions.WithLabelValues("portal", "failed").Inc()
		return "", err
	}
	metrics.BillingSessions.WithLabelValues("portal", "created").Inc()
	return u, nil
}

func (s *Service) successURL(origin, tenantID string) string {
	if s.urls.Success != "" {
		return s.urls.Success
	}
	// {CHECKOUT_SESSION_ID} lo reemplaza el proveedor; no se escapa
	return strings.TrimRight(origin, "/") + "/stripe/success?session_id={CHECKOUT_SESSION_ID}&app_id=" + url.QueryEscape(tenantID)
}

func (s *Service) cancelURL(origin, tenantID string) string {
	if s.urls.Cancel != "" {
		return s.urls.Cancel
	}
	return strings.TrimRight(origin, "/") + "/stripe/cancel?app_id=" + url.QueryEscape(tenantID)
}
