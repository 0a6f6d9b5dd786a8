package billing

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/appbase/internal/billing/checkout"
	dto "github.com/dropDatabas3/appbase/internal/http/dto/billing"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/http/helpers"
	mw "github.com/dropDatabas3/appbase/internal/http/middlewares"
	"github.com/dropDatabas3/appbase/internal/session"
)

// PriceParam es el parámetro de ruta del precio en el checkout.
const PriceParam = "priceID"

type CheckoutService interface {
	Prices(ctx context.Context, tenantID string) ([]checkout.Price, error)
	StartCheckout(ctx context.Context, tenantID, subjectID, priceID, origin string) (string, error)
	Portal(ctx context.Context, tenantID, subjectID, origin string) (string, error)
}

// CheckoutController maneja /apps/{appID}/stripe/*.
type CheckoutController struct {
	svc CheckoutService
}

func NewCheckoutController(s CheckoutService) *CheckoutController {
	return &CheckoutController{svc: s}
}

// Prices GET /apps/{appID}/stripe/prices. Público: es el catálogo de la app.
func (c *CheckoutController) Prices(w http.ResponseWriter, r *http.Request) {
	prices, err := c.svc.Prices(r.Context(), mw.TenantFromRequest(r))
	if err != nil {
		errors.WriteError(w, r, mapCheckoutErr(err))
		return
	}
	out := dto.PriceListResponse{Data: make([]dto.PriceResponse, 0, len(prices)), Count: len(prices)}
	for _, p := range prices {
		pr := dto.PriceResponse{
			ID:                 p.ID,
			ProductID:          p.ProductID,
			ProductName:        p.ProductName,
			ProductDescription: p.ProductDescription,
			Currency:           p.Currency,
			UnitAmount:         p.UnitAmount,
		}
		if p.Recurring {
			pr.Recurring = &dto.Recurring{Interval: p.Interval, IntervalCount: p.IntervalCount}
		}
		out.Data = append(out.Data, pr)
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Checkout GET /apps/{appID}/stripe/checkout/prices/{priceID}: crea la
// sesión y redirige (303) al checkout del proveedor.
func (c *CheckoutController) Checkout(w http.ResponseWriter, r *http.Request) {
	p, ok := session.FromContext(r.Context())
	if !ok {
		errors.WriteError(w, r, errors.ErrUnauthorized)
		return
	}
	u, err := c.svc.StartCheckout(r.Context(), p.TenantID(), p.SubjectID(), chi.URLParam(r, PriceParam), requestOrigin(r))
	if err != nil {
		errors.WriteError(w, r, mapCheckoutErr(err))
		return
	}
	redirect(w, r, u)
}

// Portal GET /apps/{appID}/stripe/portal.
func (c *CheckoutController) Portal(w http.ResponseWriter, r *http.Request) {
	p, ok := session.FromContext(r.Context())
	if !ok {
		errors.WriteError(w, r, errors.ErrUnauthorized)
		return
	}
	u, err := c.svc.Portal(r.Context(), p.TenantID(), p.SubjectID(), requestOrigin(r))
	if err != nil {
		errors.WriteError(w, r, mapCheckoutErr(err))
		return
	}
	redirect(w, r, u)
}

func redirect(w http.ResponseWriter, r *http.Request, u string) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		helpers.WriteJSON(w, http.StatusOK, dto.RedirectResponse{URL: u})
		return
	}
	http.Redirect(w, r, u, http.StatusSeeOther)
}

func mapCheckoutErr(err error) error {
	switch {
	case stderrors.Is(err, checkout.ErrNotConfigured):
		return errors.ErrServiceUnavailable.WithDetail("pagos no configurados").WithCause(err)
	case stderrors.Is(err, checkout.ErrNoAccount):
		return errors.ErrNotFound.WithDetail("la app no tiene cuenta de pagos")
	case stderrors.Is(err, checkout.ErrPriceNotFound):
		return errors.ErrNotFound.WithDetail("precio inexistente")
	case stderrors.Is(err, checkout.ErrPriceInactive):
		return errors.ErrBadRequest.WithDetail("el precio no está activo")
	case stderrors.Is(err, checkout.ErrPriceForbidden):
		return errors.ErrForbidden.WithDetail("el precio no pertenece a esta app")
	case stderrors.Is(err, checkout.ErrNoCustomer):
		return errors.ErrNotFound.WithDetail("sin cliente de billing")
	}
	return err
}

// requestOrigin arma scheme://host del request para las URLs de retorno.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(p, ",")[0]))
	}
	return scheme + "://" + r.Host
}
