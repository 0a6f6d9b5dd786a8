// Package billing contiene el endpoint de webhooks del proveedor de pagos y
// la lectura de entitlement del end user.
package billing

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/appbase/internal/billing/webhook"
	"github.com/dropDatabas3/appbase/internal/domain/repository"
	dto "github.com/dropDatabas3/appbase/internal/http/dto/billing"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/http/helpers"
	"github.com/dropDatabas3/appbase/internal/metrics"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/session"
)

type Verifier interface {
	Verify(payload []byte, header string) (*webhook.Event, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev *webhook.Event) (webhook.Outcome, error)
}

type EntitlementSource interface {
	Current(ctx context.Context, tenantID, subjectID string) (*repository.Entitlement, error)
}

// WebhookController maneja POST /stripe/webhook.
type WebhookController struct {
	verifier   Verifier
	dispatcher Dispatcher
}

func NewWebhookController(v Verifier, d Dispatcher) *WebhookController {
	return &WebhookController{verifier: v, dispatcher: d}
}

// Handle verifica la firma sobre el body exacto y despacha. 400 = firma o
// envelope inválidos (el proveedor no reintenta), 500 = reintentar.
func (c *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("WebhookController.Handle"))

	payload, err := helpers.ReadBody(w, r)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}

	ev, err := c.verifier.Verify(payload, r.Header.Get(webhook.SignatureHeader))
	switch {
	case err == nil:
	case stderrors.Is(err, webhook.ErrSignature):
		metrics.WebhookSignatureFailures.Inc()
		log.Warn("webhook signature rejected", logger.Err(err))
		errors.WriteError(w, r, errors.ErrInvalidSignature)
		return
	case stderrors.Is(err, webhook.ErrMalformed):
		log.Warn("webhook envelope malformed", logger.Err(err))
		errors.WriteError(w, r, errors.ErrBadRequest.WithDetail("evento mal formado"))
		return
	default:
		errors.WriteError(w, r, err)
		return
	}

	if _, err := c.dispatcher.Dispatch(ctx, ev); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.WebhookAck{Received: true})
}

// EntitlementController maneja GET /apps/{appID}/me/entitlement.
type EntitlementController struct {
	source EntitlementSource
}

func NewEntitlementController(s EntitlementSource) *EntitlementController {
	return &EntitlementController{source: s}
}

// Get recomputa desde el ledger y devuelve el snapshot actualizado.
func (c *EntitlementController) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := session.FromContext(r.Context())
	if !ok {
		errors.WriteError(w, r, errors.ErrUnauthorized)
		return
	}
	e, err := c.source.Current(r.Context(), p.TenantID(), p.SubjectID())
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.EntitlementResponse{
		Status:      string(e.Status),
		AccessUntil: e.AccessUntil,
		Source:      e.Source,
		ComputedAt:  e.ComputedAt,
	})
}
