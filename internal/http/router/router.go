// Package router arma el árbol de rutas chi del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/appbase/internal/http/controllers/apps"
	"github.com/dropDatabas3/appbase/internal/http/controllers/auth"
	"github.com/dropDatabas3/appbase/internal/http/controllers/billing"
	"github.com/dropDatabas3/appbase/internal/http/controllers/health"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	mw "github.com/dropDatabas3/appbase/internal/http/middlewares"
	"github.com/dropDatabas3/appbase/internal/rate"
	"github.com/dropDatabas3/appbase/internal/session"
)

type Deps struct {
	Auth        *auth.Controllers
	Webhook     *billing.WebhookController
	Entitlement *billing.EntitlementController
	Checkout    *billing.CheckoutController
	AppConfig   *apps.ConfigController
	Health      *health.HealthController
	Sessions    *session.Manager

	// LoginLimiter limita signup/login por ip+tenant; nil lo desactiva.
	LoginLimiter rate.Limiter
	CORSOrigins  []string
	// Metrics expone /metrics si no es nil.
	Metrics http.Handler
}

// New devuelve el handler raíz.
//
//	GET  /healthz, /readyz, /metrics
//	POST /stripe/webhook
//	POST /auth/{appID}/password/signup
//	POST /auth/{appID}/password/login
//	POST /apps/{appID}/logout
//	POST /apps/{appID}/logout-all         (sesión)
//	GET  /apps/{appID}/me                 (sesión)
//	GET  /apps/{appID}/me/entitlement     (sesión)
//	GET  /apps/{appID}/config
//	GET  /apps/{appID}/stripe/prices
//	GET  /apps/{appID}/stripe/checkout/prices/{priceID}  (sesión)
//	GET  /apps/{appID}/stripe/portal      (sesión)
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithSecurityHeaders(),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) { errors.WriteError(w, r, errors.ErrNotFound) })
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, r, errors.ErrMethodNotAllowed)
	})

	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// sin CORS: lo llama el proveedor server-to-server
	r.Post("/stripe/webhook", d.Webhook.Handle)

	r.Route("/auth/{"+mw.TenantParam+"}", func(r chi.Router) {
		r.Use(mw.WithCORS(d.CORSOrigins), mw.WithTenant(), mw.WithNoStore())
		r.Group(func(r chi.Router) {
			r.Use(mw.WithRateLimit(d.LoginLimiter, mw.TenantIPRateKey))
			r.Post("/password/signup", d.Auth.Password.Signup)
			r.Post("/password/login", d.Auth.Password.Login)
		})
	})

	r.Route("/apps/{"+mw.TenantParam+"}", func(r chi.Router) {
		r.Use(mw.WithCORS(d.CORSOrigins), mw.WithTenant(), mw.WithNoStore())
		r.Post("/logout", d.Auth.Session.Logout)
		r.Get("/config", d.AppConfig.Config)
		r.Get("/stripe/prices", d.Checkout.Prices)
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireSession(d.Sessions))
			r.Post("/logout-all", d.Auth.Session.LogoutAll)
			r.Get("/me", d.Auth.Me.Me)
			r.Get("/me/entitlement", d.Entitlement.Get)
			r.Get("/stripe/checkout/prices/{"+billing.PriceParam+"}", d.Checkout.Checkout)
			r.Get("/stripe/portal", d.Checkout.Portal)
		})
	})

	return r
}
