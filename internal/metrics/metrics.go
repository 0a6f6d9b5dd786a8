// Package metrics define los collectors Prometheus del dominio.
//
// Vive aparte de internal/http para que session y billing puedan
// instrumentarse sin importar la capa HTTP. Ningún label lleva tenant ni
// subject: la cardinalidad queda acotada por tipos y resultados.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appbase_sessions_issued_total",
		Help: "Sesiones emitidas",
	})

	// result: valid|absent|expired|error
	SessionValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appbase_session_validations_total",
		Help: "Validaciones de sesión por resultado",
	}, []string{"result"})

	// outcome: applied|stale|ignored|dropped|failed
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appbase_webhook_events_total",
		Help: "Eventos de webhook de billing por tipo y resultado",
	}, []string{"type", "outcome"})

	WebhookSignatureFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appbase_webhook_signature_failures_total",
		Help: "Webhooks rechazados por firma o timestamp",
	})

	// status: current|past_due|cancelled
	EntitlementReconciles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appbase_entitlement_reconciles_total",
		Help: "Recomputos de entitlement por estado resultante",
	}, []string{"status"})

	// kind: checkout|portal; result: created|rejected|failed
	BillingSessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appbase_billing_sessions_total",
		Help: "Sesiones de checkout y portal creadas en el proveedor",
	}, []string{"kind", "result"})
)

// Register registra los collectors del dominio (default registry si reg es nil).
// Registrar dos veces no es error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		SessionsIssued, SessionValidations, WebhookEvents, WebhookSignatureFailures, EntitlementReconciles,
		BillingSessions,
	} {
		if err := RegisterCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCollector registra c ignorando AlreadyRegisteredError.
func RegisterCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
