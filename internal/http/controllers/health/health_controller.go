// Package health contiene /healthz y /readyz.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/appbase/internal/http/helpers"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
)

// Pinger es cualquier dependencia que se puede chequear (store, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthController maneja las rutas de health check.
type HealthController struct {
	components map[string]Pinger
	timeout    time.Duration
}

// NewHealthController recibe los componentes por nombre; los nil se ignoran.
func NewHealthController(components map[string]Pinger) *HealthController {
	c := &HealthController{components: map[string]Pinger{}, timeout: 2 * time.Second}
	for name, p := range components {
		if p != nil {
			c.components[name] = p
		}
	}
	return c
}

// Healthz: liveness, no toca dependencias.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
}

// Readyz pinguea cada componente; cualquiera caído = 503.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := Response{Status: "ready", Components: map[string]string{}}
	status := http.StatusOK
	for name, p := range c.components {
		if err := p.Ping(ctx); err != nil {
			log.Warn("component not ready", logger.Component(name), logger.Err(err))
			resp.Components[name] = "down"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "up"
	}
	helpers.WriteJSON(w, status, resp)
}
