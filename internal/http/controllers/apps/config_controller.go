// Package apps expone la configuración pública de cada app.
package apps

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	mw "github.com/dropDatabas3/appbase/internal/http/middlewares"
)

type AppLookup interface {
	App(ctx context.Context, appID string) (*repository.App, error)
}

type ConfigController struct {
	apps AppLookup
}

func NewConfigController(apps AppLookup) *ConfigController {
	return &ConfigController{apps: apps}
}

// Config GET /apps/{appID}/config devuelve apps.config tal cual.
func (c *ConfigController) Config(w http.ResponseWriter, r *http.Request) {
	app, err := c.apps.App(r.Context(), mw.TenantFromRequest(r))
	if err != nil {
		if repository.IsNotFound(err) || stderrors.Is(err, repository.ErrInvalidInput) {
			errors.WriteError(w, r, errors.ErrAppNotFound)
			return
		}
		errors.WriteError(w, r, errors.ErrServiceUnavailable.WithCause(err))
		return
	}
	body := []byte(app.Config)
	if len(body) == 0 || string(body) == "null" {
		body = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
