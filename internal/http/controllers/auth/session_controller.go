package auth

import (
	"net/http"

	dto "github.com/dropDatabas3/appbase/internal/http/dto/auth"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/http/helpers"
	"github.com/dropDatabas3/appbase/internal/http/middlewares"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/session"
)

// SessionController maneja logout y logout-all.
type SessionController struct {
	sessions *session.Manager
}

// Logout revoca la sesión actual si existe y siempre borra la cookie. Idempotente.
func (c *SessionController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SessionController.Logout"))
	tenantID := middlewares.TenantFromRequest(r)

	if p, ok := c.sessions.Authenticate(r, tenantID); ok {
		if err := c.sessions.Revoke(ctx, tenantID, p.Digest()); err != nil {
			errors.WriteError(w, r, errors.ErrServiceUnavailable.WithCause(err))
			return
		}
		log.Debug("session revoked on logout", logger.SubjectID(p.SubjectID()))
	}
	c.clearCookies(w, tenantID)
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revoca todas las sesiones del subject en el tenant.
func (c *SessionController) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := c.sessions.RevokeAll(r.Context(), p.TenantID(), p.SubjectID())
	if err != nil {
		errors.WriteError(w, r, errors.ErrServiceUnavailable.WithCause(err))
		return
	}
	c.clearCookies(w, p.TenantID())
	helpers.WriteJSON(w, http.StatusOK, dto.LogoutAllResponse{Revoked: n})
}

func (c *SessionController) clearCookies(w http.ResponseWriter, tenantID string) {
	policy := c.sessions.Cookies()
	http.SetCookie(w, policy.Clear(tenantID))
	if legacy := policy.ClearLegacy(); legacy != nil {
		http.SetCookie(w, legacy)
	}
}
