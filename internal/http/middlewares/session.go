package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/session"
)

// RequireSession resuelve la cookie de sesión del tenant de la ruta y deja el
// Principal en el contexto. Cualquier falla es el mismo 401.
func RequireSession(m *session.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := TenantFromRequest(r)
			p, ok := m.Authenticate(r, tenant)
			if !ok {
				errors.WriteError(w, r, errors.ErrUnauthorized)
				return
			}
			ctx := session.WithPrincipal(r.Context(), p)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.SubjectID(p.SubjectID())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
