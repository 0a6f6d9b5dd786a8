// Package auth contiene los controllers de end users: password signup/login,
// logout y perfil.
package auth

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/http/middlewares"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/session"
)

// AppLookup resuelve la app (tenant) con su política de login.
type AppLookup interface {
	App(ctx context.Context, appID string) (*repository.App, error)
}

// PasswordService es la parte de identity que usan los controllers.
type PasswordService interface {
	Signup(ctx context.Context, tenantID, email, plain, displayName string) (string, error)
	Login(ctx context.Context, tenantID, email, plain string) (string, error)
}

type Deps struct {
	Apps      AppLookup
	Passwords PasswordService
	Sessions  *session.Manager
	Subjects  repository.SubjectRepository
}

// Controllers agrupa los controllers de auth.
type Controllers struct {
	Password *PasswordController
	Session  *SessionController
	Me       *MeController
}

func NewControllers(d Deps) *Controllers {
	return &Controllers{
		Password: &PasswordController{apps: d.Apps, passwords: d.Passwords, sessions: d.Sessions},
		Session:  &SessionController{sessions: d.Sessions},
		Me:       &MeController{subjects: d.Subjects},
	}
}

// loginPolicy exige que la app exista y tenga login de end users habilitado.
func loginPolicy(ctx context.Context, apps AppLookup, tenantID string) error {
	if tenantID == "" {
		return errors.ErrAppNotFound
	}
	app, err := apps.App(ctx, tenantID)
	if err != nil {
		if repository.IsNotFound(err) {
			return errors.ErrAppNotFound
		}
		return errors.ErrServiceUnavailable.WithCause(err)
	}
	if !app.LoginEnabled() {
		return errors.ErrLoginDisabled
	}
	return nil
}

// issueSession emite la sesión y setea la cookie del tenant.
func issueSession(w http.ResponseWriter, r *http.Request, m *session.Manager, tenantID, subjectID string) (session.Issued, error) {
	iss, err := m.Issue(r.Context(), tenantID, subjectID, session.ClientContext{
		IP:        middlewares.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if stderrors.Is(err, session.ErrStore) {
			return session.Issued{}, errors.ErrServiceUnavailable.WithCause(err)
		}
		return session.Issued{}, err
	}
	http.SetCookie(w, m.Cookies().Cookie(tenantID, iss.RawToken, iss.ExpiresAt, m.Now()))
	return iss, nil
}

func principal(w http.ResponseWriter, r *http.Request) (session.Principal, bool) {
	p, ok := session.FromContext(r.Context())
	if !ok {
		logger.From(r.Context()).Error("handler mounted without session middleware")
		errors.WriteError(w, r, errors.ErrUnauthorized)
	}
	return p, ok
}
