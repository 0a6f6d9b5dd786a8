package auth

import (
	stderrors "errors"
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/appbase/internal/http/dto/auth"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/http/helpers"
	"github.com/dropDatabas3/appbase/internal/http/middlewares"
	"github.com/dropDatabas3/appbase/internal/identity"
	"github.com/dropDatabas3/appbase/internal/observability/logger"
	"github.com/dropDatabas3/appbase/internal/session"
)

// PasswordController maneja POST /auth/{appID}/password/{signup,login}.
type PasswordController struct {
	apps      AppLookup
	passwords PasswordService
	sessions  *session.Manager
}

// Signup crea el end user con identidad password y le emite sesión.
func (c *PasswordController) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("PasswordController.Signup"))
	tenantID := middlewares.TenantFromRequest(r)

	if err := loginPolicy(ctx, c.apps, tenantID); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	var req dto.SignupRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		errors.WriteError(w, r, errors.ErrMissingFields.WithDetail("email y password son requeridos"))
		return
	}

	subjectID, err := c.passwords.Signup(ctx, tenantID, req.Email, req.Password, strings.TrimSpace(req.DisplayName))
	if err != nil {
		var policy *identity.PolicyError
		switch {
		case stderrors.As(err, &policy):
			errors.WriteError(w, r, errors.ErrPasswordTooWeak.WithDetail(strings.Join(policy.Reasons, ",")))
		case stderrors.Is(err, identity.ErrInvalidEmail):
			errors.WriteError(w, r, errors.ErrInvalidFormat.WithDetail("email inválido"))
		case stderrors.Is(err, identity.ErrEmailTaken):
			errors.WriteError(w, r, errors.ErrEmailAlreadyInUse)
		case stderrors.Is(err, identity.ErrLinkFailed):
			errors.WriteError(w, r, errors.ErrServiceUnavailable.WithCause(err))
		default:
			errors.WriteError(w, r, err)
		}
		return
	}

	iss, err := issueSession(w, r, c.sessions, tenantID, subjectID)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	log.Info("signup completed", logger.SubjectID(subjectID))
	helpers.WriteJSON(w, http.StatusCreated, dto.SessionResponse{SubjectID: subjectID, ExpiresAt: iss.ExpiresAt})
}

// Login verifica email/password y emite sesión. Cualquier falla de
// credenciales es el mismo 401.
func (c *PasswordController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("PasswordController.Login"))
	tenantID := middlewares.TenantFromRequest(r)

	if err := loginPolicy(ctx, c.apps, tenantID); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	var req dto.LoginRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		errors.WriteError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		errors.WriteError(w, r, errors.ErrMissingFields.WithDetail("email y password son requeridos"))
		return
	}

	subjectID, err := c.passwords.Login(ctx, tenantID, req.Email, req.Password)
	if err != nil {
		switch {
		case stderrors.Is(err, identity.ErrInvalidCredentials):
			log.Debug("login rejected")
			errors.WriteError(w, r, errors.ErrInvalidCredentials)
		case stderrors.Is(err, identity.ErrLinkFailed):
			errors.WriteError(w, r, errors.ErrServiceUnavailable.WithCause(err))
		default:
			errors.WriteError(w, r, err)
		}
		return
	}

	iss, err := issueSession(w, r, c.sessions, tenantID, subjectID)
	if err != nil {
		errors.WriteError(w, r, err)
		return
	}
	log.Info("login completed", logger.SubjectID(subjectID))
	helpers.WriteJSON(w, http.StatusOK, dto.SessionResponse{SubjectID: subjectID, ExpiresAt: iss.ExpiresAt})
}
