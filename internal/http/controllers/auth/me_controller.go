package auth

import (
	"net/http"

	"github.com/dropDatabas3/appbase/internal/domain/repository"
	dto "github.com/dropDatabas3/appbase/internal/http/dto/auth"
	"github.com/dropDatabas3/appbase/internal/http/errors"
	"github.com/dropDatabas3/appbase/internal/http/helpers"
)

// MeController maneja GET /apps/{appID}/me.
type MeController struct {
	subjects repository.SubjectRepository
}

func (c *MeController) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	s, err := c.subjects.GetSubject(r.Context(), p.TenantID(), p.SubjectID())
	if err != nil {
		if repository.IsNotFound(err) {
			// sesión de un subject borrado
			errors.WriteError(w, r, errors.ErrUnauthorized)
			return
		}
		errors.WriteError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MeResponse{
		ID:          s.ID,
		AppID:       s.TenantID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		AvatarURL:   s.AvatarURL,
		CreatedAt:   s.CreatedAt,
		LastLoginAt: s.LastLoginAt,
	})
}
