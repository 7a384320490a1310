package handler

import (
	"net/http"

	"github.com/mcoot/tabletop/internal/api/apierr"
	"github.com/mcoot/tabletop/internal/api/middleware"
	"github.com/mcoot/tabletop/internal/api/response"
)

// Me handles GET /api/v1/auth/me
func Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		WriteError(w, apierr.NewUnauthorizedError())
		return
	}

	response.JSON(w, http.StatusOK, response.Identity{
		Subject:   claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt,
	})
}
