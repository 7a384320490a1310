package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/tabletop/internal/api/apierr"
	"github.com/mcoot/tabletop/internal/middleware"
)

// Logging creates request logging middleware for the admin API
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger)
}

// Recovery creates panic recovery middleware answering with the API's JSON
// internal error
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		apierr.WriteError(w, apierr.NewInternalError())
	})
}
