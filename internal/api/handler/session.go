package handler

import (
	"net/http"

	"github.com/mcoot/tabletop/internal/api/response"
	"github.com/mcoot/tabletop/internal/storage"
)

// SessionHandler reports who is connected
type SessionHandler struct {
	registry storage.SessionRegistry
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry storage.SessionRegistry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	active, err := h.registry.Active(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if active == nil {
		active = []string{}
	}
	response.JSON(w, http.StatusOK, response.SessionList{Active: active})
}

// Health handles GET /api/v1/health, probing the session registry
func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.registry.Active(r.Context()); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Registry: "unreachable"})
		return
	}
	response.JSON(w, http.StatusOK, response.Health{Status: "ok", Registry: "ok"})
}
