package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/tabletop/internal/api/request"
	"github.com/mcoot/tabletop/internal/api/response"
	"github.com/mcoot/tabletop/internal/model"
	"github.com/mcoot/tabletop/internal/storage"
)

// PlayerHandler administers the player database
type PlayerHandler struct {
	db storage.PlayerDatabase
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(db storage.PlayerDatabase) *PlayerHandler {
	return &PlayerHandler{db: db}
}

// List handles GET /api/v1/players
func (h *PlayerHandler) List(w http.ResponseWriter, r *http.Request) {
	players := h.db.Players()
	out := response.PlayerList{Players: make([]response.Player, 0, len(players))}
	for _, p := range players {
		view, err := h.view(&p)
		if err != nil {
			WriteError(w, err)
			return
		}
		out.Players = append(out.Players, view)
	}
	response.JSON(w, http.StatusOK, out)
}

// Create handles POST /api/v1/players
func (h *PlayerHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.db.SupportsAdministration() {
		WriteError(w, model.ErrUnsupported)
		return
	}

	var req request.CreatePlayerRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Name == "" {
		WriteError(w, NewInvalidRequestError("name is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.db.AddPlayer(req.Name, role, req.Password); err != nil {
		WriteError(w, err)
		return
	}

	player, err := h.db.GetPlayer(req.Name)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, response.CreatedPlayer{
		Player: response.PlayerFromModel(player),
		Salt:   base64.RawStdEncoding.EncodeToString(h.db.GetPlayerSalt(req.Name)),
	})
}

// Get handles GET /api/v1/players/{name}
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	player, err := h.db.GetPlayer(mux.Vars(r)["name"])
	if err != nil {
		WriteError(w, err)
		return
	}
	view, err := h.view(player)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

// Delete handles DELETE /api/v1/players/{name}
func (h *PlayerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.db.SupportsAdministration() {
		WriteError(w, model.ErrUnsupported)
		return
	}
	if err := h.db.RemovePlayer(mux.Vars(r)["name"]); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}

// Disable handles POST /api/v1/players/{name}/disable
func (h *PlayerHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if !h.db.SupportsDisabling() {
		WriteError(w, model.ErrUnsupported)
		return
	}

	var req request.DisablePlayerRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Reason == "" {
		WriteError(w, NewInvalidRequestError("reason is required"))
		return
	}

	h.mutate(w, mux.Vars(r)["name"], func(name string) error {
		return h.db.DisablePlayer(name, req.Reason)
	})
}

// Enable handles POST /api/v1/players/{name}/enable
func (h *PlayerHandler) Enable(w http.ResponseWriter, r *http.Request) {
	if !h.db.SupportsDisabling() {
		WriteError(w, model.ErrUnsupported)
		return
	}
	h.mutate(w, mux.Vars(r)["name"], h.db.EnablePlayer)
}

// GetPlayTimes handles GET /api/v1/players/{name}/playtimes
func (h *PlayerHandler) GetPlayTimes(w http.ResponseWriter, r *http.Request) {
	if !h.db.SupportsPlayTimes() {
		WriteError(w, model.ErrUnsupported)
		return
	}
	times, err := h.db.GetPlayTimes(mux.Vars(r)["name"])
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.PlayTimesFromModel(times))
}

// SetPlayTimes handles PUT /api/v1/players/{name}/playtimes
func (h *PlayerHandler) SetPlayTimes(w http.ResponseWriter, r *http.Request) {
	if !h.db.SupportsPlayTimes() {
		WriteError(w, model.ErrUnsupported)
		return
	}

	var req []request.PlayTime
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	times := make([]model.PlayTime, 0, len(req))
	for _, pt := range req {
		parsed, err := model.ParsePlayTime(pt.Day, pt.Start, pt.End)
		if err != nil {
			WriteError(w, err)
			return
		}
		times = append(times, parsed)
	}

	name := mux.Vars(r)["name"]
	if err := h.db.SetPlayTimes(name, times); err != nil {
		WriteError(w, err)
		return
	}
	current, err := h.db.GetPlayTimes(name)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.PlayTimesFromModel(current))
}

// mutate applies fn to name and responds with the updated player
func (h *PlayerHandler) mutate(w http.ResponseWriter, name string, fn func(name string) error) {
	if err := fn(name); err != nil {
		WriteError(w, err)
		return
	}
	player, err := h.db.GetPlayer(name)
	if err != nil {
		WriteError(w, err)
		return
	}
	view, err := h.view(player)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

// view builds the response for p including whatever state the database tracks
func (h *PlayerHandler) view(p *model.Player) (response.Player, error) {
	out := response.PlayerFromModel(p)

	if h.db.SupportsDisabling() {
		reason, err := h.db.GetDisabledReason(p.Name)
		if err != nil && !errors.Is(err, model.ErrPlayerNotFound) {
			return response.Player{}, err
		}
		out.Disabled = reason != ""
		out.DisabledReason = reason
	}

	if h.db.SupportsPlayTimes() {
		times, err := h.db.GetPlayTimes(p.Name)
		if err != nil && !errors.Is(err, model.ErrPlayerNotFound) {
			return response.Player{}, err
		}
		if len(times) > 0 {
			out.PlayTimes = response.PlayTimesFromModel(times)
		}
	}

	return out, nil
}
