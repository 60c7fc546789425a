package http

import (
	"errors"
	"log/slog"
	"net/http"

	"nowplaying/internal/auth"
	"nowplaying/internal/playback"
)

// PlayerHandler exposes playback control for the signed-in session.
type PlayerHandler struct {
	players PlayerRegistry
	logger  *slog.Logger
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(players PlayerRegistry, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{players: players, logger: logger}
}

type playRequest struct {
	TrackID string `json:"track_id"`
}

type transferRequest struct {
	DeviceID string `json:"device_id"`
}

type volumeRequest struct {
	Volume *int `json:"volume"`
}

// player returns the session's running player, starting an unseeded one
// when the dashboard has not been rendered yet or the previous player halted
// on a session that has since been re-validated.
func (h *PlayerHandler) player(r *http.Request) (*playback.Player, bool) {
	session, ok := SessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	if player, ok := h.players.Get(session.ID); ok && !player.Halted() {
		return player, true
	}
	return h.players.Ensure(session.ID, nil), true
}

// State handles GET /api/player.
func (h *PlayerHandler) State(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}
	writeJSON(w, http.StatusOK, player.State())
}

// Play handles POST /api/player/play. An empty track id resumes the tracked
// item.
func (h *PlayerHandler) Play(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	var req playRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeJSONError(w, err)
			return
		}
	}
	if req.TrackID == "" {
		req.TrackID = player.State().ActiveTrackID
	}
	if req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "track_id is required")
		return
	}

	if err := player.Play(r.Context(), req.TrackID); err != nil {
		h.handleCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player.State())
}

// Pause handles POST /api/player/pause.
func (h *PlayerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	if err := player.Pause(r.Context()); err != nil {
		h.handleCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player.State())
}

// Devices handles GET /api/player/devices.
func (h *PlayerHandler) Devices(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	devices, err := player.Devices(r.Context())
	if err != nil {
		h.handleCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// Transfer handles PUT /api/player/device.
func (h *PlayerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	var req transferRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	if err := player.Transfer(r.Context(), req.DeviceID); err != nil {
		h.handleCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Volume handles GET /api/player/volume.
func (h *PlayerHandler) Volume(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	vol, err := player.Volume(r.Context())
	if err != nil {
		h.handleCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

// SetVolume handles PUT /api/player/volume.
func (h *PlayerHandler) SetVolume(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	var req volumeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err)
		return
	}
	if req.Volume == nil || *req.Volume < 0 || *req.Volume > 100 {
		writeError(w, http.StatusBadRequest, "volume must be between 0 and 100")
		return
	}

	vol, err := player.SetVolume(r.Context(), *req.Volume)
	if err != nil {
		h.handleCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

// ToggleMute handles POST /api/player/mute.
func (h *PlayerHandler) ToggleMute(w http.ResponseWriter, r *http.Request) {
	player, ok := h.player(r)
	if !ok {
		unauthorized(w, r, auth.ReasonNoSession)
		return
	}

	vol, err := player.ToggleMute(r.Context())
	if err != nil {
		h.handleCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

func (h *PlayerHandler) handleCommandError(w http.ResponseWriter, err error) {
	var cmdErr *playback.CommandError
	if !errors.As(err, &cmdErr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusBadGateway
	switch cmdErr.Kind {
	case playback.KindNoActiveDevice:
		status = http.StatusConflict
	case playback.KindPremiumRequired:
		status = http.StatusForbidden
	case playback.KindSessionExpired:
		status = http.StatusUnauthorized
	}

	h.logger.Warn("playback command failed", "kind", cmdErr.Kind, "error", cmdErr.Err)
	writeCodedError(w, status, string(cmdErr.Kind), cmdErr.Message)
}
