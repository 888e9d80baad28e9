package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/playback"
	"git.home.luguber.info/inful/showroom/internal/server/responses"
)

// PlaybackService is the host-facing surface of the idle playback engine.
type PlaybackService interface {
	Touch() playback.WakeResult
	Ready(token uint64)
	Ended(token uint64)
	Failed(token uint64)
	Snapshot() playback.Snapshot
}

// PlaybackHandlers relays host callbacks to the playback engine. A nil
// engine means playback is disabled.
type PlaybackHandlers struct {
	engine       PlaybackService
	errorAdapter *errors.HTTPErrorAdapter
}

// NewPlaybackHandlers creates playback handlers.
func NewPlaybackHandlers(engine PlaybackService) *PlaybackHandlers {
	return &PlaybackHandlers{
		engine:       engine,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

type tokenRequest struct {
	Token uint64 `json:"token"`
}

// HandleSnapshot returns the engine state.
func (h *PlaybackHandlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	if err := writeJSONPretty(w, r, http.StatusOK, h.engine.Snapshot()); err != nil {
		slog.Error("failed writing playback snapshot", logfields.Error(err))
	}
}

// HandleTouch reports user input and returns where the host should go.
func (h *PlaybackHandlers) HandleTouch(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w, r) {
		return
	}
	if err := writeJSON(w, http.StatusOK, h.engine.Touch()); err != nil {
		slog.Error("failed writing touch response", logfields.Error(err))
	}
}

// HandleReady reports that a loaded slide is render-ready.
func (h *PlaybackHandlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	h.handleToken(w, r, h.engine.Ready)
}

// HandleEnded reports a video's natural end.
func (h *PlaybackHandlers) HandleEnded(w http.ResponseWriter, r *http.Request) {
	h.handleToken(w, r, h.engine.Ended)
}

// HandleFailed reports a media load or decode failure.
func (h *PlaybackHandlers) HandleFailed(w http.ResponseWriter, r *http.Request) {
	h.handleToken(w, r, h.engine.Failed)
}

func (h *PlaybackHandlers) handleToken(w http.ResponseWriter, r *http.Request, fn func(uint64)) {
	if !h.enabled(w, r) {
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryValidation, "invalid playback callback body").Build())
		return
	}
	if req.Token == 0 {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("token is required").Build())
		return
	}
	fn(req.Token)
	if err := writeJSON(w, http.StatusOK, responses.AckResponse{Status: "ok"}); err != nil {
		slog.Error("failed writing playback ack", logfields.Error(err))
	}
}

func (h *PlaybackHandlers) enabled(w http.ResponseWriter, r *http.Request) bool {
	if h.engine != nil {
		return true
	}
	h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("playback is disabled").Build())
	return false
}
