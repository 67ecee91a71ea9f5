package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okian/sessiond/internal/domain/model"
	"github.com/okian/sessiond/internal/domain/types"
)

// SessionDependencies defines the read side used by the sessions handler.
type SessionDependencies interface {
	Fetch(ctx context.Context, playerID string) ([]types.CompletedSession, error)
	Pending(ctx context.Context, key model.SessionKey) (model.IncompleteRecord, bool, error)
}

// SessionsHandler serves completed and staged sessions.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

type sessionsResponse struct {
	PlayerID string                   `json:"player_id"`
	Sessions []types.CompletedSession `json:"sessions"`
}

// pendingResponse is a staging row; absent bounds are omitted.
type pendingResponse struct {
	PlayerID  string  `json:"player_id"`
	SessionID string  `json:"session_id"`
	Country   *string `json:"country,omitempty"`
	StartTime string  `json:"start_time,omitempty"`
	EndTime   string  `json:"end_time,omitempty"`
}

// HandleFetch handles GET /sessions/{player_id}.
func (h *SessionsHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")
	if strings.TrimSpace(playerID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: player_id", ErrInvalidPathID))
		return
	}

	sessions, err := h.deps.Fetch(r.Context(), playerID)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{PlayerID: playerID, Sessions: sessions})
}

// HandlePending handles GET /sessions/{player_id}/{session_id}/pending.
func (h *SessionsHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player_id")
	sid, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil || strings.TrimSpace(playerID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: session_id", ErrInvalidPathID))
		return
	}

	rec, found, err := h.deps.Pending(r.Context(), model.SessionKey{PlayerID: playerID, SessionID: sid})
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}

	resp := pendingResponse{PlayerID: rec.Key.PlayerID, SessionID: rec.Key.SessionID.String(), Country: rec.Country}
	if rec.StartTime != nil {
		resp.StartTime = types.FormatTime(*rec.StartTime)
	}
	if rec.EndTime != nil {
		resp.EndTime = types.FormatTime(*rec.EndTime)
	}
	writeJSON(w, http.StatusOK, resp)
}
