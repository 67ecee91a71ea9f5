// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	service "github.com/okian/sessiond/internal/app"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	ReceiveEvents(ctx context.Context, payload []byte) (service.Summary, error)
}

// EventsHandler handles event batch requests.
type EventsHandler struct {
	deps         EventDependencies
	maxBodyBytes int64
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps, maxBodyBytes: DefaultMaxBodyBytes}
}

// orderingResponse reports a batch that was applied but held sessions whose
// start was not before their end.
type orderingResponse struct {
	errorResponse
	Summary service.Summary `json:"summary"`
}

// HandlePostEvents handles POST /events requests. The body is the batch
// exactly as the validator reads it.
func (h *EventsHandler) HandlePostEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		} else {
			err = fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}

	sum, err := h.deps.ReceiveEvents(r.Context(), body)
	if err != nil {
		status, code := statusFor(err)
		if status == http.StatusConflict {
			writeJSON(w, status, orderingResponse{
				errorResponse: errorResponse{Code: code, Message: err.Error()},
				Summary:       sum,
			})
			return
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sum)
}
