package api

import (
	"errors"
	"net/http"

	service "github.com/okian/sessiond/internal/app"
	"github.com/okian/sessiond/internal/domain/correlation"
	"github.com/okian/sessiond/internal/domain/ingest"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrBodyTooLarge  = errors.New("request body too large")
	ErrInvalidPathID = errors.New("invalid path parameter")
)

// statusFor maps an error from the service to a status code and a stable
// machine-readable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrBatchSize):
		return http.StatusBadRequest, "batch_size"
	case errors.Is(err, ingest.ErrSchema):
		return http.StatusBadRequest, "schema"
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidPathID):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, correlation.ErrOrdering):
		return http.StatusConflict, "ordering"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
