package correlation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel kinds for correlation errors.
var (
	ErrOrdering = errors.New("session start is not before its end")
	ErrStore    = errors.New("session store failure")
)

// OrderingError reports a correlated pair whose start is not strictly
// earlier than its end. The staging row is left in place.
type OrderingError struct {
	PlayerID  string
	SessionID uuid.UUID
	StartTime time.Time
	EndTime   time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("session %s of player %s: start_time %s is not before end_time %s",
		e.SessionID, e.PlayerID,
		e.StartTime.UTC().Format(time.RFC3339Nano), e.EndTime.UTC().Format(time.RFC3339Nano))
}

func (e *OrderingError) Unwrap() error { return ErrOrdering }
