// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/sessiond/internal/domain/model"
)

// TimeLayout renders session bounds with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// CompletedSession is the read shape returned by fetch.
type CompletedSession struct {
	PlayerID  string `json:"player_id"`
	SessionID string `json:"session_id"`
	Country   string `json:"country"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// FromRecord converts a stored record into its read shape.
func FromRecord(r model.CompletedRecord) CompletedSession {
	return CompletedSession{
		PlayerID:  r.PlayerID,
		SessionID: r.SessionID.String(),
		Country:   r.Country,
		StartTime: FormatTime(r.StartTime),
		EndTime:   FormatTime(r.EndTime),
	}
}

// FromRecords converts a slice of records, preserving order.
func FromRecords(rs []model.CompletedRecord) []CompletedSession {
	out := make([]CompletedSession, len(rs))
	for i, r := range rs {
		out[i] = FromRecord(r)
	}
	return out
}

// FormatTime renders t in UTC with exactly three fractional digits.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
