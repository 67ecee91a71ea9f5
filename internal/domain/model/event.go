// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// YearInSeconds is the lifetime of every staged and completed session row.
const YearInSeconds = 31_556_952

// DefaultTTL is YearInSeconds as a duration.
const DefaultTTL = time.Duration(YearInSeconds) * time.Second

// EventKind tells which half of a session an event describes.
type EventKind uint8

// Event kinds. The zero value is deliberately invalid.
const (
	KindUnknown EventKind = iota
	KindStart
	KindEnd
)

func (k EventKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// SessionKey identifies one session of one player.
type SessionKey struct {
	PlayerID  string
	SessionID uuid.UUID
}

func (k SessionKey) String() string {
	return k.PlayerID + "/" + k.SessionID.String()
}

// Event is a validated session lifecycle event. TS is already normalized
// with NormalizeTime.
type Event struct {
	Kind       EventKind
	PlayerID   string
	SessionID  uuid.UUID
	Country    string
	HasCountry bool
	TS         time.Time
}

// Key returns the staging key of the event.
func (e Event) Key() SessionKey {
	return SessionKey{PlayerID: e.PlayerID, SessionID: e.SessionID}
}

// Patch returns the staging fields written by the event.
func (e Event) Patch() IncompletePatch {
	ts := e.TS
	if e.Kind == KindStart {
		country := e.Country
		return IncompletePatch{Country: &country, StartTime: &ts}
	}
	return IncompletePatch{EndTime: &ts}
}

// IncompletePatch holds the staging columns one event writes. Nil fields are
// left untouched by an upsert.
type IncompletePatch struct {
	Country   *string
	StartTime *time.Time
	EndTime   *time.Time
}

// IncompleteRecord is a staging row waiting for the other half of its session.
type IncompleteRecord struct {
	Key       SessionKey
	Country   *string
	StartTime *time.Time
	EndTime   *time.Time
}

// Merge applies p over r and returns the result.
func (r IncompleteRecord) Merge(p IncompletePatch) IncompleteRecord {
	if p.Country != nil {
		c := *p.Country
		r.Country = &c
	}
	if p.StartTime != nil {
		t := *p.StartTime
		r.StartTime = &t
	}
	if p.EndTime != nil {
		t := *p.EndTime
		r.EndTime = &t
	}
	return r
}

// Complete reports whether both temporal bounds are present.
func (r IncompleteRecord) Complete() bool {
	return r.StartTime != nil && r.EndTime != nil
}

// Ordered reports whether the start strictly precedes the end. It is false
// for incomplete rows.
func (r IncompleteRecord) Ordered() bool {
	return r.Complete() && r.StartTime.Before(*r.EndTime)
}

// Completed builds the promoted record. Callers check Ordered first.
func (r IncompleteRecord) Completed() CompletedRecord {
	c := CompletedRecord{
		PlayerID:  r.Key.PlayerID,
		SessionID: r.Key.SessionID,
	}
	if r.Country != nil {
		c.Country = *r.Country
	}
	if r.StartTime != nil {
		c.StartTime = *r.StartTime
	}
	if r.EndTime != nil {
		c.EndTime = *r.EndTime
	}
	return c
}

// CompletedRecord is a fully correlated session. StartTime < EndTime always.
type CompletedRecord struct {
	PlayerID  string
	SessionID uuid.UUID
	Country   string
	StartTime time.Time
	EndTime   time.Time
}

// Key returns the staging key the record was promoted from.
func (c CompletedRecord) Key() SessionKey {
	return SessionKey{PlayerID: c.PlayerID, SessionID: c.SessionID}
}

// Accepted timestamp layouts. Zone-less forms are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses an ISO-8601 timestamp and normalizes it.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// NormalizeTime converts t to UTC and truncates it to whole milliseconds,
// which drops the sub-millisecond digits of the input.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
