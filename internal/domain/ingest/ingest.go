// Package ingest decodes and validates batches of session lifecycle events.
//
// A batch is a JSON array of at most ten items. Each item is either an event
// object or a JSON string holding an encoded event object. The whole batch is
// validated before any event is returned, so a caller never acts on part of a
// rejected batch.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/okian/sessiond/internal/domain/model"
)

// Event field names.
const (
	keyEvent     = "event"
	keyCountry   = "country"
	keyPlayerID  = "player_id"
	keySessionID = "session_id"
	keyTS        = "ts"

	maxKeys = 5
)

var allowedKeys = map[string]struct{}{ //nolint:gochecknoglobals // fixed key set
	keyEvent:     {},
	keyCountry:   {},
	keyPlayerID:  {},
	keySessionID: {},
	keyTS:        {},
}

var (
	validate     *validator.Validate //nolint:gochecknoglobals // caches struct info
	validateOnce sync.Once           //nolint:gochecknoglobals
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// wireEvent is one decoded item before typing.
type wireEvent struct {
	Event     string  `json:"event"`
	Country   *string `json:"country"    validate:"required_if=Event start"`
	PlayerID  string  `json:"player_id"  validate:"required"`
	SessionID string  `json:"session_id" validate:"required"`
	TS        string  `json:"ts"         validate:"required"`
}

// Parser validates batches. It is safe for concurrent use.
type Parser struct {
	maxBatch int
	lenient  bool
}

// NewParser returns a strict parser accepting batches of up to DefaultMaxBatchSize events.
func NewParser(opts ...Option) *Parser {
	p := &Parser{maxBatch: DefaultMaxBatchSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxBatchSize returns the configured upper bound.
func (p *Parser) MaxBatchSize() int { return p.maxBatch }

// Parse decodes payload into typed events in input order. It returns a
// *BatchSizeError or *SchemaError and no events when anything is wrong.
func (p *Parser) Parse(_ context.Context, payload []byte) ([]model.Event, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, &SchemaError{Index: -1, Reason: "payload is not a JSON array"}
	}
	if items == nil {
		// literal null
		return nil, &SchemaError{Index: -1, Reason: "payload is not a JSON array"}
	}
	if len(items) == 0 || len(items) > p.maxBatch {
		return nil, &BatchSizeError{Size: len(items), Max: p.maxBatch}
	}

	events := make([]model.Event, 0, len(items))
	for i, raw := range items {
		ev, err := p.parseItem(i, raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (p *Parser) parseItem(idx int, raw json.RawMessage) (model.Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return model.Event{}, &SchemaError{Index: idx, Reason: "item is not a valid JSON string"}
		}
		raw = bytes.TrimSpace([]byte(inner))
	}
	if len(raw) == 0 || raw[0] != '{' {
		return model.Event{}, &SchemaError{Index: idx, Reason: "item is not an object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Event{}, &SchemaError{Index: idx, Reason: "item is not an object"}
	}
	if len(fields) == 0 || len(fields) > maxKeys {
		return model.Event{}, &SchemaError{Index: idx, Reason: fmt.Sprintf("object has %d keys, want 1..%d", len(fields), maxKeys)}
	}

	var w wireEvent
	for k, v := range fields {
		if _, ok := allowedKeys[k]; !ok {
			return model.Event{}, &SchemaError{Index: idx, Field: k, Reason: "unknown key"}
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return model.Event{}, &SchemaError{Index: idx, Field: k, Reason: "value must be a string"}
		}
		switch k {
		case keyEvent:
			w.Event = s
		case keyCountry:
			w.Country = &s
		case keyPlayerID:
			w.PlayerID = s
		case keySessionID:
			w.SessionID = s
		case keyTS:
			w.TS = s
		}
	}

	kind, err := p.kind(w.Event)
	if err != nil {
		return model.Event{}, &SchemaError{Index: idx, Field: keyEvent, Reason: err.Error()}
	}
	if p.lenient && kind == model.KindEnd {
		// only a literal "start" needs a country
		w.Event = kind.String()
	}

	if err := getValidator().Struct(&w); err != nil {
		return model.Event{}, schemaFromValidation(idx, err)
	}

	sid, err := uuid.Parse(w.SessionID)
	if err != nil {
		return model.Event{}, &SchemaError{Index: idx, Field: keySessionID, Reason: "not a UUID"}
	}
	ts, err := model.ParseTime(w.TS)
	if err != nil {
		return model.Event{}, &SchemaError{Index: idx, Field: keyTS, Reason: err.Error()}
	}

	ev := model.Event{
		Kind:      kind,
		PlayerID:  w.PlayerID,
		SessionID: sid,
		TS:        ts,
	}
	if w.Country != nil {
		ev.Country = *w.Country
		ev.HasCountry = true
	}
	return ev, nil
}

func (p *Parser) kind(v string) (model.EventKind, error) {
	switch v {
	case "start":
		return model.KindStart, nil
	case "end":
		return model.KindEnd, nil
	}
	if p.lenient {
		return model.KindEnd, nil
	}
	if v == "" {
		return model.KindUnknown, errors.New("missing event kind")
	}
	return model.KindUnknown, fmt.Errorf("unknown event kind %q", v)
}

func schemaFromValidation(idx int, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := "failed " + fe.Tag()
		switch fe.Tag() {
		case "required", "required_if":
			reason = "required"
		}
		return &SchemaError{Index: idx, Field: fe.Field(), Reason: reason}
	}
	return &SchemaError{Index: idx, Reason: err.Error()}
}
