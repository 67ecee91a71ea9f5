package repository

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/sessiond/internal/domain/model"
)

// incompleteValue is the stored form of a staging row. Times are unix milliseconds.
type incompleteValue struct {
	Country *string `json:"country,omitempty"`
	StartMS *int64  `json:"start_ms,omitempty"`
	EndMS   *int64  `json:"end_ms,omitempty"`
}

type completedValue struct {
	Country string `json:"country"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func encodeIncomplete(r model.IncompleteRecord) ([]byte, error) {
	return json.Marshal(incompleteValue{
		Country: r.Country,
		StartMS: toMillis(r.StartTime),
		EndMS:   toMillis(r.EndTime),
	})
}

func decodeIncomplete(key model.SessionKey, b []byte) (model.IncompleteRecord, error) {
	var v incompleteValue
	if err := json.Unmarshal(b, &v); err != nil {
		return model.IncompleteRecord{}, err
	}
	return model.IncompleteRecord{
		Key:       key,
		Country:   v.Country,
		StartTime: fromMillis(v.StartMS),
		EndTime:   fromMillis(v.EndMS),
	}, nil
}

func encodeCompleted(r model.CompletedRecord) ([]byte, error) {
	return json.Marshal(completedValue{
		Country: r.Country,
		StartMS: r.StartTime.UnixMilli(),
		EndMS:   r.EndTime.UnixMilli(),
	})
}

func decodeCompleted(key model.SessionKey, b []byte) (model.CompletedRecord, error) {
	var v completedValue
	if err := json.Unmarshal(b, &v); err != nil {
		return model.CompletedRecord{}, err
	}
	return model.CompletedRecord{
		PlayerID:  key.PlayerID,
		SessionID: key.SessionID,
		Country:   v.Country,
		StartTime: time.UnixMilli(v.StartMS).UTC(),
		EndTime:   time.UnixMilli(v.EndMS).UTC(),
	}, nil
}
