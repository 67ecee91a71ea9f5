package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below wrap them.
var (
	ErrBatchSize = errors.New("batch size out of range")
	ErrSchema    = errors.New("invalid event schema")
)

// BatchSizeError rejects a batch whose length is outside [1, Max].
type BatchSizeError struct {
	Size int
	Max  int
}

func (e *BatchSizeError) Error() string {
	return fmt.Sprintf("batch of %d events, want 1..%d", e.Size, e.Max)
}

func (e *BatchSizeError) Unwrap() error { return ErrBatchSize }

// SchemaError rejects a batch because one item is malformed. Index is -1 when
// the outer payload itself could not be decoded.
type SchemaError struct {
	Index  int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Index < 0:
		return "malformed batch: " + e.Reason
	case e.Field != "":
		return fmt.Sprintf("event %d: %s: %s", e.Index, e.Field, e.Reason)
	default:
		return fmt.Sprintf("event %d: %s", e.Index, e.Reason)
	}
}

func (e *SchemaError) Unwrap() error { return ErrSchema }
