package repository

import (
	"errors"
	"fmt"

	"github.com/okian/sessiond/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrInvalidLimit = errors.New("invalid query limit")
	ErrAsyncWrite   = errors.New("async write failed")
	ErrClosed       = errors.New("store closed")
	ErrCorruptRow   = errors.New("corrupt session row")
)

// AsyncWriteError reports a background write that failed after submission.
type AsyncWriteError struct {
	Op  Op
	Key model.SessionKey
	Err error
}

func (e *AsyncWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

// Is matches ErrAsyncWrite.
func (e *AsyncWriteError) Is(target error) bool { return target == ErrAsyncWrite }

func (e *AsyncWriteError) Unwrap() error { return e.Err }
