package session

import (
	"errors"
	"fmt"
)

// ErrSessionLocked is returned by Open when another process holds the
// exclusive lock on the storage directory. Acquisition never blocks, so a
// contended lock is a terminal error for the invocation.
var ErrSessionLocked = errors.New("session directory is locked by another process")

// CorruptHistoryError reports a session log line that could not be parsed as
// a message record. Malformed history is never skipped or repaired.
type CorruptHistoryError struct {
	Path string
	Line int
	Err  error
}

func (e *CorruptHistoryError) Error() string {
	return fmt.Sprintf("corrupt session history %s: line %d: %v", e.Path, e.Line, e.Err)
}

func (e *CorruptHistoryError) Unwrap() error {
	return e.Err
}
