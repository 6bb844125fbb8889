package orchestration

import (
	"errors"
	"fmt"
)

// ErrRendererUnavailable marks a submission failure that is not worth
// retrying for the current turn. It surfaces as a status string; the session
// stays alive.
var ErrRendererUnavailable = errors.New("renderer unavailable")

// ErrNoActiveTurn is returned when an operation targets a turn that has no
// assembly state.
var ErrNoActiveTurn = errors.New("no active turn")

// SubmitError wraps a renderer submission failure with the retry attempt
// count that produced it.
type SubmitError struct {
	TurnID   string
	Attempts int
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submitting clip for turn %s failed after %d attempts: %v", e.TurnID, e.Attempts, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// IsTransientSubmitFailure reports whether a submission error should be
// retried with backoff rather than surfaced immediately.
func IsTransientSubmitFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrRendererUnavailable)
}
