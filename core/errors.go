package orchestration

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenMismatch is returned when a commit carries a token that does
	// not belong to the active turn.
	ErrTokenMismatch = errors.New("response token does not match the active turn")
	// ErrTokenSpent is returned when a commit arrives after the turn's
	// token was invalidated by cancellation or teardown.
	ErrTokenSpent = errors.New("response token invalidated")
	// ErrSessionClosed is returned when an utterance is submitted to a
	// session that is closing or closed.
	ErrSessionClosed = errors.New("session closed")
)

// TransportError marks a lost or irrecoverably broken transport connection.
// It terminates the session: queued utterances are discarded and no commit
// is attempted for the in-flight turn.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
