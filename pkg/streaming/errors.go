package streaming

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the deadline passes before any content arrived
	ErrTimeout = errors.New("research request timed out")
	// ErrStopped is returned when the caller cancels the request
	ErrStopped = errors.New("research request stopped")
	// ErrClosed is returned by a request cleaned up before it settled
	ErrClosed = errors.New("research request closed")
	// ErrSuperseded is returned by a request replaced by a newer one in its slot
	ErrSuperseded = errors.New("research request superseded")
)

// RemoteError carries an error event sent by the backend
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "backend reported an error"
	}
	return fmt.Sprintf("backend error: %s", e.Message)
}
