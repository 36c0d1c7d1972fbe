package transport

import (
	"context"
	"errors"
	"fmt"
)

// Close codes used by the lifecycle manager
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseNoStatus      = 1005
	CloseAbnormal      = 1006
	CloseInternalError = 1011
)

// ErrConnClosed is returned by a connection that was closed locally
var ErrConnClosed = errors.New("connection closed")

// CloseError reports that the remote side closed the connection
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed with code %d", e.Code)
	}
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Reason)
}

// Normal reports whether the close was a normal closure
func (e *CloseError) Normal() bool {
	return e.Code == CloseNormal
}

// Conn is one message-framed, bidirectional connection. ReadFrame may be
// called from one goroutine while WriteJSON is called from another.
type Conn interface {
	// WriteJSON sends v as one text frame
	WriteJSON(v any) error
	// ReadFrame blocks for the next frame. A remote close is a *CloseError.
	ReadFrame() ([]byte, error)
	// Close sends a close frame with code and reason and releases the connection.
	// Closing twice is a no-op.
	Close(code int, reason string) error
}

// Dialer opens connections
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}
