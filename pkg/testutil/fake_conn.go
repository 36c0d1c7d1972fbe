package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/killallgit/scout/pkg/transport"
)

type inbound struct {
	data []byte
	err  error
}

// FakeConn is a scripted in-memory transport.Conn. Frames pushed with Push
// are returned by ReadFrame in order; everything written is recorded.
type FakeConn struct {
	mu          sync.Mutex
	frames      chan inbound
	written     [][]byte
	closed      chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string
	writeErr    error
}

// NewFakeConn creates a connection with room for buffered frames
func NewFakeConn() *FakeConn {
	return &FakeConn{
		frames: make(chan inbound, 256),
		closed: make(chan struct{}),
	}
}

// Push queues one inbound frame. Strings and byte slices are sent as is,
// anything else is marshalled to JSON.
func (c *FakeConn) Push(frames ...any) {
	for _, f := range frames {
		var data []byte
		switch v := f.(type) {
		case []byte:
			data = v
		case string:
			data = []byte(v)
		default:
			var err error
			if data, err = json.Marshal(v); err != nil {
				panic(err)
			}
		}
		c.frames <- inbound{data: data}
	}
}

// CloseRemote simulates the server closing the connection
func (c *FakeConn) CloseRemote(code int, reason string) {
	c.frames <- inbound{err: &transport.CloseError{Code: code, Reason: reason}}
}

// FailWrites makes every subsequent WriteJSON return err
func (c *FakeConn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *FakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return transport.ErrConnClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, data)
	return nil
}

func (c *FakeConn) ReadFrame() ([]byte, error) {
	// a local close wins over queued frames
	select {
	case <-c.closed:
		return nil, transport.ErrConnClosed
	default:
	}

	select {
	case <-c.closed:
		return nil, transport.ErrConnClosed
	case in := <-c.frames:
		return in.data, in.err
	}
}

func (c *FakeConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.closeReason = reason
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// Written returns every frame sent over the connection
func (c *FakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// WrittenTypes returns the "type" field of every JSON frame written,
// or "" for frames without one
func (c *FakeConn) WrittenTypes() []string {
	var types []string
	for _, frame := range c.Written() {
		var peek struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(frame, &peek)
		types = append(types, peek.Type)
	}
	return types
}

// Closed reports whether Close was called and with which code and reason
func (c *FakeConn) Closed() (int, string, bool) {
	select {
	case <-c.closed:
	default:
		return 0, "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason, true
}

// Done is closed once Close has been called
func (c *FakeConn) Done() <-chan struct{} {
	return c.closed
}

// FakeDialer hands out FakeConns in order
type FakeDialer struct {
	mu        sync.Mutex
	conns     []*FakeConn
	dials     int
	endpoints []string
	Err       error
}

// NewFakeDialer returns a dialer that serves conns in order, then fresh ones
func NewFakeDialer(conns ...*FakeConn) *FakeDialer {
	return &FakeDialer{conns: conns}
}

func (d *FakeDialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.endpoints = append(d.endpoints, endpoint)
	if d.Err != nil {
		return nil, d.Err
	}

	var conn *FakeConn
	if d.dials < len(d.conns) {
		conn = d.conns[d.dials]
	} else {
		conn = NewFakeConn()
		d.conns = append(d.conns, conn)
	}
	d.dials++
	return conn, nil
}

// Dials returns how many connections were opened
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conn returns the i-th connection handed out
func (d *FakeDialer) Conn(i int) *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}
