package replay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/transport"
)

// Dialer plays a transcript back on every connection it opens
type Dialer struct {
	transcript *Transcript
	mu         sync.Mutex
	requests   [][]byte
}

func NewDialer(t *Transcript) *Dialer {
	return &Dialer{transcript: t}
}

func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &conn{
		dialer: d,
		frames: make(chan inbound),
		closed: make(chan struct{}),
		log:    logger.WithComponent("replay"),
	}
	go c.play(d.transcript)
	return c, nil
}

// Requests returns every frame written by clients, pings excluded
func (d *Dialer) Requests() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.requests))
	copy(out, d.requests)
	return out
}

func (d *Dialer) record(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, frame)
}

type inbound struct {
	data []byte
	err  error
}

type conn struct {
	dialer    *Dialer
	frames    chan inbound
	closed    chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

func (c *conn) play(t *Transcript) {
	for i, f := range t.Frames {
		if t.Delay > 0 {
			select {
			case <-time.After(t.Delay):
			case <-c.closed:
				return
			}
		}
		data, err := f.Bytes()
		if err != nil {
			c.log.Warn("Skipping unencodable frame", "index", i, "error", err)
			continue
		}
		if !c.send(inbound{data: data}) {
			return
		}
	}

	if t.Close != nil {
		c.send(inbound{err: &transport.CloseError{Code: t.Close.Code, Reason: t.Close.Reason}})
	}
}

func (c *conn) send(in inbound) bool {
	select {
	case c.frames <- in:
		return true
	case <-c.closed:
		return false
	}
}

func (c *conn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return transport.ErrConnClosed
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var peek struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &peek) == nil && peek.Type == "ping" {
		return nil
	}
	c.dialer.record(data)
	return nil
}

func (c *conn) ReadFrame() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, transport.ErrConnClosed
	case in := <-c.frames:
		return in.data, in.err
	}
}

func (c *conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}
