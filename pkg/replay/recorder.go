package replay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/killallgit/scout/pkg/transport"
)

// Recorder wraps a dialer and captures every inbound frame of the
// connections it opens into a transcript
type Recorder struct {
	dialer transport.Dialer

	mu         sync.Mutex
	transcript Transcript
}

func NewRecorder(d transport.Dialer, name string) *Recorder {
	return &Recorder{dialer: d, transcript: Transcript{Name: name}}
}

func (r *Recorder) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	c, err := r.dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &recordingConn{Conn: c, recorder: r}, nil
}

// Transcript returns a copy of what was recorded so far
func (r *Recorder) Transcript() *Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.transcript
	t.Frames = append([]Frame(nil), r.transcript.Frames...)
	if r.transcript.Close != nil {
		closeCopy := *r.transcript.Close
		t.Close = &closeCopy
	}
	return &t
}

// SetQuery records the query that produced the session
func (r *Recorder) SetQuery(adapter, query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.Adapter = adapter
	r.transcript.Query = query
}

func (r *Recorder) frame(data []byte) {
	var f Frame
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err == nil {
		f.Fields = fields
	} else {
		f.Raw = string(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.Frames = append(r.transcript.Frames, f)
}

func (r *Recorder) closed(err error) {
	var closeErr *transport.CloseError
	if !errors.As(err, &closeErr) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.Close = &Close{Code: closeErr.Code, Reason: closeErr.Reason}
}

type recordingConn struct {
	transport.Conn
	recorder *Recorder
}

func (c *recordingConn) ReadFrame() ([]byte, error) {
	data, err := c.Conn.ReadFrame()
	if err != nil {
		c.recorder.closed(err)
		return nil, err
	}
	c.recorder.frame(data)
	return data, nil
}
