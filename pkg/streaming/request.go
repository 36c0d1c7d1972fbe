package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/scout/pkg/adapter"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/thread"
	"github.com/killallgit/scout/pkg/transport"
	"golang.org/x/sync/errgroup"
)

// Finish reasons of a resolved request
const (
	FinishComplete = "complete"
	FinishClosed   = "closed"
	FinishTimeout  = "timeout"
)

// Result is the outcome of a resolved request
type Result struct {
	Answer string
	// Complete is true only when the backend sent an explicit completion
	Complete     bool
	FinishReason string
}

var pingFrame = map[string]string{"type": "ping"}

type inbound struct {
	data []byte
	err  error
}

// Request is one in-flight research request. It settles exactly once.
type Request struct {
	id        string
	sessionID string
	adapter   adapter.Adapter
	conn      transport.Conn
	thread    *thread.Thread
	opts      Options
	onState   func(State)
	onMessage func(chat.Message)
	storeCtx  context.Context
	release   func()
	log       *logger.Logger

	frames    chan inbound
	abort     chan struct{}
	abortOnce sync.Once
	abortErr  error

	settleOnce  sync.Once
	done        chan struct{}
	finished    chan struct{}
	result      Result
	err         error
	closeCode   int
	closeReason string

	mu    sync.Mutex
	state State

	// owned by the actor goroutine
	tracker          *stateTracker
	text             strings.Builder
	reporterID       string
	defaultMessageID string
}

func newRequest(a adapter.Adapter, conn transport.Conn, sc SessionContext, opts Options, storeCtx context.Context) *Request {
	id := uuid.New().String()
	r := &Request{
		id:               id,
		sessionID:        sc.SessionID,
		adapter:          a,
		conn:             conn,
		thread:           sc.Thread,
		opts:             opts,
		onState:          sc.OnState,
		onMessage:        sc.OnMessage,
		storeCtx:         storeCtx,
		log:              logger.WithComponent("streaming").With("request_id", id),
		frames:           make(chan inbound),
		abort:            make(chan struct{}),
		done:             make(chan struct{}),
		finished:         make(chan struct{}),
		tracker:          newStateTracker(id, sc.SessionID),
		defaultMessageID: "msg-" + id,
	}
	r.state = r.tracker.snapshot()
	return r
}

func (r *Request) ID() string        { return r.id }
func (r *Request) SessionID() string { return r.sessionID }

// Thread returns the thread receiving this request's messages
func (r *Request) Thread() *thread.Thread { return r.thread }

// Done is closed once the request has settled
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait blocks until the request settles or ctx ends
func (r *Request) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.Outcome()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Outcome returns the settled result. Before settlement it returns a zero
// Result and a nil error.
func (r *Request) Outcome() (Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	default:
		return Result{}, nil
	}
}

// State returns a snapshot of the request state
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Cancel stops the request; it settles with ErrStopped unless it already settled
func (r *Request) Cancel() {
	r.abortWith(ErrStopped)
}

// Cleanup releases the request and waits for its goroutines. An unsettled
// request settles with ErrClosed. It is safe to call more than once but
// must not be called from OnState or OnMessage.
func (r *Request) Cleanup() {
	r.abortWith(ErrClosed)
	<-r.finished
}

func (r *Request) abortWith(err error) {
	r.abortOnce.Do(func() {
		r.abortErr = err
		close(r.abort)
	})
}

func (r *Request) run(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		r.read()
		return nil
	})
	g.Go(func() error {
		r.loop(ctx)
		return nil
	})
	_ = g.Wait()
	if r.release != nil {
		r.release()
	}
	close(r.finished)
}

// read moves frames from the connection to the actor until the connection
// fails or the request settles
func (r *Request) read() {
	for {
		data, err := r.conn.ReadFrame()
		select {
		case r.frames <- inbound{data: data, err: err}:
		case <-r.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *Request) loop(ctx context.Context) {
	defer r.teardown()

	var heartbeat <-chan time.Time
	if r.opts.HeartbeatInterval > 0 {
		ticker := time.NewTicker(r.opts.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	var deadline <-chan time.Time
	if r.opts.Deadline > 0 {
		timer := time.NewTimer(r.opts.Deadline)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			r.finalize(chat.FinishInterrupt)
			r.reject(ErrStopped, "request stopped")
			return
		case <-r.abort:
			r.finalize(chat.FinishInterrupt)
			r.reject(r.abortErr, r.abortErr.Error())
			return
		case <-heartbeat:
			if err := r.conn.WriteJSON(pingFrame); err != nil {
				r.log.Warn("Heartbeat failed", "error", err)
			}
		case <-deadline:
			r.expire()
			return
		case in := <-r.frames:
			if in.err != nil {
				r.closed(in.err)
				return
			}
			if r.handle(ctx, in.data) {
				return
			}
		}
	}
}

func (r *Request) teardown() {
	code, reason := r.closeCode, r.closeReason
	if code == 0 {
		code = transport.CloseNormal
	}
	if err := r.conn.Close(code, reason); err != nil {
		r.log.Debug("Close failed", "error", err)
	}
}

// handle processes one frame and reports whether the request settled
func (r *Request) handle(ctx context.Context, data []byte) bool {
	ev, err := r.adapter.Decode(data)
	if err != nil {
		r.log.Warn("Skipping malformed frame", "error", err, "size", len(data))
		return false
	}

	switch ev.Kind {
	case event.KindHeartbeat:
		return false
	case event.KindConnectionConfirmed:
		r.log.Debug("Connection confirmed")
	case event.KindUnknown:
		r.log.Debug("Ignoring unknown event", "type", ev.Type)
	}

	discovered := r.tracker.apply(ev)
	r.indexSources(ctx, discovered)

	if ev.Kind == event.KindContentChunk {
		r.text.WriteString(ev.Content)
	}
	if ev.IsMessageEvent() {
		r.applyMessage(ev)
	}

	switch ev.Kind {
	case event.KindComplete:
		r.finalize(chat.FinishStop)
		r.resolve(Result{
			Answer:       r.finalText(ev.FinalAnswer),
			Complete:     true,
			FinishReason: FinishComplete,
		}, "")
		return true
	case event.KindError:
		text := first(ev.Error, ev.Message)
		r.fail(text)
		r.reject(&RemoteError{Message: text}, "backend error")
		return true
	}

	r.publish()
	return false
}

func (r *Request) applyMessage(ev event.Event) {
	if ev.MessageID == "" && ev.Kind != event.KindToolCallResult {
		ev.MessageID = r.defaultMessageID
	}

	msg, changed, err := r.thread.Apply(r.storeCtx, ev)
	if err != nil {
		r.log.Error("Failed to apply message event", "kind", string(ev.Kind), "message_id", ev.MessageID, "error", err)
		return
	}
	if !changed {
		return
	}
	if msg.Agent == chat.AgentReporter {
		r.reporterID = msg.ID
	}
	if r.onMessage != nil {
		r.onMessage(msg)
	}
}

func (r *Request) indexSources(ctx context.Context, discovered []event.Source) {
	if r.opts.SourceIndex == nil {
		return
	}
	for _, src := range discovered {
		if err := r.opts.SourceIndex.Add(ctx, src); err != nil {
			r.log.Warn("Failed to index source", "url", src.URL, "error", err)
		}
	}
}

// finalize stops messages still streaming so their sessions can close
func (r *Request) finalize(reason chat.FinishReason) {
	finalized, err := r.thread.FinalizeStreaming(r.storeCtx, reason)
	if err != nil {
		r.log.Error("Failed to finalise streaming messages", "error", err)
	}
	r.notify(finalized)
}

// fail stops messages still streaming with an error note
func (r *Request) fail(text string) {
	failed, err := r.thread.FailStreaming(r.storeCtx, text)
	if err != nil {
		r.log.Error("Failed to mark streaming messages as failed", "error", err)
	}
	r.notify(failed)
}

func (r *Request) notify(msgs []chat.Message) {
	if r.onMessage == nil {
		return
	}
	for _, msg := range msgs {
		r.onMessage(msg)
	}
}

// finalText picks the explicit answer, else the reporter's message, else
// everything streamed as content
func (r *Request) finalText(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if r.reporterID != "" {
		if msg, err := r.thread.Message(r.storeCtx, r.reporterID); err == nil && msg.Content != "" {
			return msg.Content
		}
	}
	return r.text.String()
}

func (r *Request) closed(err error) {
	var closeErr *transport.CloseError
	if errors.As(err, &closeErr) && closeErr.Normal() {
		if answer := r.finalText(""); answer != "" {
			r.finalize(chat.FinishStop)
			r.resolve(Result{Answer: answer, FinishReason: FinishClosed}, "")
			return
		}
		r.finalize(chat.FinishStop)
	} else {
		r.fail("connection lost: " + err.Error())
	}
	r.log.Warn("Connection closed before completion", "error", err)
	r.reject(fmt.Errorf("research stream closed: %w", err), "")
}

func (r *Request) expire() {
	answer := r.finalText("")
	r.finalize(chat.FinishStop)
	if answer != "" {
		r.log.Warn("Deadline reached, returning partial answer", "length", len(answer))
		r.resolve(Result{Answer: answer, FinishReason: FinishTimeout}, "deadline exceeded")
		return
	}
	r.reject(ErrTimeout, "deadline exceeded")
}

func (r *Request) resolve(res Result, reason string) {
	r.settle(res, nil, transport.CloseNormal, reason)
}

func (r *Request) reject(err error, reason string) {
	r.settle(Result{}, err, transport.CloseNormal, reason)
}

func (r *Request) settle(res Result, err error, code int, reason string) {
	r.settleOnce.Do(func() {
		r.result, r.err = res, err
		r.closeCode, r.closeReason = code, reason
		if err != nil {
			r.tracker.fail(err)
			r.log.Info("Research request failed", "error", err)
		} else {
			r.log.Info("Research request resolved", "finish_reason", res.FinishReason, "length", len(res.Answer))
		}
		r.publish()
		close(r.done)
	})
}

func (r *Request) publish() {
	r.mu.Lock()
	r.state = r.tracker.snapshot()
	snapshot := r.state.Clone()
	r.mu.Unlock()

	if r.onState != nil {
		r.onState(snapshot)
	}
}
