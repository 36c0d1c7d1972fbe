package streaming

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/scout/pkg/adapter"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/sources"
	"github.com/killallgit/scout/pkg/store"
	"github.com/killallgit/scout/pkg/thread"
	"github.com/killallgit/scout/pkg/transport"
)

// DefaultSlot is used when a session context names no slot
const DefaultSlot = "default"

// Options tunes the connection lifecycle
type Options struct {
	HeartbeatInterval time.Duration
	Deadline          time.Duration
	HandshakeTimeout  time.Duration
	// SourceIndex, when set, receives every newly discovered source
	SourceIndex *sources.Index
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		Deadline:          10 * time.Minute,
		HandshakeTimeout:  15 * time.Second,
	}
}

// OptionsFromConfig reads the lifecycle timings of the backend config,
// keeping defaults for unset values
func OptionsFromConfig(cfg config.BackendConfig) Options {
	opts := DefaultOptions()
	if cfg.HeartbeatInterval > 0 {
		opts.HeartbeatInterval = cfg.HeartbeatInterval
	}
	if cfg.Deadline > 0 {
		opts.Deadline = cfg.Deadline
	}
	if cfg.HandshakeTimeout > 0 {
		opts.HandshakeTimeout = cfg.HandshakeTimeout
	}
	return opts
}

// SessionContext names where a request's messages go and who observes it
type SessionContext struct {
	// SessionID is sent to the backend; generated when empty
	SessionID string
	// Slot scopes single-flight: a new request replaces the one in its slot
	Slot string
	// Thread receives message events; an in-memory thread is used when nil
	Thread *thread.Thread
	// OnState and OnMessage are called from the request goroutine and must not block
	OnState   func(State)
	OnMessage func(chat.Message)
}

// Manager opens research requests over one adapter and dialer
type Manager struct {
	adapter  adapter.Adapter
	dialer   transport.Dialer
	opts     Options
	registry *Registry
	startMu  sync.Mutex
	log      *logger.Logger
}

func NewManager(a adapter.Adapter, d transport.Dialer, opts Options) *Manager {
	return &Manager{
		adapter:  a,
		dialer:   d,
		opts:     opts,
		registry: NewRegistry(),
		log:      logger.WithComponent("streaming_manager"),
	}
}

// Start connects, sends the query and returns the in-flight request. A
// request still running in the same slot is superseded and torn down first.
func (m *Manager) Start(ctx context.Context, q adapter.Query, sc SessionContext) (*Request, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	slot := sc.Slot
	if slot == "" {
		slot = DefaultSlot
	}
	if prev, ok := m.registry.Take(slot); ok {
		m.log.Info("Superseding in-flight request", "slot", slot, "request_id", prev.ID())
		prev.abortWith(ErrSuperseded)
		<-prev.finished
	}

	if sc.SessionID == "" {
		sc.SessionID = uuid.New().String()
	}
	if sc.Thread == nil {
		sc.Thread = thread.New(sc.SessionID, store.NewMemory())
	}
	if q.ThreadID == "" {
		q.ThreadID = sc.Thread.ID()
	}

	storeCtx := context.WithoutCancel(ctx)
	if q.Text != "" {
		if _, err := sc.Thread.AddUserMessage(storeCtx, q.Text); err != nil {
			return nil, fmt.Errorf("failed to record query: %w", err)
		}
	}

	dialCtx := ctx
	if m.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.opts.HandshakeTimeout)
		defer cancel()
	}

	endpoint := m.adapter.Endpoint()
	conn, err := m.dialer.Dial(dialCtx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	if err := conn.WriteJSON(m.adapter.BuildRequest(q, sc.SessionID)); err != nil {
		conn.Close(transport.CloseInternalError, "request not sent")
		return nil, fmt.Errorf("failed to send research request: %w", err)
	}

	r := newRequest(m.adapter, conn, sc, m.opts, storeCtx)
	r.release = func() { m.registry.Unregister(slot, r) }
	m.registry.Register(slot, r)
	m.log.Info("Research request started",
		"request_id", r.ID(),
		"session_id", sc.SessionID,
		"adapter", m.adapter.Name(),
		"slot", slot)

	go r.run(ctx)

	return r, nil
}

// StartStreaming runs a request to completion and returns its outcome
func (m *Manager) StartStreaming(ctx context.Context, q adapter.Query, sc SessionContext) (Result, error) {
	r, err := m.Start(ctx, q, sc)
	if err != nil {
		return Result{}, err
	}
	defer r.Cleanup()

	<-r.Done()
	return r.Outcome()
}

// Cancel stops the request running in slot. It reports whether one was running.
func (m *Manager) Cancel(slot string) bool {
	if slot == "" {
		slot = DefaultSlot
	}
	r, ok := m.registry.Get(slot)
	if !ok {
		return false
	}
	r.Cancel()
	return true
}

// Active returns the request running in slot
func (m *Manager) Active(slot string) (*Request, bool) {
	if slot == "" {
		slot = DefaultSlot
	}
	return m.registry.Get(slot)
}

// Close cleans up every in-flight request
func (m *Manager) Close() {
	m.registry.mu.RLock()
	requests := make([]*Request, 0, len(m.registry.requests))
	for _, r := range m.registry.requests {
		requests = append(requests, r)
	}
	m.registry.mu.RUnlock()

	for _, r := range requests {
		r.Cleanup()
	}
}
