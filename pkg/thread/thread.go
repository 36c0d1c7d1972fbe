package thread

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/merge"
	"github.com/killallgit/scout/pkg/research"
	"github.com/killallgit/scout/pkg/store"
)

// ErrMissingMessageID is returned for message events that name no message
var ErrMissingMessageID = errors.New("event has no message id")

// Thread is the explicit context of one conversation: the store it lives in,
// its id and its research tracker. Every message write goes through it.
type Thread struct {
	id      string
	store   store.ThreadStore
	tracker *research.Tracker

	mu  sync.Mutex
	log *logger.Logger
}

// New creates a thread context. An empty id gets a fresh one.
func New(id string, s store.ThreadStore) *Thread {
	if id == "" {
		id = uuid.New().String()
	}
	return &Thread{
		id:      id,
		store:   s,
		tracker: research.NewTracker(),
		log:     logger.WithComponent("thread").With("thread_id", id),
	}
}

// Load creates a thread context and replays stored history into its tracker
func Load(ctx context.Context, id string, s store.ThreadStore) (*Thread, error) {
	t := New(id, s)
	history, err := s.History(ctx, t.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", t.id, err)
	}
	for _, msg := range history {
		t.tracker.OnAppend(msg)
	}
	return t, nil
}

func (t *Thread) ID() string {
	return t.id
}

// Tracker returns the research tracker of this thread
func (t *Thread) Tracker() *research.Tracker {
	return t.tracker
}

// History returns the thread's messages in arrival order
func (t *Thread) History(ctx context.Context) ([]chat.Message, error) {
	return t.store.History(ctx, t.id)
}

// Message returns one message of the thread
func (t *Thread) Message(ctx context.Context, id string) (chat.Message, error) {
	return t.store.GetMessage(ctx, t.id, id)
}

// AddUserMessage appends a finished user turn
func (t *Thread) AddUserMessage(ctx context.Context, content string) (chat.Message, error) {
	msg := chat.NewUserMessage(uuid.New().String(), t.id, content)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.AppendMessage(ctx, msg); err != nil {
		return chat.Message{}, fmt.Errorf("failed to append user message: %w", err)
	}
	t.tracker.OnAppend(msg)
	return msg, nil
}

// Apply folds one message event into the thread and returns the resulting
// snapshot. The second return is false when the event touched nothing.
func (t *Thread) Apply(ctx context.Context, ev event.Event) (chat.Message, bool, error) {
	if ev.ThreadID == "" {
		ev.ThreadID = t.id
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Kind == event.KindToolCallResult {
		return t.applyToolResult(ctx, ev)
	}
	if ev.MessageID == "" {
		return chat.Message{}, false, ErrMissingMessageID
	}

	existing, err := t.store.GetMessage(ctx, t.id, ev.MessageID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		msg := merge.Merge(nil, ev)
		msg.ThreadID = t.id
		if err := t.store.AppendMessage(ctx, msg); err != nil {
			return chat.Message{}, false, fmt.Errorf("failed to append message %s: %w", msg.ID, err)
		}
		t.tracker.OnAppend(msg)
		return msg, true, nil
	case err != nil:
		return chat.Message{}, false, fmt.Errorf("failed to read message %s: %w", ev.MessageID, err)
	}

	msg := merge.Merge(&existing, ev)
	if err := t.store.UpdateMessage(ctx, msg); err != nil {
		return chat.Message{}, false, fmt.Errorf("failed to update message %s: %w", msg.ID, err)
	}
	t.tracker.OnUpdate(msg)
	return msg, true, nil
}

// applyToolResult routes a result to the message owning the call, which is
// not necessarily the message the event names
func (t *Thread) applyToolResult(ctx context.Context, ev event.Event) (chat.Message, bool, error) {
	owner, err := t.store.FindByToolCallID(ctx, t.id, ev.ToolCallID)
	if errors.Is(err, store.ErrNotFound) {
		t.log.Warn("Tool call result without a known call", "tool_call_id", ev.ToolCallID)
		return chat.Message{}, false, nil
	}
	if err != nil {
		return chat.Message{}, false, fmt.Errorf("failed to find tool call %s: %w", ev.ToolCallID, err)
	}

	msg := merge.Merge(&owner, ev)
	if err := t.store.UpdateMessage(ctx, msg); err != nil {
		return chat.Message{}, false, fmt.Errorf("failed to update message %s: %w", msg.ID, err)
	}
	t.tracker.OnUpdate(msg)
	return msg, true, nil
}

// FinalizeStreaming stops every message that is still streaming and returns
// the finalised snapshots
func (t *Thread) FinalizeStreaming(ctx context.Context, reason chat.FinishReason) ([]chat.Message, error) {
	return t.stopStreaming(ctx, event.Event{Kind: event.KindDone, FinishReason: reason})
}

// FailStreaming stops every message that is still streaming with an error
// note built from text
func (t *Thread) FailStreaming(ctx context.Context, text string) ([]chat.Message, error) {
	return t.stopStreaming(ctx, event.Event{Kind: event.KindError, Error: text})
}

func (t *Thread) stopStreaming(ctx context.Context, ev event.Event) ([]chat.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	history, err := t.store.History(ctx, t.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", t.id, err)
	}

	var finalized []chat.Message
	for _, msg := range history {
		if !msg.IsStreaming {
			continue
		}
		ev.MessageID = msg.ID
		done := merge.Merge(&msg, ev)
		if err := t.store.UpdateMessage(ctx, done); err != nil {
			return finalized, fmt.Errorf("failed to finalise message %s: %w", msg.ID, err)
		}
		t.tracker.OnUpdate(done)
		finalized = append(finalized, done)
	}

	if len(finalized) > 0 {
		t.log.Debug("Finalised streaming messages", "count", len(finalized))
	}
	return finalized, nil
}
