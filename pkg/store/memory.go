package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/killallgit/scout/pkg/chat"
)

// Memory keeps threads in process memory
type Memory struct {
	mu      sync.RWMutex
	threads map[string]chat.Conversation
	order   []string
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{threads: make(map[string]chat.Conversation)}
}

func (m *Memory) AppendMessage(ctx context.Context, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.threads[msg.ThreadID]
	if !ok {
		conv = chat.NewConversation(msg.ThreadID)
		m.order = append(m.order, msg.ThreadID)
	}
	if chat.IndexOf(conv.Messages, msg.ID) >= 0 {
		return fmt.Errorf("message %s: %w", msg.ID, ErrExists)
	}
	m.threads[msg.ThreadID] = chat.AddMessage(conv, msg.Clone())
	return nil
}

func (m *Memory) UpdateMessage(ctx context.Context, msg chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.threads[msg.ThreadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", msg.ThreadID, ErrNotFound)
	}
	updated, ok := chat.ReplaceMessage(conv, msg.Clone())
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrNotFound)
	}
	m.threads[msg.ThreadID] = updated
	return nil
}

func (m *Memory) GetMessage(ctx context.Context, threadID, messageID string) (chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := chat.GetMessage(m.threads[threadID], messageID)
	if !ok {
		return chat.Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return msg.Clone(), nil
}

func (m *Memory) History(ctx context.Context, threadID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv := m.threads[threadID]
	out := make([]chat.Message, len(conv.Messages))
	for i, msg := range conv.Messages {
		out[i] = msg.Clone()
	}
	return out, nil
}

func (m *Memory) FindByToolCallID(ctx context.Context, threadID, toolCallID string) (chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := chat.FindByToolCallID(m.threads[threadID].Messages, toolCallID)
	if !ok {
		return chat.Message{}, fmt.Errorf("tool call %s: %w", toolCallID, ErrNotFound)
	}
	return msg.Clone(), nil
}

func (m *Memory) Threads(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *Memory) Close() error {
	return nil
}

var _ ThreadStore = (*Memory)(nil)
