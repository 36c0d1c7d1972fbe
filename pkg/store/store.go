package store

import (
	"context"
	"errors"

	"github.com/killallgit/scout/pkg/chat"
)

var (
	// ErrNotFound is returned when a message or thread does not exist
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when appending a message id that is already stored
	ErrExists = errors.New("already exists")
)

// ThreadStore persists thread messages. Writes replace whole messages, so a
// reader never sees a half-applied update.
type ThreadStore interface {
	AppendMessage(ctx context.Context, msg chat.Message) error
	UpdateMessage(ctx context.Context, msg chat.Message) error
	GetMessage(ctx context.Context, threadID, messageID string) (chat.Message, error)
	// History returns messages in arrival order
	History(ctx context.Context, threadID string) ([]chat.Message, error)
	// FindByToolCallID returns the message owning the given tool call
	FindByToolCallID(ctx context.Context, threadID, toolCallID string) (chat.Message, error)
	// Threads lists known thread ids, oldest first
	Threads(ctx context.Context) ([]string, error)
	Close() error
}
