// Package storetest holds the behaviour every ThreadStore must share
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a store created by newStore for every subtest
func Run(t *testing.T, newStore func(t *testing.T) store.ThreadStore) {
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	message := func(id string, agent chat.Agent) chat.Message {
		return chat.NewStreamingMessage(id, "t1", agent, ts)
	}

	t.Run("should append and read back messages", func(t *testing.T) {
		s := newStore(t)
		msg := message("m1", chat.AgentResearcher)
		msg.Content = "hello"
		msg.ContentChunks = []string{"hel", "lo"}

		require.NoError(t, s.AppendMessage(ctx, msg))

		got, err := s.GetMessage(ctx, "t1", "m1")
		require.NoError(t, err)
		assert.Equal(t, "hello", got.Content)
		assert.Equal(t, []string{"hel", "lo"}, got.ContentChunks)
		assert.Equal(t, chat.AgentResearcher, got.Agent)
		assert.True(t, got.IsStreaming)
		assert.True(t, ts.Equal(got.Timestamp))
	})

	t.Run("should reject duplicate appends", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AppendMessage(ctx, message("m1", chat.AgentNone)))

		err := s.AppendMessage(ctx, message("m1", chat.AgentNone))
		assert.ErrorIs(t, err, store.ErrExists)
	})

	t.Run("should replace messages on update", func(t *testing.T) {
		s := newStore(t)
		msg := message("m1", chat.AgentReporter)
		require.NoError(t, s.AppendMessage(ctx, msg))

		msg.Content = "final"
		msg.IsStreaming = false
		msg.FinishReason = chat.FinishStop
		require.NoError(t, s.UpdateMessage(ctx, msg))

		got, err := s.GetMessage(ctx, "t1", "m1")
		require.NoError(t, err)
		assert.Equal(t, "final", got.Content)
		assert.False(t, got.IsStreaming)
		assert.Equal(t, chat.FinishStop, got.FinishReason)
	})

	t.Run("should fail to update unknown messages", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateMessage(ctx, message("ghost", chat.AgentNone))
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetMessage(ctx, "t1", "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("should keep history in arrival order per thread", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.AppendMessage(ctx, message(id, chat.AgentNone)))
		}
		other := chat.NewStreamingMessage("x", "t2", chat.AgentNone, ts)
		require.NoError(t, s.AppendMessage(ctx, other))

		updated := message("a", chat.AgentNone)
		updated.Content = "changed"
		require.NoError(t, s.UpdateMessage(ctx, updated))

		history, err := s.History(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, "a", history[0].ID)
		assert.Equal(t, "changed", history[0].Content)
		assert.Equal(t, "b", history[1].ID)
		assert.Equal(t, "c", history[2].ID)

		empty, err := s.History(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, empty)

		threads, err := s.Threads(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2"}, threads)
	})

	t.Run("should find the owner of a tool call", func(t *testing.T) {
		s := newStore(t)
		owner := message("m1", chat.AgentResearcher)
		require.NoError(t, s.AppendMessage(ctx, owner))
		require.NoError(t, s.AppendMessage(ctx, message("m2", chat.AgentNone)))

		owner.ToolCalls = []chat.ToolCall{{
			ID:     "call-1",
			Name:   "web_search",
			Args:   map[string]any{"query": "x"},
			Result: json.RawMessage(`{"hits":1}`),
			Status: chat.ToolCallCompleted,
		}}
		require.NoError(t, s.UpdateMessage(ctx, owner))

		got, err := s.FindByToolCallID(ctx, "t1", "call-1")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.ID)
		tc, ok := got.ToolCall("call-1")
		require.True(t, ok)
		assert.Equal(t, "x", tc.ArgsMap()["query"])
		assert.JSONEq(t, `{"hits":1}`, string(tc.Result))

		_, err = s.FindByToolCallID(ctx, "t1", "call-2")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("should hand out independent copies", func(t *testing.T) {
		s := newStore(t)
		msg := message("m1", chat.AgentNone)
		msg.ContentChunks = []string{"a"}
		require.NoError(t, s.AppendMessage(ctx, msg))

		msg.ContentChunks[0] = "mutated"
		got, err := s.GetMessage(ctx, "t1", "m1")
		require.NoError(t, err)
		got.ContentChunks[0] = "also mutated"

		again, err := s.GetMessage(ctx, "t1", "m1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, again.ContentChunks)
	})
}
