package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestFakeLLM(t *testing.T) {
	ctx := context.Background()

	t.Run("should cycle through responses", func(t *testing.T) {
		llm := NewFakeLLM("response1", "response2")

		resp1, err := llm.Call(ctx, "prompt1")
		require.NoError(t, err)
		assert.Equal(t, "response1", resp1)

		resp2, err := llm.Call(ctx, "prompt2")
		require.NoError(t, err)
		assert.Equal(t, "response2", resp2)

		// Should cycle back
		resp3, err := llm.Call(ctx, "prompt3")
		require.NoError(t, err)
		assert.Equal(t, "response1", resp3)
		assert.Equal(t, 3, llm.GetCallCount())
		assert.Equal(t, "prompt3", llm.GetLastPrompt())
	})

	t.Run("should stream chunks through the streaming func", func(t *testing.T) {
		llm := NewChunkedLLM("a", "b", "c")

		var got []string
		resp, err := llm.GenerateContent(ctx,
			[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "go")},
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				got = append(got, string(chunk))
				return nil
			}),
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, got)
		assert.Equal(t, "abc", resp.Choices[0].Content)
	})

	t.Run("should return error when configured", func(t *testing.T) {
		llm := NewFakeLLM("response1")
		llm.SetErrorOnCall(2, "simulated error")

		_, err := llm.Call(ctx, "prompt1")
		require.NoError(t, err)

		_, err = llm.Call(ctx, "prompt2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})

	t.Run("should block until cancelled", func(t *testing.T) {
		llm := NewChunkedLLM("x")
		llm.SetBlocking(true)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := llm.GenerateContent(cctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
