package event

import (
	"testing"

	"github.com/killallgit/scout/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("should read the type discriminator at the top level", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"content_chunk","content":"Hel","message_id":"m1","agent":"Researcher"}`))
		require.NoError(t, err)

		assert.Equal(t, KindContentChunk, ev.Kind)
		assert.Equal(t, "content_chunk", ev.Type)
		assert.Equal(t, "Hel", ev.Content)
		assert.Equal(t, "m1", ev.MessageID)
		assert.Equal(t, chat.AgentResearcher, ev.Agent)
		assert.True(t, ev.IsMessageEvent())
	})

	t.Run("should read the event discriminator and a data envelope", func(t *testing.T) {
		frame := `{"event":"message_chunk","data":{"id":"run-1","thread_id":"t1","agent":"reporter","role":"assistant","content":"Hi","reasoning_content":"hmm","finish_reason":"stop"}}`
		ev, err := NewDecoder(map[string]Kind{"message_chunk": KindContentChunk}).Decode([]byte(frame))
		require.NoError(t, err)

		assert.Equal(t, KindContentChunk, ev.Kind)
		assert.Equal(t, "run-1", ev.MessageID)
		assert.Equal(t, "t1", ev.ThreadID)
		assert.Equal(t, chat.RoleAssistant, ev.Role)
		assert.Equal(t, "hmm", ev.ReasoningContent)
		assert.Equal(t, chat.FinishStop, ev.FinishReason)
	})

	t.Run("should treat a string data payload as content", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"chunk","data":"lo "}`))
		require.NoError(t, err)
		assert.Equal(t, KindContentChunk, ev.Kind)
		assert.Equal(t, "lo ", ev.Content)
	})

	t.Run("should normalise discriminator spelling", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"Tool-Call-Result","toolCallId":"c1","result":{"ok":true}}`))
		require.NoError(t, err)
		assert.Equal(t, KindToolCallResult, ev.Kind)
		assert.Equal(t, "c1", ev.ToolCallID)
		assert.JSONEq(t, `{"ok":true}`, string(ev.Result))
	})

	t.Run("should accept unknown kinds", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"telemetry","cpu":0.4}`))
		require.NoError(t, err)
		assert.Equal(t, KindUnknown, ev.Kind)
		assert.False(t, ev.IsMessageEvent())
		assert.False(t, ev.IsTerminal())
	})

	t.Run("should reject frames that are not objects", func(t *testing.T) {
		for _, frame := range []string{``, `[]`, `"x"`, `{"type":`} {
			_, err := Decode([]byte(frame))
			assert.ErrorIs(t, err, ErrMalformedFrame, "frame %q", frame)
		}
	})

	t.Run("should turn done without a message into completion", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"done"}`))
		require.NoError(t, err)
		assert.Equal(t, KindComplete, ev.Kind)
		assert.True(t, ev.IsTerminal())

		ev, err = Decode([]byte(`{"type":"done","id":"m1"}`))
		require.NoError(t, err)
		assert.Equal(t, KindDone, ev.Kind)
	})

	t.Run("should read completion with a final answer", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"research_complete","finalAnswer":"42"}`))
		require.NoError(t, err)
		assert.Equal(t, KindComplete, ev.Kind)
		assert.Equal(t, "42", ev.FinalAnswer)
		assert.False(t, ev.IsMessageEvent())
	})

	t.Run("should read error text from several shapes", func(t *testing.T) {
		cases := map[string]string{
			`{"type":"error","error":"boom"}`:                 "boom",
			`{"type":"error","error":{"message":"nested"}}`:   "nested",
			`{"type":"error","message":"from message field"}`: "from message field",
		}
		for frame, want := range cases {
			ev, err := Decode([]byte(frame))
			require.NoError(t, err)
			assert.Equal(t, KindError, ev.Kind)
			assert.Equal(t, want, ev.Error)
		}
	})

	t.Run("should collect sources", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"source_discovered","url":"https://a.example","title":"A"}`))
		require.NoError(t, err)
		require.Len(t, ev.Sources, 1)
		assert.Equal(t, "https://a.example", ev.Sources[0].URL)

		ev, err = Decode([]byte(`{"type":"sources","source":{"url":"https://b"},"sources":[{"url":"https://c"}]}`))
		require.NoError(t, err)
		require.Len(t, ev.Sources, 2)
		assert.Equal(t, "https://b", ev.Sources[0].URL)
		assert.Equal(t, "https://c", ev.Sources[1].URL)
	})

	t.Run("should read progress and routing", func(t *testing.T) {
		ev, err := Decode([]byte(`{"type":"agent_progress","agent":"researcher","status":"searching","progress":40}`))
		require.NoError(t, err)
		require.NotNil(t, ev.Progress)
		assert.Equal(t, 40.0, *ev.Progress)
		assert.Equal(t, "searching", ev.Status)

		ev, err = Decode([]byte(`{"type":"agent_selection","selected_agents":["researcher","coder"]}`))
		require.NoError(t, err)
		assert.Equal(t, KindRouting, ev.Kind)
		assert.Equal(t, []string{"researcher", "coder"}, ev.Agents)
	})

	t.Run("should read tool call declarations and chunks", func(t *testing.T) {
		frame := `{"event":"tool_calls","data":{"id":"m1","tool_calls":[{"id":"c1","name":"web_search","args":{}}],"tool_call_chunks":[{"id":"c1","name":"web_search","args":"{\"q\":"}]}}`
		ev, err := Decode([]byte(frame))
		require.NoError(t, err)
		assert.Equal(t, KindToolCall, ev.Kind)
		require.Len(t, ev.ToolCalls, 1)
		assert.Equal(t, "web_search", ev.ToolCalls[0].Name)
		require.Len(t, ev.ToolCallChunks, 1)
		assert.Equal(t, `{"q":`, ev.ToolCallChunks[0].Args)
	})

	t.Run("should read interrupt options", func(t *testing.T) {
		ev, err := Decode([]byte(`{"event":"interrupt","data":{"id":"m9","finish_reason":"interrupt","options":[{"text":"Edit plan","value":"edit_plan"},{"text":"Start","value":"accepted"}]}}`))
		require.NoError(t, err)
		assert.Equal(t, KindInterrupt, ev.Kind)
		assert.Equal(t, chat.FinishInterrupt, ev.FinishReason)
		assert.Len(t, ev.Options, 2)
	})
}
