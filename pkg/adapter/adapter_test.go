package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/testutil"
	"github.com/killallgit/scout/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestNew(t *testing.T) {
	t.Run("should default to the research adapter", func(t *testing.T) {
		a, err := New(config.BackendConfig{URL: "ws://x/ws/research"})
		require.NoError(t, err)
		assert.Equal(t, "research", a.Name())
		assert.Equal(t, "ws://x/ws/research", a.Endpoint())
	})

	t.Run("should select adapters by name", func(t *testing.T) {
		a, err := New(config.BackendConfig{Adapter: "Workflow"})
		require.NoError(t, err)
		assert.Equal(t, "workflow", a.Name())

		a, err = New(config.BackendConfig{Adapter: "local"})
		require.NoError(t, err)
		assert.Equal(t, LocalEndpoint, a.Endpoint())
	})

	t.Run("should reject unknown adapters", func(t *testing.T) {
		_, err := New(config.BackendConfig{Adapter: "smoke-signals"})
		assert.Error(t, err)
	})
}

func TestResearch(t *testing.T) {
	r := NewResearch("ws://x")

	t.Run("should build the research request", func(t *testing.T) {
		req := toMap(t, r.BuildRequest(Query{Text: "quantum", Depth: "deep"}, "s-1"))
		assert.Equal(t, "quantum", req["query"])
		assert.Equal(t, "deep", req["depth"])
		assert.Equal(t, true, req["stream"])
		assert.Equal(t, map[string]any{"sessionId": "s-1"}, req["context"])
		assert.NotContains(t, req, "scope")
	})

	t.Run("should map backend specific event names", func(t *testing.T) {
		ev, err := r.Decode([]byte(`{"type":"answer_chunk","content":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, event.KindContentChunk, ev.Kind)

		ev, err = r.Decode([]byte(`{"type":"research_progress","progress":0.5}`))
		require.NoError(t, err)
		assert.Equal(t, event.KindAgentProgress, ev.Kind)
	})
}

func TestWorkflow(t *testing.T) {
	w := NewWorkflow("http://x", config.WorkflowConfig{
		AutoAcceptedPlan:  true,
		MaxPlanIterations: 2,
		MaxStepNum:        4,
	})

	t.Run("should build the workflow request", func(t *testing.T) {
		req := toMap(t, w.BuildRequest(Query{Text: "hello"}, "s-1"))
		assert.Equal(t, "s-1", req["thread_id"], "session id stands in for a missing thread")
		assert.Equal(t, []any{map[string]any{"role": "user", "content": "hello"}}, req["messages"])
		assert.Equal(t, true, req["auto_accepted_plan"])
		assert.EqualValues(t, 2, req["max_plan_iterations"])
		assert.EqualValues(t, 4, req["max_step_num"])
		assert.NotContains(t, req, "interrupt_feedback")
	})

	t.Run("should carry interrupt feedback and thread", func(t *testing.T) {
		req := toMap(t, w.BuildRequest(Query{ThreadID: "t-9", InterruptFeedback: "accepted"}, "s-1"))
		assert.Equal(t, "t-9", req["thread_id"])
		assert.Equal(t, "accepted", req["interrupt_feedback"])
		assert.Empty(t, req["messages"])
	})

	t.Run("should decode message_chunk as content", func(t *testing.T) {
		ev, err := w.Decode([]byte(`{"event":"message_chunk","data":{"id":"m1","agent":"planner","content":"Plan"}}`))
		require.NoError(t, err)
		assert.Equal(t, event.KindContentChunk, ev.Kind)
		assert.Equal(t, "m1", ev.MessageID)
		assert.Equal(t, "Plan", ev.Content)
	})
}

// readAll drains conn until it closes and returns the decoded events
func readAll(t *testing.T, conn transport.Conn, a Adapter) ([]event.Event, error) {
	t.Helper()
	var events []event.Event
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return events, err
		}
		ev, err := a.Decode(frame)
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestLocalDialer(t *testing.T) {
	ctx := context.Background()
	local := NewLocal()

	t.Run("should frame streamed chunks like a backend", func(t *testing.T) {
		llm := testutil.NewChunkedLLM("Hel", "lo ", "world")
		dialer := &LocalDialer{Model: llm, SystemPrompt: "be brief"}

		conn, err := dialer.Dial(ctx, local.Endpoint())
		require.NoError(t, err)
		defer conn.Close(transport.CloseNormal, "")

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
		require.NoError(t, conn.WriteJSON(local.BuildRequest(Query{Text: "say hello"}, "s-1")))

		events, err := readAll(t, conn, local)
		var closeErr *transport.CloseError
		require.True(t, errors.As(err, &closeErr))
		assert.True(t, closeErr.Normal())

		require.Len(t, events, 6)
		assert.Equal(t, event.KindConnectionConfirmed, events[0].Kind)
		var text string
		for _, ev := range events[1:4] {
			assert.Equal(t, event.KindContentChunk, ev.Kind)
			assert.Equal(t, events[1].MessageID, ev.MessageID)
			assert.Equal(t, "s-1", ev.ThreadID)
			text += ev.Content
		}
		assert.Equal(t, "Hello world", text)
		assert.Equal(t, event.KindDone, events[4].Kind)
		assert.Equal(t, event.KindComplete, events[5].Kind)
		assert.Contains(t, llm.GetLastPrompt(), "say hello")
		assert.Contains(t, llm.GetLastPrompt(), "be brief")
	})

	t.Run("should report generation failures", func(t *testing.T) {
		llm := testutil.NewFakeLLM("unused")
		llm.SetErrorOnCall(1, "model exploded")
		conn, err := (&LocalDialer{Model: llm}).Dial(ctx, LocalEndpoint)
		require.NoError(t, err)
		defer conn.Close(transport.CloseNormal, "")

		require.NoError(t, conn.WriteJSON(local.BuildRequest(Query{Text: "x"}, "s-1")))
		events, err := readAll(t, conn, local)

		var closeErr *transport.CloseError
		require.True(t, errors.As(err, &closeErr))
		assert.Equal(t, transport.CloseInternalError, closeErr.Code)
		require.Len(t, events, 2)
		assert.Equal(t, event.KindError, events[1].Kind)
		assert.Contains(t, events[1].Error, "model exploded")
	})

	t.Run("should stop generating when closed", func(t *testing.T) {
		llm := testutil.NewChunkedLLM("partial")
		llm.SetBlocking(true)
		conn, err := (&LocalDialer{Model: llm}).Dial(ctx, LocalEndpoint)
		require.NoError(t, err)

		require.NoError(t, conn.WriteJSON(local.BuildRequest(Query{Text: "x"}, "s-1")))
		_, err = conn.ReadFrame() // connection_confirmed
		require.NoError(t, err)
		_, err = conn.ReadFrame() // partial
		require.NoError(t, err)

		require.NoError(t, conn.Close(transport.CloseNormal, "user stop"))
		_, err = conn.ReadFrame()
		assert.ErrorIs(t, err, transport.ErrConnClosed)
		assert.ErrorIs(t, conn.WriteJSON(map[string]string{"type": "ping"}), transport.ErrConnClosed)
		assert.NoError(t, conn.Close(transport.CloseNormal, ""), "closing twice is a no-op")
	})

	t.Run("should refuse a second request on one connection", func(t *testing.T) {
		llm := testutil.NewChunkedLLM("a")
		llm.SetBlocking(true)
		conn, err := (&LocalDialer{Model: llm}).Dial(ctx, LocalEndpoint)
		require.NoError(t, err)
		defer conn.Close(transport.CloseNormal, "")

		require.NoError(t, conn.WriteJSON(local.BuildRequest(Query{Text: "x"}, "s-1")))
		assert.Error(t, conn.WriteJSON(local.BuildRequest(Query{Text: "y"}, "s-1")))
	})

	t.Run("should fail to dial without a model", func(t *testing.T) {
		_, err := (&LocalDialer{}).Dial(ctx, LocalEndpoint)
		assert.Error(t, err)
	})

	t.Run("should honour a cancelled dial context", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		<-cctx.Done()
		_, err := (&LocalDialer{Model: testutil.NewFakeLLM("x")}).Dial(cctx, LocalEndpoint)
		assert.Error(t, err)
	})
}
