package chat

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Agent identifies which backend pipeline stage produced a message.
// The empty agent marks a plain assistant turn.
type Agent string

const (
	AgentNone       Agent = ""
	AgentPlanner    Agent = "planner"
	AgentResearcher Agent = "researcher"
	AgentCoder      Agent = "coder"
	AgentReporter   Agent = "reporter"
)

// IsResearchWorker reports whether messages from this agent belong to a research session
func (a Agent) IsResearchWorker() bool {
	switch a {
	case AgentResearcher, AgentCoder, AgentReporter:
		return true
	default:
		return false
	}
}

// FinishReason explains why a message stopped streaming
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishStop      FinishReason = "stop"
	FinishInterrupt FinishReason = "interrupt"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// ParseFinishReason maps wire values onto a FinishReason.
// "done" and "complete" are treated as stop.
func ParseFinishReason(s string) FinishReason {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stop", "done", "complete", "end_turn":
		return FinishStop
	case "interrupt", "interrupted":
		return FinishInterrupt
	case "tool_calls", "tool_use":
		return FinishToolCalls
	case "error":
		return FinishError
	default:
		return FinishNone
	}
}

// InterruptOption is one choice offered to the user when the backend pauses for feedback
type InterruptOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Message is the unit of conversation content. Content is the cumulative text,
// ContentChunks the raw fragments in arrival order.
type Message struct {
	ID                     string            `json:"id"`
	ThreadID               string            `json:"thread_id"`
	Role                   Role              `json:"role"`
	Agent                  Agent             `json:"agent,omitempty"`
	Content                string            `json:"content"`
	ContentChunks          []string          `json:"content_chunks"`
	ReasoningContent       string            `json:"reasoning_content,omitempty"`
	ReasoningContentChunks []string          `json:"reasoning_content_chunks,omitempty"`
	ToolCalls              []ToolCall        `json:"tool_calls,omitempty"`
	IsStreaming            bool              `json:"is_streaming"`
	FinishReason           FinishReason      `json:"finish_reason,omitempty"`
	Options                []InterruptOption `json:"options,omitempty"`
	Error                  string            `json:"error,omitempty"`
	Timestamp              time.Time         `json:"timestamp"`
}

// NewStreamingMessage creates an empty assistant message that expects more chunks
func NewStreamingMessage(id, threadID string, agent Agent, ts time.Time) Message {
	if ts.IsZero() {
		ts = time.Now()
	}
	return Message{
		ID:            id,
		ThreadID:      threadID,
		Role:          RoleAssistant,
		Agent:         agent,
		ContentChunks: make([]string, 0),
		IsStreaming:   true,
		Timestamp:     ts,
	}
}

// NewUserMessage creates a finished user turn
func NewUserMessage(id, threadID, content string) Message {
	content = strings.TrimSpace(content)
	return Message{
		ID:            id,
		ThreadID:      threadID,
		Role:          RoleUser,
		Content:       content,
		ContentChunks: []string{content},
		Timestamp:     time.Now(),
	}
}

// Clone returns a deep copy so callers can mutate the result without
// affecting snapshots that share the original slices.
func (m Message) Clone() Message {
	out := m
	out.ContentChunks = slices.Clone(m.ContentChunks)
	out.ReasoningContentChunks = slices.Clone(m.ReasoningContentChunks)
	out.Options = slices.Clone(m.Options)
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc.Clone()
		}
	}
	return out
}

func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// IsTerminal reports whether the message has stopped streaming
func (m Message) IsTerminal() bool {
	return !m.IsStreaming
}

func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// ToolCall returns the call with the given id
func (m Message) ToolCall(id string) (ToolCall, bool) {
	if i := m.toolCallIndex(id); i >= 0 {
		return m.ToolCalls[i], true
	}
	return ToolCall{}, false
}

// HasToolCall reports whether the message owns a call with the given id
func (m Message) HasToolCall(id string) bool {
	return m.toolCallIndex(id) >= 0
}

func (m Message) toolCallIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(m.ToolCalls, func(tc ToolCall) bool { return tc.ID == id })
}

// ToolCallStatus is the lifecycle of a single tool invocation
type ToolCallStatus string

const (
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallError     ToolCallStatus = "error"
)

// IsTerminal reports whether no further status transition is allowed
func (s ToolCallStatus) IsTerminal() bool {
	return s == ToolCallCompleted || s == ToolCallError
}

// ToolCall is an invocation of an external capability requested mid-stream.
// Args holds the parsed value of the concatenated ArgsChunks, usually an
// object. It is only set once the concatenation parses as JSON.
type ToolCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Args       any             `json:"args,omitempty"`
	ArgsChunks []string        `json:"args_chunks,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Status     ToolCallStatus  `json:"status"`
}

// Clone returns a deep copy of the tool call
func (tc ToolCall) Clone() ToolCall {
	out := tc
	out.ArgsChunks = slices.Clone(tc.ArgsChunks)
	out.Result = slices.Clone(tc.Result)
	out.Args = cloneValue(tc.Args)
	return out
}

// ArgsMap returns object-shaped arguments, or nil for any other value
func (tc ToolCall) ArgsMap() map[string]any {
	m, _ := tc.Args.(map[string]any)
	return m
}

// RawArgs returns the concatenation of every argument fragment received so far
func (tc ToolCall) RawArgs() string {
	return strings.Join(tc.ArgsChunks, "")
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
