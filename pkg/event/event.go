package event

import (
	"encoding/json"
	"time"

	"github.com/killallgit/scout/pkg/chat"
)

// Kind is the normalised type of an inbound frame
type Kind string

const (
	KindConnectionConfirmed Kind = "connection_confirmed"
	KindRouting             Kind = "routing"
	KindAgentProgress       Kind = "agent_progress"
	KindPhase               Kind = "phase"
	KindSourceDiscovered    Kind = "source_discovered"
	KindContentChunk        Kind = "content_chunk"
	KindToolCall            Kind = "tool_call"
	KindToolCallChunk       Kind = "tool_call_chunk"
	KindToolCallResult      Kind = "tool_call_result"
	KindReasoningChunk      Kind = "reasoning_chunk"
	KindComplete            Kind = "complete"
	KindDone                Kind = "done"
	KindInterrupt           Kind = "interrupt"
	KindError               Kind = "error"
	KindHeartbeat           Kind = "heartbeat"
	KindUnknown             Kind = "unknown"
)

// ToolCallDecl is a tool call announced in full by the backend
type ToolCallDecl struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallChunk is one raw fragment of a tool call's arguments.
// An empty ID means the fragment continues the most recent running call.
type ToolCallChunk struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Args string `json:"args"`
}

// Source is a document or page the backend consulted
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Agent   string `json:"agent,omitempty"`
}

// Event is one decoded inbound frame. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind
	// Type is the discriminator exactly as received
	Type string

	MessageID string
	ThreadID  string
	Agent     chat.Agent
	Role      chat.Role

	Content          string
	ReasoningContent string
	ToolCalls        []ToolCallDecl
	ToolCallChunks   []ToolCallChunk
	ToolCallID       string
	Result           json.RawMessage
	Error            string
	FinishReason     chat.FinishReason
	Options          []chat.InterruptOption

	Phase    string
	Status   string
	Progress *float64
	Sources  []Source
	Agents   []string

	Message     string
	FinalAnswer string
	Timestamp   time.Time

	Raw json.RawMessage
}

// IsMessageEvent reports whether the event folds into a thread message
func (e Event) IsMessageEvent() bool {
	switch e.Kind {
	case KindContentChunk, KindReasoningChunk, KindToolCall, KindToolCallChunk,
		KindToolCallResult, KindDone, KindInterrupt:
		return true
	case KindError, KindComplete:
		return e.MessageID != ""
	default:
		return false
	}
}

// IsTerminal reports whether the event ends the whole request
func (e Event) IsTerminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}
