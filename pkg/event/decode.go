package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/killallgit/scout/pkg/chat"
)

// ErrMalformedFrame is returned for frames that are not JSON objects
var ErrMalformedFrame = errors.New("malformed frame")

// DefaultAliases maps wire discriminators onto kinds. Keys are normalised
// (lower case, '-' and ' ' replaced by '_').
var DefaultAliases = map[string]Kind{
	"connection_confirmed":   KindConnectionConfirmed,
	"connected":              KindConnectionConfirmed,
	"connection_established": KindConnectionConfirmed,

	"routing":         KindRouting,
	"route":           KindRouting,
	"agent_selection": KindRouting,
	"agent_selected":  KindRouting,

	"agent_progress": KindAgentProgress,
	"agent_status":   KindAgentProgress,
	"progress":       KindAgentProgress,

	"phase":          KindPhase,
	"phase_change":   KindPhase,
	"research_phase": KindPhase,
	"status":         KindPhase,

	"source_discovered": KindSourceDiscovered,
	"source":            KindSourceDiscovered,
	"sources":           KindSourceDiscovered,
	"citation":          KindSourceDiscovered,

	"content_chunk": KindContentChunk,
	"content":       KindContentChunk,
	"chunk":         KindContentChunk,
	"delta":         KindContentChunk,
	"token":         KindContentChunk,

	"tool_call":  KindToolCall,
	"tool_calls": KindToolCall,

	"tool_call_chunk":  KindToolCallChunk,
	"tool_call_chunks": KindToolCallChunk,

	"tool_call_result": KindToolCallResult,
	"tool_result":      KindToolCallResult,

	"reasoning_chunk": KindReasoningChunk,
	"reasoning":       KindReasoningChunk,
	"thinking":        KindReasoningChunk,
	"thinking_chunk":  KindReasoningChunk,

	"complete":          KindComplete,
	"completed":         KindComplete,
	"research_complete": KindComplete,
	"final":             KindComplete,

	"done":      KindDone,
	"interrupt": KindInterrupt,
	"error":     KindError,

	"heartbeat": KindHeartbeat,
	"ping":      KindHeartbeat,
	"pong":      KindHeartbeat,
}

// Decoder turns raw frames into events using an alias table
type Decoder struct {
	aliases map[string]Kind
}

// NewDecoder creates a decoder recognising DefaultAliases plus extra.
// Entries in extra win over the defaults.
func NewDecoder(extra map[string]Kind) *Decoder {
	aliases := maps.Clone(DefaultAliases)
	for k, v := range extra {
		aliases[normalize(k)] = v
	}
	return &Decoder{aliases: aliases}
}

// Decode parses one frame with the default alias table
func Decode(frame []byte) (Event, error) {
	return defaultDecoder.Decode(frame)
}

var defaultDecoder = NewDecoder(nil)

// KindOf maps a raw discriminator onto a kind
func (d *Decoder) KindOf(discriminator string) Kind {
	if kind, ok := d.aliases[normalize(discriminator)]; ok {
		return kind
	}
	return KindUnknown
}

// Decode parses one frame. The discriminator is read from "type", falling back
// to "event"; the payload may sit at the top level or inside a "data" object.
func (d *Decoder) Decode(frame []byte) (Event, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, ErrMalformedFrame
	}

	var envelope struct {
		Type  string          `json:"type"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) > 0 {
		switch data[0] {
		case '{':
			if err := json.Unmarshal(data, &p); err != nil {
				return Event{}, fmt.Errorf("%w: data: %v", ErrMalformedFrame, err)
			}
		case '"':
			var text string
			if err := json.Unmarshal(data, &text); err == nil && p.Content == "" {
				p.Content = text
			}
		}
	}

	discriminator := envelope.Type
	if discriminator == "" {
		discriminator = envelope.Event
	}

	ev := p.toEvent()
	ev.Type = discriminator
	ev.Kind = d.KindOf(discriminator)
	ev.Raw = json.RawMessage(bytes.Clone(trimmed))

	// "done" without a message is the end of the request
	if ev.Kind == KindDone && ev.MessageID == "" {
		ev.Kind = KindComplete
	}
	if ev.Kind == KindSourceDiscovered && len(ev.Sources) == 0 && p.URL != "" {
		ev.Sources = []Source{{URL: p.URL, Title: p.Title, Snippet: p.Snippet, Agent: p.Agent}}
	}
	if ev.Kind == KindError && ev.Error == "" {
		ev.Error = ev.Message
	}

	return ev, nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(s)
}

// payload covers the snake_case and camelCase spellings seen across backends
type payload struct {
	ID             string `json:"id"`
	MessageID      string `json:"message_id"`
	MessageIDCamel string `json:"messageId"`
	ThreadID       string `json:"thread_id"`
	ThreadIDCamel  string `json:"threadId"`
	Agent          string `json:"agent"`
	Role           string `json:"role"`

	Content               string `json:"content"`
	Chunk                 string `json:"chunk"`
	ReasoningContent      string `json:"reasoning_content"`
	ReasoningContentCamel string `json:"reasoningContent"`
	Thinking              string `json:"thinking"`

	ToolCalls         []ToolCallDecl  `json:"tool_calls"`
	ToolCallChunks    []ToolCallChunk `json:"tool_call_chunks"`
	ToolCallID        string          `json:"tool_call_id"`
	ToolCallIDCamel   string          `json:"toolCallId"`
	Result            json.RawMessage `json:"result"`
	Error             json.RawMessage `json:"error"`
	FinishReason      string          `json:"finish_reason"`
	FinishReasonCamel string          `json:"finishReason"`

	Options []chat.InterruptOption `json:"options"`

	Phase    string   `json:"phase"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
	Source   *Source  `json:"source"`
	Sources  []Source `json:"sources"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Snippet  string   `json:"snippet"`
	Agents   []string `json:"agents"`
	Selected []string `json:"selected_agents"`

	Message          string `json:"message"`
	FinalAnswer      string `json:"final_answer"`
	FinalAnswerCamel string `json:"finalAnswer"`
	Timestamp        string `json:"timestamp"`
}

func (p payload) toEvent() Event {
	ev := Event{
		MessageID:        first(p.MessageID, p.MessageIDCamel, p.ID),
		ThreadID:         first(p.ThreadID, p.ThreadIDCamel),
		Agent:            chat.Agent(strings.ToLower(p.Agent)),
		Role:             parseRole(p.Role),
		Content:          first(p.Content, p.Chunk),
		ReasoningContent: first(p.ReasoningContent, p.ReasoningContentCamel, p.Thinking),
		ToolCalls:        p.ToolCalls,
		ToolCallChunks:   p.ToolCallChunks,
		ToolCallID:       first(p.ToolCallID, p.ToolCallIDCamel),
		Result:           p.Result,
		Error:            errorText(p.Error),
		FinishReason:     chat.ParseFinishReason(first(p.FinishReason, p.FinishReasonCamel)),
		Options:          p.Options,
		Phase:            p.Phase,
		Status:           p.Status,
		Progress:         p.Progress,
		Sources:          p.Sources,
		Agents:           p.Agents,
		Message:          p.Message,
		FinalAnswer:      first(p.FinalAnswer, p.FinalAnswerCamel),
	}
	if len(ev.Agents) == 0 {
		ev.Agents = p.Selected
	}
	if p.Source != nil {
		ev.Sources = append([]Source{*p.Source}, ev.Sources...)
	}
	if p.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}
	return ev
}

func parseRole(s string) chat.Role {
	switch chat.Role(strings.ToLower(s)) {
	case chat.RoleUser:
		return chat.RoleUser
	case chat.RoleAssistant:
		return chat.RoleAssistant
	case chat.RoleTool:
		return chat.RoleTool
	default:
		return ""
	}
}

// errorText accepts "error" as a string or as an object with a message
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return first(obj.Message, obj.Error)
	}
	return string(raw)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
