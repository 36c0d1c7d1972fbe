package merge

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/logger"
)

// Merge folds one event into a message and returns the new snapshot.
// existing is never modified; nil means the message does not exist yet.
//
// A terminal message only accepts tool call results, so replaying a terminal
// event leaves it unchanged.
func Merge(existing *chat.Message, ev event.Event) chat.Message {
	var msg chat.Message
	if existing == nil {
		msg = newMessage(ev)
	} else {
		msg = existing.Clone()
	}

	if msg.IsTerminal() {
		if ev.Kind == event.KindToolCallResult {
			applyToolResult(&msg, ev)
		}
		return msg
	}

	switch ev.Kind {
	case event.KindContentChunk, event.KindReasoningChunk:
		appendText(&msg, ev)
	case event.KindToolCall:
		appendText(&msg, ev)
		declareToolCalls(&msg, ev.ToolCalls)
		applyToolCallChunks(&msg, ev.ToolCallChunks)
	case event.KindToolCallChunk:
		appendText(&msg, ev)
		applyToolCallChunks(&msg, ev.ToolCallChunks)
	case event.KindToolCallResult:
		applyToolResult(&msg, ev)
	case event.KindDone, event.KindComplete:
		terminate(&msg, ev.FinishReason, chat.FinishStop)
	case event.KindInterrupt:
		appendText(&msg, ev)
		msg.Options = slices.Clone(ev.Options)
		terminate(&msg, chat.FinishInterrupt, chat.FinishInterrupt)
	case event.KindError:
		appendErrorNote(&msg, errorNote(ev))
		terminate(&msg, chat.FinishError, chat.FinishError)
	default:
		logger.WithComponent("merge").Debug("Ignoring event for message",
			"message_id", msg.ID, "kind", string(ev.Kind), "type", ev.Type)
		return msg
	}

	if ev.FinishReason != chat.FinishNone && msg.IsStreaming {
		terminate(&msg, ev.FinishReason, chat.FinishStop)
	}
	return msg
}

// MergeAll folds events in order, starting from existing
func MergeAll(existing *chat.Message, events ...event.Event) chat.Message {
	var msg chat.Message
	current := existing
	for _, ev := range events {
		msg = Merge(current, ev)
		current = &msg
	}
	if current == nil {
		return chat.Message{}
	}
	return current.Clone()
}

func newMessage(ev event.Event) chat.Message {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := chat.NewStreamingMessage(ev.MessageID, ev.ThreadID, ev.Agent, ts)
	if ev.Role != "" {
		msg.Role = ev.Role
	}
	return msg
}

func appendText(msg *chat.Message, ev event.Event) {
	if ev.Content != "" {
		msg.Content += ev.Content
		msg.ContentChunks = append(msg.ContentChunks, ev.Content)
	}
	if ev.ReasoningContent != "" {
		msg.ReasoningContent += ev.ReasoningContent
		msg.ReasoningContentChunks = append(msg.ReasoningContentChunks, ev.ReasoningContent)
	}
}

func terminate(msg *chat.Message, reason, fallback chat.FinishReason) {
	if reason == chat.FinishNone {
		reason = fallback
	}
	msg.IsStreaming = false
	msg.FinishReason = reason
}

func declareToolCalls(msg *chat.Message, decls []event.ToolCallDecl) {
	for _, decl := range decls {
		if decl.ID == "" {
			continue
		}
		i := toolCallIndex(msg, decl.ID)
		if i < 0 {
			tc := chat.ToolCall{ID: decl.ID, Name: decl.Name, Status: chat.ToolCallRunning}
			if len(decl.Args) > 0 {
				tc.Args = decl.Args
			}
			msg.ToolCalls = append(msg.ToolCalls, tc.Clone())
			continue
		}

		tc := &msg.ToolCalls[i]
		if decl.Name != "" {
			tc.Name = decl.Name
		}
		if len(decl.Args) > 0 {
			tc.Args = chat.ToolCall{Args: decl.Args}.Clone().Args
		}
		if !tc.Status.IsTerminal() {
			tc.Status = chat.ToolCallRunning
		}
	}
}

func applyToolCallChunks(msg *chat.Message, chunks []event.ToolCallChunk) {
	log := logger.WithComponent("merge")

	for _, chunk := range chunks {
		i := -1
		if chunk.ID != "" {
			i = toolCallIndex(msg, chunk.ID)
			if i < 0 {
				msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
					ID:     chunk.ID,
					Name:   chunk.Name,
					Status: chat.ToolCallRunning,
				})
				i = len(msg.ToolCalls) - 1
			}
		} else {
			i = lastRunningToolCall(msg)
		}
		if i < 0 {
			log.Debug("Dropping argument chunk without a running tool call", "message_id", msg.ID)
			continue
		}

		tc := &msg.ToolCalls[i]
		if tc.Name == "" && chunk.Name != "" {
			tc.Name = chunk.Name
		}
		if chunk.Args == "" {
			continue
		}
		tc.ArgsChunks = append(tc.ArgsChunks, chunk.Args)

		var args any
		if err := json.Unmarshal([]byte(tc.RawArgs()), &args); err == nil && args != nil {
			tc.Args = args
		}
	}
}

func applyToolResult(msg *chat.Message, ev event.Event) {
	i := toolCallIndex(msg, ev.ToolCallID)
	if i < 0 {
		return
	}
	tc := &msg.ToolCalls[i]
	if tc.Status.IsTerminal() {
		return
	}

	if ev.Error != "" {
		tc.Error = ev.Error
		tc.Result = nil
		tc.Status = chat.ToolCallError
		return
	}
	tc.Result = resultPayload(ev)
	tc.Error = ""
	tc.Status = chat.ToolCallCompleted
}

// resultPayload prefers the explicit result; plain content becomes a JSON value
func resultPayload(ev event.Event) json.RawMessage {
	if len(ev.Result) > 0 {
		return slices.Clone(ev.Result)
	}
	if ev.Content == "" {
		return nil
	}
	if json.Valid([]byte(ev.Content)) {
		return json.RawMessage(ev.Content)
	}
	encoded, err := json.Marshal(ev.Content)
	if err != nil {
		return nil
	}
	return encoded
}

// appendErrorNote records note as the message error and appends it to the
// content as its own chunk
func appendErrorNote(msg *chat.Message, note string) {
	msg.Error = note
	chunk := note
	if msg.Content != "" {
		chunk = "\n\n" + note
	}
	msg.Content += chunk
	msg.ContentChunks = append(msg.ContentChunks, chunk)
}

func errorNote(ev event.Event) string {
	text := strings.TrimSpace(ev.Error)
	if text == "" {
		text = strings.TrimSpace(ev.Message)
	}
	if text == "" {
		return "The response was interrupted by an error."
	}
	return "Error: " + text
}

func toolCallIndex(msg *chat.Message, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(msg.ToolCalls, func(tc chat.ToolCall) bool { return tc.ID == id })
}

func lastRunningToolCall(msg *chat.Message) int {
	for i := len(msg.ToolCalls) - 1; i >= 0; i-- {
		if msg.ToolCalls[i].Status == chat.ToolCallRunning {
			return i
		}
	}
	return -1
}
