package adapter

import (
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/event"
)

// WorkflowMessage is one conversation turn sent to a workflow backend
type WorkflowMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WorkflowRequest is the outbound frame of multi-agent workflow backends
type WorkflowRequest struct {
	Messages                      []WorkflowMessage `json:"messages"`
	ThreadID                      string            `json:"thread_id"`
	InterruptFeedback             string            `json:"interrupt_feedback,omitempty"`
	AutoAcceptedPlan              bool              `json:"auto_accepted_plan"`
	MaxPlanIterations             int               `json:"max_plan_iterations"`
	MaxStepNum                    int               `json:"max_step_num"`
	EnableBackgroundInvestigation bool              `json:"enable_background_investigation"`
	Stream                        bool              `json:"stream"`
}

// Workflow talks to planner/researcher/coder/reporter pipelines that stream
// message_chunk, tool_calls, tool_call_chunks, tool_call_result and interrupt
type Workflow struct {
	endpoint string
	settings config.WorkflowConfig
	decoder  *event.Decoder
}

func NewWorkflow(endpoint string, settings config.WorkflowConfig) *Workflow {
	return &Workflow{
		endpoint: endpoint,
		settings: settings,
		decoder: event.NewDecoder(map[string]event.Kind{
			"message_chunk": event.KindContentChunk,
		}),
	}
}

func (w *Workflow) Name() string     { return "workflow" }
func (w *Workflow) Endpoint() string { return w.endpoint }

func (w *Workflow) BuildRequest(q Query, sessionID string) any {
	threadID := q.ThreadID
	if threadID == "" {
		threadID = sessionID
	}

	messages := []WorkflowMessage{}
	if q.Text != "" {
		messages = append(messages, WorkflowMessage{Role: "user", Content: q.Text})
	}

	return WorkflowRequest{
		Messages:                      messages,
		ThreadID:                      threadID,
		InterruptFeedback:             q.InterruptFeedback,
		AutoAcceptedPlan:              w.settings.AutoAcceptedPlan,
		MaxPlanIterations:             w.settings.MaxPlanIterations,
		MaxStepNum:                    w.settings.MaxStepNum,
		EnableBackgroundInvestigation: w.settings.BackgroundInvestigation,
		Stream:                        true,
	}
}

func (w *Workflow) Decode(frame []byte) (event.Event, error) {
	return w.decoder.Decode(frame)
}
