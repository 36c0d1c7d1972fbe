package adapter

import (
	"github.com/killallgit/scout/pkg/event"
)

// ResearchRequest is the outbound frame of the research backend
type ResearchRequest struct {
	Query        string          `json:"query"`
	ResearchType string          `json:"research_type,omitempty"`
	Scope        string          `json:"scope,omitempty"`
	Depth        string          `json:"depth,omitempty"`
	Urgency      string          `json:"urgency,omitempty"`
	Context      ResearchContext `json:"context"`
	Stream       bool            `json:"stream"`
}

type ResearchContext struct {
	SessionID string `json:"sessionId"`
}

// Research talks to the single-endpoint research backend
type Research struct {
	endpoint string
	decoder  *event.Decoder
}

func NewResearch(endpoint string) *Research {
	return &Research{
		endpoint: endpoint,
		decoder: event.NewDecoder(map[string]event.Kind{
			"research_started":  event.KindConnectionConfirmed,
			"agent_routing":     event.KindRouting,
			"research_progress": event.KindAgentProgress,
			"answer_chunk":      event.KindContentChunk,
			"research_error":    event.KindError,
		}),
	}
}

func (r *Research) Name() string     { return "research" }
func (r *Research) Endpoint() string { return r.endpoint }

func (r *Research) BuildRequest(q Query, sessionID string) any {
	return ResearchRequest{
		Query:        q.Text,
		ResearchType: q.ResearchType,
		Scope:        q.Scope,
		Depth:        q.Depth,
		Urgency:      q.Urgency,
		Context:      ResearchContext{SessionID: sessionID},
		Stream:       true,
	}
}

func (r *Research) Decode(frame []byte) (event.Event, error) {
	return r.decoder.Decode(frame)
}
