package adapter

import (
	"fmt"
	"strings"

	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/event"
)

// Query is what the caller asks the backend
type Query struct {
	Text         string
	ResearchType string
	Scope        string
	Depth        string
	Urgency      string
	ThreadID     string
	// InterruptFeedback answers an interrupt, e.g. "accepted" or "edit_plan"
	InterruptFeedback string
}

// Adapter describes one backend flavour: where to connect, what to send
// and how inbound frames map onto events
type Adapter interface {
	Name() string
	Endpoint() string
	BuildRequest(q Query, sessionID string) any
	Decode(frame []byte) (event.Event, error)
}

// New returns the adapter configured by name
func New(cfg config.BackendConfig) (Adapter, error) {
	switch strings.ToLower(cfg.Adapter) {
	case "", "research":
		return NewResearch(cfg.URL), nil
	case "workflow":
		return NewWorkflow(cfg.URL, cfg.Workflow), nil
	case "local":
		return NewLocal(), nil
	default:
		return nil, fmt.Errorf("unknown backend adapter: %s", cfg.Adapter)
	}
}
