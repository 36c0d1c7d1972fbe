package streaming

import (
	"math"
	"slices"

	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/sources"
)

// Agent statuses reported in the roster
const (
	AgentSelected  = "selected"
	AgentWorking   = "working"
	AgentCompleted = "completed"
	AgentFailed    = "error"
)

// AgentStatus is one sub-agent in the request roster
type AgentStatus struct {
	Name     string
	Status   string
	Progress float64
	Message  string
}

// State is the observable state of one in-flight request
type State struct {
	RequestID string
	SessionID string
	Connected bool
	Phase     string
	// Progress is a percentage that never decreases
	Progress float64
	Sources  []event.Source
	Agents   []AgentStatus
	Err      error
	Done     bool
}

// Clone returns a deep copy
func (s State) Clone() State {
	s.Sources = slices.Clone(s.Sources)
	s.Agents = slices.Clone(s.Agents)
	return s
}

// Agent returns the roster entry of name
func (s State) Agent(name string) (AgentStatus, bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentStatus{}, false
}

// stateTracker folds events into a State. It is owned by the request actor.
type stateTracker struct {
	state   State
	catalog *sources.Catalog
	agents  map[string]int
}

func newStateTracker(requestID, sessionID string) *stateTracker {
	return &stateTracker{
		state:   State{RequestID: requestID, SessionID: sessionID},
		catalog: sources.NewCatalog(),
		agents:  make(map[string]int),
	}
}

// apply folds ev into the state and returns the sources it newly discovered
func (s *stateTracker) apply(ev event.Event) []event.Source {
	var discovered []event.Source

	switch ev.Kind {
	case event.KindConnectionConfirmed:
		s.state.Connected = true

	case event.KindRouting:
		for _, name := range ev.Agents {
			s.ensureAgent(name, AgentSelected)
		}
		if ev.Agent != "" {
			s.ensureAgent(string(ev.Agent), AgentSelected)
		}
		s.setPhase(first(ev.Phase, ev.Message))

	case event.KindAgentProgress:
		if ev.Agent == "" {
			s.setProgress(ev.Progress)
		} else {
			s.updateAgent(string(ev.Agent), ev)
		}
		s.setPhase(ev.Phase)

	case event.KindPhase:
		s.setPhase(first(ev.Phase, ev.Status, ev.Message))
		s.setProgress(ev.Progress)

	case event.KindSourceDiscovered:
		for _, src := range ev.Sources {
			if src.Agent == "" {
				src.Agent = string(ev.Agent)
			}
			if s.catalog.Add(src) {
				discovered = append(discovered, src)
			}
		}
		s.state.Sources = s.catalog.All()

	case event.KindContentChunk, event.KindReasoningChunk, event.KindToolCall,
		event.KindToolCallChunk, event.KindToolCallResult:
		if ev.Agent != "" {
			i := s.ensureAgent(string(ev.Agent), AgentWorking)
			if s.state.Agents[i].Status == AgentSelected {
				s.state.Agents[i].Status = AgentWorking
			}
		}

	case event.KindComplete:
		s.finish()

	case event.KindError:
		if ev.Agent != "" {
			i := s.ensureAgent(string(ev.Agent), AgentFailed)
			s.state.Agents[i].Status = AgentFailed
			s.state.Agents[i].Message = first(ev.Error, ev.Message)
		}
	}

	return discovered
}

func (s *stateTracker) finish() {
	s.state.Done = true
	s.state.Progress = 100
	s.state.Phase = "completed"
	for i := range s.state.Agents {
		if s.state.Agents[i].Status != AgentFailed {
			s.state.Agents[i].Status = AgentCompleted
			s.state.Agents[i].Progress = 100
		}
	}
}

func (s *stateTracker) fail(err error) {
	s.state.Err = err
	s.state.Done = true
}

func (s *stateTracker) snapshot() State {
	return s.state.Clone()
}

func (s *stateTracker) ensureAgent(name, status string) int {
	if i, ok := s.agents[name]; ok {
		return i
	}
	s.agents[name] = len(s.state.Agents)
	s.state.Agents = append(s.state.Agents, AgentStatus{Name: name, Status: status})
	return len(s.state.Agents) - 1
}

func (s *stateTracker) updateAgent(name string, ev event.Event) {
	i := s.ensureAgent(name, AgentWorking)
	a := &s.state.Agents[i]
	if ev.Status != "" {
		a.Status = ev.Status
	} else if a.Status == AgentSelected {
		a.Status = AgentWorking
	}
	if ev.Message != "" {
		a.Message = ev.Message
	}
	if ev.Progress != nil {
		if p := clamp(*ev.Progress); p > a.Progress {
			a.Progress = p
		}
	}

	// overall progress follows the roster average
	var total float64
	for _, agent := range s.state.Agents {
		total += agent.Progress
	}
	avg := total / float64(len(s.state.Agents))
	s.setProgress(&avg)
}

func (s *stateTracker) setPhase(phase string) {
	if phase != "" {
		s.state.Phase = phase
	}
}

func (s *stateTracker) setProgress(p *float64) {
	if p == nil {
		return
	}
	if v := clamp(*p); v > s.state.Progress {
		s.state.Progress = v
	}
}

func clamp(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
