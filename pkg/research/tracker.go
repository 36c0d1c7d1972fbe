package research

import (
	"slices"
	"sync"
	"time"

	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/logger"
)

// Status is the derived state of a research session
type Status string

const (
	StatusResearching      Status = "researching"
	StatusGeneratingReport Status = "generating-report"
	StatusCompleted        Status = "completed"
	StatusUnknown          Status = "unknown"
)

// Session groups the agent messages that answer one plan
type Session struct {
	ID                 string    `json:"id"`
	PlanMessageID      string    `json:"plan_message_id"`
	ActivityMessageIDs []string  `json:"activity_message_ids"`
	ReportMessageID    string    `json:"report_message_id,omitempty"`
	StartedAt          time.Time `json:"started_at"`
}

func (s *Session) clone() Session {
	out := *s
	out.ActivityMessageIDs = slices.Clone(s.ActivityMessageIDs)
	return out
}

func (s *Session) addActivity(id string) {
	if !slices.Contains(s.ActivityMessageIDs, id) {
		s.ActivityMessageIDs = append(s.ActivityMessageIDs, id)
	}
}

type entry struct {
	agent     chat.Agent
	streaming bool
}

// Tracker groups the messages of one thread into research sessions.
// At most one session is ongoing at a time.
type Tracker struct {
	mu sync.RWMutex

	// order holds message ids in arrival order; the planner lookup scans it
	// backwards, which is linear in the thread length
	order    []string
	messages map[string]entry

	sessions     map[string]*Session
	sessionOrder []string
	byMessage    map[string]string
	ongoing      string

	log *logger.Logger
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	t := &Tracker{log: logger.WithComponent("research")}
	t.reset()
	return t
}

func (t *Tracker) reset() {
	t.order = nil
	t.messages = make(map[string]entry)
	t.sessions = make(map[string]*Session)
	t.sessionOrder = nil
	t.byMessage = make(map[string]string)
	t.ongoing = ""
}

// Reset forgets every message and session
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// OnAppend records a newly appended message. Appending a known id is
// treated as an update.
func (t *Tracker) OnAppend(msg chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, known := t.messages[msg.ID]; known {
		t.update(msg)
		return
	}
	t.record(msg)
}

// OnUpdate records a new snapshot of a message. Unknown ids are appended.
func (t *Tracker) OnUpdate(msg chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	known, ok := t.messages[msg.ID]
	if !ok {
		t.record(msg)
		return
	}
	if msg.Agent == chat.AgentNone {
		msg.Agent = known.agent
	}
	t.update(msg)
}

func (t *Tracker) record(msg chat.Message) {
	t.order = append(t.order, msg.ID)
	t.messages[msg.ID] = entry{agent: msg.Agent, streaming: msg.IsStreaming}

	if msg.Agent.IsResearchWorker() {
		if t.ongoing == "" {
			t.open(msg)
		} else {
			s := t.sessions[t.ongoing]
			s.addActivity(msg.ID)
			t.byMessage[msg.ID] = s.ID
		}
	}

	if msg.Agent == chat.AgentReporter {
		t.report(msg)
	}
}

func (t *Tracker) update(msg chat.Message) {
	t.messages[msg.ID] = entry{agent: msg.Agent, streaming: msg.IsStreaming}
	if msg.Agent == chat.AgentReporter {
		t.report(msg)
	}
}

// open starts a session triggered by msg, anchored at the nearest planner
func (t *Tracker) open(msg chat.Message) {
	planner := ""
	for i := len(t.order) - 1; i >= 0; i-- {
		id := t.order[i]
		if id == msg.ID {
			continue
		}
		if t.messages[id].agent == chat.AgentPlanner {
			planner = id
			break
		}
	}
	if planner == "" {
		t.log.Debug("No planner before agent message, not opening a session",
			"message_id", msg.ID, "agent", string(msg.Agent))
		return
	}

	s := &Session{
		ID:                 msg.ID,
		PlanMessageID:      planner,
		ActivityMessageIDs: []string{planner, msg.ID},
		StartedAt:          time.Now(),
	}
	t.sessions[s.ID] = s
	t.sessionOrder = append(t.sessionOrder, s.ID)
	t.byMessage[planner] = s.ID
	t.byMessage[msg.ID] = s.ID
	t.ongoing = s.ID

	t.log.Info("Research session opened", "session_id", s.ID, "plan_message_id", planner)
}

// report associates a reporter message with its session. The latest
// reporter message wins.
func (t *Tracker) report(msg chat.Message) {
	sid, ok := t.byMessage[msg.ID]
	if !ok {
		sid = t.ongoing
	}
	s, ok := t.sessions[sid]
	if !ok {
		return
	}

	s.addActivity(msg.ID)
	t.byMessage[msg.ID] = s.ID
	if s.ReportMessageID != msg.ID {
		if s.ReportMessageID != "" {
			t.log.Debug("Replacing research report", "session_id", s.ID,
				"previous", s.ReportMessageID, "report", msg.ID)
		}
		s.ReportMessageID = msg.ID
	}

	if !msg.IsStreaming && t.ongoing == s.ID {
		t.ongoing = ""
		t.log.Info("Research session completed", "session_id", s.ID, "report_message_id", msg.ID)
	}
}

// Status returns the derived status of a session. A member message id is
// resolved to its session.
func (t *Tracker) Status(id string) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.lookup(id)
	if !ok {
		return StatusUnknown
	}
	if s.ReportMessageID != "" {
		if t.messages[s.ReportMessageID].streaming {
			return StatusGeneratingReport
		}
		return StatusCompleted
	}
	if t.ongoing == s.ID {
		return StatusResearching
	}
	return StatusUnknown
}

// Session returns a copy of the session with the given id
func (t *Tracker) Session(id string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// SessionFor returns the session a message belongs to
func (t *Tracker) SessionFor(messageID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.lookup(messageID)
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Ongoing returns the session currently collecting activity
func (t *Tracker) Ongoing() (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.ongoing == "" {
		return Session{}, false
	}
	return t.sessions[t.ongoing].clone(), true
}

// Sessions returns every session in creation order
func (t *Tracker) Sessions() []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Session, 0, len(t.sessionOrder))
	for _, id := range t.sessionOrder {
		out = append(out, t.sessions[id].clone())
	}
	return out
}

func (t *Tracker) lookup(id string) (*Session, bool) {
	if s, ok := t.sessions[id]; ok {
		return s, true
	}
	if sid, ok := t.byMessage[id]; ok {
		s, ok := t.sessions[sid]
		return s, ok
	}
	return nil, false
}
