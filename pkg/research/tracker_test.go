package research_test

import (
	"testing"
	"time"

	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/research"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestResearch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Research Suite")
}

func agentMessage(id string, agent chat.Agent, streaming bool) chat.Message {
	msg := chat.NewStreamingMessage(id, "t1", agent, time.Now())
	msg.IsStreaming = streaming
	return msg
}

var _ = Describe("Tracker", func() {
	var tracker *research.Tracker

	BeforeEach(func() {
		tracker = research.NewTracker()
	})

	Describe("session grouping", func() {
		It("should follow a planner, researcher, coder, reporter sequence", func() {
			tracker.OnAppend(chat.NewUserMessage("u1", "t1", "compare vendors"))
			tracker.OnAppend(agentMessage("P", chat.AgentPlanner, false))

			_, ongoing := tracker.Ongoing()
			Expect(ongoing).To(BeFalse())

			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))
			session, ok := tracker.Session("R1")
			Expect(ok).To(BeTrue())
			Expect(session.PlanMessageID).To(Equal("P"))
			Expect(session.ActivityMessageIDs).To(Equal([]string{"P", "R1"}))
			Expect(tracker.Status("R1")).To(Equal(research.StatusResearching))

			tracker.OnAppend(agentMessage("C1", chat.AgentCoder, true))
			session, _ = tracker.Session("R1")
			Expect(session.ActivityMessageIDs).To(Equal([]string{"P", "R1", "C1"}))

			tracker.OnAppend(agentMessage("X", chat.AgentReporter, true))
			session, _ = tracker.Session("R1")
			Expect(session.ReportMessageID).To(Equal("X"))
			Expect(tracker.Status("R1")).To(Equal(research.StatusGeneratingReport))

			tracker.OnUpdate(agentMessage("X", chat.AgentReporter, false))
			Expect(tracker.Status("R1")).To(Equal(research.StatusCompleted))
			session, _ = tracker.Session("R1")
			Expect(session.ReportMessageID).To(Equal("X"))
			Expect(session.ActivityMessageIDs).To(Equal([]string{"P", "R1", "C1", "X"}))

			_, ongoing = tracker.Ongoing()
			Expect(ongoing).To(BeFalse())
		})

		It("should not open a session without a planner", func() {
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))

			Expect(tracker.Sessions()).To(BeEmpty())
			Expect(tracker.Status("R1")).To(Equal(research.StatusUnknown))
		})

		It("should pick the nearest planner", func() {
			tracker.OnAppend(agentMessage("P1", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("A", chat.AgentNone, false))
			tracker.OnAppend(agentMessage("P2", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))

			session, ok := tracker.SessionFor("R1")
			Expect(ok).To(BeTrue())
			Expect(session.PlanMessageID).To(Equal("P2"))
		})

		It("should not duplicate activity on repeated appends", func() {
			tracker.OnAppend(agentMessage("P", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))
			tracker.OnAppend(agentMessage("R2", chat.AgentResearcher, true))
			tracker.OnAppend(agentMessage("R2", chat.AgentResearcher, false))

			session, _ := tracker.Session("R1")
			Expect(session.ActivityMessageIDs).To(Equal([]string{"P", "R1", "R2"}))
		})

		It("should keep at most one ongoing session", func() {
			tracker.OnAppend(agentMessage("P", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))
			tracker.OnAppend(agentMessage("R2", chat.AgentResearcher, true))

			Expect(tracker.Sessions()).To(HaveLen(1))
			ongoing, ok := tracker.Ongoing()
			Expect(ok).To(BeTrue())
			Expect(ongoing.ID).To(Equal("R1"))
		})

		It("should start a new session after the previous report finished", func() {
			tracker.OnAppend(agentMessage("P1", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, false))
			tracker.OnAppend(agentMessage("X1", chat.AgentReporter, false))

			tracker.OnAppend(agentMessage("P2", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R2", chat.AgentResearcher, true))

			sessions := tracker.Sessions()
			Expect(sessions).To(HaveLen(2))
			Expect(sessions[0].ID).To(Equal("R1"))
			Expect(sessions[1].PlanMessageID).To(Equal("P2"))
			Expect(tracker.Status("R1")).To(Equal(research.StatusCompleted))
			Expect(tracker.Status("R2")).To(Equal(research.StatusResearching))
		})
	})

	Describe("reports", func() {
		BeforeEach(func() {
			tracker.OnAppend(agentMessage("P", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))
		})

		It("should let the last reporter win", func() {
			tracker.OnAppend(agentMessage("X1", chat.AgentReporter, true))
			tracker.OnAppend(agentMessage("X2", chat.AgentReporter, true))

			session, _ := tracker.Session("R1")
			Expect(session.ReportMessageID).To(Equal("X2"))
		})

		It("should resolve status through member message ids", func() {
			tracker.OnAppend(agentMessage("X", chat.AgentReporter, true))

			Expect(tracker.Status("P")).To(Equal(research.StatusGeneratingReport))
			Expect(tracker.Status("X")).To(Equal(research.StatusGeneratingReport))
			Expect(tracker.Status("missing")).To(Equal(research.StatusUnknown))
		})

		It("should keep the agent of a known message on updates without one", func() {
			tracker.OnAppend(agentMessage("X", chat.AgentReporter, true))

			update := agentMessage("X", chat.AgentNone, false)
			tracker.OnUpdate(update)

			Expect(tracker.Status("R1")).To(Equal(research.StatusCompleted))
		})
	})

	Describe("snapshots", func() {
		It("should return copies", func() {
			tracker.OnAppend(agentMessage("P", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))

			session, _ := tracker.Session("R1")
			session.ActivityMessageIDs[0] = "mutated"

			again, _ := tracker.Session("R1")
			Expect(again.ActivityMessageIDs[0]).To(Equal("P"))
		})

		It("should forget everything on reset", func() {
			tracker.OnAppend(agentMessage("P", chat.AgentPlanner, false))
			tracker.OnAppend(agentMessage("R1", chat.AgentResearcher, true))
			tracker.Reset()

			Expect(tracker.Sessions()).To(BeEmpty())
			_, ok := tracker.Ongoing()
			Expect(ok).To(BeFalse())
		})
	})
})
