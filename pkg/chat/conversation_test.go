package chat_test

import (
	"time"

	"github.com/killallgit/scout/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Conversation", func() {
	var (
		testTime time.Time
		conv     chat.Conversation
	)

	BeforeEach(func() {
		testTime = time.Date(2023, 12, 25, 10, 30, 0, 0, time.UTC)
		conv = chat.NewConversation("t1")
	})

	Describe("NewConversation", func() {
		It("should create an empty conversation", func() {
			Expect(conv.ThreadID).To(Equal("t1"))
			Expect(chat.IsEmpty(conv)).To(BeTrue())
			_, found := chat.GetLastMessage(conv)
			Expect(found).To(BeFalse())
		})
	})

	Describe("AddMessage", func() {
		It("should not mutate the original conversation", func() {
			next := chat.AddMessage(conv, chat.NewUserMessage("u1", "t1", "hi"))

			Expect(chat.GetMessageCount(conv)).To(Equal(0))
			Expect(chat.GetMessageCount(next)).To(Equal(1))
		})
	})

	Describe("ReplaceMessage", func() {
		It("should swap the whole message and leave the old snapshot intact", func() {
			msg := chat.NewStreamingMessage("m1", "t1", chat.AgentNone, testTime)
			conv = chat.AddMessage(conv, msg)

			updated := msg.Clone()
			updated.Content = "done"
			updated.IsStreaming = false

			next, ok := chat.ReplaceMessage(conv, updated)
			Expect(ok).To(BeTrue())

			got, _ := chat.GetMessage(next, "m1")
			Expect(got.Content).To(Equal("done"))
			old, _ := chat.GetMessage(conv, "m1")
			Expect(old.IsStreaming).To(BeTrue())
		})

		It("should report a missing message", func() {
			_, ok := chat.ReplaceMessage(conv, chat.Message{ID: "nope"})
			Expect(ok).To(BeFalse())
		})
	})

	Describe("agent queries", func() {
		BeforeEach(func() {
			conv = chat.AddMessage(conv, chat.NewStreamingMessage("p1", "t1", chat.AgentPlanner, testTime))
			conv = chat.AddMessage(conv, chat.NewStreamingMessage("r1", "t1", chat.AgentResearcher, testTime))
			conv = chat.AddMessage(conv, chat.NewStreamingMessage("p2", "t1", chat.AgentPlanner, testTime))
		})

		It("should find the newest message of an agent", func() {
			msg, ok := chat.GetLastByAgent(conv, chat.AgentPlanner)
			Expect(ok).To(BeTrue())
			Expect(msg.ID).To(Equal("p2"))
		})

		It("should filter by agent", func() {
			Expect(chat.GetMessagesByAgent(conv, chat.AgentPlanner)).To(HaveLen(2))
			Expect(chat.GetMessagesByAgent(conv, chat.AgentReporter)).To(BeEmpty())
		})

		It("should list streaming messages", func() {
			Expect(chat.GetStreamingMessages(conv)).To(HaveLen(3))
		})
	})

	Describe("FindByToolCallID", func() {
		It("should locate the owning message", func() {
			msg := chat.NewStreamingMessage("m1", "t1", chat.AgentResearcher, testTime)
			msg.ToolCalls = []chat.ToolCall{{ID: "call-1"}}
			conv = chat.AddMessage(conv, msg)

			owner, ok := chat.FindByToolCallID(conv.Messages, "call-1")
			Expect(ok).To(BeTrue())
			Expect(owner.ID).To(Equal("m1"))

			_, ok = chat.FindByToolCallID(conv.Messages, "call-2")
			Expect(ok).To(BeFalse())
		})
	})
})
