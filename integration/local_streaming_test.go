package integration

import (
	"context"
	"strings"
	"time"

	"github.com/killallgit/scout/pkg/adapter"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/store"
	"github.com/killallgit/scout/pkg/streaming"
	"github.com/killallgit/scout/pkg/thread"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tmc/langchaingo/llms"
)

var _ = Describe("Local model streaming", func() {
	var manager *streaming.Manager

	BeforeEach(func() {
		url, name := requireIntegration()

		model, err := adapter.NewLocalModel(config.LocalConfig{URL: url, Model: name})
		if err != nil {
			Skip("Failed to create local model: " + err.Error())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := llms.GenerateFromSinglePrompt(ctx, model, "ping"); err != nil {
			Skip("Ollama server not available or model not found: " + err.Error())
		}

		opts := streaming.DefaultOptions()
		opts.Deadline = 2 * time.Minute
		manager = streaming.NewManager(adapter.NewLocal(), &adapter.LocalDialer{Model: model}, opts)
	})

	AfterEach(func() {
		if manager != nil {
			manager.Close()
		}
	})

	It("should stream chunks into the thread and complete", func() {
		th := thread.New("", store.NewMemory())

		var states, updates int
		res, err := manager.StartStreaming(context.Background(), adapter.Query{
			Text: "Reply with one short sentence about the sea.",
		}, streaming.SessionContext{
			Thread:    th,
			OnState:   func(streaming.State) { states++ },
			OnMessage: func(chat.Message) { updates++ },
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Complete).To(BeTrue())
		Expect(res.FinishReason).To(Equal(streaming.FinishComplete))
		Expect(strings.TrimSpace(res.Answer)).ToNot(BeEmpty())
		Expect(states).To(BeNumerically(">", 0))
		Expect(updates).To(BeNumerically(">", 0))

		history, err := th.History(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(history).To(HaveLen(2))
		Expect(history[0].Role).To(Equal(chat.RoleUser))
		Expect(history[1].Content).To(Equal(res.Answer))
		Expect(history[1].IsStreaming).To(BeFalse())
	})

	It("should stop when the caller cancels", func() {
		ctx, cancel := context.WithCancel(context.Background())
		req, err := manager.Start(ctx, adapter.Query{Text: "Count slowly from one to two hundred."}, streaming.SessionContext{})
		Expect(err).ToNot(HaveOccurred())
		defer req.Cleanup()

		cancel()
		Eventually(req.Done(), 10*time.Second).Should(BeClosed())
		_, err = req.Outcome()
		Expect(err).To(MatchError(streaming.ErrStopped))
	})
})
