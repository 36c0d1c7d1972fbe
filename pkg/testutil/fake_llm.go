package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// FakeLLM implements a fake streaming language model for testing
type FakeLLM struct {
	mu           sync.Mutex
	responses    [][]string
	currentIndex int
	callCount    int
	lastPrompt   string
	errorOnCall  int // If > 0, return error on this call number
	errorMessage string
	block        bool
}

// NewFakeLLM creates a fake LLM that streams each response as one chunk
func NewFakeLLM(responses ...string) *FakeLLM {
	f := &FakeLLM{}
	for _, r := range responses {
		f.responses = append(f.responses, []string{r})
	}
	return f
}

// NewChunkedLLM creates a fake LLM that streams the given chunks in order
func NewChunkedLLM(chunks ...string) *FakeLLM {
	return &FakeLLM{responses: [][]string{chunks}}
}

// Call implements llms.Model
func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// GenerateContent streams the next configured response through the
// streaming func, if any, and returns the full text
func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var parts []string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				parts = append(parts, text.Text)
			}
		}
	}

	chunks, block, err := f.next(strings.Join(parts, "\n"))
	if err != nil {
		return nil, err
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    strings.Join(chunks, ""),
				StopReason: "stop",
			},
		},
	}, nil
}

func (f *FakeLLM) next(prompt string) ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCount++
	f.lastPrompt = prompt

	if f.errorOnCall > 0 && f.callCount == f.errorOnCall {
		if f.errorMessage != "" {
			return nil, false, fmt.Errorf("%s", f.errorMessage)
		}
		return nil, false, fmt.Errorf("fake error on call %d", f.callCount)
	}

	if len(f.responses) == 0 {
		return nil, false, fmt.Errorf("no responses configured")
	}

	chunks := f.responses[f.currentIndex]
	f.currentIndex = (f.currentIndex + 1) % len(f.responses)
	return chunks, f.block, nil
}

// SetErrorOnCall configures the LLM to return an error on a specific call
func (f *FakeLLM) SetErrorOnCall(callNumber int, errorMessage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorOnCall = callNumber
	f.errorMessage = errorMessage
}

// SetBlocking makes generation hang after streaming until its context ends
func (f *FakeLLM) SetBlocking(block bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = block
}

// GetCallCount returns the number of generations
func (f *FakeLLM) GetCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

// GetLastPrompt returns the text of the last generation request
func (f *FakeLLM) GetLastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPrompt
}
