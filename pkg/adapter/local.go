package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/event"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/transport"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LocalEndpoint is the pseudo endpoint served by LocalDialer
const LocalEndpoint = "local://model"

// LocalRequest is the frame sent to an in-process model
type LocalRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// Local drives a langchaingo model in-process instead of a remote backend.
// It must be paired with a LocalDialer.
type Local struct {
	decoder *event.Decoder
}

func NewLocal() *Local {
	return &Local{decoder: event.NewDecoder(nil)}
}

func (l *Local) Name() string     { return "local" }
func (l *Local) Endpoint() string { return LocalEndpoint }

func (l *Local) BuildRequest(q Query, sessionID string) any {
	return LocalRequest{Prompt: q.Text, SessionID: sessionID, ThreadID: q.ThreadID}
}

func (l *Local) Decode(frame []byte) (event.Event, error) {
	return l.decoder.Decode(frame)
}

// NewLocalModel creates the Ollama model configured for the local adapter
func NewLocalModel(cfg config.LocalConfig) (llms.Model, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.URL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.URL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return llm, nil
}

// LocalDialer serves connections backed by a langchaingo model. Each
// request frame starts one generation whose chunks are framed like a
// remote backend would send them.
type LocalDialer struct {
	Model        llms.Model
	SystemPrompt string
}

func (d *LocalDialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	if d.Model == nil {
		return nil, fmt.Errorf("local dialer has no model")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithCancel(context.Background())
	c := &localConn{
		dialer: d,
		ctx:    genCtx,
		cancel: cancel,
		frames: make(chan localFrame, 64),
		closed: make(chan struct{}),
		log:    logger.WithComponent("local_conn"),
	}
	c.emit(map[string]any{"type": string(event.KindConnectionConfirmed)})
	return c, nil
}

type localFrame struct {
	data []byte
	err  error
}

type localConn struct {
	dialer *LocalDialer
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool

	frames    chan localFrame
	closed    chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

func (c *localConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return transport.ErrConnClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var peek struct {
		Type string `json:"type"`
		LocalRequest
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return err
	}
	if peek.Type == "ping" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("local connection already serving a request")
	}
	c.started = true

	go c.generate(peek.LocalRequest)
	return nil
}

func (c *localConn) generate(req LocalRequest) {
	messageID := "local-" + uuid.New().String()
	threadID := req.ThreadID
	if threadID == "" {
		threadID = req.SessionID
	}

	var messages []llms.MessageContent
	if c.dialer.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, c.dialer.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	c.log.Debug("Starting local generation", "message_id", messageID, "prompt_length", len(req.Prompt))

	streamed := false
	response, err := c.dialer.Model.GenerateContent(c.ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			return c.emit(map[string]any{
				"type":      string(event.KindContentChunk),
				"id":        messageID,
				"thread_id": threadID,
				"agent":     string(chat.AgentReporter),
				"role":      string(chat.RoleAssistant),
				"content":   string(chunk),
			})
		}),
	)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.log.Error("Local generation failed", "error", err)
		c.emit(map[string]any{"type": string(event.KindError), "error": err.Error()})
		c.finish(transport.CloseInternalError, "generation failed")
		return
	}

	// Some models ignore the streaming func
	if !streamed && response != nil && len(response.Choices) > 0 {
		content := response.Choices[0].Content
		if strings.TrimSpace(content) != "" {
			c.emit(map[string]any{
				"type":      string(event.KindContentChunk),
				"id":        messageID,
				"thread_id": threadID,
				"agent":     string(chat.AgentReporter),
				"role":      string(chat.RoleAssistant),
				"content":   content,
			})
		}
	}

	c.emit(map[string]any{
		"type":          string(event.KindDone),
		"id":            messageID,
		"thread_id":     threadID,
		"finish_reason": string(chat.FinishStop),
	})
	c.emit(map[string]any{"type": string(event.KindComplete)})
	c.finish(transport.CloseNormal, "")
}

func (c *localConn) emit(frame map[string]any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case c.frames <- localFrame{data: data}:
		return nil
	case <-c.closed:
		return transport.ErrConnClosed
	}
}

func (c *localConn) finish(code int, reason string) {
	select {
	case c.frames <- localFrame{err: &transport.CloseError{Code: code, Reason: reason}}:
	case <-c.closed:
	}
}

func (c *localConn) ReadFrame() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, transport.ErrConnClosed
	case f := <-c.frames:
		return f.data, f.err
	}
}

func (c *localConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.log.Debug("Closing local connection", "code", code, "reason", reason)
		c.cancel()
		close(c.closed)
	})
	return nil
}
