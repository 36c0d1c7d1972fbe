package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/scout/pkg/adapter"
	"github.com/killallgit/scout/pkg/chat"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/logger"
	"github.com/killallgit/scout/pkg/render"
	"github.com/killallgit/scout/pkg/sources"
	"github.com/killallgit/scout/pkg/store"
	"github.com/killallgit/scout/pkg/store/sqlite"
	"github.com/killallgit/scout/pkg/streaming"
	"github.com/killallgit/scout/pkg/thinking"
	"github.com/killallgit/scout/pkg/thread"
	"github.com/killallgit/scout/pkg/transport"
	"github.com/spf13/viper"
)

const fallbackMessage = "unable to process request, please retry"

// app bundles the collaborators a command needs to run research requests
type app struct {
	cfg      *config.Config
	adapter  adapter.Adapter
	store    store.ThreadStore
	index    *sources.Index
	renderer *render.Renderer
	out      io.Writer
	errOut   io.Writer
	log      *logger.Logger
}

func newApp(cfg *config.Config, out, errOut io.Writer) (*app, error) {
	a, err := adapter.New(cfg.Backend)
	if err != nil {
		return nil, err
	}

	s, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	var index *sources.Index
	if cfg.Sources.SemanticIndex {
		embed, err := sources.NewEmbeddingFunc(cfg.Sources.Embedder)
		if err != nil {
			s.Close()
			return nil, err
		}
		if index, err = sources.NewIndex(embed); err != nil {
			s.Close()
			return nil, err
		}
	}

	return &app{
		cfg:     cfg,
		adapter: a,
		store:   s,
		index:   index,
		renderer: render.New(render.Options{
			Width:        100,
			Color:        viper.GetBool("color"),
			ShowThinking: cfg.ShowThinking,
			Markers:      markers(cfg.Thinking),
		}),
		out:    out,
		errOut: errOut,
		log:    logger.WithComponent("cli"),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// openStore returns the thread store named by the config
func openStore(cfg config.StoreConfig) (store.ThreadStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return store.NewMemory(), nil
	case "sqlite":
		s, err := sqlite.Open(config.ResolvePath(cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to open thread store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func markers(cfg config.ThinkingConfig) []thinking.Marker {
	if cfg.OpenTag == "" || cfg.CloseTag == "" {
		return nil
	}
	out := []thinking.Marker{{Open: cfg.OpenTag, Close: cfg.CloseTag}}
	for _, m := range thinking.DefaultMarkers {
		if m.Open != cfg.OpenTag {
			out = append(out, m)
		}
	}
	return out
}

// dialer returns the transport for the configured adapter
func (a *app) dialer() (transport.Dialer, error) {
	if a.adapter.Endpoint() == adapter.LocalEndpoint {
		model, err := adapter.NewLocalModel(a.cfg.Local)
		if err != nil {
			return nil, err
		}
		return &adapter.LocalDialer{Model: model, SystemPrompt: a.cfg.Local.SystemPrompt}, nil
	}
	return transport.NewWebSocketDialer(a.cfg.Backend.HandshakeTimeout, a.cfg.Backend.Headers), nil
}

// thread loads a stored thread, or starts a fresh one when id is empty
func (a *app) thread(ctx context.Context, id string) (*thread.Thread, error) {
	if id == "" {
		return thread.New("", a.store), nil
	}
	return thread.Load(ctx, id, a.store)
}

// run streams one query to completion and prints the outcome
func (a *app) run(ctx context.Context, d transport.Dialer, q adapter.Query, th *thread.Thread) (streaming.Result, error) {
	opts := streaming.OptionsFromConfig(a.cfg.Backend)
	opts.SourceIndex = a.index

	before, err := th.History(ctx)
	if err != nil {
		return streaming.Result{}, err
	}

	var last streaming.State
	phase := ""
	m := streaming.NewManager(a.adapter, d, opts)
	defer m.Close()

	res, err := m.StartStreaming(ctx, q, streaming.SessionContext{
		Thread: th,
		OnState: func(s streaming.State) {
			last = s
			if s.Phase != "" && s.Phase != phase {
				phase = s.Phase
				fmt.Fprint(a.errOut, a.renderer.State(s))
			}
		},
	})
	if err != nil {
		a.log.Warn("Research request rejected", "error", err)
		if errors.Is(err, streaming.ErrStopped) {
			fmt.Fprintln(a.errOut, "request stopped")
		} else {
			fmt.Fprintln(a.errOut, fallbackMessage)
		}
		return res, err
	}

	a.printMessages(ctx, th, len(before)+1, res)
	if len(last.Sources) > 0 {
		fmt.Fprintln(a.out)
		fmt.Fprint(a.out, a.renderer.Sources(last.Sources))
	}

	switch res.FinishReason {
	case streaming.FinishTimeout:
		fmt.Fprintln(a.errOut, "partial answer: deadline reached before the research finished")
	case streaming.FinishClosed:
		fmt.Fprintln(a.errOut, "partial answer: the backend closed the stream before completing")
	}
	return res, nil
}

// printMessages renders the backend messages added by this request. The
// answer is printed on its own when no message carries it.
func (a *app) printMessages(ctx context.Context, th *thread.Thread, from int, res streaming.Result) {
	history, err := th.History(ctx)
	if err != nil {
		a.log.Error("Failed to read thread history", "error", err)
		history = nil
	}

	shown := false
	for i := from; i < len(history); i++ {
		msg := history[i]
		if msg.Role == chat.RoleUser {
			continue
		}
		fmt.Fprint(a.out, a.renderer.Message(msg))
		if strings.TrimSpace(msg.Content) == strings.TrimSpace(res.Answer) {
			shown = true
		}
	}
	if !shown && res.Answer != "" {
		fmt.Fprintln(a.out, res.Answer)
	}
}
