package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/killallgit/scout/pkg/adapter"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/replay"
	"github.com/killallgit/scout/pkg/store"
	"github.com/killallgit/scout/pkg/thread"
	"github.com/spf13/cobra"
)

var replayFlags struct {
	watch    bool
	debounce time.Duration
}

var replayCmd = &cobra.Command{
	Use:   "replay <transcript>",
	Short: "Play a recorded transcript through the streaming client",
	Long: `Replay feeds the frames of a YAML transcript through the same decoding,
merging and rendering path as a live research request. With --watch the
transcript is replayed again every time the file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		cfg := *config.Get()

		if !replayFlags.watch {
			t, err := replay.Load(path)
			if err != nil {
				return err
			}
			return replayTranscript(cmd.Context(), cmd, cfg, t)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return replay.Watch(ctx, path, replayFlags.debounce, func(t *replay.Transcript) {
			fmt.Fprintf(cmd.OutOrStdout(), "--- %s ---\n", path)
			if err := replayTranscript(ctx, cmd, cfg, t); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
		})
	},
}

func replayTranscript(ctx context.Context, cmd *cobra.Command, cfg config.Config, t *replay.Transcript) error {
	if t.Adapter != "" {
		cfg.Backend.Adapter = t.Adapter
	}
	// replays never touch the configured store
	cfg.Store = config.StoreConfig{Driver: "memory"}

	a, err := newApp(&cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	th := thread.New("", store.NewMemory())
	_, err = a.run(ctx, replay.NewDialer(t), adapter.Query{Text: t.Query}, th)
	return err
}

func init() {
	replayCmd.Flags().BoolVarP(&replayFlags.watch, "watch", "w", false, "replay again whenever the transcript changes")
	replayCmd.Flags().DurationVar(&replayFlags.debounce, "debounce", 200*time.Millisecond, "wait this long after a change before replaying")

	rootCmd.AddCommand(replayCmd)
}
