package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/killallgit/scout/pkg/adapter"
	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/replay"
	"github.com/killallgit/scout/pkg/transport"
	"github.com/spf13/cobra"
)

var researchFlags struct {
	researchType string
	scope        string
	depth        string
	urgency      string
	threadID     string
	feedback     string
	record       string
}

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run a research query and stream the answer",
	Long: `Send a research query to the configured backend, show progress while agents
work and print the final answer with its sources. Use --thread to continue a
stored thread and --record to save the raw stream as a replayable transcript.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := newApp(config.Get(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		q := adapter.Query{
			Text:              strings.Join(args, " "),
			ResearchType:      researchFlags.researchType,
			Scope:             researchFlags.scope,
			Depth:             researchFlags.depth,
			Urgency:           researchFlags.urgency,
			ThreadID:          researchFlags.threadID,
			InterruptFeedback: researchFlags.feedback,
		}

		var d transport.Dialer
		if d, err = a.dialer(); err != nil {
			return err
		}
		var rec *replay.Recorder
		if researchFlags.record != "" {
			name := strings.TrimSuffix(filepath.Base(researchFlags.record), filepath.Ext(researchFlags.record))
			rec = replay.NewRecorder(d, name)
			rec.SetQuery(a.adapter.Name(), q.Text)
			d = rec
		}

		th, err := a.thread(ctx, researchFlags.threadID)
		if err != nil {
			return err
		}

		_, runErr := a.run(ctx, d, q, th)
		if rec != nil {
			if err := rec.Transcript().Save(researchFlags.record); err != nil {
				a.log.Error("Failed to save transcript", "path", researchFlags.record, "error", err)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "transcript saved to %s\n", researchFlags.record)
			}
		}
		if runErr == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "thread %s\n", th.ID())
		}
		return runErr
	},
}

func init() {
	f := researchCmd.Flags()
	f.StringVar(&researchFlags.researchType, "type", "", "research type hint, e.g. market or technical")
	f.StringVar(&researchFlags.scope, "scope", "", "research scope hint")
	f.StringVar(&researchFlags.depth, "depth", "", "research depth hint, e.g. quick or deep")
	f.StringVar(&researchFlags.urgency, "urgency", "", "urgency hint")
	f.StringVarP(&researchFlags.threadID, "thread", "t", "", "continue an existing thread")
	f.StringVar(&researchFlags.feedback, "feedback", "", "answer to a pending plan interrupt, e.g. accepted or edit_plan")
	f.StringVar(&researchFlags.record, "record", "", "save the raw stream to a transcript file")

	rootCmd.AddCommand(researchCmd)
}
