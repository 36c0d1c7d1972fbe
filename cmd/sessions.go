package cmd

import (
	"fmt"

	"github.com/killallgit/scout/pkg/config"
	"github.com/killallgit/scout/pkg/thread"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions [thread]",
	Short: "List stored threads and their research sessions",
	Long: `Without arguments, list every stored thread with its research sessions.
With a thread id, show that thread's sessions and messages.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(config.Get(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		ids := args
		if len(ids) == 0 {
			if ids, err = a.store.Threads(ctx); err != nil {
				return fmt.Errorf("failed to list threads: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stored threads")
				return nil
			}
		}

		for _, id := range ids {
			th, err := thread.Load(ctx, id, a.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "thread %s\n", id)
			tracker := th.Tracker()
			for _, s := range tracker.Sessions() {
				fmt.Fprint(cmd.OutOrStdout(), a.renderer.Session(s, tracker.Status(s.ID)))
			}

			if len(args) == 0 {
				continue
			}
			history, err := th.History(ctx)
			if err != nil {
				return err
			}
			for _, msg := range history {
				fmt.Fprint(cmd.OutOrStdout(), a.renderer.Message(msg))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
