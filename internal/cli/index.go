package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"support-router/internal/app"
)

func newIndexCmd(e *env) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the help-article index",
		Long: `Rebuild the embedding index from the knowledge articles in the support
database. The rebuild replaces the whole collection.

With --schedule the rebuild runs once immediately and then on the given
5-field cron expression until interrupted.

Examples:
  support index
  support index --schedule "0 3 * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schedule == "" {
				schedule = e.cfg.Index.Schedule
			}
			schedule = strings.TrimSpace(schedule)
			if schedule != "" {
				if _, err := cron.ParseStandard(schedule); err != nil {
					return fmt.Errorf("invalid schedule %q: %w", schedule, err)
				}
			}

			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d articles into %s.\n", n, a.Index.Collection())
			if schedule == "" {
				return nil
			}
			return runScheduled(cmd.Context(), a, schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression for periodic rebuilds (default index.schedule)")
	return cmd
}

// runScheduled rebuilds the index on schedule until ctx is done. Failed
// rebuilds are logged and retried at the next tick.
func runScheduled(ctx context.Context, a *app.App, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := a.Reindex(ctx); err != nil {
			a.Logger.Error("scheduled reindex failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule reindex: %w", err)
	}
	a.Logger.Info("reindex scheduled", "schedule", schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
