package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"support-router/internal/store"
)

func newSeedCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load users, reservations and articles from a YAML fixture",
		Long: `Load experiences, users, subscriptions, reservations and knowledge articles
from a YAML fixture into the customer and support databases. Run
"support index" afterwards to embed the articles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := store.LoadFixture(args[0])
			if err != nil {
				return err
			}

			customers, err := store.OpenCustomerStore(e.cfg.Store.CustomerDBPath)
			if err != nil {
				return err
			}
			defer customers.Close()
			support, err := store.OpenSupportStore(e.cfg.Store.SupportDBPath, e.cfg.AccountID)
			if err != nil {
				return err
			}
			defer support.Close()

			if err := customers.Seed(ctx, f); err != nil {
				return err
			}
			n, err := support.SeedArticles(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d users and %d articles.\n", len(f.Users), n)
			return nil
		},
	}
}
