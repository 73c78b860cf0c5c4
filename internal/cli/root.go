// Package cli provides the support command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"support-router/internal/app"
	"support-router/internal/config"
)

// Version is set at build time.
var Version = "0.1.0"

// env is shared by every subcommand of one invocation.
type env struct {
	configPath string
	logLevel   string

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error

	stdin  io.Reader
	stdout io.Writer

	// newApp is replaced in tests to inject offline backends.
	newApp func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)
}

func (e *env) open(ctx context.Context) (*app.App, error) {
	a, err := e.newApp(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	return a, nil
}

// NewRootCmd builds the command tree reading from stdin and writing to stdout.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&env{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		newApp: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error) {
			return app.New(ctx, cfg, logger)
		},
	})
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "support",
		Short: "Multi-agent customer support router",
		Long: `Support routes customer messages through a classifier and a team of
specialist workers (account, action, knowledge) backed by the CultPass
customer database, the support ticket database and a help-article index.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return err
			}
			if e.logLevel != "" {
				cfg.Log.Level = e.logLevel
			}
			e.cfg = cfg
			e.logger, e.closeLog = config.SetupLogger(cfg.Log.File, config.ParseLevel(cfg.Log.Level))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if e.closeLog != nil {
				return e.closeLog()
			}
			return nil
		},
	}
	root.SetIn(e.stdin)
	root.SetOut(e.stdout)

	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(e),
		newChatCmd(e),
		newIndexCmd(e),
		newSeedCmd(e),
		newToolCmd(e),
	)
	return root
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
