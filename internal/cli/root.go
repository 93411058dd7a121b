package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"BarSync/internal/di"
	"BarSync/pkg/config"
	"BarSync/pkg/server"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string

	// Bootstrap builds the app; tests replace it.
	Bootstrap func(cfg *config.Config) (*server.App, func(), error)
}

// NewRootCommand creates the barsync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Bootstrap: di.InitializeApp}

	cmd := &cobra.Command{
		Use:           "barsync",
		Short:         "Monthly price bar synchronization",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "config/config.yaml", "config file path")

	cmd.AddCommand(
		NewSchemaCommand(opts),
		NewSyncCommand(opts),
		NewAuditCommand(opts),
		NewServeCommand(opts),
	)
	return cmd
}

// withApp loads config, wires the app and tears it down after fn.
func withApp(ctx context.Context, opts *RootOptions, fn func(context.Context, *config.Config, *server.App) error) error {
	cfg, err := config.LoadWithEnv(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	app, cleanup, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()
	defer func() { _ = app.Close() }()

	return fn(ctx, cfg, app)
}
