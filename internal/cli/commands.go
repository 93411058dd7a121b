package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"BarSync/internal/usecase"
	"BarSync/pkg/config"
	applogger "BarSync/pkg/logger"
	"BarSync/pkg/server"
)

func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the bar table and the monthly change view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, _ *config.Config, app *server.App) error {
				if err := app.InitSchema(ctx); err != nil {
					return err
				}
				app.Logger().Info("schema ready")
				return nil
			})
		},
	}
}

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	Groups      []string
	Concurrency int
	Incremental bool
	Serve       bool
}

// RunRequest merges flags over config; flags win only when set.
func (o *SyncOptions) RunRequest(cmd *cobra.Command, cfg *config.Config) usecase.RunRequest {
	req := usecase.RunRequest{
		Groups:      cfg.Sync.Groups,
		Concurrency: cfg.Sync.Concurrency,
		Incremental: cfg.Sync.Incremental,
	}
	if cmd.Flags().Changed("group") {
		req.Groups = o.Groups
	}
	if cmd.Flags().Changed("concurrency") {
		req.Concurrency = o.Concurrency
	}
	if cmd.Flags().Changed("incremental") {
		req.Incremental = o.Incremental
	}
	return req
}

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	so := &SyncOptions{}
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download, normalize and upsert bars for the active universe",
		Long: `Synchronize bars for every active identifier, or only the given groups.

Per-symbol failures are written to failed_<YYYY.MM>.csv/json and never
fail the command. A universe or schema error exits non-zero.

Example:
  barsync sync --group Tech --group Energy --concurrency 4
  barsync sync --incremental=false --serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, cfg *config.Config, app *server.App) error {
				if so.Serve || cfg.Server.Enabled {
					if err := app.StartServer(); err != nil {
						return err
					}
				}
				report, err := app.RunSync(ctx, so.RunRequest(cmd, cfg))
				if err != nil {
					return err
				}
				app.Logger().Info("sync report",
					applogger.String("run_id", report.RunID),
					applogger.Int("failed", report.Manifest.Len()),
					applogger.Strings("artifacts", report.Artifacts),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&so.Groups, "group", nil, "group to sync (repeatable; default all)")
	cmd.Flags().IntVar(&so.Concurrency, "concurrency", 1, "parallel workers")
	cmd.Flags().BoolVar(&so.Incremental, "incremental", true, "skip symbols already at the target period")
	cmd.Flags().BoolVar(&so.Serve, "serve", false, "keep the ops server up during the run")
	return cmd
}

func NewAuditCommand(opts *RootOptions) *cobra.Command {
	var threshold time.Duration
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Classify stored series as OK, Stale, Empty or Error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, cfg *config.Config, app *server.App) error {
				t := cfg.Audit.Threshold
				if cmd.Flags().Changed("threshold") {
					t = threshold
				}
				report, err := app.RunAudit(ctx, t)
				if err != nil {
					return err
				}
				app.Logger().Info("audit report",
					applogger.Int("series", len(report.All)),
					applogger.Int("needs_attention", len(report.NeedsAttention)),
					applogger.Strings("artifacts", report.Artifacts),
				)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&threshold, "threshold", 45*24*time.Hour, "staleness threshold (default audit.threshold)")
	return cmd
}

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, _ *config.Config, app *server.App) error {
				return app.Serve(ctx)
			})
		},
	}
}
