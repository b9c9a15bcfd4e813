package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/churnwatch/internal/server"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start a JSON API exposing upload, aggregate, visualize, identify-risk and
predict-risk under /api, plus /healthz and Prometheus metrics at /metrics.

Every request names its file and parameters and runs its own analysis.
When --data-dir is set, request paths are resolved inside it and may not
escape it.`,
		Example: `  churnwatch serve
  churnwatch serve --addr 127.0.0.1:9000 --data-dir ./data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			cfg := cmdCtx.Cfg

			srv := server.NewServer(server.Config{
				Addr:    cfg.Server.Addr,
				DataDir: cfg.Server.DataDir,
				Loader:  cmdCtx.Loader,
				Logger:  cmdCtx.Logger,
				Defaults: server.Defaults{
					DataFile:   cfg.DataFile,
					Period:     cfg.Period,
					CustomSpan: cfg.CustomSpan,
					Churn:      cfg.ChurnOptions(),
					Train:      cfg.TrainConfig(),
					Forest:     cfg.ForestConfig(),
				},
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmdCtx.Renderer.Success(fmt.Sprintf("Serving on %s", cfg.Server.Addr))
			cmdCtx.Renderer.Muted("Press Ctrl+C to stop")
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default :8080)")
	cmd.Flags().String("data-dir", "", "Directory request file paths are confined to")
	addPeriodFlags(cmd)

	return cmd
}
