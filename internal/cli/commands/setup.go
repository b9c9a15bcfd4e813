package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/churnwatch/internal/cli/config"
	"github.com/leapstack-labs/churnwatch/internal/cli/output"
	"github.com/leapstack-labs/churnwatch/internal/ingest"
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"github.com/leapstack-labs/churnwatch/internal/state"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Views    *output.Views
	Loader   *ingest.Loader
}

// NewCommandContext creates a CommandContext with a renderer and a dataset loader.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg, err := getConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := config.GetLogger(cmd.Context())

	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
		Views:    output.NewViews(r),
		Loader:   ingest.NewLoader(logger),
	}, nil
}

// Helper functions shared across commands

// getConfig returns the current configuration, loading defaults, env vars and
// the command's flags when the root command did not run first.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig("", cmd.Flags())
}

// dataFile returns the positional file argument or the configured default.
func (c *CommandContext) dataFile(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return c.Cfg.DataFile
}

func (c *CommandContext) pipelineOptions() pipeline.Options {
	return pipeline.Options{Logger: c.Logger}
}

// analyze loads path and aggregates it by the configured period.
func (c *CommandContext) analyze(ctx context.Context, path string) (*pipeline.State, error) {
	span, err := c.Cfg.Span()
	if err != nil {
		return nil, err
	}
	return pipeline.Analyze(ctx, c.Loader, path, span, c.pipelineOptions())
}

// export writes a run to the configured export store. It does nothing when
// no export DSN is configured.
func (c *CommandContext) export(ctx context.Context, save func(*state.Store) (*state.Run, error)) error {
	dsn := c.Cfg.Export.DSN
	if dsn == "" {
		return nil
	}
	store, err := state.Open(ctx, dsn, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to open export store: %w", err)
	}
	defer func() { _ = store.Close() }()

	run, err := save(store)
	if err != nil {
		return fmt.Errorf("failed to export results: %w", err)
	}
	c.Views.Exported(run, dsn)
	return nil
}

// addPeriodFlags registers the aggregation period flags.
func addPeriodFlags(cmd *cobra.Command) {
	cmd.Flags().String("period", "", "Aggregation period (month|quarter|year|custom)")
	cmd.Flags().String("custom-span", "", "Span for --period custom, e.g. 2W, 10D, 6M")

	_ = cmd.RegisterFlagCompletionFunc("period", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"month", "quarter", "year", "custom"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// datasetArgs completes dataset file names.
func datasetArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return []string{"csv", "xlsx"}, cobra.ShellCompDirectiveFilterFileExt
}
