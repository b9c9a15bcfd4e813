package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/churnwatch/internal/state"
	"github.com/spf13/cobra"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 100 * time.Millisecond

// NewRiskCommand creates the risk command.
func NewRiskCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "risk [file]",
		Short: "Flag customers whose latest purchases dropped below their trend",
		Long: `Compare every customer's most recent period against the average of the
three periods before it and flag drops at or above the threshold.

Use --threshold-pct for a percentage drop (default 30) or --threshold-value
for an absolute drop in tonnes. The two are mutually exclusive.`,
		Example: `  # Flag drops of 30% or more
  churnwatch risk sales.csv

  # Flag drops of at least half a tonne and store the result
  churnwatch risk sales.csv --threshold-value 0.5 --export sqlite://runs.db

  # Re-run whenever the file changes
  churnwatch risk sales.csv --watch`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: datasetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			path := cmdCtx.dataFile(args)

			if err := runRisk(cmd.Context(), cmdCtx, path); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmdCtx.Renderer.Muted(fmt.Sprintf("Watching %s for changes (Ctrl+C to stop)", path))
			return watchDataset(ctx, cmdCtx, path, func() error {
				return runRisk(ctx, cmdCtx, path)
			})
		},
	}

	addPeriodFlags(cmd)
	cmd.Flags().Float64("threshold-pct", 0, "Flag drops of at least this percentage (default 30)")
	cmd.Flags().Float64("threshold-value", 0, "Flag drops of at least this many tonnes")
	cmd.Flags().String("export", "", "Export flags to a database (sqlite://path or postgres://...)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run when the file changes")
	cmd.MarkFlagsMutuallyExclusive("threshold-pct", "threshold-value")

	return cmd
}

func runRisk(ctx context.Context, cmdCtx *CommandContext, path string) error {
	rule, err := cmdCtx.Cfg.RiskRule()
	if err != nil {
		return err
	}
	st, err := cmdCtx.analyze(ctx, path)
	if err != nil {
		return err
	}
	flags, err := st.AtRisk(rule)
	if err != nil {
		return err
	}
	if err := cmdCtx.Views.Risk(rule, flags); err != nil {
		return err
	}

	return cmdCtx.export(ctx, func(store *state.Store) (*state.Run, error) {
		return store.SaveRiskRun(ctx, state.RunInfo{
			Source:     path,
			Period:     st.Aggregation.Span.String(),
			Parameters: rule.String(),
		}, flags)
	})
}

// watchDataset calls run after every write to path until ctx is done.
// Failed runs are reported and watching continues.
func watchDataset(ctx context.Context, cmdCtx *CommandContext, path string, run func() error) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace the file on save, so watch its directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name, err := filepath.Abs(event.Name); err != nil || name != target {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
			} else {
				debounce.Reset(watchDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			cmdCtx.Logger.Debug("dataset changed, re-running", "file", path)
			if err := run(); err != nil {
				cmdCtx.Logger.Error("risk run failed", "error", err)
				cmdCtx.Renderer.Error(err.Error())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cmdCtx.Logger.Error("watcher error", "error", err)
		}
	}
}
