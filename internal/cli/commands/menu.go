package commands

import (
	"github.com/leapstack-labs/churnwatch/internal/cli/config"
	"github.com/leapstack-labs/churnwatch/internal/menu"
	"github.com/spf13/cobra"
)

// NewMenuCommand creates the interactive menu command.
func NewMenuCommand() *cobra.Command {
	var historyFile string

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Start the interactive analysis menu",
		Long: `Start an interactive session that walks through the analysis one step at
a time:

  1. Upload data
  2. Aggregate by period
  3. Visualize a customer's trend
  4. Identify customers at risk
  5. Predict churn risk
  6. Exit

Loaded and aggregated data is kept between options. Blank answers take
the configured defaults.

Controls:
  - Use arrow keys to navigate history
  - Tab completes periods and options
  - Ctrl+C cancels the current question
  - Ctrl+D or 6 exits`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			cfg := cmdCtx.Cfg

			thresholdPct := config.DefaultThresholdPct
			if cfg.Risk.ThresholdPct != nil {
				thresholdPct = *cfg.Risk.ThresholdPct
			}

			m := menu.New(menu.Config{
				Loader: cmdCtx.Loader,
				View:   cmdCtx.Views,
				Out:    cmd.OutOrStdout(),
				Logger: cmdCtx.Logger,
				Defaults: menu.Defaults{
					DataFile:     cfg.DataFile,
					Period:       cfg.Period,
					ThresholdPct: thresholdPct,
					Churn:        cfg.ChurnOptions(),
					Train:        cfg.TrainConfig(),
					Forest:       cfg.ForestConfig(),
				},
			})

			prompter, err := menu.NewReadlinePrompter(historyFile)
			if err != nil {
				return err
			}
			defer func() { _ = prompter.Close() }()

			return m.Run(cmd.Context(), prompter)
		},
	}

	cmd.Flags().StringVar(&historyFile, "history-file", "", "File to keep answer history in")

	return cmd
}
