package commands

import (
	"fmt"

	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"github.com/leapstack-labs/churnwatch/internal/state"
	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/spf13/cobra"
)

// NewPredictCommand creates the predict command.
func NewPredictCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict [file]",
		Short: "Train a churn model and list customers likely to stop buying",
		Long: `Aggregate the file by month, label each customer month as churned when the
customer has gone longer than the inactivity threshold without buying, and
train a random forest on the rolling purchase features.

The inactivity threshold is derived from the data unless --inactivity sets
a fixed number of months. The report includes held-out evaluation metrics,
feature importances and every customer whose churn probability exceeds the
cutoff.`,
		Example: `  churnwatch predict sales.csv
  churnwatch predict sales.csv --inactivity 3 --trees 200 --seed 7
  churnwatch predict sales.csv -o json --export postgres://localhost/churn`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: datasetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := cmdCtx.Cfg
			path := cmdCtx.dataFile(args)

			st, err := pipeline.Analyze(ctx, cmdCtx.Loader, path, core.Monthly, cmdCtx.pipelineOptions())
			if err != nil {
				return err
			}
			report, err := st.PredictChurn(cfg.ChurnOptions(), cfg.TrainConfig(), classifier.NewForest(cfg.ForestConfig()))
			if err != nil {
				return err
			}
			if err := cmdCtx.Views.Churn(report); err != nil {
				return err
			}

			return cmdCtx.export(ctx, func(store *state.Store) (*state.Run, error) {
				return store.SavePredictionRun(ctx, state.RunInfo{
					Source:     path,
					Period:     core.Monthly.String(),
					Parameters: predictParameters(report.Threshold, string(report.ThresholdSource), cfg.TrainConfig().Cutoff),
				}, report.AtRisk)
			})
		},
	}

	cmd.Flags().Int("inactivity", 0, "Months without purchase that count as churn (0 derives it from the data)")
	cmd.Flags().Float64("test-size", 0, "Fraction of rows held out for evaluation (default 0.2)")
	cmd.Flags().Int("trees", 0, "Number of trees in the forest (default 100)")
	cmd.Flags().Uint64("seed", 0, "Random seed for the split and the forest (default 42)")
	cmd.Flags().Float64("cutoff", 0, "Probability above which a customer is at risk (default 0.5)")
	cmd.Flags().String("export", "", "Export predictions to a database (sqlite://path or postgres://...)")

	return cmd
}

func predictParameters(threshold float64, source string, cutoff float64) string {
	return fmt.Sprintf("inactivity > %g months (%s), cutoff %g", threshold, source, cutoff)
}
