package commands

import (
	"github.com/spf13/cobra"
)

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "aggregate [file]",
		Short: "Sum sales per customer and period",
		Long: `Aggregate a sales file into one row per customer and period with total
and average kilograms, tonnes and purchase counts. The aggregated totals are
checked against the source rows and any mismatch is reported.`,
		Example: `  # Monthly totals
  churnwatch aggregate sales.csv

  # Quarterly totals, first 20 rows
  churnwatch aggregate sales.csv --period quarter --limit 20

  # Two week buckets
  churnwatch aggregate sales.csv --period custom --custom-span 2W`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: datasetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			st, err := cmdCtx.analyze(cmd.Context(), cmdCtx.dataFile(args))
			if err != nil {
				return err
			}
			return cmdCtx.Views.Aggregation(st.Aggregation, limit)
		},
	}

	addPeriodFlags(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many rows (0 for all)")

	return cmd
}
