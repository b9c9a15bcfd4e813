package commands

import (
	"github.com/spf13/cobra"
)

// TrendsOptions holds options for the trends command.
type TrendsOptions struct {
	Customer string
	From     string
	To       string
}

// NewTrendsCommand creates the trends command.
func NewTrendsCommand() *cobra.Command {
	opts := &TrendsOptions{}

	cmd := &cobra.Command{
		Use:   "trends [file]",
		Short: "Show one customer's purchase history with rolling statistics",
		Long: `Show a customer's aggregated purchases per period together with the
three period rolling mean and standard deviation of earlier periods.

--from and --to take YYYY-MM bounds. Invalid bounds are ignored.`,
		Example: `  churnwatch trends sales.csv --customer CLT_001
  churnwatch trends sales.csv --customer CLT_001 --from 2023-01 --to 2023-12`,
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
			rows, err := st.Trends(opts.Customer, opts.From, opts.To)
			if err != nil {
				return err
			}
			return cmdCtx.Views.Trends(opts.Customer, rows)
		},
	}

	addPeriodFlags(cmd)
	cmd.Flags().StringVar(&opts.Customer, "customer", "", "Customer ID")
	cmd.Flags().StringVar(&opts.From, "from", "", "First period to show (YYYY-MM)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Last period to show (YYYY-MM)")
	_ = cmd.MarkFlagRequired("customer")

	return cmd
}
