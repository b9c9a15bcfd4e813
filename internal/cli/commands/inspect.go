package commands

import (
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file]",
		Short: "Load a sales file and show its detected schema",
		Long: `Load a CSV or XLSX sales file, detect which columns hold the customer,
date and quantity, and list the customers found.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # Inspect the default dataset
  churnwatch inspect

  # Inspect a spreadsheet as JSON
  churnwatch inspect sales.xlsx -o json`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: datasetArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			st, err := pipeline.Load(cmd.Context(), cmdCtx.Loader, cmdCtx.dataFile(args), cmdCtx.pipelineOptions())
			if err != nil {
				return err
			}
			return cmdCtx.Views.Summary(st.Summary())
		},
	}
}
