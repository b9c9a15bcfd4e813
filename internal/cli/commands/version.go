package commands

import (
	"fmt"

	"github.com/leapstack-labs/churnwatch/internal/ingest"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display churnwatch version, build information and the embedded DuckDB engine version.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "churnwatch v%s\n", version)
			_, _ = fmt.Fprintln(out, "Customer churn risk analysis built with Go and DuckDB")

			engine, err := ingest.EngineVersion(cmd.Context())
			if err != nil {
				_, _ = fmt.Fprintf(out, "engine: DuckDB unavailable (%v)\n", err)
				return
			}
			_, _ = fmt.Fprintf(out, "engine: DuckDB %s\n", engine)
		},
	}
}
