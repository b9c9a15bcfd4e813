package commands

import (
	"errors"

	"github.com/leapstack-labs/churnwatch/internal/state"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List exported analysis runs",
		Long: `List the risk and prediction runs stored in the export database, newest
first. The database is taken from --export or export.dsn.`,
		Example: `  churnwatch history --export sqlite://runs.db
  churnwatch history --limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			dsn := cmdCtx.Cfg.Export.DSN
			if dsn == "" {
				return errors.New("no export database configured: set --export or export.dsn")
			}

			store, err := state.Open(cmd.Context(), dsn, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return cmdCtx.Views.Runs(runs)
		},
	}

	cmd.Flags().String("export", "", "Export database (sqlite://path or postgres://...)")
	cmd.Flags().IntVar(&limit, "limit", state.DefaultListLimit, "Maximum number of runs to list")

	return cmd
}
