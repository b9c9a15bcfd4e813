package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/churnwatch/internal/cli/config"
	"github.com/leapstack-labs/churnwatch/internal/cli/output"
	clitest "github.com/leapstack-labs/churnwatch/internal/cli/testutil"
	"github.com/leapstack-labs/churnwatch/internal/testutil"
	"github.com/leapstack-labs/churnwatch/pkg/core"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs cmd with args in the given output mode and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, mode string, args ...string) (string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	t.Setenv("CHURNWATCH_OUTPUT", mode)

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), s)
	return v
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{cmd: NewInspectCommand(), use: "inspect [file]"},
		{cmd: NewAggregateCommand(), use: "aggregate [file]", flags: []string{"period", "custom-span", "limit"}},
		{cmd: NewTrendsCommand(), use: "trends [file]", flags: []string{"customer", "from", "to", "period"}},
		{cmd: NewRiskCommand(), use: "risk [file]", flags: []string{"threshold-pct", "threshold-value", "export", "watch", "period"}},
		{cmd: NewPredictCommand(), use: "predict [file]", flags: []string{"inactivity", "test-size", "trees", "seed", "cutoff", "export"}},
		{cmd: NewServeCommand(), use: "serve", flags: []string{"addr", "data-dir"}},
		{cmd: NewMenuCommand(), use: "menu", flags: []string{"history-file"}},
		{cmd: NewHistoryCommand(), use: "history", flags: []string{"export", "limit"}},
		{cmd: NewConfigCommand(), use: "config"},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			assert.Equal(t, tt.use, tt.cmd.Use)
			assert.NotEmpty(t, tt.cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, tt.cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, tt.cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestInspectCommand(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	out, err := execute(t, NewInspectCommand(), "json", ds.Sales)
	require.NoError(t, err)

	summary := decode[map[string]any](t, out)
	assert.EqualValues(t, 5, summary["rows"])
	mapping := summary["mapping"].(map[string]any)
	assert.Equal(t, "CLIENTE_ANONIMO", mapping["customer_col"])
	assert.Equal(t, "VENTAS_KG", mapping["quantity_col"])
	assert.Len(t, summary["customers"], 3)
}

func TestInspectCommand_Errors(t *testing.T) {
	ds := clitest.SetupTestDataset(t)
	notes := filepath.Join(ds.Dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("a,b\n1,2\n"), 0600))

	_, err := execute(t, NewInspectCommand(), "json", filepath.Join(ds.Dir, "missing.csv"))
	assert.Error(t, err)

	_, err = execute(t, NewInspectCommand(), "json", notes)
	assert.ErrorContains(t, err, "only CSV or XLSX")
}

func TestAggregateCommand(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	tests := []struct {
		name        string
		args        []string
		wantPeriod  string
		wantTotal   int
		wantRecords int
	}{
		{name: "monthly", args: []string{ds.Sales}, wantPeriod: "M", wantTotal: 5, wantRecords: 5},
		{name: "quarterly", args: []string{ds.Sales, "--period", "quarter"}, wantPeriod: "Q", wantTotal: 4, wantRecords: 4},
		{name: "limited", args: []string{ds.Sales, "--limit", "2"}, wantPeriod: "M", wantTotal: 5, wantRecords: 2},
		{name: "custom span", args: []string{ds.Sales, "--period", "custom", "--custom-span", "2M"}, wantPeriod: "2M", wantTotal: 4, wantRecords: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewAggregateCommand(), "json", tt.args...)
			require.NoError(t, err)

			got := decode[struct {
				Period     string `json:"period"`
				Total      int    `json:"total"`
				Validation struct {
					Valid           bool    `json:"valid"`
					AggregatedTotal float64 `json:"aggregated_total"`
				} `json:"validation"`
				Records []map[string]any `json:"records"`
			}](t, out)
			assert.Equal(t, tt.wantPeriod, got.Period)
			assert.Equal(t, tt.wantTotal, got.Total)
			assert.Len(t, got.Records, tt.wantRecords)
			assert.True(t, got.Validation.Valid)
		})
	}
}

func TestAggregateCommand_InvalidPeriod(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	_, err := execute(t, NewAggregateCommand(), "json", ds.Sales, "--period", "fortnight")
	var invalid *core.InvalidGranularityError
	assert.True(t, errors.As(err, &invalid), "got %v", err)
}

func TestAggregateCommand_Markdown(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	out, err := execute(t, NewAggregateCommand(), "markdown", ds.Sales)
	require.NoError(t, err)

	clitest.AssertNoANSI(t, out)
	clitest.AssertValidMarkdown(t, out)
	assert.Contains(t, out, "CLT_001")
	assert.Contains(t, out, "2023-01")
}

func TestTrendsCommand(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	out, err := execute(t, NewTrendsCommand(), "json", ds.Sales, "--customer", "CLT_001")
	require.NoError(t, err)
	rows := decode[[]map[string]any](t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "2023-01", rows[0]["period"])

	out, err = execute(t, NewTrendsCommand(), "json", ds.Sales, "--customer", "CLT_002", "--from", "2024-01")
	require.NoError(t, err)
	assert.Len(t, decode[[]map[string]any](t, out), 1)

	_, err = execute(t, NewTrendsCommand(), "json", ds.Sales, "--customer", "CLT_404")
	var unknown *core.UnknownCustomerError
	assert.True(t, errors.As(err, &unknown), "got %v", err)

	_, err = execute(t, NewTrendsCommand(), "json", ds.Sales)
	assert.ErrorContains(t, err, "customer")
}

func TestRiskCommand(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	out, err := execute(t, NewRiskCommand(), "json", ds.Sales)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	drop := testutil.WriteCSV(t, ds.Dir, "drop.csv", testutil.MonthlySeries(map[string][]float64{
		"CLT_001": {100000, 100000, 10000},
		"CLT_002": {5000, 5000, 5000},
	}))
	out, err = execute(t, NewRiskCommand(), "json", drop, "--threshold-pct", "50")
	require.NoError(t, err)
	flags := decode[[]map[string]any](t, out)
	require.Len(t, flags, 1)
	assert.Equal(t, "CLT_001", flags[0]["customer_id"])
	assert.InDelta(t, 90, flags[0]["drop_pct"], 1e-9)

	_, err = execute(t, NewRiskCommand(), "json", ds.Sales, "--threshold-pct", "30", "--threshold-value", "1")
	assert.Error(t, err)
}

func TestRiskCommand_ExportAndHistory(t *testing.T) {
	ds := clitest.SetupTestDataset(t)
	dsn := "sqlite://" + filepath.Join(ds.Dir, "runs.db")

	_, err := execute(t, NewRiskCommand(), "json", ds.Sales, "--threshold-value", "0.1", "--export", dsn)
	require.NoError(t, err)
	_, err = execute(t, NewPredictCommand(), "json", ds.Portfolio, "--trees", "15", "--export", dsn)
	require.NoError(t, err)

	out, err := execute(t, NewHistoryCommand(), "json", "--export", dsn)
	require.NoError(t, err)
	runs := decode[[]map[string]any](t, out)
	require.Len(t, runs, 2)

	kinds := []any{runs[0]["kind"], runs[1]["kind"]}
	assert.ElementsMatch(t, []any{"risk", "prediction"}, kinds)
	for _, run := range runs {
		if run["kind"] == "risk" {
			assert.Equal(t, ds.Sales, run["source"])
			assert.Equal(t, "M", run["period"])
			assert.Equal(t, "drop >= 0.1 t", run["parameters"])
		}
	}

	out, err = execute(t, NewHistoryCommand(), "json", "--export", dsn, "--limit", "1")
	require.NoError(t, err)
	assert.Len(t, decode[[]map[string]any](t, out), 1)
}

func TestHistoryCommand_RequiresExport(t *testing.T) {
	_, err := execute(t, NewHistoryCommand(), "json")
	assert.ErrorContains(t, err, "no export database")
}

func TestPredictCommand(t *testing.T) {
	ds := clitest.SetupTestDataset(t)

	out, err := execute(t, NewPredictCommand(), "json", ds.Portfolio, "--trees", "15", "--seed", "7")
	require.NoError(t, err)

	report := decode[map[string]any](t, out)
	assert.EqualValues(t, 26, report["customers"])
	assert.Equal(t, "dynamic", report["threshold_source"])
	assert.NotEmpty(t, report["importances"])

	out, err = execute(t, NewPredictCommand(), "json", ds.Portfolio, "--trees", "15", "--inactivity", "3")
	require.NoError(t, err)
	report = decode[map[string]any](t, out)
	assert.Equal(t, "fixed", report["threshold_source"])
	assert.InDelta(t, 3, report["threshold"], 1e-9)

	_, err = execute(t, NewPredictCommand(), "json", ds.Portfolio, "--test-size", "1.5")
	assert.ErrorContains(t, err, "churn.test_size")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("CHURNWATCH_CHURN__TREES", "64")

	out, err := execute(t, NewConfigCommand(), "auto")
	require.NoError(t, err)

	assert.Contains(t, out, "period: month")
	assert.Contains(t, out, "trees: 64")
	assert.Contains(t, out, "level: warn")
	assert.NotContains(t, out, "threshold_pct")
}

func TestWatchDataset(t *testing.T) {
	ds := clitest.SetupTestDataset(t)
	tr := clitest.NewTestRendererText()
	cmdCtx := &CommandContext{
		Logger:   testutil.NewTestLogger(t),
		Renderer: tr.Renderer,
		Views:    output.NewViews(tr.Renderer),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	ran := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchDataset(ctx, cmdCtx, ds.Sales, func() error {
			n := runs.Add(1)
			select {
			case ran <- struct{}{}:
			default:
			}
			if n == 1 {
				return errors.New("first run failed")
			}
			return nil
		})
	}()

	// Keep touching the file until the watcher has picked it up.
	touch := time.NewTicker(50 * time.Millisecond)
	defer touch.Stop()
	timeout := time.After(5 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-touch.C:
			f, err := os.OpenFile(ds.Sales, os.O_APPEND|os.O_WRONLY, 0600)
			require.NoError(t, err)
			_, _ = f.WriteString("CLT_004,2024,2,100\n")
			require.NoError(t, f.Close())
		case <-ran:
		case <-timeout:
			t.Fatal("watcher did not re-run after the file changed")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.True(t, strings.Contains(tr.ErrorOutput(), "first run failed"))
}

func TestWatchDataset_IgnoresOtherFiles(t *testing.T) {
	ds := clitest.SetupTestDataset(t)
	tr := clitest.NewTestRendererText()
	cmdCtx := &CommandContext{Logger: testutil.NewTestLogger(t), Renderer: tr.Renderer}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchDataset(ctx, cmdCtx, ds.Sales, func() error {
			runs.Add(1)
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(ds.Dir, "other.csv"), []byte("a\n"), 0600))
	}

	require.NoError(t, <-done)
	assert.Zero(t, runs.Load())
}
