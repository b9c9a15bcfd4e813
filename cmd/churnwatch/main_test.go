// Package main provides tests for the churnwatch CLI.
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/churnwatch/internal/cli"
	"github.com/leapstack-labs/churnwatch/internal/cli/config"
	"github.com/leapstack-labs/churnwatch/internal/testutil"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, _, err := run(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "churnwatch") {
		t.Errorf("version output should contain 'churnwatch', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, _, err := run(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"inspect", "aggregate", "trends", "risk", "predict", "serve", "menu", "history", "config"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestRiskCommand_JSONOutput(t *testing.T) {
	path := testutil.WriteCSV(t, t.TempDir(), "sales.csv", testutil.MonthlySeries(map[string][]float64{
		"CLT_001": {100000, 100000, 10000},
	}))

	output, _, err := run(t, "risk", path, "--threshold-pct", "50", "-o", "json")
	if err != nil {
		t.Fatalf("risk command error = %v", err)
	}

	var flags []map[string]any
	if err := json.Unmarshal([]byte(output), &flags); err != nil {
		t.Fatalf("risk output is not JSON: %v\n%s", err, output)
	}
	if len(flags) != 1 || flags[0]["customer_id"] != "CLT_001" {
		t.Errorf("expected CLT_001 to be flagged, got: %v", flags)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "churnwatch.yaml")
	if err := os.WriteFile(cfgPath, []byte("period: quarter\nchurn:\n  trees: 12\n"), 0600); err != nil {
		t.Fatal(err)
	}

	output, errOutput, err := run(t, "config", "--config", cfgPath, "-v", "--log-level", "debug")
	if err != nil {
		t.Fatalf("config command error = %v", err)
	}
	for _, want := range []string{"period: quarter", "trees: 12", "level: debug"} {
		if !strings.Contains(output, want) {
			t.Errorf("config output should contain %q, got: %s", want, output)
		}
	}
	if !strings.Contains(errOutput, "Using config file: "+cfgPath) {
		t.Errorf("verbose output should name the config file, got: %s", errOutput)
	}
}

func TestInvalidConfig(t *testing.T) {
	_, _, err := run(t, "aggregate", "--period", "fortnight")
	if err == nil {
		t.Fatal("expected an error for an unknown period")
	}
	if !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("error should come from config validation, got: %v", err)
	}
}
