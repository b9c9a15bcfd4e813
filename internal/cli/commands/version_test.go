package commands

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/churnwatch/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engineLine = regexp.MustCompile(`(?m)^engine: DuckDB v\d+\.\d+\.\d+`)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		first   string
	}{
		{name: "release", version: "0.1.0", first: "churnwatch v0.1.0"},
		{name: "dev build", version: "dev", first: "churnwatch vdev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(nil)

			require.NoError(t, cmd.Execute())

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 3)
			assert.Equal(t, tt.first, lines[0])
			assert.Regexp(t, engineLine, buf.String())
		})
	}
}

func TestVersionCommand_ReportsIngestEngine(t *testing.T) {
	engine, err := ingest.EngineVersion(context.Background())
	require.NoError(t, err)

	cmd := NewVersionCommand("test")
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "engine: DuckDB "+engine+"\n",
		"version prints the engine the CSV loader runs on")
}

func TestVersionCommandMetadata(t *testing.T) {
	cmd := NewVersionCommand("test")

	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Contains(t, cmd.Long, "DuckDB")
}
