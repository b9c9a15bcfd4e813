package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, sync, err := New(Config{Level: "info", Format: FormatJSON}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("aggregation complete", "records", 4)
	require.NoError(t, sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "aggregation complete", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 4, entry["records"])
	assert.Contains(t, entry, "ts")
}

func TestNew_ConsoleDefaultsToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{}, &buf)
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("totals differ", "difference", 1.5)

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "totals differ")
}

func TestNew_InvalidConfig(t *testing.T) {
	_, _, err := New(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, _, err = New(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{Level: "DEBUG", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "verbose"}.Validate())
	assert.Error(t, Config{Format: "logfmt"}.Validate())
}
