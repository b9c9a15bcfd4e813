package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// EnvPrefix prefixes every environment variable the loader reads.
// A double underscore separates nesting levels: CHURNWATCH_LOG__LEVEL -> log.level.
const EnvPrefix = "CHURNWATCH_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names onto config keys where the kebab to snake rule
// does not apply.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"threshold-pct":   "risk.threshold_pct",
	"threshold-value": "risk.threshold_value",
	"inactivity":      "churn.inactivity_periods",
	"test-size":       "churn.test_size",
	"trees":           "churn.trees",
	"seed":            "churn.seed",
	"cutoff":          "churn.probability_cutoff",
	"addr":            "server.addr",
	"data-dir":        "server.data_dir",
	"export":          "export.dsn",
}

// flagsOutsideConfig are flags that never become config keys.
var flagsOutsideConfig = map[string]bool{
	"config":       true,
	"help":         true,
	"version":      true,
	"limit":        true,
	"customer":     true,
	"from":         true,
	"to":           true,
	"watch":        true,
	"history-file": true,
}

// defaults returns the lowest precedence layer.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"data_file":                DefaultDataFile,
		"period":                   DefaultPeriod,
		"custom_span":              "",
		"output":                   DefaultOutput,
		"verbose":                  false,
		"log.level":                DefaultLogLevel,
		"log.format":               DefaultLogFormat,
		"churn.inactivity_periods": 0,
		"churn.test_size":          DefaultTestSize,
		"churn.trees":              DefaultTrees,
		"churn.seed":               DefaultSeed,
		"churn.probability_cutoff": DefaultCutoff,
		"server.addr":              DefaultAddr,
		"server.data_dir":          "",
		"export.dsn":               "",
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > churnwatch.yaml > churnwatch.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"churnwatch.yaml", "churnwatch.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (CHURNWATCH_ prefix)
	// Transform: CHURNWATCH_CHURN__TEST_SIZE -> churn.test_size
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed || flagsOutsideConfig[f.Name] {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			// Transform kebab-case to snake_case for config keys
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
