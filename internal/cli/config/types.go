// Package config provides configuration management for the churnwatch CLI.
package config

import (
	"github.com/leapstack-labs/churnwatch/internal/churn"
	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/logging"
	"github.com/leapstack-labs/churnwatch/internal/risk"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Default configuration values.
const (
	DefaultDataFile     = "ventas_anonimizadas.csv"
	DefaultPeriod       = "month"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogLevel     = "warn"
	DefaultLogFormat    = logging.FormatConsole
	DefaultAddr         = ":8080"
	DefaultThresholdPct = 30.0
	DefaultTestSize     = 0.2
	DefaultTrees        = 100
	DefaultSeed         = 42
	DefaultCutoff       = churn.DefaultCutoff
)

// Config holds all CLI configuration options.
type Config struct {
	DataFile     string         `koanf:"data_file" yaml:"data_file"`
	Period       string         `koanf:"period" yaml:"period"`
	CustomSpan   string         `koanf:"custom_span" yaml:"custom_span,omitempty"`
	OutputFormat string         `koanf:"output" yaml:"output"`
	Verbose      bool           `koanf:"verbose" yaml:"verbose"`
	Log          logging.Config `koanf:"log" yaml:"log"`
	Risk         RiskConfig     `koanf:"risk" yaml:"risk"`
	Churn        ChurnConfig    `koanf:"churn" yaml:"churn"`
	Server       ServerConfig   `koanf:"server" yaml:"server"`
	Export       ExportConfig   `koanf:"export" yaml:"export"`
}

// RiskConfig holds the rule based risk thresholds. At most one may be set.
type RiskConfig struct {
	ThresholdPct   *float64 `koanf:"threshold_pct" yaml:"threshold_pct,omitempty"`
	ThresholdValue *float64 `koanf:"threshold_value" yaml:"threshold_value,omitempty"`
}

// ChurnConfig holds churn model settings. InactivityPeriods 0 selects the
// threshold derived from the data.
type ChurnConfig struct {
	InactivityPeriods int     `koanf:"inactivity_periods" yaml:"inactivity_periods"`
	TestSize          float64 `koanf:"test_size" yaml:"test_size"`
	Trees             int     `koanf:"trees" yaml:"trees"`
	Seed              uint64  `koanf:"seed" yaml:"seed"`
	ProbabilityCutoff float64 `koanf:"probability_cutoff" yaml:"probability_cutoff"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr    string `koanf:"addr" yaml:"addr"`
	DataDir string `koanf:"data_dir" yaml:"data_dir,omitempty"`
}

// ExportConfig selects where results are exported. Empty disables export.
type ExportConfig struct {
	DSN string `koanf:"dsn" yaml:"dsn,omitempty"`
}

// Span resolves the configured period.
func (c *Config) Span() (core.Span, error) {
	return core.ParseGranularity(c.Period, c.CustomSpan)
}

// RiskRule builds the configured rule, falling back to DefaultThresholdPct
// when neither threshold is set.
func (c *Config) RiskRule() (risk.Rule, error) {
	if c.Risk.ThresholdPct == nil && c.Risk.ThresholdValue == nil {
		return risk.Percent(DefaultThresholdPct), nil
	}
	return risk.NewRule(c.Risk.ThresholdPct, c.Risk.ThresholdValue)
}

// ChurnOptions returns the dataset options.
func (c *Config) ChurnOptions() churn.Options {
	return churn.Options{InactivityPeriods: c.Churn.InactivityPeriods}
}

// TrainConfig returns the split and cutoff settings.
func (c *Config) TrainConfig() churn.TrainConfig {
	return churn.TrainConfig{
		TestSize: c.Churn.TestSize,
		Seed:     c.Churn.Seed,
		Cutoff:   c.Churn.ProbabilityCutoff,
	}
}

// ForestConfig returns the classifier settings.
func (c *Config) ForestConfig() classifier.ForestConfig {
	fc := classifier.DefaultForestConfig()
	if c.Churn.Trees > 0 {
		fc.Trees = c.Churn.Trees
	}
	fc.Seed = c.Churn.Seed
	return fc
}
