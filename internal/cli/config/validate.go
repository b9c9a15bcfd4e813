package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/leapstack-labs/churnwatch/internal/cli/output"
	"github.com/leapstack-labs/churnwatch/internal/state"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Validate checks ranges and enumerations. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Span(); err != nil {
		errs = append(errs, err)
	}
	if _, err := output.ParseMode(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Risk.ThresholdPct != nil && c.Risk.ThresholdValue != nil {
		errs = append(errs, fmt.Errorf("risk: %w", core.ErrConflictingRules))
	}
	if p := c.Risk.ThresholdPct; p != nil && !validThreshold(*p) {
		errs = append(errs, fmt.Errorf("risk.threshold_pct must be a finite, non-negative number, got %g", *p))
	}
	if v := c.Risk.ThresholdValue; v != nil && !validThreshold(*v) {
		errs = append(errs, fmt.Errorf("risk.threshold_value must be a finite, non-negative number, got %g", *v))
	}

	if c.Churn.InactivityPeriods < 0 {
		errs = append(errs, fmt.Errorf("churn.inactivity_periods must not be negative, got %d", c.Churn.InactivityPeriods))
	}
	if c.Churn.TestSize <= 0 || c.Churn.TestSize >= 1 {
		errs = append(errs, fmt.Errorf("churn.test_size must be between 0 and 1, got %g", c.Churn.TestSize))
	}
	if c.Churn.Trees < 1 {
		errs = append(errs, fmt.Errorf("churn.trees must be at least 1, got %d", c.Churn.Trees))
	}
	if c.Churn.ProbabilityCutoff <= 0 || c.Churn.ProbabilityCutoff >= 1 {
		errs = append(errs, fmt.Errorf("churn.probability_cutoff must be between 0 and 1, got %g", c.Churn.ProbabilityCutoff))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Export.DSN != "" {
		if _, _, err := state.ParseDSN(c.Export.DSN); err != nil {
			errs = append(errs, fmt.Errorf("export.dsn: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validThreshold(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
