// Package pipeline chains the analysis stages over one dataset.
//
// Each step returns a new State; a State is never modified after it is
// returned, so callers can keep earlier snapshots or share them freely.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/churnwatch/internal/aggregate"
	"github.com/leapstack-labs/churnwatch/internal/churn"
	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/risk"
	"github.com/leapstack-labs/churnwatch/internal/schema"
	"github.com/leapstack-labs/churnwatch/internal/trend"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Stage names reported to an Observer.
const (
	StageLoad      = "load"
	StageAggregate = "aggregate"
	StageTrends    = "trends"
	StageRisk      = "risk"
	StagePredict   = "predict"
)

// Loader reads a dataset file.
type Loader interface {
	Load(ctx context.Context, path string) (*core.Table, error)
}

// Observer is told how long each stage took and whether it failed.
type Observer func(stage string, elapsed time.Duration, err error)

// Options configures a pipeline run.
type Options struct {
	Logger   *slog.Logger
	Observer Observer
}

// State is an immutable snapshot of a pipeline run.
type State struct {
	Table       *core.Table
	Mapping     core.SchemaMapping
	Aggregation *aggregate.Result

	logger   *slog.Logger
	observer Observer
}

// Summary describes a loaded dataset.
type Summary struct {
	Source    string             `json:"source"`
	Rows      int                `json:"rows"`
	Columns   []string           `json:"columns"`
	Types     []string           `json:"types,omitempty"`
	Mapping   core.SchemaMapping `json:"mapping"`
	Customers []string           `json:"customers"`
}

// Load reads path and detects its schema.
func Load(ctx context.Context, loader Loader, path string, opts Options) (*State, error) {
	s := &State{logger: opts.Logger, observer: opts.Observer}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	err := s.observe(StageLoad, func() error {
		table, err := loader.Load(ctx, path)
		if err != nil {
			return err
		}
		mapping, err := schema.Detect(table.Columns)
		if err != nil {
			return err
		}
		s.Table, s.Mapping = table, mapping
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("dataset ready", "source", path, "rows", s.Table.Len(),
		"customer", s.Mapping.CustomerCol, "date", s.Mapping.DateCol, "quantity", s.Mapping.QuantityCol)
	return s, nil
}

// Analyze loads path and aggregates it by span.
func Analyze(ctx context.Context, loader Loader, path string, span core.Span, opts Options) (*State, error) {
	s, err := Load(ctx, loader, path, opts)
	if err != nil {
		return nil, err
	}
	return s.Aggregate(span)
}

// Summary returns row, column and customer information for the dataset.
func (s *State) Summary() Summary {
	return Summary{
		Source:    s.Table.Source,
		Rows:      s.Table.Len(),
		Columns:   s.Table.Columns,
		Types:     s.Table.Types,
		Mapping:   s.Mapping,
		Customers: s.Table.Distinct(s.Mapping.CustomerCol),
	}
}

// Aggregate groups the dataset by customer and span.
func (s *State) Aggregate(span core.Span) (*State, error) {
	next := *s
	err := s.observe(StageAggregate, func() error {
		res, err := aggregate.New(s.logger).Aggregate(s.Table, s.Mapping, span)
		if err != nil {
			return err
		}
		next.Aggregation = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// Trends returns one customer's trend rows, optionally bounded by months in
// YYYY-MM form. An unparsable bound is ignored with a warning.
func (s *State) Trends(customer, from, to string) ([]core.TrendRecord, error) {
	if s.Aggregation == nil {
		return nil, core.ErrNoPriorAggregation
	}

	var out []core.TrendRecord
	err := s.observe(StageTrends, func() error {
		var records []core.AggregatedRecord
		for _, r := range s.Aggregation.Records {
			if r.CustomerID == customer {
				records = append(records, r)
			}
		}
		if len(records) == 0 {
			return &core.UnknownCustomerError{CustomerID: customer}
		}

		lo, hasLo := s.parseBound("start", from)
		hi, hasHi := s.parseBound("end", to)
		if hasHi {
			hi = hi.AddDate(0, 1, 0)
		}
		for _, r := range trend.Build(records) {
			start := r.Period.Start()
			if hasLo && start.Before(lo) {
				continue
			}
			if hasHi && !start.Before(hi) {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// AtRisk applies rule to each customer's latest aggregated period.
func (s *State) AtRisk(rule risk.Rule) ([]core.RiskFlag, error) {
	if s.Aggregation == nil {
		return nil, core.ErrNoPriorAggregation
	}
	var flags []core.RiskFlag
	err := s.observe(StageRisk, func() error {
		flags = risk.IdentifyAtRisk(trend.Build(s.Aggregation.Records), rule)
		s.logger.Info("risk rule evaluated", "rule", rule.String(), "flagged", len(flags))
		return nil
	})
	return flags, err
}

// PredictChurn builds the churn dataset from a monthly aggregation, trains
// clf and scores every customer.
func (s *State) PredictChurn(opts churn.Options, cfg churn.TrainConfig, clf classifier.Classifier) (*churn.Report, error) {
	if s.Aggregation == nil {
		return nil, core.ErrNoPriorAggregation
	}
	var report *churn.Report
	err := s.observe(StagePredict, func() error {
		ds, err := churn.BuildDataset(s.Aggregation.Records, s.Aggregation.Span, opts)
		if err != nil {
			return err
		}
		report, err = churn.Train(ds, clf, cfg, s.logger)
		return err
	})
	return report, err
}

func (s *State) parseBound(name, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01", value)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("ignoring invalid %s month, expected YYYY-MM", name), "value", value)
		return time.Time{}, false
	}
	return t, true
}

func (s *State) observe(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.observer != nil {
		s.observer(stage, time.Since(start), err)
	}
	if err != nil {
		s.logger.Debug("stage failed", "stage", stage, "error", err)
	}
	return err
}
