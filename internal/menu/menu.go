// Package menu is the interactive numbered menu over one analysis session.
package menu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/churnwatch/internal/aggregate"
	"github.com/leapstack-labs/churnwatch/internal/churn"
	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"github.com/leapstack-labs/churnwatch/internal/risk"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Menu defaults.
const (
	DefaultDataFile     = "ventas_anonimizadas.csv"
	DefaultPeriod       = "month"
	DefaultThresholdPct = 30.0
)

var (
	errNotLoaded     = errors.New("must load data first (option 1)")
	errNotAggregated = errors.New("you must aggregate data first (option 2)")
)

// Prompter reads one answer per label. It returns io.EOF when input ends and
// readline.ErrInterrupt when the user cancels the current question.
type Prompter interface {
	Prompt(label string) (string, error)
}

// View renders menu results.
type View interface {
	Summary(pipeline.Summary) error
	Aggregation(res *aggregate.Result, limit int) error
	Trends(customer string, rows []core.TrendRecord) error
	Risk(rule risk.Rule, flags []core.RiskFlag) error
	Churn(report *churn.Report) error
}

// Defaults seed the answers a user leaves blank.
type Defaults struct {
	DataFile     string
	Period       string
	ThresholdPct float64
	Churn        churn.Options
	Train        churn.TrainConfig
	Forest       classifier.ForestConfig
}

// Config wires a Menu.
type Config struct {
	Loader   pipeline.Loader
	View     View
	Out      io.Writer
	Logger   *slog.Logger
	Defaults Defaults
}

// Menu holds the session state between options.
type Menu struct {
	cfg   Config
	state *pipeline.State
}

// New creates a Menu with blank defaults filled in.
func New(cfg Config) *Menu {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	d := &cfg.Defaults
	if d.DataFile == "" {
		d.DataFile = DefaultDataFile
	}
	if d.Period == "" {
		d.Period = DefaultPeriod
	}
	if d.ThresholdPct == 0 {
		d.ThresholdPct = DefaultThresholdPct
	}
	if d.Train == (churn.TrainConfig{}) {
		d.Train = churn.DefaultTrainConfig()
	}
	if d.Forest.Trees == 0 {
		d.Forest = classifier.DefaultForestConfig()
	}
	return &Menu{cfg: cfg}
}

// Run shows the menu until the user exits or input ends. Errors from an
// option are printed and the menu is shown again.
func (m *Menu) Run(ctx context.Context, p Prompter) error {
	m.printf("CUSTOMER CHURN RISK ANALYSIS\n")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m.printMenu()

		option, err := p.Prompt("Select an option (1-6): ")
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		quit, err := m.Dispatch(ctx, strings.TrimSpace(option), p)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, readline.ErrInterrupt):
			m.printf("cancelled\n")
		case err != nil:
			m.printf("Error: %v\n", err)
		}
		if quit {
			m.printf("Goodbye.\n")
			return nil
		}
	}
}

// Dispatch runs one menu option and reports whether the session should end.
func (m *Menu) Dispatch(ctx context.Context, option string, p Prompter) (bool, error) {
	switch option {
	case "1":
		return false, m.upload(ctx, p)
	case "2":
		return false, m.aggregate(p)
	case "3":
		return false, m.visualize(p)
	case "4":
		return false, m.identifyRisk(p)
	case "5":
		return false, m.predict(p)
	case "6", "q", "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("invalid option %q, select 1-6", option)
	}
}

// State returns the current session snapshot, nil before a file is loaded.
func (m *Menu) State() *pipeline.State {
	return m.state
}

func (m *Menu) upload(ctx context.Context, p Prompter) error {
	path, err := ask(p, fmt.Sprintf("Enter file path (Enter for '%s'): ", m.cfg.Defaults.DataFile), m.cfg.Defaults.DataFile)
	if err != nil {
		return err
	}
	st, err := pipeline.Load(ctx, m.cfg.Loader, path, pipeline.Options{Logger: m.cfg.Logger})
	if err != nil {
		return err
	}
	m.state = st
	return m.cfg.View.Summary(st.Summary())
}

func (m *Menu) aggregate(p Prompter) error {
	if m.state == nil {
		return errNotLoaded
	}
	m.printf("Available periods: month, quarter, year, custom\n")
	period, err := ask(p, fmt.Sprintf("Select period (Enter for '%s'): ", m.cfg.Defaults.Period), m.cfg.Defaults.Period)
	if err != nil {
		return err
	}
	var custom string
	if strings.EqualFold(period, "custom") {
		if custom, err = ask(p, "Enter custom period (e.g. W, 2W, 3M): ", ""); err != nil {
			return err
		}
	}
	span, err := core.ParseGranularity(period, custom)
	if err != nil {
		return err
	}
	next, err := m.state.Aggregate(span)
	if err != nil {
		return err
	}
	m.state = next
	return m.cfg.View.Aggregation(next.Aggregation, 0)
}

func (m *Menu) visualize(p Prompter) error {
	if err := m.requireAggregation(); err != nil {
		return err
	}
	customer, err := ask(p, "Enter the customer ID to visualize: ", "")
	if err != nil {
		return err
	}
	if customer == "" {
		return errors.New("customer ID cannot be empty")
	}
	from, err := ask(p, "Enter start month (YYYY-MM, Enter to skip): ", "")
	if err != nil {
		return err
	}
	to, err := ask(p, "Enter end month (YYYY-MM, Enter to skip): ", "")
	if err != nil {
		return err
	}
	rows, err := m.state.Trends(customer, from, to)
	if err != nil {
		return err
	}
	return m.cfg.View.Trends(customer, rows)
}

func (m *Menu) identifyRisk(p Prompter) error {
	if err := m.requireAggregation(); err != nil {
		return err
	}
	kind, err := ask(p, "Threshold type ('percentage' or 'value', Enter for percentage): ", "percentage")
	if err != nil {
		return err
	}

	var rule risk.Rule
	if strings.EqualFold(kind, "value") {
		v, err := askFloat(p, "Enter the drop threshold in tons: ", -1)
		if err != nil {
			return err
		}
		if v < 0 {
			return errors.New("a value threshold is required")
		}
		rule, err = risk.NewRule(nil, &v)
		if err != nil {
			return err
		}
	} else {
		def := m.cfg.Defaults.ThresholdPct
		v, err := askFloat(p, fmt.Sprintf("Enter the drop threshold %% (Enter for %g): ", def), def)
		if err != nil {
			return err
		}
		rule, err = risk.NewRule(&v, nil)
		if err != nil {
			return err
		}
	}

	flags, err := m.state.AtRisk(rule)
	if err != nil {
		return err
	}
	return m.cfg.View.Risk(rule, flags)
}

func (m *Menu) predict(p Prompter) error {
	if err := m.requireAggregation(); err != nil {
		return err
	}
	if !m.state.Aggregation.Span.IsMonthly() {
		return fmt.Errorf("%w; run option 2 again with 'month'", &core.MonthlyRequiredError{Span: m.state.Aggregation.Span})
	}

	opts := m.cfg.Defaults.Churn
	label := "Enter inactivity periods that define churn (Enter for the data driven threshold): "
	if opts.InactivityPeriods > 0 {
		label = fmt.Sprintf("Enter inactivity periods that define churn (Enter for %d): ", opts.InactivityPeriods)
	}
	raw, err := ask(p, label, "")
	if err != nil {
		return err
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid number %q, enter a non-negative integer", raw)
		}
		opts.InactivityPeriods = n
	}

	report, err := m.state.PredictChurn(opts, m.cfg.Defaults.Train, classifier.NewForest(m.cfg.Defaults.Forest))
	if err != nil {
		return err
	}
	return m.cfg.View.Churn(report)
}

func (m *Menu) requireAggregation() error {
	if m.state == nil {
		return errNotLoaded
	}
	if m.state.Aggregation == nil {
		return errNotAggregated
	}
	return nil
}

func (m *Menu) printMenu() {
	m.printf(`
================================================================
 1. Upload historical data (CSV/XLSX)
 2. Aggregate data by customer and period
 3. Visualize customer purchase trends
 4. Identify at-risk customers (rule based)
 5. Predict churn risk (random forest)
 6. Exit
================================================================
`)
}

func (m *Menu) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.cfg.Out, format, args...)
}

func ask(p Prompter, label, def string) (string, error) {
	answer, err := p.Prompt(label)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func askFloat(p Prompter, label string, def float64) (float64, error) {
	raw, err := ask(p, label, "")
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q, enter a number", raw)
	}
	return v, nil
}
