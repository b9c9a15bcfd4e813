package output

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/churnwatch/internal/aggregate"
	"github.com/leapstack-labs/churnwatch/internal/churn"
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"github.com/leapstack-labs/churnwatch/internal/risk"
	"github.com/leapstack-labs/churnwatch/internal/state"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Views renders analysis results through a Renderer.
type Views struct {
	r *Renderer
}

// NewViews wraps r.
func NewViews(r *Renderer) *Views {
	return &Views{r: r}
}

// Summary shows what was loaded and how its columns were mapped.
func (v *Views) Summary(s pipeline.Summary) error {
	r := v.r
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(s)
	}

	r.Header(1, "Dataset")
	dateCol := s.Mapping.DateCol
	if dateCol == "" {
		dateCol = s.Mapping.YearCol + " + " + s.Mapping.MonthCol
	}
	pairs := [][2]string{
		{"Source", s.Source},
		{"Rows", FormatCount(s.Rows)},
		{"Columns", FormatCount(len(s.Columns))},
		{"Customers", FormatCount(len(s.Customers))},
		{"Customer column", s.Mapping.CustomerCol},
		{"Date column", dateCol},
		{"Quantity column", s.Mapping.QuantityCol},
	}
	v.keyValues(pairs)

	header := []string{"Column", "Type"}
	rows := make([][]string, 0, len(s.Columns))
	for i, c := range s.Columns {
		typ := ""
		if i < len(s.Types) {
			typ = s.Types[i]
		}
		rows = append(rows, []string{c, typ})
	}
	r.Header(2, "Columns")
	r.Table(header, rows)
	return nil
}

// Aggregation shows aggregated records, at most limit of them when limit > 0.
func (v *Views) Aggregation(res *aggregate.Result, limit int) error {
	r := v.r
	records := res.Records
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	if r.EffectiveMode() == ModeJSON {
		return r.JSON(struct {
			Period     string                  `json:"period"`
			Validation aggregate.Validation    `json:"validation"`
			Skipped    aggregate.Skipped       `json:"skipped"`
			Total      int                     `json:"total"`
			Records    []core.AggregatedRecord `json:"records"`
		}{res.Span.String(), res.Validation, res.Skipped, len(res.Records), records})
	}

	r.Header(1, fmt.Sprintf("Purchases by customer and period (%s)", res.Span))
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.CustomerID,
			rec.Period.String(),
			FormatNumber(rec.TotalKg, 2),
			FormatNumber(rec.DisplayTons(), 4),
			FormatNumber(rec.AvgKg, 2),
			strconv.Itoa(rec.PurchaseCount),
		})
	}
	r.Table([]string{"Customer", "Period", "Total kg", "Total tons", "Avg kg", "Purchases"}, rows)
	if len(records) < len(res.Records) {
		r.Muted(fmt.Sprintf("showing %s of %s records", FormatCount(len(records)), FormatCount(len(res.Records))))
	}

	v.validation(res)
	return nil
}

func (v *Views) validation(res *aggregate.Result) {
	r := v.r
	val := res.Validation
	if val.Valid {
		r.Success(fmt.Sprintf("Totals match: %s kg in %s records",
			FormatNumber(val.AggregatedTotal, 2), FormatCount(len(res.Records))))
	} else {
		r.Warning(fmt.Sprintf("Totals differ: source %s kg, aggregated %s kg (difference %s)",
			FormatNumber(val.OriginalTotal, 2), FormatNumber(val.AggregatedTotal, 2), FormatNumber(val.Difference, 2)))
	}
	if n := res.Skipped.Total(); n > 0 {
		r.Warning(fmt.Sprintf("Skipped %s rows (customer: %d, quantity: %d, date: %d)",
			FormatCount(n), res.Skipped.Customer, res.Skipped.Quantity, res.Skipped.Date))
	}
}

// Trends shows one customer's series with its trailing statistics.
func (v *Views) Trends(customer string, rows []core.TrendRecord) error {
	r := v.r
	if r.EffectiveMode() == ModeJSON {
		if rows == nil {
			rows = []core.TrendRecord{}
		}
		return r.JSON(rows)
	}

	r.Header(1, "Purchase trend for "+customer)
	out := make([][]string, 0, len(rows))
	for _, t := range rows {
		out = append(out, []string{
			t.Period.String(),
			FormatNumber(t.DisplayTons(), 4),
			FormatNumber(t.AvgTonsLast3, 4),
			FormatNumber(t.StdTonsLast3, 4),
			strconv.Itoa(t.PeriodsSinceLastPurchase),
		})
	}
	r.Table([]string{"Period", "Tons", "Avg last 3", "Std last 3", "Periods since purchase"}, out)
	return nil
}

// Risk shows the customers a rule flagged.
func (v *Views) Risk(rule risk.Rule, flags []core.RiskFlag) error {
	r := v.r
	if r.EffectiveMode() == ModeJSON {
		if flags == nil {
			flags = []core.RiskFlag{}
		}
		return r.JSON(flags)
	}

	r.Header(1, "At-risk customers")
	r.Muted("Rule: " + rule.String())
	if !rule.Active() {
		r.Warning("No threshold set; nothing can be flagged")
	}
	if len(flags) == 0 {
		r.Success("No customers at risk")
		return nil
	}
	rows := make([][]string, 0, len(flags))
	for _, f := range flags {
		rows = append(rows, []string{
			f.CustomerID,
			f.Period.String(),
			FormatNumber(f.TotalTons, 4),
			FormatNumber(f.AvgTonsLast3, 4),
			FormatPercent(f.DropPct),
			FormatNumber(f.DropValue, 4),
		})
	}
	r.Table([]string{"Customer", "Last period", "Last purchase (t)", "Previous avg (t)", "Drop %", "Drop (t)"}, rows)
	r.Warning(fmt.Sprintf("%s customers at risk", FormatCount(len(flags))))
	return nil
}

// Churn shows the model evaluation and the customers above the cutoff.
func (v *Views) Churn(rep *churn.Report) error {
	r := v.r
	if r.EffectiveMode() == ModeJSON {
		return r.JSON(rep)
	}

	r.Header(1, "Churn prediction")
	v.keyValues([][2]string{
		{"Inactivity threshold", fmt.Sprintf("%s periods (%s)", FormatNumber(rep.Threshold, 2), rep.ThresholdSource)},
		{"Rows", fmt.Sprintf("%s (%s churned)", FormatCount(rep.Rows), FormatCount(rep.Positives))},
		{"Train / test", fmt.Sprintf("%s / %s", FormatCount(rep.TrainRows), FormatCount(rep.TestRows))},
		{"Accuracy", FormatPercent(rep.Evaluation.Accuracy * 100)},
	})

	r.Header(2, "Evaluation")
	metrics := make([][]string, 0, len(rep.Evaluation.PerClass))
	for _, c := range rep.Evaluation.PerClass {
		label := "active"
		if c.Class == 1 {
			label = "churn"
		}
		metrics = append(metrics, []string{
			label,
			FormatNumber(c.Precision, 3),
			FormatNumber(c.Recall, 3),
			FormatNumber(c.F1, 3),
			strconv.Itoa(c.Support),
		})
	}
	r.Table([]string{"Class", "Precision", "Recall", "F1", "Support"}, metrics)

	r.Header(2, "Feature importance")
	imps := make([][]string, 0, len(rep.Importances))
	for _, imp := range rep.Importances {
		imps = append(imps, []string{imp.Feature, FormatNumber(imp.Importance, 4)})
	}
	r.Table([]string{"Feature", "Importance"}, imps)

	r.Header(2, "Customers at risk of churning")
	if len(rep.AtRisk) == 0 {
		r.Success("No customers above the probability cutoff")
		return nil
	}
	rows := make([][]string, 0, len(rep.AtRisk))
	for _, p := range rep.AtRisk {
		rows = append(rows, []string{
			p.CustomerID,
			p.Period.String(),
			FormatPercent(p.Probability * 100),
			FormatNumber(p.TotalTons, 4),
			strconv.Itoa(p.PeriodsSinceLastPurchase),
		})
	}
	r.Table([]string{"Customer", "Period", "Churn probability", "Last tons", "Periods since purchase"}, rows)
	r.Warning(fmt.Sprintf("%s of %s customers at risk", FormatCount(len(rep.AtRisk)), FormatCount(rep.Customers)))
	return nil
}

// Runs lists exported analyses.
func (v *Views) Runs(runs []state.Run) error {
	r := v.r
	if r.EffectiveMode() == ModeJSON {
		if runs == nil {
			runs = []state.Run{}
		}
		return r.JSON(runs)
	}

	r.Header(1, "Exported runs")
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Kind,
			run.Source,
			run.Period,
			run.Parameters,
			FormatCount(run.Records),
		})
	}
	r.Table([]string{"Run", "Created", "Kind", "Source", "Period", "Parameters", "Records"}, rows)
	return nil
}

// Exported reports a completed export.
func (v *Views) Exported(run *state.Run, dsn string) {
	if v.r.EffectiveMode() == ModeJSON {
		return
	}
	v.r.Muted(fmt.Sprintf("Exported %s records as run %s to %s", FormatCount(run.Records), run.ID, dsn))
}

func (v *Views) keyValues(pairs [][2]string) {
	r := v.r
	if r.EffectiveMode() == ModeMarkdown {
		for _, p := range pairs {
			r.Println(FormatKeyValue(p[0], p[1]))
		}
		r.Println("")
		return
	}
	for _, p := range pairs {
		r.Printf("  %s %s\n", r.Styles().Bold.Render(p[0]+":"), p[1])
	}
	r.Println("")
}

