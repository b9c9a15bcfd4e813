package core

import "math"

// AggregatedRecord is the total purchased by one customer in one period.
// (CustomerID, Period) is unique within an aggregation.
type AggregatedRecord struct {
	CustomerID    string  `json:"customer_id"`
	Period        Period  `json:"period"`
	TotalKg       float64 `json:"total_kg"`
	AvgKg         float64 `json:"avg_kg"`
	PurchaseCount int     `json:"purchase_count"`
	TotalTons     float64 `json:"total_tons"`
	AvgTons       float64 `json:"avg_tons"`
}

// DisplayTons is TotalTons rounded for presentation.
func (r AggregatedRecord) DisplayTons() float64 {
	return Round(r.TotalTons, 4)
}

// TrendRecord extends an AggregatedRecord with trailing window statistics.
// The window covers only periods strictly before Period.
type TrendRecord struct {
	AggregatedRecord
	AvgTonsLast3             float64 `json:"avg_tons_last_3"`
	StdTonsLast3             float64 `json:"std_tons_last_3"`
	PeriodsSinceLastPurchase int     `json:"periods_since_last_purchase"`
}

// RiskFlag marks a customer whose latest period fell below its trailing average.
type RiskFlag struct {
	CustomerID   string  `json:"customer_id"`
	Period       Period  `json:"period"`
	TotalTons    float64 `json:"total_tons"`
	AvgTonsLast3 float64 `json:"avg_tons_last_3"`
	DropPct      float64 `json:"drop_pct"`
	DropValue    float64 `json:"drop_value"`
}

// ChurnRow is a dense monthly trend row with its churn label.
type ChurnRow struct {
	TrendRecord
	Churn bool `json:"churn"`
}

// ChurnPrediction is a classifier score for a customer's latest month.
type ChurnPrediction struct {
	CustomerID               string  `json:"customer_id"`
	Period                   Period  `json:"period"`
	Probability              float64 `json:"probability"`
	TotalTons                float64 `json:"total_tons"`
	PeriodsSinceLastPurchase int     `json:"periods_since_last_purchase"`
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
