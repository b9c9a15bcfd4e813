// Package classifier defines the binary classification seam used for churn
// prediction and ships a seeded random forest implementation.
package classifier

import (
	"errors"
	"fmt"
)

// Classifier trains a Model from a feature matrix and integer labels.
type Classifier interface {
	Fit(X [][]float64, y []int) (Model, error)
}

// Model is a trained classifier.
type Model interface {
	// PredictProba returns one probability row per sample; column j is the
	// probability of Classes()[j].
	PredictProba(X [][]float64) [][]float64
	// FeatureImportances returns one non-negative weight per feature,
	// summing to 1 when any split was made.
	FeatureImportances() []float64
	// Classes returns the sorted labels seen during training.
	Classes() []int
}

// Predict returns the most probable label for each sample.
func Predict(m Model, X [][]float64) []int {
	classes := m.Classes()
	out := make([]int, len(X))
	for i, row := range m.PredictProba(X) {
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = classes[best]
	}
	return out
}

// ProbabilityOf returns the column of PredictProba for label, or nil when
// the model never saw it.
func ProbabilityOf(m Model, X [][]float64, label int) []float64 {
	col := -1
	for j, c := range m.Classes() {
		if c == label {
			col = j
		}
	}
	if col < 0 {
		return nil
	}
	probs := m.PredictProba(X)
	out := make([]float64, len(probs))
	for i, row := range probs {
		out[i] = row[col]
	}
	return out
}

func checkMatrix(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("empty training set")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("feature rows (%d) and labels (%d) differ", len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return 0, errors.New("no features")
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return width, nil
}
