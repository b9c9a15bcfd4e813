package churn

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// DefaultCutoff is the churn probability above which a customer is reported.
const DefaultCutoff = 0.5

// TrainConfig controls the split, the classifier and the report cutoff.
type TrainConfig struct {
	TestSize float64
	Seed     uint64
	Cutoff   float64
}

// DefaultTrainConfig holds out 20% with seed 42 and reports above 0.5.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{TestSize: 0.2, Seed: 42, Cutoff: DefaultCutoff}
}

// Importance is one feature's weight in the trained model.
type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Report is the outcome of training and scoring.
type Report struct {
	Threshold       float64                `json:"threshold"`
	ThresholdSource ThresholdSource        `json:"threshold_source"`
	Rows            int                    `json:"rows"`
	Positives       int                    `json:"positives"`
	TrainRows       int                    `json:"train_rows"`
	TestRows        int                    `json:"test_rows"`
	Evaluation      classifier.Evaluation  `json:"evaluation"`
	Importances     []Importance           `json:"importances"`
	AtRisk          []core.ChurnPrediction `json:"at_risk"`
	Customers       int                    `json:"customers"`
}

// Train splits ds, fits clf, evaluates on the held-out rows and scores every
// customer's latest month.
func Train(ds *Dataset, clf classifier.Classifier, cfg TrainConfig, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Cutoff <= 0 {
		cfg.Cutoff = DefaultCutoff
	}

	X, y := ds.Matrix()
	train, test, err := classifier.StratifiedSplit(y, cfg.TestSize, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split churn dataset: %w", err)
	}
	trainX, trainY := classifier.Rows(X, y, train)
	testX, testY := classifier.Rows(X, y, test)

	logger.Debug("training churn classifier",
		"rows", len(y), "train", len(train), "test", len(test),
		"threshold", ds.Threshold, "threshold_source", ds.Source)

	model, err := clf.Fit(trainX, trainY)
	if err != nil {
		return nil, fmt.Errorf("failed to train classifier: %w", err)
	}

	report := &Report{
		Threshold:       ds.Threshold,
		ThresholdSource: ds.Source,
		Rows:            len(y),
		Positives:       ds.Positives(),
		TrainRows:       len(train),
		TestRows:        len(test),
		Evaluation:      classifier.Evaluate(testY, classifier.Predict(model, testX)),
		Importances:     importances(model),
		AtRisk:          Predict(model, ds, cfg.Cutoff),
		Customers:       len(ds.Latest()),
	}
	logger.Info("churn classifier trained",
		"accuracy", report.Evaluation.Accuracy,
		"at_risk", len(report.AtRisk),
		"customers", report.Customers)
	return report, nil
}

// Predict scores each customer's latest row and returns those whose churn
// probability exceeds cutoff, most likely first.
func Predict(model classifier.Model, ds *Dataset, cutoff float64) []core.ChurnPrediction {
	latest := ds.Latest()
	X := make([][]float64, len(latest))
	for i, r := range latest {
		X[i] = features(r.TrendRecord)
	}
	probs := classifier.ProbabilityOf(model, X, 1)

	out := []core.ChurnPrediction{}
	if probs == nil {
		return out
	}
	for i, r := range latest {
		if probs[i] <= cutoff {
			continue
		}
		out = append(out, core.ChurnPrediction{
			CustomerID:               r.CustomerID,
			Period:                   r.Period,
			Probability:              probs[i],
			TotalTons:                r.TotalTons,
			PeriodsSinceLastPurchase: r.PeriodsSinceLastPurchase,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

func importances(model classifier.Model) []Importance {
	weights := model.FeatureImportances()
	out := make([]Importance, 0, len(weights))
	for j, w := range weights {
		name := fmt.Sprintf("feature_%d", j)
		if j < len(FeatureNames) {
			name = FeatureNames[j]
		}
		out = append(out, Importance{Feature: name, Importance: w})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}
