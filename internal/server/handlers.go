package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/leapstack-labs/churnwatch/internal/aggregate"
	"github.com/leapstack-labs/churnwatch/internal/churn"
	"github.com/leapstack-labs/churnwatch/internal/classifier"
	"github.com/leapstack-labs/churnwatch/internal/pipeline"
	"github.com/leapstack-labs/churnwatch/internal/risk"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// dataRequest names the dataset and how to bucket it.
type dataRequest struct {
	FilePath     string `json:"filePath" validate:"omitempty,max=4096"`
	Period       string `json:"period" validate:"omitempty,oneof=month quarter year custom"`
	CustomPeriod string `json:"customPeriod" validate:"required_if=Period custom"`
}

type uploadRequest struct {
	FilePath string `json:"filePath" validate:"omitempty,max=4096"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	pipeline.Summary
}

type aggregateRequest struct {
	dataRequest
	Limit int `json:"limit" validate:"gte=0"`
}

type aggregateResponse struct {
	Success        bool                    `json:"success"`
	Message        string                  `json:"message"`
	Period         string                  `json:"period"`
	Validation     aggregate.Validation    `json:"validation"`
	Skipped        aggregate.Skipped       `json:"skipped"`
	Total          int                     `json:"total"`
	AggregatedData []core.AggregatedRecord `json:"aggregated_data"`
}

type visualizeRequest struct {
	dataRequest
	CustomerID string `json:"customerId" validate:"required"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
}

type riskRequest struct {
	dataRequest
	ThresholdPct   *float64 `json:"thresholdPct" validate:"omitempty,gte=0"`
	ThresholdValue *float64 `json:"thresholdValue" validate:"omitempty,gte=0"`
}

type predictRequest struct {
	FilePath          string   `json:"filePath" validate:"omitempty,max=4096"`
	InactivityPeriods *int     `json:"inactivityPeriods" validate:"omitempty,gte=0"`
	TestSize          *float64 `json:"testSize" validate:"omitempty,gt=0,lt=1"`
	Cutoff            *float64 `json:"cutoff" validate:"omitempty,gt=0,lt=1"`
	Trees             *int     `json:"trees" validate:"omitempty,gte=1,lte=1000"`
}

type predictResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*churn.Report
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	path, err := s.resolvePath(req.FilePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := pipeline.Load(r.Context(), s.loader, path, s.pipelineOptions())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum := st.Summary()
	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Message: fmt.Sprintf("File loaded: %d rows, %d columns", sum.Rows, len(sum.Columns)),
		Summary: sum,
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.analyze(r.Context(), req.dataRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res := st.Aggregation
	records := res.Records
	if req.Limit > 0 && req.Limit < len(records) {
		records = records[:req.Limit]
	}
	if records == nil {
		records = []core.AggregatedRecord{}
	}
	writeJSON(w, http.StatusOK, aggregateResponse{
		Success:        true,
		Message:        fmt.Sprintf("Aggregated into %d records", len(res.Records)),
		Period:         res.Span.String(),
		Validation:     res.Validation,
		Skipped:        res.Skipped,
		Total:          len(res.Records),
		AggregatedData: records,
	})
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.analyze(r.Context(), req.dataRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	points, err := st.Trends(req.CustomerID, req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points == nil {
		points = []core.TrendRecord{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleIdentifyRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := risk.NewRule(req.ThresholdPct, req.ThresholdValue)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.analyze(r.Context(), req.dataRequest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flags, err := st.AtRisk(rule)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Server) handlePredictRisk(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := s.defaults.Churn
	if req.InactivityPeriods != nil {
		opts.InactivityPeriods = *req.InactivityPeriods
	}
	train := s.defaults.Train
	if req.TestSize != nil {
		train.TestSize = *req.TestSize
	}
	if req.Cutoff != nil {
		train.Cutoff = *req.Cutoff
	}
	forest := s.defaults.Forest
	if req.Trees != nil {
		forest.Trees = *req.Trees
	}

	path, err := s.resolvePath(req.FilePath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := pipeline.Analyze(r.Context(), s.loader, path, core.Monthly, s.pipelineOptions())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := st.PredictChurn(opts, train, classifier.NewForest(forest))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{
		Success: true,
		Message: fmt.Sprintf("%d of %d customers at risk of churning", len(report.AtRisk), report.Customers),
		Report:  report,
	})
}

// analyze loads and aggregates the dataset a request names.
func (s *Server) analyze(ctx context.Context, req dataRequest) (*pipeline.State, error) {
	path, err := s.resolvePath(req.FilePath)
	if err != nil {
		return nil, err
	}
	period, custom := req.Period, req.CustomPeriod
	if period == "" {
		period, custom = s.defaults.Period, s.defaults.CustomSpan
	}
	span, err := core.ParseGranularity(period, custom)
	if err != nil {
		return nil, err
	}
	return pipeline.Analyze(ctx, s.loader, path, span, s.pipelineOptions())
}

// decode reads an optional JSON body into req and validates it.
func (s *Server) decode(r *http.Request, req any) error {
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
			return &requestError{Fields: []string{"body must be a JSON object: " + err.Error()}}
		}
	}
	return s.validate.Struct(req)
}
