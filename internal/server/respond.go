package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/leapstack-labs/churnwatch/internal/ingest"
	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	ValidationErrors []string `json:"validationErrors,omitempty"`
	AvailableColumns []string `json:"availableColumns,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorResponse) {
	body := errorResponse{Message: err.Error()}

	var (
		reqErr      *requestError
		missing     *core.MissingRoleError
		format      *ingest.FormatError
		granularity *core.InvalidGranularityError
		monthly     *core.MonthlyRequiredError
		date        *core.UnresolvableDateError
		single      *core.SingleClassLabelError
		customer    *core.UnknownCustomerError
	)
	switch {
	case errors.As(err, &reqErr):
		body.ValidationErrors = reqErr.Fields
		return http.StatusBadRequest, body
	case errors.As(err, &missing):
		body.Message = "required columns could not be identified"
		body.ValidationErrors = missing.Messages()
		body.AvailableColumns = missing.Available
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, errOutsideDataDir):
		return http.StatusForbidden, body
	case errors.Is(err, fs.ErrNotExist), errors.As(err, &customer):
		return http.StatusNotFound, body
	case errors.As(err, &format), errors.As(err, &granularity),
		errors.As(err, &monthly), errors.Is(err, core.ErrConflictingRules):
		return http.StatusBadRequest, body
	case errors.As(err, &date), errors.As(err, &single):
		return http.StatusUnprocessableEntity, body
	default:
		return http.StatusInternalServerError, body
	}
}
