package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/report"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ReportHandler serves generated health reports
type ReportHandler struct {
	generator report.Generator
	logger    *zap.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(generator report.Generator, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{generator: generator, logger: logger}
}

// RegisterRoutes registers report routes
// The router should already have the /report prefix
func (h *ReportHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetReport).Methods("GET")
}

// GetReport generates a report for the authenticated user and returns it unwrapped.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	rep, err := h.generator.Generate(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("report_request_failed",
			zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
			zap.String("error", logger.SanitizeError(err)),
		)
		message, details := reportError(err)
		respondJSONError(w, http.StatusInternalServerError, message, details)
		return
	}

	respondJSON(w, http.StatusOK, rep)
}

// reportError maps pipeline failures to client-facing messages. Required
// collection failures carry the underlying store error as details.
func reportError(err error) (message, details string) {
	var collectionErr *report.CollectionError
	switch {
	case errors.As(err, &collectionErr):
		return "Failed to load " + collectionErr.Collection, logger.SanitizeError(collectionErr.Err)
	case errors.Is(err, models.ErrMalformedReport):
		return "The report could not be generated, please try again", ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Report generation was cancelled", ""
	default:
		return "Failed to generate report", ""
	}
}
