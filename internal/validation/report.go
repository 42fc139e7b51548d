package validation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/benvon/health-report/internal/models"
)

// DecodeHealthReport parses a generator response and validates it against the
// canonical schema. Every failure is a *models.MalformedReportError.
func DecodeHealthReport(raw string) (*models.HealthReport, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &models.MalformedReportError{Reason: "empty response content"}
	}

	var report models.HealthReport
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&report); err != nil {
		return nil, &models.MalformedReportError{Reason: "response is not a JSON object in the report schema", Err: err}
	}
	if dec.More() {
		return nil, &models.MalformedReportError{Reason: "trailing data after JSON object"}
	}

	if err := Validate.Struct(&report); err != nil {
		return nil, &models.MalformedReportError{Reason: FormatErrors(err)}
	}

	return &report, nil
}
