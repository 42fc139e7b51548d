package models

import (
	"errors"
	"fmt"
)

// HealthReport is the canonical report shape returned by GET /api/v1/report.
// Every slice is required; a missing or null key fails validation.
type HealthReport struct {
	StatusQuo           string               `json:"statusQuo" validate:"required"`
	PainPoints          []PainPoint          `json:"painPoints" validate:"required,dive"`
	DietTips            []Tip                `json:"dietTips" validate:"required,dive"`
	HabitTips           []Tip                `json:"habitTips" validate:"required,dive"`
	SupplementProposals []SupplementProposal `json:"supplementProposals" validate:"required,dive"`
	FitnessTips         []Tip                `json:"fitnessTips" validate:"required,dive"`
	ShoppingList        []ShoppingItem       `json:"shoppingList" validate:"required,dive"`
}

// PainPoint is an observed problem together with the evidence behind it.
type PainPoint struct {
	Point  string `json:"point" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// Tip is a diet, habit or fitness recommendation.
type Tip struct {
	Tip    string `json:"tip" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

type SupplementProposal struct {
	Supplement string `json:"supplement" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

type ShoppingItem struct {
	Item   string `json:"item" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// ErrMalformedReport is matched by every report decoding failure.
var ErrMalformedReport = errors.New("malformed report response")

// MalformedReportError describes why a generator response was rejected.
type MalformedReportError struct {
	Reason string
	Err    error
}

func (e *MalformedReportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedReport.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedReport.Error(), e.Reason)
}

func (e *MalformedReportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedReport) true for any *MalformedReportError.
func (e *MalformedReportError) Is(target error) bool {
	return target == ErrMalformedReport
}
