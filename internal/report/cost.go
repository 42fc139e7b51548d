package report

import "unicode/utf8"

// EstimateCost approximates the generator's token count as one unit per four
// characters, rounded up. It is a budgeting heuristic, not a tokenizer, and
// undercounts dense or non-Latin text.
func EstimateCost(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

const (
	// DefaultBudgetCeiling is the maximum committed cost of one prompt.
	DefaultBudgetCeiling = 20000
	// DefaultImageAllowance is the cost reserved for one inline low-detail image.
	DefaultImageAllowance = 800
	// DefaultPDFAllowance is the cost reserved for one referenced PDF.
	DefaultPDFAllowance = 1500
)

// Budget bounds the size of an assembled prompt.
type Budget struct {
	Ceiling        int
	ImageAllowance int
	PDFAllowance   int
}

// DefaultBudget returns the production tuning.
func DefaultBudget() Budget {
	return Budget{
		Ceiling:        DefaultBudgetCeiling,
		ImageAllowance: DefaultImageAllowance,
		PDFAllowance:   DefaultPDFAllowance,
	}
}
