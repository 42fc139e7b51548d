package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/services/ai"
	"github.com/benvon/health-report/internal/validation"
	"go.uber.org/zap"
)

// systemInstruction frames the analysis rules and the canonical response schema.
const systemInstruction = `You are a health assistant that analyzes one user's health data and writes a personalized report. Use only the data in the user message: profile facts, notes, uploaded file metadata with any attached images and PDFs, and activities imported from fitness integrations.

How to read the data:
- The first line gives the current date and time. Every note, file and activity carries its own timestamp.
- Notes are the user's own reports of symptoms, feelings and changes.
- Files have a category and subcategory. "diet" files (receipts, food photos) show what the user actually eats, which is not necessarily healthy; assess them critically. "selfies" are photos of the user. "health" files are medical documents such as lab results, prescriptions and doctor notes. "integrations" data comes from fitness trackers.
- Sections ending with a truncation line were cut to fit the context. Do not speculate about the missing entries.

Rules:
1. Recency first. Recent data outweighs older data; a recent lab report takes precedence over old unrelated notes.
2. Ground every statement in the supplied data and never invent facts. When diet data shows a problem, say so and suggest an improvement.
3. In every "reason", explain the basis in plain language that refers to the kind and timing of the data ("your recent note about poor sleep", "the lab report you uploaded last week"). Never quote file names or raw timestamps.
4. No generic advice. Only recommend something general when the data shows a matching problem.
5. Make each item a concrete action for this particular user.
6. Respond with a single JSON object with exactly these keys and nothing outside it:

{
  "statusQuo": "Two or three sentences summarizing the user's current health situation",
  "painPoints": [ { "point": "...", "reason": "..." } ],
  "dietTips": [ { "tip": "...", "reason": "..." } ],
  "habitTips": [ { "tip": "...", "reason": "..." } ],
  "supplementProposals": [ { "supplement": "...", "reason": "..." } ],
  "fitnessTips": [ { "tip": "...", "reason": "..." } ],
  "shoppingList": [ { "item": "...", "reason": "Supports the diet tip about ..." } ]
}

Give three dietTips, three habitTips and three supplementProposals. Use an empty array for painPoints or fitnessTips when the data supports none. Derive the shoppingList from the dietTips.`

// DefaultReportMaxTokens caps the generator's output, reasoning included.
const DefaultReportMaxTokens = 16000

// Invoker sends assembled fragments to the generator and validates the response.
type Invoker struct {
	completer ai.Completer
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewInvoker creates an invoker. An empty model uses the completer's default.
func NewInvoker(completer ai.Completer, model string, log *zap.Logger) *Invoker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Invoker{
		completer: completer,
		model:     model,
		maxTokens: DefaultReportMaxTokens,
		logger:    log,
	}
}

// Parts converts fragments into message parts. Unresolved binaries are skipped.
func Parts(fragments []Fragment) []ai.Part {
	parts := make([]ai.Part, 0, len(fragments))
	for _, f := range fragments {
		switch f.Kind {
		case KindText:
			parts = append(parts, ai.TextPart(f.Text))
		case KindInlineBinary:
			if f.Pending || f.DataURI == "" {
				continue
			}
			parts = append(parts, ai.ImagePart(f.DataURI))
		case KindExternalHandle:
			if f.Pending || f.FileID == "" {
				continue
			}
			parts = append(parts, ai.FilePart(f.FileID))
		}
	}
	return parts
}

// Invoke makes exactly one completion call. Transport failures are returned wrapped;
// every response problem is a *models.MalformedReportError.
func (i *Invoker) Invoke(ctx context.Context, fragments []Fragment) (*models.HealthReport, error) {
	raw, err := i.completer.CompleteJSON(ctx, ai.CompletionRequest{
		Operation:           "generate_report",
		Model:               i.model,
		System:              systemInstruction,
		Parts:               Parts(fragments),
		MaxCompletionTokens: i.maxTokens,
	})
	if errors.Is(err, ai.ErrNoChoicesInResponse) {
		return nil, &models.MalformedReportError{Reason: "empty response", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}

	report, err := validation.DecodeHealthReport(raw)
	if err != nil {
		i.logger.Warn("report_response_rejected",
			zap.Int("response_length", len(raw)),
			zap.Error(err),
		)
		return nil, err
	}
	return report, nil
}
