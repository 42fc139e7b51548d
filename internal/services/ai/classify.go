package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/health-report/internal/logger"
	"github.com/benvon/health-report/internal/models"
	"go.uber.org/zap"
)

// ErrMissingInput is returned when there is nothing to classify.
var ErrMissingInput = errors.New("missing data for classification")

const classifyMaxTokens = 150

// Classifier assigns uploads to the fixed category taxonomy using a vision model.
type Classifier struct {
	completer Completer
	uploader  FileUploader
	model     string
	logger    *zap.Logger
}

// NewClassifier creates a classifier. model may be empty to use DefaultClassifyModel.
func NewClassifier(completer Completer, uploader FileUploader, model string, log *zap.Logger) *Classifier {
	if model == "" {
		model = DefaultClassifyModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{completer: completer, uploader: uploader, model: model, logger: log}
}

// taxonomyDescription renders the category list shown to the model.
func taxonomyDescription() string {
	var b strings.Builder
	b.WriteString("Categories and Subcategories:\n")
	for _, c := range models.CategoryOrder {
		subs := models.Categories[c]
		if subs == nil {
			fmt.Fprintf(&b, "- %s (no subcategory)\n", c)
			continue
		}
		fmt.Fprintf(&b, "- %s\n", c)
		for _, s := range subs {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}
	return b.String()
}

func classificationPrompt(subject string) string {
	var rules strings.Builder
	for _, c := range models.CategoryOrder {
		subs := models.Categories[c]
		if subs == nil {
			fmt.Fprintf(&rules, "- For category '%s', the subcategory MUST be null.\n", c)
			continue
		}
		fmt.Fprintf(&rules, "- For category '%s', choose one subcategory from [%s].\n", c, strings.Join(subs, ", "))
	}

	return fmt.Sprintf(`Classify %s using ONLY the following categories and subcategories:

%s
Respond ONLY with a valid JSON object containing the 'category' and 'subcategory' keys. Use the exact string values provided in the list.
%s
Example valid JSON response: {"category": "diet", "subcategory": "receipts"}
Example valid JSON response: {"category": "selfies", "subcategory": null}

Ensure the output is ONLY a valid JSON object matching this structure and the rules specified.`,
		subject, taxonomyDescription(), rules.String())
}

// parseClassification decodes and strictly validates a model response.
func parseClassification(content string) (models.Classification, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Classification{}, fmt.Errorf("%w: empty response", models.ErrInvalidClassification)
	}
	var c models.Classification
	if err := json.Unmarshal([]byte(content), &c); err != nil {
		return models.Classification{}, fmt.Errorf("%w: failed to parse response: %v", models.ErrInvalidClassification, err)
	}
	if c.Category == nil {
		return models.Classification{}, fmt.Errorf("%w: response has no category", models.ErrInvalidClassification)
	}
	if err := c.Validate(); err != nil {
		return models.Classification{}, err
	}
	return c, nil
}

// ClassifyImage classifies an image given as a base64 data URI.
func (c *Classifier) ClassifyImage(ctx context.Context, dataURI string) (models.Classification, error) {
	if strings.TrimSpace(dataURI) == "" {
		return models.Classification{}, ErrMissingInput
	}

	content, err := c.completer.CompleteJSON(ctx, CompletionRequest{
		Operation:           "classify_image",
		Model:               c.model,
		Parts:               []Part{TextPart(classificationPrompt("the image")), ImagePart(dataURI)},
		MaxCompletionTokens: classifyMaxTokens,
	})
	if err != nil {
		return models.Classification{}, fmt.Errorf("classification failed: %w", err)
	}
	return parseClassification(content)
}

// ClassifyFile classifies raw upload bytes by MIME type. PDFs go through a temporary
// provider upload that is deleted before returning. Unsupported types, and PDFs whose
// upload fails, yield an all-null classification.
func (c *Classifier) ClassifyFile(ctx context.Context, fileName, contentType string, data []byte) (models.Classification, error) {
	if len(data) == 0 {
		return models.Classification{}, ErrMissingInput
	}

	switch models.KindOfMime(contentType) {
	case models.ContentKindImage:
		return c.ClassifyImage(ctx, DataURI(contentType, data))
	case models.ContentKindPDF:
		return c.classifyPDF(ctx, fileName, data)
	default:
		c.logger.Debug("classification_unsupported_type",
			zap.String("content_type", logger.SanitizeString(contentType, 100)),
		)
		return models.Unclassified(), nil
	}
}

func (c *Classifier) classifyPDF(ctx context.Context, fileName string, data []byte) (models.Classification, error) {
	fileID, err := c.uploader.UploadFile(ctx, fileName, models.MimeTypePDF, data, FilePurposeUserData)
	if err != nil {
		c.logger.Warn("classification_upload_failed",
			zap.String("file_name", logger.SanitizeFileName(fileName)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return models.Unclassified(), nil
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := c.uploader.DeleteFile(cleanupCtx, fileID); err != nil {
			c.logger.Warn("external_upload_delete_failed",
				zap.String("file_id", fileID),
				zap.String("operation", "classify_file"),
				zap.String("error", logger.SanitizeError(err)),
			)
		}
	}()

	subject := fmt.Sprintf("the attached document (file name: %q)", fileName)
	content, err := c.completer.CompleteJSON(ctx, CompletionRequest{
		Operation:           "classify_file",
		Model:               c.model,
		Parts:               []Part{TextPart(classificationPrompt(subject)), FilePart(fileID)},
		MaxCompletionTokens: classifyMaxTokens,
	})
	if err != nil {
		return models.Classification{}, fmt.Errorf("classification failed: %w", err)
	}
	return parseClassification(content)
}

// DataURI encodes data as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
