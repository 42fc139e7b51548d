package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultReportModel is the model used for report generation
	DefaultReportModel = "o4-mini-2025-04-16"
	// DefaultClassifyModel is the vision model used for upload classification
	DefaultClassifyModel = "gpt-4o-2024-11-20"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds every API call, including report generation
	DefaultTimeout = 120 * time.Second
	// UploadExpirySeconds is the provider-side expiry set on temporary uploads.
	// Uploads are deleted explicitly; expiry only catches leaks.
	UploadExpirySeconds = 24 * 60 * 60
)

// ErrNoChoicesInResponse is returned when the API response has no choices
var ErrNoChoicesInResponse = errors.New("no choices in response")

// OpenAIProvider talks to the OpenAI chat completions and files APIs.
// One provider is created per process and shared by all requests.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// ProviderOptions configures NewOpenAIProvider.
type ProviderOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	Logger    *zap.Logger
	DebugMode bool
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// NewOpenAIProvider creates a provider. Model is the default used when a request names none.
func NewOpenAIProvider(opts ProviderOptions) *OpenAIProvider {
	if opts.Model == "" {
		opts.Model = DefaultReportModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultOpenAIBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(opts.APIKey),
		option.WithBaseURL(opts.BaseURL),
		option.WithHTTPClient(httpClient),
		// Generation is never retried; a failed call fails the request.
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:    client,
		model:     opts.Model,
		logger:    opts.Logger,
		debugMode: opts.DebugMode,
	}
}

// toContentParts converts parts into SDK content parts, merging adjacent text.
func toContentParts(parts []Part) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			out = append(out, openai.TextContentPart(text.String()))
			text.Reset()
		}
	}
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			text.WriteString(p.Text)
		case PartImage:
			flush()
			detail := p.Detail
			if detail == "" {
				detail = "low"
			}
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    p.ImageURL,
				Detail: detail,
			}))
		case PartFile:
			flush()
			out = append(out, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileID: openai.String(p.FileID),
			}))
		}
	}
	flush()
	return out
}

// promptPreview renders the text parts for debug logs with binary parts as placeholders.
func promptPreview(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		switch p.Kind {
		case PartText:
			b.WriteString(p.Text)
		case PartImage:
			b.WriteString("[image]\n")
		case PartFile:
			b.WriteString("[file " + p.FileID + "]\n")
		}
	}
	return b.String()
}

// CompleteJSON sends one JSON-mode completion with a system instruction and a multi-part user message.
func (p *OpenAIProvider) CompleteJSON(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	operation := req.Operation
	if operation == "" {
		operation = "complete_json"
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(toContentParts(req.Parts)))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		// Temperature omitted; reasoning models only accept their default
	}
	if req.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxCompletionTokens))
	}

	requestID := ExtractRequestID(ctx)
	userID := HashUserID(ExtractUserID(ctx))
	if p.debugMode {
		preview := promptPreview(req.Parts)
		p.logger.Debug("llm_api_request",
			zap.String("operation", operation),
			zap.String("model", model),
			zap.Int("part_count", len(req.Parts)),
			zap.Int("prompt_length", len(preview)),
			zap.String("prompt_preview", SanitizePrompt(preview, true)),
			zap.String("user_id_hash", userID),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		if p.debugMode {
			p.logger.Debug("llm_api_error",
				zap.String("operation", operation),
				zap.String("model", model),
				zap.Error(err),
				zap.String("user_id_hash", userID),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("failed to %s: %w", strings.ReplaceAll(operation, "_", " "), apiErr)
		}
		return "", fmt.Errorf("failed to %s: %w", strings.ReplaceAll(operation, "_", " "), err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesInResponse
	}
	content := resp.Choices[0].Message.Content

	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", operation),
			zap.String("model", model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("finish_reason", resp.Choices[0].FinishReason),
			zap.String("user_id_hash", userID),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

// UploadFile stores data with the provider and returns its file id. Uploads carry an
// expiry so that a missed delete cannot retain user data indefinitely.
func (p *OpenAIProvider) UploadFile(ctx context.Context, fileName, contentType string, data []byte, purpose FilePurpose) (string, error) {
	start := time.Now()
	obj, err := p.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(data), fileName, contentType),
		Purpose: openai.FilePurpose(purpose),
		ExpiresAfter: openai.FileNewParamsExpiresAfter{
			Seconds: UploadExpirySeconds,
		},
	})
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("failed to upload file: %w", apiErr)
		}
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	p.logger.Debug("external_upload_created",
		zap.String("file_id", obj.ID),
		zap.String("purpose", string(purpose)),
		zap.Int("bytes", len(data)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		zap.String("request_id", ExtractRequestID(ctx)),
	)
	return obj.ID, nil
}

// DeleteFile removes a provider-side file.
func (p *OpenAIProvider) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := p.client.Files.Delete(ctx, fileID); err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return fmt.Errorf("failed to delete file %s: %w", fileID, apiErr)
		}
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	p.logger.Debug("external_upload_deleted", zap.String("file_id", fileID))
	return nil
}

// ListFiles returns every provider-side file with the given purpose.
func (p *OpenAIProvider) ListFiles(ctx context.Context, purpose FilePurpose) ([]UploadedFileInfo, error) {
	params := openai.FileListParams{}
	if purpose != "" {
		params.Purpose = openai.String(string(purpose))
	}

	var files []UploadedFileInfo
	iter := p.client.Files.ListAutoPaging(ctx, params)
	for iter.Next() {
		f := iter.Current()
		files = append(files, UploadedFileInfo{
			ID:        f.ID,
			FileName:  f.Filename,
			Purpose:   string(f.Purpose),
			Bytes:     f.Bytes,
			CreatedAt: time.Unix(f.CreatedAt, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}
