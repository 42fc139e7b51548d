package queue

import (
	"context"
	"fmt"

	"github.com/benvon/health-report/internal/logger"
	"github.com/google/uuid"
)

// Producer turns domain events into jobs.
type Producer struct {
	queue Enqueuer
}

// NewProducer creates a producer publishing to q.
func NewProducer(q Enqueuer) *Producer {
	return &Producer{queue: q}
}

// EnqueueClassification schedules background classification of a stored upload.
func (p *Producer) EnqueueClassification(ctx context.Context, userID, fileID uuid.UUID) error {
	if err := p.queue.Enqueue(ctx, NewClassifyFileJob(userID, fileID)); err != nil {
		return fmt.Errorf("failed to enqueue classification: %w", err)
	}
	return nil
}

// RetryUploadDeletion hands a provider upload whose deletion failed to the worker.
func (p *Producer) RetryUploadDeletion(ctx context.Context, fileID string, cause error) error {
	reason := ""
	if cause != nil {
		reason = logger.SanitizeError(cause)
	}
	if err := p.queue.Enqueue(ctx, NewDeleteExternalUploadJob(fileID, reason)); err != nil {
		return fmt.Errorf("failed to enqueue upload deletion: %w", err)
	}
	return nil
}
