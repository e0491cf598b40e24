package port

import (
	"context"

	"github.com/arklim/exam-bank-service/internal/core/domain"
)

// EventPublisher defines the interface for publishing domain events.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishEmailVerified(ctx context.Context, event domain.EmailVerifiedEvent) error
	PublishQuestionCreated(ctx context.Context, event domain.QuestionChangedEvent) error
	PublishQuestionUpdated(ctx context.Context, event domain.QuestionChangedEvent) error
	PublishQuestionDeleted(ctx context.Context, event domain.QuestionChangedEvent) error
}
