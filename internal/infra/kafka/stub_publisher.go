package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs exambank.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"full_name":     event.FullName,
		"email":         logger.MaskEmail(event.Email),
		"role":          event.Role,
		"registered_at": event.RegisteredAt,
	}
	p.logEvent("exambank.user.registered", event.RegisteredAt, payload)
	return nil
}

// PublishEmailVerified logs exambank.user.email_verified events.
func (p *StubPublisher) PublishEmailVerified(_ context.Context, event domain.EmailVerifiedEvent) error {
	payload := map[string]any{
		"email":       logger.MaskEmail(event.Email),
		"verified_at": event.VerifiedAt,
	}
	p.logEvent("exambank.user.email_verified", event.VerifiedAt, payload)
	return nil
}

func (p *StubPublisher) logQuestionChanged(eventType string, event domain.QuestionChangedEvent) {
	payload := map[string]any{
		"question_id": event.QuestionID,
		"subject":     event.Subject,
		"exam_type":   event.ExamType,
		"actor_id":    event.ActorID,
		"occurred_at": event.OccurredAt,
	}
	p.logEvent(eventType, event.OccurredAt, payload)
}

// PublishQuestionCreated logs exambank.question.created events.
func (p *StubPublisher) PublishQuestionCreated(_ context.Context, event domain.QuestionChangedEvent) error {
	p.logQuestionChanged("exambank.question.created", event)
	return nil
}

// PublishQuestionUpdated logs exambank.question.updated events.
func (p *StubPublisher) PublishQuestionUpdated(_ context.Context, event domain.QuestionChangedEvent) error {
	p.logQuestionChanged("exambank.question.updated", event)
	return nil
}

// PublishQuestionDeleted logs exambank.question.deleted events.
func (p *StubPublisher) PublishQuestionDeleted(_ context.Context, event domain.QuestionChangedEvent) error {
	p.logQuestionChanged("exambank.question.deleted", event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
