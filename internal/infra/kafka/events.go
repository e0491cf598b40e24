package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes exambank.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		FullName     string    `json:"full_name"`
		Email        string    `json:"email"`
		Role         string    `json:"role"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		FullName:     event.FullName,
		Email:        logger.MaskEmail(event.Email),
		Role:         event.Role,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "exambank.user.registered", event.RegisteredAt, payload)
}

// PublishEmailVerified publishes exambank.user.email_verified events.
func (p *EventPublisher) PublishEmailVerified(ctx context.Context, event domain.EmailVerifiedEvent) error {
	payload := struct {
		Email      string    `json:"email"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		Email:      logger.MaskEmail(event.Email),
		VerifiedAt: event.VerifiedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "exambank.user.email_verified", event.VerifiedAt, payload)
}

func (p *EventPublisher) publishQuestionChanged(ctx context.Context, eventType string, event domain.QuestionChangedEvent) error {
	payload := struct {
		QuestionID string    `json:"question_id"`
		Subject    string    `json:"subject"`
		ExamType   string    `json:"exam_type"`
		ActorID    string    `json:"actor_id,omitempty"`
		OccurredAt time.Time `json:"occurred_at"`
	}{
		QuestionID: event.QuestionID,
		Subject:    event.Subject,
		ExamType:   event.ExamType,
		ActorID:    event.ActorID,
		OccurredAt: event.OccurredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventType, event.OccurredAt, payload)
}

// PublishQuestionCreated publishes exambank.question.created events.
func (p *EventPublisher) PublishQuestionCreated(ctx context.Context, event domain.QuestionChangedEvent) error {
	return p.publishQuestionChanged(ctx, "exambank.question.created", event)
}

// PublishQuestionUpdated publishes exambank.question.updated events.
func (p *EventPublisher) PublishQuestionUpdated(ctx context.Context, event domain.QuestionChangedEvent) error {
	return p.publishQuestionChanged(ctx, "exambank.question.updated", event)
}

// PublishQuestionDeleted publishes exambank.question.deleted events.
func (p *EventPublisher) PublishQuestionDeleted(ctx context.Context, event domain.QuestionChangedEvent) error {
	return p.publishQuestionChanged(ctx, "exambank.question.deleted", event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
