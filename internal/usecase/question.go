package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/repository"
)

var (
	// ErrQuestionNotFound indicates no question exists for the requested identifier.
	ErrQuestionNotFound = errors.New("question not found")
)

// FieldError describes a single validation failure on question input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates the field errors for a rejected question.
type ValidationError struct {
	Fields []FieldError
}

// Error implements error for ValidationError.
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid question"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid question: " + strings.Join(parts, "; ")
}

// QuestionInput carries the user-supplied fields for create and update.
type QuestionInput struct {
	Subject        string
	ExamType       string
	Year           string
	Month          string
	Group          string
	PaperName      string
	QuestionNumber int
	QuestionText   string
	AnswerText     string
	PageNumber     string
	SubQuestions   []domain.SubQuestion
}

// QuestionService manages the exam question bank.
type QuestionService struct {
	questions port.QuestionRepository
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewQuestionService constructs a QuestionService.
func NewQuestionService(questions port.QuestionRepository, events port.EventPublisher, log *zap.Logger) *QuestionService {
	if log == nil {
		log = zap.NewNop()
	}

	return &QuestionService{
		questions: questions,
		events:    events,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *QuestionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// titleCase normalizes free-form subject input ("advanced ACCOUNTING" ->
// "Advanced Accounting") before matching it against the allowed list.
// Separator words like "&" keep their original form.
func titleCase(value string) string {
	words := strings.Fields(strings.TrimSpace(value))
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		for j, r := range runes {
			if r >= 'a' && r <= 'z' {
				runes[j] = r - ('a' - 'A')
				break
			}
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *QuestionService) validate(input QuestionInput) (QuestionInput, error) {
	var fields []FieldError

	input.Subject = titleCase(input.Subject)
	if !containsString(domain.Subjects(), input.Subject) {
		fields = append(fields, FieldError{Field: "subject", Message: "must be one of the allowed subjects"})
	}

	input.ExamType = strings.ToUpper(strings.TrimSpace(input.ExamType))
	if input.ExamType != domain.ExamTypeMTP && input.ExamType != domain.ExamTypeRTP {
		fields = append(fields, FieldError{Field: "examType", Message: "must be MTP or RTP"})
	}

	input.Year = strings.TrimSpace(input.Year)
	if !isDigits(input.Year) || len(input.Year) != 4 {
		fields = append(fields, FieldError{Field: "year", Message: "must be a four-digit year"})
	}

	input.Month = strings.TrimSpace(input.Month)

	input.Group = strings.TrimSpace(input.Group)
	if !containsString(domain.Groups(), input.Group) {
		fields = append(fields, FieldError{Field: "group", Message: "must be Group I or Group II"})
	}

	input.PaperName = strings.TrimSpace(input.PaperName)
	if !containsString(domain.Papers(), input.PaperName) {
		fields = append(fields, FieldError{Field: "paperName", Message: "must be Paper 01 through Paper 06"})
	}

	if input.QuestionNumber <= 0 {
		fields = append(fields, FieldError{Field: "questionNumber", Message: "must be a positive integer"})
	}

	input.QuestionText = strings.TrimSpace(input.QuestionText)
	if input.QuestionText == "" {
		fields = append(fields, FieldError{Field: "questionText", Message: "is required"})
	}

	input.PageNumber = strings.TrimSpace(input.PageNumber)
	if input.PageNumber != "" && !isDigits(input.PageNumber) {
		fields = append(fields, FieldError{Field: "pageNumber", Message: "must contain digits only"})
	}

	for i, sub := range input.SubQuestions {
		if strings.TrimSpace(sub.SubQuestionText) == "" {
			fields = append(fields, FieldError{
				Field:   fmt.Sprintf("subQuestions[%d].subQuestionText", i),
				Message: "is required",
			})
		}
		for j, opt := range sub.SubOptions {
			if strings.TrimSpace(opt.OptionText) == "" {
				fields = append(fields, FieldError{
					Field:   fmt.Sprintf("subQuestions[%d].subOptions[%d].optionText", i, j),
					Message: "is required",
				})
			}
		}
	}

	if len(fields) > 0 {
		return input, &ValidationError{Fields: fields}
	}

	return input, nil
}

// Create validates and stores a new question, then publishes a created event.
func (s *QuestionService) Create(ctx context.Context, input QuestionInput, actorID string) (*domain.Question, error) {
	input, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	question := domain.Question{
		ID:             uuid.NewString(),
		Subject:        input.Subject,
		ExamType:       input.ExamType,
		Year:           input.Year,
		Month:          input.Month,
		Group:          input.Group,
		PaperName:      input.PaperName,
		QuestionNumber: input.QuestionNumber,
		QuestionText:   input.QuestionText,
		AnswerText:     input.AnswerText,
		PageNumber:     input.PageNumber,
		SubQuestions:   input.SubQuestions,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.questions.Create(ctx, question); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	s.logger.Info("question created",
		zap.String("question_id", question.ID),
		zap.String("subject", question.Subject),
	)

	s.publishChange(ctx, question, actorID, "created")

	return &question, nil
}

// Get returns a single question by identifier.
func (s *QuestionService) Get(ctx context.Context, id string) (*domain.Question, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("question id is required")
	}

	question, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("fetch question: %w", err)
	}

	return question, nil
}

// List returns questions matching the filter, newest first.
func (s *QuestionService) List(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error) {
	if filter.Subject != "" {
		filter.Subject = titleCase(filter.Subject)
	}

	questions, err := s.questions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	return questions, nil
}

// Update validates and replaces an existing question, then publishes an
// updated event.
func (s *QuestionService) Update(ctx context.Context, id string, input QuestionInput, actorID string) (*domain.Question, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("question id is required")
	}

	input, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("fetch question: %w", err)
	}

	question := domain.Question{
		ID:             existing.ID,
		Subject:        input.Subject,
		ExamType:       input.ExamType,
		Year:           input.Year,
		Month:          input.Month,
		Group:          input.Group,
		PaperName:      input.PaperName,
		QuestionNumber: input.QuestionNumber,
		QuestionText:   input.QuestionText,
		AnswerText:     input.AnswerText,
		PageNumber:     input.PageNumber,
		SubQuestions:   input.SubQuestions,
		CreatedAt:      existing.CreatedAt,
		UpdatedAt:      s.now().UTC(),
	}

	if err := s.questions.Update(ctx, question); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}

	s.logger.Info("question updated",
		zap.String("question_id", question.ID),
	)

	s.publishChange(ctx, question, actorID, "updated")

	return &question, nil
}

// Delete removes a question and publishes a deleted event.
func (s *QuestionService) Delete(ctx context.Context, id, actorID string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("question id is required")
	}

	existing, err := s.questions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("fetch question: %w", err)
	}

	if err := s.questions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("delete question: %w", err)
	}

	s.logger.Info("question deleted",
		zap.String("question_id", id),
	)

	s.publishChange(ctx, *existing, actorID, "deleted")

	return nil
}

func (s *QuestionService) publishChange(ctx context.Context, question domain.Question, actorID, action string) {
	if s.events == nil {
		return
	}

	event := domain.QuestionChangedEvent{
		EventID:    uuid.NewString(),
		QuestionID: question.ID,
		Subject:    question.Subject,
		ExamType:   question.ExamType,
		ActorID:    actorID,
		OccurredAt: s.now().UTC(),
	}

	var err error
	switch action {
	case "created":
		err = s.events.PublishQuestionCreated(ctx, event)
	case "updated":
		err = s.events.PublishQuestionUpdated(ctx, event)
	case "deleted":
		err = s.events.PublishQuestionDeleted(ctx, event)
	}

	if err != nil {
		s.logger.Warn("publish question event failed",
			zap.String("action", action),
			zap.String("question_id", question.ID),
			zap.Error(err),
		)
	}
}
