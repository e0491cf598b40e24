package port

import (
	"context"

	"github.com/arklim/exam-bank-service/internal/core/domain"
)

// QuestionRepository defines persistence operations for exam questions.
type QuestionRepository interface {
	Create(ctx context.Context, question domain.Question) error
	GetByID(ctx context.Context, id string) (*domain.Question, error)
	List(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
	Update(ctx context.Context, question domain.Question) error
	Delete(ctx context.Context, id string) error
}
