package port

import (
	"context"
	"time"

	"github.com/arklim/exam-bank-service/internal/core/domain"
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	CountByRole(ctx context.Context, role domain.UserRole) (int, error)
}
