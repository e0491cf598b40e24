package port

import (
	"context"
	"time"

	"github.com/arklim/exam-bank-service/internal/core/domain"
)

// OTPStore persists pending one-time codes keyed by email. Store replaces any
// existing record for the same email.
type OTPStore interface {
	Store(ctx context.Context, record domain.OTPRecord) error
	Fetch(ctx context.Context, email string) (*domain.OTPRecord, error)
	IncrementAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
	PurgeExpired(ctx context.Context, reference time.Time) (int, error)
}
