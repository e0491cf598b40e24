package port

import (
	"context"
	"time"
)

// VerificationStore tracks consumable proofs that an email address passed OTP
// verification. A proof is valid for a limited grace period and is removed
// once consumed.
type VerificationStore interface {
	MarkVerified(ctx context.Context, email string, at time.Time) error
	Consume(ctx context.Context, email string, reference time.Time) (bool, error)
}
