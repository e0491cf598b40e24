package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arklim/exam-bank-service/internal/core/port"
)

// VerificationStore tracks consumable email-verification proofs in memory.
// Each proof is valid for the configured grace period and is removed on
// consumption.
type VerificationStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	proofs map[string]time.Time
}

// NewVerificationStore constructs a store whose proofs expire after ttl.
func NewVerificationStore(ttl time.Duration) *VerificationStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &VerificationStore{ttl: ttl, proofs: make(map[string]time.Time)}
}

// MarkVerified records that the email passed verification at the given time.
func (s *VerificationStore) MarkVerified(_ context.Context, email string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.proofs[strings.ToLower(strings.TrimSpace(email))] = at.Add(s.ttl)
	return nil
}

// Consume removes and returns whether a still-valid proof existed for the
// email at the reference time.
func (s *VerificationStore) Consume(_ context.Context, email string, reference time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(email))
	expiresAt, ok := s.proofs[key]
	if !ok {
		return false, nil
	}

	delete(s.proofs, key)
	if reference.After(expiresAt) {
		return false, nil
	}

	return true, nil
}

var _ port.VerificationStore = (*VerificationStore)(nil)
