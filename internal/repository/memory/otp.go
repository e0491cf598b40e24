package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/repository"
)

// OTPStore keeps pending OTP records in process memory. Records do not
// survive a restart; the owning service treats that as acceptable.
type OTPStore struct {
	mu      sync.Mutex
	records map[string]*domain.OTPRecord
}

// NewOTPStore constructs an empty in-memory OTP store.
func NewOTPStore() *OTPStore {
	return &OTPStore{records: make(map[string]*domain.OTPRecord)}
}

// Store saves the record, replacing any existing record for the same email.
func (s *OTPStore) Store(_ context.Context, record domain.OTPRecord) error {
	email := strings.TrimSpace(record.Email)
	if email == "" {
		return repository.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := record
	copied.Email = email
	s.records[email] = &copied
	return nil
}

// Fetch returns a copy of the record for the email.
func (s *OTPStore) Fetch(_ context.Context, email string) (*domain.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[strings.TrimSpace(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}

	copied := *record
	return &copied, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (s *OTPStore) IncrementAttempts(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[strings.TrimSpace(email)]
	if !ok {
		return 0, repository.ErrNotFound
	}

	record.Attempts++
	return record.Attempts, nil
}

// Delete removes the record, enforcing single-use semantics.
func (s *OTPStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(email)
	if _, ok := s.records[key]; !ok {
		return repository.ErrNotFound
	}

	delete(s.records, key)
	return nil
}

// PurgeExpired removes all records past their expiry and reports how many
// were dropped.
func (s *OTPStore) PurgeExpired(_ context.Context, reference time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for email, record := range s.records {
		if record.Expired(reference) {
			delete(s.records, email)
			purged++
		}
	}

	return purged, nil
}

// Len reports the number of pending records, used by tests and metrics.
func (s *OTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ port.OTPStore = (*OTPStore)(nil)
