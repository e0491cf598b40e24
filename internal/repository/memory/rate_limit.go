package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arklim/exam-bank-service/internal/core/port"
)

// RateLimitStore keeps sliding-window attempt timestamps in process memory.
// Entries for an identifier are held in issuance order; pruning is lazy and
// happens on TrimWindow.
type RateLimitStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// NewRateLimitStore constructs an empty in-memory rate limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{attempts: make(map[string][]time.Time)}
}

// RecordAttempt appends the timestamp to the identifier's window.
func (s *RateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[identifier] = append(s.attempts[identifier], at)
	return nil
}

// CountAttempts returns how many attempts occurred within the window ending
// at reference time.
func (s *RateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := reference.Add(-window)
	count := 0
	for _, at := range s.attempts[identifier] {
		if at.After(threshold) && !at.After(reference) {
			count++
		}
	}

	return count, nil
}

// TrimWindow removes attempts older than the provided window relative to
// reference time. Identifiers with no remaining attempts are deleted.
func (s *RateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := reference.Add(-window)
	kept := s.attempts[identifier][:0]
	for _, at := range s.attempts[identifier] {
		if at.After(threshold) {
			kept = append(kept, at)
		}
	}

	if len(kept) == 0 {
		delete(s.attempts, identifier)
		return nil
	}

	s.attempts[identifier] = kept
	return nil
}

// OldestAttempt returns the oldest attempt remaining inside the active window.
func (s *RateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range s.attempts[identifier] {
		if !at.After(threshold) || at.After(reference) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest = at
			found = true
		}
	}

	return oldest, found, nil
}

// ReleaseNewest drops the most recent attempt for the identifier. The
// identifier is removed entirely once its window is empty.
func (s *RateLimitStore) ReleaseNewest(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	window := s.attempts[identifier]
	if len(window) == 0 {
		return nil
	}

	newest := 0
	for i, at := range window {
		if at.After(window[newest]) {
			newest = i
		}
	}

	window = append(window[:newest], window[newest+1:]...)
	if len(window) == 0 {
		delete(s.attempts, identifier)
		return nil
	}

	s.attempts[identifier] = window
	return nil
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
