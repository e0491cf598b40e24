package memory

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitStore_CountAndTrim(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	timestamps := []time.Time{
		now.Add(-20 * time.Minute),
		now.Add(-10 * time.Minute),
		now.Add(-time.Minute),
	}
	for _, at := range timestamps {
		if err := store.RecordAttempt(ctx, "otp:user@example.com", at); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	count, err := store.CountAttempts(ctx, "otp:user@example.com", window, now)
	if err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 attempts inside window, got %d", count)
	}

	if err := store.TrimWindow(ctx, "otp:user@example.com", window, now); err != nil {
		t.Fatalf("trim window: %v", err)
	}

	oldest, found, err := store.OldestAttempt(ctx, "otp:user@example.com", window, now)
	if err != nil {
		t.Fatalf("oldest attempt: %v", err)
	}
	if !found {
		t.Fatalf("expected an attempt inside window")
	}
	if !oldest.Equal(now.Add(-10 * time.Minute)) {
		t.Fatalf("expected oldest %v, got %v", now.Add(-10*time.Minute), oldest)
	}
}

func TestRateLimitStore_ReleaseNewest(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	for _, at := range []time.Time{now.Add(-5 * time.Minute), now.Add(-time.Minute)} {
		if err := store.RecordAttempt(ctx, "otp:user@example.com", at); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}

	if err := store.ReleaseNewest(ctx, "otp:user@example.com"); err != nil {
		t.Fatalf("release newest: %v", err)
	}

	count, err := store.CountAttempts(ctx, "otp:user@example.com", window, now)
	if err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 attempt after release, got %d", count)
	}

	oldest, found, err := store.OldestAttempt(ctx, "otp:user@example.com", window, now)
	if err != nil {
		t.Fatalf("oldest attempt: %v", err)
	}
	if !found || !oldest.Equal(now.Add(-5*time.Minute)) {
		t.Fatalf("expected remaining attempt at %v, got %v (found=%v)", now.Add(-5*time.Minute), oldest, found)
	}
}

func TestRateLimitStore_ReleaseNewestDeletesEmptyWindow(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	if err := store.RecordAttempt(ctx, "otp:user@example.com", now); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if err := store.ReleaseNewest(ctx, "otp:user@example.com"); err != nil {
		t.Fatalf("release newest: %v", err)
	}

	if _, ok := store.attempts["otp:user@example.com"]; ok {
		t.Fatalf("expected identifier entry removed once window is empty")
	}

	// Releasing with no window present is a no-op.
	if err := store.ReleaseNewest(ctx, "otp:user@example.com"); err != nil {
		t.Fatalf("release on empty identifier: %v", err)
	}
}

func TestRateLimitStore_IndependentIdentifiers(t *testing.T) {
	store := NewRateLimitStore()
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	if err := store.RecordAttempt(ctx, "otp:a@example.com", now); err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	count, err := store.CountAttempts(ctx, "otp:b@example.com", window, now)
	if err != nil {
		t.Fatalf("count attempts: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected independent identifier to have 0 attempts, got %d", count)
	}
}
