package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/repository"
)

func TestOTPStore_StoreReplacesExistingRecord(t *testing.T) {
	store := NewOTPStore()
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	first := domain.OTPRecord{Email: "user@example.com", CodeDigest: "digest-1", IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute)}
	if err := store.Store(ctx, first); err != nil {
		t.Fatalf("store first record: %v", err)
	}
	if _, err := store.IncrementAttempts(ctx, "user@example.com"); err != nil {
		t.Fatalf("increment attempts: %v", err)
	}

	second := domain.OTPRecord{Email: "user@example.com", CodeDigest: "digest-2", IssuedAt: now.Add(time.Minute), ExpiresAt: now.Add(6 * time.Minute)}
	if err := store.Store(ctx, second); err != nil {
		t.Fatalf("store second record: %v", err)
	}

	record, err := store.Fetch(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("fetch record: %v", err)
	}
	if record.CodeDigest != "digest-2" {
		t.Fatalf("expected replacement digest, got %s", record.CodeDigest)
	}
	if record.Attempts != 0 {
		t.Fatalf("expected attempts reset on replacement, got %d", record.Attempts)
	}
}

func TestOTPStore_FetchMissingReturnsNotFound(t *testing.T) {
	store := NewOTPStore()
	if _, err := store.Fetch(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOTPStore_FetchReturnsCopy(t *testing.T) {
	store := NewOTPStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Store(ctx, domain.OTPRecord{Email: "user@example.com", CodeDigest: "digest", IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("store record: %v", err)
	}

	record, err := store.Fetch(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("fetch record: %v", err)
	}
	record.Attempts = 42

	again, err := store.Fetch(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("fetch record again: %v", err)
	}
	if again.Attempts != 0 {
		t.Fatalf("expected stored record unaffected by caller mutation, got attempts=%d", again.Attempts)
	}
}

func TestOTPStore_PurgeExpired(t *testing.T) {
	store := NewOTPStore()
	ctx := context.Background()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	records := []domain.OTPRecord{
		{Email: "expired@example.com", CodeDigest: "d1", IssuedAt: now.Add(-10 * time.Minute), ExpiresAt: now.Add(-5 * time.Minute)},
		{Email: "fresh@example.com", CodeDigest: "d2", IssuedAt: now, ExpiresAt: now.Add(5 * time.Minute)},
	}
	for _, record := range records {
		if err := store.Store(ctx, record); err != nil {
			t.Fatalf("store %s: %v", record.Email, err)
		}
	}

	purged, err := store.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged record, got %d", purged)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 remaining record, got %d", store.Len())
	}
	if _, err := store.Fetch(ctx, "expired@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected expired record removed, got %v", err)
	}
}

func TestOTPStore_DeleteMissingReturnsNotFound(t *testing.T) {
	store := NewOTPStore()
	if err := store.Delete(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
