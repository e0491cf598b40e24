package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/repository/memory"
)

type stubSender struct {
	mu    sync.Mutex
	sends []string
	err   error
}

func (s *stubSender) SendVerificationCode(_ context.Context, _ string, code string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, code)
	return s.err
}

func (s *stubSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sends) == 0 {
		t.Fatalf("expected at least one dispatched code")
	}
	return s.sends[len(s.sends)-1]
}

type stubEventRecorder struct {
	mu         sync.Mutex
	registered []domain.UserRegisteredEvent
	verified   []domain.EmailVerifiedEvent
	created    []domain.QuestionChangedEvent
	updated    []domain.QuestionChangedEvent
	deleted    []domain.QuestionChangedEvent
}

func (s *stubEventRecorder) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, event)
	return nil
}

func (s *stubEventRecorder) PublishEmailVerified(_ context.Context, event domain.EmailVerifiedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified = append(s.verified, event)
	return nil
}

func (s *stubEventRecorder) PublishQuestionCreated(_ context.Context, event domain.QuestionChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, event)
	return nil
}

func (s *stubEventRecorder) PublishQuestionUpdated(_ context.Context, event domain.QuestionChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, event)
	return nil
}

func (s *stubEventRecorder) PublishQuestionDeleted(_ context.Context, event domain.QuestionChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, event)
	return nil
}

var _ port.EventPublisher = (*stubEventRecorder)(nil)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type otpTestEnv struct {
	service       *OTPService
	sender        *stubSender
	events        *stubEventRecorder
	otps          *memory.OTPStore
	verifications *memory.VerificationStore
	clock         *testClock
}

func newOTPTestEnv(t *testing.T) *otpTestEnv {
	t.Helper()

	cfg := config.OTPSettings{
		CodeTTL:         5 * time.Minute,
		MaxAttempts:     5,
		SendWindow:      15 * time.Minute,
		MaxSends:        3,
		SweepInterval:   time.Minute,
		VerificationTTL: 10 * time.Minute,
	}

	sender := &stubSender{}
	events := &stubEventRecorder{}
	otps := memory.NewOTPStore()
	verifications := memory.NewVerificationStore(cfg.VerificationTTL)

	service := NewOTPService(cfg, otps, memory.NewRateLimitStore(), verifications, sender, events, zap.NewNop())

	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	service.WithClock(clock.Now)

	return &otpTestEnv{
		service:       service,
		sender:        sender,
		events:        events,
		otps:          otps,
		verifications: verifications,
		clock:         clock,
	}
}

func TestOTPIssueAndVerifySucceeds(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	code := env.sender.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected a 6-digit code, got %q", code)
	}

	result, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid result, got reason %q", result.Reason)
	}
	if result.Email != "student@example.com" {
		t.Fatalf("unexpected email in result: %q", result.Email)
	}

	consumed, err := env.verifications.Consume(ctx, "student@example.com", env.clock.Now())
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if !consumed {
		t.Fatalf("expected verification proof to be recorded")
	}

	if len(env.events.verified) != 1 {
		t.Fatalf("expected one email verified event, got %d", len(env.events.verified))
	}
}

func TestOTPVerifyIsSingleUse(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	code := env.sender.lastCode(t)

	first, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !first.Valid {
		t.Fatalf("expected first verification to succeed, got %q", first.Reason)
	}

	second, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if second.Valid || second.Reason != VerifyReasonNotFound {
		t.Fatalf("expected not_found on reuse, got valid=%v reason=%q", second.Valid, second.Reason)
	}
}

func TestOTPVerifyUnknownEmail(t *testing.T) {
	env := newOTPTestEnv(t)

	result, err := env.service.Verify(context.Background(), "nobody@example.com", "123456")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Valid || result.Reason != VerifyReasonNotFound {
		t.Fatalf("expected not_found, got valid=%v reason=%q", result.Valid, result.Reason)
	}
}

func TestOTPIssueRateLimited(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.service.Issue(ctx, "student@example.com"); err != nil {
			t.Fatalf("Issue %d returned error: %v", i+1, err)
		}
	}

	err := env.service.Issue(ctx, "student@example.com")
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if rateErr.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", rateErr.RetryAfter)
	}

	// A different address is unaffected.
	if err := env.service.Issue(ctx, "other@example.com"); err != nil {
		t.Fatalf("Issue for other address returned error: %v", err)
	}
}

func TestOTPIssueWindowSlides(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.service.Issue(ctx, "student@example.com"); err != nil {
			t.Fatalf("Issue %d returned error: %v", i+1, err)
		}
	}

	env.clock.Advance(16 * time.Minute)

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("expected issuance after window elapsed, got %v", err)
	}
}

func TestOTPIssueLimitHoldsMidWindow(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.service.Issue(ctx, "student@example.com"); err != nil {
			t.Fatalf("Issue %d returned error: %v", i+1, err)
		}
	}

	// Slots recorded at the start of the window must still count minutes
	// later, well before the 15-minute window closes.
	env.clock.Advance(3 * time.Minute)

	err := env.service.Issue(ctx, "student@example.com")
	var rateErr *RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError three minutes in, got %v", err)
	}

	env.clock.Advance(13 * time.Minute)

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("expected issuance once the window elapsed, got %v", err)
	}
}

func TestOTPSuccessfulVerifyRefundsIssuanceSlot(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := env.service.Issue(ctx, "student@example.com"); err != nil {
			t.Fatalf("Issue %d returned error: %v", i+1, err)
		}
	}

	var rateErr *RateLimitExceededError
	if err := env.service.Issue(ctx, "student@example.com"); !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitExceededError before refund, got %v", err)
	}

	code := env.sender.lastCode(t)
	result, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected verification to succeed, got %q", result.Reason)
	}

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("expected issuance after refund, got %v", err)
	}
}

func TestOTPReissueReplacesPendingCode(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	firstCode := env.sender.lastCode(t)

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("second Issue returned error: %v", err)
	}
	secondCode := env.sender.lastCode(t)

	if firstCode != secondCode {
		result, err := env.service.Verify(ctx, "student@example.com", firstCode)
		if err != nil {
			t.Fatalf("Verify returned error: %v", err)
		}
		if result.Valid || result.Reason != VerifyReasonIncorrect {
			t.Fatalf("expected stale code rejected as incorrect, got valid=%v reason=%q", result.Valid, result.Reason)
		}
	}

	result, err := env.service.Verify(ctx, "student@example.com", secondCode)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected latest code to verify, got %q", result.Reason)
	}
}

func TestOTPAttemptLockoutIsAbsolute(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	code := env.sender.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 1; i <= 4; i++ {
		result, err := env.service.Verify(ctx, "student@example.com", wrong)
		if err != nil {
			t.Fatalf("Verify %d returned error: %v", i, err)
		}
		if result.Valid || result.Reason != VerifyReasonIncorrect {
			t.Fatalf("attempt %d: expected incorrect, got valid=%v reason=%q", i, result.Valid, result.Reason)
		}
	}

	fifth, err := env.service.Verify(ctx, "student@example.com", wrong)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if fifth.Valid || fifth.Reason != VerifyReasonTooManyAttempts {
		t.Fatalf("expected too_many_attempts on fifth failure, got valid=%v reason=%q", fifth.Valid, fifth.Reason)
	}

	// The record is gone; even the correct code can no longer succeed.
	after, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if after.Valid || after.Reason != VerifyReasonNotFound {
		t.Fatalf("expected not_found after lockout, got valid=%v reason=%q", after.Valid, after.Reason)
	}
}

func TestOTPVerifyExpiredCode(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	code := env.sender.lastCode(t)

	env.clock.Advance(6 * time.Minute)

	result, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Valid || result.Reason != VerifyReasonExpired {
		t.Fatalf("expected expired, got valid=%v reason=%q", result.Valid, result.Reason)
	}

	// Expiry consumed the record.
	again, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if again.Valid || again.Reason != VerifyReasonNotFound {
		t.Fatalf("expected not_found after expiry, got valid=%v reason=%q", again.Valid, again.Reason)
	}
}

func TestOTPDispatchFailureLeavesRecordIntact(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	env.sender.err = errors.New("smtp unavailable")

	err := env.service.Issue(ctx, "student@example.com")
	if !errors.Is(err, ErrOTPDispatchFailed) {
		t.Fatalf("expected ErrOTPDispatchFailed, got %v", err)
	}

	// The stored code is still verifiable once the user receives it.
	env.sender.err = nil
	code := env.sender.lastCode(t)

	result, verr := env.service.Verify(ctx, "student@example.com", code)
	if verr != nil {
		t.Fatalf("Verify returned error: %v", verr)
	}
	if !result.Valid {
		t.Fatalf("expected verification to succeed, got %q", result.Reason)
	}
}

func TestOTPDispatchFailureKeepsRateLimitAccounting(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	env.sender.err = errors.New("smtp unavailable")

	for i := 0; i < 3; i++ {
		if err := env.service.Issue(ctx, "student@example.com"); !errors.Is(err, ErrOTPDispatchFailed) {
			t.Fatalf("Issue %d: expected ErrOTPDispatchFailed, got %v", i+1, err)
		}
	}

	env.sender.err = nil

	var rateErr *RateLimitExceededError
	if err := env.service.Issue(ctx, "student@example.com"); !errors.As(err, &rateErr) {
		t.Fatalf("expected rate limit after failed dispatches, got %v", err)
	}
}

func TestOTPConcurrentWrongAttemptsAllCounted(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	code := env.sender.lastCode(t)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	var wg sync.WaitGroup
	results := make([]*VerifyResult, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := env.service.Verify(ctx, "student@example.com", wrong)
			if err != nil {
				t.Errorf("Verify returned error: %v", err)
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	incorrect := 0
	lockedOut := 0
	for _, result := range results {
		if result == nil {
			t.Fatalf("missing verification result")
		}
		if result.Valid {
			t.Fatalf("wrong code must never verify")
		}
		switch result.Reason {
		case VerifyReasonIncorrect:
			incorrect++
		case VerifyReasonTooManyAttempts:
			lockedOut++
		default:
			t.Fatalf("unexpected reason %q", result.Reason)
		}
	}
	if incorrect != 4 || lockedOut != 1 {
		t.Fatalf("expected 4 incorrect and 1 lockout, got %d and %d", incorrect, lockedOut)
	}

	after, err := env.service.Verify(ctx, "student@example.com", code)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if after.Valid {
		t.Fatalf("expected lockout to survive a correct code")
	}
}

func TestOTPSweepRemovesExpiredRecords(t *testing.T) {
	env := newOTPTestEnv(t)
	ctx := context.Background()

	env.service.cfg.SweepInterval = 5 * time.Millisecond

	if err := env.service.Issue(ctx, "student@example.com"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if env.otps.Len() != 1 {
		t.Fatalf("expected one pending record, got %d", env.otps.Len())
	}

	env.clock.Advance(10 * time.Minute)

	env.service.Start(context.Background())
	defer env.service.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for env.otps.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep did not remove expired record")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOTPStopIsIdempotent(t *testing.T) {
	env := newOTPTestEnv(t)

	env.service.Start(context.Background())
	env.service.Stop()
	env.service.Stop()
}
