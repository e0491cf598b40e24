package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
	"github.com/arklim/exam-bank-service/internal/infra/security"
	"github.com/arklim/exam-bank-service/internal/repository"
)

const (
	otpCodeLength      = 6
	otpSendScope       = "otp_send"
	defaultCodeTTL     = 5 * time.Minute
	defaultMaxAttempts = 5
	defaultSendWindow  = 15 * time.Minute
	defaultMaxSends    = 3
	defaultSweepPeriod = time.Minute
)

// Verification failure reasons returned by Verify.
const (
	VerifyReasonNotFound        = "not_found"
	VerifyReasonExpired         = "expired"
	VerifyReasonTooManyAttempts = "too_many_attempts"
	VerifyReasonIncorrect       = "incorrect"
)

var (
	// ErrOTPDispatchFailed indicates the code was stored but delivery to the recipient failed.
	ErrOTPDispatchFailed = errors.New("verification code dispatch failed")
)

// RateLimitExceededError indicates a sliding-window limit was reached.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error for RateLimitExceededError.
func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// VerifyResult reports the outcome of a verification attempt.
type VerifyResult struct {
	Valid  bool
	Reason string
	Email  string
}

// keyedMutex serializes operations per key so read-modify-write sequences for
// the same email never interleave. Entries are reference counted and removed
// once the last holder releases.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedMutexEntry)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedMutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// OTPService issues, verifies, and expires one-time codes per email address.
// At most one pending code exists per email; issuance is limited per trailing
// window and verification attempts are capped per code.
type OTPService struct {
	cfg           config.OTPSettings
	otps          port.OTPStore
	rateLimits    port.RateLimitStore
	verifications port.VerificationStore
	sender        port.NotificationSender
	events        port.EventPublisher
	logger        *zap.Logger
	locks         *keyedMutex
	now           func() time.Time

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewOTPService constructs an OTPService. Zero-valued settings fall back to
// the documented defaults (5 minute codes, 5 attempts, 3 sends per 15 minutes).
func NewOTPService(
	cfg config.OTPSettings,
	otps port.OTPStore,
	rateLimits port.RateLimitStore,
	verifications port.VerificationStore,
	sender port.NotificationSender,
	events port.EventPublisher,
	log *zap.Logger,
) *OTPService {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.SendWindow <= 0 {
		cfg.SendWindow = defaultSendWindow
	}
	if cfg.MaxSends <= 0 {
		cfg.MaxSends = defaultMaxSends
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepPeriod
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &OTPService{
		cfg:           cfg,
		otps:          otps,
		rateLimits:    rateLimits,
		verifications: verifications,
		sender:        sender,
		events:        events,
		logger:        log,
		locks:         newKeyedMutex(),
		now:           time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *OTPService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Issue generates a fresh code for the email, stores its digest, and
// dispatches it through the notification sender. A pending code for the same
// email is replaced. Delivery happens outside the per-email critical section;
// a delivery failure leaves the stored code and the rate-limit slot intact so
// the user can be told to retry.
func (s *OTPService) Issue(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	unlock := s.locks.lock(email)

	now := s.now().UTC()
	limitKey := fmt.Sprintf("%s:%s", otpSendScope, email)

	if err := s.rateLimits.TrimWindow(ctx, limitKey, s.cfg.SendWindow, now); err != nil {
		unlock()
		return fmt.Errorf("trim issuance window: %w", err)
	}

	count, err := s.rateLimits.CountAttempts(ctx, limitKey, s.cfg.SendWindow, now)
	if err != nil {
		unlock()
		return fmt.Errorf("count issuances: %w", err)
	}

	if count >= s.cfg.MaxSends {
		retryAfter := time.Duration(0)
		if oldest, ok, oerr := s.rateLimits.OldestAttempt(ctx, limitKey, s.cfg.SendWindow, now); oerr == nil && ok {
			if reset := oldest.Add(s.cfg.SendWindow); reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if oerr != nil {
			s.logger.Warn("otp rate limit oldest lookup failed", zap.Error(oerr))
		}
		unlock()
		return &RateLimitExceededError{Scope: otpSendScope, RetryAfter: retryAfter}
	}

	code, err := security.GenerateNumericCode(otpCodeLength)
	if err != nil {
		unlock()
		return fmt.Errorf("generate code: %w", err)
	}

	record := domain.OTPRecord{
		Email:      email,
		CodeDigest: security.HashToken(code),
		Attempts:   0,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.CodeTTL),
	}

	if err := s.otps.Store(ctx, record); err != nil {
		unlock()
		return fmt.Errorf("store otp record: %w", err)
	}

	if err := s.rateLimits.RecordAttempt(ctx, limitKey, now); err != nil {
		unlock()
		return fmt.Errorf("record issuance: %w", err)
	}

	unlock()

	if err := s.sender.SendVerificationCode(ctx, email, code, record.ExpiresAt); err != nil {
		s.logger.Warn("verification code dispatch failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrOTPDispatchFailed, err)
	}

	s.logger.Info("verification code issued",
		zap.String("email", logger.MaskEmail(email)),
		zap.Time("expires_at", record.ExpiresAt),
	)

	return nil
}

// Verify checks the submitted code against the pending record. A match
// consumes the record, refunds one issuance slot, and writes a consumable
// verification proof. Lockout after the attempt limit is absolute, even for a
// subsequently correct code.
func (s *OTPService) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	unlock := s.locks.lock(email)

	now := s.now().UTC()

	record, err := s.otps.Fetch(ctx, email)
	if err != nil {
		unlock()
		if errors.Is(err, repository.ErrNotFound) {
			return &VerifyResult{Valid: false, Reason: VerifyReasonNotFound, Email: email}, nil
		}
		return nil, fmt.Errorf("fetch otp record: %w", err)
	}

	if now.After(record.ExpiresAt) {
		if derr := s.otps.Delete(ctx, email); derr != nil && !errors.Is(derr, repository.ErrNotFound) {
			s.logger.Warn("delete expired otp failed", zap.Error(derr))
		}
		unlock()
		return &VerifyResult{Valid: false, Reason: VerifyReasonExpired, Email: email}, nil
	}

	if record.Attempts >= s.cfg.MaxAttempts {
		if derr := s.otps.Delete(ctx, email); derr != nil && !errors.Is(derr, repository.ErrNotFound) {
			s.logger.Warn("delete locked otp failed", zap.Error(derr))
		}
		unlock()
		return &VerifyResult{Valid: false, Reason: VerifyReasonTooManyAttempts, Email: email}, nil
	}

	if !security.DigestsEqual(record.CodeDigest, security.HashToken(code)) {
		attempts, ierr := s.otps.IncrementAttempts(ctx, email)
		if ierr != nil && !errors.Is(ierr, repository.ErrNotFound) {
			unlock()
			return nil, fmt.Errorf("increment attempts: %w", ierr)
		}

		if attempts >= s.cfg.MaxAttempts {
			if derr := s.otps.Delete(ctx, email); derr != nil && !errors.Is(derr, repository.ErrNotFound) {
				s.logger.Warn("delete locked otp failed", zap.Error(derr))
			}
			unlock()
			return &VerifyResult{Valid: false, Reason: VerifyReasonTooManyAttempts, Email: email}, nil
		}

		unlock()
		return &VerifyResult{Valid: false, Reason: VerifyReasonIncorrect, Email: email}, nil
	}

	if err := s.otps.Delete(ctx, email); err != nil && !errors.Is(err, repository.ErrNotFound) {
		unlock()
		return nil, fmt.Errorf("consume otp record: %w", err)
	}

	limitKey := fmt.Sprintf("%s:%s", otpSendScope, email)
	if err := s.rateLimits.ReleaseNewest(ctx, limitKey); err != nil {
		s.logger.Warn("release issuance slot failed", zap.Error(err))
	}

	if s.verifications != nil {
		if err := s.verifications.MarkVerified(ctx, email, now); err != nil {
			unlock()
			return nil, fmt.Errorf("record verification proof: %w", err)
		}
	}

	unlock()

	s.logger.Info("email verified",
		zap.String("email", logger.MaskEmail(email)),
	)

	s.publishEmailVerified(ctx, email, now)

	return &VerifyResult{Valid: true, Email: email}, nil
}

func (s *OTPService) publishEmailVerified(ctx context.Context, email string, at time.Time) {
	if s.events == nil {
		return
	}

	event := domain.EmailVerifiedEvent{
		EventID:    uuid.NewString(),
		Email:      email,
		VerifiedAt: at,
	}

	if err := s.events.PublishEmailVerified(ctx, event); err != nil {
		s.logger.Warn("publish email verified event failed", zap.Error(err))
	}
}

// Start launches the background sweep that removes expired records. Calling
// Start on a running service is a no-op.
func (s *OTPService) Start(ctx context.Context) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepCancel != nil {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel
	s.sweepDone = make(chan struct{})

	go s.sweepLoop(sweepCtx, s.sweepDone)
}

// Stop cancels the background sweep and waits for it to exit.
func (s *OTPService) Stop() {
	s.sweepMu.Lock()
	cancel := s.sweepCancel
	done := s.sweepDone
	s.sweepCancel = nil
	s.sweepDone = nil
	s.sweepMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *OTPService) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.otps.PurgeExpired(ctx, s.now().UTC())
			if err != nil {
				s.logger.Warn("otp sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Debug("otp sweep removed expired records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
