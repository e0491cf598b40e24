package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
	"github.com/arklim/exam-bank-service/internal/infra/security"
	"github.com/arklim/exam-bank-service/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	// ErrEmailNotVerified indicates registration was attempted without a prior OTP verification.
	ErrEmailNotVerified = errors.New("email address not verified")
	// ErrEmailAlreadyRegistered indicates an account already exists for the address.
	ErrEmailAlreadyRegistered = errors.New("email address already registered")
	// ErrInvalidEmail indicates the supplied address is not syntactically valid.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
)

// RegistrationService handles new account onboarding. An account can only be
// created for an address that holds an unconsumed verification proof.
type RegistrationService struct {
	users             port.UserRepository
	verifications     port.VerificationStore
	events            port.EventPublisher
	passwordValidator *security.PasswordValidator
	logger            *zap.Logger
	now               func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	users port.UserRepository,
	verifications port.VerificationStore,
	events port.EventPublisher,
	validator *security.PasswordValidator,
	log *zap.Logger,
) *RegistrationService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &RegistrationService{
		users:             users,
		verifications:     verifications,
		events:            events,
		passwordValidator: validator,
		logger:            log,
		now:               time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ValidEmail reports whether the address is syntactically acceptable.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// RegisterUser creates a new account after checking the verification proof,
// the password policy, and address uniqueness. The proof is consumed on
// success.
func (s *RegistrationService) RegisterUser(ctx context.Context, fullName, email, password string) (domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	if utf8.RuneCountInString(fullName) < 3 {
		return domain.User{}, fmt.Errorf("full name must be at least 3 characters")
	}

	email = normalizeEmail(email)
	if !ValidEmail(email) {
		return domain.User{}, ErrInvalidEmail
	}

	password = strings.TrimSpace(password)
	if password == "" {
		return domain.User{}, fmt.Errorf("password is required")
	}

	if err := s.passwordValidator.Validate(password); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	now := s.now().UTC()

	if s.verifications != nil {
		verified, err := s.verifications.Consume(ctx, email, now)
		if err != nil {
			return domain.User{}, fmt.Errorf("check verification proof: %w", err)
		}
		if !verified {
			return domain.User{}, ErrEmailNotVerified
		}
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: passwordHash,
		PasswordAlgo: "argon2id",
		Role:         domain.RoleUser,
		RegisteredAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, ErrEmailAlreadyRegistered
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	s.publishUserRegistered(ctx, user)

	user.PasswordHash = ""

	return user, nil
}

// EnsureDefaultAdmin creates the configured administrator account when no
// admin exists yet. Called once at startup; a blank configuration skips the
// bootstrap.
func (s *RegistrationService) EnsureDefaultAdmin(ctx context.Context, cfg config.AdminSettings) error {
	email := normalizeEmail(cfg.Email)
	if email == "" || strings.TrimSpace(cfg.Password) == "" {
		return nil
	}
	if !ValidEmail(email) {
		return fmt.Errorf("%w: %s", ErrInvalidEmail, logger.MaskEmail(email))
	}

	count, err := s.users.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	passwordHash, err := security.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	fullName := strings.TrimSpace(cfg.FullName)
	if fullName == "" {
		fullName = "Administrator"
	}

	user := domain.User{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: passwordHash,
		PasswordAlgo: "argon2id",
		Role:         domain.RoleAdmin,
		RegisteredAt: s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}

	s.logger.Info("default admin created",
		zap.String("email", logger.MaskEmail(email)),
	)

	return nil
}

func (s *RegistrationService) publishUserRegistered(ctx context.Context, user domain.User) {
	if s.events == nil {
		return
	}

	event := domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		FullName:     user.FullName,
		Email:        user.Email,
		Role:         string(user.Role),
		RegisteredAt: user.RegisteredAt,
	}

	if err := s.events.PublishUserRegistered(ctx, event); err != nil {
		s.logger.Warn("publish user registered event failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}
