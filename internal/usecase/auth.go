package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/domain"
	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
	"github.com/arklim/exam-bank-service/internal/infra/security"
	"github.com/arklim/exam-bank-service/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidAccessToken indicates the provided access token is malformed or signature validation failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the provided access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrUserNotFound indicates no account exists for the requested identifier.
	ErrUserNotFound = errors.New("user not found")
)

// AccessTokenClaims augments registered claims with account context.
type AccessTokenClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// AuthService coordinates authentication flows.
type AuthService struct {
	cfg    *config.AppConfig
	users  port.UserRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(cfg *config.AppConfig, users port.UserRepository, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		cfg:    cfg,
		users:  users,
		logger: log,
		now:    time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Authenticate validates credentials and issues an access token. Lookup and
// password failures collapse into ErrInvalidCredentials so callers cannot
// probe for registered addresses.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", domain.User{}, fmt.Errorf("email is required")
	}
	if password == "" {
		return "", domain.User{}, fmt.Errorf("password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", domain.User{}, ErrInvalidCredentials
		}
		return "", domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return "", domain.User{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("update last login failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	token, err := s.IssueToken(ctx, *user)
	if err != nil {
		return "", domain.User{}, err
	}

	s.logger.Info("user authenticated",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	sanitized := *user
	sanitized.PasswordHash = ""
	sanitized.LastLogin = &now

	return token, sanitized, nil
}

// IssueToken issues a signed JWT access token for the user.
func (s *AuthService) IssueToken(_ context.Context, user domain.User) (string, error) {
	if user.ID == "" {
		return "", fmt.Errorf("user id is required")
	}
	if s.cfg.JWT.Secret == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}

	now := s.now().UTC()
	ttl := s.cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	claimAudience := jwt.ClaimStrings{}
	if s.cfg.App.Name != "" {
		claimAudience = append(claimAudience, s.cfg.App.Name)
	}

	claims := AccessTokenClaims{
		UserID: user.ID,
		Role:   string(user.Role),
		Name:   user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.App.Name,
			Audience:  claimAudience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseAccessToken validates the JWT access token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("access token is required")
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	}, jwt.WithIssuer(s.cfg.App.Name), jwt.WithAudience(s.cfg.App.Name))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// CurrentUser returns the account behind the supplied claims with the
// password hash stripped.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return &sanitized, nil
}
