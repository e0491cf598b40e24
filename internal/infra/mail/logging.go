package mail

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
)

// LoggingSender records delivery events instead of sending mail. Useful for development environments.
type LoggingSender struct {
	logger *zap.Logger
}

// NewLoggingSender constructs a development-friendly notification sender.
func NewLoggingSender(log *zap.Logger) *LoggingSender {
	return &LoggingSender{logger: log}
}

// SendVerificationCode logs the delivery without sending anything. The code
// itself never reaches the log output.
func (s *LoggingSender) SendVerificationCode(_ context.Context, email, _ string, expiresAt time.Time) error {
	s.logger.Info("verification code issued",
		zap.String("email", logger.MaskEmail(email)),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

var _ port.NotificationSender = (*LoggingSender)(nil)
