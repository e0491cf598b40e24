package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/exam-bank-service/internal/core/port"
	"github.com/arklim/exam-bank-service/internal/infra/config"
	"github.com/arklim/exam-bank-service/internal/infra/logger"
)

// SMTPSender delivers verification codes over SMTP with STARTTLS.
type SMTPSender struct {
	cfg    config.SMTPSettings
	logger *zap.Logger
}

// NewSMTPSender constructs an SMTP-backed notification sender.
func NewSMTPSender(cfg config.SMTPSettings, log *zap.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: log}
}

// SendVerificationCode emails a one-time verification code to the recipient.
func (s *SMTPSender) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	subject := "Your verification code"
	body := fmt.Sprintf(
		"Your verification code is %s.\r\nIt expires at %s.\r\nIf you did not request this code, ignore this message.\r\n",
		code, expiresAt.UTC().Format(time.RFC1123),
	)

	msg := []byte(
		fmt.Sprintf("From: %s\r\n", from) +
			fmt.Sprintf("To: %s\r\n", email) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, from, []string{email}, msg); err != nil {
		s.logger.Error("smtp delivery failed",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err),
		)
		return fmt.Errorf("send verification code: %w", err)
	}

	s.logger.Info("verification code sent",
		zap.String("email", logger.MaskEmail(email)),
		zap.Time("expires_at", expiresAt),
	)

	return nil
}

var _ port.NotificationSender = (*SMTPSender)(nil)
