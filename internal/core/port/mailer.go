package port

import (
	"context"
	"time"
)

// NotificationSender delivers one-time codes to users.
type NotificationSender interface {
	SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error
}
