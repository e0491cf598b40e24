package domain

import "time"

// OTPRecord is a pending one-time code for an email address. Only the
// SHA-256 digest of the code is ever stored.
type OTPRecord struct {
	Email      string
	CodeDigest string
	Attempts   int
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the record is past its expiry at the given instant.
func (r OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
