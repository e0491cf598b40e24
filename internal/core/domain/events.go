package domain

import "time"

// UserRegisteredEvent is emitted when a new account is created.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	FullName     string
	Email        string
	Role         string
	RegisteredAt time.Time
}

// EmailVerifiedEvent is emitted when an OTP verification succeeds.
type EmailVerifiedEvent struct {
	EventID    string
	Email      string
	VerifiedAt time.Time
}

// QuestionChangedEvent is emitted for question create/update/delete operations.
type QuestionChangedEvent struct {
	EventID    string
	QuestionID string
	Subject    string
	ExamType   string
	ActorID    string
	OccurredAt time.Time
}
