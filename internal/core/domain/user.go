package domain

import "time"

// UserRole enumerates the access levels known to the service.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User represents a registered account.
type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	PasswordAlgo string
	Role         UserRole
	RegisteredAt time.Time
	LastLogin    *time.Time
}
