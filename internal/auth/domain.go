package auth

import "time"

// User represents an authenticated user account. IsManager is the single
// capability flag the rest of the system consults.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsManager    bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
