package auth

import "time"

// Credential is the authentication slice of a user account.
type Credential struct {
	UserID       int64
	Name         string
	Email        string
	PasswordHash string
	IsActive     bool
	RoleID       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
