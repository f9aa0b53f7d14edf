package users

import "time"

// User represents a user account. ParentID references the account that
// created or owns this one; it is nil for top-level accounts.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	RoleID    int64     `json:"role_id"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountRequest is a pending self-signup awaiting administrator review.
type AccountRequest struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	RoleID      int64     `json:"role_id"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// CreateUserRequest carries the fields accepted when creating an account.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,max=100,excludesall= "`
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
}

// UpdateUserRequest carries optional fields for updating an account.
type UpdateUserRequest struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=200"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	RoleID   *int64  `json:"role_id,omitempty" validate:"omitempty,gt=0"`
	ParentID *int64  `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

// SearchField selects which column a user search matches against.
type SearchField int

const (
	SearchByName SearchField = iota + 1
	SearchByFullName
	SearchByEmail
)
