package users

import (
	"fmt"
	"time"

	"github.com/stockbook/stockbook/internal/shared"
)

// User represents a user account for management.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateInput is the payload for a new account.
type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=40"`
	Name     string `json:"name" validate:"max=120"`
	Role     string `json:"role" validate:"required,oneof=admin operator viewer"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateInput changes an account. Empty password keeps the current one.
type UpdateInput struct {
	Name     string `json:"name" validate:"max=120"`
	Role     string `json:"role" validate:"required,oneof=admin operator viewer"`
	Active   *bool  `json:"active"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
}

var (
	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = fmt.Errorf("%w: user", shared.ErrNotFound)
	// ErrSelfLockout blocks actions that would lock the caller out.
	ErrSelfLockout = fmt.Errorf("%w: cannot remove or demote your own account", shared.ErrConflict)
)
