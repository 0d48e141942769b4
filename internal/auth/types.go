package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern: alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is an operator's authorisation tier.
type Role string

const (
	// RoleOperator manages the feeders they own.
	RoleOperator Role = "operator"

	// RoleAdmin can additionally create operator accounts from the CLI.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles a user account may hold.
var ValidRoles = []Role{RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is an operator account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidUser        = errors.New("invalid user")
	ErrWeakPassword       = errors.New("password too short")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTicketInvalid      = errors.New("invalid or expired ticket")
)
