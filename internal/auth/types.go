package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular member: can read the directory, publish posts,
	// join study rooms, and message other members.
	RoleUser Role = "user"

	// RoleAdmin can additionally list and moderate all accounts and read
	// the audit trail.
	RoleAdmin Role = "admin"

	// RoleSuperAdmin has everything admin can do plus managing admin
	// accounts and changing roles. There is exactly one on a fresh
	// install, created by the seeder.
	RoleSuperAdmin Role = "super_admin"
)

// ValidRoles is the closed set of roles an account may hold.
var ValidRoles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

// IsValidRole returns true if the role is one of the closed role set.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents a registered account.
//
// ID is assigned by the identity store and never reused. PasswordHash never
// leaves the auth package boundary: it is excluded from JSON and cleared by
// Public() before the record is attached to a request context.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	ProfileImage string    `json:"profile_image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public returns a copy of the user safe to hand to other packages:
// identical in every field except the password hash, which is cleared.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	pub := *u
	pub.PasswordHash = ""
	return &pub
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already registered")
	ErrEmailExists        = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("insufficient permissions")
)
