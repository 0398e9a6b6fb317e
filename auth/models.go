package auth

import "time"

type Role string

const (
	RoleAgent          Role = "agent"
	RoleRepresentative Role = "representative"
	RoleAdmin          Role = "admin"
)

// User is the domain representation of an authenticated platform user.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	AgencyID     *string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is what a verified token asserts about the caller.
type Identity struct {
	UserID   string
	Role     Role
	AgencyID *string
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Role     Role    `json:"role"`
	AgencyID *string `json:"agency_id"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
