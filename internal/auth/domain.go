package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials carries a login attempt.
type Credentials struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required"`
}

// NewAccount describes an account created from the command line.
type NewAccount struct {
	Username  string `validate:"required,max=150"`
	Email     string `validate:"omitempty,email"`
	Password  string `validate:"required,min=8"`
	FirstName string
	LastName  string
}
