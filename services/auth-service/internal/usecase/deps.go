package usecase

import (
	"context"
	"time"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) (bool, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	IssueSessionToken(userID, username string) (string, time.Time, error)
}

// Notifier delivers a reset code to an email address.
type Notifier interface {
	SendResetCode(ctx context.Context, to, code string) error
}

// RequestThrottle limits how often recovery codes can be requested.
type RequestThrottle interface {
	Allow(ctx context.Context, keys ...string) error
}

// Identity is the public view of a user.
type Identity struct {
	ID       string
	Username string
	Email    string
}
