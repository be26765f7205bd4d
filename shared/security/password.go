package security

import (
	"errors"
	"fmt"

	"github.com/matthewhartstonge/argon2"
)

var ErrEmptyPassword = errors.New("password must not be empty")

// PasswordHasher hashes passwords with argon2id into the PHC encoded form.
// Each hash carries its own random salt and cost parameters.
type PasswordHasher struct {
	config argon2.Config
}

// NewPasswordHasher returns a hasher using the library's recommended argon2id
// parameters.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{config: argon2.DefaultConfig()}
}

// NewPasswordHasherWithConfig returns a hasher using explicit argon2 parameters.
func NewPasswordHasherWithConfig(cfg argon2.Config) *PasswordHasher {
	return &PasswordHasher{config: cfg}
}

// HashPassword returns the encoded argon2id hash of password.
func (h *PasswordHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	encoded, err := h.config.HashEncoded([]byte(password))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(encoded), nil
}

// VerifyPassword reports whether password matches the encoded hash. The
// comparison is constant time.
func (h *PasswordHasher) VerifyPassword(password, encodedHash string) (bool, error) {
	ok, err := argon2.VerifyEncoded([]byte(password), []byte(encodedHash))
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}

	return ok, nil
}
