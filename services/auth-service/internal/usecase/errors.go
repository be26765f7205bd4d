package usecase

import "errors"

var (
	ErrInvalidInput         = errors.New("missing or malformed input")
	ErrUserAlreadyExists    = errors.New("username or email already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidOrExpiredCode = errors.New("password reset code is invalid or has expired")
	ErrDeliveryFailed       = errors.New("failed to deliver password reset code")
	ErrTooManyRequests      = errors.New("too many password reset requests")
)
