package repository

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUser     = errors.New("username or email already exists")
	ErrResetCodeMismatch = errors.New("no user holds a matching unexpired reset code")
)
