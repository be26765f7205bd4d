package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User represents an account in the authentication system.
//
// ResetPasswordCode and ResetPasswordExpiresAt hold the pending password
// recovery state. They are written and removed together; a nil pair means no
// reset is pending. An expired pair stays stored until it is overwritten or
// cleared.
type User struct {
	ID                     bson.ObjectID `bson:"_id,omitempty"`
	Username               string        `bson:"username"`
	Email                  string        `bson:"email"`
	PasswordHash           string        `bson:"password_hash"`
	ResetPasswordCode      *string       `bson:"reset_password_code,omitempty"`
	ResetPasswordExpiresAt *time.Time    `bson:"reset_password_expires_at,omitempty"`
	CreatedAt              time.Time     `bson:"created_at"`
	UpdatedAt              time.Time     `bson:"updated_at"`
}

// ResetCodeLength is the number of decimal digits in a reset code.
const ResetCodeLength = 6

// IsResetCode reports whether code is exactly ResetCodeLength ASCII digits.
func IsResetCode(code string) bool {
	if len(code) != ResetCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// HasPendingReset reports whether a reset code is stored and still valid at now.
func (u *User) HasPendingReset(now time.Time) bool {
	return u.ResetPasswordCode != nil &&
		u.ResetPasswordExpiresAt != nil &&
		u.ResetPasswordExpiresAt.After(now)
}

// MatchesResetCode reports whether code is the stored reset code and it has
// not expired at now.
func (u *User) MatchesResetCode(code string, now time.Time) bool {
	return u.HasPendingReset(now) && *u.ResetPasswordCode == code
}
