package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/model"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/repository"
	"github.com/shrimpsense/shrimpsense-api/shared/ratelimit"
)

const (
	// ResetCodeTTL is how long an issued reset code stays valid.
	ResetCodeTTL = time.Hour

	resetCodeMin = 100000
	resetCodeMax = 999999

	rollbackTimeout = 5 * time.Second
)

// PasswordResetUsecase defines the business logic for password recovery.
type PasswordResetUsecase interface {
	// RequestPasswordReset issues a new reset code for email and mails it.
	// Unknown emails succeed without doing anything.
	RequestPasswordReset(ctx context.Context, email, clientIP string) error

	// VerifyResetCode checks that code is the current, unexpired reset code for
	// email. It does not consume the code.
	VerifyResetCode(ctx context.Context, email, code string) error

	// ResetPassword replaces the password of the account holding code and
	// clears the code in the same write.
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// PasswordResetOption customizes a PasswordResetUsecase.
type PasswordResetOption func(*passwordResetUsecase)

// WithClock overrides the time source used for code expiry.
func WithClock(now func() time.Time) PasswordResetOption {
	return func(u *passwordResetUsecase) { u.now = now }
}

// WithCodeGenerator overrides how reset codes are generated.
func WithCodeGenerator(gen func() (string, error)) PasswordResetOption {
	return func(u *passwordResetUsecase) { u.generateCode = gen }
}

// WithThrottle limits recovery requests per email and client IP.
func WithThrottle(throttle RequestThrottle) PasswordResetOption {
	return func(u *passwordResetUsecase) { u.throttle = throttle }
}

type passwordResetUsecase struct {
	logger       *zerolog.Logger
	userRepo     repository.UserRepository
	hasher       PasswordHasher
	notifier     Notifier
	throttle     RequestThrottle
	now          func() time.Time
	generateCode func() (string, error)
}

// NewPasswordResetUsecase creates a new instance of PasswordResetUsecase.
func NewPasswordResetUsecase(
	logger *zerolog.Logger,
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	notifier Notifier,
	opts ...PasswordResetOption,
) PasswordResetUsecase {
	u := &passwordResetUsecase{
		logger:       logger,
		userRepo:     userRepo,
		hasher:       hasher,
		notifier:     notifier,
		now:          time.Now,
		generateCode: GenerateResetCode,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

func (u *passwordResetUsecase) RequestPasswordReset(ctx context.Context, email, clientIP string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	if err := u.checkThrottle(ctx, email, clientIP); err != nil {
		return err
	}

	user, err := u.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Same response as a known account.
			u.logger.Debug().Msg("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	code, err := u.generateCode()
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}

	// BSON dates keep milliseconds only. Truncating here gives every store the
	// same expiry instant.
	expiresAt := u.now().Add(ResetCodeTTL).Truncate(time.Millisecond)

	userID := user.ID.Hex()
	if err := u.userRepo.SetResetCode(ctx, userID, code, expiresAt); err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}

	if err := u.notifier.SendResetCode(ctx, user.Email, code); err != nil {
		u.rollbackResetCode(ctx, userID, code)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	u.logger.Info().Str("user_id", userID).Msg("password reset code issued")

	return nil
}

func (u *passwordResetUsecase) VerifyResetCode(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return ErrInvalidInput
	}
	if !model.IsResetCode(code) {
		return ErrInvalidOrExpiredCode
	}

	if _, err := u.userRepo.FindUserByResetCode(ctx, email, code, u.now()); err != nil {
		if errors.Is(err, repository.ErrResetCodeMismatch) {
			return ErrInvalidOrExpiredCode
		}
		return fmt.Errorf("find reset code: %w", err)
	}

	return nil
}

func (u *passwordResetUsecase) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if email == "" || code == "" || newPassword == "" {
		return ErrInvalidInput
	}

	// Reject bad codes before paying for a hash. The conditional update below
	// is what actually guards the write.
	if err := u.VerifyResetCode(ctx, email, code); err != nil {
		return err
	}

	passwordHash, err := u.hasher.HashPassword(newPassword)
	if err != nil {
		return err
	}

	user, err := u.userRepo.ResetPassword(ctx, email, code, u.now(), passwordHash)
	if err != nil {
		if errors.Is(err, repository.ErrResetCodeMismatch) {
			return ErrInvalidOrExpiredCode
		}
		return fmt.Errorf("reset password: %w", err)
	}

	u.logger.Info().Str("user_id", user.ID.Hex()).Msg("password reset")

	return nil
}

func (u *passwordResetUsecase) checkThrottle(ctx context.Context, email, clientIP string) error {
	if u.throttle == nil {
		return nil
	}

	ipKey := ""
	if clientIP = strings.TrimSpace(clientIP); clientIP != "" {
		ipKey = "ip:" + clientIP
	}

	err := u.throttle.Allow(ctx, "email:"+email, ipKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrRateLimited):
		return ErrTooManyRequests
	default:
		u.logger.Warn().Err(err).Msg("recovery throttle unavailable, allowing request")
		return nil
	}
}

// rollbackResetCode removes the code written by this request after its
// delivery failed. A newer code written by a concurrent request is left alone.
func (u *passwordResetUsecase) rollbackResetCode(ctx context.Context, userID, code string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	err := u.userRepo.ClearResetCode(ctx, userID, code)
	switch {
	case err == nil:
		u.logger.Warn().Str("user_id", userID).Msg("reset code delivery failed, code cleared")
	case errors.Is(err, repository.ErrResetCodeMismatch):
		u.logger.Warn().Str("user_id", userID).Msg("reset code delivery failed, code already replaced")
	default:
		u.logger.Error().Err(err).Str("user_id", userID).Msg("failed to clear undelivered reset code")
	}
}

// GenerateResetCode returns a uniformly random 6-digit code in
// [100000, 999999].
func GenerateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(resetCodeMax-resetCodeMin+1))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()+resetCodeMin), nil
}
