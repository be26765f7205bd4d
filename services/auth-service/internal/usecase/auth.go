package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/model"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/repository"
)

// AuthUsecase defines the interface for authentication-related use cases.
type AuthUsecase interface {
	Signup(ctx context.Context, params SignupParams) (*AuthResult, error)
	Login(ctx context.Context, params LoginParams) (*AuthResult, error)

	// GetIdentity returns the public identity of the user with the given id.
	GetIdentity(ctx context.Context, userID string) (*Identity, error)
}

// SignupParams defines the parameters for user registration.
type SignupParams struct {
	Username string
	Email    string
	Password string
}

// LoginParams defines the parameters for user login. LoginInput is either a
// username or an email address.
type LoginParams struct {
	LoginInput string
	Password   string
}

// AuthResult is returned by a successful signup or login.
type AuthResult struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

// AuthOptions tunes AuthUsecase behavior.
type AuthOptions struct {
	// UnifyLoginErrors reports unknown accounts as ErrInvalidCredentials
	// instead of ErrUserNotFound.
	UnifyLoginErrors bool
}

type authUsecase struct {
	logger   *zerolog.Logger
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	opts     AuthOptions

	dummyHashOnce sync.Once
	dummyHash     string
}

func NewAuthUsecase(
	logger *zerolog.Logger,
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	opts AuthOptions,
) AuthUsecase {
	return &authUsecase{
		logger:   logger,
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		opts:     opts,
	}
}

func (u *authUsecase) Signup(ctx context.Context, params SignupParams) (*AuthResult, error) {
	username := strings.TrimSpace(params.Username)
	email := normalizeEmail(params.Email)
	if username == "" || email == "" || params.Password == "" {
		return nil, ErrInvalidInput
	}

	if _, err := u.userRepo.FindConflictingUser(ctx, username, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	passwordHash, err := u.hasher.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user, err := u.userRepo.CreateUser(ctx, &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrUserAlreadyExists
		}

		return nil, fmt.Errorf("create user: %w", err)
	}

	u.logger.Info().Str("user_id", user.ID.Hex()).Msg("user signed up")

	return u.issueSession(user)
}

func (u *authUsecase) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	loginInput := strings.TrimSpace(params.LoginInput)
	if loginInput == "" || params.Password == "" {
		return nil, ErrInvalidInput
	}

	user, err := u.userRepo.GetUserByIdentifier(ctx, loginInput)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if u.opts.UnifyLoginErrors {
				u.burnVerification(params.Password)
				return nil, ErrInvalidCredentials
			}
			return nil, ErrUserNotFound
		}

		return nil, fmt.Errorf("find user: %w", err)
	}

	if ok, err := u.hasher.VerifyPassword(params.Password, user.PasswordHash); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrInvalidCredentials
	}

	return u.issueSession(user)
}

func (u *authUsecase) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	user, err := u.userRepo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	identity := identityOf(user)
	return &identity, nil
}

func (u *authUsecase) issueSession(user *model.User) (*AuthResult, error) {
	token, expiresAt, err := u.tokens.IssueSessionToken(user.ID.Hex(), user.Username)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Identity:  identityOf(user),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// burnVerification spends one password verification so that a login for an
// unknown account costs about as much as one with a wrong password.
func (u *authUsecase) burnVerification(password string) {
	u.dummyHashOnce.Do(func() {
		hash, err := u.hasher.HashPassword("shrimpsense-unknown-account")
		if err != nil {
			u.logger.Warn().Err(err).Msg("failed to prepare dummy password hash")
			return
		}
		u.dummyHash = hash
	})

	if u.dummyHash != "" {
		_, _ = u.hasher.VerifyPassword(password, u.dummyHash)
	}
}

func identityOf(user *model.User) Identity {
	return Identity{
		ID:       user.ID.Hex(),
		Username: user.Username,
		Email:    user.Email,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
