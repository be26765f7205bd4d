package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/model"
)

// userMemoryRepository keeps users in process memory. Every method holds the
// lock for its whole read-modify-write, which gives the same per-document
// atomicity as the MongoDB implementation.
type userMemoryRepository struct {
	mu    sync.Mutex
	users map[bson.ObjectID]*model.User
}

// NewUserMemoryRepository creates an empty in-memory user repository.
func NewUserMemoryRepository() UserRepository {
	return &userMemoryRepository{users: make(map[bson.ObjectID]*model.User)}
}

func (r *userMemoryRepository) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(func(u *model.User) bool {
		return sameIdentity(u.Username, user.Username) || sameIdentity(u.Email, user.Email)
	}) != nil {
		return nil, ErrDuplicateUser
	}

	now := time.Now()
	stored := *user
	stored.ID = bson.NewObjectID()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.ResetPasswordCode = nil
	stored.ResetPasswordExpiresAt = nil
	r.users[stored.ID] = &stored

	return cloneUser(&stored), nil
}

func (r *userMemoryRepository) GetUser(_ context.Context, id string) (*model.User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[objectID]
	if !ok {
		return nil, ErrUserNotFound
	}

	return cloneUser(user), nil
}

func (r *userMemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return sameIdentity(u.Email, email) })
}

func (r *userMemoryRepository) GetUserByIdentifier(_ context.Context, identifier string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return sameIdentity(u.Username, identifier) || sameIdentity(u.Email, identifier)
	})
}

func (r *userMemoryRepository) FindConflictingUser(_ context.Context, username, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool {
		return sameIdentity(u.Username, username) || sameIdentity(u.Email, email)
	})
}

func (r *userMemoryRepository) SetResetCode(_ context.Context, id, code string, expiresAt time.Time) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[objectID]
	if !ok {
		return ErrUserNotFound
	}

	user.ResetPasswordCode = &code
	user.ResetPasswordExpiresAt = &expiresAt
	user.UpdatedAt = time.Now()

	return nil
}

func (r *userMemoryRepository) ClearResetCode(_ context.Context, id, code string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[objectID]
	if !ok || user.ResetPasswordCode == nil || *user.ResetPasswordCode != code {
		return ErrResetCodeMismatch
	}

	user.ResetPasswordCode = nil
	user.ResetPasswordExpiresAt = nil
	user.UpdatedAt = time.Now()

	return nil
}

func (r *userMemoryRepository) FindUserByResetCode(
	_ context.Context,
	email, code string,
	now time.Time,
) (*model.User, error) {
	if !model.IsResetCode(code) {
		return nil, ErrResetCodeMismatch
	}

	user, err := r.find(func(u *model.User) bool {
		return sameIdentity(u.Email, email) && u.MatchesResetCode(code, now)
	})
	if err != nil {
		return nil, ErrResetCodeMismatch
	}

	return user, nil
}

func (r *userMemoryRepository) ResetPassword(
	_ context.Context,
	email, code string,
	now time.Time,
	passwordHash string,
) (*model.User, error) {
	if !model.IsResetCode(code) {
		return nil, ErrResetCodeMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findLocked(func(u *model.User) bool {
		return sameIdentity(u.Email, email) && u.MatchesResetCode(code, now)
	})
	if user == nil {
		return nil, ErrResetCodeMismatch
	}

	user.PasswordHash = passwordHash
	user.ResetPasswordCode = nil
	user.ResetPasswordExpiresAt = nil
	user.UpdatedAt = time.Now()

	return cloneUser(user), nil
}

func (r *userMemoryRepository) Ping(context.Context) error {
	return nil
}

func (r *userMemoryRepository) find(match func(*model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findLocked(match)
	if user == nil {
		return nil, ErrUserNotFound
	}

	return cloneUser(user), nil
}

func (r *userMemoryRepository) findLocked(match func(*model.User) bool) *model.User {
	for _, u := range r.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func sameIdentity(a, b string) bool {
	return strings.EqualFold(a, b)
}

func cloneUser(u *model.User) *model.User {
	cp := *u
	if u.ResetPasswordCode != nil {
		code := *u.ResetPasswordCode
		cp.ResetPasswordCode = &code
	}
	if u.ResetPasswordExpiresAt != nil {
		expiresAt := *u.ResetPasswordExpiresAt
		cp.ResetPasswordExpiresAt = &expiresAt
	}
	return &cp
}
