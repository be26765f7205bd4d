package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matthewhartstonge/argon2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/repository"
	"github.com/shrimpsense/shrimpsense-api/shared/auth"
	"github.com/shrimpsense/shrimpsense-api/shared/security"
)

type sentCode struct {
	to   string
	code string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (n *fakeNotifier) SendResetCode(_ context.Context, to, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentCode{to: to, code: code})
	return n.err
}

func (n *fakeNotifier) last(t *testing.T) sentCode {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no reset code was sent")
	return n.sent[len(n.sent)-1]
}

type fakeThrottle struct {
	err  error
	keys []string
}

func (f *fakeThrottle) Allow(_ context.Context, keys ...string) error {
	f.keys = append(f.keys, keys...)
	return f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type failingHasher struct{}

func (failingHasher) HashPassword(string) (string, error) {
	return "", errors.New("hasher down")
}

func (failingHasher) VerifyPassword(string, string) (bool, error) {
	return false, errors.New("hasher down")
}

func testHasher() *security.PasswordHasher {
	cfg := argon2.DefaultConfig()
	cfg.TimeCost = 1
	cfg.MemoryCost = 8 * 1024
	cfg.Parallelism = 1
	return security.NewPasswordHasherWithConfig(cfg)
}

func testTokens() *auth.JWTAuthenticator {
	return auth.NewJWTAuthenticator("shrimpsense", "shrimpsense-auth", "test-secret")
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fixture struct {
	repo     repository.UserRepository
	hasher   *security.PasswordHasher
	tokens   *auth.JWTAuthenticator
	notifier *fakeNotifier
	clock    *fakeClock
	auth     AuthUsecase
	reset    PasswordResetUsecase
}

func newFixture(t *testing.T, opts ...PasswordResetOption) *fixture {
	t.Helper()

	f := &fixture{
		repo:     repository.NewUserMemoryRepository(),
		hasher:   testHasher(),
		tokens:   testTokens(),
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}

	f.auth = NewAuthUsecase(testLogger(), f.repo, f.hasher, f.tokens, AuthOptions{})
	opts = append([]PasswordResetOption{WithClock(f.clock.Now)}, opts...)
	f.reset = NewPasswordResetUsecase(testLogger(), f.repo, f.hasher, f.notifier, opts...)

	return f
}

func (f *fixture) signup(t *testing.T, username, email, password string) *AuthResult {
	t.Helper()
	res, err := f.auth.Signup(context.Background(), SignupParams{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return res
}
