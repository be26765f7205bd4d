package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/matthewhartstonge/argon2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/repository"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/usecase"
	"github.com/shrimpsense/shrimpsense-api/shared/auth"
	"github.com/shrimpsense/shrimpsense-api/shared/ratelimit"
	"github.com/shrimpsense/shrimpsense-api/shared/security"
	"github.com/shrimpsense/shrimpsense-api/shared/validator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captureNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (n *captureNotifier) SendResetCode(_ context.Context, to, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = make(map[string]string)
	}
	n.codes[to] = code
	return n.err
}

func (n *captureNotifier) code(to string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[to]
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("no reachable servers") }

type testServer struct {
	router   http.Handler
	repo     repository.UserRepository
	notifier *captureNotifier
}

func newTestServer(t *testing.T, opts ...usecase.PasswordResetOption) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	repo := repository.NewUserMemoryRepository()
	notifier := &captureNotifier{}

	cfg := argon2.DefaultConfig()
	cfg.TimeCost = 1
	cfg.MemoryCost = 8 * 1024
	cfg.Parallelism = 1
	hasher := security.NewPasswordHasherWithConfig(cfg)

	jwtAuth := auth.NewJWTAuthenticator("shrimpsense", "shrimpsense-auth", "test-secret")

	v, err := validator.New()
	require.NoError(t, err)

	router := NewRouter(Deps{
		Logger:               &logger,
		AuthUsecase:          usecase.NewAuthUsecase(&logger, repo, hasher, jwtAuth, usecase.AuthOptions{}),
		PasswordResetUsecase: usecase.NewPasswordResetUsecase(&logger, repo, hasher, notifier, opts...),
		Validator:            v,
		TokenParser:          jwtAuth,
		Store:                repo,
		CORSAllowedOrigin:    "http://localhost:3000",
		MaxBodyBytes:         1 << 20,
		OperationTimeout:     5 * time.Second,
	})

	return &testServer{router: router, repo: repo, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		r.Header[k] = v
	}
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, r)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func (s *testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	return s.do(t, http.MethodPost, path, body, nil)
}

func TestPasswordRecoveryEndToEnd(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, status, resp)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "alice", result["username"])
	assert.Equal(t, "alice@x.com", result["email"])
	assert.NotEmpty(t, result["id"])
	assert.NotEmpty(t, resp["token"])

	status, resp = s.post(t, "/api/auth/login", map[string]string{"loginInput": "alice", "password": "Secret1!"})
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, resp["token"])

	status, resp = s.post(t, "/api/auth/recover", map[string]string{"email": "alice@x.com"})
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, recoverMessage, resp["message"])

	code := s.notifier.code("alice@x.com")
	require.Len(t, code, 6)

	stored, err := s.repo.GetUserByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored.ResetPasswordCode)
	require.NotNil(t, stored.ResetPasswordExpiresAt)
	assert.Equal(t, code, *stored.ResetPasswordCode)

	status, resp = s.post(t, "/api/auth/verify-code", map[string]string{"email": "alice@x.com", "code": code})
	require.Equal(t, http.StatusOK, status, resp)

	reset := map[string]string{"email": "alice@x.com", "code": code, "newPassword": "NewPass2!"}
	status, resp = s.post(t, "/api/auth/reset-password", reset)
	require.Equal(t, http.StatusOK, status, resp)
	assert.Equal(t, true, resp["success"])

	status, resp = s.post(t, "/api/auth/reset-password", reset)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password reset code is invalid or has expired.", resp["message"])

	status, _ = s.post(t, "/api/auth/login", map[string]string{"loginInput": "alice@x.com", "password": "NewPass2!"})
	require.Equal(t, http.StatusOK, status)
}

func TestSignupErrors(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.post(t, "/api/auth/signup", map[string]string{"username": "alice", "password": "Secret1!"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "username, email and password are required", resp["message"])
	assert.Contains(t, resp["errors"], "email")

	status, _ = s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, status)

	status, resp = s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "other@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username or email already exists", resp["message"])

	status, resp = s.post(t, "/api/auth/signup", `{"username":`)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "request body must be a valid JSON object", resp["message"])
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, status)

	status, resp := s.post(t, "/api/auth/login", map[string]string{"loginInput": "bob", "password": "Secret1!"})
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User not found", resp["message"])

	status, resp = s.post(t, "/api/auth/login", map[string]string{"loginInput": "alice", "password": "nope"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid credentials", resp["message"])

	status, _ = s.post(t, "/api/auth/login", map[string]string{"password": "nope"})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRecoverSameResponseForUnknownEmail(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, status)

	knownStatus, known := s.post(t, "/api/auth/recover", map[string]string{"email": "alice@x.com"})
	unknownStatus, unknown := s.post(t, "/api/auth/recover", map[string]string{"email": "ghost@x.com"})

	assert.Equal(t, http.StatusOK, knownStatus)
	assert.Equal(t, knownStatus, unknownStatus)
	assert.Equal(t, known, unknown)
	assert.Empty(t, s.notifier.code("ghost@x.com"))
}

func TestRecoverDeliveryFailure(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, status)
	s.notifier.err = errors.New("smtp down")

	status, resp := s.post(t, "/api/auth/recover", map[string]string{"email": "alice@x.com"})
	require.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Error sending password reset email.", resp["message"])

	leaked := s.notifier.code("alice@x.com")
	status, _ = s.post(t, "/api/auth/verify-code", map[string]string{"email": "alice@x.com", "code": leaked})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestRecoverThrottled(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	throttle := ratelimit.NewFixedWindow(rdb, ratelimit.Config{Prefix: "recover", Window: time.Minute, Limit: 2})
	s := newTestServer(t, usecase.WithThrottle(throttle))

	for i := 0; i < 2; i++ {
		status, _ := s.post(t, "/api/auth/recover", map[string]string{"email": "ghost@x.com"})
		require.Equal(t, http.StatusOK, status)
	}

	status, resp := s.post(t, "/api/auth/recover", map[string]string{"email": "ghost@x.com"})
	require.Equal(t, http.StatusTooManyRequests, status)
	assert.True(t, strings.HasPrefix(resp["message"].(string), "Too many"))
}

func TestVerifyCodeInvalid(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.post(t, "/api/auth/verify-code", map[string]string{"email": "alice@x.com", "code": "123456"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password reset code is invalid or has expired.", resp["message"])

	status, resp = s.post(t, "/api/auth/verify-code", map[string]string{"email": "alice@x.com", "code": "１２３４５６"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Password reset code is invalid or has expired.", resp["message"])

	status, resp = s.post(t, "/api/auth/verify-code", map[string]string{"email": "alice@x.com"})
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email and code are required", resp["message"])
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	status, resp := s.post(t, "/api/auth/signup", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "Secret1!",
	})
	require.Equal(t, http.StatusCreated, status)
	token := resp["token"].(string)

	status, resp = s.do(t, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", resp["result"].(map[string]any)["username"])

	status, _ = s.do(t, http.MethodGet, "/api/auth/me", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, resp := s.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", resp["status"])

	logger := zerolog.Nop()
	h := &authHTTPHandler{logger: &logger, store: downStore{}}
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
