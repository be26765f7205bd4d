package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/usecase"
	"github.com/shrimpsense/shrimpsense-api/shared/httputil"
	"github.com/shrimpsense/shrimpsense-api/shared/middleware"
	"github.com/shrimpsense/shrimpsense-api/shared/validator"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Logger               *zerolog.Logger
	AuthUsecase          usecase.AuthUsecase
	PasswordResetUsecase usecase.PasswordResetUsecase
	Validator            *validator.Validator
	TokenParser          middleware.SessionTokenParser
	Store                Pinger
	CORSAllowedOrigin    string
	MaxBodyBytes         int64
	OperationTimeout     time.Duration
}

type authHTTPHandler struct {
	logger               *zerolog.Logger
	authUsecase          usecase.AuthUsecase
	passwordResetUsecase usecase.PasswordResetUsecase
	validator            *validator.Validator
	store                Pinger
	maxBodyBytes         int64
	operationTimeout     time.Duration
}

// NewRouter builds the HTTP API of the auth service.
func NewRouter(deps Deps) http.Handler {
	h := &authHTTPHandler{
		logger:               deps.Logger,
		authUsecase:          deps.AuthUsecase,
		passwordResetUsecase: deps.PasswordResetUsecase,
		validator:            deps.Validator,
		store:                deps.Store,
		maxBodyBytes:         deps.MaxBodyBytes,
		operationTimeout:     deps.OperationTimeout,
	}

	r := chi.NewRouter()
	r.Use(
		hlog.NewHandler(*deps.Logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
		chimiddleware.Recoverer,
		middleware.CORS(deps.CORSAllowedOrigin),
	)

	r.Get("/healthz", h.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Post("/recover", h.RecoverPassword)
		r.Post("/verify-code", h.VerifyResetCode)
		r.Post("/reset-password", h.ResetPassword)

		r.With(middleware.NewJWTMiddleware(deps.TokenParser)).Get("/me", h.Me)
	})

	return r
}

func (h *authHTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("store ping failed")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeAndValidate reads the JSON body into dst and validates it. On failure
// it writes a 400 reply and returns false.
func (h *authHTTPHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, message string) bool {
	if err := httputil.DecodeJSON(w, r, dst, h.maxBodyBytes); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
				Message: message,
				Errors:  verr.Fields,
			})
			return false
		}

		hlog.FromRequest(r).Error().Err(err).Msg("failed to validate request")
		httputil.WriteError(w, http.StatusBadRequest, message)
		return false
	}

	return true
}

func (h *authHTTPHandler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.operationTimeout)
}

// writeUsecaseError maps usecase errors to HTTP replies. Unknown errors are
// logged and answered with fallback.
func writeUsecaseError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		httputil.WriteError(w, http.StatusBadRequest, "Missing or malformed input")
	case errors.Is(err, usecase.ErrUserAlreadyExists):
		httputil.WriteError(w, http.StatusBadRequest, "Username or email already exists")
	case errors.Is(err, usecase.ErrUserNotFound):
		httputil.WriteError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, usecase.ErrInvalidCredentials):
		httputil.WriteError(w, http.StatusBadRequest, "Invalid credentials")
	case errors.Is(err, usecase.ErrInvalidOrExpiredCode):
		httputil.WriteError(w, http.StatusBadRequest, "Password reset code is invalid or has expired.")
	case errors.Is(err, usecase.ErrTooManyRequests):
		httputil.WriteError(w, http.StatusTooManyRequests, "Too many password reset requests. Please try again later.")
	case errors.Is(err, usecase.ErrDeliveryFailed):
		hlog.FromRequest(r).Error().Err(err).Msg("password reset delivery failed")
		httputil.WriteError(w, http.StatusInternalServerError, "Error sending password reset email.")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg(fallback)
		httputil.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
