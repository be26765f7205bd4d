package handler

import (
	"errors"
	"net/http"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/payload"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/usecase"
	"github.com/shrimpsense/shrimpsense-api/shared/httputil"
	"github.com/shrimpsense/shrimpsense-api/shared/middleware"
)

func (h *authHTTPHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req payload.SignupRequest
	if !h.decodeAndValidate(w, r, &req, "username, email and password are required") {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	res, err := h.authUsecase.Signup(ctx, usecase.SignupParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeUsecaseError(w, r, err, "Something went wrong during signup.")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, payload.SignupResponse{
		Result: toPayloadIdentity(res.Identity),
		Token:  res.Token,
	})
}

func (h *authHTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req payload.LoginRequest
	if !h.decodeAndValidate(w, r, &req, "Identifier (username/email) and password are required") {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	res, err := h.authUsecase.Login(ctx, usecase.LoginParams{
		LoginInput: req.LoginInput,
		Password:   req.Password,
	})
	if err != nil {
		writeUsecaseError(w, r, err, "Something went wrong during login.")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, payload.LoginResponse{
		Success: true,
		Message: "Login Successful",
		Result:  toPayloadIdentity(res.Identity),
		Token:   res.Token,
	})
}

func (h *authHTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	identity, err := h.authUsecase.GetIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		writeUsecaseError(w, r, err, "Something went wrong.")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, payload.MeResponse{Result: toPayloadIdentity(*identity)})
}

func toPayloadIdentity(identity usecase.Identity) payload.Identity {
	return payload.Identity{
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
	}
}
