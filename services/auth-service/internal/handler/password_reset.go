package handler

import (
	"net/http"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/payload"
	"github.com/shrimpsense/shrimpsense-api/shared/httputil"
)

// recoverMessage is returned for known and unknown emails alike.
const recoverMessage = "If an account with that email exists, a password reset code has been sent."

func (h *authHTTPHandler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req payload.RecoverRequest
	if !h.decodeAndValidate(w, r, &req, "Email address is required") {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.passwordResetUsecase.RequestPasswordReset(ctx, req.Email, clientIP(r)); err != nil {
		writeUsecaseError(w, r, err, "Something went wrong during password recovery.")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, payload.MessageResponse{Message: recoverMessage})
}

func (h *authHTTPHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req payload.VerifyCodeRequest
	if !h.decodeAndValidate(w, r, &req, "Email and code are required") {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.passwordResetUsecase.VerifyResetCode(ctx, req.Email, req.Code); err != nil {
		writeUsecaseError(w, r, err, "Something went wrong during code verification.")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, payload.MessageResponse{Message: "Code verified successfully."})
}

func (h *authHTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req payload.ResetPasswordRequest
	if !h.decodeAndValidate(w, r, &req, "Email, code, and new password are required") {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.passwordResetUsecase.ResetPassword(ctx, req.Email, req.Code, req.NewPassword); err != nil {
		writeUsecaseError(w, r, err, "Something went wrong during password reset.")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, payload.MessageResponse{
		Success: true,
		Message: "Password has been reset successfully.",
	})
}
