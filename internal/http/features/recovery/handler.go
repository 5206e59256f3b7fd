package recovery

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/pkg/auth"
)

// Handler handles the one-time-code password recovery flow. None of its
// routes require a session.
type Handler struct {
	logger  *slog.Logger
	service *auth.Service
}

// NewHandler creates a new recovery handler.
func NewHandler(logger *slog.Logger, service *auth.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// SendCodeRequest asks for a recovery code.
type SendCodeRequest struct {
	Email string `json:"email"`
}

// VerifyCodeRequest checks a recovery code.
type VerifyCodeRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest sets a new password using a recovery code.
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	Password    string `json:"password,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
}

// password picks password, falling back to newPassword.
func (req ResetPasswordRequest) password() string {
	if req.Password != "" {
		return req.Password
	}
	return req.NewPassword
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// SendCode issues a recovery code and emails it.
// POST /api/v1/send-otp
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SendRecoveryCode(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "OTP sent to email"})
}

// VerifyCode reports whether a recovery code is currently valid. The code
// stays usable.
// POST /api/v1/verify-otp
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.VerifyRecoveryCode(r.Context(), req.Email, req.OTP); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "OTP verified successfully"})
}

// ResetPassword consumes a recovery code and replaces the password. No
// session is issued.
// POST /api/v1/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.OTP, req.password()); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}
