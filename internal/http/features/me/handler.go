package me

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-authcore/internal/http/middleware"
	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/pkg/auth"
)

// Handler handles profile endpoints. All routes require the Auth middleware.
type Handler struct {
	logger       *slog.Logger
	service      *auth.Service
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new me handler.
func NewHandler(logger *slog.Logger, service *auth.Service, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		cookieConfig: cookieConfig,
	}
}

// UpdateRequest represents a profile update request. Omitted fields are
// left unchanged.
type UpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

// GetMe returns the current account's profile.
// GET /api/v1/profile
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	account, err := h.service.GetProfile(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account.Profile())
}

// UpdateMe updates name, email or avatar.
// PATCH /api/v1/profile
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), accountID, auth.ProfileUpdate{
		Name:   req.Name,
		Email:  req.Email,
		Avatar: req.Avatar,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account.Profile())
}

// DeleteMe permanently deletes the current account and clears the session
// cookie.
// DELETE /api/v1/profile
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.service.DeleteProfile(r.Context(), accountID); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearSessionCookie(w, h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Account deleted successfully"})
}
