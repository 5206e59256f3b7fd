package session

import (
	"log/slog"
	"net/http"

	"github.com/tendant/simple-authcore/internal/http/middleware"
	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/pkg/auth"
)

// Handler handles session endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *auth.Service
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new session handler.
func NewHandler(logger *slog.Logger, service *auth.Service, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		cookieConfig: cookieConfig,
	}
}

// Logout ends the caller's session. It succeeds with or without a valid
// token; web clients also have the session cookie cleared.
// POST /api/v1/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r, h.cookieConfig)

	if err := h.service.Logout(r.Context(), token); err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearSessionCookie(w, h.cookieConfig)
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
