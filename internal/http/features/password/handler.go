package password

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/pkg/auth"
	"github.com/tendant/simple-authcore/pkg/domain"
)

// Handler handles password registration and login.
type Handler struct {
	logger       *slog.Logger
	service      *auth.Service
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, service *auth.Service, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		cookieConfig: cookieConfig,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Message string         `json:"message"`
	User    domain.Profile `json:"user"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Identifier string `json:"identifier,omitempty"` // email or username
	Email      string `json:"email,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password"`
}

// identifier picks the first of identifier, email and username that is set.
func (req LoginRequest) identifier() string {
	for _, v := range []string{req.Identifier, req.Email, req.Username} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Register creates a password account. No session is issued; the client logs
// in afterwards.
// POST /api/v1/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		User:    account.Profile(),
	})
}

// Login authenticates with email or username and password.
// POST /api/v1/login
//
// For web clients: also sets the session cookie.
// For mobile clients (X-Client-Type: mobile): token in the response body only.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), auth.LoginInput{
		Identifier: req.identifier(),
		Password:   req.Password,
	})
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.WriteSession(w, r, session, false, h.cookieConfig)
}
