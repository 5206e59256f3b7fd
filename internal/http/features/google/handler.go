package google

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tendant/simple-authcore/internal/httputil"
	"github.com/tendant/simple-authcore/pkg/auth"
)

// stateCookie carries "<state>.<base64url(redirect)>" between Start and Callback.
const stateCookie = "oauth_state"

// CodeFlow is the authorization-code half of Google sign-in.
type CodeFlow interface {
	AuthCodeURL(state *auth.OAuthState) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Handler handles Google sign-in endpoints.
type Handler struct {
	logger       *slog.Logger
	service      *auth.Service
	flow         CodeFlow // nil when no client secret is configured
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new Google handler. flow may be nil, in which case only
// ID token sign-in is served.
func NewHandler(logger *slog.Logger, service *auth.Service, flow CodeFlow, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		flow:         flow,
		cookieConfig: cookieConfig,
	}
}

// TokenRequest carries an ID token obtained by a client-side Google sign-in.
type TokenRequest struct {
	Token   string `json:"token,omitempty"`
	IDToken string `json:"idToken,omitempty"`
}

// idToken picks token, falling back to idToken.
func (req TokenRequest) idToken() string {
	if strings.TrimSpace(req.Token) != "" {
		return req.Token
	}
	return req.IDToken
}

// SignIn verifies a Google ID token and signs the matching account in,
// creating it on first use.
// POST /api/v1/auth/google
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	session, created, err := h.service.LoginFederated(r.Context(), req.idToken())
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	httputil.WriteSession(w, r, session, created, h.cookieConfig)
}

// Start initiates the Google OAuth flow.
// GET /api/v1/auth/google/start?redirect_uri=<app_return_path>
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		httputil.Error(w, http.StatusNotFound, "google sign-in is not configured")
		return
	}

	state, err := auth.NewOAuthState(safeRedirect(r.URL.Query().Get("redirect_uri")))
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	value := state.State + "." + base64.RawURLEncoding.EncodeToString([]byte(state.RedirectURI))
	httputil.SetStateCookie(w, stateCookie, value, auth.OAuthStateTTL, h.cookieConfig)
	http.Redirect(w, r, h.flow.AuthCodeURL(state), http.StatusFound)
}

// Callback handles the Google OAuth callback, sets the session cookie and
// redirects to the path given to Start.
// GET /api/v1/auth/google/callback?code=...&state=...
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.flow == nil {
		httputil.Error(w, http.StatusNotFound, "google sign-in is not configured")
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		httputil.Error(w, http.StatusBadRequest, errParam)
		return
	}

	redirect, ok := h.checkState(r, query.Get("state"))
	httputil.ClearStateCookie(w, stateCookie, h.cookieConfig)
	if !ok {
		httputil.Error(w, http.StatusBadRequest, "invalid or expired state")
		return
	}

	idToken, err := h.flow.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.Warn("google code exchange failed", "error", err)
		httputil.Error(w, http.StatusBadGateway, "failed to exchange code")
		return
	}

	session, created, err := h.service.LoginFederated(r.Context(), idToken)
	if err != nil {
		httputil.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("google callback completed", "account_id", session.Account.ID, "created", created)
	httputil.SetSessionCookie(w, session.Token, h.cookieConfig)
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) checkState(r *http.Request, state string) (string, bool) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" {
		return "", false
	}
	stored, encoded, ok := strings.Cut(cookie.Value, ".")
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(state)) != 1 {
		return "", false
	}
	redirect, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return safeRedirect(string(redirect)), true
}

// safeRedirect only allows local absolute paths.
func safeRedirect(uri string) string {
	if !strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "//") || strings.Contains(uri, `\`) {
		return "/"
	}
	return uri
}
