package httputil

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-authcore/pkg/auth"
)

// SessionUser is the account summary returned with a new session.
type SessionUser struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Username *string   `json:"username,omitempty"`
	Avatar   *string   `json:"avatar,omitempty"`
}

// SessionResponse is the body of a successful login.
type SessionResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresIn int         `json:"expires_in"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      SessionUser `json:"user"`
	Created   bool        `json:"created,omitempty"`
}

// NewSessionResponse builds the login response for session.
func NewSessionResponse(session *auth.Session, created bool) SessionResponse {
	a := session.Account
	return SessionResponse{
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresIn: int(session.TTL.Seconds()),
		ExpiresAt: session.ExpiresAt,
		User: SessionUser{
			ID:       a.ID,
			Name:     a.Name,
			Email:    a.Email,
			Username: a.Username,
			Avatar:   a.Avatar,
		},
		Created: created,
	}
}

// WriteSession writes a login response. Web clients also get the token in an
// HttpOnly cookie; mobile clients (X-Client-Type: mobile) only in the body.
func WriteSession(w http.ResponseWriter, r *http.Request, session *auth.Session, created bool, cookies CookieConfig) {
	if !IsMobileClient(r) {
		SetSessionCookie(w, session.Token, cookies)
	}
	JSON(w, http.StatusOK, NewSessionResponse(session, created))
}
