package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthStateTTL bounds how long an authorization request may take.
const OAuthStateTTL = 10 * time.Minute

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	MobileClientIDs []string
}

// Enabled reports whether a client ID is configured.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != ""
}

// OAuthState is the CSRF state of a pending authorization request.
type OAuthState struct {
	State       string
	Nonce       string
	RedirectURI string
	ExpiresAt   time.Time
}

// GoogleOAuth drives the authorization-code flow and hands back the ID token
// for LoginFederated.
type GoogleOAuth struct {
	config oauth2.Config
}

// NewGoogleOAuth creates the code-flow client.
func NewGoogleOAuth(cfg GoogleConfig) *GoogleOAuth {
	return &GoogleOAuth{config: oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}}
}

// NewOAuthState creates a fresh state and nonce for redirectURI.
func NewOAuthState(redirectURI string) (*OAuthState, error) {
	state, err := randomString(32)
	if err != nil {
		return nil, err
	}
	nonce, err := randomString(32)
	if err != nil {
		return nil, err
	}
	return &OAuthState{
		State:       state,
		Nonce:       nonce,
		RedirectURI: redirectURI,
		ExpiresAt:   time.Now().Add(OAuthStateTTL),
	}, nil
}

// AuthCodeURL returns the consent page URL for state.
func (g *GoogleOAuth) AuthCodeURL(state *OAuthState) string {
	return g.config.AuthCodeURL(state.State,
		oauth2.SetAuthURLParam("nonce", state.Nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// Exchange trades an authorization code for the ID token it carries.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("google: missing authorization code")
	}
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", errors.New("google: token response has no id_token")
	}
	return idToken, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
