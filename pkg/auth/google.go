package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/tendant/simple-authcore/pkg/domain"
)

const (
	googleIssuer    = "https://accounts.google.com"
	googleIssuerAlt = "accounts.google.com"
)

// GoogleIdentityProvider verifies Google ID tokens against Google's published
// signing keys.
type GoogleIdentityProvider struct {
	// extra audiences accepted besides the one passed to Verify, e.g. mobile client IDs.
	audiences []string
	validate  func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleIdentityProvider creates a provider. mobileClientIDs are accepted
// as alternative audiences.
func NewGoogleIdentityProvider(mobileClientIDs ...string) *GoogleIdentityProvider {
	var audiences []string
	for _, id := range mobileClientIDs {
		if id = strings.TrimSpace(id); id != "" {
			audiences = append(audiences, id)
		}
	}
	return &GoogleIdentityProvider{audiences: audiences, validate: idtoken.Validate}
}

// Verify checks the token's signature, expiry, audience and issuer and
// returns the identity it asserts.
func (p *GoogleIdentityProvider) Verify(ctx context.Context, token, audience string) (*domain.ExternalIdentity, error) {
	if audience == "" {
		return nil, errors.New("google: audience is not configured")
	}

	var (
		payload *idtoken.Payload
		err     error
	)
	for _, aud := range append([]string{audience}, p.audiences...) {
		payload, err = p.validate(ctx, token, aud)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}

	if payload.Issuer != googleIssuer && payload.Issuer != googleIssuerAlt {
		return nil, fmt.Errorf("google: unexpected issuer %q", payload.Issuer)
	}

	return identityFromClaims(payload.Subject, payload.Claims), nil
}

func identityFromClaims(subject string, claims map[string]any) *domain.ExternalIdentity {
	identity := &domain.ExternalIdentity{
		Subject: subject,
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Avatar:  stringClaim(claims, "picture"),
	}
	switch v := claims["email_verified"].(type) {
	case bool:
		identity.EmailVerified = v
	case string:
		identity.EmailVerified = v == "true"
	}
	return identity
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
