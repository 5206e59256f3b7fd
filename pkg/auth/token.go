package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-authcore/pkg/domain"
)

// Default session lifetimes per flow.
const (
	DefaultSessionTTL        = time.Hour
	DefaultPasswordLoginTTL  = 24 * time.Hour
	DefaultFederatedLoginTTL = time.Hour

	MinSecretLength = 32
)

// Lifetimes holds the session token lifetime used by each flow. Password login
// and federated login deliberately differ.
type Lifetimes struct {
	Default        time.Duration
	PasswordLogin  time.Duration
	FederatedLogin time.Duration
}

// DefaultLifetimes returns the standard per-flow lifetimes.
func DefaultLifetimes() Lifetimes {
	return Lifetimes{
		Default:        DefaultSessionTTL,
		PasswordLogin:  DefaultPasswordLoginTTL,
		FederatedLogin: DefaultFederatedLoginTTL,
	}
}

func (l Lifetimes) withDefaults() Lifetimes {
	d := DefaultLifetimes()
	if l.Default <= 0 {
		l.Default = d.Default
	}
	if l.PasswordLogin <= 0 {
		l.PasswordLogin = d.PasswordLogin
	}
	if l.FederatedLogin <= 0 {
		l.FederatedLogin = d.FederatedLogin
	}
	return l
}

// TokenConfig holds the signing configuration. DefaultTTL applies when Issue
// is called without a lifetime.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	DefaultTTL time.Duration
}

// SessionClaims represents the claims in a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies stateless HS256 session tokens.
type TokenIssuer struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(config TokenConfig) (*TokenIssuer, error) {
	if len(config.Secret) < MinSecretLength {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultSessionTTL
	}
	return &TokenIssuer{config: config, now: time.Now}, nil
}

// Issue signs a token for accountID that expires after ttl, or after the
// configured default when ttl is not positive.
func (t *TokenIssuer) Issue(accountID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = t.config.DefaultTTL
	}
	now := t.now()
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    t.config.Issuer,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.config.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates a token and returns the account it was issued for. Any
// failure (signature, expiry, structure) is reported as domain.ErrInvalidToken.
func (t *TokenIssuer) Verify(tokenString string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidToken
		}
		return t.config.Secret, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return uuid.Nil, domain.ErrInvalidToken
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidToken
	}
	return accountID, nil
}
