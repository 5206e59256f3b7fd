package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-authcore/pkg/domain"
)

const testSecret = "test-secret-key-that-is-32-bytes!!"

func newTestIssuer(t *testing.T, now *time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenConfig{Secret: []byte(testSecret), Issuer: "simple-authcore"})
	require.NoError(t, err)
	if now != nil {
		issuer.now = func() time.Time { return *now }
	}
	return issuer
}

func TestNewTokenIssuer_ShortSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)
	accountID := uuid.New()

	token, expiresAt, err := issuer.Issue(accountID, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, got)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)

	token, _, err := issuer.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = issuer.Verify(token)
	require.NoError(t, err, "token must be valid before expiry")

	now = now.Add(2 * time.Minute)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestTokenIssuer_RejectsTampering(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	token, _, err := issuer.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			continue
		}
		b := []byte(token)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		tampered := string(b)
		if tampered == token {
			continue
		}
		if _, err := issuer.Verify(tampered); err == nil {
			// Base64url padding bits in the last character can decode identically.
			if i == len(token)-1 {
				continue
			}
			t.Fatalf("Verify accepted token altered at byte %d", i)
		}
	}
}

func TestTokenIssuer_RejectsMalformedAndForeign(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	other, err := NewTokenIssuer(TokenConfig{Secret: []byte(strings.Repeat("x", 32)), Issuer: "simple-authcore"})
	require.NoError(t, err)
	foreign, _, err := other.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewTokenIssuer(TokenConfig{Secret: []byte(testSecret), Issuer: "someone-else"})
	require.NoError(t, err)
	otherIss, _, err := wrongIssuer.Issue(uuid.New(), time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	hs384 := jwt.NewWithClaims(jwt.SigningMethodHS384, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    "simple-authcore",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	wrongAlg, err := hs384.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: uuid.NewString(),
		Issuer:  "simple-authcore",
	}})
	missingExp, err := noExp.SignedString([]byte(testSecret))
	require.NoError(t, err)

	badSub := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		Issuer:    "simple-authcore",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	badSubject, err := badSub.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": foreign,
		"wrong issuer": otherIss,
		"alg none":     unsigned,
		"alg HS384":    wrongAlg,
		"missing exp":  missingExp,
		"bad subject":  badSubject,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			id, err := issuer.Verify(token)
			assert.ErrorIs(t, err, domain.ErrInvalidToken)
			assert.Equal(t, uuid.Nil, id)
		})
	}
}

func TestLifetimes_Defaults(t *testing.T) {
	l := Lifetimes{PasswordLogin: 2 * time.Hour}.withDefaults()
	assert.Equal(t, time.Hour, l.Default)
	assert.Equal(t, 2*time.Hour, l.PasswordLogin)
	assert.Equal(t, time.Hour, l.FederatedLogin)

	d := DefaultLifetimes()
	assert.Equal(t, 24*time.Hour, d.PasswordLogin)
	assert.Equal(t, time.Hour, d.FederatedLogin)
}

func TestTokenIssuer_DefaultTTL(t *testing.T) {
	now := time.Now()
	issuer, err := NewTokenIssuer(TokenConfig{Secret: []byte(testSecret), DefaultTTL: 3 * time.Hour})
	require.NoError(t, err)
	issuer.now = func() time.Time { return now }

	_, expiresAt, err := issuer.Issue(uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(3*time.Hour).Unix(), expiresAt.Unix())

	_, expiresAt, err = newTestIssuer(t, &now).Issue(uuid.New(), -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultSessionTTL).Unix(), expiresAt.Unix())
}
