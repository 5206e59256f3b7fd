package auth

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-authcore/pkg/domain"
)

const usernameSuffixRange = 10000

// Session is an issued session token and the account it belongs to.
type Session struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
}

// IdentityReconciler maps a verified external identity onto a local account,
// creating one on first login.
type IdentityReconciler struct {
	store  AccountStore
	tokens *TokenIssuer
	ttl    time.Duration
	suffix func() int
}

// NewIdentityReconciler creates a reconciler that issues sessions with ttl.
func NewIdentityReconciler(store AccountStore, tokens *TokenIssuer, ttl time.Duration) *IdentityReconciler {
	if ttl <= 0 {
		ttl = DefaultFederatedLoginTTL
	}
	return &IdentityReconciler{
		store:  store,
		tokens: tokens,
		ttl:    ttl,
		suffix: func() int { return rand.IntN(usernameSuffixRange) },
	}
}

// Reconcile resolves identity to an account and issues a session for it.
// The account is looked up by external subject first, then by email. Existing
// local fields are never overwritten. A generated username that collides with
// an existing one fails with ErrUsernameAlreadyExists; it is not retried.
func (r *IdentityReconciler) Reconcile(ctx context.Context, identity *domain.ExternalIdentity) (*Session, bool, error) {
	email := NormalizeEmail(identity.Email)
	if email == "" || identity.Subject == "" {
		return nil, false, domain.ErrInvalidToken
	}

	created := false
	account, err := r.resolve(ctx, email, identity.Subject)
	if errors.Is(err, domain.ErrAccountNotFound) {
		account, err = r.create(ctx, email, identity)
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			// Lost a race with a concurrent first login for the same identity.
			account, err = r.resolve(ctx, email, identity.Subject)
		} else if err == nil {
			created = true
		}
	}
	if err != nil {
		return nil, false, err
	}

	token, expiresAt, err := r.tokens.Issue(account.ID, r.ttl)
	if err != nil {
		return nil, false, err
	}
	return &Session{Account: account, Token: token, ExpiresAt: expiresAt, TTL: r.ttl}, created, nil
}

// resolve finds the account linked to subject, falling back to an account
// with the same email. An email match with no linked subject is linked.
func (r *IdentityReconciler) resolve(ctx context.Context, email, subject string) (*domain.Account, error) {
	account, err := r.store.FindByExternalSubject(ctx, subject)
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return account, err
	}

	account, err = r.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.ExternalSubject == nil {
		return r.store.UpdateByID(ctx, account.ID, domain.AccountUpdate{ExternalSubject: &subject})
	}
	return account, nil
}

func (r *IdentityReconciler) create(ctx context.Context, email string, identity *domain.ExternalIdentity) (*domain.Account, error) {
	username := GenerateUsername(email, r.suffix())
	subject := identity.Subject
	name := SanitizeName(identity.Name)
	if name == "" {
		name = localPart(email)
	}

	account := &domain.Account{
		ID:              uuid.New(),
		Email:           email,
		Username:        &username,
		Name:            name,
		ExternalSubject: &subject,
	}
	if identity.Avatar != "" {
		avatar := identity.Avatar
		account.Avatar = &avatar
	}

	if err := r.store.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GenerateUsername joins the local part of email with a numeric suffix.
func GenerateUsername(email string, suffix int) string {
	return localPart(email) + strconv.Itoa(suffix)
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
