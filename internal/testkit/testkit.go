// Package testkit builds a fully wired auth service over the in-memory store
// for handler and router tests.
package testkit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/simple-authcore/pkg/auth"
	"github.com/tendant/simple-authcore/pkg/domain"
	"github.com/tendant/simple-authcore/pkg/repository"
)

// Secret signs tokens issued by fixtures.
const Secret = "testkit-secret-0123456789abcdef01"

// GoogleAudience is the audience fixtures pass to the identity provider.
const GoogleAudience = "web-client.apps.googleusercontent.com"

// Message is one notification captured by Notifier.
type Message struct {
	To, Subject, Body string
}

// Notifier records sent messages.
type Notifier struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

// Send implements auth.Notifier.
func (n *Notifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.messages = append(n.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of everything sent so far.
func (n *Notifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

// IdentityProvider accepts the tokens registered with Add.
type IdentityProvider struct {
	mu         sync.Mutex
	identities map[string]*domain.ExternalIdentity
}

// Add registers token as asserting identity.
func (p *IdentityProvider) Add(token string, identity domain.ExternalIdentity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.identities == nil {
		p.identities = make(map[string]*domain.ExternalIdentity)
	}
	p.identities[token] = &identity
}

// Verify implements auth.IdentityProvider.
func (p *IdentityProvider) Verify(_ context.Context, token, audience string) (*domain.ExternalIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if audience != GoogleAudience {
		return nil, errors.New("unexpected audience")
	}
	identity, ok := p.identities[token]
	if !ok {
		return nil, errors.New("token rejected")
	}
	c := *identity
	return &c, nil
}

// Fixture bundles a service with its collaborators.
type Fixture struct {
	Service  *auth.Service
	Store    *repository.MemoryAccountsRepository
	Tokens   *auth.TokenIssuer
	Notifier *Notifier
	Identity *IdentityProvider
}

// New returns a service over an empty in-memory store.
func New(t testing.TB) *Fixture {
	t.Helper()

	store := repository.NewMemoryAccountsRepository()
	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{Algorithm: auth.AlgorithmBcrypt, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{Secret: []byte(Secret), Issuer: "testkit"})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	notifier := &Notifier{}
	identity := &IdentityProvider{}

	svc, err := auth.NewService(auth.ServiceConfig{
		Lifetimes:      auth.DefaultLifetimes(),
		GoogleAudience: GoogleAudience,
	}, auth.Dependencies{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Notifier: notifier,
		Identity: identity,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	return &Fixture{Service: svc, Store: store, Tokens: tokens, Notifier: notifier, Identity: identity}
}

// Register creates a password account and fails the test on error.
func (f *Fixture) Register(t testing.TB, name, email, password string) *domain.Account {
	t.Helper()
	account, err := f.Service.Register(context.Background(), auth.RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return account
}

// Login returns a session token for a registered account.
func (f *Fixture) Login(t testing.TB, identifier, password string) string {
	t.Helper()
	session, err := f.Service.Login(context.Background(), auth.LoginInput{Identifier: identifier, Password: password})
	if err != nil {
		t.Fatalf("login %s: %v", identifier, err)
	}
	return session.Token
}
