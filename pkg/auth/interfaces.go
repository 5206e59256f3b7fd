package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-authcore/pkg/domain"
)

// AccountStore persists accounts. It is the only point of concurrency control:
// uniqueness of email and username is enforced by the store, and recovery code
// consumption is a single conditional update.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByEmailOrUsername(ctx context.Context, identifier string) (*domain.Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindByExternalSubject(ctx context.Context, subject string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	UpdateByID(ctx context.Context, id uuid.UUID, update domain.AccountUpdate) (*domain.Account, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// ConsumeRecoveryCode sets passwordHash and clears the recovery code only if
	// code still matches the stored one and has not expired at now. It returns
	// domain.ErrInvalidOrExpiredCode when no row qualifies.
	ConsumeRecoveryCode(ctx context.Context, id uuid.UUID, code string, now time.Time, passwordHash string) error
}

// Notifier delivers messages to an email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// IdentityProvider verifies an opaque external token issued for audience.
type IdentityProvider interface {
	Verify(ctx context.Context, token, audience string) (*domain.ExternalIdentity, error)
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) bool
}

// Observer receives the outcome of every state machine operation.
type Observer interface {
	ObserveTransition(op Operation, state domain.AuthState, kind domain.Kind)
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(Operation, domain.AuthState, domain.Kind) {}
