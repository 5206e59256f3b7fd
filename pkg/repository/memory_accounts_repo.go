package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-authcore/pkg/domain"
)

// MemoryAccountsRepository is an in-process account store with the same
// uniqueness and conditional update semantics as AccountsRepository. It backs
// tests and STORE_DRIVER=memory.
type MemoryAccountsRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
	now      func() time.Time
}

// NewMemoryAccountsRepository creates an empty in-memory store.
func NewMemoryAccountsRepository() *MemoryAccountsRepository {
	return &MemoryAccountsRepository{
		accounts: make(map[uuid.UUID]*domain.Account),
		now:      time.Now,
	}
}

// FindByEmail retrieves an account by email, case-insensitively.
func (r *MemoryAccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	email = normalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// FindByUsername retrieves an account by username.
func (r *MemoryAccountsRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username != nil && *a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// FindByEmailOrUsername retrieves an account whose email or username matches identifier.
func (r *MemoryAccountsRepository) FindByEmailOrUsername(ctx context.Context, identifier string) (*domain.Account, error) {
	if a, err := r.FindByEmail(ctx, identifier); err == nil {
		return a, nil
	}
	return r.FindByUsername(ctx, identifier)
}

// FindByExternalSubject retrieves the account linked to a federated subject.
func (r *MemoryAccountsRepository) FindByExternalSubject(ctx context.Context, subject string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.ExternalSubject != nil && *a.ExternalSubject == subject {
			return cloneAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// FindByID retrieves an account by ID.
func (r *MemoryAccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

// Create inserts a new account.
func (r *MemoryAccountsRepository) Create(ctx context.Context, account *domain.Account) error {
	a := cloneAccount(account)
	a.Email = normalizeEmail(a.Email)
	now := r.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(a); err != nil {
		return err
	}
	r.accounts[a.ID] = a
	account.Email = a.Email
	account.CreatedAt = a.CreatedAt
	account.UpdatedAt = a.UpdatedAt
	return nil
}

// UpdateByID applies a partial update and returns the stored account.
func (r *MemoryAccountsRepository) UpdateByID(ctx context.Context, id uuid.UUID, update domain.AccountUpdate) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	next := cloneAccount(current)
	update.Apply(next)
	next.Email = normalizeEmail(next.Email)
	next.UpdatedAt = r.now()
	if err := r.checkUnique(next); err != nil {
		return nil, err
	}
	r.accounts[id] = next
	return cloneAccount(next), nil
}

// DeleteByID removes an account.
func (r *MemoryAccountsRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}

// ConsumeRecoveryCode sets the password hash and clears the code if code still
// matches and is unexpired at now.
func (r *MemoryAccountsRepository) ConsumeRecoveryCode(ctx context.Context, id uuid.UUID, code string, now time.Time, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return domain.ErrInvalidOrExpiredCode
	}
	stored, active := a.ActiveRecoveryCode(now)
	if !active || stored != code {
		return domain.ErrInvalidOrExpiredCode
	}

	next := cloneAccount(a)
	next.PasswordHash = &passwordHash
	next.RecoveryCode = nil
	next.RecoveryCodeExpiresAt = nil
	next.UpdatedAt = r.now()
	r.accounts[id] = next
	return nil
}

// checkUnique must be called with mu held.
func (r *MemoryAccountsRepository) checkUnique(a *domain.Account) error {
	for id, other := range r.accounts {
		if id == a.ID {
			continue
		}
		if other.Email == a.Email {
			return domain.ErrAccountAlreadyExists
		}
		if a.Username != nil && other.Username != nil && *other.Username == *a.Username {
			return domain.ErrUsernameAlreadyExists
		}
		if a.ExternalSubject != nil && other.ExternalSubject != nil && *other.ExternalSubject == *a.ExternalSubject {
			return domain.ErrAccountAlreadyExists
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Username = clonePtr(a.Username)
	c.Avatar = clonePtr(a.Avatar)
	c.PasswordHash = clonePtr(a.PasswordHash)
	c.ExternalSubject = clonePtr(a.ExternalSubject)
	c.RecoveryCode = clonePtr(a.RecoveryCode)
	c.RecoveryCodeExpiresAt = clonePtr(a.RecoveryCodeExpiresAt)
	c.VerificationToken = clonePtr(a.VerificationToken)
	c.VerificationTokenExpiresAt = clonePtr(a.VerificationTokenExpiresAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
