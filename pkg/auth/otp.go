package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/tendant/simple-authcore/pkg/domain"
)

const (
	DefaultRecoveryCodeTTL = 10 * time.Minute

	recoveryCodeMin   = 100000
	recoveryCodeRange = 900000
)

// CodeManager issues and consumes one-time recovery codes. Codes live on the
// account record; issuing a new code overwrites the previous one.
//
// Failed verification attempts are not counted. A code stays valid until it
// expires or is consumed.
type CodeManager struct {
	store  AccountStore
	hasher Hasher
	ttl    time.Duration
	now    func() time.Time
	rand   io.Reader
}

// NewCodeManager creates a code manager.
func NewCodeManager(store AccountStore, hasher Hasher, ttl time.Duration) *CodeManager {
	if ttl <= 0 {
		ttl = DefaultRecoveryCodeTTL
	}
	return &CodeManager{
		store:  store,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
		rand:   rand.Reader,
	}
}

// TTL returns how long an issued code stays valid.
func (m *CodeManager) TTL() time.Duration {
	return m.ttl
}

// GenerateCode returns a uniformly random six digit code in [100000, 999999].
func GenerateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, big.NewInt(recoveryCodeRange))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+recoveryCodeMin, 10), nil
}

// Issue stores a fresh code for account and returns it.
func (m *CodeManager) Issue(ctx context.Context, account *domain.Account) (string, error) {
	code, err := GenerateCode(m.rand)
	if err != nil {
		return "", err
	}
	expiresAt := m.now().Add(m.ttl)

	updated, err := m.store.UpdateByID(ctx, account.ID, domain.AccountUpdate{
		RecoveryCode:          &code,
		RecoveryCodeExpiresAt: &expiresAt,
	})
	if err != nil {
		return "", err
	}
	*account = *updated
	return code, nil
}

// Verify reports whether code matches the account's unexpired code.
func (m *CodeManager) Verify(account *domain.Account, code string) bool {
	stored, ok := account.ActiveRecoveryCode(m.now())
	if !ok || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1
}

// Consume replaces the account password and clears the code in one conditional
// update. On failure the password and the stored code are left untouched.
func (m *CodeManager) Consume(ctx context.Context, account *domain.Account, code, newPassword string) error {
	if !m.Verify(account, code) {
		return domain.ErrInvalidOrExpiredCode
	}

	hash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return m.store.ConsumeRecoveryCode(ctx, account.ID, code, m.now(), hash)
}
