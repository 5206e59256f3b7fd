package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/tendant/simple-authcore/pkg/domain"
)

// Unique constraints on the accounts table.
const (
	constraintEmail           = "accounts_email_key"
	constraintUsername        = "accounts_username_key"
	constraintExternalSubject = "accounts_external_subject_key"
)

const accountColumns = `id, email, username, name, avatar, password_hash, external_subject,
		       recovery_code, recovery_code_expires_at, verification_token,
		       verification_token_expires_at, created_at, updated_at`

// AccountsRepository handles account persistence in Postgres.
type AccountsRepository struct {
	db  DBTX
	now func() time.Time
}

// NewAccountsRepository creates a new accounts repository.
func NewAccountsRepository(db DBTX) *AccountsRepository {
	return &AccountsRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.Username, &a.Name, &a.Avatar, &a.PasswordHash, &a.ExternalSubject,
		&a.RecoveryCode, &a.RecoveryCodeExpiresAt, &a.VerificationToken,
		&a.VerificationTokenExpiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// FindByEmail retrieves an account by email.
func (r *AccountsRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, normalizeEmail(email)))
}

// FindByUsername retrieves an account by username.
func (r *AccountsRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, strings.TrimSpace(username)))
}

// FindByEmailOrUsername retrieves an account by email or username. An email
// match wins over a username match.
func (r *AccountsRepository) FindByEmailOrUsername(ctx context.Context, identifier string) (*domain.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE email = $1 OR username = $2
		ORDER BY (email = $1) DESC
		LIMIT 1
	`
	return scanAccount(r.db.QueryRowContext(ctx, query, normalizeEmail(identifier), strings.TrimSpace(identifier)))
}

// FindByID retrieves an account by ID.
func (r *AccountsRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// FindByExternalSubject retrieves the account linked to a federated subject.
func (r *AccountsRepository) FindByExternalSubject(ctx context.Context, subject string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_subject = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, subject))
}

// Create inserts a new account. Duplicate email or username fails with a
// conflict error.
func (r *AccountsRepository) Create(ctx context.Context, account *domain.Account) error {
	account.Email = normalizeEmail(account.Email)
	now := r.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}

	query := `
		INSERT INTO accounts (id, email, username, name, avatar, password_hash, external_subject, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Username, account.Name, account.Avatar,
		account.PasswordHash, account.ExternalSubject, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// UpdateByID applies the non-nil fields of update in a single statement and
// returns the updated row.
func (r *AccountsRepository) UpdateByID(ctx context.Context, id uuid.UUID, update domain.AccountUpdate) (*domain.Account, error) {
	if update.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	var (
		sets []string
		args = []any{id}
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.Email != nil {
		set("email", normalizeEmail(*update.Email))
	}
	if update.Username != nil {
		set("username", strings.TrimSpace(*update.Username))
	}
	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Avatar != nil {
		set("avatar", *update.Avatar)
	}
	if update.PasswordHash != nil {
		set("password_hash", *update.PasswordHash)
	}
	if update.ExternalSubject != nil {
		set("external_subject", *update.ExternalSubject)
	}
	if update.RecoveryCode != nil {
		set("recovery_code", *update.RecoveryCode)
	}
	if update.RecoveryCodeExpiresAt != nil {
		set("recovery_code_expires_at", *update.RecoveryCodeExpiresAt)
	}
	set("updated_at", r.now())

	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...))
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, mapWriteError(errors.Unwrap(err))
	}
	return account, err
}

// DeleteByID permanently deletes an account.
func (r *AccountsRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ConsumeRecoveryCode replaces the password hash and clears the recovery code
// in one conditional update. Concurrent callers race on the WHERE clause and
// at most one of them sees a row affected.
func (r *AccountsRepository) ConsumeRecoveryCode(ctx context.Context, id uuid.UUID, code string, now time.Time, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $3,
		    recovery_code = NULL,
		    recovery_code_expires_at = NULL,
		    updated_at = $5
		WHERE id = $1
		  AND recovery_code = $2
		  AND recovery_code_expires_at > $4
	`
	result, err := r.db.ExecContext(ctx, query, id, code, passwordHash, now, r.now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if rows == 0 {
		return domain.ErrInvalidOrExpiredCode
	}
	return nil
}

// mapWriteError translates constraint violations into domain errors.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
		switch pqErr.Constraint {
		case constraintUsername:
			return domain.ErrUsernameAlreadyExists
		case constraintEmail, constraintExternalSubject:
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("%w: %s", domain.ErrAccountAlreadyExists, pqErr.Constraint)
	}
	return fmt.Errorf("db error: %w", err)
}
