package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-authcore/pkg/auth"
	"github.com/tendant/simple-authcore/pkg/domain"
)

var (
	_ auth.AccountStore = (*AccountsRepository)(nil)
	_ auth.AccountStore = (*MemoryAccountsRepository)(nil)
)

var accountRowColumns = []string{
	"id", "email", "username", "name", "avatar", "password_hash", "external_subject",
	"recovery_code", "recovery_code_expires_at", "verification_token",
	"verification_token_expires_at", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*AccountsRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	repo := NewAccountsRepository(db)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo, mock
}

func accountRow(id uuid.UUID, email string, username, hash any) *sqlmock.Rows {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(accountRowColumns).AddRow(
		id.String(), email, username, "Alice", nil, hash, nil,
		nil, nil, nil,
		nil, now, now,
	)
}

func TestAccountsRepository_FindByEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("alice@example.com").
		WillReturnRows(accountRow(id, "alice@example.com", "alice", "$2a$10$hash"))

	got, err := repo.FindByEmail(context.Background(), "  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	require.NotNil(t, got.Username)
	assert.Equal(t, "alice", *got.Username)
	require.NotNil(t, got.PasswordHash)
	assert.Nil(t, got.Avatar)
	assert.Nil(t, got.RecoveryCode)
}

func TestAccountsRepository_FindNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+username\s*=\s*\$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1`).
		WillReturnRows(sqlmock.NewRows(accountRowColumns))

	_, err := repo.FindByUsername(ctx, " ghost ")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountsRepository_FindByEmailOrUsername(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)WHERE\s+email\s*=\s*\$1\s+OR\s+username\s*=\s*\$2\s+ORDER\s+BY\s+\(email\s*=\s*\$1\)\s+DESC\s+LIMIT\s+1`).
		WithArgs("alice", "Alice").
		WillReturnRows(accountRow(id, "alice@example.com", "Alice", "$2a$10$hash"))

	got, err := repo.FindByEmailOrUsername(context.Background(), " Alice ")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
}

func TestAccountsRepository_FindByExternalSubject(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*email.*FROM\s+accounts\s+WHERE\s+external_subject\s*=\s*\$1$`).
		WithArgs("google-sub-1").
		WillReturnRows(accountRow(id, "alice@example.com", "alice", nil))
	mock.ExpectQuery(`WHERE\s+external_subject\s*=\s*\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.FindByExternalSubject(context.Background(), "google-sub-1")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = repo.FindByExternalSubject(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountsRepository_FindDBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+accounts`).WillReturnError(errors.New("db down"))

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db down")
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestAccountsRepository_Create(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	username := "alice"
	hash := "$2a$10$hash"
	account := &domain.Account{ID: uuid.New(), Email: "Alice@Example.com", Username: &username, Name: "Alice", PasswordHash: &hash}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts\s*\(id,\s*email,\s*username,\s*name,\s*avatar,\s*password_hash,\s*external_subject,\s*created_at,\s*updated_at\)`).
		WithArgs(account.ID, "alice@example.com", "alice", "Alice", nil, hash, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), account))
	assert.Equal(t, "alice@example.com", account.Email)
	assert.False(t, account.CreatedAt.IsZero())
}

func TestAccountsRepository_CreateConflicts(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{constraintEmail, domain.ErrAccountAlreadyExists},
		{constraintUsername, domain.ErrUsernameAlreadyExists},
		{constraintExternalSubject, domain.ErrAccountAlreadyExists},
		{"accounts_pkey", domain.ErrAccountAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectExec(`INSERT\s+INTO\s+accounts`).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			err := repo.Create(context.Background(), &domain.Account{ID: uuid.New(), Email: "a@example.com"})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.KindConflict, domain.KindOf(err))
		})
	}
}

func TestAccountsRepository_CreateOtherError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).
		WillReturnError(&pq.Error{Code: "23514", Constraint: "accounts_credential_check"})

	err := repo.Create(context.Background(), &domain.Account{ID: uuid.New(), Email: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestAccountsRepository_UpdateByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	name := "Alice L"
	email := " New@Example.com"

	mock.ExpectQuery(`(?s)^UPDATE\s+accounts\s+SET\s+email\s*=\s*\$2,\s*name\s*=\s*\$3,\s*updated_at\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+id,`).
		WithArgs(id, "new@example.com", name, sqlmock.AnyArg()).
		WillReturnRows(accountRow(id, "new@example.com", "alice", "$2a$10$hash"))

	got, err := repo.UpdateByID(context.Background(), id, domain.AccountUpdate{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
}

func TestAccountsRepository_UpdateByIDRecoveryCode(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()
	code := "123456"
	expires := time.Now().Add(10 * time.Minute)

	mock.ExpectQuery(`(?s)SET\s+recovery_code\s*=\s*\$2,\s*recovery_code_expires_at\s*=\s*\$3,\s*updated_at\s*=\s*\$4\s+WHERE`).
		WithArgs(id, code, expires, sqlmock.AnyArg()).
		WillReturnRows(accountRow(id, "a@example.com", nil, "$2a$10$hash"))

	_, err := repo.UpdateByID(context.Background(), id, domain.AccountUpdate{RecoveryCode: &code, RecoveryCodeExpiresAt: &expires})
	require.NoError(t, err)
}

func TestAccountsRepository_UpdateByIDErrors(t *testing.T) {
	ctx := context.Background()
	email := "taken@example.com"

	t.Run("not found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`UPDATE\s+accounts`).WillReturnError(sql.ErrNoRows)
		_, err := repo.UpdateByID(ctx, uuid.New(), domain.AccountUpdate{Email: &email})
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("email conflict", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(`UPDATE\s+accounts`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: constraintEmail})
		_, err := repo.UpdateByID(ctx, uuid.New(), domain.AccountUpdate{Email: &email})
		assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
	})

	t.Run("empty update reads the row", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		id := uuid.New()
		mock.ExpectQuery(`(?s)^SELECT.*WHERE\s+id\s*=\s*\$1$`).
			WithArgs(id).
			WillReturnRows(accountRow(id, "a@example.com", nil, "$2a$10$hash"))
		got, err := repo.UpdateByID(ctx, id, domain.AccountUpdate{})
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
	})
}

func TestAccountsRepository_DeleteByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`^DELETE\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+accounts`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteByID(context.Background(), id))
	assert.ErrorIs(t, repo.DeleteByID(context.Background(), id), domain.ErrAccountNotFound)
}

func TestAccountsRepository_ConsumeRecoveryCode(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	query := `(?s)UPDATE\s+accounts\s+SET\s+password_hash\s*=\s*\$3,\s*recovery_code\s*=\s*NULL,\s*recovery_code_expires_at\s*=\s*NULL,.*WHERE\s+id\s*=\s*\$1\s+AND\s+recovery_code\s*=\s*\$2\s+AND\s+recovery_code_expires_at\s*>\s*\$4`

	t.Run("consumed", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(query).
			WithArgs(id, "123456", "newhash", now, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.ConsumeRecoveryCode(context.Background(), id, "123456", now, "newhash"))
	})

	t.Run("no qualifying row", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(query).
			WithArgs(id, "654321", "newhash", now, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		err := repo.ConsumeRecoveryCode(context.Background(), id, "654321", now, "newhash")
		assert.ErrorIs(t, err, domain.ErrInvalidOrExpiredCode)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(query).WillReturnError(errors.New("db down"))
		err := repo.ConsumeRecoveryCode(context.Background(), id, "123456", now, "newhash")
		assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	})
}
