package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditech/meditech-backend/internal/domain"
)

func newMockRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	// "sqlite3" keeps ? bindvars so expectations match the written queries.
	return NewUserRepository(sqlx.NewDb(mockDB, "sqlite3")), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "role", "created_at"})
}

func TestUserRepositoryCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (email, full_name, password_hash, role) VALUES (?, ?, ?, ?) RETURNING id`)).
		WithArgs("ada@example.com", "Ada", "hash", domain.RolePatient).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
		WithArgs(int64(7)).
		WillReturnRows(userRows().AddRow(7, "ada@example.com", "Ada", "hash", domain.RolePatient, now))

	user, err := repo.Create(context.Background(), "  Ada@Example.com ", "Ada", "hash", domain.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("disk full"))

	user, err := repo.Create(context.Background(), "ada@example.com", "Ada", "hash", domain.RolePatient)
	assert.Nil(t, user)
	assert.ErrorContains(t, err, "disk full")
	assert.NotErrorIs(t, err, ErrEmailExists)
}

func TestUserRepositoryFindByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = ?`)).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByEmail(context.Background(), "Ghost@example.com")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryLookup(t *testing.T) {
	t.Run("malformed id", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		user, err := repo.Lookup(context.Background(), "not-a-number")
		assert.NoError(t, err)
		assert.Nil(t, user)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM users WHERE id`).WithArgs(int64(42)).WillReturnError(sql.ErrNoRows)
		user, err := repo.Lookup(context.Background(), "42")
		assert.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("database failure", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM users WHERE id`).WithArgs(int64(42)).WillReturnError(errors.New("connection reset"))
		user, err := repo.Lookup(context.Background(), "42")
		assert.Error(t, err)
		assert.Nil(t, user)
	})

	t.Run("known id", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`FROM users WHERE id`).WithArgs(int64(3)).
			WillReturnRows(userRows().AddRow(3, "bo@example.com", "Bo", "hash", domain.RoleAdmin, time.Now()))
		user, err := repo.Lookup(context.Background(), "3")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin())
	})
}

func TestUserRepositorySetRoleMissingUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET role = ? WHERE id = ?`)).
		WithArgs(domain.RoleDoctor, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRole(context.Background(), 99, domain.RoleDoctor)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositorySQLite(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	created, err := repo.Create(ctx, "Ada@Example.com", "Ada", "hash", domain.RolePatient)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = repo.Create(ctx, "ada@example.com", "Other", "hash", domain.RolePatient)
	assert.ErrorIs(t, err, ErrEmailExists)

	require.NoError(t, repo.UpdateFullName(ctx, created.ID, "Ada Lovelace"))
	require.NoError(t, repo.SetRole(ctx, created.ID, domain.RoleAdmin))

	found, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", found.FullName)
	assert.True(t, found.IsAdmin())

	users, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
