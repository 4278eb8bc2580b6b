// internal/storage/user_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/meditech/meditech-backend/internal/domain"
)

const userColumns = `id, email, full_name, password_hash, role, created_at`

// UserRepository persists users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a UserRepository over db.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user and returns it as stored.
func (r *UserRepository) Create(ctx context.Context, email, fullName, passwordHash, role string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query := r.db.Rebind(`INSERT INTO users (email, full_name, password_hash, role) VALUES (?, ?, ?, ?) RETURNING id`)

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, email, fullName, passwordHash, role).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		customLog.Warnf("Storage: Failed to insert user %s: %v", email, err)
		return nil, fmt.Errorf("database error during user creation: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID retrieves a user by primary key.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`)
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to find user by id %d: %v", id, err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return &user, nil
}

// FindByEmail retrieves a user by their email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`)
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to find user by email %s: %v", email, err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return &user, nil
}

// Lookup resolves a stored session identifier to a user. A malformed or
// unknown identifier yields (nil, nil); only database failures are errors.
func (r *UserRepository) Lookup(ctx context.Context, id string) (*domain.User, error) {
	userID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}
	user, err := r.FindByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

// List returns users ordered by id.
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	users := []domain.User{}
	query := r.db.Rebind(`SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		customLog.Warnf("Storage: Failed to list users: %v", err)
		return nil, fmt.Errorf("database error listing users: %w", err)
	}
	return users, nil
}

// UpdateFullName changes a user's display name.
func (r *UserRepository) UpdateFullName(ctx context.Context, id int64, fullName string) error {
	query := r.db.Rebind(`UPDATE users SET full_name = ? WHERE id = ?`)
	return r.execOne(ctx, query, fullName, id)
}

// SetRole changes a user's role.
func (r *UserRepository) SetRole(ctx context.Context, id int64, role string) error {
	query := r.db.Rebind(`UPDATE users SET role = ? WHERE id = ?`)
	return r.execOne(ctx, query, role, id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		customLog.Warnf("Storage: Failed to update user: %v", err)
		return fmt.Errorf("database error during user update: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
