// internal/storage/database.go
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/meditech/meditech-backend/config"
	"github.com/meditech/meditech-backend/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Specific errors for storage operations
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrRecordNotFound      = errors.New("record not found")
	ErrColumnNotFound      = errors.New("column not found")
	ErrConstraintViolation = errors.New("constraint violation")
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// Connect opens the application database pool described by cfg.DatabaseURI.
// The sqlite development database gets its tables ensured on every connect;
// Postgres schemas are applied separately by the initdb command.
func Connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	driver, dsn, err := config.DriverDSN(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	sqlite := config.IsSQLite(cfg.DatabaseURI)
	customLog.Printf("Storage: Opening %s database", driver)

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		customLog.Warnf("Storage: Failed to open %s database: %v", driver, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if sqlite {
		// sqlite serializes writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.DBMaxConns)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping %s database: %v", driver, err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlite {
		if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
			db.Close()
			customLog.Warnf("Storage: Failed to ensure sqlite schema: %v", err)
			return nil, fmt.Errorf("failed to ensure sqlite schema: %w", err)
		}
		customLog.Println("Storage: sqlite schema ensured.")
	}

	customLog.Println("Storage: Database connection successful.")
	return db, nil
}

// isUniqueViolation recognizes unique-constraint failures from either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isForeignKeyViolation recognizes references to missing rows.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
