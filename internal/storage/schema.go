package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/meditech/meditech-backend/config"
)

// SchemaApplicationError wraps any failure while reading or applying a DDL script.
type SchemaApplicationError struct {
	Op  string // read, connect, execute
	Err error
}

func (e *SchemaApplicationError) Error() string {
	return fmt.Sprintf("schema %s failed: %v", e.Op, e.Err)
}

func (e *SchemaApplicationError) Unwrap() error { return e.Err }

// ReadDDL loads a DDL script from disk.
func ReadDDL(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &SchemaApplicationError{Op: "read", Err: err}
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", &SchemaApplicationError{Op: "read", Err: fmt.Errorf("%s is empty", path)}
	}
	return string(b), nil
}

// ApplySchema executes ddl as a single batch over one autocommit connection to
// databaseURI. The connection is closed before returning on every path.
// There is no retry; the script itself must be idempotent if it is re-run.
func ApplySchema(ctx context.Context, databaseURI, ddl string) error {
	driver, dsn, err := config.DriverDSN(databaseURI)
	if err != nil {
		return &SchemaApplicationError{Op: "connect", Err: err}
	}
	if driver == "pgx" {
		return applyPostgres(ctx, dsn, ddl)
	}
	return applySQL(ctx, driver, dsn, ddl)
}

func applyPostgres(ctx context.Context, dsn, ddl string) (err error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return &SchemaApplicationError{Op: "connect", Err: err}
	}
	defer func() {
		if cerr := conn.Close(context.Background()); cerr != nil && err == nil {
			err = &SchemaApplicationError{Op: "close", Err: cerr}
		}
	}()

	// Exec without arguments goes through the simple protocol: the whole
	// script runs as one multi-statement batch, outside any transaction.
	if _, err := conn.Exec(ctx, ddl); err != nil {
		customLog.Warnf("Storage: DDL execution failed: %v", err)
		return &SchemaApplicationError{Op: "execute", Err: err}
	}
	return nil
}

func applySQL(ctx context.Context, driver, dsn, ddl string) (err error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return &SchemaApplicationError{Op: "connect", Err: err}
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return &SchemaApplicationError{Op: "connect", Err: err}
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) && err == nil {
			err = &SchemaApplicationError{Op: "close", Err: cerr}
		}
	}()

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		customLog.Warnf("Storage: DDL execution failed: %v", err)
		return &SchemaApplicationError{Op: "execute", Err: err}
	}
	return nil
}
