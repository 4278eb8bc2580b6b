package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	postgresScheme   = "postgres://"
	postgresqlScheme = "postgresql://"
	psycopgScheme    = "postgresql+psycopg://"
	sqliteScheme     = "sqlite://"
)

// ErrUnsupportedDatabase is returned by DriverDSN for URIs no registered driver can open.
var ErrUnsupportedDatabase = errors.New("unsupported database URI scheme")

// NormalizeDatabaseURL rewrites a raw connection string into its canonical form:
// postgres:// becomes postgresql+psycopg://, and sslmode=require is appended
// unless an sslmode is already present. Applying it twice changes nothing.
func NormalizeDatabaseURL(raw string) string {
	uri := raw
	if strings.HasPrefix(uri, postgresScheme) {
		uri = strings.Replace(uri, postgresScheme, postgresqlScheme, 1)
	}
	if strings.HasPrefix(uri, postgresqlScheme) {
		uri = psycopgScheme + strings.TrimPrefix(uri, postgresqlScheme)
	}
	if !strings.Contains(uri, "sslmode=") {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		uri += sep + "sslmode=require"
	}
	return uri
}

// DriverDSN maps a canonical database URI to the database/sql driver name and
// data source name used to open it.
func DriverDSN(uri string) (driver string, dsn string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, uri)
	}

	// Strip an SQLAlchemy-style driver suffix ("postgresql+psycopg").
	dialect, _, _ := strings.Cut(scheme, "+")

	switch dialect {
	case "postgres", "postgresql":
		return "pgx", postgresScheme + rest, nil
	case "sqlite":
		path, _, _ := strings.Cut(rest, "?")
		// sqlite:///relative.db and sqlite:////abs/path.db
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			path = ":memory:"
		}
		return "sqlite3", path + "?_foreign_keys=on", nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedDatabase, scheme)
	}
}

// IsSQLite reports whether the URI targets the sqlite development database.
func IsSQLite(uri string) bool {
	return strings.HasPrefix(uri, sqliteScheme) || strings.HasPrefix(uri, "sqlite+")
}
