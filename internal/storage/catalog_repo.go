// internal/storage/catalog_repo.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/meditech/meditech-backend/internal/core"
	"github.com/meditech/meditech-backend/internal/domain"
)

// RecordPtr constrains a repository type parameter to a pointer whose
// element implements domain.Record.
type RecordPtr[T any] interface {
	*T
	domain.Record
}

// Repository provides CRUD access to one record table. When the record type
// is domain.Owned, a non-nil ownerID scopes every operation to that user's rows.
type Repository[T any, PT RecordPtr[T]] struct {
	db      *sqlx.DB
	table   string
	columns []string
	owned   bool
}

// NewRepository creates a Repository for the table of T.
func NewRepository[T any, PT RecordPtr[T]](db *sqlx.DB) *Repository[T, PT] {
	var zero T
	rec := PT(&zero)
	_, owned := any(rec).(domain.Owned)
	return &Repository[T, PT]{
		db:      db,
		table:   rec.Table(),
		columns: rec.Columns(),
		owned:   owned,
	}
}

// Table returns the table name this repository reads and writes.
func (r *Repository[T, PT]) Table() string { return r.table }

// Owned reports whether records are scoped to a user.
func (r *Repository[T, PT]) Owned() bool { return r.owned }

// List returns a page of records, sorted by opts.SortBy (id by default).
func (r *Repository[T, PT]) List(ctx context.Context, opts *core.ListQueryOptions, ownerID *int64) ([]T, error) {
	if opts == nil {
		opts = core.DefaultListQueryOptions()
	}

	sortBy := "id"
	if opts.SortBy != "" {
		if !r.sortable(opts.SortBy) {
			return nil, fmt.Errorf("%w: '%s' on table '%s'", ErrColumnNotFound, opts.SortBy, r.table)
		}
		sortBy = opts.SortBy
	}
	order := "ASC"
	if opts.SortOrder == "desc" {
		order = "DESC"
	}

	var sb strings.Builder
	args := []any{}
	sb.WriteString("SELECT * FROM " + r.table)
	if where, whereArgs := r.ownerClause(ownerID); where != "" {
		sb.WriteString(" WHERE " + where)
		args = append(args, whereArgs...)
	}
	fmt.Fprintf(&sb, " ORDER BY %s %s LIMIT ? OFFSET ?", sortBy, order)
	args = append(args, opts.Limit, opts.Offset)

	records := []T{}
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(sb.String()), args...); err != nil {
		customLog.Warnf("Storage: Failed to list %s: %v", r.table, err)
		return nil, fmt.Errorf("database error listing %s: %w", r.table, err)
	}
	return records, nil
}

// Get retrieves one record by id.
func (r *Repository[T, PT]) Get(ctx context.Context, id int64, ownerID *int64) (*T, error) {
	query := "SELECT * FROM " + r.table + " WHERE id = ?"
	args := []any{id}
	if where, whereArgs := r.ownerClause(ownerID); where != "" {
		query += " AND " + where
		args = append(args, whereArgs...)
	}

	var rec T
	if err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		customLog.Warnf("Storage: Failed to get %s %d: %v", r.table, id, err)
		return nil, fmt.Errorf("database error fetching %s: %w", r.table, err)
	}
	return &rec, nil
}

// Create inserts rec and returns the stored row.
func (r *Repository[T, PT]) Create(ctx context.Context, rec PT) (*T, error) {
	if owned, ok := any(rec).(domain.Owned); ok && owned.OwnerID() < 1 {
		return nil, fmt.Errorf("%w: %s record has no owner", ErrConstraintViolation, r.table)
	}
	if d, ok := any(rec).(domain.Defaulter); ok {
		d.ApplyDefaults()
	}

	placeholders := make([]string, len(r.columns))
	for i, col := range r.columns {
		placeholders[i] = ":" + col
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		r.table, strings.Join(r.columns, ", "), strings.Join(placeholders, ", "))

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		customLog.Warnf("Storage: Failed to prepare insert into %s: %v", r.table, err)
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var id int64
	if err := stmt.GetContext(ctx, &id, rec); err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s references a missing record", ErrConstraintViolation, r.table)
		}
		customLog.Warnf("Storage: Failed to insert into %s: %v", r.table, err)
		return nil, fmt.Errorf("database error during insert: %w", err)
	}
	customLog.Printf("Storage: Inserted %s record %d", r.table, id)
	return r.Get(ctx, id, nil)
}

// Update overwrites the writable columns of record id with rec. The owner
// column is never rewritten.
func (r *Repository[T, PT]) Update(ctx context.Context, id int64, rec PT, ownerID *int64) (*T, error) {
	if d, ok := any(rec).(domain.Defaulter); ok {
		d.ApplyDefaults()
	}

	sets := make([]string, 0, len(r.columns))
	for _, col := range r.columns {
		if r.owned && col == ownerColumn {
			continue
		}
		sets = append(sets, col+" = :"+col)
	}
	query, args, err := sqlx.Named("UPDATE "+r.table+" SET "+strings.Join(sets, ", "), rec)
	if err != nil {
		return nil, fmt.Errorf("failed to bind update: %w", err)
	}
	query += " WHERE id = ?"
	args = append(args, id)
	if where, whereArgs := r.ownerClause(ownerID); where != "" {
		query += " AND " + where
		args = append(args, whereArgs...)
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: %s references a missing record", ErrConstraintViolation, r.table)
		}
		customLog.Warnf("Storage: Failed to update %s %d: %v", r.table, id, err)
		return nil, fmt.Errorf("database error during update: %w", err)
	}
	if err := requireRow(result); err != nil {
		return nil, err
	}
	return r.Get(ctx, id, nil)
}

// Delete removes record id.
func (r *Repository[T, PT]) Delete(ctx context.Context, id int64, ownerID *int64) error {
	query := "DELETE FROM " + r.table + " WHERE id = ?"
	args := []any{id}
	if where, whereArgs := r.ownerClause(ownerID); where != "" {
		query += " AND " + where
		args = append(args, whereArgs...)
	}

	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s record %d is still referenced", ErrConstraintViolation, r.table, id)
		}
		customLog.Warnf("Storage: Failed to delete %s %d: %v", r.table, id, err)
		return fmt.Errorf("database error during delete: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	customLog.Printf("Storage: Deleted %s record %d", r.table, id)
	return nil
}

const ownerColumn = "user_id"

func (r *Repository[T, PT]) ownerClause(ownerID *int64) (string, []any) {
	if !r.owned || ownerID == nil {
		return "", nil
	}
	return ownerColumn + " = ?", []any{*ownerID}
}

func (r *Repository[T, PT]) sortable(col string) bool {
	return col == "id" || col == "created_at" || slices.Contains(r.columns, col)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
