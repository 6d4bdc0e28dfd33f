package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pageWindow(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size, (page - 1) * size
}

// deleteByID removes one row and reports sql.ErrNoRows when nothing matched.
func deleteByID(ctx context.Context, exec sqlx.ExecerContext, table, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(table))
	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// ErrDuplicateSlug is returned by writes that hit a unique slug index.
var ErrDuplicateSlug = errors.New("slug already taken")

// slugTaken reports whether another row of table already uses slug.
func slugTaken(ctx context.Context, q sqlx.QueryerContext, table, slug, excludeID string) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1 AND id <> $2)", pq.QuoteIdentifier(table))
	var taken bool
	if err := sqlx.GetContext(ctx, q, &taken, query, slug, excludeID); err != nil {
		return false, fmt.Errorf("check %s slug: %w", table, err)
	}
	return taken, nil
}

// writeError wraps a failed write, surfacing unique slug violations as ErrDuplicateSlug.
func writeError(op string, err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateSlug)
	}
	return fmt.Errorf("%s: %w", op, err)
}
