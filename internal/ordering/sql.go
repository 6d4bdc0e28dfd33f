package ordering

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLFinder runs the max lookup on a sqlx queryer, typically the transaction that
// will also insert the record.
type SQLFinder struct {
	q sqlx.QueryerContext
}

// SQL wraps a database handle or transaction as a MaxFinder.
func SQL(q sqlx.QueryerContext) SQLFinder {
	return SQLFinder{q: q}
}

// MaxOrder implements MaxFinder.
func (f SQLFinder) MaxOrder(ctx context.Context, table, column string, filters []ScopeField) (int, bool, error) {
	query, args := MaxQuery(table, column, filters)
	var highest sql.NullInt64
	if err := sqlx.GetContext(ctx, f.q, &highest, query, args...); err != nil {
		return 0, false, err
	}
	if !highest.Valid {
		return 0, false, nil
	}
	return int(highest.Int64), true, nil
}

// MaxQuery builds the aggregate lookup for the given filters.
func MaxQuery(table, column string, filters []ScopeField) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT MAX(%s) FROM %s", pq.QuoteIdentifier(column), pq.QuoteIdentifier(table))
	args := make([]interface{}, 0, len(filters))
	for i, f := range filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&b, "%s = $%d", pq.QuoteIdentifier(f.Column), len(args))
	}
	return b.String(), args
}
