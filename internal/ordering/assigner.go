// Package ordering assigns append-only order values to records relative to a scope
// made of some of their own fields, such as a module within its course.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// ErrIncompleteScope is returned in strict mode when a configured scope column has no value.
var ErrIncompleteScope = errors.New("incomplete ordering scope")

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ScopeField pairs a scope column with the value the new record carries for it.
// An empty Value means the value could not be resolved yet.
type ScopeField struct {
	Column string
	Value  string
}

// Scope is the typed key a record reports for ordering.
type Scope []ScopeField

// Value returns the value recorded for column.
func (s Scope) Value(column string) (string, bool) {
	for _, f := range s {
		if f.Column == column {
			return f.Value, f.Value != ""
		}
	}
	return "", false
}

// Scoped is implemented by records whose order is relative to some of their own fields.
type Scoped interface {
	OrderScope() Scope
}

// MaxFinder looks up the largest order among records matching every filter.
// found is false when no record matches.
type MaxFinder interface {
	MaxOrder(ctx context.Context, table, column string, filters []ScopeField) (highest int, found bool, err error)
}

// Observer receives one notification per assignment.
type Observer interface {
	ObserveOrderAssignment(table string, computed bool, duration time.Duration)
}

// Option customises an Assigner.
type Option func(*Assigner)

// WithStrictScope makes unresolved scope columns an error instead of dropping them from the filter.
func WithStrictScope(strict bool) Option {
	return func(a *Assigner) { a.strict = strict }
}

// WithLogger sets the logger used for partial-scope warnings.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver attaches an assignment observer.
func WithObserver(o Observer) Option {
	return func(a *Assigner) { a.observer = o }
}

// Assigner hands out append-only order values relative to a scope.
// It keeps no state between calls; two concurrent callers in the same scope can
// read the same maximum and receive the same order.
type Assigner struct {
	table    string
	column   string
	scope    []string
	strict   bool
	logger   *zap.Logger
	observer Observer
}

// New validates the table, order column and scope columns and returns an assigner.
func New(table, column string, scope []string, opts ...Option) (*Assigner, error) {
	for _, ident := range append([]string{table, column}, scope...) {
		if !identifierPattern.MatchString(ident) {
			return nil, fmt.Errorf("invalid ordering identifier %q", ident)
		}
	}
	seen := make(map[string]struct{}, len(scope))
	for _, col := range scope {
		if _, dup := seen[col]; dup {
			return nil, fmt.Errorf("duplicate scope column %q", col)
		}
		if col == column {
			return nil, fmt.Errorf("scope column %q cannot be the order column", col)
		}
		seen[col] = struct{}{}
	}

	a := &Assigner{
		table:  table,
		column: column,
		scope:  append([]string(nil), scope...),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// MustNew is New for package-level configuration; it panics on invalid identifiers.
func MustNew(table, column string, scope []string, opts ...Option) *Assigner {
	a, err := New(table, column, scope, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// Table returns the table the assigner orders.
func (a *Assigner) Table() string { return a.table }

// Column returns the order column.
func (a *Assigner) Column() string { return a.column }

// ScopeColumns returns the configured scope columns.
func (a *Assigner) ScopeColumns() []string { return append([]string(nil), a.scope...) }

// Resolve turns a record's scope into equality filters over the configured columns.
// Fields not named in the configuration are ignored. Configured columns without a
// value are dropped and reported in missing, or rejected in strict mode.
func (a *Assigner) Resolve(scope Scope) (filters []ScopeField, missing []string, err error) {
	filters = make([]ScopeField, 0, len(a.scope))
	for _, col := range a.scope {
		value, ok := scope.Value(col)
		if !ok {
			missing = append(missing, col)
			continue
		}
		filters = append(filters, ScopeField{Column: col, Value: value})
	}
	if len(missing) > 0 && a.strict {
		return nil, missing, fmt.Errorf("%w: %s missing %v", ErrIncompleteScope, a.table, missing)
	}
	return filters, missing, nil
}

// Next returns the order for a new record. An explicit order is returned unchanged
// without touching the store. Otherwise the result is 0 for an empty scope and
// max+1 for a populated one; gaps left by deletions are never reused.
func (a *Assigner) Next(ctx context.Context, finder MaxFinder, explicit *int, scope Scope) (int, error) {
	start := time.Now()
	if explicit != nil {
		a.observe(false, start)
		return *explicit, nil
	}

	filters, missing, err := a.Resolve(scope)
	if err != nil {
		return 0, err
	}
	if len(missing) > 0 {
		a.logger.Warn("ordering scope partially resolved; widening filter",
			zap.String("table", a.table),
			zap.Strings("dropped_columns", missing),
		)
	}

	highest, found, err := finder.MaxOrder(ctx, a.table, a.column, filters)
	if err != nil {
		return 0, fmt.Errorf("compute next %s order: %w", a.table, err)
	}
	a.observe(true, start)
	if !found {
		return 0, nil
	}
	return highest + 1, nil
}

// Assign is Next for a Scoped record.
func (a *Assigner) Assign(ctx context.Context, finder MaxFinder, explicit *int, record Scoped) (int, error) {
	return a.Next(ctx, finder, explicit, record.OrderScope())
}

func (a *Assigner) observe(computed bool, start time.Time) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveOrderAssignment(a.table, computed, time.Since(start))
}
