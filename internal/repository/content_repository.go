package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-cms-api/internal/models"
	"github.com/noah-isme/course-cms-api/internal/ordering"
)

const contentColumns = `id, module_id, item_kind, item_id, "order"`

// ContentOrdering returns the assigner placing contents within their module.
func ContentOrdering(opts ...ordering.Option) *ordering.Assigner {
	return ordering.MustNew("contents", "order", []string{"module_id"}, opts...)
}

// ContentRepository handles persistence for module contents.
type ContentRepository struct {
	db     *sqlx.DB
	orders *ordering.Assigner
}

// NewContentRepository creates a repository; a nil assigner falls back to ContentOrdering().
func NewContentRepository(db *sqlx.DB, orders *ordering.Assigner) *ContentRepository {
	if orders == nil {
		orders = ContentOrdering()
	}
	return &ContentRepository{db: db, orders: orders}
}

// ListByModule returns the contents of a module by ascending order.
func (r *ContentRepository) ListByModule(ctx context.Context, moduleID string) ([]models.Content, error) {
	query := "SELECT " + contentColumns + ` FROM contents WHERE module_id = $1 ORDER BY "order" ASC, id ASC`
	var contents []models.Content
	if err := r.db.SelectContext(ctx, &contents, query, moduleID); err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	return contents, nil
}

// ListByModules returns the contents of several modules grouped by module, each group ordered.
func (r *ContentRepository) ListByModules(ctx context.Context, moduleIDs []string) (map[string][]models.Content, error) {
	grouped := make(map[string][]models.Content, len(moduleIDs))
	if len(moduleIDs) == 0 {
		return grouped, nil
	}
	query, args, err := sqlx.In("SELECT "+contentColumns+` FROM contents WHERE module_id IN (?) ORDER BY module_id, "order" ASC, id ASC`, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("build contents query: %w", err)
	}
	var contents []models.Content
	if err := r.db.SelectContext(ctx, &contents, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list module contents: %w", err)
	}
	for _, c := range contents {
		grouped[c.ModuleID] = append(grouped[c.ModuleID], c)
	}
	return grouped, nil
}

// FindByID returns a content row by id.
func (r *ContentRepository) FindByID(ctx context.Context, id string) (*models.Content, error) {
	query := "SELECT " + contentColumns + " FROM contents WHERE id = $1"
	var content models.Content
	if err := r.db.GetContext(ctx, &content, query, id); err != nil {
		return nil, err
	}
	return &content, nil
}

// Create inserts a content row. With a nil explicitOrder the next order within
// the module is computed in the same transaction as the insert.
func (r *ContentRepository) Create(ctx context.Context, content *models.Content, explicitOrder *int) (err error) {
	if content.ID == "" {
		content.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create content tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := r.orders.Assign(ctx, ordering.SQL(tx), explicitOrder, content)
	if err != nil {
		return err
	}
	content.Order = order

	const query = `INSERT INTO contents (id, module_id, item_kind, item_id, "order")
VALUES (:id, :module_id, :item_kind, :item_id, :order)`
	if _, err = tx.NamedExecContext(ctx, query, content); err != nil {
		return fmt.Errorf("create content: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create content tx: %w", err)
	}
	return nil
}

// UpdateOrder moves a content row to an explicit position.
func (r *ContentRepository) UpdateOrder(ctx context.Context, id string, order int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE contents SET "order" = $1 WHERE id = $2`, order, id); err != nil {
		return fmt.Errorf("update content order: %w", err)
	}
	return nil
}

// Delete removes a content row. The referenced item is left in place.
func (r *ContentRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "contents", id)
}

// DeleteByItem removes every content row pointing at the item and returns the number removed.
func (r *ContentRepository) DeleteByItem(ctx context.Context, ref models.ItemRef) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contents WHERE item_kind = $1 AND item_id = $2`, ref.Kind, ref.ID)
	if err != nil {
		return 0, fmt.Errorf("delete contents by item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("contents rows affected: %w", err)
	}
	return affected, nil
}
