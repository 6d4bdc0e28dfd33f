package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-cms-api/internal/models"
	"github.com/noah-isme/course-cms-api/internal/ordering"
)

const moduleColumns = `id, course_id, title, description, "order"`

// ModuleOrdering returns the assigner placing modules within their course.
func ModuleOrdering(opts ...ordering.Option) *ordering.Assigner {
	return ordering.MustNew("modules", "order", []string{"course_id"}, opts...)
}

// ModuleRepository handles persistence for course modules.
type ModuleRepository struct {
	db     *sqlx.DB
	orders *ordering.Assigner
}

// NewModuleRepository creates a repository; a nil assigner falls back to ModuleOrdering().
func NewModuleRepository(db *sqlx.DB, orders *ordering.Assigner) *ModuleRepository {
	if orders == nil {
		orders = ModuleOrdering()
	}
	return &ModuleRepository{db: db, orders: orders}
}

// ListByCourse returns the modules of a course by ascending order.
func (r *ModuleRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	query := "SELECT " + moduleColumns + ` FROM modules WHERE course_id = $1 ORDER BY "order" ASC, id ASC`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// FindByID returns a module by id.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	query := "SELECT " + moduleColumns + " FROM modules WHERE id = $1"
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		return nil, err
	}
	return &module, nil
}

// Create inserts a module. With a nil explicitOrder the next order within the
// course is computed in the same transaction as the insert.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module, explicitOrder *int) (err error) {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create module tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := r.orders.Assign(ctx, ordering.SQL(tx), explicitOrder, module)
	if err != nil {
		return err
	}
	module.Order = order

	const query = `INSERT INTO modules (id, course_id, title, description, "order")
VALUES (:id, :course_id, :title, :description, :order)`
	if _, err = tx.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create module tx: %w", err)
	}
	return nil
}

// Update modifies the module fields including its order.
func (r *ModuleRepository) Update(ctx context.Context, module *models.Module) error {
	const query = `UPDATE modules SET title = :title, description = :description, "order" = :order WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	return nil
}

// Delete removes a module and its contents.
func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "modules", id)
}
