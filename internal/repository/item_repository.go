package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-cms-api/internal/models"
)

// itemTable maps an item kind to its table and payload column.
type itemTable struct {
	name    string
	payload string
}

var itemTables = map[models.ItemKind]itemTable{
	models.ItemKindText:  {name: "texts", payload: "content"},
	models.ItemKindFile:  {name: "files", payload: "file"},
	models.ItemKindImage: {name: "images", payload: "file"},
	models.ItemKindVideo: {name: "videos", payload: "url"},
}

func (t itemTable) columns() string {
	return "id, owner_id, title, created_at, updated_at, " + t.payload
}

func tableFor(kind models.ItemKind) (itemTable, error) {
	t, ok := itemTables[kind]
	if !ok {
		return itemTable{}, fmt.Errorf("unknown item kind %q", kind)
	}
	return t, nil
}

// ItemRepository persists the four item variants, dispatching on the item kind.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository creates a new repository instance.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts an item, stamping id and both timestamps.
func (r *ItemRepository) Create(ctx context.Context, item models.Item) error {
	t, err := tableFor(item.Kind())
	if err != nil {
		return err
	}
	base := item.Base()
	if base.ID == "" {
		base.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	base.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (:id, :owner_id, :title, :created_at, :updated_at, :%s)`, t.name, t.columns(), t.payload)
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create %s item: %w", item.Kind(), err)
	}
	return nil
}

// Find resolves a reference to its item. sql.ErrNoRows is returned untouched.
func (r *ItemRepository) Find(ctx context.Context, ref models.ItemRef) (models.Item, error) {
	t, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	item := models.NewItem(ref.Kind)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.columns(), t.name)
	if err := r.db.GetContext(ctx, item, query, ref.ID); err != nil {
		return nil, err
	}
	return item, nil
}

// FindMany loads the items of one kind with the given ids keyed by id. Unknown ids are absent.
func (r *ItemRepository) FindMany(ctx context.Context, kind models.ItemKind, ids []string) (map[string]models.Item, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	found := make(map[string]models.Item, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM %s WHERE id IN (?)", t.columns(), t.name), ids)
	if err != nil {
		return nil, fmt.Errorf("build %s items query: %w", kind, err)
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("load %s items: %w", kind, err)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		item := models.NewItem(kind)
		if err := rows.StructScan(item); err != nil {
			return nil, fmt.Errorf("scan %s item: %w", kind, err)
		}
		found[item.Base().ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s items: %w", kind, err)
	}
	return found, nil
}

// ListByOwner returns an owner's items of one kind, newest first.
func (r *ItemRepository) ListByOwner(ctx context.Context, kind models.ItemKind, ownerID string) ([]models.Item, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at DESC", t.columns(), t.name)
	rows, err := r.db.QueryxContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", kind, err)
	}
	defer rows.Close() //nolint:errcheck

	items := make([]models.Item, 0)
	for rows.Next() {
		item := models.NewItem(kind)
		if err := rows.StructScan(item); err != nil {
			return nil, fmt.Errorf("scan %s item: %w", kind, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s items: %w", kind, err)
	}
	return items, nil
}

// Update rewrites title and payload and refreshes updated_at; created_at is kept.
func (r *ItemRepository) Update(ctx context.Context, item models.Item) error {
	t, err := tableFor(item.Kind())
	if err != nil {
		return err
	}
	item.Base().UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE %s SET title = :title, %s = :%s, updated_at = :updated_at WHERE id = :id`, t.name, t.payload, t.payload)
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("update %s item: %w", item.Kind(), err)
	}
	return nil
}

// Delete removes an item. Content rows pointing at it are not touched.
func (r *ItemRepository) Delete(ctx context.Context, ref models.ItemRef) error {
	t, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	return deleteByID(ctx, r.db, t.name, ref.ID)
}
