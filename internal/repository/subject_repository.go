package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-cms-api/internal/models"
)

const subjectColumns = "id, title, slug"

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects ordered by title together with the unpaged total.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	where := ""
	var args []interface{}
	if term := strings.TrimSpace(filter.Search); term != "" {
		where = " WHERE LOWER(title) LIKE $1 OR slug LIKE $1"
		args = append(args, "%"+strings.ToLower(term)+"%")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM subjects"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	if total == 0 {
		return []models.Subject{}, 0, nil
	}

	size, offset := pageWindow(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM subjects%s ORDER BY title ASC, id ASC LIMIT %d OFFSET %d", subjectColumns, where, size, offset)
	subjects := make([]models.Subject, 0, size)
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByID returns a subject by id. sql.ErrNoRows is returned untouched.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	return r.findOne(ctx, "id", id)
}

// FindBySlug returns a subject by slug.
func (r *SubjectRepository) FindBySlug(ctx context.Context, slug string) (*models.Subject, error) {
	return r.findOne(ctx, "slug", slug)
}

func (r *SubjectRepository) findOne(ctx context.Context, column, value string) (*models.Subject, error) {
	var subject models.Subject
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE %s = $1", subjectColumns, column)
	if err := r.db.GetContext(ctx, &subject, query, value); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsBySlug reports whether a subject other than excludeID uses slug.
func (r *SubjectRepository) ExistsBySlug(ctx context.Context, slug string, excludeID string) (bool, error) {
	return slugTaken(ctx, r.db, "subjects", slug, excludeID)
}

// Create persists a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	const query = `INSERT INTO subjects (id, title, slug) VALUES (:id, :title, :slug)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return writeError("create subject", err)
	}
	return nil
}

// Update renames a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	const query = `UPDATE subjects SET title = :title, slug = :slug WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return writeError("update subject", err)
	}
	return nil
}

// Delete removes a subject; its courses go with it.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "subjects", id)
}
