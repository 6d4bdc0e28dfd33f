package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-cms-api/internal/models"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

const outlineResolveLimit = 4

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
	ExistsBySlug(ctx context.Context, slug string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type subjectLookup interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type outlineModuleReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Module, error)
}

type outlineContentReader interface {
	ListByModules(ctx context.Context, moduleIDs []string) (map[string][]models.Content, error)
}

type itemBatchLoader interface {
	FindMany(ctx context.Context, kind models.ItemKind, ids []string) (map[string]models.Item, error)
}

// OutlineInvalidator drops cached outlines after a course's structure changes.
type OutlineInvalidator interface {
	InvalidateOutline(ctx context.Context, courseID string)
}

// CreateCourseRequest captures fields for creating courses.
type CreateCourseRequest struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Slug      string `json:"slug" validate:"omitempty,max=200,slug"`
	Overview  string `json:"overview"`
}

// UpdateCourseRequest modifies course fields. Owner and creation time never change.
type UpdateCourseRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	Title     string `json:"title" validate:"required,max=200"`
	Slug      string `json:"slug" validate:"omitempty,max=200,slug"`
	Overview  string `json:"overview"`
}

// CourseServiceConfig wires the outline dependencies.
type CourseServiceConfig struct {
	Modules  outlineModuleReader
	Contents outlineContentReader
	Items    itemBatchLoader
	Cache    *OutlineCache
	Metrics  *MetricsService
}

// CourseService handles courses and their assembled outlines.
type CourseService struct {
	repo      courseRepository
	subjects  subjectLookup
	modules   outlineModuleReader
	contents  outlineContentReader
	items     itemBatchLoader
	cache     *OutlineCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates a new course service.
func NewCourseService(repo courseRepository, subjects subjectLookup, cfg CourseServiceConfig, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerSlugValidation(validate)
	return &CourseService{
		repo:      repo,
		subjects:  subjects,
		modules:   cfg.Modules,
		contents:  cfg.Contents,
		items:     cfg.Items,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns paginated courses, newest first.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a course by identifier.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// GetBySlug returns a course by slug.
func (s *CourseService) GetBySlug(ctx context.Context, slug string) (*models.Course, error) {
	course, err := s.repo.FindBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course under an existing subject.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.ensureSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}
	slug, err := s.uniqueSlug(ctx, req.Title, req.Slug, "")
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		OwnerID:   req.OwnerID,
		SubjectID: req.SubjectID,
		Title:     strings.TrimSpace(req.Title),
		Slug:      slug,
		Overview:  req.Overview,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, slugWriteError(err, "course", "failed to create course")
	}
	return course, nil
}

// Update modifies an existing course.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.SubjectID != course.SubjectID {
		if err := s.ensureSubject(ctx, req.SubjectID); err != nil {
			return nil, err
		}
	}
	slug, err := s.uniqueSlug(ctx, req.Title, req.Slug, id)
	if err != nil {
		return nil, err
	}

	course.SubjectID = req.SubjectID
	course.Title = strings.TrimSpace(req.Title)
	course.Slug = slug
	course.Overview = req.Overview
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, slugWriteError(err, "course", "failed to update course")
	}
	s.InvalidateOutline(ctx, id)
	return course, nil
}

// Delete removes a course together with its modules and contents.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.InvalidateOutline(ctx, id)
	return nil
}

// Outline assembles the course with its modules and contents in order. Items
// are loaded per kind concurrently; content pointing at a removed item is
// returned with Missing set.
func (s *CourseService) Outline(ctx context.Context, courseID string) (*models.CourseOutline, error) {
	var cached models.CourseOutline
	if s.cache.Load(ctx, courseID, &cached) {
		return &cached, nil
	}

	start := time.Now()
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if s.modules == nil || s.contents == nil || s.items == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "course outline is not configured")
	}

	modules, err := s.modules.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course modules")
	}
	moduleIDs := make([]string, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}
	grouped, err := s.contents.ListByModules(ctx, moduleIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module contents")
	}

	items, err := s.resolveItems(ctx, grouped)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve outline items")
	}

	outline := &models.CourseOutline{Course: *course, Modules: make([]models.ModuleOutline, 0, len(modules))}
	for _, m := range modules {
		contents := grouped[m.ID]
		mo := models.ModuleOutline{Module: m, Contents: make([]models.ContentOutline, 0, len(contents))}
		for _, c := range contents {
			co := models.ContentOutline{ID: c.ID, Order: c.Order, Ref: c.Ref()}
			if item, ok := items[c.Ref()]; ok {
				co.Item = models.Envelope(item)
			} else {
				co.Missing = true
			}
			mo.Contents = append(mo.Contents, co)
		}
		outline.Modules = append(outline.Modules, mo)
	}
	s.metrics.ObserveDBQuery("course_outline", time.Since(start))

	s.cache.Store(ctx, outline)
	return outline, nil
}

// InvalidateOutline implements OutlineInvalidator.
func (s *CourseService) InvalidateOutline(ctx context.Context, courseID string) {
	s.cache.Evict(ctx, courseID)
}

func (s *CourseService) resolveItems(ctx context.Context, grouped map[string][]models.Content) (map[models.ItemRef]models.Item, error) {
	idsByKind := make(map[models.ItemKind][]string)
	for _, contents := range grouped {
		for _, c := range contents {
			idsByKind[c.ItemKind] = append(idsByKind[c.ItemKind], c.ItemID)
		}
	}

	resolved := make(map[models.ItemRef]models.Item)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(outlineResolveLimit)
	for kind, ids := range idsByKind {
		kind, ids := kind, ids
		g.Go(func() error {
			found, err := s.items.FindMany(gctx, kind, ids)
			if err != nil {
				return fmt.Errorf("load %s items: %w", kind, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for id, item := range found {
				resolved[models.ItemRef{Kind: kind, ID: id}] = item
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *CourseService) ensureSubject(ctx context.Context, subjectID string) error {
	if s.subjects == nil {
		return nil
	}
	if _, err := s.subjects.FindByID(ctx, subjectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "subject does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return nil
}

func (s *CourseService) uniqueSlug(ctx context.Context, title, slug, excludeID string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "course slug cannot be derived from title")
	}
	exists, err := s.repo.ExistsBySlug(ctx, slug, excludeID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course slug")
	}
	if exists {
		return "", appErrors.Clone(appErrors.ErrConflict, "course slug already exists")
	}
	return slug, nil
}
