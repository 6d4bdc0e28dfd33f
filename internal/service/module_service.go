package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	"github.com/noah-isme/course-cms-api/internal/ordering"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

type moduleRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Module, error)
	FindByID(ctx context.Context, id string) (*models.Module, error)
	Create(ctx context.Context, module *models.Module, explicitOrder *int) error
	Update(ctx context.Context, module *models.Module) error
	Delete(ctx context.Context, id string) error
}

type courseLookup interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateModuleRequest adds a module to a course. A nil Order appends it after the last module.
type CreateModuleRequest struct {
	CourseID    string `json:"course_id" validate:"required"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Order       *int   `json:"order" validate:"omitempty,min=0"`
}

// UpdateModuleRequest modifies module fields. A nil Order keeps the current position.
type UpdateModuleRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Order       *int   `json:"order" validate:"omitempty,min=0"`
}

// ModuleService manages the modules of a course.
type ModuleService struct {
	repo      moduleRepository
	courses   courseLookup
	outlines  OutlineInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewModuleService creates a module service. outlines may be nil when outlines are not cached.
func NewModuleService(repo moduleRepository, courses courseLookup, outlines OutlineInvalidator, validate *validator.Validate, logger *zap.Logger) *ModuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModuleService{repo: repo, courses: courses, outlines: outlines, validator: validate, logger: logger}
}

// ListByCourse returns the modules of a course in order.
func (s *ModuleService) ListByCourse(ctx context.Context, courseID string) ([]models.Module, error) {
	if err := s.ensureCourse(ctx, courseID); err != nil {
		return nil, err
	}
	modules, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	return modules, nil
}

// Get returns a module by id.
func (s *ModuleService) Get(ctx context.Context, id string) (*models.Module, error) {
	module, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return module, nil
}

// Create appends a module to its course, or places it at the requested order.
func (s *ModuleService) Create(ctx context.Context, req CreateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	if err := s.ensureCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	module := &models.Module{
		CourseID:    req.CourseID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, module, req.Order); err != nil {
		return nil, orderingError(err, "failed to create module")
	}
	s.logger.Debug("module created",
		zap.String("module_id", module.ID),
		zap.String("course_id", module.CourseID),
		zap.Int("order", module.Order),
		zap.Bool("explicit_order", req.Order != nil),
	)
	s.invalidate(ctx, module.CourseID)
	return module, nil
}

// Update modifies a module in place.
func (s *ModuleService) Update(ctx context.Context, id string, req UpdateModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	module, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	module.Title = strings.TrimSpace(req.Title)
	module.Description = req.Description
	if req.Order != nil {
		module.Order = *req.Order
	}
	if err := s.repo.Update(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update module")
	}
	s.invalidate(ctx, module.CourseID)
	return module, nil
}

// Delete removes a module and its contents. Remaining modules keep their orders.
func (s *ModuleService) Delete(ctx context.Context, id string) error {
	module, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}
	s.invalidate(ctx, module.CourseID)
	return nil
}

func (s *ModuleService) ensureCourse(ctx context.Context, courseID string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

func (s *ModuleService) invalidate(ctx context.Context, courseID string) {
	if s.outlines != nil {
		s.outlines.InvalidateOutline(ctx, courseID)
	}
}

// orderingError maps insert failures, keeping strict-scope rejections distinct from storage errors.
func orderingError(err error, message string) *appErrors.Error {
	if errors.Is(err, ordering.ErrIncompleteScope) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "ordering scope is incomplete")
	}
	return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, message)
}
