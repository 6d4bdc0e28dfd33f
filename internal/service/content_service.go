package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

type contentRepository interface {
	ListByModule(ctx context.Context, moduleID string) ([]models.Content, error)
	FindByID(ctx context.Context, id string) (*models.Content, error)
	Create(ctx context.Context, content *models.Content, explicitOrder *int) error
	UpdateOrder(ctx context.Context, id string, order int) error
	Delete(ctx context.Context, id string) error
}

type moduleLookup interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
}

type itemResolver interface {
	Resolve(ctx context.Context, ref models.ItemRef) (models.Item, error)
	Delete(ctx context.Context, ref models.ItemRef, detach bool) error
}

// CreateContentRequest attaches an existing item to a module.
type CreateContentRequest struct {
	ModuleID string `json:"module_id" validate:"required"`
	ItemKind string `json:"item_kind" validate:"required"`
	ItemID   string `json:"item_id" validate:"required"`
	Order    *int   `json:"order" validate:"omitempty,min=0"`
}

// ContentService manages the ordered contents of modules.
type ContentService struct {
	repo      contentRepository
	modules   moduleLookup
	items     itemResolver
	outlines  OutlineInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewContentService creates a content service.
func NewContentService(repo contentRepository, modules moduleLookup, items itemResolver, outlines OutlineInvalidator, validate *validator.Validate, logger *zap.Logger) *ContentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{repo: repo, modules: modules, items: items, outlines: outlines, validator: validate, logger: logger}
}

// ListByModule returns the module's contents in order with their items attached.
// Rows whose item has been removed are returned with a nil Item.
func (s *ContentService) ListByModule(ctx context.Context, moduleID string) ([]models.Content, error) {
	if _, err := s.module(ctx, moduleID); err != nil {
		return nil, err
	}
	contents, err := s.repo.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contents")
	}
	for i := range contents {
		if err := s.attach(ctx, &contents[i]); err != nil {
			return nil, err
		}
	}
	return contents, nil
}

// Get returns a content row with its item attached.
func (s *ContentService) Get(ctx context.Context, id string) (*models.Content, error) {
	content, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	if err := s.attach(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Create attaches an item to a module, appending it unless an order is given.
func (s *ContentService) Create(ctx context.Context, req CreateContentRequest) (*models.Content, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	kind, ok := models.ParseItemKind(req.ItemKind)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidItemKind, appErrors.ErrInvalidItemKind.Message)
	}
	module, err := s.module(ctx, req.ModuleID)
	if err != nil {
		return nil, err
	}
	ref := models.ItemRef{Kind: kind, ID: req.ItemID}
	item, err := s.items.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	content := &models.Content{ModuleID: module.ID, ItemKind: kind, ItemID: req.ItemID}
	if err := s.repo.Create(ctx, content, req.Order); err != nil {
		return nil, orderingError(err, "failed to create content")
	}
	content.Item = item
	s.logger.Debug("content created",
		zap.String("content_id", content.ID),
		zap.String("module_id", content.ModuleID),
		zap.Stringer("item", ref),
		zap.Int("order", content.Order),
	)
	s.invalidate(ctx, module.CourseID)
	return content, nil
}

// Move places a content row at an explicit order without touching its siblings.
func (s *ContentService) Move(ctx context.Context, id string, order int) (*models.Content, error) {
	if order < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "order must not be negative")
	}
	content, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateOrder(ctx, id, order); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move content")
	}
	content.Order = order
	s.invalidateModule(ctx, content.ModuleID)
	return content, nil
}

// Delete removes a content row. With deleteItem the referenced item is removed as
// well, detaching it from every other module that shows it.
func (s *ContentService) Delete(ctx context.Context, id string, deleteItem bool) error {
	content, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content")
	}
	s.invalidateModule(ctx, content.ModuleID)

	if !deleteItem {
		return nil
	}
	if err := s.items.Delete(ctx, content.Ref(), true); err != nil && !errors.Is(err, appErrors.ErrNotFound) {
		return err
	}
	return nil
}

func (s *ContentService) attach(ctx context.Context, content *models.Content) error {
	item, err := s.items.Resolve(ctx, content.Ref())
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			s.logger.Warn("content references a missing item",
				zap.String("content_id", content.ID),
				zap.Stringer("item", content.Ref()),
			)
			return nil
		}
		return err
	}
	content.Item = item
	return nil
}

func (s *ContentService) module(ctx context.Context, id string) (*models.Module, error) {
	module, err := s.modules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	return module, nil
}

func (s *ContentService) invalidateModule(ctx context.Context, moduleID string) {
	if s.outlines == nil {
		return
	}
	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		s.logger.Warn("skip outline invalidation", zap.String("module_id", moduleID), zap.Error(err))
		return
	}
	s.outlines.InvalidateOutline(ctx, module.CourseID)
}

func (s *ContentService) invalidate(ctx context.Context, courseID string) {
	if s.outlines != nil {
		s.outlines.InvalidateOutline(ctx, courseID)
	}
}
