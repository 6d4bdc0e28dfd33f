package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

const (
	defaultMaxFileSize = 20 << 20
	sniffLength        = 3072
)

type itemRepository interface {
	Create(ctx context.Context, item models.Item) error
	Find(ctx context.Context, ref models.ItemRef) (models.Item, error)
	ListByOwner(ctx context.Context, kind models.ItemKind, ownerID string) ([]models.Item, error)
	Update(ctx context.Context, item models.Item) error
	Delete(ctx context.Context, ref models.ItemRef) error
}

type contentDetacher interface {
	DeleteByItem(ctx context.Context, ref models.ItemRef) (int64, error)
}

type blobStore interface {
	SaveStream(name string, r io.Reader) (string, int64, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type blobRemover interface {
	Remove(path string)
}

type urlSigner interface {
	Generate(ref, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (ref, relPath string, expiresAt time.Time, err error)
}

// CreateTextRequest creates a text item.
type CreateTextRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=250"`
	Content string `json:"content" validate:"required"`
}

// CreateVideoRequest creates a video item pointing at an external URL.
type CreateVideoRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=250"`
	URL     string `json:"url" validate:"required,url"`
}

// UploadRequest carries the metadata of a file or image upload; the body is streamed separately.
type UploadRequest struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=250"`
	Filename string `json:"filename"`
}

// UpdateItemRequest modifies an item. Content applies to texts and URL to videos;
// stored blobs are replaced through ReplaceUpload.
type UpdateItemRequest struct {
	Title   string `json:"title" validate:"required,max=250"`
	Content string `json:"content"`
	URL     string `json:"url" validate:"omitempty,url"`
}

// SignedItemURL is a time-limited token granting access to a stored blob.
type SignedItemURL struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ItemServiceConfig wires storage for file-backed items.
type ItemServiceConfig struct {
	Storage     blobStore
	Signer      urlSigner
	Contents    contentDetacher
	Cache       *OutlineCache
	Janitor     blobRemover
	MaxFileSize int64
}

// ItemService manages texts, files, images and videos.
type ItemService struct {
	repo        itemRepository
	contents    contentDetacher
	storage     blobStore
	signer      urlSigner
	cache       *OutlineCache
	janitor     blobRemover
	maxFileSize int64
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewItemService creates an item service.
func NewItemService(repo itemRepository, cfg ItemServiceConfig, validate *validator.Validate, logger *zap.Logger) *ItemService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	return &ItemService{
		repo:        repo,
		contents:    cfg.Contents,
		storage:     cfg.Storage,
		signer:      cfg.Signer,
		cache:       cfg.Cache,
		janitor:     cfg.Janitor,
		maxFileSize: cfg.MaxFileSize,
		validator:   validate,
		logger:      logger,
	}
}

// CreateText stores a text item.
func (s *ItemService) CreateText(ctx context.Context, req CreateTextRequest) (*models.Text, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid text payload")
	}
	text := &models.Text{ItemBase: models.ItemBase{OwnerID: req.OwnerID, Title: strings.TrimSpace(req.Title)}, Body: req.Content}
	if err := s.repo.Create(ctx, text); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create text")
	}
	return text, nil
}

// CreateVideo stores a video item.
func (s *ItemService) CreateVideo(ctx context.Context, req CreateVideoRequest) (*models.Video, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid video payload")
	}
	video := &models.Video{ItemBase: models.ItemBase{OwnerID: req.OwnerID, Title: strings.TrimSpace(req.Title)}, URL: req.URL}
	if err := s.repo.Create(ctx, video); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create video")
	}
	return video, nil
}

// CreateFile streams an upload into storage and records a file item.
func (s *ItemService) CreateFile(ctx context.Context, req UploadRequest, body io.Reader) (*models.File, error) {
	item := &models.File{}
	if err := s.createUpload(ctx, req, body, item, &item.Path); err != nil {
		return nil, err
	}
	return item, nil
}

// CreateImage streams an upload into storage and records an image item. Only image/* content is accepted.
func (s *ItemService) CreateImage(ctx context.Context, req UploadRequest, body io.Reader) (*models.Image, error) {
	item := &models.Image{}
	if err := s.createUpload(ctx, req, body, item, &item.Path); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ItemService) createUpload(ctx context.Context, req UploadRequest, body io.Reader, item models.Item, target *string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}
	stored, err := s.store(item.Kind(), req.Filename, body)
	if err != nil {
		return err
	}
	base := item.Base()
	base.OwnerID = req.OwnerID
	base.Title = strings.TrimSpace(req.Title)
	*target = stored

	if err := s.repo.Create(ctx, item); err != nil {
		s.removeBlob(stored)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to create %s", item.Kind()))
	}
	return nil
}

// Resolve loads the item a reference points at.
func (s *ItemService) Resolve(ctx context.Context, ref models.ItemRef) (models.Item, error) {
	if !ref.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidItemKind, appErrors.ErrInvalidItemKind.Message)
	}
	item, err := s.repo.Find(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", ref.Kind))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to load %s", ref.Kind))
	}
	return item, nil
}

// Get is Resolve for a raw kind string.
func (s *ItemService) Get(ctx context.Context, kind, id string) (models.Item, error) {
	parsed, ok := models.ParseItemKind(kind)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidItemKind, appErrors.ErrInvalidItemKind.Message)
	}
	return s.Resolve(ctx, models.ItemRef{Kind: parsed, ID: id})
}

// ListByOwner returns an owner's items of one kind, newest first.
func (s *ItemService) ListByOwner(ctx context.Context, kind models.ItemKind, ownerID string) ([]models.Item, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidItemKind, appErrors.ErrInvalidItemKind.Message)
	}
	items, err := s.repo.ListByOwner(ctx, kind, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list items")
	}
	return items, nil
}

// Update modifies the title and, for texts and videos, the payload.
func (s *ItemService) Update(ctx context.Context, ref models.ItemRef, req UpdateItemRequest) (models.Item, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item payload")
	}
	item, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	item.Base().Title = strings.TrimSpace(req.Title)
	switch v := item.(type) {
	case *models.Text:
		if req.Content != "" {
			v.Body = req.Content
		}
	case *models.Video:
		if req.URL != "" {
			v.URL = req.URL
		}
	}
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to update %s", ref.Kind))
	}
	s.invalidateOutlines(ctx)
	return item, nil
}

// ReplaceUpload swaps the blob of a file or image and removes the previous one.
func (s *ItemService) ReplaceUpload(ctx context.Context, ref models.ItemRef, filename string, body io.Reader) (models.Item, error) {
	if !ref.Kind.FileBacked() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s items have no stored file", ref.Kind))
	}
	item, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	previous, _ := models.StoredPath(item)
	stored, err := s.store(ref.Kind, filename, body)
	if err != nil {
		return nil, err
	}
	switch v := item.(type) {
	case *models.File:
		v.Path = stored
	case *models.Image:
		v.Path = stored
	}
	if err := s.repo.Update(ctx, item); err != nil {
		s.removeBlob(stored)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to update %s", ref.Kind))
	}
	s.removeBlob(previous)
	s.invalidateOutlines(ctx)
	return item, nil
}

// Delete removes an item and its stored blob. With detach the content rows
// pointing at it are removed too; otherwise they are left dangling.
func (s *ItemService) Delete(ctx context.Context, ref models.ItemRef, detach bool) error {
	item, err := s.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if detach && s.contents != nil {
		removed, err := s.contents.DeleteByItem(ctx, ref)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach item from modules")
		}
		s.logger.Debug("item detached", zap.Stringer("item", ref), zap.Int64("contents", removed))
	}
	if err := s.repo.Delete(ctx, ref); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to delete %s", ref.Kind))
	}
	if stored, ok := models.StoredPath(item); ok {
		s.removeBlob(stored)
	}
	s.invalidateOutlines(ctx)
	return nil
}

// SignedURL issues a download token for a file-backed item.
func (s *ItemService) SignedURL(ctx context.Context, ref models.ItemRef) (*SignedItemURL, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrStorage, "media signing is not configured")
	}
	item, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	stored, ok := models.StoredPath(item)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s items have no stored file", ref.Kind))
	}
	token, expiresAt, err := s.signer.Generate(ref.String(), stored)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign media url")
	}
	return &SignedItemURL{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenSigned validates a token and opens the blob it grants. Tokens issued
// before the blob was replaced are rejected.
func (s *ItemService) OpenSigned(ctx context.Context, token string) (io.ReadCloser, models.Item, error) {
	if s.signer == nil || s.storage == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrStorage, "media storage is not configured")
	}
	rawRef, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid media token")
	}
	ref, ok := models.ParseItemRef(rawRef)
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid media token")
	}
	item, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	if stored, ok := models.StoredPath(item); !ok || stored != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "media no longer available")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open media")
	}
	return file, item, nil
}

// store sniffs the upload, enforces the size limit and writes it under <kind>s/<uuid><ext>.
func (s *ItemService) store(kind models.ItemKind, filename string, body io.Reader) (string, error) {
	if s.storage == nil {
		return "", appErrors.Clone(appErrors.ErrStorage, "media storage is not configured")
	}
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read upload")
	}
	head = head[:n]
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "upload is empty")
	}

	detected := mimetype.Detect(head)
	if kind == models.ItemKindImage && !strings.HasPrefix(detected.String(), "image/") {
		return "", appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("expected an image, got %s", detected.String()))
	}

	ext := detected.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	name := path.Join(string(kind)+"s", uuid.NewString()+ext)

	limited := io.LimitReader(io.MultiReader(bytes.NewReader(head), body), s.maxFileSize+1)
	stored, written, err := s.storage.SaveStream(name, limited)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store upload")
	}
	if written > s.maxFileSize {
		s.removeBlob(stored)
		return "", appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxFileSize))
	}
	s.logger.Debug("upload stored",
		zap.String("kind", string(kind)),
		zap.String("path", stored),
		zap.String("mime", detected.String()),
		zap.Int64("bytes", written),
	)
	return stored, nil
}

func (s *ItemService) removeBlob(stored string) {
	if stored == "" || s.storage == nil {
		return
	}
	if s.janitor != nil {
		s.janitor.Remove(stored)
		return
	}
	if err := s.storage.Delete(stored); err != nil {
		s.logger.Warn("failed to remove stored media", zap.String("path", stored), zap.Error(err))
	}
}

// invalidateOutlines drops every cached outline since an item can appear in many courses.
func (s *ItemService) invalidateOutlines(ctx context.Context) {
	s.cache.EvictAll(ctx)
}
