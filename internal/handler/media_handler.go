package handler

import (
	"context"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	"github.com/noah-isme/course-cms-api/pkg/response"
)

type mediaOpener interface {
	OpenSigned(ctx context.Context, token string) (io.ReadCloser, models.Item, error)
}

// MediaHandler serves stored files and images behind signed tokens.
type MediaHandler struct {
	items  mediaOpener
	logger *zap.Logger
}

// NewMediaHandler constructs a media handler.
func NewMediaHandler(items mediaOpener, logger *zap.Logger) *MediaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaHandler{items: items, logger: logger}
}

// Download streams the blob granted by the token path parameter.
func (h *MediaHandler) Download(c *gin.Context) {
	body, item, err := h.items.OpenSigned(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer body.Close() //nolint:errcheck

	stored, _ := models.StoredPath(item)
	c.Header("Cache-Control", "private, max-age=60")
	c.Header("Content-Disposition", `inline; filename="`+path.Base(stored)+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		h.logger.Warn("media stream interrupted", zap.String("item_id", item.Base().ID), zap.Error(err))
	}
}
