package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

const (
	outlineCachePrefix = "course:outline:"
	defaultOutlineTTL  = 10 * time.Minute
)

// CacheRepository abstracts the key/value store behind the outline cache.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// OutlineCache keeps assembled course outlines keyed by course id.
// A nil or disabled cache misses on every load and ignores writes.
type OutlineCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewOutlineCache constructs the cache. A non-positive ttl falls back to ten minutes.
func NewOutlineCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *OutlineCache {
	if ttl <= 0 {
		ttl = defaultOutlineTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutlineCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// OutlineCacheKey returns the cache key of a course outline.
func OutlineCacheKey(courseID string) string {
	return outlineCachePrefix + courseID
}

// Enabled indicates whether outlines are cached.
func (c *OutlineCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Load fills dest with the cached outline of courseID and reports a hit.
// Backend failures count as misses and are logged.
func (c *OutlineCache) Load(ctx context.Context, courseID string, dest *models.CourseOutline) bool {
	if !c.Enabled() {
		return false
	}
	start := time.Now()
	err := c.repo.Get(ctx, OutlineCacheKey(courseID), dest)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("outline cache load failed", zap.String("course_id", courseID), zap.Error(err))
	}
	return err == nil
}

// Store caches outline under its course id.
func (c *OutlineCache) Store(ctx context.Context, outline *models.CourseOutline) {
	if !c.Enabled() || outline == nil {
		return
	}
	start := time.Now()
	err := c.repo.Set(ctx, OutlineCacheKey(outline.Course.ID), outline, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("outline cache store failed", zap.String("course_id", outline.Course.ID), zap.Error(err))
	}
}

// Evict drops the cached outlines of the given courses.
func (c *OutlineCache) Evict(ctx context.Context, courseIDs ...string) {
	if !c.Enabled() || len(courseIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		keys = append(keys, OutlineCacheKey(id))
	}
	if err := c.repo.Delete(ctx, keys...); err != nil {
		c.logger.Warn("outline cache evict failed", zap.Strings("course_ids", courseIDs), zap.Error(err))
	}
}

// EvictAll drops every cached outline. Used when an item that may appear in
// several courses changes.
func (c *OutlineCache) EvictAll(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.repo.DeleteByPattern(ctx, outlineCachePrefix+"*"); err != nil {
		c.logger.Warn("outline cache flush failed", zap.Error(err))
	}
}
