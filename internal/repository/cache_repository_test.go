package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var outline models.CourseOutline
	assert.ErrorIs(t, repo.Get(ctx, "course:outline:c1", &outline), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "course:outline:c1", outline, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "course:outline:c1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "course:outline:*"))
}

func TestCacheRepositoryWrapsBackendErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close() //nolint:errcheck
	repo := NewCacheRepository(client, zap.NewNop())
	ctx := context.Background()

	var outline models.CourseOutline
	err := repo.Get(ctx, "course:outline:c1", &outline)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.Contains(t, err.Error(), "redis get course:outline:c1")

	err = repo.Set(ctx, "course:outline:c1", outline, time.Minute)
	assert.ErrorContains(t, err, "redis set course:outline:c1")

	err = repo.Delete(ctx, "course:outline:c1")
	assert.ErrorContains(t, err, "redis unlink")

	err = repo.DeleteByPattern(ctx, "course:outline:*")
	assert.ErrorContains(t, err, "redis scan pattern course:outline:*")
}

func TestCacheRepositoryDeleteWithoutKeys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close() //nolint:errcheck
	repo := NewCacheRepository(client, zap.NewNop())

	assert.NoError(t, repo.Delete(context.Background()))
}
