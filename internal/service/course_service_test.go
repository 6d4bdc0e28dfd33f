package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/models"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

type courseFixture struct {
	courses  *CourseService
	modules  *ModuleService
	contents *ContentService
	items    *ItemService
	itemRepo *memItemRepo
	cache    *memCacheRepo
}

func newCourseFixture(t *testing.T) *courseFixture {
	t.Helper()
	subjects := newMemSubjectRepo(models.Subject{ID: "s1", Title: "Programming", Slug: "programming"})
	courseRepo := newMemCourseRepo()
	moduleRepo := newMemModuleRepo()
	contentRepo := newMemContentRepo()
	itemRepo := newMemItemRepo()
	cacheRepo := &memCacheRepo{}
	metrics := NewMetricsService()
	cacheSvc := NewOutlineCache(cacheRepo, metrics, time.Minute, zap.NewNop(), true)

	items := NewItemService(itemRepo, ItemServiceConfig{Contents: contentRepo, Cache: cacheSvc, Storage: &memBlobStore{dir: t.TempDir()}}, nil, zap.NewNop())
	courses := NewCourseService(courseRepo, subjects, CourseServiceConfig{
		Modules:  moduleRepo,
		Contents: contentRepo,
		Items:    itemRepo,
		Cache:    cacheSvc,
		Metrics:  metrics,
	}, nil, zap.NewNop())

	return &courseFixture{
		courses:  courses,
		modules:  NewModuleService(moduleRepo, courseRepo, courses, nil, zap.NewNop()),
		contents: NewContentService(contentRepo, moduleRepo, items, courses, nil, zap.NewNop()),
		items:    items,
		itemRepo: itemRepo,
		cache:    cacheRepo,
	}
}

func TestCourseServiceCreateDerivesSlug(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	course, err := f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: "Concurrency in Go"})
	require.NoError(t, err)
	assert.Equal(t, "concurrency-in-go", course.Slug)
	assert.False(t, course.CreatedAt.IsZero())

	_, err = f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u2", SubjectID: "s1", Title: "Concurrency in Go!"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "nope", Title: "Orphan"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: "Bad", Slug: "Not A Slug"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	found, err := f.courses.GetBySlug(ctx, "concurrency-in-go")
	require.NoError(t, err)
	assert.Equal(t, course.ID, found.ID)
}

func TestCourseServiceUpdateKeepsCreatedAt(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	course, err := f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: "Draft"})
	require.NoError(t, err)

	updated, err := f.courses.Update(ctx, course.ID, UpdateCourseRequest{SubjectID: "s1", Title: "Published", Overview: "all about it"})
	require.NoError(t, err)
	assert.Equal(t, "published", updated.Slug)
	assert.Equal(t, course.CreatedAt, updated.CreatedAt)
	assert.Equal(t, "u1", updated.OwnerID)

	_, err = f.courses.Update(ctx, "missing", UpdateCourseRequest{SubjectID: "s1", Title: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCourseServiceListNewestFirst(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()
	for _, title := range []string{"One", "Two", "Three"} {
		_, err := f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: title})
		require.NoError(t, err)
	}

	courses, page, err := f.courses.List(ctx, models.CourseFilter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, "Three", courses[0].Title)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)
}

func TestCourseServiceOutline(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	course, err := f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: "Go"})
	require.NoError(t, err)
	intro, err := f.modules.Create(ctx, CreateModuleRequest{CourseID: course.ID, Title: "Intro"})
	require.NoError(t, err)
	deep, err := f.modules.Create(ctx, CreateModuleRequest{CourseID: course.ID, Title: "Deep dive"})
	require.NoError(t, err)

	text, err := f.items.CreateText(ctx, CreateTextRequest{OwnerID: "u1", Title: "Welcome", Content: "hi"})
	require.NoError(t, err)
	video, err := f.items.CreateVideo(ctx, CreateVideoRequest{OwnerID: "u1", Title: "Tour", URL: "https://videos.example.com/tour"})
	require.NoError(t, err)

	_, err = f.contents.Create(ctx, CreateContentRequest{ModuleID: intro.ID, ItemKind: "video", ItemID: video.ID})
	require.NoError(t, err)
	_, err = f.contents.Create(ctx, CreateContentRequest{ModuleID: intro.ID, ItemKind: "text", ItemID: text.ID})
	require.NoError(t, err)
	_, err = f.contents.Create(ctx, CreateContentRequest{ModuleID: deep.ID, ItemKind: "text", ItemID: text.ID})
	require.NoError(t, err)

	outline, err := f.courses.Outline(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, outline.Modules, 2)
	assert.Equal(t, "Intro", outline.Modules[0].Module.Title)
	require.Len(t, outline.Modules[0].Contents, 2)
	assert.Equal(t, models.ItemKindVideo, outline.Modules[0].Contents[0].Item.Kind)
	assert.Equal(t, "https://videos.example.com/tour", outline.Modules[0].Contents[0].Item.Video.URL)
	assert.Equal(t, 1, outline.Modules[0].Contents[1].Order)
	assert.Equal(t, "hi", outline.Modules[1].Contents[0].Item.Text.Body)
	assert.Equal(t, 2, f.itemRepo.findMany, "one batch per item kind")

	cached, err := f.courses.Outline(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, f.itemRepo.findMany, "second call is served from cache")
	assert.Equal(t, outline.Modules[0].Contents[0].Item.Item().Base().Title, cached.Modules[0].Contents[0].Item.Item().Base().Title)
}

func TestCourseServiceOutlineInvalidatedByMutations(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	course, err := f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: "Go"})
	require.NoError(t, err)
	_, err = f.courses.Outline(ctx, course.ID)
	require.NoError(t, err)
	assert.Contains(t, f.cache.store, OutlineCacheKey(course.ID))

	_, err = f.modules.Create(ctx, CreateModuleRequest{CourseID: course.ID, Title: "New"})
	require.NoError(t, err)
	assert.NotContains(t, f.cache.store, OutlineCacheKey(course.ID))

	outline, err := f.courses.Outline(ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, outline.Modules, 1)
}

func TestCourseServiceOutlineMarksMissingItems(t *testing.T) {
	f := newCourseFixture(t)
	ctx := context.Background()

	course, err := f.courses.Create(ctx, CreateCourseRequest{OwnerID: "u1", SubjectID: "s1", Title: "Go"})
	require.NoError(t, err)
	module, err := f.modules.Create(ctx, CreateModuleRequest{CourseID: course.ID, Title: "Intro"})
	require.NoError(t, err)
	text, err := f.items.CreateText(ctx, CreateTextRequest{OwnerID: "u1", Title: "Gone soon", Content: "x"})
	require.NoError(t, err)
	_, err = f.contents.Create(ctx, CreateContentRequest{ModuleID: module.ID, ItemKind: "text", ItemID: text.ID})
	require.NoError(t, err)

	require.NoError(t, f.items.Delete(ctx, models.RefOf(text), false))

	outline, err := f.courses.Outline(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, outline.Modules[0].Contents, 1)
	assert.True(t, outline.Modules[0].Contents[0].Missing)
	assert.Nil(t, outline.Modules[0].Contents[0].Item.Item())
}

func TestCourseServiceOutlineUnknownCourse(t *testing.T) {
	f := newCourseFixture(t)
	_, err := f.courses.Outline(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
