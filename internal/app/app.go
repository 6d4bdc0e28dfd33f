// Package app assembles repositories, services and the ops router from configuration.
package app

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/course-cms-api/internal/handler"
	"github.com/noah-isme/course-cms-api/internal/middleware"
	"github.com/noah-isme/course-cms-api/internal/ordering"
	"github.com/noah-isme/course-cms-api/internal/repository"
	"github.com/noah-isme/course-cms-api/internal/service"
	"github.com/noah-isme/course-cms-api/pkg/config"
	"github.com/noah-isme/course-cms-api/pkg/jobs"
	"github.com/noah-isme/course-cms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-cms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-cms-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-cms-api/pkg/storage"
)

// Services exposes the domain services built for one process.
type Services struct {
	Subjects *service.SubjectService
	Courses  *service.CourseService
	Modules  *service.ModuleService
	Contents *service.ContentService
	Items    *service.ItemService
	Cache    *service.OutlineCache
	Metrics  *service.MetricsService
	Janitor  *service.MediaJanitor
}

// NewServices wires repositories and services. redisClient may be nil, which disables the outline cache.
func NewServices(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*Services, error) {
	if logr == nil {
		logr = zap.NewNop()
	}
	validate := validator.New()
	metrics := service.NewMetricsService()

	orderOpts := []ordering.Option{
		ordering.WithStrictScope(cfg.Ordering.StrictScope),
		ordering.WithLogger(logr.Named("ordering")),
		ordering.WithObserver(metrics),
	}
	subjectRepo := repository.NewSubjectRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db, repository.ModuleOrdering(orderOpts...))
	contentRepo := repository.NewContentRepository(db, repository.ContentOrdering(orderOpts...))
	itemRepo := repository.NewItemRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewOutlineCache(cacheRepo, metrics, cfg.Outline.CacheTTL, logr, cfg.Outline.CacheEnabled && redisClient != nil)

	media, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init media storage: %w", err)
	}
	janitor := service.NewMediaJanitor(media, metrics, jobs.QueueConfig{
		Workers:    cfg.Media.CleanupWorkers,
		MaxRetries: 3,
		Logger:     logr.Named("media"),
	})

	itemCfg := service.ItemServiceConfig{
		Storage:     media,
		Contents:    contentRepo,
		Cache:       cacheSvc,
		Janitor:     janitor,
		MaxFileSize: cfg.Media.MaxFileSizeBytes,
	}
	if cfg.Media.SignedURLSecret != "" {
		itemCfg.Signer = storage.NewSignedURLSigner(cfg.Media.SignedURLSecret, cfg.Media.SignedURLTTL)
	} else {
		logr.Warn("media signed url secret not set; signed downloads disabled")
	}
	items := service.NewItemService(itemRepo, itemCfg, validate, logr)

	courses := service.NewCourseService(courseRepo, subjectRepo, service.CourseServiceConfig{
		Modules:  moduleRepo,
		Contents: contentRepo,
		Items:    itemRepo,
		Cache:    cacheSvc,
		Metrics:  metrics,
	}, validate, logr)

	return &Services{
		Subjects: service.NewSubjectService(subjectRepo, validate, logr),
		Courses:  courses,
		Modules:  service.NewModuleService(moduleRepo, courseRepo, courses, validate, logr),
		Contents: service.NewContentService(contentRepo, moduleRepo, items, courses, validate, logr),
		Items:    items,
		Cache:    cacheSvc,
		Metrics:  metrics,
		Janitor:  janitor,
	}, nil
}

// NewRouter builds the ops router: health, readiness, metrics and signed media downloads.
func NewRouter(cfg *config.Config, svcs *Services, db handler.Pinger, logr *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svcs.Metrics))

	ops := handler.NewMetricsHandler(svcs.Metrics, db)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	r.GET("/metrics/summary", ops.Summary)

	media := handler.NewMediaHandler(svcs.Items, logr)
	r.GET("/media/:token", media.Download)

	return r
}
