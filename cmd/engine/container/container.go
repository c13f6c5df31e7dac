// Package container wires the engine's repositories, stores, processors and
// services once at startup. Handlers receive the container and pick what
// they need; nothing is constructed per-request.
package container

import (
	"fmt"

	"github.com/framefold/canvas/cmd/engine/processors"
	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/cmd/engine/scheduler"
	"github.com/framefold/canvas/cmd/engine/service"
	"github.com/framefold/canvas/common/bootstrap"
	"github.com/framefold/canvas/common/ratelimit"
	"github.com/framefold/canvas/common/repository"
	"github.com/framefold/canvas/common/session"
	"github.com/framefold/canvas/common/storage"
	"github.com/framefold/canvas/common/templates"
	"github.com/framefold/canvas/common/validation"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	CanvasRepo *repository.CanvasRepository
	NodeRepo   *repository.NodeRepository
	TaskRepo   *repository.TaskRepository
	BatchRepo  *repository.BatchRepository

	// Shared infrastructure
	Catalog      *templates.Catalog
	BlobStore    storage.Store
	SessionStore *session.Store
	RateLimiter  *ratelimit.RateLimiter // nil when rate limiting is disabled

	// Execution pipeline
	Resolver  *resolver.Resolver
	Registry  *processors.Registry
	Scheduler *scheduler.Scheduler

	// Services
	CanvasService *service.CanvasService
	RunService    *service.RunService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.DB == nil {
		return nil, fmt.Errorf("engine container requires a database connection")
	}
	if components.Redis == nil {
		return nil, fmt.Errorf("engine container requires a redis connection")
	}

	cfg := components.Config
	log := components.Logger

	// Repositories
	canvasRepo := repository.NewCanvasRepository(components.DB)
	nodeRepo := repository.NewNodeRepository(components.DB)
	taskRepo := repository.NewTaskRepository(components.DB)
	batchRepo := repository.NewBatchRepository(components.DB)

	// Static node-template catalog (embedded YAML)
	catalog, err := templates.NewCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load template catalog: %w", err)
	}

	// Blob storage: Redis-backed, with a read-through cache in front when
	// the cache component is enabled (repeated in-batch media loads)
	var blobStore storage.Store = storage.NewRedisStore(components.Redis, cfg.Storage.TempTTL, log)
	if components.Cache != nil {
		blobStore = storage.NewCachedStore(blobStore, components.Cache, cfg.Cache.DefaultTTL, log)
	}

	sessionStore := session.NewStore(components.Redis, cfg.Session.TTL, log)

	// Execution pipeline (bottom-up: resolver, processors, scheduler)
	res := resolver.New(blobStore, log)

	registry := processors.NewRegistry(log)
	registry.Register(processors.NewTextProcessor(log))
	registry.Register(processors.NewFileProcessor(log))
	registry.Register(processors.NewLLMProcessor(
		res,
		sessionStore,
		processors.OpenAIChatFactory(cfg.OpenAI.BaseURL),
		cfg.OpenAI.Model,
		cfg.OpenAI.APIKey,
		log,
	))
	registry.Register(processors.NewImageGenProcessor(
		res,
		blobStore,
		cfg.Storage.DefaultBucket,
		processors.OpenAIImageFactory(cfg.OpenAI.BaseURL),
		cfg.OpenAI.APIKey,
		log,
	))
	registry.Register(processors.NewResizeProcessor(res, log))
	registry.Register(processors.NewCropProcessor(res, log))
	registry.Register(processors.NewBlurProcessor(res, log))
	registry.Register(processors.NewCompositorProcessor(res, log))
	registry.Register(processors.NewPreviewProcessor(res, blobStore, log))
	registry.Register(processors.NewExportProcessor(res, blobStore, cfg.Storage.DefaultBucket, log))

	sched := scheduler.New(&scheduler.Opts{
		Canvases:       canvasRepo,
		Nodes:          nodeRepo,
		Tasks:          taskRepo,
		Batches:        batchRepo,
		Templates:      catalog,
		Registry:       registry,
		Events:         components.Queue,
		Logger:         log,
		MaxParallelism: cfg.Engine.MaxParallelism,
		ProcessTimeout: cfg.Engine.ProcessTimeout,
	})

	// Services
	canvasService := service.NewCanvasService(&service.CanvasServiceOpts{
		Canvases:       canvasRepo,
		PatchValidator: validation.NewPatchValidator(),
		GraphValidator: validation.NewGraphValidator(catalog),
		Logger:         log,
	})

	runOpts := &service.RunServiceOpts{
		Canvases: canvasRepo,
		Runner:   sched,
		Tasks:    taskRepo,
		Batches:  batchRepo,
		Logger:   log,
	}

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
		runOpts.Limiter = limiter
	}

	runService := service.NewRunService(runOpts)

	return &Container{
		Components:    components,
		CanvasRepo:    canvasRepo,
		NodeRepo:      nodeRepo,
		TaskRepo:      taskRepo,
		BatchRepo:     batchRepo,
		Catalog:       catalog,
		BlobStore:     blobStore,
		SessionStore:  sessionStore,
		RateLimiter:   limiter,
		Resolver:      res,
		Registry:      registry,
		Scheduler:     sched,
		CanvasService: canvasService,
		RunService:    runService,
	}, nil
}
