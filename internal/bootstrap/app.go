// Package bootstrap wires configuration, backends, storage, and the job
// orchestrator into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dp-pcs/ttv-pipeline/internal/assemble"
	"github.com/dp-pcs/ttv-pipeline/internal/backend"
	"github.com/dp-pcs/ttv-pipeline/internal/backend/runway"
	"github.com/dp-pcs/ttv-pipeline/internal/backend/veo"
	"github.com/dp-pcs/ttv-pipeline/internal/backend/wan"
	"github.com/dp-pcs/ttv-pipeline/internal/config"
	"github.com/dp-pcs/ttv-pipeline/internal/diagnostics"
	"github.com/dp-pcs/ttv-pipeline/internal/domain"
	"github.com/dp-pcs/ttv-pipeline/internal/jobs"
	"github.com/dp-pcs/ttv-pipeline/internal/keyframe"
	"github.com/dp-pcs/ttv-pipeline/internal/planner"
	"github.com/dp-pcs/ttv-pipeline/internal/retry"
	"github.com/dp-pcs/ttv-pipeline/internal/storage"
)

// App wires configuration, backends, and the orchestrator.
type App struct {
	Config       config.Config
	Registry     *backend.Registry
	Orchestrator *jobs.Orchestrator
	Events       *jobs.EventBus
	Diagnostics  domain.DiagnosticReport
}

// New builds the application from a configuration file path. Environment
// variables overlay file values before validation.
func New(configPath string) (*App, error) {
	store := config.NewYAMLStore(configPath)
	cfg, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig builds the application from an already-validated config.
func NewWithConfig(cfg config.Config) (*App, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	artifactStore, err := buildStorage(cfg)
	if err != nil {
		return nil, err
	}

	jobStore, err := buildJobStore(cfg)
	if err != nil {
		return nil, err
	}

	enhancer := planner.NewOpenAIEnhancer(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	events := jobs.NewEventBus(500)

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}

	// Image-only backends need a keyframe generator; without an OpenAI key
	// their submissions are rejected at enqueue time.
	var keyframer jobs.Keyframer
	if cfg.OpenAI.APIKey != "" {
		keyframer = keyframe.NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.ImageModel)
	}

	orchestrator := jobs.NewOrchestrator(jobs.Options{
		Store:      jobStore,
		Registry:   registry,
		Planner:    planner.New(enhancer, cfg.SegmentDurationSeconds),
		Assembler:  assemble.New(),
		Storage:    artifactStore,
		Events:     events,
		Retrier:    retry.New(policy),
		Keyframer:  keyframer,
		Frames:     keyframe.NewExtractor(),
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		Workspace:  cfg.Workspace,
		Resolution: cfg.DefaultResolution,
	})

	checker := diagnostics.NewChecker()
	report := checker.Run(context.Background(), cfg.Workspace, registry)
	for _, item := range report.Items {
		switch item.Status {
		case domain.DiagnosticStatusFail:
			log.Printf("diagnostics: FAIL %s: %s", item.Name, item.Message)
		case domain.DiagnosticStatusWarn:
			log.Printf("diagnostics: warn %s: %s", item.Name, item.Message)
		}
	}

	return &App{
		Config:       cfg,
		Registry:     registry,
		Orchestrator: orchestrator,
		Events:       events,
		Diagnostics:  report,
	}, nil
}

// Run starts the worker pool and blocks until an interrupt or termination
// signal arrives, then waits for in-flight segments to settle.
func (a *App) Run() error {
	if a.Diagnostics.HasFailures {
		return fmt.Errorf("startup diagnostics failed; see log for details")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Orchestrator.Start(ctx)
	log.Printf("orchestrator started: %d workers, backends %v", a.Config.Workers, a.Registry.Names())

	<-ctx.Done()
	log.Printf("shutdown signal received, draining workers")
	a.Orchestrator.Wait()
	return nil
}

// buildRegistry registers every backend with configuration present. The
// default backend must end up registered.
func buildRegistry(cfg config.Config) (*backend.Registry, error) {
	registry := backend.NewRegistry()
	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	budget := time.Duration(cfg.TimeoutSeconds) * time.Second

	if cfg.Veo.APIKey != "" {
		if err := registry.Register(veo.New(cfg.Veo.APIKey, cfg.Veo.Model, pollInterval, budget)); err != nil {
			return nil, err
		}
	}
	if cfg.Runway.APISecret != "" {
		if err := registry.Register(runway.New(cfg.Runway.APISecret, cfg.Runway.Model, pollInterval, budget)); err != nil {
			return nil, err
		}
	}
	if cfg.Wan.ScriptPath != "" {
		if err := registry.Register(wan.New(cfg.Wan.PythonPath, cfg.Wan.ScriptPath, cfg.Wan.ModelDir, cfg.Wan.Size)); err != nil {
			return nil, err
		}
	}

	if len(registry.Names()) == 0 {
		return nil, backend.ConfigError("no backend configured: set a veo, runway, or wan section")
	}
	if _, err := registry.Resolve(cfg.DefaultBackend); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildStorage selects the artifact store from configuration.
func buildStorage(cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Kind {
	case "s3":
		return storage.NewS3Store(context.Background(), cfg.Storage.Bucket, cfg.Storage.Prefix)
	default:
		root := cfg.Storage.Root
		if root == "" {
			root = filepath.Join(cfg.Workspace, "artifacts")
		}
		return storage.NewLocalStore(root)
	}
}

// buildJobStore selects the job store: Redis when an address is configured,
// process memory otherwise.
func buildJobStore(cfg config.Config) (jobs.Store, error) {
	if cfg.Redis.Addr == "" {
		return jobs.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return jobs.NewRedisStore(client, cfg.Redis.Prefix), nil
}
