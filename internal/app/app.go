// Package app assembles the registry services for the configured backend.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/assignees"
	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/config"
	"carbon-scribe/verification-registry/internal/notifications"
	"carbon-scribe/verification-registry/internal/notifications/websocket"
	"carbon-scribe/verification-registry/internal/platform/database"
	"carbon-scribe/verification-registry/internal/projects"
	"carbon-scribe/verification-registry/internal/reports"
	"carbon-scribe/verification-registry/internal/workflow"
	"carbon-scribe/verification-registry/internal/workflow/metrics"
)

// App holds the wired services shared by the server and the workers.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	Store     workflow.Store
	Engine    *workflow.Engine
	Directory *assignees.Directory
	Feed      *websocket.Manager
	Reports   *reports.Service
	Tokens    *auth.TokenService

	closers []func(context.Context) error
}

// New opens the storage backend named by cfg.Store.Backend and builds the
// workflow engine on top of it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tokens, err := auth.NewTokenService(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL.Std())
	if err != nil {
		return nil, err
	}
	a.Tokens = tokens

	assigneeRepo, err := a.openStores(ctx)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}

	a.Directory = assignees.NewDirectory(assigneeRepo, logger)
	a.Feed = websocket.NewManager(logger)
	a.closers = append(a.closers, func(context.Context) error {
		a.Feed.Close()
		return nil
	})

	a.Engine = workflow.NewEngine(a.Store, a.Directory, logger,
		workflow.WithMetrics(metrics.New(a.Registry)),
		workflow.WithOverviewCache(workflow.NewOverviewCache(cfg.Workflow.OverviewCacheTTL.Std())),
		workflow.WithPublisher(notifications.NewStageFeed(a.Feed, logger)),
	)
	a.Reports = reports.NewService(a.Engine, logger)

	logger.Info("Registry services ready", zap.String("backend", cfg.Store.Backend))
	return a, nil
}

func (a *App) openStores(ctx context.Context) (assignees.Repository, error) {
	cfg := a.Config
	switch cfg.Store.Backend {
	case config.BackendMemory:
		a.Store = workflow.NewMemoryStore(projects.NewMemoryRepository())
		return assignees.NewMemoryRepository(), nil

	case config.BackendPostgres:
		gdb, err := database.OpenGorm(cfg.Database, a.Logger)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			a.closers = append(a.closers, func(context.Context) error { return sqlDB.Close() })
		}
		store := workflow.NewGormStore(gdb)
		if err := store.Migrate(); err != nil {
			return nil, err
		}
		a.Store = store

		sdb, err := database.OpenSQLX(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return sdb.Close() })
		repo := assignees.NewPostgresRepository(sdb)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendMongo:
		client, err := database.ConnectMongo(ctx, cfg.Mongo, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		store := workflow.NewMongoStore(client, cfg.Mongo.DBName, cfg.Workflow.MaxCommitRetries, a.Logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		a.Store = store
		// The assignee directory is relational; without postgres it lives in memory.
		return assignees.NewMemoryRepository(), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// NewScheduler builds the reconciliation scheduler from the workflow settings.
func (a *App) NewScheduler() (*workflow.Scheduler, error) {
	return workflow.NewScheduler(a.Engine, a.Config.Workflow.ReconcileSchedule, a.Config.Workflow.ReconcileTimeout.Std(), a.Logger)
}

// Close releases connections in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
