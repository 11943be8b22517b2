// Package app wires configuration into a running engine: stores, audit
// backend, object storage, feed source and services. The server and the
// maintenance CLI share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	mongodrv "go.mongodb.org/mongo-driver/mongo"

	"rutinasds/routines-app/internal/api"
	"rutinasds/routines-app/internal/config"
	"rutinasds/routines-app/internal/feed"
	"rutinasds/routines-app/internal/metrics"
	"rutinasds/routines-app/internal/repository"
	"rutinasds/routines-app/internal/repository/memory"
	"rutinasds/routines-app/internal/repository/mongo"
	"rutinasds/routines-app/internal/repository/sqlstore"
	"rutinasds/routines-app/internal/service"
	"rutinasds/routines-app/internal/storage"
)

// App holds the wired engine. Close releases every connection it opened.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    *sqlstore.Store
	Audit    repository.AuditRepository
	Objects  storage.ObjectStorage // nil when no bucket is configured
	Feed     feed.Source
	Metrics  *metrics.Metrics
	Services api.Services

	mongoClient *mongodrv.Client
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore connects to the relational database and applies the schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (*sqlstore.Store, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return sqlstore.Open(ctx, dialect, cfg.DSN, sqlstore.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

// New opens everything cfg points at and builds the services. On error,
// whatever was already opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Store, err = OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database ready", "driver", a.Store.Dialect())

	switch cfg.Audit.Backend {
	case "mongo":
		a.mongoClient, err = mongo.ConnectDB(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		db := a.mongoClient.Database(cfg.Mongo.Database)
		if err := mongo.EnsureAuditIndexes(ctx, db); err != nil {
			logger.Warn("audit indexes not created", "error", err)
		}
		a.Audit = mongo.NewMongoAuditRepository(db)
		logger.Info("audit log on mongo", "database", cfg.Mongo.Database)
	default:
		a.Audit = memory.NewAuditRepository()
		logger.Warn("audit log kept in memory; entries are lost on restart")
	}

	if cfg.S3.Enabled() {
		a.Objects, err = storage.NewS3Storage(ctx, cfg.S3, logger)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
	}

	switch cfg.Feed.Source {
	case "s3":
		if a.Objects == nil {
			return nil, fmt.Errorf("feed source s3 needs s3.bucket_name")
		}
		a.Feed = feed.ObjectSource{Store: a.Objects, Prefix: cfg.Feed.Prefix}
	default:
		if cfg.Feed.Path != "" {
			a.Feed = feed.DirSource{Dir: cfg.Feed.Path}
		}
	}

	a.Services = a.buildServices()
	return a, nil
}

func (a *App) buildServices() api.Services {
	deps := service.Deps{Audit: a.Audit, Metrics: a.Metrics, Logger: a.Logger}
	secret := a.Config.JWT.Secret
	if secret == "" {
		// Maintenance commands never issue tokens.
		secret = "unset"
	}
	return api.Services{
		Identity:     service.NewIdentityService(a.Store, secret, a.Config.JWT.Expiration, deps),
		Sync:         service.NewSyncService(a.Store, a.Objects, deps),
		Catalog:      service.NewCatalogService(a.Store, deps),
		Assignments:  service.NewAssignmentService(a.Store, deps),
		Plans:        service.NewPlanService(a.Store, deps),
		Executions:   service.NewExecutionService(a.Store, deps),
		Measurements: service.NewMeasurementService(a.Store, deps),
		Audit:        service.NewAuditService(deps),
		FeedSource:   a.Feed,
		Metrics:      a.Metrics,
		Ready:        a.ready,
	}
}

// ready reports whether the database, and mongo when it backs the audit log,
// answer.
func (a *App) ready(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return err
	}
	if a.mongoClient != nil {
		return mongo.Ping(ctx, a.mongoClient)
	}
	return nil
}

// Close disconnects mongo and closes the database pool.
func (a *App) Close() {
	if a.mongoClient != nil {
		if err := mongo.DisconnectDB(a.mongoClient); err != nil {
			a.Logger.Error("disconnect mongo", "error", err)
		}
		a.mongoClient = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("close database", "error", err)
		}
		a.Store = nil
	}
}
