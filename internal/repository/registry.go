// Package repository creates the catalog's entity repositories and cache
// managers once at process start and exposes the operations that span all
// of them.
package repository

import (
	"context"
	"errors"
	"fmt"

	"catalog-backend/internal/config"
	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/filecache"
	"catalog-backend/internal/infrastructure/observability"
	"catalog-backend/internal/infrastructure/persistence/jsonfile"
	"catalog-backend/internal/infrastructure/storage"

	"go.uber.org/zap"
)

// Record is one JSON object as stored in an entity file.
type Record = map[string]any

// Entity file names.
const (
	ProductsFile    = "products.json"
	CategoriesFile  = "categories.json"
	InquiriesFile   = "inquiries.json"
	AnalyticsFile   = "analytics.json"
	AdminConfigFile = "admin-config.json"
)

// Entity is the part of a repository the registry manages uniformly.
type Entity interface {
	FileName() string
	FilePath() string
	Initialize(ctx context.Context) error
	ClearCache()
	CacheStats() jsonfile.CacheStats
	Stats(ctx context.Context, useCache bool) (jsonfile.FileStats, error)
	Validate(ctx context.Context) jsonfile.ValidationReport
	Wait()
}

// Registry holds one repository per entity plus the cache managers.
type Registry struct {
	Products    *jsonfile.Repository[[]Record]
	Categories  *jsonfile.Repository[[]Record]
	Inquiries   *jsonfile.Repository[[]Record]
	Analytics   *jsonfile.Repository[Record]
	AdminConfig *jsonfile.Repository[Record]

	ProductCache *filecache.ProductCache
	Files        *filecache.SmartFileCache

	entities []Entity
	useCache bool
	watch    bool
	logger   *zap.Logger
}

// Deps are the shared collaborators of the registry.
type Deps struct {
	FileSystem storage.FileSystem
	Logger     *zap.Logger
	Metrics    *observability.Collector
}

// DefaultAnalytics is the analytics document served before anything has been
// recorded.
func DefaultAnalytics() Record {
	return Record{
		"pageViews":    float64(0),
		"productViews": Record{},
		"inquiries":    float64(0),
	}
}

// New builds the registry from configuration.
func New(cfg *config.Config, deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.FileSystem == nil {
		deps.FileSystem = storage.NewOSFileSystem()
	}

	repoOpts := jsonfile.Options{
		FileSystem:       deps.FileSystem,
		DefaultTTL:       cfg.Cache.DefaultTTL,
		CategoryTTLs:     cfg.Cache.CategoryTTLs,
		BackupsEnabled:   cfg.Storage.EnableBackups,
		BackupDir:        cfg.Storage.BackupDir,
		MaxBackups:       cfg.Storage.MaxBackups,
		SizeWarningBytes: cfg.Storage.SizeWarningBytes,
		Logger:           deps.Logger,
		Metrics:          deps.Metrics,
	}
	dir := cfg.Storage.DataDir

	r := &Registry{
		Products: jsonfile.NewRepository(jsonfile.RepositoryConfig[[]Record]{
			FileName: ProductsFile, DataDir: dir, DefaultValue: []Record{},
		}, repoOpts),
		Categories: jsonfile.NewRepository(jsonfile.RepositoryConfig[[]Record]{
			FileName: CategoriesFile, DataDir: dir, DefaultValue: []Record{},
		}, repoOpts),
		Inquiries: jsonfile.NewRepository(jsonfile.RepositoryConfig[[]Record]{
			FileName: InquiriesFile, DataDir: dir, DefaultValue: []Record{},
		}, repoOpts),
		Analytics: jsonfile.NewRepository(jsonfile.RepositoryConfig[Record]{
			FileName: AnalyticsFile, DataDir: dir, DefaultValue: DefaultAnalytics(),
		}, repoOpts),
		AdminConfig: jsonfile.NewRepository(jsonfile.RepositoryConfig[Record]{
			FileName: AdminConfigFile, DataDir: dir, DefaultValue: Record{},
		}, repoOpts),
		useCache: cfg.Cache.Enabled,
		watch:    cfg.Cache.WatchFiles && cfg.Cache.Enabled,
		logger:   deps.Logger.Named("registry"),
	}
	r.entities = []Entity{r.Products, r.Categories, r.Inquiries, r.Analytics, r.AdminConfig}

	breaker := filecache.BreakerConfig{
		MaxRequests:      cfg.Breaker.MaxRequests,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		MinRequests:      cfg.Breaker.MinRequests,
	}
	managerOpts := func(name string) filecache.Options {
		b := breaker
		b.Name = name
		return filecache.Options{
			Name:          name,
			FileSystem:    deps.FileSystem,
			MaxEntries:    cfg.Cache.MaxEntries,
			DefaultTTL:    cfg.Cache.DefaultTTL,
			CategoryTTLs:  cfg.Cache.CategoryTTLs,
			SweepInterval: cfg.Cache.SweepInterval,
			Breaker:       b,
			Disabled:      !cfg.Cache.Enabled,
			Logger:        deps.Logger,
			Metrics:       deps.Metrics,
		}
	}
	r.ProductCache = filecache.NewProductCache(r.Products, managerOpts("products"))
	r.Files = filecache.NewSmartFileCache(managerOpts("files"))

	return r
}

// Entities returns every entity repository.
func (r *Registry) Entities() []Entity {
	return r.entities
}

// InitializeAll creates every missing entity file from its default value.
func (r *Registry) InitializeAll(ctx context.Context) error {
	var errs []error
	for _, e := range r.entities {
		if err := e.Initialize(ctx); err != nil {
			r.logger.Error("Failed to initialize entity file",
				zap.String("file", e.FileName()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", e.FileName(), err))
		}
	}
	return errors.Join(errs...)
}

// ClearCaches drops every cached entity and view.
func (r *Registry) ClearCaches() {
	for _, e := range r.entities {
		e.ClearCache()
	}
	r.ProductCache.Clear()
	r.Files.Clear()
	r.logger.Info("All caches cleared")
}

// CacheReport is the cache state of the whole registry.
type CacheReport struct {
	Enabled  bool                           `json:"enabled"`
	Entities map[string]jsonfile.CacheStats `json:"entities"`
	Managers []filecache.ManagerStats       `json:"managers"`
}

// CacheStats reports every cache slot and manager.
func (r *Registry) CacheStats() CacheReport {
	report := CacheReport{
		Enabled:  r.useCache,
		Entities: make(map[string]jsonfile.CacheStats, len(r.entities)),
		Managers: []filecache.ManagerStats{r.ProductCache.Stats(), r.Files.Stats()},
	}
	for _, e := range r.entities {
		report.Entities[e.FileName()] = e.CacheStats()
	}
	return report
}

// StorageStats reports file statistics for every entity. Entity files are
// read through their cache slots only when caching is enabled. An entity that
// fails to load is reported in the returned error and left out of the map.
func (r *Registry) StorageStats(ctx context.Context) (map[string]jsonfile.FileStats, error) {
	stats := make(map[string]jsonfile.FileStats, len(r.entities))
	var errs []error
	for _, e := range r.entities {
		s, err := e.Stats(ctx, r.useCache)
		if err != nil {
			errs = append(errs, apperrors.Wrap(err, e.FileName()))
			continue
		}
		stats[e.FileName()] = s
	}
	return stats, errors.Join(errs...)
}

// Validate checks every entity file.
func (r *Registry) Validate(ctx context.Context) map[string]jsonfile.ValidationReport {
	reports := make(map[string]jsonfile.ValidationReport, len(r.entities))
	for _, e := range r.entities {
		reports[e.FileName()] = e.Validate(ctx)
	}
	return reports
}

// Start launches the managers' background sweeps and, when configured, the
// file watcher.
func (r *Registry) Start(ctx context.Context) error {
	r.ProductCache.Start(ctx)
	r.Files.Start(ctx)

	if !r.watch {
		return nil
	}
	paths := make([]string, 0, len(r.entities))
	for _, e := range r.entities {
		paths = append(paths, e.FilePath())
	}
	if err := r.Files.Watch(paths...); err != nil {
		return fmt.Errorf("failed to watch entity files: %w", err)
	}
	r.logger.Info("Watching entity files", zap.Int("count", len(paths)))
	return nil
}

// Close stops background work and waits for pending backup pruning.
func (r *Registry) Close() error {
	err := errors.Join(r.ProductCache.Close(), r.Files.Close())
	for _, e := range r.entities {
		e.Wait()
	}
	return err
}
