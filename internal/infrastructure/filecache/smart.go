package filecache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/cache"
	"catalog-backend/internal/infrastructure/observability"
	"catalog-backend/internal/infrastructure/storage"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache is the store behavior the managers rely on. *cache.Store
// implements it.
type Cache interface {
	Get(key string) (any, bool)
	SetObserved(key string, value any, sourcePath string, mtime time.Time) error
	Delete(key string) bool
	DeletePrefix(prefix string) int
	Clear()
	Sweep() int
	Len() int
	Stats() cache.Stats
}

var _ Cache = (*cache.Store)(nil)

// Options configures a manager.
type Options struct {
	Name       string
	FileSystem storage.FileSystem

	// Cache replaces the manager's own store when set.
	Cache Cache

	MaxEntries    int
	DefaultTTL    time.Duration
	CategoryTTLs  map[string]time.Duration
	SweepInterval time.Duration

	// Breaker zero value means DefaultBreakerConfig(Name).
	Breaker BreakerConfig

	// Disabled serves every read directly from disk.
	Disabled bool

	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *observability.Collector
}

func (o *Options) setDefaults(name string) {
	if o.Name == "" {
		o.Name = name
	}
	if o.FileSystem == nil {
		o.FileSystem = storage.NewOSFileSystem()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.CategoryTTLs == nil {
		o.CategoryTTLs = cache.DefaultCategoryTTLs()
	}
	if o.Breaker.Name == "" {
		o.Breaker = DefaultBreakerConfig(o.Name)
	}
}

func (o *Options) newCache(metrics *observability.CacheMetrics) Cache {
	if o.Cache != nil {
		return o.Cache
	}
	var recorder cache.Recorder
	if metrics != nil {
		recorder = metrics
	}
	return cache.NewStore(cache.Options{
		Name:       o.Name,
		MaxEntries: o.MaxEntries,
		TTL:        cache.CategoryPolicy(o.DefaultTTL, o.CategoryTTLs),
		Statter:    o.FileSystem,
		Clock:      o.Clock,
		Recorder:   recorder,
		Logger:     o.Logger,
	})
}

// ManagerStats is the snapshot reported by a manager.
type ManagerStats struct {
	Name    string      `json:"name"`
	Breaker string      `json:"breaker"`
	Watched int         `json:"watched,omitempty"`
	Cache   cache.Stats `json:"cache"`
}

// SmartFileCache caches parsed JSON files keyed by their path, with TTLs
// taken from the category table. It can optionally watch the files it serves
// and drop their entries as soon as they change on disk.
type SmartFileCache struct {
	name     string
	disabled bool
	fs       storage.FileSystem
	cache    Cache
	guard    *guard
	sweeper  *cache.Sweeper
	logger   *zap.Logger

	loads singleflight.Group

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]struct{}
	dirs    map[string]struct{}
	done    chan struct{}
}

// NewSmartFileCache creates the generic file cache.
func NewSmartFileCache(opts Options) *SmartFileCache {
	opts.setDefaults("smart-file-cache")
	metrics := opts.Metrics.ForCache(opts.Name)
	logger := opts.Logger.Named("filecache").With(zap.String("cache", opts.Name))

	c := &SmartFileCache{
		name:     opts.Name,
		disabled: opts.Disabled,
		fs:       opts.FileSystem,
		cache:    opts.newCache(metrics),
		guard:    newGuard(opts.Breaker, logger, metrics),
		logger:   logger,
		watched:  make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
	}
	c.sweeper = cache.NewSweeper(opts.SweepInterval, logger, c.cache)
	return c
}

// Read returns the parsed contents of the JSON file at path. A missing file
// is a not-found error. Cache faults are logged and the file is read
// directly.
func (c *SmartFileCache) Read(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = normalize(path)

	if c.disabled {
		return c.readFile(path)
	}
	return c.guard.do(
		func() (any, error) { return c.cachedRead(path) },
		func() (any, error) { return c.readFile(path) },
	)
}

func (c *SmartFileCache) cachedRead(path string) (any, error) {
	if !c.fs.Exists(path) {
		c.cache.Delete(path)
		return nil, apperrors.NewNotFound(fmt.Sprintf("%s does not exist", filepath.Base(path)))
	}

	if value, ok := c.cache.Get(path); ok {
		return value, nil
	}

	value, err, shared := c.loads.Do(path, func() (any, error) {
		info, statErr := c.fs.Stat(path)
		value, err := c.readFile(path)
		if err != nil {
			return nil, err
		}
		if statErr == nil {
			if err := c.cache.SetObserved(path, value, path, info.ModTime); err != nil {
				c.logger.Warn("Failed to populate cache",
					zap.String("path", path),
					zap.String("category", cache.CategoryOf(path)),
					zap.Error(err),
				)
			}
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		if value, err = cache.Clone(value); err != nil {
			return nil, apperrors.NewCacheFault("failed to copy shared load", err)
		}
	}
	return value, nil
}

func (c *SmartFileCache) readFile(path string) (any, error) {
	data, err := c.fs.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFound(fmt.Sprintf("%s does not exist", filepath.Base(path)))
		}
		return nil, apperrors.NewIO(fmt.Sprintf("failed to read %s", filepath.Base(path)), err)
	}

	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, apperrors.NewParse(fmt.Sprintf("failed to parse %s", filepath.Base(path)), err)
	}
	return value, nil
}

// Invalidate drops the entry for path.
func (c *SmartFileCache) Invalidate(path string) bool {
	return c.cache.Delete(normalize(path))
}

// Clear drops every entry.
func (c *SmartFileCache) Clear() {
	c.cache.Clear()
	c.logger.Info("File cache cleared")
}

// Sweep removes expired entries now.
func (c *SmartFileCache) Sweep() int {
	return c.sweeper.SweepNow()
}

// Stats returns the counters of the underlying store.
func (c *SmartFileCache) Stats() ManagerStats {
	c.mu.Lock()
	watched := len(c.watched)
	c.mu.Unlock()

	return ManagerStats{
		Name:    c.name,
		Breaker: c.guard.State().String(),
		Watched: watched,
		Cache:   c.cache.Stats(),
	}
}

// Watch starts invalidating paths as soon as they change on disk. Parent
// directories are watched so that files replaced by rename are still seen.
func (c *SmartFileCache) Watch(paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		c.watcher = w
		c.done = make(chan struct{})
		go c.watchLoop(w, c.done)
	}

	for _, p := range paths {
		p = normalize(p)
		dir := filepath.Dir(p)
		if _, ok := c.dirs[dir]; !ok {
			if err := c.watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			c.dirs[dir] = struct{}{}
		}
		c.watched[p] = struct{}{}
		c.logger.Debug("Watching file", zap.String("path", p))
	}
	return nil
}

func (c *SmartFileCache) watchLoop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			path := normalize(event.Name)

			c.mu.Lock()
			_, tracked := c.watched[path]
			c.mu.Unlock()

			if tracked && c.cache.Delete(path) {
				c.logger.Debug("File changed, entry dropped",
					zap.String("path", path),
					zap.String("category", cache.CategoryOf(path)),
					zap.String("operation", event.Op.String()),
				)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// Start launches the background sweep.
func (c *SmartFileCache) Start(ctx context.Context) {
	c.sweeper.Start(ctx)
}

// Close stops the sweep and the watcher. Safe to call more than once.
func (c *SmartFileCache) Close() error {
	c.sweeper.Stop()

	c.mu.Lock()
	w, done := c.watcher, c.done
	c.watcher, c.done = nil, nil
	c.dirs = make(map[string]struct{})
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
