// Package jsonfile implements the file-backed entity repository.
//
// A Repository owns one JSON file and one cache slot. Reads go through the
// slot (read-through); writes go to disk first and then invalidate the slot
// (write-through invalidation), so the next read always reflects exactly what
// was serialized. A missing file is served as the configured default value; a
// file that cannot be parsed is a hard error.
package jsonfile

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/cache"
	"catalog-backend/internal/infrastructure/observability"
	"catalog-backend/internal/infrastructure/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSizeWarningBytes is the soft file size limit reported by Validate.
const DefaultSizeWarningBytes int64 = 10 * 1024 * 1024

const backupTimeFormat = "20060102T150405.000Z"

// RepositoryConfig describes one entity file.
type RepositoryConfig[T any] struct {
	FileName string
	DataDir  string

	// DefaultValue is returned when the file does not exist.
	DefaultValue T

	// TTLOverride replaces the cache's TTL policy for this entity when > 0.
	TTLOverride time.Duration
}

// FilePath returns the absolute location of the entity file.
func (c RepositoryConfig[T]) FilePath() string {
	return filepath.Join(c.DataDir, c.FileName)
}

// Options carries the collaborators and policies shared by repositories.
type Options struct {
	// Store is the repository's cache slot. When nil a private single-entry
	// store is created.
	Store *cache.Store

	FileSystem storage.FileSystem

	// DefaultTTL and CategoryTTLs configure the private store.
	DefaultTTL   time.Duration
	CategoryTTLs map[string]time.Duration

	BackupsEnabled bool
	BackupDir      string // defaults to <DataDir>/backups
	MaxBackups     int    // <= 0 keeps every backup

	SizeWarningBytes int64

	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *observability.Collector
}

// Repository is the file-backed repository of one entity.
type Repository[T any] struct {
	cfg     RepositoryConfig[T]
	opts    Options
	store   *cache.Store
	fs      storage.FileSystem
	logger  *zap.Logger
	metrics *observability.Collector
	now     func() time.Time

	loads   singleflight.Group
	pruning sync.WaitGroup
}

// NewRepository creates the repository for cfg.
func NewRepository[T any](cfg RepositoryConfig[T], opts Options) *Repository[T] {
	if opts.FileSystem == nil {
		opts.FileSystem = storage.NewOSFileSystem()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(cfg.DataDir, "backups")
	}
	if opts.SizeWarningBytes <= 0 {
		opts.SizeWarningBytes = DefaultSizeWarningBytes
	}

	store := opts.Store
	if store == nil {
		ttl := cache.CategoryPolicy(opts.DefaultTTL, opts.CategoryTTLs)
		if cfg.TTLOverride > 0 {
			ttl = cache.FixedTTL(cfg.TTLOverride)
		}
		var recorder cache.Recorder
		if opts.Metrics != nil {
			recorder = opts.Metrics.ForCache(cfg.FileName)
		}
		store = cache.NewStore(cache.Options{
			Name:       cfg.FileName,
			MaxEntries: 1,
			TTL:        ttl,
			Statter:    opts.FileSystem,
			Clock:      opts.Clock,
			Recorder:   recorder,
			Logger:     opts.Logger,
		})
	}

	return &Repository[T]{
		cfg:     cfg,
		opts:    opts,
		store:   store,
		fs:      opts.FileSystem,
		logger:  opts.Logger.Named("jsonfile").With(zap.String("file", cfg.FileName)),
		metrics: opts.Metrics,
		now:     opts.Clock,
	}
}

// FileName returns the entity file name.
func (r *Repository[T]) FileName() string { return r.cfg.FileName }

// FilePath returns the entity file location.
func (r *Repository[T]) FilePath() string { return r.cfg.FilePath() }

// Store exposes the repository's cache slot.
func (r *Repository[T]) Store() *cache.Store { return r.store }

// Read returns the entity data. With useCache a valid cached copy is returned
// without touching the file, and on a miss the file is read, parsed and
// cached. Without useCache the file is read and the cache slot is neither
// consulted nor populated. A missing file yields the default value and
// creates no cache entry.
func (r *Repository[T]) Read(ctx context.Context, useCache bool) (T, error) {
	_, span := observability.StartFileSpan(ctx, "read", r.cfg.FileName, attribute.Bool("cache.enabled", useCache))
	start := time.Now()

	value, err := r.read(useCache)

	r.metrics.RecordFileOperation("read", r.cfg.FileName, time.Since(start).Seconds(), err)
	observability.EndSpan(span, err)
	return value, err
}

func (r *Repository[T]) read(useCache bool) (T, error) {
	var zero T
	path := r.cfg.FilePath()

	if !r.fs.Exists(path) {
		r.store.Delete(path)
		return r.defaultValue()
	}

	if !useCache {
		return r.load(path, false)
	}

	if cached, ok := r.store.Get(path); ok {
		if value, ok := cached.(T); ok {
			return value, nil
		}
		r.logger.Warn("Cached value has unexpected type, reloading",
			zap.String("type", fmt.Sprintf("%T", cached)),
		)
		r.store.RecordError()
		r.store.Delete(path)
	}

	v, err, shared := r.loads.Do(path, func() (any, error) {
		return r.load(path, true)
	})
	if err != nil {
		return zero, err
	}

	value, _ := v.(T)
	if shared {
		// Callers of a shared load must not alias each other's result.
		if value, err = cache.CloneAs(value); err != nil {
			return zero, apperrors.NewCacheFault("failed to copy shared load", err)
		}
	}
	return value, nil
}

// load reads and parses the file and, with populate, fills the cache slot.
// The mtime is observed before reading so a concurrent external change is
// caught by the next staleness check.
func (r *Repository[T]) load(path string, populate bool) (T, error) {
	var zero T

	info, statErr := r.fs.Stat(path)

	data, err := r.fs.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return r.defaultValue()
		}
		r.logger.Error("Failed to read file", zap.Error(err))
		return zero, apperrors.NewIO(fmt.Sprintf("failed to read %s", r.cfg.FileName), err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		r.logger.Error("Failed to parse file", zap.Error(err))
		return zero, apperrors.NewParse(fmt.Sprintf("failed to parse %s", r.cfg.FileName), err)
	}

	if !populate {
		return value, nil
	}

	var setErr error
	if statErr == nil {
		setErr = r.store.SetObserved(path, value, path, info.ModTime)
	} else {
		setErr = r.store.Set(path, value, path)
	}
	if setErr != nil {
		r.logger.Warn("Failed to populate cache", zap.Error(setErr))
	}

	return value, nil
}

// Write persists data, replacing the file, and invalidates the cache slot.
// With backup the current file is first copied to the backup directory; a
// failed backup is logged and never blocks the write. On failure the cache
// slot is left untouched and an error is returned.
func (r *Repository[T]) Write(ctx context.Context, data T, backup bool) error {
	_, span := observability.StartFileSpan(ctx, "write", r.cfg.FileName, attribute.Bool("backup", backup))
	start := time.Now()

	err := r.write(data, backup)

	r.metrics.RecordFileOperation("write", r.cfg.FileName, time.Since(start).Seconds(), err)
	observability.EndSpan(span, err)
	return err
}

func (r *Repository[T]) write(data T, backup bool) error {
	path := r.cfg.FilePath()

	if backup && r.opts.BackupsEnabled && r.fs.Exists(path) {
		r.backup(path)
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		r.logger.Error("Failed to serialize data", zap.Error(err))
		return apperrors.NewInternal(fmt.Sprintf("failed to serialize %s", r.cfg.FileName), err)
	}

	if err := r.fs.WriteFile(path, payload); err != nil {
		r.logger.Error("Failed to write file", zap.Error(err))
		return apperrors.NewIO(fmt.Sprintf("failed to write %s", r.cfg.FileName), err)
	}

	r.store.Delete(path)

	r.logger.Debug("File written", zap.Int("bytes", len(payload)))
	return nil
}

// backup copies the current file aside. Failures are logged only.
func (r *Repository[T]) backup(path string) {
	name := fmt.Sprintf("%s.%s.%s.bak",
		r.cfg.FileName,
		r.now().UTC().Format(backupTimeFormat),
		uuid.NewString()[:8],
	)
	dst := filepath.Join(r.opts.BackupDir, name)

	if err := r.fs.Copy(path, dst); err != nil {
		r.logger.Warn("Backup failed, continuing with write",
			zap.String("backup", dst),
			zap.Error(err),
		)
		r.metrics.RecordBackupFailure(r.cfg.FileName)
		return
	}

	if r.opts.MaxBackups > 0 {
		r.pruning.Add(1)
		go func() {
			defer r.pruning.Done()
			r.pruneBackups()
		}()
	}
}

// pruneBackups keeps the newest MaxBackups backups of this file.
func (r *Repository[T]) pruneBackups() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Backup pruning panicked", zap.Any("panic", rec))
		}
	}()

	pattern := filepath.Join(r.opts.BackupDir, r.cfg.FileName+".*.bak")
	backups, err := r.fs.Glob(pattern)
	if err != nil {
		r.logger.Warn("Failed to list backups", zap.Error(err))
		return
	}
	if len(backups) <= r.opts.MaxBackups {
		return
	}

	// Names embed a fixed-width UTC timestamp, so lexical order is age order.
	sort.Strings(backups)
	for _, old := range backups[:len(backups)-r.opts.MaxBackups] {
		if err := r.fs.Remove(old); err != nil {
			r.logger.Warn("Failed to remove old backup", zap.String("backup", old), zap.Error(err))
		}
	}
}

// Wait blocks until background backup pruning has finished.
func (r *Repository[T]) Wait() {
	r.pruning.Wait()
}

// Initialize creates the file from the default value if it does not exist.
func (r *Repository[T]) Initialize(ctx context.Context) error {
	if r.fs.Exists(r.cfg.FilePath()) {
		return nil
	}
	r.logger.Info("Creating entity file with default value")
	return r.Write(ctx, r.cfg.DefaultValue, false)
}

// ClearCache drops the cached copy; the next read goes to disk.
func (r *Repository[T]) ClearCache() {
	r.store.Clear()
}

func (r *Repository[T]) defaultValue() (T, error) {
	value, err := cache.CloneAs(r.cfg.DefaultValue)
	if err != nil {
		var zero T
		return zero, apperrors.NewInternal("failed to copy default value", err)
	}
	return value, nil
}
