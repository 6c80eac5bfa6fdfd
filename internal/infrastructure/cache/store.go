// Package cache provides the in-memory store that sits in front of the
// JSON-file-backed entities.
//
// A Store maps keys to deep-copied values. An entry is served only while it is
// younger than its TTL and, when it was populated from a file, while that
// file's modification time is unchanged. The store holds at most MaxEntries
// entries and evicts the oldest populated entry first (not the least recently
// used one). Values are copied on the way in and on the way out, so a caller
// mutating a result can never corrupt the cache.
package cache

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/storage"

	"go.uber.org/zap"
)

// DefaultMaxEntries bounds a store when Options.MaxEntries is not set.
const DefaultMaxEntries = 1000

// Statter resolves file modification times for staleness checks.
type Statter interface {
	Stat(path string) (storage.FileInfo, error)
}

// Options configures a Store.
type Options struct {
	// Name labels the store in logs and metrics.
	Name string

	MaxEntries int
	TTL        TTLPolicy

	// Statter is used for mtime checks. Defaults to the local disk.
	Statter Statter

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Recorder Recorder
	Logger   *zap.Logger
}

// EntryInfo describes an entry without exposing its value.
type EntryInfo struct {
	Key            string
	CachedAt       time.Time
	ExpiresAt      time.Time
	SourcePath     string
	SourceMtime    time.Time
	HasSourceMtime bool
	SizeBytes      int
}

// Store is a size-bounded, TTL- and mtime-aware cache. It is safe for
// concurrent use.
type Store struct {
	mu sync.Mutex

	name       string
	maxEntries int
	ttl        TTLPolicy
	statter    Statter
	now        func() time.Time
	recorder   Recorder
	logger     *zap.Logger

	items map[string]*entry
	order entryHeap
	seq   uint64

	// Statistics
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
	errors      uint64
}

// NewStore creates a store with the given options.
func NewStore(opts Options) *Store {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Statter == nil {
		opts.Statter = storage.NewOSFileSystem()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Name == "" {
		opts.Name = "cache"
	}

	return &Store{
		name:       opts.Name,
		maxEntries: opts.MaxEntries,
		ttl:        opts.TTL,
		statter:    opts.Statter,
		now:        opts.Clock,
		recorder:   opts.Recorder,
		logger:     opts.Logger.Named("cache").With(zap.String("cache", opts.Name)),
		items:      make(map[string]*entry),
	}
}

// Name returns the store's label.
func (s *Store) Name() string { return s.name }

// TTL returns the time-to-live that applies to key.
func (s *Store) TTL(key string) time.Duration {
	return s.ttl.For(key)
}

// Get returns a copy of the cached value for key. It reports a miss when the
// key is absent, when the entry outlived its TTL, or when its source file
// was modified or removed since the entry was populated. Stale entries are
// removed as a side effect.
//
// The source file is stat'ed without holding the lock; the verdict applies
// only if the same entry is still cached once the lock is re-acquired.
func (s *Store) Get(key string) (any, bool) {
	var (
		checked   *entry
		unchanged bool
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		ent, ok := s.items[key]
		if !ok {
			s.recordMiss()
			return nil, false
		}

		if s.now().Sub(ent.cachedAt) >= s.ttl.For(key) {
			s.remove(ent)
			s.expirations++
			s.recorder.Expiration()
			s.recorder.Entries(len(s.items))
			s.recordMiss()
			return nil, false
		}

		if ent.hasMtime && ent != checked {
			s.mu.Unlock()
			unchanged = s.sourceUnchanged(ent)
			s.mu.Lock()
			checked = ent
			continue
		}

		if ent.hasMtime && !unchanged {
			s.logger.Debug("Source file changed, dropping entry",
				zap.String("key", key),
				zap.String("source", ent.sourcePath),
			)
			s.remove(ent)
			s.recorder.Entries(len(s.items))
			s.recordMiss()
			return nil, false
		}

		value, err := Clone(ent.value)
		if err != nil {
			s.logger.Error("Failed to copy cached value", zap.String("key", key), zap.Error(err))
			s.remove(ent)
			s.errors++
			s.recorder.Error()
			s.recorder.Entries(len(s.items))
			s.recordMiss()
			return nil, false
		}

		s.hits++
		s.recorder.Hit()
		return value, true
	}
}

// Set stores a deep copy of value under key. When sourcePath is given its
// modification time is recorded for staleness checks; if the stat fails the
// entry falls back to TTL-only validity.
func (s *Store) Set(key string, value any, sourcePath string) error {
	var (
		mtime    time.Time
		hasMtime bool
	)
	if sourcePath != "" {
		info, err := s.statter.Stat(sourcePath)
		if err != nil {
			s.logger.Debug("Failed to stat source, entry is TTL-only",
				zap.String("key", key),
				zap.String("source", sourcePath),
				zap.Error(err),
			)
		} else {
			mtime, hasMtime = info.ModTime, true
		}
	}
	return s.set(key, value, sourcePath, mtime, hasMtime)
}

// SetObserved is Set with a modification time the caller observed before
// reading the source. Recording the pre-read mtime means a file changed
// during the read is detected on the next Get.
func (s *Store) SetObserved(key string, value any, sourcePath string, mtime time.Time) error {
	return s.set(key, value, sourcePath, mtime, !mtime.IsZero())
}

func (s *Store) set(key string, value any, sourcePath string, mtime time.Time, hasMtime bool) error {
	copied, err := Clone(value)
	if err != nil {
		s.mu.Lock()
		s.errors++
		s.recorder.Error()
		s.mu.Unlock()

		s.logger.Warn("Refusing to cache value", zap.String("key", key), zap.Error(err))
		return apperrors.NewCacheFault(fmt.Sprintf("cannot cache %q", key), err)
	}

	ent := &entry{
		key:         key,
		value:       copied,
		sourcePath:  sourcePath,
		sourceMtime: mtime,
		hasMtime:    hasMtime,
		sizeBytes:   sizeOf(copied),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replacing is delete + insert, never an in-place update.
	if old, ok := s.items[key]; ok {
		s.remove(old)
	}

	for len(s.items) >= s.maxEntries && s.order.Len() > 0 {
		oldest := s.order[0]
		s.remove(oldest)
		s.evictions++
		s.recorder.Eviction()
		s.logger.Debug("Evicted oldest entry", zap.String("key", oldest.key))
	}

	s.seq++
	ent.seq = s.seq
	ent.cachedAt = s.now()
	heap.Push(&s.order, ent)
	s.items[key] = ent
	s.recorder.Entries(len(s.items))
	return nil
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return false
	}
	s.remove(ent)
	s.recorder.Entries(len(s.items))
	return true
}

// DeletePrefix removes every key starting with prefix and returns the count.
func (s *Store) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []*entry
	for key, ent := range s.items {
		if strings.HasPrefix(key, prefix) {
			doomed = append(doomed, ent)
		}
	}
	for _, ent := range doomed {
		s.remove(ent)
	}
	if len(doomed) > 0 {
		s.recorder.Entries(len(s.items))
	}
	return len(doomed)
}

// Clear removes all entries. Counters are kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*entry)
	s.order = nil
	s.recorder.Entries(0)
}

// Sweep removes every entry whose TTL has expired, whether or not anyone
// reads it again, and returns the number removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []*entry
	for key, ent := range s.items {
		if now.Sub(ent.cachedAt) >= s.ttl.For(key) {
			expired = append(expired, ent)
		}
	}
	for _, ent := range expired {
		s.remove(ent)
		s.expirations++
		s.recorder.Expiration()
	}
	if len(expired) > 0 {
		s.recorder.Entries(len(s.items))
	}
	return len(expired)
}

// Inspect returns entry metadata without affecting statistics or validity.
func (s *Store) Inspect(key string) (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return EntryInfo{}, false
	}
	return s.info(ent), true
}

// Keys returns the cached keys, oldest first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.items))
	for _, ent := range s.items {
		entries = append(entries, ent)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entryHeap(entries).Less(i, j)
	})
	keys := make([]string, len(entries))
	for i, ent := range entries {
		keys[i] = ent.key
	}
	return keys
}

// Len returns the number of entries, valid or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bytes int64
	for _, ent := range s.items {
		bytes += int64(ent.sizeBytes)
	}

	return Stats{
		Hits:        s.hits,
		Misses:      s.misses,
		Evictions:   s.evictions,
		Expirations: s.expirations,
		Errors:      s.errors,
		Size:        len(s.items),
		Bytes:       bytes,
		HitRate:     hitRate(s.hits, s.misses),
	}
}

// RecordError counts a fault detected by a caller of the store, such as a
// cached value of an unexpected type.
func (s *Store) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	s.recorder.Error()
}

// remove must be called with the lock held.
func (s *Store) remove(ent *entry) {
	if ent.index >= 0 && ent.index < len(s.order) && s.order[ent.index] == ent {
		heap.Remove(&s.order, ent.index)
	}
	delete(s.items, ent.key)
}

func (s *Store) recordMiss() {
	s.misses++
	s.recorder.Miss()
}

// sourceUnchanged treats a vanished file as modified. It reads only fields
// that are fixed once an entry is inserted, so it may run without the lock.
func (s *Store) sourceUnchanged(ent *entry) bool {
	info, err := s.statter.Stat(ent.sourcePath)
	if err != nil {
		return false
	}
	return info.ModTime.Equal(ent.sourceMtime)
}

func (s *Store) info(ent *entry) EntryInfo {
	return EntryInfo{
		Key:            ent.key,
		CachedAt:       ent.cachedAt,
		ExpiresAt:      ent.cachedAt.Add(s.ttl.For(ent.key)),
		SourcePath:     ent.sourcePath,
		SourceMtime:    ent.sourceMtime,
		HasSourceMtime: ent.hasMtime,
		SizeBytes:      ent.sizeBytes,
	}
}
