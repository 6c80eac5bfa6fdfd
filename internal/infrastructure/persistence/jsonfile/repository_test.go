package jsonfile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/observability"
	"catalog-backend/internal/infrastructure/persistence/jsonfile"
	"catalog-backend/internal/infrastructure/storage"
	"catalog-backend/internal/infrastructure/storage/mocks"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type Record = map[string]any

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newProductsRepo(t *testing.T, dir string, opts jsonfile.Options) *jsonfile.Repository[[]Record] {
	t.Helper()
	return jsonfile.NewRepository(jsonfile.RepositoryConfig[[]Record]{
		FileName:     "products.json",
		DataDir:      dir,
		DefaultValue: []Record{},
	}, opts)
}

func writeRaw(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestRepository_ProductsScenario(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := newProductsRepo(t, dir, jsonfile.Options{})

	// File absent: default value, no cache entry, no miss.
	data, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []Record{}, data)
	stats := repo.CacheStats()
	assert.Zero(t, stats.Counters.Hits)
	assert.Zero(t, stats.Counters.Misses)
	assert.False(t, stats.HasCachedData)

	writeRaw(t, repo.FilePath(), `[{"id":"1"}]`, time.Now().Add(-time.Hour))

	data, err = repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"id": "1"}}, data)
	assert.Equal(t, uint64(1), repo.CacheStats().Counters.Misses)

	data, err = repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"id": "1"}}, data)
	stats = repo.CacheStats()
	assert.Equal(t, uint64(1), stats.Counters.Hits)
	assert.Equal(t, uint64(1), stats.Counters.Misses)

	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}, {"id": "2"}}, false))

	data, err = repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Equal(t, uint64(2), repo.CacheStats().Counters.Misses)
}

func TestRepository_WriteThenReadIsFresh(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})

	for i, want := range [][]Record{
		{{"id": "a"}},
		{{"id": "a"}, {"id": "b"}},
		{},
	} {
		require.NoError(t, repo.Write(ctx, want, false))
		got, err := repo.Read(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, want, got, "write %d", i)
	}
}

func TestRepository_ReadReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1", "name": "Lamp"}}, false))

	first, err := repo.Read(ctx, true)
	require.NoError(t, err)
	first[0]["name"] = "mutated"

	second, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", second[0]["name"])
}

func TestRepository_DefaultValueIsCopied(t *testing.T) {
	ctx := context.Background()
	repo := jsonfile.NewRepository(jsonfile.RepositoryConfig[Record]{
		FileName:     "analytics.json",
		DataDir:      t.TempDir(),
		DefaultValue: Record{"pageViews": float64(0)},
	}, jsonfile.Options{})

	first, err := repo.Read(ctx, true)
	require.NoError(t, err)
	first["pageViews"] = float64(99)

	second, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, float64(0), second["pageViews"])
}

func TestRepository_ParseErrorIsHard(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := newProductsRepo(t, dir, jsonfile.Options{})
	writeRaw(t, repo.FilePath(), `[{"id":`, time.Now())

	_, err := repo.Read(ctx, true)
	require.Error(t, err)
	assert.True(t, apperrors.IsParse(err))
	assert.False(t, repo.CacheStats().HasCachedData)
}

func TestRepository_DetectsExternalModification(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	base := time.Now().Add(-time.Hour)

	writeRaw(t, repo.FilePath(), `[{"id":"1"}]`, base)
	_, err := repo.Read(ctx, true)
	require.NoError(t, err)

	writeRaw(t, repo.FilePath(), `[{"id":"external"}]`, base.Add(time.Minute))

	data, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"id": "external"}}, data)
	assert.Equal(t, uint64(2), repo.CacheStats().Counters.Misses)
}

func TestRepository_ExternalDeletionServesDefault(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}}, false))
	_, err := repo.Read(ctx, true)
	require.NoError(t, err)

	require.NoError(t, os.Remove(repo.FilePath()))

	data, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []Record{}, data)
	assert.False(t, repo.CacheStats().HasCachedData)
}

func TestRepository_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := jsonfile.NewRepository(jsonfile.RepositoryConfig[[]Record]{
		FileName:     "inquiries.json",
		DataDir:      t.TempDir(),
		DefaultValue: []Record{},
		TTLOverride:  time.Minute,
	}, jsonfile.Options{Clock: clock.Now})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "q1"}}, false))

	_, err := repo.Read(ctx, true)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = repo.Read(ctx, true)
	require.NoError(t, err)

	stats := repo.CacheStats().Counters
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	clock.Advance(time.Minute)
	_, err = repo.Read(ctx, true)
	require.NoError(t, err)

	stats = repo.CacheStats().Counters
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, uint64(1), stats.Expirations)
}

func TestRepository_ReadWithoutCacheBypassesSlot(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}}, false))

	_, err := repo.Read(ctx, true)
	require.NoError(t, err)
	_, err = repo.Read(ctx, false)
	require.NoError(t, err)

	stats := repo.CacheStats().Counters
	assert.Zero(t, stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRepository_ClearCacheIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}}, false))
	_, err := repo.Read(ctx, true)
	require.NoError(t, err)
	require.True(t, repo.CacheStats().HasCachedData)

	repo.ClearCache()
	repo.ClearCache()

	stats := repo.CacheStats()
	assert.False(t, stats.HasCachedData)
	assert.Nil(t, stats.LastCacheTime)
	assert.Zero(t, stats.CacheSize)
}

func TestRepository_WriteFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	fs := new(mocks.MockFileSystem)
	path := filepath.Join("/data", "products.json")
	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	fs.On("Exists", path).Return(true)
	fs.On("Stat", path).Return(storage.FileInfo{ModTime: mtime, Size: 12}, nil)
	fs.On("ReadFile", path).Return([]byte(`[{"id":"1"}]`), nil)
	fs.On("WriteFile", path, mock.Anything).Return(errors.New("disk full"))

	repo := newProductsRepo(t, "/data", jsonfile.Options{FileSystem: fs})

	_, err := repo.Read(ctx, true)
	require.NoError(t, err)

	err = repo.Write(ctx, []Record{{"id": "2"}}, false)
	require.Error(t, err)
	assert.True(t, apperrors.IsIO(err))

	data, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []Record{{"id": "1"}}, data)
	assert.Equal(t, uint64(1), repo.CacheStats().Counters.Hits)
	fs.AssertNumberOfCalls(t, "ReadFile", 1)
}

func TestRepository_BackupFailureDoesNotBlockWrite(t *testing.T) {
	ctx := context.Background()
	fs := new(mocks.MockFileSystem)
	path := filepath.Join("/data", "products.json")
	metrics := observability.NewCollector("test")

	fs.On("Exists", path).Return(true)
	fs.On("Copy", path, mock.Anything).Return(errors.New("permission denied"))
	fs.On("WriteFile", path, mock.Anything).Return(nil)

	repo := newProductsRepo(t, "/data", jsonfile.Options{
		FileSystem:     fs,
		BackupsEnabled: true,
		MaxBackups:     3,
		Metrics:        metrics,
	})

	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}}, true))
	repo.Wait()

	fs.AssertCalled(t, "WriteFile", path, mock.Anything)
	fs.AssertNotCalled(t, "Glob", mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BackupFailures.WithLabelValues("products.json")))
}

func TestRepository_BackupsArePruned(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := newFakeClock()
	repo := newProductsRepo(t, dir, jsonfile.Options{
		BackupsEnabled: true,
		MaxBackups:     2,
		Clock:          clock.Now,
	})

	// The first write has nothing to back up.
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Write(ctx, []Record{{"rev": float64(i)}}, true))
		repo.Wait()
		clock.Advance(time.Second)
	}

	backups, err := filepath.Glob(filepath.Join(dir, "backups", "products.json.*.bak"))
	require.NoError(t, err)
	require.Len(t, backups, 2)

	// The newest backup holds the revision before the last write.
	newest, err := os.ReadFile(backups[1])
	require.NoError(t, err)
	assert.JSONEq(t, `[{"rev":3}]`, string(newest))
}

func TestRepository_BackupsDisabled(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := newProductsRepo(t, dir, jsonfile.Options{})

	require.NoError(t, repo.Write(ctx, []Record{}, true))
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}}, true))

	_, err := os.Stat(filepath.Join(dir, "backups"))
	assert.True(t, os.IsNotExist(err))
}

func TestRepository_InitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})

	require.NoError(t, repo.Initialize(ctx))
	raw, err := os.ReadFile(repo.FilePath())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}}, false))
	require.NoError(t, repo.Initialize(ctx))

	data, err := repo.Read(ctx, true)
	require.NoError(t, err)
	assert.Len(t, data, 1)
}

func TestRepository_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}, {"id": "2"}}, false))

	var wg sync.WaitGroup
	results := make([][]Record, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.Read(ctx, true)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 2)
	}
	// Every result is its own copy.
	results[0][0]["id"] = "changed"
	for _, r := range results[1:] {
		assert.Equal(t, "1", r[0]["id"])
	}

	stats := repo.CacheStats().Counters
	assert.Equal(t, uint64(16), stats.Hits+stats.Misses)
}

func TestRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})

	stats, err := repo.Stats(ctx, true)
	require.NoError(t, err)
	assert.False(t, stats.Exists)
	assert.Zero(t, stats.ItemCount)
	assert.Equal(t, "0 B", stats.FileSizeHuman)

	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}, {"id": "2"}, {"id": "3"}}, false))

	stats, err = repo.Stats(ctx, true)
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, 3, stats.ItemCount)
	assert.Positive(t, stats.FileSize)
	assert.NotNil(t, stats.LastModified)
	assert.True(t, stats.Cache.HasCachedData)
	assert.Equal(t, "products.json", stats.Cache.FileName)
}

func TestRepository_StatsWithoutCacheLeavesSlotAlone(t *testing.T) {
	ctx := context.Background()
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
	require.NoError(t, repo.Write(ctx, []Record{{"id": "1"}, {"id": "2"}}, false))

	stats, err := repo.Stats(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ItemCount)
	assert.False(t, stats.Cache.HasCachedData)
	assert.Zero(t, stats.Cache.Counters.Hits)
	assert.Zero(t, stats.Cache.Counters.Misses)
}

func TestRepository_Validate(t *testing.T) {
	tests := []struct {
		name       string
		content    *string
		wantValid  bool
		wantErrors int
		wantWarn   int
	}{
		{name: "missing file", content: nil, wantValid: true, wantWarn: 1},
		{name: "valid array", content: ptr(`[{"id":"1"}]`), wantValid: true},
		{name: "empty file", content: ptr("  \n"), wantErrors: 1},
		{name: "invalid json", content: ptr(`[{`), wantErrors: 1},
		{name: "null", content: ptr(`null`), wantErrors: 1},
		{name: "wrong shape", content: ptr(`{"id":"1"}`), wantErrors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{})
			if tt.content != nil {
				require.NoError(t, os.WriteFile(repo.FilePath(), []byte(*tt.content), 0o644))
			}

			report := repo.Validate(context.Background())
			assert.Equal(t, tt.wantValid, report.IsValid)
			assert.Len(t, report.Errors, tt.wantErrors)
			assert.Len(t, report.Warnings, tt.wantWarn)
		})
	}
}

func TestRepository_ValidateWarnsOnLargeFile(t *testing.T) {
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{SizeWarningBytes: 8})
	require.NoError(t, os.WriteFile(repo.FilePath(), []byte(`[{"id":"1"},{"id":"2"}]`), 0o644))

	report := repo.Validate(context.Background())
	assert.True(t, report.IsValid)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "soft limit")
}

func TestRepository_RecordsFileOperations(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewCollector("test")
	repo := newProductsRepo(t, t.TempDir(), jsonfile.Options{Metrics: metrics})

	require.NoError(t, repo.Write(ctx, []Record{}, false))
	_, err := repo.Read(ctx, true)
	require.NoError(t, err)
	_, err = repo.Read(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FileOperations.WithLabelValues("write", "products.json", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.FileOperations.WithLabelValues("read", "products.json", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHits.WithLabelValues("products.json")))
}

func ptr(s string) *string { return &s }
