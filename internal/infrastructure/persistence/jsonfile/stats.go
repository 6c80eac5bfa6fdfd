package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"catalog-backend/internal/infrastructure/cache"

	"github.com/dustin/go-humanize"
)

// CacheStats describes the repository's cache slot.
type CacheStats struct {
	FileName      string      `json:"fileName"`
	CacheSize     int         `json:"cacheSize"`
	HasCachedData bool        `json:"hasCachedData"`
	LastCacheTime *time.Time  `json:"lastCacheTime,omitempty"`
	Counters      cache.Stats `json:"counters"`
}

// FileStats describes the entity file and its cache slot.
type FileStats struct {
	FileName      string     `json:"fileName"`
	FilePath      string     `json:"filePath"`
	Exists        bool       `json:"exists"`
	FileSize      int64      `json:"fileSize"`
	FileSizeHuman string     `json:"fileSizeHuman"`
	ItemCount     int        `json:"itemCount"`
	LastModified  *time.Time `json:"lastModified,omitempty"`
	Cache         CacheStats `json:"cacheStats"`
}

// ValidationReport is the outcome of a structural check.
type ValidationReport struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// CacheStats reports the state of the cache slot without touching its
// counters.
func (r *Repository[T]) CacheStats() CacheStats {
	stats := CacheStats{
		FileName:  r.cfg.FileName,
		CacheSize: r.store.Len(),
		Counters:  r.store.Stats(),
	}
	if info, ok := r.store.Inspect(r.cfg.FilePath()); ok {
		cachedAt := info.CachedAt
		stats.HasCachedData = true
		stats.LastCacheTime = &cachedAt
	}
	return stats
}

// Stats reports file size, item count and modification time together with
// the cache slot state. Items are counted from a Read with useCache.
func (r *Repository[T]) Stats(ctx context.Context, useCache bool) (FileStats, error) {
	path := r.cfg.FilePath()
	stats := FileStats{
		FileName:      r.cfg.FileName,
		FilePath:      path,
		FileSizeHuman: humanize.Bytes(0),
	}

	if info, err := r.fs.Stat(path); err == nil {
		modified := info.ModTime
		stats.Exists = true
		stats.FileSize = info.Size
		stats.FileSizeHuman = humanize.Bytes(uint64(info.Size))
		stats.LastModified = &modified
	}

	data, err := r.Read(ctx, useCache)
	if err != nil {
		return FileStats{}, err
	}
	stats.ItemCount = itemCount(data)
	stats.Cache = r.CacheStats()
	return stats, nil
}

// Validate checks the file structurally: it must parse, must not be null,
// must have the top-level shape of T, and should stay below the soft size
// limit. A missing file is valid; the default value is served.
func (r *Repository[T]) Validate(ctx context.Context) ValidationReport {
	report := ValidationReport{Errors: []string{}, Warnings: []string{}}
	path := r.cfg.FilePath()

	if !r.fs.Exists(path) {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s does not exist; the default value is served", r.cfg.FileName))
		report.IsValid = true
		return report
	}

	if info, err := r.fs.Stat(path); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("cannot stat %s: %v", r.cfg.FileName, err))
	} else if info.Size > r.opts.SizeWarningBytes {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s is %s, above the %s soft limit",
			r.cfg.FileName,
			humanize.Bytes(uint64(info.Size)),
			humanize.Bytes(uint64(r.opts.SizeWarningBytes)),
		))
	}

	data, err := r.fs.ReadFile(path)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("cannot read %s: %v", r.cfg.FileName, err))
		return finish(report)
	}

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		report.Errors = append(report.Errors, fmt.Sprintf("%s is empty", r.cfg.FileName))
	case !json.Valid(trimmed):
		report.Errors = append(report.Errors, fmt.Sprintf("%s is not valid JSON", r.cfg.FileName))
	case bytes.Equal(trimmed, []byte("null")):
		report.Errors = append(report.Errors, fmt.Sprintf("%s contains null", r.cfg.FileName))
	default:
		if want := expectedShape[T](); want != 0 && trimmed[0] != want {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: expected a JSON %s, found %q",
				r.cfg.FileName, shapeName(want), trimmed[0]))
		}
	}

	return finish(report)
}

func finish(report ValidationReport) ValidationReport {
	report.IsValid = len(report.Errors) == 0
	return report
}

// expectedShape returns the opening JSON delimiter T decodes from, or 0 when
// T accepts any shape.
func expectedShape[T any]() byte {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return '['
	case reflect.Map, reflect.Struct:
		return '{'
	default:
		return 0
	}
}

func shapeName(delim byte) string {
	if delim == '[' {
		return "array"
	}
	return "object"
}

func itemCount(v any) int {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return 0
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	case reflect.Invalid:
		return 0
	default:
		return 1
	}
}
