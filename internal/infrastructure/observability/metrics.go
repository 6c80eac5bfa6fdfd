package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each collector
// owns its registry, so tests and multiple instances never collide on
// registration.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Cache metrics
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	CacheExpirations *prometheus.CounterVec
	CacheErrors      *prometheus.CounterVec
	CacheEntries     *prometheus.GaugeVec
	CacheFallbacks   *prometheus.CounterVec

	// Repository metrics
	FileOperations *prometheus.CounterVec
	FileDuration   *prometheus.HistogramVec
	BackupFailures *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		}, []string{"cache"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries removed because the cache was full",
		}, []string{"cache"}),
		CacheExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expirations_total",
			Help:      "Entries removed because their TTL elapsed",
		}, []string{"cache"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Internal cache faults",
		}, []string{"cache"}),
		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of cache entries",
		}, []string{"cache"}),
		CacheFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallback_reads_total",
			Help:      "Reads served directly from disk after a cache fault",
		}, []string{"cache"}),
		FileOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_operations_total",
			Help:      "Total number of entity file operations",
		}, []string{"operation", "file", "status"}),
		FileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_operation_duration_seconds",
			Help:      "Entity file operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "file"}),
		BackupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_failures_total",
			Help:      "Backups that failed before a write",
		}, []string{"file"}),
	}

	registry.MustRegister(
		c.CacheHits,
		c.CacheMisses,
		c.CacheEvictions,
		c.CacheExpirations,
		c.CacheErrors,
		c.CacheEntries,
		c.CacheFallbacks,
		c.FileOperations,
		c.FileDuration,
		c.BackupFailures,
	)

	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CacheMetrics forwards the events of one named cache to the collector.
// It satisfies cache.Recorder.
type CacheMetrics struct {
	hits, misses, evictions, expirations, errors, fallbacks prometheus.Counter
	entries                                                 prometheus.Gauge
}

// ForCache returns the recorder for the cache called name. A nil collector
// yields a recorder that discards everything.
func (c *Collector) ForCache(name string) *CacheMetrics {
	if c == nil {
		return nil
	}
	return &CacheMetrics{
		hits:        c.CacheHits.WithLabelValues(name),
		misses:      c.CacheMisses.WithLabelValues(name),
		evictions:   c.CacheEvictions.WithLabelValues(name),
		expirations: c.CacheExpirations.WithLabelValues(name),
		errors:      c.CacheErrors.WithLabelValues(name),
		fallbacks:   c.CacheFallbacks.WithLabelValues(name),
		entries:     c.CacheEntries.WithLabelValues(name),
	}
}

func (m *CacheMetrics) Hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *CacheMetrics) Miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *CacheMetrics) Eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *CacheMetrics) Expiration() {
	if m != nil {
		m.expirations.Inc()
	}
}

func (m *CacheMetrics) Error() {
	if m != nil {
		m.errors.Inc()
	}
}

// Fallback counts a read served around the cache.
func (m *CacheMetrics) Fallback() {
	if m != nil {
		m.fallbacks.Inc()
	}
}

func (m *CacheMetrics) Entries(n int) {
	if m != nil {
		m.entries.Set(float64(n))
	}
}

// RecordFileOperation records the outcome and duration of a repository
// file operation.
func (c *Collector) RecordFileOperation(operation, file string, seconds float64, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.FileOperations.WithLabelValues(operation, file, status).Inc()
	c.FileDuration.WithLabelValues(operation, file).Observe(seconds)
}

// RecordBackupFailure counts a failed pre-write backup.
func (c *Collector) RecordBackupFailure(file string) {
	if c == nil {
		return
	}
	c.BackupFailures.WithLabelValues(file).Inc()
}
