// Package filecache holds the specialized cache managers built on the cache
// store: a generic file cache keyed by path and the product catalog views.
// Both fail open: when the cache itself misbehaves the data is read straight
// from disk instead of surfacing the fault to the caller.
package filecache

import (
	stderrors "errors"
	"fmt"
	"time"

	apperrors "catalog-backend/internal/errors"
	"catalog-backend/internal/infrastructure/observability"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig configures the circuit breaker around a manager's cached path.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the cache fault ratio that opens the breaker once
	// MinRequests have been seen.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are
// configured.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.5,
		MinRequests:      10,
	}
}

// guard runs the cached path of a read and falls back to the direct path on
// cache faults. Not-found, parse and I/O errors are data errors and are
// returned unchanged.
type guard struct {
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.CacheMetrics
}

func newGuard(cfg BreakerConfig, logger *zap.Logger, metrics *observability.CacheMetrics) *guard {
	g := &guard{logger: logger, metrics: metrics}
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Data errors say nothing about the cache's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsCacheFault(err)
		},
	})
	return g
}

// State reports the breaker state.
func (g *guard) State() gobreaker.State {
	return g.cb.State()
}

func (g *guard) do(cached, direct func() (any, error)) (any, error) {
	value, err := g.cb.Execute(func() (v any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = apperrors.NewCacheFault(fmt.Sprintf("cache path panicked: %v", rec), nil)
			}
		}()
		return cached()
	})
	if err == nil {
		return value, nil
	}

	if !isCacheFault(err) {
		return nil, err
	}

	g.logger.Warn("Cache fault, reading directly from disk", zap.Error(err))
	g.metrics.Fallback()
	return direct()
}

func isCacheFault(err error) bool {
	return apperrors.IsCacheFault(err) ||
		stderrors.Is(err, gobreaker.ErrOpenState) ||
		stderrors.Is(err, gobreaker.ErrTooManyRequests)
}
