package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is anything that can drop its expired entries.
type Sweepable interface {
	Sweep() int
}

// Sweeper periodically removes expired entries from its targets so memory is
// reclaimed for keys nobody reads again. It is owned by whoever creates it and
// must be started and stopped explicitly.
type Sweeper struct {
	interval time.Duration
	targets  []Sweepable
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. An interval <= 0 disables Start.
func NewSweeper(interval time.Duration, logger *zap.Logger, targets ...Sweepable) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		interval: interval,
		targets:  targets,
		logger:   logger.Named("sweeper"),
	}
}

// Start launches the background goroutine. It returns false when the sweeper
// is disabled or already running.
func (s *Sweeper) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval <= 0 || s.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("Cache sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("targets", len(s.targets)),
	)
	return true
}

// Stop halts the goroutine and waits for it. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Cache sweeper stopped")
}

// Running reports whether the background goroutine is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// SweepNow sweeps every target once and returns the total removed. A target
// that panics is logged and skipped.
func (s *Sweeper) SweepNow() int {
	total := 0
	for _, target := range s.targets {
		n, err := sweepOne(target)
		if err != nil {
			s.logger.Error("Cache sweep failed", zap.Error(err))
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Debug("Cleaned up expired cache items", zap.Int("count", total))
	}
	return total
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.exited(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepNow()
		case <-ctx.Done():
			return
		}
	}
}

// exited clears the running state when the parent context ended the loop,
// so Running reports false and Start can launch a new goroutine.
func (s *Sweeper) exited(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	s.logger.Info("Cache sweeper stopped by context")
}

func sweepOne(target Sweepable) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return target.Sweep(), nil
}
