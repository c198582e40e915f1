package streaming

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically evicts idle sessions so abandoned connections cannot
// pin buffers and file handles forever.
type Reaper struct {
	registry *Registry
	interval time.Duration
	maxIdle  time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewReaper(registry *Registry, interval, maxIdle time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		registry: registry,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (rp *Reaper) Start() {
	go rp.run()
	rp.logger.Info("idle reaper started",
		zap.Duration("interval", rp.interval),
		zap.Duration("max_idle", rp.maxIdle))
}

// Stop terminates the sweep loop and waits for it to exit. Idempotent.
func (rp *Reaper) Stop() {
	rp.stopOnce.Do(func() {
		close(rp.stopCh)
	})
	<-rp.doneCh
}

func (rp *Reaper) run() {
	defer close(rp.doneCh)

	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.stopCh:
			return
		case <-ticker.C:
			rp.sweep()
		}
	}
}

// sweep runs one cleanup cycle. A panic inside the sweep is logged and the
// loop keeps running; the reaper must outlive any single bad session.
func (rp *Reaper) sweep() {
	defer func() {
		if rec := recover(); rec != nil {
			rp.logger.Error("reaper sweep panicked", zap.Any("panic", rec))
		}
	}()
	if reaped := rp.registry.CleanupStale(rp.maxIdle); reaped > 0 {
		rp.logger.Info("reaper sweep complete", zap.Int("reaped", reaped))
	}
}
