// Package scheduler drives the periodic sync cycle and the out-of-band
// triggers. At most one cycle runs at a time: ticks and triggers that
// arrive while a cycle is running are coalesced into at most one pending
// run, never stacked.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/tradewatch/agent/internal/errors"
	"github.com/tradewatch/agent/internal/logging"
	syncpkg "github.com/tradewatch/agent/internal/sync"
)

// cycleTimeout bounds one periodic cycle end to end.
const cycleTimeout = 5 * time.Minute

// shutdownFlushTimeout bounds the final flush during Stop.
const shutdownFlushTimeout = 5 * time.Second

// Cycler runs one sync cycle. Satisfied by *sync.Engine.
type Cycler interface {
	SyncNow(ctx context.Context) (*syncpkg.Result, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Interval between periodic cycles.
	Interval time.Duration

	// AutoSync enables the periodic timer. Triggers and the shutdown
	// flush run regardless.
	AutoSync bool
}

// Scheduler owns the background sync goroutine.
type Scheduler struct {
	engine   Cycler
	interval time.Duration
	autoSync bool

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

// New creates a Scheduler.
func New(engine Cycler, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Scheduler{
		engine:    engine,
		interval:  cfg.Interval,
		autoSync:  cfg.AutoSync,
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the scheduling goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("sync scheduler started", logrus.Fields{
		"interval":  s.interval.String(),
		"auto_sync": s.autoSync,
	})
}

// Trigger requests an immediate cycle. If a cycle is already running or
// a trigger is already pending, the request coalesces into it.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// Stop cancels the timer, runs one final synchronous flush bounded by a
// short deadline, and waits for the goroutine to exit. The caller closes
// the store afterwards; anything still queued survives the restart.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if _, err := s.engine.SyncNow(ctx); err != nil && err != syncpkg.ErrSyncBusy {
		logging.Warn("final flush did not complete", logrus.Fields{"reason": err.Error()})
	}

	logging.Info("sync scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.autoSync {
				continue
			}
			s.runCycle(ctx)
		case <-s.triggerCh:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	result, err := s.engine.SyncNow(cycleCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncBusy) {
			logging.Debug("sync already in progress, skipping tick")
			return
		}
		logging.Debug("sync cycle ended with error", logrus.Fields{"reason": err.Error()})
		return
	}
	if result.Sent > 0 {
		logging.Debug("sync cycle completed", logrus.Fields{
			"sent":     result.Sent,
			"duration": result.Duration.String(),
		})
	}
}
