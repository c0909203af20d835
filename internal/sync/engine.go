// Package sync implements the batching delivery engine for queued trade
// events. The durable queue is the source of truth: an event counts as
// queued only once its row is committed, and delivery is at-least-once
// with the event id as the collector-side deduplication key.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradewatch/agent/internal/api"
	"github.com/tradewatch/agent/internal/auth"
	"github.com/tradewatch/agent/internal/db"
	apperrors "github.com/tradewatch/agent/internal/errors"
	"github.com/tradewatch/agent/internal/logging"
	"github.com/tradewatch/agent/internal/models"
	"github.com/tradewatch/agent/internal/sync/queue"
)

const (
	// backoffBase is the delay after the first failed delivery attempt.
	backoffBase = 30 * time.Second

	// backoffCap bounds the exponential backoff at the fifth step
	// (30s, 60s, 120s, 240s, 480s, then flat).
	backoffCap = 480 * time.Second

	// rateLimitCooldown is the fixed hold-off after a 429 response.
	rateLimitCooldown = 60 * time.Second

	// overflowCapacity bounds the in-memory fallback buffer.
	overflowCapacity = 1000
)

// ErrSyncBusy is returned when a cycle is requested while one is running.
var ErrSyncBusy = apperrors.New(apperrors.ErrSyncBusy, "sync cycle already in progress")

// Submitter sends one batch to the collector. Satisfied by *api.Client.
type Submitter interface {
	SubmitTrades(ctx context.Context, token string, req *api.SubmitRequest) (*api.SubmitResponse, error)
}

// Config holds engine configuration.
type Config struct {
	// ClientID is the process-stable agent identifier sent with every batch.
	ClientID string

	// Username optionally names the in-game account trades belong to.
	Username string

	// BatchSize caps how many due entries one transmission carries.
	BatchSize int

	// Retention is the maximum age of a queue entry before it is purged.
	Retention time.Duration
}

// Engine merges freshly observed events with the durable queue, forms
// batches, and resolves delivery outcomes into per-entry retry state.
type Engine struct {
	store    *db.Store
	client   Submitter
	session  *auth.Manager
	reporter Reporter
	cfg      Config

	overflow *queue.Buffer
	trigger  func()

	mu                  sync.Mutex
	running             bool
	consecutiveFailures int
	lastSync            *time.Time
	lastErr             error
}

// NewEngine creates an Engine. reporter must not be nil; use LogReporter
// for a headless agent.
func NewEngine(store *db.Store, client Submitter, session *auth.Manager, reporter Reporter, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	return &Engine{
		store:    store,
		client:   client,
		session:  session,
		reporter: reporter,
		cfg:      cfg,
		overflow: queue.NewBuffer(overflowCapacity),
	}
}

// SetTrigger installs the out-of-band cycle trigger, normally the
// scheduler's. Must be set before ingestion starts.
func (e *Engine) SetTrigger(trigger func()) {
	e.trigger = trigger
}

// Enqueue validates and durably persists one observed event. It returns
// only after the row is committed; on storage failure the event is parked
// in the transient overflow buffer, the failure is reported, and the
// error is returned so the caller knows durability was not reached.
// Completed trades request an immediate sync cycle.
func (e *Engine) Enqueue(ev *models.TradeEvent) error {
	if err := ev.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "rejecting trade event", err)
	}

	if err := e.store.Append(ev); err != nil {
		e.reporter.StorageFailure(err)
		if addErr := e.overflow.Add(ev); addErr != nil {
			logging.Error("trade event lost, overflow buffer full", addErr,
				logrus.Fields{"event_id": ev.ID})
		}
		return err
	}

	logging.Debug("trade queued", logrus.Fields{
		"event_id": ev.ID,
		"item":     ev.ItemName,
		"offer":    ev.OfferType,
		"status":   ev.Status,
	})

	if ev.Completed() && e.trigger != nil {
		e.trigger()
	}
	return nil
}

// Result summarizes one sync cycle.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Sent      int
	Pending   int
}

// SyncNow runs one delivery cycle: drain, gate, select, transmit,
// resolve. Cycles are non-reentrant; a concurrent call returns
// ErrSyncBusy and the queued events wait for the running cycle.
func (e *Engine) SyncNow(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrSyncBusy
	}
	e.running = true
	e.mu.Unlock()

	result := &Result{StartTime: time.Now()}
	err := e.runCycle(ctx, result)

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.running = false
	e.lastErr = err
	if err == nil {
		e.lastSync = &result.EndTime
	}
	e.mu.Unlock()

	return result, err
}

func (e *Engine) runCycle(ctx context.Context, result *Result) error {
	// Drain: retry durable persistence for parked events so nothing is
	// lost between "observed" and "durably queued".
	e.drainOverflow()

	// Bound queue growth from permanently rejected events.
	if purged, err := e.store.PurgeOlderThan(e.cfg.Retention); err != nil {
		logging.Error("failed to purge old trades", err)
	} else if purged > 0 {
		logging.Info("purged old pending trades", logrus.Fields{"count": purged})
	}

	// Gate: ensure a usable token. A refresh failure with the previous
	// token intact is not fatal for this cycle; an unauthenticated
	// session is.
	if err := e.session.RefreshIfNeeded(ctx); err != nil {
		logging.Warn("token refresh failed", logrus.Fields{"reason": err.Error()})
	}
	if !e.session.IsAuthenticated() {
		pending, err := e.store.Count()
		if err != nil {
			return err
		}
		result.Pending = pending
		if pending > 0 {
			e.reporter.SyncQueuedOffline(pending)
		}
		return nil
	}

	// Select: oldest due entries first, one batch.
	now := time.Now()
	entries, err := e.store.DueEntries(now)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	batch := entries
	if len(batch) > e.cfg.BatchSize {
		batch = batch[:e.cfg.BatchSize]
	}

	trades := make([]models.TradeEvent, 0, len(batch))
	for _, entry := range batch {
		ev, err := entry.Event()
		if err != nil {
			// Undecodable rows cannot be sent; retention will reap them.
			logging.Error("skipping corrupt queue entry", err,
				logrus.Fields{"event_id": entry.EventID})
			continue
		}
		trades = append(trades, *ev)
	}
	if len(trades) == 0 {
		return nil
	}

	logging.Info("syncing trades", logrus.Fields{"count": len(trades)})

	// Transmit.
	_, submitErr := e.client.SubmitTrades(ctx, e.session.CurrentAccessToken(), &api.SubmitRequest{
		ClientID: e.cfg.ClientID,
		Username: e.cfg.Username,
		Trades:   trades,
	})

	// Resolve.
	return e.resolve(submitErr, batch, result)
}

func (e *Engine) resolve(submitErr error, batch []*models.QueueEntry, result *Result) error {
	now := time.Now()

	switch {
	case submitErr == nil:
		for _, entry := range batch {
			if err := e.store.MarkDelivered(entry.EventID); err != nil {
				logging.Error("failed to remove delivered trade", err,
					logrus.Fields{"event_id": entry.EventID})
			}
		}
		e.mu.Lock()
		e.consecutiveFailures = 0
		e.mu.Unlock()
		result.Sent = len(batch)
		e.reporter.SyncSucceeded(len(batch))
		return nil

	case apperrors.Is(submitErr, apperrors.ErrUnauthorized):
		// Entries stay queued; they go out on the next cycle after
		// re-authentication. The manager clears the session and notifies.
		e.session.HandleUnauthorized()
		return submitErr

	case apperrors.Is(submitErr, apperrors.ErrRateLimited):
		// Fixed cooldown, retry counts untouched: throttling is not a
		// failure of these entries.
		next := now.Add(rateLimitCooldown)
		for _, entry := range batch {
			if err := e.store.MarkFailed(entry.EventID, entry.RetryCount, "rate limited", &next); err != nil {
				logging.Error("failed to schedule rate-limit retry", err,
					logrus.Fields{"event_id": entry.EventID})
			}
		}
		e.reporter.RateLimited(int(rateLimitCooldown.Seconds()))
		return submitErr

	case apperrors.Is(submitErr, apperrors.ErrTransport):
		consecutive := e.recordFailure(submitErr, batch, now)
		e.reporter.ConnectivityError(consecutive)
		return submitErr

	default:
		consecutive := e.recordFailure(submitErr, batch, now)
		e.reporter.ServerError(apperrors.Status(submitErr), consecutive)
		return submitErr
	}
}

// recordFailure applies per-entry exponential backoff and bumps the
// shared consecutive-failure counter that drives escalated reporting.
func (e *Engine) recordFailure(submitErr error, batch []*models.QueueEntry, now time.Time) int {
	e.mu.Lock()
	e.consecutiveFailures++
	consecutive := e.consecutiveFailures
	e.mu.Unlock()

	for _, entry := range batch {
		retryCount := entry.RetryCount + 1
		next := now.Add(backoffDelay(retryCount))
		if err := e.store.MarkFailed(entry.EventID, retryCount, submitErr.Error(), &next); err != nil {
			logging.Error("failed to record retry info", err,
				logrus.Fields{"event_id": entry.EventID})
		}
	}
	return consecutive
}

// backoffDelay returns the capped exponential delay for the given attempt
// count (1-based): 30s, 60s, 120s, 240s, 480s, then flat at the cap.
func backoffDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	step := retryCount - 1
	if step > 4 {
		step = 4
	}
	delay := backoffBase << uint(step)
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

func (e *Engine) drainOverflow() {
	parked := e.overflow.Drain()
	for _, ev := range parked {
		if err := e.store.Append(ev); err != nil {
			// Still failing; park again for the next cycle.
			if addErr := e.overflow.Add(ev); addErr != nil {
				logging.Error("trade event lost, overflow buffer full", addErr,
					logrus.Fields{"event_id": ev.ID})
			}
		}
	}
	if len(parked) > 0 {
		logging.Info("drained overflow buffer", logrus.Fields{
			"drained":   len(parked),
			"remaining": e.overflow.Len(),
		})
	}
}

// PendingCount returns durable plus parked events awaiting delivery.
func (e *Engine) PendingCount() int {
	count, err := e.store.Count()
	if err != nil {
		logging.Error("failed to count pending trades", err)
	}
	return count + e.overflow.Len()
}

// LastSync returns the end time of the last successful cycle.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the error of the most recent cycle, nil if it
// succeeded.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// ConsecutiveFailures returns the shared run of failed cycles.
func (e *Engine) ConsecutiveFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consecutiveFailures
}

// ResetFailures clears the consecutive-failure counter, used when the
// user asks for a manual retry.
func (e *Engine) ResetFailures() {
	e.mu.Lock()
	e.consecutiveFailures = 0
	e.mu.Unlock()
}
