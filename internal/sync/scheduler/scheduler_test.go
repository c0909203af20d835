package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncpkg "github.com/tradewatch/agent/internal/sync"
)

type countingCycler struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
	ran   chan struct{}
}

func (c *countingCycler) SyncNow(ctx context.Context) (*syncpkg.Result, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.ran != nil {
		select {
		case c.ran <- struct{}{}:
		default:
		}
	}
	return &syncpkg.Result{}, nil
}

func (c *countingCycler) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestTriggerRunsCycle(t *testing.T) {
	cycler := &countingCycler{ran: make(chan struct{}, 1)}
	s := New(cycler, Config{Interval: time.Hour, AutoSync: false})
	s.Start(context.Background())
	defer s.Stop()

	s.Trigger()
	select {
	case <-cycler.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not run a cycle")
	}
	assert.GreaterOrEqual(t, cycler.callCount(), 1)
}

func TestPeriodicTicksRunCycles(t *testing.T) {
	cycler := &countingCycler{ran: make(chan struct{}, 1)}
	s := New(cycler, Config{Interval: 20 * time.Millisecond, AutoSync: true})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-cycler.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not run a cycle")
	}
}

func TestAutoSyncOffSkipsTicks(t *testing.T) {
	cycler := &countingCycler{}
	s := New(cycler, Config{Interval: 10 * time.Millisecond, AutoSync: false})
	s.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, cycler.callCount(), "ticks are ignored with auto-sync off")

	s.Stop()
	// The shutdown flush still runs once.
	assert.Equal(t, 1, cycler.callCount())
}

func TestTriggersCoalesceWhileBusy(t *testing.T) {
	cycler := &countingCycler{block: make(chan struct{})}
	s := New(cycler, Config{Interval: time.Hour, AutoSync: false})
	s.Start(context.Background())

	// First trigger starts a cycle that blocks; the rest must collapse
	// into at most one pending run.
	s.Trigger()
	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 10; i++ {
		s.Trigger()
	}
	close(cycler.block)

	require.Eventually(t, func() bool {
		return cycler.callCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.LessOrEqual(t, cycler.callCount(), 3, "blocked cycle + one coalesced run + shutdown flush")
}

func TestStopRunsFinalFlush(t *testing.T) {
	cycler := &countingCycler{}
	s := New(cycler, Config{Interval: time.Hour, AutoSync: true})
	s.Start(context.Background())

	s.Stop()
	assert.Equal(t, 1, cycler.callCount(), "Stop flushes once before returning")

	// Stop is idempotent.
	s.Stop()
	assert.Equal(t, 1, cycler.callCount())
}

func TestStartTwiceIsNoOp(t *testing.T) {
	cycler := &countingCycler{}
	s := New(cycler, Config{Interval: time.Hour, AutoSync: false})
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	assert.Equal(t, 1, cycler.callCount())
}
