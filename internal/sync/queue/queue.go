// Package queue provides the in-memory fallback buffer for events whose
// durable append failed. Events parked here are transient: the sync cycle
// drains the buffer back into the durable queue at the start of every
// cycle, and a process crash loses them. Durable persistence is always
// attempted first; this buffer only bridges storage hiccups.
package queue

import (
	"fmt"
	"sync"

	"github.com/tradewatch/agent/internal/models"
)

// Buffer is a bounded FIFO of trade events awaiting durable persistence.
type Buffer struct {
	mu      sync.Mutex
	events  []*models.TradeEvent
	maxSize int
}

// NewBuffer creates a Buffer holding at most maxSize events.
func NewBuffer(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

// Add parks an event. Returns an error when the buffer is full; the
// caller must surface that the event was lost rather than drop it
// silently.
func (b *Buffer) Add(ev *models.TradeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.maxSize {
		return fmt.Errorf("overflow buffer is full (max size: %d)", b.maxSize)
	}
	b.events = append(b.events, ev)
	return nil
}

// Drain removes and returns all parked events in arrival order.
func (b *Buffer) Drain() []*models.TradeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.events
	b.events = nil
	return events
}

// Len returns the number of parked events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
