package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/agent/internal/models"
)

func testEvent(i int) *models.TradeEvent {
	return &models.TradeEvent{
		ID:        fmt.Sprintf("event-%d", i),
		OfferType: models.OfferTypeBuy,
		Status:    models.StatusPending,
	}
}

func TestAddAndDrainPreservesOrder(t *testing.T) {
	b := NewBuffer(10)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Add(testEvent(i)))
	}
	assert.Equal(t, 5, b.Len())

	drained := b.Drain()
	require.Len(t, drained, 5)
	for i, ev := range drained {
		assert.Equal(t, fmt.Sprintf("event-%d", i), ev.ID)
	}
	assert.Zero(t, b.Len())
}

func TestDrainEmptyBuffer(t *testing.T) {
	b := NewBuffer(10)
	assert.Empty(t, b.Drain())
}

func TestAddRejectsWhenFull(t *testing.T) {
	b := NewBuffer(2)
	require.NoError(t, b.Add(testEvent(0)))
	require.NoError(t, b.Add(testEvent(1)))

	err := b.Add(testEvent(2))
	require.Error(t, err, "a full buffer must refuse, not drop silently")
	assert.Equal(t, 2, b.Len())

	// Draining frees capacity again.
	b.Drain()
	assert.NoError(t, b.Add(testEvent(3)))
}
