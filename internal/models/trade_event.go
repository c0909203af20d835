// Package models provides data model definitions for the tradewatch agent.
package models

import (
	"fmt"
	"time"
)

// Offer direction values accepted by the collector.
const (
	OfferTypeBuy  = "buy"
	OfferTypeSell = "sell"
)

// Trade status values accepted by the collector.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// TradeEvent represents one observed trade offer change. It is immutable
// once created; ID is the delivery idempotency key and stays stable across
// retransmissions of the same event.
type TradeEvent struct {
	ID                string `json:"eventId"`
	ItemID            int    `json:"itemId"`
	ItemName          string `json:"itemName"`
	OfferType         string `json:"offerType"`
	Price             int    `json:"price"`
	Quantity          int    `json:"quantity"`
	FilledQuantity    int    `json:"filledQuantity"`
	RemainingQuantity int    `json:"remainingQuantity"`
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
}

// Validate checks the event for internal consistency before it is queued.
func (e *TradeEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("trade event missing id")
	}
	if e.OfferType != OfferTypeBuy && e.OfferType != OfferTypeSell {
		return fmt.Errorf("invalid offer type %q", e.OfferType)
	}
	switch e.Status {
	case StatusPending, StatusCompleted, StatusCanceled:
	default:
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if e.FilledQuantity+e.RemainingQuantity != e.Quantity {
		return fmt.Errorf("quantity mismatch: filled %d + remaining %d != total %d",
			e.FilledQuantity, e.RemainingQuantity, e.Quantity)
	}
	return nil
}

// Time returns the event timestamp as time.Time.
// Returns the zero time if the timestamp does not parse.
func (e *TradeEvent) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Completed reports whether the offer reached a terminal filled state.
func (e *TradeEvent) Completed() bool {
	return e.Status == StatusCompleted
}
