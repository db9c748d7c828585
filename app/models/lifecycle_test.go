package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		allowed  bool
	}{
		{EventStatusDraft, EventStatusPublished, true},
		{EventStatusDraft, EventStatusOnSale, false},
		{EventStatusPublished, EventStatusOnSale, true},
		{EventStatusPublished, EventStatusClosed, true},
		{EventStatusOnSale, EventStatusClosed, true},
		{EventStatusOnSale, EventStatusDraft, false},
		{EventStatusClosed, EventStatusOnSale, false},
	}
	for _, tt := range tests {
		e := &Event{Status: tt.from}
		assert.Equal(t, tt.allowed, e.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusRefunded, false},
		{OrderStatusPaid, OrderStatusRefunded, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusRefunded, OrderStatusPaid, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
	}
	for _, tt := range tests {
		o := &Order{Status: tt.from}
		assert.Equal(t, tt.allowed, o.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTicketTypeAvailable(t *testing.T) {
	total := 10
	tt := &TicketType{TotalInventory: &total, Sold: 4}

	assert.False(t, tt.Unlimited())
	assert.Equal(t, int64(6), tt.Available(0))
	assert.Equal(t, int64(1), tt.Available(5))
	assert.Equal(t, int64(0), tt.Available(9))

	unlimited := &TicketType{Sold: 1000}
	assert.True(t, unlimited.Unlimited())
	assert.Equal(t, int64(-1), unlimited.Available(50))
}

func TestScanLogIsAppendOnly(t *testing.T) {
	entry := &ScanLog{Result: "admitted"}
	assert.ErrorIs(t, entry.BeforeUpdate(nil), ErrScanLogAppendOnly)
	assert.ErrorIs(t, entry.BeforeDelete(nil), ErrScanLogAppendOnly)
}

func TestBeforeCreateAssignsUUID(t *testing.T) {
	e := &Event{}
	assert.NoError(t, e.BeforeCreate(nil))
	assert.Len(t, e.UUID, 36)
	assert.Equal(t, EventStatusDraft, e.Status)

	o := &Order{UUID: "keep-me"}
	assert.NoError(t, o.BeforeCreate(nil))
	assert.Equal(t, "keep-me", o.UUID)
}
