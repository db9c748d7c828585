//go:build integration
// +build integration

package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database/dbtest"
)

func TestMySQLConcurrentCreateOrderNeverOversells(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	event := models.Event{OperatorID: 1, Name: "Warehouse Rave", StartsAt: time.Now().Add(24 * time.Hour), Status: models.EventStatusOnSale}
	require.NoError(t, db.Create(&event).Error)
	total := 5
	tt := models.TicketType{EventID: event.ID, Name: "GA", PriceCents: 3000, Currency: "EUR", TotalInventory: &total, MaxPerOrder: 10}
	require.NoError(t, db.Create(&tt).Error)

	svc := NewServiceFromDB(db, Options{TxTimeout: 10 * time.Second})

	const buyers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateOrder(ctx, CreateOrderInput{
				EventID:   event.ID,
				LineItems: []LineItem{{TicketTypeID: tt.ID, Quantity: 1}},
				Buyer:     Buyer{Name: "Load Tester", Email: "load@example.com"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInventoryExhausted), database.IsTransient(err):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, total, wins)

	var reservations int64
	require.NoError(t, db.Model(&models.Reservation{}).Where("ticket_type_id = ?", tt.ID).Count(&reservations).Error)
	assert.Equal(t, int64(total), reservations)

	var tickets int64
	require.NoError(t, db.Model(&models.Ticket{}).Where("ticket_type_id = ?", tt.ID).Count(&tickets).Error)
	assert.Equal(t, int64(total), tickets)
}

func TestMySQLSweepExpiredSkipsLockedOrders(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	event := models.Event{OperatorID: 1, Name: "Matinee", StartsAt: time.Now().Add(24 * time.Hour), Status: models.EventStatusOnSale}
	require.NoError(t, db.Create(&event).Error)
	total := 10
	tt := models.TicketType{EventID: event.ID, Name: "GA", Currency: "EUR", TotalInventory: &total, MaxPerOrder: 10}
	require.NoError(t, db.Create(&tt).Error)

	past := time.Now().UTC().Add(-time.Hour)
	svc := NewServiceFromDB(db, Options{Now: func() time.Time { return past }})
	res, err := svc.CreateOrder(ctx, CreateOrderInput{
		EventID:   event.ID,
		LineItems: []LineItem{{TicketTypeID: tt.ID, Quantity: 2}},
		Buyer:     Buyer{Name: "Late Buyer", Email: "late@example.com"},
	})
	require.NoError(t, err)

	sweeper := NewServiceFromDB(db, Options{})
	swept, err := sweeper.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.OrdersCancelled)

	var order models.Order
	require.NoError(t, db.First(&order, res.OrderID).Error)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	var remaining int64
	require.NoError(t, db.Model(&models.Reservation{}).Count(&remaining).Error)
	assert.Zero(t, remaining)
}
