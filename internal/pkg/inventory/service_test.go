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
	"github.com/ManuelReschke/TicketFox/internal/pkg/memstore"
)

type memRepo struct {
	*memstore.Store
}

func (r memRepo) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return r.Run(ctx, func(tx *memstore.Tx) error { return fn(tx) })
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *memstore.Store
	svc   *Service
	clock *testClock
	event models.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clock := &testClock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	svc := NewService(memRepo{store}, Options{ReservationTTL: 15 * time.Minute, Now: clock.Now})
	event := store.AddEvent(models.Event{Name: "Night Market", Status: models.EventStatusOnSale, StartsAt: clock.now.Add(48 * time.Hour)})
	return &fixture{store: store, svc: svc, clock: clock, event: event}
}

func (f *fixture) addType(total *int, price int64) models.TicketType {
	return f.store.AddTicketType(models.TicketType{EventID: f.event.ID, Name: "GA", PriceCents: price, TotalInventory: total, MaxPerOrder: 50})
}

func (f *fixture) input(items ...LineItem) CreateOrderInput {
	return CreateOrderInput{
		EventID:   f.event.ID,
		LineItems: items,
		Buyer:     Buyer{Name: "Ada Lovelace", Email: "Ada@Example.com "},
	}
}

func intPtr(v int) *int { return &v }

func TestCreateOrderReservesEveryUnit(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(10), 2500)

	res, err := f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: 3}))
	require.NoError(t, err)

	assert.Len(t, res.TicketIDs, 3)
	assert.Equal(t, int64(7500), res.TotalCents)
	assert.Equal(t, "EUR", res.Currency)
	assert.Len(t, res.Reference, referenceLength)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), res.ExpiresAt)

	st := f.store.Snapshot()
	order := st.Orders[res.OrderID]
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "ada@example.com", order.BuyerEmail)
	for _, id := range res.TicketIDs {
		tk := st.Tickets[id]
		assert.Equal(t, models.TicketStatusProvisional, tk.Status)
		assert.Equal(t, res.OrderID, tk.OrderID)
		assert.Len(t, tk.Token, 32)
		assert.Empty(t, tk.Signature)
	}
	assert.Len(t, st.Reservations, 3)
	assert.Equal(t, 0, st.TicketTypes[tt.ID].Sold, "sold only moves on payment")
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(10), 1000)

	tests := []struct {
		name  string
		input CreateOrderInput
		field string
	}{
		{"missing event", CreateOrderInput{LineItems: []LineItem{{TicketTypeID: tt.ID, Quantity: 1}}, Buyer: Buyer{Name: "Ada", Email: "a@example.com"}}, "eventId"},
		{"no line items", CreateOrderInput{EventID: f.event.ID, Buyer: Buyer{Name: "Ada", Email: "a@example.com"}}, "lineItems"},
		{"zero quantity", f.input(LineItem{TicketTypeID: tt.ID, Quantity: 0}), "lineItems[0].quantity"},
		{"quantity too large", f.input(LineItem{TicketTypeID: tt.ID, Quantity: 51}), "lineItems[0].quantity"},
		{"bad email", CreateOrderInput{EventID: f.event.ID, LineItems: []LineItem{{TicketTypeID: tt.ID, Quantity: 1}}, Buyer: Buyer{Name: "Ada", Email: "nope"}}, "buyer.email"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), tc.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			fields := make([]string, 0, len(verr.Fields))
			for _, fe := range verr.Fields {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
	assert.Empty(t, f.store.Snapshot().Orders)
}

func TestCreateOrderUnknownTicketType(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddEvent(models.Event{Name: "Other", Status: models.EventStatusOnSale})
	foreign := f.store.AddTicketType(models.TicketType{EventID: other.ID, Name: "VIP", TotalInventory: intPtr(5)})

	_, err := f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: foreign.ID, Quantity: 1}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "exists", verr.Fields[0].Rule)
}

func TestCreateOrderEventNotOnSale(t *testing.T) {
	f := newFixture(t)
	draft := f.store.AddEvent(models.Event{Name: "Soon", Status: models.EventStatusPublished})
	tt := f.store.AddTicketType(models.TicketType{EventID: draft.ID, Name: "GA", TotalInventory: intPtr(5)})

	in := f.input(LineItem{TicketTypeID: tt.ID, Quantity: 1})
	in.EventID = draft.ID
	_, err := f.svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrEventNotOnSale)

	in.EventID = 9999
	_, err = f.svc.CreateOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	plenty := f.addType(intPtr(100), 1000)
	scarce := f.addType(intPtr(1), 5000)

	_, err := f.svc.CreateOrder(context.Background(), f.input(
		LineItem{TicketTypeID: plenty.ID, Quantity: 4},
		LineItem{TicketTypeID: scarce.ID, Quantity: 2},
	))
	require.ErrorIs(t, err, ErrInventoryExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, scarce.ID, exhausted.TicketTypeID)
	assert.Equal(t, int64(1), exhausted.Available)

	st := f.store.Snapshot()
	assert.Empty(t, st.Orders)
	assert.Empty(t, st.Tickets)
	assert.Empty(t, st.Reservations)
}

func TestCreateOrderMaxPerOrder(t *testing.T) {
	f := newFixture(t)
	tt := f.store.AddTicketType(models.TicketType{EventID: f.event.ID, Name: "GA", TotalInventory: intPtr(100), MaxPerOrder: 4})

	_, err := f.svc.CreateOrder(context.Background(), f.input(
		LineItem{TicketTypeID: tt.ID, Quantity: 3},
		LineItem{TicketTypeID: tt.ID, Quantity: 2},
	))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "max_per_order", verr.Fields[0].Rule)
}

func TestCreateOrderMergesDuplicateLineItems(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(5), 100)

	res, err := f.svc.CreateOrder(context.Background(), f.input(
		LineItem{TicketTypeID: tt.ID, Quantity: 2},
		LineItem{TicketTypeID: tt.ID, Quantity: 3},
	))
	require.NoError(t, err)
	assert.Len(t, res.TicketIDs, 5)

	st := f.store.Snapshot()
	require.Len(t, st.OrderItems, 1)
	for _, item := range st.OrderItems {
		assert.Equal(t, 5, item.Quantity)
	}
}

func TestCreateOrderUnlimitedType(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(nil, 0)

	for i := 0; i < 5; i++ {
		res, err := f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: 50}))
		require.NoError(t, err)
		assert.Len(t, res.TicketIDs, 50)
	}
	assert.Len(t, f.store.Snapshot().Reservations, 250)
}

func TestExpiredReservationsReturnCapacity(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(1), 100)

	_, err := f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: 1}))
	require.ErrorIs(t, err, ErrInventoryExhausted)

	f.clock.Advance(15*time.Minute + time.Second)

	_, err = f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: 1}))
	require.NoError(t, err)
}

func TestConcurrentCreateOrderNeverOversells(t *testing.T) {
	tests := []struct {
		name      string
		inventory int
		buyers    int
		quantity  int
		wantWins  int
	}{
		{"last ticket", 1, 50, 1, 1},
		{"small batch", 10, 40, 3, 3},
		{"exact fit", 12, 30, 4, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tt := f.addType(intPtr(tc.inventory), 100)

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins, exhausted := 0, 0
			start := make(chan struct{})
			for i := 0; i < tc.buyers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: tc.quantity}))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, ErrInventoryExhausted):
						exhausted++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, tc.wantWins, wins)
			assert.Equal(t, tc.buyers-tc.wantWins, exhausted)

			st := f.store.Snapshot()
			assert.LessOrEqual(t, len(st.Reservations), tc.inventory)
			assert.Len(t, st.Tickets, tc.wantWins*tc.quantity)
		})
	}
}

func TestCancelOrderReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(2), 100)
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, f.input(LineItem{TicketTypeID: tt.ID, Quantity: 2}))
	require.NoError(t, err)

	require.NoError(t, f.svc.CancelOrder(ctx, res.OrderUUID))

	st := f.store.Snapshot()
	assert.Equal(t, models.OrderStatusCancelled, st.Orders[res.OrderID].Status)
	assert.NotNil(t, st.Orders[res.OrderID].CancelledAt)
	for _, id := range res.TicketIDs {
		assert.Equal(t, models.TicketStatusCancelled, st.Tickets[id].Status)
	}
	assert.Empty(t, st.Reservations)

	_, err = f.svc.CreateOrder(ctx, f.input(LineItem{TicketTypeID: tt.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelOrder(ctx, res.OrderUUID), ErrOrderNotPending)
	assert.ErrorIs(t, f.svc.CancelOrder(ctx, "missing"), ErrOrderNotFound)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(10), 100)
	ctx := context.Background()

	old, err := f.svc.CreateOrder(ctx, f.input(LineItem{TicketTypeID: tt.ID, Quantity: 2}))
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	fresh, err := f.svc.CreateOrder(ctx, f.input(LineItem{TicketTypeID: tt.ID, Quantity: 1}))
	require.NoError(t, err)
	f.clock.Advance(6 * time.Minute)

	res, err := f.svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersCancelled)

	st := f.store.Snapshot()
	assert.Equal(t, models.OrderStatusCancelled, st.Orders[old.OrderID].Status)
	assert.Equal(t, models.OrderStatusPending, st.Orders[fresh.OrderID].Status)
	assert.Len(t, st.Reservations, 1)

	again, err := f.svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, again.OrdersCancelled)
}

func TestAvailabilitySnapshot(t *testing.T) {
	f := newFixture(t)
	limited := f.addType(intPtr(10), 100)
	unlimited := f.addType(nil, 0)
	ctx := context.Background()

	f.store.Mutate(func(st *memstore.State) {
		tt := st.TicketTypes[limited.ID]
		tt.Sold = 4
		st.TicketTypes[limited.ID] = tt
	})
	_, err := f.svc.CreateOrder(ctx, f.input(LineItem{TicketTypeID: limited.ID, Quantity: 3}))
	require.NoError(t, err)

	avail, err := f.svc.Availability(ctx, f.event.UUID)
	require.NoError(t, err)
	require.Len(t, avail.TicketTypes, 2)

	assert.Equal(t, TypeAvailability{
		TicketTypeID: limited.ID, Name: "GA", PriceCents: 100, Currency: "EUR",
		Total: 10, Sold: 4, Reserved: 3, Available: 3,
	}, avail.TicketTypes[0])
	assert.Equal(t, unlimited.ID, avail.TicketTypes[1].TicketTypeID)
	assert.True(t, avail.TicketTypes[1].Unlimited)
	assert.Equal(t, int64(-1), avail.TicketTypes[1].Available)

	f.clock.Advance(time.Hour)
	avail, err = f.svc.Availability(ctx, f.event.UUID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), avail.TicketTypes[0].Available)

	_, err = f.svc.Availability(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestStorageFailureLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	tt := f.addType(intPtr(10), 100)
	boom := errors.New("connection reset")
	f.store.Fail = func(op string) error {
		if op == "CreateReservations" {
			return boom
		}
		return nil
	}

	_, err := f.svc.CreateOrder(context.Background(), f.input(LineItem{TicketTypeID: tt.ID, Quantity: 2}))
	require.ErrorIs(t, err, boom)

	st := f.store.Snapshot()
	assert.Empty(t, st.Orders)
	assert.Empty(t, st.Tickets)
	assert.Empty(t, st.Reservations)
}
