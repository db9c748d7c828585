package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/security"
	"github.com/ManuelReschke/TicketFox/internal/pkg/shortener"
	"github.com/ManuelReschke/TicketFox/internal/pkg/validation"
)

const (
	DefaultReservationTTL = 15 * time.Minute
	DefaultTxTimeout      = 5 * time.Second

	referenceLength       = 10
	sweepReservationBatch = 5000
	txAttempts            = 3
)

type Options struct {
	ReservationTTL time.Duration
	TxTimeout      time.Duration
	Now            func() time.Time
}

// Service creates orders against finite inventory. Every operation is one
// database transaction; ticket type rows are locked in id order.
type Service struct {
	repo Repository
	opts Options
}

// NewService creates an inventory service from an injected repository.
func NewService(repo Repository, opts Options) *Service {
	if opts.ReservationTTL <= 0 {
		opts.ReservationTTL = DefaultReservationTTL
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, opts: opts}
}

// NewServiceFromDB creates an inventory service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts Options) *Service {
	return NewService(NewRepository(db), opts)
}

// CreateOrder reserves every requested unit or nothing. On success the order
// is pending with one provisional ticket and one reservation per unit.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	in.Buyer.Name = strings.TrimSpace(in.Buyer.Name)
	in.Buyer.Email = strings.ToLower(strings.TrimSpace(in.Buyer.Email))
	if fields := validation.Struct(in); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}
	items := mergeLineItems(in.LineItems)
	ids := make([]uint, len(items))
	for i, item := range items {
		ids[i] = item.TicketTypeID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var result *CreateOrderResult
	err := database.RetryTransient(ctx, txAttempts, func() error {
		return s.repo.Transaction(ctx, func(tx Tx) error {
			var err error
			result, err = s.reserve(tx, in, items, ids)
			return err
		})
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) || errors.Is(err, ErrInventoryExhausted) ||
			errors.Is(err, ErrEventNotOnSale) || errors.Is(err, ErrEventNotFound) {
			return nil, err
		}
		log.Errorf("[Inventory] CreateOrder for event %d failed: %v", in.EventID, err)
		return nil, fmt.Errorf("create order: %w", err)
	}

	log.Infof("[Inventory] Order %s reserved %d tickets for event %d until %s",
		result.Reference, len(result.TicketIDs), in.EventID, result.ExpiresAt.Format(time.RFC3339))
	return result, nil
}

func (s *Service) reserve(tx Tx, in CreateOrderInput, items []LineItem, ids []uint) (*CreateOrderResult, error) {
	now := s.opts.Now()

	event, err := tx.FindEvent(in.EventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	if !event.IsOnSale() {
		return nil, ErrEventNotOnSale
	}

	types, err := tx.LockTicketTypes(event.ID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.TicketType, len(types))
	for i := range types {
		byID[types[i].ID] = &types[i]
	}
	active, err := tx.CountActiveReservations(ids, now, 0)
	if err != nil {
		return nil, err
	}

	var total int64
	currency := ""
	for _, item := range items {
		tt, ok := byID[item.TicketTypeID]
		if !ok {
			return nil, newValidationError("lineItems.ticketTypeId", "exists", fmt.Sprint(item.TicketTypeID))
		}
		if currency == "" {
			currency = tt.Currency
		} else if currency != tt.Currency {
			return nil, newValidationError("lineItems.ticketTypeId", "same_currency", tt.Currency)
		}
		if item.Quantity > tt.MaxPerOrder {
			return nil, newValidationError("lineItems.quantity", "max_per_order", fmt.Sprint(tt.MaxPerOrder))
		}
		if !tt.Unlimited() {
			if avail := tt.Available(active[tt.ID]); int64(item.Quantity) > avail {
				return nil, &ExhaustedError{TicketTypeID: tt.ID, Requested: item.Quantity, Available: avail}
			}
		}
		total += tt.PriceCents * int64(item.Quantity)
	}

	reference, err := shortener.GenerateReference(referenceLength)
	if err != nil {
		return nil, err
	}
	order := &models.Order{
		Reference:  reference,
		EventID:    event.ID,
		BuyerName:  in.Buyer.Name,
		BuyerEmail: in.Buyer.Email,
		Status:     models.OrderStatusPending,
		TotalCents: total,
		Currency:   currency,
		ExpiresAt:  now.Add(s.opts.ReservationTTL),
	}
	orderItems := make([]models.OrderItem, len(items))
	for i, item := range items {
		orderItems[i] = models.OrderItem{
			TicketTypeID:   item.TicketTypeID,
			Quantity:       item.Quantity,
			UnitPriceCents: byID[item.TicketTypeID].PriceCents,
		}
	}
	if err := tx.CreateOrder(order, orderItems); err != nil {
		return nil, err
	}

	var tickets []models.Ticket
	var reservations []models.Reservation
	for _, item := range items {
		for n := 0; n < item.Quantity; n++ {
			token, err := security.NewTicketToken()
			if err != nil {
				return nil, err
			}
			tickets = append(tickets, models.Ticket{
				OrderID:      order.ID,
				EventID:      event.ID,
				TicketTypeID: item.TicketTypeID,
				Token:        token,
				Status:       models.TicketStatusProvisional,
			})
			reservations = append(reservations, models.Reservation{
				OrderID:      order.ID,
				TicketTypeID: item.TicketTypeID,
				ExpiresAt:    order.ExpiresAt,
			})
		}
	}
	if err := tx.CreateTickets(tickets); err != nil {
		return nil, err
	}
	if err := tx.CreateReservations(reservations); err != nil {
		return nil, err
	}

	ticketIDs := make([]uint, len(tickets))
	for i := range tickets {
		ticketIDs[i] = tickets[i].ID
	}
	return &CreateOrderResult{
		OrderID:    order.ID,
		OrderUUID:  order.UUID,
		Reference:  order.Reference,
		TicketIDs:  ticketIDs,
		ExpiresAt:  order.ExpiresAt,
		TotalCents: total,
		Currency:   currency,
	}, nil
}

// Availability reports per ticket type capacity without taking locks. The
// numbers can be stale by the time the caller acts on them.
func (s *Service) Availability(ctx context.Context, eventUUID string) (*EventAvailability, error) {
	event, err := s.repo.FindEventByUUID(ctx, eventUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	types, err := s.repo.ListTicketTypes(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	ids := make([]uint, len(types))
	for i := range types {
		ids[i] = types[i].ID
	}
	active, err := s.repo.CountActiveReservations(ctx, ids, s.opts.Now())
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}

	out := &EventAvailability{EventID: event.ID, EventUUID: event.UUID, Status: event.Status}
	for i := range types {
		tt := &types[i]
		a := TypeAvailability{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			PriceCents:   tt.PriceCents,
			Currency:     tt.Currency,
			Unlimited:    tt.Unlimited(),
			Sold:         tt.Sold,
			Reserved:     active[tt.ID],
			Available:    tt.Available(active[tt.ID]),
		}
		if !tt.Unlimited() {
			a.Total = *tt.TotalInventory
		}
		out.TicketTypes = append(out.TicketTypes, a)
	}
	return out, nil
}

// CancelOrder releases a pending order and its reservations.
func (s *Service) CancelOrder(ctx context.Context, orderUUID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	err := s.repo.Transaction(ctx, func(tx Tx) error {
		order, err := tx.LockOrderByUUID(orderUUID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return ErrOrderNotPending
		}
		return ReleaseOrder(tx, order, s.opts.Now())
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderNotPending) {
			return err
		}
		return fmt.Errorf("cancel order: %w", err)
	}
	log.Infof("[Inventory] Order %s cancelled", orderUUID)
	return nil
}

// SweepExpired cancels up to limit pending orders whose reservations ran
// out and purges expired reservation rows. Orders locked by a concurrent
// payment are skipped and picked up by a later sweep.
func (s *Service) SweepExpired(ctx context.Context, limit int) (*SweepResult, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	result := &SweepResult{}
	err := s.repo.Transaction(ctx, func(tx Tx) error {
		now := s.opts.Now()
		orders, err := tx.LockExpiredPendingOrders(now, limit)
		if err != nil {
			return err
		}
		for i := range orders {
			if err := ReleaseOrder(tx, &orders[i], now); err != nil {
				return err
			}
		}
		deleted, err := tx.DeleteExpiredReservations(now, sweepReservationBatch)
		if err != nil {
			return err
		}
		result.OrdersCancelled = len(orders)
		result.ReservationsDeleted = deleted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep expired reservations: %w", err)
	}
	if result.OrdersCancelled > 0 || result.ReservationsDeleted > 0 {
		log.Infof("[Inventory] Sweep cancelled %d orders, deleted %d expired reservations",
			result.OrdersCancelled, result.ReservationsDeleted)
	}
	return result, nil
}

// ReleaseOrder cancels a locked pending order: provisional tickets become
// cancelled and its reservations are deleted.
func ReleaseOrder(tx Tx, order *models.Order, now time.Time) error {
	if err := tx.UpdateOrderStatus(order, models.OrderStatusCancelled, now); err != nil {
		return err
	}
	if _, err := tx.SetOrderTicketsStatus(order.ID, models.TicketStatusProvisional, models.TicketStatusCancelled); err != nil {
		return err
	}
	return tx.DeleteOrderReservations(order.ID)
}

// mergeLineItems folds duplicate ticket types and sorts by id so locks are
// always taken in the same order.
func mergeLineItems(items []LineItem) []LineItem {
	qty := make(map[uint]int, len(items))
	for _, item := range items {
		qty[item.TicketTypeID] += item.Quantity
	}
	out := make([]LineItem, 0, len(qty))
	for id, q := range qty {
		out = append(out, LineItem{TicketTypeID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketTypeID < out[j].TicketTypeID })
	return out
}
