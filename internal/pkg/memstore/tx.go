package memstore

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// Tx operates on the transaction's private copy of the state.
type Tx struct {
	state *State
	fail  func(op string) error
}

func (t *Tx) check(op string) error {
	if t.fail != nil {
		return t.fail(op)
	}
	return nil
}

func (t *Tx) FindEvent(eventID uint) (*models.Event, error) {
	if err := t.check("FindEvent"); err != nil {
		return nil, err
	}
	e, ok := t.state.Events[eventID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (t *Tx) LockTicketTypes(eventID uint, ids []uint) ([]models.TicketType, error) {
	if err := t.check("LockTicketTypes"); err != nil {
		return nil, err
	}
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.TicketType
	for _, id := range sortedKeys(t.state.TicketTypes) {
		tt := t.state.TicketTypes[id]
		if want[id] && tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	return out, nil
}

func (t *Tx) CountActiveReservations(typeIDs []uint, now time.Time, excludeOrderID uint) (map[uint]int64, error) {
	if err := t.check("CountActiveReservations"); err != nil {
		return nil, err
	}
	return countActive(t.state, typeIDs, now, excludeOrderID), nil
}

func (t *Tx) CreateOrder(order *models.Order, items []models.OrderItem) error {
	if err := t.check("CreateOrder"); err != nil {
		return err
	}
	for _, o := range t.state.Orders {
		if o.Reference == order.Reference {
			return ErrDuplicate
		}
	}
	if err := order.BeforeCreate(nil); err != nil {
		return err
	}
	order.ID = t.state.nextID()
	order.CreatedAt = time.Now().UTC()
	stored := *order
	stored.Items, stored.Tickets = nil, nil
	t.state.Orders[order.ID] = stored
	for i := range items {
		items[i].ID = t.state.nextID()
		items[i].OrderID = order.ID
		t.state.OrderItems[items[i].ID] = items[i]
	}
	return nil
}

func (t *Tx) CreateTickets(tickets []models.Ticket) error {
	if err := t.check("CreateTickets"); err != nil {
		return err
	}
	tokens := make(map[string]bool, len(t.state.Tickets))
	for _, tk := range t.state.Tickets {
		tokens[tk.Token] = true
	}
	for i := range tickets {
		if tokens[tickets[i].Token] {
			return ErrDuplicate
		}
		tokens[tickets[i].Token] = true
		if err := tickets[i].BeforeCreate(nil); err != nil {
			return err
		}
		tickets[i].ID = t.state.nextID()
		t.state.Tickets[tickets[i].ID] = tickets[i]
	}
	return nil
}

func (t *Tx) CreateReservations(reservations []models.Reservation) error {
	if err := t.check("CreateReservations"); err != nil {
		return err
	}
	for i := range reservations {
		reservations[i].ID = t.state.nextID()
		t.state.Reservations[reservations[i].ID] = reservations[i]
	}
	return nil
}

func (t *Tx) LockOrderByUUID(orderUUID string) (*models.Order, error) {
	if err := t.check("LockOrderByUUID"); err != nil {
		return nil, err
	}
	for _, o := range t.state.Orders {
		if o.UUID == orderUUID {
			return &o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (t *Tx) LockExpiredPendingOrders(now time.Time, limit int) ([]models.Order, error) {
	if err := t.check("LockExpiredPendingOrders"); err != nil {
		return nil, err
	}
	var out []models.Order
	for _, id := range sortedKeys(t.state.Orders) {
		o := t.state.Orders[id]
		if o.Status == models.OrderStatusPending && !o.ExpiresAt.After(now) {
			out = append(out, o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (t *Tx) UpdateOrderStatus(order *models.Order, status string, at time.Time) error {
	if err := t.check("UpdateOrderStatus"); err != nil {
		return err
	}
	stored, ok := t.state.Orders[order.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	switch status {
	case models.OrderStatusPaid:
		order.PaidAt = &at
	case models.OrderStatusCancelled:
		order.CancelledAt = &at
	case models.OrderStatusRefunded:
		order.RefundedAt = &at
	}
	order.Status = status
	stored.Status = status
	stored.PaidAt, stored.CancelledAt, stored.RefundedAt = order.PaidAt, order.CancelledAt, order.RefundedAt
	if order.PaymentReference != "" {
		stored.PaymentReference = order.PaymentReference
	}
	t.state.Orders[order.ID] = stored
	return nil
}

func (t *Tx) SetOrderTicketsStatus(orderID uint, fromStatus, toStatus string) (int64, error) {
	if err := t.check("SetOrderTicketsStatus"); err != nil {
		return 0, err
	}
	var n int64
	for id, tk := range t.state.Tickets {
		if tk.OrderID == orderID && tk.Status == fromStatus {
			tk.Status = toStatus
			t.state.Tickets[id] = tk
			n++
		}
	}
	return n, nil
}

func (t *Tx) DeleteOrderReservations(orderID uint) error {
	if err := t.check("DeleteOrderReservations"); err != nil {
		return err
	}
	for id, r := range t.state.Reservations {
		if r.OrderID == orderID {
			delete(t.state.Reservations, id)
		}
	}
	return nil
}

func (t *Tx) DeleteExpiredReservations(now time.Time, limit int) (int64, error) {
	if err := t.check("DeleteExpiredReservations"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range sortedKeys(t.state.Reservations) {
		if int(n) >= limit {
			break
		}
		if !t.state.Reservations[id].ExpiresAt.After(now) {
			delete(t.state.Reservations, id)
			n++
		}
	}
	return n, nil
}

func (t *Tx) FindOrderItems(orderID uint) ([]models.OrderItem, error) {
	if err := t.check("FindOrderItems"); err != nil {
		return nil, err
	}
	var out []models.OrderItem
	for _, id := range sortedKeys(t.state.OrderItems) {
		if item := t.state.OrderItems[id]; item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (t *Tx) FindOrderTickets(orderID uint) ([]models.Ticket, error) {
	if err := t.check("FindOrderTickets"); err != nil {
		return nil, err
	}
	var out []models.Ticket
	for _, id := range sortedKeys(t.state.Tickets) {
		if tk := t.state.Tickets[id]; tk.OrderID == orderID {
			out = append(out, tk)
		}
	}
	return out, nil
}

func (t *Tx) IssueTicket(ticket *models.Ticket, signature string, at time.Time) error {
	if err := t.check("IssueTicket"); err != nil {
		return err
	}
	stored, ok := t.state.Tickets[ticket.ID]
	if !ok || stored.Status != models.TicketStatusProvisional {
		return gorm.ErrRecordNotFound
	}
	stored.Status = models.TicketStatusIssued
	stored.Signature = signature
	stored.IssuedAt = &at
	t.state.Tickets[ticket.ID] = stored
	*ticket = stored
	return nil
}

func (t *Tx) AdjustSold(ticketTypeID uint, delta int) error {
	if err := t.check("AdjustSold"); err != nil {
		return err
	}
	tt, ok := t.state.TicketTypes[ticketTypeID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tt.Sold += delta
	t.state.TicketTypes[ticketTypeID] = tt
	return nil
}

func (t *Tx) SetPaymentReference(orderID uint, reference string) error {
	if err := t.check("SetPaymentReference"); err != nil {
		return err
	}
	stored, ok := t.state.Orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.PaymentReference = reference
	t.state.Orders[orderID] = stored
	return nil
}

func (t *Tx) InsertProcessedEvent(event *models.ProcessedEvent) (bool, error) {
	if err := t.check("InsertProcessedEvent"); err != nil {
		return false, err
	}
	for _, pe := range t.state.ProcessedEvents {
		if pe.Provider == event.Provider && pe.ExternalEventID == event.ExternalEventID {
			return false, nil
		}
	}
	event.ID = t.state.nextID()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	t.state.ProcessedEvents[event.ID] = *event
	return true, nil
}

func (t *Tx) RecordOutcome(id uint, outcome string, orderID *uint) error {
	if err := t.check("RecordOutcome"); err != nil {
		return err
	}
	pe, ok := t.state.ProcessedEvents[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	pe.Outcome = outcome
	pe.OrderID = orderID
	t.state.ProcessedEvents[id] = pe
	return nil
}

func (t *Tx) CreateNotification(orderID uint, notificationType, recipient string) (bool, error) {
	if err := t.check("CreateNotification"); err != nil {
		return false, err
	}
	for _, n := range t.state.Notifications {
		if n.OrderID == orderID && n.Type == notificationType {
			return false, nil
		}
	}
	id := t.state.nextID()
	t.state.Notifications[id] = models.Notification{
		ID:        id,
		OrderID:   orderID,
		Type:      notificationType,
		Recipient: recipient,
		Status:    models.NotificationStatusPending,
	}
	return true, nil
}
