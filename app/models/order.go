package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusRefunded  = "refunded"
	OrderStatusCancelled = "cancelled"
)

var orderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusRefunded, OrderStatusCancelled},
}

type Order struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	UUID             string      `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	Reference        string      `gorm:"type:varchar(20);uniqueIndex;not null" json:"reference"`
	EventID          uint        `gorm:"index;not null" json:"event_id"`
	BuyerName        string      `gorm:"type:varchar(100);not null" json:"buyer_name"`
	BuyerEmail       string      `gorm:"type:varchar(191);not null;index" json:"buyer_email"`
	Status           string      `gorm:"type:varchar(20);not null;default:'pending';index:idx_orders_status_expires,priority:1" json:"status"`
	TotalCents       int64       `gorm:"not null;default:0" json:"total_cents"`
	Currency         string      `gorm:"type:char(3);not null;default:'EUR'" json:"currency"`
	ExpiresAt        time.Time   `gorm:"not null;index:idx_orders_status_expires,priority:2" json:"expires_at"`
	PaidAt           *time.Time  `json:"paid_at,omitempty"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time  `json:"refunded_at,omitempty"`
	PaymentReference string      `gorm:"type:varchar(191);default:''" json:"payment_reference,omitempty"`
	Items            []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Tickets          []Ticket    `gorm:"foreignKey:OrderID" json:"tickets,omitempty"`
	CreatedAt        time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderItem is one line of an order: quantity units of a ticket type at the
// price captured when the order was placed.
type OrderItem struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	OrderID        uint  `gorm:"index;not null" json:"order_id"`
	TicketTypeID   uint  `gorm:"index;not null" json:"ticket_type_id"`
	Quantity       int   `gorm:"not null" json:"quantity"`
	UnitPriceCents int64 `gorm:"not null" json:"unit_price_cents"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == "" {
		o.UUID = uuid.New().String()
	}
	return nil
}

func (o *Order) CanTransitionTo(status string) bool {
	for _, next := range orderTransitions[o.Status] {
		if next == status {
			return true
		}
	}
	return false
}

// LockOrderByUUID loads the order with a blocking row lock.
func LockOrderByUUID(db *gorm.DB, orderUUID string) (*Order, error) {
	var order Order
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", orderUUID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func FindOrderItems(db *gorm.DB, orderID uint) ([]OrderItem, error) {
	var items []OrderItem
	err := db.Where("order_id = ?", orderID).Order("ticket_type_id ASC").Find(&items).Error
	return items, err
}

// LockExpiredPendingOrders claims up to limit pending orders past their
// expiry. Rows locked by another transaction are skipped.
func LockExpiredPendingOrders(db *gorm.DB, now time.Time, limit int) ([]Order, error) {
	var orders []Order
	err := db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND expires_at <= ?", OrderStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// UpdateOrderStatus moves the order and stamps the matching timestamp.
// SetOrderPaymentReference stores the provider reference without a status
// change.
func SetOrderPaymentReference(db *gorm.DB, orderID uint, reference string) error {
	return db.Model(&Order{}).Where("id = ?", orderID).Update("payment_reference", reference).Error
}

func UpdateOrderStatus(db *gorm.DB, order *Order, status string, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	switch status {
	case OrderStatusPaid:
		updates["paid_at"] = at
		order.PaidAt = &at
	case OrderStatusCancelled:
		updates["cancelled_at"] = at
		order.CancelledAt = &at
	case OrderStatusRefunded:
		updates["refunded_at"] = at
		order.RefundedAt = &at
	}
	if order.PaymentReference != "" {
		updates["payment_reference"] = order.PaymentReference
	}
	order.Status = status
	return db.Model(&Order{}).Where("id = ?", order.ID).Updates(updates).Error
}
