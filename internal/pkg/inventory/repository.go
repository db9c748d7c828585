package inventory

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// Tx is the set of store operations available inside one transaction.
type Tx interface {
	FindEvent(eventID uint) (*models.Event, error)
	LockTicketTypes(eventID uint, ids []uint) ([]models.TicketType, error)
	CountActiveReservations(typeIDs []uint, now time.Time, excludeOrderID uint) (map[uint]int64, error)
	CreateOrder(order *models.Order, items []models.OrderItem) error
	CreateTickets(tickets []models.Ticket) error
	CreateReservations(reservations []models.Reservation) error
	LockOrderByUUID(orderUUID string) (*models.Order, error)
	LockExpiredPendingOrders(now time.Time, limit int) ([]models.Order, error)
	UpdateOrderStatus(order *models.Order, status string, at time.Time) error
	SetOrderTicketsStatus(orderID uint, fromStatus, toStatus string) (int64, error)
	DeleteOrderReservations(orderID uint) error
	DeleteExpiredReservations(now time.Time, limit int) (int64, error)
}

// Repository runs transactions and the lock-free reads.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	FindEventByUUID(ctx context.Context, eventUUID string) (*models.Event, error)
	ListTicketTypes(ctx context.Context, eventID uint) ([]models.TicketType, error)
	CountActiveReservations(ctx context.Context, typeIDs []uint, now time.Time) (map[uint]int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an inventory repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Transaction runs fn under READ COMMITTED. Reservation counts are plain
// reads taken after the ticket type locks; under REPEATABLE READ they would
// come from a snapshot older than the lock and miss concurrent orders.
func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormTx{DB: tx})
	}, TxOptions)
}

func (r *gormRepository) FindEventByUUID(ctx context.Context, eventUUID string) (*models.Event, error) {
	return models.FindEventByUUID(r.db.WithContext(ctx), eventUUID)
}

func (r *gormRepository) ListTicketTypes(ctx context.Context, eventID uint) ([]models.TicketType, error) {
	return models.ListTicketTypes(r.db.WithContext(ctx), eventID)
}

func (r *gormRepository) CountActiveReservations(ctx context.Context, typeIDs []uint, now time.Time) (map[uint]int64, error) {
	if len(typeIDs) == 0 {
		return map[uint]int64{}, nil
	}
	return models.CountActiveReservations(r.db.WithContext(ctx), typeIDs, now, 0)
}

// TxOptions is shared by every transaction that counts reservations.
var TxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// GormTx implements Tx on an open GORM transaction. Other packages embed it
// to extend the transaction with their own operations.
type GormTx struct {
	DB *gorm.DB
}

func (t *GormTx) FindEvent(eventID uint) (*models.Event, error) {
	var event models.Event
	if err := t.DB.First(&event, eventID).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (t *GormTx) LockTicketTypes(eventID uint, ids []uint) ([]models.TicketType, error) {
	return models.LockTicketTypes(t.DB, eventID, ids)
}

func (t *GormTx) CountActiveReservations(typeIDs []uint, now time.Time, excludeOrderID uint) (map[uint]int64, error) {
	return models.CountActiveReservations(t.DB, typeIDs, now, excludeOrderID)
}

func (t *GormTx) CreateOrder(order *models.Order, items []models.OrderItem) error {
	if err := t.DB.Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	return t.DB.Create(&items).Error
}

func (t *GormTx) CreateTickets(tickets []models.Ticket) error {
	return t.DB.CreateInBatches(&tickets, 200).Error
}

func (t *GormTx) CreateReservations(reservations []models.Reservation) error {
	return t.DB.CreateInBatches(&reservations, 200).Error
}

func (t *GormTx) LockOrderByUUID(orderUUID string) (*models.Order, error) {
	return models.LockOrderByUUID(t.DB, orderUUID)
}

func (t *GormTx) LockExpiredPendingOrders(now time.Time, limit int) ([]models.Order, error) {
	return models.LockExpiredPendingOrders(t.DB, now, limit)
}

func (t *GormTx) UpdateOrderStatus(order *models.Order, status string, at time.Time) error {
	return models.UpdateOrderStatus(t.DB, order, status, at)
}

func (t *GormTx) SetOrderTicketsStatus(orderID uint, fromStatus, toStatus string) (int64, error) {
	return models.SetOrderTicketsStatus(t.DB, orderID, fromStatus, toStatus)
}

func (t *GormTx) DeleteOrderReservations(orderID uint) error {
	return models.DeleteOrderReservations(t.DB, orderID)
}

func (t *GormTx) DeleteExpiredReservations(now time.Time, limit int) (int64, error) {
	return models.DeleteExpiredReservations(t.DB, now, limit)
}
