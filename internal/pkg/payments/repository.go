package payments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
)

// Tx extends the inventory transaction with the ledger, ticket issuance and
// the notification outbox.
type Tx interface {
	inventory.Tx
	FindOrderItems(orderID uint) ([]models.OrderItem, error)
	FindOrderTickets(orderID uint) ([]models.Ticket, error)
	IssueTicket(ticket *models.Ticket, signature string, at time.Time) error
	AdjustSold(ticketTypeID uint, delta int) error
	SetPaymentReference(orderID uint, reference string) error
	InsertProcessedEvent(event *models.ProcessedEvent) (bool, error)
	RecordOutcome(id uint, outcome string, orderID *uint) error
	CreateNotification(orderID uint, notificationType, recipient string) (bool, error)
}

type Repository interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	PurgeProcessedEvents(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{GormTx: inventory.GormTx{DB: tx}})
	}, inventory.TxOptions)
}

func (r *gormRepository) PurgeProcessedEvents(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return models.PurgeProcessedEvents(r.db.WithContext(ctx), cutoff, limit)
}

type gormTx struct {
	inventory.GormTx
}

func (t *gormTx) FindOrderItems(orderID uint) ([]models.OrderItem, error) {
	return models.FindOrderItems(t.DB, orderID)
}

func (t *gormTx) FindOrderTickets(orderID uint) ([]models.Ticket, error) {
	return models.FindOrderTickets(t.DB, orderID)
}

func (t *gormTx) IssueTicket(ticket *models.Ticket, signature string, at time.Time) error {
	return models.IssueTicket(t.DB, ticket, signature, at)
}

func (t *gormTx) AdjustSold(ticketTypeID uint, delta int) error {
	return models.AdjustSold(t.DB, ticketTypeID, delta)
}

func (t *gormTx) SetPaymentReference(orderID uint, reference string) error {
	return models.SetOrderPaymentReference(t.DB, orderID, reference)
}

func (t *gormTx) InsertProcessedEvent(event *models.ProcessedEvent) (bool, error) {
	return models.InsertProcessedEventIfAbsent(t.DB, event)
}

func (t *gormTx) RecordOutcome(id uint, outcome string, orderID *uint) error {
	return models.RecordProcessedEventOutcome(t.DB, id, outcome, orderID)
}

func (t *gormTx) CreateNotification(orderID uint, notificationType, recipient string) (bool, error) {
	return models.CreateNotificationOnce(t.DB, orderID, notificationType, recipient)
}
