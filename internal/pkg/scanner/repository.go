package scanner

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
)

type Tx interface {
	FindTicketByToken(token string) (*models.Ticket, error)
	EventOperatorID(eventID uint) (uint, error)
	LockTicketNoWait(ticketID uint) (*models.Ticket, error)
	MarkTicketUsed(ticketID uint, usedAt time.Time, scannedBy, deviceID string) (int64, error)
	AppendScanLog(entry *models.ScanLog) error
}

type Repository interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	// AppendScanLog writes one entry in its own transaction.
	AppendScanLog(ctx context.Context, entry *models.ScanLog) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (r *gormRepository) AppendScanLog(ctx context.Context, entry *models.ScanLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) FindTicketByToken(token string) (*models.Ticket, error) {
	return models.FindTicketByToken(t.db, token)
}

func (t *gormTx) EventOperatorID(eventID uint) (uint, error) {
	return models.EventOperatorID(t.db, eventID)
}

func (t *gormTx) LockTicketNoWait(ticketID uint) (*models.Ticket, error) {
	ticket, err := models.LockTicketNoWait(t.db, ticketID)
	if database.IsLockNotAvailable(err) {
		return nil, ErrTicketLocked
	}
	return ticket, err
}

func (t *gormTx) MarkTicketUsed(ticketID uint, usedAt time.Time, scannedBy, deviceID string) (int64, error) {
	return models.MarkTicketUsed(t.db, ticketID, usedAt, scannedBy, deviceID)
}

func (t *gormTx) AppendScanLog(entry *models.ScanLog) error {
	return t.db.Create(entry).Error
}
