package jobqueue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

type gormOutbox struct {
	db *gorm.DB
}

// NewOutbox reads the notifications table written by the payment gateway.
func NewOutbox(db *gorm.DB) Outbox {
	return &gormOutbox{db: db}
}

func (o *gormOutbox) Claim(ctx context.Context, limit int) ([]models.Notification, error) {
	return models.ClaimPendingNotifications(o.db.WithContext(ctx), limit)
}

func (o *gormOutbox) Requeue(ctx context.Context, id uint) error {
	return models.RequeueNotification(o.db.WithContext(ctx), id)
}

func (o *gormOutbox) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return models.RequeueStaleNotifications(o.db.WithContext(ctx), cutoff)
}
