package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	NotificationTypeOrderConfirmation = "order_confirmation"

	NotificationStatusPending = "pending"
	NotificationStatusQueued  = "queued"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Notification is an outbox row. The unique (order_id, type) key makes the
// payment transaction produce at most one email trigger per order.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	OrderID   uint       `gorm:"not null;index:ux_notifications_order_type,unique,priority:1" json:"order_id"`
	Type      string     `gorm:"type:varchar(50);not null;index:ux_notifications_order_type,unique,priority:2" json:"type" validate:"oneof=order_confirmation"`
	Recipient string     `gorm:"type:varchar(191);not null" json:"recipient"`
	Status    string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	QueuedAt  *time.Time `json:"queued_at,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateNotificationOnce inserts the outbox row unless one exists for the
// same order and type.
func CreateNotificationOnce(db *gorm.DB, orderID uint, notificationType, recipient string) (bool, error) {
	n := Notification{
		OrderID:   orderID,
		Type:      notificationType,
		Recipient: recipient,
		Status:    NotificationStatusPending,
	}
	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "type"}},
		DoNothing: true,
	}).Create(&n)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ClaimPendingNotifications marks up to limit pending rows as queued and
// returns them. Concurrent dispatchers skip each other's rows.
func ClaimPendingNotifications(db *gorm.DB, limit int) ([]Notification, error) {
	var claimed []Notification
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", NotificationStatusPending).
			Order("id ASC").
			Limit(limit).
			Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]uint, len(claimed))
		for i := range claimed {
			ids[i] = claimed[i].ID
		}
		now := time.Now().UTC()
		for i := range claimed {
			claimed[i].Status = NotificationStatusQueued
			claimed[i].QueuedAt = &now
		}
		return tx.Model(&Notification{}).Where("id IN ?", ids).Updates(map[string]interface{}{
			"status":    NotificationStatusQueued,
			"queued_at": now,
		}).Error
	})
	return claimed, err
}

func FindNotification(db *gorm.DB, id uint) (*Notification, error) {
	var n Notification
	if err := db.First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (n *Notification) MarkSent(db *gorm.DB) error {
	now := time.Now().UTC()
	n.Status = NotificationStatusSent
	n.SentAt = &now
	n.Attempts++
	return db.Model(n).Updates(map[string]interface{}{
		"status":   NotificationStatusSent,
		"sent_at":  now,
		"attempts": gorm.Expr("attempts + 1"),
	}).Error
}

// MarkAttemptFailed counts a failed delivery. Final failures leave the queue.
func (n *Notification) MarkAttemptFailed(db *gorm.DB, cause error, final bool) error {
	status := NotificationStatusQueued
	if final {
		status = NotificationStatusFailed
	}
	n.Status = status
	n.Attempts++
	n.LastError = cause.Error()
	return db.Model(n).Updates(map[string]interface{}{
		"status":     status,
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": n.LastError,
	}).Error
}

// RequeueNotification hands a claimed row back to the dispatcher.
func RequeueNotification(db *gorm.DB, id uint) error {
	return db.Model(&Notification{}).
		Where("id = ? AND status = ?", id, NotificationStatusQueued).
		Updates(map[string]interface{}{"status": NotificationStatusPending, "queued_at": nil}).Error
}

// RequeueStaleNotifications returns rows queued before cutoff to pending so a
// job lost with its queue entry is dispatched again.
func RequeueStaleNotifications(db *gorm.DB, cutoff time.Time) (int64, error) {
	tx := db.Model(&Notification{}).
		Where("status = ? AND queued_at < ?", NotificationStatusQueued, cutoff).
		Updates(map[string]interface{}{"status": NotificationStatusPending, "queued_at": nil})
	return tx.RowsAffected, tx.Error
}
