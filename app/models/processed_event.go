package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProcessedEvent is the dedup ledger for external events. The row is written
// in the same transaction that applies the event, so a rollback also
// forgets the delivery.
type ProcessedEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_processed_events_provider_event,unique,priority:1" json:"provider"`
	ExternalEventID string    `gorm:"type:varchar(191);not null;index:ux_processed_events_provider_event,unique,priority:2" json:"external_event_id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	OrderID         *uint     `gorm:"index" json:"order_id,omitempty"`
	Outcome         string    `gorm:"type:varchar(50);default:''" json:"outcome"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// InsertProcessedEventIfAbsent reports whether this call created the row.
// False means the event was already recorded by a committed transaction.
func InsertProcessedEventIfAbsent(db *gorm.DB, event *ProcessedEvent) (bool, error) {
	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "external_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func RecordProcessedEventOutcome(db *gorm.DB, id uint, outcome string, orderID *uint) error {
	return db.Model(&ProcessedEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"outcome":  outcome,
		"order_id": orderID,
	}).Error
}

// PurgeProcessedEvents deletes ledger rows created before cutoff.
func PurgeProcessedEvents(db *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	res := db.Where("created_at < ?", cutoff).Limit(limit).Delete(&ProcessedEvent{})
	return res.RowsAffected, res.Error
}
