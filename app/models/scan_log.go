package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrScanLogAppendOnly is returned by the hooks that keep the log immutable.
var ErrScanLogAppendOnly = errors.New("scan log is append-only")

// ScanLog records every scan attempt that passed signature verification,
// including the ones that did not admit anybody.
type ScanLog struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TicketID        *uint      `gorm:"index" json:"ticket_id,omitempty"`
	EventID         *uint      `gorm:"index" json:"event_id,omitempty"`
	Token           string     `gorm:"type:varchar(64);not null;index" json:"token"`
	DeviceID        string     `gorm:"type:varchar(100);not null" json:"device_id"`
	ScannedBy       string     `gorm:"type:varchar(100);not null" json:"scanned_by"`
	Result          string     `gorm:"type:varchar(30);not null;index" json:"result"`
	ClientScannedAt *time.Time `json:"client_scanned_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (s *ScanLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrScanLogAppendOnly
}

func (s *ScanLog) BeforeDelete(tx *gorm.DB) error {
	return ErrScanLogAppendOnly
}

// EachEventScanLog walks an event's scan log in id order in batches.
func EachEventScanLog(db *gorm.DB, eventID uint, batchSize int, fn func([]ScanLog) error) error {
	var batch []ScanLog
	res := db.Where("event_id = ?", eventID).
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		})
	return res.Error
}
