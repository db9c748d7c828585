package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	TicketStatusProvisional = "provisional"
	TicketStatusIssued      = "issued"
	TicketStatusUsed        = "used"
	TicketStatusCancelled   = "cancelled"
	TicketStatusRefunded    = "refunded"
)

// Ticket is a single admission. Provisional tickets belong to unpaid orders
// and carry no signature; used, cancelled and refunded are terminal.
type Ticket struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UUID         string     `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	OrderID      uint       `gorm:"index;not null" json:"order_id"`
	EventID      uint       `gorm:"index;not null" json:"event_id"`
	TicketTypeID uint       `gorm:"index;not null" json:"ticket_type_id"`
	Token        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	Signature    string     `gorm:"type:char(64);default:''" json:"signature,omitempty"`
	Status       string     `gorm:"type:varchar(20);not null;default:'provisional';index" json:"status"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	ScannedBy    string     `gorm:"type:varchar(100);default:''" json:"scanned_by,omitempty"`
	ScanDeviceID string     `gorm:"type:varchar(100);default:''" json:"scan_device_id,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == "" {
		t.UUID = uuid.New().String()
	}
	return nil
}

func FindTicketByToken(db *gorm.DB, token string) (*Ticket, error) {
	var ticket Ticket
	if err := db.Where("token = ?", token).First(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

// LockTicketNoWait re-reads the ticket under FOR UPDATE NOWAIT. When another
// transaction holds the row MySQL answers with error 3572 at once.
func LockTicketNoWait(db *gorm.DB, ticketID uint) (*Ticket, error) {
	var ticket Ticket
	err := db.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"}).
		Where("id = ?", ticketID).
		First(&ticket).Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkTicketUsed is the compare-and-set for admission. Exactly one caller
// sees one affected row.
func MarkTicketUsed(db *gorm.DB, ticketID uint, usedAt time.Time, scannedBy, deviceID string) (int64, error) {
	res := db.Model(&Ticket{}).
		Where("id = ? AND status = ?", ticketID, TicketStatusIssued).
		Updates(map[string]interface{}{
			"status":         TicketStatusUsed,
			"used_at":        usedAt,
			"scanned_by":     scannedBy,
			"scan_device_id": deviceID,
		})
	return res.RowsAffected, res.Error
}

func FindOrderTickets(db *gorm.DB, orderID uint) ([]Ticket, error) {
	var tickets []Ticket
	err := db.Where("order_id = ?", orderID).Order("id ASC").Find(&tickets).Error
	return tickets, err
}

// IssueTicket moves a provisional ticket to issued with its signature.
func IssueTicket(db *gorm.DB, ticket *Ticket, signature string, at time.Time) error {
	res := db.Model(&Ticket{}).
		Where("id = ? AND status = ?", ticket.ID, TicketStatusProvisional).
		Updates(map[string]interface{}{
			"status":    TicketStatusIssued,
			"signature": signature,
			"issued_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return gorm.ErrRecordNotFound
	}
	ticket.Status = TicketStatusIssued
	ticket.Signature = signature
	ticket.IssuedAt = &at
	return nil
}

// SetOrderTicketsStatus moves the order's tickets in fromStatus to toStatus.
func SetOrderTicketsStatus(db *gorm.DB, orderID uint, fromStatus, toStatus string) (int64, error) {
	res := db.Model(&Ticket{}).
		Where("order_id = ? AND status = ?", orderID, fromStatus).
		Update("status", toStatus)
	return res.RowsAffected, res.Error
}
