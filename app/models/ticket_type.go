package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketType is a priced category of admission for one event. Sold is only
// changed inside transactions that hold the row lock.
type TicketType struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	EventID        uint      `gorm:"index;not null" json:"event_id"`
	Name           string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	PriceCents     int64     `gorm:"not null;default:0" json:"price_cents" validate:"gte=0"`
	Currency       string    `gorm:"type:char(3);not null;default:'EUR'" json:"currency" validate:"required,len=3"`
	TotalInventory *int      `json:"total_inventory" validate:"omitempty,gte=0"` // nil means unlimited
	Sold           int       `gorm:"not null;default:0" json:"sold"`
	MaxPerOrder    int       `gorm:"not null;default:10" json:"max_per_order" validate:"gte=1,lte=50"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (tt *TicketType) Unlimited() bool {
	return tt.TotalInventory == nil
}

// Available returns the remaining units given the number of units held by
// active reservations. Unlimited types report -1.
func (tt *TicketType) Available(activeReserved int64) int64 {
	if tt.Unlimited() {
		return -1
	}
	left := int64(*tt.TotalInventory) - int64(tt.Sold) - activeReserved
	if left < 0 {
		return 0
	}
	return left
}

// LockTicketTypes takes row locks on the requested types of one event in
// ascending id order so concurrent orders lock in the same sequence.
func LockTicketTypes(db *gorm.DB, eventID uint, ids []uint) ([]TicketType, error) {
	var types []TicketType
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_id = ? AND id IN ?", eventID, ids).
		Order("id ASC").
		Find(&types).Error
	return types, err
}

func ListTicketTypes(db *gorm.DB, eventID uint) ([]TicketType, error) {
	var types []TicketType
	err := db.Where("event_id = ?", eventID).Order("id ASC").Find(&types).Error
	return types, err
}

// AdjustSold adds delta to sold. Callers hold the row lock.
func AdjustSold(db *gorm.DB, ticketTypeID uint, delta int) error {
	return db.Model(&TicketType{}).Where("id = ?", ticketTypeID).
		UpdateColumn("sold", gorm.Expr("sold + ?", delta)).Error
}
