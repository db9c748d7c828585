package models

import (
	"time"

	"gorm.io/gorm"
)

// Reservation holds one unit of a ticket type for a pending order until
// ExpiresAt. Expired rows no longer count against inventory.
type Reservation struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OrderID      uint      `gorm:"index;not null" json:"order_id"`
	TicketTypeID uint      `gorm:"index:idx_reservations_type_expires,priority:1;not null" json:"ticket_type_id"`
	ExpiresAt    time.Time `gorm:"index:idx_reservations_type_expires,priority:2;index;not null" json:"expires_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CountActiveReservations returns active reserved units per ticket type.
// Reservations of excludeOrderID (0 for none) are not counted.
func CountActiveReservations(db *gorm.DB, typeIDs []uint, now time.Time, excludeOrderID uint) (map[uint]int64, error) {
	type row struct {
		TicketTypeID uint
		Units        int64
	}
	var rows []row
	q := db.Model(&Reservation{}).
		Select("ticket_type_id, COUNT(*) AS units").
		Where("ticket_type_id IN ? AND expires_at > ?", typeIDs, now)
	if excludeOrderID != 0 {
		q = q.Where("order_id <> ?", excludeOrderID)
	}
	if err := q.Group("ticket_type_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, r := range rows {
		out[r.TicketTypeID] = r.Units
	}
	return out, nil
}

func DeleteOrderReservations(db *gorm.DB, orderID uint) error {
	return db.Where("order_id = ?", orderID).Delete(&Reservation{}).Error
}

// DeleteExpiredReservations removes up to limit expired rows.
func DeleteExpiredReservations(db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.Where("expires_at <= ?", now).Limit(limit).Delete(&Reservation{})
	return res.RowsAffected, res.Error
}
