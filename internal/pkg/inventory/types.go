package inventory

import "time"

type LineItem struct {
	TicketTypeID uint `json:"ticketTypeId" validate:"required"`
	Quantity     int  `json:"quantity" validate:"min=1,max=50"`
}

type Buyer struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email,max=191"`
}

type CreateOrderInput struct {
	EventID   uint       `json:"eventId" validate:"required"`
	LineItems []LineItem `json:"lineItems" validate:"required,min=1,max=20,dive"`
	Buyer     Buyer      `json:"buyer"`
}

type CreateOrderResult struct {
	OrderID    uint      `json:"orderId"`
	OrderUUID  string    `json:"orderUuid"`
	Reference  string    `json:"reference"`
	TicketIDs  []uint    `json:"ticketIds"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TotalCents int64     `json:"totalCents"`
	Currency   string    `json:"currency"`
}

// TypeAvailability is a lock-free snapshot of one ticket type.
type TypeAvailability struct {
	TicketTypeID uint   `json:"ticketTypeId"`
	Name         string `json:"name"`
	PriceCents   int64  `json:"priceCents"`
	Currency     string `json:"currency"`
	Unlimited    bool   `json:"unlimited"`
	Total        int    `json:"total"`
	Sold         int    `json:"sold"`
	Reserved     int64  `json:"reserved"`
	Available    int64  `json:"available"`
}

type EventAvailability struct {
	EventID     uint               `json:"eventId"`
	EventUUID   string             `json:"eventUuid"`
	Status      string             `json:"status"`
	TicketTypes []TypeAvailability `json:"ticketTypes"`
}

// SweepResult counts what one sweep released.
type SweepResult struct {
	OrdersCancelled     int   `json:"ordersCancelled"`
	ReservationsDeleted int64 `json:"reservationsDeleted"`
}
