package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusOnSale    = "on_sale"
	EventStatusClosed    = "closed"
)

var eventTransitions = map[string][]string{
	EventStatusDraft:     {EventStatusPublished},
	EventStatusPublished: {EventStatusOnSale, EventStatusClosed},
	EventStatusOnSale:    {EventStatusClosed},
}

type Event struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       string    `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	OperatorID uint      `gorm:"index;not null" json:"operator_id"`
	Name       string    `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=2,max=200"`
	Venue      string    `gorm:"type:varchar(200)" json:"venue" validate:"max=200"`
	StartsAt   time.Time `gorm:"not null" json:"starts_at" validate:"required"`
	Status     string    `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	// AdmittedCount trails the scan log by up to one counter flush.
	AdmittedCount int64        `gorm:"not null;default:0" json:"admitted_count"`
	TicketTypes   []TicketType `gorm:"foreignKey:EventID" json:"ticket_types,omitempty"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = EventStatusDraft
	}
	return nil
}

func (e *Event) IsOnSale() bool {
	return e != nil && e.Status == EventStatusOnSale
}

// CanTransitionTo reports whether the lifecycle allows moving to status.
func (e *Event) CanTransitionTo(status string) bool {
	for _, next := range eventTransitions[e.Status] {
		if next == status {
			return true
		}
	}
	return false
}

func FindEventByUUID(db *gorm.DB, eventUUID string) (*Event, error) {
	var event Event
	if err := db.Where("uuid = ?", eventUUID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// EventOperatorID returns the operator owning the event.
func EventOperatorID(db *gorm.DB, eventID uint) (uint, error) {
	var event Event
	if err := db.Select("id", "operator_id").First(&event, eventID).Error; err != nil {
		return 0, err
	}
	return event.OperatorID, nil
}

// FindOperatorEvent scopes the lookup to the owning operator.
func FindOperatorEvent(db *gorm.DB, operatorID uint, eventUUID string) (*Event, error) {
	var event Event
	if err := db.Where("uuid = ? AND operator_id = ?", eventUUID, operatorID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
