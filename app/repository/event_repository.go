package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// eventRepository implements the EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Create creates a new event in draft status
func (r *eventRepository) Create(event *models.Event) error {
	event.Status = models.EventStatusDraft
	return r.db.Create(event).Error
}

// GetByOperatorAndUUID retrieves an event owned by the operator
func (r *eventRepository) GetByOperatorAndUUID(operatorID uint, uuid string) (*models.Event, error) {
	return models.FindOperatorEvent(r.db, operatorID, uuid)
}

// ListByOperator lists the operator's events, newest first
func (r *eventRepository) ListByOperator(operatorID uint, offset, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.db.Where("operator_id = ?", operatorID).
		Order("starts_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	return events, err
}

// UpdateStatus moves the event along its lifecycle. The update is
// conditional on the status the caller saw.
func (r *eventRepository) UpdateStatus(event *models.Event, status string) error {
	if !event.CanTransitionTo(status) {
		return ErrStatusConflict
	}
	res := r.db.Model(&models.Event{}).
		Where("id = ? AND status = ?", event.ID, event.Status).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	event.Status = status
	return nil
}

// AddTicketType creates a ticket type; sold always starts at zero
func (r *eventRepository) AddTicketType(ticketType *models.TicketType) error {
	ticketType.Sold = 0
	return r.db.Create(ticketType).Error
}

// ListTicketTypes retrieves an event's ticket types in id order
func (r *eventRepository) ListTicketTypes(eventID uint) ([]models.TicketType, error) {
	return models.ListTicketTypes(r.db, eventID)
}
