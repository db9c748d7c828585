package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// ErrStatusConflict is returned when a status update loses against a
// concurrent change or the transition is not allowed.
var ErrStatusConflict = errors.New("status transition not allowed")

// EventRepository defines the interface for operator event management
type EventRepository interface {
	Create(event *models.Event) error
	GetByOperatorAndUUID(operatorID uint, uuid string) (*models.Event, error)
	ListByOperator(operatorID uint, offset, limit int) ([]models.Event, error)
	UpdateStatus(event *models.Event, status string) error
	AddTicketType(ticketType *models.TicketType) error
	ListTicketTypes(eventID uint) ([]models.TicketType, error)
}

// OperatorRepository defines the interface for operator lookups
type OperatorRepository interface {
	GetByID(id uint) (*models.Operator, error)
	GetByEmail(email string) (*models.Operator, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Event    EventRepository
	Operator OperatorRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Event:    NewEventRepository(db),
		Operator: NewOperatorRepository(db),
	}
}
