package repository

import (
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// operatorRepository implements the OperatorRepository interface
type operatorRepository struct {
	db *gorm.DB
}

// NewOperatorRepository creates a new operator repository instance
func NewOperatorRepository(db *gorm.DB) OperatorRepository {
	return &operatorRepository{db: db}
}

// GetByID retrieves an operator by ID
func (r *operatorRepository) GetByID(id uint) (*models.Operator, error) {
	var operator models.Operator
	if err := r.db.First(&operator, id).Error; err != nil {
		return nil, err
	}
	return &operator, nil
}

// GetByEmail retrieves an operator by email
func (r *operatorRepository) GetByEmail(email string) (*models.Operator, error) {
	var operator models.Operator
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&operator).Error
	if err != nil {
		return nil, err
	}
	return &operator, nil
}
