package inventory

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/TicketFox/internal/pkg/validation"
)

var (
	ErrInventoryExhausted = errors.New("inventory exhausted")
	ErrEventNotOnSale     = errors.New("event is not on sale")
	ErrEventNotFound      = errors.New("event not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
)

// ValidationError lists the rejected input fields.
type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	return "invalid order input: " + validation.Describe(e.Fields)
}

func newValidationError(field, rule, param string) *ValidationError {
	return &ValidationError{Fields: []validation.FieldError{{Field: field, Rule: rule, Param: param}}}
}

// ExhaustedError tells which ticket type ran out. It matches
// ErrInventoryExhausted with errors.Is.
type ExhaustedError struct {
	TicketTypeID uint
	Requested    int
	Available    int64
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("inventory exhausted for ticket type %d: requested %d, available %d",
		e.TicketTypeID, e.Requested, e.Available)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrInventoryExhausted
}
