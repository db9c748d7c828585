package scanner

import (
	"errors"

	"github.com/ManuelReschke/TicketFox/internal/pkg/validation"
)

// ErrTicketLocked is returned by Tx.LockTicketNoWait when another scan holds
// the row.
var ErrTicketLocked = errors.New("ticket row is locked by another scan")

type ValidationError struct {
	Fields []validation.FieldError
}

func (e *ValidationError) Error() string {
	return "invalid scan request: " + validation.Describe(e.Fields)
}
