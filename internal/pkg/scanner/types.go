package scanner

import (
	"time"

	"github.com/ManuelReschke/TicketFox/app/models"
)

// Result is the door-facing answer to a scan. Only admitted lets the guest in.
type Result string

const (
	ResultAdmitted         Result = "admitted"
	ResultAlreadyScanned   Result = "already_scanned"
	ResultNotFound         Result = "not_found"
	ResultConcurrent       Result = "concurrent"
	ResultWrongEvent       Result = "wrong_event"
	ResultNotValid         Result = "not_valid"
	ResultSignatureInvalid Result = "signature_invalid"
)

type ScanRequest struct {
	Token           string     `json:"token" validate:"required,max=64"`
	Signature       string     `json:"signature" validate:"required,max=128"`
	DeviceID        string     `json:"deviceId" validate:"required,max=100"`
	ScannedBy       string     `json:"scannedBy" validate:"required,max=100"`
	EventID         uint       `json:"eventId"`
	ClientScannedAt *time.Time `json:"scannedAt"`

	// OperatorID is the authenticated caller. When set, tickets of events
	// owned by other operators answer wrong_event.
	OperatorID uint `json:"-"`
}

// PreviousScan describes the admission that used the ticket up.
type PreviousScan struct {
	At        time.Time `json:"at"`
	DeviceID  string    `json:"deviceId"`
	ScannedBy string    `json:"scannedBy"`
}

type ScanOutcome struct {
	Result       Result         `json:"result"`
	Ticket       *models.Ticket `json:"-"`
	ScanLogID    uint           `json:"scanLogId,omitempty"`
	PreviousScan *PreviousScan  `json:"previousScan,omitempty"`
}
