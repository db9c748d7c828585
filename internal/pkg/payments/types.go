package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Event types the gateway acts on. Everything else is acknowledged and
// recorded as ignored.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutExpired               = "checkout.session.expired"
	EventChargeRefunded                = "charge.refunded"
)

// Outcomes recorded on the ledger row and returned to the sender.
const (
	OutcomeDuplicate          = "duplicate"
	OutcomeIgnored            = "ignored"
	OutcomeOrderPaid          = "order_paid"
	OutcomeOrderCancelled     = "order_cancelled"
	OutcomeOrderRefunded      = "order_refunded"
	OutcomeOrderNotFound      = "order_not_found"
	OutcomeOrderNotPending    = "order_not_pending"
	OutcomeOrderNotPaid       = "order_not_paid"
	OutcomePaymentNotCaptured = "payment_not_captured"
	OutcomeCapacityLost       = "capacity_lost"
	OutcomePaidAfterCancel    = "paid_after_cancel"
	OutcomePartialRefund      = "partial_refund_ignored"
	OutcomeMalformedObject    = "malformed_object"
)

var (
	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrOrderNotPaid   = errors.New("order is not paid")
)

// Envelope is the outer shape of a provider event.
type Envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession is the subset of a checkout session the gateway reads.
type CheckoutSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     string            `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

// OrderUUID prefers metadata.order_uuid and falls back to client_reference_id.
func (s *CheckoutSession) OrderUUID() string {
	if v := strings.TrimSpace(s.Metadata["order_uuid"]); v != "" {
		return v
	}
	return strings.TrimSpace(s.ClientReferenceID)
}

// PaymentReference is stored on the order for reconciliation.
func (s *CheckoutSession) PaymentReference() string {
	if s.PaymentIntent != "" {
		return s.PaymentIntent
	}
	return s.ID
}

type Charge struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Refunded       bool              `json:"refunded"`
	Metadata       map[string]string `json:"metadata"`
}

func (c *Charge) OrderUUID() string {
	return strings.TrimSpace(c.Metadata["order_uuid"])
}

// ParseEnvelope requires the id and type fields.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	env.ID = strings.TrimSpace(env.ID)
	env.Type = strings.TrimSpace(env.Type)
	if env.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrInvalidPayload)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}
	return &env, nil
}

func (e *Envelope) decodeObject(v interface{}) error {
	if len(e.Data.Object) == 0 {
		return errors.New("event has no data.object")
	}
	return json.Unmarshal(e.Data.Object, v)
}

// IngestResult is what the sender gets back.
type IngestResult struct {
	EventID   string `json:"eventId"`
	Type      string `json:"type"`
	Duplicate bool   `json:"duplicate"`
	Outcome   string `json:"outcome"`
	OrderID   uint   `json:"orderId,omitempty"`
	OrderUUID string `json:"orderUuid,omitempty"`
}
