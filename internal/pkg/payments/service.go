package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
)

const (
	DefaultProvider  = "stripe"
	DefaultTolerance = 5 * time.Minute
	DefaultTxTimeout = 10 * time.Second
	// DefaultRetention outlives the provider's redelivery window by far.
	DefaultRetention = 30 * 24 * time.Hour

	purgeBatchSize = 1000
	txAttempts     = 3
)

// Signer signs ticket tokens on issuance. *security.TicketSigner implements it.
type Signer interface {
	Sign(token string) (string, error)
}

type Options struct {
	Provider      string
	WebhookSecret string
	Tolerance     time.Duration
	TxTimeout     time.Duration
	Now           func() time.Time
}

// Service ingests payment provider events exactly once. The ledger row and
// every state change of an event commit or roll back together.
type Service struct {
	repo   Repository
	signer Signer
	opts   Options
}

func NewService(repo Repository, signer Signer, opts Options) *Service {
	if opts.Provider == "" {
		opts.Provider = DefaultProvider
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, signer: signer, opts: opts}
}

func NewServiceFromDB(db *gorm.DB, signer Signer, opts Options) *Service {
	return NewService(NewRepository(db), signer, opts)
}

// HandleExternalEvent verifies, deduplicates and applies one delivery.
// Duplicates are acknowledged without side effects. A returned error other
// than ErrSignatureInvalid or ErrInvalidPayload means nothing was committed
// and the sender should retry.
func (s *Service) HandleExternalEvent(ctx context.Context, payload []byte, signatureHeader string) (*IngestResult, error) {
	if err := VerifySignature(payload, signatureHeader, s.opts.WebhookSecret, s.opts.Tolerance, s.opts.Now()); err != nil {
		log.Warnf("[Payments] Security: rejected %s webhook: %v", s.opts.Provider, err)
		return nil, err
	}
	env, err := ParseEnvelope(payload)
	if err != nil {
		log.Warnf("[Payments] Rejected %s webhook payload: %v", s.opts.Provider, err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	result := &IngestResult{EventID: env.ID, Type: env.Type}
	err = database.RetryTransient(ctx, txAttempts, func() error {
		return s.repo.Transaction(ctx, func(tx Tx) error {
			return s.ingest(tx, env, result)
		})
	})
	if err != nil {
		log.Errorf("[Payments] Event %s (%s) rolled back: %v", env.ID, env.Type, err)
		return nil, fmt.Errorf("apply event %s: %w", env.ID, err)
	}

	if result.Duplicate {
		log.Infof("[Payments] Event %s already processed, acknowledged as duplicate", env.ID)
	} else {
		log.Infof("[Payments] Event %s (%s) applied: %s", env.ID, env.Type, result.Outcome)
	}
	return result, nil
}

// ingest records the delivery on the ledger and applies it. A ledger row
// that already exists means a committed transaction handled the event.
func (s *Service) ingest(tx Tx, env *Envelope, result *IngestResult) error {
	result.Duplicate, result.Outcome, result.OrderID, result.OrderUUID = false, "", 0, ""

	entry := &models.ProcessedEvent{
		Provider:        s.opts.Provider,
		ExternalEventID: env.ID,
		EventType:       env.Type,
		CreatedAt:       s.opts.Now(),
	}
	created, err := tx.InsertProcessedEvent(entry)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if !created {
		result.Duplicate = true
		result.Outcome = OutcomeDuplicate
		return nil
	}

	order, outcome, err := s.apply(tx, env)
	if err != nil {
		return err
	}
	result.Outcome = outcome
	var orderID *uint
	if order != nil {
		result.OrderID, result.OrderUUID = order.ID, order.UUID
		orderID = &order.ID
	}
	return tx.RecordOutcome(entry.ID, outcome, orderID)
}

func (s *Service) apply(tx Tx, env *Envelope) (*models.Order, string, error) {
	switch env.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceeded:
		var sess CheckoutSession
		if err := env.decodeObject(&sess); err != nil {
			log.Warnf("[Payments] Event %s: unreadable checkout session: %v", env.ID, err)
			return nil, OutcomeMalformedObject, nil
		}
		return s.applyPaid(tx, env, &sess)
	case EventCheckoutExpired:
		var sess CheckoutSession
		if err := env.decodeObject(&sess); err != nil {
			log.Warnf("[Payments] Event %s: unreadable checkout session: %v", env.ID, err)
			return nil, OutcomeMalformedObject, nil
		}
		return s.applyExpired(tx, &sess)
	case EventChargeRefunded:
		var charge Charge
		if err := env.decodeObject(&charge); err != nil {
			log.Warnf("[Payments] Event %s: unreadable charge: %v", env.ID, err)
			return nil, OutcomeMalformedObject, nil
		}
		return s.applyRefund(tx, &charge)
	default:
		return nil, OutcomeIgnored, nil
	}
}

func lockOrder(tx Tx, orderUUID string) (*models.Order, error) {
	if orderUUID == "" {
		return nil, nil
	}
	order, err := tx.LockOrderByUUID(orderUUID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return order, err
}

// applyPaid finalizes a pending order: sold is raised, tickets are signed
// and issued, reservations are dropped and the confirmation is queued.
func (s *Service) applyPaid(tx Tx, env *Envelope, sess *CheckoutSession) (*models.Order, string, error) {
	order, err := lockOrder(tx, sess.OrderUUID())
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		log.Warnf("[Payments] Event %s references unknown order %q", env.ID, sess.OrderUUID())
		return nil, OutcomeOrderNotFound, nil
	}
	if sess.PaymentStatus != "paid" {
		return order, OutcomePaymentNotCaptured, nil
	}
	if order.Status == models.OrderStatusCancelled {
		// Cancelled tickets are final, so the money has to go back.
		order.PaymentReference = sess.PaymentReference()
		if err := tx.SetPaymentReference(order.ID, order.PaymentReference); err != nil {
			return nil, "", err
		}
		log.Errorf("[Payments] Order %s was paid after it had been cancelled; refund %s manually",
			order.Reference, order.PaymentReference)
		return order, OutcomePaidAfterCancel, nil
	}
	if order.Status != models.OrderStatusPending {
		return order, OutcomeOrderNotPending, nil
	}
	now := s.opts.Now()

	items, err := tx.FindOrderItems(order.ID)
	if err != nil {
		return nil, "", err
	}
	ids := make([]uint, 0, len(items))
	units := 0
	for _, item := range items {
		ids = append(ids, item.TicketTypeID)
		units += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	types, err := tx.LockTicketTypes(order.EventID, ids)
	if err != nil {
		return nil, "", err
	}
	byID := make(map[uint]*models.TicketType, len(types))
	for i := range types {
		byID[types[i].ID] = &types[i]
	}
	// Reservations of this order may have expired while the buyer paid.
	// Capacity is checked against everybody else's holds.
	others, err := tx.CountActiveReservations(ids, now, order.ID)
	if err != nil {
		return nil, "", err
	}
	for _, item := range items {
		tt, ok := byID[item.TicketTypeID]
		if !ok {
			return nil, "", fmt.Errorf("order %d references missing ticket type %d", order.ID, item.TicketTypeID)
		}
		if !tt.Unlimited() && int64(item.Quantity) > tt.Available(others[tt.ID]) {
			order.PaymentReference = sess.PaymentReference()
			if err := inventory.ReleaseOrder(tx, order, now); err != nil {
				return nil, "", err
			}
			log.Errorf("[Payments] Order %s paid after its reservation lapsed and ticket type %d sold out; refund %s manually",
				order.Reference, tt.ID, order.PaymentReference)
			return order, OutcomeCapacityLost, nil
		}
	}

	for _, item := range items {
		if err := tx.AdjustSold(item.TicketTypeID, item.Quantity); err != nil {
			return nil, "", err
		}
	}

	tickets, err := tx.FindOrderTickets(order.ID)
	if err != nil {
		return nil, "", err
	}
	issued := 0
	for i := range tickets {
		if tickets[i].Status != models.TicketStatusProvisional {
			continue
		}
		sig, err := s.signer.Sign(tickets[i].Token)
		if err != nil {
			return nil, "", fmt.Errorf("sign ticket %d: %w", tickets[i].ID, err)
		}
		if err := tx.IssueTicket(&tickets[i], sig, now); err != nil {
			return nil, "", err
		}
		issued++
	}
	if issued != units {
		return nil, "", fmt.Errorf("order %d has %d provisional tickets for %d units", order.ID, issued, units)
	}

	if err := tx.DeleteOrderReservations(order.ID); err != nil {
		return nil, "", err
	}
	order.PaymentReference = sess.PaymentReference()
	if err := tx.UpdateOrderStatus(order, models.OrderStatusPaid, now); err != nil {
		return nil, "", err
	}
	if _, err := tx.CreateNotification(order.ID, models.NotificationTypeOrderConfirmation, order.BuyerEmail); err != nil {
		return nil, "", err
	}
	return order, OutcomeOrderPaid, nil
}

func (s *Service) applyExpired(tx Tx, sess *CheckoutSession) (*models.Order, string, error) {
	order, err := lockOrder(tx, sess.OrderUUID())
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, OutcomeOrderNotFound, nil
	}
	if order.Status != models.OrderStatusPending {
		return order, OutcomeOrderNotPending, nil
	}
	if err := inventory.ReleaseOrder(tx, order, s.opts.Now()); err != nil {
		return nil, "", err
	}
	return order, OutcomeOrderCancelled, nil
}

// applyRefund handles full refunds. Issued tickets are refunded and their
// units return to sale; tickets already used stay used.
func (s *Service) applyRefund(tx Tx, charge *Charge) (*models.Order, string, error) {
	order, err := lockOrder(tx, charge.OrderUUID())
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, OutcomeOrderNotFound, nil
	}
	if !charge.Refunded {
		return order, OutcomePartialRefund, nil
	}
	if order.Status != models.OrderStatusPaid {
		return order, OutcomeOrderNotPaid, nil
	}
	if _, err := releaseIssuedTickets(tx, order, models.TicketStatusRefunded); err != nil {
		return nil, "", err
	}
	if err := tx.UpdateOrderStatus(order, models.OrderStatusRefunded, s.opts.Now()); err != nil {
		return nil, "", err
	}
	return order, OutcomeOrderRefunded, nil
}

// releaseIssuedTickets moves the issued tickets of a paid order to status
// and returns their units to sale. It reports how many were released.
func releaseIssuedTickets(tx Tx, order *models.Order, status string) (int, error) {
	tickets, err := tx.FindOrderTickets(order.ID)
	if err != nil {
		return 0, err
	}
	perType := map[uint]int{}
	released := 0
	for _, t := range tickets {
		if t.Status == models.TicketStatusIssued {
			perType[t.TicketTypeID]++
			released++
		}
	}
	ids := make([]uint, 0, len(perType))
	for id := range perType {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > 0 {
		if _, err := tx.LockTicketTypes(order.EventID, ids); err != nil {
			return 0, err
		}
	}
	if _, err := tx.SetOrderTicketsStatus(order.ID, models.TicketStatusIssued, status); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := tx.AdjustSold(id, -perType[id]); err != nil {
			return 0, err
		}
	}
	return released, nil
}

// VoidOrder cancels a paid order of the given event on the operator's
// behalf, for example after a refund settled outside the provider. Issued
// tickets are cancelled and go back on sale; used tickets stay used.
func (s *Service) VoidOrder(ctx context.Context, eventID uint, orderUUID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var (
		order    *models.Order
		released int
	)
	err := database.RetryTransient(ctx, txAttempts, func() error {
		return s.repo.Transaction(ctx, func(tx Tx) error {
			var err error
			order, err = lockOrder(tx, orderUUID)
			if err != nil {
				return err
			}
			if order == nil || order.EventID != eventID {
				return inventory.ErrOrderNotFound
			}
			if order.Status != models.OrderStatusPaid {
				return ErrOrderNotPaid
			}
			if released, err = releaseIssuedTickets(tx, order, models.TicketStatusCancelled); err != nil {
				return err
			}
			return tx.UpdateOrderStatus(order, models.OrderStatusCancelled, s.opts.Now())
		})
	})
	if err != nil {
		if errors.Is(err, inventory.ErrOrderNotFound) || errors.Is(err, ErrOrderNotPaid) {
			return nil, err
		}
		return nil, fmt.Errorf("void order: %w", err)
	}
	log.Infof("[Payments] Order %s voided, %d tickets back on sale", order.Reference, released)
	return order, nil
}

// PurgeProcessedEvents drops ledger rows older than retention in batches.
func (s *Service) PurgeProcessedEvents(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := s.opts.Now().Add(-retention)
	var total int64
	for {
		n, err := s.repo.PurgeProcessedEvents(ctx, cutoff, purgeBatchSize)
		total += n
		if err != nil {
			return total, fmt.Errorf("purge processed events: %w", err)
		}
		if n < purgeBatchSize {
			break
		}
	}
	if total > 0 {
		log.Infof("[Payments] Purged %d ledger rows older than %s", total, cutoff.Format(time.RFC3339))
	}
	return total, nil
}
