package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/mail"
)

// ErrNotificationNotFound means the outbox row behind a job is gone.
var ErrNotificationNotFound = errors.New("notification not found")

// OrderEmail is everything the confirmation email is rendered from.
type OrderEmail struct {
	Notification *models.Notification
	Order        *models.Order
	Event        *models.Event
	Tickets      []models.Ticket
}

// OrderEmailStore loads outbox rows and records delivery attempts.
type OrderEmailStore interface {
	LoadOrderEmail(ctx context.Context, notificationID uint) (*OrderEmail, error)
	MarkSent(ctx context.Context, n *models.Notification) error
	MarkFailed(ctx context.Context, n *models.Notification, cause error, final bool) error
}

// OrderEmailProcessor delivers send_order_email jobs. The limiter bounds
// outbound mail across all workers of this process.
type OrderEmailProcessor struct {
	store   OrderEmailStore
	sender  mail.Sender
	limiter *rate.Limiter
}

func NewOrderEmailProcessor(store OrderEmailStore, sender mail.Sender, perSecond int) *OrderEmailProcessor {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &OrderEmailProcessor{
		store:   store,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (p *OrderEmailProcessor) Handle(ctx context.Context, job *Job) error {
	payload, err := SendOrderEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid send_order_email payload: %w", err)
	}

	data, err := p.store.LoadOrderEmail(ctx, payload.NotificationID)
	if errors.Is(err, ErrNotificationNotFound) {
		log.Warnf("[OrderEmail] Notification %d no longer exists, dropping job %s", payload.NotificationID, job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	n := data.Notification
	if n.Status == models.NotificationStatusSent {
		log.Debugf("[OrderEmail] Notification %d already sent", n.ID)
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	subject, body := mail.OrderConfirmation(data.Event, data.Order, data.Tickets)
	if sendErr := p.sender.Send(n.Recipient, subject, body); sendErr != nil {
		final := job.IsFinalAttempt()
		if err := p.store.MarkFailed(ctx, n, sendErr, final); err != nil {
			log.Errorf("[OrderEmail] Failed to record attempt for notification %d: %v", n.ID, err)
		}
		if final {
			log.Errorf("[OrderEmail] Giving up on order %s after %d attempts: %v", data.Order.Reference, job.RetryCount+1, sendErr)
		}
		return sendErr
	}

	if err := p.store.MarkSent(ctx, n); err != nil {
		// The mail is out; a retry would send it twice.
		log.Errorf("[OrderEmail] Sent order %s but could not mark notification %d: %v", data.Order.Reference, n.ID, err)
		return nil
	}
	log.Infof("[OrderEmail] Confirmation for order %s sent to %s", data.Order.Reference, n.Recipient)
	return nil
}

type gormOrderEmailStore struct {
	db *gorm.DB
}

// NewOrderEmailStore backs the processor with the ticket store.
func NewOrderEmailStore(db *gorm.DB) OrderEmailStore {
	return &gormOrderEmailStore{db: db}
}

func (s *gormOrderEmailStore) LoadOrderEmail(ctx context.Context, notificationID uint) (*OrderEmail, error) {
	db := s.db.WithContext(ctx)
	n, err := models.FindNotification(db, notificationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := db.First(&order, n.OrderID).Error; err != nil {
		return nil, fmt.Errorf("load order %d: %w", n.OrderID, err)
	}
	var event models.Event
	if err := db.First(&event, order.EventID).Error; err != nil {
		return nil, fmt.Errorf("load event %d: %w", order.EventID, err)
	}
	tickets, err := models.FindOrderTickets(db, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load tickets of order %d: %w", order.ID, err)
	}
	return &OrderEmail{Notification: n, Order: &order, Event: &event, Tickets: tickets}, nil
}

func (s *gormOrderEmailStore) MarkSent(ctx context.Context, n *models.Notification) error {
	return n.MarkSent(s.db.WithContext(ctx))
}

func (s *gormOrderEmailStore) MarkFailed(ctx context.Context, n *models.Notification, cause error, final bool) error {
	return n.MarkAttemptFailed(s.db.WithContext(ctx), cause, final)
}
