package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/app/repository"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
	"github.com/ManuelReschke/TicketFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TicketFox/internal/pkg/payments"
	"github.com/ManuelReschke/TicketFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/TicketFox/internal/pkg/validation"
)

const maxEventsPerPage = 100

type createEventRequest struct {
	Name     string    `json:"name" validate:"required,min=2,max=200"`
	Venue    string    `json:"venue" validate:"max=200"`
	StartsAt time.Time `json:"startsAt" validate:"required"`
}

type ticketTypeRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	PriceCents     int64  `json:"priceCents" validate:"gte=0"`
	Currency       string `json:"currency" validate:"required,len=3,alpha"`
	TotalInventory *int   `json:"totalInventory" validate:"omitempty,gte=0"`
	MaxPerOrder    int    `json:"maxPerOrder" validate:"omitempty,gte=1,lte=50"`
}

type eventStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=published on_sale closed"`
}

// HandleListEvents lists the operator's events
func (tc *TicketingController) HandleListEvents(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	perPage := c.QueryInt("per_page", 20)
	if perPage < 1 || perPage > maxEventsPerPage {
		perPage = 20
	}

	events, err := tc.deps.Repos.Event.ListByOperator(usercontext.GetOperatorID(c), (page-1)*perPage, perPage)
	if err != nil {
		log.Errorf("[Events] List for operator %d failed: %v", usercontext.GetOperatorID(c), err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load events")
	}
	return c.JSON(fiber.Map{"events": events, "page": page, "per_page": perPage})
}

// HandleCreateEvent creates a draft event owned by the operator
func (tc *TicketingController) HandleCreateEvent(c *fiber.Ctx) error {
	var req createEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be JSON")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Venue = strings.TrimSpace(req.Venue)
	if fields := validation.Struct(req); fields != nil {
		return validationFailed(c, fields)
	}

	event := &models.Event{
		OperatorID: usercontext.GetOperatorID(c),
		Name:       req.Name,
		Venue:      req.Venue,
		StartsAt:   req.StartsAt.UTC(),
	}
	if err := tc.deps.Repos.Event.Create(event); err != nil {
		log.Errorf("[Events] Create for operator %d failed: %v", event.OperatorID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create event")
	}
	log.Infof("[Events] Operator %d created event %s", event.OperatorID, event.UUID)
	return c.Status(fiber.StatusCreated).JSON(event)
}

// HandleGetEvent returns one event with its ticket types
func (tc *TicketingController) HandleGetEvent(c *fiber.Ctx) error {
	event, err := tc.operatorEvent(c)
	if event == nil {
		return err
	}
	types, err := tc.deps.Repos.Event.ListTicketTypes(event.ID)
	if err != nil {
		log.Errorf("[Events] Ticket types of %s failed: %v", event.UUID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load ticket types")
	}
	event.TicketTypes = types
	return c.JSON(event)
}

// HandleAddTicketType adds a ticket type to an event that is not closed
func (tc *TicketingController) HandleAddTicketType(c *fiber.Ctx) error {
	event, err := tc.operatorEvent(c)
	if event == nil {
		return err
	}
	if event.Status == models.EventStatusClosed {
		return apiError(c, fiber.StatusConflict, "event_closed", "Closed events cannot get new ticket types")
	}

	var req ticketTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be JSON")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.MaxPerOrder == 0 {
		req.MaxPerOrder = 10
	}
	if fields := validation.Struct(req); fields != nil {
		return validationFailed(c, fields)
	}

	ticketType := &models.TicketType{
		EventID:        event.ID,
		Name:           req.Name,
		PriceCents:     req.PriceCents,
		Currency:       req.Currency,
		TotalInventory: req.TotalInventory,
		MaxPerOrder:    req.MaxPerOrder,
	}
	if err := tc.deps.Repos.Event.AddTicketType(ticketType); err != nil {
		log.Errorf("[Events] Add ticket type to %s failed: %v", event.UUID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create ticket type")
	}
	return c.Status(fiber.StatusCreated).JSON(ticketType)
}

// HandleUpdateEventStatus moves the event along draft, published, on_sale, closed
func (tc *TicketingController) HandleUpdateEventStatus(c *fiber.Ctx) error {
	event, err := tc.operatorEvent(c)
	if event == nil {
		return err
	}

	var req eventStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be JSON")
	}
	req.Status = strings.TrimSpace(req.Status)
	if fields := validation.Struct(req); fields != nil {
		return validationFailed(c, fields)
	}

	from := event.Status
	if err := tc.deps.Repos.Event.UpdateStatus(event, req.Status); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "invalid_transition",
				"message": "Status change not allowed from " + from,
				"status":  from,
			})
		}
		log.Errorf("[Events] Status update of %s failed: %v", event.UUID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update status")
	}
	log.Infof("[Events] Event %s moved from %s to %s", event.UUID, from, event.Status)
	return c.JSON(event)
}

// HandleScanArchive schedules the upload of the event's scan log
func (tc *TicketingController) HandleScanArchive(c *fiber.Ctx) error {
	event, err := tc.operatorEvent(c)
	if event == nil {
		return err
	}
	if tc.deps.Archives == nil {
		return apiError(c, fiber.StatusServiceUnavailable, "archive_disabled", "Scan log archiving is not configured")
	}

	job, err := tc.deps.Archives.EnqueueScanLogArchive(c.UserContext(), event, usercontext.GetOperatorID(c))
	if err != nil {
		if errors.Is(err, jobqueue.ErrArchiveDisabled) {
			return apiError(c, fiber.StatusServiceUnavailable, "archive_disabled", "Scan log archiving is not configured")
		}
		log.Errorf("[Events] Scan archive enqueue for %s failed: %v", event.UUID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to schedule archive")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": job.ID, "status": job.Status})
}

// HandleEventStats returns sales and admission figures of the event
func (tc *TicketingController) HandleEventStats(c *fiber.Ctx) error {
	event, err := tc.operatorEvent(c)
	if event == nil {
		return err
	}
	if tc.deps.Stats == nil {
		return apiError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Statistics are not available")
	}

	stats, err := tc.deps.Stats.EventStats(c.UserContext(), event)
	if err != nil {
		log.Errorf("[Events] Statistics of %s failed: %v", event.UUID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load statistics")
	}
	return c.JSON(stats)
}

// HandleVoidOrder cancels a paid order of the event. Its unused tickets
// stop working and return to sale.
func (tc *TicketingController) HandleVoidOrder(c *fiber.Ctx) error {
	event, err := tc.operatorEvent(c)
	if event == nil {
		return err
	}
	orderUUID := strings.TrimSpace(c.Params("orderUuid"))
	if orderUUID == "" {
		return apiError(c, fiber.StatusBadRequest, "bad_request", "order uuid missing")
	}

	order, err := tc.deps.Payments.VoidOrder(c.UserContext(), event.ID, orderUUID)
	switch {
	case err == nil:
		log.Infof("[Events] Operator %d voided order %s of event %s", usercontext.GetOperatorID(c), order.Reference, event.UUID)
		return c.JSON(fiber.Map{
			"ok":           true,
			"orderUuid":    order.UUID,
			"reference":    order.Reference,
			"status":       order.Status,
			"cancelled_at": formatTimePtr(order.CancelledAt),
		})
	case errors.Is(err, inventory.ErrOrderNotFound):
		return apiError(c, fiber.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, payments.ErrOrderNotPaid):
		return apiError(c, fiber.StatusConflict, "order_not_paid", "Only paid orders can be voided")
	}
	log.Errorf("[Events] Void of order %s failed: %v", orderUUID, err)
	return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to void order")
}

// HandleOperatorProfile returns the authenticated operator
func (tc *TicketingController) HandleOperatorProfile(c *fiber.Ctx) error {
	operator, err := tc.deps.Repos.Operator.GetByID(usercontext.GetOperatorID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apiError(c, fiber.StatusNotFound, "not_found", "Operator not found")
		}
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load operator")
	}

	return c.JSON(fiber.Map{
		"id":                   operator.ID,
		"name":                 operator.Name,
		"email":                operator.Email,
		"status":               operator.Status,
		"api_key_prefix":       operator.APIKeyPrefix,
		"api_key_created_at":   formatTimePtr(operator.APIKeyCreatedAt),
		"api_key_last_used_at": formatTimePtr(operator.APIKeyLastUsedAt),
		"created_at":           operator.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// operatorEvent loads the :uuid event of the calling operator. A nil event
// means the error response is written; the handler returns err as is.
func (tc *TicketingController) operatorEvent(c *fiber.Ctx) (*models.Event, error) {
	eventUUID := strings.TrimSpace(c.Params("uuid"))
	if eventUUID == "" {
		return nil, apiError(c, fiber.StatusBadRequest, "bad_request", "uuid missing")
	}
	event, err := tc.deps.Repos.Event.GetByOperatorAndUUID(usercontext.GetOperatorID(c), eventUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError(c, fiber.StatusNotFound, "event_not_found", "Event not found")
		}
		log.Errorf("[Events] Lookup of %s failed: %v", eventUUID, err)
		return nil, apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load event")
	}
	return event, nil
}
