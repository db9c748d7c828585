package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
)

type checkoutRequest struct {
	inventory.CreateOrderInput
	CaptchaToken string `json:"captchaToken"`
}

// HandleCheckout reserves inventory for a new pending order
func (tc *TicketingController) HandleCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be JSON")
	}

	if tc.deps.Captcha != nil && tc.deps.Captcha.Enabled() {
		ok, err := tc.deps.Captcha.Verify(c.UserContext(), strings.TrimSpace(req.CaptchaToken))
		if !ok {
			log.Warnf("[Checkout] Security: captcha rejected for %s: %v", ClientIP(c), err)
			return apiError(c, fiber.StatusBadRequest, "captcha_failed", "Captcha verification failed")
		}
	}

	result, err := tc.deps.Orders.CreateOrder(c.UserContext(), req.CreateOrderInput)
	if err != nil {
		var validationErr *inventory.ValidationError
		switch {
		case errors.As(err, &validationErr):
			return validationFailed(c, validationErr.Fields)
		case errors.Is(err, inventory.ErrInventoryExhausted):
			body := fiber.Map{"error": "sold_out", "message": "Not enough tickets left"}
			var exhausted *inventory.ExhaustedError
			if errors.As(err, &exhausted) {
				body["ticketTypeId"] = exhausted.TicketTypeID
				body["available"] = exhausted.Available
			}
			return c.Status(fiber.StatusConflict).JSON(body)
		case errors.Is(err, inventory.ErrEventNotOnSale):
			return apiError(c, fiber.StatusConflict, "event_not_on_sale", "Event is not on sale")
		case errors.Is(err, inventory.ErrEventNotFound):
			return apiError(c, fiber.StatusNotFound, "event_not_found", "Event not found")
		}
		log.Errorf("[Checkout] CreateOrder for event %d failed: %v", req.EventID, err)
		return apiError(c, fiber.StatusInternalServerError, "checkout_failed", "Checkout failed, please try again")
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleAvailability returns a per-type availability snapshot, cached briefly
func (tc *TicketingController) HandleAvailability(c *fiber.Ctx) error {
	eventUUID := strings.TrimSpace(c.Params("uuid"))
	if eventUUID == "" {
		return apiError(c, fiber.StatusBadRequest, "bad_request", "uuid missing")
	}

	key := "availability:" + eventUUID
	if tc.deps.Cache != nil {
		var cached inventory.EventAvailability
		if err := tc.deps.Cache.GetJSON(c.UserContext(), key, &cached); err == nil {
			c.Set("X-Cache", "HIT")
			return c.JSON(cached)
		}
	}

	availability, err := tc.deps.Orders.Availability(c.UserContext(), eventUUID)
	if err != nil {
		if errors.Is(err, inventory.ErrEventNotFound) {
			return apiError(c, fiber.StatusNotFound, "event_not_found", "Event not found")
		}
		log.Errorf("[Checkout] Availability for %s failed: %v", eventUUID, err)
		return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load availability")
	}

	if tc.deps.Cache != nil {
		if err := tc.deps.Cache.SetJSON(c.UserContext(), key, availability, tc.deps.AvailabilityTTL); err != nil {
			log.Debugf("[Checkout] Availability cache write for %s failed: %v", eventUUID, err)
		}
	}
	c.Set("X-Cache", "MISS")
	return c.JSON(availability)
}

// HandleCancelOrder cancels a pending order and releases its reservations
func (tc *TicketingController) HandleCancelOrder(c *fiber.Ctx) error {
	orderUUID := strings.TrimSpace(c.Params("uuid"))
	if orderUUID == "" {
		return apiError(c, fiber.StatusBadRequest, "bad_request", "uuid missing")
	}

	err := tc.deps.Orders.CancelOrder(c.UserContext(), orderUUID)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"ok": true, "orderUuid": orderUUID, "status": "cancelled"})
	case errors.Is(err, inventory.ErrOrderNotFound):
		return apiError(c, fiber.StatusNotFound, "order_not_found", "Order not found")
	case errors.Is(err, inventory.ErrOrderNotPending):
		return apiError(c, fiber.StatusConflict, "order_not_pending", "Only pending orders can be cancelled")
	}
	log.Errorf("[Checkout] Cancel of order %s failed: %v", orderUUID, err)
	return apiError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to cancel order")
}
