package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketFox/internal/pkg/payments"
)

const PaymentSignatureHeader = "Stripe-Signature"

// HandlePaymentWebhook hands a provider delivery to the gateway. Anything
// but a 2xx makes the provider redeliver, so only committed or duplicate
// events are acknowledged.
func (tc *TicketingController) HandlePaymentWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	result, err := tc.deps.Payments.HandleExternalEvent(c.UserContext(), payload, c.Get(PaymentSignatureHeader))
	switch {
	case err == nil:
		return c.JSON(fiber.Map{
			"ok":        true,
			"duplicate": result.Duplicate,
			"outcome":   result.Outcome,
		})
	case errors.Is(err, payments.ErrSignatureInvalid):
		return apiError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
	case errors.Is(err, payments.ErrInvalidPayload):
		return apiError(c, fiber.StatusBadRequest, "invalid_payload", "Webhook payload is not a valid event")
	}

	log.Errorf("[Webhook] Processing failed from %s: %v", ClientIP(c), err)
	return apiError(c, fiber.StatusInternalServerError, "webhook_processing_failed", "Event could not be processed")
}
