package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketFox/internal/pkg/scanner"
	"github.com/ManuelReschke/TicketFox/internal/pkg/usercontext"
)

// HandleScan admits or rejects a ticket at the door. Rejections other than
// a bad signature or an unknown token still answer 200 so the device can
// show the reason. Only tickets of the caller's own events can be admitted.
func (tc *TicketingController) HandleScan(c *fiber.Ctx) error {
	var req scanner.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, "invalid_request", "Request body must be JSON")
	}
	req.OperatorID = usercontext.GetOperatorID(c)

	out, err := tc.deps.Scanner.ScanTicket(c.UserContext(), req)
	if err != nil {
		var validationErr *scanner.ValidationError
		if errors.As(err, &validationErr) {
			return validationFailed(c, validationErr.Fields)
		}
		log.Errorf("[Scan] Operator %d device %s: %v", usercontext.GetOperatorID(c), req.DeviceID, err)
		return apiError(c, fiber.StatusInternalServerError, "scan_failed", "Scan could not be processed, try again")
	}

	status := fiber.StatusOK
	switch out.Result {
	case scanner.ResultSignatureInvalid:
		status = fiber.StatusUnauthorized
	case scanner.ResultNotFound:
		status = fiber.StatusNotFound
	case scanner.ResultAdmitted:
		if tc.deps.OnAdmitted != nil && out.Ticket != nil {
			tc.deps.OnAdmitted(out.Ticket.EventID)
		}
	}

	body := fiber.Map{"result": out.Result}
	if out.Ticket != nil {
		body["ticket"] = fiber.Map{
			"uuid":         out.Ticket.UUID,
			"eventId":      out.Ticket.EventID,
			"ticketTypeId": out.Ticket.TicketTypeID,
			"status":       out.Ticket.Status,
			"usedAt":       formatTimePtr(out.Ticket.UsedAt),
		}
	}
	if out.PreviousScan != nil {
		body["previousScan"] = out.PreviousScan
	}
	if out.ScanLogID != 0 {
		body["scanLogId"] = out.ScanLogID
	}
	return c.Status(status).JSON(body)
}
