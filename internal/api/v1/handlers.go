package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/ManuelReschke/TicketFox/app/controllers"
)

// Pong is the response of GET /ping
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostCheckout reserves tickets and creates a pending order.
func (s *APIServer) PostCheckout(c *fiber.Ctx) error {
	return controllers.HandleCheckout(c)
}

// GetEventAvailability returns the cached per-type availability.
// Controller reads uuid from route params; wrapper already set it.
func (s *APIServer) GetEventAvailability(c *fiber.Ctx, uuid string) error {
	return controllers.HandleAvailability(c)
}

func (s *APIServer) PostOrderCancel(c *fiber.Ctx, uuid string) error {
	return controllers.HandleCancelOrder(c)
}

// PostPaymentWebhook is called by the payment provider, authenticated by the
// Stripe-Signature header rather than an API key.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx) error {
	return controllers.HandlePaymentWebhook(c)
}

// PostScan checks a ticket in at the door.
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) PostScan(c *fiber.Ctx) error {
	return controllers.HandleScan(c)
}

func (s *APIServer) GetOperatorProfile(c *fiber.Ctx) error {
	return controllers.HandleOperatorProfile(c)
}

func (s *APIServer) GetEvents(c *fiber.Ctx) error {
	return controllers.HandleListEvents(c)
}

func (s *APIServer) PostEvent(c *fiber.Ctx) error {
	return controllers.HandleCreateEvent(c)
}

func (s *APIServer) GetEvent(c *fiber.Ctx, uuid string) error {
	return controllers.HandleGetEvent(c)
}

func (s *APIServer) PostEventTicketType(c *fiber.Ctx, uuid string) error {
	return controllers.HandleAddTicketType(c)
}

func (s *APIServer) PostEventStatus(c *fiber.Ctx, uuid string) error {
	return controllers.HandleUpdateEventStatus(c)
}

func (s *APIServer) GetEventStats(c *fiber.Ctx, uuid string) error {
	return controllers.HandleEventStats(c)
}

// PostEventScanArchive schedules an S3 export of the event's scan log.
func (s *APIServer) PostEventScanArchive(c *fiber.Ctx, uuid string) error {
	return controllers.HandleScanArchive(c)
}

// PostEventOrderVoid cancels a paid order of one of the operator's events.
func (s *APIServer) PostEventOrderVoid(c *fiber.Ctx, uuid string, orderUuid string) error {
	return controllers.HandleVoidOrder(c)
}
