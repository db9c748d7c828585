package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// ServerInterface represents all server handlers of public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (POST /checkout)
	PostCheckout(c *fiber.Ctx) error
	// (GET /events/{uuid}/availability)
	GetEventAvailability(c *fiber.Ctx, uuid string) error
	// (POST /orders/{uuid}/cancel)
	PostOrderCancel(c *fiber.Ctx, uuid string) error
	// (POST /webhooks/payments)
	PostPaymentWebhook(c *fiber.Ctx) error
	// (POST /scan)
	PostScan(c *fiber.Ctx) error
	// (GET /operator/me)
	GetOperatorProfile(c *fiber.Ctx) error
	// (GET /events)
	GetEvents(c *fiber.Ctx) error
	// (POST /events)
	PostEvent(c *fiber.Ctx) error
	// (GET /events/{uuid})
	GetEvent(c *fiber.Ctx, uuid string) error
	// (POST /events/{uuid}/ticket-types)
	PostEventTicketType(c *fiber.Ctx, uuid string) error
	// (POST /events/{uuid}/status)
	PostEventStatus(c *fiber.Ctx, uuid string) error
	// (GET /events/{uuid}/stats)
	GetEventStats(c *fiber.Ctx, uuid string) error
	// (POST /events/{uuid}/scan-archive)
	PostEventScanArchive(c *fiber.Ctx, uuid string) error
	// (POST /events/{uuid}/orders/{orderUuid}/void)
	PostEventOrderVoid(c *fiber.Ctx, uuid string, orderUuid string) error
}

// ServerInterfaceWrapper converts path parameters to handler arguments.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// RouteOptions attaches middleware per security scheme. Storefront routes
// carry no credentials; operator routes require an API key.
type RouteOptions struct {
	BaseURL               string
	StorefrontMiddlewares []fiber.Handler
	OperatorMiddlewares   []fiber.Handler
}

// RegisterHandlers registers the routes without extra middleware.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, RouteOptions{})
}

func RegisterHandlersWithOptions(router fiber.Router, si ServerInterface, options RouteOptions) {
	wrapper := ServerInterfaceWrapper{Handler: si}
	base := options.BaseURL

	router.Get(base+"/ping", wrapper.GetPing)

	// Provider retries must never hit the storefront limiter.
	router.Post(base+"/webhooks/payments", wrapper.PostPaymentWebhook)

	storefront := func(h fiber.Handler) []fiber.Handler {
		return withMiddlewares(options.StorefrontMiddlewares, h)
	}
	router.Post(base+"/checkout", storefront(wrapper.PostCheckout)...)
	router.Get(base+"/events/:uuid/availability", storefront(wrapper.GetEventAvailability)...)
	router.Post(base+"/orders/:uuid/cancel", storefront(wrapper.PostOrderCancel)...)

	operator := func(h fiber.Handler) []fiber.Handler {
		return withMiddlewares(options.OperatorMiddlewares, h)
	}
	router.Post(base+"/scan", operator(wrapper.PostScan)...)
	router.Get(base+"/operator/me", operator(wrapper.GetOperatorProfile)...)
	router.Get(base+"/events", operator(wrapper.GetEvents)...)
	router.Post(base+"/events", operator(wrapper.PostEvent)...)
	router.Get(base+"/events/:uuid", operator(wrapper.GetEvent)...)
	router.Post(base+"/events/:uuid/ticket-types", operator(wrapper.PostEventTicketType)...)
	router.Post(base+"/events/:uuid/status", operator(wrapper.PostEventStatus)...)
	router.Get(base+"/events/:uuid/stats", operator(wrapper.GetEventStats)...)
	router.Post(base+"/events/:uuid/scan-archive", operator(wrapper.PostEventScanArchive)...)
	router.Post(base+"/events/:uuid/orders/:orderUuid/void", operator(wrapper.PostEventOrderVoid)...)
}

func withMiddlewares(m []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(m)+1)
	out = append(out, m...)
	return append(out, h)
}

// GetPing operation middleware
func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

// PostCheckout operation middleware
func (siw *ServerInterfaceWrapper) PostCheckout(c *fiber.Ctx) error {
	return siw.Handler.PostCheckout(c)
}

// GetEventAvailability operation middleware
func (siw *ServerInterfaceWrapper) GetEventAvailability(c *fiber.Ctx) error {
	return siw.Handler.GetEventAvailability(c, c.Params("uuid"))
}

// PostOrderCancel operation middleware
func (siw *ServerInterfaceWrapper) PostOrderCancel(c *fiber.Ctx) error {
	return siw.Handler.PostOrderCancel(c, c.Params("uuid"))
}

// PostPaymentWebhook operation middleware
func (siw *ServerInterfaceWrapper) PostPaymentWebhook(c *fiber.Ctx) error {
	return siw.Handler.PostPaymentWebhook(c)
}

// PostScan operation middleware
func (siw *ServerInterfaceWrapper) PostScan(c *fiber.Ctx) error {
	return siw.Handler.PostScan(c)
}

// GetOperatorProfile operation middleware
func (siw *ServerInterfaceWrapper) GetOperatorProfile(c *fiber.Ctx) error {
	return siw.Handler.GetOperatorProfile(c)
}

// GetEvents operation middleware
func (siw *ServerInterfaceWrapper) GetEvents(c *fiber.Ctx) error {
	return siw.Handler.GetEvents(c)
}

// PostEvent operation middleware
func (siw *ServerInterfaceWrapper) PostEvent(c *fiber.Ctx) error {
	return siw.Handler.PostEvent(c)
}

// GetEvent operation middleware
func (siw *ServerInterfaceWrapper) GetEvent(c *fiber.Ctx) error {
	return siw.Handler.GetEvent(c, c.Params("uuid"))
}

// PostEventTicketType operation middleware
func (siw *ServerInterfaceWrapper) PostEventTicketType(c *fiber.Ctx) error {
	return siw.Handler.PostEventTicketType(c, c.Params("uuid"))
}

// PostEventStatus operation middleware
func (siw *ServerInterfaceWrapper) PostEventStatus(c *fiber.Ctx) error {
	return siw.Handler.PostEventStatus(c, c.Params("uuid"))
}

// GetEventStats operation middleware
func (siw *ServerInterfaceWrapper) GetEventStats(c *fiber.Ctx) error {
	return siw.Handler.GetEventStats(c, c.Params("uuid"))
}

// PostEventScanArchive operation middleware
func (siw *ServerInterfaceWrapper) PostEventScanArchive(c *fiber.Ctx) error {
	return siw.Handler.PostEventScanArchive(c, c.Params("uuid"))
}

// PostEventOrderVoid operation middleware
func (siw *ServerInterfaceWrapper) PostEventOrderVoid(c *fiber.Ctx) error {
	return siw.Handler.PostEventOrderVoid(c, c.Params("uuid"), c.Params("orderUuid"))
}
