package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/app/repository"
	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
	"github.com/ManuelReschke/TicketFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TicketFox/internal/pkg/payments"
	"github.com/ManuelReschke/TicketFox/internal/pkg/scanner"
	"github.com/ManuelReschke/TicketFox/internal/pkg/statistics"
)

const DefaultAvailabilityTTL = 2 * time.Second

// OrderService is implemented by *inventory.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, in inventory.CreateOrderInput) (*inventory.CreateOrderResult, error)
	Availability(ctx context.Context, eventUUID string) (*inventory.EventAvailability, error)
	CancelOrder(ctx context.Context, orderUUID string) error
}

// PaymentGateway is implemented by *payments.Service.
type PaymentGateway interface {
	HandleExternalEvent(ctx context.Context, payload []byte, signatureHeader string) (*payments.IngestResult, error)
	VoidOrder(ctx context.Context, eventID uint, orderUUID string) (*models.Order, error)
}

// TicketScanner is implemented by *scanner.Service.
type TicketScanner interface {
	ScanTicket(ctx context.Context, req scanner.ScanRequest) (*scanner.ScanOutcome, error)
}

// CaptchaVerifier is implemented by *hcaptcha.Client.
type CaptchaVerifier interface {
	Enabled() bool
	Verify(ctx context.Context, token string) (bool, error)
}

// ArchiveScheduler is implemented by *jobqueue.Manager.
type ArchiveScheduler interface {
	EnqueueScanLogArchive(ctx context.Context, event *models.Event, operatorID uint) (*jobqueue.Job, error)
}

// EventStatistics is implemented by *statistics.Service.
type EventStatistics interface {
	EventStats(ctx context.Context, event *models.Event) (*statistics.EventStats, error)
}

// AvailabilityCache stores availability snapshots for a short time.
type AvailabilityCache interface {
	GetJSON(ctx context.Context, key string, v interface{}) error
	SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error
}

// RedisAvailabilityCache uses the shared Redis client.
type RedisAvailabilityCache struct{}

func (RedisAvailabilityCache) GetJSON(ctx context.Context, key string, v interface{}) error {
	return cache.GetJSON(ctx, key, v)
}

func (RedisAvailabilityCache) SetJSON(ctx context.Context, key string, v interface{}, expiration time.Duration) error {
	return cache.SetJSON(ctx, key, v, expiration)
}

// Dependencies wires the ticketing controller. Captcha, Archives, Cache and
// OnAdmitted are optional.
type Dependencies struct {
	Orders          OrderService
	Payments        PaymentGateway
	Scanner         TicketScanner
	Captcha         CaptchaVerifier
	Archives        ArchiveScheduler
	Stats           EventStatistics
	Cache           AvailabilityCache
	AvailabilityTTL time.Duration
	Repos           *repository.Repositories
	OnAdmitted      func(eventID uint)
}

// TicketingController handles checkout, payment webhooks, door scans and
// operator event management
type TicketingController struct {
	deps Dependencies
}

// NewTicketingController creates a new ticketing controller
func NewTicketingController(deps Dependencies) *TicketingController {
	if deps.AvailabilityTTL <= 0 {
		deps.AvailabilityTTL = DefaultAvailabilityTTL
	}
	return &TicketingController{deps: deps}
}

// Global ticketing controller instance
var ticketingController *TicketingController

// InitializeTicketingController sets the global controller used by the adapters
func InitializeTicketingController(deps Dependencies) {
	ticketingController = NewTicketingController(deps)
}

// GetTicketingController returns the global ticketing controller instance
func GetTicketingController() *TicketingController {
	return ticketingController
}

// Adapter functions for the router

func HandleCheckout(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleCheckout)
}

func HandleAvailability(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleAvailability)
}

func HandleCancelOrder(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleCancelOrder)
}

func HandlePaymentWebhook(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandlePaymentWebhook)
}

func HandleScan(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleScan)
}

func HandleListEvents(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleListEvents)
}

func HandleCreateEvent(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleCreateEvent)
}

func HandleGetEvent(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleGetEvent)
}

func HandleAddTicketType(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleAddTicketType)
}

func HandleUpdateEventStatus(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleUpdateEventStatus)
}

func HandleScanArchive(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleScanArchive)
}

func HandleEventStats(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleEventStats)
}

func HandleVoidOrder(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleVoidOrder)
}

func HandleOperatorProfile(c *fiber.Ctx) error {
	return withController(c, (*TicketingController).HandleOperatorProfile)
}

func withController(c *fiber.Ctx, h func(*TicketingController, *fiber.Ctx) error) error {
	tc := GetTicketingController()
	if tc == nil {
		return apiError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Ticketing services are not initialized")
	}
	return h(tc, c)
}
