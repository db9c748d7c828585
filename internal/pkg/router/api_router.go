package router

import (
	apiv1 "github.com/ManuelReschke/TicketFox/internal/api/v1"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TicketFox/app/controllers"
	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
	"github.com/ManuelReschke/TicketFox/internal/pkg/middleware"
	"github.com/ManuelReschke/TicketFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	// Limiter guards the storefront routes.
	Limiter fiber.Handler
	// OperatorAuth guards scanning and event management.
	OperatorAuth fiber.Handler
	Server       apiv1.ServerInterface
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	opts := apiv1.RouteOptions{}
	if h.Limiter != nil {
		opts.StorefrontMiddlewares = append(opts.StorefrontMiddlewares, h.Limiter)
	}
	if h.OperatorAuth != nil {
		opts.OperatorMiddlewares = append(opts.OperatorMiddlewares, h.OperatorAuth)
	}
	apiv1.RegisterHandlersWithOptions(v1, h.Server, opts)
}

// NewApiRouter wires the production middlewares. Limiter counters live in
// Redis when the cache is set up.
func NewApiRouter() *ApiRouter {
	var storage fiber.Storage
	if cache.GetClient() != nil {
		storage = ratelimit.NewStorage()
	}
	return &ApiRouter{
		Limiter:      ratelimit.New(ratelimit.ConfigFromEnv(), storage, controllers.ClientIP),
		OperatorAuth: middleware.APIKeyAuthMiddleware(),
		Server:       apiv1.NewAPIServer(),
	}
}
