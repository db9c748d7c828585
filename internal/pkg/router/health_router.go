package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/jobqueue"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// HealthRouter answers /health. Jobs is informational and never degrades
// the status.
type HealthRouter struct {
	Checks map[string]Check
	Jobs   func(ctx context.Context) (*jobqueue.QueueStats, error)
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.handle)
}

func (h HealthRouter) handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := fiber.Map{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			log.Warnf("[Health] %s check failed: %v", name, err)
			checks[name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	overall := "ok"
	if status != fiber.StatusOK {
		overall = "degraded"
	}
	body := fiber.Map{"status": overall, "checks": checks}
	if h.Jobs != nil {
		if stats, err := h.Jobs(ctx); err != nil {
			log.Warnf("[Health] Job queue stats unavailable: %v", err)
		} else if stats != nil {
			body["jobs"] = stats
		}
	}
	return c.Status(status).JSON(body)
}

func NewHealthRouter() *HealthRouter {
	return &HealthRouter{Checks: map[string]Check{
		"database": func(ctx context.Context) error {
			db := database.GetDB()
			if db == nil {
				return errNotConfigured
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"cache": func(ctx context.Context) error {
			client := cache.GetClient()
			if client == nil {
				return errNotConfigured
			}
			return client.Ping(ctx).Err()
		},
	}, Jobs: func(ctx context.Context) (*jobqueue.QueueStats, error) {
		m := jobqueue.GetManager()
		if m == nil || m.GetQueue() == nil {
			return nil, nil
		}
		return m.GetQueue().Stats(ctx)
	}}
}
