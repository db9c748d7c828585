package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/database"
	"github.com/ManuelReschke/TicketFox/internal/pkg/usercontext"
)

// OperatorLookup resolves an active operator from a raw API key. Unknown
// keys return gorm.ErrRecordNotFound.
type OperatorLookup func(ctx context.Context, rawKey string) (*models.Operator, error)

// DatabaseOperatorLookup looks keys up in the operators table and records usage.
func DatabaseOperatorLookup(ctx context.Context, rawKey string) (*models.Operator, error) {
	db := database.GetDB()
	if db == nil {
		return nil, errors.New("database unavailable")
	}
	op, err := models.FindOperatorByAPIKey(db.WithContext(ctx), rawKey)
	if err != nil {
		return nil, err
	}
	if err := op.TouchAPIKeyUsage(db.WithContext(ctx)); err != nil {
		log.Warnf("[APIKey] Failed to update api key usage timestamp for operator %d: %v", op.ID, err)
	}
	return op, nil
}

// APIKeyAuthMiddleware authenticates operator requests against the database.
func APIKeyAuthMiddleware() fiber.Handler {
	return APIKeyAuth(DatabaseOperatorLookup)
}

// APIKeyAuth authenticates requests carrying an operator API key header.
func APIKeyAuth(lookup OperatorLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		op, err := lookup(c.UserContext(), apiKey)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warnf("[APIKey] Rejected unknown API key from %s", c.IP())
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("[APIKey] API key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}
		if !op.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Operator disabled"})
		}

		usercontext.Set(c, usercontext.OperatorContext{
			OperatorID:      op.ID,
			Name:            op.Name,
			Email:           op.Email,
			IsAuthenticated: true,
		})
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
