package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/internal/pkg/usercontext"
)

func testApp(lookup OperatorLookup) *fiber.App {
	app := fiber.New()
	app.Get("/private", APIKeyAuth(lookup), func(c *fiber.Ctx) error {
		oc := usercontext.GetOperatorContext(c)
		return c.JSON(fiber.Map{"operator_id": oc.OperatorID, "name": oc.Name})
	})
	return app
}

func TestAPIKeyAuth(t *testing.T) {
	lookup := func(ctx context.Context, raw string) (*models.Operator, error) {
		switch raw {
		case "tfx_good":
			return &models.Operator{ID: 7, Name: "Door Team", Status: models.OperatorStatusActive, APIKeyHash: models.HashAPIKey(raw)}, nil
		case "tfx_disabled":
			return &models.Operator{ID: 8, Status: models.OperatorStatusDisabled, APIKeyHash: models.HashAPIKey(raw)}, nil
		case "tfx_broken":
			return nil, errors.New("connection reset")
		}
		return nil, gorm.ErrRecordNotFound
	}

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"x-api-key header", "X-API-Key", "tfx_good", fiber.StatusOK},
		{"bearer token", "Authorization", "Bearer tfx_good", fiber.StatusOK},
		{"lowercase bearer", "Authorization", "bearer tfx_good", fiber.StatusOK},
		{"missing", "", "", fiber.StatusUnauthorized},
		{"unknown key", "X-API-Key", "tfx_nope", fiber.StatusUnauthorized},
		{"basic auth is not a key", "Authorization", "Basic dXNlcjpwdw==", fiber.StatusUnauthorized},
		{"disabled operator", "X-API-Key", "tfx_disabled", fiber.StatusForbidden},
		{"lookup failure", "X-API-Key", "tfx_broken", fiber.StatusInternalServerError},
	}

	app := testApp(lookup)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/private", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusOK {
				var body struct {
					OperatorID uint   `json:"operator_id"`
					Name       string `json:"name"`
				}
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, uint(7), body.OperatorID)
				assert.Equal(t, "Door Team", body.Name)
			}
		})
	}
}
