package apiv1

import (
	"context"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specPath = "../../../public/docs/v1/openapi.yml"

type recordingServer struct {
	calls []string
}

func (r *recordingServer) record(c *fiber.Ctx, name string) error {
	r.calls = append(r.calls, name)
	return c.SendString(name)
}

func (r *recordingServer) GetPing(c *fiber.Ctx) error      { return r.record(c, "GetPing") }
func (r *recordingServer) PostCheckout(c *fiber.Ctx) error { return r.record(c, "PostCheckout") }
func (r *recordingServer) GetEventAvailability(c *fiber.Ctx, uuid string) error {
	return r.record(c, "GetEventAvailability:"+uuid)
}
func (r *recordingServer) PostOrderCancel(c *fiber.Ctx, uuid string) error {
	return r.record(c, "PostOrderCancel:"+uuid)
}
func (r *recordingServer) PostPaymentWebhook(c *fiber.Ctx) error {
	return r.record(c, "PostPaymentWebhook")
}
func (r *recordingServer) PostScan(c *fiber.Ctx) error { return r.record(c, "PostScan") }
func (r *recordingServer) GetOperatorProfile(c *fiber.Ctx) error {
	return r.record(c, "GetOperatorProfile")
}
func (r *recordingServer) GetEvents(c *fiber.Ctx) error { return r.record(c, "GetEvents") }
func (r *recordingServer) PostEvent(c *fiber.Ctx) error { return r.record(c, "PostEvent") }
func (r *recordingServer) GetEvent(c *fiber.Ctx, uuid string) error {
	return r.record(c, "GetEvent:"+uuid)
}
func (r *recordingServer) PostEventTicketType(c *fiber.Ctx, uuid string) error {
	return r.record(c, "PostEventTicketType:"+uuid)
}
func (r *recordingServer) PostEventStatus(c *fiber.Ctx, uuid string) error {
	return r.record(c, "PostEventStatus:"+uuid)
}
func (r *recordingServer) GetEventStats(c *fiber.Ctx, uuid string) error {
	return r.record(c, "GetEventStats:"+uuid)
}

func (r *recordingServer) PostEventScanArchive(c *fiber.Ctx, uuid string) error {
	return r.record(c, "PostEventScanArchive:"+uuid)
}

func (r *recordingServer) PostEventOrderVoid(c *fiber.Ctx, uuid string, orderUuid string) error {
	return r.record(c, "PostEventOrderVoid:"+uuid+":"+orderUuid)
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background(), specPath)
	require.NoError(t, err)
	assert.Equal(t, "TicketFox API", doc.Info.Title)
	assert.Contains(t, doc.Components.SecuritySchemes, "ApiKeyAuth")
}

func TestLoadSpecMissingFile(t *testing.T) {
	_, err := LoadSpec(context.Background(), "does-not-exist.yml")
	assert.Error(t, err)
}

func TestDocumentedOperationsAreRegistered(t *testing.T) {
	doc, err := LoadSpec(context.Background(), specPath)
	require.NoError(t, err)

	app := fiber.New()
	RegisterHandlers(app, &recordingServer{})

	registered := map[string]bool{}
	for _, route := range app.GetRoutes(true) {
		if route.Method == fiber.MethodHead {
			continue
		}
		registered[route.Method+" "+route.Path] = true
	}

	var documented []string
	for _, op := range Operations(doc) {
		documented = append(documented, op.Method+" "+op.Path)
	}
	sort.Strings(documented)

	assert.Len(t, documented, len(registered))
	for _, key := range documented {
		assert.True(t, registered[key], "documented operation %s is not routed", key)
	}
}

func TestRouteMiddlewares(t *testing.T) {
	var storefront, operator int
	srv := &recordingServer{}
	app := fiber.New()
	RegisterHandlersWithOptions(app, srv, RouteOptions{
		StorefrontMiddlewares: []fiber.Handler{func(c *fiber.Ctx) error { storefront++; return c.Next() }},
		OperatorMiddlewares: []fiber.Handler{func(c *fiber.Ctx) error {
			operator++
			if c.Get("X-API-Key") == "" {
				return c.SendStatus(fiber.StatusUnauthorized)
			}
			return c.Next()
		}},
	})

	do := func(method, path string, key string) int {
		req := httptest.NewRequest(method, path, nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("POST", "/checkout", ""))
	assert.Equal(t, fiber.StatusOK, do("GET", "/events/e-1/availability", ""))
	assert.Equal(t, fiber.StatusOK, do("POST", "/webhooks/payments", ""))
	assert.Equal(t, 2, storefront)
	assert.Equal(t, 0, operator)

	assert.Equal(t, fiber.StatusUnauthorized, do("POST", "/scan", ""))
	assert.Equal(t, fiber.StatusOK, do("POST", "/events/e-1/status", "tfx_key"))
	assert.Equal(t, fiber.StatusUnauthorized, do("POST", "/events/e-1/orders/o-9/void", ""))
	assert.Equal(t, fiber.StatusOK, do("POST", "/events/e-1/orders/o-9/void", "tfx_key"))
	assert.Equal(t, 4, operator)

	assert.Equal(t, []string{"PostCheckout", "GetEventAvailability:e-1", "PostPaymentWebhook", "PostEventStatus:e-1",
		"PostEventOrderVoid:e-1:o-9"}, srv.calls)
}

func TestFiberPath(t *testing.T) {
	assert.Equal(t, "/events/:uuid/ticket-types", fiberPath("/events/{uuid}/ticket-types"))
	assert.Equal(t, "/ping", fiberPath("/ping"))
}
