package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TicketFox/app/models"
	"github.com/ManuelReschke/TicketFox/app/repository"
	"github.com/ManuelReschke/TicketFox/internal/pkg/cache"
	"github.com/ManuelReschke/TicketFox/internal/pkg/inventory"
	"github.com/ManuelReschke/TicketFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TicketFox/internal/pkg/payments"
	"github.com/ManuelReschke/TicketFox/internal/pkg/scanner"
	"github.com/ManuelReschke/TicketFox/internal/pkg/statistics"
	"github.com/ManuelReschke/TicketFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/TicketFox/internal/pkg/validation"
)

type fakeOrders struct {
	createErr       error
	created         []inventory.CreateOrderInput
	availability    *inventory.EventAvailability
	availabilityErr error
	availCalls      int
	cancelErr       error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, in inventory.CreateOrderInput) (*inventory.CreateOrderResult, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &inventory.CreateOrderResult{
		OrderID:    42,
		OrderUUID:  "order-uuid",
		Reference:  "TFX-ABCDEF1234",
		TicketIDs:  []uint{1, 2},
		ExpiresAt:  time.Date(2026, 1, 1, 12, 15, 0, 0, time.UTC),
		TotalCents: 5000,
		Currency:   "EUR",
	}, nil
}

func (f *fakeOrders) Availability(ctx context.Context, eventUUID string) (*inventory.EventAvailability, error) {
	f.availCalls++
	if f.availabilityErr != nil {
		return nil, f.availabilityErr
	}
	return f.availability, nil
}

func (f *fakeOrders) CancelOrder(ctx context.Context, orderUUID string) error {
	return f.cancelErr
}

type fakeGateway struct {
	result    *payments.IngestResult
	err       error
	gotHeader string
	gotBody   []byte

	voided    *models.Order
	voidErr   error
	voidEvent uint
	voidOrder string
}

func (f *fakeGateway) HandleExternalEvent(ctx context.Context, payload []byte, header string) (*payments.IngestResult, error) {
	f.gotHeader, f.gotBody = header, payload
	return f.result, f.err
}

func (f *fakeGateway) VoidOrder(ctx context.Context, eventID uint, orderUUID string) (*models.Order, error) {
	f.voidEvent, f.voidOrder = eventID, orderUUID
	return f.voided, f.voidErr
}

type fakeScanner struct {
	outcome *scanner.ScanOutcome
	err     error
	got     scanner.ScanRequest
}

func (f *fakeScanner) ScanTicket(ctx context.Context, req scanner.ScanRequest) (*scanner.ScanOutcome, error) {
	f.got = req
	return f.outcome, f.err
}

type fakeCaptcha struct{ accept bool }

func (f fakeCaptcha) Enabled() bool { return true }

func (f fakeCaptcha) Verify(ctx context.Context, token string) (bool, error) {
	if f.accept && token == "ok" {
		return true, nil
	}
	return false, errors.New("invalid-input-response")
}

type fakeArchives struct {
	err   error
	calls int
}

func (f *fakeArchives) EnqueueScanLogArchive(ctx context.Context, event *models.Event, operatorID uint) (*jobqueue.Job, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &jobqueue.Job{ID: "job-1", Status: jobqueue.JobStatusPending}, nil
}

type fakeStats struct {
	err error
}

func (f *fakeStats) EventStats(ctx context.Context, event *models.Event) (*statistics.EventStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &statistics.EventStats{EventID: event.ID, OrdersPaid: 2, TicketsIssued: 4, RevenueCents: 9000}, nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryCache) GetJSON(ctx context.Context, key string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(raw, v)
}

func (m *memoryCache) SetJSON(ctx context.Context, key string, v interface{}, exp time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = raw
	return nil
}

type fakeEventRepo struct {
	events      map[string]*models.Event
	ticketTypes []models.TicketType
	statusErr   error
}

func (f *fakeEventRepo) Create(event *models.Event) error {
	event.ID = uint(len(f.events) + 1)
	event.UUID = "new-event"
	event.Status = models.EventStatusDraft
	f.events[event.UUID] = event
	return nil
}

func (f *fakeEventRepo) GetByOperatorAndUUID(operatorID uint, uuid string) (*models.Event, error) {
	e, ok := f.events[uuid]
	if !ok || e.OperatorID != operatorID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEventRepo) ListByOperator(operatorID uint, offset, limit int) ([]models.Event, error) {
	var out []models.Event
	for _, e := range f.events {
		if e.OperatorID == operatorID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) UpdateStatus(event *models.Event, status string) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	if !event.CanTransitionTo(status) {
		return repository.ErrStatusConflict
	}
	event.Status = status
	return nil
}

func (f *fakeEventRepo) AddTicketType(tt *models.TicketType) error {
	tt.ID = uint(len(f.ticketTypes) + 1)
	f.ticketTypes = append(f.ticketTypes, *tt)
	return nil
}

func (f *fakeEventRepo) ListTicketTypes(eventID uint) ([]models.TicketType, error) {
	return f.ticketTypes, nil
}

type fakeOperatorRepo struct{}

func (fakeOperatorRepo) GetByID(id uint) (*models.Operator, error) {
	if id != 7 {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.Operator{ID: 7, Name: "Door Team", Email: "door@example.com", Status: models.OperatorStatusActive, APIKeyPrefix: "tfx_abcd"}, nil
}

func (fakeOperatorRepo) GetByEmail(email string) (*models.Operator, error) {
	return nil, gorm.ErrRecordNotFound
}

type harness struct {
	app      *fiber.App
	orders   *fakeOrders
	gateway  *fakeGateway
	scanner  *fakeScanner
	archives *fakeArchives
	events   *fakeEventRepo
	cache    *memoryCache
	admitted []uint
}

func newHarness(t *testing.T, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		orders:   &fakeOrders{},
		gateway:  &fakeGateway{},
		scanner:  &fakeScanner{},
		archives: &fakeArchives{},
		cache:    &memoryCache{},
		events: &fakeEventRepo{events: map[string]*models.Event{
			"evt-1":   {ID: 1, UUID: "evt-1", OperatorID: 7, Name: "Gig", Status: models.EventStatusPublished},
			"foreign": {ID: 2, UUID: "foreign", OperatorID: 99, Name: "Other", Status: models.EventStatusOnSale},
		}},
	}
	deps := Dependencies{
		Orders:   h.orders,
		Payments: h.gateway,
		Scanner:  h.scanner,
		Archives: h.archives,
		Stats:    &fakeStats{},
		Cache:    h.cache,
		Repos:    &repository.Repositories{Event: h.events, Operator: fakeOperatorRepo{}},
		OnAdmitted: func(eventID uint) {
			h.admitted = append(h.admitted, eventID)
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	tc := NewTicketingController(deps)

	app := fiber.New()
	app.Post("/checkout", tc.HandleCheckout)
	app.Get("/events/:uuid/availability", tc.HandleAvailability)
	app.Post("/orders/:uuid/cancel", tc.HandleCancelOrder)
	app.Post("/webhooks/payments", tc.HandlePaymentWebhook)

	op := app.Group("/op", func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.OperatorContext{OperatorID: 7, Name: "Door Team", IsAuthenticated: true})
		return c.Next()
	})
	op.Post("/scan", tc.HandleScan)
	op.Get("/events", tc.HandleListEvents)
	op.Post("/events", tc.HandleCreateEvent)
	op.Get("/events/:uuid", tc.HandleGetEvent)
	op.Post("/events/:uuid/ticket-types", tc.HandleAddTicketType)
	op.Post("/events/:uuid/status", tc.HandleUpdateEventStatus)
	op.Post("/events/:uuid/scan-archive", tc.HandleScanArchive)
	op.Get("/events/:uuid/stats", tc.HandleEventStats)
	op.Post("/events/:uuid/orders/:orderUuid/void", tc.HandleVoidOrder)
	op.Get("/me", tc.HandleOperatorProfile)
	h.app = app
	return h
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, headers ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

var checkoutBody = map[string]interface{}{
	"eventId":   1,
	"lineItems": []map[string]interface{}{{"ticketTypeId": 3, "quantity": 2}},
	"buyer":     map[string]string{"name": "Ada Lovelace", "email": "ada@example.com"},
}

func TestCheckoutCreatesOrder(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "POST", "/checkout", checkoutBody)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "order-uuid", body["orderUuid"])
	assert.Equal(t, float64(5000), body["totalCents"])
	require.Len(t, h.orders.created, 1)
	assert.Equal(t, uint(1), h.orders.created[0].EventID)
	assert.Equal(t, 2, h.orders.created[0].LineItems[0].Quantity)
	assert.Equal(t, "ada@example.com", h.orders.created[0].Buyer.Email)
}

func TestCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"sold out", &inventory.ExhaustedError{TicketTypeID: 3, Requested: 2, Available: 1}, fiber.StatusConflict, "sold_out"},
		{"not on sale", inventory.ErrEventNotOnSale, fiber.StatusConflict, "event_not_on_sale"},
		{"unknown event", inventory.ErrEventNotFound, fiber.StatusNotFound, "event_not_found"},
		{"validation", &inventory.ValidationError{Fields: []validation.FieldError{{Field: "buyer.email", Rule: "email"}}}, fiber.StatusBadRequest, "validation_failed"},
		{"storage", errors.New("deadlock"), fiber.StatusInternalServerError, "checkout_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.orders.createErr = tt.err
			resp, body := h.do(t, "POST", "/checkout", checkoutBody)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestCheckoutSoldOutNamesTicketType(t *testing.T) {
	h := newHarness(t, nil)
	h.orders.createErr = &inventory.ExhaustedError{TicketTypeID: 3, Requested: 2, Available: 1}
	_, body := h.do(t, "POST", "/checkout", checkoutBody)
	assert.Equal(t, float64(3), body["ticketTypeId"])
	assert.Equal(t, float64(1), body["available"])
}

func TestCheckoutValidationListsFields(t *testing.T) {
	h := newHarness(t, nil)
	h.orders.createErr = &inventory.ValidationError{Fields: []validation.FieldError{{Field: "buyer.email", Rule: "email"}}}
	_, body := h.do(t, "POST", "/checkout", checkoutBody)
	fields, ok := body["fields"].([]interface{})
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "buyer.email", fields[0].(map[string]interface{})["field"])
}

func TestCheckoutRejectsMalformedJSON(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "POST", "/checkout", "{not json")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Empty(t, h.orders.created)
}

func TestCheckoutCaptcha(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Captcha = fakeCaptcha{accept: true} })

	resp, body := h.do(t, "POST", "/checkout", checkoutBody)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "captcha_failed", body["error"])
	assert.Empty(t, h.orders.created)

	withToken := map[string]interface{}{"captchaToken": "ok"}
	for k, v := range checkoutBody {
		withToken[k] = v
	}
	resp, _ = h.do(t, "POST", "/checkout", withToken)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Len(t, h.orders.created, 1)
}

func TestAvailabilityIsCached(t *testing.T) {
	h := newHarness(t, nil)
	h.orders.availability = &inventory.EventAvailability{
		EventID: 1, EventUUID: "evt-1", Status: models.EventStatusOnSale,
		TicketTypes: []inventory.TypeAvailability{{TicketTypeID: 3, Name: "GA", Total: 100, Sold: 10, Reserved: 5, Available: 85}},
	}

	resp, body := h.do(t, "GET", "/events/evt-1/availability", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.Equal(t, "evt-1", body["eventUuid"])

	resp, body = h.do(t, "GET", "/events/evt-1/availability", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	types := body["ticketTypes"].([]interface{})
	assert.Equal(t, float64(85), types[0].(map[string]interface{})["available"])
	assert.Equal(t, 1, h.orders.availCalls)
}

func TestAvailabilityUnknownEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.orders.availabilityErr = inventory.ErrEventNotFound
	resp, body := h.do(t, "GET", "/events/nope/availability", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "event_not_found", body["error"])
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"pending", nil, fiber.StatusOK},
		{"missing", inventory.ErrOrderNotFound, fiber.StatusNotFound},
		{"already paid", inventory.ErrOrderNotPending, fiber.StatusConflict},
		{"storage", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.orders.cancelErr = tt.err
			resp, _ := h.do(t, "POST", "/orders/o-1/cancel", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPaymentWebhook(t *testing.T) {
	tests := []struct {
		name      string
		result    *payments.IngestResult
		err       error
		status    int
		code      string
		duplicate bool
	}{
		{"applied", &payments.IngestResult{Outcome: payments.OutcomeOrderPaid}, nil, fiber.StatusOK, "", false},
		{"duplicate", &payments.IngestResult{Duplicate: true, Outcome: payments.OutcomeDuplicate}, nil, fiber.StatusOK, "", true},
		{"bad signature", nil, payments.ErrSignatureInvalid, fiber.StatusBadRequest, "invalid_signature", false},
		{"bad payload", nil, payments.ErrInvalidPayload, fiber.StatusBadRequest, "invalid_payload", false},
		{"rolled back", nil, errors.New("lock wait timeout"), fiber.StatusInternalServerError, "webhook_processing_failed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.gateway.result, h.gateway.err = tt.result, tt.err

			resp, body := h.do(t, "POST", "/webhooks/payments", `{"id":"evt_1"}`, PaymentSignatureHeader, "t=1,v1=abc")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "t=1,v1=abc", h.gateway.gotHeader)
			assert.JSONEq(t, `{"id":"evt_1"}`, string(h.gateway.gotBody))
			if tt.code != "" {
				assert.Equal(t, tt.code, body["error"])
				return
			}
			assert.Equal(t, true, body["ok"])
			assert.Equal(t, tt.duplicate, body["duplicate"])
			assert.Equal(t, tt.result.Outcome, body["outcome"])
		})
	}
}

func TestScanStatusCodes(t *testing.T) {
	used := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	ticket := &models.Ticket{UUID: "t-1", EventID: 1, TicketTypeID: 3, Status: models.TicketStatusUsed, UsedAt: &used}

	tests := []struct {
		name     string
		outcome  *scanner.ScanOutcome
		status   int
		admitted bool
	}{
		{"admitted", &scanner.ScanOutcome{Result: scanner.ResultAdmitted, Ticket: ticket, ScanLogID: 9}, fiber.StatusOK, true},
		{"already scanned", &scanner.ScanOutcome{Result: scanner.ResultAlreadyScanned, Ticket: ticket,
			PreviousScan: &scanner.PreviousScan{At: used, DeviceID: "gate-1", ScannedBy: "sam"}}, fiber.StatusOK, false},
		{"concurrent", &scanner.ScanOutcome{Result: scanner.ResultConcurrent}, fiber.StatusOK, false},
		{"wrong event", &scanner.ScanOutcome{Result: scanner.ResultWrongEvent, Ticket: ticket}, fiber.StatusOK, false},
		{"not valid", &scanner.ScanOutcome{Result: scanner.ResultNotValid, Ticket: ticket}, fiber.StatusOK, false},
		{"signature invalid", &scanner.ScanOutcome{Result: scanner.ResultSignatureInvalid}, fiber.StatusUnauthorized, false},
		{"not found", &scanner.ScanOutcome{Result: scanner.ResultNotFound}, fiber.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.scanner.outcome = tt.outcome
			resp, body := h.do(t, "POST", "/op/scan", map[string]string{"token": "tok", "signature": "sig", "deviceId": "gate-1", "scannedBy": "sam"})

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, string(tt.outcome.Result), body["result"])
			if tt.admitted {
				assert.Equal(t, []uint{1}, h.admitted)
			} else {
				assert.Empty(t, h.admitted)
			}
			if tt.outcome.PreviousScan != nil {
				prev := body["previousScan"].(map[string]interface{})
				assert.Equal(t, "gate-1", prev["deviceId"])
			}
		})
	}
}

func TestScanIsScopedToCallingOperator(t *testing.T) {
	h := newHarness(t, nil)
	h.scanner.outcome = &scanner.ScanOutcome{Result: scanner.ResultWrongEvent}
	resp, body := h.do(t, "POST", "/op/scan", map[string]interface{}{
		"token": "tok", "signature": "sig", "deviceId": "gate-1", "scannedBy": "sam", "operatorId": 99,
	})

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "wrong_event", body["result"])
	assert.NotContains(t, body, "ticket")
	assert.Equal(t, uint(7), h.scanner.got.OperatorID, "operator comes from the API key, never the body")
	assert.Empty(t, h.admitted)
}

func TestScanErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.scanner.err = &scanner.ValidationError{Fields: []validation.FieldError{{Field: "deviceId", Rule: "required"}}}
	resp, body := h.do(t, "POST", "/op/scan", map[string]string{"token": "tok"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	h.scanner.err = errors.New("connection refused")
	resp, body = h.do(t, "POST", "/op/scan", map[string]string{"token": "tok"})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "scan_failed", body["error"])
}

func TestCreateEvent(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "POST", "/op/events", map[string]string{"name": "  Summer Fest ", "venue": "Park", "startsAt": "2026-07-01T18:00:00Z"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Summer Fest", body["name"])
	assert.Equal(t, models.EventStatusDraft, body["status"])
	assert.Equal(t, float64(7), body["operator_id"])

	resp, body = h.do(t, "POST", "/op/events", map[string]string{"name": "x"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])
}

func TestAddTicketType(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "POST", "/op/events/evt-1/ticket-types", map[string]interface{}{
		"name": "GA", "priceCents": 2500, "currency": "eur", "totalInventory": 100,
	})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "EUR", body["currency"])
	assert.Equal(t, float64(10), body["max_per_order"])
	assert.Equal(t, float64(0), body["sold"])

	resp, _ = h.do(t, "POST", "/op/events/foreign/ticket-types", map[string]interface{}{"name": "GA", "currency": "EUR"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = h.do(t, "POST", "/op/events/evt-1/ticket-types", map[string]interface{}{"name": "GA", "currency": "EURO", "maxPerOrder": 99})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, body["fields"], 2)
}

func TestUpdateEventStatus(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "POST", "/op/events/evt-1/status", map[string]string{"status": "on_sale"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.EventStatusOnSale, body["status"])

	resp, body = h.do(t, "POST", "/op/events/evt-1/status", map[string]string{"status": "draft"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	resp, body = h.do(t, "POST", "/op/events/evt-1/status", map[string]string{"status": "published"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["error"])
}

func TestUpdateEventStatusConflict(t *testing.T) {
	h := newHarness(t, nil)
	h.events.statusErr = repository.ErrStatusConflict
	resp, body := h.do(t, "POST", "/op/events/evt-1/status", map[string]string{"status": "closed"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", body["error"])
	assert.Equal(t, models.EventStatusPublished, body["status"])
}

func TestScanArchive(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "POST", "/op/events/evt-1/scan-archive", nil)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, 1, h.archives.calls)

	disabled := newHarness(t, func(d *Dependencies) { d.Archives = nil })
	resp, body = disabled.do(t, "POST", "/op/events/evt-1/scan-archive", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "archive_disabled", body["error"])
}

func TestEventStats(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "GET", "/op/events/evt-1/stats", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(9000), body["revenueCents"])
	assert.Equal(t, float64(1), body["eventId"])

	resp, _ = h.do(t, "GET", "/op/events/foreign/stats", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	failing := newHarness(t, func(d *Dependencies) { d.Stats = &fakeStats{err: errors.New("db gone")} })
	resp, body = failing.do(t, "GET", "/op/events/evt-1/stats", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_server_error", body["error"])

	missing := newHarness(t, func(d *Dependencies) { d.Stats = nil })
	resp, _ = missing.do(t, "GET", "/op/events/evt-1/stats", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestVoidOrder(t *testing.T) {
	cancelled := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, nil)
	h.gateway.voided = &models.Order{UUID: "ord-1", Reference: "TF-ABC123", Status: models.OrderStatusCancelled, CancelledAt: &cancelled}

	resp, body := h.do(t, "POST", "/op/events/evt-1/orders/ord-1/void", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "TF-ABC123", body["reference"])
	assert.Equal(t, "2026-06-02T09:00:00Z", body["cancelled_at"])
	assert.Equal(t, uint(1), h.gateway.voidEvent)
	assert.Equal(t, "ord-1", h.gateway.voidOrder)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown order", inventory.ErrOrderNotFound, fiber.StatusNotFound, "order_not_found"},
		{"not paid", payments.ErrOrderNotPaid, fiber.StatusConflict, "order_not_paid"},
		{"storage", errors.New("deadlock"), fiber.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.gateway.voidErr = tt.err
			resp, body := h.do(t, "POST", "/op/events/evt-1/orders/ord-1/void", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}

	h = newHarness(t, nil)
	resp, _ = h.do(t, "POST", "/op/events/foreign/orders/ord-1/void", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Empty(t, h.gateway.voidOrder, "orders of other operators' events are never touched")
}

func TestOperatorProfile(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(t, "GET", "/op/me", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Door Team", body["name"])
	assert.Equal(t, "tfx_abcd", body["api_key_prefix"])
	assert.Nil(t, body["api_key_last_used_at"])
}

func TestAdaptersWithoutController(t *testing.T) {
	ticketingController = nil
	app := fiber.New()
	app.Post("/checkout", HandleCheckout)
	resp, err := app.Test(httptest.NewRequest("POST", "/checkout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
