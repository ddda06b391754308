package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/billing"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/quota"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/usercontext"
)

type fakeEngine struct {
	err          error
	window       quota.UsageWindow
	lastPayload  []byte
	lastSig      string
	lastProject  orchestrator.ProjectInput
	lastGuidance string
}

func (e *fakeEngine) RegisterAccount(_ context.Context, userID uint) (*models.Account, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &models.Account{UserID: userID, PlanType: models.PlanFree, GenerationsLimit: 2}, nil
}

func (e *fakeEngine) EvaluateUsage(context.Context, uint) (quota.UsageWindow, error) {
	return e.window, e.err
}

func (e *fakeEngine) RunSingleGeneration(_ context.Context, accountID, projectID uint, opts generator.Options) (*orchestrator.Result, error) {
	e.lastGuidance = opts.Guidance
	if e.err != nil {
		return nil, e.err
	}
	return &orchestrator.Result{Project: &models.Project{ID: projectID, UserID: accountID}}, nil
}

func (e *fakeEngine) RunProjectGeneration(_ context.Context, accountID uint, p orchestrator.ProjectInput, _ generator.Options) (*orchestrator.Result, error) {
	e.lastProject = p
	if e.err != nil {
		return nil, e.err
	}
	return &orchestrator.Result{Project: &models.Project{ID: 1, UserID: accountID, Name: p.Name}}, nil
}

func (e *fakeEngine) EnrichTicket(_ context.Context, _, ticketID uint) (*models.Ticket, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &models.Ticket{ID: ticketID}, nil
}

func (e *fakeEngine) HandleProviderEvent(_ context.Context, payload []byte, signature string) error {
	e.lastPayload = payload
	e.lastSig = signature
	return e.err
}

func (e *fakeEngine) StartCheckout(context.Context, uint, string) (string, error) {
	return "https://checkout.test/session", e.err
}

func (e *fakeEngine) OpenPortal(context.Context, uint) (string, error) {
	return "https://portal.test/session", e.err
}

func (e *fakeEngine) CancelSubscription(context.Context, uint) error {
	return e.err
}

func newTestApp(engine Engine) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{UserID: 42, Email: "a@example.com", IsLoggedIn: true})
		return c.Next()
	})

	ac := NewAccountController(engine)
	gc := NewGenerationController(engine)
	bc := NewBillingController(engine)
	app.Post("/account", ac.HandleRegister)
	app.Get("/usage", ac.HandleUsage)
	app.Post("/projects/generate", gc.HandleGenerateProject)
	app.Post("/projects/:id/generate", gc.HandleGenerateForProject)
	app.Post("/tickets/:id/enrich", gc.HandleEnrichTicket)
	app.Post("/billing/checkout", bc.HandleCheckout)
	app.Post("/billing/cancel", bc.HandleCancel)
	app.Post("/webhooks/stripe", bc.HandleStripeWebhook)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestErrorMapping(t *testing.T) {
	window := quota.UsageWindow{Allowed: false, Used: 2, Limit: 2, Remaining: 0, ResetAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"quota exceeded", &orchestrator.StageError{Stage: orchestrator.StageQuota, Err: &quota.ExceededError{Window: window}}, fiber.StatusPaymentRequired, "quota_exceeded"},
		{"generator failure", &orchestrator.StageError{Stage: orchestrator.StageGenerator, Err: generator.ErrMalformedOutput}, fiber.StatusBadGateway, "generation_failed"},
		{"generator timeout", &orchestrator.StageError{Stage: orchestrator.StageGenerator, Err: context.DeadlineExceeded}, fiber.StatusBadGateway, "generation_failed"},
		{"persistence failure", &orchestrator.StageError{Stage: orchestrator.StagePersistence, Err: errors.New("deadlock")}, fiber.StatusInternalServerError, "persistence_failed"},
		{"project not found", &orchestrator.StageError{Stage: orchestrator.StageProject, Err: orchestrator.ErrProjectNotFound}, fiber.StatusNotFound, "project_not_found"},
		{"account not found", ledger.ErrAccountNotFound, fiber.StatusNotFound, "account_not_found"},
		{"unexpected", errors.New("db down"), fiber.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeEngine{err: tt.err})

			status, body := doRequest(t, app, "POST", "/projects/7/generate", `{"guidance":"mvp"}`)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestQuotaExceededCarriesUsageWindow(t *testing.T) {
	window := quota.UsageWindow{Allowed: false, Used: 2, Limit: 2, Remaining: 0}
	app := newTestApp(&fakeEngine{err: fmt.Errorf("wrapped: %w", &quota.ExceededError{Window: window})})

	status, body := doRequest(t, app, "POST", "/projects/generate", `{"name":"Pilot"}`)
	require.Equal(t, fiber.StatusPaymentRequired, status)
	usage, ok := body["usage"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, usage["allowed"])
	assert.Equal(t, float64(0), usage["remaining"])
}

func TestGenerateProjectValidation(t *testing.T) {
	engine := &fakeEngine{}
	app := newTestApp(engine)

	status, body := doRequest(t, app, "POST", "/projects/generate", `{"description":"no name"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", body["error"])

	status, _ = doRequest(t, app, "POST", "/projects/generate", `{"name":"Pilot","tech_stack":["Go"]}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, []string{"Go"}, engine.lastProject.TechStack)
}

func TestGenerateForProjectInvalidID(t *testing.T) {
	app := newTestApp(&fakeEngine{})

	status, body := doRequest(t, app, "POST", "/projects/abc/generate", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_id", body["error"])
}

func TestGenerateForProjectWithoutBody(t *testing.T) {
	engine := &fakeEngine{}
	app := newTestApp(engine)

	status, _ := doRequest(t, app, "POST", "/projects/3/generate", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, engine.lastGuidance)
}

func TestUsage(t *testing.T) {
	app := newTestApp(&fakeEngine{window: quota.UsageWindow{Allowed: true, Used: 1, Limit: 2, Remaining: 1}})

	status, body := doRequest(t, app, "GET", "/usage", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["remaining"])
}

func TestRegister(t *testing.T) {
	app := newTestApp(&fakeEngine{})

	status, body := doRequest(t, app, "POST", "/account", "")
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, float64(42), body["user_id"])
	assert.Equal(t, "free", body["plan_type"])
}

func TestStripeWebhook(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"processed", nil, fiber.StatusOK},
		{"bad signature", fmt.Errorf("%w: mismatch", billing.ErrEventAuthenticity), fiber.StatusBadRequest},
		{"storage failure", errors.New("db down"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{err: tt.err}
			app := newTestApp(engine)
			payload := `{"id":"evt_1",  "type":"checkout.session.completed"}`

			status, _ := doRequest(t, app, "POST", "/webhooks/stripe", payload)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, payload, string(engine.lastPayload), "the raw body must reach the reconciler unchanged")
			assert.Equal(t, "t=1,v1=abc", engine.lastSig)
		})
	}
}

func TestBillingEndpoints(t *testing.T) {
	app := newTestApp(&fakeEngine{})

	status, body := doRequest(t, app, "POST", "/billing/checkout", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "https://checkout.test/session", body["url"])

	status, _ = doRequest(t, app, "POST", "/billing/cancel", "")
	assert.Equal(t, fiber.StatusAccepted, status)

	app = newTestApp(&fakeEngine{err: billing.ErrAlreadySubscribed})
	status, body = doRequest(t, app, "POST", "/billing/checkout", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "already_subscribed", body["error"])
}

func TestEnrichTicketNotFound(t *testing.T) {
	app := newTestApp(&fakeEngine{err: orchestrator.ErrTicketNotFound})

	status, body := doRequest(t, app, "POST", "/tickets/9/enrich", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "ticket_not_found", body["error"])
}
