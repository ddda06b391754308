// Package engine wires the account ledger, quota guard, subscription
// reconciler and generation orchestrator into the single surface the HTTP
// layer talks to.
package engine

import (
	"context"
	"time"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/billing"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/generator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/quota"
)

// Deps are the collaborators the engine is built from. Events and
// Compensator may be nil.
type Deps struct {
	Accounts    ledger.Store
	Projects    orchestrator.ProjectStore
	Events      billing.EventLog
	Provider    billing.PaymentProvider
	Generator   generator.Generator
	Compensator orchestrator.Compensator
	Config      orchestrator.Config
	Now         func() time.Time
}

type Engine struct {
	ledger     *ledger.Ledger
	guard      *quota.Guard
	orch       *orchestrator.Orchestrator
	reconciler *billing.Reconciler
	billing    *billing.Service
	now        func() time.Time
}

func New(d Deps) *Engine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	l := ledger.New(d.Accounts)
	guard := quota.NewGuard(l).WithClock(now)
	return &Engine{
		ledger:     l,
		guard:      guard,
		orch:       orchestrator.New(guard, l, d.Generator, d.Projects, d.Compensator, d.Config),
		reconciler: billing.NewReconciler(l, d.Provider, d.Events),
		billing:    billing.NewService(l, d.Provider),
		now:        now,
	}
}

// RegisterAccount opens the free account of a new user. It is idempotent.
func (e *Engine) RegisterAccount(ctx context.Context, userID uint) (*models.Account, error) {
	return e.ledger.Open(ctx, userID, e.now())
}

func (e *Engine) Account(ctx context.Context, accountID uint) (*models.Account, error) {
	return e.ledger.Get(ctx, accountID)
}

// EvaluateUsage reports the current usage window. It applies a due monthly
// rollover but never charges.
func (e *Engine) EvaluateUsage(ctx context.Context, accountID uint) (quota.UsageWindow, error) {
	return e.guard.Evaluate(ctx, accountID)
}

func (e *Engine) RunSingleGeneration(ctx context.Context, accountID, projectID uint, opts generator.Options) (*orchestrator.Result, error) {
	return e.orch.RunSingle(ctx, accountID, projectID, opts)
}

func (e *Engine) RunProjectGeneration(ctx context.Context, accountID uint, project orchestrator.ProjectInput, opts generator.Options) (*orchestrator.Result, error) {
	return e.orch.RunWithNewProject(ctx, accountID, project, opts)
}

func (e *Engine) EnrichTicket(ctx context.Context, accountID, ticketID uint) (*models.Ticket, error) {
	return e.orch.EnrichTicket(ctx, accountID, ticketID)
}

// HandleProviderEvent takes the raw, unparsed webhook body.
func (e *Engine) HandleProviderEvent(ctx context.Context, payload []byte, signature string) error {
	return e.reconciler.HandleProviderEvent(ctx, payload, signature)
}

func (e *Engine) StartCheckout(ctx context.Context, accountID uint, email string) (string, error) {
	return e.billing.StartCheckout(ctx, accountID, email)
}

func (e *Engine) OpenPortal(ctx context.Context, accountID uint) (string, error) {
	return e.billing.OpenPortal(ctx, accountID)
}

func (e *Engine) CancelSubscription(ctx context.Context, accountID uint) error {
	return e.billing.CancelSubscription(ctx, accountID)
}
