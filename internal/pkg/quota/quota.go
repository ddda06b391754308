// Package quota decides whether a metered generation may run.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/entitlements"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
)

// ErrQuotaExceeded matches every ExceededError via errors.Is.
var ErrQuotaExceeded = errors.New("quota: generation limit reached")

// UsageWindow is a read-only projection of an account's quota. Limit and
// Remaining are -1 for unlimited accounts.
type UsageWindow struct {
	Allowed   bool      `json:"allowed"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Unlimited reports whether the window has no upper bound.
func (w UsageWindow) Unlimited() bool {
	return w.Limit == entitlements.Unlimited
}

// ExceededError is returned when a metered operation is refused.
type ExceededError struct {
	Window UsageWindow
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota: %d of %d generations used, resets at %s",
		e.Window.Used, e.Window.Limit, e.Window.ResetAt.Format(time.RFC3339))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Rollover is the part of the ledger the guard needs.
type Rollover interface {
	Get(ctx context.Context, userID uint) (*models.Account, error)
	ApplyMonthlyRolloverIfDue(ctx context.Context, userID uint, now time.Time) (*models.Account, error)
}

// Guard evaluates quota windows.
type Guard struct {
	ledger Rollover
	now    func() time.Time
}

// NewGuard creates a guard that reads the wall clock.
func NewGuard(l Rollover) *Guard {
	return &Guard{ledger: l, now: time.Now}
}

// WithClock replaces the guard's clock.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

var _ Rollover = (*ledger.Ledger)(nil)

// Evaluate returns the current usage window of an account.
func (g *Guard) Evaluate(ctx context.Context, accountID uint) (UsageWindow, error) {
	return g.EvaluateAt(ctx, accountID, g.now())
}

// EvaluateAt is Evaluate with an explicit clock reading. Unlimited accounts are
// never rolled over. Every other account rolls into a new period first, so a
// request that arrives exactly on the boundary sees the fresh allowance.
func (g *Guard) EvaluateAt(ctx context.Context, accountID uint, now time.Time) (UsageWindow, error) {
	acc, err := g.ledger.Get(ctx, accountID)
	if err != nil {
		return UsageWindow{}, err
	}
	if entitlements.IsUnlimited(acc) {
		return WindowFor(acc), nil
	}

	acc, err = g.ledger.ApplyMonthlyRolloverIfDue(ctx, accountID, now)
	if err != nil {
		return UsageWindow{}, err
	}
	return WindowFor(acc), nil
}

// Check evaluates the window and returns an ExceededError when no
// generation is left.
func (g *Guard) Check(ctx context.Context, accountID uint) (UsageWindow, error) {
	w, err := g.Evaluate(ctx, accountID)
	if err != nil {
		return w, err
	}
	if !w.Allowed {
		return w, &ExceededError{Window: w}
	}
	return w, nil
}

// WindowFor projects an account snapshot without mutating it.
func WindowFor(acc *models.Account) UsageWindow {
	w := UsageWindow{
		Used:    acc.GenerationsUsed,
		ResetAt: acc.PeriodEnd(),
	}
	// A past_due pro account keeps its unlimited limit until the provider
	// cancels the subscription.
	if entitlements.IsUnlimited(acc) || acc.GenerationsLimit == entitlements.Unlimited {
		w.Allowed = true
		w.Limit = entitlements.Unlimited
		w.Remaining = entitlements.Unlimited
		return w
	}

	w.Limit = acc.GenerationsLimit
	remaining := acc.GenerationsLimit - acc.GenerationsUsed
	w.Allowed = remaining > 0
	if remaining < 0 {
		remaining = 0
	}
	w.Remaining = remaining
	return w
}
