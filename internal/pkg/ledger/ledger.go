// Package ledger owns the plan, quota and provider-linkage fields of an
// account. Every mutation is a read-modify-write against the latest persisted
// row, committed with a compare-and-swap on the row version and retried on
// conflict, so concurrent writers never lose updates.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/entitlements"
)

var (
	ErrAccountNotFound           = errors.New("ledger: account not found")
	ErrAccountExists             = errors.New("ledger: account already exists")
	ErrConcurrentUpdate          = errors.New("ledger: too many concurrent updates")
	ErrInvalidPlanState          = errors.New("ledger: invalid plan state")
	ErrSubscriptionAlreadyLinked = errors.New("ledger: account already has a subscription")
)

const (
	maxSwapAttempts = 10
	swapBackoffStep = 5 * time.Millisecond
)

// Store persists accounts. CompareAndSwap writes acc only if the stored
// version still equals acc.Version; on success it increments acc.Version.
// AddUsage adds delta to generations_used in one atomic statement and bumps
// the version, so it never conflicts and never races a pending swap.
type Store interface {
	Insert(ctx context.Context, acc *models.Account) error
	Get(ctx context.Context, userID uint) (*models.Account, error)
	FindBySubscriptionRef(ctx context.Context, ref string) (*models.Account, error)
	FindByCustomerRef(ctx context.Context, ref string) (*models.Account, error)
	CompareAndSwap(ctx context.Context, acc *models.Account) (bool, error)
	AddUsage(ctx context.Context, userID uint, delta int) (*models.Account, error)
}

// Ledger exposes the invariant-preserving account mutators.
type Ledger struct {
	store Store
}

// New creates a ledger on top of a store.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Open creates the account of a newly registered user with free plan
// defaults. Opening an existing account returns it unchanged.
func (l *Ledger) Open(ctx context.Context, userID uint, now time.Time) (*models.Account, error) {
	if userID == 0 {
		return nil, errors.New("ledger: user_id is required")
	}
	acc := &models.Account{
		UserID:             userID,
		PlanType:           models.PlanFree,
		SubscriptionStatus: models.SubscriptionNone,
		GenerationsUsed:    0,
		GenerationsLimit:   entitlements.FreeGenerationsLimit,
		BillingPeriodStart: now,
		Version:            1,
	}
	err := l.store.Insert(ctx, acc)
	if errors.Is(err, ErrAccountExists) {
		return l.store.Get(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	log.Infof("[Ledger] Opened account %d on the free plan", userID)
	return acc, nil
}

// Get returns the latest persisted state of an account.
func (l *Ledger) Get(ctx context.Context, userID uint) (*models.Account, error) {
	return l.store.Get(ctx, userID)
}

// FindBySubscriptionRef resolves an account by its remote subscription.
func (l *Ledger) FindBySubscriptionRef(ctx context.Context, ref string) (*models.Account, error) {
	if ref == "" {
		return nil, ErrAccountNotFound
	}
	return l.store.FindBySubscriptionRef(ctx, ref)
}

// FindByCustomerRef resolves an account by its remote customer.
func (l *Ledger) FindByCustomerRef(ctx context.Context, ref string) (*models.Account, error) {
	if ref == "" {
		return nil, ErrAccountNotFound
	}
	return l.store.FindByCustomerRef(ctx, ref)
}

// ApplyMonthlyRolloverIfDue starts a new billing period when now has reached
// the end of the current one. A second call with the same now is a no-op.
func (l *Ledger) ApplyMonthlyRolloverIfDue(ctx context.Context, userID uint, now time.Time) (*models.Account, error) {
	return l.mutate(ctx, userID, "rollover", func(acc *models.Account) (bool, error) {
		if now.Before(acc.PeriodEnd()) {
			return false, nil
		}
		acc.GenerationsUsed = 0
		acc.BillingPeriodStart = now
		return true, nil
	})
}

// IncrementUsage charges one generation. It does not check capacity; callers
// evaluate the quota first and charge only after the work succeeded.
// The increment is a single atomic update, so concurrent charges are never lost.
func (l *Ledger) IncrementUsage(ctx context.Context, userID uint) (*models.Account, error) {
	return l.store.AddUsage(ctx, userID, 1)
}

// SetPlan applies a plan change as one unit. Unchanged state is not rewritten.
func (l *Ledger) SetPlan(ctx context.Context, userID uint, change PlanChange) (*models.Account, error) {
	return l.mutate(ctx, userID, "set_plan", change.apply)
}

// LinkCustomer stores the remote customer reference if none is linked yet and
// returns the reference that is linked after the call. When another request
// linked a customer first, that reference wins and is returned.
func (l *Ledger) LinkCustomer(ctx context.Context, userID uint, ref string) (string, error) {
	if ref == "" {
		return "", errors.New("ledger: customer ref is required")
	}
	acc, err := l.mutate(ctx, userID, "link_customer", func(acc *models.Account) (bool, error) {
		if acc.CustomerRef() != "" {
			return false, nil
		}
		acc.RemoteCustomerRef = &ref
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return acc.CustomerRef(), nil
}

// mutate runs fn against the latest persisted account and commits the result
// with a version check. fn returns false when there is nothing to write.
func (l *Ledger) mutate(ctx context.Context, userID uint, op string, fn func(acc *models.Account) (bool, error)) (*models.Account, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		acc, err := l.store.Get(ctx, userID)
		if err != nil {
			return nil, err
		}

		changed, err := fn(acc)
		if err != nil {
			return nil, err
		}
		if !changed {
			return acc, nil
		}
		if err := acc.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlanState, err)
		}

		swapped, err := l.store.CompareAndSwap(ctx, acc)
		if err != nil {
			return nil, err
		}
		if swapped {
			return acc, nil
		}

		log.Debugf("[Ledger] Version conflict on account %d during %s (attempt %d)", userID, op, attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * swapBackoffStep):
		}
	}
	log.Warnf("[Ledger] Giving up %s on account %d after %d conflicting attempts", op, userID, maxSwapAttempts)
	return nil, ErrConcurrentUpdate
}
