package billing

import (
	"strings"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/entitlements"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
)

// checkoutChange activates the pro plan for a completed checkout.
func checkoutChange(subscriptionRef string) ledger.PlanChange {
	c := proActive()
	if ref := strings.TrimSpace(subscriptionRef); ref != "" {
		c.SubscriptionRef = ledger.StringPtr(ref)
	}
	return c
}

// transitionFor maps a remote subscription status onto a target plan state.
// The From preconditions encode the reconciliation table. An account adopted
// through its customer ref must still be unsubscribed (none); a canceled
// account only returns to pro through a new checkout. ok is false for statuses
// that have no local meaning.
func transitionFor(status string, adopting bool) (ledger.PlanChange, bool) {
	var c ledger.PlanChange
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		c = proActive()
		c.From = []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue}
	case "canceled", "unpaid":
		c = ledger.PlanChange{
			Plan:            ledger.PlanPtr(models.PlanFree),
			Status:          models.SubscriptionCanceled,
			Limit:           ledger.IntPtr(entitlements.FreeGenerationsLimit),
			SubscriptionRef: ledger.StringPtr(""),
			From: []models.SubscriptionStatus{
				models.SubscriptionActive,
				models.SubscriptionPastDue,
				models.SubscriptionCanceled,
			},
		}
	case "past_due":
		c = ledger.PlanChange{
			Status: models.SubscriptionPastDue,
			From:   []models.SubscriptionStatus{models.SubscriptionActive},
		}
	default:
		return ledger.PlanChange{}, false
	}
	if adopting {
		c.From = []models.SubscriptionStatus{models.SubscriptionNone}
	}
	return c, true
}

func proActive() ledger.PlanChange {
	return ledger.PlanChange{
		Plan:   ledger.PlanPtr(models.PlanPro),
		Status: models.SubscriptionActive,
		Limit:  ledger.IntPtr(entitlements.LimitFor(models.PlanPro)),
	}
}
