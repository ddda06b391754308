package entitlements

import (
	"github.com/ManuelReschke/TicketPilot/app/models"
)

const (
	// FreeGenerationsLimit is the monthly AI generation allowance of the free plan.
	FreeGenerationsLimit = 2
	// Unlimited marks a limit or remaining count without an upper bound.
	Unlimited = -1
)

// LimitFor returns the generation limit granted by a plan with an active subscription.
func LimitFor(plan models.PlanType) int {
	if plan == models.PlanPro {
		return Unlimited
	}
	return FreeGenerationsLimit
}

// IsUnlimited reports whether the account is entitled to unmetered generations.
// Only pro accounts with an active subscription qualify. A past_due pro account
// goes through the metered path but still carries its stored limit.
func IsUnlimited(acc *models.Account) bool {
	return acc != nil &&
		acc.PlanType == models.PlanPro &&
		acc.SubscriptionStatus == models.SubscriptionActive
}
