package ledger

import (
	"github.com/ManuelReschke/TicketPilot/app/models"
)

// PlanChange describes a target plan state. Nil Plan and Limit leave the
// current values untouched. A nil SubscriptionRef leaves the linkage as is,
// a pointer to "" clears it.
type PlanChange struct {
	Plan            *models.PlanType
	Status          models.SubscriptionStatus
	Limit           *int
	SubscriptionRef *string

	// From restricts the change to accounts currently in one of these
	// statuses. Accounts in any other status are left unchanged.
	From []models.SubscriptionStatus

	// RequireUnlinked rejects the change with ErrSubscriptionAlreadyLinked
	// when the account already references a different subscription.
	RequireUnlinked bool
}

// PlanPtr returns a pointer to p for use in a PlanChange.
func PlanPtr(p models.PlanType) *models.PlanType { return &p }

// IntPtr returns a pointer to v for use in a PlanChange.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to s for use in a PlanChange.
func StringPtr(s string) *string { return &s }

func (c PlanChange) applies(status models.SubscriptionStatus) bool {
	if len(c.From) == 0 {
		return true
	}
	for _, s := range c.From {
		if s == status {
			return true
		}
	}
	return false
}

func (c PlanChange) apply(acc *models.Account) (bool, error) {
	if !c.applies(acc.SubscriptionStatus) {
		return false, nil
	}
	if c.RequireUnlinked {
		linked := acc.SubscriptionRef()
		if linked != "" && (c.SubscriptionRef == nil || linked != *c.SubscriptionRef) {
			return false, ErrSubscriptionAlreadyLinked
		}
	}

	changed := false
	if c.Plan != nil && acc.PlanType != *c.Plan {
		acc.PlanType = *c.Plan
		changed = true
	}
	if c.Status != "" && acc.SubscriptionStatus != c.Status {
		acc.SubscriptionStatus = c.Status
		changed = true
	}
	if c.Limit != nil && acc.GenerationsLimit != *c.Limit {
		acc.GenerationsLimit = *c.Limit
		changed = true
	}
	if c.SubscriptionRef != nil && acc.SubscriptionRef() != *c.SubscriptionRef {
		if *c.SubscriptionRef == "" {
			acc.RemoteSubscriptionRef = nil
		} else {
			ref := *c.SubscriptionRef
			acc.RemoteSubscriptionRef = &ref
		}
		changed = true
	}
	return changed, nil
}
