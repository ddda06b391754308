package models

import (
	"errors"
	"fmt"
	"time"
)

// PlanType is the commercial plan an account is on.
type PlanType string

const (
	PlanFree PlanType = "free"
	PlanPro  PlanType = "pro"
)

// SubscriptionStatus mirrors the lifecycle of the remote subscription.
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Account holds the plan, quota counters and payment provider linkage of a
// user. The primary key is the user ID, so there is exactly one account per user.
type Account struct {
	UserID                uint               `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PlanType              PlanType           `gorm:"type:varchar(20);not null;default:'free'" json:"plan_type"`
	SubscriptionStatus    SubscriptionStatus `gorm:"type:varchar(20);not null;default:'none'" json:"subscription_status"`
	GenerationsUsed       int                `gorm:"not null;default:0" json:"generations_used"`
	GenerationsLimit      int                `gorm:"not null;default:2" json:"generations_limit"`
	BillingPeriodStart    time.Time          `gorm:"type:timestamp;not null" json:"billing_period_start"`
	RemoteCustomerRef     *string            `gorm:"type:varchar(191);uniqueIndex:ux_accounts_remote_customer" json:"-"`
	RemoteSubscriptionRef *string            `gorm:"type:varchar(191);index" json:"-"`
	Version               uint               `gorm:"not null;default:1" json:"-"`
	CreatedAt             time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// ID returns the account identifier.
func (a *Account) ID() uint {
	return a.UserID
}

// PeriodEnd returns the exclusive end of the current billing period.
func (a *Account) PeriodEnd() time.Time {
	return AddMonth(a.BillingPeriodStart)
}

// CustomerRef returns the linked remote customer or "".
func (a *Account) CustomerRef() string {
	if a.RemoteCustomerRef == nil {
		return ""
	}
	return *a.RemoteCustomerRef
}

// SubscriptionRef returns the linked remote subscription or "".
func (a *Account) SubscriptionRef() string {
	if a.RemoteSubscriptionRef == nil {
		return ""
	}
	return *a.RemoteSubscriptionRef
}

// Clone returns a deep copy that shares no pointers with a.
func (a *Account) Clone() *Account {
	c := *a
	if a.RemoteCustomerRef != nil {
		v := *a.RemoteCustomerRef
		c.RemoteCustomerRef = &v
	}
	if a.RemoteSubscriptionRef != nil {
		v := *a.RemoteSubscriptionRef
		c.RemoteSubscriptionRef = &v
	}
	return &c
}

// Validate checks the invariants that must hold whenever an account is persisted.
func (a *Account) Validate() error {
	if a.GenerationsUsed < 0 {
		return errors.New("generations_used must not be negative")
	}
	if a.GenerationsLimit < -1 {
		return fmt.Errorf("generations_limit %d is invalid", a.GenerationsLimit)
	}
	switch a.PlanType {
	case PlanFree, PlanPro:
	default:
		return fmt.Errorf("unknown plan type %q", a.PlanType)
	}
	switch a.SubscriptionStatus {
	case SubscriptionActive:
		if a.PlanType != PlanPro {
			return errors.New("an active subscription requires the pro plan")
		}
	case SubscriptionNone:
		if a.PlanType != PlanFree {
			return errors.New("subscription status none is only valid on the free plan")
		}
	case SubscriptionPastDue, SubscriptionCanceled:
	default:
		return fmt.Errorf("unknown subscription status %q", a.SubscriptionStatus)
	}
	return nil
}

// AddMonth adds one calendar month to t, clamping to the last day of the
// target month (Jan 31 -> Feb 28/29) instead of overflowing into the next one.
func AddMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
