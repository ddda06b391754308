package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/TicketPilot/app/models"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates an account store backed by GORM.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Insert(ctx context.Context, acc *models.Account) error {
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(acc)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrAccountExists
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, userID uint) (*models.Account, error) {
	return s.first(ctx, "user_id = ?", userID)
}

func (s *gormStore) FindBySubscriptionRef(ctx context.Context, ref string) (*models.Account, error) {
	return s.first(ctx, "remote_subscription_ref = ?", ref)
}

func (s *gormStore) FindByCustomerRef(ctx context.Context, ref string) (*models.Account, error) {
	return s.first(ctx, "remote_customer_ref = ?", ref)
}

func (s *gormStore) CompareAndSwap(ctx context.Context, acc *models.Account) (bool, error) {
	expected := acc.Version
	tx := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("user_id = ? AND version = ?", acc.UserID, expected).
		Updates(map[string]interface{}{
			"plan_type":               acc.PlanType,
			"subscription_status":     acc.SubscriptionStatus,
			"generations_used":        acc.GenerationsUsed,
			"generations_limit":       acc.GenerationsLimit,
			"billing_period_start":    acc.BillingPeriodStart,
			"remote_customer_ref":     acc.RemoteCustomerRef,
			"remote_subscription_ref": acc.RemoteSubscriptionRef,
			"version":                 expected + 1,
			"updated_at":              time.Now(),
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}
	acc.Version = expected + 1
	return true, nil
}

func (s *gormStore) AddUsage(ctx context.Context, userID uint, delta int) (*models.Account, error) {
	tx := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"generations_used": gorm.Expr("generations_used + ?", delta),
			"version":          gorm.Expr("version + 1"),
			"updated_at":       time.Now(),
		})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}
	return s.Get(ctx, userID)
}

func (s *gormStore) first(ctx context.Context, query string, args ...interface{}) (*models.Account, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).Where(query, args...).First(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}
