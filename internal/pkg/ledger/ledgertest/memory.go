// Package ledgertest provides an in-memory ledger store with the same
// compare-and-swap semantics as the database store, for use in tests.
package ledgertest

import (
	"context"
	"sync"

	"github.com/ManuelReschke/TicketPilot/app/models"
	"github.com/ManuelReschke/TicketPilot/internal/pkg/ledger"
)

// MemoryStore keeps accounts in a map. Reads return copies, so callers can
// only change stored state through CompareAndSwap.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account

	// BeforeSwap, when set, runs before every CompareAndSwap and AddUsage
	// outside the store lock. Tests use it to interleave a competing writer.
	BeforeSwap func()

	swaps int
}

var _ ledger.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[uint]*models.Account)}
}

// Put stores acc as-is, replacing any existing account.
func (s *MemoryStore) Put(acc *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := acc.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	s.accounts[c.UserID] = c
}

// Swaps returns the number of successful writes.
func (s *MemoryStore) Swaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swaps
}

func (s *MemoryStore) Insert(_ context.Context, acc *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.UserID]; ok {
		return ledger.ErrAccountExists
	}
	if acc.Version == 0 {
		acc.Version = 1
	}
	s.accounts[acc.UserID] = acc.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID uint) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryStore) FindBySubscriptionRef(_ context.Context, ref string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return a.SubscriptionRef() == ref })
}

func (s *MemoryStore) FindByCustomerRef(_ context.Context, ref string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return a.CustomerRef() == ref })
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, acc *models.Account) (bool, error) {
	if hook := s.BeforeSwap; hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[acc.UserID]
	if !ok {
		return false, ledger.ErrAccountNotFound
	}
	if cur.Version != acc.Version {
		return false, nil
	}
	acc.Version++
	s.accounts[acc.UserID] = acc.Clone()
	s.swaps++
	return true, nil
}

func (s *MemoryStore) AddUsage(_ context.Context, userID uint, delta int) (*models.Account, error) {
	if hook := s.BeforeSwap; hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cur.GenerationsUsed += delta
	cur.Version++
	s.swaps++
	return cur.Clone(), nil
}

func (s *MemoryStore) find(match func(a *models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Account
	for _, a := range s.accounts {
		if !match(a) {
			continue
		}
		// Lowest user ID wins, mirroring a "first matching row" lookup.
		if found == nil || a.UserID < found.UserID {
			found = a
		}
	}
	if found == nil {
		return nil, ledger.ErrAccountNotFound
	}
	return found.Clone(), nil
}
