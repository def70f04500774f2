// Package memory implements the listing registry's authoritative table as an
// in-process store. Mutating ledger operations are serial against it; reads
// see a consistent snapshot under the read lock.
package memory

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// ItemStore implements domain.ItemStore with a mutex-guarded table.
// Items are stored in insertion order, which is ascending item id order
// because ids are assigned on insert.
type ItemStore struct {
	mu     sync.RWMutex
	items  []domain.MarketItem // index i holds item id i+1
	nextID uint64
}

// NewItemStore creates an empty store. Item ids start at 1.
func NewItemStore() *ItemStore {
	return &ItemStore{nextID: 1}
}

func tokenKeyEqual(m domain.MarketItem, contract common.Address, tokenID *big.Int) bool {
	return m.AssetContract == contract && m.TokenID.Cmp(tokenID) == 0
}

// Insert stores a new unsold item and returns its assigned id.
func (s *ItemStore) Insert(_ context.Context, item domain.MarketItem) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ItemID = s.nextID
	s.nextID++
	s.items = append(s.items, item)
	return item.ItemID, nil
}

// GetByID returns the item with the given id.
func (s *ItemStore) GetByID(_ context.Context, itemID uint64) (domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if itemID == 0 || itemID > uint64(len(s.items)) {
		return domain.MarketItem{}, domain.ErrNotFound
	}
	return s.items[itemID-1], nil
}

// FindByToken resolves the listing for (contract, tokenID). An unsold match
// wins; otherwise the most recently listed match is returned.
func (s *ItemStore) FindByToken(_ context.Context, contract common.Address, tokenID *big.Int) (domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest domain.MarketItem
		found  bool
	)
	for _, m := range s.items {
		if !tokenKeyEqual(m, contract, tokenID) {
			continue
		}
		if !m.Sold {
			return m, nil
		}
		latest = m
		found = true
	}
	if !found {
		return domain.MarketItem{}, domain.ErrNotFound
	}
	return latest, nil
}

// MarkSold flips the item to sold and records the buyer as custodian. The
// sold check and the flip happen under one lock acquisition, so a second
// purchase of the same item always observes ErrAlreadySold.
func (s *ItemStore) MarkSold(_ context.Context, itemID uint64, buyer common.Address, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if itemID == 0 || itemID > uint64(len(s.items)) {
		return domain.ErrNotFound
	}
	m := &s.items[itemID-1]
	if m.Sold {
		return domain.ErrAlreadySold
	}
	m.Sold = true
	m.Custodian = buyer
	soldAt := at
	m.SoldAt = &soldAt
	return nil
}

// RevertSale undoes MarkSold, restoring escrow custody.
func (s *ItemStore) RevertSale(_ context.Context, itemID uint64, escrow common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if itemID == 0 || itemID > uint64(len(s.items)) {
		return domain.ErrNotFound
	}
	m := &s.items[itemID-1]
	m.Sold = false
	m.Custodian = escrow
	m.SoldAt = nil
	return nil
}

// ListUnsold returns all unsold items ordered by ascending item id.
func (s *ItemStore) ListUnsold(_ context.Context) ([]domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MarketItem
	for _, m := range s.items {
		if !m.Sold {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListBySeller returns all items listed by seller, any sold status.
func (s *ItemStore) ListBySeller(_ context.Context, seller common.Address) ([]domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MarketItem
	for _, m := range s.items {
		if m.Seller == seller {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListByOwner returns all sold items whose buyer was owner. An unsold item's
// custodian is the escrow identity, never a buyer, so unsold items are
// excluded by construction.
func (s *ItemStore) ListByOwner(_ context.Context, owner common.Address) ([]domain.MarketItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.MarketItem
	for _, m := range s.items {
		if m.Sold && m.Custodian == owner {
			out = append(out, m)
		}
	}
	return out, nil
}

// Count returns the total number of items ever listed.
func (s *ItemStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.items)), nil
}
