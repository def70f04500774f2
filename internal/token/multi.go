package token

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

type multiAsset struct {
	balances map[common.Address]uint64
	uri      string
}

// MultiCopyBook implements domain.TokenAdapter for quantity-bearing assets.
type MultiCopyBook struct {
	mu     sync.RWMutex
	assets map[string]*multiAsset
}

// NewMultiCopyBook creates an empty multi-copy custody book.
func NewMultiCopyBook() *MultiCopyBook {
	return &MultiCopyBook{assets: make(map[string]*multiAsset)}
}

// Kind returns domain.AssetKindMulti.
func (b *MultiCopyBook) Kind() domain.AssetKind { return domain.AssetKindMulti }

// Mint credits owner with quantity units of a new or existing asset instance.
func (b *MultiCopyBook) Mint(contract common.Address, tokenID *big.Int, owner common.Address, quantity uint64, uri string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := assetKey(contract, tokenID)
	a, ok := b.assets[key]
	if !ok {
		a = &multiAsset{balances: make(map[common.Address]uint64), uri: uri}
		b.assets[key] = a
	}
	a.balances[owner] += quantity
}

// TransferCustody moves quantity units from one holder to another. It fails
// with ErrTransferUnauthorized when from's balance is insufficient.
func (b *MultiCopyBook) TransferCustody(_ context.Context, contract common.Address, tokenID *big.Int, from, to common.Address, quantity uint64) error {
	if quantity == 0 {
		return domain.ErrInvalidQuantity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return domain.ErrNotFound
	}
	if a.balances[from] < quantity {
		return domain.ErrTransferUnauthorized
	}
	a.balances[from] -= quantity
	a.balances[to] += quantity
	return nil
}

// OwnerOf has no single answer for a multi-copy asset; callers should use
// BalanceOf. It returns ErrNotFound unless exactly one address holds the
// whole supply.
func (b *MultiCopyBook) OwnerOf(_ context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}

	var (
		sole    common.Address
		holders int
	)
	for addr, bal := range a.balances {
		if bal > 0 {
			sole = addr
			holders++
		}
	}
	if holders != 1 {
		return common.Address{}, domain.ErrNotFound
	}
	return sole, nil
}

// BalanceOf returns the units of (contract, tokenID) held by holder.
func (b *MultiCopyBook) BalanceOf(_ context.Context, contract common.Address, tokenID *big.Int, holder common.Address) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return a.balances[holder], nil
}

// MetadataURI returns the asset's metadata location.
func (b *MultiCopyBook) MetadataURI(_ context.Context, contract common.Address, tokenID *big.Int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return a.uri, nil
}
