// Package token implements the ledger's token capability adapters: one
// custody book per asset kind behind the domain.TokenAdapter interface.
// The books model the minimal capability surface the ledger requires from a
// token collection (ownership transfer, identity lookup, metadata location);
// real chain-backed collections would satisfy the same interface.
package token

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

func assetKey(contract common.Address, tokenID *big.Int) string {
	return contract.Hex() + ":" + tokenID.String()
}

type singleAsset struct {
	owner common.Address
	uri   string
}

// SingleCopyBook implements domain.TokenAdapter for assets held whole by
// exactly one address at a time.
type SingleCopyBook struct {
	mu     sync.RWMutex
	assets map[string]*singleAsset
}

// NewSingleCopyBook creates an empty single-copy custody book.
func NewSingleCopyBook() *SingleCopyBook {
	return &SingleCopyBook{assets: make(map[string]*singleAsset)}
}

// Kind returns domain.AssetKindSingle.
func (b *SingleCopyBook) Kind() domain.AssetKind { return domain.AssetKindSingle }

// Mint records a new asset instance owned by owner. Used by creators before
// listing; the ledger itself never mints.
func (b *SingleCopyBook) Mint(contract common.Address, tokenID *big.Int, owner common.Address, uri string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assets[assetKey(contract, tokenID)] = &singleAsset{owner: owner, uri: uri}
}

// TransferCustody moves the asset from its sole owner to another address.
// quantity must be 1.
func (b *SingleCopyBook) TransferCustody(_ context.Context, contract common.Address, tokenID *big.Int, from, to common.Address, quantity uint64) error {
	if quantity != 1 {
		return domain.ErrInvalidQuantity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return domain.ErrNotFound
	}
	if a.owner != from {
		return domain.ErrTransferUnauthorized
	}
	a.owner = to
	return nil
}

// OwnerOf returns the sole owner of the asset.
func (b *SingleCopyBook) OwnerOf(_ context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return common.Address{}, domain.ErrNotFound
	}
	return a.owner, nil
}

// BalanceOf returns 1 if holder owns the asset, 0 otherwise.
func (b *SingleCopyBook) BalanceOf(ctx context.Context, contract common.Address, tokenID *big.Int, holder common.Address) (uint64, error) {
	owner, err := b.OwnerOf(ctx, contract, tokenID)
	if err != nil {
		return 0, err
	}
	if owner == holder {
		return 1, nil
	}
	return 0, nil
}

// MetadataURI returns the asset's metadata location.
func (b *SingleCopyBook) MetadataURI(_ context.Context, contract common.Address, tokenID *big.Int) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.assets[assetKey(contract, tokenID)]
	if !ok {
		return "", domain.ErrNotFound
	}
	return a.uri, nil
}
