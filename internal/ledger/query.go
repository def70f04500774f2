package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// The query index is read-only and side-effect free. All three queries scan
// the registry linearly; listing counts are human-scale, so secondary
// indices are deliberately absent. Results are ordered by ascending item id.

// UnsoldListings returns every item still held in escrow.
func (l *Ledger) UnsoldListings(ctx context.Context) ([]domain.MarketItem, error) {
	items, err := l.items.ListUnsold(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: list unsold: %w", err)
	}
	return items, nil
}

// ListingsBySeller returns every item listed by seller, any sold status.
func (l *Ledger) ListingsBySeller(ctx context.Context, seller common.Address) ([]domain.MarketItem, error) {
	items, err := l.items.ListBySeller(ctx, seller)
	if err != nil {
		return nil, fmt.Errorf("ledger: list by seller: %w", err)
	}
	return items, nil
}

// ListingsByOwner returns every sold item whose buyer was owner.
func (l *Ledger) ListingsByOwner(ctx context.Context, owner common.Address) ([]domain.MarketItem, error) {
	items, err := l.items.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("ledger: list by owner: %w", err)
	}
	return items, nil
}

// ListingCount returns the total number of items ever listed.
func (l *Ledger) ListingCount(ctx context.Context) (uint64, error) {
	n, err := l.items.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: count listings: %w", err)
	}
	return n, nil
}

// MetadataURI resolves the metadata location of an asset through the
// capability adapter for its kind. Used by the presentation layer; the
// ledger never dereferences the returned location.
func (l *Ledger) MetadataURI(ctx context.Context, kind domain.AssetKind, contract common.Address, tokenID *big.Int) (string, error) {
	adapter, ok := l.Adapter(kind)
	if !ok {
		return "", fmt.Errorf("ledger: no adapter for asset kind %q", kind)
	}
	uri, err := adapter.MetadataURI(ctx, contract, tokenID)
	if err != nil {
		return "", fmt.Errorf("ledger: metadata uri: %w", err)
	}
	return uri, nil
}
