package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ItemStore is the listing registry's table. Implementations must make each
// method atomic with respect to the others; Insert assigns the next item id
// as part of the insert so the id sequence stays gap-free.
type ItemStore interface {
	// Insert stores a new unsold item and returns its assigned id.
	// Ids are unique, strictly increasing, and start at 1.
	Insert(ctx context.Context, item MarketItem) (uint64, error)

	// GetByID returns the item with the given id or ErrNotFound.
	GetByID(ctx context.Context, itemID uint64) (MarketItem, error)

	// FindByToken resolves the listing for (contract, tokenID). An unsold
	// match wins; otherwise the most recently listed match is returned.
	// Returns ErrNotFound if the pair was never listed.
	FindByToken(ctx context.Context, contract common.Address, tokenID *big.Int) (MarketItem, error)

	// MarkSold flips the item to sold and records the buyer as custodian.
	// Returns ErrAlreadySold if the item is already sold, ErrNotFound if the
	// id is unknown. The check and the flip are a single atomic step.
	MarkSold(ctx context.Context, itemID uint64, buyer common.Address, at time.Time) error

	// RevertSale undoes MarkSold, restoring escrow custody. Only the
	// settlement engine calls this, as compensation when a value or custody
	// transfer fails after the item was marked.
	RevertSale(ctx context.Context, itemID uint64, escrow common.Address) error

	// ListUnsold returns all unsold items ordered by ascending item id.
	ListUnsold(ctx context.Context) ([]MarketItem, error)

	// ListBySeller returns all items listed by seller, any sold status,
	// ordered by ascending item id.
	ListBySeller(ctx context.Context, seller common.Address) ([]MarketItem, error)

	// ListByOwner returns all sold items whose buyer was owner, ordered by
	// ascending item id.
	ListByOwner(ctx context.Context, owner common.Address) ([]MarketItem, error)

	// Count returns the total number of items ever listed.
	Count(ctx context.Context) (uint64, error)
}

// EventStore is the append-only journal of emitted ledger records.
type EventStore interface {
	Append(ctx context.Context, typ EventType, payload any) error
	List(ctx context.Context, opts ListOpts) ([]LedgerEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]LedgerEvent, error)
}
