package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenAdapter is the capability surface the ledger needs from an asset
// collection: moving custody between addresses plus the read-only lookups
// the presentation layer uses. One adapter exists per asset kind; the
// registry and settlement engine stay kind-agnostic behind it.
type TokenAdapter interface {
	Kind() AssetKind

	// TransferCustody moves quantity units of (contract, tokenID) from one
	// address to the other. For single-copy assets quantity must be 1 and
	// from must be the sole owner; for multi-copy assets from must hold at
	// least quantity units. Returns ErrTransferUnauthorized otherwise.
	TransferCustody(ctx context.Context, contract common.Address, tokenID *big.Int, from, to common.Address, quantity uint64) error

	// OwnerOf returns the sole owner of a single-copy asset.
	OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error)

	// BalanceOf returns the quantity of (contract, tokenID) held by holder.
	BalanceOf(ctx context.Context, contract common.Address, tokenID *big.Int, holder common.Address) (uint64, error)

	// MetadataURI returns the location of the asset's off-ledger metadata.
	// The ledger never interprets the content.
	MetadataURI(ctx context.Context, contract common.Address, tokenID *big.Int) (string, error)
}

// ValueLedger moves value units (wei) between addresses. Settlement is the
// only ledger component that invokes Transfer.
type ValueLedger interface {
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}
