package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind distinguishes the two custody models the ledger supports.
type AssetKind string

const (
	// AssetKindSingle is an asset held whole by exactly one address at a time.
	AssetKindSingle AssetKind = "single"
	// AssetKindMulti is an asset subdivided into a quantity that can be
	// partially held and transferred.
	AssetKindMulti AssetKind = "multi"
)

// Valid reports whether k is a known asset kind.
func (k AssetKind) Valid() bool {
	return k == AssetKindSingle || k == AssetKindMulti
}

// MarketItem is one row of the listing registry: a single asset instance
// offered for sale. Items are never deleted; Sold flips to true exactly once.
type MarketItem struct {
	ItemID        uint64
	AssetContract common.Address
	TokenID       *big.Int
	Price         *big.Int // per unit, in wei; fixed at listing time
	Quantity      uint64   // always 1 for single-copy assets
	Seller        common.Address
	Custodian     common.Address // escrow while unsold, the buyer once sold
	Sold          bool
	Kind          AssetKind
	CreatedAt     time.Time
	SoldAt        *time.Time
}

// TotalPrice returns Price * Quantity, the value required to settle the item.
func (m MarketItem) TotalPrice() *big.Int {
	return new(big.Int).Mul(m.Price, new(big.Int).SetUint64(m.Quantity))
}
