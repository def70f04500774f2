package domain

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names the record kinds the ledger emits.
type EventType string

const (
	EventListingCreated EventType = "listing_created"
	EventListingSold    EventType = "listing_sold"
)

// ListingCreated is emitted once per successful listing creation. Off-ledger
// observers (the storefront, indexers) consume it instead of re-deriving
// registry state.
type ListingCreated struct {
	ItemID        uint64         `json:"item_id"`
	AssetContract common.Address `json:"asset_contract"`
	TokenID       *big.Int       `json:"token_id"`
	Price         *big.Int       `json:"price"`
	Quantity      uint64         `json:"quantity"`
	Seller        common.Address `json:"seller"`
	Kind          AssetKind      `json:"kind"`
}

// ListingSold is emitted once per settled purchase. Signature is the escrow
// identity's secp256k1 signature over the receipt digest, hex encoded, so
// observers can verify the record against the escrow address.
type ListingSold struct {
	ItemID    uint64         `json:"item_id"`
	Buyer     common.Address `json:"buyer"`
	Price     *big.Int       `json:"price"`
	Quantity  uint64         `json:"quantity"`
	Signature string         `json:"signature,omitempty"`
}

// LedgerEvent is one journaled record.
type LedgerEvent struct {
	ID        int64
	Type      EventType
	Payload   json.RawMessage
	CreatedAt time.Time
}
