// Package ledger implements the marketplace ledger: the listing registry,
// the settlement engine, and the query index, combined behind one facade.
// It owns no transport concerns; the HTTP server and the websocket hub front
// it for external callers.
package ledger

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// Bus channels carrying emitted ledger records.
const (
	ChannelListings = "ch:listing"
	ChannelSales    = "ch:sale"
)

// ReceiptSigner signs sale receipts with the escrow identity's key so
// off-ledger observers can verify emitted records.
type ReceiptSigner interface {
	SignSale(itemID uint64, buyer common.Address, price *big.Int, quantity uint64) (string, error)
}

// Config bundles everything a Ledger needs. Items, Events, Values, Single,
// Multi, and Escrow are required; Cache, Bus, Locks, and Signer are optional
// and skipped when nil.
type Config struct {
	Escrow common.Address
	Items  domain.ItemStore
	Events domain.EventStore
	Values domain.ValueLedger
	Single domain.TokenAdapter
	Multi  domain.TokenAdapter
	Cache  domain.ItemCache
	Bus    domain.SignalBus
	Locks  domain.LockManager
	Signer ReceiptSigner
	Logger *slog.Logger
}

// Ledger is the external call surface over the registry, settlement, and
// query components. Mutating operations are atomic: a failed operation
// leaves registry state, custody, and balances exactly as they were.
type Ledger struct {
	escrow   common.Address
	items    domain.ItemStore
	events   domain.EventStore
	values   domain.ValueLedger
	adapters map[domain.AssetKind]domain.TokenAdapter
	cache    domain.ItemCache
	bus      domain.SignalBus
	locks    domain.LockManager
	signer   ReceiptSigner
	logger   *slog.Logger
}

// New creates a Ledger from cfg.
func New(cfg Config) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		escrow: cfg.Escrow,
		items:  cfg.Items,
		events: cfg.Events,
		values: cfg.Values,
		adapters: map[domain.AssetKind]domain.TokenAdapter{
			domain.AssetKindSingle: cfg.Single,
			domain.AssetKindMulti:  cfg.Multi,
		},
		cache:  cfg.Cache,
		bus:    cfg.Bus,
		locks:  cfg.Locks,
		signer: cfg.Signer,
		logger: logger,
	}
}

// Escrow returns the registry's own custody identity.
func (l *Ledger) Escrow() common.Address {
	return l.escrow
}

// Adapter returns the capability adapter for the given asset kind.
func (l *Ledger) Adapter(kind domain.AssetKind) (domain.TokenAdapter, bool) {
	a, ok := l.adapters[kind]
	return a, ok && a != nil
}
