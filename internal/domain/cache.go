package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ItemCache provides fast listing lookups in front of the registry.
type ItemCache interface {
	Set(ctx context.Context, item MarketItem) error
	Get(ctx context.Context, itemID uint64) (MarketItem, error)
	GetByToken(ctx context.Context, contract common.Address, tokenID *big.Int) (MarketItem, error)
	Invalidate(ctx context.Context, itemID uint64) error
}

// RateLimiter provides distributed rate limiting for the public API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking for cross-replica mutual
// exclusion on mutating calls.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus carries emitted ledger records to off-ledger observers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
