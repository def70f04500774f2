package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/curatorlabs/marketd/internal/domain"
)

const itemTTL = 5 * time.Minute

// ItemCache implements domain.ItemCache using Redis hashes with JSON-
// serialized MarketItem data and a secondary (contract, token) index.
//
// Key schema:
//
//	item:{itemID}                 - hash with field "data" containing JSON
//	item:token:{contract}:{token} - string value of the item id
type ItemCache struct {
	rdb *redis.Client
}

// NewItemCache creates an ItemCache backed by the given Client.
func NewItemCache(c *Client) *ItemCache {
	return &ItemCache{rdb: c.Underlying()}
}

func itemKey(itemID uint64) string {
	return "item:" + strconv.FormatUint(itemID, 10)
}

func itemTokenKey(contract common.Address, tokenID *big.Int) string {
	return "item:token:" + contract.Hex() + ":" + tokenID.String()
}

// Set stores an item with a 5-minute TTL and indexes its token pair. Only
// unsold items are indexed by token: a sold item's pair may be relisted
// under a new id and the index must resolve to the live listing.
func (ic *ItemCache) Set(ctx context.Context, item domain.MarketItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis: marshal item %d: %w", item.ItemID, err)
	}

	key := itemKey(item.ItemID)

	pipe := ic.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, itemTTL)
	if !item.Sold {
		pipe.Set(ctx, itemTokenKey(item.AssetContract, item.TokenID),
			strconv.FormatUint(item.ItemID, 10), itemTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set item %d: %w", item.ItemID, err)
	}
	return nil
}

// Get retrieves an item by its id. It returns domain.ErrNotFound when the
// key does not exist.
func (ic *ItemCache) Get(ctx context.Context, itemID uint64) (domain.MarketItem, error) {
	data, err := ic.rdb.HGet(ctx, itemKey(itemID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketItem{}, domain.ErrNotFound
		}
		return domain.MarketItem{}, fmt.Errorf("redis: get item %d: %w", itemID, err)
	}

	var item domain.MarketItem
	if err := json.Unmarshal(data, &item); err != nil {
		return domain.MarketItem{}, fmt.Errorf("redis: unmarshal item %d: %w", itemID, err)
	}
	return item, nil
}

// GetByToken looks up an item through the (contract, token) index.
func (ic *ItemCache) GetByToken(ctx context.Context, contract common.Address, tokenID *big.Int) (domain.MarketItem, error) {
	idStr, err := ic.rdb.Get(ctx, itemTokenKey(contract, tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketItem{}, domain.ErrNotFound
		}
		return domain.MarketItem{}, fmt.Errorf("redis: get item by token: %w", err)
	}

	itemID, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("redis: parse item id %q: %w", idStr, err)
	}
	return ic.Get(ctx, itemID)
}

// Invalidate removes the cached item. The token index entry is left to
// expire on its own; readers fall through to the registry on the dangling
// reference.
func (ic *ItemCache) Invalidate(ctx context.Context, itemID uint64) error {
	if err := ic.rdb.Del(ctx, itemKey(itemID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate item %d: %w", itemID, err)
	}
	return nil
}
