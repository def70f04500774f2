package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curatorlabs/marketd/internal/domain"
)

// CreateListing lists a single-copy asset for sale. The asset moves into
// escrow custody before the item is recorded; the assigned item id is
// returned. No id is allocated when validation or the custody transfer
// fails.
func (l *Ledger) CreateListing(ctx context.Context, seller, contract common.Address, tokenID, price *big.Int) (uint64, error) {
	return l.createListing(ctx, domain.AssetKindSingle, seller, contract, tokenID, price, 1)
}

// CreateListingMulti lists quantity units of a multi-copy asset for sale at
// price per unit. The listed quantity sells as a whole lot.
func (l *Ledger) CreateListingMulti(ctx context.Context, seller, contract common.Address, tokenID, price *big.Int, quantity uint64) (uint64, error) {
	return l.createListing(ctx, domain.AssetKindMulti, seller, contract, tokenID, price, quantity)
}

// createListing is the shared path for both asset kinds; they differ only in
// the quantity threaded to the capability adapter.
func (l *Ledger) createListing(ctx context.Context, kind domain.AssetKind, seller, contract common.Address, tokenID, price *big.Int, quantity uint64) (uint64, error) {
	if price == nil || price.Sign() <= 0 {
		return 0, domain.ErrInvalidPrice
	}
	if quantity == 0 {
		return 0, domain.ErrInvalidQuantity
	}
	adapter, ok := l.Adapter(kind)
	if !ok {
		return 0, fmt.Errorf("ledger: no adapter for asset kind %q", kind)
	}

	// Custody moves to escrow first; a seller that does not hold the asset
	// fails here and nothing is recorded.
	if err := adapter.TransferCustody(ctx, contract, tokenID, seller, l.escrow, quantity); err != nil {
		return 0, fmt.Errorf("ledger: escrow custody transfer: %w", err)
	}

	item := domain.MarketItem{
		AssetContract: contract,
		TokenID:       new(big.Int).Set(tokenID),
		Price:         new(big.Int).Set(price),
		Quantity:      quantity,
		Seller:        seller,
		Custodian:     l.escrow,
		Kind:          kind,
		CreatedAt:     time.Now().UTC(),
	}

	itemID, err := l.items.Insert(ctx, item)
	if err != nil {
		// Return the asset to the seller so the failed listing has no effect.
		if undoErr := adapter.TransferCustody(ctx, contract, tokenID, l.escrow, seller, quantity); undoErr != nil {
			l.logger.ErrorContext(ctx, "ledger: custody rollback failed after insert error",
				slog.String("contract", contract.Hex()),
				slog.String("token_id", tokenID.String()),
				slog.String("error", undoErr.Error()),
			)
		}
		return 0, fmt.Errorf("ledger: insert listing: %w", err)
	}
	item.ItemID = itemID

	l.emitListingCreated(ctx, item)

	l.logger.InfoContext(ctx, "ledger: listing created",
		slog.Uint64("item_id", itemID),
		slog.String("seller", seller.Hex()),
		slog.String("contract", contract.Hex()),
		slog.String("token_id", tokenID.String()),
		slog.String("price", price.String()),
		slog.Uint64("quantity", quantity),
		slog.String("kind", string(kind)),
	)
	return itemID, nil
}

// GetListing returns the item with the given id, checking the cache first
// and falling back to the registry table on a miss.
func (l *Ledger) GetListing(ctx context.Context, itemID uint64) (domain.MarketItem, error) {
	if l.cache != nil {
		if m, err := l.cache.Get(ctx, itemID); err == nil {
			return m, nil
		}
	}

	m, err := l.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.MarketItem{}, fmt.Errorf("ledger: get listing %d: %w", itemID, err)
	}

	if l.cache != nil {
		if cacheErr := l.cache.Set(ctx, m); cacheErr != nil {
			l.logger.WarnContext(ctx, "ledger: cache set failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// emitListingCreated journals and publishes the creation record. Emission is
// observational: failures are logged, never surfaced to the caller, because
// the listing is already committed.
func (l *Ledger) emitListingCreated(ctx context.Context, item domain.MarketItem) {
	rec := domain.ListingCreated{
		ItemID:        item.ItemID,
		AssetContract: item.AssetContract,
		TokenID:       item.TokenID,
		Price:         item.Price,
		Quantity:      item.Quantity,
		Seller:        item.Seller,
		Kind:          item.Kind,
	}

	if l.events != nil {
		if err := l.events.Append(ctx, domain.EventListingCreated, rec); err != nil {
			l.logger.WarnContext(ctx, "ledger: journal listing_created failed",
				slog.Uint64("item_id", item.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
	if l.bus != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := l.bus.Publish(ctx, ChannelListings, data); err != nil {
				l.logger.WarnContext(ctx, "ledger: publish listing_created failed",
					slog.Uint64("item_id", item.ItemID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if l.cache != nil {
		if err := l.cache.Set(ctx, item); err != nil {
			l.logger.WarnContext(ctx, "ledger: cache set failed",
				slog.Uint64("item_id", item.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
}
