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

// Purchase settles the unsold single-copy listing for (contract, tokenID):
// the buyer pays the listed price, custody moves from escrow to the buyer,
// and the item is marked sold.
func (l *Ledger) Purchase(ctx context.Context, buyer, contract common.Address, tokenID, offered *big.Int) error {
	return l.purchase(ctx, domain.AssetKindSingle, buyer, contract, tokenID, 1, offered)
}

// PurchaseMulti settles an unsold multi-copy listing. quantity must match
// the listed lot; offered is checked against price * quantity.
func (l *Ledger) PurchaseMulti(ctx context.Context, buyer, contract common.Address, tokenID *big.Int, quantity uint64, offered *big.Int) error {
	return l.purchase(ctx, domain.AssetKindMulti, buyer, contract, tokenID, quantity, offered)
}

// purchase applies checks-effects-interactions ordering: the item is marked
// sold in the registry before any value or custody moves, so a recipient
// that re-enters during its own payment observes a finalized listing and
// fails with ErrAlreadySold. If a later transfer fails the marking and any
// completed transfer are compensated, leaving no partial-sale state.
func (l *Ledger) purchase(ctx context.Context, kind domain.AssetKind, buyer, contract common.Address, tokenID *big.Int, quantity uint64, offered *big.Int) error {
	adapter, ok := l.Adapter(kind)
	if !ok {
		return fmt.Errorf("ledger: no adapter for asset kind %q", kind)
	}

	// With a lock manager configured, hold a per-token lock across the
	// settlement so server replicas sharing the registry do not interleave
	// their interaction steps for the same listing.
	if l.locks != nil {
		unlock, err := l.locks.Acquire(ctx, "settle:"+contract.Hex()+":"+tokenID.String(), 10*time.Second)
		if err != nil {
			return fmt.Errorf("ledger: settle lock: %w", err)
		}
		defer unlock()
	}

	// Checks.
	item, err := l.resolveListing(ctx, contract, tokenID)
	if err != nil {
		return fmt.Errorf("ledger: resolve listing: %w", err)
	}
	if item.Sold {
		return domain.ErrAlreadySold
	}
	if item.Kind != kind {
		return domain.ErrNotFound
	}
	if kind == domain.AssetKindMulti && quantity != item.Quantity {
		return domain.ErrInvalidQuantity
	}
	total := item.TotalPrice()
	if offered == nil || offered.Cmp(total) < 0 {
		return domain.ErrInsufficientPayment
	}

	// Effects: finalize registry state. MarkSold re-checks the sold flag
	// atomically, closing the window between the read above and here.
	if err := l.items.MarkSold(ctx, item.ItemID, buyer, time.Now().UTC()); err != nil {
		return fmt.Errorf("ledger: mark sold %d: %w", item.ItemID, err)
	}

	// Interactions: pay the seller, then hand custody to the buyer.
	if err := l.values.Transfer(ctx, buyer, item.Seller, total); err != nil {
		l.revertSale(ctx, item.ItemID)
		return fmt.Errorf("ledger: pay seller for item %d: %w", item.ItemID, err)
	}

	if err := adapter.TransferCustody(ctx, contract, tokenID, l.escrow, buyer, item.Quantity); err != nil {
		if refundErr := l.values.Transfer(ctx, item.Seller, buyer, total); refundErr != nil {
			l.logger.ErrorContext(ctx, "ledger: refund failed during purchase rollback",
				slog.Uint64("item_id", item.ItemID),
				slog.String("error", refundErr.Error()),
			)
		}
		l.revertSale(ctx, item.ItemID)
		return fmt.Errorf("ledger: custody transfer for item %d: %w", item.ItemID, err)
	}

	l.emitListingSold(ctx, item, buyer)

	l.logger.InfoContext(ctx, "ledger: listing sold",
		slog.Uint64("item_id", item.ItemID),
		slog.String("buyer", buyer.Hex()),
		slog.String("seller", item.Seller.Hex()),
		slog.String("total", total.String()),
	)
	return nil
}

// resolveListing prefers the cache's token index over a registry scan. A
// stale unsold entry is harmless: MarkSold re-checks the sold flag
// atomically, and a dangling index entry misses and falls through.
func (l *Ledger) resolveListing(ctx context.Context, contract common.Address, tokenID *big.Int) (domain.MarketItem, error) {
	if l.cache != nil {
		if m, err := l.cache.GetByToken(ctx, contract, tokenID); err == nil {
			return m, nil
		}
	}
	return l.items.FindByToken(ctx, contract, tokenID)
}

// revertSale compensates a failed settlement by restoring the unsold state.
func (l *Ledger) revertSale(ctx context.Context, itemID uint64) {
	if err := l.items.RevertSale(ctx, itemID, l.escrow); err != nil {
		l.logger.ErrorContext(ctx, "ledger: revert sale failed",
			slog.Uint64("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, itemID); err != nil {
			l.logger.WarnContext(ctx, "ledger: cache invalidate failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// emitListingSold journals and publishes the sale record, signed by the
// escrow identity when a signer is configured.
func (l *Ledger) emitListingSold(ctx context.Context, item domain.MarketItem, buyer common.Address) {
	rec := domain.ListingSold{
		ItemID:   item.ItemID,
		Buyer:    buyer,
		Price:    item.Price,
		Quantity: item.Quantity,
	}
	if l.signer != nil {
		sig, err := l.signer.SignSale(item.ItemID, buyer, item.Price, item.Quantity)
		if err != nil {
			l.logger.WarnContext(ctx, "ledger: sign sale receipt failed",
				slog.Uint64("item_id", item.ItemID),
				slog.String("error", err.Error()),
			)
		} else {
			rec.Signature = sig
		}
	}

	if l.events != nil {
		if err := l.events.Append(ctx, domain.EventListingSold, rec); err != nil {
			l.logger.WarnContext(ctx, "ledger: journal listing_sold failed",
				slog.Uint64("item_id", item.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
	if l.bus != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := l.bus.Publish(ctx, ChannelSales, data); err != nil {
				l.logger.WarnContext(ctx, "ledger: publish listing_sold failed",
					slog.Uint64("item_id", item.ItemID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, item.ItemID); err != nil {
			l.logger.WarnContext(ctx, "ledger: cache invalidate failed",
				slog.Uint64("item_id", item.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
}
