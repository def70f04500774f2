package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curatorlabs/marketd/internal/domain"
)

// ItemStore implements domain.ItemStore using PostgreSQL. Item ids come from
// the table's BIGSERIAL sequence; inserts only happen after validation, so
// the sequence stays gap-free in normal operation.
type ItemStore struct {
	pool *pgxpool.Pool
}

// NewItemStore creates a new ItemStore backed by the given connection pool.
func NewItemStore(pool *pgxpool.Pool) *ItemStore {
	return &ItemStore{pool: pool}
}

const itemCols = `item_id, asset_contract, token_id::text, price::text, quantity,
	seller, custodian, sold, kind, created_at, sold_at`

// scanItem scans a single row into a domain.MarketItem.
func scanItem(row pgx.Row) (domain.MarketItem, error) {
	var (
		m                                     domain.MarketItem
		itemID, quantity                      int64
		contract, tokenID, price, seller, cus string
		kind                                  string
	)
	err := row.Scan(
		&itemID, &contract, &tokenID, &price, &quantity,
		&seller, &cus, &m.Sold, &kind, &m.CreatedAt, &m.SoldAt,
	)
	if err != nil {
		return domain.MarketItem{}, err
	}

	m.ItemID = uint64(itemID)
	m.AssetContract = common.HexToAddress(contract)
	m.Quantity = uint64(quantity)
	m.Seller = common.HexToAddress(seller)
	m.Custodian = common.HexToAddress(cus)
	m.Kind = domain.AssetKind(kind)

	var ok bool
	if m.TokenID, ok = new(big.Int).SetString(tokenID, 10); !ok {
		return domain.MarketItem{}, fmt.Errorf("parse token_id %q", tokenID)
	}
	if m.Price, ok = new(big.Int).SetString(price, 10); !ok {
		return domain.MarketItem{}, fmt.Errorf("parse price %q", price)
	}
	return m, nil
}

// Insert stores a new unsold item and returns its assigned id.
func (s *ItemStore) Insert(ctx context.Context, item domain.MarketItem) (uint64, error) {
	const query = `
		INSERT INTO market_items (
			asset_contract, token_id, price, quantity,
			seller, custodian, sold, kind, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
		RETURNING item_id`

	var itemID int64
	err := s.pool.QueryRow(ctx, query,
		item.AssetContract.Hex(), item.TokenID.String(), item.Price.String(),
		int64(item.Quantity), item.Seller.Hex(), item.Custodian.Hex(),
		string(item.Kind), item.CreatedAt,
	).Scan(&itemID)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert item: %w", err)
	}
	return uint64(itemID), nil
}

// GetByID retrieves an item by its id.
func (s *ItemStore) GetByID(ctx context.Context, itemID uint64) (domain.MarketItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM market_items WHERE item_id = $1`, int64(itemID))
	m, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketItem{}, domain.ErrNotFound
		}
		return domain.MarketItem{}, fmt.Errorf("postgres: get item %d: %w", itemID, err)
	}
	return m, nil
}

// FindByToken resolves the listing for (contract, tokenID): an unsold match
// first, otherwise the most recently listed match.
func (s *ItemStore) FindByToken(ctx context.Context, contract common.Address, tokenID *big.Int) (domain.MarketItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM market_items
		 WHERE asset_contract = $1 AND token_id = $2
		 ORDER BY sold ASC, item_id DESC
		 LIMIT 1`,
		contract.Hex(), tokenID.String())
	m, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketItem{}, domain.ErrNotFound
		}
		return domain.MarketItem{}, fmt.Errorf("postgres: find item by token: %w", err)
	}
	return m, nil
}

// MarkSold flips the item to sold with a conditional update, so concurrent
// purchases of the same item race on the database row, not in application
// code.
func (s *ItemStore) MarkSold(ctx context.Context, itemID uint64, buyer common.Address, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE market_items
		 SET sold = TRUE, custodian = $2, sold_at = $3
		 WHERE item_id = $1 AND sold = FALSE`,
		int64(itemID), buyer.Hex(), at)
	if err != nil {
		return fmt.Errorf("postgres: mark sold %d: %w", itemID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var sold bool
	err = s.pool.QueryRow(ctx,
		`SELECT sold FROM market_items WHERE item_id = $1`, int64(itemID)).Scan(&sold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: mark sold %d: %w", itemID, err)
	}
	if sold {
		return domain.ErrAlreadySold
	}
	return domain.ErrNotFound
}

// RevertSale undoes MarkSold, restoring escrow custody.
func (s *ItemStore) RevertSale(ctx context.Context, itemID uint64, escrow common.Address) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE market_items
		 SET sold = FALSE, custodian = $2, sold_at = NULL
		 WHERE item_id = $1`,
		int64(itemID), escrow.Hex())
	if err != nil {
		return fmt.Errorf("postgres: revert sale %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// listItems runs a query returning item rows and scans them all.
func (s *ItemStore) listItems(ctx context.Context, query string, args ...any) ([]domain.MarketItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.MarketItem
	for rows.Next() {
		m, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// ListUnsold returns all unsold items ordered by ascending item id.
func (s *ItemStore) ListUnsold(ctx context.Context) ([]domain.MarketItem, error) {
	items, err := s.listItems(ctx,
		`SELECT `+itemCols+` FROM market_items WHERE sold = FALSE ORDER BY item_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsold: %w", err)
	}
	return items, nil
}

// ListBySeller returns all items listed by seller, any sold status.
func (s *ItemStore) ListBySeller(ctx context.Context, seller common.Address) ([]domain.MarketItem, error) {
	items, err := s.listItems(ctx,
		`SELECT `+itemCols+` FROM market_items WHERE seller = $1 ORDER BY item_id ASC`,
		seller.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list by seller: %w", err)
	}
	return items, nil
}

// ListByOwner returns all sold items whose buyer was owner.
func (s *ItemStore) ListByOwner(ctx context.Context, owner common.Address) ([]domain.MarketItem, error) {
	items, err := s.listItems(ctx,
		`SELECT `+itemCols+` FROM market_items
		 WHERE sold = TRUE AND custodian = $1
		 ORDER BY item_id ASC`,
		owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list by owner: %w", err)
	}
	return items, nil
}

// Count returns the total number of items ever listed.
func (s *ItemStore) Count(ctx context.Context) (uint64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM market_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count items: %w", err)
	}
	return uint64(count), nil
}
