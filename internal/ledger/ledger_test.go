package ledger

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/curatorlabs/marketd/internal/bank"
	"github.com/curatorlabs/marketd/internal/crypto"
	"github.com/curatorlabs/marketd/internal/domain"
	"github.com/curatorlabs/marketd/internal/store/memory"
	"github.com/curatorlabs/marketd/internal/token"
)

const testEscrowKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

var (
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	seller     = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	buyer      = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	stranger   = common.HexToAddress("0x0000000000000000000000000000000000000d01")
)

// aWei mirrors the price scale listings trade at.
func aWei(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18)) }

type fixture struct {
	ledger *Ledger
	items  *memory.ItemStore
	events *memory.EventStore
	single *token.SingleCopyBook
	multi  *token.MultiCopyBook
	bank   *bank.Bank
	escrow common.Address
	signer *crypto.ReceiptSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	signer, err := crypto.NewReceiptSigner(testEscrowKey)
	require.NoError(t, err)

	f := &fixture{
		items:  memory.NewItemStore(),
		events: memory.NewEventStore(),
		single: token.NewSingleCopyBook(),
		multi:  token.NewMultiCopyBook(),
		bank:   bank.New(),
		escrow: signer.Address(),
		signer: signer,
	}
	f.ledger = New(Config{
		Escrow: f.escrow,
		Items:  f.items,
		Events: f.events,
		Values: f.bank,
		Single: f.single,
		Multi:  f.multi,
		Signer: signer,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// mintAndList mints token id n to seller and lists it at price.
func (f *fixture) mintAndList(t *testing.T, n int64, price *big.Int) uint64 {
	t.Helper()
	tokenID := big.NewInt(n)
	f.single.Mint(collection, tokenID, seller, "ipfs://meta/"+tokenID.String())
	id, err := f.ledger.CreateListing(context.Background(), seller, collection, tokenID, price)
	require.NoError(t, err)
	return id
}

func TestCreateListingAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)

	for i := int64(1); i <= 5; i++ {
		id := f.mintAndList(t, i, aWei(1))
		require.Equal(t, uint64(i), id)
	}

	count, err := f.ledger.ListingCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5), count)
}

func TestCreateListingMovesCustodyToEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintAndList(t, 1, aWei(2))

	owner, err := f.single.OwnerOf(ctx, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, f.escrow, owner)

	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.Equal(t, seller, item.Seller)
	require.Equal(t, f.escrow, item.Custodian)
	require.False(t, item.Sold)
	require.Equal(t, domain.AssetKindSingle, item.Kind)
	require.Zero(t, item.Price.Cmp(aWei(2)))
}

func TestCreateListingRejectsZeroPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.single.Mint(collection, big.NewInt(1), seller, "")

	_, err := f.ledger.CreateListing(ctx, seller, collection, big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = f.ledger.CreateListing(ctx, seller, collection, big.NewInt(1), big.NewInt(-5))
	require.ErrorIs(t, err, domain.ErrInvalidPrice)

	// No id was consumed and custody never moved.
	count, err := f.ledger.ListingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	owner, err := f.single.OwnerOf(ctx, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, seller, owner)

	// The next successful listing still gets id 1.
	id := f.mintAndList(t, 2, aWei(1))
	require.Equal(t, uint64(1), id)
}

func TestCreateListingRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.single.Mint(collection, big.NewInt(1), seller, "")

	_, err := f.ledger.CreateListing(ctx, stranger, collection, big.NewInt(1), aWei(1))
	require.ErrorIs(t, err, domain.ErrTransferUnauthorized)

	count, err := f.ledger.ListingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCreateListingMulti(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokenID := big.NewInt(7)

	f.multi.Mint(collection, tokenID, seller, 10, "ipfs://meta/7")

	id, err := f.ledger.CreateListingMulti(ctx, seller, collection, tokenID, aWei(1), 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.AssetKindMulti, item.Kind)
	require.Equal(t, uint64(10), item.Quantity)
	require.Zero(t, item.TotalPrice().Cmp(aWei(10)))

	// All ten units sit in escrow.
	bal, err := f.multi.BalanceOf(ctx, collection, tokenID, f.escrow)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal)
}

func TestCreateListingMultiRejectsExcessQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokenID := big.NewInt(7)

	f.multi.Mint(collection, tokenID, seller, 3, "")

	_, err := f.ledger.CreateListingMulti(ctx, seller, collection, tokenID, aWei(1), 5)
	require.ErrorIs(t, err, domain.ErrTransferUnauthorized)

	bal, err := f.multi.BalanceOf(ctx, collection, tokenID, seller)
	require.NoError(t, err)
	require.Equal(t, uint64(3), bal)
}

func TestGetListingNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.GetListing(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnsoldListingsAscendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		f.mintAndList(t, i, aWei(i))
	}

	// Sell item 2; it must drop out of the unsold set.
	f.bank.Credit(buyer, aWei(10))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(2), aWei(2)))

	items, err := f.ledger.UnsoldListings(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []uint64{1, 3, 4}, itemIDs(items))
	for _, m := range items {
		require.False(t, m.Sold)
	}
}

func TestListingsBySellerIncludesSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mintAndList(t, 1, aWei(1))
	f.mintAndList(t, 2, aWei(1))

	otherSeller := common.HexToAddress("0x0000000000000000000000000000000000000a02")
	f.single.Mint(collection, big.NewInt(3), otherSeller, "")
	_, err := f.ledger.CreateListing(ctx, otherSeller, collection, big.NewInt(3), aWei(1))
	require.NoError(t, err)

	f.bank.Credit(buyer, aWei(5))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))

	items, err := f.ledger.ListingsBySeller(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, itemIDs(items))
	require.True(t, items[0].Sold)
	require.False(t, items[1].Sold)
}

func TestListingsByOwnerOnlyPurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mintAndList(t, 1, aWei(1))
	f.mintAndList(t, 2, aWei(1))
	f.mintAndList(t, 3, aWei(1))

	f.bank.Credit(buyer, aWei(5))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(3), aWei(1)))

	items, err := f.ledger.ListingsByOwner(ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, itemIDs(items))

	// The seller holds nothing through the ledger; unsold items belong to
	// escrow, not to any buyer.
	items, err = f.ledger.ListingsByOwner(ctx, seller)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestMetadataURI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.single.Mint(collection, big.NewInt(1), seller, "ipfs://meta/1")

	uri, err := f.ledger.MetadataURI(ctx, domain.AssetKindSingle, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, "ipfs://meta/1", uri)

	_, err = f.ledger.MetadataURI(ctx, domain.AssetKindSingle, collection, big.NewInt(99))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListingCreatedJournaled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mintAndList(t, 1, aWei(1))

	events, err := f.events.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventListingCreated, events[0].Type)
}

func itemIDs(items []domain.MarketItem) []uint64 {
	ids := make([]uint64, 0, len(items))
	for _, m := range items {
		ids = append(ids, m.ItemID)
	}
	return ids
}
