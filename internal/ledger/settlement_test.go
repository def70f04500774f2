package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/curatorlabs/marketd/internal/crypto"
	"github.com/curatorlabs/marketd/internal/domain"
)

func TestPurchaseSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintAndList(t, 1, aWei(3))
	f.bank.Credit(buyer, aWei(5))

	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(3)))

	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.True(t, item.Sold)
	require.Equal(t, buyer, item.Custodian)
	require.NotNil(t, item.SoldAt)

	owner, err := f.single.OwnerOf(ctx, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	buyerBal, err := f.bank.BalanceOf(ctx, buyer)
	require.NoError(t, err)
	require.Zero(t, buyerBal.Cmp(aWei(2)))

	sellerBal, err := f.bank.BalanceOf(ctx, seller)
	require.NoError(t, err)
	require.Zero(t, sellerBal.Cmp(aWei(3)))
}

func TestPurchaseFirstOfTwoListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.mintAndList(t, 1, aWei(1))
	second := f.mintAndList(t, 2, aWei(2))

	f.bank.Credit(buyer, aWei(1))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))

	item, err := f.ledger.GetListing(ctx, first)
	require.NoError(t, err)
	require.True(t, item.Sold)

	other, err := f.ledger.GetListing(ctx, second)
	require.NoError(t, err)
	require.False(t, other.Sold)
	require.Equal(t, f.escrow, other.Custodian)
}

func TestPurchaseTwiceFailsAlreadySold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintAndList(t, 1, aWei(1))
	f.bank.Credit(buyer, aWei(1))
	f.bank.Credit(stranger, aWei(1))

	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))
	err := f.ledger.Purchase(ctx, stranger, collection, big.NewInt(1), aWei(1))
	require.ErrorIs(t, err, domain.ErrAlreadySold)

	// The failed attempt changed nothing: custody and balances are those of
	// the first settlement.
	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.Equal(t, buyer, item.Custodian)

	owner, err := f.single.OwnerOf(ctx, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	strangerBal, err := f.bank.BalanceOf(ctx, stranger)
	require.NoError(t, err)
	require.Zero(t, strangerBal.Cmp(aWei(1)))

	sellerBal, err := f.bank.BalanceOf(ctx, seller)
	require.NoError(t, err)
	require.Zero(t, sellerBal.Cmp(aWei(1)))
}

func TestPurchaseInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintAndList(t, 1, aWei(2))
	f.bank.Credit(buyer, aWei(5))

	err := f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)

	// Nothing moved.
	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.False(t, item.Sold)

	buyerBal, err := f.bank.BalanceOf(ctx, buyer)
	require.NoError(t, err)
	require.Zero(t, buyerBal.Cmp(aWei(5)))

	owner, err := f.single.OwnerOf(ctx, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, f.escrow, owner)
}

func TestPurchaseUnknownTokenNotFound(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Purchase(context.Background(), buyer, collection, big.NewInt(99), aWei(1))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurchaseRollsBackWhenBuyerCannotPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintAndList(t, 1, aWei(2))
	// Buyer offers enough but holds nothing.

	err := f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(2))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The sale marking was compensated; the item is purchasable again.
	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.False(t, item.Sold)
	require.Equal(t, f.escrow, item.Custodian)

	f.bank.Credit(buyer, aWei(2))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(2)))
}

func TestPurchaseMultiWholeLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokenID := big.NewInt(7)

	f.multi.Mint(collection, tokenID, seller, 4, "")
	id, err := f.ledger.CreateListingMulti(ctx, seller, collection, tokenID, aWei(1), 4)
	require.NoError(t, err)

	f.bank.Credit(buyer, aWei(4))
	require.NoError(t, f.ledger.PurchaseMulti(ctx, buyer, collection, tokenID, 4, aWei(4)))

	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.True(t, item.Sold)

	bal, err := f.multi.BalanceOf(ctx, collection, tokenID, buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(4), bal)

	sellerBal, err := f.bank.BalanceOf(ctx, seller)
	require.NoError(t, err)
	require.Zero(t, sellerBal.Cmp(aWei(4)))
}

func TestPurchaseMultiQuantityMustMatchLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokenID := big.NewInt(7)

	f.multi.Mint(collection, tokenID, seller, 4, "")
	_, err := f.ledger.CreateListingMulti(ctx, seller, collection, tokenID, aWei(1), 4)
	require.NoError(t, err)

	f.bank.Credit(buyer, aWei(4))
	err = f.ledger.PurchaseMulti(ctx, buyer, collection, tokenID, 2, aWei(2))
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestPurchaseMultiInsufficientPaymentForLot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokenID := big.NewInt(7)

	f.multi.Mint(collection, tokenID, seller, 4, "")
	_, err := f.ledger.CreateListingMulti(ctx, seller, collection, tokenID, aWei(1), 4)
	require.NoError(t, err)

	f.bank.Credit(buyer, aWei(10))
	err = f.ledger.PurchaseMulti(ctx, buyer, collection, tokenID, 4, aWei(3))
	require.ErrorIs(t, err, domain.ErrInsufficientPayment)
}

// TestPurchaseHostileRecipientCannotDoubleBuy models a seller whose payment
// receive path calls back into the ledger and tries to buy its own listing
// again mid-settlement. The re-entrant call must observe the finalized sold
// state and fail, and the outer settlement must complete exactly once.
func TestPurchaseHostileRecipientCannotDoubleBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mintAndList(t, 1, aWei(1))
	f.bank.Credit(buyer, aWei(1))
	f.bank.Credit(seller, aWei(1))

	var reentrantErr error
	hookRan := false
	f.bank.SetReceiveHook(seller, func(ctx context.Context, from common.Address, amount *big.Int) error {
		hookRan = true
		reentrantErr = f.ledger.Purchase(ctx, seller, collection, big.NewInt(1), aWei(1))
		// Swallow the expected failure; a hook error would void the payment.
		return nil
	})

	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))
	require.True(t, hookRan)
	require.ErrorIs(t, reentrantErr, domain.ErrAlreadySold)

	// Exactly one settlement happened.
	owner, err := f.single.OwnerOf(ctx, collection, big.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, buyer, owner)

	sellerBal, err := f.bank.BalanceOf(ctx, seller)
	require.NoError(t, err)
	require.Zero(t, sellerBal.Cmp(aWei(2)))

	buyerBal, err := f.bank.BalanceOf(ctx, buyer)
	require.NoError(t, err)
	require.Zero(t, buyerBal.Sign())
}

func TestRelistAfterSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mintAndList(t, 1, aWei(1))
	f.bank.Credit(buyer, aWei(5))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))

	// The buyer relists the same token; the new listing gets a fresh id and
	// resolves ahead of the sold one.
	id, err := f.ledger.CreateListing(ctx, buyer, collection, big.NewInt(1), aWei(2))
	require.NoError(t, err)
	require.Equal(t, uint64(2), id)

	f.bank.Credit(stranger, aWei(2))
	require.NoError(t, f.ledger.Purchase(ctx, stranger, collection, big.NewInt(1), aWei(2)))

	item, err := f.ledger.GetListing(ctx, id)
	require.NoError(t, err)
	require.True(t, item.Sold)
	require.Equal(t, stranger, item.Custodian)
}

func TestListingSoldEventCarriesVerifiableSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mintAndList(t, 1, aWei(1))
	f.bank.Credit(buyer, aWei(1))
	require.NoError(t, f.ledger.Purchase(ctx, buyer, collection, big.NewInt(1), aWei(1)))

	events, err := f.events.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.EventListingSold, events[1].Type)

	var rec domain.ListingSold
	require.NoError(t, json.Unmarshal(events[1].Payload, &rec))
	require.Equal(t, uint64(1), rec.ItemID)
	require.Equal(t, buyer, rec.Buyer)
	require.NotEmpty(t, rec.Signature)

	ok, err := crypto.VerifySale(f.escrow, rec.ItemID, rec.Buyer, rec.Price, rec.Quantity, rec.Signature)
	require.NoError(t, err)
	require.True(t, ok)
}
