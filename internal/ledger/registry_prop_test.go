package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/curatorlabs/marketd/internal/domain"
)

// Item ids stay gap-free from 1 under any interleaving of valid listings,
// rejected listings, and purchases.
func TestItemIDsGapFree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.bank.Credit(buyer, aWei(1_000_000))

		var (
			nextToken int64 = 1
			expected  uint64
			unsold    []int64
		)

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0: // valid listing
				tokenID := big.NewInt(nextToken)
				nextToken++
				f.single.Mint(collection, tokenID, seller, "")
				id, err := f.ledger.CreateListing(ctx, seller, collection, tokenID, aWei(1))
				require.NoError(rt, err)
				expected++
				require.Equal(rt, expected, id)
				unsold = append(unsold, tokenID.Int64())

			case 1: // rejected listing consumes no id
				tokenID := big.NewInt(nextToken)
				nextToken++
				f.single.Mint(collection, tokenID, seller, "")
				_, err := f.ledger.CreateListing(ctx, seller, collection, tokenID, big.NewInt(0))
				require.ErrorIs(rt, err, domain.ErrInvalidPrice)

			case 2: // purchase never disturbs id assignment
				if len(unsold) == 0 {
					continue
				}
				tokenID := big.NewInt(unsold[0])
				unsold = unsold[1:]
				require.NoError(rt, f.ledger.Purchase(ctx, buyer, collection, tokenID, aWei(1)))
			}
		}

		count, err := f.ledger.ListingCount(ctx)
		require.NoError(rt, err)
		require.Equal(rt, expected, count)

		// Every assigned id resolves; the next one does not.
		for id := uint64(1); id <= expected; id++ {
			_, err := f.ledger.GetListing(ctx, id)
			require.NoError(rt, err)
		}
		_, err = f.ledger.GetListing(ctx, expected+1)
		require.ErrorIs(rt, err, domain.ErrNotFound)
	})
}
