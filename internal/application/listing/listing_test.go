package listing

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

var baseTime = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fixed(id, price string, age int) entities.NFT {
	return entities.NFT{
		ID:        id,
		TokenID:   id,
		Pricing:   entities.FixedPrice{Price: decimal.RequireFromString(price)},
		CreatedAt: baseTime.Add(time.Duration(age) * time.Hour),
	}
}

func auction(id, startBid string, age int) entities.NFT {
	return entities.NFT{
		ID:        id,
		TokenID:   id,
		Pricing:   entities.Auction{StartBid: decimal.RequireFromString(startBid), EndsAt: baseTime.Add(48 * time.Hour)},
		CreatedAt: baseTime.Add(time.Duration(age) * time.Hour),
	}
}

func notForSale(id string, age int) entities.NFT {
	return entities.NFT{
		ID:        id,
		TokenID:   id,
		Pricing:   entities.NotForSale{},
		CreatedAt: baseTime.Add(time.Duration(age) * time.Hour),
	}
}

func ids(nfts []entities.NFT) []string {
	out := make([]string, len(nfts))
	for i, n := range nfts {
		out[i] = n.ID
	}
	return out
}

func fiveNFTs() []entities.NFT {
	return []entities.NFT{
		fixed("f1", "1", 0),
		fixed("f3", "3", 1),
		auction("a1", "2", 2),
		auction("a2", "4", 3),
		notForSale("n1", 4),
	}
}

func TestApply_FixedWithinRange(t *testing.T) {
	out := Apply(fiveNFTs(), Filter{SaleType: SaleFixed, PriceFrom: dec("2"), PriceTo: dec("5")}, SortNewest)

	assert.Equal(t, []string{"f3"}, ids(out))
}

func TestApply_SaleTypes(t *testing.T) {
	tests := []struct {
		saleType SaleType
		expected []string
	}{
		{SaleAll, []string{"n1", "a2", "a1", "f3", "f1"}},
		{SaleFixed, []string{"f3", "f1"}},
		{SaleAuction, []string{"a2", "a1"}},
		{SaleNotForSale, []string{"n1"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.saleType), func(t *testing.T) {
			out := Apply(fiveNFTs(), Filter{SaleType: tt.saleType}, SortNewest)
			assert.Equal(t, tt.expected, ids(out))
		})
	}
}

func TestApply_PriceBounds(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{"no bounds keeps unpriced", Filter{}, []string{"f1", "f3", "a1", "a2", "n1"}},
		{"lower bound only", Filter{PriceFrom: dec("1")}, []string{"f1", "f3"}},
		{"upper bound only", Filter{PriceTo: dec("1")}, []string{"f1"}},
		{"inclusive bounds", Filter{PriceFrom: dec("1"), PriceTo: dec("3")}, []string{"f1", "f3"}},
		{"empty range", Filter{PriceFrom: dec("5"), PriceTo: dec("10")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Apply(fiveNFTs(), tt.filter, SortPriceAsc)
			got := ids(out)
			if tt.filter.PriceFrom == nil && tt.filter.PriceTo == nil {
				assert.ElementsMatch(t, tt.expected, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestApply_SearchIsCaseSensitiveOverNameOrDescription(t *testing.T) {
	nfts := []entities.NFT{
		{ID: "1", Name: "Golden Ape"},
		{ID: "2", Name: "Cat", Description: "A golden cat"},
		{ID: "3", Name: "golden dog"},
		{ID: "4", Name: "Plain"},
	}

	assert.Equal(t, []string{"1"}, ids(Apply(nfts, Filter{Search: "Golden"}, SortNewest)))
	assert.Equal(t, []string{"2", "3"}, ids(Apply(nfts, Filter{Search: "golden"}, SortNewest)))
}

func TestApply_Sorts(t *testing.T) {
	withLast := func(n entities.NFT, last string) entities.NFT {
		n.LastPrice = decimal.NewNullDecimal(decimal.RequireFromString(last))
		return n
	}
	nfts := []entities.NFT{
		withLast(fixed("f1", "1", 0), "5"),
		fixed("f3", "3", 1),
		withLast(auction("a1", "2", 2), "7"),
		notForSale("n1", 3),
	}

	tests := []struct {
		key      SortKey
		expected []string
	}{
		{SortNewest, []string{"n1", "a1", "f3", "f1"}},
		{SortLastSale, []string{"a1", "f1", "f3", "n1"}},
		{SortPriceDesc, []string{"f3", "f1", "a1", "n1"}},
		{SortPriceAsc, []string{"a1", "n1", "f1", "f3"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			assert.Equal(t, tt.expected, ids(Apply(nfts, Filter{}, tt.key)))
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	input := fiveNFTs()
	before := ids(input)

	_ = Apply(input, Filter{SaleType: SaleFixed}, SortPriceDesc)
	_ = Apply(input, Filter{}, SortPriceAsc)

	assert.Equal(t, before, ids(input))
}

// Output is always a subsequence of the input under the chosen order and
// equal keys keep their relative order.
func TestApply_SubsequenceAndStable(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	saleTypes := []SaleType{SaleAll, SaleFixed, SaleAuction, SaleNotForSale}
	keys := []SortKey{SortNewest, SortLastSale, SortPriceDesc, SortPriceAsc}

	for round := 0; round < 200; round++ {
		nfts := make([]entities.NFT, rng.Intn(12))
		for i := range nfts {
			id := fmt.Sprintf("%d-%d", round, i)
			price := fmt.Sprintf("%d", rng.Intn(4))
			age := rng.Intn(3)
			switch rng.Intn(3) {
			case 0:
				nfts[i] = fixed(id, price, age)
			case 1:
				nfts[i] = auction(id, price, age)
			default:
				nfts[i] = notForSale(id, age)
			}
		}

		f := Filter{SaleType: saleTypes[rng.Intn(len(saleTypes))]}
		if rng.Intn(2) == 0 {
			f.PriceFrom = dec("1")
		}
		key := keys[rng.Intn(len(keys))]

		out := Apply(nfts, f, key)

		position := make(map[string]int, len(nfts))
		for i, n := range nfts {
			position[n.ID] = i
		}

		less := lessFunc(key)
		for i, n := range out {
			_, ok := position[n.ID]
			require.True(t, ok, "fabricated entry %s", n.ID)
			require.True(t, f.Match(n))
			if i == 0 {
				continue
			}
			prev := out[i-1]
			require.False(t, less(n, prev), "out of order at %d for %s", i, key)
			if !less(prev, n) {
				require.Less(t, position[prev.ID], position[n.ID], "unstable tie at %d for %s", i, key)
			}
		}
	}
}

func TestParseSaleType(t *testing.T) {
	st, err := ParseSaleType("")
	require.NoError(t, err)
	assert.Equal(t, SaleAll, st)

	st, err = ParseSaleType("auction")
	require.NoError(t, err)
	assert.Equal(t, SaleAuction, st)

	_, err = ParseSaleType("rental")
	assert.Error(t, err)
}

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortNewest, k)

	k, err = ParseSortKey("price_asc")
	require.NoError(t, err)
	assert.Equal(t, SortPriceAsc, k)

	_, err = ParseSortKey("alphabetical")
	assert.Error(t, err)
}
