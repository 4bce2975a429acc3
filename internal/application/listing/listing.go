// Package listing derives the displayed NFT list from a snapshot, a filter
// and a sort key. Every function is pure and never mutates its input.
package listing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// SaleType selects NFTs by pricing mode
type SaleType string

const (
	SaleAll        SaleType = "all"
	SaleFixed      SaleType = "fixed"
	SaleAuction    SaleType = "auction"
	SaleNotForSale SaleType = "not_for_sale"
)

// SortKey orders the derived list
type SortKey string

const (
	SortNewest    SortKey = "newest"
	SortLastSale  SortKey = "last_sale"
	SortPriceDesc SortKey = "price_desc"
	SortPriceAsc  SortKey = "price_asc"
)

// Filter is the set of active list filters. Nil bounds are unset.
type Filter struct {
	SaleType  SaleType
	PriceFrom *decimal.Decimal
	PriceTo   *decimal.Decimal
	Search    string
}

// ParseSaleType parses a sale type query value; empty means all
func ParseSaleType(s string) (SaleType, error) {
	switch st := SaleType(strings.TrimSpace(s)); st {
	case "":
		return SaleAll, nil
	case SaleAll, SaleFixed, SaleAuction, SaleNotForSale:
		return st, nil
	default:
		return "", fmt.Errorf("invalid sale type %q", s)
	}
}

// ParseSortKey parses a sort query value; empty means newest
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.TrimSpace(s)); k {
	case "":
		return SortNewest, nil
	case SortNewest, SortLastSale, SortPriceDesc, SortPriceAsc:
		return k, nil
	default:
		return "", fmt.Errorf("invalid sort key %q", s)
	}
}

// Apply filters and sorts a copy of nfts. Equal keys keep their input order.
func Apply(nfts []entities.NFT, f Filter, key SortKey) []entities.NFT {
	out := make([]entities.NFT, 0, len(nfts))
	for _, n := range nfts {
		if f.Match(n) {
			out = append(out, n)
		}
	}

	less := lessFunc(key)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j])
	})
	return out
}

// Match reports whether n passes every active filter
func (f Filter) Match(n entities.NFT) bool {
	if !f.matchSaleType(n) {
		return false
	}
	if !f.matchPrice(n) {
		return false
	}
	if f.Search != "" && !strings.Contains(n.Name, f.Search) && !strings.Contains(n.Description, f.Search) {
		return false
	}
	return true
}

func (f Filter) matchSaleType(n entities.NFT) bool {
	if f.SaleType == "" || f.SaleType == SaleAll {
		return true
	}
	return string(n.PriceType()) == string(f.SaleType)
}

// matchPrice applies the inclusive bounds. Only fixed listings carry a
// numeric price; anything else fails as soon as a bound is set.
func (f Filter) matchPrice(n entities.NFT) bool {
	if f.PriceFrom == nil && f.PriceTo == nil {
		return true
	}
	price, ok := n.Price()
	if !ok {
		return false
	}
	if f.PriceFrom != nil && price.LessThan(*f.PriceFrom) {
		return false
	}
	if f.PriceTo != nil && price.GreaterThan(*f.PriceTo) {
		return false
	}
	return true
}

func lessFunc(key SortKey) func(a, b entities.NFT) bool {
	switch key {
	case SortLastSale:
		return func(a, b entities.NFT) bool {
			return lastSale(a).GreaterThan(lastSale(b))
		}
	case SortPriceDesc:
		return func(a, b entities.NFT) bool {
			return priceOrZero(a).GreaterThan(priceOrZero(b))
		}
	case SortPriceAsc:
		return func(a, b entities.NFT) bool {
			return priceOrZero(a).LessThan(priceOrZero(b))
		}
	default:
		return func(a, b entities.NFT) bool {
			return a.CreatedAt.After(b.CreatedAt)
		}
	}
}

func priceOrZero(n entities.NFT) decimal.Decimal {
	price, _ := n.Price()
	return price
}

func lastSale(n entities.NFT) decimal.Decimal {
	if n.LastPrice.Valid {
		return n.LastPrice.Decimal
	}
	return decimal.Zero
}
