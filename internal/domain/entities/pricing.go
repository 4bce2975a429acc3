package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceType tags the sale mode of an NFT
type PriceType string

const (
	PriceTypeNotForSale PriceType = "not_for_sale"
	PriceTypeFixed      PriceType = "fixed"
	PriceTypeAuction    PriceType = "auction"
)

// Pricing is the sale state of an NFT. It is closed: the only implementations
// are NotForSale, FixedPrice and Auction.
type Pricing interface {
	Type() PriceType
	pricing()
}

// NotForSale means the NFT cannot currently be bought or bid on
type NotForSale struct{}

// FixedPrice is a buy-now listing
type FixedPrice struct {
	Price decimal.Decimal
}

// Auction is a timed auction with an append-only bid history
type Auction struct {
	StartBid decimal.Decimal
	EndsAt   time.Time
	Bids     []Bid
}

// Bid is a single entry of an auction's bid history
type Bid struct {
	Bidder string          `json:"bidder"`
	Price  decimal.Decimal `json:"price"`
	Date   time.Time       `json:"date"`
}

func (NotForSale) Type() PriceType { return PriceTypeNotForSale }
func (FixedPrice) Type() PriceType { return PriceTypeFixed }
func (Auction) Type() PriceType    { return PriceTypeAuction }

func (NotForSale) pricing() {}
func (FixedPrice) pricing() {}
func (Auction) pricing()    {}

// MatchPricing dispatches on the pricing variant. Every variant needs a handler,
// so a new sale type cannot be silently ignored by callers. A nil Pricing is
// treated as NotForSale.
func MatchPricing[T any](
	p Pricing,
	notForSale func() T,
	fixed func(FixedPrice) T,
	auction func(Auction) T,
) T {
	switch v := p.(type) {
	case FixedPrice:
		return fixed(v)
	case *FixedPrice:
		if v == nil {
			return notForSale()
		}
		return fixed(*v)
	case Auction:
		return auction(v)
	case *Auction:
		if v == nil {
			return notForSale()
		}
		return auction(*v)
	default:
		return notForSale()
	}
}

// AsFixedPrice returns p as a fixed-price listing, if it is one
func AsFixedPrice(p Pricing) (FixedPrice, bool) {
	fp := MatchPricing(p,
		func() *FixedPrice { return nil },
		func(v FixedPrice) *FixedPrice { return &v },
		func(Auction) *FixedPrice { return nil },
	)
	if fp == nil {
		return FixedPrice{}, false
	}
	return *fp, true
}

// AsAuction returns p as an auction, if it is one
func AsAuction(p Pricing) (Auction, bool) {
	a := MatchPricing(p,
		func() *Auction { return nil },
		func(FixedPrice) *Auction { return nil },
		func(v Auction) *Auction { return &v },
	)
	if a == nil {
		return Auction{}, false
	}
	return *a, true
}

// TopBid recomputes the leading bid from the full history: highest price wins,
// equal prices go to the most recent bid.
func (a Auction) TopBid() (Bid, bool) {
	return TopBid(a.Bids)
}

// MinimumBid returns the amount a new bid has to exceed (top bid) or meet (start bid)
func (a Auction) MinimumBid() (decimal.Decimal, bool) {
	if top, ok := a.TopBid(); ok {
		return top.Price, true
	}
	return a.StartBid, false
}

// Ended reports whether the bidding window has closed
func (a Auction) Ended(now time.Time) bool {
	return !a.EndsAt.IsZero() && !now.Before(a.EndsAt)
}

// TopBid returns the winning bid of a bid history
func TopBid(bids []Bid) (Bid, bool) {
	if len(bids) == 0 {
		return Bid{}, false
	}

	top := bids[0]
	for _, b := range bids[1:] {
		switch b.Price.Cmp(top.Price) {
		case 1:
			top = b
		case 0:
			if b.Date.After(top.Date) {
				top = b
			}
		}
	}
	return top, true
}
