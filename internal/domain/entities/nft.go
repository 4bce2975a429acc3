package entities

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NFT represents a token record as stored by the marketplace backend
type NFT struct {
	ID         string
	Owner      string
	TokenID    string
	TokenURI   string
	Royalty    int
	Collection string
	Pricing    Pricing
	LastPrice  decimal.NullDecimal
	Currency   string
	CreatedAt  time.Time

	// Resolved from the token URI
	Name        string
	Description string
	Image       string
	Attributes  []Attribute
}

// Attribute is a single trait of an NFT
type Attribute struct {
	Trait string `json:"trait"`
	Value string `json:"value"`
}

// Metadata is the JSON document a token or collection URI resolves to
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// NFTKey identifies an NFT on chain
type NFTKey struct {
	Collection string
	TokenID    string
}

// Key returns the on-chain identity of the NFT
func (n NFT) Key() NFTKey {
	return NFTKey{Collection: strings.ToLower(n.Collection), TokenID: n.TokenID}
}

// SameToken reports whether two records describe the same token. The
// (collection, tokenId) pair is authoritative; the storage id is a fallback.
func (n NFT) SameToken(other NFT) bool {
	if n.Collection != "" && other.Collection != "" && n.TokenID != "" && other.TokenID != "" {
		return n.Key() == other.Key()
	}
	return n.ID != "" && n.ID == other.ID
}

// PriceType returns the sale mode tag
func (n NFT) PriceType() PriceType {
	if n.Pricing == nil {
		return PriceTypeNotForSale
	}
	return n.Pricing.Type()
}

// Price returns the fixed listing price, if there is one
func (n NFT) Price() (decimal.Decimal, bool) {
	if fp, ok := AsFixedPrice(n.Pricing); ok {
		return fp.Price, true
	}
	return decimal.Zero, false
}

// NeedsMetadata reports whether resolved metadata fields are still empty
func (n NFT) NeedsMetadata() bool {
	return n.TokenURI != "" && n.Name == "" && n.Image == ""
}

// ApplyMetadata copies resolved metadata fields onto the record
func (n *NFT) ApplyMetadata(m Metadata) {
	n.Name = m.Name
	n.Description = m.Description
	n.Image = m.Image
	n.Attributes = m.Attributes
}

// nftWire is the flat JSON shape exchanged with the backend
type nftWire struct {
	ID          string              `json:"_id,omitempty"`
	Owner       string              `json:"owner"`
	TokenID     flexString          `json:"tokenId"`
	TokenURI    string              `json:"tokenURI"`
	Royalty     int                 `json:"royalty"`
	Collection  string              `json:"collection"`
	PriceType   PriceType           `json:"priceType,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	StartBid    decimal.NullDecimal `json:"startBid"`
	BidEndDate  *time.Time          `json:"bidEndDate,omitempty"`
	BidHistory  []Bid               `json:"bidHistory,omitempty"`
	LastPrice   decimal.NullDecimal `json:"lastPrice"`
	Currency    string              `json:"currency,omitempty"`
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Image       string              `json:"image,omitempty"`
	Attributes  []Attribute         `json:"attributes,omitempty"`
	CreatedAt   *time.Time          `json:"createdAt,omitempty"`
}

// MarshalJSON flattens the pricing variant into the backend wire shape
func (n NFT) MarshalJSON() ([]byte, error) {
	w := nftWire{
		ID:          n.ID,
		Owner:       n.Owner,
		TokenID:     flexString(n.TokenID),
		TokenURI:    n.TokenURI,
		Royalty:     n.Royalty,
		Collection:  n.Collection,
		LastPrice:   n.LastPrice,
		Currency:    n.Currency,
		Name:        n.Name,
		Description: n.Description,
		Image:       n.Image,
		Attributes:  n.Attributes,
	}
	if !n.CreatedAt.IsZero() {
		created := n.CreatedAt
		w.CreatedAt = &created
	}

	MatchPricing(n.Pricing,
		func() struct{} {
			w.PriceType = PriceTypeNotForSale
			return struct{}{}
		},
		func(fp FixedPrice) struct{} {
			w.PriceType = PriceTypeFixed
			w.Price = decimal.NewNullDecimal(fp.Price)
			return struct{}{}
		},
		func(a Auction) struct{} {
			w.PriceType = PriceTypeAuction
			w.StartBid = decimal.NewNullDecimal(a.StartBid)
			if !a.EndsAt.IsZero() {
				ends := a.EndsAt
				w.BidEndDate = &ends
			}
			w.BidHistory = a.Bids
			return struct{}{}
		},
	)

	return json.Marshal(w)
}

// UnmarshalJSON builds the pricing variant from the priceType tag
func (n *NFT) UnmarshalJSON(data []byte) error {
	var w nftWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*n = NFT{
		ID:          w.ID,
		Owner:       w.Owner,
		TokenID:     string(w.TokenID),
		TokenURI:    w.TokenURI,
		Royalty:     w.Royalty,
		Collection:  w.Collection,
		LastPrice:   w.LastPrice,
		Currency:    w.Currency,
		Name:        w.Name,
		Description: w.Description,
		Image:       w.Image,
		Attributes:  w.Attributes,
	}
	if w.CreatedAt != nil {
		n.CreatedAt = *w.CreatedAt
	}

	switch w.PriceType {
	case PriceTypeFixed:
		n.Pricing = FixedPrice{Price: w.Price.Decimal}
	case PriceTypeAuction:
		a := Auction{StartBid: w.StartBid.Decimal, Bids: w.BidHistory}
		if w.BidEndDate != nil {
			a.EndsAt = *w.BidEndDate
		}
		n.Pricing = a
	case PriceTypeNotForSale, "":
		n.Pricing = NotForSale{}
	default:
		return fmt.Errorf("unknown price type %q", w.PriceType)
	}

	return nil
}

// flexString accepts both JSON strings and JSON numbers
type flexString string

func (f flexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*f = flexString(num.String())
	return nil
}

// UnmarshalJSON accepts non-string trait values such as numbers
func (a *Attribute) UnmarshalJSON(data []byte) error {
	var raw struct {
		Trait     string     `json:"trait"`
		TraitType string     `json:"trait_type"`
		Value     flexString `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Trait = raw.Trait
	if a.Trait == "" {
		a.Trait = raw.TraitType
	}
	a.Value = string(raw.Value)
	return nil
}
