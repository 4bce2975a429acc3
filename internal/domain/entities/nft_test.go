package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNFT_UnmarshalJSON_Auction(t *testing.T) {
	payload := `{
		"_id": "65f0c1",
		"owner": "0xaaaa",
		"tokenId": 7,
		"tokenURI": "ipfs://x",
		"royalty": 5,
		"collection": "0xC0FFEE",
		"priceType": "auction",
		"startBid": "0.5",
		"bidEndDate": "2024-03-01T10:00:00Z",
		"bidHistory": [
			{"bidder": "0xb1", "price": 1, "date": "2024-02-28T10:00:00Z"},
			{"bidder": "0xb2", "price": "3", "date": "2024-02-28T11:00:00Z"}
		],
		"attributes": [{"trait": "eyes", "value": "green"}, {"trait_type": "level", "value": 4}]
	}`

	var n NFT
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n.TokenID != "7" {
		t.Errorf("expected tokenId 7, got %q", n.TokenID)
	}
	if n.PriceType() != PriceTypeAuction {
		t.Fatalf("expected auction, got %s", n.PriceType())
	}

	a := n.Pricing.(Auction)
	if !a.StartBid.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("unexpected start bid %s", a.StartBid)
	}
	if !a.EndsAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end date %v", a.EndsAt)
	}
	top, _ := a.TopBid()
	if top.Bidder != "0xb2" {
		t.Errorf("expected top bidder 0xb2, got %s", top.Bidder)
	}

	if len(n.Attributes) != 2 || n.Attributes[1].Trait != "level" || n.Attributes[1].Value != "4" {
		t.Errorf("unexpected attributes %+v", n.Attributes)
	}
	if _, ok := n.Price(); ok {
		t.Error("auction NFT should have no fixed price")
	}
}

func TestNFT_UnmarshalJSON_MissingPriceType(t *testing.T) {
	var n NFT
	if err := json.Unmarshal([]byte(`{"tokenId": "9", "collection": "0x1"}`), &n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.PriceType() != PriceTypeNotForSale {
		t.Errorf("expected not_for_sale, got %s", n.PriceType())
	}
}

func TestNFT_UnmarshalJSON_UnknownPriceType(t *testing.T) {
	var n NFT
	if err := json.Unmarshal([]byte(`{"tokenId": "9", "priceType": "raffle"}`), &n); err == nil {
		t.Error("expected error for unknown price type")
	}
}

func TestNFT_MarshalJSON_Fixed(t *testing.T) {
	n := NFT{
		TokenID:    "3",
		Collection: "0x1",
		Pricing:    FixedPrice{Price: decimal.RequireFromString("2.5")},
	}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw["priceType"] != "fixed" {
		t.Errorf("expected priceType fixed, got %v", raw["priceType"])
	}
	if raw["price"] != "2.5" {
		t.Errorf("expected price \"2.5\", got %v", raw["price"])
	}
	if raw["startBid"] != nil {
		t.Errorf("expected no startBid, got %v", raw["startBid"])
	}
}

func TestNFT_SameToken(t *testing.T) {
	a := NFT{ID: "1", Collection: "0xABC", TokenID: "7"}
	b := NFT{ID: "2", Collection: "0xabc", TokenID: "7"}
	c := NFT{ID: "1"}

	if !a.SameToken(b) {
		t.Error("expected same token by collection and tokenId")
	}
	if !a.SameToken(c) {
		t.Error("expected same token by storage id fallback")
	}
	if a.SameToken(NFT{Collection: "0xabc", TokenID: "8"}) {
		t.Error("different tokenId should not match")
	}
}
