package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// Common test addresses
const (
	FactoryAddress    = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	CollectionAddress = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	AliceAddress      = "0x1111111111111111111111111111111111111111"
	BobAddress        = "0x2222222222222222222222222222222222222222"
	CharlieAddr       = "0x3333333333333333333333333333333333333333"
)

// CreateTestNFT creates a test NFT with default values
func CreateTestNFT(opts ...NFTOption) entities.NFT {
	n := entities.NFT{
		ID:          "nft-1",
		Owner:       AliceAddress,
		TokenID:     "1",
		TokenURI:    "ipfs://token/1",
		Royalty:     5,
		Collection:  CollectionAddress,
		Pricing:     entities.NotForSale{},
		Currency:    "ETH",
		CreatedAt:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Name:        "Token #1",
		Description: "A test token",
	}

	for _, opt := range opts {
		opt(&n)
	}

	return n
}

type NFTOption func(*entities.NFT)

func WithID(id string) NFTOption {
	return func(n *entities.NFT) {
		n.ID = id
	}
}

func WithTokenID(id string) NFTOption {
	return func(n *entities.NFT) {
		n.TokenID = id
		n.TokenURI = "ipfs://token/" + id
	}
}

func WithOwner(addr string) NFTOption {
	return func(n *entities.NFT) {
		n.Owner = addr
	}
}

func WithCollection(addr string) NFTOption {
	return func(n *entities.NFT) {
		n.Collection = addr
	}
}

func WithName(name string) NFTOption {
	return func(n *entities.NFT) {
		n.Name = name
	}
}

func WithDescription(desc string) NFTOption {
	return func(n *entities.NFT) {
		n.Description = desc
	}
}

func WithCurrency(symbol string) NFTOption {
	return func(n *entities.NFT) {
		n.Currency = symbol
	}
}

func WithCreatedAt(ts time.Time) NFTOption {
	return func(n *entities.NFT) {
		n.CreatedAt = ts
	}
}

func WithLastPrice(price string) NFTOption {
	return func(n *entities.NFT) {
		n.LastPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
}

func WithFixedPrice(price string) NFTOption {
	return func(n *entities.NFT) {
		n.Pricing = entities.FixedPrice{Price: decimal.RequireFromString(price)}
	}
}

func WithAuction(startBid string, endsAt time.Time, bids ...entities.Bid) NFTOption {
	return func(n *entities.NFT) {
		n.Pricing = entities.Auction{
			StartBid: decimal.RequireFromString(startBid),
			EndsAt:   endsAt,
			Bids:     bids,
		}
	}
}

func WithoutMetadata() NFTOption {
	return func(n *entities.NFT) {
		n.Name = ""
		n.Description = ""
		n.Image = ""
		n.Attributes = nil
	}
}

// CreateTestBid creates a bid entry
func CreateTestBid(bidder, price string, date time.Time) entities.Bid {
	return entities.Bid{Bidder: bidder, Price: decimal.RequireFromString(price), Date: date}
}

// CreateTestCollection creates a test collection with default values
func CreateTestCollection(opts ...CollectionOption) entities.Collection {
	c := entities.Collection{
		ID:              "col-1",
		Name:            "Test Collection",
		Symbol:          "TEST",
		Owner:           AliceAddress,
		ContractAddress: CollectionAddress,
		MetadataURI:     "ipfs://collection",
		CreatedAt:       time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

type CollectionOption func(*entities.Collection)

func CollectionWithAddress(addr string) CollectionOption {
	return func(c *entities.Collection) {
		c.ContractAddress = addr
	}
}

func CollectionWithName(name string) CollectionOption {
	return func(c *entities.Collection) {
		c.Name = name
	}
}

func CollectionWithOwner(addr string) CollectionOption {
	return func(c *entities.Collection) {
		c.Owner = addr
	}
}

// CreateMultipleNFTs creates count NFTs with sequential token ids
func CreateMultipleNFTs(count int, opts ...NFTOption) []entities.NFT {
	nfts := make([]entities.NFT, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%d", i+1)
		allOpts := append([]NFTOption{WithID("nft-" + id), WithTokenID(id), WithName("Token #" + id)}, opts...)
		nfts[i] = CreateTestNFT(allOpts...)
	}
	return nfts
}

// PointerTo returns a pointer to the given value
func PointerTo[T any](v T) *T {
	return &v
}
