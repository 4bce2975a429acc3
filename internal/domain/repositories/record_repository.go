package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// CreateCollectionInput is the payload recorded after a CollectionCreated event
type CreateCollectionInput struct {
	Name            string `json:"name" validate:"required"`
	Symbol          string `json:"symbol" validate:"required"`
	Owner           string `json:"owner" validate:"required,eth_addr"`
	ContractAddress string `json:"contractAddress" validate:"required,eth_addr"`
	MetadataURI     string `json:"metadataURI"`
}

// CreateNFTInput is the payload recorded after an NFTMinted event
type CreateNFTInput struct {
	Owner      string `json:"owner" validate:"required,eth_addr"`
	TokenID    string `json:"tokenId" validate:"required,numeric"`
	TokenURI   string `json:"tokenURI" validate:"required"`
	Royalty    int    `json:"royalty" validate:"gte=0,lte=50"`
	Collection string `json:"collection" validate:"required,eth_addr"`
	Currency   string `json:"currency,omitempty"`
}

// TokenRef addresses an NFT record by its on-chain identity
type TokenRef struct {
	Collection string `json:"collection" validate:"required,eth_addr"`
	TokenID    string `json:"tokenId" validate:"required,numeric"`
}

// SetFixedPriceInput is the payload recorded after an NFTPriceSet event
type SetFixedPriceInput struct {
	TokenRef
	Price decimal.Decimal `json:"price"`
}

// SetAuctionInput is the payload recorded after an AuctionStarted event
type SetAuctionInput struct {
	TokenRef
	StartBid   decimal.Decimal `json:"startBid"`
	BidEndDate time.Time       `json:"bidEndDate" validate:"required"`
}

// RecordBidInput is the payload recorded after a NewBidPlaced event
type RecordBidInput struct {
	TokenRef
	Bidder string          `json:"bidder" validate:"required,eth_addr"`
	Price  decimal.Decimal `json:"price"`
	Date   time.Time       `json:"date" validate:"required"`
	TxHash string          `json:"txHash,omitempty"`
}

// RecordAuctionEndInput is the payload recorded after an AuctionEnded event
type RecordAuctionEndInput struct {
	TokenRef
	Winner string          `json:"winner" validate:"required,eth_addr"`
	Price  decimal.Decimal `json:"price"`
}

// RecordPurchaseInput is the payload recorded after an NFTSold event
type RecordPurchaseInput struct {
	TokenRef
	Buyer  string          `json:"buyer" validate:"required,eth_addr"`
	Price  decimal.Decimal `json:"price"`
	TxHash string          `json:"txHash,omitempty"`
}

// RecordRepository is the off-chain marketplace database, reached through the backend API.
// Implementations do not retry and do not cache; every failure is returned to the caller.
type RecordRepository interface {
	// CreateCollection stores a new collection record
	CreateCollection(ctx context.Context, input CreateCollectionInput) (*entities.Collection, error)

	// ListCollectionsByOwner retrieves the collections created by an address
	ListCollectionsByOwner(ctx context.Context, owner string) ([]entities.Collection, error)

	// ListCollections retrieves every collection
	ListCollections(ctx context.Context) ([]entities.Collection, error)

	// ListCollectionNFTs retrieves the NFTs of a collection contract
	ListCollectionNFTs(ctx context.Context, collection string) ([]entities.NFT, error)

	// ListNFTsByOwner retrieves the NFTs owned by an address
	ListNFTsByOwner(ctx context.Context, owner string) ([]entities.NFT, error)

	// CreateNFT stores a freshly minted NFT
	CreateNFT(ctx context.Context, input CreateNFTInput) (*entities.NFT, error)

	// SetFixedPrice lists an NFT at a fixed price
	SetFixedPrice(ctx context.Context, input SetFixedPriceInput) (*entities.NFT, error)

	// SetAuction puts an NFT on auction
	SetAuction(ctx context.Context, input SetAuctionInput) (*entities.NFT, error)

	// RecordBid appends a bid to an NFT's bid history
	RecordBid(ctx context.Context, input RecordBidInput) (*entities.NFT, error)

	// RecordAuctionEnd settles an auction
	RecordAuctionEnd(ctx context.Context, input RecordAuctionEndInput) (*entities.NFT, error)

	// RecordPurchase transfers ownership after a fixed-price sale
	RecordPurchase(ctx context.Context, input RecordPurchaseInput) (*entities.NFT, error)
}
