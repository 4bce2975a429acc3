package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// PortfolioService provides wallet views over the catalog
type PortfolioService struct {
	catalog CatalogReader
	logger  *zap.Logger
	now     func() time.Time
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(catalog CatalogReader, logger *zap.Logger) *PortfolioService {
	return &PortfolioService{
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// HoldingDTO is the API representation of the NFTs a wallet holds in one collection
type HoldingDTO struct {
	Collection     string   `json:"collection"`
	CollectionName string   `json:"collection_name"`
	TokenIDs       []string `json:"token_ids"`
	Listed         int      `json:"listed"`
	OnAuction      int      `json:"on_auction"`
}

// PortfolioSummary contains summary information for a portfolio
type PortfolioSummary struct {
	TotalNFTs        int    `json:"total_nfts"`
	TotalCollections int    `json:"total_collections"`
	Listed           int    `json:"listed"`
	OnAuction        int    `json:"on_auction"`
	LeadingBids      int    `json:"leading_bids"`
	LeadingBidValue  string `json:"leading_bid_value"`
}

// PortfolioDTO is the API representation of a wallet portfolio
type PortfolioDTO struct {
	WalletAddress string           `json:"wallet_address"`
	Holdings      []HoldingDTO     `json:"holdings"`
	Summary       PortfolioSummary `json:"summary"`
	UpdatedAt     string           `json:"updated_at"`
}

// PortfolioResponse wraps portfolio data for API response
type PortfolioResponse struct {
	Data PortfolioDTO `json:"data"`
}

// HoldingResponse wraps a single collection holding for API response
type HoldingResponse struct {
	Data HoldingDTO `json:"data"`
}

// GetPortfolio retrieves the NFTs held by a wallet, grouped by collection,
// plus the running auctions where the wallet holds the top bid.
func (s *PortfolioService) GetPortfolio(ctx context.Context, wallet string) (*PortfolioResponse, error) {
	wallet = strings.ToLower(wallet)
	now := s.now()

	names := make(map[string]string)
	for _, c := range s.catalog.Collections() {
		names[strings.ToLower(c.ContractAddress)] = c.Name
	}

	byCollection := make(map[string]*HoldingDTO)
	summary := PortfolioSummary{}
	leadingValue := decimal.Zero

	for _, n := range s.catalog.Snapshot() {
		if auction, ok := entities.AsAuction(n.Pricing); ok && !auction.Ended(now) {
			if top, ok := auction.TopBid(); ok && strings.EqualFold(top.Bidder, wallet) {
				summary.LeadingBids++
				leadingValue = leadingValue.Add(top.Price)
			}
		}

		if !strings.EqualFold(n.Owner, wallet) {
			continue
		}

		col := strings.ToLower(n.Collection)
		h, ok := byCollection[col]
		if !ok {
			h = &HoldingDTO{Collection: col, CollectionName: names[col], TokenIDs: make([]string, 0)}
			byCollection[col] = h
		}
		h.TokenIDs = append(h.TokenIDs, n.TokenID)

		switch n.PriceType() {
		case entities.PriceTypeFixed:
			h.Listed++
			summary.Listed++
		case entities.PriceTypeAuction:
			h.OnAuction++
			summary.OnAuction++
		}
		summary.TotalNFTs++
	}

	holdings := make([]HoldingDTO, 0, len(byCollection))
	for _, h := range byCollection {
		holdings = append(holdings, *h)
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Collection < holdings[j].Collection
	})

	summary.TotalCollections = len(holdings)
	summary.LeadingBidValue = leadingValue.String()

	return &PortfolioResponse{
		Data: PortfolioDTO{
			WalletAddress: wallet,
			Holdings:      holdings,
			Summary:       summary,
			UpdatedAt:     now.UTC().Format(time.RFC3339),
		},
	}, nil
}

// GetPortfolioByCollection retrieves the holding of a wallet in one collection.
// Returns nil when the wallet holds nothing there.
func (s *PortfolioService) GetPortfolioByCollection(ctx context.Context, wallet, collection string) (*HoldingResponse, error) {
	portfolio, err := s.GetPortfolio(ctx, wallet)
	if err != nil {
		return nil, err
	}

	for _, h := range portfolio.Data.Holdings {
		if strings.EqualFold(h.Collection, collection) {
			return &HoldingResponse{Data: h}, nil
		}
	}
	return nil, nil
}
