package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// ResponseCache stores computed API responses
type ResponseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// StatsService computes marketplace statistics from the catalog
type StatsService struct {
	catalog CatalogReader
	cache   ResponseCache
	logger  *zap.Logger
	now     func() time.Time
}

// NewStatsService creates a new stats service
func NewStatsService(catalog CatalogReader, cache ResponseCache, logger *zap.Logger) *StatsService {
	return &StatsService{
		catalog: catalog,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// CollectionStats is the API representation of collection statistics
type CollectionStats struct {
	Collection     string  `json:"collection"`
	Name           string  `json:"name"`
	TotalNFTs      int     `json:"total_nfts"`
	HolderCount    int     `json:"holder_count"`
	FixedListings  int     `json:"fixed_listings"`
	ActiveAuctions int     `json:"active_auctions"`
	TotalBids      int     `json:"total_bids"`
	FloorPrice     *string `json:"floor_price"`
	HighestSale    *string `json:"highest_sale"`
	SalesVolume    string  `json:"sales_volume"`
}

// CollectionStatsResponse is the API response for collection stats queries
type CollectionStatsResponse struct {
	Data CollectionStats `json:"data"`
}

// MarketStats summarizes the whole catalog
type MarketStats struct {
	Collections    int    `json:"collections"`
	TotalNFTs      int    `json:"total_nfts"`
	HolderCount    int    `json:"holder_count"`
	FixedListings  int    `json:"fixed_listings"`
	ActiveAuctions int    `json:"active_auctions"`
	SalesVolume    string `json:"sales_volume"`
	Version        uint64 `json:"version"`
}

// MarketStatsResponse is the API response for market stats queries
type MarketStatsResponse struct {
	Data MarketStats `json:"data"`
}

// GetCollectionStats computes statistics for one collection.
// Returns nil when the collection is unknown.
func (s *StatsService) GetCollectionStats(ctx context.Context, address string) (*CollectionStatsResponse, error) {
	address = strings.ToLower(address)

	// Responses are only valid for the catalog version they were computed from
	cacheKey := fmt.Sprintf("stats:%s:%d", address, s.catalog.Version())

	var cached CollectionStatsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	col, known := findCollection(s.catalog, address)

	nfts := make([]entities.NFT, 0)
	for _, n := range s.catalog.Snapshot() {
		if strings.EqualFold(n.Collection, address) {
			nfts = append(nfts, n)
		}
	}
	if !known && len(nfts) == 0 {
		return nil, nil
	}

	agg := aggregate(nfts, s.now())
	stats := CollectionStats{
		Collection:     address,
		Name:           col.Name,
		TotalNFTs:      len(nfts),
		HolderCount:    len(agg.holders),
		FixedListings:  agg.fixed,
		ActiveAuctions: agg.auctions,
		TotalBids:      agg.bids,
		SalesVolume:    agg.volume.String(),
	}
	if agg.floor != nil {
		v := agg.floor.String()
		stats.FloorPrice = &v
	}
	if agg.highest != nil {
		v := agg.highest.String()
		stats.HighestSale = &v
	}

	response := &CollectionStatsResponse{Data: stats}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, 60*time.Second); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

// GetMarketStats computes statistics over the whole catalog
func (s *StatsService) GetMarketStats(ctx context.Context) (*MarketStatsResponse, error) {
	version := s.catalog.Version()
	cacheKey := fmt.Sprintf("stats:market:%d", version)

	var cached MarketStatsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	nfts := s.catalog.Snapshot()
	agg := aggregate(nfts, s.now())

	response := &MarketStatsResponse{
		Data: MarketStats{
			Collections:    len(s.catalog.Collections()),
			TotalNFTs:      len(nfts),
			HolderCount:    len(agg.holders),
			FixedListings:  agg.fixed,
			ActiveAuctions: agg.auctions,
			SalesVolume:    agg.volume.String(),
			Version:        version,
		},
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, 60*time.Second); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

type aggregation struct {
	holders  map[string]int
	fixed    int
	auctions int
	bids     int
	floor    *decimal.Decimal
	highest  *decimal.Decimal
	volume   decimal.Decimal
}

// aggregate folds a list of NFTs into counters. Sales volume is the sum of
// last sale prices, so every sold NFT contributes its most recent sale only.
func aggregate(nfts []entities.NFT, now time.Time) aggregation {
	agg := aggregation{holders: make(map[string]int), volume: decimal.Zero}

	for _, n := range nfts {
		if n.Owner != "" {
			agg.holders[strings.ToLower(n.Owner)]++
		}

		entities.MatchPricing(n.Pricing,
			func() struct{} { return struct{}{} },
			func(f entities.FixedPrice) struct{} {
				agg.fixed++
				if agg.floor == nil || f.Price.LessThan(*agg.floor) {
					p := f.Price
					agg.floor = &p
				}
				return struct{}{}
			},
			func(a entities.Auction) struct{} {
				if !a.Ended(now) {
					agg.auctions++
				}
				agg.bids += len(a.Bids)
				return struct{}{}
			},
		)

		if n.LastPrice.Valid {
			agg.volume = agg.volume.Add(n.LastPrice.Decimal)
			if agg.highest == nil || n.LastPrice.Decimal.GreaterThan(*agg.highest) {
				p := n.LastPrice.Decimal
				agg.highest = &p
			}
		}
	}

	return agg
}
