package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/listing"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// CatalogReader exposes the display lists kept by the synchronizer
type CatalogReader interface {
	Snapshot() []entities.NFT
	Collections() []entities.Collection
	Find(collection, tokenID string) (entities.NFT, bool)
	Version() uint64
}

// CatalogService answers list queries over the in-memory catalog
type CatalogService struct {
	catalog CatalogReader
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(catalog CatalogReader, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		logger:  logger,
	}
}

// NFTQuery selects a page of NFTs
type NFTQuery struct {
	Filter     listing.Filter
	Sort       listing.SortKey
	Collection string
	Owner      string
	Limit      int
	Offset     int
}

// PaginationResponse contains pagination metadata
type PaginationResponse struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NFTListResponse is the API response for NFT list queries
type NFTListResponse struct {
	Data       []entities.NFT     `json:"data"`
	Pagination PaginationResponse `json:"pagination"`
}

// NFTResponse is the API response for single NFT queries
type NFTResponse struct {
	Data entities.NFT `json:"data"`
}

// CollectionListResponse is the API response for collection list queries
type CollectionListResponse struct {
	Data []entities.Collection `json:"data"`
}

// ListNFTs filters, sorts and pages the display list
func (s *CatalogService) ListNFTs(ctx context.Context, q NFTQuery) (*NFTListResponse, error) {
	q.Limit, q.Offset = clampPage(q.Limit, q.Offset)

	nfts := s.catalog.Snapshot()
	if q.Collection != "" || q.Owner != "" {
		scoped := make([]entities.NFT, 0, len(nfts))
		for _, n := range nfts {
			if q.Collection != "" && !strings.EqualFold(n.Collection, q.Collection) {
				continue
			}
			if q.Owner != "" && !strings.EqualFold(n.Owner, q.Owner) {
				continue
			}
			scoped = append(scoped, n)
		}
		nfts = scoped
	}

	result := listing.Apply(nfts, q.Filter, q.Sort)
	page := paginate(result, q.Limit, q.Offset)

	s.logger.Debug("Listed NFTs",
		zap.Int("matched", len(result)),
		zap.Int("returned", len(page)),
		zap.Uint64("version", s.catalog.Version()),
	)

	return &NFTListResponse{
		Data: page,
		Pagination: PaginationResponse{
			Total:   len(result),
			Limit:   q.Limit,
			Offset:  q.Offset,
			HasMore: q.Offset+len(page) < len(result),
		},
	}, nil
}

// GetNFT returns a single NFT, or nil when it is not in the catalog
func (s *CatalogService) GetNFT(ctx context.Context, collection, tokenID string) (*NFTResponse, error) {
	n, ok := s.catalog.Find(collection, tokenID)
	if !ok {
		return nil, nil
	}
	return &NFTResponse{Data: n}, nil
}

// ListCollections returns every known collection, optionally restricted to an owner
func (s *CatalogService) ListCollections(ctx context.Context, owner string) (*CollectionListResponse, error) {
	cols := s.catalog.Collections()
	if owner == "" {
		return &CollectionListResponse{Data: cols}, nil
	}

	out := make([]entities.Collection, 0, len(cols))
	for _, c := range cols {
		if strings.EqualFold(c.Owner, owner) {
			out = append(out, c)
		}
	}
	return &CollectionListResponse{Data: out}, nil
}

// findCollection looks up a collection by contract address
func findCollection(catalog CatalogReader, address string) (entities.Collection, bool) {
	for _, c := range catalog.Collections() {
		if strings.EqualFold(c.ContractAddress, address) {
			return c, true
		}
	}
	return entities.Collection{}, false
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
