package services

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// HoldersService ranks the owners of a collection by the number of NFTs held
type HoldersService struct {
	catalog CatalogReader
	logger  *zap.Logger
}

// NewHoldersService creates a new holders service
func NewHoldersService(catalog CatalogReader, logger *zap.Logger) *HoldersService {
	return &HoldersService{
		catalog: catalog,
		logger:  logger,
	}
}

// HolderDTO is the API representation of a holder
type HolderDTO struct {
	Address  string   `json:"address"`
	Tokens   int      `json:"tokens"`
	TokenIDs []string `json:"token_ids"`
	Rank     int      `json:"rank"`
}

// TopHoldersResponse is the API response for top holders queries
type TopHoldersResponse struct {
	Data       []HolderDTO        `json:"data"`
	Pagination PaginationResponse `json:"pagination"`
}

// HolderBalanceResponse is the API response for holder balance queries
type HolderBalanceResponse struct {
	Data HolderDTO `json:"data"`
}

// GetTopHolders returns the holders of a collection sorted by token count.
// Returns nil when the collection is unknown.
func (s *HoldersService) GetTopHolders(ctx context.Context, collection string, limit, offset int) (*TopHoldersResponse, error) {
	limit, offset = clampPage(limit, offset)

	holders, ok := s.rank(collection)
	if !ok {
		return nil, nil
	}

	page := paginate(holders, limit, offset)
	return &TopHoldersResponse{
		Data: page,
		Pagination: PaginationResponse{
			Total:   len(holders),
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(page) < len(holders),
		},
	}, nil
}

// GetHolderBalance returns the holdings of one address in a collection.
// An address without tokens gets a zero balance and rank 0.
func (s *HoldersService) GetHolderBalance(ctx context.Context, collection, holder string) (*HolderBalanceResponse, error) {
	holders, ok := s.rank(collection)
	if !ok {
		return nil, nil
	}

	holder = strings.ToLower(holder)
	for _, h := range holders {
		if h.Address == holder {
			return &HolderBalanceResponse{Data: h}, nil
		}
	}
	return &HolderBalanceResponse{Data: HolderDTO{Address: holder, TokenIDs: []string{}}}, nil
}

// rank builds the holder table of a collection. Ties are broken by address.
func (s *HoldersService) rank(collection string) ([]HolderDTO, bool) {
	_, known := findCollection(s.catalog, collection)

	byOwner := make(map[string]*HolderDTO)
	seen := false
	for _, n := range s.catalog.Snapshot() {
		if !strings.EqualFold(n.Collection, collection) {
			continue
		}
		seen = true
		if n.Owner == "" {
			continue
		}
		owner := strings.ToLower(n.Owner)
		h, ok := byOwner[owner]
		if !ok {
			h = &HolderDTO{Address: owner}
			byOwner[owner] = h
		}
		h.Tokens++
		h.TokenIDs = append(h.TokenIDs, n.TokenID)
	}
	if !known && !seen {
		return nil, false
	}

	holders := make([]HolderDTO, 0, len(byOwner))
	for _, h := range byOwner {
		holders = append(holders, *h)
	}
	sort.Slice(holders, func(i, j int) bool {
		if holders[i].Tokens != holders[j].Tokens {
			return holders[i].Tokens > holders[j].Tokens
		}
		return holders[i].Address < holders[j].Address
	})
	for i := range holders {
		holders[i].Rank = i + 1
	}

	s.logger.Debug("Ranked holders",
		zap.String("collection", collection),
		zap.Int("holders", len(holders)),
	)
	return holders, true
}
