package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/listing"
	"github.com/bimakw/nft-market-sync/internal/application/services"
	"github.com/bimakw/nft-market-sync/internal/domain/currency"
)

// CatalogHandler handles HTTP requests for the NFT and collection lists
type CatalogHandler struct {
	service *services.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(service *services.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the catalog routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/nfts", h.ListNFTs)
	r.Get("/nfts/{collection}/{tokenId}", h.GetNFT)
	r.Get("/collections", h.ListCollections)
}

// ListNFTs handles GET /nfts
func (h *CatalogHandler) ListNFTs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	saleType, err := listing.ParseSaleType(q.Get("saleType"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sortKey, err := listing.ParseSortKey(q.Get("sort"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := services.NFTQuery{
		Filter: listing.Filter{SaleType: saleType, Search: q.Get("search")},
		Sort:   sortKey,
	}

	for param, dst := range map[string]**decimal.Decimal{
		"priceFrom": &query.Filter.PriceFrom,
		"priceTo":   &query.Filter.PriceTo,
	} {
		v := strings.TrimSpace(q.Get(param))
		if v == "" {
			continue
		}
		d, err := currency.ParseAmount(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid "+param)
			return
		}
		*dst = &d
	}

	if v := q.Get("collection"); v != "" {
		if !isValidAddress(v) {
			respondError(w, http.StatusBadRequest, "Invalid collection address format")
			return
		}
		query.Collection = v
	}
	if v := q.Get("owner"); v != "" {
		if !isValidAddress(v) {
			respondError(w, http.StatusBadRequest, "Invalid owner address format")
			return
		}
		query.Owner = v
	}

	query.Limit, query.Offset = parsePage(r)

	response, err := h.service.ListNFTs(ctx, query)
	if err != nil {
		h.logger.Error("Failed to list NFTs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list NFTs")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetNFT handles GET /nfts/{collection}/{tokenId}
func (h *CatalogHandler) GetNFT(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	tokenID := chi.URLParam(r, "tokenId")

	if !isValidAddress(collection) {
		respondError(w, http.StatusBadRequest, "Invalid collection address format")
		return
	}

	response, err := h.service.GetNFT(r.Context(), collection, tokenID)
	if err != nil {
		h.logger.Error("Failed to get NFT", zap.Error(err), zap.String("collection", collection))
		respondError(w, http.StatusInternalServerError, "Failed to get NFT")
		return
	}
	if response == nil {
		respondError(w, http.StatusNotFound, "NFT not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// ListCollections handles GET /collections
func (h *CatalogHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner != "" && !isValidAddress(owner) {
		respondError(w, http.StatusBadRequest, "Invalid owner address format")
		return
	}

	response, err := h.service.ListCollections(r.Context(), owner)
	if err != nil {
		h.logger.Error("Failed to list collections", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list collections")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
