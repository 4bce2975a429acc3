package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/services"
)

// PortfolioHandler handles HTTP requests for wallet portfolio endpoints
type PortfolioHandler struct {
	service *services.PortfolioService
	logger  *zap.Logger
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(service *services.PortfolioService, logger *zap.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the portfolio routes on a chi router
func (h *PortfolioHandler) RegisterRoutes(r chi.Router) {
	r.Route("/wallets", func(r chi.Router) {
		r.Get("/{address}/portfolio", h.GetPortfolio)
		r.Get("/{address}/portfolio/collections/{collection}", h.GetCollectionHolding)
	})
}

// GetPortfolio handles GET /api/v1/wallets/{address}/portfolio
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid wallet address format")
		return
	}

	response, err := h.service.GetPortfolio(r.Context(), address)
	if err != nil {
		h.logger.Error("Failed to get portfolio",
			zap.Error(err),
			zap.String("address", address),
		)
		respondError(w, http.StatusInternalServerError, "Failed to get portfolio")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetCollectionHolding handles GET /api/v1/wallets/{address}/portfolio/collections/{collection}
func (h *PortfolioHandler) GetCollectionHolding(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	collection := chi.URLParam(r, "collection")

	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid wallet address format")
		return
	}
	if !isValidAddress(collection) {
		respondError(w, http.StatusBadRequest, "Invalid collection address format")
		return
	}

	response, err := h.service.GetPortfolioByCollection(r.Context(), address, collection)
	if err != nil {
		h.logger.Error("Failed to get collection holding",
			zap.Error(err),
			zap.String("address", address),
			zap.String("collection", collection),
		)
		respondError(w, http.StatusInternalServerError, "Failed to get collection holding")
		return
	}

	if response == nil {
		respondError(w, http.StatusNotFound, "no holdings in collection")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
