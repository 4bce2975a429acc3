package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/services"
)

// StatsHandler handles HTTP requests for marketplace statistics
type StatsHandler struct {
	service *services.StatsService
	logger  *zap.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(service *services.StatsService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the stats routes
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.GetMarketStats)
	r.Get("/collections/{address}/stats", h.GetCollectionStats)
}

// GetMarketStats handles GET /api/v1/stats
func (h *StatsHandler) GetMarketStats(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.GetMarketStats(r.Context())
	if err != nil {
		h.logger.Error("Failed to get market stats", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get market stats")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetCollectionStats handles GET /api/v1/collections/{address}/stats
func (h *StatsHandler) GetCollectionStats(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}

	response, err := h.service.GetCollectionStats(r.Context(), address)
	if err != nil {
		h.logger.Error("Failed to get collection stats", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get collection stats")
		return
	}

	if response == nil {
		respondError(w, http.StatusNotFound, "collection not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
