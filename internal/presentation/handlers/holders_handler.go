package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/services"
)

// HoldersHandler handles HTTP requests for collection holders
type HoldersHandler struct {
	service *services.HoldersService
	logger  *zap.Logger
}

// NewHoldersHandler creates a new holders handler
func NewHoldersHandler(service *services.HoldersService, logger *zap.Logger) *HoldersHandler {
	return &HoldersHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the holders routes
func (h *HoldersHandler) RegisterRoutes(r chi.Router) {
	r.Get("/collections/{address}/holders", h.GetTopHolders)
	r.Get("/collections/{address}/holders/{holder_address}", h.GetHolderBalance)
}

// GetTopHolders handles GET /api/v1/collections/{address}/holders
func (h *HoldersHandler) GetTopHolders(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}

	limit, offset := parsePage(r)

	response, err := h.service.GetTopHolders(r.Context(), address, limit, offset)
	if err != nil {
		h.logger.Error("Failed to get top holders", zap.Error(err), zap.String("address", address))
		respondError(w, http.StatusInternalServerError, "Failed to get top holders")
		return
	}

	if response == nil {
		respondError(w, http.StatusNotFound, "collection not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetHolderBalance handles GET /api/v1/collections/{address}/holders/{holder_address}
func (h *HoldersHandler) GetHolderBalance(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "address")
	holder := chi.URLParam(r, "holder_address")

	if !isValidAddress(collection) {
		respondError(w, http.StatusBadRequest, "Invalid collection address format")
		return
	}

	if !isValidAddress(holder) {
		respondError(w, http.StatusBadRequest, "Invalid holder address format")
		return
	}

	response, err := h.service.GetHolderBalance(r.Context(), collection, strings.ToLower(holder))
	if err != nil {
		h.logger.Error("Failed to get holder balance",
			zap.Error(err),
			zap.String("collection", collection),
			zap.String("holder", holder),
		)
		respondError(w, http.StatusInternalServerError, "Failed to get holder balance")
		return
	}

	if response == nil {
		respondError(w, http.StatusNotFound, "collection not found")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
