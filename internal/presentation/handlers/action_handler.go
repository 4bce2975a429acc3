package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/services"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

const maxActionBody = 64 << 10

// Trader runs marketplace transactions
type Trader interface {
	CreateCollection(ctx context.Context, req services.CreateCollectionRequest) (*services.TxResult, error)
	Mint(ctx context.Context, req services.MintRequest) (*services.TxResult, error)
	Buy(ctx context.Context, req services.TokenRequest) (*services.TxResult, error)
	Bid(ctx context.Context, req services.BidRequest) (*services.TxResult, error)
	SetPrice(ctx context.Context, req services.SetPriceRequest) (*services.TxResult, error)
	StartAuction(ctx context.Context, req services.StartAuctionRequest) (*services.TxResult, error)
	EndAuction(ctx context.Context, req services.TokenRequest) (*services.TxResult, error)
}

// ActionHandler handles HTTP requests that submit transactions
type ActionHandler struct {
	trader Trader
	logger *zap.Logger
}

// NewActionHandler creates a new action handler
func NewActionHandler(trader Trader, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{
		trader: trader,
		logger: logger,
	}
}

// TxResponse is the API response for a submitted transaction
type TxResponse struct {
	Data *services.TxResult `json:"data,omitempty"`
	// Error is set when a transaction was submitted but did not confirm
	Error string `json:"error,omitempty"`
}

type startAuctionBody struct {
	services.TokenRequest
	StartBid        string `json:"startBid"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// RegisterRoutes registers the action routes
func (h *ActionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Post("/create-collection", h.CreateCollection)
		r.Post("/mint", h.Mint)
		r.Post("/buy", h.Buy)
		r.Post("/bid", h.Bid)
		r.Post("/set-price", h.SetPrice)
		r.Post("/start-auction", h.StartAuction)
		r.Post("/end-auction", h.EndAuction)
	})
}

// CreateCollection handles POST /actions/create-collection
func (h *ActionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req services.CreateCollectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.trader.CreateCollection(r.Context(), req)
	h.respond(w, services.ActionCreateCollection, result, err)
}

// Mint handles POST /actions/mint
func (h *ActionHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req services.MintRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.trader.Mint(r.Context(), req)
	h.respond(w, services.ActionMint, result, err)
}

// Buy handles POST /actions/buy
func (h *ActionHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req services.TokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.trader.Buy(r.Context(), req)
	h.respond(w, services.ActionBuy, result, err)
}

// Bid handles POST /actions/bid
func (h *ActionHandler) Bid(w http.ResponseWriter, r *http.Request) {
	var req services.BidRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.trader.Bid(r.Context(), req)
	h.respond(w, services.ActionBid, result, err)
}

// SetPrice handles POST /actions/set-price
func (h *ActionHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req services.SetPriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.trader.SetPrice(r.Context(), req)
	h.respond(w, services.ActionSetPrice, result, err)
}

// StartAuction handles POST /actions/start-auction
func (h *ActionHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	var body startAuctionBody
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.trader.StartAuction(r.Context(), services.StartAuctionRequest{
		TokenRequest: body.TokenRequest,
		StartBid:     body.StartBid,
		Duration:     time.Duration(body.DurationSeconds) * time.Second,
	})
	h.respond(w, services.ActionStartAuction, result, err)
}

// EndAuction handles POST /actions/end-auction
func (h *ActionHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	var req services.TokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.trader.EndAuction(r.Context(), req)
	h.respond(w, services.ActionEndAuction, result, err)
}

func (h *ActionHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respond maps orchestrator outcomes to HTTP statuses
func (h *ActionHandler) respond(w http.ResponseWriter, action string, result *services.TxResult, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, TxResponse{Data: result})
		return
	}

	var validationErr *entities.ValidationError
	var sessionErr *entities.SessionError
	var txErr *entities.TxError

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
	case errors.Is(err, services.ErrActionInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &sessionErr):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &txErr):
		h.respondTxError(w, action, result, txErr)
	default:
		h.logger.Error("Action failed", zap.String("action", action), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Action failed")
	}
}

func (h *ActionHandler) respondTxError(w http.ResponseWriter, action string, result *services.TxResult, txErr *entities.TxError) {
	status := http.StatusBadGateway
	switch txErr.Kind {
	case entities.TxRejected:
		status = http.StatusConflict
	case entities.TxReverted, entities.TxInsufficientFunds:
		status = http.StatusUnprocessableEntity
	case entities.TxTimeout:
		status = http.StatusAccepted
	}

	if status == http.StatusBadGateway {
		h.logger.Warn("Transaction failed", zap.String("action", action), zap.Error(txErr))
	}

	respondJSON(w, status, TxResponse{Data: result, Error: txErr.Error()})
}
