package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/currency"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/backend"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/notify"
)

// ErrActionInFlight is returned when the same action is already being processed
var ErrActionInFlight = errors.New("action already in progress")

// Trade actions
const (
	ActionCreateCollection = "create_collection"
	ActionMint             = "mint"
	ActionBuy              = "buy"
	ActionBid              = "bid"
	ActionSetPrice         = "set_price"
	ActionStartAuction     = "start_auction"
	ActionEndAuction       = "end_auction"
)

// TradeSession is the part of the session manager used to send transactions
type TradeSession interface {
	Bind(ctx context.Context, target ethereum.Target) (*ethereum.Handle, error)
	Account() (common.Address, bool)
	ChainID() *big.Int
}

// NFTLookup finds the current state of an NFT
type NFTLookup interface {
	Find(collection, tokenID string) (entities.NFT, bool)
}

// CreateCollectionRequest deploys a new collection through the factory
type CreateCollectionRequest struct {
	Name        string `json:"name" validate:"required"`
	Symbol      string `json:"symbol" validate:"required"`
	MetadataURI string `json:"metadataURI" validate:"required"`
}

// MintRequest mints a token into a collection
type MintRequest struct {
	Collection string `json:"collection" validate:"required,eth_addr"`
	TokenURI   string `json:"tokenURI" validate:"required"`
	Royalty    int    `json:"royalty" validate:"gte=0,lte=50"`
}

// TokenRequest targets a single NFT
type TokenRequest struct {
	Collection string `json:"collection" validate:"required,eth_addr"`
	TokenID    string `json:"tokenId" validate:"required,numeric"`
}

// BidRequest places a bid on an auctioned NFT
type BidRequest struct {
	TokenRequest
	Amount string `json:"amount" validate:"required"`
}

// SetPriceRequest lists an NFT at a fixed price
type SetPriceRequest struct {
	TokenRequest
	Price string `json:"price" validate:"required"`
}

// StartAuctionRequest puts an NFT on auction
type StartAuctionRequest struct {
	TokenRequest
	StartBid string        `json:"startBid" validate:"required"`
	Duration time.Duration `json:"duration"`
}

// TxResult describes a submitted transaction
type TxResult struct {
	Action      string `json:"action"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
	Pending     bool   `json:"pending"`
}

// TradeService runs user-initiated marketplace transactions: estimate,
// submit, wait for one confirmation, classify failures and notify.
// It never writes to the backend; the synchronizer records the resulting events.
type TradeService struct {
	session  TradeSession
	nfts     NFTLookup
	sink     notify.Sink
	factory  common.Address
	config   config.TxConfig
	validate *validator.Validate
	logger   *zap.Logger
	metrics  *TradeMetrics
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewTradeService creates a new transaction orchestrator
func NewTradeService(
	session TradeSession,
	nfts NFTLookup,
	sink notify.Sink,
	factory common.Address,
	cfg config.TxConfig,
	metrics *TradeMetrics,
	logger *zap.Logger,
) *TradeService {
	if metrics == nil {
		metrics = NewTradeMetrics(nil)
	}
	return &TradeService{
		session:  session,
		nfts:     nfts,
		sink:     sink,
		factory:  factory,
		config:   cfg,
		validate: backend.NewValidator(),
		logger:   logger.Named("trade"),
		metrics:  metrics,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// CreateCollection deploys a collection through the factory contract
func (s *TradeService) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*TxResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	target := ethereum.Target{Name: "factory", Address: s.factory, ABI: &ethereum.FactoryABI}
	return s.execute(ctx, txCall{
		action:  ActionCreateCollection,
		key:     ActionCreateCollection + ":" + strings.ToLower(req.Symbol),
		target:  target,
		method:  ethereum.MethodCreateCollection,
		args:    []interface{}{req.Name, req.Symbol, req.MetadataURI},
		success: fmt.Sprintf("Collection %s created", req.Name),
	})
}

// Mint mints a new token into a collection
func (s *TradeService) Mint(ctx context.Context, req MintRequest) (*TxResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.requireWallet(); err != nil {
		return nil, err
	}

	return s.execute(ctx, txCall{
		action:  ActionMint,
		key:     ActionMint + ":" + strings.ToLower(req.Collection) + ":" + req.TokenURI,
		target:  collectionTarget(req.Collection),
		method:  ethereum.MethodMint,
		args:    []interface{}{req.TokenURI, big.NewInt(int64(req.Royalty))},
		success: "NFT minted",
	})
}

// Buy purchases a fixed-price NFT
func (s *TradeService) Buy(ctx context.Context, req TokenRequest) (*TxResult, error) {
	nft, tokenID, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	fixed, ok := entities.AsFixedPrice(nft.Pricing)
	if !ok {
		return nil, entities.NewValidationError("priceType", "NFT is not listed at a fixed price")
	}
	value, err := currency.FromDecimal(fixed.Price)
	if err != nil || value.IsZero() {
		return nil, entities.NewValidationError("price", "listing price is invalid")
	}

	return s.execute(ctx, txCall{
		action:  ActionBuy,
		key:     tokenKey(ActionBuy, req),
		target:  collectionTarget(req.Collection),
		method:  ethereum.MethodBuy,
		value:   value.BigInt(),
		args:    []interface{}{tokenID},
		success: "Purchase confirmed",
	})
}

// Bid places a bid on an auctioned NFT
func (s *TradeService) Bid(ctx context.Context, req BidRequest) (*TxResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	nft, tokenID, err := s.prepare(req.TokenRequest)
	if err != nil {
		return nil, err
	}

	auction, ok := entities.AsAuction(nft.Pricing)
	if !ok {
		return nil, entities.NewValidationError("priceType", "NFT is not on auction")
	}
	if auction.Ended(s.now()) {
		return nil, entities.NewValidationError("bidEndDate", "auction has ended")
	}

	amount, err := positiveAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	bid := currency.ToDecimal(amount)
	minimum, hasBids := auction.MinimumBid()
	if hasBids && !bid.GreaterThan(minimum) {
		return nil, entities.NewValidationError("amount", "bid must be higher than %s", minimum.String())
	}
	if !hasBids && bid.LessThan(minimum) {
		return nil, entities.NewValidationError("amount", "bid must be at least %s", minimum.String())
	}

	return s.execute(ctx, txCall{
		action:  ActionBid,
		key:     tokenKey(ActionBid, req.TokenRequest),
		target:  collectionTarget(req.Collection),
		method:  ethereum.MethodBid,
		value:   amount.BigInt(),
		args:    []interface{}{tokenID},
		success: "Bid placed",
	})
}

// SetPrice lists an NFT at a fixed price. NFTs on auction cannot be repriced.
func (s *TradeService) SetPrice(ctx context.Context, req SetPriceRequest) (*TxResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	nft, tokenID, err := s.prepare(req.TokenRequest)
	if err != nil {
		return nil, err
	}
	if nft.PriceType() == entities.PriceTypeAuction {
		return nil, entities.NewValidationError("priceType", "NFT is on auction")
	}

	price, err := positiveAmount("price", req.Price)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, txCall{
		action:  ActionSetPrice,
		key:     tokenKey(ActionSetPrice, req.TokenRequest),
		target:  collectionTarget(req.Collection),
		method:  ethereum.MethodSetPrice,
		args:    []interface{}{tokenID, price.BigInt()},
		success: "Price updated",
	})
}

// StartAuction puts an NFT on auction for the given duration
func (s *TradeService) StartAuction(ctx context.Context, req StartAuctionRequest) (*TxResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.Duration <= 0 || req.Duration < s.config.MinAuctionDuration {
		return nil, entities.NewValidationError("duration", "must be at least %s", s.config.MinAuctionDuration)
	}
	if s.config.MaxAuctionDuration > 0 && req.Duration > s.config.MaxAuctionDuration {
		return nil, entities.NewValidationError("duration", "must be at most %s", s.config.MaxAuctionDuration)
	}

	nft, tokenID, err := s.prepare(req.TokenRequest)
	if err != nil {
		return nil, err
	}
	if nft.PriceType() == entities.PriceTypeAuction {
		return nil, entities.NewValidationError("priceType", "NFT is already on auction")
	}

	startBid, err := positiveAmount("startBid", req.StartBid)
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, txCall{
		action:  ActionStartAuction,
		key:     tokenKey(ActionStartAuction, req.TokenRequest),
		target:  collectionTarget(req.Collection),
		method:  ethereum.MethodStartAuction,
		args:    []interface{}{tokenID, startBid.BigInt(), big.NewInt(int64(req.Duration / time.Second))},
		success: "Auction started",
	})
}

// EndAuction settles an auction
func (s *TradeService) EndAuction(ctx context.Context, req TokenRequest) (*TxResult, error) {
	nft, tokenID, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	if nft.PriceType() != entities.PriceTypeAuction {
		return nil, entities.NewValidationError("priceType", "NFT is not on auction")
	}

	return s.execute(ctx, txCall{
		action:  ActionEndAuction,
		key:     tokenKey(ActionEndAuction, req),
		target:  collectionTarget(req.Collection),
		method:  ethereum.MethodEndAuction,
		args:    []interface{}{tokenID},
		success: "Auction ended",
	})
}

// InFlight reports whether the action identified by key is being processed
func (s *TradeService) InFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[key]
	return ok
}

func (s *TradeService) check(req interface{}) error {
	if err := s.validate.Struct(req); err != nil {
		return backend.ValidationErrorFrom(err)
	}
	return nil
}

func (s *TradeService) requireWallet() error {
	if _, ok := s.session.Account(); !ok {
		return &entities.SessionError{Op: "trade", Err: entities.ErrSessionUnavailable}
	}
	return nil
}

// prepare validates a token request and resolves the NFT it targets
func (s *TradeService) prepare(req TokenRequest) (entities.NFT, *big.Int, error) {
	if err := s.check(req); err != nil {
		return entities.NFT{}, nil, err
	}

	tokenID, ok := new(big.Int).SetString(req.TokenID, 10)
	if !ok || tokenID.Sign() < 0 {
		return entities.NFT{}, nil, entities.NewValidationError("tokenId", "must be a number")
	}

	nft, ok := s.nfts.Find(req.Collection, req.TokenID)
	if !ok {
		return entities.NFT{}, nil, entities.NewValidationError("tokenId", "unknown NFT %s/%s", req.Collection, req.TokenID)
	}

	if err := s.requireWallet(); err != nil {
		return entities.NFT{}, nil, err
	}

	if nft.Currency != "" {
		chainID := s.session.ChainID()
		if chainID == nil {
			return entities.NFT{}, nil, &entities.SessionError{Op: "trade", Err: entities.ErrSessionUnavailable}
		}
		symbol, known := currency.NativeSymbol(chainID.Int64())
		if !known || symbol != nft.Currency {
			return entities.NFT{}, nil, entities.NewValidationError("currency",
				"NFT is priced in %s but the wallet is on chain %s", nft.Currency, chainID)
		}
	}

	return nft, tokenID, nil
}

func positiveAmount(field, amount string) (currency.Wei, error) {
	wei, err := currency.ToBaseUnits(amount)
	if err != nil {
		return currency.Wei{}, entities.NewValidationError(field, "must be a valid amount")
	}
	if wei.IsZero() {
		return currency.Wei{}, entities.NewValidationError(field, "must be greater than zero")
	}
	return wei, nil
}

func collectionTarget(address string) ethereum.Target {
	return ethereum.Target{
		Name:    "collection:" + strings.ToLower(address),
		Address: common.HexToAddress(address),
		ABI:     &ethereum.CollectionABI,
	}
}

func tokenKey(action string, req TokenRequest) string {
	return action + ":" + strings.ToLower(req.Collection) + ":" + req.TokenID
}

type txCall struct {
	action  string
	key     string
	target  ethereum.Target
	method  string
	value   *big.Int
	args    []interface{}
	success string
}

func (s *TradeService) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[key]; ok {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *TradeService) release(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}

// execute estimates, submits and confirms a contract call
func (s *TradeService) execute(ctx context.Context, call txCall) (*TxResult, error) {
	if !s.acquire(call.key) {
		return nil, ErrActionInFlight
	}
	defer s.release(call.key)

	start := time.Now()
	defer func() {
		s.metrics.Duration.WithLabelValues(call.action).Observe(time.Since(start).Seconds())
	}()

	h, err := s.session.Bind(ctx, call.target)
	if err != nil {
		s.metrics.Outcomes.WithLabelValues(call.action, "session_error").Inc()
		return nil, err
	}

	gas, err := h.EstimateGas(ctx, call.method, call.value, call.args...)
	if err != nil {
		return nil, s.fail(ctx, call, "estimate", err)
	}
	gas = s.gasLimit(gas)

	tx, err := h.Transact(ctx, call.method, call.value, gas, call.args...)
	if err != nil {
		return nil, s.fail(ctx, call, "submit", err)
	}
	s.metrics.Submitted.WithLabelValues(call.action).Inc()

	s.logger.Info("Transaction submitted",
		zap.String("action", call.action),
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("gas_limit", gas),
	)

	result := &TxResult{Action: call.action, TxHash: tx.Hash().Hex(), Pending: true}

	// The caller may go away while the tx is pending; it can still confirm
	notifyCtx := context.WithoutCancel(ctx)

	receipt, err := s.waitMined(ctx, h, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			txErr := &entities.TxError{Kind: entities.TxTimeout, Err: err}
			s.metrics.Outcomes.WithLabelValues(call.action, string(txErr.Kind)).Inc()
			s.logger.Warn("Stopped waiting for transaction confirmation",
				zap.String("action", call.action),
				zap.String("tx", result.TxHash),
				zap.Error(err),
			)
			s.sink.Notify(notifyCtx, txMessage(txErr), notify.SeverityWarning)
			return result, txErr
		}
		return result, s.fail(notifyCtx, call, "confirm", err)
	}

	result.Pending = false
	result.BlockNumber = receipt.BlockNumber.Uint64()
	result.GasUsed = receipt.GasUsed

	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, s.fail(notifyCtx, call, "confirm", &entities.TxError{Kind: entities.TxReverted})
	}

	s.metrics.Outcomes.WithLabelValues(call.action, "success").Inc()
	s.logger.Info("Transaction confirmed",
		zap.String("action", call.action),
		zap.String("tx", result.TxHash),
		zap.Uint64("block", result.BlockNumber),
		zap.Uint64("gas_used", result.GasUsed),
	)
	s.sink.Notify(notifyCtx, call.success, notify.SeveritySuccess)
	return result, nil
}

func (s *TradeService) waitMined(ctx context.Context, h *ethereum.Handle, tx *types.Transaction) (*types.Receipt, error) {
	if s.config.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConfirmTimeout)
		defer cancel()
	}
	return h.WaitMined(ctx, tx)
}

func (s *TradeService) gasLimit(estimate uint64) uint64 {
	m := s.config.GasLimitMultiplier
	if m <= 1 {
		return estimate
	}
	scaled := float64(estimate) * m
	if scaled >= math.MaxUint64 {
		return estimate
	}
	return uint64(math.Ceil(scaled))
}

// fail classifies err, notifies the user unless they declined, and returns the TxError
func (s *TradeService) fail(ctx context.Context, call txCall, stage string, err error) error {
	var sessErr *entities.SessionError
	if errors.As(err, &sessErr) {
		s.metrics.Outcomes.WithLabelValues(call.action, "session_error").Inc()
		return err
	}

	txErr := ClassifyTxError(err)
	s.metrics.Outcomes.WithLabelValues(call.action, string(txErr.Kind)).Inc()

	if txErr.Kind == entities.TxRejected {
		s.logger.Info("Transaction declined by user",
			zap.String("action", call.action),
			zap.String("stage", stage),
		)
		return txErr
	}

	s.logger.Warn("Transaction failed",
		zap.String("action", call.action),
		zap.String("stage", stage),
		zap.String("kind", string(txErr.Kind)),
		zap.Error(err),
	)
	s.sink.Notify(ctx, txMessage(txErr), notify.SeverityError)
	return txErr
}
