package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/domain/repositories"
)

const maxResponseSize = 4 << 20

// Ensure Client implements RecordRepository
var _ repositories.RecordRepository = (*Client)(nil)

// Client talks to the marketplace backend API.
// It performs no retries and keeps no local state besides the HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewClient creates a backend API client
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		validate:   NewValidator(),
		logger:     logger,
	}
}

// NewValidator returns a validator that reports JSON field names
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationErrorFrom converts validator output into a ValidationError
func ValidationErrorFrom(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return entities.NewValidationError(fe.Field(), "is required")
	case "eth_addr":
		return entities.NewValidationError(fe.Field(), "must be a hex address")
	case "numeric":
		return entities.NewValidationError(fe.Field(), "must be a number")
	case "gte":
		return entities.NewValidationError(fe.Field(), "must be at least %s", fe.Param())
	case "lte":
		return entities.NewValidationError(fe.Field(), "must be at most %s", fe.Param())
	default:
		return entities.NewValidationError(fe.Field(), "failed %s check", fe.Tag())
	}
}

type pricedField struct {
	field string
	value decimal.Decimal
}

func (c *Client) check(input interface{}, prices ...pricedField) error {
	if err := c.validate.Struct(input); err != nil {
		return ValidationErrorFrom(err)
	}
	for _, p := range prices {
		if p.value.IsNegative() {
			return entities.NewValidationError(p.field, "must not be negative")
		}
	}
	return nil
}

// CreateCollection stores a new collection record
func (c *Client) CreateCollection(ctx context.Context, input repositories.CreateCollectionInput) (*entities.Collection, error) {
	if err := c.check(input); err != nil {
		return nil, err
	}

	var out entities.Collection
	if err := c.do(ctx, http.MethodPost, "/api/collections", nil, input, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCollectionsByOwner retrieves the collections created by an address
func (c *Client) ListCollectionsByOwner(ctx context.Context, owner string) ([]entities.Collection, error) {
	if owner == "" {
		return nil, entities.NewValidationError("owner", "is required")
	}

	out := make([]entities.Collection, 0)
	if err := c.do(ctx, http.MethodGet, "/api/collections", url.Values{"owner": {owner}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCollections retrieves every collection
func (c *Client) ListCollections(ctx context.Context) ([]entities.Collection, error) {
	out := make([]entities.Collection, 0)
	if err := c.do(ctx, http.MethodGet, "/api/collections", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCollectionNFTs retrieves the NFTs of a collection contract
func (c *Client) ListCollectionNFTs(ctx context.Context, collection string) ([]entities.NFT, error) {
	if collection == "" {
		return nil, entities.NewValidationError("collection", "is required")
	}

	out := make([]entities.NFT, 0)
	path := "/api/collections/" + url.PathEscape(collection) + "/nfts"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListNFTsByOwner retrieves the NFTs owned by an address
func (c *Client) ListNFTsByOwner(ctx context.Context, owner string) ([]entities.NFT, error) {
	if owner == "" {
		return nil, entities.NewValidationError("owner", "is required")
	}

	out := make([]entities.NFT, 0)
	if err := c.do(ctx, http.MethodGet, "/api/nfts", url.Values{"owner": {owner}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateNFT stores a freshly minted NFT
func (c *Client) CreateNFT(ctx context.Context, input repositories.CreateNFTInput) (*entities.NFT, error) {
	if err := c.check(input); err != nil {
		return nil, err
	}
	return c.writeNFT(ctx, http.MethodPost, "/api/nfts", input)
}

// SetFixedPrice lists an NFT at a fixed price
func (c *Client) SetFixedPrice(ctx context.Context, input repositories.SetFixedPriceInput) (*entities.NFT, error) {
	if err := c.check(input, pricedField{"price", input.Price}); err != nil {
		return nil, err
	}
	return c.writeNFT(ctx, http.MethodPut, tokenPath(input.TokenRef, "price"), input)
}

// SetAuction puts an NFT on auction
func (c *Client) SetAuction(ctx context.Context, input repositories.SetAuctionInput) (*entities.NFT, error) {
	if err := c.check(input, pricedField{"startBid", input.StartBid}); err != nil {
		return nil, err
	}
	return c.writeNFT(ctx, http.MethodPut, tokenPath(input.TokenRef, "auction"), input)
}

// RecordBid appends a bid to an NFT's bid history
func (c *Client) RecordBid(ctx context.Context, input repositories.RecordBidInput) (*entities.NFT, error) {
	if err := c.check(input, pricedField{"price", input.Price}); err != nil {
		return nil, err
	}
	return c.writeNFT(ctx, http.MethodPost, tokenPath(input.TokenRef, "bids"), input)
}

// RecordAuctionEnd settles an auction
func (c *Client) RecordAuctionEnd(ctx context.Context, input repositories.RecordAuctionEndInput) (*entities.NFT, error) {
	if err := c.check(input, pricedField{"price", input.Price}); err != nil {
		return nil, err
	}
	return c.writeNFT(ctx, http.MethodPost, tokenPath(input.TokenRef, "auction/end"), input)
}

// RecordPurchase transfers ownership after a fixed-price sale
func (c *Client) RecordPurchase(ctx context.Context, input repositories.RecordPurchaseInput) (*entities.NFT, error) {
	if err := c.check(input, pricedField{"price", input.Price}); err != nil {
		return nil, err
	}
	return c.writeNFT(ctx, http.MethodPost, tokenPath(input.TokenRef, "purchase"), input)
}

func (c *Client) writeNFT(ctx context.Context, method, path string, body interface{}) (*entities.NFT, error) {
	var out entities.NFT
	if err := c.do(ctx, method, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func tokenPath(ref repositories.TokenRef, action string) string {
	return "/api/nfts/" + url.PathEscape(strings.ToLower(ref.Collection)) + "/" + url.PathEscape(ref.TokenID) + "/" + action
}

// do sends one request. Every failure is returned as a *BackendError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &entities.BackendError{Status: 0, Messages: []string{err.Error()}}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &entities.BackendError{Status: resp.StatusCode, Messages: []string{err.Error()}}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		backendErr := &entities.BackendError{
			Status:   resp.StatusCode,
			Messages: parseMessages(data, resp.Status),
		}
		c.logger.Debug("Backend rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Strings("messages", backendErr.Messages),
		)
		return backendErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &entities.BackendError{
			Status:   resp.StatusCode,
			Messages: []string{fmt.Sprintf("malformed response: %v", err)},
		}
	}
	return nil
}

// parseMessages extracts the msg list of an error body. The backend sends
// either a list or a single string; anything else falls back to the status text.
func parseMessages(body []byte, status string) []string {
	var list struct {
		Msg []string `json:"msg"`
	}
	if err := json.Unmarshal(body, &list); err == nil && len(list.Msg) > 0 {
		return list.Msg
	}

	var single struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &single); err == nil {
		if single.Msg != "" {
			return []string{single.Msg}
		}
		if single.Message != "" {
			return []string{single.Message}
		}
	}

	return []string{status}
}
