package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/services"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/testutil"
)

type stubTrader struct {
	BuyFunc          func(ctx context.Context, req services.TokenRequest) (*services.TxResult, error)
	StartAuctionFunc func(ctx context.Context, req services.StartAuctionRequest) (*services.TxResult, error)
}

func (s *stubTrader) CreateCollection(ctx context.Context, req services.CreateCollectionRequest) (*services.TxResult, error) {
	return &services.TxResult{Action: services.ActionCreateCollection, TxHash: "0xabc"}, nil
}

func (s *stubTrader) Mint(ctx context.Context, req services.MintRequest) (*services.TxResult, error) {
	return &services.TxResult{Action: services.ActionMint, TxHash: "0xabc"}, nil
}

func (s *stubTrader) Buy(ctx context.Context, req services.TokenRequest) (*services.TxResult, error) {
	if s.BuyFunc != nil {
		return s.BuyFunc(ctx, req)
	}
	return &services.TxResult{Action: services.ActionBuy, TxHash: "0xabc", BlockNumber: 7}, nil
}

func (s *stubTrader) Bid(ctx context.Context, req services.BidRequest) (*services.TxResult, error) {
	return &services.TxResult{Action: services.ActionBid, TxHash: "0xabc"}, nil
}

func (s *stubTrader) SetPrice(ctx context.Context, req services.SetPriceRequest) (*services.TxResult, error) {
	return &services.TxResult{Action: services.ActionSetPrice, TxHash: "0xabc"}, nil
}

func (s *stubTrader) StartAuction(ctx context.Context, req services.StartAuctionRequest) (*services.TxResult, error) {
	if s.StartAuctionFunc != nil {
		return s.StartAuctionFunc(ctx, req)
	}
	return &services.TxResult{Action: services.ActionStartAuction, TxHash: "0xabc"}, nil
}

func (s *stubTrader) EndAuction(ctx context.Context, req services.TokenRequest) (*services.TxResult, error) {
	return &services.TxResult{Action: services.ActionEndAuction, TxHash: "0xabc"}, nil
}

func post(handler *ActionHandler, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var buyBody = `{"collection":"` + testutil.CollectionAddress + `","tokenId":"1"}`

func TestActionHandler_Buy(t *testing.T) {
	handler := NewActionHandler(&stubTrader{}, zap.NewNop())

	rec := post(handler, "/actions/buy", buyBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response TxResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Data == nil || response.Data.TxHash != "0xabc" || response.Data.BlockNumber != 7 {
		t.Errorf("unexpected result %+v", response.Data)
	}
}

func TestActionHandler_BadBody(t *testing.T) {
	handler := NewActionHandler(&stubTrader{}, zap.NewNop())

	for _, body := range []string{
		`not json`,
		`{"collection":"0x1","tokenId":"1","extra":true}`,
	} {
		rec := post(handler, "/actions/buy", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", body, rec.Code)
		}
	}
}

func TestActionHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		result     *services.TxResult
		err        error
		wantStatus int
	}{
		{
			name:       "validation",
			err:        entities.NewValidationError("tokenId", "token %s is not for sale", "1"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "in flight",
			err:        services.ErrActionInFlight,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "session",
			err:        &entities.SessionError{Op: "bind", Err: errors.New("not connected")},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "rejected",
			err:        &entities.TxError{Kind: entities.TxRejected},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "reverted",
			err:        &entities.TxError{Kind: entities.TxReverted, Reason: "Not for sale"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "insufficient funds",
			err:        &entities.TxError{Kind: entities.TxInsufficientFunds},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "timeout",
			result:     &services.TxResult{Action: services.ActionBuy, TxHash: "0xabc", Pending: true},
			err:        &entities.TxError{Kind: entities.TxTimeout},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "unknown tx failure",
			err:        &entities.TxError{Kind: entities.TxUnknown, Err: errors.New("nonce too low")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trader := &stubTrader{
				BuyFunc: func(ctx context.Context, req services.TokenRequest) (*services.TxResult, error) {
					return tt.result, tt.err
				},
			}
			handler := NewActionHandler(trader, zap.NewNop())

			rec := post(handler, "/actions/buy", buyBody)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestActionHandler_ValidationField(t *testing.T) {
	trader := &stubTrader{
		BuyFunc: func(ctx context.Context, req services.TokenRequest) (*services.TxResult, error) {
			return nil, entities.NewValidationError("tokenId", "token is not for sale")
		},
	}
	handler := NewActionHandler(trader, zap.NewNop())

	rec := post(handler, "/actions/buy", buyBody)

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["field"] != "tokenId" {
		t.Errorf("expected field tokenId, got %q", body["field"])
	}
	if body["error"] != "token is not for sale" {
		t.Errorf("unexpected error message %q", body["error"])
	}
}

func TestActionHandler_TimeoutKeepsPendingResult(t *testing.T) {
	trader := &stubTrader{
		BuyFunc: func(ctx context.Context, req services.TokenRequest) (*services.TxResult, error) {
			return &services.TxResult{Action: services.ActionBuy, TxHash: "0xfeed", Pending: true},
				&entities.TxError{Kind: entities.TxTimeout}
		},
	}
	handler := NewActionHandler(trader, zap.NewNop())

	rec := post(handler, "/actions/buy", buyBody)

	var response TxResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Data == nil || !response.Data.Pending || response.Data.TxHash != "0xfeed" {
		t.Errorf("expected pending result, got %+v", response.Data)
	}
	if response.Error != "transaction timeout" {
		t.Errorf("unexpected error %q", response.Error)
	}
}

func TestActionHandler_StartAuctionDuration(t *testing.T) {
	var got services.StartAuctionRequest
	trader := &stubTrader{
		StartAuctionFunc: func(ctx context.Context, req services.StartAuctionRequest) (*services.TxResult, error) {
			got = req
			return &services.TxResult{Action: services.ActionStartAuction}, nil
		},
	}
	handler := NewActionHandler(trader, zap.NewNop())

	body := `{"collection":"` + testutil.CollectionAddress + `","tokenId":"3","startBid":"0.5","durationSeconds":7200}`
	rec := post(handler, "/actions/start-auction", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if got.Duration != 2*time.Hour {
		t.Errorf("expected 2h, got %s", got.Duration)
	}
	if got.TokenID != "3" || got.StartBid != "0.5" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestActionHandler_OtherRoutes(t *testing.T) {
	handler := NewActionHandler(&stubTrader{}, zap.NewNop())

	routes := map[string]string{
		"/actions/create-collection": `{"name":"Apes","symbol":"APE","metadataURI":"ipfs://apes"}`,
		"/actions/mint":              `{"collection":"` + testutil.CollectionAddress + `","tokenURI":"ipfs://1","royalty":5}`,
		"/actions/bid":               `{"collection":"` + testutil.CollectionAddress + `","tokenId":"3","amount":"1"}`,
		"/actions/set-price":         `{"collection":"` + testutil.CollectionAddress + `","tokenId":"1","price":"2"}`,
		"/actions/end-auction":       buyBody,
	}

	for target, body := range routes {
		rec := post(handler, target, body)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", target, rec.Code)
		}
	}
}
