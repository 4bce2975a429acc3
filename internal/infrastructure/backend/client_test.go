package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/domain/repositories"
)

const (
	collectionAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	ownerAddr      = "0x1111111111111111111111111111111111111111"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.BackendConfig{BaseURL: srv.URL + "/", RequestTimeout: 2 * time.Second}, zap.NewNop()), srv
}

func TestClient_CreateNFT(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"_id":"abc","owner":"`+ownerAddr+`","tokenId":7,"tokenURI":"ipfs://x","royalty":5,"collection":"`+collectionAddr+`"}`)
	})

	nft, err := client.CreateNFT(context.Background(), repositories.CreateNFTInput{
		Owner:      ownerAddr,
		TokenID:    "7",
		TokenURI:   "ipfs://x",
		Royalty:    5,
		Collection: collectionAddr,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/nfts" {
		t.Errorf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotBody["tokenId"] != "7" || gotBody["royalty"] != float64(5) {
		t.Errorf("unexpected body: %v", gotBody)
	}
	if nft.TokenID != "7" || nft.ID != "abc" {
		t.Errorf("unexpected record: %+v", nft)
	}
	if nft.PriceType() != entities.PriceTypeNotForSale {
		t.Errorf("expected not_for_sale, got %s", nft.PriceType())
	}
}

func TestClient_SetFixedPriceSendsDecimal(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"_id":"abc","tokenId":"7","collection":"`+collectionAddr+`","priceType":"fixed","price":"2.5"}`)
	})

	nft, err := client.SetFixedPrice(context.Background(), repositories.SetFixedPriceInput{
		TokenRef: repositories.TokenRef{Collection: collectionAddr, TokenID: "7"},
		Price:    decimal.RequireFromString("2.5"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api/nfts/0x5fbdb2315678afecb367f032d93f642f64180aa3/7/price" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotBody["price"] != "2.5" {
		t.Errorf("expected price \"2.5\", got %v", gotBody["price"])
	}
	price, ok := nft.Price()
	if !ok || !price.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("unexpected price %v", price)
	}
}

func TestClient_BackendErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected []string
	}{
		{
			name:     "message list",
			status:   http.StatusBadRequest,
			body:     `{"msg":["Name is required","Symbol is required"]}`,
			expected: []string{"Name is required", "Symbol is required"},
		},
		{
			name:     "single message",
			status:   http.StatusNotFound,
			body:     `{"msg":"NFT not found"}`,
			expected: []string{"NFT not found"},
		},
		{
			name:     "no body",
			status:   http.StatusInternalServerError,
			body:     ``,
			expected: []string{"500 Internal Server Error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.ListCollections(context.Background())

			var backendErr *entities.BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("expected BackendError, got %v", err)
			}
			if backendErr.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, backendErr.Status)
			}
			if len(backendErr.Messages) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, backendErr.Messages)
			}
			for i := range tt.expected {
				if backendErr.Messages[i] != tt.expected[i] {
					t.Errorf("message %d: expected %q, got %q", i, tt.expected[i], backendErr.Messages[i])
				}
			}
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.ListCollections(context.Background())

	var backendErr *entities.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.Status != 0 || len(backendErr.Messages) != 1 {
		t.Errorf("unexpected error: %+v", backendErr)
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"_id":`)
	})

	_, err := client.CreateCollection(context.Background(), repositories.CreateCollectionInput{
		Name:            "Apes",
		Symbol:          "APE",
		Owner:           ownerAddr,
		ContractAddress: collectionAddr,
	})

	var backendErr *entities.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
}

func TestClient_ValidationBeforeRequest(t *testing.T) {
	var requests int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})

	ref := repositories.TokenRef{Collection: collectionAddr, TokenID: "7"}

	tests := []struct {
		name  string
		field string
		call  func() error
	}{
		{
			name:  "royalty above 50",
			field: "royalty",
			call: func() error {
				_, err := client.CreateNFT(context.Background(), repositories.CreateNFTInput{
					Owner: ownerAddr, TokenID: "1", TokenURI: "ipfs://x", Royalty: 51, Collection: collectionAddr,
				})
				return err
			},
		},
		{
			name:  "bad collection address",
			field: "collection",
			call: func() error {
				_, err := client.SetFixedPrice(context.Background(), repositories.SetFixedPriceInput{
					TokenRef: repositories.TokenRef{Collection: "not-an-address", TokenID: "7"},
					Price:    decimal.NewFromInt(1),
				})
				return err
			},
		},
		{
			name:  "non numeric token id",
			field: "tokenId",
			call: func() error {
				_, err := client.RecordAuctionEnd(context.Background(), repositories.RecordAuctionEndInput{
					TokenRef: repositories.TokenRef{Collection: collectionAddr, TokenID: "seven"},
					Winner:   ownerAddr,
					Price:    decimal.NewFromInt(1),
				})
				return err
			},
		},
		{
			name:  "negative price",
			field: "price",
			call: func() error {
				_, err := client.RecordBid(context.Background(), repositories.RecordBidInput{
					TokenRef: ref, Bidder: ownerAddr, Price: decimal.NewFromInt(-1), Date: time.Now(),
				})
				return err
			},
		},
		{
			name:  "missing end date",
			field: "bidEndDate",
			call: func() error {
				_, err := client.SetAuction(context.Background(), repositories.SetAuctionInput{
					TokenRef: ref, StartBid: decimal.NewFromInt(1),
				})
				return err
			},
		},
		{
			name:  "missing owner",
			field: "owner",
			call: func() error {
				_, err := client.ListNFTsByOwner(context.Background(), "")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()

			var vErr *entities.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, vErr.Field)
			}
		})
	}

	if requests != 0 {
		t.Errorf("expected no requests, got %d", requests)
	}
}

func TestClient_ListEndpoints(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		_, _ = io.WriteString(w, `[]`)
	})
	ctx := context.Background()

	if _, err := client.ListCollectionsByOwner(ctx, ownerAddr); err != nil {
		t.Fatal(err)
	}
	if _, err := client.ListCollectionNFTs(ctx, collectionAddr); err != nil {
		t.Fatal(err)
	}
	nfts, err := client.ListNFTsByOwner(ctx, ownerAddr)
	if err != nil {
		t.Fatal(err)
	}
	if nfts == nil || len(nfts) != 0 {
		t.Errorf("expected empty non-nil list, got %v", nfts)
	}

	expected := []string{
		"/api/collections?owner=" + ownerAddr,
		"/api/collections/" + collectionAddr + "/nfts",
		"/api/nfts?owner=" + ownerAddr,
	}
	for i, p := range expected {
		if paths[i] != p {
			t.Errorf("request %d: expected %s, got %s", i, p, paths[i])
		}
	}
}

func TestClient_RecordPurchase(t *testing.T) {
	var gotBody map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"_id":"abc","tokenId":"7","collection":"`+collectionAddr+`","owner":"`+ownerAddr+`","lastPrice":"1.5"}`)
	})

	nft, err := client.RecordPurchase(context.Background(), repositories.RecordPurchaseInput{
		TokenRef: repositories.TokenRef{Collection: collectionAddr, TokenID: "7"},
		Buyer:    ownerAddr,
		Price:    decimal.RequireFromString("1.5"),
		TxHash:   "0xabc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["buyer"] != ownerAddr || gotBody["txHash"] != "0xabc" {
		t.Errorf("unexpected body: %v", gotBody)
	}
	if !nft.LastPrice.Valid || !nft.LastPrice.Decimal.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("unexpected last price: %v", nft.LastPrice)
	}
}
