package handlers

import (
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bimakw/nft-market-sync/internal/application/catalog"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/testutil"
)

const otherCollection = "0x9999999999999999999999999999999999999999"

func testStore() *catalog.Store {
	future := time.Now().Add(time.Hour)
	store := catalog.NewStore()
	store.ReplaceNFTs([]entities.NFT{
		testutil.CreateTestNFT(testutil.WithTokenID("1"), testutil.WithName("Blue Ape"), testutil.WithFixedPrice("3"),
			testutil.WithCreatedAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
		testutil.CreateTestNFT(testutil.WithTokenID("2"), testutil.WithName("Red Ape"), testutil.WithFixedPrice("1.5"),
			testutil.WithCreatedAt(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))),
		testutil.CreateTestNFT(testutil.WithTokenID("3"), testutil.WithName("Gold Ape"), testutil.WithOwner(testutil.BobAddress),
			testutil.WithAuction("1", future), testutil.WithCreatedAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))),
	})
	store.ReplaceCollections([]entities.Collection{
		testutil.CreateTestCollection(testutil.CollectionWithName("Apes")),
	})
	return store
}

func serve(register func(r chi.Router), method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

