package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/application/catalog"
	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/notify"
	"github.com/bimakw/nft-market-sync/internal/testutil"
)

type tradeFixture struct {
	rpc     *testutil.FakeBackend
	ws      *testutil.FakeBackend
	session *ethereum.SessionManager
	store   *catalog.Store
	sink    *testutil.MockSink
	svc     *TradeService
}

func newTradeFixture(t *testing.T, cfg config.TxConfig, nfts ...entities.NFT) *tradeFixture {
	t.Helper()

	f := &tradeFixture{
		rpc:   testutil.NewFakeBackend(testChainID),
		ws:    testutil.NewFakeBackend(testChainID),
		store: catalog.NewStore(),
		sink:  testutil.NewMockSink(),
	}
	f.store.ReplaceNFTs(nfts)

	dial := func(ctx context.Context, rawURL string) (ethereum.Backend, error) {
		if rawURL == "ws://test" {
			return f.ws, nil
		}
		return f.rpc, nil
	}
	f.session = ethereum.NewSessionManager(testEthConfig(), dial, zap.NewNop())
	f.svc = NewTradeService(f.session, f.store, f.sink, testFactory, cfg, NewTradeMetrics(nil), zap.NewNop())
	return f
}

func (f *tradeFixture) connect(t *testing.T) {
	t.Helper()
	w, err := ethereum.NewKeyedWallet(bobKey, testChainID)
	require.NoError(t, err)
	state, _ := w.Current()
	require.NoError(t, f.session.Connect(context.Background(), state))
}

func defaultTxConfig() config.TxConfig {
	return config.TxConfig{
		ConfirmTimeout:     time.Second,
		MinAuctionDuration: time.Minute,
		MaxAuctionDuration: 24 * time.Hour,
		GasLimitMultiplier: 1.0,
	}
}

func tokenRequest(id string) TokenRequest {
	return TokenRequest{Collection: testutil.CollectionAddress, TokenID: id}
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestTradeService_Buy(t *testing.T) {
	t.Run("submits the listing price", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7"), testutil.WithFixedPrice("2")))
		f.connect(t)

		result, err := f.svc.Buy(context.Background(), tokenRequest("7"))
		require.NoError(t, err)

		assert.False(t, result.Pending)
		assert.Equal(t, ActionBuy, result.Action)
		assert.NotZero(t, result.BlockNumber)

		sent := f.rpc.SentTransactions()
		require.Len(t, sent, 1)
		assert.Equal(t, 0, sent[0].Value().Cmp(eth(2)))
		assert.Equal(t, testCollection, *sent[0].To())
		assert.Equal(t, result.TxHash, sent[0].Hash().Hex())

		notes := f.sink.Sent()
		require.Len(t, notes, 1)
		assert.Equal(t, notify.SeveritySuccess, notes[0].Severity)
	})

	t.Run("pointer listing is still a fixed price", func(t *testing.T) {
		listed := testutil.CreateTestNFT(testutil.WithTokenID("7"))
		listed.Pricing = &entities.FixedPrice{Price: decimal.NewFromInt(2)}
		f := newTradeFixture(t, defaultTxConfig(), listed)
		f.connect(t)

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))
		require.NoError(t, err)

		sent := f.rpc.SentTransactions()
		require.Len(t, sent, 1)
		assert.Equal(t, 0, sent[0].Value().Cmp(eth(2)))
	})

	t.Run("not for sale never reaches the node", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7")))
		f.connect(t)

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "priceType", verr.Field)
		assert.Equal(t, 0, f.rpc.CallCount("EstimateGas"))
		assert.Empty(t, f.sink.Sent())
	})

	t.Run("unknown NFT", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig())
		f.connect(t)

		_, err := f.svc.Buy(context.Background(), tokenRequest("99"))

		var verr *entities.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("invalid address", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig())
		f.connect(t)

		_, err := f.svc.Buy(context.Background(), TokenRequest{Collection: "not-an-address", TokenID: "1"})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "collection", verr.Field)
	})

	t.Run("no wallet", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7"), testutil.WithFixedPrice("2")))

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var sessErr *entities.SessionError
		require.ErrorAs(t, err, &sessErr)
		assert.ErrorIs(t, err, entities.ErrSessionUnavailable)
		assert.Empty(t, f.sink.Sent())
	})

	t.Run("currency from another chain", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"), testutil.WithFixedPrice("2"), testutil.WithCurrency("MATIC")))
		f.connect(t)

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "currency", verr.Field)
		assert.Equal(t, 0, f.rpc.CallCount("EstimateGas"))
	})
}

func TestTradeService_Failures(t *testing.T) {
	listed := testutil.CreateTestNFT(testutil.WithTokenID("7"), testutil.WithFixedPrice("2"))

	t.Run("user rejection is silent", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), listed)
		f.connect(t)
		f.rpc.EstimateGasFunc = func(ctx context.Context, msg geth.CallMsg) (uint64, error) {
			return 0, errors.New("ACTION_REJECTED")
		}

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		require.Error(t, err)
		assert.True(t, entities.IsRejected(err))
		assert.Empty(t, f.sink.Sent())
		assert.Empty(t, f.rpc.SentTransactions())
	})

	t.Run("revert reason is surfaced", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), listed)
		f.connect(t)
		f.rpc.EstimateGasFunc = func(ctx context.Context, msg geth.CallMsg) (uint64, error) {
			return 0, errors.New("execution reverted: Not for sale")
		}

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var txErr *entities.TxError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, entities.TxReverted, txErr.Kind)
		assert.Equal(t, "Not for sale", txErr.Reason)

		notes := f.sink.Sent()
		require.Len(t, notes, 1)
		assert.Equal(t, notify.SeverityError, notes[0].Severity)
		assert.Contains(t, notes[0].Message, "Not for sale")
		assert.Empty(t, f.rpc.SentTransactions())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), listed)
		f.connect(t)
		f.rpc.EstimateGasFunc = func(ctx context.Context, msg geth.CallMsg) (uint64, error) {
			return 0, errors.New("insufficient funds for gas * price + value")
		}

		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var txErr *entities.TxError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, entities.TxInsufficientFunds, txErr.Kind)
		require.Len(t, f.sink.Sent(), 1)
	})

	t.Run("failed receipt", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), listed)
		f.connect(t)
		f.rpc.AutoMine = false
		f.rpc.SendTransactionFunc = func(ctx context.Context, tx *types.Transaction) error {
			f.rpc.Receipts[tx.Hash()] = &types.Receipt{
				Status:      types.ReceiptStatusFailed,
				TxHash:      tx.Hash(),
				BlockNumber: big.NewInt(101),
			}
			return nil
		}

		result, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var txErr *entities.TxError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, entities.TxReverted, txErr.Kind)
		require.NotNil(t, result)
		assert.Equal(t, uint64(101), result.BlockNumber)
		require.Len(t, f.sink.Sent(), 1)
		assert.Equal(t, notify.SeverityError, f.sink.Sent()[0].Severity)
	})

	t.Run("confirmation timeout leaves the tx pending", func(t *testing.T) {
		cfg := defaultTxConfig()
		cfg.ConfirmTimeout = 50 * time.Millisecond
		f := newTradeFixture(t, cfg, listed)
		f.connect(t)
		f.rpc.AutoMine = false

		result, err := f.svc.Buy(context.Background(), tokenRequest("7"))

		var txErr *entities.TxError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, entities.TxTimeout, txErr.Kind)
		require.NotNil(t, result)
		assert.True(t, result.Pending)
		assert.NotEmpty(t, result.TxHash)

		notes := f.sink.Sent()
		require.Len(t, notes, 1)
		assert.Equal(t, notify.SeverityWarning, notes[0].Severity)
	})

	t.Run("caller going away leaves the tx pending", func(t *testing.T) {
		cfg := defaultTxConfig()
		cfg.ConfirmTimeout = 10 * time.Second
		f := newTradeFixture(t, cfg, listed)
		f.connect(t)
		f.rpc.AutoMine = false

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		f.rpc.SendTransactionFunc = func(context.Context, *types.Transaction) error {
			time.AfterFunc(50*time.Millisecond, cancel)
			return nil
		}

		result, err := f.svc.Buy(ctx, tokenRequest("7"))

		var txErr *entities.TxError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, entities.TxTimeout, txErr.Kind)
		require.NotNil(t, result)
		assert.True(t, result.Pending)
		assert.NotEmpty(t, result.TxHash)

		notes := f.sink.Sent()
		require.Len(t, notes, 1)
		assert.Equal(t, notify.SeverityWarning, notes[0].Severity)
	})
}

func TestTradeService_InFlightGuard(t *testing.T) {
	f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7"), testutil.WithFixedPrice("2")))
	f.connect(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.rpc.EstimateGasFunc = func(ctx context.Context, msg geth.CallMsg) (uint64, error) {
		close(entered)
		<-release
		return 100_000, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Buy(context.Background(), tokenRequest("7"))
		done <- err
	}()

	<-entered
	assert.True(t, f.svc.InFlight(tokenKey(ActionBuy, tokenRequest("7"))))

	_, err := f.svc.Buy(context.Background(), tokenRequest("7"))
	assert.ErrorIs(t, err, ErrActionInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.svc.InFlight(tokenKey(ActionBuy, tokenRequest("7"))))
	assert.Len(t, f.rpc.SentTransactions(), 1)
}

func TestTradeService_Bid(t *testing.T) {
	future := time.Now().Add(time.Hour)

	t.Run("must beat the top bid", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"),
			testutil.WithAuction("1", future, testutil.CreateTestBid(testutil.AliceAddress, "2", time.Now())),
		))
		f.connect(t)

		_, err := f.svc.Bid(context.Background(), BidRequest{TokenRequest: tokenRequest("7"), Amount: "2"})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
		assert.Equal(t, 0, f.rpc.CallCount("EstimateGas"))
	})

	t.Run("start bid may be met", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"), testutil.WithAuction("1", future)))
		f.connect(t)

		_, err := f.svc.Bid(context.Background(), BidRequest{TokenRequest: tokenRequest("7"), Amount: "1"})
		require.NoError(t, err)

		sent := f.rpc.SentTransactions()
		require.Len(t, sent, 1)
		assert.Equal(t, 0, sent[0].Value().Cmp(eth(1)))
	})

	t.Run("ended auction", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"), testutil.WithAuction("1", time.Now().Add(-time.Minute))))
		f.connect(t)

		_, err := f.svc.Bid(context.Background(), BidRequest{TokenRequest: tokenRequest("7"), Amount: "5"})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "bidEndDate", verr.Field)
	})

	t.Run("not on auction", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"), testutil.WithFixedPrice("1")))
		f.connect(t)

		_, err := f.svc.Bid(context.Background(), BidRequest{TokenRequest: tokenRequest("7"), Amount: "5"})

		var verr *entities.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("zero amount", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"), testutil.WithAuction("0", future)))
		f.connect(t)

		_, err := f.svc.Bid(context.Background(), BidRequest{TokenRequest: tokenRequest("7"), Amount: "0"})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
	})
}

func TestTradeService_SetPrice(t *testing.T) {
	t.Run("lists the NFT", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7")))
		f.connect(t)

		_, err := f.svc.SetPrice(context.Background(), SetPriceRequest{TokenRequest: tokenRequest("7"), Price: "0.5"})
		require.NoError(t, err)

		sent := f.rpc.SentTransactions()
		require.Len(t, sent, 1)
		assert.Equal(t, 0, sent[0].Value().Sign())

		args, err := ethereum.CollectionABI.Methods[ethereum.MethodSetPrice].Inputs.Unpack(sent[0].Data()[4:])
		require.NoError(t, err)
		assert.Equal(t, "7", args[0].(*big.Int).String())
		assert.Equal(t, "500000000000000000", args[1].(*big.Int).String())
	})

	t.Run("refused while on auction", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(
			testutil.WithTokenID("7"), testutil.WithAuction("1", time.Now().Add(time.Hour))))
		f.connect(t)

		_, err := f.svc.SetPrice(context.Background(), SetPriceRequest{TokenRequest: tokenRequest("7"), Price: "3"})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "priceType", verr.Field)
	})

	t.Run("negative price", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7")))
		f.connect(t)

		_, err := f.svc.SetPrice(context.Background(), SetPriceRequest{TokenRequest: tokenRequest("7"), Price: "-1"})

		var verr *entities.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("huge exponent is rejected", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7")))
		f.connect(t)

		_, err := f.svc.SetPrice(context.Background(), SetPriceRequest{TokenRequest: tokenRequest("7"), Price: "1e100000000"})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "price", verr.Field)
		assert.Equal(t, 0, f.rpc.CallCount("EstimateGas"))
	})
}

func TestTradeService_StartAuction(t *testing.T) {
	t.Run("duration bounds", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7")))
		f.connect(t)

		for _, d := range []time.Duration{0, time.Second, 48 * time.Hour} {
			_, err := f.svc.StartAuction(context.Background(), StartAuctionRequest{
				TokenRequest: tokenRequest("7"), StartBid: "1", Duration: d,
			})

			var verr *entities.ValidationError
			require.ErrorAs(t, err, &verr, "duration %s", d)
			assert.Equal(t, "duration", verr.Field)
		}
		assert.Equal(t, 0, f.rpc.CallCount("EstimateGas"))
	})

	t.Run("duration is sent in seconds", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7"), testutil.WithFixedPrice("1")))
		f.connect(t)

		_, err := f.svc.StartAuction(context.Background(), StartAuctionRequest{
			TokenRequest: tokenRequest("7"), StartBid: "1", Duration: time.Hour,
		})
		require.NoError(t, err)

		sent := f.rpc.SentTransactions()
		require.Len(t, sent, 1)
		args, err := ethereum.CollectionABI.Methods[ethereum.MethodStartAuction].Inputs.Unpack(sent[0].Data()[4:])
		require.NoError(t, err)
		assert.Equal(t, 0, args[1].(*big.Int).Cmp(eth(1)))
		assert.Equal(t, int64(3600), args[2].(*big.Int).Int64())
	})
}

func TestTradeService_EndAuction(t *testing.T) {
	f := newTradeFixture(t, defaultTxConfig(), testutil.CreateTestNFT(testutil.WithTokenID("7")))
	f.connect(t)

	_, err := f.svc.EndAuction(context.Background(), tokenRequest("7"))

	var verr *entities.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priceType", verr.Field)
}

func TestTradeService_Mint(t *testing.T) {
	t.Run("royalty cap", func(t *testing.T) {
		f := newTradeFixture(t, defaultTxConfig())
		f.connect(t)

		_, err := f.svc.Mint(context.Background(), MintRequest{
			Collection: testutil.CollectionAddress, TokenURI: "ipfs://x", Royalty: 60,
		})

		var verr *entities.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "royalty", verr.Field)
	})

	t.Run("gas limit multiplier", func(t *testing.T) {
		cfg := defaultTxConfig()
		cfg.GasLimitMultiplier = 1.5
		f := newTradeFixture(t, cfg)
		f.connect(t)

		_, err := f.svc.Mint(context.Background(), MintRequest{
			Collection: testutil.CollectionAddress, TokenURI: "ipfs://x", Royalty: 10,
		})
		require.NoError(t, err)

		sent := f.rpc.SentTransactions()
		require.Len(t, sent, 1)
		assert.Equal(t, uint64(150_000), sent[0].Gas())
	})
}

func TestTradeService_CreateCollection(t *testing.T) {
	f := newTradeFixture(t, defaultTxConfig())
	f.connect(t)

	_, err := f.svc.CreateCollection(context.Background(), CreateCollectionRequest{
		Name: "Apes", Symbol: "APE", MetadataURI: "ipfs://apes",
	})
	require.NoError(t, err)

	sent := f.rpc.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, testFactory, *sent[0].To())

	notes := f.sink.Sent()
	require.Len(t, notes, 1)
	assert.True(t, strings.Contains(notes[0].Message, "Apes"))
}
