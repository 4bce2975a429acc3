package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/domain/repositories"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/notify"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockRecordRepository is an in-memory RecordRepository. Writes behave like the
// marketplace backend: they update the stored record and return it.
type MockRecordRepository struct {
	mu          sync.RWMutex
	nfts        []entities.NFT
	collections []entities.Collection
	nextID      int

	// Function hooks for custom behavior
	CreateCollectionFunc func(ctx context.Context, input repositories.CreateCollectionInput) (*entities.Collection, error)
	CreateNFTFunc        func(ctx context.Context, input repositories.CreateNFTInput) (*entities.NFT, error)
	SetFixedPriceFunc    func(ctx context.Context, input repositories.SetFixedPriceInput) (*entities.NFT, error)
	RecordBidFunc        func(ctx context.Context, input repositories.RecordBidInput) (*entities.NFT, error)
	ListCollectionsFunc  func(ctx context.Context) ([]entities.Collection, error)

	// Call tracking
	Calls []MockCall
}

func NewMockRecordRepository() *MockRecordRepository {
	return &MockRecordRepository{
		nfts:        make([]entities.NFT, 0),
		collections: make([]entities.Collection, 0),
		Calls:       make([]MockCall, 0),
	}
}

func (m *MockRecordRepository) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

// CallCount returns how many times method was called
func (m *MockRecordRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockRecordRepository) CreateCollection(ctx context.Context, input repositories.CreateCollectionInput) (*entities.Collection, error) {
	m.record("CreateCollection", input)
	if m.CreateCollectionFunc != nil {
		return m.CreateCollectionFunc(ctx, input)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.collections {
		if strings.EqualFold(c.ContractAddress, input.ContractAddress) {
			return nil, &entities.BackendError{Status: http.StatusConflict, Messages: []string{"Collection already exists"}}
		}
	}

	m.nextID++
	c := entities.Collection{
		ID:              fmt.Sprintf("col-%d", m.nextID),
		Name:            input.Name,
		Symbol:          input.Symbol,
		Owner:           input.Owner,
		ContractAddress: input.ContractAddress,
		MetadataURI:     input.MetadataURI,
	}
	m.collections = append(m.collections, c)
	return &c, nil
}

func (m *MockRecordRepository) ListCollectionsByOwner(ctx context.Context, owner string) ([]entities.Collection, error) {
	m.record("ListCollectionsByOwner", owner)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.Collection, 0)
	for _, c := range m.collections {
		if strings.EqualFold(c.Owner, owner) {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MockRecordRepository) ListCollections(ctx context.Context) ([]entities.Collection, error) {
	m.record("ListCollections")
	if m.ListCollectionsFunc != nil {
		return m.ListCollectionsFunc(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.Collection, len(m.collections))
	copy(result, m.collections)
	return result, nil
}

func (m *MockRecordRepository) ListCollectionNFTs(ctx context.Context, collection string) ([]entities.NFT, error) {
	m.record("ListCollectionNFTs", collection)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.NFT, 0)
	for _, n := range m.nfts {
		if strings.EqualFold(n.Collection, collection) {
			result = append(result, n)
		}
	}
	return result, nil
}

func (m *MockRecordRepository) ListNFTsByOwner(ctx context.Context, owner string) ([]entities.NFT, error) {
	m.record("ListNFTsByOwner", owner)

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]entities.NFT, 0)
	for _, n := range m.nfts {
		if strings.EqualFold(n.Owner, owner) {
			result = append(result, n)
		}
	}
	return result, nil
}

func (m *MockRecordRepository) CreateNFT(ctx context.Context, input repositories.CreateNFTInput) (*entities.NFT, error) {
	m.record("CreateNFT", input)
	if m.CreateNFTFunc != nil {
		return m.CreateNFTFunc(ctx, input)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if i := m.indexLocked(input.Collection, input.TokenID); i >= 0 {
		n := m.nfts[i]
		return &n, nil
	}

	m.nextID++
	n := entities.NFT{
		ID:         fmt.Sprintf("nft-%d", m.nextID),
		Owner:      input.Owner,
		TokenID:    input.TokenID,
		TokenURI:   input.TokenURI,
		Royalty:    input.Royalty,
		Collection: input.Collection,
		Pricing:    entities.NotForSale{},
		Currency:   input.Currency,
	}
	m.nfts = append(m.nfts, n)
	return &n, nil
}

func (m *MockRecordRepository) SetFixedPrice(ctx context.Context, input repositories.SetFixedPriceInput) (*entities.NFT, error) {
	m.record("SetFixedPrice", input)
	if m.SetFixedPriceFunc != nil {
		return m.SetFixedPriceFunc(ctx, input)
	}

	return m.update(input.TokenRef, func(n *entities.NFT) error {
		n.Pricing = entities.FixedPrice{Price: input.Price}
		return nil
	})
}

func (m *MockRecordRepository) SetAuction(ctx context.Context, input repositories.SetAuctionInput) (*entities.NFT, error) {
	m.record("SetAuction", input)

	return m.update(input.TokenRef, func(n *entities.NFT) error {
		n.Pricing = entities.Auction{StartBid: input.StartBid, EndsAt: input.BidEndDate}
		return nil
	})
}

func (m *MockRecordRepository) RecordBid(ctx context.Context, input repositories.RecordBidInput) (*entities.NFT, error) {
	m.record("RecordBid", input)
	if m.RecordBidFunc != nil {
		return m.RecordBidFunc(ctx, input)
	}

	return m.update(input.TokenRef, func(n *entities.NFT) error {
		a, ok := entities.AsAuction(n.Pricing)
		if !ok {
			return &entities.BackendError{Status: http.StatusBadRequest, Messages: []string{"NFT is not on auction"}}
		}
		bids := make([]entities.Bid, len(a.Bids), len(a.Bids)+1)
		copy(bids, a.Bids)
		a.Bids = append(bids, entities.Bid{Bidder: input.Bidder, Price: input.Price, Date: input.Date})
		n.Pricing = a
		return nil
	})
}

func (m *MockRecordRepository) RecordAuctionEnd(ctx context.Context, input repositories.RecordAuctionEndInput) (*entities.NFT, error) {
	m.record("RecordAuctionEnd", input)

	return m.update(input.TokenRef, func(n *entities.NFT) error {
		n.Owner = input.Winner
		n.Pricing = entities.NotForSale{}
		n.LastPrice = decimal.NewNullDecimal(input.Price)
		return nil
	})
}

func (m *MockRecordRepository) RecordPurchase(ctx context.Context, input repositories.RecordPurchaseInput) (*entities.NFT, error) {
	m.record("RecordPurchase", input)

	return m.update(input.TokenRef, func(n *entities.NFT) error {
		n.Owner = input.Buyer
		n.Pricing = entities.NotForSale{}
		n.LastPrice = decimal.NewNullDecimal(input.Price)
		return nil
	})
}

func (m *MockRecordRepository) update(ref repositories.TokenRef, fn func(n *entities.NFT) error) (*entities.NFT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(ref.Collection, ref.TokenID)
	if i < 0 {
		return nil, &entities.BackendError{Status: http.StatusNotFound, Messages: []string{"NFT not found"}}
	}

	n := m.nfts[i]
	if err := fn(&n); err != nil {
		return nil, err
	}
	m.nfts[i] = n
	return &n, nil
}

func (m *MockRecordRepository) indexLocked(collection, tokenID string) int {
	for i, n := range m.nfts {
		if strings.EqualFold(n.Collection, collection) && n.TokenID == tokenID {
			return i
		}
	}
	return -1
}

// AddNFTs seeds stored NFT records
func (m *MockRecordRepository) AddNFTs(nfts ...entities.NFT) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nfts = append(m.nfts, nfts...)
}

// AddCollections seeds stored collection records
func (m *MockRecordRepository) AddCollections(cols ...entities.Collection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = append(m.collections, cols...)
}

// NFT returns the stored record for (collection, tokenID)
func (m *MockRecordRepository) NFT(collection, tokenID string) (entities.NFT, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexLocked(collection, tokenID); i >= 0 {
		return m.nfts[i], true
	}
	return entities.NFT{}, false
}

// Reset clears all data and calls
func (m *MockRecordRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nfts = make([]entities.NFT, 0)
	m.collections = make([]entities.Collection, 0)
	m.Calls = make([]MockCall, 0)
}

// MockCheckpointRepository is a mock implementation of CheckpointRepository
type MockCheckpointRepository struct {
	mu          sync.RWMutex
	checkpoints map[string]*entities.SyncCheckpoint

	GetFunc func(ctx context.Context, contractAddress string) (*entities.SyncCheckpoint, error)

	Calls []MockCall
}

func NewMockCheckpointRepository() *MockCheckpointRepository {
	return &MockCheckpointRepository{
		checkpoints: make(map[string]*entities.SyncCheckpoint),
		Calls:       make([]MockCall, 0),
	}
}

// CallCount returns how many times method was called
func (m *MockCheckpointRepository) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *MockCheckpointRepository) Get(ctx context.Context, contractAddress string) (*entities.SyncCheckpoint, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Get", Args: []interface{}{contractAddress}})
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, contractAddress)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if cp, ok := m.checkpoints[strings.ToLower(contractAddress)]; ok {
		c := *cp
		return &c, nil
	}
	return nil, nil
}

func (m *MockCheckpointRepository) Upsert(ctx context.Context, cp *entities.SyncCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "Upsert", Args: []interface{}{cp}})

	c := *cp
	c.ContractAddress = strings.ToLower(c.ContractAddress)
	m.checkpoints[c.ContractAddress] = &c
	return nil
}

func (m *MockCheckpointRepository) Advance(ctx context.Context, contractAddress string, blockNumber int64, events int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "Advance", Args: []interface{}{contractAddress, blockNumber, events}})

	key := strings.ToLower(contractAddress)
	cp, ok := m.checkpoints[key]
	if !ok {
		cp = &entities.SyncCheckpoint{ContractAddress: key}
		m.checkpoints[key] = cp
	}
	if blockNumber > cp.LastSyncedBlock {
		cp.LastSyncedBlock = blockNumber
	}
	cp.EventsProcessed += events
	return nil
}

// AddCheckpoint seeds a checkpoint
func (m *MockCheckpointRepository) AddCheckpoint(cp *entities.SyncCheckpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cp
	c.ContractAddress = strings.ToLower(c.ContractAddress)
	m.checkpoints[c.ContractAddress] = &c
}

// MockHealthChecker is a mock health checker
type MockHealthChecker struct {
	mu      sync.RWMutex
	healthy bool
	err     error
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	m := &MockHealthChecker{healthy: healthy}
	if !healthy {
		m.err = errors.New("service unhealthy")
	}
	return m
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.healthy {
		return nil
	}
	return m.err
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	if !healthy {
		m.err = errors.New("service unhealthy")
	} else {
		m.err = nil
	}
}

// SentNotification is a notification captured by MockSink
type SentNotification struct {
	Message  string
	Severity notify.Severity
}

// MockSink records notifications
type MockSink struct {
	mu   sync.Mutex
	sent []SentNotification
}

func NewMockSink() *MockSink {
	return &MockSink{sent: make([]SentNotification, 0)}
}

func (m *MockSink) Notify(ctx context.Context, message string, severity notify.Severity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentNotification{Message: message, Severity: severity})
}

// Sent returns a copy of the recorded notifications
func (m *MockSink) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.sent))
	copy(out, m.sent)
	return out
}
