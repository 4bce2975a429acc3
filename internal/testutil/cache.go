package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bimakw/nft-market-sync/internal/infrastructure/cache"
)

// MockCache is an in-memory JSON cache with the RedisCache contract
type MockCache struct {
	mu     sync.RWMutex
	values map[string][]byte

	GetErr error
	SetErr error

	// Call tracking
	Calls []MockCall
}

func NewMockCache() *MockCache {
	return &MockCache{
		values: make(map[string][]byte),
		Calls:  make([]MockCall, 0),
	}
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Get", Args: []interface{}{key}})
	m.mu.Unlock()

	if m.GetErr != nil {
		return m.GetErr
	}

	m.mu.RLock()
	data, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "Set", Args: []interface{}{key}})

	if m.SetErr != nil {
		return m.SetErr
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = data
	return nil
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Set(ctx, key, value)
}

// Has reports whether key is cached
func (m *MockCache) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}
