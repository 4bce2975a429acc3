package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// FakeBackend is an in-memory chain node. It satisfies the contract backend
// interfaces used by the session manager and the log fetcher.
type FakeBackend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Head         uint64
	Logs         []types.Log
	Sent         []*types.Transaction
	Receipts     map[common.Hash]*types.Receipt

	// When true, every sent transaction gets a successful receipt
	AutoMine bool

	// Function hooks for custom behavior
	EstimateGasFunc     func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransactionFunc func(ctx context.Context, tx *types.Transaction) error
	FilterLogsFunc      func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeErr        error

	// Call tracking
	Calls []MockCall

	subs   []*fakeSubscription
	nonce  uint64
	closed bool
}

func NewFakeBackend(chainID int64) *FakeBackend {
	return &FakeBackend{
		ChainIDValue: big.NewInt(chainID),
		Head:         100,
		Receipts:     make(map[common.Hash]*types.Receipt),
		AutoMine:     true,
		Calls:        make([]MockCall, 0),
	}
}

func (f *FakeBackend) record(method string, args ...interface{}) {
	f.mu.Lock()
	f.Calls = append(f.Calls, MockCall{Method: method, Args: args})
	f.mu.Unlock()
}

// CallCount returns how many times method was called
func (f *FakeBackend) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	f.record("ChainID")
	return new(big.Int).Set(f.ChainIDValue), nil
}

func (f *FakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.record("BlockNumber")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Head, nil
}

func (f *FakeBackend) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Closed reports whether Close was called
func (f *FakeBackend) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *FakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.record("CallContract", call)
	return nil, nil
}

func (f *FakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.Head
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{
		Number: new(big.Int).SetUint64(n),
		Time:   uint64(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()) + n*12,
	}, nil
}

func (f *FakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *FakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *FakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *FakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *FakeBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.record("EstimateGas", msg)
	if f.EstimateGasFunc != nil {
		return f.EstimateGasFunc(ctx, msg)
	}
	return 100_000, nil
}

func (f *FakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.record("SendTransaction", tx)
	if f.SendTransactionFunc != nil {
		if err := f.SendTransactionFunc(ctx, tx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.Sent = append(f.Sent, tx)
	f.nonce++
	if f.AutoMine {
		f.Head++
		f.Receipts[tx.Hash()] = &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      tx.Hash(),
			GasUsed:     tx.Gas(),
			BlockNumber: new(big.Int).SetUint64(f.Head),
		}
	}
	return nil
}

func (f *FakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.Receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

// SentTransactions returns a copy of the submitted transactions
func (f *FakeBackend) SentTransactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Transaction, len(f.Sent))
	copy(out, f.Sent)
	return out
}

func (f *FakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.record("FilterLogs", q)
	if f.FilterLogsFunc != nil {
		return f.FilterLogsFunc(ctx, q)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]types.Log, 0)
	for _, l := range f.Logs {
		if !matchesQuery(q, l) {
			continue
		}
		result = append(result, l)
	}
	return result, nil
}

func matchesQuery(q ethereum.FilterQuery, l types.Log) bool {
	if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
		if len(l.Topics) == 0 {
			return false
		}
		found := false
		for _, t := range q.Topics[0] {
			if t == l.Topics[0] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (f *FakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.record("SubscribeFilterLogs", q)
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}

	sub := &fakeSubscription{
		backend: f,
		query:   q,
		ch:      ch,
		errCh:   make(chan error, 1),
		quit:    make(chan struct{}),
	}

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	return sub, nil
}

// Mine moves the head to head and adds logs to the chain history
func (f *FakeBackend) Mine(head uint64, logs ...types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Head = head
	f.Logs = append(f.Logs, logs...)
}

// ActiveSubscriptions returns the number of live log subscriptions
func (f *FakeBackend) ActiveSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Emit delivers a log to every subscription whose query matches it
func (f *FakeBackend) Emit(l types.Log) {
	f.mu.Lock()
	subs := make([]*fakeSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		if !matchesQuery(s.query, l) {
			continue
		}
		select {
		case s.ch <- l:
		case <-s.quit:
		}
	}
}

// FailSubscriptions terminates every live subscription with err
func (f *FakeBackend) FailSubscriptions(err error) {
	f.mu.Lock()
	subs := make([]*fakeSubscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		select {
		case s.errCh <- err:
		default:
		}
	}
}

func (f *FakeBackend) removeSubscription(sub *fakeSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

type fakeSubscription struct {
	backend *FakeBackend
	query   ethereum.FilterQuery
	ch      chan<- types.Log
	errCh   chan error
	quit    chan struct{}
	once    sync.Once
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.backend.removeSubscription(s)
	})
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errCh
}

// ErrFakeDial is returned by test dialers that simulate an unreachable node
var ErrFakeDial = errors.New("dial tcp: connection refused")
