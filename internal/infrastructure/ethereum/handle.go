package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

type listener struct {
	name    string
	eventID common.Hash
	fn      LogHandler
}

// Handle is a contract bound to one session generation: a signer-bound
// write side and a log subscription owned by the session manager.
type Handle struct {
	Name    string
	Address common.Address

	abi        *abi.ABI
	generation uint64
	account    common.Address
	signer     bind.SignerFn
	backend    Backend
	contract   *bind.BoundContract
	manager    *SessionManager
	logger     *zap.Logger

	sub  ethereum.Subscription
	logs chan types.Log
	done chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	mu        sync.RWMutex
	listeners map[string]listener
}

// Generation returns the session generation the handle was built in
func (h *Handle) Generation() uint64 {
	return h.generation
}

// Account returns the address transactions are sent from
func (h *Handle) Account() common.Address {
	return h.account
}

// ABI returns the contract ABI
func (h *Handle) ABI() *abi.ABI {
	return h.abi
}

// Done is closed when the handle is torn down or its subscription fails
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the handle still belongs to the current session
func (h *Handle) Alive() bool {
	return !h.closed.Load() && h.manager.Generation() == h.generation
}

// Listen registers fn under name for event. A name registered earlier, on
// this or any other handle, is detached first. The returned cancel func is
// idempotent.
func (h *Handle) Listen(name, event string, fn LogHandler) (func(), error) {
	return h.manager.listen(h, name, event, fn)
}

// EstimateGas estimates the gas needed for method sent from the session account
func (h *Handle) EstimateGas(ctx context.Context, method string, value *big.Int, args ...interface{}) (uint64, error) {
	if err := h.usable("estimate"); err != nil {
		return 0, err
	}

	input, err := h.abi.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	to := h.Address
	return h.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  h.account,
		To:    &to,
		Value: value,
		Data:  input,
	})
}

// Transact signs and submits method with a fixed gas limit
func (h *Handle) Transact(ctx context.Context, method string, value *big.Int, gasLimit uint64, args ...interface{}) (*types.Transaction, error) {
	if err := h.usable("transact"); err != nil {
		return nil, err
	}

	opts := &bind.TransactOpts{
		From:     h.account,
		Signer:   h.signer,
		Value:    value,
		GasLimit: gasLimit,
		Context:  ctx,
	}
	return h.contract.Transact(opts, method, args...)
}

// WaitMined blocks until tx is included or ctx is done
func (h *Handle) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, h.backend, tx)
}

func (h *Handle) usable(op string) error {
	if !h.Alive() {
		return &entities.SessionError{Op: op, Err: entities.ErrSessionUnavailable}
	}
	return nil
}

func (h *Handle) addListener(token string, l listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listeners != nil {
		h.listeners[token] = l
	}
}

func (h *Handle) removeListener(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, token)
}

func (h *Handle) hasListener(token string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.listeners[token]
	return ok
}

func (h *Handle) close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.sub.Unsubscribe()
		close(h.done)

		h.mu.Lock()
		h.listeners = nil
		h.mu.Unlock()
	})
}

func (h *Handle) run() {
	defer h.manager.drop(h)

	for {
		select {
		case <-h.done:
			return
		case err, ok := <-h.sub.Err():
			if ok && err != nil {
				h.logger.Error("Log subscription failed", zap.Error(err))
			}
			h.close()
			return
		case log := <-h.logs:
			h.dispatch(log)
		}
	}
}

func (h *Handle) dispatch(log types.Log) {
	if h.closed.Load() || len(log.Topics) == 0 {
		return
	}
	if log.Removed {
		h.logger.Debug("Skipping removed log", zap.String("tx_hash", log.TxHash.Hex()))
		return
	}

	type match struct {
		token string
		fn    LogHandler
	}

	h.mu.RLock()
	matches := make([]match, 0, len(h.listeners))
	for token, l := range h.listeners {
		if l.eventID == log.Topics[0] {
			matches = append(matches, match{token: token, fn: l.fn})
		}
	}
	h.mu.RUnlock()

	for _, m := range matches {
		// A listener detached after the snapshot must not fire
		if h.closed.Load() || !h.hasListener(m.token) {
			continue
		}
		m.fn(log)
	}
}
