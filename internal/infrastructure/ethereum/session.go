package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

const logBufferSize = 256

// SessionState is the lifecycle state of a wallet session
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Target identifies a contract to bind
type Target struct {
	Name    string
	Address common.Address
	ABI     *abi.ABI
}

// LogHandler receives logs for a registered event
type LogHandler func(log types.Log)

type registration struct {
	handle *Handle
	token  string
}

// SessionManager owns the wallet session and every contract handle built on it.
// Handles are recreated whenever the account or chain changes; Generation
// increments on each rebuild and on disconnect.
type SessionManager struct {
	cfg    config.EthereumConfig
	dial   Dialer
	logger *zap.Logger

	mu         sync.Mutex
	state      SessionState
	generation uint64
	wallet     WalletState
	rpc        *Client
	events     *Client
	handles    map[common.Address]*Handle
	listeners  map[string]registration

	hooksMu sync.Mutex
	hooks   []func(generation uint64)
}

// NewSessionManager creates a disconnected session manager
func NewSessionManager(cfg config.EthereumConfig, dial Dialer, logger *zap.Logger) *SessionManager {
	if dial == nil {
		dial = DialEthClient
	}
	return &SessionManager{
		cfg:       cfg,
		dial:      dial,
		logger:    logger,
		handles:   make(map[common.Address]*Handle),
		listeners: make(map[string]registration),
	}
}

// State returns the current session state
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation returns the current session generation
func (m *SessionManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Account returns the connected account, or false when not ready
func (m *SessionManager) Account() (common.Address, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return common.Address{}, false
	}
	return m.wallet.Account, true
}

// ChainID returns the chain of the connected wallet, or nil when not ready
func (m *SessionManager) ChainID() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil
	}
	return new(big.Int).Set(m.wallet.ChainID)
}

// OnRebuild registers fn to run after every connect, failed connect and disconnect
func (m *SessionManager) OnRebuild(fn func(generation uint64)) {
	m.hooksMu.Lock()
	m.hooks = append(m.hooks, fn)
	m.hooksMu.Unlock()
}

func (m *SessionManager) fireRebuild(generation uint64) {
	m.hooksMu.Lock()
	hooks := make([]func(uint64), len(m.hooks))
	copy(hooks, m.hooks)
	m.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(generation)
	}
}

// Connect tears down any existing session and builds a new one for wallet.
// On failure the manager is left Disconnected and a *SessionError is returned.
func (m *SessionManager) Connect(ctx context.Context, wallet WalletState) error {
	m.mu.Lock()
	m.teardownLocked()
	m.state = StateConnecting
	m.generation++
	generation := m.generation

	if err := m.connectLocked(ctx, wallet); err != nil {
		m.teardownLocked()
		m.state = StateDisconnected
		m.mu.Unlock()

		m.logger.Error("Failed to build wallet session",
			zap.Uint64("generation", generation),
			zap.Error(err),
		)
		m.fireRebuild(generation)
		return &entities.SessionError{Op: "connect", Err: err}
	}

	m.state = StateReady
	m.mu.Unlock()

	m.logger.Info("Wallet session ready",
		zap.String("account", wallet.Account.Hex()),
		zap.String("chain_id", wallet.ChainID.String()),
		zap.Uint64("generation", generation),
	)
	m.fireRebuild(generation)
	return nil
}

func (m *SessionManager) connectLocked(ctx context.Context, wallet WalletState) error {
	if err := wallet.Validate(); err != nil {
		return err
	}
	if wallet.ChainID.Int64() != m.cfg.ChainID {
		return fmt.Errorf("wallet is on chain %s, expected %d", wallet.ChainID, m.cfg.ChainID)
	}

	rpc, err := NewClient(ctx, m.cfg.RPCURL, m.dial, m.cfg, m.logger)
	if err != nil {
		return fmt.Errorf("failed to build write connection: %w", err)
	}

	events, err := NewClient(ctx, m.cfg.WSURL, m.dial, m.cfg, m.logger)
	if err != nil {
		rpc.Close()
		return fmt.Errorf("failed to build event connection: %w", err)
	}

	m.wallet = wallet
	m.rpc = rpc
	m.events = events
	return nil
}

// Disconnect tears down every handle and leaves the manager Disconnected
func (m *SessionManager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected && m.rpc == nil {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.state = StateDisconnected
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	m.logger.Info("Wallet session disconnected", zap.Uint64("generation", generation))
	m.fireRebuild(generation)
}

func (m *SessionManager) teardownLocked() {
	for addr, h := range m.handles {
		h.close()
		delete(m.handles, addr)
	}
	m.listeners = make(map[string]registration)

	if m.events != nil {
		m.events.Close()
		m.events = nil
	}
	if m.rpc != nil {
		m.rpc.Close()
		m.rpc = nil
	}
	m.wallet = WalletState{}
}

// Bind returns the handle for target, subscribing to its logs on first use.
// Exactly one subscription exists per contract address.
func (m *SessionManager) Bind(ctx context.Context, target Target) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady {
		return nil, &entities.SessionError{Op: "bind", Err: entities.ErrSessionUnavailable}
	}
	if target.Address == (common.Address{}) {
		return nil, &entities.SessionError{Op: "bind", Err: errors.New("contract address is empty")}
	}
	if target.ABI == nil {
		return nil, &entities.SessionError{Op: "bind", Err: errors.New("contract ABI is nil")}
	}

	if h, ok := m.handles[target.Address]; ok && !h.closed.Load() {
		return h, nil
	}

	logs := make(chan types.Log, logBufferSize)
	query := ethereum.FilterQuery{Addresses: []common.Address{target.Address}}
	sub, err := m.events.Backend().SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, &entities.SessionError{
			Op:  "bind",
			Err: fmt.Errorf("failed to subscribe to %s: %w", target.Address.Hex(), err),
		}
	}

	rpc := m.rpc.Backend()
	h := &Handle{
		Name:       target.Name,
		Address:    target.Address,
		abi:        target.ABI,
		generation: m.generation,
		account:    m.wallet.Account,
		signer:     m.wallet.Signer,
		backend:    rpc,
		contract:   bind.NewBoundContract(target.Address, *target.ABI, rpc, rpc, m.events.Backend()),
		manager:    m,
		sub:        sub,
		logs:       logs,
		done:       make(chan struct{}),
		listeners:  make(map[string]listener),
		logger:     m.logger.With(zap.String("contract", target.Address.Hex()), zap.String("name", target.Name)),
	}
	m.handles[target.Address] = h
	go h.run()

	m.logger.Debug("Contract handle bound",
		zap.String("name", target.Name),
		zap.String("address", target.Address.Hex()),
		zap.Uint64("generation", m.generation),
	)
	return h, nil
}

// Release closes the handle for address and drops its listeners
func (m *SessionManager) Release(address common.Address) {
	m.mu.Lock()
	h, ok := m.handles[address]
	if ok {
		delete(m.handles, address)
		m.dropRegistrationsLocked(h)
	}
	m.mu.Unlock()

	if ok {
		h.close()
	}
}

// drop removes a handle whose subscription failed
func (m *SessionManager) drop(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.handles[h.Address]; ok && cur == h {
		delete(m.handles, h.Address)
		m.dropRegistrationsLocked(h)
	}
}

func (m *SessionManager) dropRegistrationsLocked(h *Handle) {
	for name, reg := range m.listeners {
		if reg.handle == h {
			delete(m.listeners, name)
		}
	}
}

func (m *SessionManager) listen(h *Handle, name, event string, fn LogHandler) (func(), error) {
	ev, ok := h.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}
	if fn == nil {
		return nil, errors.New("listener is nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if h.closed.Load() || h.generation != m.generation || m.handles[h.Address] != h {
		return nil, &entities.SessionError{Op: "listen", Err: entities.ErrSessionUnavailable}
	}

	// One registration per logical listener
	if prev, ok := m.listeners[name]; ok {
		prev.handle.removeListener(prev.token)
	}

	token := uuid.NewString()
	h.addListener(token, listener{name: name, eventID: ev.ID, fn: fn})
	m.listeners[name] = registration{handle: h, token: token}

	return func() { m.unlisten(name, h, token) }, nil
}

func (m *SessionManager) unlisten(name string, h *Handle, token string) {
	m.mu.Lock()
	if reg, ok := m.listeners[name]; ok && reg.token == token {
		delete(m.listeners, name)
	}
	m.mu.Unlock()

	h.removeListener(token)
}

// HealthCheck reports whether the session is ready and its node answers
func (m *SessionManager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	rpc := m.rpc
	ready := m.state == StateReady
	m.mu.Unlock()

	if !ready || rpc == nil {
		return &entities.SessionError{Op: "health", Err: entities.ErrSessionUnavailable}
	}
	return rpc.HealthCheck(ctx)
}

// Watch follows provider until ctx is done, rebuilding the session on every
// account or chain change and tearing it down on disconnect.
func (m *SessionManager) Watch(ctx context.Context, provider WalletProvider) {
	m.follow(ctx, provider)

	for {
		select {
		case <-ctx.Done():
			m.Disconnect()
			return
		case <-provider.Changes():
			m.follow(ctx, provider)
		}
	}
}

func (m *SessionManager) follow(ctx context.Context, provider WalletProvider) {
	wallet, ok := provider.Current()
	if !ok {
		m.Disconnect()
		return
	}

	m.mu.Lock()
	unchanged := m.state == StateReady &&
		m.wallet.Account == wallet.Account &&
		m.wallet.ChainID != nil && wallet.ChainID != nil &&
		m.wallet.ChainID.Cmp(wallet.ChainID) == 0
	m.mu.Unlock()

	if unchanged {
		return
	}

	if err := m.Connect(ctx, wallet); err != nil {
		m.logger.Warn("Wallet change left session disconnected", zap.Error(err))
	}
}
