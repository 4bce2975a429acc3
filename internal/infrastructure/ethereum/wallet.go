package ethereum

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUserRejected is returned by a signer when the signing request is declined
var ErrUserRejected = errors.New("ACTION_REJECTED: user rejected the request")

// WalletState is a connected account on a chain and the signer bound to it
type WalletState struct {
	Account common.Address
	ChainID *big.Int
	Signer  bind.SignerFn
}

// Validate checks that the state can back a session
func (w WalletState) Validate() error {
	if w.Account == (common.Address{}) {
		return errors.New("wallet account is empty")
	}
	if w.ChainID == nil || w.ChainID.Sign() <= 0 {
		return errors.New("wallet chain id is not set")
	}
	if w.Signer == nil {
		return errors.New("wallet signer is not set")
	}
	return nil
}

// WalletProvider supplies the connected account and signals when it changes.
// Changes is a coalescing signal; receivers read Current after every tick.
type WalletProvider interface {
	Current() (WalletState, bool)
	Changes() <-chan struct{}
}

// KeyedWallet is a WalletProvider backed by a local private key
type KeyedWallet struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	chainID   *big.Int
	connected bool
	changes   chan struct{}
}

// NewKeyedWallet creates a wallet from a hex private key.
// An empty key yields a disconnected wallet.
func NewKeyedWallet(hexKey string, chainID int64) (*KeyedWallet, error) {
	w := &KeyedWallet{
		chainID: big.NewInt(chainID),
		changes: make(chan struct{}, 1),
	}
	if strings.TrimSpace(hexKey) == "" {
		return w, nil
	}

	key, err := parseKey(hexKey)
	if err != nil {
		return nil, err
	}
	w.key = key
	w.connected = true
	return w, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// Current returns the wallet state, or false when disconnected
func (w *KeyedWallet) Current() (WalletState, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.connected || w.key == nil {
		return WalletState{}, false
	}

	account := crypto.PubkeyToAddress(w.key.PublicKey)
	return WalletState{
		Account: account,
		ChainID: new(big.Int).Set(w.chainID),
		Signer:  w.signer(account, w.key, new(big.Int).Set(w.chainID)),
	}, true
}

// Changes signals account, chain or connection changes
func (w *KeyedWallet) Changes() <-chan struct{} {
	return w.changes
}

// SwitchAccount replaces the signing key
func (w *KeyedWallet) SwitchAccount(hexKey string) error {
	key, err := parseKey(hexKey)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.key = key
	w.connected = true
	w.mu.Unlock()

	w.notify()
	return nil
}

// SwitchChain moves the wallet to another chain
func (w *KeyedWallet) SwitchChain(chainID int64) {
	w.mu.Lock()
	w.chainID = big.NewInt(chainID)
	w.mu.Unlock()

	w.notify()
}

// Disconnect drops the connection; pending signing requests are rejected
func (w *KeyedWallet) Disconnect() {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()

	w.notify()
}

func (w *KeyedWallet) notify() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// signer signs with key as long as the wallet is still connected to the same account and chain
func (w *KeyedWallet) signer(account common.Address, key *ecdsa.PrivateKey, chainID *big.Int) bind.SignerFn {
	signer := types.LatestSignerForChainID(chainID)

	return func(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if from != account {
			return nil, bind.ErrNotAuthorized
		}

		w.mu.RLock()
		stale := !w.connected || w.key == nil ||
			crypto.PubkeyToAddress(w.key.PublicKey) != account ||
			w.chainID.Cmp(chainID) != 0
		w.mu.RUnlock()
		if stale {
			return nil, ErrUserRejected
		}

		return types.SignTx(tx, signer, key)
	}
}
