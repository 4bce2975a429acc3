package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/nft-market-sync/internal/config"
)

// Backend is the chain connection contract handles are built on.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Dialer opens a Backend for an RPC or WebSocket endpoint
type Dialer func(ctx context.Context, rawURL string) (Backend, error)

// DialEthClient is the default Dialer
func DialEthClient(ctx context.Context, rawURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Client wraps a Backend with retry logic for read calls
type Client struct {
	backend Backend
	config  config.EthereumConfig
	logger  *zap.Logger
	chainID *big.Int
	url     string
}

// NewClient connects to an Ethereum endpoint and verifies the chain id
func NewClient(ctx context.Context, rawURL string, dial Dialer, cfg config.EthereumConfig, logger *zap.Logger) (*Client, error) {
	if dial == nil {
		dial = DialEthClient
	}

	dialCtx := ctx
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	backend, err := dial(dialCtx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	chainID, err := backend.ChainID(dialCtx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	if chainID.Int64() != cfg.ChainID {
		backend.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Int64())
	}

	logger.Info("Connected to Ethereum node",
		zap.String("url", rawURL),
		zap.Int64("chain_id", chainID.Int64()),
	)

	return &Client{
		backend: backend,
		config:  cfg,
		logger:  logger,
		chainID: chainID,
		url:     rawURL,
	}, nil
}

// Close closes the Ethereum client connection
func (c *Client) Close() {
	c.backend.Close()
}

// GetLatestBlockNumber returns the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var blockNumber uint64
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		blockNumber, err = c.backend.BlockNumber(ctx)
		if err == nil {
			return blockNumber, nil
		}

		c.logger.Warn("Failed to get latest block number, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			if err := sleepContext(ctx, c.config.RetryDelay); err != nil {
				return 0, err
			}
		}
	}

	return 0, fmt.Errorf("failed to get latest block number after %d retries: %w", c.config.MaxRetries, err)
}

// GetLogs retrieves logs matching the filter query
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		logs, err = c.backend.FilterLogs(ctx, query)
		if err == nil {
			return logs, nil
		}

		c.logger.Warn("Failed to get logs, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			if err := sleepContext(ctx, c.config.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("failed to get logs after %d retries: %w", c.config.MaxRetries, err)
}

// GetBlockTimestamp returns the timestamp of a block
func (c *Client) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	var header *types.Header
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		header, err = c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		if err == nil {
			return time.Unix(int64(header.Time), 0).UTC(), nil
		}

		if i < c.config.MaxRetries {
			if err := sleepContext(ctx, c.config.RetryDelay); err != nil {
				return time.Time{}, err
			}
		}
	}

	return time.Time{}, fmt.Errorf("failed to get block %d after %d retries: %w", blockNumber, c.config.MaxRetries, err)
}

// BuildFilterQuery builds a filter query for the given contracts and event ids
func (c *Client) BuildFilterQuery(fromBlock, toBlock *big.Int, addresses []common.Address, eventIDs []common.Hash) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: addresses,
	}
	if len(eventIDs) > 0 {
		query.Topics = [][]common.Hash{eventIDs}
	}
	return query
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Backend returns the underlying connection
func (c *Client) Backend() Backend {
	return c.backend
}

// HealthCheck reports whether the node still answers
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.backend.BlockNumber(ctx)
	return err
}

// ParseAddress parses a hex contract or account address
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
