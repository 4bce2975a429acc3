package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/nft-market-sync/internal/config"
)

// Fetcher replays historical marketplace events for a contract
type Fetcher struct {
	client        *Client
	workerCount   int
	confirmations int
	logger        *zap.Logger
}

// NewFetcher creates a new blockchain event fetcher
func NewFetcher(client *Client, syncCfg config.SyncConfig, ethCfg config.EthereumConfig, logger *zap.Logger) *Fetcher {
	workers := syncCfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	return &Fetcher{
		client:        client,
		workerCount:   workers,
		confirmations: ethCfg.BlockConfirmations,
		logger:        logger,
	}
}

// FetchedEvent is a decoded log and the time of the block it was mined in
type FetchedEvent struct {
	Event     interface{}
	Timestamp time.Time
}

// FetchResult contains the result of fetching events
type FetchResult struct {
	Events         []FetchedEvent
	FromBlock      int64
	ToBlock        int64
	FailedLogCount int
}

// FetchEvents fetches and decodes the marketplace events of one contract for a range of blocks
func (f *Fetcher) FetchEvents(ctx context.Context, address common.Address, contractABI *abi.ABI, fromBlock, toBlock int64) (*FetchResult, error) {
	eventIDs := make([]common.Hash, 0, len(contractABI.Events))
	for _, ev := range contractABI.Events {
		eventIDs = append(eventIDs, ev.ID)
	}

	query := f.client.BuildFilterQuery(
		big.NewInt(fromBlock),
		big.NewInt(toBlock),
		[]common.Address{address},
		eventIDs,
	)

	f.logger.Debug("Fetching logs",
		zap.String("contract", address.Hex()),
		zap.Int64("from_block", fromBlock),
		zap.Int64("to_block", toBlock),
	)

	logs, err := f.client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs: %w", err)
	}

	if len(logs) == 0 {
		return &FetchResult{
			Events:    []FetchedEvent{},
			FromBlock: fromBlock,
			ToBlock:   toBlock,
		}, nil
	}

	// Collect unique block numbers and fetch timestamps concurrently
	blockNumbers := make(map[uint64]struct{})
	for _, log := range logs {
		blockNumbers[log.BlockNumber] = struct{}{}
	}

	blockTimestamps, err := f.fetchBlockTimestamps(ctx, blockNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block timestamps: %w", err)
	}

	decoded, failedIndices := ParseLogs(contractABI, logs)

	if len(failedIndices) > 0 {
		f.logger.Warn("Failed to parse some logs",
			zap.String("contract", address.Hex()),
			zap.Int("failed_count", len(failedIndices)),
			zap.Int("total_logs", len(logs)),
		)
	}

	events := make([]FetchedEvent, 0, len(decoded))
	for _, ev := range decoded {
		events = append(events, FetchedEvent{
			Event:     ev,
			Timestamp: blockTimestamps[RawLog(ev).BlockNumber],
		})
	}

	f.logger.Info("Fetched events",
		zap.String("contract", address.Hex()),
		zap.Int64("from_block", fromBlock),
		zap.Int64("to_block", toBlock),
		zap.Int("event_count", len(events)),
	)

	return &FetchResult{
		Events:         events,
		FromBlock:      fromBlock,
		ToBlock:        toBlock,
		FailedLogCount: len(failedIndices),
	}, nil
}

// fetchBlockTimestamps fetches timestamps for multiple blocks concurrently
func (f *Fetcher) fetchBlockTimestamps(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error) {
	timestamps := make(map[uint64]time.Time)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workerCount)

	for blockNum := range blockNumbers {
		blockNum := blockNum
		g.Go(func() error {
			timestamp, err := f.client.GetBlockTimestamp(ctx, blockNum)
			if err != nil {
				return fmt.Errorf("failed to get timestamp for block %d: %w", blockNum, err)
			}

			mu.Lock()
			timestamps[blockNum] = timestamp
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}

// GetHeadBlockNumber returns the latest block number
func (f *Fetcher) GetHeadBlockNumber(ctx context.Context) (int64, error) {
	latestBlock, err := f.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return int64(latestBlock), nil
}

// SafeBlock returns head minus confirmations
func (f *Fetcher) SafeBlock(head int64) int64 {
	safeBlock := head - int64(f.confirmations)
	if safeBlock < 0 {
		safeBlock = 0
	}
	return safeBlock
}

// BlockRange represents a range of blocks to fetch
type BlockRange struct {
	From int64
	To   int64
}

// SplitBlockRange splits a range into batches
func SplitBlockRange(fromBlock, toBlock int64, batchSize int) []BlockRange {
	if fromBlock > toBlock {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	var ranges []BlockRange
	for current := fromBlock; current <= toBlock; current += int64(batchSize) {
		end := current + int64(batchSize) - 1
		if end > toBlock {
			end = toBlock
		}
		ranges = append(ranges, BlockRange{From: current, To: end})
	}

	return ranges
}
