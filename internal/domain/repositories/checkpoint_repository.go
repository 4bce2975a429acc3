package repositories

import (
	"context"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
)

// CheckpointRepository defines the interface for sync checkpoint operations
type CheckpointRepository interface {
	// Get retrieves the checkpoint for a contract, nil if none exists
	Get(ctx context.Context, contractAddress string) (*entities.SyncCheckpoint, error)

	// Upsert creates or updates a checkpoint
	Upsert(ctx context.Context, checkpoint *entities.SyncCheckpoint) error

	// Advance moves the checkpoint forward; it never moves it backwards
	Advance(ctx context.Context, contractAddress string, blockNumber int64, events int64) error
}
