package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/domain/repositories"
)

const checkpointSchema = `
	CREATE TABLE IF NOT EXISTS sync_checkpoints (
		contract_address  VARCHAR(42) PRIMARY KEY,
		contract_name     VARCHAR(64) NOT NULL DEFAULT '',
		last_synced_block BIGINT      NOT NULL DEFAULT 0,
		events_processed  BIGINT      NOT NULL DEFAULT 0,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Ensure CheckpointRepo implements CheckpointRepository
var _ repositories.CheckpointRepository = (*CheckpointRepo)(nil)

// CheckpointRepo implements CheckpointRepository using PostgreSQL
type CheckpointRepo struct {
	db *sqlx.DB
}

// NewCheckpointRepo creates a new checkpoint repository
func NewCheckpointRepo(db *sqlx.DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Get retrieves the checkpoint for a contract
func (r *CheckpointRepo) Get(ctx context.Context, contractAddress string) (*entities.SyncCheckpoint, error) {
	var cp entities.SyncCheckpoint
	query := `
		SELECT contract_address, contract_name, last_synced_block, events_processed, updated_at
		FROM sync_checkpoints
		WHERE contract_address = $1
	`

	if err := r.db.GetContext(ctx, &cp, query, strings.ToLower(contractAddress)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync checkpoint: %w", err)
	}

	return &cp, nil
}

// Upsert creates or updates a checkpoint
func (r *CheckpointRepo) Upsert(ctx context.Context, cp *entities.SyncCheckpoint) error {
	query := `
		INSERT INTO sync_checkpoints (contract_address, contract_name, last_synced_block, events_processed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contract_address) DO UPDATE SET
			contract_name = EXCLUDED.contract_name,
			last_synced_block = EXCLUDED.last_synced_block,
			events_processed = EXCLUDED.events_processed,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		strings.ToLower(cp.ContractAddress),
		cp.ContractName,
		cp.LastSyncedBlock,
		cp.EventsProcessed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync checkpoint: %w", err)
	}

	return nil
}

// Advance moves the checkpoint forward and adds to the processed event count.
// A lower block number never rewinds the checkpoint.
func (r *CheckpointRepo) Advance(ctx context.Context, contractAddress string, blockNumber int64, events int64) error {
	query := `
		INSERT INTO sync_checkpoints (contract_address, last_synced_block, events_processed)
		VALUES ($1, $2, $3)
		ON CONFLICT (contract_address) DO UPDATE SET
			last_synced_block = GREATEST(sync_checkpoints.last_synced_block, EXCLUDED.last_synced_block),
			events_processed = sync_checkpoints.events_processed + EXCLUDED.events_processed,
			updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, strings.ToLower(contractAddress), blockNumber, events); err != nil {
		return fmt.Errorf("failed to advance sync checkpoint: %w", err)
	}

	return nil
}
