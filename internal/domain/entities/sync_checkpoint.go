package entities

import (
	"time"
)

// SyncCheckpoint tracks the last block whose logs were reconciled for a contract
type SyncCheckpoint struct {
	ContractAddress string    `db:"contract_address"`
	ContractName    string    `db:"contract_name"`
	LastSyncedBlock int64     `db:"last_synced_block"`
	EventsProcessed int64     `db:"events_processed"`
	UpdatedAt       time.Time `db:"updated_at"`
}
