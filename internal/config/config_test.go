package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONTRACT_FACTORY_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ethereum.ChainID != 31337 {
		t.Errorf("expected default chain id 31337, got %d", cfg.Ethereum.ChainID)
	}
	if cfg.Tx.ConfirmTimeout != 3*time.Minute {
		t.Errorf("expected confirm timeout 3m, got %v", cfg.Tx.ConfirmTimeout)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("unexpected backend url %s", cfg.Backend.BaseURL)
	}
	if len(cfg.Contracts.CollectionAddresses) != 0 {
		t.Errorf("expected no collections, got %v", cfg.Contracts.CollectionAddresses)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONTRACT_FACTORY_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("CONTRACT_COLLECTION_ADDRESSES", "0x1111111111111111111111111111111111111111,0x2222222222222222222222222222222222222222")
	t.Setenv("SYNC_BATCH_SIZE", "50")
	t.Setenv("TX_MAX_AUCTION_DURATION", "48h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Contracts.CollectionAddresses) != 2 {
		t.Errorf("expected 2 collections, got %d", len(cfg.Contracts.CollectionAddresses))
	}
	if cfg.Sync.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Tx.MaxAuctionDuration != 48*time.Hour {
		t.Errorf("expected 48h, got %v", cfg.Tx.MaxAuctionDuration)
	}
}

func TestLoad_MissingFactory(t *testing.T) {
	t.Setenv("CONTRACT_FACTORY_ADDRESS", "")
	os.Unsetenv("CONTRACT_FACTORY_ADDRESS")

	if _, err := Load(); err == nil {
		t.Error("expected error when factory address is missing")
	}
}
