package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Wallet (signer) configuration
	Wallet WalletConfig

	// Marketplace contracts
	Contracts ContractsConfig

	// Backend API configuration
	Backend BackendConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Synchronizer configuration
	Sync SyncConfig

	// Transaction orchestrator configuration
	Tx TxConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL             string        `envconfig:"ETH_RPC_URL" default:"http://localhost:8545"`
	WSURL              string        `envconfig:"ETH_WS_URL" default:"ws://localhost:8546"`
	ChainID            int64         `envconfig:"ETH_CHAIN_ID" default:"31337"`
	RequestTimeout     time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries         int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay         time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	BlockConfirmations int           `envconfig:"ETH_BLOCK_CONFIRMATIONS" default:"1"`
}

// WalletConfig holds the signer used for user-initiated transactions
type WalletConfig struct {
	PrivateKey string `envconfig:"WALLET_PRIVATE_KEY"`
}

// ContractsConfig holds marketplace contract addresses
type ContractsConfig struct {
	FactoryAddress string `envconfig:"CONTRACT_FACTORY_ADDRESS" required:"true"`

	// Collections watched from startup (comma-separated addresses)
	CollectionAddresses []string `envconfig:"CONTRACT_COLLECTION_ADDRESSES"`
}

// BackendConfig holds marketplace backend API settings
type BackendConfig struct {
	BaseURL         string        `envconfig:"BACKEND_BASE_URL" default:"http://localhost:5000"`
	RequestTimeout  time.Duration `envconfig:"BACKEND_REQUEST_TIMEOUT" default:"15s"`
	MetadataWorkers int           `envconfig:"BACKEND_METADATA_WORKERS" default:"8"`
	MetadataTTL     time.Duration `envconfig:"BACKEND_METADATA_TTL" default:"1h"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"market"`
	Password        string        `envconfig:"DB_PASSWORD" default:"market"`
	Name            string        `envconfig:"DB_NAME" default:"market_sync"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"4m"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	ActionRateRPM   int           `envconfig:"API_ACTION_RATE_RPM" default:"30"`
	CORSOrigins     []string      `envconfig:"API_CORS_ORIGINS" default:"*"`
}

// SyncConfig holds event synchronizer settings
type SyncConfig struct {
	BatchSize   int           `envconfig:"SYNC_BATCH_SIZE" default:"2000"`
	WorkerCount int           `envconfig:"SYNC_WORKER_COUNT" default:"4"`
	CatchUp     bool          `envconfig:"SYNC_CATCH_UP" default:"true"`
	StartBlock  int64         `envconfig:"SYNC_START_BLOCK" default:"0"`
	RebindDelay time.Duration `envconfig:"SYNC_REBIND_DELAY" default:"5s"`
}

// TxConfig holds transaction orchestrator settings
type TxConfig struct {
	ConfirmTimeout     time.Duration `envconfig:"TX_CONFIRM_TIMEOUT" default:"3m"`
	MaxAuctionDuration time.Duration `envconfig:"TX_MAX_AUCTION_DURATION" default:"720h"`
	MinAuctionDuration time.Duration `envconfig:"TX_MIN_AUCTION_DURATION" default:"5m"`
	GasLimitMultiplier float64       `envconfig:"TX_GAS_LIMIT_MULTIPLIER" default:"1.0"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
