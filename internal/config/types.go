package config

import "time"

// Config holds all erc20 configuration. Every field is read from an
// ERC20_-prefixed environment variable, e.g. ERC20_RPC_URLS.
type Config struct {
	RPCURLs      []string `envconfig:"RPC_URLS"      validate:"required,min=1,dive,url"`
	PoolStrategy string   `envconfig:"POOL_STRATEGY" default:"random"  validate:"oneof=random round-robin failover fastest"`

	ChainID  int64  `envconfig:"CHAIN_ID" default:"1"                                          validate:"gt=0"`
	Contract string `envconfig:"CONTRACT" default:"0xdAC17F958D2ee523a2206206994597C13D831ec7" validate:"required,eth_addr"`

	LogLevel  string `envconfig:"LOG_LEVEL"  default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`

	PollInterval  time.Duration `envconfig:"POLL_INTERVAL"   default:"5s"   validate:"gt=0"`
	PollAttempts  uint          `envconfig:"POLL_ATTEMPTS"   default:"3"    validate:"gte=1"`
	MaxBlockRange uint64        `envconfig:"MAX_BLOCK_RANGE" default:"2000" validate:"gte=1"`

	GasLimit uint64 `envconfig:"GAS_LIMIT" default:"100000" validate:"gte=21000"`
	GasPrice uint64 `envconfig:"GAS_PRICE" default:"0"` // wei; 0 asks the node
	FeeMode  string `envconfig:"FEE_MODE"  default:"legacy" validate:"oneof=legacy dynamic"`

	VerifyChainID bool `envconfig:"VERIFY_CHAIN_ID" default:"false"` // check eth_chainId before signing

	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s" validate:"gt=0"`
	HTTPRetries int           `envconfig:"HTTP_RETRIES" default:"0"   validate:"gte=0,lte=10"`

	MetricsAddr string `envconfig:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	KeyringDir  string `envconfig:"KEYRING_DIR"`
}
