package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces every variable Load reads.
const envPrefix = "ERC20"

// ErrInvalidConfig is the root of every error Load returns for bad values.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env files (default ".env"; missing files are fine), then the
// process environment, applies defaults and validates the result. Variables
// already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	errs := []error{ErrInvalidConfig}
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s_%s: value %q fails %q", envPrefix, envName(fe.StructField()), fmt.Sprint(fe.Value()), fe.Tag()))
	}
	return errors.Join(errs...)
}

// envName maps a struct field to its variable name for error messages.
func envName(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

var envNames = map[string]string{
	"RPCURLs":       "RPC_URLS",
	"PoolStrategy":  "POOL_STRATEGY",
	"ChainID":       "CHAIN_ID",
	"Contract":      "CONTRACT",
	"LogLevel":      "LOG_LEVEL",
	"LogFormat":     "LOG_FORMAT",
	"PollInterval":  "POLL_INTERVAL",
	"PollAttempts":  "POLL_ATTEMPTS",
	"MaxBlockRange": "MAX_BLOCK_RANGE",
	"GasLimit":      "GAS_LIMIT",
	"GasPrice":      "GAS_PRICE",
	"FeeMode":       "FEE_MODE",
	"HTTPTimeout":   "HTTP_TIMEOUT",
	"HTTPRetries":   "HTTP_RETRIES",
	"MetricsAddr":   "METRICS_ADDR",
	"KeyringDir":    "KEYRING_DIR",
}
