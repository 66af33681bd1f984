package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/erc20/erc20"
	"github.com/Mohsinsiddi/erc20/internal/chain"
	"github.com/Mohsinsiddi/erc20/internal/config"
	"github.com/Mohsinsiddi/erc20/internal/logger"
	"github.com/Mohsinsiddi/erc20/internal/metrics"
	"github.com/Mohsinsiddi/erc20/internal/rpc"
	"github.com/Mohsinsiddi/erc20/internal/wallet"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/erc20/cmd.Version=1.2.3" .
var Version = "0.1.0"

// noConfig marks commands that run without loading the environment.
const noConfig = "no-config"

var (
	envFile  string
	logLevel string

	cfg *config.Config
	log *zap.Logger
	met *metrics.Metrics
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "erc20",
	Short: "A minimal ERC20 wallet",
	Long: `erc20 checks token balances, pays tokens and watches for incoming
transfers of a single ERC20 contract over JSON-RPC.

Configuration comes from ERC20_* environment variables, optionally loaded
from a .env file. At least ERC20_RPC_URLS must be set. The contract defaults
to mainnet USDT on chain 1.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || skipsConfig(cmd) {
			return nil
		}

		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		log, err = logger.New(
			logger.WithLevel(cfg.LogLevel),
			logger.WithFormat(cfg.LogFormat),
			logger.WithOutput(cmd.ErrOrStderr()),
		)
		if err != nil {
			return err
		}
		met = metrics.New()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[noConfig]; ok {
			return true
		}
	}
	return false
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override ERC20_LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(
		balanceCmd,
		payCmd,
		acceptCmd,
		keyCmd,
		selectorCmd,
	)
}

// newWallet builds a Wallet from the loaded configuration, picking one
// endpoint from the configured pool.
func newWallet(ctx context.Context) (*erc20.Wallet, error) {
	pool, hc, err := newPool(ctx)
	if err != nil {
		return nil, err
	}
	return walletFromPool(pool, hc)
}

// withFailover runs fn against wallets picked from the pool until an
// endpoint serves it. Endpoints that fail below JSON-RPC (unreachable, non-2xx,
// garbage bodies) are marked down and the next one is tried.
func withFailover(ctx context.Context, fn func(*erc20.Wallet) error) error {
	pool, hc, err := newPool(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for {
		w, err := walletFromPool(pool, hc)
		if errors.Is(err, rpc.ErrNoEndpoint) && lastErr != nil {
			return lastErr
		}
		if err != nil {
			return err
		}

		err = fn(w)
		if err == nil || !endpointFailed(ctx, err) {
			return err
		}
		log.Warn("endpoint failed, trying the next one", zap.String("endpoint", w.Endpoint()), zap.Error(err))
		pool.MarkDown(w.Endpoint())
		lastErr = err
	}
}

func endpointFailed(ctx context.Context, err error) bool {
	var rpcErr *erc20.RPCError
	return ctx.Err() == nil && errors.As(err, &rpcErr) && rpcErr.Code == 0
}

func newPool(ctx context.Context) (*rpc.Pool, *http.Client, error) {
	strategy, err := rpc.ParseStrategy(cfg.PoolStrategy)
	if err != nil {
		return nil, nil, err
	}
	pool, err := rpc.NewPool(cfg.RPCURLs, strategy)
	if err != nil {
		return nil, nil, err
	}

	hc := chain.NewHTTPClient(
		chain.WithTimeout(cfg.HTTPTimeout),
		chain.WithRetries(cfg.HTTPRetries),
		chain.WithTransportLogger(log),
	)

	if strategy == rpc.StrategyFastest {
		probeCtx, cancel := context.WithTimeout(ctx, config.RPCSelectTimeout)
		results := pool.Probe(probeCtx, chain.WithHTTPClient(hc), chain.WithLogger(log))
		cancel()
		for _, r := range results {
			log.Debug("probed endpoint",
				zap.String("url", r.URL),
				zap.Duration("latency", r.Latency),
				zap.Uint64("block", r.BlockNumber),
				zap.Bool("healthy", r.Healthy),
			)
		}
	}
	return pool, hc, nil
}

func walletFromPool(pool *rpc.Pool, hc *http.Client) (*erc20.Wallet, error) {
	feeMode, err := wallet.ParseFeeMode(cfg.FeeMode)
	if err != nil {
		return nil, err
	}

	opts := []erc20.Option{
		erc20.WithHTTPClient(hc),
		erc20.WithGasLimit(cfg.GasLimit),
		erc20.WithFeeMode(feeMode),
		erc20.WithPollInterval(cfg.PollInterval),
		erc20.WithPollAttempts(cfg.PollAttempts),
		erc20.WithMaxBlockRange(cfg.MaxBlockRange),
		erc20.WithReceiptPollInterval(config.ReceiptPollPeriod),
		erc20.WithMetrics(met),
	}
	if cfg.GasPrice > 0 {
		opts = append(opts, erc20.WithFixedGasPrice(new(big.Int).SetUint64(cfg.GasPrice)))
	}
	if cfg.VerifyChainID {
		opts = append(opts, erc20.WithChainIDCheck())
	}

	w, err := erc20.NewFromPool(pool, erc20.Config{
		ChainID:  cfg.ChainID,
		Contract: common.HexToAddress(cfg.Contract),
		Logger:   log,
	}, opts...)
	if err != nil {
		return nil, err
	}
	log.Debug("wallet ready",
		zap.String("endpoint", w.Endpoint()),
		zap.Stringer("contract", w.Contract()),
		zap.Stringer("chain_id", w.ChainID()),
	)
	return w, nil
}
