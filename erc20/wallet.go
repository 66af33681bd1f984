package erc20

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/erc20/internal/chain"
	"github.com/Mohsinsiddi/erc20/internal/contract"
	"github.com/Mohsinsiddi/erc20/internal/logger"
	"github.com/Mohsinsiddi/erc20/internal/wallet"
)

// DefaultContract is mainnet USDT, used when Config.Contract is zero.
var DefaultContract = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

// DefaultChainID is Ethereum mainnet.
const DefaultChainID int64 = 1

const (
	defaultPollInterval  = 5 * time.Second
	defaultPollAttempts  = 3
	defaultMaxBlockRange = 2000
	defaultReceiptPoll   = 2 * time.Second
)

// Config is the fixed identity of a Wallet.
type Config struct {
	RPC      string `validate:"required,url"` // JSON-RPC endpoint
	ChainID  int64  `validate:"gte=0"`        // 0 means DefaultChainID
	Contract common.Address                   // zero means DefaultContract
	Logger   *zap.Logger                      // nil means no logging
}

// Metrics receives counters from a Wallet. *metrics.Metrics implements it.
type Metrics interface {
	chain.Observer
	SetLastScanned(block uint64)
	IncDelivered()
	IncPollFailure()
}

// GasPricer supplies gas prices for Pay.
type GasPricer = wallet.GasPricer

// FeeMode selects legacy or EIP-1559 transactions.
type FeeMode = wallet.FeeMode

const (
	FeeLegacy  = wallet.FeeLegacy
	FeeDynamic = wallet.FeeDynamic
)

// MinedReceipt is what WaitMined returns.
type MinedReceipt = chain.Receipt

// Receipt describes a broadcast payment. It does not imply the transaction
// was mined.
type Receipt struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Amount *big.Int
	Nonce  uint64
}

// Option tunes a Wallet beyond its Config.
type Option func(*options)

type options struct {
	httpClient    *http.Client
	pricer        GasPricer
	gasLimit      uint64
	feeMode       FeeMode
	pollInterval  time.Duration
	pollAttempts  uint
	maxBlockRange uint64
	receiptPoll   time.Duration
	metrics       Metrics
	checkChain    bool
}

// WithHTTPClient sets the transport used for JSON-RPC calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithGasPricer replaces the default eth_gasPrice lookup.
func WithGasPricer(p GasPricer) Option {
	return func(o *options) { o.pricer = p }
}

// WithFixedGasPrice makes every Pay use price wei per gas.
func WithFixedGasPrice(price *big.Int) Option {
	return func(o *options) { o.pricer = wallet.FixedGasPricer{Price: price} }
}

// WithGasLimit overrides the gas limit of transfer transactions.
func WithGasLimit(limit uint64) Option {
	return func(o *options) { o.gasLimit = limit }
}

// WithFeeMode selects the transaction type Pay builds.
func WithFeeMode(m FeeMode) Option {
	return func(o *options) { o.feeMode = m }
}

// WithPollInterval sets how long the watcher sleeps when no new block arrived.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPollAttempts sets how many times one watcher poll is tried before
// Accept gives up.
func WithPollAttempts(n uint) Option {
	return func(o *options) {
		if n > 0 {
			o.pollAttempts = n
		}
	}
}

// WithMaxBlockRange caps the number of blocks covered by one eth_getLogs query.
func WithMaxBlockRange(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBlockRange = n
		}
	}
}

// WithReceiptPollInterval sets how often WaitMined asks for the receipt.
func WithReceiptPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.receiptPoll = d
		}
	}
}

// WithChainIDCheck makes the first Pay ask the endpoint for its chain id
// and refuse to sign when it differs from Config.ChainID.
func WithChainIDCheck() Option {
	return func(o *options) { o.checkChain = true }
}

// WithMetrics registers a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Wallet talks to one ERC20 contract through one endpoint. Its configuration
// never changes after New.
type Wallet struct {
	cfg     Config
	chainID *big.Int
	opts    options
	log     *zap.Logger
	rpc     *chain.Client
	builder *wallet.Builder

	chainMu      sync.Mutex
	chainChecked bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New validates cfg and builds a Wallet.
func New(cfg Config, opts ...Option) (*Wallet, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: wallet config: %w", ErrInvalidArgument, err)
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultChainID
	}
	if cfg.Contract == (common.Address{}) {
		cfg.Contract = DefaultContract
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	o := options{
		feeMode:       FeeLegacy,
		pollInterval:  defaultPollInterval,
		pollAttempts:  defaultPollAttempts,
		maxBlockRange: defaultMaxBlockRange,
		receiptPoll:   defaultReceiptPoll,
	}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []chain.Option{chain.WithLogger(cfg.Logger)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, chain.WithHTTPClient(o.httpClient))
	}
	if o.metrics != nil {
		clientOpts = append(clientOpts, chain.WithObserver(o.metrics))
	}
	rpc := chain.NewEVMClient(cfg.RPC, clientOpts...)

	chainID := big.NewInt(cfg.ChainID)
	pricer := o.pricer
	if pricer == nil {
		pricer = rpc
	}

	return &Wallet{
		cfg:     cfg,
		chainID: chainID,
		opts:    o,
		log:     cfg.Logger,
		rpc:     rpc,
		builder: &wallet.Builder{
			Nonces:   rpc,
			Pricer:   pricer,
			GasLimit: o.gasLimit,
			ChainID:  chainID,
			Mode:     o.feeMode,
		},
	}, nil
}

// EndpointPicker chooses an upstream URL. *rpc.Pool implements it.
type EndpointPicker interface {
	Pick() (string, error)
}

// NewFromPool picks one endpoint from pool and builds a Wallet bound to it.
// cfg.RPC is ignored.
func NewFromPool(pool EndpointPicker, cfg Config, opts ...Option) (*Wallet, error) {
	url, err := pool.Pick()
	if err != nil {
		return nil, err
	}
	cfg.RPC = url
	return New(cfg, opts...)
}

// Endpoint returns the JSON-RPC URL this wallet talks to.
func (w *Wallet) Endpoint() string { return w.cfg.RPC }

// Contract returns the token contract address.
func (w *Wallet) Contract() common.Address { return w.cfg.Contract }

// ChainID returns the chain id transactions are signed for.
func (w *Wallet) ChainID() *big.Int { return new(big.Int).Set(w.chainID) }

// Balance returns the token balance of address. Addresses the contract has
// never seen have a balance of zero.
func (w *Wallet) Balance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	out, err := w.rpc.CallContract(ctx, w.cfg.Contract, contract.EncodeBalanceOf(addr))
	if err != nil {
		return nil, err
	}
	// A call to an address without code returns no data at all.
	if len(out) == 0 {
		return new(big.Int), nil
	}
	bal, err := contract.DecodeBalance(out)
	if err != nil {
		return nil, err
	}

	w.log.Debug("balance", zap.Stringer("address", addr), zap.Stringer("balance", bal))
	return bal, nil
}

// Pay signs and broadcasts transfer(to, amount) from the account controlled
// by privHex. It returns once the node accepted the transaction; use
// WaitMined to wait for inclusion.
func (w *Wallet) Pay(ctx context.Context, privHex, to string, amount *big.Int) (Receipt, error) {
	if amount == nil || amount.Sign() < 0 {
		return Receipt{}, fmt.Errorf("%w: amount must be a non-negative integer, got %v", ErrInvalidArgument, amount)
	}
	toAddr, err := parseAddress(to)
	if err != nil {
		return Receipt{}, err
	}
	key, err := wallet.ParsePrivateKey(privHex)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	from := wallet.AddressOf(key)

	data, err := contract.EncodeTransfer(toAddr, amount)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if err := w.verifyChain(ctx); err != nil {
		return Receipt{}, err
	}

	tx, err := w.builder.Build(ctx, from, w.cfg.Contract, data)
	if err != nil {
		return Receipt{}, err
	}
	raw, err := wallet.Sign(tx, key, w.chainID)
	if err != nil {
		return Receipt{}, err
	}
	hash, err := w.rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		return Receipt{}, err
	}

	w.log.Info("payment sent",
		zap.Stringer("hash", hash),
		zap.Stringer("from", from),
		zap.Stringer("to", toAddr),
		zap.Stringer("amount", amount),
		zap.Uint64("nonce", tx.Nonce()),
	)
	return Receipt{
		Hash:   hash,
		From:   from,
		To:     toAddr,
		Amount: new(big.Int).Set(amount),
		Nonce:  tx.Nonce(),
	}, nil
}

// verifyChain compares the endpoint's chain id with the configured one. A
// successful check is remembered; failures are retried on the next Pay.
func (w *Wallet) verifyChain(ctx context.Context) error {
	if !w.opts.checkChain {
		return nil
	}
	w.chainMu.Lock()
	defer w.chainMu.Unlock()
	if w.chainChecked {
		return nil
	}

	id, err := w.rpc.ChainID(ctx)
	if err != nil {
		return err
	}
	if id.Cmp(w.chainID) != 0 {
		return fmt.Errorf("%w: endpoint %s serves chain %s, configured %s", ErrChainMismatch, w.cfg.RPC, id, w.chainID)
	}
	w.chainChecked = true
	return nil
}

// WaitMined blocks until the transaction is mined or ctx is done. A reverted
// transaction is an error.
func (w *Wallet) WaitMined(ctx context.Context, hash common.Hash) (*MinedReceipt, error) {
	return w.rpc.WaitForReceipt(ctx, hash, w.opts.receiptPoll)
}

// Accept watches the contract for transfers to any of addresses and calls fn
// for each, in (block, log index) order, starting with the block after the
// current head. It blocks until ctx is cancelled, which returns nil, or until
// polling keeps failing, which returns the last error.
func (w *Wallet) Accept(ctx context.Context, addresses []string, fn func(Transfer)) error {
	if fn == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidArgument)
	}
	interest, err := parseAddressSet(addresses)
	if err != nil {
		return err
	}
	return w.newWatcher(interest).run(ctx, fn)
}

// Stream is Accept over channels. The transfer channel is unbuffered; the
// error channel carries at most one terminal error. Both close when the
// watcher stops.
func (w *Wallet) Stream(ctx context.Context, addresses []string) (<-chan Transfer, <-chan error) {
	out := make(chan Transfer)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		err := w.Accept(ctx, addresses, func(t Transfer) {
			select {
			case out <- t:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errc <- err
		}
	}()
	return out, errc
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: malformed address %q", ErrInvalidArgument, s)
	}
	return common.HexToAddress(s), nil
}

func parseAddressSet(addresses []string) ([]common.Address, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("%w: at least one address is required", ErrInvalidArgument)
	}
	seen := make(map[common.Address]bool, len(addresses))
	out := make([]common.Address, 0, len(addresses))
	for _, s := range addresses {
		a, err := parseAddress(s)
		if err != nil {
			return nil, err
		}
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out, nil
}
