package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NonceSource reports the next usable nonce for an account, counting
// transactions that are still pending.
type NonceSource interface {
	PendingNonce(ctx context.Context, address common.Address) (uint64, error)
}

// GasPricer supplies the gas price for a new transaction.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// FixedGasPricer always returns the same price.
type FixedGasPricer struct {
	Price *big.Int
}

func (f FixedGasPricer) GasPrice(context.Context) (*big.Int, error) {
	if f.Price == nil {
		return nil, errors.New("fixed gas price not set")
	}
	return new(big.Int).Set(f.Price), nil
}

// FeeMode selects the transaction envelope.
type FeeMode int

const (
	// FeeLegacy builds EIP-155 replay-protected legacy transactions.
	FeeLegacy FeeMode = iota
	// FeeDynamic builds EIP-1559 transactions.
	FeeDynamic
)

func (m FeeMode) String() string {
	if m == FeeDynamic {
		return "dynamic"
	}
	return "legacy"
}

// ParseFeeMode maps "legacy" or "dynamic" to a FeeMode. Empty means legacy.
func ParseFeeMode(s string) (FeeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return FeeLegacy, nil
	case "dynamic", "eip1559":
		return FeeDynamic, nil
	}
	return FeeLegacy, fmt.Errorf("unknown fee mode %q", s)
}

// DefaultGasLimit covers an ERC20 transfer on every mainstream token.
const DefaultGasLimit uint64 = 100_000

// Builder assembles unsigned contract-call transactions.
type Builder struct {
	Nonces   NonceSource
	Pricer   GasPricer
	GasLimit uint64
	ChainID  *big.Int
	Mode     FeeMode
}

// Build creates a zero-value call to `to` carrying data. The nonce is read
// right before construction and never cached, so two concurrent builds for
// the same sender can pick the same nonce.
func (b *Builder) Build(ctx context.Context, from, to common.Address, data []byte) (*types.Transaction, error) {
	nonce, err := b.Nonces.PendingNonce(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("getting nonce: %w", err)
	}

	gasPrice, err := b.Pricer.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting gas price: %w", err)
	}
	if gasPrice.Sign() <= 0 {
		return nil, fmt.Errorf("gas price must be positive, got %s", gasPrice)
	}

	gasLimit := b.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}

	if b.Mode == FeeDynamic {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   b.ChainID,
			Nonce:     nonce,
			GasTipCap: gasPrice,
			GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
			Gas:       gasLimit,
			To:        &to,
			Value:     new(big.Int),
			Data:      data,
		}), nil
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	}), nil
}

// Sign signs tx for chainID and returns its canonical binary encoding,
// ready for eth_sendRawTransaction.
func Sign(tx *types.Transaction, key *ecdsa.PrivateKey, chainID *big.Int) ([]byte, error) {
	if key == nil {
		return nil, &SigningError{Op: "signing transaction", Err: ErrInvalidKey}
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, &SigningError{Op: "signing transaction", Err: fmt.Errorf("invalid chain id %v", chainID)}
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, &SigningError{Op: "signing transaction", Err: err}
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, &SigningError{Op: "encoding signed transaction", Err: err}
	}
	return raw, nil
}
