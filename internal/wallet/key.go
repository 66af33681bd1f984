package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is wrapped by every SigningError caused by key material.
var ErrInvalidKey = errors.New("invalid private key")

// SigningError reports a failure to parse a key or sign a transaction.
type SigningError struct {
	Op  string
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// ParsePrivateKey parses a hex-encoded secp256k1 private key. The 0x prefix
// and surrounding whitespace are optional.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	k := stripHexPrefix(hexKey)
	if len(k) != 64 {
		return nil, &SigningError{
			Op:  "parsing private key",
			Err: fmt.Errorf("%w: expected 64 hex characters, got %d", ErrInvalidKey, len(k)),
		}
	}
	key, err := crypto.HexToECDSA(k)
	if err != nil {
		return nil, &SigningError{Op: "parsing private key", Err: fmt.Errorf("%w: %w", ErrInvalidKey, err)}
	}
	return key, nil
}

// AddressOf derives the account address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func stripHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
