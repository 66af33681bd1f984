package erc20

import (
	"errors"

	"github.com/Mohsinsiddi/erc20/internal/chain"
	"github.com/Mohsinsiddi/erc20/internal/contract"
	"github.com/Mohsinsiddi/erc20/internal/wallet"
)

// ErrInvalidArgument is matched by errors caused by bad caller input.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrChainMismatch is returned by Pay when WithChainIDCheck is set and the
// endpoint reports a different chain.
var ErrChainMismatch = errors.New("chain id mismatch")

// ErrInvalidKey is wrapped by every SigningError caused by key material.
var ErrInvalidKey = wallet.ErrInvalidKey

type (
	// RPCError is returned for any endpoint failure: unreachable host,
	// non-2xx status, malformed JSON or a JSON-RPC error object.
	RPCError = chain.RPCError
	// DecodeError reports contract data that does not have the ERC20 shape.
	DecodeError = contract.DecodeError
	// SigningError reports a malformed private key or a failed signature.
	SigningError = wallet.SigningError
)
