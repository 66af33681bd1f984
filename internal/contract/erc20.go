package contract

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"
)

// Canonical signatures of the ERC-20 surface this package speaks.
//
//	balanceOf(address)                  → 0x70a08231
//	transfer(address,uint256)           → 0xa9059cbb
//	Transfer(address,address,uint256)   → 0xddf252ad…
const (
	SigBalanceOf     = "balanceOf(address)"
	SigTransfer      = "transfer(address,uint256)"
	SigTransferEvent = "Transfer(address,address,uint256)"
)

// wordSize is the width of a single ABI word.
const wordSize = 32

var (
	BalanceOfSelector = Selector(SigBalanceOf)
	TransferSelector  = Selector(SigTransfer)
	TransferTopic     = EventTopic(SigTransferEvent)
)

var (
	addressType = mustType("address")
	uint256Type = mustType("uint256")

	balanceOfInputs = abi.Arguments{{Name: "account", Type: addressType}}
	balanceOutputs  = abi.Arguments{{Name: "", Type: uint256Type}}
	transferInputs  = abi.Arguments{{Name: "to", Type: addressType}, {Name: "value", Type: uint256Type}}
	transferData    = abi.Arguments{{Name: "value", Type: uint256Type}}

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// TransferEvent is a decoded ERC-20 Transfer log.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	Amount      *big.Int
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
}

// Keccak256 hashes data with the legacy (pre-NIST) Keccak-256 used by Ethereum.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector returns the 4-byte function selector for a canonical signature.
func Selector(sig string) [4]byte {
	var sel [4]byte
	copy(sel[:], Keccak256([]byte(sig)))
	return sel
}

// SelectorHex returns the selector for sig as a 0x-prefixed hex string.
func SelectorHex(sig string) string {
	sel := Selector(sig)
	return "0x" + hex.EncodeToString(sel[:])
}

// EventTopic returns topic0 for a canonical event signature.
func EventTopic(sig string) common.Hash {
	return common.BytesToHash(Keccak256([]byte(sig)))
}

// AddressTopic left-pads addr into a 32-byte topic word, the form indexed
// address parameters take in a log.
func AddressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), wordSize))
}

// EncodeBalanceOf builds calldata for balanceOf(account).
func EncodeBalanceOf(account common.Address) []byte {
	args, err := balanceOfInputs.Pack(account)
	if err != nil {
		// an address always packs
		panic(err)
	}
	return append(BalanceOfSelector[:], args...)
}

// DecodeBalance decodes the return payload of balanceOf. The payload must be
// exactly one 32-byte word.
func DecodeBalance(data []byte) (*big.Int, error) {
	if len(data) != wordSize {
		return nil, &DecodeError{What: "balanceOf result", Reason: fmt.Sprintf("expected %d bytes, got %d", wordSize, len(data))}
	}
	out, err := balanceOutputs.Unpack(data)
	if err != nil {
		return nil, &DecodeError{What: "balanceOf result", Reason: err.Error()}
	}
	return out[0].(*big.Int), nil
}

// EncodeTransfer builds calldata for transfer(to, amount). amount must fit
// in a uint256.
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	if err := checkUint256(amount); err != nil {
		return nil, err
	}
	args, err := transferInputs.Pack(to, amount)
	if err != nil {
		return nil, fmt.Errorf("packing transfer: %w", err)
	}
	return append(TransferSelector[:], args...), nil
}

// DecodeTransferCall is the inverse of EncodeTransfer.
func DecodeTransferCall(data []byte) (common.Address, *big.Int, error) {
	if len(data) != 4+2*wordSize {
		return common.Address{}, nil, &DecodeError{What: "transfer call", Reason: fmt.Sprintf("expected %d bytes, got %d", 4+2*wordSize, len(data))}
	}
	if [4]byte(data[:4]) != TransferSelector {
		return common.Address{}, nil, &DecodeError{What: "transfer call", Reason: "selector mismatch"}
	}
	out, err := transferInputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, &DecodeError{What: "transfer call", Reason: err.Error()}
	}
	return out[0].(common.Address), out[1].(*big.Int), nil
}

// DecodeTransferEvent decodes a Transfer(address indexed, address indexed,
// uint256) log. Any other shape is a *DecodeError.
func DecodeTransferEvent(log types.Log) (TransferEvent, error) {
	if len(log.Topics) != 3 {
		return TransferEvent{}, &DecodeError{What: "Transfer log", Reason: fmt.Sprintf("expected 3 topics, got %d", len(log.Topics))}
	}
	if log.Topics[0] != TransferTopic {
		return TransferEvent{}, &DecodeError{What: "Transfer log", Reason: "topic0 " + log.Topics[0].Hex() + " is not Transfer"}
	}
	if len(log.Data) != wordSize {
		return TransferEvent{}, &DecodeError{What: "Transfer log", Reason: fmt.Sprintf("expected %d data bytes, got %d", wordSize, len(log.Data))}
	}
	out, err := transferData.Unpack(log.Data)
	if err != nil {
		return TransferEvent{}, &DecodeError{What: "Transfer log", Reason: err.Error()}
	}
	return TransferEvent{
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:      out[0].(*big.Int),
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
	}, nil
}

func checkUint256(n *big.Int) error {
	switch {
	case n == nil:
		return fmt.Errorf("amount is required")
	case n.Sign() < 0:
		return fmt.Errorf("amount %s is negative", n)
	case n.Cmp(maxUint256) > 0:
		return fmt.Errorf("amount %s overflows uint256", n)
	}
	return nil
}
