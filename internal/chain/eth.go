package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.callInto(ctx, &n, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// ChainID returns the chain's ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.callInto(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

// GasPrice returns the node's suggested legacy gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var gp hexutil.Big
	if err := c.callInto(ctx, &gp, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return gp.ToInt(), nil
}

// PendingNonce returns the transaction count of address including
// transactions still sitting in the node's pool.
func (c *Client) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	var n hexutil.Uint64
	if err := c.callInto(ctx, &n, "eth_getTransactionCount", address, "pending"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// CallContract runs a read-only call against the latest block and returns
// the raw return data.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	msg := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if err := c.callInto(ctx, &out, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// SendRawTransaction broadcasts a signed, serialized transaction.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.callInto(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// LogFilter selects logs for GetLogs. Topics follows eth_getLogs positional
// semantics: a nil entry matches anything, several hashes in one position
// match any of them.
type LogFilter struct {
	Address   common.Address
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

func (f LogFilter) toArg() map[string]any {
	arg := map[string]any{
		"address":   f.Address,
		"fromBlock": hexutil.Uint64(f.FromBlock),
		"toBlock":   hexutil.Uint64(f.ToBlock),
	}
	if len(f.Topics) > 0 {
		topics := make([]any, len(f.Topics))
		for i, pos := range f.Topics {
			switch len(pos) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = pos[0]
			default:
				topics[i] = pos
			}
		}
		arg["topics"] = topics
	}
	return arg
}

// rpcLog mirrors the eth_getLogs wire shape. types.Log's own decoder insists
// on fields some nodes omit, so logs are decoded here and converted.
type rpcLog struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	TxHash      common.Hash    `json:"transactionHash"`
	TxIndex     hexutil.Uint   `json:"transactionIndex"`
	LogIndex    hexutil.Uint   `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

// GetLogs queries event logs matching filter, in the order the node returns them.
func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]types.Log, error) {
	var raw []rpcLog
	if err := c.callInto(ctx, &raw, "eth_getLogs", filter.toArg()); err != nil {
		return nil, err
	}

	logs := make([]types.Log, 0, len(raw))
	for _, l := range raw {
		logs = append(logs, types.Log{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: uint64(l.BlockNumber),
			BlockHash:   l.BlockHash,
			TxHash:      l.TxHash,
			TxIndex:     uint(l.TxIndex),
			Index:       uint(l.LogIndex),
			Removed:     l.Removed,
		})
	}
	return logs, nil
}

// Receipt is the on-chain receipt of a mined transaction.
type Receipt struct {
	Hash        common.Hash
	Status      uint64 // 1 = success, 0 = reverted; meaningful only when HasStatus
	HasStatus   bool   // false for pre-Byzantium receipts, which carry a state root instead
	BlockNumber uint64
	GasUsed     uint64
}

// TransactionReceipt fetches the receipt for hash.
// Returns nil, nil if the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	raw, err := c.Call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil // still pending
	}

	var r struct {
		Status      *hexutil.Uint64 `json:"status"`
		BlockNumber hexutil.Uint64 `json:"blockNumber"`
		GasUsed     hexutil.Uint64 `json:"gasUsed"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &RPCError{Method: "eth_getTransactionReceipt", Err: fmt.Errorf("parsing receipt: %w", err)}
	}
	receipt := &Receipt{
		Hash:        hash,
		BlockNumber: uint64(r.BlockNumber),
		GasUsed:     uint64(r.GasUsed),
	}
	if r.Status != nil {
		receipt.Status = uint64(*r.Status)
		receipt.HasStatus = true
	}
	return receipt, nil
}

// WaitForReceipt polls every interval until the transaction is mined or ctx
// expires. Returns an error if the receipt reports a revert; a receipt without
// a status is returned as is.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			if receipt.HasStatus && receipt.Status == 0 {
				return receipt, fmt.Errorf("transaction reverted (hash: %s)", hash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
