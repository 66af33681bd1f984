package erc20

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Mohsinsiddi/erc20/internal/contract"
)

// fakeChain is an in-memory devnet holding one ERC20 token. It speaks just
// enough JSON-RPC for a Wallet. eth_getLogs ignores topic filters so that
// recipient filtering on the client side is exercised too.
type fakeChain struct {
	t       *testing.T
	chainID *big.Int
	token   common.Address

	mu       sync.Mutex
	head     uint64
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64 // mined
	pending  []*types.Transaction
	logs     []types.Log
	mined    map[common.Hash]uint64
	automine bool
	reverse  bool // answer eth_getLogs newest first

	calls       map[string]int
	failures    map[string]int // method -> remaining injected failures
	logRanges   [][2]uint64
	blockNumber chan struct{} // closed after the first eth_blockNumber
}

func newFakeChain(t *testing.T, chainID int64, token common.Address) (*fakeChain, *httptest.Server) {
	t.Helper()
	f := &fakeChain{
		t:           t,
		chainID:     big.NewInt(chainID),
		token:       token,
		head:        100,
		balances:    make(map[common.Address]*big.Int),
		nonces:      make(map[common.Address]uint64),
		mined:       make(map[common.Hash]uint64),
		automine:    true,
		calls:       make(map[string]int),
		failures:    make(map[string]int),
		blockNumber: make(chan struct{}),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeChain) fund(addr common.Address, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = big.NewInt(amount)
}

func (f *fakeChain) setAutomine(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.automine = on
}

func (f *fakeChain) setReverse(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverse = on
}

func (f *fakeChain) failNext(method string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = n
}

func (f *fakeChain) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) ranges() [][2]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.logRanges)
}

// advance adds empty blocks.
func (f *fakeChain) advance(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head += n
}

// addLog appends a raw log in a new block.
func (f *fakeChain) addLog(l types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	l.BlockNumber = f.head
	f.logs = append(f.logs, l)
}

// mine includes every pending transaction in one new block.
func (f *fakeChain) mine() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mineLocked()
}

func (f *fakeChain) mineLocked() {
	if len(f.pending) == 0 {
		return
	}
	f.head++
	var index uint
	for _, tx := range f.pending {
		from, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
		if err != nil {
			f.t.Errorf("fake chain: recovering sender: %v", err)
			continue
		}
		to, amount, err := contract.DecodeTransferCall(tx.Data())
		if err != nil {
			f.t.Errorf("fake chain: decoding transfer: %v", err)
			continue
		}
		f.nonces[from]++
		f.mined[tx.Hash()] = f.head

		bal := f.balanceLocked(from)
		if bal.Cmp(amount) < 0 {
			continue // reverted
		}
		bal.Sub(bal, amount)
		f.balanceLocked(to).Add(f.balanceLocked(to), amount)

		data := common.LeftPadBytes(amount.Bytes(), 32)
		f.logs = append(f.logs, types.Log{
			Address:     f.token,
			Topics:      []common.Hash{contract.TransferTopic, contract.AddressTopic(from), contract.AddressTopic(to)},
			Data:        data,
			BlockNumber: f.head,
			TxHash:      tx.Hash(),
			Index:       index,
		})
		index++
	}
	f.pending = nil
}

func (f *fakeChain) balanceLocked(a common.Address) *big.Int {
	b, ok := f.balances[a]
	if !ok {
		b = new(big.Int)
		f.balances[a] = b
	}
	return b
}

func (f *fakeChain) pendingNonceLocked(a common.Address) uint64 {
	n := f.nonces[a]
	for _, tx := range f.pending {
		if from, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx); err == nil && from == a {
			n++
		}
	}
	return n
}

type fakeRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (f *fakeChain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req fakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	result, rpcErr := f.handle(req)

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = map[string]any{"code": -32000, "message": rpcErr.Error()}
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

func (f *fakeChain) handle(req fakeRequest) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[req.Method]++
	if n := f.failures[req.Method]; n > 0 {
		f.failures[req.Method] = n - 1
		return nil, fmt.Errorf("injected failure")
	}

	switch req.Method {
	case "eth_chainId":
		return (*hexutil.Big)(f.chainID), nil

	case "eth_blockNumber":
		head := hexutil.Uint64(f.head)
		if f.calls[req.Method] == 1 {
			close(f.blockNumber)
		}
		return head, nil

	case "eth_gasPrice":
		return hexutil.Uint64(1_000_000_000), nil

	case "eth_getTransactionCount":
		var addr common.Address
		if err := json.Unmarshal(req.Params[0], &addr); err != nil {
			return nil, err
		}
		return hexutil.Uint64(f.pendingNonceLocked(addr)), nil

	case "eth_call":
		var msg struct {
			To   common.Address `json:"to"`
			Data hexutil.Bytes  `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &msg); err != nil {
			return nil, err
		}
		if msg.To != f.token {
			return hexutil.Bytes{}, nil
		}
		if len(msg.Data) != 36 || [4]byte(msg.Data[:4]) != contract.BalanceOfSelector {
			return nil, fmt.Errorf("execution reverted")
		}
		owner := common.BytesToAddress(msg.Data[4:])
		return hexutil.Bytes(common.LeftPadBytes(f.balanceLocked(owner).Bytes(), 32)), nil

	case "eth_sendRawTransaction":
		var raw hexutil.Bytes
		if err := json.Unmarshal(req.Params[0], &raw); err != nil {
			return nil, err
		}
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		from, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
		if err != nil {
			return nil, fmt.Errorf("invalid sender: %w", err)
		}
		if tx.ChainId().Cmp(f.chainID) != 0 {
			return nil, fmt.Errorf("wrong chain id %s", tx.ChainId())
		}
		if want := f.pendingNonceLocked(from); tx.Nonce() != want {
			return nil, fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), want)
		}
		if tx.To() == nil || *tx.To() != f.token {
			return nil, fmt.Errorf("unexpected destination")
		}
		f.pending = append(f.pending, tx)
		if f.automine {
			f.mineLocked()
		}
		return tx.Hash(), nil

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := json.Unmarshal(req.Params[0], &hash); err != nil {
			return nil, err
		}
		block, ok := f.mined[hash]
		if !ok {
			return nil, nil
		}
		return map[string]any{
			"transactionHash": hash,
			"status":          hexutil.Uint64(1),
			"blockNumber":     hexutil.Uint64(block),
			"gasUsed":         hexutil.Uint64(51_000),
		}, nil

	case "eth_getLogs":
		var filter struct {
			Address   common.Address `json:"address"`
			FromBlock hexutil.Uint64 `json:"fromBlock"`
			ToBlock   hexutil.Uint64 `json:"toBlock"`
		}
		if err := json.Unmarshal(req.Params[0], &filter); err != nil {
			return nil, err
		}
		f.logRanges = append(f.logRanges, [2]uint64{uint64(filter.FromBlock), uint64(filter.ToBlock)})

		out := []*types.Log{}
		for i := range f.logs {
			l := f.logs[i]
			if l.Address == filter.Address && l.BlockNumber >= uint64(filter.FromBlock) && l.BlockNumber <= uint64(filter.ToBlock) {
				out = append(out, &l)
			}
		}
		if f.reverse {
			slices.Reverse(out)
		}
		return out, nil
	}
	return nil, fmt.Errorf("method %s not supported", req.Method)
}
