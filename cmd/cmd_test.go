package cmd

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/erc20/erc20"
)

const (
	testKey       = "0x81a93e5e2a5e3c8c1a1b5e69b2a06a9d1c7a4e3f4a6b0c3c7e5b2d0f1e9a8c71"
	testRecipient = "0xEB2fE8872A6f1eDb70a2632EA1f869AB131532f6"
)

// runCmd executes the root command with args and returns stdout. Flag
// variables are reset first since cobra keeps them between runs.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	selectorEvent, payWait, acceptTUI = false, false, false
	payKey, payTo, payAmount = "", "", ""
	logLevel = ""
	cfg, log, met = nil, nil, nil
	for _, name := range []string{"help", "version"} {
		if f := rootCmd.Flags().Lookup(name); f != nil {
			_ = f.Value.Set("false")
		}
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// rpcMock answers JSON-RPC methods from a fixed table and records every
// method it was asked for.
type rpcMock struct {
	mu      sync.Mutex
	results map[string]any
	seen    []string
	raw     hexutil.Bytes
}

func newRPCMock(t *testing.T, results map[string]any) (*rpcMock, *httptest.Server) {
	t.Helper()
	m := &rpcMock{results: results}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		m.mu.Lock()
		m.seen = append(m.seen, req.Method)
		result, ok := m.results[req.Method]
		if req.Method == "eth_sendRawTransaction" {
			var raw hexutil.Bytes
			_ = json.Unmarshal(req.Params[0], &raw)
			m.raw = raw
			tx := new(types.Transaction)
			if err := tx.UnmarshalBinary(raw); err == nil {
				result, ok = tx.Hash(), true
			}
		}
		m.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return m, srv
}

func (m *rpcMock) sentTx(t *testing.T) *types.Transaction {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.raw, "no transaction was sent")
	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(m.raw))
	return tx
}

func TestVersionFlag(t *testing.T) {
	out, err := runCmd(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "erc20")
	assert.Contains(t, out, Version)
}

func TestBalanceCommand(t *testing.T) {
	_, srv := newRPCMock(t, map[string]any{
		"eth_call": "0x00000000000000000000000000000000000000000000000000000000019ff009",
	})
	t.Setenv("ERC20_RPC_URLS", srv.URL)

	out, err := runCmd(t, "balance", testRecipient)
	require.NoError(t, err)
	assert.Equal(t, "27258889\n", out)
}

func TestBalanceCommandRejectsBadAddress(t *testing.T) {
	_, srv := newRPCMock(t, nil)
	t.Setenv("ERC20_RPC_URLS", srv.URL)

	_, err := runCmd(t, "balance", "0x1234")
	assert.ErrorContains(t, err, "malformed address")
}

func TestBalanceCommandNeedsRPCURLs(t *testing.T) {
	t.Setenv("ERC20_RPC_URLS", "")

	_, err := runCmd(t, "balance", testRecipient)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERC20_RPC_URLS")
}

func TestBalanceCommandFailsOverToNextEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	mock, srv := newRPCMock(t, map[string]any{
		"eth_call": "0x00000000000000000000000000000000000000000000000000000000019ff009",
	})
	t.Setenv("ERC20_RPC_URLS", dead.URL+","+srv.URL)
	t.Setenv("ERC20_POOL_STRATEGY", "failover")

	out, err := runCmd(t, "balance", testRecipient)
	require.NoError(t, err)
	assert.Equal(t, "27258889\n", out)
	assert.Equal(t, []string{"eth_call"}, mock.seen)
}

func TestBalanceCommandAllEndpointsDown(t *testing.T) {
	a := httptest.NewServer(http.NotFoundHandler())
	a.Close()
	b := httptest.NewServer(http.NotFoundHandler())
	b.Close()
	t.Setenv("ERC20_RPC_URLS", a.URL+","+b.URL)
	t.Setenv("ERC20_POOL_STRATEGY", "failover")

	_, err := runCmd(t, "balance", testRecipient)
	var rpcErr *erc20.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "eth_call", rpcErr.Method)
}

func TestBalanceCommandDoesNotFailOverOnRPCError(t *testing.T) {
	first, srvA := newRPCMock(t, nil)
	second, srvB := newRPCMock(t, map[string]any{"eth_call": "0x"})
	t.Setenv("ERC20_RPC_URLS", srvA.URL+","+srvB.URL)
	t.Setenv("ERC20_POOL_STRATEGY", "failover")

	_, err := runCmd(t, "balance", testRecipient)
	var rpcErr *erc20.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, []string{"eth_call"}, first.seen)
	assert.Empty(t, second.seen)
}

func TestPayCommandChainIDCheck(t *testing.T) {
	mock, srv := newRPCMock(t, map[string]any{
		"eth_chainId":             "0x1",
		"eth_getTransactionCount": "0x0",
		"eth_gasPrice":            "0x1",
	})
	t.Setenv("ERC20_RPC_URLS", srv.URL)
	t.Setenv("ERC20_CHAIN_ID", "4242")
	t.Setenv("ERC20_VERIFY_CHAIN_ID", "true")

	_, err := runCmd(t, "pay", "--key", testKey, "--to", testRecipient, "--amount", "1")
	assert.ErrorIs(t, err, erc20.ErrChainMismatch)
	assert.NotContains(t, mock.seen, "eth_sendRawTransaction")
}

func TestPayCommand(t *testing.T) {
	mock, srv := newRPCMock(t, map[string]any{
		"eth_getTransactionCount": "0x7",
		"eth_gasPrice":            "0x3b9aca00",
	})
	t.Setenv("ERC20_RPC_URLS", srv.URL)
	t.Setenv("ERC20_CHAIN_ID", "4242")
	t.Setenv("PAYER_KEY", testKey)

	out, err := runCmd(t, "pay", "--key", "env:PAYER_KEY", "--to", testRecipient, "--amount", "77000")
	require.NoError(t, err)

	tx := mock.sentTx(t)
	assert.Equal(t, tx.Hash().Hex()+"\n", out)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, int64(4242), tx.ChainId().Int64())
	assert.Equal(t, "0xa9059cbb", hexutil.Encode(tx.Data()[:4]))
}

func TestPayCommandFixedGasPrice(t *testing.T) {
	mock, srv := newRPCMock(t, map[string]any{
		"eth_getTransactionCount": "0x0",
	})
	t.Setenv("ERC20_RPC_URLS", srv.URL)
	t.Setenv("ERC20_GAS_PRICE", "5")
	t.Setenv("ERC20_GAS_LIMIT", "60000")

	_, err := runCmd(t, "pay", "--key", testKey, "--to", testRecipient, "--amount", "1")
	require.NoError(t, err)

	tx := mock.sentTx(t)
	assert.Equal(t, int64(5), tx.GasPrice().Int64())
	assert.Equal(t, uint64(60000), tx.Gas())
	assert.NotContains(t, mock.seen, "eth_gasPrice")
}

func TestPayCommandRejectsBadAmount(t *testing.T) {
	_, srv := newRPCMock(t, nil)
	t.Setenv("ERC20_RPC_URLS", srv.URL)

	_, err := runCmd(t, "pay", "--key", testKey, "--to", testRecipient, "--amount", "1.5")
	assert.ErrorContains(t, err, "invalid --amount")
}

func TestPayCommandMissingKeyEnv(t *testing.T) {
	_, srv := newRPCMock(t, nil)
	t.Setenv("ERC20_RPC_URLS", srv.URL)

	_, err := runCmd(t, "pay", "--key", "env:ERC20_TEST_NO_SUCH_KEY", "--to", testRecipient, "--amount", "1")
	assert.ErrorContains(t, err, "ERC20_TEST_NO_SUCH_KEY")
}

func TestHelpListsCommands(t *testing.T) {
	out, err := runCmd(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"balance", "pay", "accept", "key", "selector"} {
		assert.True(t, strings.Contains(out, name), "help should list %s", name)
	}
}

func TestPrintTransfer(t *testing.T) {
	var buf bytes.Buffer
	printTransfer(&buf, erc20.Transfer{
		Amount:   big.NewInt(77000),
		From:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Address:  common.HexToAddress(testRecipient),
		Block:    101,
		LogIndex: 2,
		TxHash:   common.HexToHash("0xabc"),
	})

	fields := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	require.Len(t, fields, 6)
	assert.Equal(t, "101", fields[0])
	assert.Equal(t, "2", fields[1])
	assert.Equal(t, common.HexToHash("0xabc").Hex(), fields[2])
	assert.True(t, strings.EqualFold(testRecipient, fields[4]))
	assert.Equal(t, "77000", fields[5])
}
