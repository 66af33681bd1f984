// check-balances: queries the token balance of a set of addresses through
// every configured endpoint in parallel and prints a summary table, flagging
// endpoints that disagree.
//
// Run from the module root:
//
//	ERC20_RPC_URLS=https://a,https://b go run ./scripts/check-balances 0xabc... 0xdef...
package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/erc20/erc20"
	"github.com/Mohsinsiddi/erc20/internal/chain"
	"github.com/Mohsinsiddi/erc20/internal/config"
	"github.com/Mohsinsiddi/erc20/internal/ui"
)

// ── config ────────────────────────────────────────────────────────────────────

var defaultAddresses = []string{
	"0xEB2fE8872A6f1eDb70a2632EA1f869AB131532f6",
}

const rpcTimeout = 12 * time.Second

// ── types ─────────────────────────────────────────────────────────────────────

type result struct {
	endpoint string
	address  string
	balance  string
	err      string
}

// ── main ──────────────────────────────────────────────────────────────────────

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		os.Exit(1)
	}

	addresses := os.Args[1:]
	if len(addresses) == 0 {
		addresses = defaultAddresses
	}

	hc := chain.NewHTTPClient(chain.WithTimeout(rpcTimeout))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []result
	)

	for _, url := range cfg.RPCURLs {
		w, err := erc20.New(erc20.Config{
			RPC:      url,
			ChainID:  cfg.ChainID,
			Contract: common.HexToAddress(cfg.Contract),
		}, erc20.WithHTTPClient(hc))
		if err != nil {
			fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
			os.Exit(1)
		}

		for _, addr := range addresses {
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
				defer cancel()

				r := result{endpoint: url, address: ui.TruncateAddr(addr), balance: "—"}
				if bal, err := w.Balance(ctx, addr); err != nil {
					r.err = shortErr(err)
				} else {
					r.balance = bal.String()
				}

				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}()
		}
	}

	wg.Wait()

	printTable(results)
}

// ── output ────────────────────────────────────────────────────────────────────

func printTable(results []result) {
	slices.SortFunc(results, func(a, b result) int {
		if c := strings.Compare(a.address, b.address); c != 0 {
			return c
		}
		return strings.Compare(a.endpoint, b.endpoint)
	})

	// Balances seen per address across healthy endpoints.
	seen := make(map[string]map[string]bool)
	for _, r := range results {
		if r.err != "" {
			continue
		}
		if seen[r.address] == nil {
			seen[r.address] = make(map[string]bool)
		}
		seen[r.address][r.balance] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ADDRESS\tENDPOINT\tBALANCE\tNOTE")
	fmt.Fprintln(w, strings.Repeat("-", 14)+"\t"+
		strings.Repeat("-", 30)+"\t"+
		strings.Repeat("-", 24)+"\t"+
		strings.Repeat("-", 12))

	lastAddr := ""
	for _, r := range results {
		if r.address != lastAddr {
			if lastAddr != "" {
				fmt.Fprintln(w, "\t\t\t") // blank separator between addresses
			}
			lastAddr = r.address
		}
		note := r.err
		if note == "" && len(seen[r.address]) > 1 {
			note = "endpoints disagree"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.address, r.endpoint, r.balance, note)
	}
	w.Flush()
}

// ── helpers ───────────────────────────────────────────────────────────────────

func shortErr(err error) string {
	s := err.Error()
	if len(s) > 30 {
		return s[:30] + "…"
	}
	return s
}
