package rpc

import (
	"context"
	"sync"
	"time"

	"github.com/Mohsinsiddi/erc20/internal/chain"
)

// probeTimeout bounds a single health check.
const probeTimeout = 5 * time.Second

// HealthCheck pings a single EVM RPC and returns whether it's healthy.
// A node is considered healthy if it answers eth_blockNumber within the probe
// timeout and its block is within staleBlockThreshold of bestBlock (pass 0 to
// skip the recency check).
func HealthCheck(ctx context.Context, url string, bestBlock uint64, opts ...chain.Option) (Endpoint, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	c := chain.NewEVMClient(url, opts...)
	start := time.Now()
	blockNum, err := c.BlockNumber(timeoutCtx)

	ep := Endpoint{
		URL:         url,
		Latency:     time.Since(start),
		BlockNumber: blockNum,
		Healthy:     err == nil,
		Checked:     true,
	}

	if err == nil && bestBlock > 0 && bestBlock > blockNum && bestBlock-blockNum > staleBlockThreshold {
		ep.Healthy = false
	}
	return ep, err
}

// Probe health-checks every endpoint in parallel, marks stale or failing
// ones down and returns the measurements in configuration order.
func (p *Pool) Probe(ctx context.Context, opts ...chain.Option) []Endpoint {
	endpoints := p.Endpoints()
	results := make([]Endpoint, len(endpoints))

	var wg sync.WaitGroup
	for i, e := range endpoints {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			results[idx], _ = HealthCheck(ctx, u, 0, opts...)
		}(i, e.URL)
	}
	wg.Wait()

	var bestBlock uint64
	for _, r := range results {
		if r.Healthy && r.BlockNumber > bestBlock {
			bestBlock = r.BlockNumber
		}
	}
	for i := range results {
		if results[i].Healthy && bestBlock-results[i].BlockNumber > staleBlockThreshold {
			results[i].Healthy = false
		}
	}

	p.update(results)
	return results
}
