package rpc

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

// ErrNoEndpoint is returned when the pool has nothing usable to hand out.
var ErrNoEndpoint = errors.New("no RPC endpoint available")

// Strategy defines how an endpoint is selected.
type Strategy string

const (
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round-robin"
	StrategyFailover   Strategy = "failover"
	StrategyFastest    Strategy = "fastest"

	// Discard nodes more than this many blocks behind the best.
	staleBlockThreshold = 3
)

// ParseStrategy validates a strategy name. Empty means random.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyRandom, nil
	case StrategyRandom, StrategyRoundRobin, StrategyFailover, StrategyFastest:
		return st, nil
	}
	return "", fmt.Errorf("unknown pool strategy %q", s)
}

// Endpoint represents a single RPC endpoint with its measured attributes.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool // meaningful only when Checked == true
	Checked     bool // true once the endpoint has been probed or marked
}

// Pool hands out upstream URLs according to a Strategy. It is safe for
// concurrent use.
type Pool struct {
	strategy Strategy

	mu        sync.Mutex
	endpoints []Endpoint
	rrIndex   int
}

// NewPool builds a pool over urls. Blank and duplicate URLs are dropped;
// if nothing remains ErrNoEndpoint is returned.
func NewPool(urls []string, strategy Strategy) (*Pool, error) {
	if strategy == "" {
		strategy = StrategyRandom
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(urls))
	var endpoints []Endpoint
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		endpoints = append(endpoints, Endpoint{URL: u})
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoint
	}
	return &Pool{strategy: strategy, endpoints: endpoints}, nil
}

// Strategy returns the pool's selection strategy.
func (p *Pool) Strategy() Strategy { return p.strategy }

// Endpoints returns a snapshot of the pool's endpoints in configuration order.
func (p *Pool) Endpoints() []Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Endpoint(nil), p.endpoints...)
}

// Pick selects one URL.
func (p *Pool) Pick() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.strategy {
	case StrategyRoundRobin:
		return p.pickRoundRobin()
	case StrategyFailover:
		return p.pickFailover()
	case StrategyFastest:
		return p.pickFastest()
	default:
		return p.pickRandom()
	}
}

// MarkDown excludes url from selection until the next Probe finds it healthy.
func (p *Pool) MarkDown(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.endpoints {
		if p.endpoints[i].URL == url {
			p.endpoints[i].Checked = true
			p.endpoints[i].Healthy = false
		}
	}
}

func (p *Pool) update(results []Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	byURL := make(map[string]Endpoint, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}
	for i := range p.endpoints {
		if r, ok := byURL[p.endpoints[i].URL]; ok {
			r.Checked = true
			p.endpoints[i] = r
		}
	}
}

func (p *Pool) pickRandom() (string, error) {
	healthy := healthyEndpoints(p.endpoints)
	if len(healthy) == 0 {
		return "", ErrNoEndpoint
	}
	return healthy[rand.IntN(len(healthy))].URL, nil
}

// pickRoundRobin cycles through all healthy endpoints.
func (p *Pool) pickRoundRobin() (string, error) {
	healthy := healthyEndpoints(p.endpoints)
	if len(healthy) == 0 {
		return "", ErrNoEndpoint
	}
	idx := p.rrIndex % len(healthy)
	p.rrIndex = (idx + 1) % len(healthy)
	return healthy[idx].URL, nil
}

// pickFailover returns the first endpoint in configuration order that is not
// known to be down.
func (p *Pool) pickFailover() (string, error) {
	healthy := healthyEndpoints(p.endpoints)
	if len(healthy) == 0 {
		return "", ErrNoEndpoint
	}
	return healthy[0].URL, nil
}

// pickFastest scores probed endpoints by latency and block recency. Without
// probe data it behaves like failover.
func (p *Pool) pickFastest() (string, error) {
	var bestBlock uint64
	for _, e := range p.endpoints {
		if e.BlockNumber > bestBlock {
			bestBlock = e.BlockNumber
		}
	}

	candidates := healthyEndpoints(p.endpoints)
	if len(candidates) == 0 {
		return "", ErrNoEndpoint
	}

	var winner *Endpoint
	var bestScore float64
	for _, e := range candidates {
		if bestBlock > 0 && bestBlock-e.BlockNumber > staleBlockThreshold {
			continue
		}
		s := score(e, bestBlock)
		if winner == nil || s > bestScore {
			winner = e
			bestScore = s
		}
	}
	if winner == nil {
		return "", ErrNoEndpoint
	}
	return winner.URL, nil
}

// --- scoring ---

func score(e *Endpoint, bestBlock uint64) float64 {
	var s float64

	// Latency score: higher = faster.
	if ms := e.Latency.Milliseconds(); ms > 0 {
		s += 1000.0 / float64(ms)
	}

	// Block recency bonus: loses 1 point per block behind.
	if bestBlock > 0 {
		s += float64(10) - float64(bestBlock-e.BlockNumber)
	}
	return s
}

// healthyEndpoints returns endpoints eligible for selection: everything not
// explicitly known to be down.
func healthyEndpoints(endpoints []Endpoint) []*Endpoint {
	var out []*Endpoint
	for i := range endpoints {
		e := &endpoints[i]
		if !e.Checked || e.Healthy {
			out = append(out, e)
		}
	}
	return out
}
