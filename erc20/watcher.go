package erc20

import (
	"bytes"
	"cmp"
	"context"
	"math/big"
	"slices"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Mohsinsiddi/erc20/internal/chain"
	"github.com/Mohsinsiddi/erc20/internal/contract"
)

// Transfer is one incoming token transfer delivered by Accept.
type Transfer struct {
	Amount   *big.Int
	From     common.Address
	Address  common.Address // recipient, one of the watched addresses
	Block    uint64
	LogIndex uint
	TxHash   common.Hash
}

// maxRetryDelay caps the backoff between failed poll attempts.
const maxRetryDelay = 30 * time.Second

// watcher owns the scan position for one Accept call. Nothing else touches
// it, so it needs no locking.
type watcher struct {
	rpc      *chain.Client
	contract common.Address
	interest map[common.Address]struct{}
	topics   []common.Hash

	interval time.Duration
	attempts uint
	maxRange uint64

	log     *zap.Logger
	metrics Metrics

	lastScanned uint64
}

func (w *Wallet) newWatcher(addresses []common.Address) *watcher {
	slices.SortFunc(addresses, func(a, b common.Address) int { return bytes.Compare(a[:], b[:]) })

	interest := make(map[common.Address]struct{}, len(addresses))
	topics := make([]common.Hash, 0, len(addresses))
	for _, a := range addresses {
		interest[a] = struct{}{}
		topics = append(topics, contract.AddressTopic(a))
	}

	return &watcher{
		rpc:      w.rpc,
		contract: w.cfg.Contract,
		interest: interest,
		topics:   topics,
		interval: w.opts.pollInterval,
		attempts: w.opts.pollAttempts,
		maxRange: w.opts.maxBlockRange,
		log:      w.log.With(zap.Stringer("contract", w.cfg.Contract)),
		metrics:  w.opts.metrics,
	}
}

// batch is the result of one successful poll.
type batch struct {
	from, to uint64 // inclusive; empty when to < from
	logs     []types.Log
}

func (w *watcher) run(ctx context.Context, deliver func(Transfer)) error {
	head, err := withRetry(ctx, w, "resolving head", func() (uint64, error) {
		return w.rpc.BlockNumber(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	w.lastScanned = head
	w.setLastScanned()
	w.log.Info("watcher started", zap.Uint64("head", head), zap.Int("addresses", len(w.interest)))

	for {
		if ctx.Err() != nil {
			w.log.Info("watcher stopped", zap.Uint64("last_scanned", w.lastScanned))
			return nil
		}

		b, err := withRetry(ctx, w, "polling", func() (batch, error) {
			return w.poll(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("watcher stopped", zap.Uint64("last_scanned", w.lastScanned))
				return nil
			}
			w.log.Error("watcher failed", zap.Uint64("last_scanned", w.lastScanned), zap.Error(err))
			return err
		}

		if b.to < b.from {
			if !sleep(ctx, w.interval) {
				w.log.Info("watcher stopped", zap.Uint64("last_scanned", w.lastScanned))
				return nil
			}
			continue
		}

		w.deliver(b, deliver)
		w.lastScanned = b.to
		w.setLastScanned()
	}
}

// poll fetches the next range of Transfer logs. It has no side effects on
// the watcher so it can be retried.
func (w *watcher) poll(ctx context.Context) (batch, error) {
	head, err := w.rpc.BlockNumber(ctx)
	if err != nil {
		return batch{}, err
	}
	from := w.lastScanned + 1
	if head < from {
		return batch{from: from, to: w.lastScanned}, nil
	}
	to := min(head, w.lastScanned+w.maxRange)

	logs, err := w.rpc.GetLogs(ctx, chain.LogFilter{
		Address:   w.contract,
		Topics:    [][]common.Hash{{contract.TransferTopic}, nil, w.topics},
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		return batch{}, err
	}
	return batch{from: from, to: to, logs: logs}, nil
}

func (w *watcher) deliver(b batch, fn func(Transfer)) {
	slices.SortStableFunc(b.logs, func(x, y types.Log) int {
		if c := cmp.Compare(x.BlockNumber, y.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(x.Index, y.Index)
	})

	for _, l := range b.logs {
		if l.Removed || l.Address != w.contract {
			continue
		}
		ev, err := contract.DecodeTransferEvent(l)
		if err != nil {
			w.log.Warn("skipping undecodable log",
				zap.Uint64("block", l.BlockNumber),
				zap.Uint("log_index", l.Index),
				zap.Stringer("tx", l.TxHash),
				zap.Error(err),
			)
			continue
		}
		if _, ok := w.interest[ev.To]; !ok {
			continue
		}

		w.log.Info("transfer received",
			zap.Stringer("to", ev.To),
			zap.Stringer("from", ev.From),
			zap.Stringer("amount", ev.Amount),
			zap.Uint64("block", ev.BlockNumber),
			zap.Uint("log_index", ev.LogIndex),
		)
		fn(Transfer{
			Amount:   ev.Amount,
			From:     ev.From,
			Address:  ev.To,
			Block:    ev.BlockNumber,
			LogIndex: ev.LogIndex,
			TxHash:   ev.TxHash,
		})
		if w.metrics != nil {
			w.metrics.IncDelivered()
		}
	}
}

// withRetry runs fn under the watcher's backoff policy.
func withRetry[T any](ctx context.Context, w *watcher, what string, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn, w.retryOptions(ctx, what)...)
}

func (w *watcher) retryOptions(ctx context.Context, what string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(w.attempts),
		retry.Delay(min(w.interval, time.Second)),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.log.Warn(what+" failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
			if w.metrics != nil {
				w.metrics.IncPollFailure()
			}
		}),
	}
}

func (w *watcher) setLastScanned() {
	if w.metrics != nil {
		w.metrics.SetLastScanned(w.lastScanned)
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
