// Package erc20 is a small client for one ERC20 token contract on an
// EVM-compatible chain. A Wallet reads balances, sends transfer
// transactions and watches the contract for incoming transfers.
//
// # Concurrency
//
// Balance, Pay and WaitMined are blocking single round trips (or a short
// sequence of them) and may be called concurrently on one Wallet. Pay reads
// the sender's pending nonce right before signing and never caches it, so
// concurrent Pay calls with the same key can collide; serialize them if
// that matters.
//
// Accept runs the transfer watcher on the calling goroutine until ctx is
// cancelled or polling fails for good. Polling and callback delivery are
// strictly sequential: the callback is never invoked concurrently with
// itself, and transfers arrive in (block, log index) order. Run Accept on its
// own goroutine, or use Stream to receive transfers over a channel.
//
// # Errors
//
// Endpoint failures are *RPCError, malformed on-chain data is *DecodeError,
// bad keys are *SigningError, and caller mistakes (malformed addresses,
// negative amounts, an empty address set) match ErrInvalidArgument.
package erc20
