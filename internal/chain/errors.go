package chain

import "fmt"

// RPCError is the single failure type surfaced by Client. It covers the
// transport (refused connections, timeouts), the HTTP layer (non-2xx), the
// envelope (malformed JSON) and JSON-RPC error objects.
type RPCError struct {
	Method string
	Code   int // JSON-RPC error code; 0 when the failure happened below JSON-RPC
	Status int // HTTP status when the endpoint answered with a non-2xx
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }
