package contract

import "fmt"

// DecodeError reports on-chain data whose shape does not match the ERC-20
// ABI it was decoded against.
type DecodeError struct {
	What   string // what was being decoded, e.g. "Transfer log"
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", e.What, e.Reason)
}
