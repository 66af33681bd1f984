package config

import "time"

// Timeout constants used across cmd.
const (
	RPCSelectTimeout  = 10 * time.Second // pool probing before the fastest pick
	TxConfirmTimeout  = 3 * time.Minute  // pay --wait
	ReceiptPollPeriod = 2 * time.Second  // interval between receipt lookups
)
