// Package sender defines the outbound channel capability. The three-outcome
// result contract is load-bearing: callers must be able to tell "retry later
// with an advisory delay" apart from "permanently failed" and "succeeded".
package sender

import (
	"context"
	"time"
)

// Result reports the outcome of one send attempt.
type Result struct {
	Success           bool
	RateLimited       bool
	Wait              time.Duration // advisory delay when RateLimited
	ExternalMessageID string        // channel-assigned id when Success
}

// ChannelSender delivers one message to one destination address.
// A returned error is a hard failure; RateLimited results are not errors.
type ChannelSender interface {
	Send(ctx context.Context, destination, text string) (Result, error)
}
