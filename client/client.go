// Package client defines the ExecutionClient capability boundary spec.md
// §4.3/§6 describes, and a LiveClient implementation for REST+websocket
// venues.
//
// Grounded on exec.Client (HTTP client with retry, SigType, dryRun flag)
// and execution/executor.go's executeLive retry loop from the teacher
// repo, generalized from one hardcoded Polymarket CLOB base URL into a
// venue-parameterized client built on resty instead of raw net/http, with
// order acks, rejects, working and cancel notices streamed over a
// gorilla/websocket connection instead of polled.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/axiom-trade/exengine/command"
	"github.com/axiom-trade/exengine/event"
	"github.com/axiom-trade/exengine/identifiers"
)

// ExecutionClient is the capability boundary between the engine and a
// specific venue. Implementations translate commands into venue wire
// calls and emit events back to the engine via the Events channel.
type ExecutionClient interface {
	Venue() identifiers.Venue

	Connect(ctx context.Context) error
	Disconnect() error

	SubmitOrder(ctx context.Context, o command.OrderSpec) error
	SubmitBracketOrder(ctx context.Context, b command.SubmitBracketOrder) error
	CancelOrder(ctx context.Context, c command.CancelOrder) error
	ModifyOrder(ctx context.Context, m command.ModifyOrder) error

	// StateReport asks the venue for its current view of the named orders,
	// used by the reconciliation protocol (spec §4.5).
	StateReport(ctx context.Context, clientOrderIDs []identifiers.ClientOrderID) (event.ExecutionStateReport, error)

	// Events is the channel the engine drains for this client's
	// asynchronously-arriving fills/acks/rejects/account pushes.
	Events() <-chan event.Event
}

// RetryPolicy controls how many times and how long a LiveClient waits
// between failed submission attempts, mirroring the teacher's
// ExecutorConfig.MaxRetries/backoff idiom.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the teacher's ExecutorConfig defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond}
}

// withRetry runs fn up to policy.MaxRetries+1 times with linear backoff,
// the same shape as executeLive's retry loop.
func withRetry(ctx context.Context, policy RetryPolicy, clientOrderID identifiers.ClientOrderID, fn func() error) error {
	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("client_order_id", string(clientOrderID)).
			Msg("order submission failed, retrying")

		if attempt < policy.MaxRetries {
			select {
			case <-time.After(policy.BaseDelay * time.Duration(attempt+1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("client: exhausted retries: %w", err)
}
