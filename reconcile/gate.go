// Package reconcile implements the reconciliation protocol (spec.md §4.5)
// and the Gate circuit breaker that trips the engine into degraded mode
// when reconciliation keeps failing.
//
// Gate is grounded on risk/circuit_breaker.go's trip/cooldown/reset state
// machine from the teacher repo, repurposed from a loss-streak breaker
// into a reconciliation-failure breaker: it trips on repeated failed
// reconciliation passes (no client for a venue, or a state report that
// could not be obtained) rather than repeated losing trades. A pass that
// finds and converges discrepancies counts as a success.
package reconcile

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Gate halts new order submission once reconciliation has failed enough
// times in a row, and resets automatically after a cooldown window.
type Gate struct {
	mu sync.Mutex

	maxConsecutiveFailures int
	cooldown               time.Duration

	consecutiveFailures int
	tripped             bool
	trippedAt           time.Time
	reason              string
}

// NewGate builds a Gate that trips after maxConsecutiveFailures
// reconciliation failures in a row and stays tripped for cooldown.
func NewGate(maxConsecutiveFailures int, cooldown time.Duration) *Gate {
	return &Gate{
		maxConsecutiveFailures: maxConsecutiveFailures,
		cooldown:               cooldown,
	}
}

// Allow reports whether new order submission should proceed. If the gate
// was tripped and the cooldown has elapsed, it resets and allows.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tripped {
		if time.Since(g.trippedAt) > g.cooldown {
			g.tripped = false
			g.consecutiveFailures = 0
			log.Info().Msg("reconciliation gate reset after cooldown")
			return true
		}
		return false
	}
	return true
}

// RecordFailure records a failed reconciliation pass, tripping the gate
// once maxConsecutiveFailures is reached.
func (g *Gate) RecordFailure(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFailures++
	if g.consecutiveFailures >= g.maxConsecutiveFailures && !g.tripped {
		g.tripped = true
		g.trippedAt = time.Now()
		g.reason = reason
		log.Error().
			Str("reason", reason).
			Int("consecutive_failures", g.consecutiveFailures).
			Msg("reconciliation gate tripped")
	}
}

// RecordSuccess clears the consecutive-failure counter.
func (g *Gate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFailures = 0
}

// Tripped reports the gate's current tripped state and, if tripped, the
// reason it last tripped for.
func (g *Gate) Tripped() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped, g.reason
}
