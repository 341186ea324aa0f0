// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mindroom-ai/mindroom/lib/clock"
	"github.com/mindroom-ai/mindroom/lib/ref"
)

// limiterSweepInterval is how often stale limiter entries are pruned.
const limiterSweepInterval = time.Minute

// limiterIdleTTL is how long an unused key keeps its token bucket.
const limiterIdleTTL = 10 * time.Minute

// limiterKey scopes a token bucket to one requester talking to one
// agent in one room. Scoping per requester keeps a chatty user from
// starving everyone else's replies.
type limiterKey struct {
	agent     string
	requester string
	room      string
}

type limiterEntry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter bounds reply generation per (agent, requester, room). A
// single mutex guards the map; reply decisions are far rarer than
// messages, so contention is not a concern.
type Limiter struct {
	perMinute float64
	burst     int
	clk       clock.Clock

	mu      sync.Mutex
	entries map[limiterKey]*limiterEntry
}

// NewLimiter allows perMinute sustained replies with the given burst
// per key. nil clk uses the real clock.
func NewLimiter(perMinute float64, burst int, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{
		perMinute: perMinute,
		burst:     burst,
		clk:       clk,
		entries:   make(map[limiterKey]*limiterEntry),
	}
}

// Allow reports whether one more reply may be generated now.
func (l *Limiter) Allow(agent string, requester ref.UserID, room ref.RoomID) bool {
	key := limiterKey{agent: agent, requester: requester.String(), room: room.String()}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{
			bucket: rate.NewLimiter(rate.Limit(l.perMinute)/60.0, l.burst),
		}
		l.entries[key] = entry
	}
	entry.lastSeen = l.clk.Now()
	l.mu.Unlock()

	return entry.bucket.Allow()
}

// Prune drops entries idle longer than maxIdle and returns how many
// were removed.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	cutoff := l.clk.Now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.entries {
		// An entry idle exactly maxIdle is stale too.
		if !entry.lastSeen.After(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Run sweeps stale entries until the context is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := l.clk.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(limiterIdleTTL)
		}
	}
}
