// Package ratelimit enforces per-session, per-event-kind request caps.
// Counters live in Redis so limits hold across instances; when the store
// is unreachable the limiter degrades to process-local counters rather
// than blocking play.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/game"
)

// Kind names a limited event class.
type Kind string

const (
	KindQueueJoin Kind = "queue_join"
	KindPlay      Kind = "play"
	KindChat      Kind = "chat"
)

// Limit caps a kind at Max hits per Window.
type Limit struct {
	Max    int64
	Window time.Duration
}

// DefaultLimits returns the documented per-session buckets.
func DefaultLimits() map[Kind]Limit {
	return map[Kind]Limit{
		KindQueueJoin: {Max: 5, Window: time.Minute},
		KindPlay:      {Max: 30, Window: time.Minute},
		KindChat:      {Max: 20, Window: time.Minute},
	}
}

// Counter is the slice of the KV client the limiter needs.
type Counter interface {
	RateIncr(ctx context.Context, sessionID, kind string, window time.Duration) (int64, error)
}

// storeTimeout bounds how long an ingress handler waits on the shared
// store before falling back locally.
const storeTimeout = 200 * time.Millisecond

// Limiter checks request budgets. Safe for concurrent use.
type Limiter struct {
	logger  zerolog.Logger
	counter Counter
	limits  map[Kind]Limit

	mu    sync.Mutex
	local map[string]*localWindow
}

type localWindow struct {
	count int64
	reset time.Time
}

// New builds a limiter. A nil counter means local-only counting.
func New(logger zerolog.Logger, counter Counter, limits map[Kind]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{
		logger:  logger.With().Str("component", "ratelimit").Logger(),
		counter: counter,
		limits:  limits,
		local:   make(map[string]*localWindow),
	}
}

// Allow records one hit and returns RATE_LIMITED once the budget for the
// window is spent. Kinds without a configured limit are unmetered.
func (l *Limiter) Allow(ctx context.Context, sessionID string, kind Kind) error {
	limit, ok := l.limits[kind]
	if !ok {
		return nil
	}

	if l.counter != nil {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		n, err := l.counter.RateIncr(ctx, sessionID, string(kind), limit.Window)
		if err == nil {
			if n > limit.Max {
				return game.NewError(game.ErrRateLimited, "%s budget exhausted", kind)
			}
			return nil
		}
		l.logger.Warn().Err(err).Msg("rate store unreachable, using local counters")
	}

	return l.allowLocal(sessionID, kind, limit)
}

func (l *Limiter) allowLocal(sessionID string, kind Kind, limit Limit) error {
	key := sessionID + ":" + string(kind)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.local[key]
	if !ok || now.After(w.reset) {
		w = &localWindow{}
		l.local[key] = w
	}
	// Expiry slides with activity, matching the shared counter.
	w.reset = now.Add(limit.Window)
	w.count++
	if w.count > limit.Max {
		return game.NewError(game.ErrRateLimited, "%s budget exhausted", kind)
	}
	return nil
}
