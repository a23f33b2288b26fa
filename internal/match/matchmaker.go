// Package match forms rooms out of queued players. Queues are elo
// buckets in Redis ordered by join time; the sweep pairs the four eldest
// compatible entries, widening the acceptable bucket spread the longer
// the head of the queue has waited.
package match

import (
	"context"
	"encoding/json"
	rand "math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/randutil"
	"github.com/balootlabs/baloot/internal/registry"
	"github.com/balootlabs/baloot/internal/room"
)

const (
	sweepEvery = 500 * time.Millisecond
	tableSize  = 4

	// statsWindow is how many recent per-player waits feed the average
	// reported by Stats.
	statsWindow = 32
)

// buckets are the skill tiers, weakest first. Queue keys and the
// widening distance both work off the tier index.
var buckets = []string{"placement", "bronze", "silver", "gold", "master"}

// spreadFor maps head-of-queue wait to the allowed tier distance.
func spreadFor(wait time.Duration) int {
	switch {
	case wait < 5*time.Second:
		return 0
	case wait < 15*time.Second:
		return 1
	case wait < 30*time.Second:
		return 2
	default:
		return len(buckets)
	}
}

// bucketFor places a rating in its tier. Zero or negative means the
// player is unrated and sits in placement.
func bucketFor(elo int) int {
	switch {
	case elo <= 0:
		return 0
	case elo < 1200:
		return 1
	case elo < 1500:
		return 2
	case elo < 1800:
		return 3
	default:
		return 4
	}
}

func bucketName(b int) string {
	return buckets[b]
}

// Player is one queue entrant.
type Player struct {
	SessionID string    `json:"sid"`
	Name      string    `json:"name"`
	Elo       int       `json:"elo"`
	JoinedAt  time.Time `json:"at"`
}

// Queue is the slice of the KV client the matchmaker needs.
type Queue interface {
	QueueAdd(ctx context.Context, bucket, member string, score float64) error
	QueueRemove(ctx context.Context, bucket, member string) (bool, error)
	QueueRange(ctx context.Context, bucket string, min, max float64) ([]string, error)
	QueueLen(ctx context.Context, bucket string) (int64, error)
}

// Notifier delivers match_found to a session.
type Notifier interface {
	MatchFound(sessionID, roomID string, seat baloot.Seat)
}

// Options configures a matchmaker.
type Options struct {
	Logger   zerolog.Logger
	Clock    quartz.Clock
	Queue    Queue
	Registry *registry.Registry
	Notifier Notifier

	// NewRoomOptions supplies the template for rooms the matchmaker
	// creates (settings, bot driver, saver).
	NewRoomOptions func() room.Options

	// Seed drives seat shuffling; zero means time-based.
	Seed int64
}

// Matchmaker owns the queue sweep.
type Matchmaker struct {
	logger   zerolog.Logger
	clock    quartz.Clock
	queue    Queue
	registry *registry.Registry
	notifier Notifier
	newOpts  func() room.Options

	mu      sync.Mutex
	members map[string]memberRef // sessionID -> queue position
	waits   []time.Duration      // recent formation latencies
	rng     *rand.Rand
}

type memberRef struct {
	bucket string
	member string
}

// New builds a matchmaker.
func New(opts Options) *Matchmaker {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Queue == nil {
		opts.Queue = NewMemoryQueue()
	}
	if opts.NewRoomOptions == nil {
		opts.NewRoomOptions = func() room.Options { return room.Options{} }
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Matchmaker{
		logger:   opts.Logger.With().Str("component", "matchmaker").Logger(),
		clock:    opts.Clock,
		queue:    opts.Queue,
		registry: opts.Registry,
		notifier: opts.Notifier,
		newOpts:  opts.NewRoomOptions,
		members:  make(map[string]memberRef),
		rng:      randutil.New(seed),
	}
}

// Join enqueues a session. Joining twice refreshes nothing: the original
// entry keeps its place.
func (m *Matchmaker) Join(ctx context.Context, sessionID, name string, elo int) error {
	m.mu.Lock()
	if _, queued := m.members[sessionID]; queued {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	p := Player{SessionID: sessionID, Name: name, Elo: elo, JoinedAt: m.clock.Now().UTC()}
	member, err := json.Marshal(p)
	if err != nil {
		return err
	}
	bucket := bucketName(bucketFor(elo))
	if err := m.queue.QueueAdd(ctx, bucket, string(member), float64(p.JoinedAt.UnixMilli())); err != nil {
		return err
	}

	m.mu.Lock()
	m.members[sessionID] = memberRef{bucket: bucket, member: string(member)}
	m.mu.Unlock()
	m.logger.Debug().Str("session", sessionID).Str("bucket", bucket).Msg("queued")
	return nil
}

// Leave dequeues a session. Unknown sessions are a no-op.
func (m *Matchmaker) Leave(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	ref, ok := m.members[sessionID]
	delete(m.members, sessionID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := m.queue.QueueRemove(ctx, ref.bucket, ref.member)
	return err
}

// Queued reports whether the session is currently waiting.
func (m *Matchmaker) Queued(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[sessionID]
	return ok
}

// Stats is a point-in-time queue summary.
type Stats struct {
	Size    int
	AvgWait time.Duration
}

// QueueStats reports how many players are waiting and how long the last
// few formed matches kept theirs queued. A zero AvgWait means nothing
// has formed yet.
func (m *Matchmaker) QueueStats(ctx context.Context) Stats {
	var size int
	for b := range buckets {
		n, err := m.queue.QueueLen(ctx, bucketName(b))
		if err != nil {
			m.logger.Warn().Err(err).Msg("queue size scan failed")
			break
		}
		size += int(n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{Size: size}
	if len(m.waits) > 0 {
		var total time.Duration
		for _, w := range m.waits {
			total += w
		}
		s.AvgWait = total / time.Duration(len(m.waits))
	}
	return s
}

// Run sweeps the queue until the context ends.
func (m *Matchmaker) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

type entry struct {
	bucket int
	player Player
	member string
}

// Sweep attempts one round of match formation. Exported so tests (and
// the gateway, after a join) can trigger it without waiting a tick.
func (m *Matchmaker) Sweep(ctx context.Context) {
	entries := m.collect(ctx)
	for len(entries) >= tableSize {
		formed, rest := m.tryForm(ctx, entries)
		if !formed {
			return
		}
		entries = rest
	}
}

func (m *Matchmaker) collect(ctx context.Context) []entry {
	var entries []entry
	for b := range buckets {
		members, err := m.queue.QueueRange(ctx, bucketName(b), 0, float64(m.clock.Now().UnixMilli()))
		if err != nil {
			m.logger.Warn().Err(err).Msg("queue scan failed")
			return nil
		}
		for _, raw := range members {
			var p Player
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				// Poison entry; drop it.
				m.queue.QueueRemove(ctx, bucketName(b), raw)
				continue
			}
			entries = append(entries, entry{bucket: b, player: p, member: raw})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].player.JoinedAt.Before(entries[j].player.JoinedAt)
	})
	return entries
}

// tryForm seats the four eldest entries compatible with the queue head.
func (m *Matchmaker) tryForm(ctx context.Context, entries []entry) (bool, []entry) {
	anchor := entries[0]
	spread := spreadFor(m.clock.Since(anchor.player.JoinedAt))

	var picked []entry
	var rest []entry
	for _, e := range entries {
		if len(picked) < tableSize && abs(e.bucket-anchor.bucket) <= spread {
			picked = append(picked, e)
		} else {
			rest = append(rest, e)
		}
	}
	if len(picked) < tableSize {
		return false, nil
	}

	// Claim every entry; losing a claim means another sweep got there
	// first and we put the rest back for the next pass.
	var claimed []entry
	for _, e := range picked {
		ok, err := m.queue.QueueRemove(ctx, bucketName(e.bucket), e.member)
		if err != nil || !ok {
			continue
		}
		claimed = append(claimed, e)
	}
	if len(claimed) < tableSize {
		for _, e := range claimed {
			m.queue.QueueAdd(ctx, bucketName(e.bucket), e.member, float64(e.player.JoinedAt.UnixMilli()))
		}
		return false, nil
	}

	m.form(ctx, claimed)
	return true, rest
}

func (m *Matchmaker) form(ctx context.Context, picked []entry) {
	opts := m.newOpts()
	rm, err := m.registry.Create(opts)
	if err != nil {
		m.logger.Error().Err(err).Msg("room creation failed, requeueing players")
		for _, e := range picked {
			m.queue.QueueAdd(ctx, bucketName(e.bucket), e.member, float64(e.player.JoinedAt.UnixMilli()))
		}
		return
	}

	// Random seating so teams are not a function of queue order.
	m.mu.Lock()
	perm := randutil.Perm4(m.rng)
	for _, e := range picked {
		delete(m.members, e.player.SessionID)
		m.waits = append(m.waits, m.clock.Since(e.player.JoinedAt))
	}
	if len(m.waits) > statsWindow {
		m.waits = m.waits[len(m.waits)-statsWindow:]
	}
	m.mu.Unlock()

	for _, idx := range perm {
		p := picked[idx].player
		seat, err := rm.Join(p.SessionID, p.Name)
		if err != nil {
			m.logger.Error().Err(err).Str("session", p.SessionID).Msg("seating failed")
			continue
		}
		m.registry.Bind(p.SessionID, rm.ID())
		if m.notifier != nil {
			m.notifier.MatchFound(p.SessionID, rm.ID(), seat)
		}
	}
	m.logger.Info().Str("room_id", rm.ID()).Msg("match formed")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
