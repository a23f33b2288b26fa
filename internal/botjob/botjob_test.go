package botjob

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/botstrat"
	"github.com/balootlabs/baloot/internal/game"
)

// memBroker mimics the Redis list semantics in-process.
type memBroker struct {
	mu      sync.Mutex
	jobs    map[string]chan []byte
	replies map[string]chan []byte
}

func newMemBroker() *memBroker {
	return &memBroker{jobs: make(map[string]chan []byte), replies: make(map[string]chan []byte)}
}

func (b *memBroker) queue(m map[string]chan []byte, key string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := m[key]
	if !ok {
		ch = make(chan []byte, 16)
		m[key] = ch
	}
	return ch
}

func (b *memBroker) PushJob(_ context.Context, difficulty string, payload []byte) error {
	b.queue(b.jobs, difficulty) <- payload
	return nil
}

func (b *memBroker) PopJob(ctx context.Context, difficulty string, timeout time.Duration) ([]byte, error) {
	select {
	case raw := <-b.queue(b.jobs, difficulty):
		return raw, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *memBroker) PushReply(_ context.Context, jobID string, payload []byte) error {
	b.queue(b.replies, jobID) <- payload
	return nil
}

func (b *memBroker) WaitReply(ctx context.Context, jobID string, timeout time.Duration) ([]byte, error) {
	select {
	case raw := <-b.queue(b.replies, jobID):
		return raw, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func leadSnapshot(viewer baloot.Seat) game.Snapshot {
	return game.Snapshot{
		Viewer: viewer,
		Round: &game.RoundView{
			Turn: viewer,
			Bid:  &game.Bid{Mode: baloot.Sun},
			Hand: []baloot.Card{
				baloot.NewCard(baloot.Spades, baloot.Ace),
				baloot.NewCard(baloot.Hearts, baloot.Seven),
			},
		},
	}
}

func TestNilBrokerDecidesLocally(t *testing.T) {
	o := NewOrchestrator(zerolog.Nop(), nil, botstrat.Medium, time.Second)
	a, _, err := o.Decide(context.Background(), leadSnapshot(0), []game.ActionKind{game.ActionPlay})
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, a.Kind)
	assert.Zero(t, o.Misses(), "running without a broker is not a miss")
}

func TestWorkerAnswersJob(t *testing.T) {
	broker := newMemBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(zerolog.Nop(), broker, botstrat.Hard)
	go w.Run(ctx)

	o := NewOrchestrator(zerolog.Nop(), broker, botstrat.Hard, 5*time.Second)
	a, _, err := o.Decide(ctx, leadSnapshot(2), []game.ActionKind{game.ActionPlay})
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, a.Kind)
	assert.NotZero(t, a.CardID)
}

func TestDeadlineFallsBackToLocal(t *testing.T) {
	// No worker is consuming the queue; the orchestrator must still
	// answer inside its deadline.
	o := NewOrchestrator(zerolog.Nop(), newMemBroker(), botstrat.Medium, 50*time.Millisecond)

	start := time.Now()
	a, _, err := o.Decide(context.Background(), leadSnapshot(1), []game.ActionKind{game.ActionPlay})
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, a.Kind)
	assert.Less(t, time.Since(start), time.Second)
	assert.EqualValues(t, 1, o.Misses())
}

func TestWorkerReasoningReachesCaller(t *testing.T) {
	broker := newMemBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A hand-rolled worker that always answers with table talk.
	go func() {
		raw, err := broker.PopJob(ctx, string(botstrat.Easy), 5*time.Second)
		if err != nil || raw == nil {
			return
		}
		var job Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return
		}
		payload, _ := json.Marshal(Reply{
			JobID:     job.ID,
			Action:    game.Action{Kind: game.ActionPlay, CardID: 1},
			Reasoning: "leading the boss",
		})
		broker.PushReply(ctx, job.ID, payload)
	}()

	o := NewOrchestrator(zerolog.Nop(), broker, botstrat.Easy, 5*time.Second)
	a, say, err := o.Decide(ctx, leadSnapshot(0), []game.ActionKind{game.ActionPlay})
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, a.Kind)
	assert.Equal(t, "leading the boss", say)
}

func TestJobsRouteBySeatDifficulty(t *testing.T) {
	broker := newMemBroker()
	o := NewOrchestrator(zerolog.Nop(), broker, botstrat.Easy, 50*time.Millisecond)

	snap := leadSnapshot(1)
	snap.Players[1] = game.PlayerView{Name: "Bot 2", IsBot: true, Difficulty: "hard"}

	// No worker consumes the queue, so the local fallback answers; the
	// job itself must still have landed on the seat's own queue.
	_, _, err := o.Decide(context.Background(), snap, []game.ActionKind{game.ActionPlay})
	require.NoError(t, err)

	raw, err := broker.PopJob(context.Background(), "hard", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, raw, "job should route by the seat's difficulty")
	var job Job
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, "hard", job.Difficulty)
	assert.Equal(t, 1, job.Seat)
}

type garbageBroker struct{ *memBroker }

func (b *garbageBroker) WaitReply(context.Context, string, time.Duration) ([]byte, error) {
	return []byte("{"), nil
}

func TestMalformedReplyFallsBackToLocal(t *testing.T) {
	broker := &garbageBroker{newMemBroker()}
	o := NewOrchestrator(zerolog.Nop(), broker, botstrat.Medium, time.Second)
	a, _, err := o.Decide(context.Background(), leadSnapshot(3), []game.ActionKind{game.ActionPlay})
	require.NoError(t, err)
	assert.Equal(t, game.ActionPlay, a.Kind)
}

func TestWorkerSkipsMalformedJob(t *testing.T) {
	broker := newMemBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(zerolog.Nop(), broker, botstrat.Medium)
	go w.Run(ctx)

	require.NoError(t, broker.PushJob(ctx, string(botstrat.Medium), []byte("not json")))

	// The queue drains without a reply appearing anywhere.
	time.Sleep(100 * time.Millisecond)
	raw, err := broker.PopJob(ctx, string(botstrat.Medium), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestWorkerDropsStaleJob(t *testing.T) {
	broker := newMemBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(zerolog.Nop(), broker, botstrat.Medium)
	go w.Run(ctx)

	job := Job{
		ID:       "stale-1",
		Seat:     0,
		Snapshot: leadSnapshot(0),
		Allowed:  []game.ActionKind{game.ActionPlay},
		Deadline: time.Now().Add(-time.Second).UnixMilli(),
	}
	payload, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, broker.PushJob(ctx, string(botstrat.Medium), payload))

	// The server stopped waiting before the worker popped this job, so
	// the worker must not answer it.
	raw, err := broker.WaitReply(ctx, job.ID, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, raw)
}
