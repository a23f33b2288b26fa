// Package botjob moves bot decisions onto a Redis work queue so heavier
// strategies can run in separate worker processes. The server side
// implements room.BotDriver: it publishes a job, waits briefly for a
// reply, and falls back to the in-process strategy when no worker
// answers in time.
package botjob

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/botstrat"
	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/gameid"
)

// DefaultDeadline bounds how long the server waits for a worker before
// deciding locally. It must stay well under the turn timer.
const DefaultDeadline = 3 * time.Second

// Job is one decision request on the wire. Deadline is absolute Unix
// milliseconds; a worker that pops the job after it has passed should
// drop it, the server has already decided locally by then.
type Job struct {
	ID         string            `json:"id"`
	Seat       int               `json:"seat"`
	Difficulty string            `json:"difficulty"`
	Snapshot   game.Snapshot     `json:"snapshot"`
	Allowed    []game.ActionKind `json:"allowedActions"`
	Deadline   int64             `json:"deadline"`
}

// Reply is a worker's answer. Reasoning, when present, is surfaced to
// the table as a bot speech bubble.
type Reply struct {
	JobID     string      `json:"jobId"`
	Action    game.Action `json:"action"`
	Reasoning string      `json:"reasoning,omitempty"`
}

// Broker is the slice of the KV client the orchestrator and worker use.
type Broker interface {
	PushJob(ctx context.Context, difficulty string, payload []byte) error
	PopJob(ctx context.Context, difficulty string, timeout time.Duration) ([]byte, error)
	PushReply(ctx context.Context, jobID string, payload []byte) error
	WaitReply(ctx context.Context, jobID string, timeout time.Duration) ([]byte, error)
}

// Orchestrator is the server-side BotDriver. A nil broker short-circuits
// straight to the local strategies, which is how single-process
// deployments run.
type Orchestrator struct {
	logger   zerolog.Logger
	broker   Broker
	locals   map[botstrat.Difficulty]*botstrat.Strategy
	fallback botstrat.Difficulty
	deadline time.Duration

	// misses counts decisions that degraded to the local strategy while
	// a broker was configured. A climbing count means the worker fleet
	// is down or too slow.
	misses int64
}

// NewOrchestrator builds a driver. Jobs route by the deciding seat's own
// difficulty; fallback covers seats that never got one.
func NewOrchestrator(logger zerolog.Logger, broker Broker, fallback botstrat.Difficulty, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	locals := make(map[botstrat.Difficulty]*botstrat.Strategy, 3)
	for _, d := range []botstrat.Difficulty{botstrat.Easy, botstrat.Medium, botstrat.Hard} {
		locals[d] = botstrat.New(d, time.Now().UnixNano())
	}
	return &Orchestrator{
		logger:   logger.With().Str("component", "botjob").Logger(),
		broker:   broker,
		locals:   locals,
		fallback: fallback,
		deadline: deadline,
	}
}

// difficultyFor picks the queue for a decision: the bot seat's own
// difficulty when the room set one, the server default otherwise.
func (o *Orchestrator) difficultyFor(snap game.Snapshot) botstrat.Difficulty {
	if snap.Viewer.Valid() {
		if d := snap.Players[snap.Viewer].Difficulty; d != "" {
			return botstrat.Parse(d)
		}
	}
	return o.fallback
}

// Decide publishes the decision as a job and waits for a worker. The
// second return is the worker's table talk, if any. Any failure along
// the way degrades to the local strategy rather than stalling the
// table.
func (o *Orchestrator) Decide(ctx context.Context, snap game.Snapshot, allowed []game.ActionKind) (game.Action, string, error) {
	diff := o.difficultyFor(snap)
	if o.broker == nil {
		return o.decideLocal(diff, snap, allowed)
	}

	job := Job{
		ID:         gameid.Generate(),
		Seat:       int(snap.Viewer),
		Difficulty: string(diff),
		Snapshot:   snap,
		Allowed:    allowed,
		Deadline:   time.Now().Add(o.deadline).UnixMilli(),
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return o.decideLocal(diff, snap, allowed)
	}
	if err := o.broker.PushJob(ctx, job.Difficulty, payload); err != nil {
		n := atomic.AddInt64(&o.misses, 1)
		o.logger.Warn().Err(err).Int64("misses", n).Msg("job publish failed, deciding locally")
		return o.decideLocal(diff, snap, allowed)
	}

	raw, err := o.broker.WaitReply(ctx, job.ID, o.deadline)
	if err != nil || raw == nil {
		n := atomic.AddInt64(&o.misses, 1)
		if err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Int64("misses", n).Msg("reply wait failed")
		}
		return o.decideLocal(diff, snap, allowed)
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil || reply.Action.Kind == "" {
		n := atomic.AddInt64(&o.misses, 1)
		o.logger.Warn().Str("job_id", job.ID).Int64("misses", n).Msg("malformed worker reply")
		return o.decideLocal(diff, snap, allowed)
	}
	return reply.Action, reply.Reasoning, nil
}

// Misses reports how many decisions fell back to the local strategy
// despite a configured broker.
func (o *Orchestrator) Misses() int64 { return atomic.LoadInt64(&o.misses) }

func (o *Orchestrator) decideLocal(diff botstrat.Difficulty, snap game.Snapshot, allowed []game.ActionKind) (game.Action, string, error) {
	strat, ok := o.locals[diff]
	if !ok {
		strat = o.locals[botstrat.Medium]
	}
	action, err := strat.Decide(snap, allowed)
	if err != nil {
		return game.Action{}, "", err
	}
	return action, strat.Quip(action), nil
}

// Worker consumes jobs for one difficulty and answers with the local
// strategy. Several workers per difficulty are fine: BRPOP hands each
// job to exactly one of them.
type Worker struct {
	logger zerolog.Logger
	broker Broker
	diff   botstrat.Difficulty
	strat  *botstrat.Strategy
}

// NewWorker builds a worker for one difficulty queue.
func NewWorker(logger zerolog.Logger, broker Broker, diff botstrat.Difficulty) *Worker {
	return &Worker{
		logger: logger.With().Str("component", "botworker").Str("difficulty", string(diff)).Logger(),
		broker: broker,
		diff:   diff,
		strat:  botstrat.New(diff, time.Now().UnixNano()),
	}
}

// Run processes jobs until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := w.broker.PopJob(ctx, string(w.diff), 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn().Err(err).Msg("job pop failed")
			time.Sleep(time.Second)
			continue
		}
		if raw == nil {
			continue
		}
		w.handle(ctx, raw)
	}
}

func (w *Worker) handle(ctx context.Context, raw []byte) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		w.logger.Warn().Err(err).Msg("dropping malformed job")
		return
	}
	if job.Deadline > 0 && time.Now().UnixMilli() > job.Deadline {
		w.logger.Debug().Str("job_id", job.ID).Msg("dropping stale job")
		return
	}
	action, err := w.strat.Decide(job.Snapshot, job.Allowed)
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("no decision for job")
		return
	}
	payload, err := json.Marshal(Reply{JobID: job.ID, Action: action, Reasoning: w.strat.Quip(action)})
	if err != nil {
		return
	}
	if err := w.broker.PushReply(ctx, job.ID, payload); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("reply publish failed")
	}
}
