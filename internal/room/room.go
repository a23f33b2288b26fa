package room

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/game"
)

// BotDriver produces a decision for a bot seat. Implementations may go
// out to a worker queue; the room treats them as fire-and-forget and
// folds the answer back into its own loop. The string return is
// optional table talk shown as a speech bubble.
type BotDriver interface {
	Decide(ctx context.Context, snap game.Snapshot, allowed []game.ActionKind) (game.Action, string, error)
}

// Saver persists room snapshots for crash recovery. Saves are
// best-effort: a failing saver never blocks play.
type Saver interface {
	SaveRoom(ctx context.Context, roomID string, data []byte) error
	DeleteRoom(ctx context.Context, roomID string) error
}

// Speech is one line of bot table talk, attached to the frame whose
// action it accompanies.
type Speech struct {
	Seat        baloot.Seat `json:"seat"`
	Text        string      `json:"text"`
	Personality string      `json:"personality,omitempty"`
}

// Frame is one outbound delivery to a subscriber: the events produced by
// a transition plus the viewer's redacted snapshot at the new version.
type Frame struct {
	Version  uint64        `json:"version"`
	RoomID   string        `json:"roomId"`
	Events   []game.Event  `json:"events,omitempty"`
	Speech   *Speech       `json:"speech,omitempty"`
	Snapshot game.Snapshot `json:"state"`
}

// Options configures a room. Zero values fall back to sane defaults.
type Options struct {
	ID       string
	Settings game.Settings
	Seed     int64

	Logger zerolog.Logger
	Clock  quartz.Clock
	Bots   BotDriver
	Saver  Saver

	// Grace is how long a disconnected seat is held before a bot takes
	// it over.
	Grace time.Duration

	// IdleTimeout evicts the room after this long without any player
	// input.
	IdleTimeout time.Duration

	// SeedBots fills this many seats with bots at creation, for
	// pre-provisioned tables. Four starts a bot-only match immediately.
	SeedBots int

	// OnClosed is called exactly once after the loop exits, with the
	// reason. The registry uses it to drop its reference.
	OnClosed func(roomID string, reason string)
}

const (
	commandBuffer  = 64
	frameBuffer    = 32
	defaultGrace   = 60 * time.Second
	defaultIdle    = 30 * time.Minute
	botDecideLimit = 3 * time.Second
)

type commandKind int

const (
	cmdAction commandKind = iota
	cmdJoin
	cmdAddBot
	cmdLeave
	cmdDisconnect
	cmdReconnect
	cmdSubscribe
	cmdUnsubscribe
	cmdTimer
	cmdBotDecision
	cmdGraceExpired
	cmdIdle
	cmdClose
)

type command struct {
	kind       commandKind
	sessionID  string
	name       string
	action     game.Action
	say        string
	seat       baloot.Seat
	difficulty string
	sub        chan Frame
	gen        uint64
	reply      chan reply
}

type reply struct {
	seat baloot.Seat
	err  error
}

// Room owns one table. All game state is confined to the loop goroutine;
// the exported methods only pass envelopes in and wait for the answer.
type Room struct {
	id     string
	logger zerolog.Logger
	clock  quartz.Clock
	bots   BotDriver
	saver  Saver
	grace  time.Duration
	idle   time.Duration

	seedBots int
	onClosed func(string, string)

	cmds chan command
	done chan struct{}

	// Loop-owned state. Never touched outside run().
	g        *game.Game
	version  uint64
	sessions map[string]baloot.Seat
	subs     map[string]chan Frame

	timer      *quartz.Timer
	timerGen   uint64
	botGen     uint64
	graceTimer map[baloot.Seat]*quartz.Timer
	idleTimer  *quartz.Timer

	lastActivity time.Time
}

// New creates a room and starts its loop.
func New(opts Options) *Room {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdle
	}
	r := &Room{
		id:         opts.ID,
		logger:     opts.Logger.With().Str("component", "room").Str("room_id", opts.ID).Logger(),
		clock:      opts.Clock,
		bots:       opts.Bots,
		saver:      opts.Saver,
		grace:      opts.Grace,
		idle:       opts.IdleTimeout,
		seedBots:   opts.SeedBots,
		onClosed:   opts.OnClosed,
		cmds:       make(chan command, commandBuffer),
		done:       make(chan struct{}),
		g:          game.New(opts.Settings, opts.Seed),
		sessions:   make(map[string]baloot.Seat),
		subs:       make(map[string]chan Frame),
		graceTimer: make(map[baloot.Seat]*quartz.Timer),
	}
	go r.run()
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// send queues a command for the loop. A full queue means the room is
// overloaded and the caller is told to back off rather than block.
func (r *Room) send(cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return reply{}, game.NewError(game.ErrRoomGone, "room is closed")
	default:
		return reply{}, game.NewError(game.ErrBusy, "room queue is full")
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-r.done:
		return reply{}, game.NewError(game.ErrRoomGone, "room is closed")
	}
}

// Submit applies a player action.
func (r *Room) Submit(sessionID string, action game.Action) error {
	_, err := r.send(command{kind: cmdAction, sessionID: sessionID, action: action})
	return err
}

// Join seats a session at the lowest free seat.
func (r *Room) Join(sessionID, name string) (baloot.Seat, error) {
	res, err := r.send(command{kind: cmdJoin, sessionID: sessionID, name: name})
	return res.seat, err
}

// AddBot fills a seat with a bot. A negative seat picks the lowest free
// one; an empty difficulty inherits the room's. Only seated players may
// add bots, and only before the match starts.
func (r *Room) AddBot(sessionID string, seat baloot.Seat, difficulty string) (baloot.Seat, error) {
	res, err := r.send(command{kind: cmdAddBot, sessionID: sessionID, seat: seat, difficulty: difficulty})
	return res.seat, err
}

// Leave vacates the session's seat permanently; mid-game the seat is
// handed straight to a bot.
func (r *Room) Leave(sessionID string) error {
	_, err := r.send(command{kind: cmdLeave, sessionID: sessionID})
	return err
}

// Disconnect marks the seat as dropped and starts the takeover grace.
func (r *Room) Disconnect(sessionID string) error {
	_, err := r.send(command{kind: cmdDisconnect, sessionID: sessionID})
	return err
}

// Reconnect reclaims a seat within the grace window.
func (r *Room) Reconnect(sessionID string) (baloot.Seat, error) {
	res, err := r.send(command{kind: cmdReconnect, sessionID: sessionID})
	return res.seat, err
}

// Subscribe registers a frame channel for the session and immediately
// delivers the current state. Slow subscribers lose frames, not the room.
func (r *Room) Subscribe(sessionID string) (<-chan Frame, error) {
	ch := make(chan Frame, frameBuffer)
	if _, err := r.send(command{kind: cmdSubscribe, sessionID: sessionID, sub: ch}); err != nil {
		return nil, err
	}
	return ch, nil
}

// Unsubscribe drops the session's frame channel.
func (r *Room) Unsubscribe(sessionID string) {
	r.send(command{kind: cmdUnsubscribe, sessionID: sessionID})
}

// Close tears the room down.
func (r *Room) Close() {
	r.send(command{kind: cmdClose})
}

// Done is closed when the loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }
