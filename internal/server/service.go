package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/match"
	"github.com/balootlabs/baloot/internal/ratelimit"
	"github.com/balootlabs/baloot/internal/registry"
	"github.com/balootlabs/baloot/internal/room"
	"github.com/balootlabs/baloot/internal/session"
)

// DefaultElo seeds new sessions until ranked play adjusts it.
const DefaultElo = 1000

// Service glues the connection layer to sessions, rooms and the
// matchmaker. Connections never touch those packages directly.
type Service struct {
	logger   zerolog.Logger
	sessions *session.Store
	tokens   *session.TokenManager
	registry *registry.Registry
	limiter  *ratelimit.Limiter
	bots     room.BotDriver
	saver    room.Saver

	match *match.Matchmaker

	defaults game.Settings
	grace    time.Duration
	idle     time.Duration

	// onRoomClosed lets the server broadcast room_closed; set once at
	// startup.
	onRoomClosed func(roomID, reason string)
}

// ServiceOptions wires a Service.
type ServiceOptions struct {
	Logger      zerolog.Logger
	Sessions    *session.Store
	Tokens      *session.TokenManager
	Registry    *registry.Registry
	Limiter     *ratelimit.Limiter
	Bots        room.BotDriver
	Saver       room.Saver
	Defaults    game.Settings
	Grace       time.Duration
	IdleTimeout time.Duration
}

// NewService builds the service layer.
func NewService(opts ServiceOptions) *Service {
	return &Service{
		logger:   opts.Logger.With().Str("component", "service").Logger(),
		sessions: opts.Sessions,
		tokens:   opts.Tokens,
		registry: opts.Registry,
		limiter:  opts.Limiter,
		bots:     opts.Bots,
		saver:    opts.Saver,
		defaults: opts.Defaults,
		grace:    opts.Grace,
		idle:     opts.IdleTimeout,
	}
}

// SetMatchmaker attaches the matchmaker. Wired after construction
// because the matchmaker needs the service's room options.
func (s *Service) SetMatchmaker(m *match.Matchmaker) { s.match = m }

// SetRoomClosedHook registers the broadcast callback.
func (s *Service) SetRoomClosedHook(fn func(roomID, reason string)) { s.onRoomClosed = fn }

// RoomOptions returns the template for new rooms. The matchmaker uses
// the same template so queue rooms and private rooms behave alike.
func (s *Service) RoomOptions() room.Options {
	return room.Options{
		Settings:    s.defaults,
		Logger:      s.logger,
		Bots:        s.bots,
		Saver:       s.saver,
		Grace:       s.grace,
		IdleTimeout: s.idle,
		OnClosed: func(roomID, reason string) {
			if s.onRoomClosed != nil {
				s.onRoomClosed(roomID, reason)
			}
		},
	}
}

// Authenticate resolves a token to its session or mints a fresh one.
// A stale or garbage token is not an error: the client gets a new
// identity instead.
func (s *Service) Authenticate(ctx context.Context, name, token string) (*session.Record, string, error) {
	if token != "" {
		if claims, err := s.tokens.Verify(token); err == nil {
			if rec, err := s.sessions.Get(ctx, claims.SessionID); err == nil && rec != nil {
				s.sessions.Touch(ctx, rec.ID)
				return rec, token, nil
			}
		}
	}

	rec, err := s.sessions.Create(ctx, SanitizeName(name), DefaultElo)
	if err != nil {
		return nil, "", err
	}
	fresh, err := s.tokens.Issue(rec.ID, rec.Name)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info().Str("session", rec.ID).Str("name", rec.Name).Msg("session created")
	return rec, fresh, nil
}

// Resume reattaches a session to the room it was seated in, if that
// room is still alive. A nil room with a nil error means there was
// nothing to resume; a ROOM_GONE error means the binding pointed at a
// room that closed or died with the process.
func (s *Service) Resume(ctx context.Context, rec *session.Record) (*room.Room, baloot.Seat, error) {
	if rec.RoomID == "" {
		return nil, -1, nil
	}
	rm, ok := s.registry.Get(rec.RoomID)
	if !ok {
		s.sessions.UnbindRoom(ctx, rec.ID)
		s.dropStaleSnapshot(ctx, rec.RoomID)
		return nil, -1, game.NewError(game.ErrRoomGone, "room %s is gone", rec.RoomID)
	}
	seat, err := rm.Reconnect(rec.ID)
	if err != nil {
		s.sessions.UnbindRoom(ctx, rec.ID)
		return nil, -1, game.NewError(game.ErrRoomGone, "room %s no longer holds a seat for this session", rec.RoomID)
	}
	s.registry.Bind(rec.ID, rm.ID())
	return rm, seat, nil
}

// roomLoader is the read side of the snapshot store. The Redis client
// has it; in-memory deployments have nothing stored to read.
type roomLoader interface {
	LoadRoom(ctx context.Context, roomID string) (json.RawMessage, error)
}

// dropStaleSnapshot clears a crash leftover. Rooms that close normally
// delete their snapshot on the way out, so one still stored for a dead
// room means the process died mid-match.
func (s *Service) dropStaleSnapshot(ctx context.Context, roomID string) {
	loader, ok := s.saver.(roomLoader)
	if !ok {
		return
	}
	data, err := loader.LoadRoom(ctx, roomID)
	if err != nil || data == nil {
		return
	}
	s.logger.Info().Str("room_id", roomID).Msg("dropping room snapshot orphaned by a restart")
	if err := s.saver.DeleteRoom(ctx, roomID); err != nil {
		s.logger.Debug().Err(err).Str("room_id", roomID).Msg("orphaned snapshot delete failed")
	}
}

func (s *Service) settingsFor(data CreateRoomData) game.Settings {
	settings := s.defaults
	if data.TurnSeconds > 0 {
		settings.TurnDuration = time.Duration(data.TurnSeconds) * time.Second
	}
	if data.TargetScore > 0 {
		settings.TargetScore = data.TargetScore
	}
	if data.StrictMode != nil {
		settings.StrictMode = *data.StrictMode
	}
	if data.SoundEnabled != nil {
		settings.SoundEnabled = *data.SoundEnabled
	}
	switch data.BotDifficulty {
	case "easy", "medium", "hard":
		settings.BotDifficulty = data.BotDifficulty
	}
	return settings
}

// CreateRoom makes a private room and seats the creator.
func (s *Service) CreateRoom(ctx context.Context, rec *session.Record, data CreateRoomData) (*room.Room, baloot.Seat, error) {
	opts := s.RoomOptions()
	opts.Settings = s.settingsFor(data)
	rm, err := s.registry.Create(opts)
	if err != nil {
		return nil, -1, err
	}
	seat, err := rm.Join(rec.ID, rec.Name)
	if err != nil {
		rm.Close()
		return nil, -1, err
	}
	s.registry.Bind(rec.ID, rm.ID())
	s.sessions.BindRoom(ctx, rec.ID, rm.ID(), int(seat))
	return rm, seat, nil
}

// ProvisionRoom creates a standing table from configuration: a fixed,
// joinable ID, optionally pre-filled with bots.
func (s *Service) ProvisionRoom(block RoomBlock) (*room.Room, error) {
	opts := s.RoomOptions()
	opts.ID = block.Name
	opts.SeedBots = block.Bots
	if opts.SeedBots > 4 {
		opts.SeedBots = 4
	}
	if block.TargetScore > 0 {
		opts.Settings.TargetScore = block.TargetScore
	}
	switch block.Difficulty {
	case "easy", "medium", "hard":
		opts.Settings.BotDifficulty = block.Difficulty
	}
	return s.registry.Create(opts)
}

// JoinRoom seats the session in an existing room by ID.
func (s *Service) JoinRoom(ctx context.Context, rec *session.Record, roomID string) (*room.Room, baloot.Seat, error) {
	rm, ok := s.registry.Get(roomID)
	if !ok {
		return nil, -1, game.NewError(game.ErrRoomGone, "no such room")
	}
	seat, err := rm.Join(rec.ID, rec.Name)
	if err != nil {
		return nil, -1, err
	}
	s.registry.Bind(rec.ID, rm.ID())
	s.sessions.BindRoom(ctx, rec.ID, rm.ID(), int(seat))
	return rm, seat, nil
}

// LeaveRoom vacates the session's seat and drops the binding.
func (s *Service) LeaveRoom(ctx context.Context, rec *session.Record) error {
	rm, ok := s.registry.BySession(rec.ID)
	if !ok {
		return game.NewError(game.ErrNotSeated, "not in a room")
	}
	if err := rm.Leave(rec.ID); err != nil {
		return err
	}
	s.registry.Unbind(rec.ID)
	s.sessions.UnbindRoom(ctx, rec.ID)
	return nil
}

// AddBot fills a seat in the session's room with a bot.
func (s *Service) AddBot(rec *session.Record, data AddBotData) (baloot.Seat, error) {
	rm, ok := s.registry.BySession(rec.ID)
	if !ok {
		return -1, game.NewError(game.ErrNotSeated, "not in a room")
	}
	seat := baloot.Seat(-1)
	if data.Seat != nil {
		seat = baloot.Seat(*data.Seat)
	}
	return rm.AddBot(rec.ID, seat, data.Difficulty)
}

// Submit applies a game action from the session. Card plays are
// rate-limited; one seat cannot flood the room loop.
func (s *Service) Submit(ctx context.Context, rec *session.Record, action game.Action) error {
	if action.Kind == game.ActionPlay {
		if err := s.limiter.Allow(ctx, rec.ID, ratelimit.KindPlay); err != nil {
			return err
		}
	}
	rm, ok := s.registry.BySession(rec.ID)
	if !ok {
		return game.NewError(game.ErrNotSeated, "not in a room")
	}
	return rm.Submit(rec.ID, action)
}

// QueueJoin puts the session into matchmaking and reports the queue
// state after the join. The payload may override the session's display
// name and rating for this entry.
func (s *Service) QueueJoin(ctx context.Context, rec *session.Record, data QueueJoinData) (match.Stats, error) {
	if err := s.limiter.Allow(ctx, rec.ID, ratelimit.KindQueueJoin); err != nil {
		return match.Stats{}, err
	}
	if s.match == nil {
		return match.Stats{}, game.NewError(game.ErrInvalidPayload, "matchmaking disabled")
	}
	name := rec.Name
	if data.PlayerName != "" {
		name = SanitizeName(data.PlayerName)
	}
	elo := rec.Elo
	if data.Elo > 0 {
		elo = data.Elo
	}
	if err := s.match.Join(ctx, rec.ID, name, elo); err != nil {
		return match.Stats{}, err
	}
	// A join can complete a table; sweep now instead of waiting a tick.
	s.match.Sweep(ctx)
	return s.match.QueueStats(ctx), nil
}

// QueueStatus reports the current queue size and expected wait.
func (s *Service) QueueStatus(ctx context.Context) (match.Stats, error) {
	if s.match == nil {
		return match.Stats{}, game.NewError(game.ErrInvalidPayload, "matchmaking disabled")
	}
	return s.match.QueueStats(ctx), nil
}

// QueueLeave removes the session from matchmaking.
func (s *Service) QueueLeave(ctx context.Context, rec *session.Record) error {
	if s.match == nil {
		return nil
	}
	return s.match.Leave(ctx, rec.ID)
}

// AllowChat rate-checks one chat line.
func (s *Service) AllowChat(ctx context.Context, sessionID string) error {
	return s.limiter.Allow(ctx, sessionID, ratelimit.KindChat)
}

// BindSession records the room binding on the session record so a
// reconnect after a restart can find the room again.
func (s *Service) BindSession(ctx context.Context, sessionID, roomID string, seat baloot.Seat) {
	s.sessions.BindRoom(ctx, sessionID, roomID, int(seat))
}

// Disconnect tells the session's room the socket dropped and drops any
// matchmaking entry. Missing rooms are fine: the session may not be
// seated.
func (s *Service) Disconnect(ctx context.Context, rec *session.Record) {
	if s.match != nil {
		if err := s.match.Leave(ctx, rec.ID); err != nil {
			s.logger.Warn().Err(err).Str("session", rec.ID).Msg("queue leave on disconnect failed")
		}
	}
	if rm, ok := s.registry.BySession(rec.ID); ok {
		rm.Disconnect(rec.ID)
	}
}

// RoomBySession exposes the live room for a seated session.
func (s *Service) RoomBySession(sessionID string) (*room.Room, bool) {
	return s.registry.BySession(sessionID)
}
