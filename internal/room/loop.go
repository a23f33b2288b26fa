package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/balootlabs/baloot/internal/baloot"
	"github.com/balootlabs/baloot/internal/game"
)

// run is the room loop. It is the only goroutine that ever touches the
// game; a panic anywhere in a transition kills this room and nothing
// else.
func (r *Room) run() {
	reason := "closed"
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("room loop panicked")
			reason = string(game.ErrRoomGone)
		}
		r.shutdown(reason)
	}()

	r.lastActivity = r.clock.Now()
	r.armIdle()

	if r.seedBots > 0 {
		for i := 0; i < r.seedBots; i++ {
			if !r.seatBot() {
				break
			}
		}
		r.maybeStart()
	}

	for cmd := range r.cmds {
		if cmd.kind == cmdClose {
			r.respond(cmd, reply{})
			return
		}
		r.handle(cmd)
		select {
		case <-r.done:
			return
		default:
		}
	}
}

func (r *Room) respond(cmd command, res reply) {
	if cmd.reply != nil {
		cmd.reply <- res
	}
}

func (r *Room) handle(cmd command) {
	switch cmd.kind {
	case cmdTimer, cmdBotDecision, cmdGraceExpired, cmdIdle:
	default:
		r.lastActivity = r.clock.Now()
	}

	switch cmd.kind {
	case cmdAction:
		seat, ok := r.sessions[cmd.sessionID]
		if !ok {
			r.respond(cmd, reply{err: game.NewError(game.ErrNotSeated, "session holds no seat")})
			return
		}
		action := cmd.action
		action.Seat = seat
		action.Synthetic = false
		r.respond(cmd, reply{seat: seat, err: r.apply(action)})

	case cmdJoin:
		seat, err := r.join(cmd.sessionID, cmd.name)
		r.respond(cmd, reply{seat: seat, err: err})

	case cmdAddBot:
		seat, err := r.addBot(cmd.sessionID, cmd.seat, cmd.difficulty)
		r.respond(cmd, reply{seat: seat, err: err})

	case cmdLeave:
		r.respond(cmd, reply{err: r.leave(cmd.sessionID)})

	case cmdDisconnect:
		r.respond(cmd, reply{err: r.disconnect(cmd.sessionID)})

	case cmdReconnect:
		seat, err := r.reconnect(cmd.sessionID)
		r.respond(cmd, reply{seat: seat, err: err})

	case cmdSubscribe:
		r.subs[cmd.sessionID] = cmd.sub
		r.deliver(cmd.sessionID, cmd.sub, nil, nil)
		r.respond(cmd, reply{})

	case cmdUnsubscribe:
		delete(r.subs, cmd.sessionID)
		r.respond(cmd, reply{})

	case cmdTimer:
		r.respond(cmd, reply{})
		if cmd.gen != r.timerGen {
			return
		}
		if err := r.apply(cmd.action); err != nil {
			r.logger.Warn().Err(err).Msg("timeout action rejected")
		}

	case cmdBotDecision:
		r.respond(cmd, reply{})
		if cmd.gen != r.botGen {
			return
		}
		action := cmd.action
		action.Synthetic = true
		if err := r.applySay(action, cmd.say); err != nil {
			// The turn timer remains armed and will auto-play.
			r.logger.Warn().Err(err).Str("kind", string(action.Kind)).Msg("bot action rejected")
		}

	case cmdGraceExpired:
		r.respond(cmd, reply{})
		r.graceExpired(baloot.Seat(cmd.gen))

	case cmdIdle:
		r.respond(cmd, reply{})
		if r.clock.Since(r.lastActivity) >= r.idle {
			r.logger.Info().Msg("room idle, closing")
			go r.Close()
			return
		}
		r.armIdle()
	}
}

// apply runs one action through the machine and, on success, publishes
// the new state.
func (r *Room) apply(action game.Action) error {
	return r.applySay(action, "")
}

// applySay is apply plus a speech bubble for bot actions that came with
// table talk.
func (r *Room) applySay(action game.Action, say string) error {
	events, err := r.g.Apply(action)
	if err != nil {
		return err
	}
	var speech *Speech
	if say != "" {
		personality := r.g.Players[action.Seat].Difficulty
		if personality == "" {
			personality = r.g.Settings.BotDifficulty
		}
		speech = &Speech{Seat: action.Seat, Text: say, Personality: personality}
	}
	r.publish(events, speech)
	return nil
}

// publish bumps the version, fans the frame out, re-arms timers, pokes
// the bot driver and persists the snapshot.
func (r *Room) publish(events []game.Event, speech *Speech) {
	r.version++
	r.armTimer()
	r.kickBot()
	for sid, ch := range r.subs {
		r.deliver(sid, ch, events, speech)
	}
	r.persist()
}

func (r *Room) deliver(sessionID string, ch chan Frame, events []game.Event, speech *Speech) {
	seat, seated := r.sessions[sessionID]
	if !seated {
		seat = -1
	}
	frame := Frame{
		Version:  r.version,
		RoomID:   r.id,
		Events:   events,
		Speech:   speech,
		Snapshot: r.g.SnapshotFor(seat),
	}
	select {
	case ch <- frame:
	default:
		r.logger.Debug().Str("session", sessionID).Msg("subscriber too slow, frame dropped")
	}
}

// armTimer schedules the machine's pending deadline. The generation
// counter makes fires from a superseded state harmless.
func (r *Room) armTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	kind, d := r.g.PendingTimer()
	if kind == game.TimerNone {
		return
	}
	var actionKind game.ActionKind
	switch kind {
	case game.TimerTurn:
		actionKind = game.ActionTurnTimeout
	case game.TimerQayd:
		actionKind = game.ActionQaydTimeout
	case game.TimerSawa:
		actionKind = game.ActionSawaTimeout
	}
	r.timerGen++
	gen := r.timerGen
	r.timer = r.clock.AfterFunc(d, func() {
		select {
		case r.cmds <- command{kind: cmdTimer, gen: gen, action: game.Action{Kind: actionKind, Synthetic: true}}:
		case <-r.done:
		}
	})
}

// kickBot asks the driver for a decision when the seat to act is a bot.
// The answer comes back through the loop; anything stale is discarded.
func (r *Room) kickBot() {
	if r.bots == nil {
		return
	}
	seat := r.g.ActiveSeat()
	if !seat.Valid() || !r.g.Players[seat].IsBot {
		return
	}
	allowed := r.g.AllowedActions(seat)
	if len(allowed) == 0 {
		return
	}
	snap := r.g.SnapshotFor(seat)
	limit := botDecideLimit
	if turn := r.g.Settings.TurnDuration; turn > 0 && turn < limit {
		limit = turn
	}
	r.botGen++
	gen := r.botGen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), limit)
		defer cancel()
		action, say, err := r.bots.Decide(ctx, snap, allowed)
		if err != nil {
			r.logger.Warn().Err(err).Int("seat", int(snap.Viewer)).Msg("bot driver failed, timer will auto-play")
			return
		}
		action.Seat = snap.Viewer
		select {
		case r.cmds <- command{kind: cmdBotDecision, gen: gen, action: action, say: say}:
		case <-r.done:
		}
	}()
}

func (r *Room) armIdle() {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	r.idleTimer = r.clock.AfterFunc(r.idle, func() {
		select {
		case r.cmds <- command{kind: cmdIdle}:
		case <-r.done:
		}
	})
}

// --- seating ---

func (r *Room) join(sessionID, name string) (baloot.Seat, error) {
	if seat, ok := r.sessions[sessionID]; ok {
		return seat, nil
	}
	seat, ok := r.freeSeat()
	if !ok {
		return -1, game.NewError(game.ErrRoomFull, "all four seats are taken")
	}
	r.g.Players[seat] = game.PlayerInfo{Name: name, SessionID: sessionID}
	r.sessions[sessionID] = seat
	r.maybeStart()
	return seat, nil
}

func (r *Room) addBot(sessionID string, want baloot.Seat, difficulty string) (baloot.Seat, error) {
	if _, ok := r.sessions[sessionID]; !ok {
		return -1, game.NewError(game.ErrNotSeated, "only seated players add bots")
	}
	if r.g.Phase != game.PhaseWaiting {
		return -1, game.NewError(game.ErrOutOfTurn, "bots join only before the match starts")
	}
	switch difficulty {
	case "":
		difficulty = r.g.Settings.BotDifficulty
	case "easy", "medium", "hard":
	default:
		return -1, game.NewError(game.ErrInvalidPayload, "unknown difficulty %q", difficulty)
	}
	seat := want
	if seat < 0 {
		var ok bool
		if seat, ok = r.freeSeat(); !ok {
			return -1, game.NewError(game.ErrRoomFull, "all four seats are taken")
		}
	} else {
		if seat >= baloot.NumSeats {
			return -1, game.NewError(game.ErrInvalidPayload, "no seat %d", seat)
		}
		if r.g.Players[seat].Name != "" {
			return -1, game.NewError(game.ErrRoomFull, "seat %d is taken", seat)
		}
	}
	r.g.Players[seat] = game.PlayerInfo{
		Name:       fmt.Sprintf("Bot %d", seat+1),
		IsBot:      true,
		Difficulty: difficulty,
	}
	r.maybeStart()
	return seat, nil
}

// seatBot fills the lowest free seat with a bot, without the seated-player
// check. Used when provisioning a table.
func (r *Room) seatBot() bool {
	seat, ok := r.freeSeat()
	if !ok {
		return false
	}
	r.g.Players[seat] = game.PlayerInfo{
		Name:       fmt.Sprintf("Bot %d", seat+1),
		IsBot:      true,
		Difficulty: r.g.Settings.BotDifficulty,
	}
	return true
}

func (r *Room) freeSeat() (baloot.Seat, bool) {
	for seat := baloot.Seat(0); seat < baloot.NumSeats; seat++ {
		if r.g.Players[seat].Name == "" {
			return seat, true
		}
	}
	return -1, false
}

func (r *Room) maybeStart() {
	if r.g.Phase != game.PhaseWaiting {
		r.publish(nil, nil)
		return
	}
	if _, free := r.freeSeat(); free {
		r.publish(nil, nil)
		return
	}
	events := r.g.Start()
	r.logger.Info().Msg("all seats filled, match starting")
	r.publish(events, nil)
}

func (r *Room) leave(sessionID string) error {
	seat, ok := r.sessions[sessionID]
	if !ok {
		return game.NewError(game.ErrNotSeated, "session holds no seat")
	}
	delete(r.sessions, sessionID)
	delete(r.subs, sessionID)
	r.stopGrace(seat)

	if r.g.Phase == game.PhaseWaiting {
		r.g.Players[seat] = game.PlayerInfo{}
	} else {
		r.g.ConvertToBot(seat)
	}
	r.publish([]game.Event{{Kind: game.EventToast, Seat: seat, Text: "LEFT"}}, nil)
	return nil
}

func (r *Room) disconnect(sessionID string) error {
	seat, ok := r.sessions[sessionID]
	if !ok {
		return game.NewError(game.ErrNotSeated, "session holds no seat")
	}
	delete(r.subs, sessionID)
	r.g.Players[seat].Disconnected = true
	r.stopGrace(seat)
	r.graceTimer[seat] = r.clock.AfterFunc(r.grace, func() {
		select {
		case r.cmds <- command{kind: cmdGraceExpired, gen: uint64(seat)}:
		case <-r.done:
		}
	})
	r.publish([]game.Event{{Kind: game.EventToast, Seat: seat, Text: "DISCONNECTED"}}, nil)
	return nil
}

func (r *Room) reconnect(sessionID string) (baloot.Seat, error) {
	seat, ok := r.sessions[sessionID]
	if !ok {
		return -1, game.NewError(game.ErrSessionUnknown, "no seat held for this session")
	}
	r.stopGrace(seat)
	r.g.Players[seat].Disconnected = false
	r.publish([]game.Event{{Kind: game.EventToast, Seat: seat, Text: "RECONNECTED"}}, nil)
	return seat, nil
}

func (r *Room) graceExpired(seat baloot.Seat) {
	delete(r.graceTimer, seat)
	p := r.g.Players[seat]
	if !p.Disconnected {
		return
	}
	r.logger.Info().Int("seat", int(seat)).Msg("grace expired, bot takes over")
	delete(r.sessions, p.SessionID)
	r.g.ConvertToBot(seat)
	r.publish([]game.Event{{Kind: game.EventToast, Seat: seat, Text: "BOT_TAKEOVER"}}, nil)
}

func (r *Room) stopGrace(seat baloot.Seat) {
	if t, ok := r.graceTimer[seat]; ok {
		t.Stop()
		delete(r.graceTimer, seat)
	}
}

// --- persistence & teardown ---

// persistedRoom is what survives a server restart: enough to tell a
// returning session where it was and how the match stood.
type persistedRoom struct {
	RoomID   string                 `json:"roomId"`
	Version  uint64                 `json:"version"`
	Sessions map[string]baloot.Seat `json:"sessions"`
	State    game.Snapshot          `json:"state"`
}

func (r *Room) persist() {
	if r.saver == nil {
		return
	}
	data, err := json.Marshal(persistedRoom{
		RoomID:   r.id,
		Version:  r.version,
		Sessions: r.sessions,
		State:    r.g.SnapshotFor(-1),
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("snapshot marshal failed")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.saver.SaveRoom(ctx, r.id, data); err != nil {
			r.logger.Debug().Err(err).Msg("snapshot save failed")
		}
	}()
}

func (r *Room) shutdown(reason string) {
	close(r.done)
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.idleTimer != nil {
		r.idleTimer.Stop()
	}
	for _, t := range r.graceTimer {
		t.Stop()
	}
	for _, ch := range r.subs {
		close(ch)
	}
	r.subs = nil
	if r.saver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.saver.DeleteRoom(ctx, r.id); err != nil {
			r.logger.Debug().Err(err).Msg("snapshot delete failed")
		}
	}
	if r.onClosed != nil {
		r.onClosed(r.id, reason)
	}
	r.logger.Info().Str("reason", reason).Msg("room closed")
}
