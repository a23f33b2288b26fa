// Package registry tracks every live room on the server and enforces the
// instance-wide room cap.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/gameid"
	"github.com/balootlabs/baloot/internal/room"
)

// DefaultMaxRooms is the per-instance room cap.
const DefaultMaxRooms = 500

// Registry is a concurrency-safe map of room ID to room, plus the
// session-to-room index used for reconnects.
type Registry struct {
	logger   zerolog.Logger
	maxRooms int

	mu        sync.RWMutex
	rooms     map[string]*room.Room
	bySession map[string]string
}

// New constructs an empty registry.
func New(logger zerolog.Logger, maxRooms int) *Registry {
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	return &Registry{
		logger:    logger.With().Str("component", "registry").Logger(),
		maxRooms:  maxRooms,
		rooms:     make(map[string]*room.Room),
		bySession: make(map[string]string),
	}
}

// Create builds and registers a room, minting an ID unless the options
// carry one (provisioned tables use their config label). The room's
// OnClosed is chained so eviction is automatic however the room dies.
func (r *Registry) Create(opts room.Options) (*room.Room, error) {
	r.mu.Lock()
	if len(r.rooms) >= r.maxRooms {
		r.mu.Unlock()
		return nil, game.NewError(game.ErrRoomLimit, "server is at its room cap (%d)", r.maxRooms)
	}
	if opts.ID == "" {
		opts.ID = gameid.Generate()
	}
	if _, taken := r.rooms[opts.ID]; taken {
		r.mu.Unlock()
		return nil, game.NewError(game.ErrInvalidPayload, "room id %q already exists", opts.ID)
	}
	userClosed := opts.OnClosed
	opts.OnClosed = func(roomID, reason string) {
		r.evict(roomID)
		if userClosed != nil {
			userClosed(roomID, reason)
		}
	}
	rm := room.New(opts)
	r.rooms[rm.ID()] = rm
	count := len(r.rooms)
	r.mu.Unlock()

	r.logger.Info().Str("room_id", rm.ID()).Int("rooms", count).Msg("room created")
	return rm, nil
}

// Get returns the room by ID.
func (r *Registry) Get(id string) (*room.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// Bind records which room a session is seated in.
func (r *Registry) Bind(sessionID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySession[sessionID] = roomID
}

// Unbind drops the session's room association.
func (r *Registry) Unbind(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySession, sessionID)
}

// BySession returns the room a session is seated in, if any.
func (r *Registry) BySession(sessionID string) (*room.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.bySession[sessionID]
	if !ok {
		return nil, false
	}
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Range calls fn for every live room until it returns false.
func (r *Registry) Range(fn func(rm *room.Room) bool) {
	r.mu.RLock()
	rooms := make([]*room.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	for _, rm := range rooms {
		if !fn(rm) {
			return
		}
	}
}

// CloseAll shuts every room down; used on server drain.
func (r *Registry) CloseAll() {
	r.Range(func(rm *room.Room) bool {
		rm.Close()
		return true
	})
}

func (r *Registry) evict(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	for sid, rid := range r.bySession {
		if rid == roomID {
			delete(r.bySession, sid)
		}
	}
	count := len(r.rooms)
	r.mu.Unlock()
	r.logger.Info().Str("room_id", roomID).Int("rooms", count).Msg("room evicted")
}
