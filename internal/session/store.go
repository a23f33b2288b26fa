// Package session tracks who a connection is across disconnects: a
// session record in Redis with a TTL, plus the JWT that lets a client
// prove it owns the session.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/balootlabs/baloot/internal/gameid"
)

// DefaultTTL is how long a session survives without activity.
const DefaultTTL = 24 * time.Hour

// Record is everything the server remembers about a session.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Elo       int       `json:"elo"`
	RoomID    string    `json:"roomId,omitempty"`
	Seat      int       `json:"seat"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backend is the slice of the KV client the store needs.
type Backend interface {
	SaveSession(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	LoadSession(ctx context.Context, sessionID string) (json.RawMessage, error)
	TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// Store persists session records. With a nil backend it degrades to an
// in-process map, which is enough for single-instance deployments and
// tests.
type Store struct {
	logger  zerolog.Logger
	backend Backend
	ttl     time.Duration
}

// NewStore creates a session store.
func NewStore(logger zerolog.Logger, backend Backend, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if backend == nil {
		backend = newMemoryBackend()
	}
	return &Store{
		logger:  logger.With().Str("component", "session_store").Logger(),
		backend: backend,
		ttl:     ttl,
	}
}

// Create mints a new session for a player name.
func (s *Store) Create(ctx context.Context, name string, elo int) (*Record, error) {
	rec := &Record{
		ID:        gameid.Generate(),
		Name:      name,
		Elo:       elo,
		Seat:      -1,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads a session; nil means unknown or expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	data, err := s.backend.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// BindRoom records the session's current room and seat.
func (s *Store) BindRoom(ctx context.Context, sessionID, roomID string, seat int) error {
	rec, err := s.Get(ctx, sessionID)
	if err != nil || rec == nil {
		return err
	}
	rec.RoomID = roomID
	rec.Seat = seat
	return s.put(ctx, rec)
}

// UnbindRoom clears the room association.
func (s *Store) UnbindRoom(ctx context.Context, sessionID string) error {
	return s.BindRoom(ctx, sessionID, "", -1)
}

// Touch extends a session's TTL on activity.
func (s *Store) Touch(ctx context.Context, sessionID string) {
	if err := s.backend.TouchSession(ctx, sessionID, s.ttl); err != nil {
		s.logger.Debug().Err(err).Msg("session touch failed")
	}
}

// Delete removes a session outright.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	return s.backend.DeleteSession(ctx, sessionID)
}

func (s *Store) put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.backend.SaveSession(ctx, rec.ID, data, s.ttl)
}

// memoryBackend is the redis-less fallback.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *memoryBackend) SaveSession(_ context.Context, id string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{data: data, expires: time.Now().Add(ttl)}
	return nil
}

func (m *memoryBackend) LoadSession(_ context.Context, id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || time.Now().After(e.expires) {
		delete(m.entries, id)
		return nil, nil
	}
	return e.data, nil
}

func (m *memoryBackend) TouchSession(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		e.expires = time.Now().Add(ttl)
		m.entries[id] = e
	}
	return nil
}

func (m *memoryBackend) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}
