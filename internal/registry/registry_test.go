package registry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balootlabs/baloot/internal/game"
	"github.com/balootlabs/baloot/internal/room"
)

func testRegistry(t *testing.T, cap int) *Registry {
	t.Helper()
	r := New(zerolog.Nop(), cap)
	t.Cleanup(r.CloseAll)
	return r
}

func TestCreateAndGet(t *testing.T) {
	reg := testRegistry(t, 10)
	rm, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
	require.NoError(t, err)
	require.Len(t, rm.ID(), 26)

	got, ok := reg.Get(rm.ID())
	require.True(t, ok)
	assert.Same(t, rm, got)
	assert.Equal(t, 1, reg.Count())
}

func TestCreateHonorsFixedID(t *testing.T) {
	reg := testRegistry(t, 10)
	rm, err := reg.Create(room.Options{ID: "lobby", Settings: game.DefaultSettings()})
	require.NoError(t, err)
	assert.Equal(t, "lobby", rm.ID())

	_, err = reg.Create(room.Options{ID: "lobby", Settings: game.DefaultSettings()})
	require.Error(t, err)
	assert.Equal(t, game.ErrInvalidPayload, game.KindOf(err))
	assert.Equal(t, 1, reg.Count())
}

func TestRoomCap(t *testing.T) {
	reg := testRegistry(t, 2)
	for i := 0; i < 2; i++ {
		_, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
		require.NoError(t, err)
	}
	_, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
	require.Error(t, err)
	assert.Equal(t, game.ErrRoomLimit, game.KindOf(err))
}

func TestClosedRoomIsEvicted(t *testing.T) {
	reg := testRegistry(t, 10)
	rm, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
	require.NoError(t, err)

	rm.Close()
	require.Eventually(t, func() bool { return reg.Count() == 0 },
		2*time.Second, 10*time.Millisecond, "closed room should drop out of the registry")
}

func TestEvictionFreesCapForNewRooms(t *testing.T) {
	reg := testRegistry(t, 1)
	rm, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
	require.NoError(t, err)
	rm.Close()
	require.Eventually(t, func() bool { return reg.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = reg.Create(room.Options{Settings: game.DefaultSettings()})
	assert.NoError(t, err)
}

func TestSessionIndex(t *testing.T) {
	reg := testRegistry(t, 10)
	rm, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
	require.NoError(t, err)

	reg.Bind("sess-1", rm.ID())
	got, ok := reg.BySession("sess-1")
	require.True(t, ok)
	assert.Same(t, rm, got)

	reg.Unbind("sess-1")
	_, ok = reg.BySession("sess-1")
	assert.False(t, ok)
}

func TestSessionIndexClearedOnEviction(t *testing.T) {
	reg := testRegistry(t, 10)
	rm, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
	require.NoError(t, err)
	reg.Bind("sess-1", rm.ID())

	rm.Close()
	require.Eventually(t, func() bool {
		_, ok := reg.BySession("sess-1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUserOnClosedStillRuns(t *testing.T) {
	reg := testRegistry(t, 10)
	called := make(chan string, 1)
	rm, err := reg.Create(room.Options{
		Settings: game.DefaultSettings(),
		OnClosed: func(id, reason string) { called <- reason },
	})
	require.NoError(t, err)
	rm.Close()

	select {
	case reason := <-called:
		assert.Equal(t, "closed", reason)
	case <-time.After(2 * time.Second):
		t.Fatal("user OnClosed never ran")
	}
}

func TestRangeVisitsEveryRoom(t *testing.T) {
	reg := testRegistry(t, 10)
	for i := 0; i < 3; i++ {
		_, err := reg.Create(room.Options{Settings: game.DefaultSettings()})
		require.NoError(t, err)
	}
	seen := 0
	reg.Range(func(rm *room.Room) bool {
		seen++
		return true
	})
	assert.Equal(t, 3, seen)
}
