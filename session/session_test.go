package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomID_Deterministic(t *testing.T) {
	pairs := []struct {
		a, b string
	}{
		{"alice", "bob"},
		{"bob", "alice"},
		{"user_1", "user_2"},
		{"zzz", "aaa"},
	}

	for _, p := range pairs {
		if RoomID(p.a, p.b, ModeRandom) != RoomID(p.b, p.a, ModeRandom) {
			t.Errorf("RoomID(%q, %q) not symmetric", p.a, p.b)
		}
		if RoomID(p.a, p.b, ModeFriend) != RoomID(p.b, p.a, ModeFriend) {
			t.Errorf("friend RoomID(%q, %q) not symmetric", p.a, p.b)
		}
	}
}

func TestRoomID_ModesNeverCollide(t *testing.T) {
	random := RoomID("alice", "bob", ModeRandom)
	friend := RoomID("alice", "bob", ModeFriend)

	assert.NotEqual(t, random, friend, "random and friend rooms for the same pair must differ")
}

func TestValidID(t *testing.T) {
	cases := []struct {
		name  string
		id    string
		valid bool
	}{
		{"simple", "alice", true},
		{"uuid style", "b3c1f2a0-12ab-4cde-9f01", true},
		{"underscore", "user_42", true},
		{"empty", "", false},
		{"whitespace", "user 42", false},
		{"separator char", "a#b", false},
		{"too long", string(make([]byte, 65)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidID(tc.id); got != tc.valid {
				t.Errorf("ValidID(%q) = %v, want %v", tc.id, got, tc.valid)
			}
		})
	}
}

func TestManager_RandomLifecycle(t *testing.T) {
	m := NewManager()

	require.Equal(t, StageIdle, m.Stage())
	require.NoError(t, m.StartSearching())
	require.Equal(t, StageSearching, m.Stage())

	// Repeated start is a no-op, not an error.
	require.NoError(t, m.StartSearching())
	require.Equal(t, StageSearching, m.Stage())

	room, err := m.BeginMatch("alice", "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "alice#bob", room)
	assert.Equal(t, StageActive, m.Stage())
	assert.Equal(t, ModeRandom, m.Mode())
	assert.Equal(t, "bob", m.PartnerID())
	assert.Equal(t, "Bob", m.PartnerName())

	require.NoError(t, m.End())
	assert.Equal(t, StageIdle, m.Stage())
	assert.Equal(t, ModeNone, m.Mode())
	assert.Empty(t, m.PartnerID())
}

func TestManager_StopSearching(t *testing.T) {
	m := NewManager()

	require.Error(t, m.StopSearching(), "stop without search should fail")
	require.NoError(t, m.StartSearching())
	require.NoError(t, m.StopSearching())
	assert.Equal(t, StageIdle, m.Stage())
	assert.Equal(t, ModeNone, m.Mode())
}

func TestManager_BeginMatchInvalidPartnerAborts(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.StartSearching())

	_, err := m.BeginMatch("alice", "not a valid id!", "X")
	require.ErrorIs(t, err, ErrInvalidPartnerID)

	// A corrupt match must drop back to idle, not stay stuck searching.
	assert.Equal(t, StageIdle, m.Stage())
	assert.Empty(t, m.PartnerID())
}

func TestManager_FriendLifecycle(t *testing.T) {
	m := NewManager()

	room, err := m.OpenFriend("alice", "carol", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "alice@carol", room)
	assert.Equal(t, ModeFriend, m.Mode())
	assert.Equal(t, StageActive, m.Stage())

	require.NoError(t, m.End())
	assert.Equal(t, StageIdle, m.Stage())
}

func TestManager_Exclusivity(t *testing.T) {
	m := NewManager()

	// A friend session cannot open while searching or active.
	require.NoError(t, m.StartSearching())
	_, err := m.OpenFriend("alice", "carol", "Carol")
	require.ErrorIs(t, err, ErrNotIdle)

	_, err = m.BeginMatch("alice", "bob", "Bob")
	require.NoError(t, err)
	_, err = m.OpenFriend("alice", "carol", "Carol")
	require.ErrorIs(t, err, ErrNotIdle)

	// And a search cannot start over an active friend session.
	m.Reset()
	_, err = m.OpenFriend("alice", "carol", "Carol")
	require.NoError(t, err)
	require.ErrorIs(t, m.StartSearching(), ErrNotIdle)
}

func TestManager_EndRequiresActive(t *testing.T) {
	m := NewManager()

	require.ErrorIs(t, m.End(), ErrNotActive)
	require.NoError(t, m.StartSearching())
	require.ErrorIs(t, m.End(), ErrNotActive)
}

func TestManager_Room(t *testing.T) {
	m := NewManager()
	assert.Empty(t, m.Room("alice"))

	require.NoError(t, m.StartSearching())
	_, err := m.BeginMatch("alice", "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "alice#bob", m.Room("alice"))
}
