package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinCreatesRoomAndFirstJoinerOwns(t *testing.T) {
	d := NewDirectory()

	result := d.Join("123456", "alice", "conn-a", "Alice")
	assert.False(t, result.WasAlreadyPresent)
	assert.True(t, result.Owner)
	assert.Equal(t, 1, d.Rooms())
	assert.Equal(t, 1, d.Size("123456"))
	assert.True(t, d.IsOwner("123456", "alice"))

	result = d.Join("123456", "bob", "conn-b", "Bob")
	assert.False(t, result.WasAlreadyPresent)
	assert.False(t, result.Owner)
	assert.Equal(t, 2, d.Size("123456"))
}

func TestRejoinReplacesConnection(t *testing.T) {
	d := NewDirectory()

	d.Join("123456", "alice", "conn-old", "Alice")
	result := d.Join("123456", "alice", "conn-new", "Alice")

	assert.True(t, result.WasAlreadyPresent)
	assert.True(t, result.Owner, "owner flag survives a reconnect")
	assert.Equal(t, 1, d.Size("123456"))

	conn, ok := d.ActiveConn("123456", "alice")
	require.True(t, ok)
	assert.Equal(t, "conn-new", conn)
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	d := NewDirectory()

	d.Join("123456", "alice", "conn-a", "Alice")

	result, ok := d.Leave("123456", "alice")
	require.True(t, ok)
	assert.Equal(t, "Alice", result.DisplayName)
	assert.True(t, result.RoomEmpty)

	// A room with zero participants must not persist.
	assert.Equal(t, 0, d.Rooms())
	assert.Equal(t, 0, d.Size("123456"))

	_, ok = d.Leave("123456", "alice")
	assert.False(t, ok)
}

func TestOwnerReassignedOnOwnerLeave(t *testing.T) {
	d := NewDirectory()

	d.Join("123456", "alice", "conn-a", "Alice")
	d.Join("123456", "bob", "conn-b", "Bob")

	result, ok := d.Leave("123456", "alice")
	require.True(t, ok)
	assert.False(t, result.RoomEmpty)
	assert.Equal(t, "bob", result.NewOwnerID)
	assert.True(t, d.IsOwner("123456", "bob"))
}

func TestNonOwnerLeaveKeepsOwner(t *testing.T) {
	d := NewDirectory()

	d.Join("123456", "alice", "conn-a", "Alice")
	d.Join("123456", "bob", "conn-b", "Bob")

	result, ok := d.Leave("123456", "bob")
	require.True(t, ok)
	assert.Empty(t, result.NewOwnerID)
	assert.True(t, d.IsOwner("123456", "alice"))
}

func TestLeaveIfActiveIgnoresSupersededConnection(t *testing.T) {
	d := NewDirectory()

	d.Join("123456", "alice", "conn-old", "Alice")
	d.Join("123456", "alice", "conn-new", "Alice")

	// The old connection's disconnect arrives after the reconnect; it must
	// not remove the participant.
	_, ok := d.LeaveIfActive("123456", "alice", "conn-old")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Size("123456"))

	result, ok := d.LeaveIfActive("123456", "alice", "conn-new")
	require.True(t, ok)
	assert.True(t, result.RoomEmpty)
}

func TestSnapshot(t *testing.T) {
	d := NewDirectory()

	assert.Nil(t, d.Snapshot("missing"))

	d.Join("123456", "alice", "conn-a", "Alice")
	d.Join("123456", "bob", "conn-b", "Bob")

	snapshot := d.Snapshot("123456")
	require.Len(t, snapshot, 2)

	byID := make(map[string]Participant, len(snapshot))
	for _, p := range snapshot {
		byID[p.ParticipantID] = p
	}
	assert.Equal(t, "Alice", byID["alice"].DisplayName)
	assert.True(t, byID["alice"].Owner)
	assert.Equal(t, "Bob", byID["bob"].DisplayName)
	assert.False(t, byID["bob"].Owner)
}

func TestPainterClearedWhenPainterLeaves(t *testing.T) {
	d := NewDirectory()

	d.Join("123456", "alice", "conn-a", "Alice")
	d.Join("123456", "bob", "conn-b", "Bob")
	d.SetPainter("123456", "alice")
	assert.Equal(t, "alice", d.Painter("123456"))

	_, ok := d.Leave("123456", "alice")
	require.True(t, ok)
	assert.Empty(t, d.Painter("123456"))
}
