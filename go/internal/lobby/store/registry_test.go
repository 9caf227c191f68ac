package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("conn-1")
	assert.False(t, ok)

	r.Register("conn-1", "123456", "alice")

	route, ok := r.Lookup("conn-1")
	assert.True(t, ok)
	assert.Equal(t, Route{RoomID: "123456", ParticipantID: "alice"}, route)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := NewRegistry()

	r.Register("conn-1", "123456", "alice")
	r.Register("conn-1", "654321", "bob")

	route, ok := r.Lookup("conn-1")
	assert.True(t, ok)
	assert.Equal(t, Route{RoomID: "654321", ParticipantID: "bob"}, route)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Register("conn-1", "123456", "alice")
	r.Unregister("conn-1")

	_, ok := r.Lookup("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	// Unregistering an absent connection must not panic or error.
	r.Unregister("conn-1")
	r.Unregister("never-registered")
	assert.Equal(t, 0, r.Len())
}
