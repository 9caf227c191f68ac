package gateway

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A disconnect can close a connection's send channel while the delivery loop
// is fanning a frame out to the same room. The delivery goroutine is the only
// one the relay has, so a send-on-closed-channel panic here would take the
// whole process down with it.
func TestDeliverRacingDisconnectDoesNotPanic(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	event, err := NewOutboundEvent(EventChatMessage, ChatMessagePayload{RoomID: "123456", Text: "hi"})
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		conn := &Connection{
			ID:      fmt.Sprintf("conn-%d", i),
			Send:    make(chan []byte, 1),
			Manager: cm,
		}
		cm.mu.Lock()
		cm.conns[conn.ID] = conn
		cm.mu.Unlock()
		cm.JoinRoom(conn.ID, "123456")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			cm.deliver(outboundFrame{roomID: "123456", event: event})
		}()
		go func() {
			defer wg.Done()
			cm.removeConnection(conn)
		}()
		wg.Wait()
	}

	stats := cm.GetStats()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, 0, stats.ActiveRooms)
}

func TestRemoveConnectionIdempotent(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	conn := &Connection{ID: "conn-a", Send: make(chan []byte, 1), Manager: cm}
	cm.mu.Lock()
	cm.conns[conn.ID] = conn
	cm.mu.Unlock()
	cm.JoinRoom(conn.ID, "123456")

	cm.removeConnection(conn)
	// The pumps and the delivery loop can both reach removal; the second
	// call must not close the send channel again.
	cm.removeConnection(conn)

	stats := cm.GetStats()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, 0, stats.ActiveRooms)
}
