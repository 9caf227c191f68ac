package store

import "sync"

// Route identifies where a connection currently lives: the room it joined and
// the participant it speaks for.
type Route struct {
	RoomID        string
	ParticipantID string
}

// Registry maps transport-level connection IDs to their current route. It is
// pure bookkeeping; every other component resolves inbound connections through
// it.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		routes: make(map[string]Route),
	}
}

// Register records the route for a connection, overwriting any prior mapping
// for the same connection ID.
func (r *Registry) Register(connID, roomID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.routes[connID] = Route{RoomID: roomID, ParticipantID: participantID}
}

// Lookup returns the route for a connection, if one is registered.
func (r *Registry) Lookup(connID string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[connID]
	return route, ok
}

// Unregister removes the mapping for a connection. Removing an absent
// connection is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.routes, connID)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.routes)
}
