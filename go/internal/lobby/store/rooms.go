package store

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Member is a participant's entry within a room.
type Member struct {
	ConnID      string
	DisplayName string
	Owner       bool
}

// Participant is the wire-facing view of a room member, used in lobby
// snapshots sent to joining connections.
type Participant struct {
	ParticipantID string `json:"userId"`
	DisplayName   string `json:"username"`
	Owner         bool   `json:"isOwner"`
}

type room struct {
	members   map[string]*Member
	painterID string
}

// JoinResult reports the outcome of a join.
type JoinResult struct {
	// WasAlreadyPresent is true when the participant was already in the room
	// under another connection. The newer connection wins; callers use this to
	// suppress a duplicate "joined" broadcast.
	WasAlreadyPresent bool
	// Owner is true when the joining participant holds the room's owner flag.
	Owner bool
}

// LeaveResult reports the outcome of a leave.
type LeaveResult struct {
	DisplayName string
	// NewOwnerID is set when the departing participant owned the room and the
	// flag was reassigned to a remaining participant.
	NewOwnerID string
	// RoomEmpty is true when the room was deleted because its last participant
	// left. Callers must cancel any timer still running for the room.
	RoomEmpty bool
}

// Directory tracks which participants are in which room. Rooms are created
// lazily on first join and deleted as soon as they empty; an empty room never
// persists.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewDirectory creates an empty room directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]*room),
	}
}

// Join adds a participant to a room, creating the room if necessary. The first
// joiner becomes owner. If the participant is already present under a
// different connection the entry is replaced (last connection wins) and the
// owner flag is preserved.
func (d *Directory) Join(roomID, participantID, connID, displayName string) JoinResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]*Member)}
		d.rooms[roomID] = rm
	}

	if existing, ok := rm.members[participantID]; ok {
		existing.ConnID = connID
		if displayName != "" {
			existing.DisplayName = displayName
		}
		return JoinResult{WasAlreadyPresent: true, Owner: existing.Owner}
	}

	owner := len(rm.members) == 0
	rm.members[participantID] = &Member{
		ConnID:      connID,
		DisplayName: displayName,
		Owner:       owner,
	}

	log.Debug().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Int("room_size", len(rm.members)).
		Msg("participant joined room")

	return JoinResult{Owner: owner}
}

// Leave removes a participant from a room unconditionally.
func (d *Directory) Leave(roomID, participantID string) (LeaveResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.removeLocked(roomID, participantID)
}

// LeaveIfActive removes a participant only when connID is still their active
// connection. A stale disconnect from a superseded connection resolves to
// false and leaves the participant in place; this is what keeps a reconnect
// from generating a spurious departure.
func (d *Directory) LeaveIfActive(roomID, participantID, connID string) (LeaveResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	member, ok := rm.members[participantID]
	if !ok || member.ConnID != connID {
		return LeaveResult{}, false
	}

	return d.removeLocked(roomID, participantID)
}

func (d *Directory) removeLocked(roomID, participantID string) (LeaveResult, bool) {
	rm, ok := d.rooms[roomID]
	if !ok {
		return LeaveResult{}, false
	}
	member, ok := rm.members[participantID]
	if !ok {
		return LeaveResult{}, false
	}

	delete(rm.members, participantID)
	if rm.painterID == participantID {
		rm.painterID = ""
	}

	result := LeaveResult{DisplayName: member.DisplayName}

	if len(rm.members) == 0 {
		delete(d.rooms, roomID)
		result.RoomEmpty = true

		log.Debug().Str("room_id", roomID).Msg("room emptied, deleted")

		return result, true
	}

	if member.Owner {
		for id, remaining := range rm.members {
			remaining.Owner = true
			result.NewOwnerID = id
			break
		}
	}

	return result, true
}

// Snapshot returns the room's current participants, for full-state sync to a
// newly joined connection. Order is not significant.
func (d *Directory) Snapshot(roomID string) []Participant {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return nil
	}

	participants := make([]Participant, 0, len(rm.members))
	for id, member := range rm.members {
		participants = append(participants, Participant{
			ParticipantID: id,
			DisplayName:   member.DisplayName,
			Owner:         member.Owner,
		})
	}
	return participants
}

// IsOwner reports whether the participant holds the room's owner flag.
func (d *Directory) IsOwner(roomID, participantID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	member, ok := rm.members[participantID]
	return ok && member.Owner
}

// ActiveConn returns the participant's current connection ID in the room.
func (d *Directory) ActiveConn(roomID, participantID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return "", false
	}
	member, ok := rm.members[participantID]
	if !ok {
		return "", false
	}
	return member.ConnID, true
}

// Size returns the participant count of a room. Absent rooms have size zero.
func (d *Directory) Size(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// SetPainter marks the participant currently drawing in the room.
func (d *Directory) SetPainter(roomID, participantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rm, ok := d.rooms[roomID]; ok {
		rm.painterID = participantID
	}
}

// Painter returns the room's current painter, if any.
func (d *Directory) Painter(roomID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rm, ok := d.rooms[roomID]; ok {
		return rm.painterID
	}
	return ""
}

// Rooms returns the number of active rooms.
func (d *Directory) Rooms() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.rooms)
}
