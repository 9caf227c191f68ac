package store

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// pendingHandoff is one outstanding "give me the current canvas" request. The
// seq distinguishes a request from a later one by the same participant, so an
// expiry scheduled for an overwritten request never clears its replacement.
type pendingHandoff struct {
	connID string
	seq    uint64
	timer  clockwork.Timer
}

// HandoffBroker correlates canvas-state requests from late joiners with the
// first peer response. There is no server-side copy of the drawing; the broker
// only remembers which connection asked, and for how long the question stays
// open.
type HandoffBroker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	timeout time.Duration
	nextSeq uint64
	pending map[string]*pendingHandoff
}

// NewHandoffBroker creates a broker whose pending requests expire after
// timeout if no peer responds.
func NewHandoffBroker(clock clockwork.Clock, timeout time.Duration) *HandoffBroker {
	return &HandoffBroker{
		clock:   clock,
		timeout: timeout,
		pending: make(map[string]*pendingHandoff),
	}
}

// Add records a pending request for a participant, overwriting any earlier
// request from the same participant, and schedules its expiry.
func (b *HandoffBroker) Add(participantID, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prior, ok := b.pending[participantID]; ok {
		stopAndDrainTimer(prior.timer)
	}

	b.nextSeq++
	entry := &pendingHandoff{connID: connID, seq: b.nextSeq}
	seq := entry.seq
	entry.timer = b.clock.AfterFunc(b.timeout, func() {
		b.expire(participantID, seq)
	})
	b.pending[participantID] = entry
}

// Resolve consumes the pending request for a participant and returns the
// requester's connection ID. The first responder wins: once resolved, later
// responses for the same participant find nothing and are dropped.
func (b *HandoffBroker) Resolve(participantID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.pending[participantID]
	if !ok {
		return "", false
	}

	stopAndDrainTimer(entry.timer)
	delete(b.pending, participantID)
	return entry.connID, true
}

// Cancel drops any pending request for a participant, typically because they
// left the room. Cancelling an absent request is a no-op.
func (b *HandoffBroker) Cancel(participantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.pending[participantID]; ok {
		stopAndDrainTimer(entry.timer)
		delete(b.pending, participantID)
	}
}

// Pending returns the number of unresolved requests.
func (b *HandoffBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

func (b *HandoffBroker) expire(participantID string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.pending[participantID]
	if !ok || entry.seq != seq {
		return
	}
	delete(b.pending, participantID)

	log.Debug().
		Str("participant_id", participantID).
		Dur("timeout", b.timeout).
		Msg("canvas handoff request expired unanswered")
}

// stopAndDrainTimer safely stops a timer and drains its channel, following the
// pattern recommended in the time.Timer.Stop() documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
