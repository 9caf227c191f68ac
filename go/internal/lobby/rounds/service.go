package rounds

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Events receives the countdown notifications for a room. Implementations
// broadcast them to the room's connections.
type Events interface {
	// RoundTick fires once per second with the remaining seconds of the
	// current round.
	RoundTick(roomID string, remainingSec int)
	// RoundAdvanced fires when a round runs out and another one begins.
	RoundAdvanced(roomID string, currentRound, totalRounds int)
	// GameEnded fires when the final round runs out. The room's timer is
	// already removed when this is called.
	GameEnded(roomID string)
}

// roomTimer is one room's countdown. Ticks for a room are handled by a single
// goroutine, so they never overlap.
type roomTimer struct {
	roomID      string
	remaining   int
	durationSec int
	round       int
	totalRounds int
	ticker      clockwork.Ticker
	stopCh      chan struct{}
}

// Service runs at most one countdown per room. Starting a room that already
// has a running timer is a no-op, so a double-start request can never produce
// two concurrently ticking countdowns.
type Service struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	events Events
	timers map[string]*roomTimer
}

// NewService creates a timer service driven by the given clock.
func NewService(clock clockwork.Clock, events Events) *Service {
	return &Service{
		clock:  clock,
		events: events,
		timers: make(map[string]*roomTimer),
	}
}

// Start begins a countdown for the room at round 1. It returns false without
// side effects when a timer already exists for the room, or when the
// parameters are unusable. Total rounds must come from the room's
// configuration; there is deliberately no default here.
func (s *Service) Start(roomID string, drawDurationSec, totalRounds int) bool {
	if drawDurationSec <= 0 || totalRounds <= 0 {
		log.Warn().
			Str("room_id", roomID).
			Int("draw_duration_sec", drawDurationSec).
			Int("total_rounds", totalRounds).
			Msg("rejecting timer start with unusable parameters")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.timers[roomID]; exists {
		log.Debug().Str("room_id", roomID).Msg("timer already running, ignoring start")
		return false
	}

	t := &roomTimer{
		roomID:      roomID,
		remaining:   drawDurationSec,
		durationSec: drawDurationSec,
		round:       1,
		totalRounds: totalRounds,
		ticker:      s.clock.NewTicker(time.Second),
		stopCh:      make(chan struct{}),
	}
	s.timers[roomID] = t

	go s.run(t)

	log.Info().
		Str("room_id", roomID).
		Int("draw_duration_sec", drawDurationSec).
		Int("total_rounds", totalRounds).
		Msg("round timer started")

	return true
}

// Cancel stops and removes the room's timer. Cancelling an absent timer is a
// no-op. This is invoked from empty-room cleanup; a timer must never outlive
// its room.
func (s *Service) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		delete(s.timers, roomID)
		close(t.stopCh)

		log.Info().Str("room_id", roomID).Msg("round timer cancelled")
	}
}

// Remaining returns the seconds left in the current round, for catching up a
// freshly joined connection.
func (s *Service) Remaining(roomID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		return t.remaining, true
	}
	return 0, false
}

// Round returns the current and total round counts of a running timer.
func (s *Service) Round(roomID string) (current, total int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[roomID]; ok {
		return t.round, t.totalRounds, true
	}
	return 0, 0, false
}

// Active returns the number of rooms with a running timer.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

func (s *Service) run(t *roomTimer) {
	defer t.ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-t.ticker.Chan():
			if done := s.tick(t); done {
				return
			}
		}
	}
}

// tick advances the countdown by one second and reports whether the timer is
// finished. Notifications go out after the state mutation, outside the lock.
func (s *Service) tick(t *roomTimer) bool {
	s.mu.Lock()

	// The room may have been cancelled between the ticker firing and us
	// taking the lock.
	if current, ok := s.timers[t.roomID]; !ok || current != t {
		s.mu.Unlock()
		return true
	}

	t.remaining--
	remaining := t.remaining

	if remaining > 0 {
		s.mu.Unlock()
		s.events.RoundTick(t.roomID, remaining)
		return false
	}

	if t.round < t.totalRounds {
		t.round++
		t.remaining = t.durationSec
		round, total := t.round, t.totalRounds
		s.mu.Unlock()

		s.events.RoundTick(t.roomID, 0)
		s.events.RoundAdvanced(t.roomID, round, total)

		log.Debug().
			Str("room_id", t.roomID).
			Int("round", round).
			Int("total_rounds", total).
			Msg("round advanced")

		return false
	}

	delete(s.timers, t.roomID)
	s.mu.Unlock()

	s.events.RoundTick(t.roomID, 0)
	s.events.GameEnded(t.roomID)

	log.Info().Str("room_id", t.roomID).Msg("final round finished, timer removed")

	return true
}
