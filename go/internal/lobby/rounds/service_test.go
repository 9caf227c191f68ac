package rounds

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvents captures countdown notifications for assertions.
type recordingEvents struct {
	mu       sync.Mutex
	ticks    []int
	advances []advance
	ended    int
}

type advance struct {
	round int
	total int
}

func (r *recordingEvents) RoundTick(roomID string, remainingSec int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remainingSec)
}

func (r *recordingEvents) RoundAdvanced(roomID string, currentRound, totalRounds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advances = append(r.advances, advance{round: currentRound, total: totalRounds})
}

func (r *recordingEvents) GameEnded(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}

func (r *recordingEvents) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recordingEvents) snapshot() ([]int, []advance, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...), append([]advance(nil), r.advances...), r.ended
}

func (r *recordingEvents) endedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func newTestService(t *testing.T) (*Service, *recordingEvents, *clockwork.FakeClock) {
	t.Helper()
	events := &recordingEvents{}
	clock := clockwork.NewFakeClock()
	return NewService(clock, events), events, clock
}

// tickOnce advances the fake clock one second and waits for the tick to be
// processed, so consecutive ticks cannot coalesce.
func tickOnce(t *testing.T, clock *clockwork.FakeClock, events *recordingEvents) {
	t.Helper()
	before := events.tickCount()
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return events.tickCount() > before },
		time.Second, time.Millisecond)
}

func TestStartIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.True(t, svc.Start("123456", 60, 3))
	assert.False(t, svc.Start("123456", 60, 3), "second start must be a no-op")
	assert.False(t, svc.Start("123456", 30, 5))
	assert.Equal(t, 1, svc.Active())

	remaining, ok := svc.Remaining("123456")
	require.True(t, ok)
	assert.Equal(t, 60, remaining, "double start must not touch the running countdown")
}

func TestStartRejectsUnusableParameters(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.False(t, svc.Start("123456", 0, 3))
	assert.False(t, svc.Start("123456", 60, 0))
	assert.False(t, svc.Start("123456", -1, -1))
	assert.Equal(t, 0, svc.Active())
}

func TestCountdownAdvancesRoundsAndEnds(t *testing.T) {
	svc, events, clock := newTestService(t)

	require.True(t, svc.Start("123456", 3, 2))

	for i := 0; i < 3; i++ {
		tickOnce(t, clock, events)
	}

	ticks, advances, ended := events.snapshot()
	assert.Equal(t, []int{2, 1, 0}, ticks)
	require.Len(t, advances, 1)
	assert.Equal(t, advance{round: 2, total: 2}, advances[0])
	assert.Equal(t, 0, ended)

	remaining, ok := svc.Remaining("123456")
	require.True(t, ok)
	assert.Equal(t, 3, remaining, "round advance resets the countdown")

	current, total, ok := svc.Round("123456")
	require.True(t, ok)
	assert.Equal(t, 2, current)
	assert.Equal(t, 2, total)

	for i := 0; i < 3; i++ {
		tickOnce(t, clock, events)
	}

	require.Eventually(t, func() bool { return events.endedCount() == 1 },
		time.Second, time.Millisecond)

	ticks, advances, _ = events.snapshot()
	assert.Equal(t, []int{2, 1, 0, 2, 1, 0}, ticks)
	assert.Len(t, advances, 1, "the final round ends the game instead of advancing")

	// Timer is gone after the game ends.
	assert.Equal(t, 0, svc.Active())
	_, ok = svc.Remaining("123456")
	assert.False(t, ok)
}

func TestSingleRoundGameEndsWithoutAdvance(t *testing.T) {
	svc, events, clock := newTestService(t)

	require.True(t, svc.Start("123456", 2, 1))

	tickOnce(t, clock, events)
	tickOnce(t, clock, events)

	require.Eventually(t, func() bool { return events.endedCount() == 1 },
		time.Second, time.Millisecond)

	_, advances, _ := events.snapshot()
	assert.Empty(t, advances)
	assert.Equal(t, 0, svc.Active())
}

func TestCancelStopsTicking(t *testing.T) {
	svc, events, clock := newTestService(t)

	require.True(t, svc.Start("123456", 60, 3))
	tickOnce(t, clock, events)

	svc.Cancel("123456")
	assert.Equal(t, 0, svc.Active())

	clock.Advance(time.Second)
	clock.Advance(time.Second)

	// No further ticks arrive after cancellation.
	assert.Never(t, func() bool { return events.tickCount() > 1 },
		100*time.Millisecond, 10*time.Millisecond)
}

func TestCancelIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)

	require.True(t, svc.Start("123456", 60, 3))
	svc.Cancel("123456")
	svc.Cancel("123456")
	svc.Cancel("never-started")
	assert.Equal(t, 0, svc.Active())
}

func TestRoomsTickIndependently(t *testing.T) {
	svc, events, clock := newTestService(t)

	require.True(t, svc.Start("room-a", 10, 2))
	require.True(t, svc.Start("room-b", 20, 2))
	assert.Equal(t, 2, svc.Active())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return events.tickCount() == 2 },
		time.Second, time.Millisecond)

	remainingA, ok := svc.Remaining("room-a")
	require.True(t, ok)
	remainingB, ok := svc.Remaining("room-b")
	require.True(t, ok)
	assert.Equal(t, 9, remainingA)
	assert.Equal(t, 19, remainingB)

	svc.Cancel("room-a")
	assert.Equal(t, 1, svc.Active())
	_, ok = svc.Remaining("room-b")
	assert.True(t, ok)
}
