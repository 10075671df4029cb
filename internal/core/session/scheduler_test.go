package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(store *Store, refresh func(context.Context) error) (*Scheduler, *fakeTimers) {
	timers := &fakeTimers{}
	return NewScheduler(store, refresh, time.Minute, timers.New, zerolog.Nop()), timers
}

func setIdentity(s *Store, present bool) {
	s.Update(func(st *State) {
		if present {
			st.Identity = alice()
		} else {
			st.Identity = nil
		}
	})
}

func TestScheduler_StartsDisarmed(t *testing.T) {
	sched, timers := newTestScheduler(NewStore(), func(context.Context) error { return nil })
	defer sched.Close()

	assert.Equal(t, Disarmed, sched.State())
	assert.Empty(t, timers.live())
}

func TestScheduler_ArmsWhenIdentityAlreadyPresent(t *testing.T) {
	store := NewStore()
	setIdentity(store, true)

	sched, timers := newTestScheduler(store, func(context.Context) error { return nil })
	defer sched.Close()

	assert.Equal(t, Armed, sched.State())
	require.Len(t, timers.live(), 1)
	assert.Equal(t, time.Minute, timers.live()[0].d)
}

func TestScheduler_ArmedIffLastTransitionWasPresent(t *testing.T) {
	store := NewStore()
	sched, timers := newTestScheduler(store, func(context.Context) error { return nil })
	defer sched.Close()

	sequence := []bool{true, true, false, false, true, false, true, true, true, false, true}
	for i, present := range sequence {
		setIdentity(store, present)

		want := Disarmed
		if present {
			want = Armed
		}
		assert.Equal(t, want, sched.State(), "step %d", i)
		assert.LessOrEqual(t, len(timers.live()), 1, "step %d: more than one live timer", i)
		if present {
			assert.Len(t, timers.live(), 1, "step %d", i)
		} else {
			assert.Empty(t, timers.live(), "step %d", i)
		}
	}
}

func TestScheduler_FireRefreshesAndRearms(t *testing.T) {
	store := NewStore()
	var calls atomic.Int32
	sched, timers := newTestScheduler(store, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	defer sched.Close()

	setIdentity(store, true)
	timers.fire(t)
	timers.fire(t)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, Armed, sched.State())
	assert.Len(t, timers.live(), 1)
}

func TestScheduler_RefreshErrorDoesNotStopLoop(t *testing.T) {
	store := NewStore()
	sched, timers := newTestScheduler(store, func(context.Context) error {
		return errors.New("network down")
	})
	defer sched.Close()

	setIdentity(store, true)
	assert.NotPanics(t, func() { timers.fire(t) })

	// Identity untouched, so the scheduler keeps ticking.
	assert.Equal(t, Armed, sched.State())
	assert.Len(t, timers.live(), 1)
}

func TestScheduler_DisarmsThroughStoreWhenRefreshClearsIdentity(t *testing.T) {
	store := NewStore()
	sched, timers := newTestScheduler(store, func(context.Context) error {
		setIdentity(store, false)
		return errors.New("refresh rejected")
	})
	defer sched.Close()

	setIdentity(store, true)
	timers.fire(t)

	assert.Equal(t, Disarmed, sched.State())
	assert.Empty(t, timers.live())
}

func TestScheduler_CloseIsIdempotentAndStopsObserving(t *testing.T) {
	store := NewStore()
	sched, timers := newTestScheduler(store, func(context.Context) error { return nil })

	setIdentity(store, true)
	sched.Close()
	sched.Close()

	assert.Equal(t, Disarmed, sched.State())
	assert.Empty(t, timers.live())

	setIdentity(store, false)
	setIdentity(store, true)
	assert.Equal(t, Disarmed, sched.State())
	assert.Empty(t, timers.live())
}

func TestScheduler_StaleTimerCallbackIsIgnored(t *testing.T) {
	store := NewStore()
	var calls atomic.Int32
	sched, timers := newTestScheduler(store, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	defer sched.Close()

	setIdentity(store, true)
	stale := timers.live()[0]
	setIdentity(store, false)
	setIdentity(store, true)

	// A callback that raced with Stop must not refresh or start a second timer.
	stale.f()
	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, timers.live(), 1)
}
