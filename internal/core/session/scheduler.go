package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/surveyhub/portal/internal/pkg/metrics"
)

// DefaultRefreshInterval lands inside the 60 minute access token lifetime with
// 5 minutes to spare.
const DefaultRefreshInterval = 55 * time.Minute

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// TimerFunc schedules f to run once after d.
type TimerFunc func(d time.Duration, f func()) Timer

func realTimer(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SchedulerState is ARMED while an identity is present and DISARMED otherwise.
type SchedulerState string

const (
	Armed    SchedulerState = "ARMED"
	Disarmed SchedulerState = "DISARMED"
)

// Scheduler renews credentials on a fixed interval while the observed store holds an
// identity. It never disarms itself on refresh failure: the failed refresh clears the
// identity and the store notification disarms it.
type Scheduler struct {
	refresh  func(context.Context) error
	interval time.Duration
	newTimer TimerFunc
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	timer       Timer
	generation  uint64
	closed      bool
	unsubscribe func()
}

// NewScheduler starts observing store. If an identity is already present the scheduler
// arms immediately.
func NewScheduler(store *Store, refresh func(context.Context) error, interval time.Duration, newTimer TimerFunc, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if newTimer == nil {
		newTimer = realTimer
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		refresh:  refresh,
		interval: interval,
		newTimer: newTimer,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	unsubscribe := store.Subscribe(s.observe)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return s
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return s
}

// State reports whether a timer is currently live.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return Armed
	}
	return Disarmed
}

func (s *Scheduler) observe(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch {
	case st.Authenticated() && s.timer == nil:
		s.armLocked()
	case !st.Authenticated() && s.timer != nil:
		s.disarmLocked()
	}
}

// armLocked clears any prior timer before starting a new one.
func (s *Scheduler) armLocked() {
	if s.timer != nil {
		s.disarmLocked()
	}
	s.generation++
	gen := s.generation
	s.timer = s.newTimer(s.interval, func() { s.fire(gen) })
	metrics.RefreshSchedulersArmed.Inc()
}

func (s *Scheduler) disarmLocked() {
	s.timer.Stop()
	s.timer = nil
	s.generation++
	metrics.RefreshSchedulersArmed.Dec()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// refresh runs unlocked: a failure clears the identity, and that notification
	// re-enters observe.
	if err := s.refresh(s.ctx); err != nil {
		s.log.Warn().Err(err).Msg("scheduled token refresh failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.generation || s.timer == nil {
		return
	}
	s.generation++
	next := s.generation
	s.timer = s.newTimer(s.interval, func() { s.fire(next) })
}

// Close disarms the timer, cancels an in-flight scheduled refresh and stops observing
// the store. It is safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.disarmLocked()
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
}
