// Package lockwatch tracks a server-issued lockout deadline and drives a
// local countdown toward it. The server remains authoritative: the watcher
// only renders the deadline it was given and never decides lock state itself.
package lockwatch

import (
	"fmt"
	"sync"
	"time"
)

// State is the watcher's current mode
type State int

const (
	// StateIdle means no active lock; the login form is usable
	StateIdle State = iota
	// StateLocked means a lock deadline is pending; submission is disabled
	StateLocked
)

func (s State) String() string {
	if s == StateLocked {
		return "locked"
	}
	return "idle"
}

// Watcher owns a single countdown timer toward a lock deadline. Setting a new
// deadline always cancels the previous timer first, so at most one ticker
// runs at a time. The transition back to Idle happens exactly once per lock.
type Watcher struct {
	mu       sync.Mutex
	state    State
	until    time.Time
	stop     chan struct{}
	now      func() time.Time
	interval time.Duration
	onTick   func(remaining int)
	onUnlock func()
}

// Option configures a Watcher
type Option func(*Watcher)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithInterval overrides the tick interval
func WithInterval(interval time.Duration) Option {
	return func(w *Watcher) { w.interval = interval }
}

// OnTick registers a callback fired with the remaining seconds on every tick
func OnTick(fn func(remaining int)) Option {
	return func(w *Watcher) { w.onTick = fn }
}

// OnUnlock registers a callback fired once when the countdown reaches zero
func OnUnlock(fn func()) Option {
	return func(w *Watcher) { w.onUnlock = fn }
}

// NewWatcher creates an idle watcher
func NewWatcher(opts ...Option) *Watcher {
	w := &Watcher{
		state:    StateIdle,
		now:      time.Now,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Lock enters the Locked state counting down toward until. A deadline already
// in the past leaves the watcher Idle and fires the unlock callback once.
func (w *Watcher) Lock(until time.Time) {
	w.mu.Lock()
	w.cancelLocked()
	w.until = until

	if remainingSeconds(until, w.now()) <= 0 {
		w.state = StateIdle
		unlock := w.onUnlock
		w.mu.Unlock()
		if unlock != nil {
			unlock()
		}
		return
	}

	w.state = StateLocked
	stop := make(chan struct{})
	w.stop = stop
	interval := w.interval
	w.mu.Unlock()

	go w.run(stop, interval)
}

func (w *Watcher) run(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			// A replaced or stopped timer must not touch state
			if w.state != StateLocked || w.stop != stop {
				w.mu.Unlock()
				return
			}

			rem := remainingSeconds(w.until, w.now())
			tick := w.onTick
			if rem <= 0 {
				w.state = StateIdle
				w.stop = nil
				unlock := w.onUnlock
				w.mu.Unlock()
				if tick != nil {
					tick(0)
				}
				if unlock != nil {
					unlock()
				}
				return
			}
			w.mu.Unlock()

			if tick == nil {
				continue
			}
			// A tick that lost the race with Stop or a replacing Lock
			// must not surface
			w.mu.Lock()
			current := w.state == StateLocked && w.stop == stop
			w.mu.Unlock()
			if current {
				tick(rem)
			}
		}
	}
}

// State returns the current state
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Remaining returns the seconds left on the active lock, never negative.
// Returns 0 when idle.
func (w *Watcher) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateLocked {
		return 0
	}
	return remainingSeconds(w.until, w.now())
}

// Stop cancels any running timer without firing the unlock callback.
// Intended for teardown.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked()
	w.state = StateIdle
}

func (w *Watcher) cancelLocked() {
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}

func remainingSeconds(until, now time.Time) int {
	d := until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// FormatRemaining renders remaining seconds as m:ss for countdown display
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
