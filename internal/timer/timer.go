// Package timer provides the cancellable, resettable one-shot timer used for
// heartbeat watchdogs and per-request deadlines.
package timer

import (
	"sync"
	"time"
)

// Scheduler runs expiry callbacks. *loop.Loop satisfies it.
type Scheduler interface {
	Post(fn func()) bool
}

// Timer fires its callback once after Delay unless cancelled or reset first.
type Timer struct {
	sched Scheduler
	fn    func()
	delay time.Duration

	mu    sync.Mutex
	t     *time.Timer
	gen   uint64
	fired bool
}

// Start arms a timer. When sched is nil the callback runs on the runtime timer goroutine.
func Start(sched Scheduler, fn func(), delay time.Duration) *Timer {
	t := &Timer{sched: sched, fn: fn, delay: delay}
	t.mu.Lock()
	t.armLocked()
	t.mu.Unlock()
	return t
}

func (t *Timer) Delay() time.Duration {
	return t.delay
}

// Fired reports whether the callback has run since the last Start/Reset.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Cancel prevents a pending callback from running. Safe to call repeatedly.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Reset cancels and rearms with the same delay and callback.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.fired = false
	t.armLocked()
}

func (t *Timer) armLocked() {
	t.gen++
	gen := t.gen
	t.t = time.AfterFunc(t.delay, func() {
		t.expire(gen)
	})
}

func (t *Timer) stopLocked() {
	// A bumped generation also voids an expiry already queued on the scheduler.
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

func (t *Timer) expire(gen uint64) {
	if t.sched == nil {
		t.fire(gen)
		return
	}
	t.sched.Post(func() {
		t.fire(gen)
	})
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.t = nil
	t.mu.Unlock()

	if t.fn != nil {
		t.fn()
	}
}
