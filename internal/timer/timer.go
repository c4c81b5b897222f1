// Package timer provides cancellable single-shot timers whose firings are
// delivered through a caller supplied post function, so they run on the
// owner's goroutine instead of the runtime timer goroutine.
package timer

import "time"

// Stopper cancels a scheduled callback.
type Stopper interface {
	Stop() bool
}

// Clock abstracts time so timer driven logic can be tested deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Handle is a single-shot, re-armable timer with at most one outstanding firing.
// All methods must be called from the goroutine that drains post.
type Handle struct {
	clock Clock
	post  func(func())
	fire  func()

	gen   uint64
	armed bool
	stop  Stopper
}

// NewHandle binds fire to the clock. post hands the firing to the owning loop.
func NewHandle(clock Clock, post func(func()), fire func()) *Handle {
	if clock == nil {
		clock = RealClock()
	}
	return &Handle{clock: clock, post: post, fire: fire}
}

// Arm cancels any pending firing and schedules a new one after d.
func (h *Handle) Arm(d time.Duration) {
	h.Cancel()
	if d < 0 {
		d = 0
	}
	gen := h.gen
	h.armed = true
	h.stop = h.clock.AfterFunc(d, func() {
		h.post(func() {
			if !h.armed || h.gen != gen {
				return
			}
			h.armed = false
			h.stop = nil
			h.fire()
		})
	})
}

// Cancel drops any pending firing, including one already posted but not yet run.
// Safe to call when nothing is armed.
func (h *Handle) Cancel() {
	if h.stop != nil {
		h.stop.Stop()
		h.stop = nil
	}
	h.armed = false
	h.gen++
}

// Armed reports whether a firing is outstanding.
func (h *Handle) Armed() bool {
	return h.armed
}
