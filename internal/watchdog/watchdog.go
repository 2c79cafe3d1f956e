// Package watchdog provides the per-scenario deadline timer.
//
// A watchdog is single-shot: it is armed for one scenario, fires at most
// once, and is never re-armed. "Fired" is a terminal state: Cancel after
// the deadline has passed is a safe no-op, because by then the
// abnormal-termination path has already taken over the run.
package watchdog

import (
	"sync"
	"time"
)

// Watchdog is a cancellable single-shot deadline timer.
type Watchdog struct {
	timer *time.Timer

	mu        sync.Mutex
	fired     bool
	cancelled bool
}

// Arm starts a deadline timer that invokes onFire from its own goroutine
// once d elapses, unless Cancel is called first.
func Arm(d time.Duration, onFire func()) *Watchdog {
	w := &Watchdog{}
	w.timer = time.AfterFunc(d, func() {
		w.mu.Lock()
		if w.cancelled {
			w.mu.Unlock()
			return
		}
		w.fired = true
		w.mu.Unlock()
		onFire()
	})
	return w
}

// Cancel disarms the watchdog. Calling it after the watchdog has fired is
// a no-op.
func (w *Watchdog) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return
	}
	w.cancelled = true
	w.timer.Stop()
}

// Fired reports whether the deadline elapsed before Cancel.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
