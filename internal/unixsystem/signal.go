// Package unixsystem is the OS facade spec.md §1 and §9 treat as a
// peripheral, interfaces-only collaborator: file descriptors, timers, and
// the thread signals frameloader/frameplayer/scriptrunner suspend on. It
// is modeled as a passed-in handle, never a process-global, so tests can
// run with an independent instance per case - grounded on
// original_source/unix_system.cpp's UnixSystemDef/ThreadSignalDef split
// between a small System facade and a latching condition-variable signal.
package unixsystem

import (
	"sync"
	"time"
)

// Signal is a latching, level-triggered wake primitive: Set() is
// idempotent and wakes exactly one waiter (or none, if none are waiting,
// in which case the next Wait returns immediately). It is the Go
// equivalent of original_source's ThreadSignalDef, used wherever spec.md
// describes a component suspending on "request-changed | stop |
// backoff-timer" style conditions.
type Signal struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  bool
}

// NewSignal creates a ready-to-use Signal.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Set raises the signal, waking a waiter if one is blocked in Wait. It is
// safe to call Set any number of times before a Wait consumes it; the
// signal does not count, it only latches.
func (s *Signal) Set() {
	s.mu.Lock()
	if !s.set {
		s.set = true
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// Wait blocks until Set is called, then clears the latch.
func (s *Signal) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.set {
		s.cond.Wait()
	}
	s.set = false
}

// WaitFor blocks until Set is called or the timeout elapses, returning
// true if it was woken by Set and false on timeout. Like original_source's
// wait_for, it uses a relative deadline measured from the call.
func (s *Signal) WaitFor(d time.Duration) bool {
	return s.WaitUntil(time.Now().Add(d))
}

// WaitUntil blocks until Set is called or the deadline passes.
//
// sync.Cond has no timed wait, so this polls on a short interval bounded
// by the remaining time to deadline - acceptable here because the signal
// is latching (a missed wake within the poll interval is not lost, it is
// just observed slightly late) and because every caller in this
// repository also re-checks its own stop/version conditions on each wake.
func (s *Signal) WaitUntil(deadline time.Time) bool {
	const pollInterval = 5 * time.Millisecond

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.set {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := remaining
		if wait > pollInterval {
			wait = pollInterval
		}

		s.mu.Unlock()
		time.Sleep(wait)
		s.mu.Lock()
	}
	s.set = false
	return true
}
