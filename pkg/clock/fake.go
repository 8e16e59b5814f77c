package clock

import (
	"sync"
	"time"
)

// NewFake returns a Fake clock pinned to initial. Time moves only when
// Advance is called.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

// Fake is a deterministic Clock for tests. Pending After/Sleep/Ticker
// waiters fire when Advance moves the clock past their deadline. Safe
// for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	// interval is non-zero for tickers; the waiter reschedules itself
	// at deadline + interval after firing.
	interval time.Duration
	stopped  bool
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// After registers a one-shot waiter firing at now + d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- f.current
		return channel
	}
	f.waiters = append(f.waiters, &fakeWaiter{
		deadline: f.current.Add(d),
		channel:  channel,
	})
	return channel
}

// NewTicker registers a repeating waiter with period d.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: f.current.Add(d),
		channel:  make(chan time.Time, 1),
		interval: d,
	}
	f.waiters = append(f.waiters, waiter)

	return &Ticker{
		C: waiter.channel,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Sleep blocks until the clock is advanced past now + d.
func (f *Fake) Sleep(d time.Duration) {
	<-f.After(d)
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.current.Add(d)
	for {
		next := f.nextDeadlineLocked(target)
		if next == nil {
			break
		}
		f.current = next.deadline
		// Non-blocking send: ticker consumers that fall behind drop
		// ticks, matching time.Ticker.
		select {
		case next.channel <- f.current:
		default:
		}
		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
		} else {
			next.stopped = true
		}
	}
	f.current = target
	f.compactLocked()
}

func (f *Fake) nextDeadlineLocked(limit time.Time) *fakeWaiter {
	var earliest *fakeWaiter
	for _, waiter := range f.waiters {
		if waiter.stopped || waiter.deadline.After(limit) {
			continue
		}
		if earliest == nil || waiter.deadline.Before(earliest.deadline) {
			earliest = waiter
		}
	}
	return earliest
}

func (f *Fake) compactLocked() {
	active := f.waiters[:0]
	for _, waiter := range f.waiters {
		if !waiter.stopped {
			active = append(active, waiter)
		}
	}
	f.waiters = active
}
