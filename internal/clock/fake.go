package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Timers fire synchronously,
// in deadline order, from the goroutine calling Advance.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

// NewFake returns a fake clock starting at a fixed instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d < 0 {
		d = 0
	}
	f.seq++
	t := &fakeTimer{
		clk: f,
		at:  f.now.Add(d),
		seq: f.seq,
		fn:  fn,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward, firing every timer whose deadline is
// reached. Callbacks run without the clock lock held, so they may schedule
// further timers; a chained timer due within the same window also fires.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		t := f.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	f.mu.Lock()
	if target.After(f.now) {
		f.now = target
	}
	f.mu.Unlock()
}

// PendingTimers reports how many timers are armed.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// popDue removes and returns the earliest unstopped timer due at or before
// target, advancing now to its deadline. Returns nil when none remain.
func (f *Fake) popDue(target time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	sort.SliceStable(f.timers, func(i, j int) bool {
		if f.timers[i].at.Equal(f.timers[j].at) {
			return f.timers[i].seq < f.timers[j].seq
		}
		return f.timers[i].at.Before(f.timers[j].at)
	})

	for i, t := range f.timers {
		if t.stopped {
			continue
		}
		if t.at.After(target) {
			break
		}
		f.timers = append(f.timers[:i], f.timers[i+1:]...)
		if t.at.After(f.now) {
			f.now = t.at
		}
		t.fired = true
		return t
	}
	return nil
}

type fakeTimer struct {
	clk     *Fake
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
