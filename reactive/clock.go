package reactive

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock schedules the periodic drain and the timers exposed to templates.
// Callbacks always run on the goroutine that owns the clock.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn once after d. The returned func cancels it and
	// reports whether it was still pending.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type timer struct {
	when     time.Time
	seq      uint64
	fn       func()
	canceled bool
	fired    bool
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ManualClock is a virtual clock for deterministic tests. Timers fire only
// from Advance, on the calling goroutine.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers timerHeap
}

func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Unix(0, 0).UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, fn func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{when: c.now.Add(d), seq: c.seq, fn: fn}
	heap.Push(&c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.canceled || t.fired {
			return false
		}
		t.canceled = true
		return true
	}
}

// Advance moves time forward by d, firing due timers in order. Timers
// scheduled by fired callbacks also fire if they fall within the window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		if len(c.timers) == 0 || c.timers[0].when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := heap.Pop(&c.timers).(*timer)
		if t.when.After(c.now) {
			c.now = t.when
		}
		run := !t.canceled
		t.fired = true
		c.mu.Unlock()
		if run {
			t.fn()
		}
	}
}

// Pending reports how many timers are still scheduled.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}

// Loop is a single-goroutine event loop backed by real time. Work from
// other goroutines enters through Post; Run executes posted tasks and due
// timers until its context ends.
type Loop struct {
	logger *slog.Logger

	mu     sync.Mutex
	posted []func()
	seq    uint64
	timers timerHeap
	wake   chan struct{}
}

func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

// Post queues fn to run on the loop goroutine. Safe for concurrent use.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) func() bool {
	l.mu.Lock()
	l.seq++
	t := &timer{when: time.Now().Add(d), seq: l.seq, fn: fn}
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.signal()
	return func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		if t.canceled || t.fired {
			return false
		}
		t.canceled = true
		return true
	}
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mu.Lock()
		posted := l.posted
		l.posted = nil
		l.mu.Unlock()
		for _, fn := range posted {
			l.safeExecute(fn)
		}

		now := time.Now()
		var wait time.Duration = -1
		for {
			l.mu.Lock()
			if len(l.timers) == 0 {
				l.mu.Unlock()
				break
			}
			next := l.timers[0]
			if next.when.After(now) {
				wait = next.when.Sub(now)
				l.mu.Unlock()
				break
			}
			heap.Pop(&l.timers)
			run := !next.canceled
			next.fired = true
			l.mu.Unlock()
			if run {
				l.safeExecute(next.fn)
			}
		}

		l.mu.Lock()
		more := len(l.posted) > 0
		l.mu.Unlock()
		if more {
			continue
		}

		var timeout <-chan time.Time
		if wait >= 0 {
			tm := time.NewTimer(wait)
			timeout = tm.C
			select {
			case <-ctx.Done():
				tm.Stop()
				return ctx.Err()
			case <-l.wake:
				tm.Stop()
			case <-timeout:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	fn()
}
