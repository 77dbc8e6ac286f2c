package reactive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/delaneyj/vyes/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSystem(t *testing.T) (*reactive.System, *reactive.ManualClock) {
	t.Helper()
	clock := reactive.NewManualClock()
	sys := reactive.NewSystem(reactive.WithClock(clock))
	sys.Start()
	t.Cleanup(sys.Stop)
	return sys, clock
}

func TestWatchSeedsSynchronously(t *testing.T) {
	sys, _ := newSystem(t)
	runs := 0
	h := sys.Watch(func() { runs++ })
	assert.Equal(t, 1, runs)
	assert.True(t, sys.Alive(h))
	assert.False(t, h.IsZero())
	assert.Equal(t, 1, sys.Live())
}

func TestWriteNotifiesExactlySubscribed(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 1, "y": 2}, nil)

	c1, c2 := 0, 0
	sys.Watch(func() {
		a.Get("x")
		c1++
	})
	sys.Watch(func() {
		a.Get("y")
		c2++
	})

	a.Set("x", 10)
	assert.Equal(t, 1, c1, "notification is eventual")
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, 2, c1)
	assert.Equal(t, 1, c2)
}

func TestBurstOfWritesCoalesces(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"n": 0}, nil)
	runs := 0
	sys.Watch(func() {
		a.Get("n")
		runs++
	})
	for i := 1; i <= 5; i++ {
		a.Set("n", i)
	}
	assert.Equal(t, 1, sys.Pending())
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, 2, runs)
}

func TestEqualWriteIsNoop(t *testing.T) {
	sys, _ := newSystem(t)
	a := sys.NewObject(map[string]any{"s": "same"}, nil)
	sys.Watch(func() { a.Get("s") })
	a.Set("s", "same")
	assert.Equal(t, 0, sys.Pending())
}

func TestCancelIsGenerationChecked(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 1}, nil)

	first := 0
	h1 := sys.Watch(func() {
		a.Get("x")
		first++
	})
	sys.Cancel(h1)
	assert.False(t, sys.Alive(h1))

	// the freed slot is reused with a new generation
	second := 0
	h2 := sys.Watch(func() { second++ })
	assert.NotEqual(t, h1, h2)
	assert.False(t, sys.Alive(h1))

	a.Set("x", 2)
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second, "stale subscription must not reach the new slot")
	assert.Empty(t, a.Subscribers("x"))

	sys.Cancel(h1)
	assert.True(t, sys.Alive(h2))
}

func TestWritesWhileSeedingDoNotNotify(t *testing.T) {
	sys, _ := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 1}, nil)
	sys.Watch(func() { a.Get("x") })
	sys.Watch(func() { a.Set("x", 2) })
	assert.Equal(t, 0, sys.Pending())
	assert.Equal(t, 2, a.Get("x"))
}

func TestUntrackedWritesWhileSeedingNotify(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 1}, nil)
	var seen []any
	sys.Watch(func() {
		sys.Untracked(func() {
			sys.Watch(func() { seen = append(seen, a.Get("x")) })
			a.Set("x", 2)
			assert.False(t, sys.Seeding())
		})
		assert.True(t, sys.Seeding())
	})
	assert.Equal(t, 1, sys.Pending())
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{1, 2}, seen)
}

func TestWritesDuringDrainGoToNextDrain(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 0, "y": 0}, nil)

	//  x --C1--> y --C2
	ys := []any{}
	sys.Watch(func() {
		a.Set("y", a.Get("x"))
	})
	sys.Watch(func() {
		ys = append(ys, a.Get("y"))
	})

	a.Set("x", 1)
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{0}, ys)
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{0, 1}, ys)
}

func TestNestedWatchAttributesToInnermost(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"outer": 0, "inner": 0}, nil)

	outer, inner := 0, 0
	sys.Watch(func() {
		a.Get("outer")
		outer++
		if outer == 1 {
			sys.Watch(func() {
				a.Get("inner")
				inner++
			})
		}
	})
	a.Set("inner", 1)
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, 1, outer)
	assert.Equal(t, 2, inner)
}

func TestUntracked(t *testing.T) {
	sys, _ := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 1}, nil)
	sys.Watch(func() {
		sys.Untracked(func() { a.Get("x") })
	})
	assert.Empty(t, a.Subscribers("x"))
}

func TestForceUpdate(t *testing.T) {
	sys, _ := newSystem(t)
	runs := 0
	sys.Watch(func() { runs++ })
	h := sys.Watch(func() { runs++ })
	sys.Cancel(h)
	assert.Equal(t, 1, sys.ForceUpdate())
	assert.Equal(t, 3, runs)
}

func TestPanicIsRecovered(t *testing.T) {
	var got error
	clock := reactive.NewManualClock()
	sys := reactive.NewSystem(
		reactive.WithClock(clock),
		reactive.WithOnError(func(h reactive.Handle, err error) { got = err }),
	)
	boom := errors.New("boom")
	h := sys.Watch(func() { panic(boom) })
	assert.ErrorIs(t, got, boom)
	assert.True(t, sys.Alive(h))
}

type countingObserver struct {
	watched, canceled, drains, ran int
}

func (o *countingObserver) Watched()  { o.watched++ }
func (o *countingObserver) Canceled() { o.canceled++ }
func (o *countingObserver) Drained(ran int, _ time.Duration) {
	o.drains++
	o.ran += ran
}

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	sys := reactive.NewSystem(reactive.WithObserver(obs))
	a := sys.NewObject(map[string]any{"x": 1}, nil)
	h := sys.Watch(func() { a.Get("x") })
	a.Set("x", 2)
	assert.Equal(t, 1, sys.Drain())
	sys.Cancel(h)
	assert.Equal(t, 0, sys.Drain())
	assert.Equal(t, countingObserver{watched: 1, canceled: 1, drains: 1, ran: 1}, *obs)
}

func TestManualClockTimers(t *testing.T) {
	clock := reactive.NewManualClock()
	var fired []string
	clock.AfterFunc(20*time.Millisecond, func() { fired = append(fired, "b") })
	clock.AfterFunc(10*time.Millisecond, func() {
		fired = append(fired, "a")
		clock.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	stop := clock.AfterFunc(15*time.Millisecond, func() { fired = append(fired, "x") })
	assert.True(t, stop())
	assert.False(t, stop())

	clock.Advance(30 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, fired)
	assert.Equal(t, 0, clock.Pending())
}

func TestLoopRunsPostedWorkAndTimers(t *testing.T) {
	loop := reactive.NewLoop(nil)
	sys := reactive.NewSystem(reactive.WithClock(loop), reactive.WithInterval(time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan any, 1)
	loop.Post(func() {
		sys.Start()
		a := sys.NewObject(map[string]any{"x": 0}, nil)
		sys.Watch(func() {
			if v := a.Get("x"); v != 0 {
				done <- v
			}
		})
		a.Set("x", 42)
	})

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-ctx.Done():
		t.Fatal("drain never ran")
	}
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}
