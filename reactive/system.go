package reactive

import (
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const DefaultInterval = 25 * time.Millisecond

// Handle identifies a tracked computation. The generation detects use of a
// slot after its computation was cancelled and the slot reused.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index, h.gen)
}

type OnErrorFunc func(h Handle, err error)

// Observer receives scheduler events, e.g. for metrics.
type Observer interface {
	Watched()
	Canceled()
	Drained(ran int, elapsed time.Duration)
}

type slot struct {
	fn      func()
	gen     uint32
	alive   bool
	running bool
}

type paused struct {
	active  []Handle
	seeding int
}

type System struct {
	logger   *slog.Logger
	clock    Clock
	interval time.Duration
	observer Observer
	onError  OnErrorFunc

	slots []slot
	free  []uint32
	live  int

	active     []Handle
	pauseStack []paused
	seeding    int

	pending mapset.Set[Handle]
	stop    func() bool
	nextID  uint64
}

type Option func(*System)

func WithClock(c Clock) Option {
	return func(s *System) { s.clock = c }
}

func WithInterval(d time.Duration) Option {
	return func(s *System) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *System) { s.observer = o }
}

// WithOnError is called for every computation that panics, after logging.
func WithOnError(fn OnErrorFunc) Option {
	return func(s *System) { s.onError = fn }
}

func NewSystem(opts ...Option) *System {
	s := &System{
		interval: DefaultInterval,
		pending:  mapset.NewThreadUnsafeSet[Handle](),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = NewManualClock()
	}
	return s
}

func (s *System) Clock() Clock            { return s.clock }
func (s *System) Logger() *slog.Logger    { return s.logger }
func (s *System) Interval() time.Duration { return s.interval }

// Watch registers fn as a tracked computation and runs it once to seed its
// dependencies. Writes made while seeding do not notify.
func (s *System) Watch(fn func()) Handle {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{})
		idx = uint32(len(s.slots) - 1)
	}
	sl := &s.slots[idx]
	sl.gen++
	sl.fn = fn
	sl.alive = true
	s.live++
	h := Handle{index: idx, gen: sl.gen}
	if s.observer != nil {
		s.observer.Watched()
	}

	s.seeding++
	s.run(h)
	s.seeding--
	return h
}

// Cancel stops h from ever running again. Stale handles are ignored.
func (s *System) Cancel(h Handle) {
	if !s.Alive(h) {
		return
	}
	sl := &s.slots[h.index]
	sl.alive = false
	sl.fn = nil
	s.live--
	s.pending.Remove(h)
	if !sl.running {
		s.free = append(s.free, h.index)
	}
	if s.observer != nil {
		s.observer.Canceled()
	}
}

func (s *System) Alive(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(s.slots) {
		return false
	}
	sl := &s.slots[h.index]
	return sl.alive && sl.gen == h.gen
}

// Live reports the number of registered computations.
func (s *System) Live() int { return s.live }

// Pending reports how many computations await the next drain.
func (s *System) Pending() int { return s.pending.Cardinality() }

func (s *System) run(h Handle) {
	sl := &s.slots[h.index]
	if sl.running {
		return
	}
	sl.running = true
	fn := sl.fn
	s.active = append(s.active, h)
	defer func() {
		s.active = s.active[:len(s.active)-1]
		sl := &s.slots[h.index]
		sl.running = false
		if !sl.alive && sl.gen == h.gen {
			s.free = append(s.free, h.index)
		}
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			s.logger.Error("computation failed", "handle", h.String(), "err", err)
			if s.onError != nil {
				s.onError(h, err)
			}
		}
	}()
	fn()
}

// Active returns the innermost running computation, if tracking is on.
func (s *System) Active() (Handle, bool) {
	if len(s.active) == 0 {
		return Handle{}, false
	}
	return s.active[len(s.active)-1], true
}

// PauseTracking hides the running computation until ResumeTracking. Writes
// made while paused notify even if an outer computation is seeding.
func (s *System) PauseTracking() {
	s.pauseStack = append(s.pauseStack, paused{active: s.active, seeding: s.seeding})
	s.active = nil
	s.seeding = 0
}

func (s *System) ResumeTracking() {
	last := len(s.pauseStack) - 1
	s.active = s.pauseStack[last].active
	s.seeding = s.pauseStack[last].seeding
	s.pauseStack = s.pauseStack[:last]
}

// Untracked runs fn without recording reads against the running computation.
func (s *System) Untracked(fn func()) {
	s.PauseTracking()
	defer s.ResumeTracking()
	fn()
}

// Seeding reports whether a computation is being registered.
func (s *System) Seeding() bool { return s.seeding > 0 }

func (s *System) track(subs []Handle) []Handle {
	h, ok := s.Active()
	if !ok {
		return subs
	}
	for _, x := range subs {
		if x == h {
			return subs
		}
	}
	return append(subs, h)
}

// notify queues every live subscriber and returns subs without dead ones.
func (s *System) notify(subs []Handle) []Handle {
	if s.seeding > 0 {
		return subs
	}
	out := subs[:0]
	for _, h := range subs {
		if !s.Alive(h) {
			continue
		}
		s.pending.Add(h)
		out = append(out, h)
	}
	for i := len(out); i < len(subs); i++ {
		subs[i] = Handle{}
	}
	return out
}

// Drain runs every pending computation once and returns how many ran.
// Writes made by those computations are left for the next drain.
func (s *System) Drain() int {
	if s.pending.Cardinality() == 0 {
		return 0
	}
	start := s.clock.Now()
	batch := s.pending.ToSlice()
	s.pending = mapset.NewThreadUnsafeSet[Handle]()
	ran := 0
	for _, h := range batch {
		if !s.Alive(h) {
			continue
		}
		s.run(h)
		ran++
	}
	if s.observer != nil {
		s.observer.Drained(ran, s.clock.Now().Sub(start))
	}
	return ran
}

// Rerun runs h now if it is alive, outside any drain.
func (s *System) Rerun(h Handle) bool {
	if !s.Alive(h) {
		return false
	}
	s.pending.Remove(h)
	s.run(h)
	return true
}

// ForceUpdate runs every live computation regardless of pending state.
func (s *System) ForceUpdate() int {
	ran := 0
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.alive {
			continue
		}
		s.run(Handle{index: uint32(i), gen: sl.gen})
		ran++
	}
	return ran
}

// Start arms the periodic drain on the clock.
func (s *System) Start() {
	if s.stop != nil {
		return
	}
	var tick func()
	tick = func() {
		s.Drain()
		if s.stop != nil {
			s.stop = s.clock.AfterFunc(s.interval, tick)
		}
	}
	s.stop = s.clock.AfterFunc(s.interval, tick)
}

func (s *System) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	s.stop = nil
}

func (s *System) nextIdentity() uint64 {
	s.nextID++
	return s.nextID
}
