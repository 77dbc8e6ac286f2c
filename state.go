package vyes

import (
	"strconv"
	"strings"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
)

// nodeState is what the walker keeps per bound node.
type nodeState struct {
	parsed bool
	// inactive marks the root of a detached conditional branch. Computations
	// owned below it skip their runs until the branch is shown again.
	inactive bool

	// Set on component instance roots.
	env    fetch.Env
	data   *reactive.Object
	scope  *reactive.Object
	slots  *reactive.Object
	events map[string]any

	handles  []reactive.Handle
	cleanups []func()
	timers   map[string]func() bool

	// vslot bookkeeping.
	origin       []*dom.Node
	originWalked bool
	slotCache    map[string][]*dom.Node
	slotScopes   map[string]*reactive.Object
	// hash marks a captured slot node for the slot render cache.
	hash string
}

func (a *App) state(n *dom.Node) *nodeState {
	st, ok := a.states[n]
	if !ok {
		st = &nodeState{}
		a.states[n] = st
	}
	return st
}

func (a *App) peek(n *dom.Node) *nodeState { return a.states[n] }

// watch registers fn as a computation owned by n.
func (a *App) watch(n *dom.Node, fn func()) reactive.Handle {
	h := a.sys.Watch(func() {
		if a.dormant(n) {
			return
		}
		fn()
	})
	st := a.state(n)
	st.handles = append(st.handles, h)
	return h
}

func (a *App) dormant(n *dom.Node) bool {
	for p := n; p != nil; p = p.Parent() {
		if st := a.states[p]; st != nil && st.inactive {
			return true
		}
	}
	return false
}

// cleanup runs fn when n is disposed.
func (a *App) cleanup(n *dom.Node, fn func()) {
	st := a.state(n)
	st.cleanups = append(st.cleanups, fn)
}

func descend(n *dom.Node, fn func(*dom.Node)) {
	fn(n)
	for _, c := range n.ChildNodes() {
		descend(c, fn)
	}
}

// refresh reruns the computations of a branch that is shown again.
func (a *App) refresh(n *dom.Node) {
	var hs []reactive.Handle
	descend(n, func(x *dom.Node) {
		if st := a.states[x]; st != nil {
			hs = append(hs, st.handles...)
		}
	})
	for _, h := range hs {
		a.sys.Rerun(h)
	}
}

// Dispose cancels every computation, listener and timer bound in the
// subtree of n and forgets its state.
func (a *App) Dispose(n *dom.Node) {
	descend(n, func(x *dom.Node) { a.release(x, reactive.Handle{}) })
}

// release tears down the state of one node, sparing keep.
func (a *App) release(n *dom.Node, keep reactive.Handle) {
	st, ok := a.states[n]
	if !ok {
		return
	}
	for _, h := range st.handles {
		if h != keep {
			a.sys.Cancel(h)
		}
	}
	for _, fn := range st.cleanups {
		fn()
	}
	for _, stop := range st.timers {
		stop()
	}
	for _, id := range strings.Fields(n.GetAttr("vdelay")) {
		delete(a.delays, id)
	}
	delete(a.states, n)
	if !keep.IsZero() {
		a.state(n).handles = []reactive.Handle{keep}
	}
}

// Computations reports how many computations are registered.
func (a *App) Computations() int { return a.sys.Live() }

type delaySlot struct {
	fn   func(*dom.Node)
	once bool
}

// delay runs fn for n once n is connected. A once slot runs a single time,
// immediately if n is connected already. Other slots run on every
// connection, including the current one.
func (a *App) delay(n *dom.Node, fn func(*dom.Node), once bool) {
	if once && n.IsConnected() {
		fn(n)
		return
	}
	a.nextDelay++
	id := "d" + strconv.FormatUint(a.nextDelay, 36)
	a.delays[id] = &delaySlot{fn: fn, once: once}
	ids := strings.Fields(n.GetAttr("vdelay"))
	n.SetAttr("vdelay", strings.Join(append(ids, id), " "))
	if !once && n.IsConnected() {
		fn(n)
	}
}

func (a *App) onConnected(n *dom.Node, fn func(*dom.Node)) { a.delay(n, fn, true) }

func (a *App) connected(n *dom.Node) {
	attr, ok := n.Attr("vdelay")
	if !ok {
		return
	}
	ids := strings.Fields(attr)
	kept := ids[:0]
	var run []*delaySlot
	for _, id := range ids {
		slot, ok := a.delays[id]
		if !ok {
			continue
		}
		run = append(run, slot)
		if slot.once {
			delete(a.delays, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		n.RemoveAttr("vdelay")
	} else {
		n.SetAttr("vdelay", strings.Join(kept, " "))
	}
	for _, slot := range run {
		slot.fn(n)
	}
}
