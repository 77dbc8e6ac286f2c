package fetch

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/delaneyj/vyes/expr"
)

// Env is a component environment. It is the second frame of every
// expression scope; writes land in the map itself.
type Env map[string]any

func (e Env) Lookup(key string) (any, bool) {
	v, ok := e[key]
	return v, ok
}

func (e Env) Set(key string, v any) { e[key] = v }

// GetMember and SetMember let expressions use $env as an object.
func (e Env) GetMember(key string) (any, bool) { return e.Lookup(key) }

func (e Env) SetMember(key string, v any) bool {
	e[key] = v
	return true
}

// Root is the URL prefix the environment resolves absolute paths against.
func (e Env) Root() string {
	s, _ := e["root"].(string)
	return s
}

// Merge returns a copy of e overridden by each of others.
func (e Env) Merge(others ...Env) Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

type busListener struct {
	id uint64
	fn any
}

// Bus is the per-root $bus event bus.
type Bus struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	events map[string][]busListener
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, events: map[string][]busListener{}}
}

// On subscribes fn to name and returns a function removing it.
func (b *Bus) On(name string, fn any) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.events[name] = append(b.events[name], busListener{id: id, fn: fn})
	return func() { b.remove(name, id) }
}

// Once subscribes fn for a single emission.
func (b *Bus) Once(name string, fn any) func() {
	var off func()
	off = b.On(name, func(args ...any) any {
		off()
		v, err := expr.Call(fn, args...)
		if err != nil {
			panic(err)
		}
		return v
	})
	return off
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.events[name]
	for i, l := range list {
		if l.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.events, name)
		return
	}
	b.events[name] = list
}

// Off removes every listener of name.
func (b *Bus) Off(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, name)
}

// Emit calls the listeners of name registered at the time of the call.
// A failing listener is logged and does not stop the others.
func (b *Bus) Emit(name string, args ...any) {
	b.mu.Lock()
	list := append([]busListener(nil), b.events[name]...)
	b.mu.Unlock()
	for _, l := range list {
		if _, err := expr.Call(l.fn, args...); err != nil {
			b.logger.Error("bus listener failed", "event", name, "err", err)
		}
	}
}

func (b *Bus) ListenerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[name])
}

func (b *Bus) HasListeners(name string) bool { return b.ListenerCount(name) > 0 }

func (b *Bus) EventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.events))
	for k := range b.events {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (b *Bus) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = map[string][]busListener{}
}

// GetMember exposes the bus to expressions as $bus.on(...), $bus.emit(...).
func (b *Bus) GetMember(name string) (any, bool) {
	str := func(args []any, i int) string {
		if i < len(args) {
			return expr.ToString(args[i])
		}
		return ""
	}
	switch name {
	case "on", "once":
		return func(args ...any) any {
			if len(args) < 2 {
				return nil
			}
			var off func()
			if name == "on" {
				off = b.On(str(args, 0), args[1])
			} else {
				off = b.Once(str(args, 0), args[1])
			}
			return func(...any) any { off(); return nil }
		}, true
	case "off":
		return func(args ...any) any { b.Off(str(args, 0)); return nil }, true
	case "emit":
		return func(args ...any) any {
			if len(args) == 0 {
				return nil
			}
			b.Emit(str(args, 0), args[1:]...)
			return nil
		}, true
	case "listenerCount":
		return func(args ...any) any { return b.ListenerCount(str(args, 0)) }, true
	case "hasListeners":
		return func(args ...any) any { return b.HasListeners(str(args, 0)) }, true
	case "eventNames":
		return func(...any) any {
			names := b.EventNames()
			out := make([]any, len(names))
			for i, n := range names {
				out[i] = n
			}
			return out
		}, true
	case "removeAllListeners":
		return func(...any) any { b.RemoveAllListeners(); return nil }, true
	}
	return nil, false
}

func (b *Bus) SetMember(string, any) bool { return false }
