package reactive

import (
	"strconv"
)

// Array is the observable view over a sequence. It has a single subscriber
// set: any read subscribes to the whole array and any write notifies it.
type Array struct {
	sys   *System
	id    uint64
	items []any
	subs  []Handle
}

func (s *System) NewArray(items []any) *Array {
	return &Array{
		sys:   s,
		id:    s.nextIdentity(),
		items: items,
	}
}

func (a *Array) ID() uint64 { return a.id }

func (a *Array) touch() {
	a.subs = a.sys.track(a.subs)
}

func (a *Array) changed() {
	a.subs = a.sys.notify(a.subs)
}

func (a *Array) Len() int {
	a.touch()
	return len(a.items)
}

// At returns item i, or nil when out of range.
func (a *Array) At(i int) any {
	a.touch()
	if i < 0 || i >= len(a.items) {
		return nil
	}
	v := a.items[i]
	if w, ok := a.sys.wrapSlot(v); ok {
		a.items[i] = w
		v = w
	}
	return v
}

// Items returns a snapshot of the wrapped items.
func (a *Array) Items() []any {
	a.touch()
	out := make([]any, len(a.items))
	for i, v := range a.items {
		if w, ok := a.sys.wrapSlot(v); ok {
			a.items[i] = w
			v = w
		}
		out[i] = v
	}
	return out
}

// SetAt writes item i, growing the array with nils when i is past the end.
func (a *Array) SetAt(i int, v any) {
	if i < 0 {
		return
	}
	for len(a.items) <= i {
		a.items = append(a.items, nil)
	}
	if sameValue(a.items[i], v) {
		return
	}
	a.items[i] = v
	a.changed()
}

func (a *Array) Push(vs ...any) int {
	a.items = append(a.items, vs...)
	if len(vs) > 0 {
		a.changed()
	}
	return len(a.items)
}

func (a *Array) Pop() any {
	if len(a.items) == 0 {
		return nil
	}
	v := a.items[len(a.items)-1]
	a.items = a.items[:len(a.items)-1]
	a.changed()
	return v
}

func (a *Array) Shift() any {
	if len(a.items) == 0 {
		return nil
	}
	v := a.items[0]
	a.items = append(a.items[:0:0], a.items[1:]...)
	a.changed()
	return v
}

func (a *Array) Unshift(vs ...any) int {
	if len(vs) > 0 {
		a.items = append(append([]any{}, vs...), a.items...)
		a.changed()
	}
	return len(a.items)
}

// Splice removes count items at start, inserts vs there and returns the
// removed items.
func (a *Array) Splice(start, count int, vs ...any) []any {
	n := len(a.items)
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if start > n {
		start = n
	}
	if count < 0 {
		count = 0
	}
	if start+count > n {
		count = n - start
	}
	removed := append([]any{}, a.items[start:start+count]...)
	rest := append([]any{}, a.items[start+count:]...)
	a.items = append(append(a.items[:start], vs...), rest...)
	if count > 0 || len(vs) > 0 {
		a.changed()
	}
	return removed
}

// Replace swaps the contents in place; the Array keeps its identity and
// subscribers.
func (a *Array) Replace(items []any) {
	a.replace(items)
}

func (a *Array) replace(items []any) bool {
	if len(items) == len(a.items) {
		same := true
		for i := range items {
			if !sameValue(items[i], a.items[i]) {
				same = false
				break
			}
		}
		if same {
			return false
		}
	}
	a.items = append(a.items[:0:0], items...)
	a.changed()
	return true
}

// Get reads by string index; "length" is the item count.
func (a *Array) Get(key string) any {
	if key == "length" {
		return a.Len()
	}
	i, err := strconv.Atoi(key)
	if err != nil {
		a.touch()
		return nil
	}
	return a.At(i)
}

func (a *Array) Set(key string, v any) {
	if key == "length" {
		n, ok := v.(int)
		if f, isF := v.(float64); isF {
			n, ok = int(f), true
		}
		switch {
		case !ok || n < 0 || n == len(a.items):
		case n < len(a.items):
			a.items = a.items[:n]
			a.changed()
		default:
			a.items = append(a.items, make([]any, n-len(a.items))...)
			a.changed()
		}
		return
	}
	if i, err := strconv.Atoi(key); err == nil {
		a.SetAt(i, v)
	}
}

func (a *Array) Subscribers() []Handle {
	var out []Handle
	for _, h := range a.subs {
		if a.sys.Alive(h) {
			out = append(out, h)
		}
	}
	return out
}

func (a *Array) Plain() []any {
	out := make([]any, len(a.items))
	for i, v := range a.items {
		out[i] = Plain(v)
	}
	return out
}
