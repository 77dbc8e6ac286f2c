package reactive

import (
	"reflect"
	"sort"
)

// RawMap is never wrapped; reads through it are not tracked.
type RawMap map[string]any

// RawList is never wrapped; reads through it are not tracked.
type RawList []any

// Object is the observable view over a string-keyed mapping. Every read and
// write must go through its methods; the wrapped map is owned by the Object.
type Object struct {
	sys  *System
	id   uint64
	keys []string
	vals map[string]any
	subs map[string][]Handle
	// subscribers of the key set itself (Keys, Len, iteration)
	shape []Handle
	root  *Object
}

// NewObject wraps m. Keys of m are ordered lexically; later additions keep
// insertion order.
func (s *System) NewObject(m map[string]any, root *Object) *Object {
	o := &Object{
		sys:  s,
		id:   s.nextIdentity(),
		vals: make(map[string]any, len(m)),
		subs: map[string][]Handle{},
		root: root,
	}
	for k, v := range m {
		o.keys = append(o.keys, k)
		o.vals[k] = v
	}
	sort.Strings(o.keys)
	return o
}

// Wrap returns the observable view of v when v is a plain map or slice, or v
// itself otherwise.
func (s *System) Wrap(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return s.NewObject(x, nil)
	case []any:
		return s.NewArray(x)
	}
	return v
}

// wrapSlot wraps v lazily; wrapped reports whether the caller must store
// the result in place of v.
func (s *System) wrapSlot(v any) (any, bool) {
	switch v.(type) {
	case map[string]any, []any:
		return s.Wrap(v), true
	}
	return v, false
}

func (o *Object) ID() uint64        { return o.id }
func (o *Object) System() *System   { return o.sys }
func (o *Object) Root() *Object     { return o.root }
func (o *Object) SetRoot(r *Object) { o.root = r }

// Get reads key, recording the running computation as a subscriber.
// Undeclared keys are read from the root object when there is one.
func (o *Object) Get(key string) any {
	v, ok := o.vals[key]
	if !ok && o.root != nil {
		if !o.root.Has(key) {
			o.subs[key] = o.sys.track(o.subs[key])
		}
		return o.root.Get(key)
	}
	o.subs[key] = o.sys.track(o.subs[key])
	if w, ok := o.sys.wrapSlot(v); ok {
		o.vals[key] = w
		v = w
	}
	return v
}

// Lookup is Get that also reports whether key was found here or in a root.
func (o *Object) Lookup(key string) (any, bool) {
	if !o.Has(key) {
		o.subs[key] = o.sys.track(o.subs[key])
		return nil, false
	}
	return o.Get(key), true
}

// Has reports whether key is declared here or in the root chain.
func (o *Object) Has(key string) bool {
	if _, ok := o.vals[key]; ok {
		return true
	}
	return o.root != nil && o.root.Has(key)
}

// Own reports whether key is declared on o itself.
func (o *Object) Own(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Set writes key and queues its subscribers. Writing an undeclared key that
// the root declares writes through to the root.
func (o *Object) Set(key string, v any) {
	if _, ok := o.vals[key]; !ok && o.root != nil && o.root.Has(key) {
		o.root.Set(key, v)
		return
	}
	old, existed := o.vals[key]
	switch prev := old.(type) {
	case *Array:
		if items, ok := listItems(v); ok {
			if prev.replace(items) {
				o.subs[key] = o.sys.notify(o.subs[key])
			}
			return
		}
	case []any:
		if items, ok := listItems(v); ok {
			arr := o.sys.NewArray(prev)
			o.vals[key] = arr
			if arr.replace(items) {
				o.subs[key] = o.sys.notify(o.subs[key])
			}
			return
		}
	case *Object:
		switch nv := v.(type) {
		case map[string]any:
			prev.merge(nv)
			o.subs[key] = o.sys.notify(o.subs[key])
			return
		case *Object:
			if nv != prev {
				nv.adopt(prev)
			}
		}
	}
	if existed && sameValue(old, v) {
		return
	}
	o.vals[key] = v
	if !existed {
		o.keys = append(o.keys, key)
		o.shape = o.sys.notify(o.shape)
	}
	o.subs[key] = o.sys.notify(o.subs[key])
}

// Delete removes key and queues its subscribers.
func (o *Object) Delete(key string) {
	if _, ok := o.vals[key]; !ok {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	o.subs[key] = o.sys.notify(o.subs[key])
	o.shape = o.sys.notify(o.shape)
}

// Keys returns the declared keys in order.
func (o *Object) Keys() []string {
	o.shape = o.sys.track(o.shape)
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Len() int {
	o.shape = o.sys.track(o.shape)
	return len(o.keys)
}

// Subscribers returns the live subscribers of key.
func (o *Object) Subscribers(key string) []Handle {
	var out []Handle
	for _, h := range o.subs[key] {
		if o.sys.Alive(h) {
			out = append(out, h)
		}
	}
	return out
}

// Plain returns a deep untracked copy with observables unwrapped.
func (o *Object) Plain() map[string]any {
	out := make(map[string]any, len(o.vals))
	for k, v := range o.vals {
		out[k] = Plain(v)
	}
	return out
}

// merge copies m into o in place so existing subscribers stay attached.
// Keys missing from m are deleted.
func (o *Object) merge(m map[string]any) {
	current := make([]string, len(o.keys))
	copy(current, o.keys)
	for _, k := range current {
		if _, ok := m[k]; !ok {
			o.Delete(k)
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.setOwn(k, m[k])
	}
}

func (o *Object) setOwn(key string, v any) {
	if _, ok := o.vals[key]; !ok {
		o.vals[key] = nil
		o.keys = append(o.keys, key)
		o.shape = o.sys.notify(o.shape)
		if v == nil {
			o.subs[key] = o.sys.notify(o.subs[key])
			return
		}
	}
	o.Set(key, v)
}

// adopt takes over the subscribers of prev, recursing into nested objects
// present in both.
func (o *Object) adopt(prev *Object) {
	for k, hs := range prev.subs {
		for _, h := range hs {
			o.subs[k] = appendUnique(o.subs[k], h)
		}
	}
	for _, h := range prev.shape {
		o.shape = appendUnique(o.shape, h)
	}
	for k, pv := range prev.vals {
		po, ok := pv.(*Object)
		if !ok {
			continue
		}
		nv, _ := o.sys.wrapSlot(o.vals[k])
		if no, ok := nv.(*Object); ok && no != po {
			o.vals[k] = no
			no.adopt(po)
		}
	}
}

func appendUnique(hs []Handle, h Handle) []Handle {
	for _, x := range hs {
		if x == h {
			return hs
		}
	}
	return append(hs, h)
}

func listItems(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case *Array:
		return x.items, true
	}
	return nil, false
}

// sameValue reports whether writing b over a changes nothing observable.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// Plain unwraps observables recursively without tracking.
func Plain(v any) any {
	switch x := v.(type) {
	case *Object:
		return x.Plain()
	case *Array:
		return x.Plain()
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Plain(e)
		}
		return out
	}
	return v
}
