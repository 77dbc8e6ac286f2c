package reactive_test

import (
	"testing"
	"time"

	"github.com/delaneyj/vyes/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityStability(t *testing.T) {
	sys, _ := newSystem(t)
	a := sys.NewObject(map[string]any{
		"x":    map[string]any{"n": 1},
		"list": []any{1, 2},
		"when": time.Unix(0, 0),
		"raw":  reactive.RawMap{"k": "v"},
	}, nil)

	x1, ok := a.Get("x").(*reactive.Object)
	require.True(t, ok)
	x2 := a.Get("x").(*reactive.Object)
	assert.Same(t, x1, x2)
	assert.Equal(t, x1.ID(), x2.ID())

	l1 := a.Get("list").(*reactive.Array)
	assert.Same(t, l1, a.Get("list"))

	_, isTime := a.Get("when").(time.Time)
	assert.True(t, isTime, "host values pass through")
	_, isRaw := a.Get("raw").(reactive.RawMap)
	assert.True(t, isRaw, "opted-out maps are not wrapped")

	other := sys.NewObject(nil, nil)
	assert.NotEqual(t, a.ID(), other.ID())
}

func TestArrayReplacePreservesSubscription(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"list": []any{1, 2}}, nil)
	held := a.Get("list").(*reactive.Array)

	var lens []int
	sys.Watch(func() {
		lens = append(lens, held.Len())
	})

	a.Set("list", []any{"a", "b", "c"})
	assert.Same(t, held, a.Get("list"))
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []int{2, 3}, lens)
	assert.Equal(t, []any{"a", "b", "c"}, held.Plain())
}

func TestObjectAssignMergesInPlace(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{
		"user": map[string]any{"name": "Ann", "age": 3},
	}, nil)
	user := a.Get("user").(*reactive.Object)

	var names []any
	sys.Watch(func() {
		names = append(names, user.Get("name"))
	})

	a.Set("user", map[string]any{"name": "Bo"})
	clock.Advance(reactive.DefaultInterval)
	assert.Same(t, user, a.Get("user"))
	assert.Equal(t, []any{"Ann", "Bo"}, names)
	assert.False(t, user.Has("age"))
}

func TestObjectAssignObservableAdoptsSubscribers(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"cfg": map[string]any{"theme": "dark"}}, nil)

	var seen []any
	sys.Watch(func() {
		seen = append(seen, a.Get("cfg").(*reactive.Object).Get("theme"))
	})
	old := a.Get("cfg").(*reactive.Object)

	next := sys.NewObject(map[string]any{"theme": "light"}, nil)
	a.Set("cfg", next)
	assert.Equal(t, old.Subscribers("theme"), next.Subscribers("theme"))
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{"dark", "light"}, seen)

	next.Set("theme", "blue")
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{"dark", "light", "blue"}, seen)
}

func TestDeleteNotifies(t *testing.T) {
	sys, clock := newSystem(t)
	a := sys.NewObject(map[string]any{"x": 1}, nil)
	var keys [][]string
	var xs []any
	sys.Watch(func() { keys = append(keys, a.Keys()) })
	sys.Watch(func() { xs = append(xs, a.Get("x")) })

	a.Delete("x")
	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, [][]string{{"x"}, {}}, keys)
	assert.Equal(t, []any{1, nil}, xs)
}

func TestRootDelegation(t *testing.T) {
	sys, clock := newSystem(t)
	parent := sys.NewObject(map[string]any{"shared": "p"}, nil)
	child := sys.NewObject(map[string]any{"own": 1}, parent)

	assert.Equal(t, "p", child.Get("shared"))
	assert.True(t, child.Has("shared"))
	assert.False(t, child.Own("shared"))

	var seen []any
	sys.Watch(func() { seen = append(seen, child.Get("shared")) })

	child.Set("shared", "c")
	assert.Equal(t, "c", parent.Get("shared"), "undeclared key writes through")
	assert.False(t, child.Own("shared"))

	child.Set("fresh", true)
	assert.True(t, child.Own("fresh"))
	assert.False(t, parent.Has("fresh"))

	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{"p", "c"}, seen)
}

func TestUndeclaredKeyTracksChild(t *testing.T) {
	sys, clock := newSystem(t)
	root := sys.NewObject(nil, nil)
	child := sys.NewObject(nil, root)

	var seen []any
	sys.Watch(func() { seen = append(seen, child.Get("x")) })
	child.Set("x", "hi")
	assert.True(t, child.Own("x"))

	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, []any{nil, "hi"}, seen)
}

func TestArrayLengthGrows(t *testing.T) {
	sys, _ := newSystem(t)
	arr := sys.NewArray([]any{1})
	arr.Set("length", 3)
	assert.Equal(t, []any{1, nil, nil}, arr.Plain())
	arr.Set("length", 3.0)
	assert.Equal(t, 3, arr.Len())
}

func TestArrayOperations(t *testing.T) {
	sys, clock := newSystem(t)
	arr := sys.NewArray([]any{1, 2, 3})
	runs := 0
	sys.Watch(func() {
		arr.Len()
		runs++
	})

	assert.Equal(t, 4, arr.Push(4))
	assert.Equal(t, 4, arr.Pop())
	assert.Equal(t, []any{2}, arr.Splice(1, 1, "a", "b"))
	assert.Equal(t, []any{1, "a", "b", 3}, arr.Plain())
	assert.Equal(t, 1, arr.Shift())
	assert.Equal(t, 4, arr.Unshift(0))
	arr.Set("length", 2)
	assert.Equal(t, []any{0, "a"}, arr.Plain())
	assert.Equal(t, 2, arr.Get("length"))
	assert.Equal(t, "a", arr.Get("1"))

	clock.Advance(reactive.DefaultInterval)
	assert.Equal(t, 2, runs)

	inner := sys.NewArray([]any{map[string]any{"id": 1}})
	first := inner.At(0)
	assert.Same(t, first, inner.Items()[0])
}

func TestPlain(t *testing.T) {
	sys, _ := newSystem(t)
	a := sys.NewObject(map[string]any{"x": map[string]any{"l": []any{1}}}, nil)
	a.Get("x")
	assert.Equal(t, map[string]any{"x": map[string]any{"l": []any{1}}}, a.Plain())
}
