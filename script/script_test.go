package script_test

import (
	"context"
	"testing"

	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
	"github.com/delaneyj/vyes/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	sys := reactive.NewSystem(reactive.WithClock(reactive.NewManualClock()))
	data := sys.NewObject(map[string]any{"count": 1.0}, nil)
	env := fetch.Env{"site": "vyes"}

	var emitted []any
	eng := script.NewEngine()
	_, err := eng.Run(ctx, `
count := get("count")
put("count", count + 1)
put("title", env("site") + "!")
put("items", [1, 2.5, "x"])
put("user", {"name": "ann"})
emit("ready", count, "a")
`, script.Bindings{
		Data: data,
		Env:  env,
		Emit: func(name string, args ...any) { emitted = append(emitted, name, args) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2.0, data.Get("count"))
	assert.Equal(t, "vyes!", data.Get("title"))
	assert.Equal(t, []any{1.0, 2.5, "x"}, reactive.Plain(data.Get("items")))
	assert.Equal(t, map[string]any{"name": "ann"}, reactive.Plain(data.Get("user")))
	assert.Equal(t, []any{"ready", []any{1.0, "a"}}, emitted)

	t.Run("returns the last value", func(t *testing.T) {
		v, err := eng.Run(ctx, `x := get("count")
x * 3`, script.Bindings{Data: data})
		require.NoError(t, err)
		assert.Equal(t, 6.0, v)
	})

	t.Run("reads nested store values", func(t *testing.T) {
		v, err := eng.Run(ctx, `get("user")["name"]`, script.Bindings{Data: data})
		require.NoError(t, err)
		assert.Equal(t, "ann", v)
	})

	t.Run("errors are returned", func(t *testing.T) {
		_, err := eng.Run(ctx, `nope()`, script.Bindings{Data: data})
		assert.Error(t, err)
	})
}

func TestGlobals(t *testing.T) {
	eng := script.NewEngine(script.WithGlobals(map[string]any{"greeting": "hi"}))
	v, err := eng.Run(context.Background(), `greeting + " there"`, script.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", v)
}

func TestConversions(t *testing.T) {
	assert.Equal(t, int64(3), script.ToObject(3.0).Interface())
	assert.Equal(t, 3.5, script.ToObject(3.5).Interface())
	assert.Nil(t, script.FromObject(script.ToObject(nil)))
	assert.Equal(t, map[string]any{"a": []any{1.0, true}}, script.FromObject(script.ToObject(map[string]any{"a": []any{1, true}})))
}
