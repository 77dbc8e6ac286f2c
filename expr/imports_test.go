package expr_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/delaneyj/vyes/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocessImports(t *testing.T) {
	mods := expr.NewModules()
	mods.Register("/lib/util.js", expr.Module{
		"default": map[string]any{
			"twice": func(args ...any) any { return expr.ToNumber(args[0]) * 2 },
		},
		"helper": 21.0,
	})
	mods.Register("/app/lib/theme.js", expr.Module{"color": "red"})

	var buf bytes.Buffer
	bound := map[string]any{}
	opts := expr.ImportOptions{
		Base:   "/comp.html",
		Root:   "/app",
		Loader: mods,
		Bind:   func(name string, v any) { bound[name] = v },
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}

	code := `import util from './lib/util'
import { helper } from '@/lib/util.js'
import { color } from '/lib/theme'
// import skipped from './skipped'
import broken from './nope'
return util.twice(helper) + color`

	out, err := expr.PreprocessImports(context.Background(), code, opts)
	require.NoError(t, err)
	assert.Equal(t, "return util.twice(helper) + color", out)
	assert.Contains(t, bound, "util")
	assert.Equal(t, 21.0, bound["helper"])
	assert.Equal(t, "red", bound["color"])
	assert.NotContains(t, bound, "skipped")
	assert.NotContains(t, bound, "broken")
	assert.Contains(t, buf.String(), "import failed")
	assert.NotContains(t, buf.String(), "skipped")

	v, err := expr.RunAsync(context.Background(), out, &expr.Scope{Extra: bound})
	require.NoError(t, err)
	assert.Equal(t, "42red", v)
}

func TestDynamicImportRewrite(t *testing.T) {
	mods := expr.NewModules()
	mods.Register("https://app.test/lib/x.js", expr.Module{"answer": 42.0})
	opts := expr.ImportOptions{Origin: "https://app.test", Loader: mods}

	out, err := expr.PreprocessImports(context.Background(), "const m = await import('lib/x.js')\nreturn m.answer", opts)
	require.NoError(t, err)
	assert.Equal(t, "const m = await $import('https://app.test/lib/x.js')\nreturn m.answer", out)

	v, err := expr.RunAsync(context.Background(), out, &expr.Scope{Extra: map[string]any{"$import": opts.ImportFunc()}})
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestResolvePathAgainstBase(t *testing.T) {
	assert.Equal(t, "/a/c.js", expr.ResolvePath("./c.js", "/a/b.html"))
	assert.Equal(t, "/c.js", expr.ResolvePath("../../c.js", "/a/b.html"))
	assert.Equal(t, "/abs.js", expr.ResolvePath("/abs.js", "/a/b.html"))
}
