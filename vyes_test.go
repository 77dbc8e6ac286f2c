package vyes_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/delaneyj/vyes"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	app   *vyes.App
	host  *dom.Node
	diags []vyes.Diagnostic
	err   error
}

func page(body, setup string) *fstest.MapFile {
	s := "<!doctype html><html><head><title>Test</title></head><body root>" + body
	if setup != "" {
		s += "<script setup>\n" + setup + "\n</script>"
	}
	return &fstest.MapFile{Data: []byte(s + "</body></html>")}
}

func component(body, setup string) *fstest.MapFile {
	s := "<!doctype html><html><body>" + body
	if setup != "" {
		s += "<script setup>\n" + setup + "\n</script>"
	}
	return &fstest.MapFile{Data: []byte(s + "</body></html>")}
}

func mount(t *testing.T, files fstest.MapFS) *harness {
	t.Helper()
	doc := dom.NewDocument()
	h := &harness{host: doc.CreateElement("div")}
	doc.Body().AppendChild(h.host)
	h.app = vyes.New(doc,
		vyes.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		vyes.WithSource(fetch.DirSource{FS: files}),
		vyes.WithDiagnostics(func(d vyes.Diagnostic) { h.diags = append(h.diags, d) }),
	)
	h.err = h.app.Mount(context.Background(), h.host, "/")
	return h
}

func (h *harness) store() *reactive.Object { return h.app.Store(h.host) }

func (h *harness) drain() { h.app.System().Drain() }

func (h *harness) texts(tag string) []string {
	var out []string
	for _, n := range h.host.QueryAll(dom.ByTag(tag)) {
		out = append(out, n.TextContent())
	}
	return out
}

func (h *harness) kinds() []string {
	var out []string
	for _, d := range h.diags {
		out = append(out, d.Kind)
	}
	return out
}

func TestMountInstallsStyle(t *testing.T) {
	h := mount(t, fstest.MapFS{"root.html": page("<p>x</p>", "")})
	require.NoError(t, h.err)
	style := h.app.Document().Head().FirstChild()
	require.NotNil(t, style)
	assert.Equal(t, "style", style.Tag)
	assert.True(t, style.HasAttr("vyes"))
	assert.Equal(t, "/root", h.host.GetAttr("vref"))
}

func TestMountFailureRendersFallback(t *testing.T) {
	h := mount(t, fstest.MapFS{})
	require.Error(t, h.err)
	assert.True(t, errors.Is(h.err, fetch.ErrNotFound))
	assert.Contains(t, h.host.InnerHTML(), "404")
	assert.Equal(t, []string{"fetch"}, h.kinds())
}

func TestTextInterpolation(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<p>Hello {{ user.name }}!</p>`, `user = {name: 'Ann'}`),
	})
	require.NoError(t, h.err)
	assert.Equal(t, []string{"Hello Ann!"}, h.texts("p"))

	user, ok := h.store().Get("user").(*reactive.Object)
	require.True(t, ok)
	user.Set("name", "Bo")
	assert.Equal(t, []string{"Hello Ann!"}, h.texts("p"), "updates wait for a drain")
	h.drain()
	assert.Equal(t, []string{"Hello Bo!"}, h.texts("p"))
}

func TestFor(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		h := mount(t, fstest.MapFS{"root.html": page(`<ul><li v-for="n in 3">{{ n }}</li></ul>`, "")})
		require.NoError(t, h.err)
		assert.Equal(t, []string{"0", "1", "2"}, h.texts("li"))
	})

	t.Run("key and value", func(t *testing.T) {
		h := mount(t, fstest.MapFS{
			"root.html": page(`<ul><li v-for="(v, k) in tags">{{ k }}={{ v }}</li></ul>`, `tags = {b: 2, a: 1}`),
		})
		require.NoError(t, h.err)
		assert.Equal(t, []string{"a=1", "b=2"}, h.texts("li"))
	})

	t.Run("reorder reuses clones", func(t *testing.T) {
		h := mount(t, fstest.MapFS{
			"root.html": page(`<ul><li v-for="it in items">{{ it.id }}</li></ul>`, `items = [{id: 1}, {id: 2}, {id: 3}]`),
		})
		require.NoError(t, h.err)
		before := h.host.QueryAll(dom.ByTag("li"))
		require.Len(t, before, 3)

		arr, ok := h.store().Get("items").(*reactive.Array)
		require.True(t, ok)
		items := arr.Items()
		arr.Replace([]any{items[2], items[0]})
		h.drain()

		after := h.host.QueryAll(dom.ByTag("li"))
		require.Len(t, after, 2)
		assert.Same(t, before[2], after[0])
		assert.Same(t, before[0], after[1])
		assert.Nil(t, before[1].Parent(), "evicted clone is removed")
		assert.Equal(t, []string{"3", "1"}, h.texts("li"))
	})

	t.Run("filtered items", func(t *testing.T) {
		h := mount(t, fstest.MapFS{
			"root.html": page(`<ul><li v-for="n in nums" v-if="n > limit">{{ n }}</li></ul>`, "nums = [1, 2, 3, 4]\nlimit = 2"),
		})
		require.NoError(t, h.err)
		assert.Equal(t, []string{"3", "4"}, h.texts("li"))

		h.store().Set("limit", 0.0)
		h.drain()
		assert.Equal(t, []string{"1", "2", "3", "4"}, h.texts("li"))
	})
}

func TestConditionals(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<div>
<p v-if="mode === 'a'">A{{ n }}</p>
<p v-else-if="mode === 'b'">B</p>
<p v-else>C</p>
</div>`, "mode = 'a'\nn = 1"),
	})
	require.NoError(t, h.err)
	assert.Equal(t, []string{"A1"}, h.texts("p"))
	branchA := h.host.Query(dom.ByTag("p"))

	h.store().Set("mode", "b")
	h.drain()
	assert.Equal(t, []string{"B"}, h.texts("p"))

	h.store().Set("n", 2.0)
	h.drain()
	assert.Equal(t, "A1", branchA.TextContent(), "hidden branch stays dormant")

	h.store().Set("mode", "z")
	h.drain()
	assert.Equal(t, []string{"C"}, h.texts("p"))

	h.store().Set("mode", "a")
	h.drain()
	assert.Equal(t, []string{"A2"}, h.texts("p"), "shown branch catches up")
	assert.Same(t, branchA, h.host.Query(dom.ByTag("p")))
}

func TestMountScriptsInsideGroups(t *testing.T) {
	counter := component(`<b>{{ n }}</b><script>n = 2</script>`, "n = 1")
	for name, tc := range map[string]struct {
		body string
		want []string
	}{
		"top level": {`<my-c></my-c>`, []string{"2"}},
		"v-if":      {`<div v-if="on"><my-c></my-c></div>`, []string{"2"}},
		"v-for":     {`<div v-for="i in 2"><my-c></my-c></div>`, []string{"2", "2"}},
	} {
		t.Run(name, func(t *testing.T) {
			h := mount(t, fstest.MapFS{
				"root.html": page(tc.body, "on = true"),
				"my/c.html": counter,
			})
			require.NoError(t, h.err)
			for i := 0; i < 3; i++ {
				h.drain()
			}
			assert.Equal(t, tc.want, h.texts("b"))
		})
	}
}

func TestMountedAndVdom(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<canvas vdom="el" @mounted="mounted++"></canvas><i v-if="show" @mounted="later++">x</i>`,
			"el = null\nmounted = 0\nlater = 0\nshow = false"),
	})
	require.NoError(t, h.err)
	assert.Same(t, h.host.Query(dom.ByTag("canvas")), h.store().Get("el"))
	assert.Equal(t, 1.0, h.store().Get("mounted"))
	assert.Equal(t, 0.0, h.store().Get("later"))

	h.store().Set("show", true)
	h.drain()
	assert.Equal(t, 1.0, h.store().Get("later"))
	assert.Empty(t, h.diags)
}

func TestStyleBinding(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<p :style="s">a</p><i :style="m">b</i>`,
			"s = 'color: red; margin: 0'\nm = {color: 'blue', '--gap': '4px'}"),
	})
	require.NoError(t, h.err)
	p := h.host.Query(dom.ByTag("p"))
	i := h.host.Query(dom.ByTag("i"))
	assert.Equal(t, "red", p.StyleGet("color"))
	assert.Equal(t, "0", p.StyleGet("margin"))
	assert.Equal(t, "blue", i.StyleGet("color"))
	assert.Equal(t, "4px", i.StyleGet("--gap"))

	h.store().Set("s", "color: green")
	m, ok := h.store().Get("m").(*reactive.Object)
	require.True(t, ok)
	m.Set("--gap", "8px")
	h.drain()
	assert.Equal(t, "green", p.StyleGet("color"))
	assert.Equal(t, "", p.StyleGet("margin"), "dropped properties are removed")
	assert.Equal(t, "8px", i.StyleGet("--gap"))
}

func TestEventModifiers(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<div @click="outer++"><button @click.stop="inner++">s</button><span @click.self.prevent="selfs++"><b>child</b></span></div>`,
			"outer = 0\ninner = 0\nselfs = 0"),
	})
	require.NoError(t, h.err)

	h.host.Query(dom.ByTag("button")).Dispatch(dom.NewEvent("click"))
	assert.Equal(t, 1.0, h.store().Get("inner"))
	assert.Equal(t, 0.0, h.store().Get("outer"), "stop keeps the click from bubbling")

	ev := dom.NewEvent("click")
	h.host.Query(dom.ByTag("b")).Dispatch(ev)
	assert.Equal(t, 0.0, h.store().Get("selfs"), "self ignores clicks on children")
	assert.False(t, ev.DefaultPrevented())
	assert.Equal(t, 1.0, h.store().Get("outer"))

	ev = dom.NewEvent("click")
	h.host.Query(dom.ByTag("span")).Dispatch(ev)
	assert.Equal(t, 1.0, h.store().Get("selfs"))
	assert.True(t, ev.DefaultPrevented())
	assert.Equal(t, 2.0, h.store().Get("outer"))
}

func TestComponentTwoWayProps(t *testing.T) {
	files := fstest.MapFS{
		"root.html":     page(`<my-field v:value="name"></my-field><p>{{ name }}</p>`, "name = 'Ann'"),
		"my/field.html": component(`<b>{{ value }}</b><i @click="value = 'typed'">t</i>`, "value = ''"),
	}
	h := mount(t, files)
	require.NoError(t, h.err)
	assert.Empty(t, h.diags)
	assert.Equal(t, []string{"Ann"}, h.texts("b"))

	h.host.Query(dom.ByTag("i")).Dispatch(dom.NewEvent("click"))
	h.drain()
	assert.Equal(t, "typed", h.store().Get("name"))
	h.drain()
	assert.Equal(t, []string{"typed"}, h.texts("p"))

	h.store().Set("name", "Zed")
	h.drain()
	h.drain()
	assert.Equal(t, []string{"Zed"}, h.texts("b"))
}

func TestChoiceBinding(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<input type="radio" name="c" value="r" v:checked="color"><input type="radio" name="c" value="g" v:checked="color">
<select v:value="pick"><option>a</option><option value="b">B</option></select>
<select multiple v:value="picks"><option>x</option><option>y</option><option>z</option></select>`,
			"color = 'g'\npick = 'b'\npicks = ['y']"),
	})
	require.NoError(t, h.err)
	assert.Empty(t, h.diags)

	t.Run("radio", func(t *testing.T) {
		radios := h.host.QueryAll(dom.ByTag("input"))
		require.Len(t, radios, 2)
		assert.False(t, radios[0].Checked())
		assert.True(t, radios[1].Checked())

		radios[0].SetChecked(true)
		radios[0].Dispatch(dom.NewEvent("change"))
		assert.Equal(t, "r", h.store().Get("color"))
		assert.False(t, radios[1].Checked())

		h.store().Set("color", "g")
		h.drain()
		assert.True(t, radios[1].Checked())
	})

	selects := h.host.QueryAll(dom.ByTag("select"))
	require.Len(t, selects, 2)

	t.Run("select", func(t *testing.T) {
		sel := selects[0]
		assert.Equal(t, "b", sel.Value())
		sel.SetValue("a")
		sel.Dispatch(dom.NewEvent("change"))
		assert.Equal(t, "a", h.store().Get("pick"))
	})

	t.Run("select multiple", func(t *testing.T) {
		sel := selects[1]
		opts := sel.Options()
		require.Len(t, opts, 3)
		assert.Equal(t, []bool{false, true, false}, []bool{opts[0].Selected(), opts[1].Selected(), opts[2].Selected()})

		opts[2].SetProp("selected", true)
		sel.Dispatch(dom.NewEvent("change"))
		assert.Equal(t, []any{"y", "z"}, reactive.Plain(h.store().Get("picks")))

		h.store().Set("picks", []any{"x"})
		h.drain()
		assert.Equal(t, []bool{true, false, false}, []bool{opts[0].Selected(), opts[1].Selected(), opts[2].Selected()})
	})
}

func TestForceUpdateRefreshesUntrackedReads(t *testing.T) {
	h := mount(t, fstest.MapFS{"root.html": page(`<p>{{ raw?.v }}</p>`, "raw = null")})
	require.NoError(t, h.err)
	assert.Equal(t, []string{""}, h.texts("p"))

	raw := reactive.RawMap{"v": "a"}
	h.store().Set("raw", raw)
	h.drain()
	assert.Equal(t, []string{"a"}, h.texts("p"))

	raw["v"] = "b"
	h.drain()
	assert.Equal(t, []string{"a"}, h.texts("p"), "raw maps are not observed")
	assert.Positive(t, h.app.System().ForceUpdate())
	assert.Equal(t, []string{"b"}, h.texts("p"))
}

func TestShowAndAttributes(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<p v-show="on" :title="tip" :class="on ? 'active' : ''">x</p>`, "on = false\ntip = 'hint'"),
	})
	require.NoError(t, h.err)
	p := h.host.Query(dom.ByTag("p"))
	assert.Equal(t, "none", p.StyleGet("display"))
	assert.Equal(t, "hint", p.GetAttr("title"))
	assert.False(t, p.HasAttr(":title"))

	h.store().Set("on", true)
	h.drain()
	assert.Equal(t, "", p.StyleGet("display"))
	assert.Contains(t, strings.Fields(p.GetAttr("class")), "active")
}

func TestTwoWayBinding(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<input v:value="name"><input type="checkbox" v:checked="done">`, "name = 'Ann'\ndone = false"),
	})
	require.NoError(t, h.err)
	inputs := h.host.QueryAll(dom.ByTag("input"))
	require.Len(t, inputs, 2)
	text, box := inputs[0], inputs[1]
	assert.Equal(t, "Ann", text.Value())

	text.SetValue("Bo")
	text.Dispatch(dom.NewEvent("input"))
	assert.Equal(t, "Bo", h.store().Get("name"))

	h.store().Set("name", "Cy")
	h.drain()
	assert.Equal(t, "Cy", text.Value())

	box.SetChecked(true)
	box.Dispatch(dom.NewEvent("change"))
	assert.Equal(t, true, h.store().Get("done"))
}

func TestEvents(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<button @click="n++">+</button>
<i @click.delay100ms="slow++">~</i>
<div @keydown.enter="hits++">k</div>`, "n = 0\nslow = 0\nhits = 0"),
	})
	require.NoError(t, h.err)

	h.host.Query(dom.ByTag("button")).Dispatch(dom.NewEvent("click"))
	assert.Equal(t, 1.0, h.store().Get("n"))

	i := h.host.Query(dom.ByTag("i"))
	i.Dispatch(dom.NewEvent("click"))
	i.Dispatch(dom.NewEvent("click"))
	assert.Equal(t, 0.0, h.store().Get("slow"))
	clock, ok := h.app.System().Clock().(*reactive.ManualClock)
	require.True(t, ok)
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1.0, h.store().Get("slow"), "debounced clicks fire once")

	div := h.host.Query(dom.ByTag("div"))
	assert.Equal(t, "0", div.GetAttr("tabindex"))
	div.Dispatch(dom.NewKeyEvent("keydown", "a"))
	div.Dispatch(dom.NewKeyEvent("keydown", "Enter"))
	assert.Equal(t, 1.0, h.store().Get("hits"))
}

func TestComponents(t *testing.T) {
	files := fstest.MapFS{
		"root.html": page(`<my-counter label="Clicks" @bump="v => last = v"></my-counter>`, "last = 0"),
		"my/counter.html": component(`<button @click="count++">{{ label }}: {{ count }}</button><i @click="$emit('bump', 5)">emit</i>`,
			"count = 0\nlabel = 'n'"),
	}
	h := mount(t, files)
	require.NoError(t, h.err)
	assert.Equal(t, []string{"Clicks: 0"}, h.texts("button"))

	button := h.host.Query(dom.ByTag("button"))
	button.Dispatch(dom.NewEvent("click"))
	h.drain()
	assert.Equal(t, []string{"Clicks: 1"}, h.texts("button"))
	assert.NotSame(t, h.store(), h.app.Store(button), "components get their own store")

	h.host.Query(dom.ByTag("i")).Dispatch(dom.NewEvent("click"))
	assert.Equal(t, 5.0, h.store().Get("last"))
}

func TestBoundProps(t *testing.T) {
	files := fstest.MapFS{
		"root.html":    page(`<my-echo :text="msg"></my-echo>`, "msg = 'one'"),
		"my/echo.html": component(`<b>{{ text }}</b>`, "text = ''"),
	}
	h := mount(t, files)
	require.NoError(t, h.err)
	assert.Equal(t, []string{"one"}, h.texts("b"))

	h.store().Set("msg", "two")
	h.drain()
	h.drain()
	assert.Equal(t, []string{"two"}, h.texts("b"))
}

func TestSlots(t *testing.T) {
	files := fstest.MapFS{
		"root.html": page(`<my-card><span vslot="title">Hi {{ who }}</span><p>content</p></my-card>
<my-card></my-card>`, "who = 'W'"),
		"my/card.html": component(`<h2><vslot name="title">Untitled</vslot></h2><div><vslot>empty</vslot></div>`, ""),
	}
	h := mount(t, files)
	require.NoError(t, h.err)
	assert.Equal(t, []string{"Hi W", "Untitled"}, h.texts("h2"))
	assert.Equal(t, []string{"content"}, h.texts("p"))

	h.store().Set("who", "V")
	h.drain()
	assert.Equal(t, []string{"Hi V", "Untitled"}, h.texts("h2"), "slot content binds to the caller")
}

func TestDynamicSource(t *testing.T) {
	files := fstest.MapFS{
		"root.html": page(`<div :vsrc="'/' + which"></div>`, "which = 'a'"),
		"a.html":    component(`<b>A</b>`, ""),
		"b.html":    component(`<b>B</b>`, ""),
	}
	h := mount(t, files)
	require.NoError(t, h.err)
	assert.Equal(t, []string{"A"}, h.texts("b"))

	h.store().Set("which", "b")
	h.drain()
	assert.Equal(t, []string{"B"}, h.texts("b"))
}

func TestRouterAndAnchors(t *testing.T) {
	files := fstest.MapFS{
		"root.html":       page(`<nav><a href="/about">About</a></nav><vrouter></vrouter>`, ""),
		"page/index.html": component(`<h1>Home</h1>`, ""),
		"page/about.html": component(`<h1>About</h1>`, ""),
	}
	h := mount(t, files)
	require.NoError(t, h.err)
	assert.Equal(t, []string{"Home"}, h.texts("h1"))

	a := h.host.Query(dom.ByTag("a"))
	assert.False(t, a.HasAttr("active"))
	ev := dom.NewEvent("click")
	a.Dispatch(ev)
	assert.True(t, ev.DefaultPrevented())
	assert.Equal(t, []string{"About"}, h.texts("h1"))
	assert.Equal(t, "/about", h.app.Router().Current().FullPath)
	assert.True(t, a.HasAttr("active"))
}

func TestDiagnostics(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<ul><li v-for="bad">x</li></ul><p v-else>orphan</p><div v:value="name">x</div>`, "name = 'x'"),
	})
	require.NoError(t, h.err)
	kinds := h.kinds()
	assert.Contains(t, kinds, "v-for")
	assert.Contains(t, kinds, "v-if")
	assert.Contains(t, kinds, "v:")
	for _, d := range h.diags {
		assert.NotEmpty(t, d.String())
	}
}

func TestDispose(t *testing.T) {
	h := mount(t, fstest.MapFS{
		"root.html": page(`<p>{{ n }}</p><ul><li v-for="x in 2">{{ x }}</li></ul><b v-if="n">y</b>`, "n = 1"),
	})
	require.NoError(t, h.err)
	assert.Positive(t, h.app.Computations())
	assert.Positive(t, h.app.Directives())

	h.app.Dispose(h.host)
	assert.Zero(t, h.app.Computations())
	assert.Nil(t, h.store())
}
