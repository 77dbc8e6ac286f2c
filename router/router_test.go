package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pages struct {
	doc   *dom.Document
	calls []string
}

func (p *pages) Instantiate(_ context.Context, url, layout string, _ fetch.Env) (*dom.Node, string, error) {
	p.calls = append(p.calls, url)
	if url == "/page/broken.html" {
		return nil, "", errors.New("boom")
	}
	n := p.doc.CreateElement("section")
	n.SetTextContent(url)
	if layout != "" {
		n.SetAttr("layout", layout)
	}
	return n, "T " + url, nil
}

func TestResolve(t *testing.T) {
	m := router.NewMemory(router.WithRoutes(
		router.Route{Path: "/user/:id", Component: "/page/user/:id.html", Name: "user"},
		router.Route{Path: "/docs", Layout: "/layout/docs", Meta: map[string]any{"section": "docs"}, Children: []router.Route{
			{Path: "intro", Component: "/page/docs/intro"},
			{Path: "/api/:name", Component: "/page/docs/api", Meta: map[string]any{"api": true}},
		}},
	))
	m.AddRoutes(router.DefaultRoutes...)

	t.Run("params", func(t *testing.T) {
		loc, err := m.Resolve(router.Target{Path: "/user/42/"})
		require.NoError(t, err)
		assert.Equal(t, "/user/42", loc.Path)
		assert.Equal(t, map[string]string{"id": "42"}, loc.Params)
		assert.Equal(t, "/page/user/42.html", loc.ComponentURL())
		assert.Equal(t, "user", loc.Name)
	})

	t.Run("by name", func(t *testing.T) {
		loc, err := m.Resolve(router.Target{Name: "user", Params: map[string]string{"id": "7"}, Query: map[string]string{"z": "1", "a": "x y"}})
		require.NoError(t, err)
		assert.Equal(t, "/user/7", loc.Path)
		assert.Equal(t, "/user/7?a=x+y&z=1", loc.FullPath)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := m.Resolve(router.Target{Name: "nope"})
		assert.ErrorIs(t, err, router.ErrNoRoute)
	})

	t.Run("children inherit layout and meta", func(t *testing.T) {
		loc, err := m.Resolve(router.Target{Path: "/docs/intro"})
		require.NoError(t, err)
		assert.Equal(t, "/layout/docs", loc.Layout)
		assert.Equal(t, "docs", loc.Meta["section"])
		assert.Equal(t, "/page/docs/intro.html", loc.ComponentURL())

		loc, err = m.Resolve(router.Target{Path: "/docs/api/fetch"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"name": "fetch"}, loc.Params)
		assert.Equal(t, true, loc.Meta["api"])
		assert.Equal(t, "docs", loc.Meta["section"])
	})

	t.Run("defaults", func(t *testing.T) {
		loc, err := m.Resolve(router.Target{Path: "/"})
		require.NoError(t, err)
		assert.Equal(t, "/page/index.html", loc.ComponentURL())

		loc, err = m.Resolve(router.Target{Path: "/blog/post"})
		require.NoError(t, err)
		assert.Equal(t, "/page/blog/post.html", loc.ComponentURL())

		loc, err = m.Resolve(router.Target{Path: "/raw/file.html"})
		require.NoError(t, err)
		assert.Equal(t, "/raw/file.html", loc.ComponentURL())
	})
}

func TestParseTarget(t *testing.T) {
	m := router.NewMemory(router.WithOrigin("https://app.test"))

	tg, ok := m.ParseTarget("/search?q=go#top")
	require.True(t, ok)
	assert.Equal(t, "/search", tg.Path)
	assert.Equal(t, "top", tg.Hash)
	assert.Equal(t, map[string]string{"q": "go"}, tg.Query)

	tg, ok = m.ParseTarget("https://app.test/a")
	require.True(t, ok)
	assert.Equal(t, "/a", tg.Path)

	_, ok = m.ParseTarget("https://elsewhere.test/a")
	assert.False(t, ok)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	m := router.NewMemory(router.WithRoutes(router.DefaultRoutes...))

	var seen []string
	off := m.OnChange(func(to, from *router.Location) {
		f := ""
		if from != nil {
			f = from.Path
		}
		seen = append(seen, f+">"+to.Path)
	})

	require.NoError(t, m.Push(ctx, "/a"))
	require.NoError(t, m.Push(ctx, "/b"))
	require.NoError(t, m.Push(ctx, "/c"))
	assert.Equal(t, "/c", m.Current().Path)

	require.NoError(t, m.Back(ctx))
	assert.Equal(t, "/b", m.Current().Path)
	require.NoError(t, m.Go(ctx, -1))
	assert.Equal(t, "/a", m.Current().Path)
	require.NoError(t, m.Back(ctx))
	assert.Equal(t, "/a", m.Current().Path, "back past the start is a no-op")
	require.NoError(t, m.Forward(ctx))
	assert.Equal(t, "/b", m.Current().Path)

	require.NoError(t, m.Replace(ctx, "/x"))
	require.NoError(t, m.Push(ctx, "/d"))
	paths := []string{}
	for _, l := range m.History() {
		paths = append(paths, l.Path)
	}
	assert.Equal(t, []string{"/a", "/x", "/d"}, paths, "push drops the forward entries")

	off()
	require.NoError(t, m.Push(ctx, "/e"))
	assert.Equal(t, []string{">/a", "/a>/b", "/b>/c", "/c>/b", "/b>/a", "/a>/b", "/b>/x", "/x>/d"}, seen)
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	m := router.NewMemory(router.WithRoutes(router.DefaultRoutes...))
	m.BeforeEnter = func(_ context.Context, to, _ *router.Location) (string, bool) {
		switch to.Path {
		case "/secret":
			return "/login", false
		case "/closed":
			return "", false
		}
		return "", true
	}

	require.NoError(t, m.Push(ctx, "/secret"))
	assert.Equal(t, "/login", m.Current().Path)

	require.NoError(t, m.Push(ctx, "/closed"))
	assert.Equal(t, "/login", m.Current().Path)
	assert.Len(t, m.History(), 1)
}

func TestParseVrouter(t *testing.T) {
	ctx := context.Background()
	doc := dom.NewDocument()
	outlet := doc.CreateElement("vrouter")
	outlet.SetTextContent("fallback")
	doc.Body().AppendChild(outlet)

	p := &pages{doc: doc}
	m := router.NewMemory(router.WithStart("/app/about"))
	m.AddRoutes(router.Route{Path: "/broken", Component: "/page/broken.html"})
	m.AddRoutes(router.DefaultRoutes...)

	require.NoError(t, m.ParseVrouter(ctx, p, outlet, fetch.Env{"root": "/app"}))
	assert.Equal(t, "/app", m.Root())
	assert.Equal(t, "/about", m.Current().Path)
	assert.Equal(t, "<section>/page/about.html</section>", outlet.InnerHTML())
	assert.Equal(t, "T /page/about.html", doc.Title())

	t.Run("pages are reused per full path", func(t *testing.T) {
		first := outlet.FirstChild()
		require.NoError(t, m.Push(ctx, "/"))
		assert.Equal(t, "<section>/page/index.html</section>", outlet.InnerHTML())
		require.NoError(t, m.Back(ctx))
		assert.Same(t, first, outlet.FirstChild())
		assert.Equal(t, []string{"/page/about.html", "/page/index.html"}, p.calls)
	})

	t.Run("failed pages show the original content", func(t *testing.T) {
		require.NoError(t, m.Push(ctx, "/broken"))
		assert.Contains(t, outlet.InnerHTML(), "fallback")
	})
}

func TestExpressions(t *testing.T) {
	ctx := context.Background()
	m := router.NewMemory(router.WithRoutes(
		router.Route{Path: "/user/:id", Component: "/page/user", Name: "user"},
	))
	m.AddRoutes(router.DefaultRoutes...)
	scope := &expr.Scope{Env: fetch.Env{"$router": m}}

	_, err := expr.RunAsync(ctx, `$router.beforeEnter = (to, from, next) => to.path == '/secret' ? next('/user/9') : true`, scope)
	require.NoError(t, err)

	_, err = expr.RunAsync(ctx, `$router.push({ name: 'user', params: { id: 3 }, query: { tab: 'a' } })`, scope)
	require.NoError(t, err)
	assert.Equal(t, "/user/3?tab=a", m.Current().FullPath)

	v, err := expr.RunAsync(ctx, `$router.params.id + ':' + $router.query.tab`, scope)
	require.NoError(t, err)
	assert.Equal(t, "3:a", v)

	_, err = expr.RunAsync(ctx, `$router.push('/secret')`, scope)
	require.NoError(t, err)
	assert.Equal(t, "/user/9", m.Current().Path)

	v, err = expr.RunAsync(ctx, `$router.current.name`, scope)
	require.NoError(t, err)
	assert.Equal(t, "user", v)

	_, err = expr.RunAsync(ctx, `$router.back()`, scope)
	require.NoError(t, err)
	assert.Equal(t, "/user/3", m.Current().Path)

	bare := router.NewMemory()
	_, err = expr.RunAsync(ctx, `$router.addRoutes([{ path: '/help', component: '/page/help-center', children: [{ path: 'faq', component: '/page/faq' }] }])`, &expr.Scope{Env: fetch.Env{"$router": bare}})
	require.NoError(t, err)
	loc, err := bare.Resolve(router.Target{Path: "/help"})
	require.NoError(t, err)
	assert.Equal(t, "/page/help-center.html", loc.ComponentURL())
	loc, err = bare.Resolve(router.Target{Path: "/help/faq"})
	require.NoError(t, err)
	assert.Equal(t, "/page/faq.html", loc.ComponentURL())
}
