package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardHTML = `<!doctype html>
<html>
<head>
  <title>Card</title>
  <link rel="stylesheet" href="/card.css">
  <script src="/lib.js" key="lib"></script>
  <style>.card { color: red }</style>
</head>
<body class="card" :class="{on: on}">
  <div class="inner">{{ msg }}</div>
  <script setup>msg = 'hi'</script>
  <script active>console.log('active')</script>
  <script>console.log('once')</script>
  <script novyes>ignored()</script>
  <script>   </script>
</body>
</html>`

type fetchRecord struct {
	url    string
	cached bool
	err    error
}

type recorder struct{ records []fetchRecord }

func (r *recorder) Fetched(url string, _ time.Duration, cached bool, err error) {
	r.records = append(r.records, fetchRecord{url, cached, err})
}

func newLoader(t *testing.T, files fstest.MapFS, opts ...fetch.Option) (*fetch.Loader, *dom.Document) {
	t.Helper()
	doc := dom.NewDocument()
	return fetch.NewLoader(doc, fetch.DirSource{FS: files}, opts...), doc
}

func TestResolve(t *testing.T) {
	l, _ := newLoader(t, fstest.MapFS{})
	cases := []struct {
		in   string
		env  fetch.Env
		want string
	}{
		{"", nil, "/root.html"},
		{"/", nil, "/root.html"},
		{"card.html", nil, "/card.html"},
		{"/card.html", fetch.Env{"root": "/app"}, "/app/card.html"},
		{"@/card.html", fetch.Env{"root": "/app"}, "/card.html"},
		{"https://cdn.test/x.html", fetch.Env{"root": "/app"}, "https://cdn.test/x.html"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, l.Resolve(tc.in, tc.env))
		})
	}
}

func TestFetchTemplateParsesArtifact(t *testing.T) {
	rec := &recorder{}
	l, doc := newLoader(t, fstest.MapFS{"card.html": {Data: []byte(cardHTML)}}, fetch.WithObserver(rec))

	a := l.FetchTemplate(context.Background(), "card.html", nil, false)
	require.NoError(t, a.Err)
	assert.Equal(t, "/card", a.URL)
	assert.Equal(t, "Card", a.Title)

	require.NotNil(t, a.Setup)
	assert.Equal(t, "msg = 'hi'", a.Setup.Code)
	require.Len(t, a.Scripts, 2)
	assert.True(t, a.Scripts[0].Active)
	assert.Equal(t, "console.log('once')", a.Scripts[1].Code)
	assert.False(t, a.Scripts[1].Active)
	assert.Empty(t, a.Body.QueryAll(dom.ByTag("script")))

	assert.Equal(t, "/card", a.Body.GetAttr("vref"))
	assert.Equal(t, "card", a.Body.GetAttr("class"))
	assert.Equal(t, []dom.Attr{{Name: ":class", Value: "{on: on}"}}, a.CustomAttrs)
	inner := a.Body.Query(dom.ByTag("div"))
	require.NotNil(t, inner)
	assert.Equal(t, "/card", inner.GetAttr("vrefof"))

	style := doc.Head().Query(func(n *dom.Node) bool { return n.Tag == "style" && n.GetAttr("vref") == "/card" })
	require.NotNil(t, style)
	assert.Contains(t, style.TextContent(), `.card[vrefof="/card"]`)
	assert.NotNil(t, doc.Head().Query(func(n *dom.Node) bool { return n.Tag == "link" && n.GetAttr("href") == "/card.css" }))
	assert.NotNil(t, doc.Head().Query(func(n *dom.Node) bool { return n.Tag == "script" && n.GetAttr("key") == "lib" }))

	again := l.FetchTemplate(context.Background(), "/card.html", nil, false)
	assert.Same(t, a, again)
	assert.Equal(t, []fetchRecord{{"/card.html", false, nil}, {"/card.html", true, nil}}, rec.records)
	assert.Len(t, doc.Head().QueryAll(dom.ByTag("style")), 1)
}

func TestEnvironment(t *testing.T) {
	router := map[string]any{"name": "router"}
	files := fstest.MapFS{
		"card.html": {Data: []byte(`<body><p>x</p></body>`)},
		"env.js":    {Data: []byte("export default (env) => { env.title = 'from env' }")},
	}
	hooked := map[string]bool{}
	l, _ := newLoader(t, files,
		fetch.WithRouter(router),
		fetch.WithEnvHook(func(root string, env fetch.Env) { hooked[root] = true }),
	)

	a := l.FetchTemplate(context.Background(), "card.html", nil, false)
	require.NoError(t, a.Err)
	assert.Equal(t, "", a.Env.Root())
	assert.Equal(t, "from env", a.Env["title"])
	assert.IsType(t, &reactive.Object{}, a.Env["$G"])
	assert.IsType(t, &fetch.Bus{}, a.Env["$bus"])
	assert.Equal(t, router, a.Env["$router"])
	assert.True(t, hooked[""])

	shared := l.Environment(context.Background(), "", nil)
	assert.Same(t, a.Env["$G"], shared["$G"])

	other := l.Environment(context.Background(), "https://cdn.test", nil)
	assert.NotEqual(t, router, other["$router"])
	assert.NotSame(t, shared["$bus"], other["$bus"])
}

func TestHeadersSetTheRoot(t *testing.T) {
	doc := dom.NewDocument()
	src := fetch.DirSource{
		FS:     fstest.MapFS{"app/card.html": {Data: []byte(`<body><p>x</p></body>`)}},
		Header: http.Header{"Vyes-Root": {"/app"}, "Vyes-Theme": {"dark"}},
	}
	l := fetch.NewLoader(doc, src)
	a := l.FetchTemplate(context.Background(), "card.html", fetch.Env{"root": "/app"}, false)
	require.NoError(t, a.Err)
	assert.Equal(t, "/app/card", a.URL)
	assert.Equal(t, "/app", a.Env.Root())
	assert.Equal(t, "dark", a.Env["theme"])
}

func TestNotFoundArtifact(t *testing.T) {
	var buf bytes.Buffer
	l, _ := newLoader(t, fstest.MapFS{}, fetch.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	a := l.FetchTemplate(context.Background(), "missing.html", nil, false)
	require.Error(t, a.Err)
	assert.ErrorIs(t, a.Err, fetch.ErrNotFound)
	assert.Contains(t, a.Body.InnerHTML(), "404")
	assert.Contains(t, a.Body.InnerHTML(), "/missing.html")
	assert.NotContains(t, buf.String(), "fetch failed", "plain 404s are not logged")
	assert.Same(t, a, l.FetchTemplate(context.Background(), "missing.html", nil, false))
}

func TestNotFoundFragmentEscapesURL(t *testing.T) {
	out := fetch.NotFound("/<b>.html")
	assert.Contains(t, out, "/&lt;b&gt;.html")
	assert.True(t, strings.HasPrefix(out, "<div"))
}

func TestRootPagesNeedAllowRoot(t *testing.T) {
	files := fstest.MapFS{"app.html": {Data: []byte(`<body root><p>app</p></body>`)}}

	l, _ := newLoader(t, files)
	a := l.FetchTemplate(context.Background(), "app.html", nil, false)
	assert.ErrorIs(t, a.Err, fetch.ErrNotFound)

	l, _ = newLoader(t, files)
	a = l.FetchTemplate(context.Background(), "app.html", nil, true)
	require.NoError(t, a.Err)
	assert.Equal(t, "app", a.Body.TextContent())
}

func TestLoadScriptAndLinkDedup(t *testing.T) {
	l, doc := newLoader(t, fstest.MapFS{})
	script := doc.CreateElement("script")
	script.SetAttr("src", "/x.js")
	env := fetch.Env{"root": "/app"}

	assert.True(t, l.LoadScript(script, env))
	assert.False(t, l.LoadScript(script, env))
	assert.Equal(t, "/app/x.js", doc.Head().Query(dom.ByTag("script")).GetAttr("src"))

	keyed := doc.CreateElement("script")
	keyed.SetAttr("src", "@https://cdn.test/y.js")
	keyed.SetAttr("key", "y")
	assert.True(t, l.LoadScript(keyed, env))
	other := doc.CreateElement("script")
	other.SetAttr("src", "/z.js")
	other.SetAttr("key", "y")
	assert.False(t, l.LoadScript(other, env))

	link := doc.CreateElement("link")
	link.SetAttr("href", "/a.css")
	assert.True(t, l.LoadLink(link, nil))
	assert.False(t, l.LoadLink(link, nil))
	assert.Len(t, doc.Head().QueryAll(dom.ByTag("link")), 1)
}

func TestLoadModule(t *testing.T) {
	files := fstest.MapFS{
		"lib/math.js": {Data: []byte("export const twice = (n) => n * 2")},
		"lib/app.js":  {Data: []byte("import { twice } from './math'\nexport default { four: twice(2) }")},
	}
	l, _ := newLoader(t, files)

	mod, err := l.LoadModule(context.Background(), "/lib/app.js")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"four": 4.0}, mod["default"])

	_, err = l.LoadModule(context.Background(), "/lib/none.js")
	assert.ErrorIs(t, err, expr.ErrModuleNotFound)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/c.html":
			w.Header().Set("Vyes-Root", "/app")
			io.WriteString(w, "<p>c</p>")
		case "/boom.html":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	src := fetch.HTTPSource{Client: srv.Client(), Base: srv.URL}

	resp, err := src.Open(context.Background(), "/c.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>c</p>", string(resp.Body))
	assert.Equal(t, "/app", resp.Header.Get("Vyes-Root"))

	_, err = src.Open(context.Background(), "/nope.html")
	assert.ErrorIs(t, err, fetch.ErrNotFound)

	_, err = src.Open(context.Background(), "/boom.html")
	require.Error(t, err)
	assert.False(t, errors.Is(err, fetch.ErrNotFound))
}

type fakeS3 struct {
	objects map[string]string
	meta    map[string]string
}

func (f fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(body)),
		Metadata:    f.meta,
		ContentType: aws.String("text/html"),
	}, nil
}

func TestS3Source(t *testing.T) {
	src := fetch.S3Source{
		Client: fakeS3{
			objects: map[string]string{"site/card.html": "<p>card</p>"},
			meta:    map[string]string{"vyes-root": "/site"},
		},
		Bucket: "ui",
		Prefix: "site/",
	}

	resp, err := src.Open(context.Background(), "/card.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>card</p>", string(resp.Body))
	assert.Equal(t, "/site", resp.Header.Get("Vyes-Root"))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))

	_, err = src.Open(context.Background(), "https://bucket.test/missing.html")
	assert.ErrorIs(t, err, fetch.ErrNotFound)
}

func TestBus(t *testing.T) {
	var buf bytes.Buffer
	bus := fetch.NewBus(slog.New(slog.NewTextHandler(&buf, nil)))

	var got []any
	off := bus.On("save", func(args ...any) any { got = append(got, args...); return nil })
	bus.Once("save", func(args ...any) any { got = append(got, "once"); return nil })
	bus.On("save", func(...any) any { panic("listener broke") })
	assert.Equal(t, 3, bus.ListenerCount("save"))

	bus.Emit("save", 1.0)
	assert.Equal(t, []any{1.0, "once"}, got)
	assert.Contains(t, buf.String(), "bus listener failed")
	assert.Equal(t, 2, bus.ListenerCount("save"))

	off()
	bus.Emit("save", 2.0)
	assert.Equal(t, []any{1.0, "once"}, got)
	assert.Equal(t, []string{"save"}, bus.EventNames())

	bus.Off("save")
	assert.False(t, bus.HasListeners("save"))
	bus.Emit("nothing")
}

func TestBusFromExpressions(t *testing.T) {
	bus := fetch.NewBus(nil)
	sys := reactive.NewSystem()
	scope := &expr.Scope{
		Data: sys.NewObject(map[string]any{"seen": 0.0}, nil),
		Env:  fetch.Env{"$bus": bus},
	}
	expr.Run("$bus.on('ping', (n) => seen = seen + n)", scope)
	expr.Run("$bus.emit('ping', 5)", scope)
	assert.Equal(t, 5.0, scope.Data.(*reactive.Object).Get("seen"))
	assert.Equal(t, 1, expr.Run("$bus.listenerCount('ping')", scope))
}
