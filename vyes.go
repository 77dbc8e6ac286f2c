// Package vyes walks component templates in a dom.Document and binds
// their directives to reactive stores.
package vyes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
	"github.com/delaneyj/vyes/router"
	"github.com/delaneyj/vyes/script"
)

// GlobalStyle is installed first in the document head.
const GlobalStyle = `[vref]{display:block}[vparsing]{display:none}vslot,vrouter{display:block}`

// Diagnostic reports template misuse found while walking. The directive
// it names is left unbound.
type Diagnostic struct {
	Kind string
	Msg  string
	Node *dom.Node
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Msg)
}

// App binds templates of one document.
type App struct {
	doc     *dom.Document
	sys     *reactive.System
	loader  *fetch.Loader
	router  router.Router
	scripts *script.Engine
	logger  *slog.Logger
	timers  *expr.Timers
	globals map[string]any
	diag    func(Diagnostic)

	source      fetch.Source
	loaderOpts  []fetch.Option
	fetcher     *expr.Fetcher
	userGlobals map[string]any

	states     map[*dom.Node]*nodeState
	delays     map[string]*delaySlot
	nextDelay  uint64
	nextSlot   uint64
	directives int
	root       string
	off        func()
}

type Option func(*App)

func WithLogger(l *slog.Logger) Option { return func(a *App) { a.logger = l } }

func WithSystem(s *reactive.System) Option { return func(a *App) { a.sys = s } }

// WithLoader uses l for artifacts; it must share the App's document and
// system.
func WithLoader(l *fetch.Loader) Option { return func(a *App) { a.loader = l } }

// WithSource builds the loader over src with extra loader options.
func WithSource(src fetch.Source, opts ...fetch.Option) Option {
	return func(a *App) {
		a.source = src
		a.loaderOpts = append(a.loaderOpts, opts...)
	}
}

func WithRouter(r router.Router) Option { return func(a *App) { a.router = r } }

func WithScriptEngine(e *script.Engine) Option { return func(a *App) { a.scripts = e } }

// WithFetcher backs the fetch global of expressions.
func WithFetcher(f *expr.Fetcher) Option { return func(a *App) { a.fetcher = f } }

// WithGlobals adds expression globals.
func WithGlobals(g map[string]any) Option {
	return func(a *App) {
		if a.userGlobals == nil {
			a.userGlobals = map[string]any{}
		}
		for k, v := range g {
			a.userGlobals[k] = v
		}
	}
}

// WithDiagnostics receives every structural error and refused binding.
func WithDiagnostics(fn func(Diagnostic)) Option { return func(a *App) { a.diag = fn } }

func New(doc *dom.Document, opts ...Option) *App {
	a := &App{
		doc:    doc,
		logger: slog.Default(),
		states: map[*dom.Node]*nodeState{},
		delays: map[string]*delaySlot{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sys == nil {
		a.sys = reactive.NewSystem(reactive.WithLogger(a.logger))
	}
	if a.router == nil {
		a.router = router.NewMemory(router.WithLogger(a.logger))
	}
	if a.scripts == nil {
		a.scripts = script.NewEngine(script.WithLogger(a.logger))
	}
	if a.fetcher == nil {
		a.fetcher = &expr.Fetcher{}
	}
	a.timers = expr.NewTimers(a.sys.Clock(), a.logger)
	a.globals = expr.Host{Timers: a.timers, Fetcher: a.fetcher, Logger: a.logger}.Globals()
	for k, v := range a.userGlobals {
		a.globals[k] = v
	}
	if a.loader == nil {
		src := a.source
		if src == nil {
			src = fetch.DirSource{FS: os.DirFS(".")}
		}
		opts := append([]fetch.Option{
			fetch.WithLogger(a.logger),
			fetch.WithSystem(a.sys),
			fetch.WithRouter(a.router),
			fetch.WithGlobals(a.globals),
		}, a.loaderOpts...)
		a.loader = fetch.NewLoader(doc, src, opts...)
	}
	a.installStyle()
	a.off = doc.OnConnected(a.connected)
	return a
}

func (a *App) installStyle() {
	head := a.doc.Head()
	if head.Query(func(n *dom.Node) bool { return n.Tag == "style" && n.HasAttr("vyes") }) != nil {
		return
	}
	s := a.doc.CreateElement("style")
	s.SetAttr("vyes", "")
	s.AppendChild(a.doc.CreateText(GlobalStyle))
	head.InsertBefore(s, head.FirstChild())
}

func (a *App) Document() *dom.Document  { return a.doc }
func (a *App) System() *reactive.System { return a.sys }
func (a *App) Loader() *fetch.Loader    { return a.loader }
func (a *App) Router() router.Router    { return a.router }
func (a *App) Logger() *slog.Logger     { return a.logger }

// Root is the URL root of the mounted application.
func (a *App) Root() string { return a.root }

// Store returns the component store of the instance n belongs to.
func (a *App) Store(n *dom.Node) *reactive.Object {
	for p := n; p != nil; p = p.Parent() {
		if st := a.states[p]; st != nil && st.data != nil {
			return st.data
		}
	}
	return nil
}

// Directives reports how many directives have been bound.
func (a *App) Directives() int { return a.directives }

// Close stops observing the document. Bound computations stay registered
// until disposed.
func (a *App) Close() {
	if a.off != nil {
		a.off()
		a.off = nil
	}
}

// Mount loads the root component at url and instantiates it into node.
// When node is empty the component body becomes its content; otherwise
// the existing content is the template. A failed fetch renders the
// fallback fragment and returns its error.
func (a *App) Mount(ctx context.Context, node *dom.Node, url string) error {
	art := a.loader.FetchTemplate(ctx, url, nil, true)
	if art.Err != nil {
		node.ReplaceChildren(art.Body.Clone(true))
		a.report(node, "fetch", art.Err.Error())
		return art.Err
	}
	a.root = art.Env.Root()
	if len(node.ChildNodes()) == 0 {
		for _, c := range art.Body.ChildNodes() {
			node.AppendChild(c.Clone(true))
		}
	}
	node.SetAttr("vref", art.URL)
	a.instantiate(ctx, &instance{
		url:    url,
		node:   node,
		data:   a.sys.NewObject(nil, nil),
		env:    fetch.Env{},
		art:    art,
		single: true,
	})
	return nil
}

// Walk binds the directives of n and its descendants against data and env.
func (a *App) Walk(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("directive failed", "node", describe(n), "err", r)
		}
	}()
	if n.Type == dom.TextNode {
		a.parseText(ctx, n, data, env)
		return
	}
	if n.Type != dom.ElementNode {
		return
	}
	st := a.state(n)
	if st.parsed || n.HasAttr("novyes") {
		return
	}
	switch {
	case n.HasAttr("v-for"):
		a.parseFor(ctx, n, data, env)
	case strings.Contains(n.Tag, "-"):
		st.parsed = true
		a.instantiateRef(ctx, n, "/"+strings.ReplaceAll(n.Tag, "-", "/"), data, env, n.HasAttr("single"))
	case n.HasAttr(":vsrc"):
		st.parsed = true
		a.parseDynamicSrc(ctx, n, data, env)
	case n.HasAttr("vsrc"):
		st.parsed = true
		a.instantiateRef(ctx, n, n.GetAttr("vsrc"), data, env, n.HasAttr("single"))
	case n.Tag == "vslot":
		st.parsed = true
		a.parseSlot(ctx, n, data, env)
	case n.Tag == "vrouter":
		st.parsed = true
		a.parseAttrs(ctx, n, data, env, nil)
		if err := a.router.ParseVrouter(ctx, a, n, env); err != nil {
			a.logger.Warn("router failed", "err", err)
		}
	default:
		st.parsed = true
		a.parseAttrs(ctx, n, data, env, nil)
		a.walkChildren(ctx, n, data, env)
	}
}

// walkChildren groups conditionals among the children of n and walks the
// rest.
func (a *App) walkChildren(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env) {
	for _, c := range a.groupConditionals(ctx, n.ChildNodes(), data, env) {
		a.Walk(ctx, c, data, env)
	}
}

func (a *App) scope(data *reactive.Object, env fetch.Env, extra map[string]any) *expr.Scope {
	s := &expr.Scope{Extra: extra, Globals: a.globals, Logger: a.logger}
	if data != nil {
		s.Data = data
	}
	if env != nil {
		s.Env = env
	}
	return s
}

// eval runs code and logs failures with the source.
func (a *App) eval(ctx context.Context, code string, s *expr.Scope) any {
	v, err := expr.RunAsync(ctx, code, s)
	if err != nil {
		a.logger.Warn("expression failed", "code", code, "err", err)
		return nil
	}
	return v
}

// call invokes fn when it is callable and returns its result.
func (a *App) call(fn any, args ...any) any {
	switch fn.(type) {
	case nil, string, float64, bool, map[string]any, []any, *reactive.Object, *reactive.Array:
		return fn
	}
	v, err := expr.Call(fn, args...)
	if err != nil {
		a.logger.Warn("callback failed", "err", err)
	}
	return v
}

func callable(v any) bool {
	switch v.(type) {
	case *expr.Func, func(...any) any, expr.ContextFunc, func():
		return true
	}
	return false
}

func (a *App) report(n *dom.Node, kind, msg string) {
	a.logger.Warn(msg, "directive", kind, "node", describe(n))
	if a.diag != nil {
		a.diag(Diagnostic{Kind: kind, Msg: msg, Node: n})
	}
}

func describe(n *dom.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == dom.TextNode {
		return "#text"
	}
	s := "<" + n.Tag
	if ref := n.GetAttr("vrefof"); ref != "" {
		s += " vrefof=" + ref
	}
	return s + ">"
}
