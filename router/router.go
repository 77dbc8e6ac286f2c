package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
)

var ErrNoRoute = errors.New("no route matched")

// Listener observes navigations.
type Listener func(to, from *Location)

// Guard runs before each navigation. Returning a redirect target aborts
// the navigation and pushes the target instead; returning false aborts it.
type Guard func(ctx context.Context, to, from *Location) (redirect string, allow bool)

// Instantiator renders a page component into a fresh detached node.
type Instantiator interface {
	Instantiate(ctx context.Context, url, layout string, env fetch.Env) (node *dom.Node, title string, err error)
}

// Router is what templates need from navigation.
type Router interface {
	Current() *Location
	Push(ctx context.Context, to string) error
	Replace(ctx context.Context, to string) error
	OnChange(fn Listener) func()
	ParseVrouter(ctx context.Context, inst Instantiator, node *dom.Node, env fetch.Env) error
}

// Target is a structured navigation target. Name takes precedence over
// Path when both are set.
type Target struct {
	Path   string
	Name   string
	Params map[string]string
	Query  map[string]string
	Hash   string
}

type page struct {
	node  *dom.Node
	title string
}

// Memory is a router with an in-memory history.
type Memory struct {
	logger *slog.Logger
	origin string
	start  string

	BeforeEnter Guard

	routes    []*matcher
	byName    map[string]*matcher
	history   []*Location
	cursor    int
	current   *Location
	listeners map[int]Listener
	nextID    int

	root     string
	node     *dom.Node
	env      fetch.Env
	inst     Instantiator
	fallback []*dom.Node
	pages    map[string]*page
}

type Option func(*Memory)

func WithLogger(l *slog.Logger) Option { return func(m *Memory) { m.logger = l } }

// WithOrigin sets the origin absolute URLs must have to be routed.
func WithOrigin(origin string) Option { return func(m *Memory) { m.origin = origin } }

// WithStart sets the URL the router opens when a vrouter element mounts.
func WithStart(u string) Option { return func(m *Memory) { m.start = u } }

func WithRoutes(routes ...Route) Option {
	return func(m *Memory) { m.AddRoutes(routes...) }
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		logger:    slog.Default(),
		start:     "/",
		byName:    map[string]*matcher{},
		listeners: map[int]Listener{},
		pages:     map[string]*page{},
		cursor:    -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddRoutes registers routes; children are flattened under their parent's
// path and inherit its layout and meta.
func (m *Memory) AddRoutes(routes ...Route) {
	for _, r := range routes {
		m.addRoute(r)
	}
}

func (m *Memory) addRoute(r Route) {
	if r.Path != "/" {
		r.Path = strings.TrimSuffix(r.Path, "/")
	}
	if r.Meta == nil {
		r.Meta = map[string]any{}
	}
	route := r
	mt := compile(&route)
	m.routes = append(m.routes, mt)
	if r.Name != "" {
		m.byName[r.Name] = mt
	}
	for _, child := range r.Children {
		p := child.Path
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		child.Path = r.Path + p
		if child.Layout == "" {
			child.Layout = r.Layout
		}
		meta := map[string]any{}
		for k, v := range r.Meta {
			meta[k] = v
		}
		for k, v := range child.Meta {
			meta[k] = v
		}
		child.Meta = meta
		m.addRoute(child)
	}
}

func (m *Memory) Routes() []Route {
	out := make([]Route, len(m.routes))
	for i, mt := range m.routes {
		out[i] = *mt.route
	}
	return out
}

func (m *Memory) Current() *Location { return m.current }

// History returns the visited locations, oldest first.
func (m *Memory) History() []*Location {
	return append([]*Location(nil), m.history[:m.cursor+1]...)
}

func (m *Memory) Root() string { return m.root }

func (m *Memory) OnChange(fn Listener) func() {
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return func() { delete(m.listeners, id) }
}

// ParseTarget splits a URL string into a Target. Absolute URLs of another
// origin are refused.
func (m *Memory) ParseTarget(s string) (Target, bool) {
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, false
	}
	t := Target{Path: u.Path, Hash: u.Fragment}
	if u.Scheme != "" {
		if m.origin == "" || u.Scheme+"://"+u.Host != m.origin {
			return Target{}, false
		}
	}
	if q := u.Query(); len(q) > 0 {
		t.Query = map[string]string{}
		for k, vs := range q {
			t.Query[k] = vs[0]
		}
	}
	return t, true
}

func (m *Memory) normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if m.root != "" && strings.HasPrefix(p, m.root) {
		p = strings.TrimPrefix(p, m.root)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
	}
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Resolve matches t against the route table.
func (m *Memory) Resolve(t Target) (*Location, error) {
	var (
		mt     *matcher
		path   string
		params map[string]string
	)
	if t.Name != "" {
		mt = m.byName[t.Name]
		if mt == nil {
			return nil, fmt.Errorf("%w: name %s", ErrNoRoute, t.Name)
		}
		path = mt.route.Path
		for k, v := range t.Params {
			path = strings.Replace(path, ":"+k, v, 1)
		}
		matched, ok := mt.match(path)
		if !ok {
			return nil, fmt.Errorf("%w: name %s", ErrNoRoute, t.Name)
		}
		params = matched
	} else {
		path = m.normalize(t.Path)
		for _, candidate := range m.routes {
			if candidate.route.Component == "" && candidate.route.ComponentFunc == nil {
				continue
			}
			if matched, ok := candidate.match(path); ok {
				mt, params = candidate, matched
				break
			}
		}
		if mt == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoRoute, path)
		}
	}
	for k, v := range t.Params {
		params[k] = v
	}
	query := t.Query
	if query == nil {
		query = map[string]string{}
	}
	full := path + encodeQuery(query)
	if t.Hash != "" {
		full += "#" + t.Hash
	}
	return &Location{
		Path:        path,
		FullPath:    full,
		Hash:        t.Hash,
		Name:        mt.route.Name,
		Description: mt.route.Description,
		Layout:      mt.route.Layout,
		Params:      params,
		Query:       query,
		Meta:        mt.route.Meta,
		Route:       mt.route,
	}, nil
}

type mode uint8

const (
	modePush mode = iota
	modeReplace
	modeTraverse
)

// Push navigates to a URL.
func (m *Memory) Push(ctx context.Context, to string) error {
	t, ok := m.ParseTarget(to)
	if !ok {
		return fmt.Errorf("%w: %s is external", ErrNoRoute, to)
	}
	return m.PushTarget(ctx, t)
}

func (m *Memory) PushTarget(ctx context.Context, t Target) error {
	return m.navigateTarget(ctx, t, modePush)
}

// Replace navigates without adding a history entry.
func (m *Memory) Replace(ctx context.Context, to string) error {
	t, ok := m.ParseTarget(to)
	if !ok {
		return fmt.Errorf("%w: %s is external", ErrNoRoute, to)
	}
	return m.navigateTarget(ctx, t, modeReplace)
}

func (m *Memory) navigateTarget(ctx context.Context, t Target, md mode) error {
	loc, err := m.Resolve(t)
	if err != nil {
		m.logger.Warn("no route matched", "target", t.Path, "name", t.Name)
		return err
	}
	return m.navigate(ctx, loc, md)
}

// Go moves n entries through the history.
func (m *Memory) Go(ctx context.Context, n int) error {
	i := m.cursor + n
	if i < 0 || i >= len(m.history) || n == 0 {
		return nil
	}
	prev := m.cursor
	m.cursor = i
	if err := m.navigate(ctx, m.history[i], modeTraverse); err != nil {
		m.cursor = prev
		return err
	}
	return nil
}

func (m *Memory) Back(ctx context.Context) error    { return m.Go(ctx, -1) }
func (m *Memory) Forward(ctx context.Context) error { return m.Go(ctx, 1) }

func (m *Memory) navigate(ctx context.Context, to *Location, md mode) error {
	from := m.current
	if m.BeforeEnter != nil {
		redirect, allow := m.BeforeEnter(ctx, to, from)
		if redirect != "" {
			return m.Push(ctx, redirect)
		}
		if !allow {
			return nil
		}
	}
	if m.node != nil {
		m.render(ctx, to)
	}
	m.current = to
	switch md {
	case modePush:
		m.history = append(m.history[:m.cursor+1], to)
		m.cursor = len(m.history) - 1
	case modeReplace:
		if m.cursor < 0 {
			m.history = append(m.history, to)
			m.cursor = 0
		} else {
			m.history[m.cursor] = to
		}
	}
	for _, fn := range m.snapshotListeners() {
		m.notify(fn, to, from)
	}
	return nil
}

func (m *Memory) snapshotListeners() []Listener {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	// registration order
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = m.listeners[id]
	}
	return out
}

func (m *Memory) notify(fn Listener, to, from *Location) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("router listener failed", "err", r)
		}
	}()
	fn(to, from)
}

// render shows the page for loc in the vrouter node, reusing the page
// rendered for the same full path before.
func (m *Memory) render(ctx context.Context, loc *Location) {
	doc := m.node.Document()
	p, ok := m.pages[loc.FullPath]
	if !ok {
		node, title, err := m.inst.Instantiate(ctx, loc.ComponentURL(), loc.Layout, m.env)
		if err != nil || node == nil {
			m.logger.Warn("page failed", "url", loc.ComponentURL(), "err", err)
			node = doc.CreateElement("div")
			node.SetAttr("style", "width:100%;height:100%")
			for _, c := range m.fallback {
				node.AppendChild(c.Clone(true))
			}
		}
		p = &page{node: node, title: title}
		m.pages[loc.FullPath] = p
	}
	if p.title != "" {
		doc.SetTitle(p.title)
	}
	m.node.ReplaceChildren(p.node)
}

// ParseVrouter makes node the outlet for matched pages and opens the
// start URL. The node's original children are the fallback content for
// pages that fail to render.
func (m *Memory) ParseVrouter(ctx context.Context, inst Instantiator, node *dom.Node, env fetch.Env) error {
	m.inst = inst
	m.node = node
	m.env = env
	m.root = env.Root()
	m.fallback = node.ChildNodes()
	if len(m.routes) == 0 {
		m.AddRoutes(DefaultRoutes...)
	}
	return m.Push(ctx, m.start)
}

// GetMember exposes the router to expressions as $router.
func (m *Memory) GetMember(name string) (any, bool) {
	switch name {
	case "current":
		if m.current == nil {
			return nil, true
		}
		return m.current, true
	case "query":
		if m.current == nil {
			return map[string]any{}, true
		}
		return stringMap(m.current.Query), true
	case "params":
		if m.current == nil {
			return map[string]any{}, true
		}
		return stringMap(m.current.Params), true
	case "root":
		return m.root, true
	case "history":
		h := m.History()
		out := make([]any, len(h))
		for i, l := range h {
			out[i] = l
		}
		return out, true
	case "push", "replace":
		return expr.ContextFunc(func(ctx context.Context, args ...any) any {
			if len(args) == 0 {
				return nil
			}
			t, ok := m.targetOf(args[0])
			if !ok {
				return nil
			}
			md := modePush
			if name == "replace" {
				md = modeReplace
			}
			if err := m.navigateTarget(ctx, t, md); err != nil {
				return false
			}
			return true
		}), true
	case "back", "forward", "go":
		return expr.ContextFunc(func(ctx context.Context, args ...any) any {
			n := -1
			switch name {
			case "forward":
				n = 1
			case "go":
				if len(args) > 0 {
					n = int(expr.ToNumber(args[0]))
				}
			}
			m.Go(ctx, n)
			return nil
		}), true
	case "onChange":
		return func(args ...any) any {
			if len(args) == 0 {
				return nil
			}
			fn := args[0]
			off := m.OnChange(func(to, from *Location) {
				var prev any
				if from != nil {
					prev = from
				}
				if _, err := expr.Call(fn, to, prev); err != nil {
					m.logger.Error("router listener failed", "err", err)
				}
			})
			return func(...any) any { off(); return nil }
		}, true
	case "addRoutes":
		return func(args ...any) any {
			for _, a := range args {
				list, _ := reactive.Plain(a).([]any)
				for _, item := range list {
					if r, ok := routeOf(item); ok {
						m.AddRoutes(r)
					}
				}
			}
			return nil
		}, true
	}
	return nil, false
}

// SetMember accepts an expression function as beforeEnter. It is called
// with (to, from, next); calling next(target) redirects and returning
// false cancels.
func (m *Memory) SetMember(name string, v any) bool {
	if name != "beforeEnter" {
		return false
	}
	if v == nil {
		m.BeforeEnter = nil
		return true
	}
	m.BeforeEnter = func(ctx context.Context, to, from *Location) (string, bool) {
		redirect := ""
		next := func(args ...any) any {
			if len(args) > 0 && args[0] != nil {
				redirect = expr.ToString(args[0])
			}
			return nil
		}
		var prev any
		if from != nil {
			prev = from
		}
		res, err := expr.Call(v, to, prev, next)
		if err != nil {
			m.logger.Error("beforeEnter failed", "err", err)
			return "", false
		}
		if b, ok := res.(bool); ok && !b {
			return redirect, false
		}
		return redirect, true
	}
	return true
}

func (m *Memory) targetOf(v any) (Target, bool) {
	switch x := reactive.Plain(v).(type) {
	case string:
		return m.ParseTarget(x)
	case map[string]any:
		t := Target{
			Name:   str(x["name"]),
			Hash:   strings.TrimPrefix(str(x["hash"]), "#"),
			Params: strMap(x["params"]),
			Query:  strMap(x["query"]),
		}
		if p := str(x["path"]); p != "" {
			parsed, ok := m.ParseTarget(p)
			if !ok {
				return Target{}, false
			}
			t.Path = parsed.Path
			if t.Hash == "" {
				t.Hash = parsed.Hash
			}
			for k, v := range t.Query {
				if parsed.Query == nil {
					parsed.Query = map[string]string{}
				}
				parsed.Query[k] = v
			}
			t.Query = parsed.Query
		} else if t.Name == "" {
			return Target{}, false
		}
		return t, true
	}
	return Target{}, false
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return expr.ToString(v)
}

func strMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, x := range m {
		out[k] = expr.ToString(x)
	}
	return out
}

func routeOf(v any) (Route, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Route{}, false
	}
	r := Route{
		Path:        str(m["path"]),
		Name:        str(m["name"]),
		Component:   str(m["component"]),
		Description: str(m["description"]),
		Layout:      str(m["layout"]),
	}
	if r.Path == "" {
		return Route{}, false
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		r.Meta = meta
	}
	if fn := m["component"]; fn != nil && expr.TypeOf(fn) == "function" {
		r.Component = ""
		r.ComponentFunc = func(p string) string {
			v, err := expr.Call(fn, p)
			if err != nil {
				return ""
			}
			return expr.ToString(v)
		}
	}
	children, _ := m["children"].([]any)
	for _, c := range children {
		if cr, ok := routeOf(c); ok {
			r.Children = append(r.Children, cr)
		}
	}
	return r, true
}
