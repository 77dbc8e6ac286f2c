package vyes

import (
	"context"
	"strings"
	"time"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
	"github.com/delaneyj/vyes/script"
)

// setupWatchDelay defers $watch calls made by setup scripts.
const setupWatchDelay = 50 * time.Millisecond

// instance describes one component instantiation.
type instance struct {
	url  string
	node *dom.Node
	// data and env are the caller's scope.
	data *reactive.Object
	env  fetch.Env
	// art is fetched from url when nil.
	art *fetch.Artifact
	// single keeps the caller's content as the template and binds the
	// caller's attributes against the component store.
	single bool
	// slots preset the slot buckets instead of capturing the caller's
	// children.
	slots *reactive.Object
}

func (a *App) instantiateRef(ctx context.Context, n *dom.Node, url string, data *reactive.Object, env fetch.Env, single bool) {
	a.instantiate(ctx, &instance{url: url, node: n, data: data, env: env, single: single})
}

// instantiate runs a component into its node and returns the component
// store.
func (a *App) instantiate(ctx context.Context, in *instance) *reactive.Object {
	n := in.node
	n.SetAttr("vparsing", "")
	callerEnv := in.env
	env := in.env
	if ref := n.GetAttr("vrefof"); ref != "" {
		if owner := n.Closest(func(x *dom.Node) bool { return x.GetAttr("vref") == ref }); owner != nil {
			if st := a.peek(owner); st != nil && st.env != nil {
				env = st.env
			}
		}
	}
	art := in.art
	if art == nil {
		u := in.url
		if !strings.HasSuffix(u, ".html") {
			u += ".html"
		}
		art = a.loader.FetchTemplate(ctx, u, env, n.HasAttr("root"))
	}
	if art.Err != nil {
		a.report(n, "fetch", art.Err.Error())
	}

	env = env.Merge(art.Env)
	env["$router"] = a.router
	env["$emit"] = func(args ...any) any {
		if len(args) == 0 {
			return nil
		}
		return a.emit(n, expr.ToString(args[0]), args[1:]...)
	}

	st := a.state(n)
	st.env = env
	comp := a.sys.NewObject(nil, nil)
	st.data = comp
	a.runSetup(ctx, n, art, comp, env)
	st.scope = in.data
	if in.slots != nil {
		st.slots = in.slots
	}

	if in.single {
		a.parseAttrs(ctx, n, comp, env, art.CustomAttrs)
	} else {
		if st.slots == nil {
			st.slots = a.captureSlots(n)
		}
		body := art.Body.Clone(true)
		n.ReplaceChildren(body.ChildNodes()...)
		a.mapProps(ctx, n, comp, in.data, callerEnv)
		a.mergeBodyAttrs(ctx, n, body, comp, env)
		a.parseAttrs(ctx, n, in.data, callerEnv, art.CustomAttrs)
	}
	a.walkChildren(ctx, n, comp, env)
	n.RemoveAttr("vparsing")
	a.runMount(ctx, n, art, comp, env)
	return comp
}

// emit calls the handler the caller bound with @name on n.
func (a *App) emit(n *dom.Node, name string, args ...any) any {
	st := a.peek(n)
	if st == nil {
		return nil
	}
	fn, ok := st.events[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return a.call(fn, args...)
}

// captureSlots buckets the caller's children by their vslot attribute.
// Whitespace text and comments are dropped.
func (a *App) captureSlots(n *dom.Node) *reactive.Object {
	buckets := map[string]any{}
	for _, c := range n.ChildNodes() {
		name := ""
		switch c.Type {
		case dom.ElementNode:
			name = c.GetAttr("vslot")
		case dom.TextNode:
			if strings.TrimSpace(c.Data) == "" {
				continue
			}
		default:
			continue
		}
		list, _ := buckets[name].([]any)
		buckets[name] = append(list, c)
	}
	return a.sys.NewObject(buckets, nil)
}

// mapProps feeds caller attributes into the component's declared keys.
// A key matches its own name, its lower-case form and its kebab-case
// form. Plain attributes set the value once, :key binds one way and v:key
// binds both ways, seeding an unset caller value from the component.
func (a *App) mapProps(ctx context.Context, n *dom.Node, comp, data *reactive.Object, env fetch.Env) {
	for _, k := range comp.Keys() {
		names := []string{k, strings.ToLower(k), kebab(k)}
		find := func(prefix string) (string, bool) {
			var code string
			found := false
			for _, name := range names {
				if v, ok := n.Attr(prefix + name); ok && !found {
					code, found = v, true
				}
				if prefix != "" {
					n.RemoveAttr(prefix + name)
				}
			}
			return code, found
		}
		k := k
		if v, ok := find(""); ok {
			comp.Set(k, v)
		}
		if code, ok := find(":"); ok {
			a.directives++
			a.watch(n, func() {
				var v any
				if code != "" {
					v = a.eval(ctx, code, a.scope(data, env, nil))
				} else if data != nil {
					v = data.Get(k)
				}
				comp.Set(k, v)
			})
		}
		if code, ok := find("v:"); ok {
			if code == "" {
				code = k
			}
			t, ok := a.resolve(n, "v:", code, data, env)
			if !ok {
				continue
			}
			a.directives++
			if t.Get() == nil {
				if err := t.Set(comp.Get(k)); err != nil {
					a.logger.Warn("seeding binding failed", "key", k, "err", err)
				}
			}
			a.watch(n, func() { comp.Set(k, t.Get()) })
			a.watch(n, func() {
				if err := t.Set(comp.Get(k)); err != nil {
					a.logger.Warn("binding write failed", "key", k, "err", err)
				}
			})
		}
	}
}

// mergeBodyAttrs applies the component body's attributes to the instance
// node: classes are added, style properties fill gaps and other
// attributes are set when the caller left them unset.
func (a *App) mergeBodyAttrs(ctx context.Context, n, body *dom.Node, comp *reactive.Object, env fetch.Env) {
	for _, attr := range body.Attrs() {
		if a.parseAttr(ctx, n, attr.Name, attr.Value, comp, env) {
			continue
		}
		switch attr.Name {
		case "class":
			n.AddClass(strings.Fields(attr.Value)...)
		case "style":
			for _, kv := range styleEntries(attr.Value) {
				if n.StyleGet(kv.key) == "" {
					n.StyleSet(kv.key, expr.Display(kv.value))
				}
			}
		default:
			if n.GetAttr(attr.Name) == "" {
				n.SetAttr(attr.Name, attr.Value)
			}
		}
	}
}

func (a *App) importOptions(art *fetch.Artifact, env fetch.Env, comp *reactive.Object) expr.ImportOptions {
	return expr.ImportOptions{
		Base:   art.URL,
		Root:   env.Root(),
		Loader: a.loader,
		Bind:   func(name string, v any) { comp.Set(name, v) },
		Logger: a.logger,
	}
}

// runSetup runs the setup script against the fresh component store.
func (a *App) runSetup(ctx context.Context, n *dom.Node, art *fetch.Artifact, comp *reactive.Object, env fetch.Env) {
	if art.Setup == nil {
		return
	}
	watch := func(args ...any) any {
		fn := arg(args, 0)
		a.sys.Clock().AfterFunc(setupWatchDelay, func() {
			a.watch(n, func() { a.call(fn) })
		})
		return nil
	}
	if err := a.runScript(ctx, n, art, art.Setup, comp, env, watch); err != nil {
		a.logger.Warn("setup script failed", "url", art.URL, "err", err)
	}
}

// runMount runs the mount scripts. Active scripts run on every
// connection of n, the others once now.
func (a *App) runMount(ctx context.Context, n *dom.Node, art *fetch.Artifact, comp *reactive.Object, env fetch.Env) {
	watch := func(args ...any) any {
		fn := arg(args, 0)
		a.watch(n, func() { a.call(fn) })
		return nil
	}
	for _, s := range art.Scripts {
		s := s
		run := func(*dom.Node) {
			if err := a.runScript(ctx, n, art, s, comp, env, watch); err != nil {
				a.logger.Warn("mount script failed", "url", art.URL, "err", err)
			}
		}
		if s.Active {
			a.delay(n, run, false)
			continue
		}
		run(n)
	}
}

func (a *App) runScript(ctx context.Context, n *dom.Node, art *fetch.Artifact, s *fetch.Script, comp *reactive.Object, env fetch.Env, watch func(...any) any) error {
	if s.Lang == script.Lang {
		_, err := a.scripts.Run(ctx, s.Code, script.Bindings{
			Data: comp,
			Env:  env,
			Emit: func(name string, args ...any) { a.emit(n, name, args...) },
		})
		return err
	}
	opts := a.importOptions(art, env, comp)
	code, err := expr.PreprocessImports(ctx, s.Code, opts)
	if err != nil {
		return err
	}
	_, err = expr.RunAsync(ctx, code, a.scope(comp, env, map[string]any{
		"$node":   n,
		"$watch":  watch,
		"$import": opts.ImportFunc(),
	}))
	return err
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// parseDynamicSrc instantiates the component named by the :vsrc
// expression and replaces the instance whenever the name changes.
func (a *App) parseDynamicSrc(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env) {
	code := n.GetAttr(":vsrc")
	n.RemoveAttr(":vsrc")
	attrs := n.Attrs()
	children := n.ChildNodes()
	a.directives++
	var h reactive.Handle
	last := ""
	h = a.watch(n, func() {
		src := expr.Display(a.eval(ctx, code, a.scope(data, env, nil)))
		if src == "" || src == last {
			return
		}
		last = src
		a.sys.Untracked(func() {
			for _, c := range n.ChildNodes() {
				a.Dispose(c)
			}
			a.release(n, h)
			n.ClearAttrs()
			for _, attr := range attrs {
				n.SetAttr(attr.Name, attr.Value)
			}
			clones := make([]*dom.Node, len(children))
			for i, c := range children {
				clones[i] = c.Clone(true)
			}
			n.ReplaceChildren(clones...)
			a.state(n).parsed = true
			a.instantiate(ctx, &instance{url: src, node: n, data: data, env: env})
		})
	})
}

// Instantiate renders the page component at url into a detached node for
// the router. A layout wraps the page through its default slot; when the
// layout cannot be loaded the page is returned alone.
func (a *App) Instantiate(ctx context.Context, url, layout string, env fetch.Env) (*dom.Node, string, error) {
	art := a.loader.FetchTemplate(ctx, url, env, false)
	if art.Err != nil {
		return nil, "", art.Err
	}
	page := a.doc.CreateElement("div")
	page.SetAttr("vsrc", url)
	if layout != "" {
		lurl := layoutURL(layout)
		lart := a.loader.FetchTemplate(ctx, lurl, env, false)
		if lart.Err == nil {
			node := lart.Body.Clone(true)
			slots := a.sys.NewObject(map[string]any{"": []any{page}}, nil)
			a.instantiate(ctx, &instance{url: lurl, node: node, env: env, art: lart, single: true, slots: slots})
			return node, art.Title, nil
		}
		a.logger.Warn("layout failed", "layout", lurl, "err", lart.Err)
	}
	a.state(page).parsed = true
	a.instantiate(ctx, &instance{url: url, node: page, env: env, art: art})
	return page, art.Title, nil
}

// layoutURL maps a route layout name to its component file under
// /layout.
func layoutURL(name string) string {
	u := "/" + strings.TrimPrefix(name, "/")
	if !strings.HasPrefix(u, "/layout/") {
		u = "/layout" + u
	}
	if !strings.HasSuffix(u, ".html") {
		u += ".html"
	}
	return u
}
