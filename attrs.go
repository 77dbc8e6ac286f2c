package vyes

import (
	"context"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
	"github.com/delaneyj/vyes/router"
)

// EventNames are the event names bound as native listeners. Any other
// @name becomes a component event raised through $emit.
var EventNames = mapset.NewThreadUnsafeSet(
	"load", "unload", "beforeunload", "resize", "scroll",
	"submit", "reset", "input", "change", "focus", "blur",
	"keydown", "keypress", "keyup",
	"click", "dblclick", "contextmenu", "mousedown", "mouseup", "mousemove",
	"mouseover", "mouseout", "mouseenter", "mouseleave",
	"touchstart", "touchmove", "touchend", "touchcancel",
	"drag", "dragstart", "dragend", "dragover", "dragenter", "dragleave", "drop",
	"copy", "cut", "paste",
	"animationstart", "animationend", "animationiteration", "transitionend",
	"abort", "error", "loadstart", "progress",
	"play", "pause", "ended", "volumechange", "timeupdate", "loadeddata", "waiting", "playing",
	"online", "offline", "storage", "visibilitychange",
)

var keyEvents = mapset.NewThreadUnsafeSet("keydown", "keyup", "keypress")

const defaultDelay = time.Second

// parseAttrs binds the directive attributes of n, removing the ones it
// consumed. custom are component body attributes bound against the
// instance store.
func (a *App) parseAttrs(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env, custom []dom.Attr) {
	if n.Tag == "a" {
		a.parseAnchor(ctx, n, data, env)
	}
	for _, attr := range n.Attrs() {
		if a.parseAttr(ctx, n, attr.Name, attr.Value, data, env) {
			n.RemoveAttr(attr.Name)
		}
	}
	if len(custom) > 0 {
		var own *reactive.Object
		if st := a.peek(n); st != nil {
			own = st.data
		}
		for _, attr := range custom {
			a.parseAttr(ctx, n, attr.Name, attr.Value, own, env)
		}
	}
	if code, ok := n.Attr("v-show"); ok {
		a.directives++
		display := n.StyleGet("display")
		a.watch(n, func() {
			if expr.Truthy(a.eval(ctx, code, a.scope(data, env, nil))) {
				n.StyleSet("display", display)
			} else {
				n.StyleSet("display", "none")
			}
		})
	}
}

// parseAttr binds one attribute directive and reports whether it was
// consumed. Refused two-way bindings report false.
func (a *App) parseAttr(ctx context.Context, n *dom.Node, name, code string, data *reactive.Object, env fetch.Env) bool {
	switch {
	case strings.HasPrefix(name, ":"):
		a.directives++
		switch target := name[1:]; target {
		case "class":
			a.bindClass(ctx, n, code, data, env)
		case "style":
			a.bindStyle(ctx, n, code, data, env)
		default:
			a.watch(n, func() {
				var v any
				if code != "" {
					v = a.eval(ctx, code, a.scope(data, env, nil))
				} else if data != nil {
					v = data.Get(target)
				}
				SetAttr(n, target, v)
			})
		}
		return true
	case strings.HasPrefix(name, "@"):
		a.directives++
		a.bindEvent(ctx, n, name[1:], code, data, env)
		return true
	case strings.HasPrefix(name, "v:"):
		t, ok := a.resolve(n, name, code, data, env)
		if !ok {
			return false
		}
		if !a.BindInput(n, t) {
			return false
		}
		a.directives++
		return true
	case name == "vdom":
		a.directives++
		if t, ok := a.resolve(n, name, code, data, env); ok {
			if err := t.Set(n); err != nil {
				a.logger.Warn("vdom write failed", "code", code, "err", err)
			}
		}
		return true
	}
	return false
}

// resolve finds the container and key an assignable expression ends at.
func (a *App) resolve(n *dom.Node, directive, code string, data *reactive.Object, env fetch.Env) (expr.Target, bool) {
	p, err := expr.ParsePath(code)
	if err != nil {
		a.report(n, directive, "not an assignable path: "+strconv.Quote(code))
		return expr.Target{}, false
	}
	t, ok := p.Resolve(a.scope(data, env, nil))
	if !ok {
		a.report(n, directive, "cannot resolve "+strconv.Quote(code))
		return expr.Target{}, false
	}
	return t, true
}

func (a *App) bindClass(ctx context.Context, n *dom.Node, code string, data *reactive.Object, env fetch.Env) {
	var old []string
	a.watch(n, func() {
		v := a.eval(ctx, code, a.scope(data, env, nil))
		if callable(v) {
			v = a.call(v)
		}
		if len(old) > 0 {
			n.RemoveClass(old...)
		}
		old = classTokens(v)
		if len(old) > 0 {
			n.AddClass(old...)
		}
	})
}

// classTokens accepts a space separated string, a map of class names to
// conditions, or a list of either.
func classTokens(v any) []string {
	switch x := v.(type) {
	case nil, bool:
		return nil
	case string:
		return strings.Fields(x)
	case *reactive.Array, []any, reactive.RawList:
		var out []string
		for _, item := range listValues(x) {
			out = append(out, classTokens(item)...)
		}
		return out
	}
	var out []string
	for _, kv := range entries(v) {
		if expr.Truthy(kv.value) {
			out = append(out, kv.key)
		}
	}
	return out
}

func (a *App) bindStyle(ctx context.Context, n *dom.Node, code string, data *reactive.Object, env fetch.Env) {
	var old []string
	a.watch(n, func() {
		v := a.eval(ctx, code, a.scope(data, env, nil))
		if callable(v) {
			v = a.call(v)
		}
		for _, prop := range old {
			n.StyleRemove(prop)
		}
		old = old[:0]
		for _, kv := range styleEntries(v) {
			n.StyleSet(kv.key, expr.Display(kv.value))
			old = append(old, kv.key)
		}
	})
}

// styleEntries accepts "prop: value;" lists and maps of properties.
func styleEntries(v any) []entry {
	s, ok := v.(string)
	if !ok {
		return entries(v)
	}
	var out []entry
	for _, decl := range strings.Split(s, ";") {
		k, val, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, entry{strings.TrimSpace(k), strings.TrimSpace(val)})
	}
	return out
}

// bindEvent binds @evt.mods. The key filter of keyboard events is the
// first suffix that is not a modifier.
func (a *App) bindEvent(ctx context.Context, n *dom.Node, spec, code string, data *reactive.Object, env fetch.Env) {
	parts := strings.Split(spec, ".")
	evt, mods := parts[0], parts[1:]
	run := func(extra map[string]any, args ...any) any {
		cb := a.eval(ctx, code, a.scope(data, env, extra))
		if callable(cb) {
			return a.call(cb, args...)
		}
		return cb
	}

	switch {
	case evt == "mounted":
		a.onConnected(n, func(x *dom.Node) { run(nil, x) })
		return
	case !EventNames.Contains(evt):
		st := a.state(n)
		if st.events == nil {
			st.events = map[string]any{}
		}
		st.events[strings.ToLower(evt)] = func(args ...any) any { return run(nil, args...) }
		return
	}

	if keyEvents.Contains(evt) && n.Tag != "input" && n.Tag != "textarea" {
		n.SetAttr("tabindex", "0")
	}
	var self, prevent, stop bool
	var key string
	wait := time.Duration(-1)
	for _, m := range mods {
		switch {
		case m == "self":
			self = true
		case m == "prevent":
			prevent = true
		case m == "stop":
			stop = true
		case strings.HasPrefix(m, "delay"):
			wait = parseDelay(m[len("delay"):])
		case key == "" && keyEvents.Contains(evt):
			key = strings.ToLower(m)
		}
	}

	fire := func(e *dom.Event) { run(map[string]any{"$event": e}, e) }
	handler := fire
	if wait >= 0 {
		handler = func(e *dom.Event) {
			st := a.state(n)
			if st.timers == nil {
				st.timers = map[string]func() bool{}
			}
			if cancel, ok := st.timers[evt]; ok {
				cancel()
			}
			st.timers[evt] = a.sys.Clock().AfterFunc(wait, func() {
				delete(st.timers, evt)
				fire(e)
			})
		}
	}
	off := n.AddEventListener(evt, func(e *dom.Event) {
		if key != "" && key != strings.ToLower(e.Key) {
			return
		}
		if self && e.CurrentTarget() != e.Target() {
			return
		}
		if prevent {
			e.PreventDefault()
		}
		if stop {
			e.StopPropagation()
		}
		handler(e)
	})
	a.cleanup(n, off)
}

// parseDelay reads the suffix of a delay modifier: "500ms", "2s" or a
// bare number of milliseconds. Anything unreadable means one second.
func parseDelay(s string) time.Duration {
	if s == "" {
		return defaultDelay
	}
	unit := time.Millisecond
	switch {
	case strings.HasSuffix(s, "ms"):
		s = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
		unit = time.Second
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return defaultDelay
	}
	return time.Duration(f * float64(unit))
}

// parseAnchor prefixes local hrefs with the application root, marks the
// anchor active while the router is on its URL and routes clicks through
// the router. "@" hrefs are used verbatim and reload the page.
func (a *App) parseAnchor(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env) {
	href, static := n.Attr("href")
	code, dynamic := n.Attr(":href")
	if !static && !dynamic {
		return
	}
	n.RemoveAttr(":href")
	a.directives++
	root := env.Root()
	a.watch(n, func() {
		h := href
		if dynamic {
			h = expr.Display(a.eval(ctx, code, a.scope(data, env, nil)))
		}
		switch {
		case h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "http"):
			if dynamic {
				n.SetAttr("href", h)
			}
		case strings.HasPrefix(h, "@"):
			if !n.HasAttr("reload") {
				n.SetAttr("reload", "")
			}
			n.SetAttr("href", h[1:])
		default:
			n.SetAttr("href", root+h)
		}
	})

	mark := func(to *router.Location) {
		if to == nil {
			return
		}
		if n.GetAttr("href") == root+to.FullPath {
			n.SetAttr("active", "")
		} else {
			n.RemoveAttr("active")
		}
	}
	mark(a.router.Current())
	a.cleanup(n, a.router.OnChange(func(to, _ *router.Location) { mark(to) }))

	a.cleanup(n, n.AddEventListener("click", func(e *dom.Event) {
		h := n.GetAttr("href")
		if e.DefaultPrevented() || n.HasAttr("reload") || n.GetAttr("target") == "_blank" ||
			h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "http") {
			return
		}
		e.PreventDefault()
		if err := a.router.Push(ctx, h); err != nil {
			a.logger.Warn("navigation failed", "href", h, "err", err)
		}
	}))
}
