package vyes

import (
	"context"
	"strconv"
	"strings"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
)

func hasVref(n *dom.Node) bool { return n.HasAttr("vref") }

// slotOwner finds the outermost consecutive instance of the component
// whose template holds the slot.
func slotOwner(n *dom.Node, ref string) *dom.Node {
	if ref == "" {
		return nil
	}
	owner := n.Closest(func(x *dom.Node) bool { return x.GetAttr("vref") == ref })
	for owner != nil {
		p := owner.Parent()
		if p == nil {
			break
		}
		up := p.Closest(hasVref)
		if up == nil || up.GetAttr("vref") != ref {
			break
		}
		owner = up
	}
	return owner
}

// slotHash returns the render cache key marked on a captured node.
func (a *App) slotHash(n *dom.Node) string {
	st := a.state(n)
	if st.hash == "" {
		a.nextSlot++
		st.hash = strconv.FormatUint(a.nextSlot, 36)
	}
	return st.hash
}

// parseSlot projects the content the caller gave the owning component
// for this slot, or the slot's own content when there is none. The v
// attribute lists names from the slot's scope exposed to that content.
func (a *App) parseSlot(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env) {
	owner := slotOwner(n, n.GetAttr("vrefof"))
	if owner == nil {
		if !n.IsConnected() {
			a.onConnected(n, func(x *dom.Node) { a.parseSlot(ctx, x, data, env) })
			return
		}
		owner = n
	}
	ost := a.state(owner)

	name := n.GetAttr("name")
	if code, ok := n.Attr(":name"); ok {
		n.RemoveAttr(":name")
		name = expr.Display(a.eval(ctx, code, a.scope(data, env, nil)))
	}
	st := a.state(n)
	if st.origin == nil {
		st.origin = append([]*dom.Node{}, n.ChildNodes()...)
		n.ReplaceChildren()
	}
	st.slotCache = map[string][]*dom.Node{}
	st.slotScopes = map[string]*reactive.Object{}
	var exposed []string
	if vars, ok := n.Attr("v"); ok {
		for _, v := range strings.Split(vars, ",") {
			if v = strings.TrimSpace(v); v != "" {
				exposed = append(exposed, v)
			}
		}
	}

	a.directives++
	a.watch(n, func() {
		var items []any
		if ost.slots != nil {
			items = listValues(ost.slots.Get(name))
		}
		vals := make(map[string]any, len(exposed))
		for _, k := range exposed {
			if data != nil {
				vals[k] = data.Get(k)
			}
		}
		a.sys.Untracked(func() {
			if len(items) == 0 {
				a.renderFallback(ctx, n, st, data, env)
				return
			}
			a.renderSlot(ctx, n, st, ost, items, exposed, vals, env)
		})
	})
	a.parseAttrs(ctx, n, data, env, nil)
}

func (a *App) renderSlot(ctx context.Context, n *dom.Node, st, ost *nodeState, items []any, exposed []string, vals map[string]any, env fetch.Env) {
	var sources []*dom.Node
	for _, it := range items {
		if x, ok := it.(*dom.Node); ok {
			sources = append(sources, x)
		}
	}
	if len(sources) == 0 {
		return
	}
	h := a.slotHash(sources[0])
	if cached, ok := st.slotCache[h]; ok {
		if scope := st.slotScopes[h]; scope != nil {
			for k, v := range vals {
				scope.Set(k, v)
			}
		}
		n.ReplaceChildren(cached...)
		return
	}

	clones := make([]*dom.Node, len(sources))
	for i, s := range sources {
		clones[i] = s.Clone(true)
	}
	n.ReplaceChildren(clones...)

	scope := ost.scope
	if len(exposed) > 0 {
		scope = a.sys.NewObject(vals, ost.scope)
		st.slotScopes[h] = scope
	}
	slotEnv := env
	for _, c := range clones {
		ref := c.GetAttr("vrefof")
		if c.Type != dom.ElementNode || ref == "" {
			continue
		}
		if o := n.Closest(func(x *dom.Node) bool { return x.GetAttr("vref") == ref }); o != nil {
			if s := a.peek(o); s != nil && s.env != nil {
				slotEnv = s.env
			}
		}
		break
	}
	for _, c := range a.groupConditionals(ctx, clones, scope, slotEnv) {
		a.Walk(ctx, c, scope, slotEnv)
	}
	st.slotCache[h] = n.ChildNodes()
}

func (a *App) renderFallback(ctx context.Context, n *dom.Node, st *nodeState, data *reactive.Object, env fetch.Env) {
	n.ReplaceChildren(st.origin...)
	if st.originWalked {
		return
	}
	st.originWalked = true
	for _, c := range a.groupConditionals(ctx, st.origin, data, env) {
		a.Walk(ctx, c, data, env)
	}
	st.origin = n.ChildNodes()
}
