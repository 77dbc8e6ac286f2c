package vyes

import (
	"context"
	"regexp"
	"strconv"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
)

var forRe = regexp.MustCompile(`^\s*(?:(\w+)|\(\s*(\w+)\s*,\s*(\w+)\s*\))\s+in\s+(\S.*?)\s*$`)

type forItem struct {
	node   *dom.Node
	scope  *reactive.Object
	cond   reactive.Handle
	walked bool
}

// parseFor replaces the template tpl with an anchor and renders one clone
// per item before it. Clones are keyed by item identity and reused across
// runs; clones whose key disappears are removed and disposed.
func (a *App) parseFor(ctx context.Context, tpl *dom.Node, data *reactive.Object, env fetch.Env) {
	spec := tpl.GetAttr("v-for")
	tpl.RemoveAttr("v-for")
	m := forRe.FindStringSubmatch(spec)
	if m == nil {
		a.report(tpl, "v-for", "malformed v-for "+strconv.Quote(spec))
		return
	}
	if tpl.Parent() == nil {
		a.report(tpl, "v-for", "v-for template is detached")
		return
	}
	valueVar, keyVar, code := m[1], "", m[4]
	if valueVar == "" {
		valueVar, keyVar = m[2], m[3]
	}
	cond, hasCond := tpl.Attr("v-if")
	tpl.RemoveAttr("v-if")
	delete(a.states, tpl)

	anchor := a.placeholder()
	tpl.ReplaceWith(anchor)
	a.directives++

	cache := map[string]*forItem{}
	var order []string

	insertBefore := func(n, ref *dom.Node) {
		if p := anchor.Parent(); p != nil {
			p.InsertBefore(n, ref)
		}
	}
	// nextAttached finds the first attached clone rendered after id.
	nextAttached := func(id string) *dom.Node {
		found := false
		for _, other := range order {
			if other == id {
				found = true
				continue
			}
			if it := cache[other]; found && it != nil && it.node.Parent() != nil {
				return it.node
			}
		}
		return anchor
	}

	a.cleanup(anchor, func() {
		for _, it := range cache {
			if it.node.Parent() == nil {
				a.Dispose(it.node)
			}
		}
	})

	a.watch(anchor, func() {
		v := a.eval(ctx, code, a.scope(data, env, nil))
		if callable(v) {
			v = a.call(v)
		}
		keys, vals, ok := iterate(v)
		if !ok {
			a.report(anchor, "v-for", "cannot iterate "+expr.TypeOf(v)+" from "+strconv.Quote(code))
			return
		}
		a.sys.Untracked(func() {
			seen := make(map[string]bool, len(vals))
			order = order[:0]
			for i, item := range vals {
				id := identityKey(keys[i], item)
				if seen[id] {
					id += "#" + strconv.Itoa(i)
				}
				seen[id] = true
				order = append(order, id)

				if it, ok := cache[id]; ok {
					if keyVar != "" {
						it.scope.Set(keyVar, keys[i])
					}
					if it.node.Parent() != nil {
						insertBefore(it.node, anchor)
					}
					continue
				}

				vars := map[string]any{valueVar: item}
				if keyVar != "" {
					vars[keyVar] = keys[i]
				}
				it := &forItem{node: tpl.Clone(true), scope: a.sys.NewObject(vars, data)}
				cache[id] = it
				if !hasCond {
					insertBefore(it.node, anchor)
					it.walked = true
					a.Walk(ctx, it.node, it.scope, env)
					continue
				}
				it.cond = a.watch(anchor, func() {
					show := expr.Truthy(a.eval(ctx, cond, a.scope(it.scope, env, nil)))
					a.sys.Untracked(func() {
						switch {
						case show && it.node.Parent() == nil:
							insertBefore(it.node, nextAttached(id))
							a.state(it.node).inactive = false
							if !it.walked {
								it.walked = true
								a.Walk(ctx, it.node, it.scope, env)
							} else {
								a.refresh(it.node)
							}
						case !show && it.node.Parent() != nil:
							it.node.Remove()
							a.state(it.node).inactive = true
						}
					})
				})
			}
			for id, it := range cache {
				if seen[id] {
					continue
				}
				it.node.Remove()
				a.sys.Cancel(it.cond)
				a.Dispose(it.node)
				delete(cache, id)
			}
		})
	})
}

// iterate lists the keys and items of a v-for source. Sequences are keyed
// by index, maps by key; a number n yields 0..n-1 and nil yields nothing.
func iterate(v any) (keys, vals []any, ok bool) {
	indexed := func(items []any) ([]any, []any, bool) {
		keys := make([]any, len(items))
		for i := range items {
			keys[i] = float64(i)
		}
		return keys, items, true
	}
	switch x := v.(type) {
	case nil:
		return nil, nil, true
	case float64:
		n := int(x)
		items := make([]any, 0, max(n, 0))
		for i := 0; i < n; i++ {
			items = append(items, float64(i))
		}
		return indexed(items)
	case int:
		return iterate(float64(x))
	case *reactive.Array:
		return indexed(x.Items())
	case []any:
		return indexed(x)
	case reactive.RawList:
		return indexed(x)
	case *reactive.Object:
		for _, k := range x.Keys() {
			keys = append(keys, k)
			vals = append(vals, x.Get(k))
		}
		return keys, vals, true
	case map[string]any, reactive.RawMap:
		for _, kv := range entries(x) {
			keys = append(keys, kv.key)
			vals = append(vals, kv.value)
		}
		return keys, vals, true
	}
	return nil, nil, false
}

// identityKey is the identity token of an observable item, or its key and
// value otherwise.
func identityKey(key, item any) string {
	switch x := item.(type) {
	case *reactive.Object:
		return "o" + strconv.FormatUint(x.ID(), 36)
	case *reactive.Array:
		return "a" + strconv.FormatUint(x.ID(), 36)
	}
	return expr.ToString(key) + "." + expr.ToString(item)
}
