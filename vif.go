package vyes

import (
	"context"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
)

type branch struct {
	node *dom.Node
	// code is empty for v-else.
	code   string
	walked bool
}

// ifGroup is one v-if chain. now is the node currently in the tree.
type ifGroup struct {
	branches []*branch
	now      *dom.Node
	empty    *dom.Node
	shown    int
}

func (a *App) placeholder() *dom.Node {
	p := a.doc.CreateElement("div")
	p.SetAttr("style", "display: none;")
	return p
}

// groupConditionals pulls v-if chains out of nodes, replacing each chain
// with a placeholder bound to its conditions, and returns the nodes left
// to walk. A chain ends at the next element that is not a v-else-if or
// v-else.
func (a *App) groupConditionals(ctx context.Context, nodes []*dom.Node, data *reactive.Object, env fetch.Env) []*dom.Node {
	var out []*dom.Node
	var g *ifGroup
	flush := func() {
		if g != nil {
			a.bindGroup(ctx, g, data, env)
			g = nil
		}
	}
	for _, n := range nodes {
		if n.Type != dom.ElementNode {
			out = append(out, n)
			continue
		}
		if n.HasAttr("v-for") {
			flush()
			out = append(out, n)
			continue
		}
		code, isIf := n.Attr("v-if")
		elif, isElif := n.Attr("v-else-if")
		isElse := n.HasAttr("v-else")
		switch {
		case isIf:
			flush()
			n.RemoveAttr("v-if")
			ph := a.placeholder()
			n.ReplaceWith(ph)
			g = &ifGroup{now: ph, shown: -2, branches: []*branch{{node: n, code: code}}}
		case isElif || isElse:
			if g == nil {
				a.report(n, "v-if", "v-else-if or v-else without a preceding v-if")
				continue
			}
			n.RemoveAttr("v-else-if")
			n.RemoveAttr("v-else")
			n.Remove()
			if isElse {
				elif = ""
			}
			g.branches = append(g.branches, &branch{node: n, code: elif})
		default:
			flush()
			out = append(out, n)
		}
	}
	flush()
	return out
}

// bindGroup shows the first branch whose condition holds and keeps only
// that one in the tree. A branch is walked when it is first shown.
func (a *App) bindGroup(ctx context.Context, g *ifGroup, data *reactive.Object, env fetch.Env) {
	a.directives++
	owner := g.now.Parent()
	if owner == nil {
		owner = g.now
	}
	a.cleanup(owner, func() {
		for _, b := range g.branches {
			if b.node.Parent() == nil {
				a.Dispose(b.node)
			}
		}
	})
	a.watch(owner, func() {
		idx := -1
		for i, b := range g.branches {
			if b.code == "" || expr.Truthy(a.eval(ctx, b.code, a.scope(data, env, nil))) {
				idx = i
				break
			}
		}
		if idx == g.shown {
			return
		}
		g.shown = idx
		a.sys.Untracked(func() { a.show(ctx, g, idx, data, env) })
	})
}

func (a *App) show(ctx context.Context, g *ifGroup, idx int, data *reactive.Object, env fetch.Env) {
	var next *dom.Node
	var b *branch
	if idx < 0 {
		if g.empty == nil {
			g.empty = a.placeholder()
		}
		next = g.empty
	} else {
		b = g.branches[idx]
		next = b.node
		a.state(next).inactive = false
	}
	swap := func(*dom.Node) {
		prev := g.now
		if prev == next {
			return
		}
		prev.ReplaceWith(next)
		g.now = next
		for _, other := range g.branches {
			if other.node == prev {
				a.state(prev).inactive = true
			}
		}
		if b == nil {
			return
		}
		if !b.walked {
			b.walked = true
			a.Walk(ctx, next, data, env)
			return
		}
		a.refresh(next)
	}
	if g.now.Parent() != nil {
		swap(g.now)
		return
	}
	a.onConnected(g.now, swap)
}
