package vyes

import (
	"context"
	"strings"

	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/fetch"
	"github.com/delaneyj/vyes/reactive"
)

type textPart struct {
	text string
	code bool
}

// splitMustache splits s into static text and {{ }} expressions. An
// expression starts at the last {{ before its closing }}.
func splitMustache(s string) []textPart {
	var parts []textPart
	rest := s
	for {
		end := strings.Index(rest, "}}")
		if end < 0 {
			break
		}
		start := strings.LastIndex(rest[:end], "{{")
		if start < 0 {
			parts = append(parts, textPart{text: rest[:end+2]})
			rest = rest[end+2:]
			continue
		}
		if start > 0 {
			parts = append(parts, textPart{text: rest[:start]})
		}
		parts = append(parts, textPart{text: strings.TrimSpace(rest[start+2 : end]), code: true})
		rest = rest[end+2:]
	}
	if rest != "" {
		parts = append(parts, textPart{text: rest})
	}
	return parts
}

// parseText binds the interpolations of a text node. Each expression gets
// its own computation; objects render as JSON.
func (a *App) parseText(ctx context.Context, n *dom.Node, data *reactive.Object, env fetch.Env) {
	if !strings.Contains(n.Data, "{{") {
		return
	}
	parts := splitMustache(n.Data)
	values := make([]string, len(parts))
	bound := false
	for i, p := range parts {
		if !p.code {
			values[i] = p.text
			continue
		}
		bound = true
		a.directives++
		i, code := i, p.text
		a.watch(n, func() {
			values[i] = expr.Display(a.eval(ctx, code, a.scope(data, env, nil)))
			n.SetNodeValue(strings.Join(values, ""))
		})
	}
	if !bound {
		return
	}
	n.SetNodeValue(strings.Join(values, ""))
}
