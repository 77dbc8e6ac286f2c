package vyes

import (
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/delaneyj/vyes/dom"
	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/reactive"
)

var propertyAliases = map[string]string{
	"htmlfor":         "htmlFor",
	"readonly":        "readOnly",
	"maxlength":       "maxLength",
	"minlength":       "minLength",
	"cellspacing":     "cellSpacing",
	"cellpadding":     "cellPadding",
	"rowspan":         "rowSpan",
	"colspan":         "colSpan",
	"tabindex":        "tabIndex",
	"usemap":          "useMap",
	"frameborder":     "frameBorder",
	"contenteditable": "contentEditable",
	"spellcheck":      "spellcheck",
	"innerhtml":       "innerHTML",
	"innertext":       "innerText",
	"autocapitalize":  "autocapitalize",
}

var domProperties = mapset.NewThreadUnsafeSet(
	"innerHTML", "innerText", "outerHTML", "textContent",
	"value", "checked", "selected", "disabled", "readOnly",
	"maxLength", "minLength", "htmlFor",
	"tabIndex", "scrollTop", "scrollLeft", "scrollWidth", "scrollHeight",
	"clientWidth", "clientHeight", "offsetWidth", "offsetHeight",
	"style", "dataset",
)

var booleanAttrs = mapset.NewThreadUnsafeSet(
	"checked", "selected", "disabled", "readonly", "required",
	"hidden", "autofocus", "multiple", "novalidate",
)

// reflected properties and the attribute each one mirrors.
var reflected = map[string]string{
	"maxLength": "maxlength",
	"minLength": "minlength",
	"tabIndex":  "tabindex",
	"htmlFor":   "for",
}

// SetAttr applies a bound value to n: DOM properties are assigned,
// boolean attributes toggle on truthiness, nil removes anything else.
func SetAttr(n *dom.Node, key string, v any) {
	lower := strings.ToLower(key)
	mapped := key
	if m, ok := propertyAliases[lower]; ok {
		mapped = m
	}
	switch {
	case domProperties.Contains(mapped):
		setProperty(n, mapped, v)
	case booleanAttrs.Contains(lower):
		if expr.Truthy(v) {
			n.SetAttr(lower, "")
		} else {
			n.RemoveAttr(lower)
		}
	case v == nil:
		n.RemoveAttr(key)
	default:
		n.SetAttr(key, expr.ToString(v))
	}
}

func setProperty(n *dom.Node, name string, v any) {
	switch name {
	case "innerText", "textContent":
		n.SetTextContent(expr.Display(v))
	case "innerHTML":
		n.SetProp("innerHTML", expr.Display(v))
	case "outerHTML":
		nodes, err := n.Document().ParseFragment(expr.Display(v))
		if err == nil {
			n.ReplaceWith(nodes...)
		}
	case "value":
		n.SetValue(expr.Display(v))
	case "checked":
		n.SetChecked(expr.Truthy(v))
	case "selected":
		n.SetProp("selected", expr.Truthy(v))
	case "disabled", "readOnly":
		attr := strings.ToLower(name)
		if expr.Truthy(v) {
			n.SetAttr(attr, "")
		} else {
			n.RemoveAttr(attr)
		}
	case "maxLength", "minLength", "tabIndex", "htmlFor":
		if v == nil {
			n.RemoveAttr(reflected[name])
		} else {
			n.SetAttr(reflected[name], expr.ToString(v))
		}
	case "style":
		switch s := v.(type) {
		case nil:
			n.RemoveAttr("style")
		case string:
			n.SetAttr("style", s)
		default:
			for _, kv := range entries(v) {
				n.StyleSet(kv.key, expr.Display(kv.value))
			}
		}
	case "dataset":
		for _, kv := range entries(v) {
			n.SetAttr("data-"+kebab(kv.key), expr.ToString(kv.value))
		}
	default:
		n.SetProp(name, v)
	}
}

type entry struct {
	key   string
	value any
}

// entries lists the keys of a map-like value in a stable order.
func entries(v any) []entry {
	var out []entry
	switch m := v.(type) {
	case *reactive.Object:
		for _, k := range m.Keys() {
			out = append(out, entry{k, m.Get(k)})
		}
	case map[string]any:
		for _, k := range sortedKeys(m) {
			out = append(out, entry{k, m[k]})
		}
	case reactive.RawMap:
		for _, k := range sortedKeys(m) {
			out = append(out, entry{k, m[k]})
		}
	}
	return out
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// kebab turns fooBar into foo-bar.
func kebab(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('-')
			}
			sb.WriteRune(r + ('a' - 'A'))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var textInputs = mapset.NewThreadUnsafeSet(
	"text", "password", "email", "tel", "url", "search", "number", "range",
	"color", "date", "time", "datetime-local", "month", "week", "hidden", "textarea",
)

// BindInput keeps the form control n and the target key in sync. It
// reports false for elements that cannot be bound.
func (a *App) BindInput(n *dom.Node, t expr.Target) bool {
	kind := n.InputType()
	var listen string
	var read func() any
	switch {
	case textInputs.Contains(kind):
		a.watch(n, func() { n.SetValue(expr.Display(t.Get())) })
		listen, read = "input", func() any { return n.Value() }
	case kind == "checkbox":
		a.watch(n, func() { n.SetChecked(expr.Truthy(t.Get())) })
		listen, read = "change", func() any { return n.Checked() }
	case kind == "radio":
		a.watch(n, func() { n.SetChecked(expr.StrictEqual(n.Value(), t.Get())) })
		listen = "change"
		read = func() any {
			if !n.Checked() {
				return skip{}
			}
			return n.Value()
		}
	case kind == "select-one" || kind == "select-multiple":
		a.watch(n, func() {
			v := t.Get()
			if !n.Multiple() {
				if !expr.Truthy(v) {
					v = ""
				}
				n.SetValue(expr.Display(v))
				return
			}
			values := listValues(v)
			for _, o := range n.Options() {
				selected := false
				for _, x := range values {
					if expr.StrictEqual(x, o.Value()) {
						selected = true
						break
					}
				}
				o.SetProp("selected", selected)
			}
		})
		listen = "change"
		read = func() any {
			if !n.Multiple() {
				return n.Value()
			}
			out := []any{}
			for _, o := range n.Options() {
				if o.Selected() {
					out = append(out, o.Value())
				}
			}
			return out
		}
	default:
		a.report(n, "v:", "two-way binding needs a form control, got "+strconv.Quote(kind))
		return false
	}
	off := n.AddEventListener(listen, func(*dom.Event) {
		v := read()
		if _, ok := v.(skip); ok {
			return
		}
		if err := t.Set(v); err != nil {
			a.logger.Warn("two-way write failed", "key", t.Key, "err", err)
		}
	})
	a.cleanup(n, off)
	return true
}

type skip struct{}

// listValues returns the items of a sequence, tracking live arrays.
func listValues(v any) []any {
	switch x := v.(type) {
	case *reactive.Array:
		return x.Items()
	case []any:
		return x
	case reactive.RawList:
		return x
	}
	return nil
}
