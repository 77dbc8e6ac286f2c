package dom

import (
	"strings"
)

func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// GetAttr returns the attribute value or "" when absent.
func (n *Node) GetAttr(name string) string {
	v, _ := n.Attr(name)
	return v
}

func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

func (n *Node) SetAttr(name, value string) {
	for i, a := range n.attrs {
		if a.Name == name {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Name: name, Value: value})
}

func (n *Node) RemoveAttr(name string) {
	for i, a := range n.attrs {
		if a.Name == name {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return
		}
	}
}

// Attrs returns a snapshot of the attributes in document order.
func (n *Node) Attrs() []Attr {
	out := make([]Attr, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// ClearAttrs removes every attribute.
func (n *Node) ClearAttrs() {
	n.attrs = nil
}

func (n *Node) Classes() []string {
	return strings.Fields(n.GetAttr("class"))
}

func (n *Node) HasClass(name string) bool {
	for _, c := range n.Classes() {
		if c == name {
			return true
		}
	}
	return false
}

func (n *Node) AddClass(names ...string) {
	classes := n.Classes()
	changed := false
	for _, name := range names {
		if name == "" {
			continue
		}
		found := false
		for _, c := range classes {
			if c == name {
				found = true
				break
			}
		}
		if !found {
			classes = append(classes, name)
			changed = true
		}
	}
	if changed {
		n.SetAttr("class", strings.Join(classes, " "))
	}
}

func (n *Node) RemoveClass(names ...string) {
	if !n.HasAttr("class") {
		return
	}
	classes := n.Classes()
	out := classes[:0]
	for _, c := range classes {
		if !containsString(names, c) {
			out = append(out, c)
		}
	}
	n.SetAttr("class", strings.Join(out, " "))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type styleDecl struct {
	prop  string
	value string
}

func parseStyle(s string) []styleDecl {
	var out []styleDecl
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, styleDecl{prop: k, value: strings.TrimSpace(v)})
	}
	return out
}

func (n *Node) writeStyle(decls []styleDecl) {
	if len(decls) == 0 {
		n.RemoveAttr("style")
		return
	}
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.prop + ": " + d.value
	}
	n.SetAttr("style", strings.Join(parts, "; ")+";")
}

// StyleGet returns one inline style property. Names are matched in both
// camelCase and kebab-case; custom properties are matched verbatim.
func (n *Node) StyleGet(prop string) string {
	prop = cssName(prop)
	for _, d := range parseStyle(n.GetAttr("style")) {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

// StyleSet sets one inline style property; an empty value removes it.
func (n *Node) StyleSet(prop, value string) {
	prop = cssName(prop)
	if value == "" {
		n.StyleRemove(prop)
		return
	}
	decls := parseStyle(n.GetAttr("style"))
	for i, d := range decls {
		if d.prop == prop {
			decls[i].value = value
			n.writeStyle(decls)
			return
		}
	}
	n.writeStyle(append(decls, styleDecl{prop: prop, value: value}))
}

func (n *Node) StyleRemove(prop string) {
	prop = cssName(prop)
	decls := parseStyle(n.GetAttr("style"))
	out := decls[:0]
	for _, d := range decls {
		if d.prop != prop {
			out = append(out, d)
		}
	}
	if len(out) == len(decls) {
		return
	}
	n.writeStyle(out)
}

// cssName turns fontSize into font-size and leaves custom properties alone.
func cssName(prop string) string {
	prop = strings.TrimSpace(prop)
	if strings.HasPrefix(prop, "--") {
		return prop
	}
	var sb strings.Builder
	for i, r := range prop {
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
