package dom

import (
	"strings"
)

// Prop returns a live property. value, checked and selected fall back to
// their markup attributes until first assigned.
func (n *Node) Prop(name string) any {
	if v, ok := n.props[name]; ok {
		return v
	}
	switch name {
	case "value":
		return n.Value()
	case "checked":
		return n.Checked()
	case "selected":
		return n.Selected()
	case "textContent":
		return n.TextContent()
	case "innerHTML":
		return n.InnerHTML()
	case "tagName":
		return strings.ToUpper(n.Tag)
	case "id", "name", "type", "href", "src", "title", "placeholder":
		return n.GetAttr(name)
	case "className":
		return n.GetAttr("class")
	case "disabled", "hidden", "readOnly", "required", "multiple":
		return n.HasAttr(strings.ToLower(name))
	}
	return nil
}

// SetProp assigns a live property. Properties with a DOM side effect
// (textContent, innerHTML, className, id) update the tree too.
func (n *Node) SetProp(name string, v any) {
	switch name {
	case "textContent":
		n.SetTextContent(propString(v))
		return
	case "innerHTML":
		_ = n.SetInnerHTML(propString(v))
		return
	case "className":
		n.SetAttr("class", propString(v))
		return
	case "id":
		n.SetAttr("id", propString(v))
		return
	case "value":
		n.SetValue(propString(v))
		return
	case "checked":
		b, _ := v.(bool)
		n.SetChecked(b)
		return
	case "selected":
		b, _ := v.(bool)
		n.setProp("selected", b)
		return
	}
	n.setProp(name, v)
}

func (n *Node) setProp(name string, v any) {
	if n.props == nil {
		n.props = map[string]any{}
	}
	n.props[name] = v
}

func propString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case interface{ String() string }:
		return x.String()
	}
	return ""
}

// InputType returns the lower-cased type of an input ("text" by default),
// "textarea", "select-one" or "select-multiple" for those elements, and ""
// for everything else.
func (n *Node) InputType() string {
	switch n.Tag {
	case "input":
		t := strings.ToLower(n.GetAttr("type"))
		if t == "" {
			return "text"
		}
		return t
	case "textarea":
		return "textarea"
	case "select":
		if n.Multiple() {
			return "select-multiple"
		}
		return "select-one"
	}
	return ""
}

func (n *Node) Multiple() bool {
	return n.Tag == "select" && n.HasAttr("multiple")
}

// Value is the current value of a form control.
func (n *Node) Value() string {
	if v, ok := n.props["value"]; ok {
		s, _ := v.(string)
		return s
	}
	switch n.Tag {
	case "textarea":
		return n.TextContent()
	case "select":
		for _, o := range n.Options() {
			if o.Selected() {
				return o.Value()
			}
		}
		if opts := n.Options(); len(opts) > 0 && !n.Multiple() {
			return opts[0].Value()
		}
		return ""
	case "option":
		if v, ok := n.Attr("value"); ok {
			return v
		}
		return strings.TrimSpace(n.TextContent())
	case "input":
		if v, ok := n.Attr("value"); ok {
			return v
		}
		if t := n.InputType(); t == "checkbox" || t == "radio" {
			return "on"
		}
	}
	return n.GetAttr("value")
}

func (n *Node) SetValue(s string) {
	if n.Tag == "select" {
		for _, o := range n.Options() {
			o.setProp("selected", o.Value() == s)
		}
		return
	}
	n.setProp("value", s)
}

func (n *Node) Checked() bool {
	if v, ok := n.props["checked"]; ok {
		b, _ := v.(bool)
		return b
	}
	return n.HasAttr("checked")
}

// SetChecked sets the checked property. Checking a radio unchecks the
// other radios with the same name in the document.
func (n *Node) SetChecked(b bool) {
	n.setProp("checked", b)
	if !b || n.InputType() != "radio" {
		return
	}
	name := n.GetAttr("name")
	if name == "" || n.doc == nil {
		return
	}
	top := n
	for top.parent != nil {
		top = top.parent
	}
	for _, r := range top.QueryAll(func(o *Node) bool {
		return o != n && o.Tag == "input" && o.InputType() == "radio" && o.GetAttr("name") == name
	}) {
		r.setProp("checked", false)
	}
}

func (n *Node) Selected() bool {
	if v, ok := n.props["selected"]; ok {
		b, _ := v.(bool)
		return b
	}
	return n.HasAttr("selected")
}

// Options returns the option descendants of a select element.
func (n *Node) Options() []*Node {
	return n.QueryAll(ByTag("option"))
}
