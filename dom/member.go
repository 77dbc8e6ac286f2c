package dom

// GetMember exposes node properties and methods to the expression language.
func (n *Node) GetMember(name string) (any, bool) {
	switch name {
	case "parentNode", "parentElement":
		if n.parent == nil {
			return nil, true
		}
		return n.parent, true
	case "isConnected":
		return n.IsConnected(), true
	case "nodeName":
		return n.Prop("tagName"), true
	case "children":
		out := []any{}
		for _, c := range n.Children() {
			out = append(out, c)
		}
		return out, true
	case "options":
		out := []any{}
		for _, o := range n.Options() {
			out = append(out, o)
		}
		return out, true
	case "getAttribute":
		return func(args ...any) any {
			if v, ok := n.Attr(argString(args, 0)); ok {
				return v
			}
			return nil
		}, true
	case "setAttribute":
		return func(args ...any) any {
			n.SetAttr(argString(args, 0), argString(args, 1))
			return nil
		}, true
	case "removeAttribute":
		return func(args ...any) any {
			n.RemoveAttr(argString(args, 0))
			return nil
		}, true
	case "hasAttribute":
		return func(args ...any) any { return n.HasAttr(argString(args, 0)) }, true
	case "remove":
		return func(...any) any {
			n.Remove()
			return nil
		}, true
	case "focus", "blur", "click":
		return func(...any) any {
			if name == "click" {
				n.Dispatch(NewEvent("click"))
			}
			return nil
		}, true
	case "dispatchEvent":
		return func(args ...any) any {
			if len(args) == 0 {
				return false
			}
			ev, ok := args[0].(*Event)
			if !ok {
				return false
			}
			return n.Dispatch(ev)
		}, true
	}
	if v := n.Prop(name); v != nil {
		return v, true
	}
	return nil, false
}

// SetMember assigns a property from the expression language.
func (n *Node) SetMember(name string, v any) bool {
	n.SetProp(name, v)
	return true
}

func argString(args []any, i int) string {
	if i >= len(args) {
		return ""
	}
	if s, ok := args[i].(string); ok {
		return s
	}
	return propString(args[i])
}

func (e *Event) GetMember(name string) (any, bool) {
	switch name {
	case "type":
		return e.Type, true
	case "key":
		return e.Key, true
	case "detail":
		return e.Detail, true
	case "target":
		if e.target == nil {
			return nil, true
		}
		return e.target, true
	case "currentTarget":
		if e.currentTarget == nil {
			return nil, true
		}
		return e.currentTarget, true
	case "defaultPrevented":
		return e.defaultPrevented, true
	case "preventDefault":
		return func(...any) any {
			e.PreventDefault()
			return nil
		}, true
	case "stopPropagation":
		return func(...any) any {
			e.StopPropagation()
			return nil
		}, true
	}
	return nil, false
}

func (e *Event) SetMember(name string, v any) bool {
	return false
}
