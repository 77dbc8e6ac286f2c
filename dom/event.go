package dom

type Event struct {
	Type   string
	Key    string
	Detail any

	target           *Node
	currentTarget    *Node
	defaultPrevented bool
	stopped          bool
}

func NewEvent(typ string) *Event {
	return &Event{Type: typ}
}

// NewKeyEvent builds a keyboard event carrying key.
func NewKeyEvent(typ, key string) *Event {
	return &Event{Type: typ, Key: key}
}

func (e *Event) Target() *Node        { return e.target }
func (e *Event) CurrentTarget() *Node { return e.currentTarget }
func (e *Event) PreventDefault()      { e.defaultPrevented = true }
func (e *Event) StopPropagation()     { e.stopped = true }
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

type listener struct {
	fn func(*Event)
}

// AddEventListener registers fn for events of typ on n and returns a func
// that removes it.
func (n *Node) AddEventListener(typ string, fn func(*Event)) func() {
	if n.listeners == nil {
		n.listeners = map[string][]*listener{}
	}
	l := &listener{fn: fn}
	n.listeners[typ] = append(n.listeners[typ], l)
	return func() {
		ls := n.listeners[typ]
		for i, x := range ls {
			if x == l {
				n.listeners[typ] = append(ls[:i], ls[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount reports how many listeners of typ are attached to n.
func (n *Node) ListenerCount(typ string) int {
	return len(n.listeners[typ])
}

// Dispatch delivers ev to n and then bubbles it through n's ancestors until
// a listener stops propagation. It returns false if a listener prevented
// the default action.
func (n *Node) Dispatch(ev *Event) bool {
	ev.target = n
	for p := n; p != nil; p = p.parent {
		ls := p.listeners[ev.Type]
		if len(ls) == 0 {
			continue
		}
		ev.currentTarget = p
		snapshot := make([]*listener, len(ls))
		copy(snapshot, ls)
		for _, l := range snapshot {
			l.fn(ev)
		}
		if ev.stopped {
			break
		}
	}
	ev.currentTarget = nil
	return !ev.defaultPrevented
}
