package dom

import (
	"strings"
)

// Document owns a node tree rooted at a document node and reports subtrees
// that become connected to it.
type Document struct {
	root *Node
	html *Node
	head *Node
	body *Node

	depth     int
	connected []*Node
	observers []*connObserver
	nextObsID int
}

type connObserver struct {
	id int
	fn func(*Node)
}

// NewDocument returns an empty html/head/body document.
func NewDocument() *Document {
	d := &Document{}
	d.root = &Node{Type: DocumentNode, doc: d}
	d.html = d.CreateElement("html")
	d.head = d.CreateElement("head")
	d.body = d.CreateElement("body")
	d.html.children = []*Node{d.head, d.body}
	d.head.parent = d.html
	d.body.parent = d.html
	d.root.children = []*Node{d.html}
	d.html.parent = d.root
	return d
}

func (d *Document) Root() *Node { return d.root }
func (d *Document) Head() *Node { return d.head }
func (d *Document) Body() *Node { return d.body }

// Title returns the text of the first title element in the head.
func (d *Document) Title() string {
	if t := d.head.Query(ByTag("title")); t != nil {
		return t.TextContent()
	}
	return ""
}

func (d *Document) SetTitle(s string) {
	t := d.head.Query(ByTag("title"))
	if t == nil {
		t = d.CreateElement("title")
		d.head.AppendChild(t)
	}
	t.SetTextContent(s)
}

func (d *Document) CreateElement(tag string) *Node {
	return &Node{Type: ElementNode, Tag: strings.ToLower(tag), doc: d}
}

func (d *Document) CreateText(s string) *Node {
	return &Node{Type: TextNode, Data: s, doc: d}
}

func (d *Document) CreateComment(s string) *Node {
	return &Node{Type: CommentNode, Data: s, doc: d}
}

func (d *Document) CreateFragment() *Node {
	return &Node{Type: FragmentNode, doc: d}
}

// OnConnected registers fn to receive every element of each subtree that
// gets connected to the document. Delivery happens after the outermost
// mutation returns. The returned func unregisters fn.
func (d *Document) OnConnected(fn func(*Node)) func() {
	d.nextObsID++
	id := d.nextObsID
	d.observers = append(d.observers, &connObserver{id: id, fn: fn})
	return func() {
		for i, o := range d.observers {
			if o.id == id {
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

func (d *Document) begin() {
	if d == nil {
		return
	}
	d.depth++
}

func (d *Document) end() {
	if d == nil {
		return
	}
	d.depth--
	if d.depth == 0 {
		d.flush()
	}
}

func (d *Document) flush() {
	// Observers may mutate the tree; those mutations queue more work that
	// this loop picks up.
	d.depth++
	defer func() { d.depth-- }()
	for len(d.connected) > 0 {
		batch := d.connected
		d.connected = nil
		if len(d.observers) == 0 {
			continue
		}
		for _, n := range batch {
			if !n.IsConnected() {
				continue
			}
			var elems []*Node
			if n.Type == ElementNode {
				elems = append(elems, n)
			}
			elems = append(elems, n.QueryAll(func(*Node) bool { return true })...)
			obs := make([]*connObserver, len(d.observers))
			copy(obs, d.observers)
			for _, e := range elems {
				for _, o := range obs {
					o.fn(e)
				}
			}
		}
	}
}
