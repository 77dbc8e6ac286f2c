package dom

import (
	"strings"
)

type NodeType uint8

const (
	ElementNode NodeType = iota + 1
	TextNode
	CommentNode
	DocumentNode
	FragmentNode
)

// String returns the node type name.
func (t NodeType) String() string {
	switch t {
	case ElementNode:
		return "Element"
	case TextNode:
		return "Text"
	case CommentNode:
		return "Comment"
	case DocumentNode:
		return "Document"
	case FragmentNode:
		return "Fragment"
	default:
		return "Unknown"
	}
}

type Attr struct {
	Name  string
	Value string
}

// Node is a mutable DOM node. Element tags are stored lower-cased.
type Node struct {
	Type NodeType
	Tag  string
	Data string

	doc       *Document
	parent    *Node
	children  []*Node
	attrs     []Attr
	props     map[string]any
	listeners map[string][]*listener
}

func (n *Node) Document() *Document { return n.doc }
func (n *Node) Parent() *Node       { return n.parent }

// ChildNodes returns a snapshot of the children; edits to the tree do not
// affect the returned slice.
func (n *Node) ChildNodes() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Children returns only element children.
func (n *Node) Children() []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func (n *Node) FirstChild() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

func (n *Node) LastChild() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[len(n.children)-1]
}

func (n *Node) index() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

func (n *Node) NextSibling() *Node {
	i := n.index()
	if i < 0 || i+1 >= len(n.parent.children) {
		return nil
	}
	return n.parent.children[i+1]
}

func (n *Node) PrevSibling() *Node {
	i := n.index()
	if i <= 0 {
		return nil
	}
	return n.parent.children[i-1]
}

// IsConnected reports whether the node is attached to its document's tree.
func (n *Node) IsConnected() bool {
	if n.doc == nil {
		return false
	}
	for p := n; p != nil; p = p.parent {
		if p == n.doc.root {
			return true
		}
	}
	return false
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Closest walks from n up through its ancestors and returns the first node
// matching pred.
func (n *Node) Closest(pred func(*Node) bool) *Node {
	for p := n; p != nil; p = p.parent {
		if p.Type == ElementNode && pred(p) {
			return p
		}
	}
	return nil
}

// QueryAll returns every descendant element matching pred in document order.
func (n *Node) QueryAll(pred func(*Node) bool) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.children {
			if c.Type != ElementNode {
				continue
			}
			if pred(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// Query returns the first descendant element matching pred.
func (n *Node) Query(pred func(*Node) bool) *Node {
	for _, c := range n.children {
		if c.Type != ElementNode {
			continue
		}
		if pred(c) {
			return c
		}
		if m := c.Query(pred); m != nil {
			return m
		}
	}
	return nil
}

// ByTag is a QueryAll predicate matching elements by tag name.
func ByTag(tag string) func(*Node) bool {
	tag = strings.ToLower(tag)
	return func(n *Node) bool { return n.Tag == tag }
}

// ByAttr is a QueryAll predicate matching elements carrying an attribute.
func ByAttr(name string) func(*Node) bool {
	return func(n *Node) bool { return n.HasAttr(name) }
}

func (n *Node) AppendChild(children ...*Node) {
	n.doc.begin()
	defer n.doc.end()
	for _, c := range children {
		n.insertAt(c, len(n.children))
	}
}

// InsertBefore inserts c before ref; a nil ref appends.
func (n *Node) InsertBefore(c, ref *Node) {
	n.doc.begin()
	defer n.doc.end()
	if ref == nil || ref.parent != n {
		n.insertAt(c, len(n.children))
		return
	}
	if c == ref {
		return
	}
	c.detach()
	n.insertAt(c, ref.index())
}

func (n *Node) RemoveChild(c *Node) {
	if c.parent != n {
		return
	}
	c.detach()
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	n.detach()
}

// ReplaceWith puts nodes where n was and detaches n.
func (n *Node) ReplaceWith(nodes ...*Node) {
	p := n.parent
	if p == nil {
		return
	}
	p.doc.begin()
	defer p.doc.end()
	next := n.NextSibling()
	for next != nil && containsNode(nodes, next) {
		next = next.NextSibling()
	}
	n.detach()
	for _, c := range nodes {
		if c == n {
			continue
		}
		p.InsertBefore(c, next)
	}
}

// ReplaceChildren removes all children and appends nodes.
func (n *Node) ReplaceChildren(nodes ...*Node) {
	n.doc.begin()
	defer n.doc.end()
	for _, c := range n.ChildNodes() {
		if !containsNode(nodes, c) {
			c.detach()
		}
	}
	for _, c := range nodes {
		n.insertAt(c, len(n.children))
	}
}

func containsNode(nodes []*Node, n *Node) bool {
	for _, c := range nodes {
		if c == n {
			return true
		}
	}
	return false
}

func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	i := n.index()
	p.children = append(p.children[:i], p.children[i+1:]...)
	n.parent = nil
}

func (n *Node) insertAt(c *Node, i int) {
	if c.Type == FragmentNode {
		for _, fc := range c.ChildNodes() {
			n.insertAt(fc, i)
			i = fc.index() + 1
		}
		return
	}
	if c.parent != nil {
		if c.parent == n && c.index() < i {
			i--
		}
		c.detach()
	}
	if i > len(n.children) {
		i = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
	c.parent = n
	if n.doc != nil && n.IsConnected() {
		n.doc.connected = append(n.doc.connected, c)
	}
}

// Clone copies the node. Attributes are copied; live properties and event
// listeners are not.
func (n *Node) Clone(deep bool) *Node {
	c := &Node{
		Type: n.Type,
		Tag:  n.Tag,
		Data: n.Data,
		doc:  n.doc,
	}
	if len(n.attrs) > 0 {
		c.attrs = make([]Attr, len(n.attrs))
		copy(c.attrs, n.attrs)
	}
	if deep {
		for _, ch := range n.children {
			cc := ch.Clone(true)
			cc.parent = c
			c.children = append(c.children, cc)
		}
	}
	return c
}

// TextContent concatenates the text of every descendant text node.
func (n *Node) TextContent() string {
	switch n.Type {
	case TextNode, CommentNode:
		return n.Data
	}
	var sb strings.Builder
	var walk func(*Node)
	walk = func(p *Node) {
		for _, c := range p.children {
			switch c.Type {
			case TextNode:
				sb.WriteString(c.Data)
			case ElementNode, FragmentNode:
				walk(c)
			}
		}
	}
	walk(n)
	return sb.String()
}

func (n *Node) SetTextContent(s string) {
	switch n.Type {
	case TextNode, CommentNode:
		n.Data = s
		return
	}
	n.ReplaceChildren(n.doc.CreateText(s))
}

// SetNodeValue updates the data of a text or comment node.
func (n *Node) SetNodeValue(s string) {
	n.Data = s
}
