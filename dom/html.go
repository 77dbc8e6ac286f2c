package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseDocument parses a complete HTML document.
func ParseDocument(r io.Reader) (*Document, error) {
	hn, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	d := &Document{}
	d.root = &Node{Type: DocumentNode, doc: d}
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if n := d.convert(c); n != nil {
			n.parent = d.root
			d.root.children = append(d.root.children, n)
		}
	}
	d.html = d.root.Query(ByTag("html"))
	if d.html == nil {
		return nil, fmt.Errorf("parse document: missing html element")
	}
	d.head = d.html.Query(ByTag("head"))
	d.body = d.html.Query(ByTag("body"))
	return d, nil
}

// ParsePage parses a component file into detached head and body elements
// owned by d.
func (d *Document) ParsePage(r io.Reader) (head, body *Node, err error) {
	page, err := ParseDocument(r)
	if err != nil {
		return nil, nil, err
	}
	head = d.adopt(page.head)
	body = d.adopt(page.body)
	head.parent = nil
	body.parent = nil
	return head, body, nil
}

func (d *Document) adopt(n *Node) *Node {
	n.doc = d
	for _, c := range n.children {
		d.adopt(c)
	}
	return n
}

// ParseFragment parses s in a body context and returns detached nodes.
func (d *Document) ParseFragment(s string) ([]*Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	hns, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	out := make([]*Node, 0, len(hns))
	for _, hn := range hns {
		if n := d.convert(hn); n != nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// SetInnerHTML replaces the children of n with the parsed fragment.
func (n *Node) SetInnerHTML(s string) error {
	nodes, err := n.doc.ParseFragment(s)
	if err != nil {
		return err
	}
	n.ReplaceChildren(nodes...)
	return nil
}

func (d *Document) convert(hn *html.Node) *Node {
	var n *Node
	switch hn.Type {
	case html.ElementNode:
		n = &Node{Type: ElementNode, Tag: strings.ToLower(hn.Data), doc: d}
		for _, a := range hn.Attr {
			name := a.Key
			if a.Namespace != "" {
				name = a.Namespace + ":" + a.Key
			}
			n.attrs = append(n.attrs, Attr{Name: name, Value: a.Val})
		}
	case html.TextNode:
		return &Node{Type: TextNode, Data: hn.Data, doc: d}
	case html.CommentNode:
		return &Node{Type: CommentNode, Data: hn.Data, doc: d}
	default:
		return nil
	}
	for c := hn.FirstChild; c != nil; c = c.NextSibling {
		if cn := d.convert(c); cn != nil {
			cn.parent = n
			n.children = append(n.children, cn)
		}
	}
	return n
}

func toHTML(n *Node) *html.Node {
	var hn *html.Node
	switch n.Type {
	case ElementNode:
		hn = &html.Node{Type: html.ElementNode, Data: n.Tag, DataAtom: atom.Lookup([]byte(n.Tag))}
		for _, a := range n.attrs {
			hn.Attr = append(hn.Attr, html.Attribute{Key: a.Name, Val: a.Value})
		}
	case TextNode:
		return &html.Node{Type: html.TextNode, Data: n.Data}
	case CommentNode:
		return &html.Node{Type: html.CommentNode, Data: n.Data}
	case DocumentNode:
		hn = &html.Node{Type: html.DocumentNode}
	default:
		return nil
	}
	for _, c := range n.children {
		if hc := toHTML(c); hc != nil {
			hn.AppendChild(hc)
		}
	}
	return hn
}

// Render writes n as HTML. Fragments render their children.
func Render(w io.Writer, n *Node) error {
	if n.Type == FragmentNode {
		for _, c := range n.children {
			if err := Render(w, c); err != nil {
				return err
			}
		}
		return nil
	}
	return html.Render(w, toHTML(n))
}

func (n *Node) OuterHTML() string {
	var buf bytes.Buffer
	if err := Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

func (n *Node) InnerHTML() string {
	var buf bytes.Buffer
	for _, c := range n.children {
		if err := Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}
