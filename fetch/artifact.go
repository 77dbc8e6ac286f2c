package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/vyes/cssscope"
	"github.com/delaneyj/vyes/dom"
)

// Script is an inline script of a component file.
type Script struct {
	Code string
	// Active mount scripts run on every connection of the component.
	Active bool
	Lang   string
}

// Artifact is a parsed component file.
type Artifact struct {
	// URL identifies the component; it is the resolved URL without .html
	// and is the value of the vref and vrefof ownership markers.
	URL   string
	Heads []*dom.Node
	// Body is a detached div holding the component body.
	Body    *dom.Node
	Setup   *Script
	Scripts []*Script
	Styles  string
	// CustomAttrs are body attributes whose names do not start with a
	// letter, such as :class or @click, applied to the instance root.
	CustomAttrs []dom.Attr
	Env         Env
	Title       string
	// Err is set when the file could not be loaded; Body then holds the
	// rendered fallback fragment.
	Err error
}

func trimHTML(u string) string { return strings.TrimSuffix(u, ".html") }

func startsWithLetter(s string) bool {
	for _, r := range s {
		return r < unicode.MaxASCII && unicode.IsLetter(r)
	}
	return false
}

// markOwner sets vrefof on every element below n.
func markOwner(n *dom.Node, id string) {
	for _, c := range n.Children() {
		c.SetAttr("vrefof", id)
		markOwner(c, id)
	}
}

// ParseArtifact parses a component file. Unless allowRoot is set, files
// whose body carries the root attribute are refused as not found. Styles
// are scoped and registered once in the document head; head scripts and
// links are loaded.
func (l *Loader) ParseArtifact(ctx context.Context, src []byte, env Env, url string, allowRoot bool) (*Artifact, error) {
	if url == "" {
		url = "#" + strconv.FormatUint(xxhash.Sum64(src), 36)
	}
	id := trimHTML(url)
	head, body, err := l.doc.ParsePage(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	if body.HasAttr("root") && !allowRoot {
		return nil, fmt.Errorf("%w: %s is a root page", ErrNotFound, url)
	}
	a := &Artifact{
		URL:   id,
		Heads: head.Children(),
		Body:  l.doc.CreateElement("div"),
		Env:   env,
	}

	var styles strings.Builder
	for _, s := range append(head.QueryAll(dom.ByTag("style")), body.QueryAll(dom.ByTag("style"))...) {
		if s.HasAttr("unscoped") {
			styles.WriteString(s.TextContent())
		} else {
			styles.WriteString(cssscope.Scope(s.TextContent(), id))
		}
		if body.Contains(s) {
			s.Remove()
		}
	}
	a.Styles = styles.String()
	if a.Styles != "" {
		l.registerStyle(id, a.Styles)
	}

	a.Body.AppendChild(body.ChildNodes()...)
	for _, s := range a.Body.QueryAll(dom.ByTag("script")) {
		code := strings.TrimSpace(s.TextContent())
		switch {
		case code == "":
		case s.HasAttr("setup"):
			a.Setup = &Script{Code: code, Lang: s.GetAttr("lang")}
		case !s.HasAttr("novyes"):
			a.Scripts = append(a.Scripts, &Script{Code: code, Active: s.HasAttr("active"), Lang: s.GetAttr("lang")})
		}
		s.Remove()
	}
	for _, attr := range body.Attrs() {
		if startsWithLetter(attr.Name) {
			a.Body.SetAttr(attr.Name, attr.Value)
		} else {
			a.CustomAttrs = append(a.CustomAttrs, attr)
		}
	}
	a.Body.SetAttr("vref", id)
	markOwner(a.Body, id)

	for _, h := range a.Heads {
		switch h.Tag {
		case "link":
			l.LoadLink(h, env)
		case "script":
			l.LoadScript(h, env)
		case "title":
			a.Title = h.TextContent()
		}
	}
	return a, nil
}

func (l *Loader) registerStyle(id, css string) {
	l.headMu.Lock()
	defer l.headMu.Unlock()
	h := l.doc.Head()
	if h.Query(func(n *dom.Node) bool { return n.Tag == "style" && n.GetAttr("vref") == id }) != nil {
		return
	}
	s := l.doc.CreateElement("style")
	s.SetAttr("vref", id)
	s.AppendChild(l.doc.CreateText(css))
	h.AppendChild(s)
}

func resolveAsset(ref string, env Env) string {
	if root := env.Root(); root != "" && strings.HasPrefix(ref, "/") {
		ref = root + ref
	}
	return strings.TrimPrefix(ref, "@")
}

// LoadScript registers a head script in the document unless one with the
// same src or key is already present. It reports whether it was added.
func (l *Loader) LoadScript(n *dom.Node, env Env) bool {
	src := resolveAsset(n.GetAttr("src"), env)
	key := n.GetAttr("key")
	l.headMu.Lock()
	defer l.headMu.Unlock()
	if l.headHas("script", "src", src) || l.headHas("script", "key", key) {
		return false
	}
	s := l.doc.CreateElement("script")
	if src != "" {
		s.SetAttr("src", src)
	}
	if key != "" {
		s.SetAttr("key", key)
	}
	typ := n.GetAttr("type")
	if typ == "" {
		typ = "text/javascript"
	}
	s.SetAttr("type", typ)
	if src == "" {
		s.AppendChild(l.doc.CreateText(n.TextContent()))
	}
	l.doc.Head().AppendChild(s)
	return true
}

// LoadLink appends a head link unless one with the same href or key is
// already present. It reports whether it was added.
func (l *Loader) LoadLink(n *dom.Node, env Env) bool {
	href := resolveAsset(n.GetAttr("href"), env)
	key := n.GetAttr("key")
	l.headMu.Lock()
	defer l.headMu.Unlock()
	if l.headHas("link", "href", href) || l.headHas("link", "key", key) {
		return false
	}
	link := n.Clone(true)
	link.SetAttr("href", href)
	l.doc.Head().AppendChild(link)
	return true
}

func (l *Loader) headHas(tag, attr, value string) bool {
	if value == "" {
		return false
	}
	return l.doc.Head().Query(func(n *dom.Node) bool {
		return n.Tag == tag && n.GetAttr(attr) == value
	}) != nil
}
