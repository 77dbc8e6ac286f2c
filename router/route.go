// Package router maps URLs to page components and renders the matched page
// into a vrouter element.
package router

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Route declares a page. Component is the template path and may contain
// the route's :params; ComponentFunc computes it from the matched path.
type Route struct {
	Path          string
	Name          string
	Component     string
	ComponentFunc func(path string) string
	Meta          map[string]any
	Description   string
	Layout        string
	Children      []Route
}

// DefaultRoutes maps / to /page/index.html, /404 to /page/404.html and
// everything else to /page<path>.html.
var DefaultRoutes = []Route{
	{Path: "/", Component: "/page/index.html", Name: "home"},
	{Path: "/404", Component: "/page/404.html", Name: "404"},
	{Path: "*", ComponentFunc: func(p string) string {
		if strings.HasSuffix(p, ".html") {
			return p
		}
		return "/page" + p + ".html"
	}},
}

var paramRe = regexp.MustCompile(`:([^(/]+)`)

type matcher struct {
	route *Route
	re    *regexp.Regexp
	keys  []string
}

func compile(r *Route) *matcher {
	m := &matcher{route: r}
	var sb strings.Builder
	sb.WriteString("^")
	rest := r.Path
	for rest != "" {
		loc := paramRe.FindStringSubmatchIndex(rest)
		star := strings.IndexByte(rest, '*')
		switch {
		case loc != nil && (star < 0 || loc[0] < star):
			sb.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
			key := rest[loc[2]:loc[3]]
			m.keys = append(m.keys, key)
			sb.WriteString(`([^/]+)`)
			rest = rest[loc[1]:]
		case star >= 0:
			sb.WriteString(regexp.QuoteMeta(rest[:star]))
			sb.WriteString(".*")
			rest = rest[star+1:]
		default:
			sb.WriteString(regexp.QuoteMeta(rest))
			rest = ""
		}
	}
	sb.WriteString("$")
	m.re = regexp.MustCompile(sb.String())
	return m
}

func (m *matcher) match(path string) (map[string]string, bool) {
	sub := m.re.FindStringSubmatch(path)
	if sub == nil {
		return nil, false
	}
	params := map[string]string{}
	for i, key := range m.keys {
		if v := sub[i+1]; v != "" {
			params[key] = v
		}
	}
	return params, true
}

// Location is a resolved navigation target.
type Location struct {
	Path        string
	FullPath    string
	Hash        string
	Name        string
	Description string
	Layout      string
	Params      map[string]string
	Query       map[string]string
	Meta        map[string]any
	Route       *Route
}

// ComponentURL is the template the location renders: the route component
// with params substituted, absolute and ending in .html.
func (l *Location) ComponentURL() string {
	p := l.Route.Component
	if l.Route.ComponentFunc != nil {
		p = l.Route.ComponentFunc(l.Path)
	}
	if p == "" {
		p = l.Route.Path
	}
	for k, v := range l.Params {
		p = strings.ReplaceAll(p, ":"+k, v)
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.TrimSuffix(p, "/")
	if !strings.HasSuffix(p, ".html") {
		p += ".html"
	}
	return p
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (l *Location) GetMember(name string) (any, bool) {
	switch name {
	case "path":
		return l.Path, true
	case "fullPath":
		return l.FullPath, true
	case "hash":
		return l.Hash, true
	case "name":
		return l.Name, true
	case "description":
		return l.Description, true
	case "layout":
		return l.Layout, true
	case "params":
		return stringMap(l.Params), true
	case "query":
		return stringMap(l.Query), true
	case "meta":
		return l.Meta, true
	}
	return nil, false
}

func (l *Location) SetMember(string, any) bool { return false }

func encodeQuery(q map[string]string) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape(q[k])
	}
	return "?" + strings.Join(parts, "&")
}
