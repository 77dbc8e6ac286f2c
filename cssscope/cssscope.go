// Package cssscope rewrites component stylesheets so their rules only apply
// inside the component that declared them.
package cssscope

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var (
	commentRe       = regexp.MustCompile(`(?s)/\*.*?\*/`)
	keyframesRe     = regexp.MustCompile(`(?i)@keyframes\s+([^\s{]+)`)
	combinatorRe    = regexp.MustCompile(`\s*[>+~]\s*|\s+`)
	pseudoRe        = regexp.MustCompile(`^([^:]+)(:.+)$`)
	bodyRe          = regexp.MustCompile(`^body(?:$|[:\[ ])`)
	rootRe          = regexp.MustCompile(`^:root(?:$|[:\[ ])`)
	animationRe     = regexp.MustCompile(`(?i)animation\s*:\s*([^;]+);`)
	animationNameRe = regexp.MustCompile(`(?i)animation-name\s*:\s*([^;]+);`)
	timeRe          = regexp.MustCompile(`^\d+(\.\d+)?(s|ms)$`)
	numberRe        = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

var animationKeywords = map[string]bool{
	"ease": true, "ease-in": true, "ease-out": true, "ease-in-out": true,
	"linear": true, "infinite": true, "normal": true, "reverse": true,
	"alternate": true, "alternate-reverse": true, "forwards": true,
	"backwards": true, "both": true, "running": true, "paused": true,
}

// Suffix is the token appended to keyframe names declared under scope.
func Suffix(scope string) string {
	return strconv.FormatUint(xxhash.Sum64String(scope), 36)
}

// OwnerAttr selects elements owned by the component at scope.
func OwnerAttr(scope string) string { return `[vrefof="` + scope + `"]` }

// RootAttr selects the component root element at scope.
func RootAttr(scope string) string { return `[vref="` + scope + `"]` }

type scoper struct {
	attr      string
	body      string
	keyframes map[string]string
}

// Scope rewrites css for the component identified by scope. Selectors get
// the owner attribute on their last compound, body and :root map to the
// component root, and keyframes are renamed along with every animation
// that refers to them.
func Scope(css, scope string) string {
	css = commentRe.ReplaceAllString(css, "")
	s := &scoper{
		attr:      OwnerAttr(scope),
		body:      RootAttr(scope),
		keyframes: map[string]string{},
	}
	suffix := Suffix(scope)
	for _, m := range keyframesRe.FindAllStringSubmatch(css, -1) {
		s.keyframes[m[1]] = m[1] + "-" + suffix
	}
	return s.rules(css)
}

func (s *scoper) rules(css string) string {
	var out strings.Builder
	i := 0
	for i < len(css) {
		for i < len(css) && isSpace(css[i]) {
			out.WriteByte(css[i])
			i++
		}
		if i >= len(css) {
			break
		}
		var chunk string
		if css[i] == '@' {
			chunk, i = s.atRule(css, i)
		} else {
			chunk, i = s.rule(css, i)
		}
		out.WriteString(chunk)
	}
	return out.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// block returns css[start:] through the brace matching the first '{'.
func block(css string, start int) (string, int) {
	depth := 0
	for i := start; i < len(css); i++ {
		switch css[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return css[start : i+1], i + 1
			}
		}
	}
	return css[start:], len(css)
}

func (s *scoper) atRule(css string, start int) (string, int) {
	open := strings.IndexByte(css[start:], '{')
	if open < 0 {
		return css[start:], len(css)
	}
	open += start
	prelude := css[start:open]
	name := strings.ToLower(strings.TrimSpace(prelude))
	switch {
	case strings.HasPrefix(name, "@keyframes"):
		body, end := block(css, open)
		if m := keyframesRe.FindStringSubmatch(prelude); m != nil {
			if scoped, ok := s.keyframes[m[1]]; ok {
				prelude = strings.Replace(prelude, m[1], scoped, 1)
			}
		}
		return prelude + body, end
	case strings.HasPrefix(name, "@media"), strings.HasPrefix(name, "@supports"):
		body, end := block(css, open)
		inner := strings.TrimPrefix(body, "{")
		closed := strings.HasSuffix(inner, "}")
		inner = strings.TrimSuffix(inner, "}")
		out := prelude + "{" + s.rules(inner)
		if closed {
			out += "}"
		}
		return out, end
	default:
		body, end := block(css, open)
		return prelude + body, end
	}
}

func (s *scoper) rule(css string, start int) (string, int) {
	open := strings.IndexByte(css[start:], '{')
	if open < 0 {
		return css[start:], len(css)
	}
	open += start
	body, end := block(css, open)
	return s.selector(strings.TrimSpace(css[start:open])) + s.declarations(body), end
}

func (s *scoper) selector(sel string) string {
	if sel == "" {
		return sel
	}
	parts := strings.Split(sel, ",")
	for i, p := range parts {
		parts[i] = s.single(strings.TrimSpace(p))
	}
	return strings.Join(parts, ", ")
}

func (s *scoper) single(sel string) string {
	if sel == "" {
		return sel
	}
	if i := strings.Index(sel, "::"); i >= 0 {
		return s.compound(sel[:i]) + sel[i:]
	}
	if m := pseudoRe.FindStringSubmatch(sel); m != nil {
		return s.compound(m[1]) + m[2]
	}
	if sel == "*" || strings.HasPrefix(sel, "@") {
		return sel
	}
	return s.compound(sel)
}

// compound scopes the last compound selector of a complex selector.
func (s *scoper) compound(sel string) string {
	seps := combinatorRe.FindAllStringIndex(sel, -1)
	if len(seps) == 0 {
		return s.tag(strings.TrimSpace(sel))
	}
	// alternate compounds and combinators, keeping both
	var parts []string
	prev := 0
	for _, loc := range seps {
		parts = append(parts, sel[prev:loc[0]], sel[loc[0]:loc[1]])
		prev = loc[1]
	}
	parts = append(parts, sel[prev:])
	if bodyRe.MatchString(parts[0]) {
		parts[0] = s.body + parts[0][len("body"):]
		return strings.Join(parts, "")
	}
	if rootRe.MatchString(parts[0]) {
		parts[0] = s.body + parts[0][len(":root"):]
		return strings.Join(parts, "")
	}
	for i := len(parts) - 1; i >= 0; i -= 2 {
		if strings.TrimSpace(parts[i]) != "" {
			parts[i] = s.tag(strings.TrimSpace(parts[i]))
			break
		}
	}
	return strings.Join(parts, "")
}

func (s *scoper) tag(t string) string {
	switch {
	case bodyRe.MatchString(t):
		return s.body + t[len("body"):]
	case rootRe.MatchString(t):
		return s.body + t[len(":root"):]
	}
	return t + s.attr
}

func (s *scoper) declarations(body string) string {
	body = animationRe.ReplaceAllStringFunc(body, func(m string) string {
		v := animationRe.FindStringSubmatch(m)[1]
		return "animation: " + s.animation(v) + ";"
	})
	return animationNameRe.ReplaceAllStringFunc(body, func(m string) string {
		names := strings.Split(animationNameRe.FindStringSubmatch(m)[1], ",")
		for i, n := range names {
			n = strings.TrimSpace(n)
			if scoped, ok := s.keyframes[n]; ok {
				n = scoped
			}
			names[i] = n
		}
		return "animation-name: " + strings.Join(names, ", ") + ";"
	})
}

// animation renames the first token of each shorthand entry that is not
// a time, number, keyword or timing function.
func (s *scoper) animation(v string) string {
	entries := strings.Split(v, ",")
	for i, entry := range entries {
		fields := strings.Fields(entry)
		for j, f := range fields {
			if timeRe.MatchString(f) || numberRe.MatchString(f) || animationKeywords[f] || strings.HasPrefix(f, "cubic-bezier(") {
				continue
			}
			if scoped, ok := s.keyframes[f]; ok {
				fields[j] = scoped
			}
			break
		}
		entries[i] = strings.Join(fields, " ")
	}
	return strings.Join(entries, ", ")
}
