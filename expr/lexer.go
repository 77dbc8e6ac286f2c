package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tEOF tokenKind = iota
	tIdent
	tNumber
	tString
	tTemplate
	tPunct
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
	// a line break separates this token from the previous one
	nl bool
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) String() string {
	switch t.kind {
	case tEOF:
		return "end of input"
	case tString:
		return strconv.Quote(t.text)
	}
	return t.text
}

// SyntaxError reports a lexing or parsing failure at a byte offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: %s", e.Pos, e.Msg)
}

var puncts = []string{
	"...", "===", "!==", "??=", "||=", "&&=", "**",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "++", "--",
	"+=", "-=", "*=", "/=", "%=",
	"{", "}", "(", ")", "[", "]", ";", ",", ".", "<", ">",
	"+", "-", "*", "/", "%", "!", "?", ":", "=", "&", "|",
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	nl := false
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\n':
			nl = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\r':
			i++
			continue
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated comment"}
			}
			if strings.Contains(src[i:i+2+end], "\n") {
				nl = true
			}
			i += end + 4
			continue
		}

		start := i
		switch {
		case isIdentStart(c):
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tIdent, text: src[start:i], pos: start, nl: nl})
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			n, err := lexNumber(src, &i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tNumber, text: src[start:i], num: n, pos: start, nl: nl})
		case c == '"' || c == '\'':
			s, err := lexString(src, &i, c)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tString, text: s, pos: start, nl: nl})
		case c == '`':
			i++
			depth := 0
			for {
				if i >= len(src) {
					return nil, &SyntaxError{Pos: start, Msg: "unterminated template string"}
				}
				if src[i] == '\\' {
					i += 2
					continue
				}
				if depth == 0 && src[i] == '`' {
					break
				}
				if strings.HasPrefix(src[i:], "${") {
					depth++
					i += 2
					continue
				}
				if depth > 0 && src[i] == '{' {
					depth++
				}
				if depth > 0 && src[i] == '}' {
					depth--
				}
				i++
			}
			toks = append(toks, token{kind: tTemplate, text: src[start+1 : i], pos: start, nl: nl})
			i++
		default:
			matched := false
			for _, p := range puncts {
				if strings.HasPrefix(src[i:], p) {
					// a?.5 is a ternary, not optional chaining
					if p == "?." && i+2 < len(src) && isDigit(src[i+2]) {
						continue
					}
					toks = append(toks, token{kind: tPunct, text: p, pos: start, nl: nl})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				r, _ := utf8.DecodeRuneInString(src[i:])
				return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
			}
		}
		nl = false
	}
	toks = append(toks, token{kind: tEOF, pos: len(src), nl: nl})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func lexNumber(src string, i *int) (float64, error) {
	start := *i
	if strings.HasPrefix(src[start:], "0x") || strings.HasPrefix(src[start:], "0X") {
		*i += 2
		for *i < len(src) && strings.IndexByte("0123456789abcdefABCDEF_", src[*i]) >= 0 {
			*i++
		}
		n, err := strconv.ParseInt(strings.ReplaceAll(src[start+2:*i], "_", ""), 16, 64)
		if err != nil {
			return 0, &SyntaxError{Pos: start, Msg: "bad hex literal"}
		}
		return float64(n), nil
	}
	for *i < len(src) && (isDigit(src[*i]) || src[*i] == '_') {
		*i++
	}
	if *i < len(src) && src[*i] == '.' && (*i+1 >= len(src) || isDigit(src[*i+1]) || !isIdentStart(src[*i+1])) {
		*i++
		for *i < len(src) && isDigit(src[*i]) {
			*i++
		}
	}
	if *i < len(src) && (src[*i] == 'e' || src[*i] == 'E') {
		j := *i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			*i = j
			for *i < len(src) && isDigit(src[*i]) {
				*i++
			}
		}
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(src[start:*i], "_", ""), 64)
	if err != nil {
		return 0, &SyntaxError{Pos: start, Msg: "bad number literal"}
	}
	return n, nil
}

func lexString(src string, i *int, quote byte) (string, error) {
	start := *i
	*i++
	var sb strings.Builder
	for {
		if *i >= len(src) {
			return "", &SyntaxError{Pos: start, Msg: "unterminated string"}
		}
		c := src[*i]
		if c == quote {
			*i++
			return sb.String(), nil
		}
		if c == '\n' {
			return "", &SyntaxError{Pos: start, Msg: "unterminated string"}
		}
		if c != '\\' {
			sb.WriteByte(c)
			*i++
			continue
		}
		*i++
		if *i >= len(src) {
			return "", &SyntaxError{Pos: start, Msg: "unterminated string"}
		}
		n, err := unescape(src[*i:], &sb)
		if err != nil {
			return "", &SyntaxError{Pos: *i, Msg: err.Error()}
		}
		*i += n
	}
}

// unescape decodes one escape sequence (after the backslash) into sb and
// returns the bytes consumed.
func unescape(s string, sb *strings.Builder) (int, error) {
	switch s[0] {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case 'u':
		if len(s) > 1 && s[1] == '{' {
			end := strings.IndexByte(s, '}')
			if end < 0 {
				return 0, fmt.Errorf("bad unicode escape")
			}
			r, err := strconv.ParseUint(s[2:end], 16, 32)
			if err != nil {
				return 0, fmt.Errorf("bad unicode escape")
			}
			sb.WriteRune(rune(r))
			return end + 1, nil
		}
		if len(s) < 5 {
			return 0, fmt.Errorf("bad unicode escape")
		}
		r, err := strconv.ParseUint(s[1:5], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bad unicode escape")
		}
		sb.WriteRune(rune(r))
		return 5, nil
	case 'x':
		if len(s) < 3 {
			return 0, fmt.Errorf("bad hex escape")
		}
		r, err := strconv.ParseUint(s[1:3], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("bad hex escape")
		}
		sb.WriteRune(rune(r))
		return 3, nil
	case '\n':
	default:
		r, n := utf8.DecodeRuneInString(s)
		if !unicode.IsPrint(r) && r != '\\' {
			return 0, fmt.Errorf("bad escape")
		}
		sb.WriteRune(r)
		return n, nil
	}
	return 1, nil
}
