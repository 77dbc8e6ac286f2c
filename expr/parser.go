package expr

import (
	"fmt"
	"strings"
)

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(s string) bool { return p.peek().is(tPunct, s) }
func (p *parser) isWord(s string) bool  { return p.peek().is(tIdent, s) }

func (p *parser) accept(s string) bool {
	if p.isPunct(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(s string) {
	if !p.accept(s) {
		p.fail("expected %q, found %s", s, p.peek())
	}
}

func (p *parser) fail(format string, args ...any) {
	panic(&SyntaxError{Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) ident() string {
	t := p.next()
	if t.kind != tIdent {
		p.pos--
		p.fail("expected identifier, found %s", t)
	}
	return t.text
}

// parseProgram parses src as a statement list.
func parseProgram(src string) (list []stmt, err error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			list, err = nil, se
		}
	}()
	for p.peek().kind != tEOF {
		list = append(list, p.statement())
	}
	return list, nil
}

// parseExpression parses src as exactly one expression.
func parseExpression(src string) (x expr, err error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			x, err = nil, se
		}
	}()
	x = p.expression()
	if p.peek().kind != tEOF {
		p.fail("unexpected %s", p.peek())
	}
	return x, nil
}

func (p *parser) endStatement() {
	if p.accept(";") {
		return
	}
	t := p.peek()
	if t.kind == tEOF || t.nl || t.is(tPunct, "}") {
		return
	}
	p.fail("unexpected %s", t)
}

func (p *parser) statement() stmt {
	t := p.peek()
	if t.kind == tPunct {
		switch t.text {
		case "{":
			return p.block()
		case ";":
			p.next()
			return emptyStmt{}
		}
	}
	if t.kind == tIdent {
		switch t.text {
		case "let", "const", "var":
			s := p.varStatement()
			p.endStatement()
			return s
		case "return":
			p.next()
			var x expr
			n := p.peek()
			if !(n.kind == tEOF || n.nl || n.is(tPunct, ";") || n.is(tPunct, "}")) {
				x = p.expression()
			}
			p.endStatement()
			return &returnStmt{x: x}
		case "if":
			p.next()
			p.expect("(")
			test := p.expression()
			p.expect(")")
			s := &ifStmt{test: test, then: p.statement()}
			if p.isWord("else") {
				p.next()
				s.els = p.statement()
			}
			return s
		case "for":
			return p.forStatement()
		case "while":
			p.next()
			p.expect("(")
			test := p.expression()
			p.expect(")")
			return &whileStmt{test: test, body: p.statement()}
		case "break":
			p.next()
			p.endStatement()
			return breakStmt{}
		case "continue":
			p.next()
			p.endStatement()
			return continueStmt{}
		case "throw":
			p.next()
			x := p.expression()
			p.endStatement()
			return &throwStmt{x: x}
		case "try":
			return p.tryStatement()
		case "function":
			fn := p.function()
			return &funcDecl{fn: fn}
		case "async":
			if p.peekAt(1).is(tIdent, "function") {
				p.next()
				fn := p.function()
				return &funcDecl{fn: fn}
			}
		case "export":
			// export const x = 1 and export function f() declare locally;
			// export default binds "default"
			p.next()
			if p.isWord("default") {
				p.next()
				x := p.assignment()
				p.endStatement()
				return &varStmt{kind: "const", decls: []varDecl{{name: "default", init: x}}}
			}
			return p.statement()
		}
	}
	x := p.expression()
	p.endStatement()
	return &exprStmt{x: x}
}

func (p *parser) block() *blockStmt {
	p.expect("{")
	b := &blockStmt{}
	for !p.isPunct("}") {
		if p.peek().kind == tEOF {
			p.fail("unterminated block")
		}
		b.list = append(b.list, p.statement())
	}
	p.next()
	return b
}

func (p *parser) varStatement() *varStmt {
	s := &varStmt{kind: p.next().text}
	for {
		var d varDecl
		if p.isPunct("{") || p.isPunct("[") {
			d.pattern = p.pattern()
		} else {
			d.name = p.ident()
		}
		if p.accept("=") {
			d.init = p.assignment()
		}
		s.decls = append(s.decls, d)
		if !p.accept(",") {
			return s
		}
	}
}

func (p *parser) pattern() *pattern {
	pt := &pattern{}
	closer := "]"
	if p.accept("{") {
		pt.object = true
		closer = "}"
	} else {
		p.expect("[")
	}
	for !p.isPunct(closer) {
		if p.accept("...") {
			pt.rest = p.ident()
		} else if !pt.object && p.isPunct(",") {
			pt.names = append(pt.names, "")
			pt.keys = append(pt.keys, "")
		} else {
			key := p.ident()
			name := key
			if pt.object && p.accept(":") {
				name = p.ident()
			}
			pt.keys = append(pt.keys, key)
			pt.names = append(pt.names, name)
		}
		if !p.accept(",") {
			break
		}
	}
	p.expect(closer)
	return pt
}

func (p *parser) forStatement() stmt {
	p.next()
	if p.isWord("await") {
		p.next()
	}
	p.expect("(")
	save := p.pos
	if p.isWord("let") || p.isWord("const") || p.isWord("var") {
		kind := p.next().text
		var name string
		var pt *pattern
		if p.isPunct("{") || p.isPunct("[") {
			pt = p.pattern()
		} else {
			name = p.ident()
		}
		if p.isWord("of") || p.isWord("in") {
			in := p.next().text == "in"
			iter := p.expression()
			p.expect(")")
			return &forOfStmt{kind: kind, name: name, pattern: pt, in: in, iter: iter, body: p.statement()}
		}
		p.pos = save
	}
	s := &forStmt{}
	if !p.isPunct(";") {
		if p.isWord("let") || p.isWord("const") || p.isWord("var") {
			s.init = p.varStatement()
		} else {
			s.init = &exprStmt{x: p.expression()}
		}
	}
	p.expect(";")
	if !p.isPunct(";") {
		s.test = p.expression()
	}
	p.expect(";")
	if !p.isPunct(")") {
		s.update = p.expression()
	}
	p.expect(")")
	s.body = p.statement()
	return s
}

func (p *parser) tryStatement() stmt {
	p.next()
	s := &tryStmt{block: p.block()}
	if p.isWord("catch") {
		p.next()
		if p.accept("(") {
			s.param = p.ident()
			p.expect(")")
		}
		s.handler = p.block()
	}
	if p.isWord("finally") {
		p.next()
		s.finalize = p.block()
	}
	if s.handler == nil && s.finalize == nil {
		p.fail("try without catch or finally")
	}
	return s
}

func (p *parser) function() *funcExpr {
	p.next() // function
	fn := &funcExpr{}
	if p.peek().kind == tIdent {
		fn.name = p.next().text
	}
	fn.params = p.params()
	fn.block = p.block()
	return fn
}

func (p *parser) params() []param {
	p.expect("(")
	var out []param
	for !p.isPunct(")") {
		var pr param
		if p.accept("...") {
			pr.rest = true
		}
		if p.isPunct("{") || p.isPunct("[") {
			pr.pattern = p.pattern()
		} else {
			pr.name = p.ident()
		}
		if p.accept("=") {
			pr.def = p.assignment()
		}
		out = append(out, pr)
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return out
}

func (p *parser) expression() expr {
	return p.assignment()
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"??=": true, "||=": true, "&&=": true,
}

func (p *parser) assignment() expr {
	if arrow := p.tryArrow(); arrow != nil {
		return arrow
	}
	x := p.conditional()
	t := p.peek()
	if t.kind == tPunct && assignOps[t.text] {
		switch x.(type) {
		case *identExpr, *memberExpr:
		default:
			p.fail("invalid assignment target")
		}
		p.next()
		return &assignExpr{op: t.text, target: x, value: p.assignment()}
	}
	return x
}

// tryArrow parses an arrow function when one starts here.
func (p *parser) tryArrow() expr {
	start := p.pos
	if p.isWord("async") && (p.peekAt(1).kind == tIdent || p.peekAt(1).is(tPunct, "(")) && !p.peekAt(1).nl {
		p.next()
		if a := p.tryArrow(); a != nil {
			return a
		}
		p.pos = start
		return nil
	}
	t := p.peek()
	if t.kind == tIdent && p.peekAt(1).is(tPunct, "=>") {
		p.next()
		p.next()
		return p.arrowBody([]param{{name: t.text}})
	}
	if !t.is(tPunct, "(") {
		return nil
	}
	depth := 0
	i := p.pos
	for ; i < len(p.toks); i++ {
		tk := p.toks[i]
		if tk.kind == tEOF {
			return nil
		}
		if tk.kind != tPunct {
			continue
		}
		switch tk.text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
		}
		if depth == 0 {
			break
		}
	}
	if i+1 >= len(p.toks) || !p.toks[i+1].is(tPunct, "=>") {
		return nil
	}
	params := p.params()
	p.expect("=>")
	return p.arrowBody(params)
}

func (p *parser) arrowBody(params []param) expr {
	fn := &funcExpr{params: params}
	if p.isPunct("{") {
		fn.block = p.block()
	} else {
		fn.body = p.assignment()
	}
	return fn
}

func (p *parser) conditional() expr {
	x := p.binary(1)
	if !p.accept("?") {
		return x
	}
	then := p.assignment()
	p.expect(":")
	return &condExpr{test: x, then: then, els: p.assignment()}
}

var binPrec = map[string]int{
	"??": 1,
	"||": 2,
	"&&": 3,
	"==": 6, "!=": 6, "===": 6, "!==": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7, "in": 7, "instanceof": 7,
	"+": 8, "-": 8,
	"*": 9, "/": 9, "%": 9,
	"**": 10,
}

func (p *parser) binaryOp() (string, int) {
	t := p.peek()
	if t.kind == tPunct || (t.kind == tIdent && (t.text == "in" || t.text == "instanceof")) {
		if prec, ok := binPrec[t.text]; ok {
			return t.text, prec
		}
	}
	return "", 0
}

func (p *parser) binary(min int) expr {
	x := p.unary()
	for {
		op, prec := p.binaryOp()
		if prec == 0 || prec < min {
			return x
		}
		p.next()
		next := prec + 1
		if op == "**" {
			next = prec
		}
		r := p.binary(next)
		switch op {
		case "&&", "||", "??":
			x = &logicalExpr{op: op, l: x, r: r}
		default:
			x = &binaryExpr{op: op, l: x, r: r}
		}
	}
}

func (p *parser) unary() expr {
	t := p.peek()
	if t.kind == tPunct {
		switch t.text {
		case "!", "-", "+":
			p.next()
			return &unaryExpr{op: t.text, x: p.unary()}
		case "++", "--":
			p.next()
			return &updateExpr{op: t.text, prefix: true, target: p.unary()}
		}
	}
	if t.kind == tIdent {
		switch t.text {
		case "typeof", "void", "delete":
			p.next()
			return &unaryExpr{op: t.text, x: p.unary()}
		case "await":
			p.next()
			return &awaitExpr{x: p.unary()}
		}
	}
	return p.postfix()
}

func (p *parser) postfix() expr {
	x := p.callMember()
	t := p.peek()
	if t.kind == tPunct && (t.text == "++" || t.text == "--") && !t.nl {
		p.next()
		return &updateExpr{op: t.text, target: x}
	}
	return x
}

func (p *parser) callMember() expr {
	var x expr
	if p.isWord("new") {
		p.next()
		callee := p.primary()
		for p.isPunct(".") {
			p.next()
			callee = &memberExpr{obj: callee, name: p.propName()}
		}
		var args []expr
		if p.isPunct("(") {
			args, _ = p.arguments()
		}
		x = &newExpr{callee: callee, args: args}
	} else {
		x = p.primary()
	}
	for {
		t := p.peek()
		switch {
		case t.is(tPunct, "."):
			p.next()
			x = &memberExpr{obj: x, name: p.propName()}
		case t.is(tPunct, "?."):
			p.next()
			switch {
			case p.isPunct("("):
				args, spread := p.arguments()
				x = &callExpr{callee: x, args: args, spread: spread, optional: true}
			case p.isPunct("["):
				p.next()
				idx := p.expression()
				p.expect("]")
				x = &memberExpr{obj: x, index: idx, optional: true}
			default:
				x = &memberExpr{obj: x, name: p.propName(), optional: true}
			}
		case t.is(tPunct, "["):
			p.next()
			idx := p.expression()
			p.expect("]")
			x = &memberExpr{obj: x, index: idx}
		case t.is(tPunct, "("):
			args, spread := p.arguments()
			x = &callExpr{callee: x, args: args, spread: spread}
		case t.kind == tTemplate:
			// tagged templates are not supported
			p.fail("unexpected template string")
		default:
			return x
		}
	}
}

func (p *parser) propName() string {
	t := p.next()
	if t.kind != tIdent {
		p.pos--
		p.fail("expected property name, found %s", t)
	}
	return t.text
}

func (p *parser) arguments() ([]expr, []bool) {
	p.expect("(")
	var args []expr
	var spread []bool
	for !p.isPunct(")") {
		s := p.accept("...")
		args = append(args, p.assignment())
		spread = append(spread, s)
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return args, spread
}

func (p *parser) primary() expr {
	t := p.next()
	switch t.kind {
	case tNumber:
		return &litExpr{v: t.num}
	case tString:
		return &litExpr{v: t.text}
	case tTemplate:
		return p.template(t)
	case tIdent:
		switch t.text {
		case "true":
			return &litExpr{v: true}
		case "false":
			return &litExpr{v: false}
		case "null", "undefined":
			return &litExpr{v: nil}
		case "function":
			p.pos--
			return p.function()
		case "async":
			if p.isWord("function") {
				return p.function()
			}
		}
		return &identExpr{name: t.text}
	case tPunct:
		switch t.text {
		case "(":
			x := p.expression()
			for p.accept(",") {
				x = &binaryExpr{op: ",", l: x, r: p.assignment()}
			}
			p.expect(")")
			return x
		case "[":
			a := &arrayExpr{}
			for !p.isPunct("]") {
				if p.isPunct(",") {
					p.next()
					a.elems = append(a.elems, &litExpr{})
					a.spread = append(a.spread, false)
					continue
				}
				s := p.accept("...")
				a.elems = append(a.elems, p.assignment())
				a.spread = append(a.spread, s)
				if !p.accept(",") {
					break
				}
			}
			p.expect("]")
			return a
		case "{":
			return p.object()
		}
	}
	p.pos--
	p.fail("unexpected %s", t)
	return nil
}

func (p *parser) object() expr {
	o := &objectExpr{}
	for !p.isPunct("}") {
		var prop objectProp
		switch t := p.peek(); {
		case t.is(tPunct, "..."):
			p.next()
			prop.spread = true
			prop.value = p.assignment()
		case t.is(tPunct, "["):
			p.next()
			prop.computed = p.assignment()
			p.expect("]")
			p.expect(":")
			prop.value = p.assignment()
		case t.kind == tIdent || t.kind == tString || t.kind == tNumber:
			p.next()
			prop.key = t.text
			if t.kind == tNumber {
				prop.key = formatNumber(t.num)
			}
			switch {
			case p.accept(":"):
				prop.value = p.assignment()
			case p.isPunct("("):
				fn := &funcExpr{name: prop.key, params: p.params()}
				fn.block = p.block()
				prop.value = fn
			default:
				if t.kind != tIdent {
					p.fail("expected ':' after %s", t)
				}
				prop.value = &identExpr{name: t.text}
			}
		default:
			p.fail("unexpected %s in object literal", t)
		}
		o.props = append(o.props, prop)
		if !p.accept(",") {
			break
		}
	}
	p.expect("}")
	return o
}

// template splits a template string into literal parts and embedded
// expressions.
func (p *parser) template(t token) expr {
	src := t.text
	te := &templateExpr{}
	var sb strings.Builder
	i := 0
	for i < len(src) {
		c := src[i]
		if c == '\\' && i+1 < len(src) {
			n, err := unescape(src[i+1:], &sb)
			if err != nil {
				panic(&SyntaxError{Pos: t.pos + i, Msg: err.Error()})
			}
			i += 1 + n
			continue
		}
		if strings.HasPrefix(src[i:], "${") {
			depth := 1
			j := i + 2
			for ; j < len(src) && depth > 0; j++ {
				switch src[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
			}
			if depth != 0 {
				panic(&SyntaxError{Pos: t.pos + i, Msg: "unterminated template expression"})
			}
			inner, err := parseExpression(src[i+2 : j-1])
			if err != nil {
				if se, ok := err.(*SyntaxError); ok {
					se.Pos += t.pos + i + 2
					panic(se)
				}
				panic(&SyntaxError{Pos: t.pos + i, Msg: err.Error()})
			}
			te.quasis = append(te.quasis, sb.String())
			sb.Reset()
			te.exprs = append(te.exprs, inner)
			i = j
			continue
		}
		sb.WriteByte(c)
		i++
	}
	te.quasis = append(te.quasis, sb.String())
	return te
}
