package expr

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Frame is one level of the scope chain. *reactive.Object satisfies it.
type Frame interface {
	Lookup(key string) (any, bool)
	Set(key string, v any)
}

// Member lets host values expose properties to expressions.
type Member interface {
	GetMember(name string) (any, bool)
	SetMember(name string, v any) bool
}

// ContextFunc is a host function that needs the evaluation context.
type ContextFunc func(ctx context.Context, args ...any) any

// Scope is the identifier lookup chain: Extra, Data, Env, Globals, the
// built-in host globals, then process globals. Assignments to free
// identifiers always write Data.
type Scope struct {
	Extra   map[string]any
	Data    Frame
	Env     Frame
	Globals map[string]any
	Logger  *slog.Logger
}

func (s *Scope) logger() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Lookup resolves a free identifier.
func (s *Scope) Lookup(name string) (any, bool) {
	if s == nil {
		return lookupGlobal(name)
	}
	switch name {
	case "$data":
		if s.Data != nil {
			return s.Data, true
		}
	case "$env":
		if s.Env != nil {
			return s.Env, true
		}
	}
	if v, ok := s.Extra[name]; ok {
		return v, true
	}
	if s.Data != nil {
		if v, ok := s.Data.Lookup(name); ok {
			return v, true
		}
	}
	if s.Env != nil {
		if v, ok := s.Env.Lookup(name); ok {
			return v, true
		}
	}
	if v, ok := s.Globals[name]; ok {
		return v, true
	}
	return lookupGlobal(name)
}

// RuntimeError is an evaluation failure.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return e.Msg }

// ThrownError carries a value raised by a throw statement.
type ThrownError struct {
	Value any
}

func (e *ThrownError) Error() string {
	if m, ok := e.Value.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok {
			return msg
		}
	}
	return "uncaught " + ToString(e.Value)
}

type interp struct {
	ctx   context.Context
	scope *Scope
}

func (in *interp) throw(format string, args ...any) {
	panic(&RuntimeError{Msg: fmt.Sprintf(format, args...)})
}

type binding struct {
	v        any
	constant bool
}

type env struct {
	vars   map[string]*binding
	parent *env
}

func newEnv(parent *env) *env {
	return &env{parent: parent}
}

func (e *env) find(name string) *binding {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b
		}
	}
	return nil
}

func (e *env) declare(name string, v any, constant bool) {
	if e.vars == nil {
		e.vars = map[string]*binding{}
	}
	e.vars[name] = &binding{v: v, constant: constant}
}

// Func is a closure created by a function or arrow expression.
type Func struct {
	name    string
	fn      *funcExpr
	closure *env
	in      *interp
}

func (f *Func) Name() string { return f.name }

// Call invokes f from host code. Failures are logged and yield nil.
func (f *Func) Call(args ...any) any {
	v, err := f.Invoke(args...)
	if err != nil {
		f.in.scope.logger().Error("function call failed", "func", f.name, "err", err)
		return nil
	}
	return v
}

// Invoke invokes f from host code and returns failures.
func (f *Func) Invoke(args ...any) (v any, err error) {
	defer recoverError(&err)
	return f.call(args), nil
}

func (f *Func) call(args []any) any {
	e := newEnv(f.closure)
	for i, p := range f.fn.params {
		var v any
		if p.rest {
			rest := []any{}
			if i < len(args) {
				rest = append(rest, args[i:]...)
			}
			v = rest
		} else if i < len(args) {
			v = args[i]
		}
		if v == nil && p.def != nil {
			v = p.def.eval(f.in, e)
		}
		f.in.bind(e, p.name, p.pattern, v, false)
	}
	if f.fn.body != nil {
		return f.fn.body.eval(f.in, e)
	}
	hoist(f.in, e, f.fn.block.list)
	fl, v := execList(f.in, e, f.fn.block.list)
	if fl == flowReturn {
		return v
	}
	return nil
}

func recoverError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	switch x := r.(type) {
	case *RuntimeError:
		*err = x
	case *ThrownError:
		*err = x
	case error:
		*err = &RuntimeError{Msg: x.Error()}
	default:
		*err = &RuntimeError{Msg: fmt.Sprint(x)}
	}
}

func (in *interp) bind(e *env, name string, pt *pattern, v any, constant bool) {
	if pt == nil {
		e.declare(name, v, constant)
		return
	}
	if pt.object {
		used := map[string]bool{}
		for i, key := range pt.keys {
			used[key] = true
			var val any
			if v != nil {
				val = in.member(v, key)
			}
			e.declare(pt.names[i], val, constant)
		}
		if pt.rest != "" {
			rest := map[string]any{}
			for _, k := range keysOf(v) {
				if !used[k] {
					rest[k] = in.member(v, k)
				}
			}
			e.declare(pt.rest, rest, constant)
		}
		return
	}
	items := in.iterate(v)
	for i, name := range pt.names {
		if name == "" {
			continue
		}
		var val any
		if i < len(items) {
			val = items[i]
		}
		e.declare(name, val, constant)
	}
	if pt.rest != "" {
		rest := []any{}
		if len(pt.names) < len(items) {
			rest = append(rest, items[len(pt.names):]...)
		}
		e.declare(pt.rest, rest, constant)
	}
}

func (in *interp) lookup(e *env, name string) any {
	if b := e.find(name); b != nil {
		return b.v
	}
	v, _ := in.scope.Lookup(name)
	return v
}

func (in *interp) assign(e *env, name string, v any) {
	if b := e.find(name); b != nil {
		if b.constant {
			in.throw("assignment to constant variable %q", name)
		}
		b.v = v
		return
	}
	if in.scope == nil || in.scope.Data == nil {
		in.throw("cannot assign %q: no data scope", name)
	}
	in.scope.Data.Set(name, v)
}

func hoist(in *interp, e *env, list []stmt) {
	for _, s := range list {
		if fd, ok := s.(*funcDecl); ok {
			e.declare(fd.fn.name, &Func{name: fd.fn.name, fn: fd.fn, closure: e, in: in}, false)
		}
	}
}

func execList(in *interp, e *env, list []stmt) (flow, any) {
	var last any
	for _, s := range list {
		fl, v := s.exec(in, e)
		if fl != flowNext {
			return fl, v
		}
		last = v
	}
	return flowNext, last
}

// expressions

func (x *litExpr) eval(in *interp, e *env) any   { return x.v }
func (x *identExpr) eval(in *interp, e *env) any { return in.lookup(e, x.name) }

func (x *templateExpr) eval(in *interp, e *env) any {
	var sb strings.Builder
	for i, q := range x.quasis {
		sb.WriteString(q)
		if i < len(x.exprs) {
			sb.WriteString(ToString(x.exprs[i].eval(in, e)))
		}
	}
	return sb.String()
}

func (x *arrayExpr) eval(in *interp, e *env) any {
	out := make([]any, 0, len(x.elems))
	for i, el := range x.elems {
		v := el.eval(in, e)
		if x.spread[i] {
			out = append(out, in.iterate(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (x *objectExpr) eval(in *interp, e *env) any {
	out := map[string]any{}
	for _, p := range x.props {
		switch {
		case p.spread:
			v := p.value.eval(in, e)
			for _, k := range keysOf(v) {
				out[k] = in.member(v, k)
			}
		case p.computed != nil:
			out[propKey(p.computed.eval(in, e))] = p.value.eval(in, e)
		default:
			out[p.key] = p.value.eval(in, e)
		}
	}
	return out
}

func propKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ToString(v)
}

func (x *memberExpr) key(in *interp, e *env) string {
	if x.index == nil {
		return x.name
	}
	return propKey(x.index.eval(in, e))
}

func (x *memberExpr) eval(in *interp, e *env) any {
	obj := x.obj.eval(in, e)
	if obj == nil && x.optional {
		return nil
	}
	return in.member(obj, x.key(in, e))
}

func (x *callExpr) eval(in *interp, e *env) any {
	if m, ok := x.callee.(*memberExpr); ok {
		obj := m.obj.eval(in, e)
		if obj == nil && m.optional {
			return nil
		}
		name := m.key(in, e)
		args := in.args(e, x.args, x.spread)
		if list, ok := plainList(obj); ok && mutatingMethods[name] {
			out, res := in.mutateList(list, name, args)
			in.store(e, m.obj, out)
			return res
		}
		fn := in.member(obj, name)
		if fn == nil && x.optional {
			return nil
		}
		if fn == nil {
			in.throw("%s is not a function", name)
		}
		return in.call(fn, args)
	}
	fn := x.callee.eval(in, e)
	if fn == nil && x.optional {
		return nil
	}
	return in.call(fn, in.args(e, x.args, x.spread))
}

func (in *interp) args(e *env, exprs []expr, spread []bool) []any {
	out := make([]any, 0, len(exprs))
	for i, a := range exprs {
		v := a.eval(in, e)
		if spread[i] {
			out = append(out, in.iterate(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// store writes v to the location named by target when it is assignable.
func (in *interp) store(e *env, target expr, v any) {
	switch t := target.(type) {
	case *identExpr:
		in.assign(e, t.name, v)
	case *memberExpr:
		obj := t.obj.eval(in, e)
		in.setMember(obj, t.key(in, e), v)
	}
}

func (x *newExpr) eval(in *interp, e *env) any {
	fn := x.callee.eval(in, e)
	args := make([]any, len(x.args))
	for i, a := range x.args {
		args[i] = a.eval(in, e)
	}
	if c, ok := fn.(constructor); ok {
		return c.construct(args)
	}
	return in.call(fn, args)
}

func (x *funcExpr) eval(in *interp, e *env) any {
	return &Func{name: x.name, fn: x, closure: e, in: in}
}

func (x *unaryExpr) eval(in *interp, e *env) any {
	switch x.op {
	case "delete":
		if m, ok := x.x.(*memberExpr); ok {
			in.deleteMember(m.obj.eval(in, e), m.key(in, e))
		}
		return true
	case "typeof":
		return TypeOf(x.x.eval(in, e))
	}
	v := x.x.eval(in, e)
	switch x.op {
	case "!":
		return !Truthy(v)
	case "-":
		return -ToNumber(v)
	case "+":
		return ToNumber(v)
	case "void":
		return nil
	}
	in.throw("unknown operator %s", x.op)
	return nil
}

func (x *updateExpr) eval(in *interp, e *env) any {
	old := ToNumber(x.target.eval(in, e))
	next := old + 1
	if x.op == "--" {
		next = old - 1
	}
	in.store(e, x.target, next)
	if x.prefix {
		return next
	}
	return old
}

func (x *binaryExpr) eval(in *interp, e *env) any {
	l := x.l.eval(in, e)
	r := x.r.eval(in, e)
	return in.binary(x.op, l, r)
}

func (in *interp) binary(op string, l, r any) any {
	switch op {
	case ",":
		return r
	case "+":
		if stringish(l) || stringish(r) {
			return ToString(l) + ToString(r)
		}
		return ToNumber(l) + ToNumber(r)
	case "-":
		return ToNumber(l) - ToNumber(r)
	case "*":
		return ToNumber(l) * ToNumber(r)
	case "/":
		return ToNumber(l) / ToNumber(r)
	case "%":
		return math.Mod(ToNumber(l), ToNumber(r))
	case "**":
		return math.Pow(ToNumber(l), ToNumber(r))
	case "==":
		return Equal(l, r)
	case "!=":
		return !Equal(l, r)
	case "===":
		return StrictEqual(l, r)
	case "!==":
		return !StrictEqual(l, r)
	case "<", ">", "<=", ">=":
		return compare(op, l, r)
	case "in":
		return hasKey(r, propKey(l))
	case "instanceof":
		return instanceOf(l, r)
	}
	in.throw("unknown operator %s", op)
	return nil
}

func stringish(v any) bool {
	if _, ok := numeric(v); ok {
		return false
	}
	switch v.(type) {
	case nil, bool:
		return false
	}
	return true
}

func compare(op string, l, r any) bool {
	ls, lok := l.(string)
	rs, rok := r.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case ">":
			return ls > rs
		case "<=":
			return ls <= rs
		default:
			return ls >= rs
		}
	}
	a, b := ToNumber(l), ToNumber(r)
	switch op {
	case "<":
		return a < b
	case ">":
		return a > b
	case "<=":
		return a <= b
	default:
		return a >= b
	}
}

func (x *logicalExpr) eval(in *interp, e *env) any {
	l := x.l.eval(in, e)
	switch x.op {
	case "&&":
		if !Truthy(l) {
			return l
		}
	case "||":
		if Truthy(l) {
			return l
		}
	case "??":
		if l != nil {
			return l
		}
	}
	return x.r.eval(in, e)
}

func (x *condExpr) eval(in *interp, e *env) any {
	if Truthy(x.test.eval(in, e)) {
		return x.then.eval(in, e)
	}
	return x.els.eval(in, e)
}

func (x *assignExpr) eval(in *interp, e *env) any {
	var v any
	switch x.op {
	case "=":
		v = x.value.eval(in, e)
	case "??=", "||=", "&&=":
		cur := x.target.eval(in, e)
		switch {
		case x.op == "??=" && cur != nil,
			x.op == "||=" && Truthy(cur),
			x.op == "&&=" && !Truthy(cur):
			return cur
		}
		v = x.value.eval(in, e)
	default:
		cur := x.target.eval(in, e)
		v = in.binary(strings.TrimSuffix(x.op, "="), cur, x.value.eval(in, e))
	}
	in.store(e, x.target, v)
	return v
}

func (x *awaitExpr) eval(in *interp, e *env) any {
	v := x.x.eval(in, e)
	if a, ok := v.(Awaitable); ok {
		res, err := a.Await(in.ctx)
		if err != nil {
			panic(&ThrownError{Value: errorValue(err)})
		}
		return res
	}
	return v
}

// Awaitable is a host value whose result is produced by await.
type Awaitable interface {
	Await(ctx context.Context) (any, error)
}

func errorValue(err error) any {
	if t, ok := err.(*ThrownError); ok {
		return t.Value
	}
	return map[string]any{"name": "Error", "message": err.Error()}
}

// statements

func (s *exprStmt) exec(in *interp, e *env) (flow, any) {
	return flowNext, s.x.eval(in, e)
}

func (s *varStmt) exec(in *interp, e *env) (flow, any) {
	for _, d := range s.decls {
		var v any
		if d.init != nil {
			v = d.init.eval(in, e)
		}
		in.bind(e, d.name, d.pattern, v, s.kind == "const")
	}
	return flowNext, nil
}

func (s *returnStmt) exec(in *interp, e *env) (flow, any) {
	if s.x == nil {
		return flowReturn, nil
	}
	return flowReturn, s.x.eval(in, e)
}

func (s *ifStmt) exec(in *interp, e *env) (flow, any) {
	if Truthy(s.test.eval(in, e)) {
		return s.then.exec(in, e)
	}
	if s.els != nil {
		return s.els.exec(in, e)
	}
	return flowNext, nil
}

func (s *forOfStmt) exec(in *interp, e *env) (flow, any) {
	v := s.iter.eval(in, e)
	var items []any
	if s.in {
		for _, k := range keysOf(v) {
			items = append(items, k)
		}
	} else {
		items = in.iterate(v)
	}
	for _, it := range items {
		le := newEnv(e)
		in.bind(le, s.name, s.pattern, it, s.kind == "const")
		fl, rv := s.body.exec(in, le)
		switch fl {
		case flowReturn:
			return fl, rv
		case flowBreak:
			return flowNext, nil
		}
	}
	return flowNext, nil
}

func (s *forStmt) exec(in *interp, e *env) (flow, any) {
	le := newEnv(e)
	if s.init != nil {
		s.init.exec(in, le)
	}
	for s.test == nil || Truthy(s.test.eval(in, le)) {
		if err := in.ctx.Err(); err != nil {
			panic(&RuntimeError{Msg: err.Error()})
		}
		fl, rv := s.body.exec(in, newEnv(le))
		switch fl {
		case flowReturn:
			return fl, rv
		case flowBreak:
			return flowNext, nil
		}
		if s.update != nil {
			s.update.eval(in, le)
		}
	}
	return flowNext, nil
}

func (s *whileStmt) exec(in *interp, e *env) (flow, any) {
	for Truthy(s.test.eval(in, e)) {
		if err := in.ctx.Err(); err != nil {
			panic(&RuntimeError{Msg: err.Error()})
		}
		fl, rv := s.body.exec(in, newEnv(e))
		switch fl {
		case flowReturn:
			return fl, rv
		case flowBreak:
			return flowNext, nil
		}
	}
	return flowNext, nil
}

func (s *blockStmt) exec(in *interp, e *env) (flow, any) {
	be := newEnv(e)
	hoist(in, be, s.list)
	fl, v := execList(in, be, s.list)
	return fl, v
}

func (breakStmt) exec(in *interp, e *env) (flow, any)    { return flowBreak, nil }
func (continueStmt) exec(in *interp, e *env) (flow, any) { return flowContinue, nil }
func (emptyStmt) exec(in *interp, e *env) (flow, any)    { return flowNext, nil }
func (s *funcDecl) exec(in *interp, e *env) (flow, any)  { return flowNext, nil }

func (s *throwStmt) exec(in *interp, e *env) (flow, any) {
	panic(&ThrownError{Value: s.x.eval(in, e)})
}

func (s *tryStmt) exec(in *interp, e *env) (fl flow, v any) {
	if s.finalize != nil {
		defer func() {
			ffl, fv := s.finalize.exec(in, e)
			if ffl != flowNext {
				fl, v = ffl, fv
			}
		}()
	}
	if s.handler == nil {
		return s.block.exec(in, e)
	}
	var caught error
	fl, v = func() (fl flow, v any) {
		defer recoverError(&caught)
		return s.block.exec(in, e)
	}()
	if caught == nil {
		return fl, v
	}
	he := newEnv(e)
	if s.param != "" {
		he.declare(s.param, errorValue(caught), false)
	}
	return s.handler.exec(in, he)
}

// Program is a compiled snippet.
type Program struct {
	src      string
	body     []stmt
	implicit bool
}

// Compile parses code. Code without a line break whose statements are all
// expressions evaluates to the value of the last one.
func Compile(code string) (*Program, error) {
	body, err := parseProgram(code)
	if err != nil {
		return nil, err
	}
	p := &Program{src: code, body: body}
	if !strings.Contains(strings.TrimSpace(code), "\n") {
		p.implicit = true
		for _, s := range body {
			if _, ok := s.(*exprStmt); !ok {
				if _, empty := s.(emptyStmt); !empty {
					p.implicit = false
				}
			}
		}
	}
	return p, nil
}

func (p *Program) Source() string { return p.src }

func (p *Program) Eval(scope *Scope) (any, error) {
	return p.EvalContext(context.Background(), scope)
}

func (p *Program) EvalContext(ctx context.Context, scope *Scope) (v any, err error) {
	defer recoverError(&err)
	in := &interp{ctx: ctx, scope: scope}
	e := newEnv(nil)
	hoist(in, e, p.body)
	fl, last := execList(in, e, p.body)
	if fl == flowReturn || p.implicit {
		return last, nil
	}
	return nil, nil
}

// Run compiles and evaluates code. Failures are logged with the source
// and yield nil.
func Run(code string, scope *Scope) any {
	v, err := RunAsync(context.Background(), code, scope)
	if err != nil {
		scope.logger().Error("expression failed", "code", code, "err", err)
		return nil
	}
	return v
}

// RunAsync is Run for contexts that can wait on host calls; failures are
// returned.
func RunAsync(ctx context.Context, code string, scope *Scope) (any, error) {
	p, err := Compile(code)
	if err != nil {
		return nil, err
	}
	return p.EvalContext(ctx, scope)
}

func (in *interp) call(fn any, args []any) any {
	switch f := fn.(type) {
	case *Func:
		return f.call(args)
	case func(...any) any:
		return f(args...)
	case ContextFunc:
		return f(in.ctx, args...)
	case func():
		f()
		return nil
	case *global:
		if f.call == nil {
			in.throw("%s is not a function", f.name)
		}
		return f.call(args...)
	case nil:
		in.throw("value is not a function")
	}
	return in.reflectCall(fn, args)
}

// Call invokes any callable value with args from host code.
func Call(fn any, args ...any) (v any, err error) {
	defer recoverError(&err)
	in := &interp{ctx: context.Background()}
	if f, ok := fn.(*Func); ok {
		in = f.in
	}
	return in.call(fn, args), nil
}

// Module is the export set of a loaded module; a default export is stored
// under "default".
type Module map[string]any

// EvalModule runs src and returns its top-level bindings as exports.
func EvalModule(ctx context.Context, src string, scope *Scope) (m Module, err error) {
	body, err := parseProgram(src)
	if err != nil {
		return nil, err
	}
	defer recoverError(&err)
	in := &interp{ctx: ctx, scope: scope}
	e := newEnv(nil)
	hoist(in, e, body)
	execList(in, e, body)
	m = Module{}
	for k, b := range e.vars {
		m[k] = b.v
	}
	return m, nil
}
