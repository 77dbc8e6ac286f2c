// Package script runs component setup and mount scripts written in Risor.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/delaneyj/vyes/expr"
	"github.com/delaneyj/vyes/reactive"
	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
)

// Lang is the value of the lang attribute selecting this engine.
const Lang = "risor"

// Bindings connect a script to the component it runs for.
type Bindings struct {
	Data expr.Frame
	Env  expr.Frame
	Emit func(name string, args ...any)
}

type Engine struct {
	logger  *slog.Logger
	globals map[string]any
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithGlobals adds Risor globals to every run.
func WithGlobals(g map[string]any) Option {
	return func(e *Engine) {
		for k, v := range g {
			e.globals[k] = v
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default(), globals: map[string]any{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes src with the host builtins get, put, env, emit and log
// bound to b, and returns the value of the last expression.
func (e *Engine) Run(ctx context.Context, src string, b Bindings) (any, error) {
	var opts []risor.Option
	for name, v := range e.globals {
		opts = append(opts, risor.WithGlobal(name, v))
	}
	for name, v := range e.builtins(b) {
		opts = append(opts, risor.WithGlobal(name, v))
	}
	res, err := risor.Eval(ctx, src, opts...)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return FromObject(res), nil
}

func (e *Engine) builtins(b Bindings) map[string]any {
	lookup := func(f expr.Frame, name string) *object.Builtin {
		return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError(name, 1, len(args))
			}
			key, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("%s: key must be a string, got %s", name, args[0].Type())
			}
			if f == nil {
				return object.Nil
			}
			v, _ := f.Lookup(key.Value())
			return ToObject(reactive.Plain(v))
		})
	}
	return map[string]any{
		"get": lookup(b.Data, "get"),
		"env": lookup(b.Env, "env"),
		"put": object.NewBuiltin("put", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 2 {
				return object.NewArgsError("put", 2, len(args))
			}
			key, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("put: key must be a string, got %s", args[0].Type())
			}
			if b.Data == nil {
				return object.Errorf("put: no component data")
			}
			b.Data.Set(key.Value(), FromObject(args[1]))
			return object.Nil
		}),
		"emit": object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) == 0 {
				return object.NewArgsError("emit", 1, 0)
			}
			name, ok := args[0].(*object.String)
			if !ok {
				return object.Errorf("emit: event must be a string, got %s", args[0].Type())
			}
			if b.Emit != nil {
				rest := make([]any, 0, len(args)-1)
				for _, a := range args[1:] {
					rest = append(rest, FromObject(a))
				}
				b.Emit(name.Value(), rest...)
			}
			return object.Nil
		}),
		"log": object.NewBuiltin("log", func(ctx context.Context, args ...object.Object) object.Object {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = expr.Display(FromObject(a))
			}
			e.logger.Info(strings.Join(parts, " "), "source", "script")
			return object.Nil
		}),
	}
}

// ToObject converts a store value to a Risor object. Integral numbers
// become ints.
func ToObject(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case object.Object:
		return x
	case bool:
		return object.NewBool(x)
	case string:
		return object.NewString(x)
	case int:
		return object.NewInt(int64(x))
	case int64:
		return object.NewInt(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return object.NewInt(int64(x))
		}
		return object.NewFloat(x)
	case []any:
		items := make([]object.Object, len(x))
		for i, item := range x {
			items[i] = ToObject(item)
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(x))
		for k, item := range x {
			m[k] = ToObject(item)
		}
		return object.NewMap(m)
	}
	if p, err := object.NewProxy(v); err == nil {
		return p
	}
	return object.NewString(expr.ToString(v))
}

// FromObject converts a Risor object to a store value. Numbers become
// float64.
func FromObject(o object.Object) any {
	switch x := o.(type) {
	case nil, *object.NilType:
		return nil
	case *object.Bool:
		return x.Value()
	case *object.String:
		return x.Value()
	case *object.Int:
		return float64(x.Value())
	case *object.Float:
		return x.Value()
	case *object.List:
		items := x.Value()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = FromObject(item)
		}
		return out
	case *object.Map:
		out := map[string]any{}
		for k, item := range x.Value() {
			out[k] = FromObject(item)
		}
		return out
	case *object.Proxy:
		return x.Interface()
	}
	return o.Interface()
}
