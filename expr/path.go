package expr

import (
	"context"
	"errors"
	"fmt"

	"github.com/delaneyj/vyes/reactive"
)

var ErrNotPath = errors.New("not an assignable path")

// Path is a dotted or bracketed access chain such as user.tags[0] or
// rows[i].name. Bracket contents may be any expression; everything else
// is restricted to identifiers.
type Path struct {
	src   string
	root  string
	steps []*memberExpr
}

// ParsePath parses code as a Path.
func ParsePath(code string) (Path, error) {
	x, err := parseExpression(code)
	if err != nil {
		return Path{}, err
	}
	var steps []*memberExpr
	for {
		switch n := x.(type) {
		case *identExpr:
			for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
				steps[i], steps[j] = steps[j], steps[i]
			}
			return Path{src: code, root: n.name, steps: steps}, nil
		case *memberExpr:
			if n.optional {
				return Path{}, fmt.Errorf("%w: optional access in %q", ErrNotPath, code)
			}
			steps = append(steps, n)
			x = n.obj
		default:
			return Path{}, fmt.Errorf("%w: %q", ErrNotPath, code)
		}
	}
}

func (p Path) String() string { return p.src }

// Root is the leading identifier.
func (p Path) Root() string { return p.root }

// Target is the terminal container and key a Path resolves to.
type Target struct {
	Container any
	Key       string
}

// Resolve walks the path against scope. Only the data frame can hold the
// root identifier; it fails when the frame is missing or a link of the
// chain is nil.
func (p Path) Resolve(scope *Scope) (t Target, ok bool) {
	if scope == nil || scope.Data == nil {
		return Target{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			t, ok = Target{}, false
		}
	}()
	if len(p.steps) == 0 {
		return Target{Container: scope.Data, Key: p.root}, true
	}
	in := &interp{ctx: context.Background(), scope: scope}
	e := newEnv(nil)
	cur, _ := scope.Lookup(p.root)
	for i, s := range p.steps {
		if cur == nil {
			return Target{}, false
		}
		key := s.key(in, e)
		if i == len(p.steps)-1 {
			return Target{Container: cur, Key: key}, settable(cur)
		}
		cur = in.member(cur, key)
	}
	return Target{}, false
}

func settable(v any) bool {
	switch v.(type) {
	case *reactive.Object, *reactive.Array, map[string]any, reactive.RawMap, Member, Frame:
		return true
	}
	return false
}

// Get reads the target key, tracking it like any expression read.
func (t Target) Get() any {
	if f, ok := t.Container.(Frame); ok {
		v, _ := f.Lookup(t.Key)
		return v
	}
	v, err := Call(func(...any) any { return hostInterp().member(t.Container, t.Key) })
	if err != nil {
		return nil
	}
	return v
}

// Set writes the target key.
func (t Target) Set(v any) error {
	if f, ok := t.Container.(Frame); ok {
		f.Set(t.Key, v)
		return nil
	}
	_, err := Call(func(...any) any {
		hostInterp().setMember(t.Container, t.Key, v)
		return nil
	})
	return err
}
