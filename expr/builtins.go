package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// global is a callable host namespace such as Math or Number.
type global struct {
	name    string
	call    func(args ...any) any
	ctor    func(args []any) any
	members map[string]any
}

func (g *global) GetMember(name string) (any, bool) {
	v, ok := g.members[name]
	return v, ok
}

func (g *global) SetMember(string, any) bool { return false }

func (g *global) construct(args []any) any {
	if g.ctor != nil {
		return g.ctor(args)
	}
	if g.call != nil {
		return g.call(args...)
	}
	return nil
}

func (g *global) String() string { return "function " + g.name + "() { [native code] }" }

var (
	processMu      sync.RWMutex
	processGlobals = map[string]any{}
)

// SetGlobal installs a process-wide global, the last link of every scope
// chain.
func SetGlobal(name string, v any) {
	processMu.Lock()
	defer processMu.Unlock()
	processGlobals[name] = v
}

func DeleteGlobal(name string) {
	processMu.Lock()
	defer processMu.Unlock()
	delete(processGlobals, name)
}

func lookupGlobal(name string) (any, bool) {
	if v, ok := builtins[name]; ok {
		return v, true
	}
	processMu.RLock()
	defer processMu.RUnlock()
	v, ok := processGlobals[name]
	return v, ok
}

var builtins map[string]any

func init() {
	builtins = map[string]any{
		"console":            consoleFor(nil),
		"Math":               mathGlobal,
		"JSON":               jsonGlobal,
		"Number":             numberGlobal,
		"String":             &global{name: "String", call: func(args ...any) any { return stringOf(args) }},
		"Boolean":            &global{name: "Boolean", call: func(args ...any) any { return Truthy(arg(args, 0)) }},
		"Object":             objectGlobal,
		"Array":              arrayGlobal,
		"Date":               dateGlobal,
		"Error":              errorGlobal,
		"parseInt":           func(args ...any) any { return parseInt(ToString(arg(args, 0)), arg(args, 1)) },
		"parseFloat":         func(args ...any) any { return parseFloat(ToString(arg(args, 0))) },
		"isNaN":              func(args ...any) any { return math.IsNaN(ToNumber(arg(args, 0))) },
		"isFinite":           func(args ...any) any { f := ToNumber(arg(args, 0)); return !math.IsNaN(f) && !math.IsInf(f, 0) },
		"encodeURIComponent": func(args ...any) any { return EncodeURIComponent(ToString(arg(args, 0))) },
		"decodeURIComponent": func(args ...any) any {
			s, err := url.PathUnescape(ToString(arg(args, 0)))
			if err != nil {
				panic(&ThrownError{Value: errorValue(err)})
			}
			return s
		},
		"NaN":      math.NaN(),
		"Infinity": math.Inf(1),
	}
}

func hostInterp() *interp {
	return &interp{ctx: context.Background()}
}

func stringOf(args []any) any {
	if len(args) == 0 {
		return ""
	}
	return ToString(args[0])
}

func consoleFor(logger *slog.Logger) *global {
	log := func(level slog.Level) func(args ...any) any {
		return func(args ...any) any {
			l := logger
			if l == nil {
				l = slog.Default()
			}
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = Display(a)
			}
			l.Log(context.Background(), level, strings.Join(parts, " "))
			return nil
		}
	}
	return &global{name: "console", members: map[string]any{
		"log":   log(slog.LevelInfo),
		"info":  log(slog.LevelInfo),
		"debug": log(slog.LevelDebug),
		"warn":  log(slog.LevelWarn),
		"error": log(slog.LevelError),
	}}
}

func mathFn(f func(float64) float64) func(args ...any) any {
	return func(args ...any) any { return f(ToNumber(arg(args, 0))) }
}

var mathGlobal = &global{name: "Math", members: map[string]any{
	"PI":    math.Pi,
	"E":     math.E,
	"floor": mathFn(math.Floor),
	"ceil":  mathFn(math.Ceil),
	"trunc": mathFn(math.Trunc),
	"abs":   mathFn(math.Abs),
	"sqrt":  mathFn(math.Sqrt),
	"log":   mathFn(math.Log),
	"exp":   mathFn(math.Exp),
	"round": mathFn(func(f float64) float64 { return math.Floor(f + 0.5) }),
	"sign": mathFn(func(f float64) float64 {
		switch {
		case f > 0:
			return 1
		case f < 0:
			return -1
		}
		return f
	}),
	"pow":    func(args ...any) any { return math.Pow(ToNumber(arg(args, 0)), ToNumber(arg(args, 1))) },
	"random": func(...any) any { return rand.Float64() },
	"min": func(args ...any) any {
		out := math.Inf(1)
		for _, a := range args {
			out = math.Min(out, ToNumber(a))
		}
		return out
	},
	"max": func(args ...any) any {
		out := math.Inf(-1)
		for _, a := range args {
			out = math.Max(out, ToNumber(a))
		}
		return out
	},
}}

var jsonGlobal = &global{name: "JSON", members: map[string]any{
	"stringify": func(args ...any) any {
		v := arg(args, 0)
		if v == nil {
			return nil
		}
		indent := ""
		switch x := arg(args, 2).(type) {
		case string:
			indent = x
		case nil:
		default:
			indent = strings.Repeat(" ", int(ToNumber(x)))
		}
		if indent == "" {
			return Stringify(v)
		}
		b, err := json.MarshalIndent(jsonable(v), "", indent)
		if err != nil {
			panic(&ThrownError{Value: errorValue(err)})
		}
		return string(b)
	},
	"parse": func(args ...any) any {
		var out any
		if err := json.Unmarshal([]byte(ToString(arg(args, 0))), &out); err != nil {
			panic(&ThrownError{Value: errorValue(fmt.Errorf("JSON.parse: %w", err))})
		}
		return out
	},
}}

var numberGlobal = &global{
	name: "Number",
	call: func(args ...any) any {
		if len(args) == 0 {
			return float64(0)
		}
		return ToNumber(args[0])
	},
	members: map[string]any{
		"isInteger": func(args ...any) any {
			f, ok := numeric(arg(args, 0))
			return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
		},
		"isNaN": func(args ...any) any {
			f, ok := numeric(arg(args, 0))
			return ok && math.IsNaN(f)
		},
		"parseFloat":       func(args ...any) any { return parseFloat(ToString(arg(args, 0))) },
		"parseInt":         func(args ...any) any { return parseInt(ToString(arg(args, 0)), arg(args, 1)) },
		"MAX_SAFE_INTEGER": float64(1<<53 - 1),
	},
}

var objectGlobal = &global{
	name: "Object",
	call: func(args ...any) any {
		if v := arg(args, 0); v != nil {
			return v
		}
		return map[string]any{}
	},
	members: map[string]any{
		"keys": func(args ...any) any {
			out := []any{}
			for _, k := range keysOf(arg(args, 0)) {
				out = append(out, k)
			}
			return out
		},
		"values": func(args ...any) any {
			in := hostInterp()
			v := arg(args, 0)
			out := []any{}
			for _, k := range keysOf(v) {
				out = append(out, in.member(v, k))
			}
			return out
		},
		"entries": func(args ...any) any {
			in := hostInterp()
			v := arg(args, 0)
			out := []any{}
			for _, k := range keysOf(v) {
				out = append(out, []any{k, in.member(v, k)})
			}
			return out
		},
		"assign": func(args ...any) any {
			in := hostInterp()
			target := arg(args, 0)
			for _, src := range args[min(len(args), 1):] {
				for _, k := range keysOf(src) {
					in.setMember(target, k, in.member(src, k))
				}
			}
			return target
		},
		"freeze": func(args ...any) any { return arg(args, 0) },
	},
}

func newError(args []any) any {
	msg := ""
	if v := arg(args, 0); v != nil {
		msg = ToString(v)
	}
	return map[string]any{"name": "Error", "message": msg}
}

var errorGlobal = &global{
	name: "Error",
	call: func(args ...any) any { return newError(args) },
	ctor: newError,
}

var arrayGlobal = &global{
	name: "Array",
	call: func(args ...any) any { return append([]any{}, args...) },
	members: map[string]any{
		"isArray": func(args ...any) any {
			_, ok := listOf(arg(args, 0))
			return ok
		},
		"of": func(args ...any) any { return append([]any{}, args...) },
		"from": func(args ...any) any {
			in := hostInterp()
			src := arg(args, 0)
			var items []any
			switch {
			case src == nil:
				items = []any{}
			case hasKey(src, "length") && TypeOf(src) == "object":
				if _, isList := listOf(src); !isList {
					n := int(ToNumber(in.member(src, "length")))
					items = make([]any, n)
					break
				}
				fallthrough
			default:
				items = append([]any{}, in.iterate(src)...)
			}
			if fn := arg(args, 1); fn != nil {
				for i, it := range items {
					items[i] = in.call(fn, []any{it, float64(i)})
				}
			}
			return items
		},
	},
}

// Date wraps a point in time for expressions.
type Date struct {
	T time.Time
}

func (d Date) String() string { return d.T.Format(time.RFC1123) }

func (d Date) GetMember(name string) (any, bool) {
	num := func(f func() int) func(...any) any {
		return func(...any) any { return float64(f()) }
	}
	switch name {
	case "getTime", "valueOf":
		return func(...any) any { return float64(d.T.UnixMilli()) }, true
	case "toISOString", "toJSON":
		return func(...any) any { return d.T.UTC().Format("2006-01-02T15:04:05.000Z") }, true
	case "getFullYear":
		return num(d.T.Year), true
	case "getMonth":
		return num(func() int { return int(d.T.Month()) - 1 }), true
	case "getDate":
		return num(d.T.Day), true
	case "getDay":
		return num(func() int { return int(d.T.Weekday()) }), true
	case "getHours":
		return num(d.T.Hour), true
	case "getMinutes":
		return num(d.T.Minute), true
	case "getSeconds":
		return num(d.T.Second), true
	case "toLocaleDateString":
		return func(...any) any { return d.T.Format("1/2/2006") }, true
	case "toLocaleTimeString":
		return func(...any) any { return d.T.Format("3:04:05 PM") }, true
	}
	return nil, false
}

func (d Date) SetMember(string, any) bool { return false }

var dateGlobal = &global{
	name: "Date",
	call: func(...any) any { return Date{T: time.Now()}.String() },
	ctor: func(args []any) any {
		switch v := arg(args, 0).(type) {
		case nil:
			return Date{T: time.Now()}
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, v); err == nil {
					return Date{T: t}
				}
			}
			return Date{}
		default:
			return Date{T: time.UnixMilli(int64(ToNumber(v)))}
		}
	},
	members: map[string]any{
		"now": func(...any) any { return float64(time.Now().UnixMilli()) },
	},
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDot, seenExp := false, false
scan:
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isDigit(c):
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && !seenExp && end > 0:
			seenExp = true
		default:
			break scan
		}
	}
	if end == 0 {
		if strings.HasPrefix(s, "Infinity") || strings.HasPrefix(s, "+Infinity") {
			return math.Inf(1)
		}
		if strings.HasPrefix(s, "-Infinity") {
			return math.Inf(-1)
		}
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func parseInt(s string, radix any) float64 {
	s = strings.TrimSpace(s)
	base := 10
	if radix != nil {
		base = int(ToNumber(radix))
	}
	neg := false
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (base == 16 || radix == nil) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		base = 16
		s = s[2:]
	}
	if base < 2 || base > 36 {
		return math.NaN()
	}
	end := 0
	for end < len(s) {
		d, err := strconv.ParseInt(s[end:end+1], base, 64)
		if err != nil || d >= int64(base) {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		return math.NaN()
	}
	if neg {
		n = -n
	}
	return float64(n)
}

// EncodeURIComponent escapes s like the browser function of the same name.
func EncodeURIComponent(s string) string {
	const keep = "-_.!~*'()"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c) || strings.IndexByte(keep, c) >= 0 {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}
