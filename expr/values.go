package expr

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/delaneyj/vyes/reactive"
)

// Truthy applies the language's boolean coercion.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	}
	if f, ok := numeric(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case float32:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	}
	return 0, false
}

// ToNumber applies numeric coercion; non-numeric strings become NaN.
func ToNumber(v any) float64 {
	if f, ok := numeric(v); ok {
		return f
	}
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := strconv.ParseInt(s[2:], 16, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
		switch s {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case *reactive.Array:
		items := x.Items()
		switch len(items) {
		case 0:
			return 0
		case 1:
			return ToNumber(items[0])
		}
	}
	return math.NaN()
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go writes e+07 where the language writes e+7
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString applies string coercion. nil renders as "undefined".
func ToString(v any) string {
	if f, ok := numeric(v); ok {
		return formatNumber(f)
	}
	switch x := v.(type) {
	case nil:
		return "undefined"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case *reactive.Array:
		return joinItems(x.Items(), ",")
	case []any:
		return joinItems(x, ",")
	case reactive.RawList:
		return joinItems(x, ",")
	case *reactive.Object, map[string]any, reactive.RawMap:
		return "[object Object]"
	case *Func:
		return "function " + x.name + "() { [code] }"
	case interface{ String() string }:
		return x.String()
	case error:
		return x.Error()
	}
	return "[object]"
}

// Display renders a value for text interpolation: nil is empty and
// objects and arrays are JSON.
func Display(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case *reactive.Object, *reactive.Array, map[string]any, []any, reactive.RawMap, reactive.RawList:
		return Stringify(v)
	}
	return ToString(v)
}

func joinItems(items []any, sep string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		if it != nil {
			parts[i] = ToString(it)
		}
	}
	return strings.Join(parts, sep)
}

// Stringify renders v as JSON; unencodable values yield "".
func Stringify(v any) string {
	b, err := json.Marshal(jsonable(v))
	if err != nil {
		return ""
	}
	return string(b)
}

func jsonable(v any) any {
	switch x := v.(type) {
	case *reactive.Object:
		out := map[string]any{}
		for _, k := range x.Keys() {
			out[k] = jsonable(x.Get(k))
		}
		return out
	case *reactive.Array:
		items := x.Items()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = jsonable(it)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonable(e)
		}
		return out
	case reactive.RawMap:
		return jsonable(map[string]any(x))
	case []any:
		out := make([]any, len(x))
		for i, it := range x {
			out[i] = jsonable(it)
		}
		return out
	case reactive.RawList:
		return jsonable([]any(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case *Func, func(...any) any:
		return nil
	}
	return v
}

// StrictEqual is ===: numbers compare by value, everything else by
// identity or primitive equality.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aok := numeric(a)
	fb, bok := numeric(b)
	if aok || bok {
		return aok && bok && fa == fb
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	switch ta.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	return false
}

// Equal is ==, with the loose number/string/bool coercions.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if StrictEqual(a, b) {
		return true
	}
	_, an := numeric(a)
	_, bn := numeric(b)
	_, as := a.(string)
	_, bs := b.(string)
	_, ab := a.(bool)
	_, bb := b.(bool)
	if (an || as || ab) && (bn || bs || bb) {
		if as && bs {
			return false
		}
		return ToNumber(a) == ToNumber(b)
	}
	return false
}

// TypeOf returns the typeof name of v.
func TypeOf(v any) string {
	if _, ok := numeric(v); ok {
		return "number"
	}
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case *Func, *global, func(...any) any, ContextFunc:
		return "function"
	}
	if reflect.TypeOf(v).Kind() == reflect.Func {
		return "function"
	}
	return "object"
}
