package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/delaneyj/vyes/reactive"
)

type constructor interface {
	construct(args []any) any
}

func (in *interp) member(obj any, key string) any {
	switch o := obj.(type) {
	case nil:
		in.throw("cannot read properties of undefined (reading %q)", key)
	case *reactive.Object:
		if !o.Has(key) {
			if m := in.objectMethod(o, key); m != nil {
				return m
			}
		}
		return o.Get(key)
	case *reactive.Array:
		if m := in.arrayMethod(o, key); m != nil {
			return m
		}
		return o.Get(key)
	case map[string]any:
		if v, ok := o[key]; ok {
			return v
		}
		return in.objectMethod(o, key)
	case reactive.RawMap:
		return in.member(map[string]any(o), key)
	case []any:
		return in.listMember(o, key)
	case reactive.RawList:
		return in.listMember([]any(o), key)
	case string:
		return in.stringMember(o, key)
	case bool:
		if key == "toString" {
			return func(...any) any { return ToString(o) }
		}
		return nil
	case Member:
		v, _ := o.GetMember(key)
		return v
	case *Func:
		if key == "name" {
			return o.name
		}
		return nil
	}
	if f, ok := numeric(obj); ok {
		return numberMember(f, key)
	}
	return in.reflectMember(obj, key)
}

func (in *interp) setMember(obj any, key string, v any) {
	switch o := obj.(type) {
	case nil:
		in.throw("cannot set properties of undefined (setting %q)", key)
	case *reactive.Object:
		o.Set(key, v)
	case *reactive.Array:
		o.Set(key, v)
	case map[string]any:
		o[key] = v
	case reactive.RawMap:
		o[key] = v
	case []any:
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(o) {
			o[i] = v
		}
	case Member:
		if !o.SetMember(key, v) {
			in.throw("cannot set property %q", key)
		}
	default:
		in.reflectSet(obj, key, v)
	}
}

func (in *interp) deleteMember(obj any, key string) {
	switch o := obj.(type) {
	case *reactive.Object:
		o.Delete(key)
	case map[string]any:
		delete(o, key)
	case reactive.RawMap:
		delete(o, key)
	}
}

// keysOf lists the enumerable keys of a value.
func keysOf(v any) []string {
	switch o := v.(type) {
	case *reactive.Object:
		return o.Keys()
	case map[string]any:
		return sortedKeys(o)
	case reactive.RawMap:
		return sortedKeys(o)
	case *reactive.Array:
		return indexKeys(o.Len())
	case []any:
		return indexKeys(len(o))
	case reactive.RawList:
		return indexKeys(len(o))
	}
	return nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func indexKeys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func hasKey(v any, key string) bool {
	switch o := v.(type) {
	case *reactive.Object:
		return o.Has(key)
	case map[string]any:
		_, ok := o[key]
		return ok
	case reactive.RawMap:
		_, ok := o[key]
		return ok
	}
	for _, k := range keysOf(v) {
		if k == key {
			return true
		}
	}
	return false
}

func instanceOf(v, class any) bool {
	g, ok := class.(*global)
	if !ok {
		return false
	}
	switch g.name {
	case "Array":
		_, ok := listOf(v)
		return ok
	case "Object":
		return v != nil && TypeOf(v) == "object"
	}
	return false
}

// listOf returns the items of any list-like value.
func listOf(v any) ([]any, bool) {
	switch o := v.(type) {
	case *reactive.Array:
		return o.Items(), true
	case []any:
		return o, true
	case reactive.RawList:
		return o, true
	}
	return nil, false
}

func plainList(v any) ([]any, bool) {
	switch o := v.(type) {
	case []any:
		return o, true
	case reactive.RawList:
		return o, true
	}
	return nil, false
}

// iterate returns the values a for-of loop visits.
func (in *interp) iterate(v any) []any {
	if items, ok := listOf(v); ok {
		return items
	}
	switch o := v.(type) {
	case nil:
		return nil
	case string:
		out := make([]any, 0, len(o))
		for _, r := range o {
			out = append(out, string(r))
		}
		return out
	case *reactive.Object:
		// entries, for Object.entries style destructuring
		out := []any{}
		for _, k := range o.Keys() {
			out = append(out, o.Get(k))
		}
		return out
	}
	in.throw("%s is not iterable", TypeOf(v))
	return nil
}

func (in *interp) objectMethod(o any, key string) any {
	switch key {
	case "hasOwnProperty":
		return func(args ...any) any {
			if len(args) == 0 {
				return false
			}
			k := propKey(args[0])
			if ro, ok := o.(*reactive.Object); ok {
				return ro.Own(k)
			}
			return hasKey(o, k)
		}
	case "toString":
		return func(...any) any { return ToString(o) }
	}
	return nil
}

var mutatingMethods = map[string]bool{
	"push": true, "pop": true, "shift": true, "unshift": true,
	"splice": true, "sort": true, "reverse": true,
}

// mutateList applies a mutating method to a copy of list and returns the
// new contents with the method result.
func (in *interp) mutateList(list []any, name string, args []any) ([]any, any) {
	out := append([]any{}, list...)
	switch name {
	case "push":
		out = append(out, args...)
		return out, float64(len(out))
	case "pop":
		if len(out) == 0 {
			return out, nil
		}
		v := out[len(out)-1]
		return out[:len(out)-1], v
	case "shift":
		if len(out) == 0 {
			return out, nil
		}
		return out[1:], out[0]
	case "unshift":
		out = append(append([]any{}, args...), out...)
		return out, float64(len(out))
	case "splice":
		start, count := spliceArgs(len(out), args)
		removed := append([]any{}, out[start:start+count]...)
		rest := append([]any{}, out[start+count:]...)
		out = append(append(out[:start], args[min(len(args), 2):]...), rest...)
		return out, removed
	case "sort":
		in.sortItems(out, args)
		return out, out
	case "reverse":
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, out
	}
	return out, nil
}

func spliceArgs(n int, args []any) (int, int) {
	start := 0
	if len(args) > 0 {
		start = int(ToNumber(args[0]))
	}
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	count := n - start
	if len(args) > 1 {
		count = int(ToNumber(args[1]))
	}
	count = max(min(count, n-start), 0)
	return start, count
}

func (in *interp) sortItems(items []any, args []any) {
	var cmp any
	if len(args) > 0 {
		cmp = args[0]
	}
	sort.SliceStable(items, func(i, j int) bool {
		if cmp != nil {
			return ToNumber(in.call(cmp, []any{items[i], items[j]})) < 0
		}
		return ToString(items[i]) < ToString(items[j])
	})
}

func (in *interp) arrayMethod(a *reactive.Array, key string) any {
	if mutatingMethods[key] {
		return func(args ...any) any {
			switch key {
			case "push":
				return float64(a.Push(args...))
			case "pop":
				return a.Pop()
			case "shift":
				return a.Shift()
			case "unshift":
				return float64(a.Unshift(args...))
			case "splice":
				n := a.Len()
				start, count := spliceArgs(n, args)
				return a.Splice(start, count, args[min(len(args), 2):]...)
			}
			out, res := in.mutateList(a.Items(), key, args)
			a.Replace(out)
			return res
		}
	}
	if key == "length" {
		return nil
	}
	if _, err := strconv.Atoi(key); err == nil {
		return nil
	}
	return in.listMethod(func() []any { return a.Items() }, key)
}

func (in *interp) listMember(list []any, key string) any {
	if key == "length" {
		return float64(len(list))
	}
	if i, err := strconv.Atoi(key); err == nil {
		if i >= 0 && i < len(list) {
			return list[i]
		}
		return nil
	}
	if mutatingMethods[key] {
		return func(args ...any) any {
			_, res := in.mutateList(list, key, args)
			return res
		}
	}
	return in.listMethod(func() []any { return list }, key)
}

func (in *interp) listMethod(items func() []any, key string) any {
	each := func(fn any, it any, i int, all []any) any {
		return in.call(fn, []any{it, float64(i), all})
	}
	switch key {
	case "map":
		return func(args ...any) any {
			all := items()
			out := make([]any, len(all))
			for i, it := range all {
				out[i] = each(arg(args, 0), it, i, all)
			}
			return out
		}
	case "filter":
		return func(args ...any) any {
			all := items()
			out := []any{}
			for i, it := range all {
				if Truthy(each(arg(args, 0), it, i, all)) {
					out = append(out, it)
				}
			}
			return out
		}
	case "forEach":
		return func(args ...any) any {
			all := items()
			for i, it := range all {
				each(arg(args, 0), it, i, all)
			}
			return nil
		}
	case "find", "findIndex":
		return func(args ...any) any {
			all := items()
			for i, it := range all {
				if Truthy(each(arg(args, 0), it, i, all)) {
					if key == "find" {
						return it
					}
					return float64(i)
				}
			}
			if key == "find" {
				return nil
			}
			return float64(-1)
		}
	case "some", "every":
		return func(args ...any) any {
			all := items()
			for i, it := range all {
				ok := Truthy(each(arg(args, 0), it, i, all))
				if key == "some" && ok {
					return true
				}
				if key == "every" && !ok {
					return false
				}
			}
			return key == "every"
		}
	case "reduce":
		return func(args ...any) any {
			all := items()
			i := 0
			var acc any
			if len(args) > 1 {
				acc = args[1]
			} else if len(all) > 0 {
				acc = all[0]
				i = 1
			} else {
				in.throw("reduce of empty array with no initial value")
			}
			for ; i < len(all); i++ {
				acc = in.call(arg(args, 0), []any{acc, all[i], float64(i), all})
			}
			return acc
		}
	case "indexOf", "includes", "lastIndexOf":
		return func(args ...any) any {
			all := items()
			idx := -1
			for i, it := range all {
				if StrictEqual(it, arg(args, 0)) {
					idx = i
					if key != "lastIndexOf" {
						break
					}
				}
			}
			if key == "includes" {
				return idx >= 0
			}
			return float64(idx)
		}
	case "join":
		return func(args ...any) any {
			sep := ","
			if len(args) > 0 && args[0] != nil {
				sep = ToString(args[0])
			}
			return joinItems(items(), sep)
		}
	case "slice":
		return func(args ...any) any {
			all := items()
			start, end := sliceBounds(len(all), args)
			return append([]any{}, all[start:end]...)
		}
	case "concat":
		return func(args ...any) any {
			out := append([]any{}, items()...)
			for _, a := range args {
				if l, ok := listOf(a); ok {
					out = append(out, l...)
				} else {
					out = append(out, a)
				}
			}
			return out
		}
	case "at":
		return func(args ...any) any {
			all := items()
			i := int(ToNumber(arg(args, 0)))
			if i < 0 {
				i += len(all)
			}
			if i < 0 || i >= len(all) {
				return nil
			}
			return all[i]
		}
	case "flat":
		return func(args ...any) any {
			out := []any{}
			for _, it := range items() {
				if l, ok := listOf(it); ok {
					out = append(out, l...)
				} else {
					out = append(out, it)
				}
			}
			return out
		}
	case "toString":
		return func(...any) any { return joinItems(items(), ",") }
	}
	return nil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func sliceBounds(n int, args []any) (int, int) {
	start, end := 0, n
	if len(args) > 0 && args[0] != nil {
		start = int(ToNumber(args[0]))
	}
	if len(args) > 1 && args[1] != nil {
		end = int(ToNumber(args[1]))
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	start = max(min(start, n), 0)
	end = max(min(end, n), start)
	return start, end
}

func (in *interp) stringMember(s string, key string) any {
	runes := func() []rune { return []rune(s) }
	switch key {
	case "length":
		return float64(utf8.RuneCountInString(s))
	case "toUpperCase":
		return func(...any) any { return strings.ToUpper(s) }
	case "toLowerCase":
		return func(...any) any { return strings.ToLower(s) }
	case "trim":
		return func(...any) any { return strings.TrimSpace(s) }
	case "trimStart":
		return func(...any) any { return strings.TrimLeftFunc(s, unicode.IsSpace) }
	case "trimEnd":
		return func(...any) any { return strings.TrimRightFunc(s, unicode.IsSpace) }
	case "split":
		return func(args ...any) any {
			var parts []string
			if len(args) == 0 || args[0] == nil {
				parts = []string{s}
			} else {
				parts = strings.Split(s, ToString(args[0]))
				if s == "" && ToString(args[0]) != "" {
					parts = []string{""}
				}
			}
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out
		}
	case "includes":
		return func(args ...any) any { return strings.Contains(s, ToString(arg(args, 0))) }
	case "startsWith":
		return func(args ...any) any { return strings.HasPrefix(s, ToString(arg(args, 0))) }
	case "endsWith":
		return func(args ...any) any { return strings.HasSuffix(s, ToString(arg(args, 0))) }
	case "indexOf", "lastIndexOf":
		return func(args ...any) any {
			sub := ToString(arg(args, 0))
			var i int
			if key == "indexOf" {
				i = strings.Index(s, sub)
			} else {
				i = strings.LastIndex(s, sub)
			}
			if i < 0 {
				return float64(-1)
			}
			return float64(utf8.RuneCountInString(s[:i]))
		}
	case "slice", "substring":
		return func(args ...any) any {
			r := runes()
			if key == "substring" {
				a, b := 0, len(r)
				if len(args) > 0 {
					a = max(min(int(ToNumber(args[0])), len(r)), 0)
				}
				if len(args) > 1 && args[1] != nil {
					b = max(min(int(ToNumber(args[1])), len(r)), 0)
				}
				if a > b {
					a, b = b, a
				}
				return string(r[a:b])
			}
			start, end := sliceBounds(len(r), args)
			return string(r[start:end])
		}
	case "charAt", "at":
		return func(args ...any) any {
			r := runes()
			i := int(ToNumber(arg(args, 0)))
			if len(args) == 0 {
				i = 0
			}
			if key == "at" && i < 0 {
				i += len(r)
			}
			if i < 0 || i >= len(r) {
				if key == "at" {
					return nil
				}
				return ""
			}
			return string(r[i])
		}
	case "replace":
		return func(args ...any) any {
			return strings.Replace(s, ToString(arg(args, 0)), in.replacement(arg(args, 1), arg(args, 0)), 1)
		}
	case "replaceAll":
		return func(args ...any) any {
			return strings.ReplaceAll(s, ToString(arg(args, 0)), in.replacement(arg(args, 1), arg(args, 0)))
		}
	case "padStart", "padEnd":
		return func(args ...any) any {
			n := int(ToNumber(arg(args, 0)))
			pad := " "
			if len(args) > 1 {
				pad = ToString(args[1])
			}
			missing := n - utf8.RuneCountInString(s)
			if missing <= 0 || pad == "" {
				return s
			}
			fill := []rune(strings.Repeat(pad, missing/utf8.RuneCountInString(pad)+1))[:missing]
			if key == "padStart" {
				return string(fill) + s
			}
			return s + string(fill)
		}
	case "repeat":
		return func(args ...any) any {
			n := int(ToNumber(arg(args, 0)))
			if n < 0 {
				in.throw("invalid count value")
			}
			return strings.Repeat(s, n)
		}
	case "concat":
		return func(args ...any) any {
			var sb strings.Builder
			sb.WriteString(s)
			for _, a := range args {
				sb.WriteString(ToString(a))
			}
			return sb.String()
		}
	case "toString":
		return func(...any) any { return s }
	}
	if i, err := strconv.Atoi(key); err == nil {
		r := runes()
		if i >= 0 && i < len(r) {
			return string(r[i])
		}
	}
	return nil
}

func (in *interp) replacement(v, match any) string {
	if v == nil {
		return "undefined"
	}
	if TypeOf(v) == "function" {
		return ToString(in.call(v, []any{match}))
	}
	return ToString(v)
}

func numberMember(f float64, key string) any {
	switch key {
	case "toFixed":
		return func(args ...any) any {
			digits := int(ToNumber(arg(args, 0)))
			if len(args) == 0 {
				digits = 0
			}
			return strconv.FormatFloat(f, 'f', max(digits, 0), 64)
		}
	case "toString":
		return func(args ...any) any {
			if len(args) > 0 && args[0] != nil && f == math.Trunc(f) {
				return strconv.FormatInt(int64(f), int(ToNumber(args[0])))
			}
			return formatNumber(f)
		}
	}
	return nil
}

func (in *interp) reflectMember(obj any, key string) any {
	rv := reflect.ValueOf(obj)
	if m := rv.MethodByName(exportName(key)); m.IsValid() {
		return m.Interface()
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		if f := rv.FieldByName(exportName(key)); f.IsValid() && f.CanInterface() {
			return f.Interface()
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if v.IsValid() {
				return v.Interface()
			}
		}
	case reflect.Slice, reflect.Array:
		if key == "length" {
			return float64(rv.Len())
		}
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < rv.Len() {
			return rv.Index(i).Interface()
		}
	}
	return nil
}

func (in *interp) reflectSet(obj any, key string, v any) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		f := rv.Elem().FieldByName(exportName(key))
		if f.IsValid() && f.CanSet() {
			f.Set(convertArg(v, f.Type()))
			return
		}
	}
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		rv.SetMapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()), convertArg(v, rv.Type().Elem()))
		return
	}
	in.throw("cannot set property %q on %T", key, obj)
}

func exportName(key string) string {
	if key == "" {
		return key
	}
	r, n := utf8.DecodeRuneInString(key)
	return string(unicode.ToUpper(r)) + key[n:]
}

func (in *interp) reflectCall(fn any, args []any) any {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		in.throw("%s is not a function", TypeOf(fn))
	}
	rt := rv.Type()
	var callArgs []reflect.Value
	for i := 0; i < rt.NumIn(); i++ {
		if rt.IsVariadic() && i == rt.NumIn()-1 {
			et := rt.In(i).Elem()
			for j := i; j < len(args); j++ {
				callArgs = append(callArgs, convertArg(args[j], et))
			}
			break
		}
		var a any
		if i < len(args) {
			a = args[i]
		}
		callArgs = append(callArgs, convertArg(a, rt.In(i)))
	}
	out := rv.Call(callArgs)
	if n := len(out); n > 0 {
		if rt.Out(n-1) == errorType {
			if err, _ := out[n-1].Interface().(error); err != nil {
				panic(&ThrownError{Value: errorValue(err)})
			}
			out = out[:n-1]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out[0].Interface()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func convertArg(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv
	}
	if f, ok := numeric(v); ok {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return reflect.ValueOf(f).Convert(t)
		}
	}
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(ToString(v)).Convert(t)
	case reflect.Bool:
		return reflect.ValueOf(Truthy(v)).Convert(t)
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t)
	}
	panic(&RuntimeError{Msg: fmt.Sprintf("cannot use %T as %s", v, t)})
}
