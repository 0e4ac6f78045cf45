package value

import (
	"math"
	"strings"
)

var stringMethods = map[string]method{
	"toUpperCase": func(recv Value, _ []Value) (Value, error) { return strings.ToUpper(recv.(string)), nil },
	"toLowerCase": func(recv Value, _ []Value) (Value, error) { return strings.ToLower(recv.(string)), nil },
	"trim":        func(recv Value, _ []Value) (Value, error) { return strings.TrimSpace(recv.(string)), nil },
	"toString":    func(recv Value, _ []Value) (Value, error) { return recv, nil },
	"charAt": func(recv Value, args []Value) (Value, error) {
		r := []rune(recv.(string))
		i := int(ToNumber(arg(args, 0)))
		if i < 0 || i >= len(r) {
			return "", nil
		}
		return string(r[i]), nil
	},
	"indexOf": func(recv Value, args []Value) (Value, error) {
		s := recv.(string)
		i := strings.Index(s, ToString(arg(args, 0)))
		if i < 0 {
			return float64(-1), nil
		}
		return float64(len([]rune(s[:i]))), nil
	},
	"split": func(recv Value, args []Value) (Value, error) {
		s := recv.(string)
		sep := arg(args, 0)
		if IsUndefined(sep) {
			return NewArray(s), nil
		}
		arr := NewArray()
		for _, part := range strings.Split(s, ToString(sep)) {
			arr.Elems = append(arr.Elems, part)
		}
		return arr, nil
	},
	"slice": func(recv Value, args []Value) (Value, error) {
		r := []rune(recv.(string))
		start, end := sliceBounds(len(r), args)
		return string(r[start:end]), nil
	},
	"replace": func(recv Value, args []Value) (Value, error) {
		return strings.Replace(recv.(string), ToString(arg(args, 0)), ToString(arg(args, 1)), 1), nil
	},
}

var arrayMethods = map[string]method{
	"push": func(recv Value, args []Value) (Value, error) {
		return float64(recv.(*Array).Push(args...)), nil
	},
	"pop": func(recv Value, _ []Value) (Value, error) { return recv.(*Array).Pop(), nil },
	"join": func(recv Value, args []Value) (Value, error) {
		sep := ","
		if s := arg(args, 0); !IsUndefined(s) {
			sep = ToString(s)
		}
		elems := recv.(*Array).Snapshot()
		parts := make([]string, len(elems))
		for i, e := range elems {
			if !IsNullish(e) {
				parts[i] = ToString(e)
			}
		}
		return strings.Join(parts, sep), nil
	},
	"indexOf": func(recv Value, args []Value) (Value, error) {
		for i, e := range recv.(*Array).Snapshot() {
			if StrictEquals(e, arg(args, 0)) {
				return float64(i), nil
			}
		}
		return float64(-1), nil
	},
	"slice": func(recv Value, args []Value) (Value, error) {
		elems := recv.(*Array).Snapshot()
		start, end := sliceBounds(len(elems), args)
		return NewArray(elems[start:end]...), nil
	},
	"concat": func(recv Value, args []Value) (Value, error) {
		out := recv.(*Array).Snapshot()
		for _, a := range args {
			if other, ok := a.(*Array); ok {
				out = append(out, other.Snapshot()...)
				continue
			}
			out = append(out, a)
		}
		return NewArray(out...), nil
	},
	"reverse": func(recv Value, _ []Value) (Value, error) {
		a := recv.(*Array)
		a.mu.Lock()
		for i, j := 0, len(a.Elems)-1; i < j; i, j = i+1, j-1 {
			a.Elems[i], a.Elems[j] = a.Elems[j], a.Elems[i]
		}
		a.mu.Unlock()
		return a, nil
	},
	"toString": func(recv Value, _ []Value) (Value, error) { return ToString(recv), nil },
}

// sliceBounds resolves JS-style slice(start, end) arguments against n.
func sliceBounds(n int, args []Value) (int, int) {
	clamp := func(v Value, def int) int {
		if IsUndefined(v) {
			return def
		}
		f := ToNumber(v)
		if math.IsNaN(f) {
			return 0
		}
		i := int(f)
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	start := clamp(arg(args, 0), 0)
	end := clamp(arg(args, 1), n)
	if end < start {
		end = start
	}
	return start, end
}
