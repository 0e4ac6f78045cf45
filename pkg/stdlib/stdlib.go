// Package stdlib provides the host globals every script sees.
package stdlib

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xplshn/bright/pkg/value"
)

// Globals returns a fresh set of globals. print and console.log write to out,
// console.error to errOut.
func Globals(out, errOut io.Writer) map[string]value.Value {
	var mu sync.Mutex
	printer := func(w io.Writer) value.Native {
		return func(args []value.Value) (value.Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = value.Inspect(a)
			}
			mu.Lock()
			defer mu.Unlock()
			_, err := fmt.Fprintln(w, strings.Join(parts, " "))
			return value.Undefined, err
		}
	}

	return map[string]value.Value{
		"print":   printer(out),
		"console": value.ObjectOf("log", printer(out), "error", printer(errOut)),
		"Math":    mathObject(),
		"JSON":    value.ObjectOf("stringify", value.Native(jsonStringify), "parse", value.Native(jsonParse)),
		"Object": value.ObjectOf("keys", value.Native(func(args []value.Value) (value.Value, error) {
			return value.FromGo(value.Keys(arg(args, 0))), nil
		})),
		"Date": value.ObjectOf("now", value.Native(func([]value.Value) (value.Value, error) {
			return float64(time.Now().UnixMilli()), nil
		})),
		"String": value.Native(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return "", nil
			}
			return value.ToString(args[0]), nil
		}),
		"Number": value.Native(func(args []value.Value) (value.Value, error) {
			if len(args) == 0 {
				return float64(0), nil
			}
			return value.ToNumber(args[0]), nil
		}),
		"Boolean": value.Native(func(args []value.Value) (value.Value, error) {
			return value.Truthy(arg(args, 0)), nil
		}),
		"isNaN": value.Native(func(args []value.Value) (value.Value, error) {
			return math.IsNaN(value.ToNumber(arg(args, 0))), nil
		}),
		"parseInt":   value.Native(parseInt),
		"parseFloat": value.Native(parseFloat),
		"Error": value.Native(func(args []value.Value) (value.Value, error) {
			return &value.ErrorValue{Message: value.ToString(arg(args, 0))}, nil
		}),
		"sleepAsync": value.ContextAsync(sleepAsync),
	}
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Undefined
}

func mathObject() *value.Object {
	unary := func(fn func(float64) float64) value.Native {
		return func(args []value.Value) (value.Value, error) {
			return fn(value.ToNumber(arg(args, 0))), nil
		}
	}
	fold := func(start float64, pick func(a, b float64) float64) value.Native {
		return func(args []value.Value) (value.Value, error) {
			acc := start
			for _, a := range args {
				n := value.ToNumber(a)
				if math.IsNaN(n) {
					return math.NaN(), nil
				}
				acc = pick(acc, n)
			}
			return acc, nil
		}
	}
	return value.ObjectOf(
		"PI", math.Pi,
		"E", math.E,
		"abs", unary(math.Abs),
		"floor", unary(math.Floor),
		"ceil", unary(math.Ceil),
		"round", unary(func(x float64) float64 { return math.Floor(x + 0.5) }),
		"trunc", unary(math.Trunc),
		"sqrt", unary(math.Sqrt),
		"sign", unary(func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return x
		}),
		"pow", value.Native(func(args []value.Value) (value.Value, error) {
			return math.Pow(value.ToNumber(arg(args, 0)), value.ToNumber(arg(args, 1))), nil
		}),
		"min", fold(math.Inf(1), math.Min),
		"max", fold(math.Inf(-1), math.Max),
		"random", value.Native(func([]value.Value) (value.Value, error) { return rand.Float64(), nil }),
	)
}

// sleepAsync(ms, ...values) completes with values after ms milliseconds.
func sleepAsync(ctx context.Context, args []value.Value, done value.Callback) {
	ms := value.ToNumber(arg(args, 0))
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	var results []value.Value
	if len(args) > 1 {
		results = args[1:]
	}
	go func() {
		t := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
		defer t.Stop()
		select {
		case <-t.C:
			done(nil, results...)
		case <-ctx.Done():
			done(ctx.Err())
		}
	}()
}

func parseInt(args []value.Value) (value.Value, error) {
	s := strings.TrimSpace(value.ToString(arg(args, 0)))
	radix := 0
	if r := arg(args, 1); !value.IsUndefined(r) {
		radix = int(value.ToNumber(r))
	}
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if (radix == 16 || radix == 0) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		s, radix = s[2:], 16
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN(), nil
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < radix {
		end++
	}
	if end == 0 {
		return math.NaN(), nil
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		return math.NaN(), nil
	}
	if neg {
		n = -n
	}
	return float64(n), nil
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

// parseFloat reads the longest numeric prefix.
func parseFloat(args []value.Value) (value.Value, error) {
	s := strings.TrimSpace(value.ToString(arg(args, 0)))
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f, nil
		}
	}
	if strings.HasPrefix(s, "Infinity") {
		return math.Inf(1), nil
	}
	return math.NaN(), nil
}

func jsonStringify(args []value.Value) (value.Value, error) {
	var sb strings.Builder
	if err := writeJSON(&sb, arg(args, 0), 0); err != nil {
		return nil, err
	}
	return sb.String(), nil
}

// writeJSON keeps object keys in insertion order, which encoding/json would sort.
func writeJSON(sb *strings.Builder, v value.Value, depth int) error {
	if depth > 64 {
		return fmt.Errorf("JSON.stringify: value is nested too deeply")
	}
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		sb.WriteString(strconv.FormatBool(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			sb.WriteString("null")
			return nil
		}
		sb.WriteString(value.FormatNumber(x))
	case string:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		sb.Write(b)
	case *value.Array:
		sb.WriteByte('[')
		for i, e := range x.Snapshot() {
			if i > 0 {
				sb.WriteByte(',')
			}
			if value.IsUndefined(e) || value.IsFunction(e) {
				e = nil
			}
			if err := writeJSON(sb, e, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case *value.Object:
		sb.WriteByte('{')
		first := true
		for _, k := range x.Keys() {
			e, _ := x.Get(k)
			if value.IsUndefined(e) || value.IsFunction(e) {
				continue
			}
			if !first {
				sb.WriteByte(',')
			}
			first = false
			key, _ := json.Marshal(k)
			sb.Write(key)
			sb.WriteByte(':')
			if err := writeJSON(sb, e, depth+1); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case *value.ErrorValue:
		sb.WriteString("{}")
	default:
		if value.IsUndefined(v) {
			sb.WriteString("null")
			return nil
		}
		return fmt.Errorf("JSON.stringify: cannot encode %s", value.TypeOf(v))
	}
	return nil
}

func jsonParse(args []value.Value) (value.Value, error) {
	var out any
	if err := json.Unmarshal([]byte(value.ToString(arg(args, 0))), &out); err != nil {
		return nil, fmt.Errorf("JSON.parse: %w", err)
	}
	return value.FromGo(out), nil
}
