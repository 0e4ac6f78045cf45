// Package value is the dynamic value model scripts compute with.
//
// A Value is one of: nil (null), Undefined, bool, float64, string, *Array, *Object,
// error, or a function (Native, Async, or any Callable).
package value

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type Value = any

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is the value of missing arguments, results and fields.
var Undefined Value = undefined{}

// Callback is the completion convention: an error first, or nil and the results.
type Callback func(err error, results ...Value)

// Callable is anything that completes through a trailing callback.
type Callable interface {
	CallAsync(ctx context.Context, args []Value, done Callback)
}

// Native is a synchronous host function.
type Native func(args []Value) (Value, error)

// Async is a host function that completes through done, possibly later and from
// another goroutine.
type Async func(args []Value, done Callback)

func (f Async) CallAsync(_ context.Context, args []Value, done Callback) { f(args, done) }

// ContextAsync is an Async that also wants the caller's context.
type ContextAsync func(ctx context.Context, args []Value, done Callback)

func (f ContextAsync) CallAsync(ctx context.Context, args []Value, done Callback) {
	f(ctx, args, done)
}

type Array struct {
	mu    sync.RWMutex
	Elems []Value
}

func NewArray(elems ...Value) *Array { return &Array{Elems: elems} }

func (a *Array) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.Elems)
}

func (a *Array) Get(i int) Value {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if i < 0 || i >= len(a.Elems) {
		return Undefined
	}
	return a.Elems[i]
}

// Set stores v at i, growing the array with undefined holes when needed.
func (a *Array) Set(i int, v Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.Elems) <= i {
		a.Elems = append(a.Elems, Undefined)
	}
	a.Elems[i] = v
}

func (a *Array) Snapshot() []Value {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Value, len(a.Elems))
	copy(out, a.Elems)
	return out
}

func (a *Array) Push(vs ...Value) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Elems = append(a.Elems, vs...)
	return len(a.Elems)
}

func (a *Array) Pop() Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Elems) == 0 {
		return Undefined
	}
	v := a.Elems[len(a.Elems)-1]
	a.Elems = a.Elems[:len(a.Elems)-1]
	return v
}

// Object is a string-keyed map that remembers insertion order.
type Object struct {
	mu     sync.RWMutex
	keys   []string
	fields map[string]Value
}

func NewObject() *Object { return &Object{fields: make(map[string]Value)} }

// ObjectOf builds an object from alternating key, value pairs.
func ObjectOf(kv ...any) *Object {
	o := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return o
}

func (o *Object) Get(key string) (Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.fields[key]
	return v, ok
}

func (o *Object) Set(key string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

func (o *Object) Delete(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.fields[key]; !ok {
		return
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o *Object) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.keys)
}

// Thrown wraps a non-error value passed to throw.
type Thrown struct{ Value Value }

func (t *Thrown) Error() string { return "uncaught " + Inspect(t.Value) }

// ErrorValue is the script-level error object built by Error(msg).
type ErrorValue struct{ Message string }

func (e *ErrorValue) Error() string { return e.Message }

// FromError turns an error into the value a script sees for it.
func FromError(err error) Value {
	if err == nil {
		return nil
	}
	var t *Thrown
	if errors.As(err, &t) {
		return t.Value
	}
	return err
}

// ToError is the inverse of FromError.
func ToError(v Value) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &Thrown{Value: v}
}

// FromGo converts host values into script values. Unknown types pass through.
func FromGo(v any) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		arr := NewArray()
		for _, e := range x {
			arr.Elems = append(arr.Elems, FromGo(e))
		}
		return arr
	case []string:
		arr := NewArray()
		for _, e := range x {
			arr.Elems = append(arr.Elems, e)
		}
		return arr
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o := NewObject()
		for _, k := range keys {
			o.Set(k, FromGo(x[k]))
		}
		return o
	case func(args []Value) (Value, error):
		return Native(x)
	case func(args []Value, done Callback):
		return Async(x)
	}
	return v
}

// ToGo converts script values into plain Go values: float64, string, bool, nil,
// []any and map[string]any.
func ToGo(v Value) any {
	switch x := v.(type) {
	case undefined:
		return nil
	case *Array:
		out := make([]any, 0, x.Len())
		for _, e := range x.Snapshot() {
			out = append(out, ToGo(e))
		}
		return out
	case *Object:
		out := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			f, _ := x.Get(k)
			out[k] = ToGo(f)
		}
		return out
	}
	return v
}

func IsUndefined(v Value) bool {
	_, ok := v.(undefined)
	return ok
}

func IsNullish(v Value) bool { return v == nil || IsUndefined(v) }

func IsFunction(v Value) bool {
	switch v.(type) {
	case Native, Callable:
		return true
	}
	return false
}

func TypeOf(v Value) string {
	switch v.(type) {
	case undefined:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case Native, Callable:
		return "function"
	}
	return "object"
}

func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil, undefined:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

func ToNumber(v Value) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case undefined:
		return math.NaN()
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			if n, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
				return float64(n)
			}
			return math.NaN()
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
	case *Array:
		if x.Len() == 0 {
			return 0
		}
		if x.Len() == 1 {
			return ToNumber(x.Get(0))
		}
	}
	return math.NaN()
}

func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		// exponents are not zero padded: 1e-7, not 1e-07
		s := strconv.FormatFloat(f, 'e', -1, 64)
		return strings.NewReplacer("e+0", "e+", "e-0", "e-").Replace(s)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToString is the script-level string conversion used by '+' and String().
func ToString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case undefined:
		return "undefined"
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return FormatNumber(x)
	case string:
		return x
	case *Array:
		parts := make([]string, 0, x.Len())
		for _, e := range x.Snapshot() {
			if IsNullish(e) {
				parts = append(parts, "")
				continue
			}
			parts = append(parts, ToString(e))
		}
		return strings.Join(parts, ",")
	case *Object:
		return "[object Object]"
	case *ErrorValue:
		return "Error: " + x.Message
	case error:
		return x.Error()
	case Native, Callable:
		return "function"
	}
	return fmt.Sprint(v)
}

// Inspect renders a value for diagnostics and print(): strings inside containers are
// quoted, containers are expanded.
func Inspect(v Value) string {
	var sb strings.Builder
	inspect(&sb, v, false, 0)
	return sb.String()
}

func inspect(sb *strings.Builder, v Value, nested bool, depth int) {
	if depth > 8 {
		sb.WriteString("...")
		return
	}
	switch x := v.(type) {
	case string:
		if nested {
			sb.WriteString(strconv.Quote(x))
			return
		}
		sb.WriteString(x)
	case *Array:
		sb.WriteString("[")
		for i, e := range x.Snapshot() {
			if i > 0 {
				sb.WriteString(", ")
			}
			inspect(sb, e, true, depth+1)
		}
		sb.WriteString("]")
	case *Object:
		sb.WriteString("{")
		for i, k := range x.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			f, _ := x.Get(k)
			sb.WriteString(k)
			sb.WriteString(": ")
			inspect(sb, f, true, depth+1)
		}
		sb.WriteString("}")
	default:
		sb.WriteString(ToString(v))
	}
}

// Keys lists the own enumerable keys of a collection, as for-in sees them.
func Keys(v Value) []string {
	switch x := v.(type) {
	case *Object:
		return x.Keys()
	case *Array:
		return indexKeys(x.Len())
	case string:
		return indexKeys(len([]rune(x)))
	}
	return nil
}

func indexKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}
