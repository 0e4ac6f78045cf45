package value

import (
	"fmt"
	"math"
	"strconv"
)

// Binary applies a binary operator. && and || are short-circuited by the caller and
// never reach here.
func Binary(op string, a, b Value) (Value, error) {
	switch op {
	case "+":
		return Add(a, b), nil
	case "-":
		return ToNumber(a) - ToNumber(b), nil
	case "*":
		return ToNumber(a) * ToNumber(b), nil
	case "/":
		return ToNumber(a) / ToNumber(b), nil
	case "%":
		return math.Mod(ToNumber(a), ToNumber(b)), nil
	case "<<":
		return float64(toInt32(a) << (toUint32(b) & 31)), nil
	case ">>":
		return float64(toInt32(a) >> (toUint32(b) & 31)), nil
	case "&":
		return float64(toInt32(a) & toInt32(b)), nil
	case "|":
		return float64(toInt32(a) | toInt32(b)), nil
	case "^":
		return float64(toInt32(a) ^ toInt32(b)), nil
	case "==":
		return LooseEquals(a, b), nil
	case "!=":
		return !LooseEquals(a, b), nil
	case "===":
		return StrictEquals(a, b), nil
	case "!==":
		return !StrictEquals(a, b), nil
	case "<", ">", "<=", ">=":
		return compare(op, a, b), nil
	case "in":
		return hasKey(b, ToString(a))
	}
	return nil, fmt.Errorf("unsupported operator '%s'", op)
}

func Unary(op string, v Value) (Value, error) {
	switch op {
	case "!":
		return !Truthy(v), nil
	case "-":
		return -ToNumber(v), nil
	case "+":
		return ToNumber(v), nil
	case "~":
		return float64(^toInt32(v)), nil
	case "typeof":
		return TypeOf(v), nil
	}
	return nil, fmt.Errorf("unsupported operator '%s'", op)
}

func Add(a, b Value) Value {
	_, as := a.(string)
	_, bs := b.(string)
	if as || bs || isContainer(a) || isContainer(b) {
		return ToString(a) + ToString(b)
	}
	return ToNumber(a) + ToNumber(b)
}

func isContainer(v Value) bool {
	switch v.(type) {
	case *Array, *Object:
		return true
	}
	return false
}

func StrictEquals(a, b Value) bool {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case nil:
		return b == nil
	case undefined:
		return IsUndefined(b)
	case *Array:
		y, ok := b.(*Array)
		return ok && x == y
	case *Object:
		y, ok := b.(*Object)
		return ok && x == y
	}
	return sameReference(a, b)
}

func sameReference(a, b Value) bool {
	defer func() { _ = recover() }()
	return a == b
}

func LooseEquals(a, b Value) bool {
	if IsNullish(a) || IsNullish(b) {
		return IsNullish(a) && IsNullish(b)
	}
	_, an := a.(float64)
	_, bn := b.(float64)
	_, as := a.(string)
	_, bs := b.(string)
	_, ab := a.(bool)
	_, bb := b.(bool)
	switch {
	case (an || as || ab) && (bn || bs || bb) && !(as && bs):
		return ToNumber(a) == ToNumber(b)
	}
	return StrictEquals(a, b)
}

func compare(op string, a, b Value) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch op {
		case "<":
			return as < bs
		case ">":
			return as > bs
		case "<=":
			return as <= bs
		default:
			return as >= bs
		}
	}
	x, y := ToNumber(a), ToNumber(b)
	switch op {
	case "<":
		return x < y
	case ">":
		return x > y
	case "<=":
		return x <= y
	default:
		return x >= y
	}
}

func toInt32(v Value) int32 {
	f := ToNumber(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(f)))
}

func toUint32(v Value) uint32 { return uint32(toInt32(v)) }

// arrayIndex parses key as an array index.
func arrayIndex(key Value) (int, bool) {
	switch k := key.(type) {
	case float64:
		if k >= 0 && k == math.Trunc(k) {
			return int(k), true
		}
	case string:
		if n, err := strconv.Atoi(k); err == nil && n >= 0 {
			return n, true
		}
	}
	return 0, false
}

func hasKey(container Value, key string) (Value, error) {
	switch c := container.(type) {
	case *Object:
		_, ok := c.Get(key)
		return ok, nil
	case *Array:
		i, ok := arrayIndex(key)
		return ok && i < c.Len(), nil
	}
	return nil, fmt.Errorf("cannot use 'in' operator to search for '%s' in %s", key, ToString(container))
}

// GetIndex reads container[key].
func GetIndex(container, key Value) (Value, error) {
	switch c := container.(type) {
	case *Array:
		if i, ok := arrayIndex(key); ok {
			return c.Get(i), nil
		}
	case string:
		if i, ok := arrayIndex(key); ok {
			r := []rune(c)
			if i < len(r) {
				return string(r[i]), nil
			}
			return Undefined, nil
		}
	}
	return GetMember(container, ToString(key))
}

// SetIndex writes container[key] = v.
func SetIndex(container, key, v Value) error {
	switch c := container.(type) {
	case *Array:
		if i, ok := arrayIndex(key); ok {
			c.Set(i, v)
			return nil
		}
		return fmt.Errorf("invalid array index %s", Inspect(key))
	case *Object:
		c.Set(ToString(key), v)
		return nil
	}
	return fmt.Errorf("cannot set property '%s' of %s", ToString(key), ToString(container))
}

// GetMember reads container.name, including the built-in methods of arrays and
// strings.
func GetMember(container Value, name string) (Value, error) {
	switch c := container.(type) {
	case nil, undefined:
		return nil, fmt.Errorf("cannot read property '%s' of %s", name, ToString(container))
	case *Object:
		if v, ok := c.Get(name); ok {
			return v, nil
		}
		return Undefined, nil
	case *Array:
		if name == "length" {
			return float64(c.Len()), nil
		}
		if i, ok := arrayIndex(name); ok {
			return c.Get(i), nil
		}
		if m, ok := arrayMethods[name]; ok {
			return bind(c, m), nil
		}
	case string:
		if name == "length" {
			return float64(len([]rune(c))), nil
		}
		if m, ok := stringMethods[name]; ok {
			return bind(c, m), nil
		}
	case *ErrorValue:
		if name == "message" {
			return c.Message, nil
		}
	case error:
		if name == "message" {
			return c.Error(), nil
		}
	}
	return Undefined, nil
}

// SetMember writes container.name = v.
func SetMember(container Value, name string, v Value) error {
	switch c := container.(type) {
	case *Object:
		c.Set(name, v)
		return nil
	case *Array:
		if name == "length" {
			n := int(ToNumber(v))
			c.mu.Lock()
			if n >= 0 && n < len(c.Elems) {
				c.Elems = c.Elems[:n]
			}
			c.mu.Unlock()
			return nil
		}
		return SetIndex(c, name, v)
	}
	return fmt.Errorf("cannot set property '%s' of %s", name, ToString(container))
}

type method func(recv Value, args []Value) (Value, error)

func bind(recv Value, m method) Native {
	return func(args []Value) (Value, error) { return m(recv, args) }
}

func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}
