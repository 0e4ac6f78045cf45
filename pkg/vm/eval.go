package vm

import (
	"fmt"
	"math"

	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
)

func (c *call) lookup(name string, f *frame) (value.Value, bool) {
	if v, ok := f.get(name); ok {
		return v, true
	}
	v, ok := c.unit.globals[name]
	return v, ok
}

func (c *call) eval(node *ast.Node, f *frame) (value.Value, error) {
	switch node.Type {
	case ast.Number:
		return node.Data.(ast.NumberNode).Value, nil
	case ast.String:
		return node.Data.(ast.StringNode).Value, nil
	case ast.Literal:
		switch node.Data.(ast.LiteralNode).Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		case "NaN":
			return math.NaN(), nil
		}
		return value.Undefined, nil

	case ast.Ident:
		name := node.Data.(ast.IdentNode).Name
		if v, ok := c.lookup(name, f); ok {
			return v, nil
		}
		if c.unit.cfg.IsFeatureEnabled(config.FeatStrictVars) {
			return nil, fmt.Errorf("%s %w", name, ErrUndefined)
		}
		return value.Undefined, nil

	case ast.Array:
		elems := node.Data.(ast.ArrayNode).Elems
		arr := value.NewArray()
		for _, e := range elems {
			v, err := c.eval(e, f)
			if err != nil {
				return nil, err
			}
			arr.Elems = append(arr.Elems, v)
		}
		return arr, nil

	case ast.Object:
		d := node.Data.(ast.ObjectNode)
		obj := value.NewObject()
		for i, k := range d.Keys {
			v, err := c.eval(d.Values[i], f)
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		return obj, nil

	case ast.Member:
		d := node.Data.(ast.MemberNode)
		obj, err := c.eval(d.Expr, f)
		if err != nil {
			return nil, err
		}
		return value.GetMember(obj, d.Name)

	case ast.Index:
		d := node.Data.(ast.IndexNode)
		obj, err := c.eval(d.Expr, f)
		if err != nil {
			return nil, err
		}
		key, err := c.eval(d.Index, f)
		if err != nil {
			return nil, err
		}
		return value.GetIndex(obj, key)

	case ast.Call:
		results, err := c.evalCall(node, f)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return value.Undefined, nil
		}
		return results[0], nil

	case ast.Unary:
		d := node.Data.(ast.UnaryNode)
		if d.Op == "typeof" && d.Expr.Type == ast.Ident {
			if _, ok := c.lookup(d.Expr.Data.(ast.IdentNode).Name, f); !ok {
				return "undefined", nil
			}
		}
		v, err := c.eval(d.Expr, f)
		if err != nil {
			return nil, err
		}
		return value.Unary(d.Op, v)

	case ast.Update:
		d := node.Data.(ast.UpdateNode)
		old, err := c.eval(d.Target, f)
		if err != nil {
			return nil, err
		}
		n := value.ToNumber(old)
		updated := n + 1
		if d.Op == "--" {
			updated = n - 1
		}
		if err := c.assign(d.Target, updated, f); err != nil {
			return nil, err
		}
		if d.Prefix {
			return updated, nil
		}
		return n, nil

	case ast.Binary:
		d := node.Data.(ast.BinaryNode)
		left, err := c.eval(d.Left, f)
		if err != nil {
			return nil, err
		}
		switch d.Op {
		case "&&":
			if !value.Truthy(left) {
				return left, nil
			}
			return c.eval(d.Right, f)
		case "||":
			if value.Truthy(left) {
				return left, nil
			}
			return c.eval(d.Right, f)
		}
		right, err := c.eval(d.Right, f)
		if err != nil {
			return nil, err
		}
		return value.Binary(d.Op, left, right)

	case ast.Ternary:
		d := node.Data.(ast.TernaryNode)
		cond, err := c.eval(d.Cond, f)
		if err != nil {
			return nil, err
		}
		if value.Truthy(cond) {
			return c.eval(d.Then, f)
		}
		return c.eval(d.Else, f)

	case ast.Assign:
		d := node.Data.(ast.AssignNode)
		var current value.Value
		if d.Op != "=" {
			var err error
			if current, err = c.eval(d.Target, f); err != nil {
				return nil, err
			}
		}
		v, err := c.eval(d.Value, f)
		if err != nil {
			return nil, err
		}
		if d.Op != "=" {
			if v, err = value.Binary(d.Op[:len(d.Op)-1], current, v); err != nil {
				return nil, err
			}
		}
		return v, c.assign(d.Target, v, f)

	case ast.FuncLit:
		return &Closure{fn: node.Data.(*ast.Func), env: f, unit: c.unit}, nil
	}
	return nil, fmt.Errorf("cannot evaluate node type %d", node.Type)
}

// assign stores v into an identifier, member or index target. An undeclared name is an
// error under strict-vars and becomes a local of the running function otherwise.
func (c *call) assign(target *ast.Node, v value.Value, f *frame) error {
	switch target.Type {
	case ast.Ident:
		name := target.Data.(ast.IdentNode).Name
		if f.set(name, v) {
			return nil
		}
		if c.unit.cfg.IsFeatureEnabled(config.FeatStrictVars) {
			return fmt.Errorf("%s %w", name, ErrUndefined)
		}
		c.frame.define(name, v)
		return nil
	case ast.Member:
		d := target.Data.(ast.MemberNode)
		obj, err := c.eval(d.Expr, f)
		if err != nil {
			return err
		}
		return value.SetMember(obj, d.Name, v)
	case ast.Index:
		d := target.Data.(ast.IndexNode)
		obj, err := c.eval(d.Expr, f)
		if err != nil {
			return err
		}
		key, err := c.eval(d.Index, f)
		if err != nil {
			return err
		}
		return value.SetIndex(obj, key, v)
	}
	return fmt.Errorf("invalid assignment target")
}

// evalCall evaluates a call node and returns every value its callee completed with.
func (c *call) evalCall(node *ast.Node, f *frame) ([]value.Value, error) {
	d := node.Data.(ast.CallNode)
	callee, err := c.eval(d.Func, f)
	if err != nil {
		return nil, err
	}
	args := make([]value.Value, 0, len(d.Args))
	for _, a := range d.Args {
		v, err := c.eval(a, f)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return c.callValue(callee, args, describe(d.Func))
}

// callValue calls any function value. Script functions run on this goroutine; host
// functions with a completion callback are awaited.
func (c *call) callValue(callee value.Value, args []value.Value, name string) ([]value.Value, error) {
	switch fn := callee.(type) {
	case value.Native:
		v, err := callNative(fn, args)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	case *Closure:
		return fn.unit.run(c.ctx, fn.fn, fn.env, args)
	case *Unit:
		return fn.run(c.ctx, fn.prog.Main, nil, args)
	case value.Callable:
		c.unit.log.Debugf(util.CatAsync, "await %s with %d argument(s)", name, len(args))
		return c.await(fn, args)
	}
	return nil, fmt.Errorf("%s %w", name, ErrNotFunction)
}

func describe(node *ast.Node) string {
	switch node.Type {
	case ast.Ident:
		return node.Data.(ast.IdentNode).Name
	case ast.Member:
		d := node.Data.(ast.MemberNode)
		return describe(d.Expr) + "." + d.Name
	case ast.Index:
		return describe(node.Data.(ast.IndexNode).Expr) + "[...]"
	}
	return "expression"
}
