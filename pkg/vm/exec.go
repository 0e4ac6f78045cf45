package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/control"
	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
)

// execBlock runs the statements of one scope. Deferred actions are armed as their
// statements are reached and drain, oldest first, when the block finishes for any
// reason.
func (c *call) execBlock(block *ast.Node, f *frame) (sig control.Signal, err error) {
	b := block.Data.(ast.BlockNode)
	var cleanups []control.Action
	if b.Defers > 0 {
		defer func() {
			if len(cleanups) == 0 {
				return
			}
			c.unit.log.Debugf(util.CatCleanup, "draining %d deferred action(s), err=%v", len(cleanups), err)
			err = control.RunCleanup(cleanups, err, c.unit.cfg.Cleanup, c.unit.suppressed)
		}()
	}

	for _, stmt := range b.Stmts {
		if stmt.Type == ast.Defer {
			cleanups = append(cleanups, c.deferred(stmt, f))
			continue
		}
		sig, err = c.exec(stmt, f)
		if err != nil || sig != control.None {
			return sig, err
		}
	}
	return control.None, nil
}

// deferred builds the cleanup action of a defer statement. Its callee and arguments
// are evaluated when it runs. A deferred block sees the error in flight as `error`.
func (c *call) deferred(stmt *ast.Node, f *frame) control.Action {
	d := stmt.Data.(ast.DeferNode)
	return func(inFlight error) error {
		dc := &call{ctx: context.WithoutCancel(c.ctx), unit: c.unit, frame: c.frame}
		if d.Block != nil {
			df := newFrame(f)
			df.define("error", value.FromError(inFlight))
			_, err := dc.execBlock(d.Block, df)
			return err
		}
		_, err := dc.evalCall(d.Call, f)
		return c.wrap(stmt, err)
	}
}

func (c *call) exec(stmt *ast.Node, f *frame) (control.Signal, error) {
	sig, err := c.execStmt(stmt, f)
	if err != nil {
		return sig, c.wrap(stmt, err)
	}
	return sig, nil
}

// wrap tags err with the line of stmt, once.
func (c *call) wrap(stmt *ast.Node, err error) error {
	if err == nil || !c.unit.cfg.IsFeatureEnabled(config.FeatLineInfo) {
		return err
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	return &RuntimeError{Line: stmt.Tok.Line, Err: err}
}

func (c *call) execStmt(stmt *ast.Node, f *frame) (control.Signal, error) {
	switch stmt.Type {
	case ast.ExprStmt:
		_, err := c.eval(stmt.Data.(ast.ExprStmtNode).Expr, f)
		return control.None, err

	case ast.VarDecl:
		// locals are created when the function starts
		return control.None, nil

	case ast.Let:
		d := stmt.Data.(ast.LetNode)
		v, err := c.eval(d.Value, f)
		if err != nil {
			return control.None, err
		}
		return control.None, c.assign(d.Target, v, f)

	case ast.Await:
		return control.None, c.execAwait(stmt.Data.(ast.AwaitNode), f)

	case ast.Sleep:
		ms, err := c.eval(stmt.Data.(ast.SleepNode).Millis, f)
		if err != nil {
			return control.None, err
		}
		c.unit.log.Debugf(util.CatAsync, "sleep %v ms", ms)
		return control.None, control.Delay(c.ctx, value.ToNumber(ms))

	case ast.If:
		d := stmt.Data.(ast.IfNode)
		branches := make([]control.Branch, len(d.Branches))
		for i, br := range d.Branches {
			br := br
			branches[i] = control.Branch{
				Cond: c.test(br.Cond, f),
				Body: func() (control.Signal, error) { return c.execBlock(br.Body, f) },
			}
		}
		var fallback control.Body
		if d.Else != nil {
			fallback = func() (control.Signal, error) { return c.execBlock(d.Else, f) }
		}
		return control.Dispatch(branches, fallback)

	case ast.For:
		d := stmt.Data.(ast.ForNode)
		test := func() (bool, error) { return true, nil }
		if d.Cond != nil {
			test = c.test(d.Cond, f)
		}
		return control.ConditionLoop(c.ctx, test, func() (control.Signal, error) {
			return c.execBlock(d.Body, f)
		})

	case ast.ForIn:
		d := stmt.Data.(ast.ForInNode)
		collection, err := c.eval(d.Collection, f)
		if err != nil {
			return control.None, err
		}
		keys := value.Keys(collection)
		c.unit.log.Debugf(util.CatFlow, "for %s in %d key(s)", d.Name, len(keys))
		return control.CollectionLoop(c.ctx, keys, func(key string) (control.Signal, error) {
			if !f.set(d.Name, key) {
				c.frame.define(d.Name, key)
			}
			return c.execBlock(d.Body, f)
		})

	case ast.Break:
		return control.Break, nil

	case ast.Continue:
		return control.Continue, nil

	case ast.Return:
		d := stmt.Data.(ast.ReturnNode)
		results := make([]value.Value, 0, len(d.Values))
		for _, n := range d.Values {
			v, err := c.eval(n, f)
			if err != nil {
				return control.None, err
			}
			results = append(results, v)
		}
		c.results = results
		return control.Return, nil

	case ast.Throw:
		d := stmt.Data.(ast.ThrowNode)
		if d.Value == nil {
			return control.None, ErrThrow
		}
		v, err := c.eval(d.Value, f)
		if err != nil {
			return control.None, err
		}
		return control.None, value.ToError(v)

	case ast.FuncDecl:
		fn := stmt.Data.(*ast.Func)
		closure := &Closure{fn: fn, env: f, unit: c.unit}
		if !f.set(fn.Name, closure) {
			f.define(fn.Name, closure)
		}
		return control.None, nil

	case ast.Native:
		for _, s := range stmt.Data.(ast.NativeNode).Stmts {
			if _, err := c.exec(s, f); err != nil {
				return control.None, err
			}
		}
		return control.None, nil

	case ast.Block:
		return c.execBlock(stmt, f)
	}
	return control.None, fmt.Errorf("cannot execute node type %d", stmt.Type)
}

func (c *call) test(cond *ast.Node, f *frame) control.Test {
	return func() (bool, error) {
		v, err := c.eval(cond, f)
		return value.Truthy(v), err
	}
}

// execAwait runs an await statement. The call's results are bound to the targets in
// order; missing results bind undefined.
func (c *call) execAwait(d ast.AwaitNode, f *frame) error {
	var results []value.Value
	if d.Delay != nil {
		v, err := c.eval(d.Delay, f)
		if err != nil {
			return err
		}
		ms := value.ToNumber(v)
		if err := control.Delay(c.ctx, ms); err != nil {
			return err
		}
		results = []value.Value{ms}
	} else {
		var err error
		if results, err = c.evalCall(d.Call, f); err != nil {
			return err
		}
	}
	for i, target := range d.Targets {
		v := value.Undefined
		if i < len(results) {
			v = results[i]
		}
		if err := c.assign(target, v, f); err != nil {
			return err
		}
	}
	return nil
}
