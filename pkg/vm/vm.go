// Package vm runs compiled programs. Every invocation of a Unit runs on its own
// goroutine and walks the program tree; `await` and `sleep` park that goroutine on a
// channel or timer, so the caller is never blocked. The invocation's completion
// callback fires exactly once.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/control"
	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
)

var (
	ErrArity       = errors.New("not enough arguments")
	ErrThrow       = errors.New("throw")
	ErrUndefined   = errors.New("is not defined")
	ErrNotFunction = errors.New("is not a function")
)

// RuntimeError attaches the 0-based source line of the failing statement.
type RuntimeError struct {
	Line int
	Err  error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("line %d: %v", e.Line+1, e.Err) }
func (e *RuntimeError) Unwrap() error { return e.Err }

type Unit struct {
	name    string
	prog    *ast.Program
	cfg     *config.Config
	globals map[string]value.Value
	log     *util.Logger
}

type Option func(*Unit)

// WithGlobals adds host values visible to every function of the unit.
func WithGlobals(globals map[string]value.Value) Option {
	return func(u *Unit) {
		for k, v := range globals {
			u.globals[k] = v
		}
	}
}

func WithLogger(l *util.Logger) Option { return func(u *Unit) { u.log = l } }
func WithName(name string) Option      { return func(u *Unit) { u.name = name } }

func New(prog *ast.Program, cfg *config.Config, opts ...Option) *Unit {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	u := &Unit{name: "main", prog: prog, cfg: cfg, globals: make(map[string]value.Value), log: util.Discard()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Unit) Name() string           { return u.name }
func (u *Unit) Program() *ast.Program  { return u.prog }
func (u *Unit) Config() *config.Config { return u.cfg }

// Call starts an invocation and returns at once. done receives the error, or nil and
// the returned values.
func (u *Unit) Call(ctx context.Context, args []value.Value, done value.Callback) {
	done = control.Once(done, u.reentered)
	go func() {
		results, err := u.run(ctx, u.prog.Main, nil, args)
		done(err, results...)
	}()
}

// CallAsync makes a Unit usable wherever scripts await a host function.
func (u *Unit) CallAsync(ctx context.Context, args []value.Value, done value.Callback) {
	u.Call(ctx, args, done)
}

// Invoke uses the trailing-callback convention: the last argument is the completion,
// either a value.Callback or a func(error, ...value.Value). The other arguments go
// through value.FromGo.
func (u *Unit) Invoke(args ...any) error {
	positional, done, err := control.SplitTrailingCallback(args)
	if err != nil {
		return err
	}
	values := make([]value.Value, len(positional))
	for i, a := range positional {
		values[i] = value.FromGo(a)
	}
	u.Call(context.Background(), values, done)
	return nil
}

type completion struct {
	err     error
	results []value.Value
}

// Run invokes the unit and waits for its completion.
func (u *Unit) Run(ctx context.Context, args ...any) ([]value.Value, error) {
	values := make([]value.Value, len(args))
	for i, a := range args {
		values[i] = value.FromGo(a)
	}
	ch := make(chan completion, 1)
	u.Call(ctx, values, func(err error, results ...value.Value) {
		ch <- completion{err: err, results: results}
	})
	r := <-ch
	return r.results, r.err
}

func (u *Unit) reentered(err error) {
	u.log.Warnf(util.CatAsync, "%s: %v", u.name, err)
}

func (u *Unit) suppressed(err error) {
	u.log.Warnf(util.CatCleanup, "%s: error from a deferred action was dropped: %v", u.name, err)
}

// run executes one function invocation on the calling goroutine.
func (u *Unit) run(ctx context.Context, fn *ast.Func, env *frame, args []value.Value) (results []value.Value, err error) {
	defer control.Recover(&err)

	if u.cfg.IsFeatureEnabled(config.FeatStrictArity) && len(args) < len(fn.Params) {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArity, funcName(fn), len(fn.Params), len(args))
	}

	f := newFrame(env)
	for _, name := range fn.Locals {
		f.define(name, value.Undefined)
	}
	for i, name := range fn.Params {
		v := value.Undefined
		if i < len(args) {
			v = args[i]
		}
		f.define(name, v)
	}
	f.define("$arguments", value.NewArray(append([]value.Value(nil), args...)...))

	c := &call{ctx: ctx, unit: u, frame: f}
	sig, err := c.execBlock(fn.Body, f)
	if err != nil {
		return nil, err
	}
	if sig == control.Return {
		u.log.Debugf(util.CatFlow, "%s returned %d value(s)", funcName(fn), len(c.results))
		return c.results, nil
	}
	return nil, nil
}

func funcName(fn *ast.Func) string {
	if fn.Name == "" {
		return "anonymous function"
	}
	return fn.Name
}

// Closure is a script function together with the frame it was created in.
type Closure struct {
	fn   *ast.Func
	env  *frame
	unit *Unit
}

func (c *Closure) Name() string { return funcName(c.fn) }

func (c *Closure) CallAsync(ctx context.Context, args []value.Value, done value.Callback) {
	done = control.Once(done, c.unit.reentered)
	go func() {
		results, err := c.unit.run(ctx, c.fn, c.env, args)
		done(err, results...)
	}()
}

// frame holds the variables of one function invocation, or of a deferred block.
type frame struct {
	mu     sync.RWMutex
	vars   map[string]value.Value
	parent *frame
}

func newFrame(parent *frame) *frame {
	return &frame{vars: make(map[string]value.Value), parent: parent}
}

func (f *frame) define(name string, v value.Value) {
	f.mu.Lock()
	f.vars[name] = v
	f.mu.Unlock()
}

func (f *frame) get(name string) (value.Value, bool) {
	for fr := f; fr != nil; fr = fr.parent {
		fr.mu.RLock()
		v, ok := fr.vars[name]
		fr.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// set assigns to the nearest frame that declares name.
func (f *frame) set(name string, v value.Value) bool {
	for fr := f; fr != nil; fr = fr.parent {
		fr.mu.Lock()
		_, ok := fr.vars[name]
		if ok {
			fr.vars[name] = v
		}
		fr.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

// call is the state of one running function invocation.
type call struct {
	ctx     context.Context
	unit    *Unit
	frame   *frame
	results []value.Value
}

// await calls a host function and parks until it completes, the context ends or the
// configured await timeout passes.
func (c *call) await(fn value.Callable, args []value.Value) (results []value.Value, err error) {
	ctx := c.ctx
	timeout := c.unit.cfg.AwaitTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch := make(chan completion, 1)
	done := control.Once(func(err error, results ...value.Value) {
		ch <- completion{err: err, results: results}
	}, c.unit.reentered)

	start := time.Now()
	if err := startAsync(ctx, fn, args, done); err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		c.unit.log.Debugf(util.CatAsync, "completed after %s with %d result(s), err=%v", time.Since(start), len(r.results), r.err)
		return r.results, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && c.ctx.Err() == nil {
			return nil, fmt.Errorf("await timed out after %s: %w", timeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func startAsync(ctx context.Context, fn value.Callable, args []value.Value, done value.Callback) (err error) {
	defer control.Recover(&err)
	fn.CallAsync(ctx, args, done)
	return nil
}

func callNative(fn value.Native, args []value.Value) (v value.Value, err error) {
	defer control.Recover(&err)
	return fn(args)
}
