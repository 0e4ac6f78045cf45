// Package control holds the flow primitives a running unit is driven by: branch
// dispatch, the two loop forms, cleanup draining, timed delays and the completion
// guards. Bodies report how they finished with a Signal; a panic inside a body or
// cleanup action is recovered and returned as an error.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xplshn/bright/pkg/value"
)

type Signal int

const (
	None Signal = iota
	Continue
	Break
	Return
)

func (s Signal) String() string {
	switch s {
	case Continue:
		return "continue"
	case Break:
		return "break"
	case Return:
		return "return"
	}
	return "none"
}

type (
	Body    func() (Signal, error)
	Test    func() (bool, error)
	KeyBody func(key string) (Signal, error)
	Action  func(err error) error
)

type Branch struct {
	Cond Test
	Body Body
}

// ErrReentered is reported when a single-shot continuation fires twice.
var ErrReentered = errors.New("continuation invoked more than once")

// Dispatch runs the body of the first branch whose guard holds, or fallback when none
// does. Guards after the chosen one are never evaluated. A nil fallback is allowed.
func Dispatch(branches []Branch, fallback Body) (Signal, error) {
	for _, b := range branches {
		ok, err := protectTest(b.Cond)
		if err != nil {
			return None, err
		}
		if ok {
			return protect(b.Body)
		}
	}
	if fallback == nil {
		return None, nil
	}
	return protect(fallback)
}

// ConditionLoop runs body while test holds. Break ends the loop normally and Return is
// handed back to the caller. The context is checked at every iteration boundary.
func ConditionLoop(ctx context.Context, test Test, body Body) (Signal, error) {
	for {
		if err := ctx.Err(); err != nil {
			return None, err
		}
		ok, err := protectTest(test)
		if err != nil || !ok {
			return None, err
		}
		sig, err := protect(body)
		if err != nil {
			return sig, err
		}
		switch sig {
		case Break:
			return None, nil
		case Return:
			return Return, nil
		}
	}
}

// CollectionLoop runs body once per key. keys is a snapshot: the caller takes it before
// the first iteration so later changes to the collection are not seen.
func CollectionLoop(ctx context.Context, keys []string, body KeyBody) (Signal, error) {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return None, err
		}
		key := key
		sig, err := protect(func() (Signal, error) { return body(key) })
		if err != nil {
			return sig, err
		}
		switch sig {
		case Break:
			return None, nil
		case Return:
			return Return, nil
		}
	}
	return None, nil
}

// Policy decides which error survives when cleanup actions fail.
type Policy int

const (
	// KeepFirst keeps the error that started the unwind; without one, the first
	// failing action wins.
	KeepFirst Policy = iota
	// Overwrite lets every failing action replace the error in flight.
	Overwrite
	// Join reports the original error and every action failure together.
	Join
)

var policyNames = map[Policy]string{KeepFirst: "keep-first", Overwrite: "overwrite", Join: "join"}

func (p Policy) String() string { return policyNames[p] }

func ParsePolicy(name string) (Policy, error) {
	for p, n := range policyNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return KeepFirst, fmt.Errorf("unknown cleanup policy '%s'. Supported: keep-first, overwrite, join", name)
}

// RunCleanup drains actions front to back. Under keep-first and join every action
// receives inFlight, the error that ended the block; under overwrite each one receives
// the error that would be returned at the moment it runs. suppressed, when non-nil, is
// told about each failure the policy drops.
func RunCleanup(actions []Action, inFlight error, policy Policy, suppressed func(error)) error {
	current := inFlight
	var failures []error
	for _, action := range actions {
		observed := inFlight
		if policy == Overwrite {
			observed = current
		}
		err := protectAction(action, observed)
		if err == nil {
			continue
		}
		switch policy {
		case Overwrite:
			if current != nil && suppressed != nil {
				suppressed(current)
			}
			current = err
		case Join:
			failures = append(failures, err)
		default:
			if current == nil {
				current = err
			} else if suppressed != nil {
				suppressed(err)
			}
		}
	}
	if policy == Join && len(failures) > 0 {
		return errors.Join(append([]error{inFlight}, failures...)...)
	}
	return current
}

// Delay waits for ms milliseconds on a timer. It never returns early unless ctx ends.
func Delay(ctx context.Context, ms float64) error {
	if ms < 0 || ms != ms {
		ms = 0
	}
	t := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SplitTrailingCallback separates a host-style argument list into the positional
// values and the completion callback in last position.
func SplitTrailingCallback(args []any) ([]any, value.Callback, error) {
	if len(args) == 0 {
		return nil, nil, errors.New("need a callback parameter")
	}
	switch cb := args[len(args)-1].(type) {
	case value.Callback:
		return args[:len(args)-1], cb, nil
	case func(error, ...value.Value):
		return args[:len(args)-1], cb, nil
	default:
		return nil, nil, fmt.Errorf("need a callback parameter, got %T", cb)
	}
}

// Once guards a completion callback. Calls after the first are dropped and passed to
// reentered, which may be nil.
func Once(cb value.Callback, reentered func(error)) value.Callback {
	var fired atomic.Bool
	return func(err error, results ...value.Value) {
		if !fired.CompareAndSwap(false, true) {
			if reentered != nil {
				reentered(ErrReentered)
			}
			return
		}
		cb(err, results...)
	}
}

// PanicError carries a value recovered from a panicking body or host function.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recover converts a recovered panic value into an error and stores it in *err.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r}
	}
}

func protect(body Body) (sig Signal, err error) {
	defer Recover(&err)
	return body()
}

func protectTest(test Test) (ok bool, err error) {
	defer Recover(&err)
	return test()
}

func protectAction(action Action, inFlight error) (err error) {
	defer Recover(&err)
	return action(inFlight)
}
