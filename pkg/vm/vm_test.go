package vm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/bright/pkg/classify"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/control"
	"github.com/xplshn/bright/pkg/lexer"
	"github.com/xplshn/bright/pkg/parser"
	"github.com/xplshn/bright/pkg/value"
)

// recorder collects the lines written by the `log` global.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) log(args []value.Value) (value.Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = value.Inspect(a)
	}
	r.mu.Lock()
	r.lines = append(r.lines, strings.Join(parts, " "))
	r.mu.Unlock()
	return value.Undefined, nil
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func testGlobals(rec *recorder) map[string]value.Value {
	return map[string]value.Value{
		"log": value.Native(rec.log),
		"none": value.Async(func(_ []value.Value, done value.Callback) {
			go done(nil)
		}),
		"multi": value.Async(func(_ []value.Value, done value.Callback) {
			go done(nil, float64(1), float64(2), float64(3))
		}),
		"echo": value.ContextAsync(func(_ context.Context, args []value.Value, done value.Callback) {
			go done(nil, args...)
		}),
		"twice": value.Async(func(_ []value.Value, done value.Callback) {
			done(nil, float64(1))
			done(nil, float64(2))
		}),
		"never": value.ContextAsync(func(context.Context, []value.Value, value.Callback) {}),
		"fail": value.Native(func(args []value.Value) (value.Value, error) {
			return nil, errors.New(value.ToString(args[0]))
		}),
		"Error": value.Native(func(args []value.Value) (value.Value, error) {
			return &value.ErrorValue{Message: value.ToString(args[0])}, nil
		}),
	}
}

func compile(t *testing.T, source string, cfg *config.Config, rec *recorder) *Unit {
	t.Helper()
	raw, err := lexer.Tokenize(source)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	prog, err := parser.Parse(classify.Classify(raw), cfg)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return New(prog, cfg, WithGlobals(testGlobals(rec)))
}

func inspectAll(results []value.Value) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = value.Inspect(r)
	}
	return out
}

func run(t *testing.T, source string, cfg *config.Config, args ...any) ([]string, []string, error) {
	t.Helper()
	rec := &recorder{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := compile(t, source, cfg, rec).Run(ctx, args...)
	return inspectAll(results), rec.Lines(), err
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		args    []any
		want    []string
		wantLog []string
	}{
		{
			name:   "return order",
			source: "argument a b\nreturn b a",
			args:   []any{1, "two"},
			want:   []string{"two", "1"},
		},
		{
			name:    "no return",
			source:  "log(1)",
			want:    []string{},
			wantLog: []string{"1"},
		},
		{
			name:   "await binds every result",
			source: "var a, b, c\nlet a, b, c = await multi()\nreturn a b c",
			want:   []string{"1", "2", "3"},
		},
		{
			name:   "missing results are undefined",
			source: "var a, b\nlet a, b = await none()\nreturn a b",
			want:   []string{"undefined", "undefined"},
		},
		{
			name:   "extra results are dropped",
			source: "var a\nlet a = await multi()\nreturn a",
			want:   []string{"1"},
		},
		{
			name:   "call without await yields the first result",
			source: "var a\nlet a = multi()\nreturn a",
			want:   []string{"1"},
		},
		{
			name:   "await without targets",
			source: "await echo(1)\nawait 1\nsleep 1\nreturn 7",
			want:   []string{"7"},
		},
		{
			name:   "await delay yields its duration",
			source: "var d\nlet d = await 2\nreturn d",
			want:   []string{"2"},
		},
		{
			name:    "member and index targets",
			source:  "var o = {a: 1}, l = [0, 0]\nlet o.a, l[1] = await echo(5, 6)\nlog(o, l)",
			want:    []string{},
			wantLog: []string{`{a: 5} [0, 6]`},
		},
		{
			name:   "first completion wins",
			source: "var a\nlet a = await twice()\nreturn a",
			want:   []string{"1"},
		},
		{
			name: "condition loop",
			source: `var i = 0, sum = 0
for i < 10 {
    i++
    if i % 2 == 0 {
        continue
    }
    if i > 7 {
        break
    }
    sum += i
}
return sum i`,
			want: []string{"16", "9"},
		},
		{
			name: "loop without condition",
			source: `var n = 0
for {
    await 0
    n++
    if n == 3 {
        break
    }
}
return n`,
			want: []string{"3"},
		},
		{
			name: "for in",
			source: `var k, out = ""
for k in {b: 1, a: 2} {
    out += k
}
for k in ["x", "y"] {
    out += k
}
return out`,
			want: []string{"ba01"},
		},
		{
			name: "for in walks the keys present when the loop starts",
			source: `var k, o = {a: 1, b: 2}, seen = ""
for k in o {
    o[k + "x"] = 1
    seen += k
}
log(o)
return seen`,
			want:    []string{"ab"},
			wantLog: []string{"{a: 1, b: 2, ax: 1, bx: 1}"},
		},
		{
			name:   "a string spanning lines keeps its statement together",
			source: "let s = \"a\nb\" + \"c\"\nreturn s",
			want:   []string{"a\nbc"},
		},
		{
			name:   "a lone = in an if condition compares",
			source: "var x = 2\nif x = 1 {\n    return 10\n}\nreturn x",
			want:   []string{"2"},
		},
		{
			name: "return from inside a loop",
			source: `function find(list, want) {
    var k
    for k in list {
        if list[k] == want {
            return k
        }
    }
    return want
}
var a, b
let a = await find(["a", "b", "c"], "c")
let b = find(["a"], "z")
return a b`,
			want: []string{"2", "z"},
		},
		{
			name: "closures share the enclosing frame",
			source: `var count = 0
function bump(by) {
    count += by
}
bump(1)
await bump(2)
let f = function() {
    return $arguments
}
var args
let args = f(1, "a")
log(args)
return count`,
			want:    []string{"3"},
			wantLog: []string{`[1, "a"]`},
		},
		{
			name: "deferred actions drain oldest first after the body",
			source: `var n = 1
defer log("first", n)
defer {
    log("block", error)
}
n = 2
log("body")`,
			want:    []string{},
			wantLog: []string{"body", "first 2", "block null"},
		},
		{
			name: "deferred actions of a nested block",
			source: `var i = 0
for i < 2 {
    defer log("iteration", i)
    i++
}
log("done")`,
			want:    []string{},
			wantLog: []string{"iteration 1", "iteration 2", "done"},
		},
		{
			name: "native block",
			source: `var x = 1
native {
    x = x + 41;
}
return x`,
			want: []string{"42"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, lines, err := run(t, tc.source, nil, tc.args...)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("results (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantLog, lines); diff != "" {
				t.Errorf("log (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIfChain(t *testing.T) {
	source := `argument x
if x == 1 {
    log("one")
} elseif x == 2 {
    log("two")
}
else {
    log("other")
}`
	for x, want := range map[int]string{1: "one", 2: "two", 3: "other"} {
		_, lines, err := run(t, source, nil, x)
		if err != nil {
			t.Fatalf("x=%d: %v", x, err)
		}
		if diff := cmp.Diff([]string{want}, lines); diff != "" {
			t.Errorf("x=%d (-want +got):\n%s", x, diff)
		}
	}
}

func TestThrow(t *testing.T) {
	_, lines, err := run(t, "defer log(\"first\")\ndefer {\n    log(\"block\", error)\n}\nthrow \"bad\"", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got, want := err.Error(), "line 5: uncaught bad"; got != want {
		t.Errorf("error = %q; want %q", got, want)
	}
	var re *RuntimeError
	if !errors.As(err, &re) || re.Line != 4 {
		t.Errorf("error %v does not carry line 4", err)
	}
	var thrown *value.Thrown
	if !errors.As(err, &thrown) || thrown.Value != "bad" {
		t.Errorf("error %v does not carry the thrown value", err)
	}
	if diff := cmp.Diff([]string{"first", "block bad"}, lines); diff != "" {
		t.Errorf("cleanup log (-want +got):\n%s", diff)
	}

	_, _, err = run(t, "log(1)\nthrow", nil)
	if !errors.Is(err, ErrThrow) {
		t.Errorf("bare throw: got %v; want ErrThrow", err)
	}

	_, _, err = run(t, "throw Error(\"disk\")", nil)
	var ev *value.ErrorValue
	if !errors.As(err, &ev) || ev.Message != "disk" {
		t.Errorf("throw Error(): got %v", err)
	}
}

func TestLineInfo(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatLineInfo, false)
	_, _, err := run(t, "log(1)\nthrow 3", cfg)
	var re *RuntimeError
	if errors.As(err, &re) {
		t.Errorf("got a line-tagged error with line-info off: %v", err)
	}
	if err == nil || err.Error() != "uncaught 3" {
		t.Errorf("error = %v; want uncaught 3", err)
	}
}

func TestHostError(t *testing.T) {
	diskFull := errors.New("disk full")
	rec := &recorder{}
	u := compile(t, "defer log(\"cleanup\")\nawait broken()\nlog(\"unreachable\")", nil, rec)
	u.globals["broken"] = value.Async(func(_ []value.Value, done value.Callback) {
		go done(diskFull)
	})
	_, err := u.Run(context.Background())
	if !errors.Is(err, diskFull) {
		t.Fatalf("got %v; want %v", err, diskFull)
	}
	if diff := cmp.Diff([]string{"cleanup"}, rec.Lines()); diff != "" {
		t.Errorf("log (-want +got):\n%s", diff)
	}
}

func TestHostPanic(t *testing.T) {
	rec := &recorder{}
	u := compile(t, "boom()", nil, rec)
	u.globals["boom"] = value.Native(func([]value.Value) (value.Value, error) { panic("kaput") })
	_, err := u.Run(context.Background())
	var pe *control.PanicError
	if !errors.As(err, &pe) || pe.Value != "kaput" {
		t.Fatalf("got %v; want a PanicError", err)
	}
}

func TestStrictVars(t *testing.T) {
	for _, source := range []string{"y = 1", "return z", "log(w)"} {
		if _, _, err := run(t, source, nil); !errors.Is(err, ErrUndefined) {
			t.Errorf("%q: got %v; want ErrUndefined", source, err)
		}
	}

	loose := config.NewConfig()
	if err := loose.ApplyProfile("loose"); err != nil {
		t.Fatal(err)
	}
	got, _, err := run(t, "y = 1\nreturn y z", loose)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1", "undefined"}, got); diff != "" {
		t.Errorf("loose (-want +got):\n%s", diff)
	}
}

func TestArity(t *testing.T) {
	source := "argument a b\nreturn a b"
	if _, _, err := run(t, source, nil, 1); !errors.Is(err, ErrArity) {
		t.Errorf("got %v; want ErrArity", err)
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatStrictArity, false)
	got, _, err := run(t, source, cfg, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1", "undefined"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestNotAFunction(t *testing.T) {
	if _, _, err := run(t, "var x = 1\nx()", nil); !errors.Is(err, ErrNotFunction) {
		t.Errorf("got %v; want ErrNotFunction", err)
	}
}

func TestCleanupPolicy(t *testing.T) {
	source := "defer fail(\"first\")\ndefer fail(\"second\")\nthrow \"body\""
	tests := []struct {
		policy control.Policy
		want   string
	}{
		{control.KeepFirst, "line 3: uncaught body"},
		{control.Overwrite, "line 2: second"},
		{control.Join, "line 3: uncaught body\nline 1: first\nline 2: second"},
	}
	for _, tc := range tests {
		t.Run(tc.policy.String(), func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Cleanup = tc.policy
			_, _, err := run(t, source, cfg)
			if err == nil || err.Error() != tc.want {
				t.Errorf("error = %v; want %q", err, tc.want)
			}
		})
	}
}

func TestCleanupSeesTheEndingError(t *testing.T) {
	source := "defer fail(\"A\")\ndefer {\n    log(\"after\", error)\n}\nreturn 5"
	for _, policy := range []control.Policy{control.KeepFirst, control.Join} {
		t.Run(policy.String(), func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.Cleanup = policy
			_, lines, err := run(t, source, cfg)
			if err == nil || err.Error() != "line 1: A" {
				t.Errorf("error = %v; want %q", err, "line 1: A")
			}
			if diff := cmp.Diff([]string{"after null"}, lines); diff != "" {
				t.Errorf("cleanup log (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCallReturnsAtOnce(t *testing.T) {
	gate := make(chan struct{})
	rec := &recorder{}
	u := compile(t, "await wait()\nreturn 1", nil, rec)
	u.globals["wait"] = value.Async(func(_ []value.Value, done value.Callback) {
		go func() {
			<-gate
			done(nil)
		}()
	})

	var calls int
	var mu sync.Mutex
	finished := make(chan []value.Value, 2)
	u.Call(context.Background(), nil, func(err error, results ...value.Value) {
		mu.Lock()
		calls++
		mu.Unlock()
		finished <- results
	})

	select {
	case <-finished:
		t.Fatal("completion fired before the awaited call finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	select {
	case results := <-finished:
		if diff := cmp.Diff([]string{"1"}, inspectAll(results)); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("completion never fired")
	}
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("completion fired %d times", calls)
	}
}

func TestInvoke(t *testing.T) {
	u := compile(t, "argument a b\nreturn b a", nil, &recorder{})
	ch := make(chan []value.Value, 1)
	err := u.Invoke(1, 2, func(err error, results ...value.Value) {
		if err != nil {
			t.Errorf("completion error: %v", err)
		}
		ch <- results
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2", "1"}, inspectAll(<-ch)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	if err := u.Invoke(1, 2); err == nil {
		t.Error("Invoke without a callback succeeded")
	}
}

func TestCancel(t *testing.T) {
	rec := &recorder{}
	u := compile(t, "defer {\n    sleep 1\n    log(\"cleaned\")\n}\nfor {\n    sleep 5\n}", nil, rec)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := u.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v; want context.Canceled", err)
	}
	if diff := cmp.Diff([]string{"cleaned"}, rec.Lines()); diff != "" {
		t.Errorf("cleanup log (-want +got):\n%s", diff)
	}
}

func TestAwaitTimeout(t *testing.T) {
	cfg := config.NewConfig()
	cfg.AwaitTimeout = 10 * time.Millisecond
	_, _, err := run(t, "await never()", cfg)
	if !errors.Is(err, context.DeadlineExceeded) || !strings.Contains(err.Error(), "await timed out") {
		t.Errorf("got %v; want an await timeout", err)
	}
}

func TestUnitAsCallable(t *testing.T) {
	rec := &recorder{}
	child := compile(t, "argument n\nawait 1\nreturn n n", nil, rec)
	parent := compile(t, "var a, b\nlet a, b = await child(4)\nreturn b", nil, rec)
	parent.globals["child"] = child
	got, err := parent.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"4"}, inspectAll(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestConcurrentInvocations(t *testing.T) {
	u := compile(t, "argument n\nvar m\nlet m = await echo(n)\nsleep 2\nreturn m", nil, &recorder{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := u.Run(context.Background(), i)
			if err != nil {
				t.Error(err)
				return
			}
			if len(got) != 1 || got[0] != float64(i) {
				t.Errorf("invocation %d returned %v", i, got)
			}
		}(i)
	}
	wg.Wait()
}
