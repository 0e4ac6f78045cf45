package bright

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/control"
	"github.com/xplshn/bright/pkg/lexer"
	"github.com/xplshn/bright/pkg/parser"
	"github.com/xplshn/bright/pkg/token"
	"github.com/xplshn/bright/pkg/value"
	"github.com/xplshn/bright/pkg/vm"
)

func inspectAll(results []value.Value) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = value.Inspect(r)
	}
	return out
}

func runUnit(t *testing.T, unit *vm.Unit, args ...any) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := unit.Run(ctx, args...)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return inspectAll(results)
}

func writeScript(t *testing.T, path, source string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompileAndInvoke(t *testing.T) {
	unit, err := Compile("argument a b\nreturn b a")
	if err != nil {
		t.Fatal(err)
	}
	ch := make(chan []value.Value, 1)
	if err := unit.Invoke(1, 2, func(err error, results ...value.Value) {
		if err != nil {
			t.Errorf("completion error: %v", err)
		}
		ch <- results
	}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2", "1"}, inspectAll(<-ch)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile("x = \"abc")
	var lexErr *lexer.Error
	if !errors.As(err, &lexErr) {
		t.Errorf("unterminated string: got %v; want a lexer error", err)
	}

	unit, err := Compile("if x {")
	var synErr *parser.SyntaxError
	if !errors.As(err, &synErr) {
		t.Errorf("open block: got %v; want a syntax error", err)
	}
	if unit != nil {
		t.Error("a unit was returned with a syntax error")
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		args     []any
		withCall bool
		want     []string
	}{
		{name: "single argument", source: "argument v\nreturn v", args: []any{1234}, want: []string{"1234"}},
		{name: "results in return order", source: "argument a b c\nreturn c b a", args: []any{123, 456, 789}, want: []string{"789", "456", "123"}},
		{name: "let after var", source: "var a\nlet a = 13800138\nreturn a", want: []string{"13800138"}},
		{
			name: "condition loop",
			source: `let a = ""
let i = 0
for i < 10 {
    let a = a + "A"
    let i = i + 1
}
return a i`,
			want: []string{"AAAAAAAAAA", "10"},
		},
		{name: "deferred host call", source: "argument call\ndefer call\nreturn 123", withCall: true, want: []string{"123"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			unit, err := Compile(tc.source)
			if err != nil {
				t.Fatal(err)
			}
			var calls atomic.Int32
			args := tc.args
			if tc.withCall {
				args = append(args, value.Native(func([]value.Value) (value.Value, error) {
					calls.Add(1)
					return value.Undefined, nil
				}))
			}
			type completion struct {
				err     error
				results []value.Value
				calls   int32
			}
			ch := make(chan completion, 1)
			args = append(args, func(err error, results ...value.Value) {
				ch <- completion{err, results, calls.Load()}
			})
			if err := unit.Invoke(args...); err != nil {
				t.Fatal(err)
			}
			var c completion
			select {
			case c = <-ch:
			case <-time.After(5 * time.Second):
				t.Fatal("no completion")
			}
			if c.err != nil {
				t.Fatalf("completion error: %v", c.err)
			}
			if diff := cmp.Diff(tc.want, inspectAll(c.results)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if tc.withCall && c.calls != 1 {
				t.Errorf("call ran %d times before completion; want 1", c.calls)
			}
		})
	}

	unit, err := Compile("throw 123")
	if err != nil {
		t.Fatal(err)
	}
	_, err = unit.Run(context.Background())
	var thrown *value.Thrown
	if !errors.As(err, &thrown) {
		t.Fatalf("throw 123: got %v; want a thrown value", err)
	}
	if diff := cmp.Diff(value.Value(float64(123)), thrown.Value); diff != "" {
		t.Errorf("thrown value (-want +got):\n%s", diff)
	}
}

func TestOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	unit, err := Compile("print(\"hi\", 1)\nconsole.error([\"e\"])", WithOutput(&out, &errOut))
	if err != nil {
		t.Fatal(err)
	}
	runUnit(t, unit)
	if got := out.String(); got != "hi 1\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := errOut.String(); got != "[\"e\"]\n" {
		t.Errorf("stderr = %q", got)
	}
}

func TestWithGlobals(t *testing.T) {
	fetch := value.Async(func(args []value.Value, done value.Callback) {
		go done(nil, "body of "+value.ToString(args[0]), float64(200))
	})
	unit, err := Compile("var body, status\nlet body, status = await fetch(\"/x\")\nreturn status body",
		WithGlobals(map[string]value.Value{"fetch": fetch}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"200", "body of /x"}, runUnit(t, unit)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDirectives(t *testing.T) {
	source := "// [bright]: -Fno-strict-vars -Fno-strict-arity\nargument a\ny = 1\nreturn y a"
	unit, err := Compile(source)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"1", "undefined"}, runUnit(t, unit)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	prog, err := Parse("x();")
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Warnings) != 1 || prog.Warnings[0].Kind != "extra" {
		t.Errorf("warnings = %v; want one extra warning", prog.Warnings)
	}
	prog, err = Parse("/* [bright]: -Wall */\n// [bright]: -Wno-extra\nx();")
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Warnings) != 0 {
		t.Errorf("warnings = %v; want none", prog.Warnings)
	}
}

func TestTokens(t *testing.T) {
	tokens, err := Tokens("let x = a.if")
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, tok := range tokens {
		if tok.Kind != token.Blank {
			kinds = append(kinds, tok.Kind.String()+" "+tok.Text)
		}
	}
	want := []string{"KEYWORD let", "IDENTIFIER x", "SYMBOL =", "IDENTIFIER a", "SYMBOL .", "IDENTIFIER if"}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCache(t *testing.T) {
	cache := NewCache()
	source := "argument a\nreturn a"

	for i := 0; i < 3; i++ {
		if _, err := Compile(source, WithCache(cache)); err != nil {
			t.Fatal(err)
		}
	}
	if hits, misses := cache.Stats(); hits != 2 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses; want 2, 1", hits, misses)
	}

	loose := config.NewConfig()
	if err := loose.ApplyProfile("loose"); err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(source, WithCache(cache), WithConfig(loose)); err != nil {
		t.Fatal(err)
	}
	if n := cache.Len(); n != 2 {
		t.Errorf("Len = %d; want 2", n)
	}

	joined := config.NewConfig()
	joined.Cleanup = control.Join
	unit, err := Compile(source, WithCache(cache), WithConfig(joined))
	if err != nil {
		t.Fatal(err)
	}
	if hits, _ := cache.Stats(); hits != 3 {
		t.Errorf("hits = %d; want 3", hits)
	}
	if unit.Config().Cleanup != control.Join {
		t.Errorf("cached unit uses cleanup policy %v; want join", unit.Config().Cleanup)
	}
	if diff := cmp.Diff([]string{"7"}, runUnit(t, unit, 7)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "add.bright"), "argument a b\nvar s = a + b\nprint(\"sum\", s)\nreturn s")
	writeScript(t, filepath.Join(dir, "util", "util.bright"), "return 9")
	main := filepath.Join(dir, "main.bright")
	writeScript(t, main, `var r, u
let r = await include("add", 2, 3)
let u = await include("util")
return r u`)

	var out bytes.Buffer
	unit, err := CompileFile(main, WithOutput(&out, &out), WithCache(NewCache()))
	if err != nil {
		t.Fatal(err)
	}
	if unit.Name() != main {
		t.Errorf("Name = %q; want %q", unit.Name(), main)
	}
	if diff := cmp.Diff([]string{"5", "9"}, runUnit(t, unit)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if got := out.String(); got != "sum 5\n" {
		t.Errorf("output = %q", got)
	}
}

func TestIncludeErrors(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "self.bright"), "await include(\"self\")")
	writeScript(t, filepath.Join(dir, "broken.bright"), "if {")
	tests := []struct {
		name   string
		script string
		check  func(error) bool
	}{
		{"missing", "await include(\"missing\")", func(err error) bool { return errors.Is(err, ErrIncludeNotFound) }},
		{"syntax error", "await include(\"broken\")", func(err error) bool {
			var se *parser.SyntaxError
			return errors.As(err, &se)
		}},
		{"recursion", "await include(\"self\")", func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "nested deeper than")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			main := filepath.Join(dir, "main_"+strings.ReplaceAll(tc.name, " ", "_")+".bright")
			writeScript(t, main, tc.script)
			unit, err := CompileFile(main)
			if err != nil {
				t.Fatal(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := unit.Run(ctx); !tc.check(err) {
				t.Errorf("got %v", err)
			}
		})
	}
}

func TestCompileFileMissing(t *testing.T) {
	if _, err := CompileFile(filepath.Join(t.TempDir(), "nope.bright")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v; want os.ErrNotExist", err)
	}
}
