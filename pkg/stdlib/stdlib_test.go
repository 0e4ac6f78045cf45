package stdlib

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/bright/pkg/value"
)

func member(t *testing.T, globals map[string]value.Value, obj, name string) value.Native {
	t.Helper()
	v, err := value.GetMember(globals[obj], name)
	if err != nil {
		t.Fatal(err)
	}
	fn, ok := v.(value.Native)
	if !ok {
		t.Fatalf("%s.%s is %T", obj, name, v)
	}
	return fn
}

func TestPrint(t *testing.T) {
	var out, errOut bytes.Buffer
	g := Globals(&out, &errOut)

	if _, err := g["print"].(value.Native)([]value.Value{"a", float64(1), value.NewArray("b", nil), value.Undefined}); err != nil {
		t.Fatal(err)
	}
	if _, err := member(t, g, "console", "log")([]value.Value{true}); err != nil {
		t.Fatal(err)
	}
	if _, err := member(t, g, "console", "error")([]value.Value{"oops"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("a 1 [\"b\", null] undefined\ntrue\n", out.String()); diff != "" {
		t.Errorf("stdout (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("oops\n", errOut.String()); diff != "" {
		t.Errorf("stderr (-want +got):\n%s", diff)
	}
}

func TestJSON(t *testing.T) {
	g := Globals(&bytes.Buffer{}, &bytes.Buffer{})
	stringify := member(t, g, "JSON", "stringify")
	parse := member(t, g, "JSON", "parse")

	obj := value.ObjectOf("z", float64(1), "a", value.NewArray("x\"y", math.NaN(), value.Undefined), "skip", value.Undefined)
	got, err := stringify([]value.Value{obj})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"z":1,"a":["x\"y",null,null]}`; got != want {
		t.Errorf("stringify = %s; want %s", got, want)
	}

	parsed, err := parse([]value.Value{`{"b": [1, "two", true, null]}`})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := value.Inspect(parsed), `{b: [1, "two", true, null]}`; got != want {
		t.Errorf("parse = %s; want %s", got, want)
	}

	if _, err := parse([]value.Value{"{"}); err == nil {
		t.Error("parse of invalid JSON succeeded")
	}
}

func TestNumberParsing(t *testing.T) {
	g := Globals(&bytes.Buffer{}, &bytes.Buffer{})
	tests := []struct {
		fn   string
		args []value.Value
		want string
	}{
		{"parseInt", []value.Value{"42px"}, "42"},
		{"parseInt", []value.Value{"  -17"}, "-17"},
		{"parseInt", []value.Value{"0x1f"}, "31"},
		{"parseInt", []value.Value{"ff", float64(16)}, "255"},
		{"parseInt", []value.Value{"z"}, "NaN"},
		{"parseInt", []value.Value{"7", float64(1)}, "NaN"},
		{"parseFloat", []value.Value{"3.25abc"}, "3.25"},
		{"parseFloat", []value.Value{"-1e3"}, "-1000"},
		{"parseFloat", []value.Value{"Infinity"}, "Infinity"},
		{"parseFloat", []value.Value{"abc"}, "NaN"},
		{"Number", []value.Value{"12"}, "12"},
		{"Number", nil, "0"},
		{"String", []value.Value{float64(1.5)}, "1.5"},
		{"Boolean", []value.Value{""}, "false"},
		{"isNaN", []value.Value{"x"}, "true"},
	}
	for _, tc := range tests {
		got, err := g[tc.fn].(value.Native)(tc.args)
		if err != nil {
			t.Errorf("%s(%v): %v", tc.fn, tc.args, err)
			continue
		}
		if s := value.Inspect(got); s != tc.want {
			t.Errorf("%s(%v) = %s; want %s", tc.fn, tc.args, s, tc.want)
		}
	}
}

func TestMath(t *testing.T) {
	g := Globals(&bytes.Buffer{}, &bytes.Buffer{})
	tests := []struct {
		fn   string
		args []value.Value
		want float64
	}{
		{"abs", []value.Value{float64(-3)}, 3},
		{"round", []value.Value{float64(2.5)}, 3},
		{"round", []value.Value{float64(-2.5)}, -2},
		{"sign", []value.Value{float64(-8)}, -1},
		{"pow", []value.Value{float64(2), float64(10)}, 1024},
		{"max", []value.Value{float64(1), "5", float64(3)}, 5},
		{"min", nil, math.Inf(1)},
	}
	for _, tc := range tests {
		got, err := member(t, g, "Math", tc.fn)(tc.args)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("Math.%s(%v) = %v; want %v", tc.fn, tc.args, got, tc.want)
		}
	}

	got, _ := member(t, g, "Math", "max")([]value.Value{float64(1), "x"})
	if !math.IsNaN(got.(float64)) {
		t.Errorf("Math.max with NaN = %v", got)
	}
}

func TestSleepAsync(t *testing.T) {
	g := Globals(&bytes.Buffer{}, &bytes.Buffer{})
	sleep := g["sleepAsync"].(value.Callable)

	type completion struct {
		err     error
		results []value.Value
	}
	ch := make(chan completion, 1)
	start := time.Now()
	sleep.CallAsync(context.Background(), []value.Value{float64(10), "a", float64(2)}, func(err error, results ...value.Value) {
		ch <- completion{err, results}
	})
	c := <-ch
	if c.err != nil {
		t.Fatal(c.err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("completed after %s", elapsed)
	}
	if diff := cmp.Diff([]value.Value{"a", float64(2)}, c.results); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sleep.CallAsync(ctx, []value.Value{float64(60000)}, func(err error, results ...value.Value) {
		ch <- completion{err, results}
	})
	cancel()
	if c := <-ch; !errors.Is(c.err, context.Canceled) {
		t.Errorf("got %v; want context.Canceled", c.err)
	}
}
