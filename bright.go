// Package bright compiles bright scripts into callable units.
//
// A script reads as straight-line code, but every wait in it (await, sleep, a loop
// step) happens off the caller's goroutine. A compiled unit is invoked with its
// arguments and a completion callback that fires exactly once:
//
//	unit, err := bright.Compile("argument a b\nreturn b a")
//	if err != nil {
//		// *lexer.Error or *parser.SyntaxError, both with a position
//	}
//	unit.Invoke(1, 2, func(err error, results ...value.Value) {
//		// results: 2, 1
//	})
package bright

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/classify"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/lexer"
	"github.com/xplshn/bright/pkg/parser"
	"github.com/xplshn/bright/pkg/stdlib"
	"github.com/xplshn/bright/pkg/token"
	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
	"github.com/xplshn/bright/pkg/vm"
)

// Extension is appended by Include when a name has none.
const Extension = ".bright"

const directivePrefix = "[bright]:"

type options struct {
	cfg     *config.Config
	name    string
	globals map[string]value.Value
	log     *util.Logger
	stdout  io.Writer
	stderr  io.Writer
	cache   *Cache
}

type Option func(*options)

func WithConfig(cfg *config.Config) Option { return func(o *options) { o.cfg = cfg } }
func WithName(name string) Option          { return func(o *options) { o.name = name } }
func WithLogger(l *util.Logger) Option     { return func(o *options) { o.log = l } }
func WithCache(c *Cache) Option            { return func(o *options) { o.cache = c } }

// WithGlobals adds host values on top of the standard globals.
func WithGlobals(globals map[string]value.Value) Option {
	return func(o *options) {
		for k, v := range globals {
			o.globals[k] = v
		}
	}
}

// WithOutput redirects print, console.log and console.error.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) { o.stdout, o.stderr = stdout, stderr }
}

func newOptions(opts []Option) *options {
	o := &options{
		name:    "main",
		globals: make(map[string]value.Value),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.NewConfig()
	}
	if o.log == nil {
		o.log = util.Discard()
	}
	return o
}

// Compile lexes, classifies and parses source. Lex and syntax errors carry the
// offending position; no unit is returned with them.
func Compile(source string, opts ...Option) (*vm.Unit, error) {
	o := newOptions(opts)
	prog, cfg, err := o.compile(source)
	if err != nil {
		return nil, err
	}
	return o.unit(prog, cfg), nil
}

// CompileFile compiles the script at path. The file name becomes the unit name, and
// the file's directory is searched first by include.
func CompileFile(path string, opts ...Option) (*vm.Unit, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o := newOptions(append([]Option{WithName(path)}, opts...))
	o.cfg = o.cfg.Clone()
	o.cfg.IncludePaths = append([]string{filepath.Dir(path)}, o.cfg.IncludePaths...)
	prog, cfg, err := o.compile(string(content))
	if err != nil {
		return nil, err
	}
	return o.unit(prog, cfg), nil
}

// Parse runs the front end only and returns the program with its warnings.
func Parse(source string, opts ...Option) (*ast.Program, error) {
	prog, _, err := newOptions(opts).compile(source)
	return prog, err
}

// Tokens returns the classified token stream of source.
func Tokens(source string) ([]token.Token, error) {
	raw, err := lexer.Tokenize(source)
	if err != nil {
		return nil, err
	}
	return classify.Classify(raw), nil
}

func (o *options) compile(source string) (*ast.Program, *config.Config, error) {
	if o.cache != nil {
		if e, ok := o.cache.get(o.cfg, source); ok {
			o.log.Debugf(util.CatParse, "%s: compile cache hit", o.name)
			// directives only touch features and warnings
			cfg := e.cfg.Clone()
			cfg.Cleanup, cfg.AwaitTimeout = o.cfg.Cleanup, o.cfg.AwaitTimeout
			cfg.IncludePaths = append([]string(nil), o.cfg.IncludePaths...)
			return e.prog, cfg, nil
		}
	}
	tokens, err := Tokens(source)
	if err != nil {
		return nil, nil, err
	}
	cfg := o.cfg.Clone()
	applyDirectives(cfg, tokens)
	prog, err := parser.Parse(tokens, cfg)
	if err != nil {
		return nil, nil, err
	}
	if o.log.IsCategoryEnabled(util.CatParse) {
		var sb strings.Builder
		ast.Dump(&sb, prog)
		o.log.Debugf(util.CatParse, "%s compiled:\n%s", o.name, sb.String())
	}
	if o.cache != nil {
		o.cache.put(o.cfg, source, prog, cfg)
	}
	return prog, cfg, nil
}

func (o *options) unit(prog *ast.Program, cfg *config.Config) *vm.Unit {
	globals := stdlib.Globals(o.stdout, o.stderr)
	globals["include"] = (&Loader{opts: o}).Include()
	for k, v := range o.globals {
		globals[k] = v
	}
	return vm.New(prog, cfg, vm.WithName(o.name), vm.WithGlobals(globals), vm.WithLogger(o.log))
}

// applyDirectives applies `// [bright]: -Wall -Fno-strict-vars` comments found in the
// source to cfg.
func applyDirectives(cfg *config.Config, tokens []token.Token) {
	for _, t := range tokens {
		if t.Kind != token.Comment || !strings.HasPrefix(t.Text, "//") {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(t.Text, "//"))
		if flags, ok := strings.CutPrefix(text, directivePrefix); ok {
			cfg.ProcessDirectiveFlags(flags)
		}
	}
}
