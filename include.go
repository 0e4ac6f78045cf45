package bright

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xplshn/bright/pkg/util"
	"github.com/xplshn/bright/pkg/value"
)

// MaxIncludeDepth bounds scripts that include each other.
const MaxIncludeDepth = 32

var ErrIncludeNotFound = errors.New("script not found")

// DefaultIncludePaths are searched after the configured include paths.
var DefaultIncludePaths = []string{"./lib", "/usr/local/lib/bright", "/usr/lib/bright"}

type includeDepthKey struct{}

// Loader resolves include(name, ...args): it compiles the named script with the
// including unit's options, runs it with args and completes with its results.
type Loader struct {
	opts *options
}

func (l *Loader) Include() value.ContextAsync {
	return func(ctx context.Context, args []value.Value, done value.Callback) {
		if len(args) == 0 {
			done(fmt.Errorf("include: missing script name"))
			return
		}
		depth, _ := ctx.Value(includeDepthKey{}).(int)
		if depth >= MaxIncludeDepth {
			done(fmt.Errorf("include: nested deeper than %d scripts", MaxIncludeDepth))
			return
		}
		name := value.ToString(args[0])
		path, err := l.Find(name)
		if err != nil {
			done(err)
			return
		}
		l.opts.log.Debugf(util.CatAsync, "include %q from %s", name, path)

		unit, err := CompileFile(path,
			WithConfig(l.opts.cfg),
			WithLogger(l.opts.log),
			WithOutput(l.opts.stdout, l.opts.stderr),
			WithGlobals(l.opts.globals),
			WithCache(l.opts.cache),
		)
		if err != nil {
			done(fmt.Errorf("include %s: %w", name, err))
			return
		}
		unit.CallAsync(context.WithValue(ctx, includeDepthKey{}, depth+1), args[1:], done)
	}
}

// Find returns the first existing candidate for name across the include paths.
func (l *Loader) Find(name string) (string, error) {
	candidates := []string{name}
	if filepath.Ext(name) == "" {
		base := filepath.Base(name)
		candidates = append(candidates, name+Extension, filepath.Join(name, base+Extension))
	}
	if filepath.IsAbs(name) {
		for _, c := range candidates {
			if isFile(c) {
				return c, nil
			}
		}
		return "", fmt.Errorf("include %s: %w", name, ErrIncludeNotFound)
	}

	searchPaths := append(append([]string(nil), l.opts.cfg.IncludePaths...), DefaultIncludePaths...)
	for _, dir := range searchPaths {
		for _, c := range candidates {
			if full := filepath.Join(dir, c); isFile(full) {
				return full, nil
			}
		}
	}
	return "", fmt.Errorf("include %s: %w (searched %s)", name, ErrIncludeNotFound, strings.Join(searchPaths, ", "))
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
