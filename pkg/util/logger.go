package util

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

type LogCategory string

const (
	CatParse   LogCategory = "parse"   // compiled programs and parse warnings
	CatAsync   LogCategory = "async"   // await, sleep and host completions
	CatFlow    LogCategory = "flow"    // branches, loops, returns
	CatCleanup LogCategory = "cleanup" // deferred actions and suppressed errors
)

var allCategories = []LogCategory{CatParse, CatAsync, CatFlow, CatCleanup}

// Logger is the runtime logger. Debug output is per category and off by default;
// warnings are always written.
type Logger struct {
	mu         sync.Mutex
	enabled    map[LogCategory]bool
	out        io.Writer
	colorWarns bool
}

func NewLogger(out io.Writer) *Logger {
	return &Logger{enabled: make(map[LogCategory]bool), out: out, colorWarns: IsTerminal(out)}
}

// Discard is a logger that drops debug output and warnings alike.
func Discard() *Logger { return &Logger{enabled: make(map[LogCategory]bool), out: io.Discard} }

// EnableFromEnv reads BRIGHT_DEBUG ("all" or a comma separated category list).
// DEBUG=bright enables every category.
func (l *Logger) EnableFromEnv() {
	if v := os.Getenv("BRIGHT_DEBUG"); v != "" {
		l.EnableCategories(v)
	}
	for _, v := range strings.Split(os.Getenv("DEBUG"), ",") {
		if strings.TrimSpace(v) == "bright" {
			l.EnableCategories("all")
		}
	}
}

func (l *Logger) EnableCategories(list string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "all" || name == "1" {
			for _, c := range allCategories {
				l.enabled[c] = true
			}
			continue
		}
		if name != "" {
			l.enabled[LogCategory(name)] = true
		}
	}
}

func (l *Logger) IsCategoryEnabled(cat LogCategory) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled[cat]
}

func (l *Logger) Debugf(cat LogCategory, format string, args ...interface{}) {
	if !l.IsCategoryEnabled(cat) {
		return
	}
	l.write(fmt.Sprintf("[DEBUG:%s] ", cat) + fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(cat LogCategory, format string, args ...interface{}) {
	msg := fmt.Sprintf("[bright:%s WARN] ", cat) + fmt.Sprintf(format, args...)
	if l.colorWarns {
		msg = colorYellow + msg + colorReset
	}
	l.write(msg)
}

func (l *Logger) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, line)
}
