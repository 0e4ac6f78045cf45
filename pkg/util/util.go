package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorReset  = "\033[0m"
)

// Positioned is implemented by lex and syntax errors. Positions are 0-based.
type Positioned interface {
	error
	Position() (line, column int)
}

// Source is one named script whose text is kept around for caret diagnostics.
type Source struct {
	Name    string
	Content []rune
}

func NewSource(name, content string) Source {
	return Source{Name: name, Content: []rune(content)}
}

// Line returns the text of the 0-based line n, without its line break. \r, \n and
// \r\n each end a line.
func (s Source) Line(n int) (string, bool) {
	start := 0
	for i := 0; i < len(s.Content) && n > 0; i++ {
		switch s.Content[i] {
		case '\r':
			if i+1 < len(s.Content) && s.Content[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			continue
		}
		n--
		start = i + 1
	}
	if n != 0 {
		return "", false
	}
	end := len(s.Content)
	for i := start; i < len(s.Content); i++ {
		if s.Content[i] == '\n' || s.Content[i] == '\r' {
			end = i
			break
		}
	}
	return string(s.Content[start:end]), true
}

// Reporter prints compiler-style diagnostics for one source.
type Reporter struct {
	Source Source
	Out    io.Writer
	Color  bool
}

// NewReporter writes to w, with colors only when w is a terminal.
func NewReporter(src Source, w io.Writer) *Reporter {
	return &Reporter{Source: src, Out: w, Color: IsTerminal(w)}
}

func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (r *Reporter) paint(color, s string) string {
	if !r.Color {
		return s
	}
	return color + s + colorReset
}

// printErrorLine prints the source line and a caret under the span [col, col+length).
func (r *Reporter) printErrorLine(line, col, length int) {
	text, ok := r.Source.Line(line)
	if !ok {
		return
	}
	fmt.Fprintf(r.Out, "  %s\n", strings.ReplaceAll(text, "\t", " "))
	caret := "^"
	if length > 1 {
		caret += strings.Repeat("~", length-1)
	}
	fmt.Fprintf(r.Out, "  %s%s\n", strings.Repeat(" ", col), r.paint(colorGreen, caret))
}

// Error prints `name:line:col: error: msg` followed by the caret line.
func (r *Reporter) Error(line, col, length int, format string, args ...interface{}) {
	fmt.Fprintf(r.Out, "%s:%d:%d: %s ", r.Source.Name, line+1, col+1, r.paint(colorRed, "error:"))
	fmt.Fprintf(r.Out, format, args...)
	fmt.Fprintln(r.Out)
	r.printErrorLine(line, col, length)
}

// Warn prints a warning tagged with the flag that controls it.
func (r *Reporter) Warn(flag string, line, col, length int, format string, args ...interface{}) {
	fmt.Fprintf(r.Out, "%s:%d:%d: %s ", r.Source.Name, line+1, col+1, r.paint(colorYellow, "warning:"))
	fmt.Fprintf(r.Out, format, args...)
	fmt.Fprintf(r.Out, " [-W%s]\n", flag)
	r.printErrorLine(line, col, length)
}

// Report prints err with its position when it has one.
func (r *Reporter) Report(err error) {
	var p Positioned
	if errors.As(err, &p) {
		line, col := p.Position()
		r.Error(line, col, 1, "%s", message(p))
		return
	}
	fmt.Fprintf(r.Out, "%s: %s %v\n", r.Source.Name, r.paint(colorRed, "error:"), err)
}

// message strips the "(line L, column C)" suffix positioned errors carry in Error().
func message(p Positioned) string {
	if m, ok := p.(interface{ Msg() string }); ok {
		return m.Msg()
	}
	return p.Error()
}
