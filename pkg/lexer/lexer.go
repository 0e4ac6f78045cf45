package lexer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xplshn/bright/pkg/token"
)

type state int

const (
	stateBlank state = iota
	stateNumber
	stateName
	stateString
	stateLineComment
	stateBlockComment
)

// Error is a malformed-literal or truncated-input error. Line and Column are 0-based.
type Error struct {
	Message string
	Line    int
	Column  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Line+1, e.Column+1)
}

func (e *Error) Position() (line, column int) { return e.Line, e.Column }
func (e *Error) Msg() string                  { return e.Message }

type Lexer struct {
	source []rune
	pos    int
	line   int
	column int

	state     state
	buf       strings.Builder
	bufLen    int
	prev      rune
	startLine int
	startCol  int

	// number state
	hasDot  bool
	hasExp  bool
	hasSign bool
	prevExp bool

	// string state
	quote   rune
	escaped bool

	tokens []token.Token
}

func NewLexer(source string) *Lexer {
	return &Lexer{source: []rune(source)}
}

// Tokenize splits source into raw tokens. Names are left as token.Name and symbols are
// one character each; see package classify for the second pass.
func Tokenize(source string) ([]token.Token, error) {
	return NewLexer(source).Run()
}

func (l *Lexer) Run() ([]token.Token, error) {
	for l.pos < len(l.source) {
		if err := l.step(l.source[l.pos]); err != nil {
			return nil, err
		}
	}
	if err := l.finish(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

// step looks at ch in the current state. It either consumes ch or switches state
// without consuming, in which case ch is looked at again.
func (l *Lexer) step(ch rune) error {
	switch l.state {
	case stateBlank:
		return l.blank(ch)
	case stateNumber:
		return l.number(ch)
	case stateName:
		if isLetter(ch) || isDigit(ch) {
			l.consume()
			return nil
		}
		l.emit(token.Name)
	case stateString:
		l.str(ch)
	case stateLineComment:
		if ch == '\n' || ch == '\r' {
			l.emit(token.Comment)
			return nil
		}
		l.consume()
	case stateBlockComment:
		closing := ch == '/' && l.bufLen >= 3 && l.prev == '*'
		l.consume()
		if closing {
			l.emit(token.Comment)
		}
	}
	return nil
}

func (l *Lexer) blank(ch rune) error {
	switch {
	case isDigit(ch):
		l.flushBlank()
		l.begin(stateNumber)
		l.hasDot, l.hasExp, l.hasSign, l.prevExp = false, false, false, false
		l.consume()
	case isLetter(ch):
		l.flushBlank()
		l.begin(stateName)
		l.consume()
	case ch == '\n' || ch == '\r':
		l.flushBlank()
		l.advance()
	case unicode.IsSpace(ch):
		if l.bufLen == 0 {
			l.startLine, l.startCol = l.line, l.column
		}
		l.consume()
	case ch == '"' || ch == '\'':
		l.flushBlank()
		l.begin(stateString)
		l.quote, l.escaped = ch, false
		l.consume()
	case ch == '/' && l.peekNext() == '/':
		l.flushBlank()
		l.begin(stateLineComment)
		l.consume()
		l.consume()
	case ch == '/' && l.peekNext() == '*':
		l.flushBlank()
		l.begin(stateBlockComment)
		l.consume()
		l.consume()
	default:
		l.flushBlank()
		l.tokens = append(l.tokens, token.Token{Kind: token.Symbol, Line: l.line, Column: l.column, Text: string(ch)})
		l.advance()
	}
	return nil
}

func (l *Lexer) number(ch rune) error {
	switch {
	case isDigit(ch):
		l.prevExp = false
		l.consume()
	case ch == '.':
		if l.hasDot {
			return l.unexpected(ch)
		}
		l.hasDot, l.prevExp = true, false
		l.consume()
	case ch == 'e' || ch == 'E':
		if l.hasExp {
			return l.unexpected(ch)
		}
		// the exponent may carry its own dot and sign
		l.hasExp, l.hasDot, l.hasSign, l.prevExp = true, false, false, true
		l.consume()
	case (ch == '+' || ch == '-') && l.hasExp:
		if l.hasSign {
			return l.unexpected(ch)
		}
		if !l.prevExp {
			l.emit(token.Number)
			return nil
		}
		l.hasSign, l.prevExp = true, false
		l.consume()
	case isLetter(ch):
		return l.unexpected(ch)
	default:
		l.emit(token.Number)
	}
	return nil
}

func (l *Lexer) str(ch rune) {
	switch {
	case ch == '\n' || ch == '\r':
		esc := "n"
		if ch == '\r' {
			esc = "r"
		}
		if !l.escaped {
			l.buf.WriteRune('\\')
			l.bufLen++
		}
		l.buf.WriteString(esc)
		l.bufLen++
		l.escaped = false
		l.advance()
	case l.escaped:
		l.escaped = false
		l.consume()
	case ch == '\\':
		l.escaped = true
		l.consume()
	case ch == l.quote:
		l.consume()
		l.emit(token.String)
	default:
		l.consume()
	}
}

func (l *Lexer) finish() error {
	switch l.state {
	case stateBlank:
		l.flushBlank()
	case stateNumber:
		l.emit(token.Number)
	case stateName:
		l.emit(token.Name)
	case stateLineComment:
		l.emit(token.Comment)
	default:
		return &Error{Message: "Unexpected end of input", Line: l.line, Column: l.column}
	}
	return nil
}

func (l *Lexer) begin(s state) {
	l.state = s
	l.buf.Reset()
	l.bufLen = 0
	l.startLine, l.startCol = l.line, l.column
}

func (l *Lexer) emit(kind token.Kind) {
	l.tokens = append(l.tokens, token.Token{Kind: kind, Line: l.startLine, Column: l.startCol, Text: l.buf.String(), Breaks: l.line - l.startLine})
	l.buf.Reset()
	l.bufLen = 0
	l.state = stateBlank
}

func (l *Lexer) flushBlank() {
	if l.bufLen > 0 {
		l.emit(token.Blank)
	}
}

func (l *Lexer) consume() {
	l.prev = l.source[l.pos]
	l.buf.WriteRune(l.prev)
	l.bufLen++
	l.advance()
}

// advance moves past the current rune. A lone \r, a lone \n and a \r\n pair each end
// one line.
func (l *Lexer) advance() {
	switch l.source[l.pos] {
	case '\r':
		l.line++
		l.column = 0
	case '\n':
		if l.pos == 0 || l.source[l.pos-1] != '\r' {
			l.line++
			l.column = 0
		}
	default:
		l.column++
	}
	l.pos++
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) unexpected(ch rune) error {
	return &Error{Message: fmt.Sprintf("Unexpected token %c", ch), Line: l.line, Column: l.column}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isLetter(ch rune) bool {
	return ch == '_' || ch == '$' || unicode.IsLetter(ch)
}
