package token

import "unicode/utf8"

type Kind int

const (
	Blank Kind = iota
	Symbol
	Number
	String
	Name // resolved to Keyword or Identifier by the classifier
	Keyword
	Identifier
	Comment
)

var KindStrings = map[Kind]string{
	Blank:      "BLANK",
	Symbol:     "SYMBOL",
	Number:     "NUMBER",
	String:     "STRING",
	Name:       "NAME",
	Keyword:    "KEYWORD",
	Identifier: "IDENTIFIER",
	Comment:    "COMMENT",
}

func (k Kind) String() string {
	if s, ok := KindStrings[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Keywords is the reserved word set. A reserved word used as a member name or an
// object key is still an identifier.
var Keywords = map[string]bool{
	"argument":   true,
	"await":      true,
	"break":      true,
	"continue":   true,
	"defer":      true,
	"else":       true,
	"elseif":     true,
	"false":      true,
	"for":        true,
	"function":   true,
	"if":         true,
	"in":         true,
	"javascript": true,
	"let":        true,
	"NaN":        true,
	"native":     true,
	"null":       true,
	"return":     true,
	"sleep":      true,
	"throw":      true,
	"true":       true,
	"undefined":  true,
	"var":        true,
}

// Literals are reserved words that always behave as identifiers.
var Literals = map[string]bool{
	"true":      true,
	"false":     true,
	"null":      true,
	"undefined": true,
	"NaN":       true,
}

type Token struct {
	Kind   Kind
	Line   int
	Column int
	Text   string
	// Breaks counts the line breaks inside a string or block comment.
	Breaks int
}

// EndLine is the line the token's last character sits on.
func (t Token) EndLine() int { return t.Line + t.Breaks }

func (t Token) IsSymbol(text string) bool  { return t.Kind == Symbol && t.Text == text }
func (t Token) IsKeyword(text string) bool { return t.Kind == Keyword && t.Text == text }

// Len is the width of the token in runes, used for caret underlines.
func (t Token) Len() int { return utf8.RuneCountInString(t.Text) }

// End is the column just past the token. Only meaningful for single-line tokens.
func (t Token) End() int { return t.Column + t.Len() }
