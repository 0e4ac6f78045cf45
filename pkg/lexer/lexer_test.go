package lexer

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/bright/pkg/token"
)

func tok(kind token.Kind, line, col int, text string) token.Token {
	return token.Token{Kind: kind, Line: line, Column: col, Text: text}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []token.Token
	}{
		{
			name:   "assignment",
			source: "a = 1",
			want: []token.Token{
				tok(token.Name, 0, 0, "a"),
				tok(token.Blank, 0, 1, " "),
				tok(token.Symbol, 0, 2, "="),
				tok(token.Blank, 0, 3, " "),
				tok(token.Number, 0, 4, "1"),
			},
		},
		{
			name:   "lines",
			source: "a\n$b_2",
			want: []token.Token{
				tok(token.Name, 0, 0, "a"),
				tok(token.Name, 1, 0, "$b_2"),
			},
		},
		{
			name:   "carriage return line endings",
			source: "a \r\nb\rc\r\n\r\nd",
			want: []token.Token{
				tok(token.Name, 0, 0, "a"),
				tok(token.Blank, 0, 1, " "),
				tok(token.Name, 1, 0, "b"),
				tok(token.Name, 2, 0, "c"),
				tok(token.Name, 4, 0, "d"),
			},
		},
		{
			name:   "line comment before a carriage return",
			source: "// x\r\ny",
			want: []token.Token{
				tok(token.Comment, 0, 0, "// x"),
				tok(token.Name, 1, 0, "y"),
			},
		},
		{
			name:   "symbols are single characters",
			source: "a==b",
			want: []token.Token{
				tok(token.Name, 0, 0, "a"),
				tok(token.Symbol, 0, 1, "="),
				tok(token.Symbol, 0, 2, "="),
				tok(token.Name, 0, 3, "b"),
			},
		},
		{
			name:   "exponent with sign and dot",
			source: "1.5e-3.5",
			want:   []token.Token{tok(token.Number, 0, 0, "1.5e-3.5")},
		},
		{
			name:   "sign after exponent digits ends the number",
			source: "1e3-2",
			want: []token.Token{
				tok(token.Number, 0, 0, "1e3"),
				tok(token.Symbol, 0, 3, "-"),
				tok(token.Number, 0, 4, "2"),
			},
		},
		{
			name:   "strings",
			source: `"a\"b" 'c'`,
			want: []token.Token{
				tok(token.String, 0, 0, `"a\"b"`),
				tok(token.Blank, 0, 6, " "),
				tok(token.String, 0, 7, "'c'"),
			},
		},
		{
			name:   "raw newline inside a string",
			source: "\"a\nb\" c",
			want: []token.Token{
				{Kind: token.String, Line: 0, Column: 0, Text: `"a\nb"`, Breaks: 1},
				tok(token.Blank, 1, 2, " "),
				tok(token.Name, 1, 3, "c"),
			},
		},
		{
			name:   "line comment",
			source: "x // note\ny",
			want: []token.Token{
				tok(token.Name, 0, 0, "x"),
				tok(token.Blank, 0, 1, " "),
				tok(token.Comment, 0, 2, "// note"),
				tok(token.Name, 1, 0, "y"),
			},
		},
		{
			name:   "block comment spans lines",
			source: "/* a\nb */z",
			want: []token.Token{
				{Kind: token.Comment, Line: 0, Column: 0, Text: "/* a\nb */", Breaks: 1},
				tok(token.Name, 1, 4, "z"),
			},
		},
		{
			name:   "trailing comment without newline",
			source: "// end",
			want:   []token.Token{tok(token.Comment, 0, 0, "// end")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Tokenize(tc.source)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tc.source, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tc.source, diff)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		source string
		want   Error
	}{
		{"1.2.3", Error{Message: "Unexpected token .", Line: 0, Column: 3}},
		{"1e2e3", Error{Message: "Unexpected token e", Line: 0, Column: 3}},
		{"1e+-2", Error{Message: "Unexpected token -", Line: 0, Column: 3}},
		{"x = 12ab", Error{Message: "Unexpected token a", Line: 0, Column: 6}},
		{`"open`, Error{Message: "Unexpected end of input", Line: 0, Column: 5}},
		{"a\n/* never closed", Error{Message: "Unexpected end of input", Line: 1, Column: 15}},
	}
	for _, tc := range tests {
		_, err := Tokenize(tc.source)
		var lexErr *Error
		if !errors.As(err, &lexErr) {
			t.Errorf("Tokenize(%q) error = %v; want *Error", tc.source, err)
			continue
		}
		if diff := cmp.Diff(tc.want, *lexErr); diff != "" {
			t.Errorf("Tokenize(%q) error mismatch (-want +got):\n%s", tc.source, diff)
		}
	}
}

func TestErrorPosition(t *testing.T) {
	err := &Error{Message: "Unexpected end of input", Line: 2, Column: 4}
	if got, want := err.Error(), "Unexpected end of input (line 3, column 5)"; got != want {
		t.Errorf("Error() = %q; want %q", got, want)
	}
	if line, col := err.Position(); line != 2 || col != 4 {
		t.Errorf("Position() = %d, %d; want 2, 4", line, col)
	}
}
