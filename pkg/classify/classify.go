// Package classify is the second lexical pass. It merges multi-character operators and
// leading-dot numbers and resolves names into keywords or identifiers.
package classify

import "github.com/xplshn/bright/pkg/token"

var pairs = map[string]bool{
	"++": true, "--": true, "<<": true, ">>": true,
	"==": true, ">=": true, "<=": true, "!=": true,
}

// Classify returns a new token list; the input is not modified. Running it over its own
// output returns an equal list.
func Classify(tokens []token.Token) []token.Token {
	return resolveNames(merge(tokens))
}

func merge(tokens []token.Token) []token.Token {
	out := make([]token.Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Kind {
		case token.Number:
			if n := len(out); n > 0 && isLeadingDot(out, tok) {
				dot := out[n-1]
				out[n-1] = token.Token{Kind: token.Number, Line: dot.Line, Column: dot.Column, Text: "." + tok.Text}
				continue
			}
		case token.Symbol:
			if len(tok.Text) != 1 || i+1 >= len(tokens) || !adjacent(tok, tokens[i+1]) {
				break
			}
			text := tok.Text + tokens[i+1].Text
			if !pairs[text] {
				break
			}
			i++
			if (text == "==" || text == "!=") && i+1 < len(tokens) && adjacent(tokens[i], tokens[i+1]) && tokens[i+1].Text == "=" {
				text += "="
				i++
			}
			tok.Text = text
		}
		out = append(out, tok)
	}
	return out
}

// isLeadingDot reports whether num directly follows a lone '.' that itself follows a
// symbol or nothing, as in "x = .5" but not "a.5".
func isLeadingDot(out []token.Token, num token.Token) bool {
	if num.Text == "" || num.Text[0] == '.' {
		return false
	}
	dot := out[len(out)-1]
	if !dot.IsSymbol(".") || dot.Line != num.Line || dot.End() != num.Column {
		return false
	}
	before, ok := prevSolid(out, len(out)-2)
	return !ok || before.Kind == token.Symbol
}

func adjacent(a, b token.Token) bool {
	return b.Kind == token.Symbol && len(b.Text) == 1 && a.Line == b.Line && a.End() == b.Column
}

func resolveNames(tokens []token.Token) []token.Token {
	out := make([]token.Token, len(tokens))
	copy(out, tokens)
	for i, tok := range out {
		if tok.Kind != token.Name {
			continue
		}
		switch {
		case token.Literals[tok.Text]:
			out[i].Kind = token.Identifier
		case token.Keywords[tok.Text] && !memberOrKey(tokens, i):
			out[i].Kind = token.Keyword
		default:
			out[i].Kind = token.Identifier
		}
	}
	return out
}

// memberOrKey reports whether the name at i is used after/before a '.' or as an
// object-literal key.
func memberOrKey(tokens []token.Token, i int) bool {
	prev, hasPrev := prevSolid(tokens, i-1)
	next, hasNext := nextSolid(tokens, i+1)
	if (hasPrev && prev.IsSymbol(".")) || (hasNext && next.IsSymbol(".")) {
		return true
	}
	return hasPrev && hasNext && (prev.IsSymbol("{") || prev.IsSymbol(",")) && next.IsSymbol(":")
}

func prevSolid(tokens []token.Token, i int) (token.Token, bool) {
	for ; i >= 0; i-- {
		if tokens[i].Kind != token.Blank {
			return tokens[i], true
		}
	}
	return token.Token{}, false
}

func nextSolid(tokens []token.Token, i int) (token.Token, bool) {
	for ; i < len(tokens); i++ {
		if tokens[i].Kind != token.Blank {
			return tokens[i], true
		}
	}
	return token.Token{}, false
}
