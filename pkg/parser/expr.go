package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/token"
)

// compound operators the classifier leaves as separate one-character symbols
var compoundOps = map[string]bool{
	"&&": true, "||": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true,
}

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true,
}

// joinOperators merges adjacent symbols into the compound operators above. The input
// is not modified.
func joinOperators(tokens []token.Token) []token.Token {
	out := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if n := len(out); n > 0 && t.Kind == token.Symbol {
			prev := out[n-1]
			if prev.Kind == token.Symbol && adjacent(prev, t) && compoundOps[prev.Text+t.Text] {
				prev.Text += t.Text
				out[n-1] = prev
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func adjacent(a, b token.Token) bool { return a.Line == b.Line && a.End() == b.Column }

func getBinaryOpPrecedence(tok token.Token) int {
	if tok.IsKeyword("in") {
		return 9
	}
	if tok.Kind != token.Symbol {
		return -1
	}
	switch tok.Text {
	case "*", "/", "%":
		return 12
	case "+", "-":
		return 11
	case "<<", ">>":
		return 10
	case "<", ">", "<=", ">=":
		return 9
	case "==", "!=", "===", "!==":
		return 8
	case "&":
		return 7
	case "^":
		return 6
	case "|":
		return 5
	case "&&":
		return 4
	case "||":
		return 3
	default:
		return -1
	}
}

// exprParser parses one expression out of a slice of a line's tokens.
type exprParser struct {
	tokens []token.Token
	pos    int
}

func (p *exprParser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *exprParser) current() token.Token {
	if p.atEnd() {
		unexpectedEnd(p.tokens[len(p.tokens)-1])
	}
	return p.tokens[p.pos]
}

func (p *exprParser) advance() token.Token {
	tok := p.current()
	p.pos++
	return tok
}

func (p *exprParser) check(text string) bool {
	return !p.atEnd() && p.tokens[p.pos].IsSymbol(text)
}

func (p *exprParser) match(text string) bool {
	if !p.check(text) {
		return false
	}
	p.pos++
	return true
}

func (p *exprParser) expect(text string) token.Token {
	tok := p.current()
	if !tok.IsSymbol(text) {
		unexpected(tok)
	}
	p.pos++
	return tok
}

func (p *exprParser) parseExpr() *ast.Node { return p.parseAssignmentExpr() }

func (p *exprParser) parseAssignmentExpr() *ast.Node {
	left := p.parseTernaryExpr()
	if p.atEnd() {
		return left
	}
	tok := p.tokens[p.pos]
	if tok.Kind != token.Symbol || !assignOps[tok.Text] {
		return left
	}
	if !ast.IsLValue(left) {
		unexpected(tok)
	}
	p.pos++
	right := p.parseAssignmentExpr()
	return ast.NewAssign(tok, tok.Text, left, right)
}

func (p *exprParser) parseTernaryExpr() *ast.Node {
	cond := p.parseBinaryExpr(3)
	if !p.check("?") {
		return cond
	}
	tok := p.advance()
	thenExpr := p.parseAssignmentExpr()
	p.expect(":")
	elseExpr := p.parseAssignmentExpr()
	return ast.NewTernary(tok, cond, thenExpr, elseExpr)
}

func (p *exprParser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for !p.atEnd() {
		op := p.tokens[p.pos]
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		p.pos++
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinary(op, op.Text, left, right)
	}
	return left
}

func (p *exprParser) parseUnaryExpr() *ast.Node {
	tok := p.current()
	switch {
	case tok.Kind == token.Symbol && (tok.Text == "!" || tok.Text == "-" || tok.Text == "+" || tok.Text == "~"):
		p.pos++
		return ast.NewUnary(tok, tok.Text, p.parseUnaryExpr())
	case tok.IsSymbol("++") || tok.IsSymbol("--"):
		p.pos++
		target := p.parseUnaryExpr()
		if !ast.IsLValue(target) {
			unexpected(tok)
		}
		return ast.NewUpdate(tok, tok.Text, true, target)
	case tok.Kind == token.Identifier && tok.Text == "typeof" && p.pos+1 < len(p.tokens) && startsPrimary(p.tokens[p.pos+1]):
		p.pos++
		return ast.NewUnary(tok, "typeof", p.parseUnaryExpr())
	}
	return p.parsePostfixExpr()
}

func startsPrimary(tok token.Token) bool {
	switch tok.Kind {
	case token.Identifier, token.Number, token.String:
		return true
	case token.Symbol:
		return strings.Contains("([{!-+~", tok.Text) && len(tok.Text) == 1
	}
	return false
}

func (p *exprParser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for !p.atEnd() {
		tok := p.tokens[p.pos]
		switch {
		case tok.IsSymbol("."):
			p.pos++
			name := p.current()
			if name.Kind != token.Identifier {
				unexpected(name)
			}
			p.pos++
			expr = ast.NewMember(tok, expr, name.Text)
		case tok.IsSymbol("("):
			p.pos++
			var args []*ast.Node
			if !p.check(")") {
				for {
					args = append(args, p.parseAssignmentExpr())
					if !p.match(",") {
						break
					}
				}
			}
			p.expect(")")
			expr = ast.NewCall(tok, expr, args)
		case tok.IsSymbol("["):
			p.pos++
			index := p.parseExpr()
			p.expect("]")
			expr = ast.NewIndex(tok, expr, index)
		case tok.IsSymbol("++") || tok.IsSymbol("--"):
			if !ast.IsLValue(expr) {
				unexpected(tok)
			}
			p.pos++
			expr = ast.NewUpdate(tok, tok.Text, false, expr)
		default:
			return expr
		}
	}
	return expr
}

func (p *exprParser) parsePrimaryExpr() *ast.Node {
	tok := p.advance()
	switch tok.Kind {
	case token.Number:
		return ast.NewNumber(tok, parseNumber(tok))
	case token.String:
		return ast.NewString(tok, unquote(tok.Text))
	case token.Identifier:
		if token.Literals[tok.Text] {
			return ast.NewLiteral(tok, tok.Text)
		}
		return ast.NewIdent(tok, tok.Text)
	case token.Symbol:
		switch tok.Text {
		case "(":
			expr := p.parseExpr()
			p.expect(")")
			return expr
		case "[":
			var elems []*ast.Node
			for !p.check("]") {
				elems = append(elems, p.parseAssignmentExpr())
				if !p.match(",") {
					break
				}
			}
			p.expect("]")
			return ast.NewArray(tok, elems)
		case "{":
			return p.parseObjectLiteral(tok)
		}
	}
	unexpected(tok)
	return nil
}

func (p *exprParser) parseObjectLiteral(open token.Token) *ast.Node {
	var keys []string
	var values []*ast.Node
	for !p.check("}") {
		key := p.advance()
		switch key.Kind {
		case token.Identifier:
			keys = append(keys, key.Text)
		case token.String:
			keys = append(keys, unquote(key.Text))
		case token.Number:
			keys = append(keys, strconv.FormatFloat(parseNumber(key), 'f', -1, 64))
		default:
			unexpected(key)
		}
		p.expect(":")
		values = append(values, p.parseAssignmentExpr())
		if !p.match(",") {
			break
		}
	}
	p.expect("}")
	return ast.NewObject(open, keys, values)
}

// parseNumber reads the lexer's number forms, including ".5", "1.e3" and exponents
// that carry their own fraction ("2e1.5").
func parseNumber(tok token.Token) float64 {
	text := tok.Text
	if v, err := strconv.ParseFloat(text, 64); err == nil || isRangeErr(err) {
		return v
	}
	i := strings.IndexAny(text, "eE")
	if i < 0 {
		unexpected(tok)
	}
	mant, err1 := strconv.ParseFloat(text[:i], 64)
	exp, err2 := strconv.ParseFloat(text[i+1:], 64)
	if err1 != nil || err2 != nil {
		unexpected(tok)
	}
	return mant * math.Pow(10, exp)
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// unquote resolves the escapes of a quoted string token. Unknown escapes stand for the
// escaped character itself.
func unquote(text string) string {
	r := []rune(text)
	if len(r) < 2 {
		return ""
	}
	r = r[1 : len(r)-1]
	var sb strings.Builder
	for i := 0; i < len(r); i++ {
		if r[i] != '\\' || i+1 >= len(r) {
			sb.WriteRune(r[i])
			continue
		}
		i++
		switch r[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case '0':
			sb.WriteByte(0)
		case 'x', 'u':
			width := 2
			if r[i] == 'u' {
				width = 4
			}
			if i+width < len(r) {
				if n, err := strconv.ParseUint(string(r[i+1:i+1+width]), 16, 32); err == nil {
					sb.WriteRune(rune(n))
					i += width
					continue
				}
			}
			sb.WriteRune(r[i])
		default:
			sb.WriteRune(r[i])
		}
	}
	return sb.String()
}
