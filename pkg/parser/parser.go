// Package parser turns classified tokens into a Program. Source is read one line at a
// time and each line is dispatched on its leading keyword; a line without one is an
// expression statement. Blocks open with `{` at the end of a line and close with a `}`
// that starts a line.
package parser

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xplshn/bright/pkg/ast"
	"github.com/xplshn/bright/pkg/classify"
	"github.com/xplshn/bright/pkg/config"
	"github.com/xplshn/bright/pkg/lexer"
	"github.com/xplshn/bright/pkg/token"
)

// SyntaxError aborts compilation. Line and Column are 0-based.
type SyntaxError struct {
	Message string
	Line    int
	Column  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Line+1, e.Column+1)
}

func (e *SyntaxError) Position() (line, column int) { return e.Line, e.Column }
func (e *SyntaxError) Msg() string                  { return e.Message }

func fail(tok token.Token, format string, args ...interface{}) {
	panic(&SyntaxError{Message: fmt.Sprintf(format, args...), Line: tok.Line, Column: tok.Column})
}

func unexpected(tok token.Token)    { fail(tok, "Unexpected token %s", tok.Text) }
func unexpectedEnd(tok token.Token) { fail(tok, "Unexpected end of input") }

type scopeKind int

const (
	functionScope scopeKind = iota
	branchScope
	loopScope
	deferScope
)

// scope is the compile-time state of one block. Arguments and locals belong to the
// enclosing function scope; parents are only read, to resolve names and loops.
type scope struct {
	kind     scopeKind
	parent   *scope
	fn       *scope
	depth    int
	args     []string
	locals   []string
	cleanups int
	stmts    []*ast.Node

	lines [][]token.Token
	pos   int

	dead       bool
	warnedDead bool
}

func newScope(parent *scope, kind scopeKind, lines [][]token.Token) *scope {
	s := &scope{kind: kind, parent: parent, lines: lines}
	s.fn = s
	if parent != nil {
		s.depth = parent.depth + 1
		if kind != functionScope {
			s.fn = parent.fn
		}
	}
	return s
}

func (s *scope) next() []token.Token {
	if s.pos >= len(s.lines) {
		return nil
	}
	s.pos++
	return s.lines[s.pos-1]
}

func (s *scope) peek() []token.Token {
	if s.pos >= len(s.lines) {
		return nil
	}
	return s.lines[s.pos]
}

// declared reports whether name resolves to an argument or local of this function or
// of any function it is nested in.
func (s *scope) declared(name string) bool {
	for c := s; c != nil; c = c.parent {
		switch c.kind {
		case functionScope:
			if name == "$arguments" || slices.Contains(c.args, name) || slices.Contains(c.locals, name) {
				return true
			}
		case deferScope:
			if name == "error" {
				return true
			}
		}
	}
	return false
}

func (s *scope) declareLocal(name string) {
	fn := s.fn
	if !slices.Contains(fn.locals, name) && !slices.Contains(fn.args, name) {
		fn.locals = append(fn.locals, name)
	}
}

func (s *scope) inLoop() bool {
	for c := s; c != nil; c = c.parent {
		switch c.kind {
		case loopScope:
			return true
		case functionScope, deferScope:
			return false
		}
	}
	return false
}

// Parser holds the state shared by every scope of one compilation.
type Parser struct {
	cfg      *config.Config
	warnings []ast.Warning
	last     token.Token
}

// Parse compiles classified tokens. The first error aborts; no partial program is
// returned.
func Parse(tokens []token.Token, cfg *config.Config) (prog *ast.Program, err error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	p := &Parser{cfg: cfg}
	lines := readLines(tokens)
	if n := len(lines); n > 0 {
		last := lines[n-1]
		p.last = last[len(last)-1]
	}

	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(*SyntaxError)
			if !ok {
				panic(r)
			}
			prog, err = nil, se
		}
	}()

	main := newScope(nil, functionScope, lines)
	body := p.parseScope(main, token.Token{})
	fn := &ast.Func{Name: "main", Params: main.args, Body: body, Locals: main.locals}
	return &ast.Program{Main: fn, Warnings: p.warnings}, nil
}

// readLines drops blanks and comments and groups the rest by source line. A string
// that spans lines carries its statement on to the line where it closes.
func readLines(tokens []token.Token) [][]token.Token {
	var lines [][]token.Token
	var line []token.Token
	for _, t := range tokens {
		if t.Kind == token.Blank || t.Kind == token.Comment {
			continue
		}
		if len(line) > 0 && t.Line > line[len(line)-1].EndLine() {
			lines = append(lines, line)
			line = nil
		}
		line = append(line, t)
	}
	if len(line) > 0 {
		lines = append(lines, line)
	}
	return lines
}

func (p *Parser) warn(w config.Warning, tok token.Token, format string, args ...interface{}) {
	if !p.cfg.IsWarningEnabled(w) {
		return
	}
	p.warnings = append(p.warnings, ast.Warning{
		Kind:    p.cfg.Warnings[w].Name,
		Tok:     tok,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *Parser) parseScope(s *scope, open token.Token) *ast.Node {
	for line := s.next(); line != nil; line = s.next() {
		p.parseStatement(s, line)
	}
	return ast.NewBlock(open, s.stmts, s.cleanups, s.depth)
}

func (p *Parser) parseBlock(parent *scope, kind scopeKind, open token.Token, lines [][]token.Token) *ast.Node {
	return p.parseScope(newScope(parent, kind, lines), open)
}

func (p *Parser) emit(s *scope, node *ast.Node) {
	if s.dead && !s.warnedDead {
		p.warn(config.WarnUnreachableCode, node.Tok, "code will never be executed")
		s.warnedDead = true
	}
	s.stmts = append(s.stmts, node)
	if ast.Terminates(node) {
		s.dead = true
	}
}

func (p *Parser) parseStatement(s *scope, line []token.Token) {
	line = p.trimSemicolon(joinOperators(line))
	head, rest := line[0], line[1:]
	if head.Kind != token.Keyword {
		if head.IsSymbol("}") {
			unexpected(head)
		}
		p.emit(s, ast.NewExprStmt(head, p.expression(line, head)))
		return
	}

	switch head.Text {
	case "argument":
		p.parseArgument(s, head, rest)
	case "var":
		p.parseVar(s, head, rest)
	case "let":
		p.parseLet(s, head, rest)
	case "await":
		call, delay := p.parseAwaitOperand(head, rest)
		p.emit(s, ast.NewAwait(head, call, delay, nil))
	case "sleep":
		need(head, rest)
		p.emit(s, ast.NewSleep(head, p.expression(rest, head)))
	case "defer":
		p.parseDefer(s, head, rest)
	case "if":
		p.parseIf(s, head, rest)
	case "for":
		p.parseFor(s, head, rest)
	case "break", "continue":
		if len(rest) > 0 {
			unexpected(rest[0])
		}
		if !s.inLoop() {
			unexpected(head)
		}
		if head.Text == "break" {
			p.emit(s, ast.NewBreak(head))
		} else {
			p.emit(s, ast.NewContinue(head))
		}
	case "return":
		p.parseReturn(s, head, rest)
	case "throw":
		var v *ast.Node
		if len(rest) > 0 {
			v = p.expression(rest, head)
		}
		p.emit(s, ast.NewThrow(head, v))
	case "function":
		p.parseFunctionDecl(s, head, rest)
	case "native", "javascript":
		p.parseNative(s, head, rest)
	default:
		unexpected(head)
	}
}

// trimSemicolon accepts one trailing `;` out of habit, with a warning.
func (p *Parser) trimSemicolon(line []token.Token) []token.Token {
	last := line[len(line)-1]
	if len(line) > 1 && last.IsSymbol(";") {
		p.warn(config.WarnExtra, last, "unnecessary ';' at end of line")
		return line[:len(line)-1]
	}
	return line
}

func need(head token.Token, rest []token.Token) {
	if len(rest) == 0 {
		unexpectedEnd(head)
	}
}

// expression parses all of tokens as one expression.
func (p *Parser) expression(tokens []token.Token, anchor token.Token) *ast.Node {
	if len(tokens) == 0 {
		unexpectedEnd(anchor)
	}
	ep := &exprParser{tokens: tokens}
	node := ep.parseExpr()
	if !ep.atEnd() {
		unexpected(tokens[ep.pos])
	}
	return node
}

var closers = map[string]string{"(": ")", "[": "]", "{": "}"}

// splitOperands splits a list of operands separated by commas or by whitespace, as in
// `return c b a` or `let a, b[0] d.e = await f()`.
func splitOperands(tokens []token.Token) [][]token.Token {
	var parts [][]token.Token
	var stack []token.Token
	start := 0
	for i, t := range tokens {
		if t.Kind == token.Symbol {
			switch t.Text {
			case "(", "[", "{":
				stack = append(stack, t)
			case ")", "]", "}":
				if len(stack) == 0 || closers[stack[len(stack)-1].Text] != t.Text {
					fail(t, "brackets do not match")
				}
				stack = stack[:len(stack)-1]
			case ",":
				if len(stack) > 0 {
					continue
				}
				if i == start {
					unexpected(t)
				}
				parts = append(parts, tokens[start:i])
				start = i + 1
				continue
			}
		}
		if len(stack) == 0 && i > start && endsOperand(tokens[i-1]) && startsOperand(t) && !adjacent(tokens[i-1], t) {
			parts = append(parts, tokens[start:i])
			start = i
		}
	}
	if len(stack) > 0 {
		fail(stack[len(stack)-1], "brackets do not match")
	}
	if start < len(tokens) {
		parts = append(parts, tokens[start:])
	} else if len(tokens) > 0 {
		unexpectedEnd(tokens[len(tokens)-1])
	}
	return parts
}

func endsOperand(t token.Token) bool {
	switch t.Kind {
	case token.Identifier:
		return t.Text != "typeof"
	case token.Number, token.String:
		return true
	case token.Symbol:
		return t.Text == ")" || t.Text == "]" || t.Text == "}"
	}
	return false
}

func startsOperand(t token.Token) bool {
	return t.Kind == token.Identifier || t.Kind == token.Number || t.Kind == token.String
}

// indexTopLevel finds the first `text` symbol outside any brackets.
func indexTopLevel(tokens []token.Token, text string) int {
	depth := 0
	for i, t := range tokens {
		if t.Kind != token.Symbol {
			continue
		}
		switch t.Text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
		case text:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isName(t token.Token) bool { return t.Kind == token.Identifier && !token.Literals[t.Text] }

func (p *Parser) parseArgument(s *scope, head token.Token, rest []token.Token) {
	need(head, rest)
	for _, part := range splitOperands(rest) {
		if len(part) != 1 || !isName(part[0]) || slices.Contains(s.fn.args, part[0].Text) {
			unexpected(part[0])
		}
		s.fn.args = append(s.fn.args, part[0].Text)
	}
}

func (p *Parser) parseVar(s *scope, head token.Token, rest []token.Token) {
	need(head, rest)
	var names []string
	var inits []*ast.Node
	for _, part := range splitOperands(rest) {
		name := part[0]
		if !isName(name) {
			unexpected(name)
		}
		if len(part) > 1 {
			eq := part[1]
			if !eq.IsSymbol("=") {
				unexpected(eq)
			}
			value := p.expression(part[2:], eq)
			assign := ast.NewAssign(eq, "=", ast.NewIdent(name, name.Text), value)
			inits = append(inits, ast.NewExprStmt(name, assign))
		}
		if slices.Contains(s.fn.args, name.Text) {
			p.warn(config.WarnShadowArg, name, "'%s' redeclares an argument", name.Text)
		}
		s.declareLocal(name.Text)
		names = append(names, name.Text)
	}
	p.emit(s, ast.NewVarDecl(head, names))
	for _, init := range inits {
		p.emit(s, init)
	}
}

// declareTargets declares every plain name among targets that does not resolve yet.
func (p *Parser) declareTargets(s *scope, targets []*ast.Node, quiet bool) {
	for _, t := range targets {
		if t.Type != ast.Ident {
			continue
		}
		name := t.Data.(ast.IdentNode).Name
		if s.declared(name) {
			continue
		}
		if !quiet {
			p.warn(config.WarnImplicitDecl, t.Tok, "'%s' is declared implicitly, add 'var %s'", name, name)
		}
		s.declareLocal(name)
	}
}

func (p *Parser) parseLet(s *scope, head token.Token, rest []token.Token) {
	need(head, rest)
	eq := indexTopLevel(rest, "=")
	if eq < 0 {
		unexpectedEnd(rest[len(rest)-1])
	}
	if eq == 0 {
		unexpected(rest[0])
	}
	var targets []*ast.Node
	for _, part := range splitOperands(rest[:eq]) {
		target := p.expression(part, head)
		if !ast.IsLValue(target) {
			unexpected(part[0])
		}
		targets = append(targets, target)
	}
	source := rest[eq+1:]
	need(rest[eq], source)

	if source[0].IsKeyword("await") {
		p.declareTargets(s, targets, false)
		call, delay := p.parseAwaitOperand(source[0], source[1:])
		p.emit(s, ast.NewAwait(head, call, delay, targets))
		return
	}
	if len(targets) > 1 {
		fail(rest[0], "Not support tuple assignment")
	}
	p.declareTargets(s, targets, false)
	if source[0].IsKeyword("function") {
		fn := p.parseFunction(s, source[0], "", source[1:])
		p.emit(s, ast.NewLet(head, targets[0], ast.NewFuncLit(source[0], fn)))
		return
	}
	p.emit(s, ast.NewLet(head, targets[0], p.expression(source, rest[eq])))
}

// parseAwaitOperand reads what follows `await`: a bare number is a pause, anything
// else must name or call a function.
func (p *Parser) parseAwaitOperand(head token.Token, rest []token.Token) (call, delay *ast.Node) {
	need(head, rest)
	if len(rest) == 1 && rest[0].Kind == token.Number {
		return nil, p.expression(rest, head)
	}
	return p.callOperand(rest, head), nil
}

func (p *Parser) callOperand(tokens []token.Token, anchor token.Token) *ast.Node {
	expr := p.expression(tokens, anchor)
	switch expr.Type {
	case ast.Call:
		return expr
	case ast.Ident, ast.Member, ast.Index:
		return ast.NewCall(expr.Tok, expr, nil)
	}
	unexpected(tokens[0])
	return nil
}

func (p *Parser) parseDefer(s *scope, head token.Token, rest []token.Token) {
	need(head, rest)
	s.cleanups++
	if len(rest) == 1 && rest[0].IsSymbol("{") {
		lines := p.extractBody(s, rest[0])
		p.emit(s, ast.NewDefer(head, nil, p.parseBlock(s, deferScope, rest[0], lines)))
		return
	}
	p.emit(s, ast.NewDefer(head, p.callOperand(rest, head), nil))
}

// blockHeader splits `<header> {` into the header tokens and the opening brace.
func blockHeader(head token.Token, rest []token.Token) ([]token.Token, token.Token) {
	need(head, rest)
	open := rest[len(rest)-1]
	if !open.IsSymbol("{") {
		unexpectedEnd(open)
	}
	return rest[:len(rest)-1], open
}

// extractBlock takes the lines of the block opened by open out of s. The block ends
// at the `}` that brings the depth back to zero; that `}` must start its line, and the
// tokens after it are returned as the continuation (`else {`, `elseif x {`).
func (p *Parser) extractBlock(s *scope, open token.Token) (body [][]token.Token, tail []token.Token) {
	depth := 1
	start := s.pos
	for line := s.next(); line != nil; line = s.next() {
		for j, t := range line {
			if t.Kind != token.Symbol {
				continue
			}
			switch t.Text {
			case "{":
				depth++
			case "}":
				depth--
				if depth == 0 {
					if j != 0 {
						unexpected(t)
					}
					return s.lines[start : s.pos-1], line[1:]
				}
			}
		}
	}
	if p.last.Text != "" {
		unexpectedEnd(p.last)
	}
	unexpectedEnd(open)
	return nil, nil
}

// extractBody is extractBlock for blocks that take no continuation.
func (p *Parser) extractBody(s *scope, open token.Token) [][]token.Token {
	body, tail := p.extractBlock(s, open)
	if len(tail) > 0 {
		unexpected(tail[0])
	}
	return body
}

func (p *Parser) parseIf(s *scope, head token.Token, rest []token.Token) {
	var branches []ast.CondBranch
	var elseBody *ast.Node
	kw, hdr := head, rest
	for {
		cond, open := blockHeader(kw, hdr)
		if kw.Text == "else" {
			if len(cond) > 0 {
				unexpected(cond[0])
			}
			elseBody = p.parseBlock(s, branchScope, open, p.extractBody(s, open))
			break
		}
		if len(cond) == 0 {
			unexpected(open)
		}
		condExpr := p.expression(p.condition(cond), kw)
		lines, tail := p.extractBlock(s, open)
		branches = append(branches, ast.CondBranch{Cond: condExpr, Body: p.parseBlock(s, branchScope, open, lines)})

		if len(tail) == 0 {
			if next := s.peek(); next != nil && (next[0].IsKeyword("elseif") || next[0].IsKeyword("else")) {
				tail = s.next()
			}
		}
		if len(tail) == 0 {
			break
		}
		if !tail[0].IsKeyword("elseif") && !tail[0].IsKeyword("else") {
			unexpected(tail[0])
		}
		kw, hdr = tail[0], tail[1:]
	}
	p.emit(s, ast.NewIf(head, branches, elseBody))
}

func (p *Parser) parseFor(s *scope, head token.Token, rest []token.Token) {
	hdr, open := blockHeader(head, rest)
	switch {
	case len(hdr) >= 3 && isName(hdr[0]) && hdr[1].IsKeyword("in"):
		name := ast.NewIdent(hdr[0], hdr[0].Text)
		p.declareTargets(s, []*ast.Node{name}, true)
		collection := p.expression(hdr[2:], hdr[1])
		body := p.parseBlock(s, loopScope, open, p.extractBody(s, open))
		p.emit(s, ast.NewForIn(head, hdr[0].Text, collection, body))
	default:
		var cond *ast.Node
		if len(hdr) > 0 {
			cond = p.expression(p.condition(hdr), head)
		}
		body := p.parseBlock(s, loopScope, open, p.extractBody(s, open))
		p.emit(s, ast.NewFor(head, cond, body))
	}
}

// condition reads a lone `=` in an if, elseif or loop condition as `==`.
func (p *Parser) condition(tokens []token.Token) []token.Token {
	out := make([]token.Token, len(tokens))
	copy(out, tokens)
	for i, t := range out {
		if t.IsSymbol("=") {
			p.warn(config.WarnCondAssign, t, "'=' in a condition is compared with '=='")
			out[i].Text = "=="
		}
	}
	return out
}

func (p *Parser) parseReturn(s *scope, head token.Token, rest []token.Token) {
	var values []*ast.Node
	if len(rest) > 0 {
		for _, part := range splitOperands(rest) {
			if len(part) > 1 {
				unexpected(part[1])
			}
			if part[0].Kind != token.Identifier && part[0].Kind != token.Number {
				unexpected(part[0])
			}
			values = append(values, p.expression(part, head))
		}
	}
	p.emit(s, ast.NewReturn(head, values))
}

func (p *Parser) parseFunctionDecl(s *scope, head token.Token, rest []token.Token) {
	need(head, rest)
	if !isName(rest[0]) {
		unexpected(rest[0])
	}
	s.declareLocal(rest[0].Text)
	fn := p.parseFunction(s, head, rest[0].Text, rest[1:])
	p.emit(s, ast.NewFuncDecl(head, fn))
}

// parseFunction reads `(a, b) {` and the body that follows.
func (p *Parser) parseFunction(s *scope, head token.Token, name string, rest []token.Token) *ast.Func {
	hdr, open := blockHeader(head, rest)
	if len(hdr) == 0 {
		unexpected(open)
	}
	if !hdr[0].IsSymbol("(") {
		unexpected(hdr[0])
	}
	if last := hdr[len(hdr)-1]; len(hdr) < 2 || !last.IsSymbol(")") {
		unexpected(last)
	}
	var params []string
	inner := hdr[1 : len(hdr)-1]
	for i, t := range inner {
		if i%2 == 1 {
			if !t.IsSymbol(",") {
				unexpected(t)
			}
			continue
		}
		if !isName(t) || slices.Contains(params, t.Text) {
			unexpected(t)
		}
		params = append(params, t.Text)
	}
	if n := len(inner); n > 0 && n%2 == 0 {
		unexpected(inner[n-1])
	}

	fs := newScope(s, functionScope, p.extractBody(s, open))
	fs.args = params
	body := p.parseScope(fs, open)
	return &ast.Func{Name: name, Params: fs.args, Body: body, Locals: fs.locals}
}

// parseNative handles the host-code escape hatch. Each line is rebuilt from its tokens
// and the rebuilt text is compiled again as an expression statement.
func (p *Parser) parseNative(s *scope, head token.Token, rest []token.Token) {
	allowed := p.cfg.IsFeatureEnabled(config.FeatNativeBlock)
	if head.Text == "javascript" {
		allowed = p.cfg.IsFeatureEnabled(config.FeatJSAlias)
	}
	if !allowed {
		unexpected(head)
	}
	need(head, rest)
	if len(rest) != 1 || !rest[0].IsSymbol("{") {
		unexpected(rest[len(rest)-1])
	}

	var source []string
	var stmts []*ast.Node
	for _, line := range p.extractBody(s, rest[0]) {
		text := Reconstruct(line)
		source = append(source, text)
		tokens, err := lexer.Tokenize(text)
		if err != nil {
			le := err.(*lexer.Error)
			fail(token.Token{Line: line[0].Line, Column: line[0].Column + le.Column}, "%s", le.Message)
		}
		var relocated []token.Token
		for _, t := range classify.Classify(tokens) {
			if t.Kind == token.Blank || t.Kind == token.Comment {
				continue
			}
			t.Line, t.Column = line[0].Line, line[0].Column+t.Column
			relocated = append(relocated, t)
		}
		if len(relocated) == 0 {
			continue
		}
		relocated = p.trimSemicolon(joinOperators(relocated))
		stmts = append(stmts, ast.NewExprStmt(relocated[0], p.expression(relocated, relocated[0])))
	}
	p.emit(s, ast.NewNative(head, source, stmts))
}

// Reconstruct joins a line's tokens back into text: one space between adjacent words,
// nothing between anything else.
func Reconstruct(line []token.Token) string {
	var sb strings.Builder
	for i, t := range line {
		if i > 0 && isWord(line[i-1]) && isWord(t) {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func isWord(t token.Token) bool {
	switch t.Kind {
	case token.Keyword, token.Identifier, token.Name, token.Number:
		return true
	}
	return false
}
