// Package ast defines the tree the parser produces and the interpreter walks
package ast

import "github.com/xplshn/bright/pkg/token"

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	String
	Literal
	Ident
	Array
	Object
	Member
	Index
	Call
	Unary
	Update
	Binary
	Ternary
	Assign
	FuncLit

	// Statements
	ExprStmt
	VarDecl
	Let
	Await
	Sleep
	Defer
	If
	For
	ForIn
	Break
	Continue
	Return
	Throw
	FuncDecl
	Native
	Block
)

// Node represents a node in the AST
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}
}

// --- Node Data Structs ---
type NumberNode struct{ Value float64 }
type StringNode struct{ Value string }
type LiteralNode struct{ Name string } // true false null undefined NaN
type IdentNode struct{ Name string }
type ArrayNode struct{ Elems []*Node }
type ObjectNode struct {
	Keys   []string
	Values []*Node
}
type MemberNode struct {
	Expr *Node
	Name string
}
type IndexNode struct{ Expr, Index *Node }
type CallNode struct {
	Func *Node
	Args []*Node
}
type UnaryNode struct {
	Op   string
	Expr *Node
}
type UpdateNode struct {
	Op     string // "++" or "--"
	Prefix bool
	Target *Node
}
type BinaryNode struct {
	Op          string
	Left, Right *Node
}
type TernaryNode struct{ Cond, Then, Else *Node }
type AssignNode struct {
	Op            string // "=", "+=", ...
	Target, Value *Node
}

// Func is shared by function literals, function declarations and the top-level unit.
type Func struct {
	Name   string
	Params []string
	Body   *Node // Block
	Locals []string
}

type ExprStmtNode struct{ Expr *Node }
type VarDeclNode struct{ Names []string }

// LetNode assigns Value to Target, declaring Target when it is a plain name.
type LetNode struct{ Target, Value *Node }

// AwaitNode calls Call (a Call node) and binds the callback results to Targets in order.
// A non-nil Delay makes it a timed pause instead.
type AwaitNode struct {
	Call    *Node
	Delay   *Node
	Targets []*Node
}
type SleepNode struct{ Millis *Node }

// DeferNode holds either a call expression or a block.
type DeferNode struct {
	Call  *Node
	Block *Node
}
type CondBranch struct {
	Cond *Node
	Body *Node
}
type IfNode struct {
	Branches []CondBranch
	Else     *Node
}

// ForNode with a nil Cond loops until break or return.
type ForNode struct {
	Cond *Node
	Body *Node
}
type ForInNode struct {
	Name       string
	Collection *Node
	Body       *Node
}
type ReturnNode struct{ Values []*Node }
type ThrowNode struct{ Value *Node }

// NativeNode is a host-code block: the reconstructed source of each line and the
// statement parsed from it.
type NativeNode struct {
	Source []string
	Stmts  []*Node
}
// BlockNode is one scope's statements. Defers counts the defer statements directly in
// it and Depth is its nesting level.
type BlockNode struct {
	Stmts  []*Node
	Defers int
	Depth  int
}

// Program is the compiled form of a whole source file.
type Program struct {
	Main     *Func
	Warnings []Warning
}

// Warning is a non-fatal diagnostic raised while parsing. Kind is the warning flag name.
type Warning struct {
	Kind    string
	Tok     token.Token
	Message string
}

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewNumber(tok token.Token, value float64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewLiteral(tok token.Token, name string) *Node {
	return newNode(tok, Literal, LiteralNode{Name: name})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewArray(tok token.Token, elems []*Node) *Node {
	return newNode(tok, Array, ArrayNode{Elems: elems})
}
func NewObject(tok token.Token, keys []string, values []*Node) *Node {
	return newNode(tok, Object, ObjectNode{Keys: keys, Values: values})
}
func NewMember(tok token.Token, expr *Node, name string) *Node {
	return newNode(tok, Member, MemberNode{Expr: expr, Name: name})
}
func NewIndex(tok token.Token, expr, index *Node) *Node {
	return newNode(tok, Index, IndexNode{Expr: expr, Index: index})
}
func NewCall(tok token.Token, fn *Node, args []*Node) *Node {
	return newNode(tok, Call, CallNode{Func: fn, Args: args})
}
func NewUnary(tok token.Token, op string, expr *Node) *Node {
	return newNode(tok, Unary, UnaryNode{Op: op, Expr: expr})
}
func NewUpdate(tok token.Token, op string, prefix bool, target *Node) *Node {
	return newNode(tok, Update, UpdateNode{Op: op, Prefix: prefix, Target: target})
}
func NewBinary(tok token.Token, op string, left, right *Node) *Node {
	return newNode(tok, Binary, BinaryNode{Op: op, Left: left, Right: right})
}
func NewTernary(tok token.Token, cond, thenExpr, elseExpr *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, Then: thenExpr, Else: elseExpr})
}
func NewAssign(tok token.Token, op string, target, value *Node) *Node {
	return newNode(tok, Assign, AssignNode{Op: op, Target: target, Value: value})
}
func NewFuncLit(tok token.Token, fn *Func) *Node {
	return newNode(tok, FuncLit, fn)
}

func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr})
}
func NewVarDecl(tok token.Token, names []string) *Node {
	return newNode(tok, VarDecl, VarDeclNode{Names: names})
}
func NewLet(tok token.Token, target, value *Node) *Node {
	return newNode(tok, Let, LetNode{Target: target, Value: value})
}
func NewAwait(tok token.Token, call, delay *Node, targets []*Node) *Node {
	return newNode(tok, Await, AwaitNode{Call: call, Delay: delay, Targets: targets})
}
func NewSleep(tok token.Token, millis *Node) *Node {
	return newNode(tok, Sleep, SleepNode{Millis: millis})
}
func NewDefer(tok token.Token, call, block *Node) *Node {
	return newNode(tok, Defer, DeferNode{Call: call, Block: block})
}
func NewIf(tok token.Token, branches []CondBranch, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Branches: branches, Else: elseBody})
}
func NewFor(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, For, ForNode{Cond: cond, Body: body})
}
func NewForIn(tok token.Token, name string, collection, body *Node) *Node {
	return newNode(tok, ForIn, ForInNode{Name: name, Collection: collection, Body: body})
}
func NewBreak(tok token.Token) *Node    { return newNode(tok, Break, nil) }
func NewContinue(tok token.Token) *Node { return newNode(tok, Continue, nil) }
func NewReturn(tok token.Token, values []*Node) *Node {
	return newNode(tok, Return, ReturnNode{Values: values})
}
func NewThrow(tok token.Token, value *Node) *Node {
	return newNode(tok, Throw, ThrowNode{Value: value})
}
func NewFuncDecl(tok token.Token, fn *Func) *Node {
	return newNode(tok, FuncDecl, fn)
}
func NewNative(tok token.Token, source []string, stmts []*Node) *Node {
	return newNode(tok, Native, NativeNode{Source: source, Stmts: stmts})
}
func NewBlock(tok token.Token, stmts []*Node, defers, depth int) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts, Defers: defers, Depth: depth})
}

// IsLValue reports whether node can appear on the left of an assignment
func IsLValue(node *Node) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case Ident, Member, Index:
		return true
	default:
		return false
	}
}

// Terminates reports whether control never falls off the end of stmt.
func Terminates(stmt *Node) bool {
	switch stmt.Type {
	case Return, Throw, Break, Continue:
		return true
	}
	return false
}
