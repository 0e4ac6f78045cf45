package ast

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dump writes an indented outline of the program, one node per line.
func Dump(w io.Writer, prog *Program) {
	d := &dumper{w: w}
	d.fn("function", prog.Main, 0)
}

type dumper struct{ w io.Writer }

func (d *dumper) line(depth int, format string, args ...interface{}) {
	fmt.Fprintf(d.w, "%s%s\n", strings.Repeat("  ", depth), fmt.Sprintf(format, args...))
}

func (d *dumper) fn(label string, fn *Func, depth int) {
	if fn.Name != "" {
		label += " " + fn.Name
	}
	d.line(depth, "%s(%s) locals=[%s]", label, strings.Join(fn.Params, ", "), strings.Join(fn.Locals, ", "))
	d.block(fn.Body)
}

func (d *dumper) block(b *Node) {
	bn := b.Data.(BlockNode)
	for _, s := range bn.Stmts {
		d.stmt(s, bn.Depth+1)
	}
}

func (d *dumper) stmt(n *Node, depth int) {
	line := n.Tok.Line + 1
	switch n.Type {
	case ExprStmt:
		d.line(depth, "%d: %s", line, Format(n.Data.(ExprStmtNode).Expr))
	case VarDecl:
		d.line(depth, "%d: var %s", line, strings.Join(n.Data.(VarDeclNode).Names, ", "))
	case Let:
		l := n.Data.(LetNode)
		if l.Value.Type == FuncLit {
			d.fn(fmt.Sprintf("%d: let %s = function", line, Format(l.Target)), l.Value.Data.(*Func), depth)
			return
		}
		d.line(depth, "%d: let %s = %s", line, Format(l.Target), Format(l.Value))
	case Await:
		a := n.Data.(AwaitNode)
		var targets []string
		for _, t := range a.Targets {
			targets = append(targets, Format(t))
		}
		lhs := ""
		if len(targets) > 0 {
			lhs = strings.Join(targets, ", ") + " = "
		}
		if a.Delay != nil {
			d.line(depth, "%d: %sawait %s", line, lhs, Format(a.Delay))
			return
		}
		d.line(depth, "%d: %sawait %s", line, lhs, Format(a.Call))
	case Sleep:
		d.line(depth, "%d: sleep %s", line, Format(n.Data.(SleepNode).Millis))
	case Defer:
		df := n.Data.(DeferNode)
		if df.Block != nil {
			d.line(depth, "%d: defer", line)
			d.block(df.Block)
			return
		}
		d.line(depth, "%d: defer %s", line, Format(df.Call))
	case If:
		in := n.Data.(IfNode)
		for i, br := range in.Branches {
			kw := "if"
			if i > 0 {
				kw = "elseif"
			}
			d.line(depth, "%d: %s %s", br.Body.Tok.Line+1, kw, Format(br.Cond))
			d.block(br.Body)
		}
		if in.Else != nil {
			d.line(depth, "%d: else", in.Else.Tok.Line+1)
			d.block(in.Else)
		}
	case For:
		fr := n.Data.(ForNode)
		if fr.Cond == nil {
			d.line(depth, "%d: for", line)
		} else {
			d.line(depth, "%d: for %s", line, Format(fr.Cond))
		}
		d.block(fr.Body)
	case ForIn:
		fr := n.Data.(ForInNode)
		d.line(depth, "%d: for %s in %s", line, fr.Name, Format(fr.Collection))
		d.block(fr.Body)
	case Break:
		d.line(depth, "%d: break", line)
	case Continue:
		d.line(depth, "%d: continue", line)
	case Return:
		var vals []string
		for _, v := range n.Data.(ReturnNode).Values {
			vals = append(vals, Format(v))
		}
		d.line(depth, "%d: return %s", line, strings.Join(vals, " "))
	case Throw:
		if v := n.Data.(ThrowNode).Value; v != nil {
			d.line(depth, "%d: throw %s", line, Format(v))
		} else {
			d.line(depth, "%d: throw", line)
		}
	case FuncDecl:
		d.fn(fmt.Sprintf("%d: function", line), n.Data.(*Func), depth)
	case Native:
		d.line(depth, "%d: native", line)
		for _, src := range n.Data.(NativeNode).Source {
			d.line(depth+1, "%s", src)
		}
	default:
		d.line(depth, "%d: <node %d>", line, n.Type)
	}
}

// Format renders an expression in source form, fully parenthesized.
func Format(n *Node) string {
	switch n.Type {
	case Number:
		return strconv.FormatFloat(n.Data.(NumberNode).Value, 'g', -1, 64)
	case String:
		return strconv.Quote(n.Data.(StringNode).Value)
	case Literal:
		return n.Data.(LiteralNode).Name
	case Ident:
		return n.Data.(IdentNode).Name
	case Array:
		return "[" + formatList(n.Data.(ArrayNode).Elems) + "]"
	case Object:
		o := n.Data.(ObjectNode)
		parts := make([]string, len(o.Keys))
		for i, k := range o.Keys {
			parts[i] = k + ": " + Format(o.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Member:
		m := n.Data.(MemberNode)
		return Format(m.Expr) + "." + m.Name
	case Index:
		ix := n.Data.(IndexNode)
		return Format(ix.Expr) + "[" + Format(ix.Index) + "]"
	case Call:
		c := n.Data.(CallNode)
		return Format(c.Func) + "(" + formatList(c.Args) + ")"
	case Unary:
		u := n.Data.(UnaryNode)
		if u.Op == "typeof" {
			return "(typeof " + Format(u.Expr) + ")"
		}
		return "(" + u.Op + Format(u.Expr) + ")"
	case Update:
		u := n.Data.(UpdateNode)
		if u.Prefix {
			return "(" + u.Op + Format(u.Target) + ")"
		}
		return "(" + Format(u.Target) + u.Op + ")"
	case Binary:
		b := n.Data.(BinaryNode)
		return "(" + Format(b.Left) + " " + b.Op + " " + Format(b.Right) + ")"
	case Ternary:
		t := n.Data.(TernaryNode)
		return "(" + Format(t.Cond) + " ? " + Format(t.Then) + " : " + Format(t.Else) + ")"
	case Assign:
		a := n.Data.(AssignNode)
		return Format(a.Target) + " " + a.Op + " " + Format(a.Value)
	case FuncLit:
		return "function(" + strings.Join(n.Data.(*Func).Params, ", ") + ")"
	}
	return "?"
}

func formatList(nodes []*Node) string {
	parts := make([]string, len(nodes))
	for i, e := range nodes {
		parts[i] = Format(e)
	}
	return strings.Join(parts, ", ")
}
