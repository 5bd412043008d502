package compiler

import (
	"ecmavm/pkg/parser"
)

// inspect traverses an AST in depth-first order. If f returns false the
// children of the node are skipped. Property names that are not computed
// and statement labels are not visited since they reference no binding.
func inspect(node parser.Node, f func(parser.Node) bool) {
	if node == nil || !f(node) {
		return
	}
	visit := func(n parser.Node) {
		if n != nil {
			inspect(n, f)
		}
	}
	visitExpr := func(e parser.Expression) {
		if e != nil {
			inspect(e, f)
		}
	}
	visitStmts := func(list []parser.Statement) {
		for _, s := range list {
			visit(s)
		}
	}

	switch n := node.(type) {
	case *parser.Program:
		visitStmts(n.Body)
	case *parser.VarDeclaration:
		for _, d := range n.Declarations {
			visitExpr(d.Target)
			visitExpr(d.Init)
		}
	case *parser.FunctionDeclaration:
		visit(n.Function)
	case *parser.ClassDeclaration:
		visit(n.Class)
	case *parser.ExpressionStatement:
		visitExpr(n.Expression)
	case *parser.BlockStatement:
		visitStmts(n.Body)
	case *parser.IfStatement:
		visitExpr(n.Test)
		visit(n.Consequent)
		visit(n.Alternate)
	case *parser.ForStatement:
		visit(n.Init)
		visitExpr(n.Test)
		visitExpr(n.Update)
		visit(n.Body)
	case *parser.ForInStatement:
		visit(n.Left)
		visitExpr(n.Right)
		visit(n.Body)
	case *parser.ForOfStatement:
		visit(n.Left)
		visitExpr(n.Right)
		visit(n.Body)
	case *parser.WhileStatement:
		visitExpr(n.Test)
		visit(n.Body)
	case *parser.DoWhileStatement:
		visit(n.Body)
		visitExpr(n.Test)
	case *parser.ReturnStatement:
		visitExpr(n.Argument)
	case *parser.ThrowStatement:
		visitExpr(n.Argument)
	case *parser.TryStatement:
		visit(n.Block)
		visitExpr(n.Param)
		if n.Handler != nil {
			visit(n.Handler)
		}
		if n.Finalizer != nil {
			visit(n.Finalizer)
		}
	case *parser.SwitchStatement:
		visitExpr(n.Discriminant)
		for _, c := range n.Cases {
			visitExpr(c.Test)
			visitStmts(c.Body)
		}
	case *parser.LabeledStatement:
		visit(n.Body)
	case *parser.WithStatement:
		visitExpr(n.Object)
		visit(n.Body)

	case *parser.TemplateLiteral:
		for _, e := range n.Expressions {
			visitExpr(e)
		}
	case *parser.TaggedTemplate:
		visitExpr(n.Tag)
		visit(n.Quasi)
	case *parser.ArrayLiteral:
		for _, e := range n.Elements {
			visitExpr(e)
		}
	case *parser.ObjectLiteral:
		for _, p := range n.Properties {
			if p.Computed {
				visitExpr(p.Key)
			}
			visitExpr(p.Value)
		}
	case *parser.FunctionLiteral:
		for _, p := range n.Params {
			visitExpr(p)
		}
		visitExpr(n.Rest)
		if n.Body != nil {
			visit(n.Body)
		}
	case *parser.ClassLiteral:
		visitExpr(n.SuperClass)
		if n.Constructor != nil {
			visit(n.Constructor)
		}
		for _, m := range n.Members {
			if m.Computed {
				visitExpr(m.Key)
			}
			visitExpr(m.Value)
		}
	case *parser.PrefixExpression:
		visitExpr(n.Right)
	case *parser.UpdateExpression:
		visitExpr(n.Target)
	case *parser.InfixExpression:
		visitExpr(n.Left)
		visitExpr(n.Right)
	case *parser.AssignmentExpression:
		visitExpr(n.Target)
		visitExpr(n.Value)
	case *parser.TernaryExpression:
		visitExpr(n.Condition)
		visitExpr(n.Consequence)
		visitExpr(n.Alternative)
	case *parser.SequenceExpression:
		for _, e := range n.Expressions {
			visitExpr(e)
		}
	case *parser.CallExpression:
		visitExpr(n.Callee)
		for _, a := range n.Arguments {
			visitExpr(a)
		}
	case *parser.NewExpression:
		visitExpr(n.Callee)
		for _, a := range n.Arguments {
			visitExpr(a)
		}
	case *parser.MemberExpression:
		visitExpr(n.Object)
	case *parser.IndexExpression:
		visitExpr(n.Object)
		visitExpr(n.Index)
	case *parser.OptionalChain:
		visitExpr(n.Expression)
	case *parser.SpreadElement:
		visitExpr(n.Argument)
	case *parser.YieldExpression:
		visitExpr(n.Argument)
	case *parser.AwaitExpression:
		visitExpr(n.Argument)
	case *parser.ArrayPattern:
		for _, e := range n.Elements {
			visitExpr(e)
		}
		visitExpr(n.Rest)
	case *parser.ObjectPattern:
		for _, p := range n.Properties {
			if p.Computed {
				visitExpr(p.Key)
			}
			visitExpr(p.Value)
		}
		visitExpr(n.Rest)
	case *parser.AssignmentPattern:
		visitExpr(n.Target)
		visitExpr(n.Default)
	}
}

// declKind tells how a lexically scoped declaration binds its names.
type declKind int

const (
	declLet declKind = iota
	declConst
	declClass
	declFunction
)

// lexicalDecl is one name declared by a let, const, class or (block
// level) function declaration.
type lexicalDecl struct {
	name string
	kind declKind
	fn   *parser.FunctionLiteral // declFunction only
}

// lexicalDeclarations returns the names a statement list declares in its
// own block scope. Top-level function declarations of a function body are
// var scoped and excluded with topLevel.
func lexicalDeclarations(list []parser.Statement, topLevel bool) []lexicalDecl {
	var decls []lexicalDecl
	for _, s := range list {
		switch d := unlabel(s).(type) {
		case *parser.VarDeclaration:
			if !d.IsLexical() {
				continue
			}
			kind := declLet
			if d.Kind == "const" {
				kind = declConst
			}
			for _, vd := range d.Declarations {
				for _, id := range parser.BoundNames(vd.Target) {
					decls = append(decls, lexicalDecl{name: id.Value, kind: kind})
				}
			}
		case *parser.ClassDeclaration:
			decls = append(decls, lexicalDecl{name: d.Class.Name.Value, kind: declClass})
		case *parser.FunctionDeclaration:
			if !topLevel {
				decls = append(decls, lexicalDecl{name: d.Function.Name.Value, kind: declFunction, fn: d.Function})
			}
		}
	}
	return decls
}

// functionDeclarations returns the function declarations of a statement
// list, looking through labels. Later declarations of a name win.
func functionDeclarations(list []parser.Statement) []*parser.FunctionLiteral {
	var fns []*parser.FunctionLiteral
	for _, s := range list {
		if d, ok := unlabel(s).(*parser.FunctionDeclaration); ok {
			fns = append(fns, d.Function)
		}
	}
	return fns
}

func unlabel(s parser.Statement) parser.Statement {
	for {
		l, ok := s.(*parser.LabeledStatement)
		if !ok {
			return s
		}
		s = l.Body
	}
}

// varScope collects the var scoped names of a function body or script.
type varScope struct {
	names []string
	seen  map[string]bool
	// block level functions that also get a var binding in sloppy code
	annexB map[*parser.FunctionLiteral]bool
}

func (v *varScope) add(name string) {
	if !v.seen[name] {
		v.seen[name] = true
		v.names = append(v.names, name)
	}
}

// collectVarScope finds the var declarations of body, descending into
// nested statements but not into functions. excluded holds names that
// block level functions may not hoist over (parameters and top-level
// lexical names).
func collectVarScope(body []parser.Statement, strict bool, excluded map[string]bool) *varScope {
	v := &varScope{seen: make(map[string]bool), annexB: make(map[*parser.FunctionLiteral]bool)}
	for _, fn := range functionDeclarations(body) {
		v.add(fn.Name.Value)
	}
	var blocks [][]lexicalDecl
	blocked := func(name string) bool {
		if excluded[name] {
			return true
		}
		for _, b := range blocks {
			for _, d := range b {
				if d.name == name {
					return true
				}
			}
		}
		return false
	}

	var stmt func(s parser.Statement, top bool)
	stmts := func(list []parser.Statement, top bool) {
		if !top {
			lex := lexicalDeclarations(list, false)
			if !strict {
				for _, d := range lex {
					if d.kind == declFunction && !d.fn.Async && !d.fn.Generator {
						blocks = append(blocks, withoutName(lex, d.name))
						if !blocked(d.name) {
							v.annexB[d.fn] = true
						}
						blocks = blocks[:len(blocks)-1]
					}
				}
			}
			blocks = append(blocks, lex)
			defer func() { blocks = blocks[:len(blocks)-1] }()
		}
		for _, s := range list {
			stmt(s, top)
		}
	}
	varDecl := func(n parser.Node) {
		if d, ok := n.(*parser.VarDeclaration); ok && !d.IsLexical() {
			for _, vd := range d.Declarations {
				for _, id := range parser.BoundNames(vd.Target) {
					v.add(id.Value)
				}
			}
		}
	}
	stmt = func(s parser.Statement, top bool) {
		switch n := s.(type) {
		case *parser.VarDeclaration:
			varDecl(n)
		case *parser.BlockStatement:
			stmts(n.Body, false)
		case *parser.IfStatement:
			stmt(n.Consequent, false)
			if n.Alternate != nil {
				stmt(n.Alternate, false)
			}
		case *parser.ForStatement:
			varDecl(n.Init)
			stmt(n.Body, false)
		case *parser.ForInStatement:
			varDecl(n.Left)
			stmt(n.Body, false)
		case *parser.ForOfStatement:
			varDecl(n.Left)
			stmt(n.Body, false)
		case *parser.WhileStatement:
			stmt(n.Body, false)
		case *parser.DoWhileStatement:
			stmt(n.Body, false)
		case *parser.TryStatement:
			stmts(n.Block.Body, false)
			if n.Handler != nil {
				// a simple catch parameter does not block hoisting
				switch n.Param.(type) {
				case nil, *parser.Identifier:
					stmts(n.Handler.Body, false)
				default:
					var names []lexicalDecl
					for _, id := range parser.BoundNames(n.Param) {
						names = append(names, lexicalDecl{name: id.Value, kind: declLet})
					}
					blocks = append(blocks, names)
					stmts(n.Handler.Body, false)
					blocks = blocks[:len(blocks)-1]
				}
			}
			if n.Finalizer != nil {
				stmts(n.Finalizer.Body, false)
			}
		case *parser.SwitchStatement:
			var all []parser.Statement
			for _, c := range n.Cases {
				all = append(all, c.Body...)
			}
			stmts(all, false)
		case *parser.LabeledStatement:
			stmt(n.Body, top)
		case *parser.WithStatement:
			stmt(n.Body, false)
		}
	}
	stmts(body, true)

	for _, s := range annexBOrder(body, v.annexB) {
		v.add(s)
	}
	return v
}

func withoutName(list []lexicalDecl, name string) []lexicalDecl {
	out := make([]lexicalDecl, 0, len(list))
	for _, d := range list {
		if d.name != name {
			out = append(out, d)
		}
	}
	return out
}

// annexBOrder lists the hoisted block function names in source order.
func annexBOrder(body []parser.Statement, set map[*parser.FunctionLiteral]bool) []string {
	if len(set) == 0 {
		return nil
	}
	var names []string
	for _, s := range body {
		inspect(s, func(n parser.Node) bool {
			if fn, ok := n.(*parser.FunctionLiteral); ok {
				if set[fn] {
					names = append(names, fn.Name.Value)
				}
				return false
			}
			if _, ok := n.(*parser.ClassLiteral); ok {
				return false
			}
			return true
		})
	}
	return names
}

// usage records what a function body needs from its own activation,
// directly or through nested arrow functions.
type usage struct {
	arguments bool // the arguments object is referenced
	// referenced from inside arrow functions
	arrowThis      bool
	arrowNewTarget bool
	arrowHome      bool
	arrowSuperCall bool
	arrowArguments bool
}

// analyzeUsage scans the parameters and body of fn.
func analyzeUsage(fn *parser.FunctionLiteral) usage {
	nodes := make([]parser.Node, 0, len(fn.Params)+2)
	for _, p := range fn.Params {
		nodes = append(nodes, p)
	}
	if fn.Rest != nil {
		nodes = append(nodes, fn.Rest)
	}
	if fn.Body != nil {
		nodes = append(nodes, fn.Body)
	}
	return scanUsage(nodes...)
}

// scanUsage scans code running in one activation. Nested non-arrow
// functions and class bodies have their own activation and are skipped;
// class heritage and computed keys are evaluated in the enclosing
// function and are scanned.
func scanUsage(nodes ...parser.Node) usage {
	var u usage
	var scan func(n parser.Node, inArrow bool)
	scan = func(n parser.Node, inArrow bool) {
		inspect(n, func(n parser.Node) bool {
			switch t := n.(type) {
			case *parser.Identifier:
				if t.Value == "arguments" {
					u.arguments = true
					u.arrowArguments = u.arrowArguments || inArrow
				}
			case *parser.ThisExpression:
				u.arrowThis = u.arrowThis || inArrow
			case *parser.MetaProperty:
				u.arrowNewTarget = u.arrowNewTarget || inArrow
			case *parser.SuperExpression:
				if inArrow {
					u.arrowThis = true
					u.arrowHome = true
				}
			case *parser.CallExpression:
				if _, ok := t.Callee.(*parser.SuperExpression); ok && inArrow {
					u.arrowSuperCall = true
					u.arrowNewTarget = true
					u.arrowThis = true
				}
			case *parser.FunctionLiteral:
				if t.IsArrow() {
					for _, p := range t.Params {
						scan(p, true)
					}
					if t.Rest != nil {
						scan(t.Rest, true)
					}
					scan(t.Body, true)
				}
				return false
			case *parser.ClassLiteral:
				if t.SuperClass != nil {
					scan(t.SuperClass, inArrow)
				}
				for _, m := range t.Members {
					if m.Computed {
						scan(m.Key, inArrow)
					}
				}
				return false
			}
			return true
		})
	}
	for _, n := range nodes {
		if n != nil {
			scan(n, false)
		}
	}
	return u
}

// containsClosure reports whether n creates functions that could capture
// the environment of an enclosing loop iteration.
func containsClosure(nodes ...parser.Node) bool {
	found := false
	for _, n := range nodes {
		if n == nil {
			continue
		}
		inspect(n, func(n parser.Node) bool {
			switch n.(type) {
			case *parser.FunctionLiteral, *parser.ClassLiteral:
				found = true
			}
			return !found
		})
	}
	return found
}

// isAnonymousFunctionDefinition reports expressions that take their name
// from the binding or property they are assigned to.
func isAnonymousFunctionDefinition(e parser.Expression) bool {
	switch t := e.(type) {
	case *parser.FunctionLiteral:
		return t.Name == nil
	case *parser.ClassLiteral:
		return t.Name == nil
	}
	return false
}
