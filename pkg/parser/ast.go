package parser

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"ecmavm/pkg/lexer"
	"ecmavm/pkg/source"
)

// --- Interfaces ---

// Node is the base interface for all AST nodes.
type Node interface {
	TokenLiteral() string     // Literal of the token the node starts with
	String() string           // Canonical re-serialization (valid source text)
	StartToken() lexer.Token // Token the node starts with, for diagnostics
}

// Statement represents a statement node in the AST.
type Statement interface {
	Node
	statementNode()
}

// Expression represents an expression node in the AST. Binding and
// assignment patterns are expressions too.
type Expression interface {
	Node
	expressionNode()
}

// --- Program Node ---

// Program is the root node of the AST.
type Program struct {
	Body   []Statement
	Strict bool
	Source *source.SourceFile
}

func (p *Program) TokenLiteral() string {
	if len(p.Body) > 0 {
		return p.Body[0].TokenLiteral()
	}
	return ""
}

func (p *Program) StartToken() lexer.Token {
	if len(p.Body) > 0 {
		return p.Body[0].StartToken()
	}
	return lexer.Token{Line: 1, Column: 1}
}

func (p *Program) String() string {
	var out bytes.Buffer
	for i, s := range p.Body {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(s.String())
	}
	return out.String()
}

// DumpASTEnabled makes DumpAST print programs to stderr.
var DumpASTEnabled = false

// DumpAST prints the re-serialized program when DumpASTEnabled is set.
func DumpAST(program *Program, label string) {
	if !DumpASTEnabled || program == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "=== AST (%s) ===\n%s\n=== END AST ===\n", label, program.String())
}

// --- Statement Nodes ---

// VarDeclaration is a var, let or const declaration.
type VarDeclaration struct {
	Token        lexer.Token
	Kind         string // "var", "let" or "const"
	Declarations []*VariableDeclarator
}

func (vd *VarDeclaration) statementNode()           {}
func (vd *VarDeclaration) TokenLiteral() string     { return vd.Token.Literal }
func (vd *VarDeclaration) StartToken() lexer.Token { return vd.Token }
func (vd *VarDeclaration) String() string {
	return vd.declString() + ";"
}

func (vd *VarDeclaration) declString() string {
	parts := make([]string, len(vd.Declarations))
	for i, d := range vd.Declarations {
		parts[i] = d.String()
	}
	return vd.Kind + " " + strings.Join(parts, ", ")
}

// IsLexical reports whether the declaration is let or const.
func (vd *VarDeclaration) IsLexical() bool { return vd.Kind != "var" }

// VariableDeclarator is one `target = init` binding of a declaration.
type VariableDeclarator struct {
	Token  lexer.Token
	Target Expression // Identifier, ArrayPattern or ObjectPattern
	Init   Expression // may be nil
}

func (d *VariableDeclarator) TokenLiteral() string     { return d.Token.Literal }
func (d *VariableDeclarator) StartToken() lexer.Token { return d.Token }
func (d *VariableDeclarator) String() string {
	if d.Init == nil {
		return d.Target.String()
	}
	return d.Target.String() + " = " + d.Init.String()
}

// FunctionDeclaration hoists a named function.
type FunctionDeclaration struct {
	Token    lexer.Token
	Function *FunctionLiteral
}

func (fd *FunctionDeclaration) statementNode()           {}
func (fd *FunctionDeclaration) TokenLiteral() string     { return fd.Token.Literal }
func (fd *FunctionDeclaration) StartToken() lexer.Token { return fd.Token }
func (fd *FunctionDeclaration) String() string           { return fd.Function.String() }

// ClassDeclaration binds a class in the enclosing block.
type ClassDeclaration struct {
	Token lexer.Token
	Class *ClassLiteral
}

func (cd *ClassDeclaration) statementNode()           {}
func (cd *ClassDeclaration) TokenLiteral() string     { return cd.Token.Literal }
func (cd *ClassDeclaration) StartToken() lexer.Token { return cd.Token }
func (cd *ClassDeclaration) String() string           { return cd.Class.String() }

// ExpressionStatement wraps an expression used as a statement.
type ExpressionStatement struct {
	Token      lexer.Token
	Expression Expression
	Directive  string // raw directive text when part of a directive prologue
}

func (es *ExpressionStatement) statementNode()           {}
func (es *ExpressionStatement) TokenLiteral() string     { return es.Token.Literal }
func (es *ExpressionStatement) StartToken() lexer.Token { return es.Token }
func (es *ExpressionStatement) String() string {
	s := es.Expression.String()
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "function") ||
		strings.HasPrefix(s, "class") || strings.HasPrefix(s, "let [") ||
		strings.HasPrefix(s, "async function") {
		s = "(" + s + ")"
	}
	return s + ";"
}

// BlockStatement is a braced statement list.
type BlockStatement struct {
	Token lexer.Token
	Body  []Statement
}

func (bs *BlockStatement) statementNode()           {}
func (bs *BlockStatement) TokenLiteral() string     { return bs.Token.Literal }
func (bs *BlockStatement) StartToken() lexer.Token { return bs.Token }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{")
	for _, s := range bs.Body {
		out.WriteString(" ")
		out.WriteString(s.String())
	}
	out.WriteString(" }")
	return out.String()
}

// EmptyStatement is a lone semicolon.
type EmptyStatement struct {
	Token lexer.Token
}

func (es *EmptyStatement) statementNode()           {}
func (es *EmptyStatement) TokenLiteral() string     { return es.Token.Literal }
func (es *EmptyStatement) StartToken() lexer.Token { return es.Token }
func (es *EmptyStatement) String() string           { return ";" }

// IfStatement is if/else.
type IfStatement struct {
	Token      lexer.Token
	Test       Expression
	Consequent Statement
	Alternate  Statement
}

func (is *IfStatement) statementNode()           {}
func (is *IfStatement) TokenLiteral() string     { return is.Token.Literal }
func (is *IfStatement) StartToken() lexer.Token { return is.Token }
func (is *IfStatement) String() string {
	s := "if (" + is.Test.String() + ") " + is.Consequent.String()
	if is.Alternate != nil {
		s += " else " + is.Alternate.String()
	}
	return s
}

// ForStatement is the three-clause for loop.
type ForStatement struct {
	Token  lexer.Token
	Init   Node // *VarDeclaration, Expression or nil
	Test   Expression
	Update Expression
	Body   Statement
}

func (fs *ForStatement) statementNode()           {}
func (fs *ForStatement) TokenLiteral() string     { return fs.Token.Literal }
func (fs *ForStatement) StartToken() lexer.Token { return fs.Token }
func (fs *ForStatement) String() string {
	var out bytes.Buffer
	out.WriteString("for (")
	switch init := fs.Init.(type) {
	case *VarDeclaration:
		out.WriteString(init.declString())
	case Expression:
		out.WriteString(init.String())
	}
	out.WriteString("; ")
	if fs.Test != nil {
		out.WriteString(fs.Test.String())
	}
	out.WriteString("; ")
	if fs.Update != nil {
		out.WriteString(fs.Update.String())
	}
	out.WriteString(") ")
	out.WriteString(fs.Body.String())
	return out.String()
}

// ForInStatement iterates enumerable property keys.
type ForInStatement struct {
	Token lexer.Token
	Left  Node // *VarDeclaration with one declarator, or an assignment target
	Right Expression
	Body  Statement
}

func (fs *ForInStatement) statementNode()           {}
func (fs *ForInStatement) TokenLiteral() string     { return fs.Token.Literal }
func (fs *ForInStatement) StartToken() lexer.Token { return fs.Token }
func (fs *ForInStatement) String() string {
	return "for (" + forHeadString(fs.Left) + " in " + fs.Right.String() + ") " + fs.Body.String()
}

// ForOfStatement iterates an iterable.
type ForOfStatement struct {
	Token lexer.Token
	Left  Node
	Right Expression
	Body  Statement
	Await bool
}

func (fs *ForOfStatement) statementNode()           {}
func (fs *ForOfStatement) TokenLiteral() string     { return fs.Token.Literal }
func (fs *ForOfStatement) StartToken() lexer.Token { return fs.Token }
func (fs *ForOfStatement) String() string {
	kw := "for ("
	if fs.Await {
		kw = "for await ("
	}
	return kw + forHeadString(fs.Left) + " of " + fs.Right.String() + ") " + fs.Body.String()
}

func forHeadString(n Node) string {
	if vd, ok := n.(*VarDeclaration); ok {
		return vd.declString()
	}
	return n.String()
}

// WhileStatement is a while loop.
type WhileStatement struct {
	Token lexer.Token
	Test  Expression
	Body  Statement
}

func (ws *WhileStatement) statementNode()           {}
func (ws *WhileStatement) TokenLiteral() string     { return ws.Token.Literal }
func (ws *WhileStatement) StartToken() lexer.Token { return ws.Token }
func (ws *WhileStatement) String() string {
	return "while (" + ws.Test.String() + ") " + ws.Body.String()
}

// DoWhileStatement is a do...while loop.
type DoWhileStatement struct {
	Token lexer.Token
	Body  Statement
	Test  Expression
}

func (dws *DoWhileStatement) statementNode()           {}
func (dws *DoWhileStatement) TokenLiteral() string     { return dws.Token.Literal }
func (dws *DoWhileStatement) StartToken() lexer.Token { return dws.Token }
func (dws *DoWhileStatement) String() string {
	return "do " + dws.Body.String() + " while (" + dws.Test.String() + ");"
}

// BreakStatement exits a loop, switch or labelled statement.
type BreakStatement struct {
	Token lexer.Token
	Label *Identifier
}

func (bs *BreakStatement) statementNode()           {}
func (bs *BreakStatement) TokenLiteral() string     { return bs.Token.Literal }
func (bs *BreakStatement) StartToken() lexer.Token { return bs.Token }
func (bs *BreakStatement) String() string {
	if bs.Label != nil {
		return "break " + bs.Label.Value + ";"
	}
	return "break;"
}

// ContinueStatement jumps to the next iteration of a loop.
type ContinueStatement struct {
	Token lexer.Token
	Label *Identifier
}

func (cs *ContinueStatement) statementNode()           {}
func (cs *ContinueStatement) TokenLiteral() string     { return cs.Token.Literal }
func (cs *ContinueStatement) StartToken() lexer.Token { return cs.Token }
func (cs *ContinueStatement) String() string {
	if cs.Label != nil {
		return "continue " + cs.Label.Value + ";"
	}
	return "continue;"
}

// ReturnStatement returns from a function.
type ReturnStatement struct {
	Token    lexer.Token
	Argument Expression
}

func (rs *ReturnStatement) statementNode()           {}
func (rs *ReturnStatement) TokenLiteral() string     { return rs.Token.Literal }
func (rs *ReturnStatement) StartToken() lexer.Token { return rs.Token }
func (rs *ReturnStatement) String() string {
	if rs.Argument == nil {
		return "return;"
	}
	return "return " + rs.Argument.String() + ";"
}

// ThrowStatement throws a value.
type ThrowStatement struct {
	Token    lexer.Token
	Argument Expression
}

func (ts *ThrowStatement) statementNode()           {}
func (ts *ThrowStatement) TokenLiteral() string     { return ts.Token.Literal }
func (ts *ThrowStatement) StartToken() lexer.Token { return ts.Token }
func (ts *ThrowStatement) String() string           { return "throw " + ts.Argument.String() + ";" }

// TryStatement is try/catch/finally. Handler and Finalizer may be nil, but
// not both; Param is nil for `catch {}`.
type TryStatement struct {
	Token     lexer.Token
	Block     *BlockStatement
	Param     Expression
	Handler   *BlockStatement
	Finalizer *BlockStatement
}

func (ts *TryStatement) statementNode()           {}
func (ts *TryStatement) TokenLiteral() string     { return ts.Token.Literal }
func (ts *TryStatement) StartToken() lexer.Token { return ts.Token }
func (ts *TryStatement) String() string {
	s := "try " + ts.Block.String()
	if ts.Handler != nil {
		s += " catch "
		if ts.Param != nil {
			s += "(" + ts.Param.String() + ") "
		}
		s += ts.Handler.String()
	}
	if ts.Finalizer != nil {
		s += " finally " + ts.Finalizer.String()
	}
	return s
}

// SwitchStatement is a switch with its cases; the case bodies share one scope.
type SwitchStatement struct {
	Token        lexer.Token
	Discriminant Expression
	Cases        []*SwitchCase
}

// SwitchCase is one `case x:` or `default:` clause (Test is nil).
type SwitchCase struct {
	Token lexer.Token
	Test  Expression
	Body  []Statement
}

func (ss *SwitchStatement) statementNode()           {}
func (ss *SwitchStatement) TokenLiteral() string     { return ss.Token.Literal }
func (ss *SwitchStatement) StartToken() lexer.Token { return ss.Token }
func (ss *SwitchStatement) String() string {
	var out bytes.Buffer
	out.WriteString("switch (" + ss.Discriminant.String() + ") {")
	for _, c := range ss.Cases {
		if c.Test == nil {
			out.WriteString(" default:")
		} else {
			out.WriteString(" case " + c.Test.String() + ":")
		}
		for _, s := range c.Body {
			out.WriteString(" " + s.String())
		}
	}
	out.WriteString(" }")
	return out.String()
}

// LabeledStatement attaches a label to a statement.
type LabeledStatement struct {
	Token lexer.Token
	Label *Identifier
	Body  Statement
}

func (ls *LabeledStatement) statementNode()           {}
func (ls *LabeledStatement) TokenLiteral() string     { return ls.Token.Literal }
func (ls *LabeledStatement) StartToken() lexer.Token { return ls.Token }
func (ls *LabeledStatement) String() string           { return ls.Label.Value + ": " + ls.Body.String() }

// WithStatement adds an object environment (sloppy mode only).
type WithStatement struct {
	Token  lexer.Token
	Object Expression
	Body   Statement
}

func (ws *WithStatement) statementNode()           {}
func (ws *WithStatement) TokenLiteral() string     { return ws.Token.Literal }
func (ws *WithStatement) StartToken() lexer.Token { return ws.Token }
func (ws *WithStatement) String() string {
	return "with (" + ws.Object.String() + ") " + ws.Body.String()
}

// DebuggerStatement is a no-op.
type DebuggerStatement struct {
	Token lexer.Token
}

func (ds *DebuggerStatement) statementNode()           {}
func (ds *DebuggerStatement) TokenLiteral() string     { return ds.Token.Literal }
func (ds *DebuggerStatement) StartToken() lexer.Token { return ds.Token }
func (ds *DebuggerStatement) String() string           { return "debugger;" }

// --- Expression Nodes ---

// Identifier is a binding or reference name.
type Identifier struct {
	Token lexer.Token
	Value string
}

func (i *Identifier) expressionNode()          {}
func (i *Identifier) TokenLiteral() string     { return i.Token.Literal }
func (i *Identifier) StartToken() lexer.Token { return i.Token }
func (i *Identifier) String() string           { return i.Value }

// PrivateName is a `#name` class element reference.
type PrivateName struct {
	Token lexer.Token
	Name  string
}

func (pn *PrivateName) expressionNode()          {}
func (pn *PrivateName) TokenLiteral() string     { return pn.Token.Literal }
func (pn *PrivateName) StartToken() lexer.Token { return pn.Token }
func (pn *PrivateName) String() string           { return "#" + pn.Name }

// NumberLiteral is a numeric literal.
type NumberLiteral struct {
	Token lexer.Token
	Value float64
}

func (n *NumberLiteral) expressionNode()          {}
func (n *NumberLiteral) TokenLiteral() string     { return n.Token.Literal }
func (n *NumberLiteral) StartToken() lexer.Token { return n.Token }
func (n *NumberLiteral) String() string {
	if n.Token.Literal != "" {
		return n.Token.Literal
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// BigIntLiteral is an integer literal with the n suffix.
type BigIntLiteral struct {
	Token lexer.Token
	Value *big.Int
}

func (b *BigIntLiteral) expressionNode()          {}
func (b *BigIntLiteral) TokenLiteral() string     { return b.Token.Literal }
func (b *BigIntLiteral) StartToken() lexer.Token { return b.Token }
func (b *BigIntLiteral) String() string           { return b.Value.String() + "n" }

// StringLiteral holds the cooked string value.
type StringLiteral struct {
	Token lexer.Token
	Value string
}

func (s *StringLiteral) expressionNode()          {}
func (s *StringLiteral) TokenLiteral() string     { return s.Token.Literal }
func (s *StringLiteral) StartToken() lexer.Token { return s.Token }
func (s *StringLiteral) String() string           { return QuoteString(s.Value) }

// BooleanLiteral is true or false.
type BooleanLiteral struct {
	Token lexer.Token
	Value bool
}

func (b *BooleanLiteral) expressionNode()          {}
func (b *BooleanLiteral) TokenLiteral() string     { return b.Token.Literal }
func (b *BooleanLiteral) StartToken() lexer.Token { return b.Token }
func (b *BooleanLiteral) String() string           { return strconv.FormatBool(b.Value) }

// NullLiteral is null.
type NullLiteral struct {
	Token lexer.Token
}

func (n *NullLiteral) expressionNode()          {}
func (n *NullLiteral) TokenLiteral() string     { return n.Token.Literal }
func (n *NullLiteral) StartToken() lexer.Token { return n.Token }
func (n *NullLiteral) String() string           { return "null" }

// RegexLiteral is /pattern/flags.
type RegexLiteral struct {
	Token   lexer.Token
	Pattern string
	Flags   string
}

func (r *RegexLiteral) expressionNode()          {}
func (r *RegexLiteral) TokenLiteral() string     { return r.Token.Literal }
func (r *RegexLiteral) StartToken() lexer.Token { return r.Token }
func (r *RegexLiteral) String() string           { return "/" + r.Pattern + "/" + r.Flags }

// TemplateElement is one literal chunk of a template.
type TemplateElement struct {
	Cooked  string
	Raw     string
	Invalid bool // cooked value is undefined (tagged templates only)
}

// TemplateLiteral is `a${b}c`. len(Quasis) == len(Expressions)+1.
type TemplateLiteral struct {
	Token       lexer.Token
	Quasis      []*TemplateElement
	Expressions []Expression
}

func (tl *TemplateLiteral) expressionNode()          {}
func (tl *TemplateLiteral) TokenLiteral() string     { return tl.Token.Literal }
func (tl *TemplateLiteral) StartToken() lexer.Token { return tl.Token }
func (tl *TemplateLiteral) String() string {
	var out bytes.Buffer
	out.WriteString("`")
	for i, q := range tl.Quasis {
		out.WriteString(q.Raw)
		if i < len(tl.Expressions) {
			out.WriteString("${" + tl.Expressions[i].String() + "}")
		}
	}
	out.WriteString("`")
	return out.String()
}

// TaggedTemplate is tag`...`.
type TaggedTemplate struct {
	Token lexer.Token
	Tag   Expression
	Quasi *TemplateLiteral
}

func (tt *TaggedTemplate) expressionNode()          {}
func (tt *TaggedTemplate) TokenLiteral() string     { return tt.Token.Literal }
func (tt *TaggedTemplate) StartToken() lexer.Token { return tt.Token }
func (tt *TaggedTemplate) String() string           { return tt.Tag.String() + tt.Quasi.String() }

// ThisExpression is `this`.
type ThisExpression struct {
	Token lexer.Token
}

func (te *ThisExpression) expressionNode()          {}
func (te *ThisExpression) TokenLiteral() string     { return te.Token.Literal }
func (te *ThisExpression) StartToken() lexer.Token { return te.Token }
func (te *ThisExpression) String() string           { return "this" }

// SuperExpression is `super`, only valid as a call callee or member object.
type SuperExpression struct {
	Token lexer.Token
}

func (se *SuperExpression) expressionNode()          {}
func (se *SuperExpression) TokenLiteral() string     { return se.Token.Literal }
func (se *SuperExpression) StartToken() lexer.Token { return se.Token }
func (se *SuperExpression) String() string           { return "super" }

// MetaProperty is new.target.
type MetaProperty struct {
	Token    lexer.Token
	Meta     string
	Property string
}

func (mp *MetaProperty) expressionNode()          {}
func (mp *MetaProperty) TokenLiteral() string     { return mp.Token.Literal }
func (mp *MetaProperty) StartToken() lexer.Token { return mp.Token }
func (mp *MetaProperty) String() string           { return mp.Meta + "." + mp.Property }

// ArrayLiteral is [a, , ...b]. Holes are nil elements.
type ArrayLiteral struct {
	Token    lexer.Token
	Elements []Expression
}

func (al *ArrayLiteral) expressionNode()          {}
func (al *ArrayLiteral) TokenLiteral() string     { return al.Token.Literal }
func (al *ArrayLiteral) StartToken() lexer.Token { return al.Token }
func (al *ArrayLiteral) String() string {
	parts := make([]string, len(al.Elements))
	for i, e := range al.Elements {
		if e != nil {
			parts[i] = e.String()
		}
	}
	s := "[" + strings.Join(parts, ", ")
	if len(al.Elements) > 0 && al.Elements[len(al.Elements)-1] == nil {
		s += ","
	}
	return s + "]"
}

// PropertyKind classifies object literal members.
type PropertyKind int

const (
	PropertyInit   PropertyKind = iota // key: value, shorthand, method
	PropertyGet                        // get key() {}
	PropertySet                        // set key(v) {}
	PropertySpread                     // ...expr
	PropertyProto                      // __proto__: value
)

// Property is one member of an object literal.
type Property struct {
	Token     lexer.Token
	Kind      PropertyKind
	Key       Expression // Identifier (name), StringLiteral, NumberLiteral, BigIntLiteral, or computed expression
	Computed  bool
	Value     Expression
	Shorthand bool
	Method    bool
}

func (p *Property) String() string {
	if p.Kind == PropertySpread {
		return "..." + p.Value.String()
	}
	key := p.Key.String()
	if p.Computed {
		key = "[" + key + "]"
	}
	if p.Shorthand {
		return p.Value.String()
	}
	if fn, ok := p.Value.(*FunctionLiteral); ok && (p.Method || p.Kind == PropertyGet || p.Kind == PropertySet) {
		return methodString(p.Kind, key, fn)
	}
	return key + ": " + p.Value.String()
}

func methodString(kind PropertyKind, key string, fn *FunctionLiteral) string {
	prefix := ""
	switch kind {
	case PropertyGet:
		prefix = "get "
	case PropertySet:
		prefix = "set "
	default:
		if fn.Async {
			prefix = "async "
		}
		if fn.Generator {
			prefix += "*"
		}
	}
	return prefix + key + "(" + paramsString(fn) + ") " + fn.Body.String()
}

// ObjectLiteral is {a: 1, b, [c]: d, ...e}.
type ObjectLiteral struct {
	Token      lexer.Token
	Properties []*Property
}

func (ol *ObjectLiteral) expressionNode()          {}
func (ol *ObjectLiteral) TokenLiteral() string     { return ol.Token.Literal }
func (ol *ObjectLiteral) StartToken() lexer.Token { return ol.Token }
func (ol *ObjectLiteral) String() string {
	parts := make([]string, len(ol.Properties))
	for i, p := range ol.Properties {
		parts[i] = p.String()
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// FunctionKind distinguishes how a function may be invoked.
type FunctionKind int

const (
	FuncNormal FunctionKind = iota
	FuncArrow
	FuncMethod
	FuncGetter
	FuncSetter
	FuncClassConstructor
	FuncDerivedConstructor
	FuncClassInitializer // synthesized body of class field initializers and static blocks
)

// FunctionLiteral is any function: declaration, expression, arrow, method.
type FunctionLiteral struct {
	Token        lexer.Token
	Name         *Identifier
	Params       []Expression // Identifier, AssignmentPattern, ArrayPattern, ObjectPattern
	Rest         Expression   // rest parameter target or nil
	Body         *BlockStatement
	Kind         FunctionKind
	Async        bool
	Generator    bool
	ExprBody     bool // arrow with an expression body (Body holds one return)
	Strict       bool
	SimpleParams bool
	Source       string // source text for Function.prototype.toString
}

func (fl *FunctionLiteral) expressionNode()          {}
func (fl *FunctionLiteral) TokenLiteral() string     { return fl.Token.Literal }
func (fl *FunctionLiteral) StartToken() lexer.Token { return fl.Token }

// IsArrow reports whether fl is an arrow function.
func (fl *FunctionLiteral) IsArrow() bool { return fl.Kind == FuncArrow }

func (fl *FunctionLiteral) String() string {
	var out bytes.Buffer
	if fl.Async {
		out.WriteString("async ")
	}
	if fl.IsArrow() {
		out.WriteString("(" + paramsString(fl) + ") => ")
		if fl.ExprBody {
			if rs, ok := fl.Body.Body[0].(*ReturnStatement); ok {
				body := rs.Argument.String()
				if strings.HasPrefix(body, "{") {
					body = "(" + body + ")"
				}
				out.WriteString(body)
				return "(" + out.String() + ")"
			}
		}
		out.WriteString(fl.Body.String())
		return "(" + out.String() + ")"
	}
	out.WriteString("function")
	if fl.Generator {
		out.WriteString("*")
	}
	if fl.Name != nil {
		out.WriteString(" " + fl.Name.Value)
	}
	out.WriteString("(" + paramsString(fl) + ") ")
	out.WriteString(fl.Body.String())
	return out.String()
}

func paramsString(fl *FunctionLiteral) string {
	parts := make([]string, 0, len(fl.Params)+1)
	for _, p := range fl.Params {
		parts = append(parts, p.String())
	}
	if fl.Rest != nil {
		parts = append(parts, "..."+fl.Rest.String())
	}
	return strings.Join(parts, ", ")
}

// MemberKind classifies class elements.
type MemberKind int

const (
	MemberMethod MemberKind = iota
	MemberGetter
	MemberSetter
	MemberField
	MemberStaticBlock
)

// ClassMember is one element of a class body.
type ClassMember struct {
	Token    lexer.Token
	Kind     MemberKind
	Static   bool
	Key      Expression // *PrivateName for private members
	Computed bool
	Value    Expression // *FunctionLiteral for methods and static blocks, initializer (or nil) for fields
}

// IsPrivate reports whether the member has a #name key.
func (cm *ClassMember) IsPrivate() bool {
	_, ok := cm.Key.(*PrivateName)
	return ok
}

func (cm *ClassMember) String() string {
	prefix := ""
	if cm.Static {
		prefix = "static "
	}
	if cm.Kind == MemberStaticBlock {
		return "static " + cm.Value.(*FunctionLiteral).Body.String()
	}
	key := cm.Key.String()
	if cm.Computed {
		key = "[" + key + "]"
	}
	switch cm.Kind {
	case MemberField:
		if cm.Value == nil {
			return prefix + key + ";"
		}
		return prefix + key + " = " + cm.Value.String() + ";"
	case MemberGetter:
		return prefix + methodString(PropertyGet, key, cm.Value.(*FunctionLiteral))
	case MemberSetter:
		return prefix + methodString(PropertySet, key, cm.Value.(*FunctionLiteral))
	}
	return prefix + methodString(PropertyInit, key, cm.Value.(*FunctionLiteral))
}

// ClassLiteral is a class declaration body or class expression.
type ClassLiteral struct {
	Token       lexer.Token
	Name        *Identifier
	SuperClass  Expression
	Constructor *FunctionLiteral // nil when the class has no explicit constructor
	Members     []*ClassMember
	Source      string
}

func (cl *ClassLiteral) expressionNode()          {}
func (cl *ClassLiteral) TokenLiteral() string     { return cl.Token.Literal }
func (cl *ClassLiteral) StartToken() lexer.Token { return cl.Token }
func (cl *ClassLiteral) String() string {
	var out bytes.Buffer
	out.WriteString("class")
	if cl.Name != nil {
		out.WriteString(" " + cl.Name.Value)
	}
	if cl.SuperClass != nil {
		out.WriteString(" extends " + cl.SuperClass.String())
	}
	out.WriteString(" {")
	if cl.Constructor != nil {
		out.WriteString(" constructor(" + paramsString(cl.Constructor) + ") " + cl.Constructor.Body.String())
	}
	for _, m := range cl.Members {
		out.WriteString(" " + m.String())
	}
	out.WriteString(" }")
	return out.String()
}

// PrefixExpression is a unary operator: ! - + ~ typeof void delete.
type PrefixExpression struct {
	Token    lexer.Token
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()          {}
func (pe *PrefixExpression) TokenLiteral() string     { return pe.Token.Literal }
func (pe *PrefixExpression) StartToken() lexer.Token { return pe.Token }
func (pe *PrefixExpression) String() string {
	op := pe.Operator
	if len(op) > 1 {
		op += " "
	}
	return "(" + op + pe.Right.String() + ")"
}

// UpdateExpression is ++x, x++, --x, x--.
type UpdateExpression struct {
	Token    lexer.Token
	Operator string
	Prefix   bool
	Target   Expression
}

func (ue *UpdateExpression) expressionNode()          {}
func (ue *UpdateExpression) TokenLiteral() string     { return ue.Token.Literal }
func (ue *UpdateExpression) StartToken() lexer.Token { return ue.Token }
func (ue *UpdateExpression) String() string {
	if ue.Prefix {
		return "(" + ue.Operator + ue.Target.String() + ")"
	}
	return "(" + ue.Target.String() + ue.Operator + ")"
}

// InfixExpression is a binary or logical operator.
type InfixExpression struct {
	Token    lexer.Token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()          {}
func (ie *InfixExpression) TokenLiteral() string     { return ie.Token.Literal }
func (ie *InfixExpression) StartToken() lexer.Token { return ie.Left.StartToken() }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

// IsLogical reports whether the operator short-circuits.
func (ie *InfixExpression) IsLogical() bool {
	return ie.Operator == "&&" || ie.Operator == "||" || ie.Operator == "??"
}

// AssignmentExpression is target op= value; Target may be a pattern for "=".
type AssignmentExpression struct {
	Token    lexer.Token
	Operator string
	Target   Expression
	Value    Expression
}

func (ae *AssignmentExpression) expressionNode()          {}
func (ae *AssignmentExpression) TokenLiteral() string     { return ae.Token.Literal }
func (ae *AssignmentExpression) StartToken() lexer.Token { return ae.Target.StartToken() }
func (ae *AssignmentExpression) String() string {
	return "(" + ae.Target.String() + " " + ae.Operator + " " + ae.Value.String() + ")"
}

// TernaryExpression is cond ? a : b.
type TernaryExpression struct {
	Token       lexer.Token
	Condition   Expression
	Consequence Expression
	Alternative Expression
}

func (te *TernaryExpression) expressionNode()          {}
func (te *TernaryExpression) TokenLiteral() string     { return te.Token.Literal }
func (te *TernaryExpression) StartToken() lexer.Token { return te.Condition.StartToken() }
func (te *TernaryExpression) String() string {
	return "(" + te.Condition.String() + " ? " + te.Consequence.String() + " : " + te.Alternative.String() + ")"
}

// SequenceExpression is a, b, c.
type SequenceExpression struct {
	Token       lexer.Token
	Expressions []Expression
}

func (se *SequenceExpression) expressionNode()          {}
func (se *SequenceExpression) TokenLiteral() string     { return se.Token.Literal }
func (se *SequenceExpression) StartToken() lexer.Token { return se.Expressions[0].StartToken() }
func (se *SequenceExpression) String() string {
	parts := make([]string, len(se.Expressions))
	for i, e := range se.Expressions {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// CallExpression is callee(args). Optional marks callee?.(args).
type CallExpression struct {
	Token     lexer.Token
	Callee    Expression
	Arguments []Expression
	Optional  bool
}

func (ce *CallExpression) expressionNode()          {}
func (ce *CallExpression) TokenLiteral() string     { return ce.Token.Literal }
func (ce *CallExpression) StartToken() lexer.Token { return ce.Callee.StartToken() }
func (ce *CallExpression) String() string {
	op := "("
	if ce.Optional {
		op = "?.("
	}
	return objectString(ce.Callee) + op + argsString(ce.Arguments) + ")"
}

func argsString(args []Expression) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// NewExpression is new callee(args).
type NewExpression struct {
	Token     lexer.Token
	Callee    Expression
	Arguments []Expression
}

func (ne *NewExpression) expressionNode()          {}
func (ne *NewExpression) TokenLiteral() string     { return ne.Token.Literal }
func (ne *NewExpression) StartToken() lexer.Token { return ne.Token }
func (ne *NewExpression) String() string {
	callee := ne.Callee.String()
	if containsCall(ne.Callee) {
		callee = "(" + callee + ")"
	}
	return "(new " + callee + "(" + argsString(ne.Arguments) + "))"
}

// containsCall reports whether a callee renders with call parentheses that
// would be taken as the arguments of new.
func containsCall(e Expression) bool {
	switch t := e.(type) {
	case *CallExpression, *TaggedTemplate, *OptionalChain:
		return true
	case *MemberExpression:
		return containsCall(t.Object)
	case *IndexExpression:
		return containsCall(t.Object)
	}
	return false
}

// objectString renders the object of a member access or call, closing an
// optional chain that was parenthesized in the source.
func objectString(e Expression) string {
	if _, ok := e.(*OptionalChain); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// MemberExpression is obj.name, obj.#name or obj?.name.
type MemberExpression struct {
	Token    lexer.Token
	Object   Expression
	Property string
	Private  bool
	Optional bool
}

func (me *MemberExpression) expressionNode()          {}
func (me *MemberExpression) TokenLiteral() string     { return me.Token.Literal }
func (me *MemberExpression) StartToken() lexer.Token { return me.Object.StartToken() }
func (me *MemberExpression) String() string {
	op := "."
	if me.Optional {
		op = "?."
	}
	name := me.Property
	if me.Private {
		name = "#" + name
	}
	obj := objectString(me.Object)
	if _, ok := me.Object.(*NumberLiteral); ok {
		obj = "(" + obj + ")"
	}
	return obj + op + name
}

// IndexExpression is obj[expr] or obj?.[expr].
type IndexExpression struct {
	Token    lexer.Token
	Object   Expression
	Index    Expression
	Optional bool
}

func (ie *IndexExpression) expressionNode()          {}
func (ie *IndexExpression) TokenLiteral() string     { return ie.Token.Literal }
func (ie *IndexExpression) StartToken() lexer.Token { return ie.Object.StartToken() }
func (ie *IndexExpression) String() string {
	op := "["
	if ie.Optional {
		op = "?.["
	}
	return objectString(ie.Object) + op + ie.Index.String() + "]"
}

// OptionalChain marks the extent of an optional chain: a?.b.c short-circuits
// to undefined as a whole.
type OptionalChain struct {
	Token      lexer.Token
	Expression Expression
}

func (oc *OptionalChain) expressionNode()          {}
func (oc *OptionalChain) TokenLiteral() string     { return oc.Token.Literal }
func (oc *OptionalChain) StartToken() lexer.Token { return oc.Expression.StartToken() }
func (oc *OptionalChain) String() string           { return oc.Expression.String() }

// SpreadElement is ...expr in arrays, calls and object literals.
type SpreadElement struct {
	Token    lexer.Token
	Argument Expression
}

func (se *SpreadElement) expressionNode()          {}
func (se *SpreadElement) TokenLiteral() string     { return se.Token.Literal }
func (se *SpreadElement) StartToken() lexer.Token { return se.Token }
func (se *SpreadElement) String() string           { return "..." + se.Argument.String() }

// YieldExpression is yield or yield* inside generators.
type YieldExpression struct {
	Token    lexer.Token
	Argument Expression
	Delegate bool
}

func (ye *YieldExpression) expressionNode()          {}
func (ye *YieldExpression) TokenLiteral() string     { return ye.Token.Literal }
func (ye *YieldExpression) StartToken() lexer.Token { return ye.Token }
func (ye *YieldExpression) String() string {
	s := "yield"
	if ye.Delegate {
		s += "*"
	}
	if ye.Argument != nil {
		s += " " + ye.Argument.String()
	}
	return "(" + s + ")"
}

// AwaitExpression is await expr inside async functions.
type AwaitExpression struct {
	Token    lexer.Token
	Argument Expression
}

func (ae *AwaitExpression) expressionNode()          {}
func (ae *AwaitExpression) TokenLiteral() string     { return ae.Token.Literal }
func (ae *AwaitExpression) StartToken() lexer.Token { return ae.Token }
func (ae *AwaitExpression) String() string           { return "(await " + ae.Argument.String() + ")" }

// --- Patterns ---

// ArrayPattern is a destructuring [a, , b = 1, ...rest] target.
type ArrayPattern struct {
	Token    lexer.Token
	Elements []Expression // nil for elisions
	Rest     Expression
}

func (ap *ArrayPattern) expressionNode()          {}
func (ap *ArrayPattern) TokenLiteral() string     { return ap.Token.Literal }
func (ap *ArrayPattern) StartToken() lexer.Token { return ap.Token }
func (ap *ArrayPattern) String() string {
	parts := make([]string, 0, len(ap.Elements)+1)
	for _, e := range ap.Elements {
		if e == nil {
			parts = append(parts, "")
		} else {
			parts = append(parts, e.String())
		}
	}
	if ap.Rest != nil {
		parts = append(parts, "..."+ap.Rest.String())
	} else if len(ap.Elements) > 0 && ap.Elements[len(ap.Elements)-1] == nil {
		parts = append(parts, "")
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// PatternProperty is one `key: target` entry of an object pattern.
type PatternProperty struct {
	Token     lexer.Token
	Key       Expression
	Computed  bool
	Value     Expression // target, possibly an AssignmentPattern
	Shorthand bool
}

// ObjectPattern is a destructuring {a, b: c, [k]: d = 1, ...rest} target.
type ObjectPattern struct {
	Token      lexer.Token
	Properties []*PatternProperty
	Rest       Expression
}

func (op *ObjectPattern) expressionNode()          {}
func (op *ObjectPattern) TokenLiteral() string     { return op.Token.Literal }
func (op *ObjectPattern) StartToken() lexer.Token { return op.Token }
func (op *ObjectPattern) String() string {
	parts := make([]string, 0, len(op.Properties)+1)
	for _, p := range op.Properties {
		if p.Shorthand {
			parts = append(parts, p.Value.String())
			continue
		}
		key := p.Key.String()
		if p.Computed {
			key = "[" + key + "]"
		}
		parts = append(parts, key+": "+p.Value.String())
	}
	if op.Rest != nil {
		parts = append(parts, "..."+op.Rest.String())
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// AssignmentPattern is a target with a default value: x = 1.
type AssignmentPattern struct {
	Token   lexer.Token
	Target  Expression
	Default Expression
}

func (ap *AssignmentPattern) expressionNode()          {}
func (ap *AssignmentPattern) TokenLiteral() string     { return ap.Token.Literal }
func (ap *AssignmentPattern) StartToken() lexer.Token { return ap.Target.StartToken() }
func (ap *AssignmentPattern) String() string {
	return ap.Target.String() + " = " + ap.Default.String()
}

// QuoteString renders s as a double-quoted script string literal.
func QuoteString(s string) string {
	var out strings.Builder
	out.WriteByte('"')
	for _, u := range source.Units(s) {
		switch u {
		case '"':
			out.WriteString(`\"`)
		case '\\':
			out.WriteString(`\\`)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		case '\t':
			out.WriteString(`\t`)
		case 0x2028, 0x2029:
			out.WriteString(`\u` + strconv.FormatInt(int64(u), 16))
		default:
			if u < 0x20 || u == 0x7F || (u >= 0xD800 && u <= 0xDFFF) {
				hex := strconv.FormatInt(int64(u), 16)
				out.WriteString(`\u` + strings.Repeat("0", 4-len(hex)) + hex)
			} else if u < 0x80 {
				out.WriteByte(byte(u))
			} else {
				out.WriteRune(rune(u))
			}
		}
	}
	out.WriteByte('"')
	return out.String()
}

// BoundNames returns the identifiers a binding target declares, in order.
func BoundNames(target Expression) []*Identifier {
	var names []*Identifier
	var walk func(Expression)
	walk = func(e Expression) {
		switch t := e.(type) {
		case *Identifier:
			names = append(names, t)
		case *AssignmentPattern:
			walk(t.Target)
		case *ArrayPattern:
			for _, el := range t.Elements {
				if el != nil {
					walk(el)
				}
			}
			if t.Rest != nil {
				walk(t.Rest)
			}
		case *ObjectPattern:
			for _, p := range t.Properties {
				walk(p.Value)
			}
			if t.Rest != nil {
				walk(t.Rest)
			}
		}
	}
	walk(target)
	return names
}
