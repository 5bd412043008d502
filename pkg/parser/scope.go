package parser

import (
	"ecmavm/pkg/lexer"
)

type scopeKind int

const (
	scopeScript scopeKind = iota
	scopeFunction
	scopeBlock
	scopeCatch
)

// scope tracks declared names for redeclaration early errors.
type scope struct {
	kind        scopeKind
	parent      *scope
	lexical     map[string]bool
	vars        map[string]bool
	funcs       map[string]bool // sloppy-mode plain function declarations in blocks
	params      map[string]bool // parameters or the catch parameter
	catchSimple bool
}

func newScope(kind scopeKind, parent *scope) *scope {
	return &scope{
		kind:    kind,
		parent:  parent,
		lexical: map[string]bool{},
		vars:    map[string]bool{},
		funcs:   map[string]bool{},
		params:  map[string]bool{},
	}
}

func (p *Parser) pushScope(kind scopeKind) {
	p.scope = newScope(kind, p.scope)
}

func (p *Parser) popScope() {
	p.scope = p.scope.parent
}

// declareLexical declares a let, const, class or block function name.
func (p *Parser) declareLexical(id *Identifier) {
	name := id.Value
	if name == "let" {
		p.fail(id.Token, "let is disallowed as a lexically bound name")
	}
	s := p.scope
	if s.lexical[name] || s.vars[name] || (s.kind != scopeCatch && s.params[name]) {
		p.fail(id.Token, "Identifier '%s' has already been declared", name)
	}
	if s.kind == scopeCatch && s.params[name] {
		p.fail(id.Token, "Identifier '%s' has already been declared", name)
	}
	s.lexical[name] = true
}

// declareVar declares a var name, which is visible up to the nearest
// function scope and conflicts with lexical names on the way.
func (p *Parser) declareVar(id *Identifier) {
	name := id.Value
	for s := p.scope; s != nil; s = s.parent {
		if s.lexical[name] {
			p.fail(id.Token, "Identifier '%s' has already been declared", name)
		}
		if s.kind == scopeCatch && s.params[name] && !s.catchSimple {
			p.fail(id.Token, "Identifier '%s' has already been declared", name)
		}
		s.vars[name] = true
		if s.kind == scopeFunction || s.kind == scopeScript {
			return
		}
	}
}

// declareFunction declares a function declaration name. Top-level function
// names behave like vars; in blocks they are lexical, except that sloppy
// mode tolerates duplicate plain function declarations.
func (p *Parser) declareFunction(fn *FunctionLiteral) {
	id := fn.Name
	s := p.scope
	if s.kind == scopeFunction || s.kind == scopeScript {
		if s.lexical[id.Value] {
			p.fail(id.Token, "Identifier '%s' has already been declared", id.Value)
		}
		s.vars[id.Value] = true
		return
	}
	plain := !fn.Async && !fn.Generator && !p.ctx.strict
	if plain && s.funcs[id.Value] {
		return
	}
	p.declareLexical(id)
	if plain {
		s.funcs[id.Value] = true
	}
}

type label struct {
	name string
	loop bool
}

// funcContext holds per-function parsing state.
type funcContext struct {
	parent *funcContext
	kind   FunctionKind

	isScript  bool
	strict    bool
	generator bool
	async     bool
	inParams  bool

	superProp     bool
	superCall     bool
	newTarget     bool
	fieldInit     bool // class field initializer or static block: arguments is forbidden
	awaitReserved bool // await cannot be an identifier (static blocks, arrows in async code)

	labels     []label
	loops      int
	breakables int
}

func (p *Parser) enterFunction(fn *FunctionLiteral) *funcContext {
	parent := p.ctx
	c := &funcContext{
		parent:    parent,
		kind:      fn.Kind,
		strict:    parent.strict,
		generator: fn.Generator,
		async:     fn.Async,
	}
	switch fn.Kind {
	case FuncArrow:
		c.superProp = parent.superProp
		c.superCall = parent.superCall
		c.newTarget = parent.newTarget
		c.fieldInit = parent.fieldInit
		c.awaitReserved = parent.async || parent.awaitReserved
	case FuncMethod, FuncGetter, FuncSetter, FuncClassConstructor:
		c.superProp, c.newTarget = true, true
	case FuncDerivedConstructor:
		c.superProp, c.superCall, c.newTarget = true, true, true
	case FuncClassInitializer:
		c.superProp, c.newTarget, c.fieldInit = true, true, true
	default:
		c.newTarget = true
	}
	p.ctx = c
	return c
}

func (p *Parser) leaveFunction() {
	p.ctx = p.ctx.parent
}

func (c *funcContext) returnAllowed() bool {
	return !c.isScript && c.kind != FuncClassInitializer
}

func (c *funcContext) hasLabel(name string, loopOnly bool) bool {
	for _, l := range c.labels {
		if l.name == name {
			return !loopOnly || l.loop
		}
	}
	return false
}

// --- Name checks ---

// checkIdentifier rejects names that cannot be identifiers in the current
// context.
func (p *Parser) checkIdentifier(tok lexer.Token, c *funcContext) {
	name := tok.Value
	switch {
	case tok.Escaped && lexer.IsReservedWord(name):
		p.fail(tok, "Keyword must not contain escaped characters")
	case c.strict && lexer.IsStrictReservedWord(name):
		p.fail(tok, "Unexpected strict mode reserved word")
	case name == "yield" && c.generator:
		p.fail(tok, "Unexpected identifier 'yield'")
	case name == "await" && (c.async || c.awaitReserved):
		p.fail(tok, "Unexpected reserved word")
	case name == "enum":
		p.fail(tok, "Unexpected reserved word")
	}
}

func (p *Parser) checkIdentifierReference(tok lexer.Token) {
	p.checkIdentifier(tok, p.ctx)
	if tok.Value == "arguments" && p.ctx.fieldInit {
		p.fail(tok, "'arguments' is not allowed in class field initializer or static initialization block")
	}
}

func (p *Parser) checkBindingName(tok lexer.Token) {
	p.checkIdentifierReference(tok)
	if p.ctx.strict && (tok.Value == "eval" || tok.Value == "arguments") {
		p.fail(tok, "Unexpected eval or arguments in strict mode")
	}
}

// checkStrictName re-checks a name once the enclosing function turned out
// to be strict.
func (p *Parser) checkStrictName(tok lexer.Token) {
	if lexer.IsStrictReservedWord(tok.Value) {
		p.fail(tok, "Unexpected strict mode reserved word")
	}
	if tok.Value == "eval" || tok.Value == "arguments" {
		p.fail(tok, "Unexpected eval or arguments in strict mode")
	}
}

func (p *Parser) checkAssignName(id *Identifier) {
	if p.ctx.strict && (id.Value == "eval" || id.Value == "arguments") {
		p.fail(id.Token, "Unexpected eval or arguments in strict mode")
	}
}
