package parser

import (
	"ecmavm/pkg/lexer"
)

// classContext tracks private names of the class body being parsed.
type classContext struct {
	parent   *classContext
	declared map[string]privateDecl
	refs     []lexer.Token
}

type privateDecl struct {
	kind   MemberKind
	static bool
	paired bool
}

// declarePrivate records a private member. A getter and setter of the same
// placement may share a name.
func (p *Parser) declarePrivate(tok lexer.Token, kind MemberKind, static bool) {
	cc := p.class
	name := tok.Value
	prev, exists := cc.declared[name]
	if !exists {
		cc.declared[name] = privateDecl{kind: kind, static: static}
		return
	}
	accessorPair := !prev.paired && prev.static == static &&
		((prev.kind == MemberGetter && kind == MemberSetter) || (prev.kind == MemberSetter && kind == MemberGetter))
	if !accessorPair {
		p.fail(tok, "Identifier '#%s' has already been declared", name)
	}
	prev.paired = true
	cc.declared[name] = prev
}

// usePrivateName records a reference resolved when the class body ends.
func (p *Parser) usePrivateName(tok lexer.Token) {
	if p.class == nil {
		p.fail(tok, "Private field '#%s' must be declared in an enclosing class", tok.Value)
	}
	p.class.refs = append(p.class.refs, tok)
}

// parseClass parses a class declaration or expression. All parts of a
// class are strict mode code.
func (p *Parser) parseClass(start lexer.Token, isDecl bool) *ClassLiteral {
	cl := &ClassLiteral{Token: start}
	savedStrict := p.ctx.strict
	p.ctx.strict = true
	defer func() { p.ctx.strict = savedStrict }()

	if p.peekIs(lexer.IDENT) {
		p.nextToken()
		p.checkBindingName(p.cur)
		cl.Name = &Identifier{Token: p.cur, Value: p.cur.Value}
	} else if isDecl {
		p.fail(p.peek, "Class statements require a name")
	}
	if p.peekIs(lexer.EXTENDS) {
		p.nextToken()
		p.nextToken()
		restore := p.allowIn()
		cl.SuperClass = p.parseLeftHandSide()
		restore()
	}
	p.expectPeek(lexer.LBRACE)

	cc := &classContext{parent: p.class, declared: map[string]privateDecl{}}
	p.class = cc
	restoreIn := p.allowIn()
	for {
		p.nextToken()
		if p.curIs(lexer.RBRACE) {
			break
		}
		if p.curIs(lexer.SEMICOLON) {
			continue
		}
		if m := p.parseClassMember(cl); m != nil {
			cl.Members = append(cl.Members, m)
		}
	}
	restoreIn()
	p.class = cc.parent

	for _, ref := range cc.refs {
		if _, ok := cc.declared[ref.Value]; ok {
			continue
		}
		if cc.parent == nil {
			p.fail(ref, "Private field '#%s' must be declared in an enclosing class", ref.Value)
		}
		cc.parent.refs = append(cc.parent.refs, ref)
	}
	cl.Source = p.source.Content[start.StartPos:p.cur.EndPos]
	return cl
}

// parseClassMember parses one class element. The constructor is stored on
// the class and nil is returned for it.
func (p *Parser) parseClassMember(cl *ClassLiteral) *ClassMember {
	tok := p.cur
	m := &ClassMember{Token: tok}
	if p.curIsWord("static") && !p.peekEndsPropertyName() {
		if p.peekIs(lexer.LBRACE) {
			p.nextToken()
			return p.parseStaticBlock(tok)
		}
		m.Static = true
		p.nextToken()
	}

	async, generator := false, false
	kind := MemberMethod
	if p.curIsWord("async") && !p.peekEndsPropertyName() && !p.peek.NewlineBefore {
		async = true
		p.nextToken()
	}
	if p.curIs(lexer.ASTERISK) {
		generator = true
		p.nextToken()
	}
	if !async && !generator && (p.curIsWord("get") || p.curIsWord("set")) && !p.peekEndsPropertyName() {
		kind = MemberGetter
		if p.cur.Literal == "set" {
			kind = MemberSetter
		}
		p.nextToken()
	}

	if p.curIs(lexer.PRIVATE_IDENT) {
		if p.cur.Value == "constructor" {
			p.fail(p.cur, "Classes may not have a private field named '#constructor'")
		}
		m.Key = &PrivateName{Token: p.cur, Name: p.cur.Value}
	} else {
		m.Key, m.Computed = p.parsePropertyKey()
	}
	name := ""
	if !m.Computed && !m.IsPrivate() {
		name = propertyKeyName(m.Key)
	}

	if async || generator || kind != MemberMethod || p.peekIs(lexer.LPAREN) {
		p.expectPeek(lexer.LPAREN)
		if name == "constructor" && !m.Static {
			if async || generator || kind != MemberMethod {
				p.fail(tok, "Class constructor may not be an accessor, async function or generator")
			}
			if cl.Constructor != nil {
				p.fail(tok, "A class may only have one constructor")
			}
			fk := FuncClassConstructor
			if cl.SuperClass != nil {
				fk = FuncDerivedConstructor
			}
			cl.Constructor = p.parseMethod(tok, fk, false, false)
			return nil
		}
		if name == "prototype" && m.Static {
			p.fail(tok, "Classes may not have a static property named 'prototype'")
		}
		fk := FuncMethod
		switch kind {
		case MemberGetter:
			fk = FuncGetter
		case MemberSetter:
			fk = FuncSetter
		}
		m.Kind = kind
		if m.IsPrivate() {
			p.declarePrivate(m.Key.StartToken(), kind, m.Static)
		}
		m.Value = p.parseMethod(tok, fk, async, generator)
		return m
	}

	// field definition
	if name == "constructor" {
		p.fail(tok, "Classes may not have a field named 'constructor'")
	}
	if name == "prototype" && m.Static {
		p.fail(tok, "Classes may not have a static property named 'prototype'")
	}
	m.Kind = MemberField
	if m.IsPrivate() {
		p.declarePrivate(m.Key.StartToken(), MemberField, m.Static)
	}
	if p.peekIs(lexer.ASSIGN) {
		p.nextToken()
		p.nextToken()
		init := &FunctionLiteral{Token: p.cur, Kind: FuncClassInitializer}
		p.enterFunction(init)
		p.pushScope(scopeFunction)
		m.Value = p.parseAssign()
		p.popScope()
		p.leaveFunction()
	}
	p.consumeSemicolon()
	return m
}

// parseStaticBlock parses "static { ... }"; cur is "{".
func (p *Parser) parseStaticBlock(start lexer.Token) *ClassMember {
	fn := &FunctionLiteral{Token: start, Kind: FuncClassInitializer, Strict: true, SimpleParams: true}
	restoreCovers := p.freshCovers()
	ctx := p.enterFunction(fn)
	ctx.awaitReserved = true
	p.pushScope(scopeFunction)
	fn.Body = &BlockStatement{Token: p.cur}
	p.nextToken()
	fn.Body.Body, _ = p.parseBody(lexer.RBRACE, false)
	p.popScope()
	p.leaveFunction()
	restoreCovers()
	fn.Source = p.source.Content[start.StartPos:p.cur.EndPos]
	return &ClassMember{Token: start, Kind: MemberStaticBlock, Static: true, Value: fn}
}
