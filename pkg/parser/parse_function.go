package parser

import (
	"ecmavm/pkg/lexer"
)

// parseFunction parses a function declaration or expression. cur is the
// "function" keyword; start is the first token (possibly "async").
func (p *Parser) parseFunction(start lexer.Token, async bool, isDecl bool) *FunctionLiteral {
	fn := &FunctionLiteral{Token: start, Kind: FuncNormal, Async: async}
	if p.peekIs(lexer.ASTERISK) {
		p.nextToken()
		fn.Generator = true
	}
	if p.peekIs(lexer.IDENT) {
		p.nextToken()
		tok := p.cur
		if isDecl {
			p.checkBindingName(tok)
		} else {
			// the name of a function expression is scoped to the function itself
			inner := &funcContext{strict: p.ctx.strict, generator: fn.Generator, async: fn.Async}
			p.checkIdentifier(tok, inner)
			if p.ctx.strict && (tok.Value == "eval" || tok.Value == "arguments") {
				p.fail(tok, "Unexpected eval or arguments in strict mode")
			}
		}
		fn.Name = &Identifier{Token: tok, Value: tok.Value}
	} else if isDecl {
		p.fail(p.peek, "Function statements require a function name")
	}
	p.expectPeek(lexer.LPAREN)
	p.parseFunctionRest(fn)
	return fn
}

// parseMethod parses the parameters and body of an object or class method.
// cur is "(".
func (p *Parser) parseMethod(start lexer.Token, kind FunctionKind, async, generator bool) *FunctionLiteral {
	fn := &FunctionLiteral{Token: start, Kind: kind, Async: async, Generator: generator}
	p.parseFunctionRest(fn)
	switch kind {
	case FuncGetter:
		if len(fn.Params) != 0 || fn.Rest != nil {
			p.fail(start, "Getter must not have any formal parameters.")
		}
	case FuncSetter:
		if len(fn.Params) != 1 || fn.Rest != nil {
			p.fail(start, "Setter must have exactly one formal parameter.")
		}
	}
	return fn
}

// parseFunctionRest parses "(params) { body }" starting at "(".
func (p *Parser) parseFunctionRest(fn *FunctionLiteral) {
	restoreCovers := p.freshCovers()
	restoreIn := p.allowIn()
	ctx := p.enterFunction(fn)
	p.pushScope(scopeFunction)

	ctx.inParams = true
	p.parseFormalParameters(fn)
	ctx.inParams = false
	p.checkCovers()

	p.expectPeek(lexer.LBRACE)
	fn.Body, fn.Strict = p.parseFunctionBody(fn)

	p.popScope()
	p.leaveFunction()
	restoreIn()
	restoreCovers()
	fn.Source = p.source.Content[fn.Token.StartPos:p.cur.EndPos]
}

// parseFormalParameters parses a parameter list starting at "(" and leaves
// cur on ")".
func (p *Parser) parseFormalParameters(fn *FunctionLiteral) {
	fn.SimpleParams = true
	for {
		p.nextToken()
		if p.curIs(lexer.RPAREN) {
			break
		}
		if p.curIs(lexer.SPREAD) {
			p.nextToken()
			fn.Rest = p.parseBindingTarget()
			fn.SimpleParams = false
			if p.peekIs(lexer.ASSIGN) {
				p.fail(p.peek, "Rest parameter may not have a default initializer")
			}
			if !p.peekIs(lexer.RPAREN) {
				p.fail(p.peek, "Rest parameter must be last formal parameter")
			}
			p.nextToken()
			break
		}
		param := p.parseBindingElement()
		if _, ok := param.(*Identifier); !ok {
			fn.SimpleParams = false
		}
		fn.Params = append(fn.Params, param)
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		p.expectPeek(lexer.RPAREN)
		break
	}
	p.declareParams(fn)
}

func (p *Parser) declareParams(fn *FunctionLiteral) {
	for _, id := range paramNames(fn) {
		p.scope.params[id.Value] = true
	}
}

func paramNames(fn *FunctionLiteral) []*Identifier {
	var names []*Identifier
	for _, param := range fn.Params {
		names = append(names, BoundNames(param)...)
	}
	if fn.Rest != nil {
		names = append(names, BoundNames(fn.Rest)...)
	}
	return names
}

// parseFunctionBody parses "{ ... }" with its directive prologue and runs
// the checks that depend on the function's final strictness.
func (p *Parser) parseFunctionBody(fn *FunctionLiteral) (*BlockStatement, bool) {
	body := &BlockStatement{Token: p.cur}
	p.nextToken()
	var useStrict bool
	body.Body, useStrict = p.parseBody(lexer.RBRACE, true)
	strict := p.ctx.strict

	if useStrict && !fn.SimpleParams {
		p.fail(body.Token, "Illegal 'use strict' directive in function with non-simple parameter list")
	}
	dupOK := !strict && fn.SimpleParams && fn.Kind == FuncNormal
	seen := map[string]bool{}
	for _, id := range paramNames(fn) {
		if seen[id.Value] && !dupOK {
			p.fail(id.Token, "Duplicate parameter name not allowed in this context")
		}
		seen[id.Value] = true
		if strict {
			p.checkStrictName(id.Token)
		}
	}
	if strict && fn.Name != nil && fn.Kind == FuncNormal {
		p.checkStrictName(fn.Name.Token)
	}
	return body, strict
}

// parseArrowFunction parses the body of an arrow function whose parameters
// were already converted. cur is the last token of the head; peek is "=>".
func (p *Parser) parseArrowFunction(start lexer.Token, params []Expression, rest Expression, async bool) Expression {
	fn := &FunctionLiteral{Token: start, Kind: FuncArrow, Async: async, Params: params, Rest: rest}
	fn.SimpleParams = rest == nil
	for _, param := range params {
		if _, ok := param.(*Identifier); !ok {
			fn.SimpleParams = false
		}
	}
	if async {
		for _, id := range paramNames(fn) {
			if id.Value == "await" {
				p.fail(id.Token, "Unexpected reserved word")
			}
		}
	}
	p.nextToken() // =>

	ctx := p.enterFunction(fn)
	p.pushScope(scopeFunction)
	p.declareParams(fn)
	p.nextToken()
	if p.curIs(lexer.LBRACE) {
		restoreCovers := p.freshCovers()
		restoreIn := p.allowIn()
		fn.Body, fn.Strict = p.parseFunctionBody(fn)
		restoreIn()
		restoreCovers()
	} else {
		tok := p.cur
		fn.ExprBody = true
		expr := p.parseAssign()
		fn.Body = &BlockStatement{Token: tok, Body: []Statement{&ReturnStatement{Token: tok, Argument: expr}}}
		fn.Strict = ctx.strict
		seen := map[string]bool{}
		for _, id := range paramNames(fn) {
			if seen[id.Value] {
				p.fail(id.Token, "Duplicate parameter name not allowed in this context")
			}
			seen[id.Value] = true
		}
	}
	p.popScope()
	p.leaveFunction()
	fn.Source = p.source.Content[start.StartPos:p.cur.EndPos]
	return fn
}
