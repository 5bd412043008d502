package parser

import (
	"ecmavm/pkg/lexer"
)

// parseBody parses statements until end. When directives is set, a leading
// directive prologue is recognized; the result reports whether it contained
// "use strict".
func (p *Parser) parseBody(end lexer.TokenType, directives bool) ([]Statement, bool) {
	var stmts []Statement
	useStrict := false
	var octal *lexer.Token
	for !p.curIs(end) {
		if p.curIs(lexer.EOF) {
			p.unexpected(p.cur)
		}
		tok := p.cur
		stmt := p.parseStatementListItem()
		if directives {
			directives = false
			if es, ok := stmt.(*ExpressionStatement); ok && tok.Type == lexer.STRING {
				if sl, ok := es.Expression.(*StringLiteral); ok && !p.parenthesized[es.Expression] {
					directives = true
					es.Directive = sl.Token.Literal[1 : len(sl.Token.Literal)-1]
					if sl.Token.LegacyOctal && octal == nil {
						octal = &sl.Token
					}
					if es.Directive == "use strict" {
						useStrict = true
						p.ctx.strict = true
					}
					if p.ctx.strict && octal != nil {
						p.fail(*octal, "Octal escape sequences are not allowed in strict mode.")
					}
				}
			}
		}
		stmts = append(stmts, stmt)
		p.checkCovers()
		p.nextToken()
	}
	return stmts, useStrict
}

func (p *Parser) isLetDeclaration() bool {
	if !p.curIsWord("let") {
		return false
	}
	switch p.peek.Type {
	case lexer.LBRACKET, lexer.LBRACE, lexer.IDENT:
		return true
	}
	return false
}

func (p *Parser) isAsyncFunction() bool {
	return p.curIsWord("async") && p.peekIs(lexer.FUNCTION) && !p.peek.NewlineBefore
}

// parseStatementListItem parses a statement or declaration.
func (p *Parser) parseStatementListItem() Statement {
	switch {
	case p.curIs(lexer.FUNCTION):
		return p.parseFunctionDeclaration(p.cur, false)
	case p.curIs(lexer.CLASS):
		return p.parseClassDeclaration()
	case p.curIs(lexer.CONST), p.isLetDeclaration():
		decl := p.parseDeclarations(p.cur.Literal, false)
		p.consumeSemicolon()
		return decl
	case p.isAsyncFunction():
		tok := p.cur
		p.nextToken()
		return p.parseFunctionDeclaration(tok, true)
	}
	return p.parseStatement()
}

// parseStatement parses a statement in a position where declarations are
// not allowed.
func (p *Parser) parseStatement() Statement {
	debugPrint("parseStatement: %s %q", p.cur.Type, p.cur.Literal)
	switch p.cur.Type {
	case lexer.LBRACE:
		return p.parseBlockStatement()
	case lexer.VAR:
		decl := p.parseDeclarations("var", false)
		p.consumeSemicolon()
		return decl
	case lexer.SEMICOLON:
		return &EmptyStatement{Token: p.cur}
	case lexer.IF:
		return p.parseIfStatement()
	case lexer.FOR:
		return p.parseForStatement()
	case lexer.WHILE:
		return p.parseWhileStatement()
	case lexer.DO:
		return p.parseDoWhileStatement()
	case lexer.CONTINUE:
		return p.parseContinueStatement()
	case lexer.BREAK:
		return p.parseBreakStatement()
	case lexer.RETURN:
		return p.parseReturnStatement()
	case lexer.WITH:
		return p.parseWithStatement()
	case lexer.SWITCH:
		return p.parseSwitchStatement()
	case lexer.THROW:
		return p.parseThrowStatement()
	case lexer.TRY:
		return p.parseTryStatement()
	case lexer.DEBUGGER:
		tok := p.cur
		p.consumeSemicolon()
		return &DebuggerStatement{Token: tok}
	case lexer.FUNCTION:
		if p.ctx.strict {
			p.fail(p.cur, "In strict mode code, functions can only be declared at top level or inside a block.")
		}
		p.fail(p.cur, "In non-strict mode code, functions can only be declared at top level, inside a block, or as the body of an if statement.")
	case lexer.CLASS:
		p.unexpected(p.cur)
	case lexer.CONST:
		p.fail(p.cur, "Lexical declaration cannot appear in a single-statement context")
	case lexer.IDENT:
		if p.curIsWord("let") && p.peekIs(lexer.LBRACKET) {
			p.fail(p.cur, "Lexical declaration cannot appear in a single-statement context")
		}
		if p.isAsyncFunction() {
			p.fail(p.cur, "Async functions can only be declared at the top level or inside a block.")
		}
		if p.peekIs(lexer.COLON) {
			return p.parseLabeledStatement(-1)
		}
	}
	return p.parseExpressionStatement()
}

func (p *Parser) parseExpressionStatement() Statement {
	stmt := &ExpressionStatement{Token: p.cur}
	stmt.Expression = p.parseExpression(LOWEST)
	p.consumeSemicolon()
	return stmt
}

// parseBlockStatement parses a block with its own lexical scope.
func (p *Parser) parseBlockStatement() *BlockStatement {
	p.pushScope(scopeBlock)
	defer p.popScope()
	return p.parseBlock()
}

// parseBlock parses "{ ... }" in the current scope.
func (p *Parser) parseBlock() *BlockStatement {
	block := &BlockStatement{Token: p.cur}
	p.nextToken()
	block.Body, _ = p.parseBody(lexer.RBRACE, false)
	return block
}

// parseDeclarations parses a var, let or const declaration list starting
// at the keyword. In for-loop heads initializers are checked by the caller.
func (p *Parser) parseDeclarations(kind string, inFor bool) *VarDeclaration {
	vd := &VarDeclaration{Token: p.cur, Kind: kind}
	for {
		p.nextToken()
		d := &VariableDeclarator{Token: p.cur, Target: p.parseBindingTarget()}
		if p.peekIs(lexer.ASSIGN) {
			p.nextToken()
			p.nextToken()
			d.Init = p.parseAssign()
		} else if !inFor {
			p.checkInitializer(vd, d)
		}
		for _, id := range BoundNames(d.Target) {
			if kind == "var" {
				p.declareVar(id)
			} else {
				p.declareLexical(id)
			}
		}
		vd.Declarations = append(vd.Declarations, d)
		if !p.peekIs(lexer.COMMA) {
			return vd
		}
		p.nextToken()
	}
}

func (p *Parser) checkInitializer(vd *VarDeclaration, d *VariableDeclarator) {
	if d.Init != nil {
		return
	}
	if vd.Kind == "const" {
		p.fail(d.Token, "Missing initializer in const declaration")
	}
	if _, ok := d.Target.(*Identifier); !ok {
		p.fail(d.Token, "Missing initializer in destructuring declaration")
	}
}

func (p *Parser) parseIfStatement() Statement {
	stmt := &IfStatement{Token: p.cur}
	p.expectPeek(lexer.LPAREN)
	p.nextToken()
	stmt.Test = p.parseExpression(LOWEST)
	p.expectPeek(lexer.RPAREN)
	p.nextToken()
	stmt.Consequent = p.parseIfBody()
	if p.peekIs(lexer.ELSE) {
		p.nextToken()
		p.nextToken()
		stmt.Alternate = p.parseIfBody()
	}
	return stmt
}

// parseIfBody allows a sloppy-mode function declaration as the body of an
// if statement, treated as if it were wrapped in a block.
func (p *Parser) parseIfBody() Statement {
	if !p.curIs(lexer.FUNCTION) || p.ctx.strict {
		return p.parseStatement()
	}
	tok := p.cur
	p.pushScope(scopeBlock)
	decl := p.parseFunctionDeclaration(tok, false)
	p.popScope()
	if decl.Function.Generator {
		p.fail(tok, "Generators can only be declared at the top level or inside a block.")
	}
	return &BlockStatement{Token: tok, Body: []Statement{decl}}
}

// parseLoopBody parses the body of an iteration statement.
func (p *Parser) parseLoopBody() Statement {
	p.ctx.loops++
	p.ctx.breakables++
	defer func() {
		p.ctx.loops--
		p.ctx.breakables--
	}()
	return p.parseStatement()
}

func (p *Parser) parseWhileStatement() Statement {
	stmt := &WhileStatement{Token: p.cur}
	p.expectPeek(lexer.LPAREN)
	p.nextToken()
	stmt.Test = p.parseExpression(LOWEST)
	p.expectPeek(lexer.RPAREN)
	p.nextToken()
	stmt.Body = p.parseLoopBody()
	return stmt
}

func (p *Parser) parseDoWhileStatement() Statement {
	stmt := &DoWhileStatement{Token: p.cur}
	p.nextToken()
	stmt.Body = p.parseLoopBody()
	p.expectPeek(lexer.WHILE)
	p.expectPeek(lexer.LPAREN)
	p.nextToken()
	stmt.Test = p.parseExpression(LOWEST)
	p.expectPeek(lexer.RPAREN)
	// the semicolon after do-while is always optional
	if p.peekIs(lexer.SEMICOLON) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseForStatement() Statement {
	tok := p.cur
	await := false
	if p.peekIsWord("await") {
		if !p.ctx.async {
			p.unexpected(p.peek)
		}
		p.nextToken()
		await = true
	}
	p.expectPeek(lexer.LPAREN)
	p.pushScope(scopeBlock)
	defer p.popScope()
	p.nextToken()

	var init Node
	switch {
	case p.curIs(lexer.SEMICOLON):
	case p.curIs(lexer.VAR), p.curIs(lexer.CONST), p.isLetDeclaration():
		kind := p.cur.Literal
		p.noIn = true
		decl := p.parseDeclarations(kind, true)
		p.noIn = false
		if p.peekIs(lexer.IN) || p.peekIsWord("of") {
			if len(decl.Declarations) != 1 {
				p.fail(decl.Token, "Invalid left-hand side in for-%s loop: Must have a single binding.", p.peek.Literal)
			}
			d := decl.Declarations[0]
			if d.Init != nil {
				_, simple := d.Target.(*Identifier)
				if !(p.peekIs(lexer.IN) && kind == "var" && simple && !p.ctx.strict) {
					p.fail(d.Token, "for-%s loop variable declaration may not have an initializer.", p.peek.Literal)
				}
			}
			return p.parseForInOf(tok, decl, await)
		}
		for _, d := range decl.Declarations {
			p.checkInitializer(decl, d)
		}
		init = decl
		p.expectPeek(lexer.SEMICOLON)
	default:
		start := p.cur
		p.noIn = true
		expr := p.parseExpression(LOWEST)
		p.noIn = false
		if p.peekIs(lexer.IN) || p.peekIsWord("of") {
			if p.peekIsWord("of") && start.Type == lexer.IDENT && !start.Escaped {
				if start.Literal == "let" {
					p.fail(start, "The left-hand side of a for-of loop may not be 'let'.")
				}
				if id, ok := expr.(*Identifier); ok && id.Value == "async" && !await && !p.parenthesized[expr] {
					p.fail(start, "The left-hand side of a for-of loop may not be 'async'.")
				}
			}
			return p.parseForInOf(tok, p.toAssignTarget(expr), await)
		}
		init = expr
		p.expectPeek(lexer.SEMICOLON)
	}
	if await {
		p.fail(tok, "for await requires an of clause")
	}

	stmt := &ForStatement{Token: tok, Init: init}
	if !p.peekIs(lexer.SEMICOLON) {
		p.nextToken()
		stmt.Test = p.parseExpression(LOWEST)
	}
	p.expectPeek(lexer.SEMICOLON)
	if !p.peekIs(lexer.RPAREN) {
		p.nextToken()
		stmt.Update = p.parseExpression(LOWEST)
	}
	p.expectPeek(lexer.RPAREN)
	p.nextToken()
	stmt.Body = p.parseLoopBody()
	return stmt
}

func (p *Parser) parseForInOf(tok lexer.Token, left Node, await bool) Statement {
	p.nextToken()
	isOf := p.curIs(lexer.IDENT)
	if await && !isOf {
		p.unexpected(p.cur)
	}
	p.nextToken()
	var right Expression
	if isOf {
		right = p.parseAssign()
	} else {
		right = p.parseExpression(LOWEST)
	}
	p.expectPeek(lexer.RPAREN)
	p.nextToken()
	body := p.parseLoopBody()
	if isOf {
		return &ForOfStatement{Token: tok, Left: left, Right: right, Body: body, Await: await}
	}
	return &ForInStatement{Token: tok, Left: left, Right: right, Body: body}
}

func (p *Parser) parseContinueStatement() Statement {
	stmt := &ContinueStatement{Token: p.cur}
	if p.peekIs(lexer.IDENT) && !p.peek.NewlineBefore {
		p.nextToken()
		if !p.ctx.hasLabel(p.cur.Value, true) {
			if p.ctx.hasLabel(p.cur.Value, false) {
				p.fail(p.cur, "Illegal continue statement: '%s' does not denote an iteration statement", p.cur.Value)
			}
			p.fail(p.cur, "Undefined label '%s'", p.cur.Value)
		}
		stmt.Label = &Identifier{Token: p.cur, Value: p.cur.Value}
	} else if p.ctx.loops == 0 {
		p.fail(stmt.Token, "Illegal continue statement: no surrounding iteration statement")
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseBreakStatement() Statement {
	stmt := &BreakStatement{Token: p.cur}
	if p.peekIs(lexer.IDENT) && !p.peek.NewlineBefore {
		p.nextToken()
		if !p.ctx.hasLabel(p.cur.Value, false) {
			p.fail(p.cur, "Undefined label '%s'", p.cur.Value)
		}
		stmt.Label = &Identifier{Token: p.cur, Value: p.cur.Value}
	} else if p.ctx.breakables == 0 {
		p.fail(stmt.Token, "Illegal break statement")
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseReturnStatement() Statement {
	stmt := &ReturnStatement{Token: p.cur}
	if !p.ctx.returnAllowed() {
		p.fail(stmt.Token, "Illegal return statement")
	}
	if !p.peekIs(lexer.SEMICOLON) && !p.peekIs(lexer.RBRACE) && !p.peekIs(lexer.EOF) && !p.peek.NewlineBefore {
		p.nextToken()
		stmt.Argument = p.parseExpression(LOWEST)
	}
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseWithStatement() Statement {
	stmt := &WithStatement{Token: p.cur}
	if p.ctx.strict {
		p.fail(stmt.Token, "Strict mode code may not include a with statement")
	}
	p.expectPeek(lexer.LPAREN)
	p.nextToken()
	stmt.Object = p.parseExpression(LOWEST)
	p.expectPeek(lexer.RPAREN)
	p.nextToken()
	stmt.Body = p.parseStatement()
	return stmt
}

func (p *Parser) parseSwitchStatement() Statement {
	stmt := &SwitchStatement{Token: p.cur}
	p.expectPeek(lexer.LPAREN)
	p.nextToken()
	stmt.Discriminant = p.parseExpression(LOWEST)
	p.expectPeek(lexer.RPAREN)
	p.expectPeek(lexer.LBRACE)

	p.pushScope(scopeBlock)
	p.ctx.breakables++
	defer func() {
		p.ctx.breakables--
		p.popScope()
	}()

	hasDefault := false
	p.nextToken()
	for !p.curIs(lexer.RBRACE) {
		c := &SwitchCase{Token: p.cur}
		switch p.cur.Type {
		case lexer.CASE:
			p.nextToken()
			c.Test = p.parseExpression(LOWEST)
		case lexer.DEFAULT:
			if hasDefault {
				p.fail(p.cur, "More than one default clause in switch statement")
			}
			hasDefault = true
		default:
			p.unexpected(p.cur)
		}
		p.expectPeek(lexer.COLON)
		p.nextToken()
		for !p.curIs(lexer.CASE) && !p.curIs(lexer.DEFAULT) && !p.curIs(lexer.RBRACE) {
			if p.curIs(lexer.EOF) {
				p.unexpected(p.cur)
			}
			c.Body = append(c.Body, p.parseStatementListItem())
			p.checkCovers()
			p.nextToken()
		}
		stmt.Cases = append(stmt.Cases, c)
	}
	return stmt
}

func (p *Parser) parseThrowStatement() Statement {
	stmt := &ThrowStatement{Token: p.cur}
	if p.peek.NewlineBefore {
		p.fail(p.peek, "Illegal newline after throw")
	}
	p.nextToken()
	stmt.Argument = p.parseExpression(LOWEST)
	p.consumeSemicolon()
	return stmt
}

func (p *Parser) parseTryStatement() Statement {
	stmt := &TryStatement{Token: p.cur}
	p.expectPeek(lexer.LBRACE)
	stmt.Block = p.parseBlockStatement()

	if p.peekIs(lexer.CATCH) {
		p.nextToken()
		p.pushScope(scopeCatch)
		if p.peekIs(lexer.LPAREN) {
			p.nextToken()
			p.nextToken()
			stmt.Param = p.parseBindingTarget()
			for _, id := range BoundNames(stmt.Param) {
				if p.scope.params[id.Value] {
					p.fail(id.Token, "Identifier '%s' has already been declared", id.Value)
				}
				p.scope.params[id.Value] = true
			}
			_, p.scope.catchSimple = stmt.Param.(*Identifier)
			p.expectPeek(lexer.RPAREN)
		}
		p.expectPeek(lexer.LBRACE)
		stmt.Handler = p.parseBlock()
		p.popScope()
	}
	if p.peekIs(lexer.FINALLY) {
		p.nextToken()
		p.expectPeek(lexer.LBRACE)
		stmt.Finalizer = p.parseBlockStatement()
	}
	if stmt.Handler == nil && stmt.Finalizer == nil {
		p.fail(p.peek, "Missing catch or finally after try")
	}
	return stmt
}

// parseLabeledStatement parses "label: body". chainStart is the index of
// the first label of a directly nested label chain, or -1.
func (p *Parser) parseLabeledStatement(chainStart int) Statement {
	tok := p.cur
	p.checkIdentifierReference(tok)
	if p.ctx.hasLabel(tok.Value, false) {
		p.fail(tok, "Label '%s' has already been declared", tok.Value)
	}
	idx := len(p.ctx.labels)
	if chainStart < 0 {
		chainStart = idx
	}
	p.ctx.labels = append(p.ctx.labels, label{name: tok.Value})
	ctx := p.ctx
	defer func() { ctx.labels = ctx.labels[:idx] }()

	p.nextToken() // :
	p.nextToken()
	stmt := &LabeledStatement{Token: tok, Label: &Identifier{Token: tok, Value: tok.Value}}
	switch {
	case p.curIs(lexer.FOR), p.curIs(lexer.WHILE), p.curIs(lexer.DO):
		for i := chainStart; i < len(p.ctx.labels); i++ {
			p.ctx.labels[i].loop = true
		}
		stmt.Body = p.parseStatement()
	case p.curIs(lexer.IDENT) && p.peekIs(lexer.COLON):
		stmt.Body = p.parseLabeledStatement(chainStart)
	case p.curIs(lexer.FUNCTION):
		if p.ctx.strict {
			p.fail(p.cur, "In strict mode code, functions can only be declared at top level or inside a block.")
		}
		decl := p.parseFunctionDeclaration(p.cur, false)
		if decl.Function.Generator {
			p.fail(decl.Token, "Generators can only be declared at the top level or inside a block.")
		}
		stmt.Body = decl
	default:
		stmt.Body = p.parseStatement()
	}
	return stmt
}

func (p *Parser) parseFunctionDeclaration(start lexer.Token, async bool) *FunctionDeclaration {
	fn := p.parseFunction(start, async, true)
	p.declareFunction(fn)
	return &FunctionDeclaration{Token: start, Function: fn}
}

func (p *Parser) parseClassDeclaration() Statement {
	tok := p.cur
	cl := p.parseClass(tok, true)
	p.declareLexical(cl.Name)
	return &ClassDeclaration{Token: tok, Class: cl}
}
