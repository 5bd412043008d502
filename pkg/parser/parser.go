package parser

import (
	"fmt"

	"ecmavm/pkg/errors"
	"ecmavm/pkg/lexer"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// --- Debug Flag ---
const debugParser = false

func debugPrint(format string, args ...interface{}) {
	if debugParser {
		fmt.Printf("[Parser Debug] "+format+"\n", args...)
	}
}

// --- End Debug Flag ---

// Parser takes a lexer and builds an AST. Parsing stops at the first error;
// early errors are reported with the same SyntaxError type as grammar errors.
type Parser struct {
	l      *lexer.Lexer
	source *source.SourceFile
	errors []errors.EngineError
	strict bool

	cur  lexer.Token
	peek lexer.Token

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn

	ctx   *funcContext
	scope *scope
	class *classContext

	noIn       bool // "in" is not a binary operator (for-loop heads)
	prefixPrec int  // precedence the current prefix expression was requested at

	parenthesized map[Expression]bool
	covers        map[*ObjectLiteral]coverError
	spreadComma   map[*ArrayLiteral]bool
	yieldAwaits   int // yield/await expressions seen, for arrow parameter checks
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// coverError is an error that only applies if an object literal is used as
// an expression rather than reinterpreted as a pattern.
type coverError struct {
	tok lexer.Token
	msg string
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// Precedence levels for operators, lowest first.
const (
	_ int = iota
	LOWEST
	SEQUENCE    // ,
	ASSIGNMENT  // = += -= ... &&= ||= ??=
	TERNARY     // ?:
	COALESCE    // ??
	LOGICAL_OR  // ||
	LOGICAL_AND // &&
	BITWISE_OR  // |
	BITWISE_XOR // ^
	BITWISE_AND // &
	EQUALS      // == != === !==
	LESSGREATER // < > <= >= in instanceof
	SHIFT       // << >> >>>
	SUM         // + -
	PRODUCT     // * / %
	POWER       // ** (right-associative)
	PREFIX      // -x !x typeof x ++x
	POSTFIX     // x++ x--
	CALL        // f(x) a.b a[b]
)

var precedences = map[lexer.TokenType]int{
	lexer.COMMA: SEQUENCE,

	lexer.ASSIGN:             ASSIGNMENT,
	lexer.PLUS_ASSIGN:        ASSIGNMENT,
	lexer.MINUS_ASSIGN:       ASSIGNMENT,
	lexer.ASTERISK_ASSIGN:    ASSIGNMENT,
	lexer.SLASH_ASSIGN:       ASSIGNMENT,
	lexer.REMAINDER_ASSIGN:   ASSIGNMENT,
	lexer.EXPONENT_ASSIGN:    ASSIGNMENT,
	lexer.LEFT_SHIFT_ASSIGN:  ASSIGNMENT,
	lexer.RIGHT_SHIFT_ASSIGN: ASSIGNMENT,
	lexer.URSHIFT_ASSIGN:     ASSIGNMENT,
	lexer.AND_ASSIGN:         ASSIGNMENT,
	lexer.OR_ASSIGN:          ASSIGNMENT,
	lexer.XOR_ASSIGN:         ASSIGNMENT,
	lexer.LOGICAL_AND_ASSIGN: ASSIGNMENT,
	lexer.LOGICAL_OR_ASSIGN:  ASSIGNMENT,
	lexer.COALESCE_ASSIGN:    ASSIGNMENT,

	lexer.QUESTION:    TERNARY,
	lexer.COALESCE:    COALESCE,
	lexer.LOGICAL_OR:  LOGICAL_OR,
	lexer.LOGICAL_AND: LOGICAL_AND,
	lexer.PIPE:        BITWISE_OR,
	lexer.BITWISE_XOR: BITWISE_XOR,
	lexer.BITWISE_AND: BITWISE_AND,

	lexer.EQ:        EQUALS,
	lexer.NOT_EQ:    EQUALS,
	lexer.STRICT_EQ: EQUALS,
	lexer.STRICT_NE: EQUALS,

	lexer.LT:         LESSGREATER,
	lexer.GT:         LESSGREATER,
	lexer.LE:         LESSGREATER,
	lexer.GE:         LESSGREATER,
	lexer.IN:         LESSGREATER,
	lexer.INSTANCEOF: LESSGREATER,

	lexer.LEFT_SHIFT:  SHIFT,
	lexer.RIGHT_SHIFT: SHIFT,
	lexer.URSHIFT:     SHIFT,

	lexer.PLUS:      SUM,
	lexer.MINUS:     SUM,
	lexer.ASTERISK:  PRODUCT,
	lexer.SLASH:     PRODUCT,
	lexer.REMAINDER: PRODUCT,
	lexer.EXPONENT:  POWER,

	lexer.INC: POSTFIX,
	lexer.DEC: POSTFIX,
}

// NewParser creates a new Parser.
func NewParser(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:             l,
		source:        l.Source(),
		parenthesized: make(map[Expression]bool),
		covers:        make(map[*ObjectLiteral]coverError),
		spreadComma:   make(map[*ArrayLiteral]bool),
	}

	p.prefixParseFns = make(map[lexer.TokenType]prefixParseFn)
	p.registerPrefix(lexer.IDENT, p.parseIdentifierExpression)
	p.registerPrefix(lexer.PRIVATE_IDENT, p.parsePrivateInExpression)
	p.registerPrefix(lexer.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(lexer.BIGINT, p.parseBigIntLiteral)
	p.registerPrefix(lexer.STRING, p.parseStringLiteral)
	p.registerPrefix(lexer.TEMPLATE, p.parseTemplateLiteral)
	p.registerPrefix(lexer.TEMPLATE_HEAD, p.parseTemplateLiteral)
	p.registerPrefix(lexer.SLASH, p.parseRegexLiteral)
	p.registerPrefix(lexer.SLASH_ASSIGN, p.parseRegexLiteral)
	p.registerPrefix(lexer.TRUE, p.parseBooleanLiteral)
	p.registerPrefix(lexer.FALSE, p.parseBooleanLiteral)
	p.registerPrefix(lexer.NULL, p.parseNullLiteral)
	p.registerPrefix(lexer.THIS, p.parseThisExpression)
	p.registerPrefix(lexer.SUPER, p.parseSuperExpression)
	p.registerPrefix(lexer.NEW, p.parseNewExpression)
	p.registerPrefix(lexer.FUNCTION, p.parseFunctionExpression)
	p.registerPrefix(lexer.CLASS, p.parseClassExpression)
	p.registerPrefix(lexer.LPAREN, p.parseParenthesized)
	p.registerPrefix(lexer.LBRACKET, p.parseArrayLiteral)
	p.registerPrefix(lexer.LBRACE, p.parseObjectLiteral)
	for _, t := range []lexer.TokenType{lexer.BANG, lexer.MINUS, lexer.PLUS, lexer.BITWISE_NOT,
		lexer.TYPEOF, lexer.VOID, lexer.DELETE} {
		p.registerPrefix(t, p.parsePrefixExpression)
	}
	p.registerPrefix(lexer.INC, p.parsePrefixUpdate)
	p.registerPrefix(lexer.DEC, p.parsePrefixUpdate)

	p.infixParseFns = make(map[lexer.TokenType]infixParseFn)
	for t, prec := range precedences {
		switch prec {
		case ASSIGNMENT:
			p.registerInfix(t, p.parseAssignmentExpression)
		case SEQUENCE:
			p.registerInfix(t, p.parseSequenceExpression)
		case TERNARY:
			p.registerInfix(t, p.parseTernaryExpression)
		case POSTFIX:
			p.registerInfix(t, p.parsePostfixUpdate)
		default:
			p.registerInfix(t, p.parseInfixExpression)
		}
	}
	return p
}

// SetStrict makes the whole program strict mode code.
func (p *Parser) SetStrict(strict bool) { p.strict = strict }

// Errors returns the diagnostics collected so far.
func (p *Parser) Errors() []errors.EngineError {
	return p.errors
}

// ParseProgram parses a complete script.
func (p *Parser) ParseProgram() (program *Program, errs []errors.EngineError) {
	program = &Program{Source: p.source}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			program, errs = nil, p.errors
		}
	}()

	p.ctx = &funcContext{isScript: true, strict: p.strict}
	p.scope = newScope(scopeScript, nil)
	p.nextToken()
	p.nextToken()
	program.Body, _ = p.parseBody(lexer.EOF, true)
	program.Strict = p.ctx.strict
	debugPrint("parsed %d statements (strict=%v)", len(program.Body), program.Strict)
	return program, nil
}

// --- Token helpers ---

func (p *Parser) nextToken() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
	if p.cur.Type == lexer.ILLEGAL {
		p.failLexical(p.cur)
	}
}

func (p *Parser) registerPrefix(tokenType lexer.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType lexer.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peek.Type == t }

// curIsWord reports whether the current token is the unescaped contextual
// keyword name.
func (p *Parser) curIsWord(name string) bool {
	return p.cur.Type == lexer.IDENT && p.cur.Literal == name
}

func (p *Parser) peekIsWord(name string) bool {
	return p.peek.Type == lexer.IDENT && p.peek.Literal == name
}

func (p *Parser) expectPeek(t lexer.TokenType) {
	if p.peekIs(t) {
		p.nextToken()
		return
	}
	p.unexpected(p.peek)
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peek.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.cur.Type]; ok {
		return prec
	}
	return LOWEST
}

// consumeSemicolon implements automatic semicolon insertion: a missing
// semicolon is accepted before "}", at end of input and after a line break.
func (p *Parser) consumeSemicolon() {
	if p.peekIs(lexer.SEMICOLON) {
		p.nextToken()
		return
	}
	if p.peekIs(lexer.RBRACE) || p.peekIs(lexer.EOF) || p.peek.NewlineBefore {
		return
	}
	p.unexpected(p.peek)
}

// allowIn re-enables the "in" operator and returns a function restoring
// the previous state.
func (p *Parser) allowIn() func() {
	saved := p.noIn
	p.noIn = false
	return func() { p.noIn = saved }
}

// --- Errors ---

func (p *Parser) position(tok lexer.Token) errors.Position {
	return errors.Position{
		Line:     tok.Line,
		Column:   tok.Column,
		StartPos: tok.StartPos,
		EndPos:   tok.EndPos,
		Source:   p.source,
	}
}

func (p *Parser) fail(tok lexer.Token, format string, args ...interface{}) {
	p.errors = append(p.errors, &errors.SyntaxError{
		Position: p.position(tok),
		Msg:      fmt.Sprintf(format, args...),
	})
	panic(bailout{})
}

func (p *Parser) failLexical(tok lexer.Token) {
	p.errors = append(p.errors, &errors.LexicalError{
		Position: p.position(tok),
		Msg:      tok.Err,
	})
	panic(bailout{})
}

func (p *Parser) unexpected(tok lexer.Token) {
	switch tok.Type {
	case lexer.ILLEGAL:
		p.failLexical(tok)
	case lexer.EOF:
		p.fail(tok, "Unexpected end of input")
	case lexer.IDENT:
		p.fail(tok, "Unexpected identifier '%s'", tok.Value)
	case lexer.NUMBER, lexer.BIGINT:
		p.fail(tok, "Unexpected number")
	case lexer.STRING:
		p.fail(tok, "Unexpected string")
	case lexer.TEMPLATE, lexer.TEMPLATE_HEAD:
		p.fail(tok, "Unexpected template string")
	}
	p.fail(tok, "Unexpected token '%s'", tok.Literal)
}

func (p *Parser) addCover(obj *ObjectLiteral, tok lexer.Token, msg string) {
	if _, ok := p.covers[obj]; !ok {
		p.covers[obj] = coverError{tok: tok, msg: msg}
	}
}

// checkCovers reports object literals that kept pattern-only syntax.
func (p *Parser) checkCovers() {
	for _, c := range p.covers {
		p.fail(c.tok, "%s", c.msg)
	}
}

// freshCovers isolates pending cover errors while parsing a nested body.
func (p *Parser) freshCovers() func() {
	saved := p.covers
	p.covers = make(map[*ObjectLiteral]coverError)
	return func() {
		p.checkCovers()
		p.covers = saved
	}
}

// --- Expressions ---

// parseExpression is the Pratt loop. The returned expression leaves cur on
// its last token.
func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixParseFns[p.cur.Type]
	if prefix == nil {
		p.unexpected(p.cur)
		return nil
	}
	saved := p.prefixPrec
	p.prefixPrec = precedence
	left := prefix()
	p.prefixPrec = saved
	if p.tailable(left) {
		left = p.parseCallTail(left, true)
	}

	for precedence < p.peekPrecedence() {
		if p.assignmentLevel(left) && !p.peekIs(lexer.COMMA) {
			break
		}
		if p.noIn && p.peekIs(lexer.IN) {
			break
		}
		if (p.peekIs(lexer.INC) || p.peekIs(lexer.DEC)) && p.peek.NewlineBefore {
			break
		}
		infix := p.infixParseFns[p.peek.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

// parseAssign parses an AssignmentExpression (no top-level comma).
func (p *Parser) parseAssign() Expression {
	return p.parseExpression(SEQUENCE)
}

// tailable reports whether member, call and template tails may follow e.
func (p *Parser) tailable(e Expression) bool {
	if p.parenthesized[e] {
		return true
	}
	switch t := e.(type) {
	case *PrefixExpression, *UpdateExpression, *YieldExpression, *AwaitExpression, *PrivateName:
		return false
	case *FunctionLiteral:
		return !t.IsArrow()
	}
	return true
}

// assignmentLevel reports whether e is an unparenthesized expression at
// assignment level (assignment, conditional, arrow function or yield),
// which can only be followed by a comma.
func (p *Parser) assignmentLevel(e Expression) bool {
	if p.parenthesized[e] {
		return false
	}
	switch t := e.(type) {
	case *YieldExpression, *AssignmentExpression, *TernaryExpression:
		return true
	case *FunctionLiteral:
		return t.IsArrow()
	}
	return false
}

// parseCallTail parses member accesses, calls, optional chains and tagged
// templates following a primary expression.
func (p *Parser) parseCallTail(left Expression, allowCall bool) Expression {
	chain := false
	start := p.cur
loop:
	for {
		switch p.peek.Type {
		case lexer.DOT:
			p.nextToken()
			left = p.parseDotMember(left, false)
		case lexer.OPTIONAL:
			if !allowCall {
				p.fail(p.peek, "Invalid optional chain from new expression")
			}
			if _, ok := left.(*SuperExpression); ok {
				p.unexpected(p.peek)
			}
			p.nextToken()
			chain = true
			switch p.peek.Type {
			case lexer.LPAREN:
				p.nextToken()
				left = p.parseCall(left, true)
			case lexer.LBRACKET:
				p.nextToken()
				left = p.parseIndex(left, true)
			case lexer.TEMPLATE, lexer.TEMPLATE_HEAD:
				p.fail(p.peek, "Invalid tagged template on optional chain")
			default:
				left = p.parseDotMember(left, true)
			}
		case lexer.LBRACKET:
			p.nextToken()
			left = p.parseIndex(left, false)
		case lexer.LPAREN:
			if !allowCall {
				break loop
			}
			p.nextToken()
			left = p.parseCall(left, false)
		case lexer.TEMPLATE, lexer.TEMPLATE_HEAD:
			if chain {
				p.fail(p.peek, "Invalid tagged template on optional chain")
			}
			p.nextToken()
			tok := p.cur
			left = &TaggedTemplate{Token: tok, Tag: left, Quasi: p.parseTemplate(true)}
		default:
			break loop
		}
	}
	if chain {
		left = &OptionalChain{Token: start, Expression: left}
	}
	return left
}

// parseDotMember parses the name after "." or "?.".
func (p *Parser) parseDotMember(object Expression, optional bool) Expression {
	me := &MemberExpression{Token: p.cur, Object: object, Optional: optional}
	p.nextToken()
	switch {
	case p.curIs(lexer.PRIVATE_IDENT):
		if _, ok := object.(*SuperExpression); ok {
			p.fail(p.cur, "Unexpected private field")
		}
		p.usePrivateName(p.cur)
		me.Private = true
		me.Property = p.cur.Value
	case p.curIs(lexer.IDENT) || p.cur.Type.IsKeyword():
		me.Property = p.cur.Value
	default:
		p.unexpected(p.cur)
	}
	return me
}

func (p *Parser) parseIndex(object Expression, optional bool) Expression {
	ie := &IndexExpression{Token: p.cur, Object: object, Optional: optional}
	restore := p.allowIn()
	p.nextToken()
	ie.Index = p.parseExpression(LOWEST)
	restore()
	p.expectPeek(lexer.RBRACKET)
	return ie
}

func (p *Parser) parseCall(callee Expression, optional bool) Expression {
	call := &CallExpression{Token: p.cur, Callee: callee, Optional: optional}
	call.Arguments = p.parseArguments()
	return call
}

// parseArguments parses "(a, ...b)" starting at "(" and leaves cur on ")".
func (p *Parser) parseArguments() []Expression {
	restore := p.allowIn()
	defer restore()
	args := []Expression{}
	for {
		p.nextToken()
		if p.curIs(lexer.RPAREN) {
			break
		}
		if p.curIs(lexer.SPREAD) {
			tok := p.cur
			p.nextToken()
			args = append(args, &SpreadElement{Token: tok, Argument: p.parseAssign()})
		} else {
			args = append(args, p.parseAssign())
		}
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		p.expectPeek(lexer.RPAREN)
		break
	}
	return args
}

// parseLeftHandSide parses a LeftHandSideExpression (class heritage).
func (p *Parser) parseLeftHandSide() Expression {
	prefix := p.prefixParseFns[p.cur.Type]
	if prefix == nil {
		p.unexpected(p.cur)
		return nil
	}
	saved := p.prefixPrec
	p.prefixPrec = CALL
	left := prefix()
	p.prefixPrec = saved
	if !p.tailable(left) {
		p.fail(left.StartToken(), "Unexpected token '%s'", left.TokenLiteral())
	}
	return p.parseCallTail(left, true)
}

// --- Prefix parse functions ---

func (p *Parser) parseIdentifierExpression() Expression {
	tok := p.cur
	if !tok.Escaped {
		switch tok.Literal {
		case "async":
			if p.peekIs(lexer.FUNCTION) && !p.peek.NewlineBefore {
				p.nextToken()
				return p.parseFunction(tok, true, false)
			}
			if p.prefixPrec <= SEQUENCE && !p.peek.NewlineBefore {
				if p.peekIs(lexer.IDENT) {
					p.nextToken()
					param := p.parseBindingIdentifier()
					if !p.peekIs(lexer.ARROW) || p.peek.NewlineBefore {
						p.unexpected(p.peek)
					}
					return p.parseArrowFunction(tok, []Expression{param}, nil, true)
				}
				if p.peekIs(lexer.LPAREN) {
					return p.parseAsyncCallOrArrow(tok)
				}
			}
		case "yield":
			if p.ctx.generator {
				return p.parseYield()
			}
		case "await":
			if p.ctx.async {
				return p.parseAwait()
			}
		}
	}
	p.checkIdentifierReference(tok)
	id := &Identifier{Token: tok, Value: tok.Value}
	if p.peekIs(lexer.ARROW) && !p.peek.NewlineBefore {
		if p.prefixPrec > SEQUENCE {
			p.unexpected(p.peek)
		}
		p.checkBindingName(tok)
		return p.parseArrowFunction(tok, []Expression{id}, nil, false)
	}
	return id
}

func (p *Parser) parsePrivateInExpression() Expression {
	tok := p.cur
	if !p.peekIs(lexer.IN) || p.prefixPrec >= LESSGREATER {
		p.unexpected(tok)
	}
	p.usePrivateName(tok)
	return &PrivateName{Token: tok, Name: tok.Value}
}

func (p *Parser) parseNumberLiteral() Expression {
	tok := p.cur
	if tok.LegacyOctal && p.ctx.strict {
		p.fail(tok, "Octal literals are not allowed in strict mode.")
	}
	return &NumberLiteral{Token: tok, Value: lexer.NumberValue(tok.Value)}
}

func (p *Parser) parseBigIntLiteral() Expression {
	return &BigIntLiteral{Token: p.cur, Value: lexer.BigIntValue(p.cur.Value)}
}

func (p *Parser) parseStringLiteral() Expression {
	tok := p.cur
	if tok.LegacyOctal && p.ctx.strict {
		p.fail(tok, "Octal escape sequences are not allowed in strict mode.")
	}
	return &StringLiteral{Token: tok, Value: tok.Value}
}

func (p *Parser) parseBooleanLiteral() Expression {
	return &BooleanLiteral{Token: p.cur, Value: p.curIs(lexer.TRUE)}
}

func (p *Parser) parseNullLiteral() Expression {
	return &NullLiteral{Token: p.cur}
}

func (p *Parser) parseThisExpression() Expression {
	return &ThisExpression{Token: p.cur}
}

func (p *Parser) parseTemplateLiteral() Expression {
	return p.parseTemplate(false)
}

// parseTemplate parses a template starting at a TEMPLATE or TEMPLATE_HEAD
// token. Substitution tails are rescanned by the lexer on request.
func (p *Parser) parseTemplate(tagged bool) *TemplateLiteral {
	tl := &TemplateLiteral{Token: p.cur}
	for {
		tok := p.cur
		if tok.InvalidCooked && !tagged {
			p.fail(tok, "Invalid escape sequence in template")
		}
		tl.Quasis = append(tl.Quasis, &TemplateElement{Cooked: tok.Value, Raw: tok.Raw, Invalid: tok.InvalidCooked})
		if tok.Type == lexer.TEMPLATE || tok.Type == lexer.TEMPLATE_TAIL {
			return tl
		}
		p.nextToken()
		restore := p.allowIn()
		tl.Expressions = append(tl.Expressions, p.parseExpression(LOWEST))
		restore()
		if !p.peekIs(lexer.RBRACE) {
			p.unexpected(p.peek)
		}
		p.cur = p.l.ReadTemplateContinuation(p.peek)
		if p.cur.Type == lexer.ILLEGAL {
			p.failLexical(p.cur)
		}
		p.peek = p.l.NextToken()
	}
}

func (p *Parser) parseRegexLiteral() Expression {
	tok := p.l.ReadRegex(p.cur)
	if tok.Type == lexer.ILLEGAL {
		p.failLexical(tok)
	}
	p.cur = tok
	p.peek = p.l.NextToken()
	seen := map[rune]bool{}
	for _, f := range tok.Raw {
		switch f {
		case 'd', 'g', 'i', 'm', 's', 'u', 'v', 'y':
		default:
			p.fail(tok, "Invalid regular expression flags")
		}
		if seen[f] {
			p.fail(tok, "Invalid regular expression flags")
		}
		seen[f] = true
	}
	if seen['u'] && seen['v'] {
		p.fail(tok, "Invalid regular expression flags")
	}
	if err := vm.ValidateRegExp(tok.Value, tok.Raw); err != nil {
		p.fail(tok, "%s", err.Error())
	}
	return &RegexLiteral{Token: tok, Pattern: tok.Value, Flags: tok.Raw}
}

func (p *Parser) parseSuperExpression() Expression {
	tok := p.cur
	switch p.peek.Type {
	case lexer.LPAREN:
		if !p.ctx.superCall {
			p.fail(tok, "'super' keyword unexpected here")
		}
	case lexer.DOT, lexer.LBRACKET:
		if !p.ctx.superProp {
			p.fail(tok, "'super' keyword unexpected here")
		}
	default:
		p.fail(tok, "'super' keyword unexpected here")
	}
	return &SuperExpression{Token: tok}
}

func (p *Parser) parseNewExpression() Expression {
	tok := p.cur
	if p.peekIs(lexer.DOT) {
		p.nextToken()
		p.nextToken()
		if !p.curIsWord("target") {
			p.unexpected(p.cur)
		}
		if !p.ctx.newTarget {
			p.fail(tok, "new.target expression is not allowed here")
		}
		return &MetaProperty{Token: tok, Meta: "new", Property: "target"}
	}
	p.nextToken()
	var callee Expression
	if p.curIs(lexer.NEW) {
		callee = p.parseNewExpression()
	} else {
		prefix := p.prefixParseFns[p.cur.Type]
		if prefix == nil {
			p.unexpected(p.cur)
		}
		saved := p.prefixPrec
		p.prefixPrec = CALL
		callee = prefix()
		p.prefixPrec = saved
		if !p.tailable(callee) {
			p.fail(callee.StartToken(), "Unexpected token '%s'", callee.TokenLiteral())
		}
	}
	callee = p.parseCallTail(callee, false)
	ne := &NewExpression{Token: tok, Callee: callee}
	if p.peekIs(lexer.LPAREN) {
		p.nextToken()
		ne.Arguments = p.parseArguments()
	}
	return ne
}

func (p *Parser) parseFunctionExpression() Expression {
	return p.parseFunction(p.cur, false, false)
}

func (p *Parser) parseClassExpression() Expression {
	return p.parseClass(p.cur, false)
}

// parseParenthesized parses "(expr)" or, when followed by "=>", an arrow
// function head (the contents are reinterpreted as parameters).
func (p *Parser) parseParenthesized() Expression {
	start := p.cur
	prec := p.prefixPrec
	yieldsBefore := p.yieldAwaits
	restore := p.allowIn()

	var items []Expression
	var rest Expression
	trailingComma := false
	p.nextToken()
	for !p.curIs(lexer.RPAREN) {
		if p.curIs(lexer.SPREAD) {
			p.nextToken()
			rest = p.parseBindingTarget()
			p.expectPeek(lexer.RPAREN)
			break
		}
		items = append(items, p.parseAssign())
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			p.nextToken()
			trailingComma = p.curIs(lexer.RPAREN)
			continue
		}
		p.expectPeek(lexer.RPAREN)
	}
	restore()

	if p.peekIs(lexer.ARROW) && !p.peek.NewlineBefore {
		if prec > SEQUENCE {
			p.fail(start, "Malformed arrow function parameter list")
		}
		if p.yieldAwaits != yieldsBefore {
			p.fail(start, "Yield or await expression not allowed in formal parameter")
		}
		params := make([]Expression, len(items))
		for i, item := range items {
			params[i] = p.element(item, true)
		}
		return p.parseArrowFunction(start, params, rest, false)
	}
	if len(items) == 0 || rest != nil || trailingComma {
		p.unexpected(p.cur)
	}
	var expr Expression
	if len(items) == 1 {
		expr = items[0]
	} else {
		expr = &SequenceExpression{Token: start, Expressions: items}
	}
	p.parenthesized[expr] = true
	return expr
}

// parseAsyncCallOrArrow handles "async (" which is either a call of a
// function named async or an async arrow function head.
func (p *Parser) parseAsyncCallOrArrow(asyncTok lexer.Token) Expression {
	prec := p.prefixPrec
	yieldsBefore := p.yieldAwaits
	callee := &Identifier{Token: asyncTok, Value: "async"}
	p.nextToken()
	callTok := p.cur
	args := p.parseArguments()
	if p.peekIs(lexer.ARROW) && !p.peek.NewlineBefore {
		if prec > SEQUENCE {
			p.fail(asyncTok, "Malformed arrow function parameter list")
		}
		if p.yieldAwaits != yieldsBefore {
			p.fail(asyncTok, "Yield or await expression not allowed in formal parameter")
		}
		var params []Expression
		var rest Expression
		for i, arg := range args {
			if sp, ok := arg.(*SpreadElement); ok {
				if i != len(args)-1 {
					p.fail(sp.Token, "Rest parameter must be last formal parameter")
				}
				rest = p.target(sp.Argument, true)
				continue
			}
			params = append(params, p.element(arg, true))
		}
		return p.parseArrowFunction(asyncTok, params, rest, true)
	}
	return &CallExpression{Token: callTok, Callee: callee, Arguments: args}
}

func (p *Parser) parseArrayLiteral() Expression {
	arr := &ArrayLiteral{Token: p.cur}
	restore := p.allowIn()
	defer restore()
	for {
		p.nextToken()
		if p.curIs(lexer.RBRACKET) {
			break
		}
		if p.curIs(lexer.COMMA) {
			arr.Elements = append(arr.Elements, nil)
			continue
		}
		var el Expression
		if p.curIs(lexer.SPREAD) {
			tok := p.cur
			p.nextToken()
			el = &SpreadElement{Token: tok, Argument: p.parseAssign()}
		} else {
			el = p.parseAssign()
		}
		arr.Elements = append(arr.Elements, el)
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			if _, ok := el.(*SpreadElement); ok {
				p.spreadComma[arr] = true
			}
			continue
		}
		p.expectPeek(lexer.RBRACKET)
		break
	}
	return arr
}

func (p *Parser) parseObjectLiteral() Expression {
	obj := &ObjectLiteral{Token: p.cur}
	restore := p.allowIn()
	defer restore()
	sawProto := false
	for {
		p.nextToken()
		if p.curIs(lexer.RBRACE) {
			break
		}
		prop := p.parseObjectProperty(obj)
		if prop.Kind == PropertyProto {
			if sawProto {
				p.addCover(obj, prop.Token, "Duplicate __proto__ fields are not allowed in object literals")
			}
			sawProto = true
		}
		obj.Properties = append(obj.Properties, prop)
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		p.expectPeek(lexer.RBRACE)
		break
	}
	return obj
}

// peekEndsPropertyName reports whether a contextual word such as get, set,
// async or static is itself the property name.
func (p *Parser) peekEndsPropertyName() bool {
	switch p.peek.Type {
	case lexer.COMMA, lexer.COLON, lexer.RBRACE, lexer.LPAREN, lexer.ASSIGN, lexer.SEMICOLON, lexer.EOF:
		return true
	}
	return false
}

func (p *Parser) parseObjectProperty(obj *ObjectLiteral) *Property {
	tok := p.cur
	if p.curIs(lexer.SPREAD) {
		p.nextToken()
		return &Property{Token: tok, Kind: PropertySpread, Value: p.parseAssign()}
	}
	async, generator := false, false
	kind := PropertyInit
	if p.curIsWord("async") && !p.peekEndsPropertyName() && !p.peek.NewlineBefore {
		async = true
		p.nextToken()
	}
	if p.curIs(lexer.ASTERISK) {
		generator = true
		p.nextToken()
	}
	if !async && !generator && (p.curIsWord("get") || p.curIsWord("set")) && !p.peekEndsPropertyName() {
		kind = PropertyGet
		if p.cur.Literal == "set" {
			kind = PropertySet
		}
		p.nextToken()
	}

	keyTok := p.cur
	key, computed := p.parsePropertyKey()
	prop := &Property{Token: tok, Kind: kind, Key: key, Computed: computed}

	if async || generator || kind != PropertyInit || p.peekIs(lexer.LPAREN) {
		p.expectPeek(lexer.LPAREN)
		fk := FuncMethod
		switch kind {
		case PropertyGet:
			fk = FuncGetter
		case PropertySet:
			fk = FuncSetter
		}
		prop.Value = p.parseMethod(tok, fk, async, generator)
		prop.Method = kind == PropertyInit
		return prop
	}
	if p.peekIs(lexer.COLON) {
		p.nextToken()
		p.nextToken()
		prop.Value = p.parseAssign()
		if !computed && propertyKeyName(key) == "__proto__" {
			prop.Kind = PropertyProto
		}
		return prop
	}

	// shorthand: {a} or {a = 1} (the latter only as a pattern)
	if computed || keyTok.Type != lexer.IDENT {
		p.unexpected(p.peek)
	}
	p.checkIdentifierReference(keyTok)
	id := &Identifier{Token: keyTok, Value: keyTok.Value}
	prop.Shorthand = true
	prop.Value = id
	if p.peekIs(lexer.ASSIGN) {
		p.nextToken()
		assignTok := p.cur
		p.nextToken()
		prop.Value = &AssignmentPattern{Token: assignTok, Target: id, Default: p.parseAssign()}
		p.addCover(obj, assignTok, "Invalid shorthand property initializer")
	}
	return prop
}

// parsePropertyKey parses a property name. Computed keys are returned with
// computed set.
func (p *Parser) parsePropertyKey() (key Expression, computed bool) {
	switch p.cur.Type {
	case lexer.STRING:
		return p.parseStringLiteral(), false
	case lexer.NUMBER:
		return p.parseNumberLiteral(), false
	case lexer.BIGINT:
		return p.parseBigIntLiteral(), false
	case lexer.LBRACKET:
		restore := p.allowIn()
		p.nextToken()
		key = p.parseAssign()
		restore()
		p.expectPeek(lexer.RBRACKET)
		return key, true
	}
	if p.curIs(lexer.IDENT) || p.cur.Type.IsKeyword() {
		return &Identifier{Token: p.cur, Value: p.cur.Value}, false
	}
	p.unexpected(p.cur)
	return nil, false
}

// propertyKeyName returns the static name of a non-computed key, or "".
func propertyKeyName(key Expression) string {
	switch k := key.(type) {
	case *Identifier:
		return k.Value
	case *StringLiteral:
		return k.Value
	}
	return ""
}

func (p *Parser) parsePrefixExpression() Expression {
	tok := p.cur
	p.nextToken()
	right := p.parseExpression(PREFIX)
	if tok.Type == lexer.DELETE {
		if _, ok := right.(*Identifier); ok && p.ctx.strict {
			p.fail(tok, "Delete of an unqualified identifier in strict mode.")
		}
		if me, ok := unwrapChain(right).(*MemberExpression); ok && me.Private {
			p.fail(tok, "Private fields can not be deleted")
		}
	}
	return &PrefixExpression{Token: tok, Operator: tok.Literal, Right: right}
}

func unwrapChain(e Expression) Expression {
	if oc, ok := e.(*OptionalChain); ok {
		return oc.Expression
	}
	return e
}

func (p *Parser) parsePrefixUpdate() Expression {
	tok := p.cur
	p.nextToken()
	target := p.simpleTarget(p.parseExpression(PREFIX))
	return &UpdateExpression{Token: tok, Operator: tok.Literal, Prefix: true, Target: target}
}

func (p *Parser) parseYield() Expression {
	tok := p.cur
	if p.ctx.inParams {
		p.fail(tok, "Yield expression not allowed in formal parameter")
	}
	if p.prefixPrec > SEQUENCE {
		p.unexpected(tok)
	}
	p.yieldAwaits++
	ye := &YieldExpression{Token: tok}
	if p.peek.NewlineBefore {
		return ye
	}
	if p.peekIs(lexer.ASTERISK) {
		p.nextToken()
		p.nextToken()
		ye.Delegate = true
		ye.Argument = p.parseAssign()
		return ye
	}
	if _, ok := p.prefixParseFns[p.peek.Type]; ok {
		p.nextToken()
		ye.Argument = p.parseAssign()
	}
	return ye
}

func (p *Parser) parseAwait() Expression {
	tok := p.cur
	if p.ctx.inParams {
		p.fail(tok, "Illegal await-expression in formal parameters of async function")
	}
	p.yieldAwaits++
	p.nextToken()
	return &AwaitExpression{Token: tok, Argument: p.parseExpression(PREFIX)}
}

// --- Infix parse functions ---

func (p *Parser) parseInfixExpression(left Expression) Expression {
	tok := p.cur
	prec := p.curPrecedence()
	if _, ok := left.(*PrivateName); ok && tok.Type != lexer.IN {
		p.unexpected(tok)
	}
	if tok.Type == lexer.EXPONENT {
		switch left.(type) {
		case *PrefixExpression, *AwaitExpression:
			if !p.parenthesized[left] {
				p.fail(tok, "Unary operator used immediately before exponentiation expression. Parenthesis must be used to disambiguate operator precedence")
			}
		}
		p.nextToken()
		return &InfixExpression{Token: tok, Left: left, Operator: tok.Literal, Right: p.parseExpression(prec - 1)}
	}
	if tok.Type == lexer.COALESCE && p.isAndOr(left) {
		p.fail(tok, "Unexpected token '??'")
	}
	p.nextToken()
	right := p.parseExpression(prec)
	if tok.Type == lexer.COALESCE && p.isAndOr(right) {
		p.fail(tok, "Unexpected token '??'")
	}
	if (tok.Type == lexer.LOGICAL_AND || tok.Type == lexer.LOGICAL_OR) && p.isCoalesce(left) {
		p.unexpected(tok)
	}
	return &InfixExpression{Token: tok, Left: left, Operator: tok.Literal, Right: right}
}

func (p *Parser) isAndOr(e Expression) bool {
	ie, ok := e.(*InfixExpression)
	return ok && !p.parenthesized[e] && (ie.Operator == "&&" || ie.Operator == "||")
}

func (p *Parser) isCoalesce(e Expression) bool {
	ie, ok := e.(*InfixExpression)
	return ok && !p.parenthesized[e] && ie.Operator == "??"
}

func (p *Parser) parseAssignmentExpression(left Expression) Expression {
	tok := p.cur
	var target Expression
	if tok.Type == lexer.ASSIGN {
		target = p.toAssignTarget(left)
	} else {
		target = p.simpleTarget(left)
	}
	p.nextToken()
	value := p.parseExpression(SEQUENCE)
	return &AssignmentExpression{Token: tok, Operator: tok.Literal, Target: target, Value: value}
}

func (p *Parser) parseTernaryExpression(cond Expression) Expression {
	te := &TernaryExpression{Token: p.cur, Condition: cond}
	restore := p.allowIn()
	p.nextToken()
	te.Consequence = p.parseAssign()
	restore()
	p.expectPeek(lexer.COLON)
	p.nextToken()
	te.Alternative = p.parseAssign()
	return te
}

func (p *Parser) parseSequenceExpression(first Expression) Expression {
	seq := &SequenceExpression{Token: p.cur, Expressions: []Expression{first}}
	for {
		p.nextToken()
		seq.Expressions = append(seq.Expressions, p.parseAssign())
		if !p.peekIs(lexer.COMMA) {
			return seq
		}
		p.nextToken()
	}
}

func (p *Parser) parsePostfixUpdate(left Expression) Expression {
	tok := p.cur
	target := p.simpleTarget(left)
	return &UpdateExpression{Token: tok, Operator: tok.Literal, Target: target}
}
