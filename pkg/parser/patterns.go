package parser

import (
	"ecmavm/pkg/lexer"
)

// Binding patterns are parsed directly in declarations and parameter
// lists. Assignment patterns and arrow parameters are first parsed as
// expressions and then reinterpreted here.

func (p *Parser) parseBindingIdentifier() *Identifier {
	if !p.curIs(lexer.IDENT) {
		p.unexpected(p.cur)
	}
	p.checkBindingName(p.cur)
	return &Identifier{Token: p.cur, Value: p.cur.Value}
}

// parseBindingTarget parses an identifier, array pattern or object pattern.
func (p *Parser) parseBindingTarget() Expression {
	switch p.cur.Type {
	case lexer.LBRACKET:
		return p.parseArrayBindingPattern()
	case lexer.LBRACE:
		return p.parseObjectBindingPattern()
	}
	return p.parseBindingIdentifier()
}

// parseBindingElement parses a binding target with an optional default.
func (p *Parser) parseBindingElement() Expression {
	target := p.parseBindingTarget()
	if !p.peekIs(lexer.ASSIGN) {
		return target
	}
	p.nextToken()
	tok := p.cur
	p.nextToken()
	restore := p.allowIn()
	def := p.parseAssign()
	restore()
	return &AssignmentPattern{Token: tok, Target: target, Default: def}
}

func (p *Parser) parseArrayBindingPattern() Expression {
	pat := &ArrayPattern{Token: p.cur}
	for {
		p.nextToken()
		switch p.cur.Type {
		case lexer.RBRACKET:
			return pat
		case lexer.COMMA:
			pat.Elements = append(pat.Elements, nil)
			continue
		case lexer.SPREAD:
			p.nextToken()
			pat.Rest = p.parseBindingTarget()
			p.expectPeek(lexer.RBRACKET)
			return pat
		}
		pat.Elements = append(pat.Elements, p.parseBindingElement())
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		p.expectPeek(lexer.RBRACKET)
		return pat
	}
}

func (p *Parser) parseObjectBindingPattern() Expression {
	pat := &ObjectPattern{Token: p.cur}
	for {
		p.nextToken()
		if p.curIs(lexer.RBRACE) {
			return pat
		}
		if p.curIs(lexer.SPREAD) {
			p.nextToken()
			pat.Rest = p.parseBindingIdentifier()
			p.expectPeek(lexer.RBRACE)
			return pat
		}
		tok := p.cur
		key, computed := p.parsePropertyKey()
		prop := &PatternProperty{Token: tok, Key: key, Computed: computed}
		if p.peekIs(lexer.COLON) {
			p.nextToken()
			p.nextToken()
			prop.Value = p.parseBindingElement()
		} else {
			if computed || tok.Type != lexer.IDENT {
				p.unexpected(p.peek)
			}
			prop.Shorthand = true
			prop.Value = p.parseBindingElement()
		}
		pat.Properties = append(pat.Properties, prop)
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		p.expectPeek(lexer.RBRACE)
		return pat
	}
}

// toAssignTarget reinterprets the left side of "=".
func (p *Parser) toAssignTarget(e Expression) Expression {
	switch e.(type) {
	case *ArrayLiteral, *ObjectLiteral:
		if p.parenthesized[e] {
			p.fail(e.StartToken(), "Invalid left-hand side in assignment")
		}
		return p.target(e, false)
	}
	return p.simpleTarget(e)
}

// simpleTarget accepts identifiers and property references only.
func (p *Parser) simpleTarget(e Expression) Expression {
	switch t := e.(type) {
	case *Identifier:
		p.checkAssignName(t)
		return t
	case *MemberExpression, *IndexExpression:
		return e
	}
	p.fail(e.StartToken(), "Invalid left-hand side in assignment")
	return nil
}

// target converts a destructuring target. Binding targets must be plain
// identifiers at the leaves; assignment targets may be property references.
func (p *Parser) target(e Expression, binding bool) Expression {
	paren := p.parenthesized[e]
	switch t := e.(type) {
	case *Identifier:
		if binding {
			if paren {
				p.fail(t.Token, "Invalid destructuring assignment target")
			}
			p.checkBindingName(t.Token)
		} else {
			p.checkAssignName(t)
		}
		return t
	case *MemberExpression, *IndexExpression:
		if !binding {
			return e
		}
	case *ArrayLiteral:
		if !paren {
			return p.arrayToPattern(t, binding)
		}
	case *ObjectLiteral:
		if !paren {
			return p.objectToPattern(t, binding)
		}
	case *ArrayPattern, *ObjectPattern:
		if binding {
			p.checkBindingPattern(e)
		}
		return e
	}
	p.fail(e.StartToken(), "Invalid destructuring assignment target")
	return nil
}

// element converts a pattern element, turning "x = v" into a default.
func (p *Parser) element(e Expression, binding bool) Expression {
	if a, ok := e.(*AssignmentExpression); ok && a.Operator == "=" && !p.parenthesized[e] {
		return &AssignmentPattern{Token: a.Token, Target: p.target(a.Target, binding), Default: a.Value}
	}
	return p.target(e, binding)
}

func (p *Parser) arrayToPattern(arr *ArrayLiteral, binding bool) Expression {
	pat := &ArrayPattern{Token: arr.Token}
	for i, el := range arr.Elements {
		if el == nil {
			pat.Elements = append(pat.Elements, nil)
			continue
		}
		if sp, ok := el.(*SpreadElement); ok {
			if i != len(arr.Elements)-1 || p.spreadComma[arr] {
				p.fail(sp.Token, "Rest element must be last element")
			}
			if a, ok := sp.Argument.(*AssignmentExpression); ok && !p.parenthesized[sp.Argument] {
				p.fail(a.Token, "Rest element may not have a default initializer")
			}
			pat.Rest = p.target(sp.Argument, binding)
			continue
		}
		pat.Elements = append(pat.Elements, p.element(el, binding))
	}
	return pat
}

func (p *Parser) objectToPattern(obj *ObjectLiteral, binding bool) Expression {
	delete(p.covers, obj)
	pat := &ObjectPattern{Token: obj.Token}
	for i, prop := range obj.Properties {
		switch prop.Kind {
		case PropertySpread:
			if i != len(obj.Properties)-1 {
				p.fail(prop.Token, "Rest element must be last element")
			}
			switch prop.Value.(type) {
			case *ArrayLiteral, *ObjectLiteral:
				p.fail(prop.Token, "`...` must be followed by an assignable reference in assignment contexts")
			}
			pat.Rest = p.target(prop.Value, binding)
		case PropertyInit, PropertyProto:
			if prop.Method {
				p.fail(prop.Token, "Invalid destructuring assignment target")
			}
			pp := &PatternProperty{Token: prop.Token, Key: prop.Key, Computed: prop.Computed, Shorthand: prop.Shorthand}
			if ap, ok := prop.Value.(*AssignmentPattern); ok && prop.Shorthand {
				ap.Target = p.target(ap.Target, binding)
				pp.Value = ap
			} else {
				pp.Value = p.element(prop.Value, binding)
			}
			pat.Properties = append(pat.Properties, pp)
		default:
			p.fail(prop.Token, "Invalid destructuring assignment target")
		}
	}
	return pat
}

// checkBindingPattern validates a pattern that was converted under
// assignment rules for use as a binding pattern.
func (p *Parser) checkBindingPattern(e Expression) {
	switch t := e.(type) {
	case nil:
	case *Identifier:
		if p.parenthesized[e] {
			p.fail(t.Token, "Invalid destructuring assignment target")
		}
		p.checkBindingName(t.Token)
	case *AssignmentPattern:
		p.checkBindingPattern(t.Target)
	case *ArrayPattern:
		for _, el := range t.Elements {
			p.checkBindingPattern(el)
		}
		p.checkBindingPattern(t.Rest)
	case *ObjectPattern:
		for _, prop := range t.Properties {
			p.checkBindingPattern(prop.Value)
		}
		p.checkBindingPattern(t.Rest)
	default:
		p.fail(e.StartToken(), "Invalid destructuring assignment target")
	}
}
