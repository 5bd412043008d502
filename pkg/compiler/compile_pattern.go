package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// bindMode selects how a destructuring target receives its value.
type bindMode int

const (
	bindAssign bindMode = iota // assignment expression: any reference
	bindVar                    // var declaration: PutValue on the name
	bindInit                   // let, const, parameters: initialize
)

// compileBindingTarget assigns the value on top of the stack to target,
// consuming it.
func (c *Compiler) compileBindingTarget(target parser.Expression, mode bindMode) {
	switch t := target.(type) {
	case *parser.Identifier:
		if mode == bindInit {
			c.emitInitBinding(t.Value)
			return
		}
		c.storeName(t.Value)
		c.emit(vm.OpPop)
	case *parser.ArrayPattern:
		c.compileArrayPattern(t, mode)
	case *parser.ObjectPattern:
		c.compileObjectPattern(t, mode)
	default:
		ref := c.prepareReference(target, false)
		c.emit(vm.OpPick, ref.bases)
		c.emitSetReference(ref)
		c.emit(vm.OpPop)
		c.emit(vm.OpPop)
	}
}

func splitDefault(e parser.Expression) (parser.Expression, parser.Expression) {
	if ap, ok := e.(*parser.AssignmentPattern); ok {
		return ap.Target, ap.Default
	}
	return e, nil
}

// element is a pattern element target whose reference, if any, was
// evaluated before its value.
type element struct {
	target parser.Expression
	ref    reference
	isRef  bool
}

func (c *Compiler) prepareElement(target parser.Expression) element {
	switch target.(type) {
	case *parser.Identifier, *parser.ArrayPattern, *parser.ObjectPattern:
		return element{target: target}
	}
	return element{target: target, ref: c.prepareReference(target, false), isRef: true}
}

// finishElement consumes the element value on top of the reference bases.
func (c *Compiler) finishElement(el element, mode bindMode) {
	if el.isRef {
		c.emitSetReference(el.ref)
		c.emit(vm.OpPop)
		return
	}
	c.compileBindingTarget(el.target, mode)
}

func (c *Compiler) emitDefault(def, target parser.Expression) {
	if def == nil {
		return
	}
	skip := c.emitJump(vm.OpJumpIfNotUndefined)
	c.compileNamedExpression(def, bindingName(target))
	c.patchJump(skip)
}

// compileArrayPattern destructures an iterable. The iterator stays on the
// stack and is closed when the pattern completes abruptly.
//
//	GetIterator
//	per element: [refs] Pick; IteratorStepValue; Swap; Pop; [default]; bind
//	IteratorClose
func (c *Compiler) compileArrayPattern(p *parser.ArrayPattern, mode bindMode) {
	c.at(p)
	c.emit(vm.OpGetIterator, 0)
	guard := c.openRegion(true)

	for _, e := range p.Elements {
		if e == nil {
			c.emit(vm.OpIteratorStepValue)
			c.emit(vm.OpPop)
			continue
		}
		target, def := splitDefault(e)
		el := c.prepareElement(target)
		c.emit(vm.OpPick, el.ref.bases)
		c.emit(vm.OpIteratorStepValue)
		c.emit(vm.OpSwap)
		c.emit(vm.OpPop)
		c.emitDefault(def, target)
		c.finishElement(el, mode)
	}
	if p.Rest != nil {
		el := c.prepareElement(p.Rest)
		c.emit(vm.OpPick, el.ref.bases)
		c.emit(vm.OpIteratorRest)
		c.emit(vm.OpSwap)
		c.emit(vm.OpPop)
		c.finishElement(el, mode)
	}
	c.suspendRegion(guard)
	c.emit(vm.OpIteratorClose)

	skip := c.emitJump(vm.OpJump)
	handler := c.enterHandler(guard)
	c.emit(vm.OpSwap)
	c.emit(vm.OpIteratorCloseAbrupt)
	c.emit(vm.OpThrow)
	c.addHandler(guard, handler)
	c.patchJump(skip)
}

// compileObjectPattern destructures an object. Computed keys are kept on
// the stack when a rest element must exclude them.
func (c *Compiler) compileObjectPattern(p *parser.ObjectPattern, mode bindMode) {
	c.at(p)
	c.emit(vm.OpDup)
	ok := c.emitJump(vm.OpJumpIfNotNullishKeep)
	c.emit(vm.OpThrowError, int(vm.ErrorKindType), c.constant(vm.StringValue("Cannot destructure undefined or null")))
	c.patchJump(ok)
	c.emit(vm.OpPop)

	kept := 0
	for _, prop := range p.Properties {
		c.atToken(prop.Token)
		target, def := splitDefault(prop.Value)
		if prop.Computed {
			c.compileExpression(prop.Key)
			c.emit(vm.OpToPropertyKey)
			el := c.prepareElement(target)
			c.emit(vm.OpPick, el.ref.bases+1+kept)
			c.emit(vm.OpPick, el.ref.bases+1)
			c.emit(vm.OpGetElem)
			c.emitDefault(def, target)
			c.finishElement(el, mode)
			if p.Rest != nil {
				kept++
			} else {
				c.emit(vm.OpPop)
			}
			continue
		}
		el := c.prepareElement(target)
		c.emit(vm.OpPick, el.ref.bases+kept)
		c.emitName(vm.OpGetProp, propertyKeyString(prop.Key))
		c.emitDefault(def, target)
		c.finishElement(el, mode)
	}

	if p.Rest != nil {
		if len(p.Properties) > 255 {
			c.errorf("too many properties before a rest element")
		}
		el := c.prepareElement(p.Rest)
		c.emit(vm.OpNewObject)
		c.emit(vm.OpPick, el.ref.bases+kept+1)
		i, pushed := 0, 0
		for _, prop := range p.Properties {
			if prop.Computed {
				i++
				// key i of kept sits below the bases, the new object, the
				// source and the keys pushed so far
				c.emit(vm.OpPick, (kept-i)+el.ref.bases+2+pushed)
			} else {
				c.emitString(propertyKeyString(prop.Key))
			}
			pushed++
		}
		c.emit(vm.OpCopyDataExcept, len(p.Properties))
		c.finishElement(el, mode)
		c.emitPops(kept)
	}
	c.emit(vm.OpPop)
}

// propertyKeyString is the property key a literal key names.
func propertyKeyString(key parser.Expression) string {
	switch k := key.(type) {
	case *parser.Identifier:
		return k.Value
	case *parser.StringLiteral:
		return k.Value
	case *parser.NumberLiteral:
		return vm.NumberToString(k.Value)
	case *parser.BigIntLiteral:
		return k.Value.String()
	case *parser.PrivateName:
		return "#" + k.Name
	}
	return ""
}
