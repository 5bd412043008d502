package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// compileArrayLiteral builds an array element by element. Holes only
// advance the length.
func (c *Compiler) compileArrayLiteral(node *parser.ArrayLiteral) {
	c.emit(vm.OpNewArray)
	for _, e := range node.Elements {
		switch e := e.(type) {
		case nil:
			c.emit(vm.OpArrayHole)
		case *parser.SpreadElement:
			c.compileExpression(e.Argument)
			c.emit(vm.OpArraySpread)
		default:
			c.compileExpression(e)
			c.emit(vm.OpArrayPush)
		}
	}
}

// compileObjectLiteral defines the members of an object literal in
// source order: [] -> [obj].
func (c *Compiler) compileObjectLiteral(node *parser.ObjectLiteral) {
	c.emit(vm.OpNewObject)
	for _, p := range node.Properties {
		c.atToken(p.Token)
		switch p.Kind {
		case parser.PropertySpread:
			c.compileExpression(p.Value)
			c.emit(vm.OpCopyData)
		case parser.PropertyProto:
			c.compileExpression(p.Value)
			c.emit(vm.OpSetProtoLit)
		case parser.PropertyGet, parser.PropertySet:
			name := c.compilePropertyKey(p)
			c.emitClosure(p.Value.(*parser.FunctionLiteral), name)
			kind := vm.DefineGetter
			if p.Kind == parser.PropertySet {
				kind = vm.DefineSetter
			}
			c.emit(vm.OpDefineProperty, int(kind|vm.DefineEnumerable))
		default:
			name := c.compilePropertyKey(p)
			if fn, ok := p.Value.(*parser.FunctionLiteral); ok && p.Method {
				c.emitClosure(fn, name)
				c.emit(vm.OpDefineProperty, int(vm.DefineMethod|vm.DefineEnumerable))
				continue
			}
			kind := vm.DefineData | vm.DefineEnumerable
			if p.Computed && isAnonymousFunctionDefinition(p.Value) {
				kind |= vm.DefineSetName
				c.compileExpression(p.Value)
			} else {
				c.compileNamedExpression(p.Value, name)
			}
			c.emit(vm.OpDefineProperty, int(kind))
		}
	}
}

// compilePropertyKey pushes the key of p and returns it when it is
// known statically.
func (c *Compiler) compilePropertyKey(p *parser.Property) string {
	if p.Computed {
		c.compileExpression(p.Key)
		c.emit(vm.OpToPropertyKey)
		return ""
	}
	name := propertyKeyString(p.Key)
	c.emitString(name)
	return name
}
