package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

const constAssignment = "Assignment to constant variable."

// --- Names ---

func (c *Compiler) loadName(name string) {
	r := c.scope.Resolve(name)
	switch r.kind {
	case refLocal:
		c.emit(vm.OpGetLocal, r.depth, r.binding.Slot)
	case refGlobal:
		c.emitName(vm.OpGetGlobal, name)
	default:
		c.emitName(vm.OpGetName, name)
	}
}

// storeName assigns the value on top of the stack to name and leaves it
// there.
func (c *Compiler) storeName(name string) {
	r := c.scope.Resolve(name)
	switch r.kind {
	case refLocal:
		b := r.binding
		switch {
		case b.Flags&vm.BindingFuncName != 0:
			// the name of a function expression ignores sloppy writes
			if c.strict {
				c.emitThrow(vm.ErrorKindType, constAssignment)
			}
		case b.IsConst():
			if b.IsLexical() {
				c.emit(vm.OpGetLocal, r.depth, b.Slot)
				c.emit(vm.OpPop)
			}
			c.emitThrow(vm.ErrorKindType, constAssignment)
		default:
			c.emit(vm.OpSetLocal, r.depth, b.Slot)
		}
	case refGlobal:
		c.emitName(vm.OpSetGlobal, name)
	default:
		c.emitName(vm.OpSetName, name)
	}
}

// emitInitBinding initializes the binding of a declaration in the current
// scope with the value on top of the stack, consuming it.
func (c *Compiler) emitInitBinding(name string) {
	r := c.scope.Resolve(name)
	switch r.kind {
	case refLocal:
		c.emit(vm.OpInitLocal, r.depth, r.binding.Slot)
	case refGlobal:
		c.emitName(vm.OpInitGlobal, name)
	default:
		c.errorf("declaration of %s resolves dynamically", name)
		c.emit(vm.OpPop)
	}
}

func (c *Compiler) compileTypeofName(name string) {
	r := c.scope.Resolve(name)
	switch r.kind {
	case refLocal:
		c.emit(vm.OpGetLocal, r.depth, r.binding.Slot)
		c.emit(vm.OpTypeof)
	case refGlobal:
		c.emitName(vm.OpTypeofGlobal, name)
	default:
		c.emitName(vm.OpTypeofName, name)
	}
}

func (c *Compiler) compileDeleteName(name string) {
	r := c.scope.Resolve(name)
	switch r.kind {
	case refLocal:
		c.emit(vm.OpFalse)
	case refGlobal:
		c.emitName(vm.OpDeleteGlobal, name)
	default:
		c.emitName(vm.OpDeleteName, name)
	}
}

// loadPrivateName pushes the private name #name of the innermost class
// declaring it.
func (c *Compiler) loadPrivateName(name string) {
	r := c.scope.Resolve("#" + name)
	if r.kind != refLocal {
		c.errorf("private name #%s is not defined", name)
		c.emit(vm.OpUndefined)
		return
	}
	c.emit(vm.OpGetLocal, r.depth, r.binding.Slot)
}

// --- References ---

type targetKind int

const (
	targetName    targetKind = iota
	targetMember             // obj.name
	targetIndex              // obj[key]
	targetSuper              // super.name, super[key]
	targetPrivate            // obj.#name
)

// reference is an assignment target whose base values are on the stack.
type reference struct {
	kind  targetKind
	name  string
	bases int
}

// prepareReference evaluates the base values of target. compound
// references are read before they are written, so a computed key is
// converted only once.
func (c *Compiler) prepareReference(target parser.Expression, compound bool) reference {
	c.at(target)
	switch t := target.(type) {
	case *parser.Identifier:
		return reference{kind: targetName, name: t.Value}
	case *parser.MemberExpression:
		if _, ok := t.Object.(*parser.SuperExpression); ok {
			c.emitHomeObject()
			c.emitThis()
			c.emitString(t.Property)
			return reference{kind: targetSuper, bases: 3}
		}
		c.compileExpression(t.Object)
		if t.Private {
			c.loadPrivateName(t.Property)
			return reference{kind: targetPrivate, bases: 2}
		}
		return reference{kind: targetMember, name: t.Property, bases: 1}
	case *parser.IndexExpression:
		if _, ok := t.Object.(*parser.SuperExpression); ok {
			c.emitHomeObject()
			c.emitThis()
			c.compileExpression(t.Index)
			c.emit(vm.OpToPropertyKey)
			return reference{kind: targetSuper, bases: 3}
		}
		c.compileExpression(t.Object)
		c.compileExpression(t.Index)
		if compound {
			c.emit(vm.OpToPropertyKey)
		}
		return reference{kind: targetIndex, bases: 2}
	}
	c.errorf("invalid assignment target %T", target)
	return reference{}
}

// emitGetReference reads a prepared reference: [bases] -> [bases v].
func (c *Compiler) emitGetReference(r reference) {
	switch r.kind {
	case targetName:
		c.loadName(r.name)
	case targetMember:
		c.emit(vm.OpDup)
		c.emitName(vm.OpGetProp, r.name)
	case targetIndex:
		c.emit(vm.OpDup2)
		c.emit(vm.OpGetElem)
	case targetSuper:
		c.emit(vm.OpPick, 2)
		c.emit(vm.OpPick, 2)
		c.emit(vm.OpPick, 2)
		c.emit(vm.OpGetSuper)
	case targetPrivate:
		c.emit(vm.OpDup2)
		c.emit(vm.OpGetPrivate)
	}
}

// emitSetReference writes a prepared reference: [bases v] -> [v].
func (c *Compiler) emitSetReference(r reference) {
	switch r.kind {
	case targetName:
		c.storeName(r.name)
	case targetMember:
		c.emitName(vm.OpSetProp, r.name)
	case targetIndex:
		c.emit(vm.OpSetElem)
	case targetSuper:
		c.emit(vm.OpSetSuper)
	case targetPrivate:
		c.emit(vm.OpSetPrivate)
	}
}

// --- Assignment ---

func (c *Compiler) compileAssignment(node *parser.AssignmentExpression) {
	switch node.Operator {
	case "=":
		switch node.Target.(type) {
		case *parser.ArrayPattern, *parser.ObjectPattern:
			c.compileExpression(node.Value)
			c.emit(vm.OpDup)
			c.compileBindingTarget(node.Target, bindAssign)
			return
		}
		ref := c.prepareReference(node.Target, false)
		c.compileNamedExpression(node.Value, ref.inferredName())
		c.emitSetReference(ref)

	case "&&=", "||=", "??=":
		ref := c.prepareReference(node.Target, true)
		c.emitGetReference(ref)
		var short jumpSite
		switch node.Operator {
		case "&&=":
			short = c.emitJump(vm.OpJumpIfFalseKeep)
		case "||=":
			short = c.emitJump(vm.OpJumpIfTrueKeep)
		default:
			short = c.emitJump(vm.OpJumpIfNotNullishKeep)
		}
		c.compileNamedExpression(node.Value, ref.inferredName())
		c.emitSetReference(ref)
		end := c.emitJump(vm.OpJump)
		c.patchJump(short)
		c.emitSwapPop(ref.bases)
		c.patchJump(end)

	default:
		op, ok := binaryOps[node.Operator[:len(node.Operator)-1]]
		if !ok {
			c.errorf("unknown assignment operator %s", node.Operator)
			return
		}
		ref := c.prepareReference(node.Target, true)
		c.emitGetReference(ref)
		c.compileExpression(node.Value)
		c.emit(op)
		c.emitSetReference(ref)
	}
}

// inferredName is the name an anonymous function assigned to r takes.
func (r reference) inferredName() string {
	if r.kind == targetName {
		return r.name
	}
	return ""
}

// compileUpdate compiles ++ and --. The postfix forms keep the old
// numeric value below the reference bases:
//
//	[bases old] Rot; Pick; Inc; set; Pop -> [old]
func (c *Compiler) compileUpdate(node *parser.UpdateExpression) {
	ref := c.prepareReference(node.Target, true)
	c.emitGetReference(ref)
	c.emit(vm.OpToNumeric)
	op := vm.OpInc
	if node.Operator == "--" {
		op = vm.OpDec
	}
	if node.Prefix {
		c.emit(op)
		c.emitSetReference(ref)
		return
	}
	c.emitRotate(ref.bases)
	c.emit(vm.OpPick, ref.bases)
	c.emit(op)
	c.emitSetReference(ref)
	c.emit(vm.OpPop)
}
