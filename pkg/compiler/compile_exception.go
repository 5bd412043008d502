package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// compileTryStatement lays out a try statement as
//
//	try block                 guarded by catch and finally
//	Jump end1
//	catch: bind param; body   guarded by finally
//	end1: finally; Jump end2
//	finally handler: finally; Throw
//	end2:
//
// Early exits from the guarded code run the finally block inline.
func (c *Compiler) compileTryStatement(node *parser.TryStatement) {
	c.clearCompletion()

	var fctl *control
	var fregion *region
	if node.Finalizer != nil {
		fctl = c.pushControl(ctlFinally, nil)
		fctl.finally = node.Finalizer
		fregion = c.openRegion(true)
		fctl.regions = append(fctl.regions, fregion)
	}

	if node.Handler == nil {
		c.compileBlock(node.Block.Body)
	} else {
		tctl := c.pushControl(ctlTry, nil)
		cregion := c.openRegion(false)
		tctl.regions = append(tctl.regions, cregion)
		c.compileBlock(node.Block.Body)
		c.suspendRegion(cregion)
		c.popControl(tctl)

		end := c.emitJump(vm.OpJump)
		handler := c.enterHandler(cregion)
		c.compileCatchClause(node)
		c.addHandler(cregion, handler)
		c.patchJump(end)
	}

	if fctl == nil {
		return
	}
	c.suspendRegion(fregion)
	c.popControl(fctl)

	c.compileFinallyBlock(node.Finalizer)
	end := c.emitJump(vm.OpJump)

	handler := c.enterHandler(fregion)
	vctl := c.pushControl(ctlValue, nil)
	vctl.height = c.height - 1
	c.compileFinallyBlock(node.Finalizer)
	c.popControl(vctl)
	c.emit(vm.OpThrow)
	c.addHandler(fregion, handler)
	c.patchJump(end)
}

// compileCatchClause binds the thrown value on top of the stack and
// compiles the catch block.
func (c *Compiler) compileCatchClause(node *parser.TryStatement) {
	if node.Param == nil {
		c.emit(vm.OpPop)
		c.compileBlock(node.Handler.Body)
		return
	}
	scope := NewScope(vm.ScopeCatch, c.scope)
	flags := vm.BindingMutable
	if _, simple := node.Param.(*parser.Identifier); !simple {
		flags |= vm.BindingLexical
	}
	for _, id := range parser.BoundNames(node.Param) {
		scope.Define(id.Value, flags)
	}
	ctl := c.enterScope(scope)
	c.compileBindingTarget(node.Param, bindInit)
	c.compileBlock(node.Handler.Body)
	c.leaveScope(ctl)
}

// compileFinallyBlock compiles a finally block, which never changes the
// completion value of the statement.
func (c *Compiler) compileFinallyBlock(block *parser.BlockStatement) {
	saved := c.completion
	c.completion = false
	c.compileBlock(block.Body)
	c.completion = saved
}
