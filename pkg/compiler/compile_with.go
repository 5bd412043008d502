package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// compileWithStatement pushes an object environment for the body. Names
// resolved inside it are looked up dynamically.
func (c *Compiler) compileWithStatement(node *parser.WithStatement) {
	c.clearCompletion()
	c.compileExpression(node.Object)
	c.emit(vm.OpPushWith)
	ctl := c.pushControl(ctlEnv, nil)
	c.scope = NewScope(vm.ScopeWith, c.scope)
	c.compileStatement(node.Body)
	c.leaveScope(ctl)
}
