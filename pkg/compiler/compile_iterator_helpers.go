package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// compileForInOf compiles for-in, for-of and for await loops. The loop
// keeps its iterator on the stack; the body of a for-of loop is guarded
// so that abrupt completions close the iterator.
//
//	right; GetIterator | ForInKeys
//	top:  step exit            [iter v]
//	      bind left; body      guarded
//	      Loop top
//	exit: Pop
func (c *Compiler) compileForInOf(left parser.Node, right parser.Expression, body parser.Statement, labels []string, isOf, isAwait bool) {
	decl, _ := left.(*parser.VarDeclaration)
	lexical := decl != nil && decl.IsLexical()
	var names []string
	if decl != nil {
		for _, id := range parser.BoundNames(decl.Declarations[0].Target) {
			names = append(names, id.Value)
		}
		// for (var x = init in obj) in sloppy code
		if d := decl.Declarations[0]; !lexical && d.Init != nil {
			if id, ok := d.Target.(*parser.Identifier); ok {
				c.compileNamedExpression(d.Init, id.Value)
				c.storeName(id.Value)
				c.emit(vm.OpPop)
			}
		}
	}

	// the bound names are in their temporal dead zone while the right
	// side is evaluated
	if lexical && len(names) > 0 {
		tdz := NewScope(vm.ScopeBlock, c.scope)
		for _, n := range names {
			tdz.Define(n, vm.BindingLexical|vm.BindingMutable)
		}
		envCtl := c.enterScope(tdz)
		c.compileExpression(right)
		c.leaveScope(envCtl)
	} else {
		c.compileExpression(right)
	}

	if isOf {
		async := 0
		if isAwait {
			async = 1
		}
		c.emit(vm.OpGetIterator, async)
	} else {
		c.emit(vm.OpForInKeys)
	}

	ctl := c.pushControl(ctlLoop, labels)
	ctl.height = c.height - 1
	if isOf {
		ctl.iter = iterSync
		if isAwait {
			ctl.iter = iterAsync
		}
	}
	top := c.label()
	ctl.continueStart = top

	var exit jumpSite
	switch {
	case !isOf:
		exit = c.emitJump(vm.OpForInNext)
	case isAwait:
		c.emit(vm.OpIteratorNext)
		c.emit(vm.OpAwait)
		exit = c.emitJump(vm.OpIteratorComplete)
	default:
		exit = c.emitJump(vm.OpIteratorStep)
	}

	var guard *region
	if isOf {
		guard = c.openRegion(true)
		guard.height = c.height - 1
		ctl.regions = append(ctl.regions, guard)
	}

	var envCtl *control
	if lexical {
		scope := NewScope(vm.ScopeBlock, c.scope)
		flags := vm.BindingLexical | vm.BindingMutable
		if decl.Kind == "const" {
			flags = vm.BindingLexical
		}
		for _, n := range names {
			scope.Define(n, flags)
		}
		envCtl = c.enterScope(scope)
	}

	if decl != nil {
		mode := bindVar
		if lexical {
			mode = bindInit
		}
		c.compileBindingTarget(decl.Declarations[0].Target, mode)
	} else {
		c.compileBindingTarget(left.(parser.Expression), bindAssign)
	}
	c.compileStatement(body)
	if envCtl != nil {
		c.leaveScope(envCtl)
	}
	if guard != nil {
		c.suspendRegion(guard)
	}
	c.emitLoop(top)

	c.patchJump(exit)
	c.emit(vm.OpPop)
	c.popControl(ctl)
	c.patchJumps(ctl.breaks)

	if guard != nil {
		skip := c.emitJump(vm.OpJump)
		handler := c.enterHandler(guard)
		if isAwait {
			c.emitAsyncCloseAbrupt()
		} else {
			c.emit(vm.OpSwap)
			c.emit(vm.OpIteratorCloseAbrupt)
			c.emit(vm.OpThrow)
		}
		c.addHandler(guard, handler)
		c.patchJump(skip)
	}
}

// emitAsyncCloseAbrupt is the handler body that closes an async iterator
// below a thrown value and rethrows it. Failures of return() are dropped.
//
//	[iter exc] Swap; guarded { CallReturn; Await; CheckObject; Pop }; Throw
//	handler:   [exc err] Pop; Throw
func (c *Compiler) emitAsyncCloseAbrupt() {
	c.emit(vm.OpSwap)
	inner := c.openRegion(false)
	inner.height = c.height - 1
	c.emitAsyncIteratorClose()
	c.suspendRegion(inner)
	c.emit(vm.OpThrow)
	handler := c.enterHandler(inner)
	c.emit(vm.OpPop)
	c.emit(vm.OpThrow)
	c.addHandler(inner, handler)
}

// compileSpreadArray evaluates a list that may contain spread elements
// into a new array.
func (c *Compiler) compileSpreadArray(list []parser.Expression) {
	c.emit(vm.OpNewArray)
	for _, e := range list {
		if sp, ok := e.(*parser.SpreadElement); ok {
			c.compileExpression(sp.Argument)
			c.emit(vm.OpArraySpread)
			continue
		}
		c.compileExpression(e)
		c.emit(vm.OpArrayPush)
	}
}

// hasSpread reports whether an argument list needs array evaluation.
func hasSpread(list []parser.Expression) bool {
	for _, e := range list {
		if _, ok := e.(*parser.SpreadElement); ok {
			return true
		}
	}
	return false
}

// compileYield compiles yield and yield*. Async generators await the
// operand of a plain yield before suspending.
func (c *Compiler) compileYield(node *parser.YieldExpression) {
	if node.Delegate {
		c.compileExpression(node.Argument)
		async := 0
		if c.async {
			async = 1
		}
		c.emit(vm.OpGetIterator, async)
		c.emit(vm.OpUndefined)
		c.emitNumber(vm.ResumeNext)
		c.emit(vm.OpYieldStar)
		return
	}
	if node.Argument == nil {
		c.emit(vm.OpUndefined)
	} else {
		c.compileExpression(node.Argument)
	}
	if c.async {
		c.emit(vm.OpAwait)
	}
	c.emit(vm.OpYield)
}
