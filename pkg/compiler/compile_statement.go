package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

func (c *Compiler) compileStatements(list []parser.Statement) {
	for _, s := range list {
		c.compileStatement(s)
	}
}

func (c *Compiler) compileStatement(node parser.Statement) {
	c.at(node)
	switch node := node.(type) {
	case *parser.ExpressionStatement:
		c.compileExpression(node.Expression)
		if c.completion {
			c.emit(vm.OpSetCompletion)
		} else {
			c.emit(vm.OpPop)
		}
	case *parser.VarDeclaration:
		c.compileVarDeclaration(node)
	case *parser.FunctionDeclaration:
		c.compileFunctionDeclaration(node)
	case *parser.ClassDeclaration:
		c.compileClass(node.Class, node.Class.Name.Value)
		c.emitInitBinding(node.Class.Name.Value)
	case *parser.BlockStatement:
		c.compileBlock(node.Body)
	case *parser.EmptyStatement:
	case *parser.DebuggerStatement:
		c.emit(vm.OpDebugger)
	case *parser.IfStatement:
		c.compileIfStatement(node)
	case *parser.WhileStatement, *parser.DoWhileStatement, *parser.ForStatement,
		*parser.ForInStatement, *parser.ForOfStatement:
		c.compileLoop(node, nil)
	case *parser.SwitchStatement:
		c.compileSwitchStatement(node, nil)
	case *parser.LabeledStatement:
		c.compileLabeledStatement(node)
	case *parser.BreakStatement:
		c.compileJumpOut(node.Label, false)
	case *parser.ContinueStatement:
		c.compileJumpOut(node.Label, true)
	case *parser.ReturnStatement:
		c.compileReturnStatement(node)
	case *parser.ThrowStatement:
		c.compileExpression(node.Argument)
		c.emit(vm.OpThrow)
	case *parser.TryStatement:
		c.compileTryStatement(node)
	case *parser.WithStatement:
		c.compileWithStatement(node)
	default:
		c.errorf("unsupported statement %T", node)
	}
}

// clearCompletion resets the completion value before statements whose
// completion is undefined when their body produces none.
func (c *Compiler) clearCompletion() {
	if c.completion {
		c.emit(vm.OpUndefined)
		c.emit(vm.OpSetCompletion)
	}
}

// --- Blocks and declarations ---

// compileBlock compiles a statement list in its own lexical environment
// when it declares anything.
func (c *Compiler) compileBlock(list []parser.Statement) {
	decls := lexicalDeclarations(list, false)
	if len(decls) == 0 {
		c.compileStatements(list)
		return
	}
	scope := NewScope(vm.ScopeBlock, c.scope)
	c.defineLexicals(scope, decls)
	ctl := c.enterScope(scope)
	c.hoistBlockFunctions(decls)
	c.compileStatements(list)
	c.leaveScope(ctl)
}

// enterScope pushes the environment of scope, which must already hold
// its bindings.
func (c *Compiler) enterScope(scope *Scope) *control {
	ctl := c.pushControl(ctlEnv, nil)
	c.emit(vm.OpPushEnv, int(c.chunk.AddScope(scope.Info())))
	c.scope = scope
	return ctl
}

func (c *Compiler) leaveScope(ctl *control) {
	c.emit(vm.OpPopEnv)
	c.scope = ctl.scope
	c.popControl(ctl)
}

// hoistBlockFunctions initializes the function declarations of a block on
// entry. The last declaration of a name wins.
func (c *Compiler) hoistBlockFunctions(decls []lexicalDecl) {
	var fns []*parser.FunctionLiteral
	for _, d := range decls {
		if d.kind == declFunction {
			fns = append(fns, d.fn)
		}
	}
	for _, fn := range lastDeclarations(fns) {
		c.emitClosure(fn, fn.Name.Value)
		c.emitInitBinding(fn.Name.Value)
	}
}

// compileFunctionDeclaration runs where a declaration appears in the
// statement list. Functions are hoisted, so only the sloppy mode copy of
// a block level function into its var binding happens here.
func (c *Compiler) compileFunctionDeclaration(node *parser.FunctionDeclaration) {
	fn := node.Function
	if !c.annexB[fn] {
		return
	}
	name := fn.Name.Value
	c.loadName(name)
	if c.varScope == nil {
		c.emitName(vm.OpSetGlobal, name)
	} else {
		b, _ := c.varScope.Lookup(name)
		c.emit(vm.OpSetLocal, c.scope.depthOf(c.varScope), b.Slot)
	}
	c.emit(vm.OpPop)
}

func (c *Compiler) compileVarDeclaration(node *parser.VarDeclaration) {
	for _, d := range node.Declarations {
		c.at(d)
		id, simple := d.Target.(*parser.Identifier)
		switch {
		case !node.IsLexical() && d.Init == nil:
			// var x; binds nothing at run time
		case simple:
			if d.Init == nil {
				c.emit(vm.OpUndefined)
			} else {
				c.compileNamedExpression(d.Init, id.Value)
			}
			if node.IsLexical() {
				c.emitInitBinding(id.Value)
			} else {
				c.storeName(id.Value)
				c.emit(vm.OpPop)
			}
		default:
			c.compileExpression(d.Init)
			mode := bindVar
			if node.IsLexical() {
				mode = bindInit
			}
			c.compileBindingTarget(d.Target, mode)
		}
	}
}

// --- Control statements ---

func (c *Compiler) compileIfStatement(node *parser.IfStatement) {
	c.clearCompletion()
	c.compileExpression(node.Test)
	elseJump := c.emitJump(vm.OpJumpIfFalse)
	c.compileStatement(node.Consequent)
	if node.Alternate == nil {
		c.patchJump(elseJump)
		return
	}
	endJump := c.emitJump(vm.OpJump)
	c.patchJump(elseJump)
	c.compileStatement(node.Alternate)
	c.patchJump(endJump)
}

func (c *Compiler) compileReturnStatement(node *parser.ReturnStatement) {
	if node.Argument == nil {
		c.emit(vm.OpUndefined)
	} else {
		c.compileExpression(node.Argument)
	}
	c.emitReturn()
}

func (c *Compiler) compileLabeledStatement(node *parser.LabeledStatement) {
	var labels []string
	var body parser.Statement = node
	for {
		l, ok := body.(*parser.LabeledStatement)
		if !ok {
			break
		}
		labels = append(labels, l.Label.Value)
		body = l.Body
	}
	switch body := body.(type) {
	case *parser.WhileStatement, *parser.DoWhileStatement, *parser.ForStatement,
		*parser.ForInStatement, *parser.ForOfStatement:
		c.compileLoop(body, labels)
	case *parser.SwitchStatement:
		c.compileSwitchStatement(body, labels)
	default:
		ctl := c.pushControl(ctlLabel, labels)
		c.compileStatement(body)
		c.popControl(ctl)
		c.patchJumps(ctl.breaks)
	}
}

// --- Loop Compilation ---

func (c *Compiler) compileLoop(node parser.Statement, labels []string) {
	c.at(node)
	c.clearCompletion()
	switch node := node.(type) {
	case *parser.WhileStatement:
		c.compileWhileStatement(node, labels)
	case *parser.DoWhileStatement:
		c.compileDoWhileStatement(node, labels)
	case *parser.ForStatement:
		c.compileForStatement(node, labels)
	case *parser.ForInStatement:
		c.compileForInOf(node.Left, node.Right, node.Body, labels, false, false)
	case *parser.ForOfStatement:
		c.compileForInOf(node.Left, node.Right, node.Body, labels, true, node.Await)
	}
}

// isConstantTrue reports tests that need no code.
func isConstantTrue(e parser.Expression) bool {
	switch t := e.(type) {
	case *parser.BooleanLiteral:
		return t.Value
	case *parser.NumberLiteral:
		return t.Value != 0 && t.Value == t.Value
	}
	return false
}

// compileLoopTest emits the test of a loop, returning whether an exit
// jump was emitted.
func (c *Compiler) compileLoopTest(test parser.Expression) (jumpSite, bool) {
	if test == nil || isConstantTrue(test) {
		return jumpSite{}, false
	}
	c.compileExpression(test)
	return c.emitJump(vm.OpJumpIfFalse), true
}

func (c *Compiler) compileWhileStatement(node *parser.WhileStatement, labels []string) {
	ctl := c.pushControl(ctlLoop, labels)
	top := c.label()
	ctl.continueStart = top
	exit, hasExit := c.compileLoopTest(node.Test)
	c.compileStatement(node.Body)
	c.emitLoop(top)
	if hasExit {
		c.patchJump(exit)
	}
	c.popControl(ctl)
	c.patchJumps(ctl.breaks)
}

func (c *Compiler) compileDoWhileStatement(node *parser.DoWhileStatement, labels []string) {
	ctl := c.pushControl(ctlLoop, labels)
	top := c.label()
	c.compileStatement(node.Body)
	c.patchJumps(ctl.continues)
	if isConstantTrue(node.Test) {
		c.emitLoop(top)
	} else {
		c.compileExpression(node.Test)
		exit := c.emitJump(vm.OpJumpIfFalse)
		c.emitLoop(top)
		c.patchJump(exit)
	}
	c.popControl(ctl)
	c.patchJumps(ctl.breaks)
}

func (c *Compiler) compileForStatement(node *parser.ForStatement, labels []string) {
	var envCtl *control
	perIteration := false
	switch init := node.Init.(type) {
	case nil:
	case *parser.VarDeclaration:
		if init.IsLexical() {
			decls := lexicalDeclarations([]parser.Statement{init}, false)
			scope := NewScope(vm.ScopeBlock, c.scope)
			c.defineLexicals(scope, decls)
			envCtl = c.enterScope(scope)
			perIteration = init.Kind == "let" && containsClosure(init, node.Test, node.Update, node.Body)
		}
		c.compileVarDeclaration(init)
	case parser.Expression:
		c.compileExpression(init)
		c.emit(vm.OpPop)
	}

	if perIteration {
		c.emit(vm.OpCopyEnv)
	}
	ctl := c.pushControl(ctlLoop, labels)
	top := c.label()
	exit, hasExit := c.compileLoopTest(node.Test)
	c.compileStatement(node.Body)
	c.patchJumps(ctl.continues)
	if perIteration {
		c.emit(vm.OpCopyEnv)
	}
	if node.Update != nil {
		c.compileExpression(node.Update)
		c.emit(vm.OpPop)
	}
	c.emitLoop(top)
	if hasExit {
		c.patchJump(exit)
	}
	c.popControl(ctl)
	c.patchJumps(ctl.breaks)
	if envCtl != nil {
		c.leaveScope(envCtl)
	}
}

// --- Switch ---

func (c *Compiler) compileSwitchStatement(node *parser.SwitchStatement, labels []string) {
	c.clearCompletion()
	ctl := c.pushControl(ctlSwitch, labels)
	c.compileExpression(node.Discriminant)

	var all []parser.Statement
	for _, sc := range node.Cases {
		all = append(all, sc.Body...)
	}
	var envCtl *control
	if decls := lexicalDeclarations(all, false); len(decls) > 0 {
		scope := NewScope(vm.ScopeBlock, c.scope)
		c.defineLexicals(scope, decls)
		envCtl = c.enterScope(scope)
		c.hoistBlockFunctions(decls)
	}

	caseJumps := make([]jumpSite, len(node.Cases))
	defaultCase := -1
	for i, sc := range node.Cases {
		if sc.Test == nil {
			defaultCase = i
			continue
		}
		c.atToken(sc.Token)
		c.emit(vm.OpDup)
		c.compileExpression(sc.Test)
		c.emit(vm.OpStrictEq)
		caseJumps[i] = c.emitJump(vm.OpJumpIfTrue)
	}
	noMatch := c.emitJump(vm.OpJump)

	for i, sc := range node.Cases {
		if i == defaultCase {
			c.patchJump(noMatch)
		} else {
			c.patchJump(caseJumps[i])
		}
		c.compileStatements(sc.Body)
	}
	if defaultCase < 0 {
		c.patchJump(noMatch)
	}

	if envCtl != nil {
		c.leaveScope(envCtl)
	}
	c.emit(vm.OpPop)
	c.popControl(ctl)
	c.patchJumps(ctl.breaks)
}
