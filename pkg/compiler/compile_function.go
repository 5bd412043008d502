package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

var functionKinds = map[parser.FunctionKind]vm.FunctionKind{
	parser.FuncNormal:             vm.FuncNormal,
	parser.FuncArrow:              vm.FuncArrow,
	parser.FuncMethod:             vm.FuncMethod,
	parser.FuncGetter:             vm.FuncGetter,
	parser.FuncSetter:             vm.FuncSetter,
	parser.FuncClassConstructor:   vm.FuncClassConstructor,
	parser.FuncDerivedConstructor: vm.FuncDerivedConstructor,
	parser.FuncClassInitializer:   vm.FuncMethod,
}

// emitClosure compiles fn and pushes a closure of it. name is used when
// the function has none of its own.
func (c *Compiler) emitClosure(fn *parser.FunctionLiteral, name string) {
	t := c.compileFunction(fn, name, false)
	c.emit(vm.OpClosure, int(c.chunk.AddFunction(t)))
}

// emitFunctionExpression is emitClosure for function expressions, whose
// own name is bound inside the function.
func (c *Compiler) emitFunctionExpression(fn *parser.FunctionLiteral, name string) {
	t := c.compileFunction(fn, name, fn.Name != nil && !fn.IsArrow())
	c.emit(vm.OpClosure, int(c.chunk.AddFunction(t)))
}

// expectedArgs is the length of a function: the parameters before the
// first default or rest.
func expectedArgs(fn *parser.FunctionLiteral) int {
	n := 0
	for _, p := range fn.Params {
		if _, ok := p.(*parser.AssignmentPattern); ok {
			break
		}
		n++
	}
	return n
}

// compileFunction compiles fn into a template with a nested compiler.
func (c *Compiler) compileFunction(fn *parser.FunctionLiteral, name string, selfBinding bool) *vm.FunctionTemplate {
	fc := newFunctionCompiler(c)
	fc.kind = functionKinds[fn.Kind]
	fc.async, fc.generator = fn.Async, fn.Generator
	fc.strict = fn.Strict || c.strict
	if fn.Name != nil {
		name = fn.Name.Value
	}
	scope := newFunctionScope(c.scope)
	fc.scope, fc.funcScope = scope, scope
	fc.tmpl = &vm.FunctionTemplate{
		Name:       name,
		Kind:       fc.kind,
		Strict:     fc.strict,
		Async:      fn.Async,
		Generator:  fn.Generator,
		Length:     expectedArgs(fn),
		Scope:      scope.Info(),
		Chunk:      fc.chunk,
		Source:     fn.Source,
		SourceName: c.opts.SourceName,
	}
	fc.at(fn)
	fc.compileFunctionBody(fn, selfBinding)
	fc.finish()
	debugPrintf("compiled function %q: %d bytes\n", name, len(fc.chunk.Code))
	return fc.tmpl
}

// compileFunctionBody emits the prologue binding parameters and
// declarations, then the body.
func (c *Compiler) compileFunctionBody(fn *parser.FunctionLiteral, selfBinding bool) {
	scope := c.funcScope
	u := analyzeUsage(fn)
	arrow := fn.IsArrow()
	var body []parser.Statement
	if fn.Body != nil {
		body = fn.Body.Body
	}

	// names the prologue must know before emitting anything
	var params []string
	isParam := make(map[string]bool)
	for _, p := range fn.Params {
		for _, id := range parser.BoundNames(p) {
			params = append(params, id.Value)
			isParam[id.Value] = true
		}
	}
	if fn.Rest != nil {
		for _, id := range parser.BoundNames(fn.Rest) {
			params = append(params, id.Value)
			isParam[id.Value] = true
		}
	}
	lexicals := lexicalDeclarations(body, true)
	excluded := make(map[string]bool)
	for n := range isParam {
		excluded[n] = true
	}
	declared := make(map[string]bool)
	for _, d := range lexicals {
		excluded[d.name] = true
		declared[d.name] = true
	}
	vars := collectVarScope(body, c.strict, excluded)
	c.annexB = vars.annexB
	for _, n := range vars.names {
		declared[n] = true
	}

	shadowed := false
	for _, d := range lexicals {
		shadowed = shadowed || d.name == "arguments"
	}
	for _, f := range functionDeclarations(body) {
		shadowed = shadowed || f.Name.Value == "arguments"
	}
	needsArguments := !arrow && u.arguments && !isParam["arguments"] &&
		(!fn.SimpleParams || !shadowed) && c.kind != vm.FuncFieldInit

	// hidden bindings read by nested arrow functions
	if c.kind == vm.FuncDerivedConstructor {
		scope.DefineHidden("%this", vm.BindingLexical|vm.BindingMutable)
	}
	if !arrow {
		c.bindActivation(u)
	}
	if c.kind == vm.FuncDerivedConstructor && u.arrowSuperCall {
		b := scope.DefineHidden("%ctor", vm.BindingMutable)
		c.emit(vm.OpCallee)
		c.emit(vm.OpInitLocal, 0, b.Slot)
	}
	if c.kind == vm.FuncClassConstructor {
		c.emit(vm.OpThisArg)
		c.emit(vm.OpCallee)
		c.emit(vm.OpInitFields)
		c.emit(vm.OpPop)
	}

	// parameters
	paramFlags := vm.BindingMutable
	if !fn.SimpleParams {
		paramFlags |= vm.BindingLexical
	}
	for _, n := range params {
		scope.Define(n, paramFlags)
	}
	if selfBinding && !isParam[fn.Name.Value] && !declared[fn.Name.Value] &&
		!(needsArguments && fn.Name.Value == "arguments") {
		b := scope.Define(fn.Name.Value, vm.BindingFuncName)
		c.emit(vm.OpCallee)
		c.emit(vm.OpInitLocal, 0, b.Slot)
	}
	var argsBinding *Binding
	if needsArguments {
		argsBinding = scope.Define("arguments", vm.BindingMutable)
	}

	if fn.SimpleParams {
		slots := make([]int, len(fn.Params))
		last := make(map[string]int)
		for i, p := range fn.Params {
			last[p.(*parser.Identifier).Value] = i
		}
		for i, p := range fn.Params {
			name := p.(*parser.Identifier).Value
			b, _ := scope.Lookup(name)
			slots[i] = -1
			if last[name] == i {
				slots[i] = b.Slot
				c.emit(vm.OpGetArg, i)
				c.emit(vm.OpInitLocal, 0, b.Slot)
			}
		}
		if argsBinding != nil {
			mapped := 0
			if !c.strict {
				mapped = 1
				c.tmpl.ParamSlots = slots
			}
			c.emit(vm.OpCreateArguments, mapped)
			c.emit(vm.OpInitLocal, 0, argsBinding.Slot)
		}
	} else {
		if argsBinding != nil {
			c.emit(vm.OpCreateArguments, 0)
			c.emit(vm.OpInitLocal, 0, argsBinding.Slot)
		}
		for i, p := range fn.Params {
			c.at(p)
			c.emit(vm.OpGetArg, i)
			target := p
			if ap, ok := p.(*parser.AssignmentPattern); ok {
				target = ap.Target
				skip := c.emitJump(vm.OpJumpIfNotUndefined)
				c.compileNamedExpression(ap.Default, bindingName(ap.Target))
				c.patchJump(skip)
			}
			c.compileBindingTarget(target, bindInit)
		}
		if fn.Rest != nil {
			c.emit(vm.OpRestArgs, len(fn.Params))
			c.compileBindingTarget(fn.Rest, bindInit)
		}
	}

	// var scoped declarations; parameter expressions get a separate
	// environment for the body
	varScope := scope
	if !fn.SimpleParams {
		varScope = NewScope(vm.ScopeBlock, scope)
		for _, n := range vars.names {
			varScope.Define(n, vm.BindingMutable)
		}
		c.defineLexicals(varScope, lexicals)
		if varScope.HasEnv() {
			c.emit(vm.OpPushEnv, int(c.chunk.AddScope(varScope.Info())))
			c.scope = varScope
			for _, n := range vars.names {
				if b, ok := scope.Lookup(n); ok && (isParam[n] || b == argsBinding) {
					vb, _ := varScope.Lookup(n)
					c.emit(vm.OpGetLocal, 1, b.Slot)
					c.emit(vm.OpInitLocal, 0, vb.Slot)
				}
			}
		} else {
			varScope = scope
		}
	} else {
		for _, n := range vars.names {
			scope.Define(n, vm.BindingMutable)
		}
		c.defineLexicals(scope, lexicals)
	}
	c.varScope = varScope

	for _, f := range lastDeclarations(functionDeclarations(body)) {
		c.emitClosure(f, f.Name.Value)
		c.emitInitBinding(f.Name.Value)
	}

	if c.generator {
		c.emit(vm.OpGeneratorStart)
		c.emit(vm.OpPop)
	}

	c.compileStatements(body)
	if !c.dead {
		c.emit(vm.OpUndefined)
		c.emitReturn()
	}
}

// bindActivation gives nested arrow functions access to the this value,
// new.target and home object of a non-arrow activation.
func (c *Compiler) bindActivation(u usage) {
	hidden := func(name string, op vm.OpCode) {
		b := c.funcScope.DefineHidden(name, vm.BindingMutable)
		c.emit(op)
		c.emit(vm.OpInitLocal, 0, b.Slot)
	}
	if u.arrowThis && c.kind != vm.FuncDerivedConstructor {
		hidden("%this", vm.OpThisArg)
	}
	if u.arrowNewTarget {
		hidden("%newtarget", vm.OpNewTarget)
	}
	if u.arrowHome {
		hidden("%home", vm.OpHomeObject)
	}
}

// bindingName is the name an anonymous function default takes from a
// simple binding target, or "".
func bindingName(target parser.Expression) string {
	if id, ok := target.(*parser.Identifier); ok {
		return id.Value
	}
	return ""
}

// --- this, new.target and super ---

// emitThis pushes the this value of the running code.
func (c *Compiler) emitThis() {
	switch c.kind {
	case vm.FuncDerivedConstructor:
		c.emitHidden("%this")
	case vm.FuncArrow:
		if !c.emitHidden("%this") {
			c.emit(vm.OpGlobalThis)
		}
	case vm.FuncScript:
		c.emit(vm.OpGlobalThis)
	default:
		c.emit(vm.OpThisArg)
	}
}

func (c *Compiler) emitNewTarget() {
	if c.kind != vm.FuncArrow {
		c.emit(vm.OpNewTarget)
		return
	}
	if !c.emitHidden("%newtarget") {
		c.emit(vm.OpUndefined)
	}
}

func (c *Compiler) emitHomeObject() {
	if c.kind != vm.FuncArrow {
		c.emit(vm.OpHomeObject)
		return
	}
	if !c.emitHidden("%home") {
		c.emit(vm.OpUndefined)
	}
}

// emitHidden loads an internal binding of an enclosing function and
// reports whether it exists.
func (c *Compiler) emitHidden(name string) bool {
	r := c.scope.Resolve(name)
	if r.kind != refLocal {
		return false
	}
	c.emit(vm.OpGetLocal, r.depth, r.binding.Slot)
	return true
}

// emitThisCheck replaces an undefined return value of a derived
// constructor by its this value, which must be bound by then.
func (c *Compiler) emitThisCheck() {
	r := c.scope.Resolve("%this")
	if r.kind != refLocal {
		c.errorf("derived constructor without this binding")
		return
	}
	c.emit(vm.OpCheckDerivedReturn, r.depth, r.binding.Slot)
}

// compileSuperCall compiles super(...args):
//
//	callee newTarget args; SuperCall; BindThis; callee; InitFields
func (c *Compiler) compileSuperCall(node *parser.CallExpression) {
	c.emitActiveConstructor()
	c.emitNewTarget()
	if hasSpread(node.Arguments) || len(node.Arguments) > 255 {
		c.compileSpreadArray(node.Arguments)
		c.emit(vm.OpSuperCallSpread)
	} else {
		for _, a := range node.Arguments {
			c.compileExpression(a)
		}
		c.emit(vm.OpSuperCall, len(node.Arguments))
	}
	r := c.scope.Resolve("%this")
	if r.kind != refLocal {
		c.errorf("super call outside a derived constructor")
		return
	}
	c.emit(vm.OpBindThis, r.depth, r.binding.Slot)
	c.emitActiveConstructor()
	c.emit(vm.OpInitFields)
}

// emitActiveConstructor pushes the derived constructor a super call
// belongs to.
func (c *Compiler) emitActiveConstructor() {
	if c.kind == vm.FuncArrow {
		if !c.emitHidden("%ctor") {
			c.errorf("super call outside a derived constructor")
			c.emit(vm.OpUndefined)
		}
		return
	}
	c.emit(vm.OpCallee)
}

// compileDefaultConstructor builds the constructor of a class without
// one: a derived class forwards its arguments to the parent.
func (c *Compiler) compileDefaultConstructor(name string, derived bool, source string) *vm.FunctionTemplate {
	fc := newFunctionCompiler(c)
	fc.strict = true
	fc.kind = vm.FuncClassConstructor
	if derived {
		fc.kind = vm.FuncDerivedConstructor
	}
	scope := newFunctionScope(c.scope)
	fc.scope, fc.funcScope = scope, scope
	fc.tmpl = &vm.FunctionTemplate{
		Name:       name,
		Kind:       fc.kind,
		Strict:     true,
		Scope:      scope.Info(),
		Chunk:      fc.chunk,
		Source:     source,
		SourceName: c.opts.SourceName,
	}
	if derived {
		b := scope.DefineHidden("%this", vm.BindingLexical|vm.BindingMutable)
		fc.emit(vm.OpCallee)
		fc.emit(vm.OpNewTarget)
		fc.emit(vm.OpSuperCallForward)
		fc.emit(vm.OpBindThis, 0, b.Slot)
		fc.emit(vm.OpCallee)
		fc.emit(vm.OpInitFields)
		fc.emit(vm.OpPop)
		fc.emit(vm.OpUndefined)
		fc.emit(vm.OpCheckDerivedReturn, 0, b.Slot)
	} else {
		fc.emit(vm.OpThisArg)
		fc.emit(vm.OpCallee)
		fc.emit(vm.OpInitFields)
		fc.emit(vm.OpPop)
		fc.emit(vm.OpUndefined)
	}
	fc.emit(vm.OpReturn)
	fc.finish()
	return fc.tmpl
}
