package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// binaryOps maps the non-short-circuiting binary operators to opcodes.
// Compound assignments share it through their operator minus "=".
var binaryOps = map[string]vm.OpCode{
	"+":          vm.OpAdd,
	"-":          vm.OpSub,
	"*":          vm.OpMul,
	"/":          vm.OpDiv,
	"%":          vm.OpMod,
	"**":         vm.OpExp,
	"<<":         vm.OpShl,
	">>":         vm.OpShr,
	">>>":        vm.OpUShr,
	"&":          vm.OpBitAnd,
	"|":          vm.OpBitOr,
	"^":          vm.OpBitXor,
	"==":         vm.OpEq,
	"!=":         vm.OpNotEq,
	"===":        vm.OpStrictEq,
	"!==":        vm.OpStrictNotEq,
	"<":          vm.OpLess,
	">":          vm.OpGreater,
	"<=":         vm.OpLessEq,
	">=":         vm.OpGreaterEq,
	"instanceof": vm.OpInstanceOf,
	"in":         vm.OpIn,
}

var unaryOps = map[string]vm.OpCode{
	"-": vm.OpNeg,
	"+": vm.OpPlus,
	"!": vm.OpNot,
	"~": vm.OpBitNot,
}

// chainContext is the optional chain being compiled. Short-circuiting
// checks drop everything the chain pushed and leave undefined.
type chainContext struct {
	base  int
	jumps []jumpSite
}

// compileExpression emits code that leaves the value of node on the stack.
func (c *Compiler) compileExpression(node parser.Expression) {
	c.at(node)
	switch node := node.(type) {
	case *parser.Identifier:
		c.loadName(node.Value)
	case *parser.NumberLiteral:
		c.emitNumber(node.Value)
	case *parser.StringLiteral:
		c.emitString(node.Value)
	case *parser.BigIntLiteral:
		c.emitConstant(vm.BigIntValue(node.Value))
	case *parser.BooleanLiteral:
		if node.Value {
			c.emit(vm.OpTrue)
		} else {
			c.emit(vm.OpFalse)
		}
	case *parser.NullLiteral:
		c.emit(vm.OpNull)
	case *parser.RegexLiteral:
		c.emit(vm.OpRegExp, c.constant(vm.StringValue(node.Pattern)), c.constant(vm.StringValue(node.Flags)))
	case *parser.TemplateLiteral:
		c.compileTemplateLiteral(node)
	case *parser.TaggedTemplate:
		c.compileTaggedTemplate(node)
	case *parser.ThisExpression:
		c.emitThis()
	case *parser.MetaProperty:
		c.emitNewTarget()
	case *parser.ArrayLiteral:
		c.compileArrayLiteral(node)
	case *parser.ObjectLiteral:
		c.compileObjectLiteral(node)
	case *parser.FunctionLiteral:
		c.emitFunctionExpression(node, "")
	case *parser.ClassLiteral:
		c.compileClass(node, "")
	case *parser.PrefixExpression:
		c.compilePrefix(node)
	case *parser.UpdateExpression:
		c.compileUpdate(node)
	case *parser.InfixExpression:
		c.compileInfix(node)
	case *parser.AssignmentExpression:
		c.compileAssignment(node)
	case *parser.TernaryExpression:
		c.compileTernary(node)
	case *parser.SequenceExpression:
		for i, e := range node.Expressions {
			c.compileExpression(e)
			if i < len(node.Expressions)-1 {
				c.emit(vm.OpPop)
			}
		}
	case *parser.CallExpression:
		c.compileCall(node)
	case *parser.NewExpression:
		c.compileNew(node)
	case *parser.MemberExpression:
		c.compileMember(node)
	case *parser.IndexExpression:
		c.compileIndex(node)
	case *parser.OptionalChain:
		c.compileOptionalChain(node)
	case *parser.YieldExpression:
		c.compileYield(node)
	case *parser.AwaitExpression:
		c.compileExpression(node.Argument)
		c.emit(vm.OpAwait)
	default:
		c.errorf("unsupported expression %T", node)
		c.emit(vm.OpUndefined)
	}
}

// compileNamedExpression compiles e, giving anonymous functions and
// classes the name of the binding or property they initialize.
func (c *Compiler) compileNamedExpression(e parser.Expression, name string) {
	if name == "" || !isAnonymousFunctionDefinition(e) {
		c.compileExpression(e)
		return
	}
	c.at(e)
	switch e := e.(type) {
	case *parser.FunctionLiteral:
		c.emitFunctionExpression(e, name)
	case *parser.ClassLiteral:
		c.compileClass(e, name)
	}
}

// --- Templates ---

// compileTemplateLiteral concatenates the cooked strings with the string
// values of the substitutions.
func (c *Compiler) compileTemplateLiteral(node *parser.TemplateLiteral) {
	c.emitString(node.Quasis[0].Cooked)
	for i, e := range node.Expressions {
		c.compileExpression(e)
		c.emit(vm.OpToString)
		c.emit(vm.OpAdd)
		if q := node.Quasis[i+1].Cooked; q != "" {
			c.emitString(q)
			c.emit(vm.OpAdd)
		}
	}
}

// compileTaggedTemplate calls the tag with the frozen strings array of the
// call site followed by the substitutions.
func (c *Compiler) compileTaggedTemplate(node *parser.TaggedTemplate) {
	c.compileCallee(node.Tag)
	site := &vm.TemplateSite{
		Cooked: make([]vm.Value, len(node.Quasi.Quasis)),
		Raw:    make([]string, len(node.Quasi.Quasis)),
	}
	for i, q := range node.Quasi.Quasis {
		site.Raw[i] = q.Raw
		site.Cooked[i] = vm.Undefined
		if !q.Invalid {
			site.Cooked[i] = vm.StringValue(q.Cooked)
		}
	}
	c.at(node)
	c.emit(vm.OpTemplateObject, int(c.chunk.AddSite(site)))
	for _, e := range node.Quasi.Expressions {
		c.compileExpression(e)
	}
	argc := len(node.Quasi.Expressions) + 1
	if argc > 255 {
		c.errorf("too many template substitutions")
		return
	}
	c.emit(vm.OpCall, argc)
}

// --- Operators ---

func (c *Compiler) compilePrefix(node *parser.PrefixExpression) {
	switch node.Operator {
	case "typeof":
		if id, ok := node.Right.(*parser.Identifier); ok {
			c.compileTypeofName(id.Value)
			return
		}
		c.compileExpression(node.Right)
		c.emit(vm.OpTypeof)
	case "void":
		c.compileExpression(node.Right)
		c.emit(vm.OpPop)
		c.emit(vm.OpUndefined)
	case "delete":
		c.compileDelete(node.Right)
	default:
		op, ok := unaryOps[node.Operator]
		if !ok {
			c.errorf("unknown prefix operator %s", node.Operator)
			return
		}
		c.compileExpression(node.Right)
		c.emit(op)
	}
}

// compileDelete compiles the delete operator. Deleting anything but a
// reference evaluates the operand and yields true.
func (c *Compiler) compileDelete(target parser.Expression) {
	c.at(target)
	switch t := target.(type) {
	case *parser.Identifier:
		c.compileDeleteName(t.Value)
	case *parser.MemberExpression:
		if _, ok := t.Object.(*parser.SuperExpression); ok {
			c.emitThis()
			c.emit(vm.OpPop)
			c.emitThrow(vm.ErrorKindReference, "Unsupported reference to 'super'")
			c.emit(vm.OpTrue)
			return
		}
		c.compileExpression(t.Object)
		if t.Optional {
			c.emitChainCheck()
		}
		c.emitName(vm.OpDeleteProp, t.Property)
	case *parser.IndexExpression:
		if _, ok := t.Object.(*parser.SuperExpression); ok {
			c.emitThis()
			c.emit(vm.OpPop)
			c.compileExpression(t.Index)
			c.emit(vm.OpPop)
			c.emitThrow(vm.ErrorKindReference, "Unsupported reference to 'super'")
			c.emit(vm.OpTrue)
			return
		}
		c.compileExpression(t.Object)
		if t.Optional {
			c.emitChainCheck()
		}
		c.compileExpression(t.Index)
		c.emit(vm.OpDeleteElem)
	case *parser.OptionalChain:
		// a short-circuited chain deletes nothing and yields true
		saved := c.chain
		chain := &chainContext{base: c.height}
		c.chain = chain
		c.compileDelete(t.Expression)
		c.chain = saved
		if len(chain.jumps) == 0 {
			return
		}
		done := c.emitJump(vm.OpJump)
		c.patchJumps(chain.jumps)
		c.emit(vm.OpPop)
		c.emit(vm.OpTrue)
		c.patchJump(done)
	default:
		c.compileExpression(target)
		c.emit(vm.OpPop)
		c.emit(vm.OpTrue)
	}
}

func (c *Compiler) compileInfix(node *parser.InfixExpression) {
	switch node.Operator {
	case "&&", "||", "??":
		c.compileExpression(node.Left)
		var short jumpSite
		switch node.Operator {
		case "&&":
			short = c.emitJump(vm.OpJumpIfFalseKeep)
		case "||":
			short = c.emitJump(vm.OpJumpIfTrueKeep)
		default:
			short = c.emitJump(vm.OpJumpIfNotNullishKeep)
		}
		c.compileExpression(node.Right)
		c.patchJump(short)
		return
	}
	if pn, ok := node.Left.(*parser.PrivateName); ok && node.Operator == "in" {
		c.compileExpression(node.Right)
		c.at(node)
		c.loadPrivateName(pn.Name)
		c.emit(vm.OpHasPrivate)
		return
	}
	op, ok := binaryOps[node.Operator]
	if !ok {
		c.errorf("unknown operator %s", node.Operator)
		return
	}
	c.compileExpression(node.Left)
	c.compileExpression(node.Right)
	c.at(node)
	c.emit(op)
}

func (c *Compiler) compileTernary(node *parser.TernaryExpression) {
	c.compileExpression(node.Condition)
	alt := c.emitJump(vm.OpJumpIfFalse)
	c.compileExpression(node.Consequence)
	end := c.emitJump(vm.OpJump)
	c.patchJump(alt)
	c.compileExpression(node.Alternative)
	c.patchJump(end)
}

// --- Property access and optional chains ---

func isSuper(e parser.Expression) bool {
	_, ok := e.(*parser.SuperExpression)
	return ok
}

func (c *Compiler) compileMember(node *parser.MemberExpression) {
	if isSuper(node.Object) {
		c.emitHomeObject()
		c.emitThis()
		c.emitString(node.Property)
		c.emit(vm.OpGetSuper)
		return
	}
	c.compileExpression(node.Object)
	if node.Optional {
		c.emitChainCheck()
	}
	c.at(node)
	if node.Private {
		c.loadPrivateName(node.Property)
		c.emit(vm.OpGetPrivate)
		return
	}
	c.emitName(vm.OpGetProp, node.Property)
}

func (c *Compiler) compileIndex(node *parser.IndexExpression) {
	if isSuper(node.Object) {
		c.emitHomeObject()
		c.emitThis()
		c.compileExpression(node.Index)
		c.emit(vm.OpToPropertyKey)
		c.emit(vm.OpGetSuper)
		return
	}
	c.compileExpression(node.Object)
	if node.Optional {
		c.emitChainCheck()
	}
	c.compileExpression(node.Index)
	c.at(node)
	c.emit(vm.OpGetElem)
}

// emitChainCheck short-circuits the innermost optional chain when the
// top of the stack is nullish.
func (c *Compiler) emitChainCheck() {
	if c.chain == nil {
		c.errorf("optional access outside an optional chain")
		return
	}
	c.chain.jumps = append(c.chain.jumps, c.emitJump(vm.OpJumpIfNullishPop, c.height-c.chain.base))
}

// compileOptionalChain compiles a?.b.c; every optional link jumps to the
// end with undefined.
func (c *Compiler) compileOptionalChain(node *parser.OptionalChain) {
	saved := c.chain
	chain := &chainContext{base: c.height}
	c.chain = chain
	c.compileExpression(node.Expression)
	c.chain = saved
	c.patchJumps(chain.jumps)
}

// --- Calls ---

// compileCallee pushes the function and this value of a call:
// [] -> [fn this].
func (c *Compiler) compileCallee(callee parser.Expression) {
	c.at(callee)
	switch t := callee.(type) {
	case *parser.MemberExpression:
		if isSuper(t.Object) {
			c.compileMember(t)
			c.emitThis()
			return
		}
		c.compileExpression(t.Object)
		if t.Optional {
			c.emitChainCheck()
		}
		c.emit(vm.OpDup)
		if t.Private {
			c.loadPrivateName(t.Property)
			c.emit(vm.OpGetPrivate)
		} else {
			c.emitName(vm.OpGetProp, t.Property)
		}
		c.emit(vm.OpSwap)
	case *parser.IndexExpression:
		if isSuper(t.Object) {
			c.compileIndex(t)
			c.emitThis()
			return
		}
		c.compileExpression(t.Object)
		if t.Optional {
			c.emitChainCheck()
		}
		c.emit(vm.OpDup)
		c.compileExpression(t.Index)
		c.emit(vm.OpGetElem)
		c.emit(vm.OpSwap)
	case *parser.Identifier:
		if c.scope.Resolve(t.Value).kind == refDynamic {
			// a with object supplies the this value
			c.emitName(vm.OpGetNameCallee, t.Value)
			return
		}
		c.loadName(t.Value)
		c.emit(vm.OpUndefined)
	case *parser.OptionalChain:
		// (a?.b)() keeps the base of the chain as this
		saved := c.chain
		chain := &chainContext{base: c.height}
		c.chain = chain
		c.compileCallee(t.Expression)
		c.chain = saved
		if len(chain.jumps) == 0 {
			return
		}
		done := c.emitJump(vm.OpJump)
		c.patchJumps(chain.jumps)
		c.emit(vm.OpUndefined)
		c.patchJump(done)
	default:
		c.compileExpression(callee)
		c.emit(vm.OpUndefined)
	}
}

// compileArguments pushes an argument list and returns the argument count,
// or -1 after building an array for a spread call.
func (c *Compiler) compileArguments(args []parser.Expression) int {
	if hasSpread(args) || len(args) > 255 {
		c.compileSpreadArray(args)
		return -1
	}
	for _, a := range args {
		c.compileExpression(a)
	}
	return len(args)
}

// compileCall compiles a call. eval is not special: a call of the global
// eval function performs an indirect evaluation.
func (c *Compiler) compileCall(node *parser.CallExpression) {
	if isSuper(node.Callee) {
		c.compileSuperCall(node)
		return
	}
	c.compileCallee(node.Callee)
	if node.Optional {
		c.emit(vm.OpSwap)
		c.emitChainCheck()
		c.emit(vm.OpSwap)
	}
	argc := c.compileArguments(node.Arguments)
	c.at(node)
	if argc < 0 {
		c.emit(vm.OpCallSpread)
		return
	}
	c.emit(vm.OpCall, argc)
}

func (c *Compiler) compileNew(node *parser.NewExpression) {
	c.compileExpression(node.Callee)
	argc := c.compileArguments(node.Arguments)
	c.at(node)
	if argc < 0 {
		c.emit(vm.OpNewSpread)
		return
	}
	c.emit(vm.OpNew, argc)
}
