package compiler

import (
	"ecmavm/pkg/vm"
)

// --- Bytecode Emission Helpers ---

// emit writes one instruction and tracks the operand stack height.
// Jump offsets are written as placeholders by emitJump instead.
func (c *Compiler) emit(op vm.OpCode, operands ...int) int {
	pc := len(c.chunk.Code)
	widths := op.OperandWidths()
	if len(operands) != len(widths) {
		c.errorf("%s takes %d operands, got %d", op, len(widths), len(operands))
		return pc
	}
	c.chunk.WriteOpCode(op, c.line, c.col)
	for i, w := range widths {
		v := operands[i]
		if w == 1 {
			if v < 0 || v > 0xff {
				c.errorf("%s operand %d out of range", op, v)
			}
			c.chunk.WriteUint8(byte(v))
		} else {
			if v < 0 || v > 0xffff {
				c.errorf("%s operand %d out of range", op, v)
			}
			c.chunk.WriteUint16(uint16(v))
		}
	}

	pop, push := op.StackEffect(operands)
	if !c.dead && c.height < pop {
		c.errorf("%s needs %d stack values, have %d", op, pop, c.height)
	}
	c.height += push - pop
	c.dead = false

	switch op {
	case vm.OpPushEnv, vm.OpPushWith:
		c.envDepth++
	case vm.OpPopEnv:
		c.envDepth--
	case vm.OpJump, vm.OpLoop, vm.OpReturn, vm.OpThrow, vm.OpThrowError:
		c.dead = true
	}
	debugPrintf("%04d %-24s %v h=%d\n", pc, op, operands, c.height)
	return pc
}

// jumpSite is an emitted forward jump awaiting its target.
type jumpSite struct {
	operand int // offset of the uint16 jump operand
	end     int // offset just past the instruction
	height  int // stack height on the taken path
	env     int // environment depth on the taken path
}

// emitJump emits a forward jump. For OpJumpIfNullishPop the pop count
// comes first in operands.
func (c *Compiler) emitJump(op vm.OpCode, operands ...int) jumpSite {
	all := append(append([]int(nil), operands...), 0xffff)
	pop, push := op.BranchEffect(all)
	taken := c.height - pop + push
	env := c.envDepth
	c.emit(op, all...)
	end := len(c.chunk.Code)
	return jumpSite{operand: end - 2, end: end, height: taken, env: env}
}

// patchJump points j at the current offset. Unreachable code adopts the
// jump's stack height; reachable code must agree with it.
func (c *Compiler) patchJump(j jumpSite) {
	offset := len(c.chunk.Code) - j.end
	if offset > 0xffff {
		c.errorf("jump of %d bytes is too far", offset)
		return
	}
	c.chunk.PatchUint16(j.operand, uint16(offset))
	c.join(j.height, j.env)
}

// join merges a control flow edge arriving with the given height and
// environment depth into the emission point.
func (c *Compiler) join(height, env int) {
	if c.dead {
		c.height, c.envDepth, c.dead = height, env, false
		return
	}
	if c.height != height {
		c.errorf("stack height %d at join, expected %d", height, c.height)
	}
}

func (c *Compiler) patchJumps(js []jumpSite) {
	for _, j := range js {
		c.patchJump(j)
	}
}

// emitLoop jumps backward to start.
func (c *Compiler) emitLoop(start int) {
	offset := len(c.chunk.Code) + vm.OpLoop.Size() - start
	if offset > 0xffff {
		c.errorf("loop body of %d bytes is too large", offset)
		offset = 0
	}
	c.emit(vm.OpLoop, offset)
}

// label returns the current offset as a backward jump target.
func (c *Compiler) label() int { return len(c.chunk.Code) }

// --- Constants and names ---

func (c *Compiler) constant(v vm.Value) int {
	if len(c.chunk.Constants) >= 0xffff {
		c.errorf("too many constants in one function")
		return 0
	}
	return int(c.chunk.AddConstant(v))
}

func (c *Compiler) emitConstant(v vm.Value) {
	c.emit(vm.OpConstant, c.constant(v))
}

func (c *Compiler) emitString(s string) {
	c.emitConstant(vm.StringValue(s))
}

func (c *Compiler) emitNumber(f float64) {
	c.emitConstant(vm.NumberValue(f))
}

// emitName emits op with the constant index of name as its operand.
func (c *Compiler) emitName(op vm.OpCode, name string) {
	c.emit(op, c.constant(vm.StringValue(name)))
}

// emitThrow emits code that throws a new error of kind. Emission
// continues with the current stack height.
func (c *Compiler) emitThrow(kind byte, msg string) {
	h := c.height
	c.emit(vm.OpThrowError, int(kind), c.constant(vm.StringValue(msg)))
	c.height, c.dead = h, false
}

// emitSwapPop drops the value below the top n times.
func (c *Compiler) emitSwapPop(n int) {
	for i := 0; i < n; i++ {
		c.emit(vm.OpSwap)
		c.emit(vm.OpPop)
	}
}

// emitRotate moves the top value below the n values beneath it.
func (c *Compiler) emitRotate(n int) {
	switch n {
	case 0:
	case 1:
		c.emit(vm.OpSwap)
	case 2:
		c.emit(vm.OpRot3)
	case 3:
		c.emit(vm.OpRot4)
	default:
		c.errorf("cannot rotate %d values", n)
	}
}

func (c *Compiler) emitPops(n int) {
	for i := 0; i < n; i++ {
		c.emit(vm.OpPop)
	}
}

// --- Exception regions ---

// region is a protected range of code, possibly split into several
// pieces where control leaves it through cleanup code.
type region struct {
	ranges    [][2]int
	start     int
	open      bool
	height    int
	env       int
	isFinally bool
}

// openRegion starts protecting code at the current offset with the current
// stack height and environment depth.
func (c *Compiler) openRegion(isFinally bool) *region {
	return &region{start: c.label(), open: true, height: c.height, env: c.envDepth, isFinally: isFinally}
}

func (c *Compiler) suspendRegion(r *region) bool {
	if r == nil || !r.open {
		return false
	}
	if end := c.label(); end > r.start {
		r.ranges = append(r.ranges, [2]int{r.start, end})
	}
	r.open = false
	return true
}

func (c *Compiler) resumeRegion(r *region) {
	r.start = c.label()
	r.open = true
}

// closeRegion ends r and registers handlerPC for its ranges. Handlers are
// registered when their construct is complete, which orders inner
// handlers before outer ones.
func (c *Compiler) closeRegion(r *region) {
	c.suspendRegion(r)
}

func (c *Compiler) addHandler(r *region, handlerPC int) {
	for _, rg := range r.ranges {
		c.chunk.ExceptionTable = append(c.chunk.ExceptionTable, vm.ExceptionHandler{
			TryStart:   rg[0],
			TryEnd:     rg[1],
			HandlerPC:  handlerPC,
			StackDepth: r.height,
			EnvDepth:   r.env,
			IsFinally:  r.isFinally,
		})
	}
}

// enterHandler starts the code of a handler for r: the thrown value is on
// top of the stack saved by the region.
func (c *Compiler) enterHandler(r *region) int {
	c.height, c.envDepth, c.dead = r.height+1, r.env, false
	return c.label()
}
