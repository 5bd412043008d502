package compiler

import (
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

type controlKind int

const (
	ctlLoop    controlKind = iota // iteration statement, target of break and continue
	ctlSwitch                     // target of break
	ctlLabel                      // labelled statement, target of break with its label
	ctlEnv                        // a pushed environment
	ctlFinally                    // try statement with a finally block
	ctlValue                      // values held on the stack
	ctlTry                        // try statement without finally
)

// iterKind tells how a control's stack value is disposed of when control
// leaves it early.
type iterKind int

const (
	iterNone  iterKind = iota
	iterSync           // for-of iterator: closed
	iterAsync          // for await iterator: return() awaited
)

// control is an entry on the stack of constructs enclosing the emission
// point that break, continue and return must unwind.
type control struct {
	kind   controlKind
	labels []string
	// stack height below the values held by the construct
	height   int
	envDepth int
	iter     iterKind
	scope    *Scope // scope outside the construct

	breaks        []jumpSite
	continues     []jumpSite
	continueStart int // backward continue target, or -1

	regions []*region
	finally *parser.BlockStatement
}

func (c *Compiler) pushControl(kind controlKind, labels []string) *control {
	ctl := &control{
		kind:          kind,
		labels:        labels,
		height:        c.height,
		envDepth:      c.envDepth,
		scope:         c.scope,
		continueStart: -1,
	}
	c.controls = append(c.controls, ctl)
	return ctl
}

func (c *Compiler) popControl(ctl *control) {
	if n := len(c.controls); n == 0 || c.controls[n-1] != ctl {
		c.errorf("unbalanced control stack")
		return
	}
	c.controls = c.controls[:len(c.controls)-1]
}

func hasLabel(ctl *control, name string) bool {
	for _, l := range ctl.labels {
		if l == name {
			return true
		}
	}
	return false
}

// findTarget returns the index of the control a break or continue with
// the optional label transfers to.
func (c *Compiler) findTarget(label *parser.Identifier, isContinue bool) int {
	for i := len(c.controls) - 1; i >= 0; i-- {
		ctl := c.controls[i]
		if label != nil {
			if hasLabel(ctl, label.Value) && (!isContinue || ctl.kind == ctlLoop) {
				return i
			}
			continue
		}
		if ctl.kind == ctlLoop || (!isContinue && ctl.kind == ctlSwitch) {
			return i
		}
	}
	return -1
}

// emitState captures the emission state so code for an early exit
// can be emitted without disturbing the fall-through path.
type emitState struct {
	height   int
	envDepth int
	scope    *Scope
	controls []*control
}

func (c *Compiler) saveState() emitState {
	return emitState{height: c.height, envDepth: c.envDepth, scope: c.scope, controls: c.controls}
}

func (c *Compiler) restoreState(s emitState) {
	c.height, c.envDepth, c.scope, c.controls = s.height, s.envDepth, s.scope, s.controls
	c.dead = false
}

// unwind emits the cleanup for leaving every control above index stop.
// With a pending return value on top of the stack the values below it
// are left in place since the frame discards them. suspended collects the
// regions to resume after the transfer instruction.
func (c *Compiler) unwind(stop int, returning bool, suspended *[]*region) {
	for i := len(c.controls) - 1; i > stop; i-- {
		c.leaveControl(c.controls[i], i, returning, suspended)
	}
}

func (c *Compiler) leaveControl(ctl *control, index int, returning bool, suspended *[]*region) {
	for _, r := range ctl.regions {
		if c.suspendRegion(r) {
			*suspended = append(*suspended, r)
		}
	}
	switch ctl.kind {
	case ctlEnv:
		c.emit(vm.OpPopEnv)
		c.scope = ctl.scope
		return
	case ctlFinally:
		c.inlineFinally(ctl, index, returning)
		return
	}
	extra := 0
	if returning {
		extra = 1
	}
	n := c.height - extra - ctl.height
	if n <= 0 {
		return
	}
	switch ctl.iter {
	case iterSync:
		if returning {
			c.emit(vm.OpSwap)
		}
		c.emit(vm.OpIteratorClose)
		n--
	case iterAsync:
		if returning {
			c.emit(vm.OpSwap)
		}
		c.emitAsyncIteratorClose()
		n--
	}
	if returning {
		return
	}
	c.emitPops(n)
}

// emitAsyncIteratorClose calls and awaits return() of the async iterator
// on top of the stack.
func (c *Compiler) emitAsyncIteratorClose() {
	skip := c.emitJump(vm.OpIteratorCallReturn)
	c.emit(vm.OpAwait)
	c.emit(vm.OpCheckObject)
	c.emit(vm.OpPop)
	c.patchJump(skip)
}

// inlineFinally emits the finally block of ctl on an early exit path. It
// runs with the controls outside the try statement.
func (c *Compiler) inlineFinally(ctl *control, index int, returning bool) {
	saved := c.saveState()
	savedCompletion := c.completion
	c.completion = false
	c.controls = c.controls[:index:index]
	c.scope = ctl.scope
	if returning {
		v := c.pushControl(ctlValue, nil)
		v.height = c.height - 1
	}
	c.compileBlock(ctl.finally.Body)
	c.controls = saved.controls
	c.scope = saved.scope
	c.completion = savedCompletion
}

// compileJumpOut emits break or continue.
func (c *Compiler) compileJumpOut(label *parser.Identifier, isContinue bool) {
	target := c.findTarget(label, isContinue)
	if target < 0 {
		c.errorf("no target for jump")
		return
	}
	ctl := c.controls[target]
	saved := c.saveState()
	var suspended []*region
	c.unwind(target, false, &suspended)
	if isContinue {
		if ctl.continueStart >= 0 {
			c.emitLoop(ctl.continueStart)
		} else {
			ctl.continues = append(ctl.continues, c.emitJump(vm.OpJump))
		}
	} else {
		c.leaveControl(ctl, target, false, &suspended)
		ctl.breaks = append(ctl.breaks, c.emitJump(vm.OpJump))
	}
	for _, r := range suspended {
		c.resumeRegion(r)
	}
	c.restoreState(saved)
	c.dead = true
}

// emitReturn emits a return of the value on top of the stack through
// every enclosing control.
func (c *Compiler) emitReturn() {
	saved := c.saveState()
	if c.async && c.generator {
		c.emit(vm.OpAwait)
	}
	var suspended []*region
	c.unwind(-1, true, &suspended)
	if c.kind == vm.FuncDerivedConstructor {
		c.emitThisCheck()
	}
	c.emit(vm.OpReturn)
	for _, r := range suspended {
		c.resumeRegion(r)
	}
	c.restoreState(saved)
	c.height--
	c.dead = true
}
