// Package vm implements the value model, object model, environments,
// realms, bytecode format, interpreter and garbage collector of ecmavm.
package vm

import (
	"context"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"ecmavm/pkg/config"
)

var log = commonlog.GetLogger("ecmavm.vm")

// Frame is the activation record of a compiled function or script.
type Frame struct {
	callee     *Object
	fn         *Function
	tmpl       *FunctionTemplate
	chunk      *Chunk
	ip         int // next instruction
	opStart    int // start of the executing instruction
	base       int // first operand stack slot of the frame
	env        *Env
	envDepth   int // environments pushed above the function environment
	this       Value
	newTarget  Value
	args       []Value
	completion Value
	realm      *Realm
	prevRealm  *Realm
	coro       *coroutine

	// boundary frames return to the Go caller of run
	boundary  bool
	construct bool
}

// VM is a single-threaded interpreter. All realms created by a VM share
// its heap, job queue and symbol registry but no objects.
type VM struct {
	cfg *config.Config

	stack  []Value
	sp     int
	frames []Frame
	fp     int

	realm  *Realm
	realms []*Realm
	heap   *Heap

	jobs       []Job
	currentJob *Job

	symbolRegistry map[string]*Symbol
	handles        map[*Object]int
	kept           []*Object

	out io.Writer

	ctx         context.Context
	steps       int
	runDepth    int
	nativeDepth int
}

// New creates a VM configured by cfg; nil selects config.Default().
func New(cfg *config.Config) *VM {
	if cfg == nil {
		cfg = config.Default()
	}
	vm := &VM{
		cfg:            cfg,
		stack:          make([]Value, cfg.VM.StackSize),
		frames:         make([]Frame, cfg.VM.MaxCallDepth),
		symbolRegistry: make(map[string]*Symbol),
		handles:        make(map[*Object]int),
		out:            os.Stdout,
		ctx:            context.Background(),
	}
	vm.heap = newHeap(cfg.GC)
	return vm
}

// Config returns the configuration the VM was created with.
func (vm *VM) Config() *config.Config { return vm.cfg }

// Output is where console output of scripts goes, os.Stdout by default.
func (vm *VM) Output() io.Writer { return vm.out }

func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// Reset discards every active frame and operand. Used after a host-level
// failure left execution half way.
func (vm *VM) Reset() {
	for vm.fp > 0 {
		vm.popFrame()
	}
	vm.sp = 0
	vm.runDepth = 0
	vm.nativeDepth = 0
	vm.currentJob = nil
	if len(vm.realms) > 0 {
		vm.realm = vm.realms[0]
	}
}

// SymbolFor implements the Symbol.for registry.
func (vm *VM) SymbolFor(key string) *Symbol {
	if s, ok := vm.symbolRegistry[key]; ok {
		return s
	}
	s := NewSymbol(key)
	vm.symbolRegistry[key] = s
	return s
}

// SymbolKeyFor implements Symbol.keyFor.
func (vm *VM) SymbolKeyFor(s *Symbol) (string, bool) {
	if s.hasDescription {
		if r, ok := vm.symbolRegistry[s.Description]; ok && r == s {
			return s.Description, true
		}
	}
	return "", false
}

// Pin keeps o alive while the host holds it; Unpin releases it.
func (vm *VM) Pin(o *Object) { vm.handles[o]++ }

func (vm *VM) Unpin(o *Object) {
	if n := vm.handles[o]; n > 1 {
		vm.handles[o] = n - 1
	} else {
		delete(vm.handles, o)
	}
}

// --- operand stack ---

func (vm *VM) push(v Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = Undefined
	return v
}

func (vm *VM) peek(n int) Value {
	return vm.stack[vm.sp-1-n]
}

// --- frames ---

func (vm *VM) popFrame() {
	f := &vm.frames[vm.fp-1]
	for i := f.base; i < vm.sp; i++ {
		vm.stack[i] = Undefined
	}
	vm.sp = f.base
	if f.prevRealm != nil {
		vm.realm = f.prevRealm
	}
	*f = Frame{}
	vm.fp--
}

// popFrameWithResult pops the top frame and hands v to its caller. It
// reports whether the frame was a boundary, in which case v goes to the
// Go caller instead of the operand stack.
func (vm *VM) popFrameWithResult(v Value) bool {
	boundary := vm.frames[vm.fp-1].boundary
	vm.popFrame()
	if !boundary {
		vm.push(v)
	}
	return boundary
}

func (vm *VM) dropFrames(stop int) {
	for vm.fp > stop {
		vm.popFrame()
	}
}

// Depth returns the number of active frames.
func (vm *VM) Depth() int { return vm.fp }

// --- running scripts ---

// RunScript executes a compiled script in realm and returns its
// completion value. Uncaught exceptions are returned as *Exception.
func (vm *VM) RunScript(ctx context.Context, t *FunctionTemplate, realm *Realm) (Value, error) {
	if ctx != nil && vm.runDepth == 0 {
		prev := vm.ctx
		vm.ctx = ctx
		defer func() { vm.ctx = prev }()
	}
	if vm.fp >= len(vm.frames) {
		return Undefined, vm.NewRangeError("Maximum call stack size exceeded")
	}
	if vm.sp+t.Chunk.MaxStack+1 >= len(vm.stack) {
		return Undefined, vm.NewRangeError("Maximum call stack size exceeded")
	}
	f := &vm.frames[vm.fp]
	*f = Frame{
		tmpl:       t,
		chunk:      t.Chunk,
		base:       vm.sp,
		this:       ObjectValue(realm.Global),
		newTarget:  Undefined,
		completion: Undefined,
		realm:      realm,
		prevRealm:  vm.realm,
		boundary:   true,
	}
	f.env = vm.NewEnv(t.Scope, nil)
	vm.fp++
	vm.realm = realm
	return vm.run(vm.fp - 1)
}

// interrupted polls the context and the collector at a safe point.
func (vm *VM) safePoint() error {
	vm.steps = 0
	if vm.ctx != nil {
		select {
		case <-vm.ctx.Done():
			return ErrInterrupted
		default:
		}
	}
	if vm.runDepth == 1 && vm.nativeDepth == 0 && vm.heap.due() {
		vm.Collect()
	}
	return nil
}
