package vm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// asm assembles a chunk by hand for tests that exercise the interpreter
// without the compiler.
type asm struct {
	c *Chunk
}

func newAsm() *asm { return &asm{c: NewChunk()} }

func (a *asm) op(op OpCode, operands ...int) int {
	pc := len(a.c.Code)
	a.c.WriteOpCode(op, 1, pc+1)
	for i, k := range opTable[op].operands {
		if k.width() == 1 {
			a.c.WriteUint8(byte(operands[i]))
		} else {
			a.c.WriteUint16(uint16(operands[i]))
		}
	}
	return pc
}

func (a *asm) constant(v Value) { a.op(OpConstant, int(a.c.AddConstant(v))) }

func (a *asm) name(s string) int { return int(a.c.AddConstant(StringValue(s))) }

// jump emits a forward jump and returns the offset of its operand.
func (a *asm) jump(op OpCode) int {
	a.op(op, 0)
	return len(a.c.Code) - 2
}

func (a *asm) patch(at int) {
	a.c.PatchUint16(at, uint16(len(a.c.Code)-(at+2)))
}

// loop emits a backward jump to target.
func (a *asm) loop(target int) {
	a.op(OpLoop, len(a.c.Code)+3-target)
}

func (a *asm) pc() int { return len(a.c.Code) }

func (a *asm) script(t *testing.T, scope *ScopeInfo) *FunctionTemplate {
	t.Helper()
	if err := a.c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return &FunctionTemplate{Name: "test", Kind: FuncScript, Scope: scope, Chunk: a.c}
}

func newTestVM() (*VM, *Realm) {
	v := New(nil)
	return v, v.NewRealm()
}

func TestRunArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   OpCode
		a, b float64
		want float64
	}{
		{"add", OpAdd, 1, 2, 3},
		{"sub", OpSub, 10, 4, 6},
		{"mul", OpMul, 6, 7, 42},
		{"div", OpDiv, 1, 4, 0.25},
		{"mod", OpMod, -7, 3, -1},
		{"exp", OpExp, 2, 10, 1024},
		{"shl", OpShl, 1, 33, 2},
		{"ushr", OpUShr, -1, 28, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAsm()
			a.constant(NumberValue(tt.a))
			a.constant(NumberValue(tt.b))
			a.op(tt.op)
			a.op(OpReturn)
			vm, realm := newTestVM()
			got, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
			if err != nil {
				t.Fatalf("RunScript: %v", err)
			}
			if got.AsNumber() != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunStringConcat(t *testing.T) {
	a := newAsm()
	a.constant(StringValue("a"))
	a.constant(NumberValue(1))
	a.op(OpAdd)
	a.op(OpReturn)
	vm, realm := newTestVM()
	got, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsString() != "a1" {
		t.Errorf("got %q, want %q", got.AsString(), "a1")
	}
}

// sumLoop computes 0+1+...+(n-1) with locals i and s.
func sumLoop(a *asm, n int) {
	a.constant(NumberValue(0))
	a.op(OpInitLocal, 0, 0)
	a.constant(NumberValue(0))
	a.op(OpInitLocal, 0, 1)
	top := a.pc()
	a.op(OpGetLocal, 0, 0)
	a.constant(NumberValue(float64(n)))
	a.op(OpLess)
	exit := a.jump(OpJumpIfFalse)
	a.op(OpGetLocal, 0, 1)
	a.op(OpGetLocal, 0, 0)
	a.op(OpAdd)
	a.op(OpSetLocal, 0, 1)
	a.op(OpPop)
	a.op(OpGetLocal, 0, 0)
	a.op(OpInc)
	a.op(OpSetLocal, 0, 0)
	a.op(OpPop)
	a.loop(top)
	a.patch(exit)
	a.op(OpGetLocal, 0, 1)
	a.op(OpReturn)
}

var loopScope = &ScopeInfo{
	Kind:  ScopeFunction,
	Names: []string{"i", "s"},
	Flags: []BindingFlags{BindingMutable | BindingLexical, BindingMutable | BindingLexical},
}

func TestRunLoop(t *testing.T) {
	a := newAsm()
	sumLoop(a, 100)
	vm, realm := newTestVM()
	got, err := vm.RunScript(context.Background(), a.script(t, loopScope), realm)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != 4950 {
		t.Errorf("got %v, want 4950", got)
	}
}

func TestRunTemporalDeadZone(t *testing.T) {
	a := newAsm()
	a.op(OpGetLocal, 0, 0)
	a.op(OpReturn)
	vm, realm := newTestVM()
	_, err := vm.RunScript(context.Background(), a.script(t, loopScope), realm)
	ex, ok := AsException(err)
	if !ok {
		t.Fatalf("expected exception, got %v", err)
	}
	if !strings.Contains(ex.Error(), "Cannot access 'i' before initialization") {
		t.Errorf("unexpected message %q", ex.Error())
	}
}

func TestRunTryCatch(t *testing.T) {
	a := newAsm()
	start := a.pc()
	a.op(OpThrowError, int(ErrorKindType), a.name("boom"))
	end := a.pc()
	handler := a.pc()
	a.op(OpGetProp, a.name("message"))
	a.op(OpReturn)
	a.c.ExceptionTable = []ExceptionHandler{{TryStart: start, TryEnd: end, HandlerPC: handler}}

	vm, realm := newTestVM()
	got, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsString() != "boom" {
		t.Errorf("got %v, want boom", got)
	}
}

func TestRunUncaught(t *testing.T) {
	a := newAsm()
	a.constant(StringValue("oops"))
	a.op(OpThrow)
	vm, realm := newTestVM()
	_, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
	ex, ok := AsException(err)
	if !ok {
		t.Fatalf("expected exception, got %v", err)
	}
	if ex.Value.AsString() != "oops" {
		t.Errorf("thrown value %v", ex.Value)
	}
	if len(ex.Trace) == 0 || !strings.HasPrefix(ex.Trace[0], "<script>") {
		t.Errorf("trace %v", ex.Trace)
	}
	if vm.Depth() != 0 {
		t.Errorf("frames left on the stack: %d", vm.Depth())
	}
}

func TestRunGlobals(t *testing.T) {
	a := newAsm()
	a.constant(NumberValue(7))
	a.op(OpSetGlobal, a.name("x"))
	a.op(OpPop)
	a.op(OpGetGlobal, a.name("x"))
	a.op(OpReturn)
	vm, realm := newTestVM()
	got, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != 7 {
		t.Errorf("got %v", got)
	}
	p, ok := realm.Global.GetOwnProperty(StringKey("x"))
	if !ok || p.Value.AsNumber() != 7 {
		t.Errorf("global x not created: %v %v", p, ok)
	}
}

func TestRunUnresolvableReference(t *testing.T) {
	a := newAsm()
	a.op(OpGetGlobal, a.name("missing"))
	a.op(OpReturn)
	vm, realm := newTestVM()
	_, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
	if err == nil || !strings.Contains(err.Error(), "missing is not defined") {
		t.Errorf("got %v", err)
	}
}

func TestRunInterrupted(t *testing.T) {
	a := newAsm()
	top := a.pc()
	a.op(OpNop)
	a.loop(top)
	vm, realm := newTestVM()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := vm.RunScript(ctx, a.script(t, nil), realm)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("got %v, want ErrInterrupted", err)
	}
	if vm.Depth() != 0 {
		t.Errorf("frames left on the stack: %d", vm.Depth())
	}
}

func TestRunObjectLiteral(t *testing.T) {
	a := newAsm()
	a.op(OpNewObject)
	a.constant(StringValue("a"))
	a.constant(NumberValue(1))
	a.op(OpDefineProperty, int(DefineData|DefineEnumerable))
	a.op(OpDup)
	a.op(OpGetProp, a.name("a"))
	a.op(OpSetCompletion)
	a.op(OpPop)
	a.op(OpGetCompletion)
	a.op(OpReturn)
	vm, realm := newTestVM()
	got, err := vm.RunScript(context.Background(), a.script(t, nil), realm)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != 1 {
		t.Errorf("got %v", got)
	}
}
