package vm

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *asm)
		msg   string // empty when the chunk is valid
	}{
		{"valid", func(a *asm) {
			a.op(OpTrue)
			a.op(OpReturn)
		}, ""},
		{"empty", func(a *asm) {}, "empty chunk"},
		{"falls off the end", func(a *asm) {
			a.op(OpTrue)
		}, "falls off the end"},
		{"underflow", func(a *asm) {
			a.op(OpPop)
			a.op(OpUndefined)
			a.op(OpReturn)
		}, "needs 1 values"},
		{"bad constant", func(a *asm) {
			a.op(OpConstant, 9)
			a.op(OpReturn)
		}, "constant"},
		{"jump into an instruction", func(a *asm) {
			a.op(OpJump, 1)
			a.op(OpConstant, int(a.c.AddConstant(NumberValue(1))))
			a.op(OpReturn)
		}, "not an instruction"},
		{"inconsistent join", func(a *asm) {
			a.op(OpTrue)
			skip := a.jump(OpJumpIfFalse)
			a.op(OpUndefined)
			a.patch(skip)
			a.op(OpUndefined)
			a.op(OpReturn)
		}, "inconsistent stack height"},
		{"truncated", func(a *asm) {
			a.op(OpUndefined)
			a.c.Code = append(a.c.Code, byte(OpConstant), 0)
		}, "truncated"},
		{"unknown opcode", func(a *asm) {
			a.c.Code = append(a.c.Code, byte(opCount))
		}, "unknown opcode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAsm()
			tt.build(a)
			err := a.c.Validate()
			if tt.msg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.msg)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error type %T", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error %q does not contain %q", err, tt.msg)
			}
		})
	}
}

func TestValidateMaxStack(t *testing.T) {
	a := newAsm()
	a.op(OpUndefined)
	a.op(OpUndefined)
	a.op(OpDup2)
	a.op(OpPop)
	a.op(OpPop)
	a.op(OpPop)
	a.op(OpReturn)
	if err := a.c.Validate(); err != nil {
		t.Fatal(err)
	}
	if a.c.MaxStack != 4 {
		t.Errorf("MaxStack = %d, want 4", a.c.MaxStack)
	}
}

func TestConstantDeduplication(t *testing.T) {
	c := NewChunk()
	i := c.AddConstant(NumberValue(1))
	if j := c.AddConstant(NumberValue(1)); j != i {
		t.Errorf("duplicate number got index %d, want %d", j, i)
	}
	if j := c.AddConstant(StringValue("1")); j == i {
		t.Error("string shares an index with a number")
	}
	z := c.AddConstant(NumberValue(0))
	if n := c.AddConstant(NumberValue(math.Copysign(0, -1))); n == z {
		t.Error("-0 shares an index with +0")
	}
}

func TestDisassemble(t *testing.T) {
	a := newAsm()
	a.op(OpGetGlobal, a.name("answer"))
	skip := a.jump(OpJumpIfNotUndefined)
	a.constant(NumberValue(42))
	a.patch(skip)
	a.op(OpReturn)
	inner := newAsm()
	inner.op(OpUndefined)
	inner.op(OpReturn)
	a.c.AddFunction(&FunctionTemplate{Name: "inner", Chunk: inner.c})
	tmpl := a.script(t, nil)

	out := tmpl.Disassemble()
	for _, want := range []string{
		"== test ==",
		`OpGetGlobal`,
		`'"answer"'`,
		"OpJumpIfNotUndefined",
		"-> 0009",
		"== inner ==",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, out)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	a := newAsm()
	a.constant(NumberValue(math.Copysign(0, -1)))
	a.op(OpPop)
	a.constant(BigIntValue(new(big.Int).Lsh(big.NewInt(1), 80)))
	a.op(OpPop)
	a.constant(StringValue("h\U0001F600"))
	a.op(OpPop)
	// a lone high surrogate
	a.constant(StringValue("\xed\xa0\x80x"))
	a.op(OpPop)
	start := a.pc()
	a.op(OpNull)
	a.op(OpThrow)
	handler := a.pc()
	a.op(OpReturn)
	a.c.ExceptionTable = []ExceptionHandler{{TryStart: start, TryEnd: handler, HandlerPC: handler}}
	a.c.AddSite(&TemplateSite{Cooked: []Value{StringValue("a"), Undefined}, Raw: []string{"a", `\u{`}})
	inner := newAsm()
	inner.op(OpUndefined)
	inner.op(OpReturn)
	if err := inner.c.Validate(); err != nil {
		t.Fatal(err)
	}
	a.c.AddFunction(&FunctionTemplate{Name: "f", Kind: FuncArrow, Async: true, Length: 2, Chunk: inner.c, ParamSlots: []int{0, 1}})
	scope := &ScopeInfo{Kind: ScopeFunction, Names: []string{"x"}, Flags: []BindingFlags{BindingMutable | BindingLexical}}
	orig := a.script(t, scope)
	orig.Strict = true
	orig.Source = "'\xed\xa0\x80x'"
	orig.GlobalDecls = &GlobalDecls{Vars: []string{"v"}, Lexicals: []string{"l"}, Consts: []bool{true}}

	data, err := MarshalTemplate(orig)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalTemplate(data)
	if err != nil {
		t.Fatal(err)
	}

	if !got.Strict || got.Kind != FuncScript || got.Name != "test" {
		t.Errorf("header mismatch: %+v", got)
	}
	if got.Source != orig.Source {
		t.Errorf("source %q, want %q", got.Source, orig.Source)
	}
	if string(got.Chunk.Code) != string(orig.Chunk.Code) {
		t.Error("code differs")
	}
	if got.Chunk.MaxStack != orig.Chunk.MaxStack {
		t.Errorf("MaxStack %d, want %d", got.Chunk.MaxStack, orig.Chunk.MaxStack)
	}
	for i, v := range orig.Chunk.Constants {
		if !SameValue(v, got.Chunk.Constants[i]) {
			t.Errorf("constant %d: %v, want %v", i, got.Chunk.Constants[i], v)
		}
	}
	if len(got.Chunk.ExceptionTable) != 1 || got.Chunk.ExceptionTable[0] != orig.Chunk.ExceptionTable[0] {
		t.Errorf("exception table %+v", got.Chunk.ExceptionTable)
	}
	site := got.Chunk.Sites[0]
	if !site.Cooked[1].IsUndefined() || site.Raw[1] != `\u{` {
		t.Errorf("template site %+v", site)
	}
	fn := got.Chunk.Functions[0]
	if fn.Name != "f" || !fn.Async || fn.Kind != FuncArrow || fn.Length != 2 || len(fn.ParamSlots) != 2 {
		t.Errorf("nested function %+v", fn)
	}
	if got.Scope.Names[0] != "x" || got.Scope.Flags[0] != BindingMutable|BindingLexical {
		t.Errorf("scope %+v", got.Scope)
	}
	if got.GlobalDecls == nil || got.GlobalDecls.Lexicals[0] != "l" || !got.GlobalDecls.Consts[0] {
		t.Errorf("global declarations %+v", got.GlobalDecls)
	}

	again, err := MarshalTemplate(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Error("encoding is not deterministic")
	}
}

func TestUnmarshalTemplateRejects(t *testing.T) {
	stale, err := cborEncMode.Marshal(&wireFile{Version: WireVersion - 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalTemplate(stale); err == nil || !strings.Contains(err.Error(), "wire version") {
		t.Errorf("stale version: %v", err)
	}

	if _, err := UnmarshalTemplate([]byte{0xff, 0x00}); err == nil {
		t.Error("garbage accepted")
	}

	bad := &wireFile{Version: WireVersion, Root: &wireTemplate{
		Name:  "bad",
		Chunk: &wireChunk{Code: []byte{byte(OpPop), byte(OpReturn)}},
	}}
	data, err := cbor.Marshal(bad)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := UnmarshalTemplate(data); err == nil || !strings.Contains(err.Error(), "invalid bytecode") {
		t.Errorf("invalid bytecode accepted: %v", err)
	}
}
