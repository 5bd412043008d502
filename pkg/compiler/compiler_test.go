package compiler

import (
	"context"
	"strings"
	"testing"

	"ecmavm/pkg/lexer"
	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

func compileSource(t *testing.T, input string, opts Options) *vm.FunctionTemplate {
	t.Helper()
	p := parser.NewParser(lexer.NewLexerFromString(input))
	program, errs := p.ParseProgram()
	if len(errs) != 0 {
		t.Fatalf("parse %q: %v", input, errs[0])
	}
	tmpl, cerrs := NewCompiler(opts).Compile(program)
	if len(cerrs) != 0 {
		for _, err := range cerrs {
			t.Errorf("compile %q: %s", input, err.Error())
		}
		t.FailNow()
	}
	return tmpl
}

// checkChunks validates the chunk of tmpl and of every nested function.
func checkChunks(t *testing.T, tmpl *vm.FunctionTemplate) {
	t.Helper()
	if err := tmpl.Chunk.Validate(); err != nil {
		t.Errorf("%s: %v\n%s", tmpl.Name, err, tmpl.Chunk.DisassembleChunk(tmpl.Name))
	}
	for _, fn := range tmpl.Chunk.Functions {
		checkChunks(t, fn)
	}
}

func TestCompileValidChunks(t *testing.T) {
	tests := []string{
		`1 + 2 * 3`,
		`var a = 1; let b = 2; const c = a + b;`,
		`function f(a, b = a, ...rest) { return arguments.length + rest.length }`,
		`function g() { "use strict"; return this }`,
		`if (x) { y } else if (z) { w } else { v }`,
		`for (let i = 0; i < 10; i++) { setTimeout(() => i) }`,
		`for (var k in o) { if (k) continue; else break }`,
		`for (const [a, b] of pairs) { a + b }`,
		`outer: for (;;) { inner: while (true) { break outer } }`,
		`do { x-- } while (x > 0)`,
		`switch (x) { case 1: let y = 2; break; default: y = 3 }`,
		`try { f() } catch ({ message }) { g(message) } finally { h() }`,
		`try { return1() } finally { }`,
		`with (o) { a = b }`,
		`var { a, b: [c, d = 1], ...rest } = obj`,
		`[a, , b, ...c] = arr`,
		`({ a: x.y, [k]: z[0] } = obj)`,
		`x ??= 1; y ||= 2; z &&= 3; w **= 2; v >>>= 1`,
		`o.p++; --o[k]; i++`,
		`a?.b.c?.(d)?.[e]`,
		`delete o?.p`,
		`typeof undeclared; void 0; delete o.p; delete o[k]`,
		"tag`a${1}b${2}c`",
		"`x${y}z`",
		`({ get a() { return 1 }, set a(v) {}, m() { return super.m }, ...spread, __proto__: null, [k]: function () {} })`,
		`class A { #x = 1; static s = 2; [k] = 3; get #y() { return this.#x } static #m() {} static { this.t = 1 } has(o) { return #x in o } }`,
		`class B extends A { constructor() { super(); this.z = () => super.m() } }`,
		`class C extends A { f = () => this }`,
		`var C2 = class { m() { return C2 } }`,
		`function* gen() { yield 1; yield* [2, 3]; return 4 }`,
		`async function af() { await p; for await (const x of it) { x } }`,
		`async function* ag() { yield await 1 }`,
		`new F(...args); f(...args, 1); (function () { return new.target })`,
		`label: { break label }`,
		`function outer() { function inner() { return arguments } return inner }`,
		`(function named() { named = 1; return named })()`,
		`/ab+c/gi.test(s)`,
		`1n + 2n`,
		`a, b, c`,
		`x ? y : z`,
		`-x; +x; !x; ~x`,
		`if (true) function annexB() {}`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			tmpl := compileSource(t, input, Options{SourceName: "test.js"})
			checkChunks(t, tmpl)
		})
	}
}

func TestGlobalDeclarations(t *testing.T) {
	tmpl := compileSource(t, `var a; function f() {} let b; const c = 1; class D {}`, Options{})
	decls := tmpl.GlobalDecls
	if decls == nil {
		t.Fatal("missing global declarations")
	}
	if strings.Join(decls.Vars, ",") != "a" {
		t.Errorf("vars = %v", decls.Vars)
	}
	if strings.Join(decls.Funcs, ",") != "f" {
		t.Errorf("funcs = %v", decls.Funcs)
	}
	if strings.Join(decls.Lexicals, ",") != "b,c,D" {
		t.Errorf("lexicals = %v", decls.Lexicals)
	}
	if decls.Deletable {
		t.Error("script declarations must not be deletable")
	}
}

func TestEvalDeclarations(t *testing.T) {
	tmpl := compileSource(t, `var a = 1; let b = 2;`, Options{Eval: true})
	if tmpl.GlobalDecls == nil || !tmpl.GlobalDecls.Deletable {
		t.Fatalf("eval var declarations should be deletable globals: %+v", tmpl.GlobalDecls)
	}
	if len(tmpl.GlobalDecls.Lexicals) != 0 {
		t.Errorf("eval lexicals leaked to the realm: %v", tmpl.GlobalDecls.Lexicals)
	}

	strict := compileSource(t, `"use strict"; var a = 1;`, Options{Eval: true})
	if strict.GlobalDecls != nil {
		t.Errorf("strict eval declared globals: %+v", strict.GlobalDecls)
	}
}

func TestFunctionTemplates(t *testing.T) {
	tests := []struct {
		input  string
		name   string
		length int
		kind   vm.FunctionKind
	}{
		{`(function foo(a, b) {})`, "foo", 2, vm.FuncNormal},
		{`var bar = function (a, b = 1, c) {}`, "bar", 1, vm.FuncNormal},
		{`let arrow = (x, ...r) => x`, "arrow", 1, vm.FuncArrow},
		{`({ method() {} })`, "method", 0, vm.FuncMethod},
		{`(class K {})`, "K", 0, vm.FuncClassConstructor},
		{`(class L extends Object {})`, "L", 0, vm.FuncDerivedConstructor},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tmpl := compileSource(t, tt.input, Options{})
			if len(tmpl.Chunk.Functions) == 0 {
				t.Fatal("no nested function")
			}
			fn := tmpl.Chunk.Functions[0]
			if fn.Name != tt.name {
				t.Errorf("name = %q, want %q", fn.Name, tt.name)
			}
			if fn.Length != tt.length {
				t.Errorf("length = %d, want %d", fn.Length, tt.length)
			}
			if fn.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", fn.Kind, tt.kind)
			}
		})
	}
}

func TestMappedArguments(t *testing.T) {
	tmpl := compileSource(t, `function f(a, b) { return arguments }`, Options{})
	fn := tmpl.Chunk.Functions[0]
	if len(fn.ParamSlots) != 2 {
		t.Errorf("sloppy simple parameters should be mapped, got %v", fn.ParamSlots)
	}
	tmpl = compileSource(t, `function f(a, b) { "use strict"; return arguments }`, Options{})
	if fn := tmpl.Chunk.Functions[0]; fn.ParamSlots != nil {
		t.Errorf("strict arguments should be unmapped, got %v", fn.ParamSlots)
	}
}

func run(t *testing.T, input string) vm.Value {
	t.Helper()
	tmpl := compileSource(t, input, Options{})
	machine := vm.New(nil)
	realm := machine.NewRealm()
	v, err := machine.RunScript(context.Background(), tmpl, realm)
	if err != nil {
		t.Fatalf("run %q: %v", input, err)
	}
	return v
}

func TestRunNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{`1 + 2 * 3`, 7},
		{`var x = 10; x -= 3; x`, 7},
		{`let s = 0; for (let i = 0; i < 5; i++) s += i; s`, 10},
		{`function fib(n) { return n < 2 ? n : fib(n - 1) + fib(n - 2) } fib(10)`, 55},
		{`function counter() { let n = 0; return () => ++n } var c = counter(); c(); c(); c()`, 3},
		{`var o = { a: 1, get b() { return this.a + 1 } }; o.b`, 2},
		{`var { a, b: { c = 5 } } = { a: 1, b: {} }; a + c`, 6},
		{`var r = 0; outer: for (var i = 0; i < 3; i++) { for (var j = 0; j < 3; j++) { if (j == 1) continue outer; r++ } } r`, 3},
		{`var v; switch (2) { case 1: v = 1; break; case 2: v = 2; case 3: v += 1; break; default: v = 9 } v`, 3},
		{`var t; try { throw 4 } catch (e) { t = e } finally { t += 1 } t`, 5},
		{`function f() { try { return 1 } finally { g = 2 } } var g = 0; f() + g`, 3},
		{`function f() { try { return 1 } finally { } } f()`, 1},
		{`function f() { try { return 1 } finally { return 2 } } f()`, 2},
		{`function f() { try { try { return 1 } finally { h++ } } finally { h *= 10 } } var h = 0; f() + h`, 11},
		{`var n = 0; for (;;) { try { break } finally { for (var i = 0; i < 2; i++) n++ } } n`, 2},
		{`var n = 0; for (var k = 0; k < 3; k++) { try { continue } finally { { let b = 1; n += b } } } n`, 3},
		{`function f() { for (var x of [1, 2]) { try { return x } finally { while (false) {} } } } f()`, 1},
		{`class P { #x = 2; static k = 3; get x() { return this.#x } } new P().x * P.k`, 6},
		{`class A { m() { return 1 } } class B extends A { m() { return super.m() + 1 } } new B().m()`, 2},
		{`class A { constructor(v) { this.v = v } } class B extends A { w = 1; constructor() { super(4) } } var b = new B(); b.v + b.w`, 5},
		{`class Q { #m() { return 7 } call() { return this.#m() } } new Q().call()`, 7},
		{`var n = 0; class A { x = ++n } new A(); n`, 1},
		{`var n = 0; class A { x = ++n; #y = ++n } new A(); new A(); n`, 4},
		{`class A { x = 1; constructor(a = this.x) { this.y = a + 1 } } new A().y`, 2},
		{`var n = null; n?.a.b ?? 8`, 8},
		{`var x = 0; x ||= 2; x &&= x + 1; x`, 3},
		{`(function () { return arguments.length })(1, 2, 3)`, 3},
		{`var o = { p: 1 }; delete o.p; o.p === void 0 ? 1 : 0`, 1},
		{`typeof nothing === "undefined" ? 1 : 0`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := run(t, tt.input)
			if !got.IsNumber() || got.AsNumber() != tt.want {
				t.Errorf("got %s, want %v", vm.Inspect(got), tt.want)
			}
		})
	}
}

func TestRunStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"var n = 3; `a${n}b${n + 1}`", "a3b4"},
		{`var f = function () {}; f.name`, "f"},
		{`var o = { m() {} }; o.m.name`, "m"},
		{`class K { static n() { return K.name } } K.n()`, "K"},
		{`let arrow = () => 1; arrow.name`, "arrow"},
		{`var k = "dyn"; var o = { [k]: function () {} }; o.dyn.name`, "dyn"},
		{`typeof function () {}`, "function"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := run(t, tt.input)
			if !got.IsString() || got.AsString() != tt.want {
				t.Errorf("got %s, want %q", vm.Inspect(got), tt.want)
			}
		})
	}
}

func TestRunThrows(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`const c = 1; c = 2`, "Assignment to constant variable."},
		{`{ x; let x = 1 }`, "x"},
		{`undeclaredVariable`, "undeclaredVariable"},
		{`class A {} class B extends A { constructor() { this.x = 1 } } new B()`, "this"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tmpl := compileSource(t, tt.input, Options{})
			machine := vm.New(nil)
			_, err := machine.RunScript(context.Background(), tmpl, machine.NewRealm())
			if err == nil {
				t.Fatal("expected an exception")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}
