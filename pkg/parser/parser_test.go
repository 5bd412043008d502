package parser

import (
	"strings"
	"testing"

	"ecmavm/pkg/errors"
	"ecmavm/pkg/lexer"
)

func parse(input string) (*Program, []errors.EngineError) {
	l := lexer.NewLexerFromString(input)
	p := NewParser(l)
	return p.ParseProgram()
}

func mustParse(t *testing.T, input string) *Program {
	t.Helper()
	program, errs := parse(input)
	if len(errs) != 0 {
		for _, err := range errs {
			t.Errorf("%q: %s", input, err.Error())
		}
		t.FailNow()
	}
	return program
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a + b * c", "(a + (b * c));"},
		{"a - b - c", "((a - b) - c);"},
		{"a ** b ** c", "(a ** (b ** c));"},
		{"(-a) ** b", "((-a) ** b);"},
		{"a = b = c", "(a = (b = c));"},
		{"a += b -= c", "(a += (b -= c));"},
		{"a ? b : c ? d : e", "(a ? b : (c ? d : e));"},
		{"a || b && c", "(a || (b && c));"},
		{"a ?? (b || c)", "(a ?? (b || c));"},
		{"a ?? b ?? c", "((a ?? b) ?? c);"},
		{"x = a, b", "((x = a), b);"},
		{"!a.b()", "(!a.b());"},
		{"typeof x === 'y'", `((typeof x) === "y");`},
		{"a++ + ++b", "((a++) + (++b));"},
		{"a < b == c > d", "((a < b) == (c > d));"},
		{"a & b | c ^ d", "((a & b) | (c ^ d));"},
		{"a << b + c", "(a << (b + c));"},
		{"a in b instanceof c", "((a in b) instanceof c);"},
		{"new a.b(c).d", "(new a.b(c)).d;"},
		{"new new X()()", "(new (new X())());"},
		{"new X", "(new X());"},
		{"a?.b.c", "a?.b.c;"},
		{"a?.[b]?.(c)", "a?.[b]?.(c);"},
		{"(a?.b).c", "(a?.b).c;"},
		{"x => x * 2", "((x) => (x * 2));"},
		{"async (a, b) => a", "(async (a, b) => a);"},
		{"x = a => b => c", "(x = ((a) => ((b) => c)));"},
		{"a = b ? c : d => e", "(a = (b ? c : ((d) => e)));"},
		{"[a, b] = [b, a]", "([a, b] = [b, a]);"},
		{"({a, b: [c] = d} = e)", "({ a, b: [c] = d } = e);"},
		{"f(...xs, 1,)", "f(...xs, 1);"},
		{"`a${b}c`", "`a${b}c`;"},
		{"await", "await;"},
		{"yield", "yield;"},
		{"let", "let;"},
		{"async", "async;"},
		{"a\n++b", "a;\n(++b);"},
		{"a = b\n(c)", "(a = b(c));"},
		{"void 0", "(void 0);"},
		{"delete a[0]", "(delete a[0]);"},
	}

	for _, tt := range tests {
		program := mustParse(t, tt.input)
		if got := program.String(); got != tt.expected {
			t.Errorf("%q: expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	inputs := []string{
		"var a = 1, b; let [c, , ...d] = e; const { f, g: h = 2, ...i } = j;",
		"function f(a, b = 1, ...c) { return a + b; }",
		"x = function* () { yield 1; yield* g(); };",
		"async function f() { await g(); for await (const x of y) {} }",
		"class A extends B { constructor() { super(); } static m() {} get x() { return 1; } set x(v) {} #p = 1; static { this.y = 2; } }",
		"label: for (let i = 0; i < 10; i++) { if (i) continue label; else break; }",
		"switch (a) { case 1: b(); break; default: c(); }",
		"try { a(); } catch ({ message }) { b(); } finally { c(); }",
		"do x++; while (x < 5)",
		"for (const k in o) ; for (x of y) ;",
		"x = { a, b: 1, [c]: 2, get d() { return 1; }, async *e() {}, ...f, 'g-h': 3 };",
		"x = /ab+c/gi.test(s);",
		"tag`a${b}\\u{41}`;",
		"(function () {})();",
		"({}).toString();",
		"x = a ?? b; y = c?.d?.[e]?.(f);",
		"(a, b) => { return a; };",
		"with (o) { p; }",
		"x = 'quote\"d' + \"\\u2028\";",
	}
	for _, input := range inputs {
		first := mustParse(t, input).String()
		second := mustParse(t, first).String()
		if first != second {
			t.Errorf("round trip changed output:\n input: %s\n first: %s\nsecond: %s", input, first, second)
		}
	}
}

func TestAutomaticSemicolonInsertion(t *testing.T) {
	tests := []struct {
		input string
		count int
	}{
		{"let a = 1\nlet b = 2", 2},
		{"x\n++\ny", 2},
		{"a\n(b)", 1},
		{"do {} while (false) foo()", 2},
		{"{ 1\n2 } 3", 2},
		{"var a = 1\n;", 1},
		{"async\nfunction f() {}", 2},
		{"let\nx = 1", 1},
		{"function f() { return\n1 }", 1},
		{"x\n=>1", 0},
	}
	for _, tt := range tests {
		program, errs := parse(tt.input)
		if tt.count == 0 {
			if len(errs) == 0 {
				t.Errorf("%q: expected an error", tt.input)
			}
			continue
		}
		if len(errs) != 0 {
			t.Errorf("%q: unexpected error %v", tt.input, errs[0])
			continue
		}
		if len(program.Body) != tt.count {
			t.Errorf("%q: expected %d statements, got %d (%s)", tt.input, tt.count, len(program.Body), program)
		}
	}

	program := mustParse(t, "function f() { return\n1 }")
	fn := program.Body[0].(*FunctionDeclaration).Function
	if rs, ok := fn.Body.Body[0].(*ReturnStatement); !ok || rs.Argument != nil {
		t.Errorf("return followed by a newline must not take an argument: %s", fn.Body)
	}
}

func TestEarlyErrors(t *testing.T) {
	inputs := []string{
		"a b",
		"throw\n1",
		"let a; let a;",
		"let a; var a;",
		"var a; let a;",
		"const a;",
		"let [a];",
		"let let = 1",
		"'use strict'; with (a) {}",
		"'use strict'; var eval = 1;",
		"'use strict'; arguments = 1;",
		"'use strict'; delete x;",
		"'use strict'; 010",
		"'use strict'; '\\07'",
		"'use strict'; var yield;",
		"function f() { '\\07'; 'use strict'; }",
		"function f(a, a) { 'use strict' }",
		"function f(a = 1) { 'use strict' }",
		"function eval() { 'use strict' }",
		"(a, a) => 1",
		"({ m(a, a) {} })",
		"break;",
		"continue;",
		"while (1) { x: { continue x; } }",
		"a: a: ;",
		"break nowhere;",
		"return 1",
		"a ?? b || c",
		"a || b ?? c",
		"-a ** 2",
		"({a = 1})",
		"x = { __proto__: 1, __proto__: 2 }",
		"1 = 2",
		"a++ = 1",
		"a() = 1",
		"a?.b = 1",
		"({a}) = 1",
		"({a: 1} = b)",
		"[...a, b] = c",
		"let [a, ...b,] = c",
		"(...a, b) => 1",
		"((a)) => 1",
		"new a?.b()",
		"a?.b`c`",
		"`\\unicode`",
		"/a/gg",
		"/(/",
		"/a{2,1}/",
		"/(?<n>a)(?<n>b)/",
		"x = /[b-a]/u",
		"/a/uv",
		"class A { constructor() {} constructor() {} }",
		"class A { get constructor() {} }",
		"class A { constructor = 1 }",
		"class A { static prototype() {} }",
		"class A { #x; #x; }",
		"class A { #constructor() {} }",
		"class A { m() { this.#y } }",
		"this.#y",
		"class A extends B { x = arguments }",
		"class A { static { await } }",
		"class A { static { return } }",
		"super.x",
		"function f() { super() }",
		"class A { constructor() { super() } }",
		"new.target",
		"({ get a(x) {} })",
		"({ set a() {} })",
		"({ set a(...v) {} })",
		"try {}",
		"try {} catch (e) { let e; }",
		"try {} catch ([e]) { var e; }",
		"if (1) class C {}",
		"if (1) let [a] = b",
		"if (1) const a = 1",
		"while (1) function f() {}",
		"'use strict'; if (1) function f() {}",
		"label: function* g() {}",
		"a => {} + 1",
		"async (x)\n=> x",
		"async function f() { var await; }",
		"async function f(a = await 1) {}",
		"function* g() { var yield; }",
		"function* g(a = yield) {}",
		"function* g() { (yield) => 1 }",
		"async (await) => 1",
		"for (let x = 1 of []) ;",
		"for (let x, y of []) ;",
		"for (let of x) ;",
		"for (async of x) ;",
		"for await (x of y) ;",
		"for (x in y, z ;;) ;",
		"switch (a) { default: default: }",
		"function f() { }}",
		"x = a => { yield\n}\n* 1",
		"\\u0069f (x) {}",
		"var \\u{63}lass = 1",
		"enum = 1",
		"(a, b,)",
		"()",
		"x = { f(){}: 1 }",
		"f(...)",
		"new -x",
		"class extends A {}",
		"function () {}",
	}
	for _, input := range inputs {
		_, errs := parse(input)
		if len(errs) == 0 {
			t.Errorf("expected an early error for %q", input)
			continue
		}
		if !errors.IsEarly(errs[0]) {
			t.Errorf("%q: expected a syntax or lexical error, got %T", input, errs[0])
		}
	}
}

func TestValidPrograms(t *testing.T) {
	inputs := []string{
		"var a; var a;",
		"function f(a, a) {}",
		"{ function f() {} function f() {} }",
		"a: while (true) { continue a; }",
		"a: b: for (;;) { continue a; }",
		"a: { break a; }",
		"class A extends B { constructor() { super(); } m() { return super.m(); } static #p = 1; static { A.#p; } }",
		"async function f() { for await (const x of y) {} await 1; }",
		"function* g() { yield; yield* a; const x = yield 1; }",
		"x = { get a() { return 1 }, set a(v) {}, async *gen() {}, [k]: 1, ...o, 'q': 2, 3: 4 }",
		"x = { get, set, async, static: 1, new: 2, if() {} }",
		"for (var i = 0 in {}) ;",
		"var let = 1",
		"let = 1; let.x;",
		"label: function f() {}",
		"if (a) function f() {}",
		"tag`\\unicode`",
		"x = /[a-z]+\\d{2,3}/gi",
		"x = /(?<y>\\d{4})-\\k<y>/",
		"x = class { #a; m() { return #a in this; } }",
		"({ __proto__: a, __proto__: b } = c)",
		"(a) = 1; ((b)) = 2; [(c)] = d; ({ e: (f.g) } = h);",
		"for (let [a, b] of c) ;",
		"for (const x in {}) {}",
		"try {} catch { }",
		"try {} catch (e) { var e; }",
		"yield = 1; var await;",
		"/=/g.test(x)",
		"x = function() { return /re/ }",
		"f(a, b,)",
		"let {a, ...rest} = o",
		"class C { static async *m() {} get [x]() {} static x = 1; 'constructor'() {} static constructor() {} }",
		"class C { x\n y = 1\n static\n z }",
		"if (a) b; else c",
		"switch (a) { case 1: let x; break; default: }",
		"x = a ? (b) : c => d",
		"o = { async: 1, get: 2 }; o.async(); o.get();",
		"async\n(x)",
		"function f() { return new.target; }",
		"x = () => { 'use strict'; }",
		"function f() { 'use strict'; return this; }",
		"'use\\x20strict'; with (a) {}",
		"(function eval() {})",
		"x = 1_000 + 0x1F + 0b11 + 0o7 + 1n + .5e3",
		"a = b\n/c/g",
		"<!-- html comment\nx = 1\n--> trailing comment",
		"function f(a = () => arguments) {}",
		"async function f() { (async () => await 1)(); }",
		"function* g() { (function yield() {}); }",
		"x = { 'a': 1, 2: 3, [4]: 5 }",
		"new (f())(); new (a.b());",
	}
	for _, input := range inputs {
		mustParse(t, input)
	}
}

func TestStrictDirective(t *testing.T) {
	program := mustParse(t, "'use strict'; x = 1")
	if !program.Strict {
		t.Errorf("program should be strict")
	}
	es := program.Body[0].(*ExpressionStatement)
	if es.Directive != "use strict" {
		t.Errorf("directive = %q", es.Directive)
	}

	program = mustParse(t, "x = 1; 'use strict'")
	if program.Strict {
		t.Errorf("a late string statement is not a directive")
	}

	program = mustParse(t, "function f() { 'use strict'; } function g() {}")
	if program.Strict {
		t.Errorf("function directives must not make the script strict")
	}
	if !program.Body[0].(*FunctionDeclaration).Function.Strict {
		t.Errorf("f should be strict")
	}
	if program.Body[1].(*FunctionDeclaration).Function.Strict {
		t.Errorf("g should not be strict")
	}

	l := lexer.NewLexerFromString("with (a) {}")
	p := NewParser(l)
	p.SetStrict(true)
	if _, errs := p.ParseProgram(); len(errs) == 0 {
		t.Errorf("SetStrict should reject with statements")
	}
}

func TestFunctionSourceText(t *testing.T) {
	program := mustParse(t, "x = function  foo ( a ) { return a }; class  K { m ( ) { } }")
	assign := program.Body[0].(*ExpressionStatement).Expression.(*AssignmentExpression)
	fn := assign.Value.(*FunctionLiteral)
	if fn.Source != "function  foo ( a ) { return a }" {
		t.Errorf("function source = %q", fn.Source)
	}
	cl := program.Body[1].(*ClassDeclaration).Class
	if cl.Source != "class  K { m ( ) { } }" {
		t.Errorf("class source = %q", cl.Source)
	}
	if m := cl.Members[0].Value.(*FunctionLiteral); m.Source != "m ( ) { }" {
		t.Errorf("method source = %q", m.Source)
	}
}

func TestFunctionShapes(t *testing.T) {
	program := mustParse(t, "(a, {b}, [c] = d, ...e) => a")
	fn := program.Body[0].(*ExpressionStatement).Expression.(*FunctionLiteral)
	if !fn.IsArrow() || !fn.ExprBody {
		t.Fatalf("expected an expression-bodied arrow, got %s", fn)
	}
	if len(fn.Params) != 3 || fn.Rest == nil || fn.SimpleParams {
		t.Errorf("params = %d rest = %v simple = %v", len(fn.Params), fn.Rest, fn.SimpleParams)
	}
	if _, ok := fn.Params[1].(*ObjectPattern); !ok {
		t.Errorf("second parameter should be an object pattern, got %T", fn.Params[1])
	}
	if ap, ok := fn.Params[2].(*AssignmentPattern); !ok {
		t.Errorf("third parameter should have a default, got %T", fn.Params[2])
	} else if _, ok := ap.Target.(*ArrayPattern); !ok {
		t.Errorf("third parameter target should be an array pattern, got %T", ap.Target)
	}
	names := []string{}
	for _, id := range paramNames(fn) {
		names = append(names, id.Value)
	}
	if got := strings.Join(names, ","); got != "a,b,c,e" {
		t.Errorf("bound names = %s", got)
	}

	program = mustParse(t, "class A extends B { constructor(x) { super(x) } }")
	cl := program.Body[0].(*ClassDeclaration).Class
	if cl.Constructor == nil || cl.Constructor.Kind != FuncDerivedConstructor {
		t.Errorf("expected a derived constructor")
	}
	if !cl.Constructor.Strict {
		t.Errorf("class code is strict")
	}
}

func TestErrorPosition(t *testing.T) {
	_, errs := parse("let x = 1;\nlet y = ;")
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %d", len(errs))
	}
	pos := errs[0].Pos()
	if pos.Line != 2 || pos.Column != 9 {
		t.Errorf("error at %d:%d, want 2:9 (%s)", pos.Line, pos.Column, errs[0])
	}

	_, errs = parse("x = \"open")
	if len(errs) != 1 || errs[0].Kind() != "Lexical" {
		t.Fatalf("expected a lexical error, got %v", errs)
	}
}
