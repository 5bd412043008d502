package driver

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"ecmavm/pkg/config"
	"ecmavm/pkg/errors"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func mustRun(t *testing.T, e *Engine, code string, opts Options) Completion {
	t.Helper()
	comp, errs := e.Run(context.Background(), source.NewEvalSource(code), opts)
	if len(errs) > 0 {
		t.Fatalf("%q: unexpected errors: %v", code, errs)
	}
	return comp
}

func TestScripts(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		strict bool
		expect string
	}{
		{"arithmetic precedence", "1 + 2 * 3", false, "7"},
		{"sloppy this is global", "function f(){ return this }; f() === globalThis", false, "true"},
		{"strict this is undefined", "function f(){ return this }; f()", true, "undefined"},
		{"array map", "[1,2,3].map(x => x * 2)", false, "[2, 4, 6]"},
		{"catch completion", "try { throw 5 } catch(e) { e + 1 }", false, "6"},
		{"let after declaration", "{ let x = 1; x }", false, "1"},
		{"shared closure binding", `
			function pair() {
				var n = 0;
				return [() => ++n, () => n];
			}
			var [inc, get] = pair();
			inc(); inc();
			get()`, false, "2"},
		{"delete exposes inherited", `
			var proto = { x: 'inherited' };
			var o = Object.create(proto);
			o.x = 'own';
			delete o.x;
			o.x`, false, "inherited"},
		{"array length grows", "var a = [1,2,3,4,5]; a[10] = 0; a.length", false, "11"},
		{"array length truncates", "var a = [1,2,3,4,5]; a.length = 2; a.join() + ':' + (2 in a)", false, "1,2:false"},
		{"number round trip", "[0.1, 1e21, 123456789012345680000, 5e-7, 0x10].map(String).join()", false, "0.1,1e+21,123456789012345680000,5e-7,16"},
		{"generator", "function* g() { yield 1; yield 2 } [...g()].join()", false, "1,2"},
		{"class fields", "class A { #x = 1; get x() { return this.#x } } new A().x", false, "1"},
		{"destructuring defaults", "var { a = 1, ...rest } = { b: 2 }; a + rest.b", false, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			comp := mustRun(t, e, tt.input, Options{Strict: tt.strict})
			if comp.Threw() {
				t.Fatalf("threw %s", comp.Err)
			}
			if got := vm.Inspect(comp.Value); got != tt.expect {
				t.Errorf("got %s, want %s", got, tt.expect)
			}
		})
	}
}

func TestThrownCompletions(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		kind   string
		inMsg  string
		strict bool
	}{
		{"tdz", "{ x; let x; }", "ReferenceError", "x", false},
		{"tdz in block before let", "let y = 1; { y; let y = 2; }", "ReferenceError", "y", false},
		{"call non-callable", "var o = {}; o.f()", "TypeError", "", false},
		{"strict assignment to undeclared", "undeclared = 1", "ReferenceError", "undeclared", true},
		{"user value", "throw 'boom'", "Throw", "boom", false},
		{"stack overflow", "function r() { return r() } r()", "RangeError", "call stack", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			comp := mustRun(t, e, tt.input, Options{Strict: tt.strict})
			if !comp.Threw() {
				t.Fatalf("completed normally with %s", vm.Inspect(comp.Value))
			}
			if comp.Err.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", comp.Err.Kind(), tt.kind)
			}
			if !strings.Contains(comp.Err.Message(), tt.inMsg) {
				t.Errorf("message %q does not mention %q", comp.Err.Message(), tt.inMsg)
			}
		})
	}
}

func TestEarlyErrorsPreventExecution(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated string", "sideEffect = 1; 'abc"},
		{"duplicate let", "sideEffect = 1; let a; let a;"},
		{"bad regexp flags", "sideEffect = 1; /a/gg"},
		{"bad regexp pattern", "sideEffect = 1; /(/"},
		{"reversed quantifier bounds", "sideEffect = 1; /a{2,1}/"},
		{"return outside function", "sideEffect = 1; return 1"},
		{"strict with", "'use strict'; sideEffect = 1; with ({}) {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			_, errs := e.RunString(tt.input)
			if len(errs) == 0 {
				t.Fatal("expected an early error")
			}
			if !errors.IsEarly(errs[0]) {
				t.Errorf("error %v is not an early error", errs[0])
			}
			comp := mustRun(t, e, "typeof sideEffect", Options{})
			if got := vm.Inspect(comp.Value); got != "undefined" {
				t.Errorf("script partly ran: typeof sideEffect = %s", got)
			}
		})
	}
}

func TestStatePersistsAcrossRuns(t *testing.T) {
	e := newTestEngine(t)
	mustRun(t, e, "var counter = 1; function bump() { return ++counter }", Options{})
	mustRun(t, e, "bump()", Options{})
	comp := mustRun(t, e, "counter", Options{})
	if got := vm.Inspect(comp.Value); got != "2" {
		t.Errorf("counter = %s, want 2", got)
	}
}

func TestJobsDrainedAfterScript(t *testing.T) {
	e := newTestEngine(t)
	var out bytes.Buffer
	e.VM().SetOutput(&out)
	mustRun(t, e, `
		async function f() { await null; console.log('after await'); }
		Promise.resolve(1).then(v => console.log('then', v));
		f();
		console.log('sync');
	`, Options{})
	want := "sync\nthen 1\nafter await\n"
	if out.String() != want {
		t.Errorf("output %q, want %q", out.String(), want)
	}
}

func TestDefineGlobalFunc(t *testing.T) {
	e := newTestEngine(t)
	var seen []string
	e.DefineGlobalFunc("record", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		for _, a := range args {
			s, err := machine.ToString(a)
			if err != nil {
				return vm.Undefined, err
			}
			seen = append(seen, s)
		}
		return vm.IntValue(len(seen)), nil
	})
	comp := mustRun(t, e, "record('a', 1); record(true)", Options{})
	if got := vm.Inspect(comp.Value); got != "3" {
		t.Errorf("record returned %s, want 3", got)
	}
	if strings.Join(seen, ",") != "a,1,true" {
		t.Errorf("seen = %v", seen)
	}
	if !e.Global().HasOwnProperty(vm.StringKey("record")) {
		t.Error("record is not an own property of the global object")
	}
}

func TestTimeout(t *testing.T) {
	e := newTestEngine(t)
	_, errs := e.Run(context.Background(), source.NewEvalSource("for (;;) {}"), Options{Timeout: 50 * time.Millisecond})
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if errs[0].Kind() != "Interrupted" || !stderrors.Is(errs[0], vm.ErrInterrupted) {
		t.Errorf("got %v, want an interruption", errs[0])
	}
	comp := mustRun(t, e, "'still usable'", Options{})
	if got := vm.Inspect(comp.Value); got != "still usable" {
		t.Errorf("engine unusable after interruption: %s", got)
	}
}

func TestNativePanicBecomesInternalError(t *testing.T) {
	e := newTestEngine(t)
	e.DefineGlobalFunc("explode", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		panic("native failure")
	})
	_, errs := e.RunString("function f() { return explode() } f()")
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var internal *errors.InternalError
	if !stderrors.As(errs[0], &internal) {
		t.Fatalf("got %T, want *errors.InternalError", errs[0])
	}
	if !strings.Contains(internal.Msg, "native failure") {
		t.Errorf("message %q", internal.Msg)
	}
	comp := mustRun(t, e, "1 + 1", Options{})
	if got := vm.Inspect(comp.Value); got != "2" {
		t.Errorf("engine unusable after panic: %s", got)
	}
}

func TestCompileCache(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()
	code := "var total = 0; for (let i = 1; i <= 4; i++) total += i; `sum=${total}`"

	for run := 0; run < 2; run++ {
		e, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		comp := mustRun(t, e, code, Options{})
		if got := vm.Inspect(comp.Value); got != "sum=10" {
			t.Fatalf("run %d: got %s", run, got)
		}
		hits, misses := e.Cache().Stats()
		if run == 0 && (hits != 0 || misses != 1) {
			t.Errorf("first run: hits=%d misses=%d", hits, misses)
		}
		if run == 1 && (hits != 1 || misses != 0) {
			t.Errorf("second run: hits=%d misses=%d", hits, misses)
		}
	}
}

func TestCacheKeyIncludesMode(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := source.NewEvalSource("this")
	if cache.key(src, Options{}) == cache.key(src, Options{Strict: true}) {
		t.Error("strict and sloppy compilations share a cache key")
	}
	if cache.key(src, Options{Module: true}) != cache.key(src, Options{Strict: true}) {
		t.Error("module mode should compile like strict mode")
	}
}

func TestDisplayResult(t *testing.T) {
	e := newTestEngine(t)
	var out bytes.Buffer
	e.VM().SetOutput(&out)
	comp, errs := e.RunString("({ a: [1, 'x'] })")
	if !e.DisplayResult(comp, errs) {
		t.Fatal("DisplayResult reported failure")
	}
	if got := strings.TrimSpace(out.String()); got != `{ a: [1, "x"] }` {
		t.Errorf("displayed %s", got)
	}
}

func TestCollectWithSuspendedFrames(t *testing.T) {
	e := newTestEngine(t)
	mustRun(t, e, `
		function* g() { var local = { v: 1 }; yield local.v; yield local.v + 1 }
		var it = g();
		it.next();
		var resolveLater, done = '';
		async function f() {
			var box = { v: 'a' };
			await new Promise(r => { resolveLater = r });
			done = box.v + 'b';
		}
		f();
	`, Options{})
	e.VM().Collect()
	mustRun(t, e, "$262.gc(); resolveLater()", Options{})
	comp := mustRun(t, e, "it.next().value + ':' + done", Options{})
	if got := vm.Inspect(comp.Value); got != "2:ab" {
		t.Errorf("got %s, want 2:ab", got)
	}
}

func TestCollectOnEveryAllocation(t *testing.T) {
	cfg := config.Default()
	cfg.GC.Threshold = 1
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	e.VM().SetOutput(&out)
	comp := mustRun(t, e, `
		function* count(n) { for (let i = 0; i < n; i++) yield { i }; }
		async function sum() {
			let s = 0;
			for (const o of count(5)) s += await o.i;
			return s;
		}
		sum().then(s => console.log('sum', s));
		[...count(3)].map(o => o.i).join()
	`, Options{})
	if got := vm.Inspect(comp.Value); got != "0,1,2" {
		t.Errorf("got %s", got)
	}
	if out.String() != "sum 10\n" {
		t.Errorf("output %q", out.String())
	}
	if e.VM().GCStats().Collections == 0 {
		t.Error("no collection ran")
	}
}

func TestCompileCacheLoneSurrogate(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Dir = t.TempDir()
	code := `var s = '\uD800'; s.length + ':' + s.charCodeAt(0)`

	for run := 0; run < 2; run++ {
		e, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		comp := mustRun(t, e, code, Options{})
		if got := vm.Inspect(comp.Value); got != "1:55296" {
			t.Fatalf("run %d: got %s", run, got)
		}
		if hits, _ := e.Cache().Stats(); run == 1 && hits != 1 {
			t.Errorf("cached template was not reused: hits=%d", hits)
		}
	}
}
