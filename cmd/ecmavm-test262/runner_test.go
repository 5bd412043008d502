package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ecmavm/pkg/config"
)

const staJS = `
function Test262Error(message) { this.message = message || ""; }
Test262Error.prototype.toString = function () { return "Test262Error: " + this.message; };
Test262Error.thrower = function (message) { throw new Test262Error(message); };
function $DONOTEVALUATE() { throw "Test262: This statement should not be evaluated."; }
`

const assertJS = `
function assert(mustBeTrue, message) {
  if (mustBeTrue === true) return;
  throw new Test262Error(message || "Expected true but got " + String(mustBeTrue));
}
assert.sameValue = function (actual, expected, message) {
  if (Object.is(actual, expected)) return;
  throw new Test262Error((message ? message + " " : "") + "Expected SameValue(" + String(actual) + ", " + String(expected) + ")");
};
`

const doneprintHandleJS = `
function $DONE(error) {
  if (error) { print("Test262:AsyncTestFailure:" + error); } else { print("Test262:AsyncTestComplete"); }
}
`

// newCheckout writes a minimal test262 layout with the given tests and
// returns its root.
func newCheckout(t *testing.T, tests map[string]string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"harness/sta.js":             staJS,
		"harness/assert.js":          assertJS,
		"harness/doneprintHandle.js": doneprintHandleJS,
	}
	for name, body := range tests {
		files["test/"+name] = body
	}
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestRunnerClassification(t *testing.T) {
	tests := map[string]string{
		"pass.js": "/*---\ndescription: passes\n---*/\nassert.sameValue(1 + 2 * 3, 7);",
		"fail.js": "/*---\ndescription: fails\n---*/\nassert.sameValue(1, 2, 'numbers');",
		"strict-only.js": "/*---\nflags: [onlyStrict]\n---*/\n" +
			"assert.sameValue((function () { return this })(), undefined);",
		"sloppy-only.js": "/*---\nflags: [noStrict]\n---*/\n" +
			"assert.sameValue((function () { return this })(), this);",
		"negative-parse.js": "/*---\nnegative:\n  phase: parse\n  type: SyntaxError\n---*/\n$DONOTEVALUATE();\nlet a; let a;",
		"negative-runtime.js": "/*---\nnegative:\n  phase: runtime\n  type: ReferenceError\n---*/\nundefinedBinding;",
		"negative-missing.js": "/*---\nnegative:\n  phase: runtime\n  type: TypeError\n---*/\n1;",
		"raw.js": "/*---\nflags: [raw]\n---*/\nif (typeof assert !== 'undefined') throw new Error('harness included');",
		"async-pass.js": "/*---\nflags: [async]\n---*/\nPromise.resolve(1).then(v => assert.sameValue(v, 1)).then($DONE, $DONE);",
		"async-fail.js": "/*---\nflags: [async]\n---*/\nPromise.reject(new Error('nope')).then($DONE, $DONE);",
		"async-forgot.js": "/*---\nflags: [async]\n---*/\nPromise.resolve(1);",
		"skipped.js": "/*---\nfeatures: [TypedArray]\n---*/\nnew Int8Array(1);",
		"hang.js": "/*---\nflags: [noStrict]\n---*/\nwhile (true) {}",
	}
	root := newCheckout(t, tests)
	r := NewRunner(root, config.Default(), 200*time.Millisecond)

	want := map[string][]Status{
		"pass.js":             {StatusPass, StatusPass},
		"fail.js":             {StatusFail, StatusFail},
		"strict-only.js":      {StatusPass},
		"sloppy-only.js":      {StatusPass},
		"negative-parse.js":   {StatusPass, StatusPass},
		"negative-runtime.js": {StatusPass, StatusPass},
		"negative-missing.js": {StatusFail, StatusFail},
		"raw.js":              {StatusPass},
		"async-pass.js":       {StatusPass, StatusPass},
		"async-fail.js":       {StatusFail, StatusFail},
		"async-forgot.js":     {StatusFail, StatusFail},
		"skipped.js":          {StatusSkip},
		"hang.js":             {StatusTimeout},
	}
	for name, statuses := range want {
		t.Run(name, func(t *testing.T) {
			results := r.RunFile(context.Background(), filepath.Join(root, "test", name))
			if len(results) != len(statuses) {
				t.Fatalf("got %d results, want %d: %+v", len(results), len(statuses), results)
			}
			for i, res := range results {
				if res.Status != statuses[i] {
					t.Errorf("%s [%s]: status %s (%s), want %s", name, res.Mode, res.Status, res.Message, statuses[i])
				}
				if res.Path != name {
					t.Errorf("path = %q, want %q", res.Path, name)
				}
			}
		})
	}
}

func TestFailureMessageMentionsAssertion(t *testing.T) {
	root := newCheckout(t, map[string]string{
		"fail.js": "/*---\nflags: [noStrict]\n---*/\nassert.sameValue(1, 2, 'numbers differ');",
	})
	r := NewRunner(root, config.Default(), time.Second)
	results := r.RunFile(context.Background(), filepath.Join(root, "test", "fail.js"))
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if !strings.Contains(results[0].Message, "numbers differ") {
		t.Errorf("message %q does not carry the assertion text", results[0].Message)
	}
}

func TestRunAllSurvivesBrokenTests(t *testing.T) {
	root := newCheckout(t, map[string]string{
		"a/ok.js":        "assert(true);",
		"a/syntax.js":    "var = ;",
		"b/throws.js":    "throw 1;",
		"b/x_FIXTURE.js": "export default 1;",
		"b/loop.js":      "/*---\nflags: [noStrict]\n---*/\nfor (;;) {}",
	})
	files, err := findTestFiles(filepath.Join(root, "test"), "*.js")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 4 {
		t.Fatalf("found %d files, want 4 (fixtures excluded): %v", len(files), files)
	}
	r := NewRunner(root, config.Default(), 200*time.Millisecond)
	var seen int
	results := runAll(r, files, 2, func(Result) { seen++ })
	if seen != len(results) {
		t.Errorf("callback saw %d of %d results", seen, len(results))
	}
	stats := tally(results)
	if stats.Passed != 2 || stats.Timeouts != 1 || stats.Failed != 4 {
		t.Errorf("stats = %+v", stats)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Path > results[i].Path {
			t.Errorf("results not sorted: %s before %s", results[i-1].Path, results[i].Path)
		}
	}
}

func TestCancelStopsRunningTest(t *testing.T) {
	root := newCheckout(t, map[string]string{
		"hang.js": "/*---\nflags: [noStrict]\n---*/\nwhile (true) {}",
	})
	r := NewRunner(root, config.Default(), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := r.RunFile(ctx, filepath.Join(root, "test", "hang.js"))
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("cancelled test ran for %v", elapsed)
	}
	if len(results) != 1 || results[0].Status != StatusTimeout {
		t.Errorf("results = %+v, want one timeout", results)
	}
}
