package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ecmavm/pkg/config"
	"ecmavm/pkg/driver"
	"ecmavm/pkg/errors"
	"ecmavm/pkg/source"
)

// Status is the outcome of one test in one mode.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkip    Status = "skip"
	StatusTimeout Status = "timeout"
	// StatusCrash marks an engine failure: an internal error or a panic.
	StatusCrash Status = "crash"
)

// Result records a single test run.
type Result struct {
	Path     string // relative to the test directory
	Mode     string // "sloppy", "strict" or "" for skipped tests
	Status   Status
	Message  string
	Duration time.Duration
	Disasm   string
}

// Runner executes test262 files, each in a fresh engine.
type Runner struct {
	Root    string // test262 checkout
	Config  *config.Config
	Timeout time.Duration
	Disasm  bool

	mu      sync.Mutex
	harness map[string]string
}

// NewRunner creates a runner for the checkout at root.
func NewRunner(root string, cfg *config.Config, timeout time.Duration) *Runner {
	return &Runner{Root: root, Config: cfg, Timeout: timeout, harness: make(map[string]string)}
}

func (r *Runner) testDir() string { return filepath.Join(r.Root, "test") }

// include returns a harness file, reading it once.
func (r *Runner) include(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.harness[name]; ok {
		return s, nil
	}
	data, err := os.ReadFile(filepath.Join(r.Root, "harness", name))
	if err != nil {
		return "", fmt.Errorf("failed to read include %s: %w", name, err)
	}
	r.harness[name] = string(data)
	return string(data), nil
}

// assemble prepends the harness files a test needs to its body.
func (r *Runner) assemble(content string, md *Metadata) (string, error) {
	if md.HasFlag("raw") {
		return content, nil
	}
	includes := []string{"assert.js", "sta.js"}
	if md.HasFlag("async") {
		includes = append(includes, "doneprintHandle.js")
	}
	includes = append(includes, md.Includes...)
	var b strings.Builder
	for _, inc := range includes {
		text, err := r.include(inc)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	b.WriteString(content)
	return b.String(), nil
}

// RunFile runs a test file in every mode its flags allow. Cancelling ctx
// interrupts the running test.
func (r *Runner) RunFile(ctx context.Context, path string) []Result {
	rel, err := filepath.Rel(r.testDir(), path)
	if err != nil {
		rel = path
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return []Result{{Path: rel, Status: StatusFail, Message: err.Error()}}
	}
	md, err := ParseMetadata(string(content))
	if err != nil {
		return []Result{{Path: rel, Status: StatusFail, Message: err.Error()}}
	}
	if reason := md.skipReason(); reason != "" {
		return []Result{{Path: rel, Status: StatusSkip, Message: reason}}
	}
	var results []Result
	for _, strict := range md.modes() {
		res := r.runMode(ctx, path, string(content), md, strict)
		res.Path = rel
		results = append(results, res)
	}
	return results
}

// runMode runs the test on its own goroutine so a panic or a hang in a
// single test cannot take the harness down. The engine interrupts itself
// at the timeout; the watchdog covers natives that never reach a safe
// point. A test abandoned by the watchdog has its context cancelled so
// its goroutine stops at the next safe point.
func (r *Runner) runMode(ctx context.Context, path, content string, md *Metadata, strict bool) (res Result) {
	res.Mode = "sloppy"
	if strict {
		res.Mode = "strict"
	}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Result{Status: StatusCrash, Message: fmt.Sprintf("harness panic: %v", rec)}
			}
		}()
		done <- r.execute(ctx, path, content, md, strict)
	}()

	watchdog := time.NewTimer(2*r.Timeout + time.Second)
	defer watchdog.Stop()
	select {
	case out := <-done:
		out.Mode = res.Mode
		return out
	case <-watchdog.C:
		res.Status = StatusTimeout
		res.Message = fmt.Sprintf("no result after %v", 2*r.Timeout+time.Second)
		return res
	}
}

func (r *Runner) execute(ctx context.Context, path, content string, md *Metadata, strict bool) Result {
	text, err := r.assemble(content, md)
	if err != nil {
		return Result{Status: StatusFail, Message: err.Error()}
	}
	engine, err := driver.New(r.Config)
	if err != nil {
		return Result{Status: StatusCrash, Message: err.Error()}
	}
	var out bytes.Buffer
	engine.VM().SetOutput(&out)

	src := source.NewSourceFile(filepath.Base(path), path, text)
	opts := driver.Options{Strict: strict, Timeout: r.Timeout}
	tmpl, errs := engine.Compile(src, opts)
	if len(errs) > 0 {
		status, msg := classify(md, driver.Completion{}, errs, out.String())
		return Result{Status: status, Message: msg}
	}
	comp, errs := engine.Execute(ctx, src, tmpl, opts)
	status, msg := classify(md, comp, errs, out.String())
	res := Result{Status: status, Message: msg}
	if r.Disasm && status == StatusFail {
		res.Disasm = tmpl.Disassemble()
	}
	return res
}

const (
	asyncComplete = "Test262:AsyncTestComplete"
	asyncFailure  = "Test262:AsyncTestFailure"
)

// classify decides the status of a run from the test's expectations.
func classify(md *Metadata, comp driver.Completion, errs []errors.EngineError, output string) (Status, string) {
	if len(errs) > 0 {
		err := errs[0]
		switch {
		case err.Kind() == "Interrupted":
			return StatusTimeout, err.Error()
		case err.Kind() == "Internal":
			return StatusCrash, err.Error()
		case errors.IsEarly(err):
			if md.Negative != nil && md.Negative.Phase == "parse" && md.Negative.Type == "SyntaxError" {
				return StatusPass, ""
			}
			return StatusFail, "unexpected early error: " + err.Error()
		}
		return StatusFail, err.Error()
	}

	if neg := md.Negative; neg != nil {
		if neg.Phase == "parse" {
			return StatusFail, "expected early " + neg.Type
		}
		if !comp.Threw() {
			return StatusFail, "expected " + neg.Type + " to be thrown"
		}
		if comp.Err.Name != neg.Type {
			return StatusFail, fmt.Sprintf("expected %s, got %s", neg.Type, comp.Err.Error())
		}
		return StatusPass, ""
	}

	if comp.Threw() {
		return StatusFail, comp.Err.Error()
	}
	if md.HasFlag("async") {
		if i := strings.Index(output, asyncFailure); i >= 0 {
			line, _, _ := strings.Cut(output[i:], "\n")
			return StatusFail, line
		}
		if !strings.Contains(output, asyncComplete) {
			return StatusFail, "async test did not call $DONE"
		}
	}
	return StatusPass, ""
}
