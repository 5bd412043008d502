// Package driver ties the lexer, parser, compiler and VM together into an
// Engine that runs scripts and reports completions.
package driver

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/tliron/commonlog"

	"ecmavm/pkg/builtins"
	"ecmavm/pkg/compiler"
	"ecmavm/pkg/config"
	"ecmavm/pkg/errors"
	"ecmavm/pkg/lexer"
	"ecmavm/pkg/parser"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

const debugDriver = false

var log = commonlog.GetLogger("ecmavm.driver")

func debugPrintf(format string, args ...interface{}) {
	if debugDriver {
		fmt.Printf(format, args...)
	}
}

// Options select how a single script runs.
type Options struct {
	// Strict runs the script as strict mode code.
	Strict bool
	// Module is accepted for harness compatibility; module code runs as
	// a strict script.
	Module bool
	// Timeout bounds execution, including the job queue drained after the
	// script. Zero falls back to the engine configuration.
	Timeout time.Duration
}

func (o Options) strict() bool { return o.Strict || o.Module }

// CompletionType tells a normal completion from a thrown one.
type CompletionType uint8

const (
	Normal CompletionType = iota
	Throw
)

func (t CompletionType) String() string {
	if t == Throw {
		return "throw"
	}
	return "normal"
}

// Completion is the outcome of running a script: its completion value,
// or the value it threw.
type Completion struct {
	Type  CompletionType
	Value vm.Value
	// Err describes a thrown completion; nil for normal ones.
	Err *errors.RuntimeError
}

// Threw reports whether the script ended with an uncaught exception.
func (c Completion) Threw() bool { return c.Type == Throw }

// Exception returns the diagnostic of a thrown completion, or nil.
func (c Completion) Exception() *errors.RuntimeError { return c.Err }

// Engine is a persistent execution session: one VM with one realm whose
// global state carries over between scripts.
type Engine struct {
	cfg   *config.Config
	vm    *vm.VM
	realm *vm.Realm
	cache *Cache
}

// New creates an engine with a fresh realm. A nil cfg selects the
// defaults.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	machine := vm.New(cfg)
	realm, err := builtins.NewRealm(machine)
	if err != nil {
		return nil, fmt.Errorf("cannot create realm: %w", err)
	}
	machine.SetCurrentRealm(realm)
	e := &Engine{cfg: cfg, vm: machine, realm: realm}
	if cfg.Cache.Dir != "" {
		cache, err := OpenCache(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		e.cache = cache
	}
	return e, nil
}

// MustNew is New for callers that use the default builtins and cannot
// recover from their failure.
func MustNew(cfg *config.Config) *Engine {
	e, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// VM returns the engine's virtual machine.
func (e *Engine) VM() *vm.VM { return e.vm }

// Realm returns the realm scripts run in.
func (e *Engine) Realm() *vm.Realm { return e.realm }

// Global returns the global object of the engine's realm.
func (e *Engine) Global() *vm.Object { return e.realm.Global }

// Config returns the configuration the engine was created with.
func (e *Engine) Config() *config.Config { return e.cfg }

// SetCache replaces the compile cache; nil disables caching.
func (e *Engine) SetCache(c *Cache) { e.cache = c }

// Cache returns the compile cache, or nil.
func (e *Engine) Cache() *Cache { return e.cache }

// DefineGlobalFunc installs a native function as a global of the realm.
func (e *Engine) DefineGlobalFunc(name string, length int, fn vm.NativeFunc) {
	e.realm.DefineGlobal(name, vm.ObjectValue(e.vm.NewNativeFunction(name, length, fn)))
}

// Compile parses and compiles src. Lexical and syntax errors are
// returned without producing a template.
func (e *Engine) Compile(src *source.SourceFile, opts Options) (*vm.FunctionTemplate, []errors.EngineError) {
	if e.cache != nil {
		if tmpl := e.cache.Load(src, opts); tmpl != nil {
			return tmpl, nil
		}
	}
	p := parser.NewParser(lexer.NewLexer(src))
	p.SetStrict(opts.strict())
	program, errs := p.ParseProgram()
	if len(errs) > 0 {
		return nil, errs
	}
	parser.DumpAST(program, src.DisplayPath())

	tmpl, errs := compiler.NewCompiler(compiler.Options{SourceName: src.DisplayPath()}).Compile(program)
	if len(errs) > 0 {
		return nil, errs
	}
	if tmpl == nil {
		return nil, []errors.EngineError{&errors.InternalError{Msg: "compilation returned no template"}}
	}
	if e.cache != nil {
		if err := e.cache.Store(src, opts, tmpl); err != nil {
			log.Warningf("%s", err)
		}
	}
	return tmpl, nil
}

// Run compiles and executes src, then drains the job queue. Early errors,
// interruption and engine failures are returned as errors; script
// exceptions are reported through the completion.
func (e *Engine) Run(ctx context.Context, src *source.SourceFile, opts Options) (comp Completion, errs []errors.EngineError) {
	tmpl, errs := e.Compile(src, opts)
	if len(errs) > 0 {
		return Completion{Value: vm.Undefined}, errs
	}
	return e.Execute(ctx, src, tmpl, opts)
}

// Execute runs a compiled script. A Go panic inside the VM is recovered,
// the VM reset, and the panic reported as an InternalError.
func (e *Engine) Execute(ctx context.Context, src *source.SourceFile, tmpl *vm.FunctionTemplate, opts Options) (comp Completion, errs []errors.EngineError) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.cfg.Script.Timeout.Duration
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.vm.Reset()
			log.Errorf("panic while running %s: %v\n%s", src.DisplayPath(), r, debug.Stack())
			comp = Completion{Value: vm.Undefined}
			errs = []errors.EngineError{&errors.InternalError{Msg: fmt.Sprint(r)}}
		}
	}()

	debugPrintf("// [driver] running %s\n", src.DisplayPath())
	value, err := e.vm.RunScript(ctx, tmpl, e.realm)
	e.vm.ClearKeptObjects()
	if err != nil && !isException(err) {
		e.vm.Reset()
		return Completion{Value: vm.Undefined}, []errors.EngineError{e.hostError(err)}
	}
	// Jobs queued before a throw still run.
	jobErr := e.vm.RunJobs(ctx)
	if jobErr != nil && !isException(jobErr) {
		e.vm.Reset()
		return Completion{Value: vm.Undefined}, []errors.EngineError{e.hostError(jobErr)}
	}
	if err == nil {
		err = jobErr
	}
	if ex, ok := vm.AsException(err); ok {
		return Completion{Type: Throw, Value: ex.Value, Err: e.runtimeError(src, ex)}, nil
	}
	return Completion{Type: Normal, Value: value}, nil
}

func isException(err error) bool {
	_, ok := vm.AsException(err)
	return ok
}

// RunString runs code as a script named "<eval>" with default options.
func (e *Engine) RunString(code string) (Completion, []errors.EngineError) {
	return e.Run(context.Background(), source.NewEvalSource(code), Options{Strict: e.cfg.Script.Strict})
}

// RunFile reads and runs the script at path.
func (e *Engine) RunFile(ctx context.Context, path string, opts Options) (Completion, []errors.EngineError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Completion{Value: vm.Undefined}, []errors.EngineError{
			&errors.InternalError{Msg: fmt.Sprintf("cannot read %s", path), Cause: err},
		}
	}
	return e.Run(ctx, source.FromFile(path, string(content)), opts)
}

// runtimeError describes an uncaught exception. Objects contribute their
// name and message properties; primitives are rendered for display.
func (e *Engine) runtimeError(src *source.SourceFile, ex *vm.Exception) *errors.RuntimeError {
	re := &errors.RuntimeError{Msg: e.vm.ToDisplayString(ex.Value), Cause: ex}
	if ex.Line > 0 {
		re.Position = errors.Position{Line: ex.Line, Column: ex.Col, Source: src}
	}
	o := ex.Value.AsObject()
	if o == nil {
		return re
	}
	if name, err := e.vm.GetStr(o, "name"); err == nil && name.IsString() {
		re.Name = name.AsString()
	}
	if msg, err := e.vm.GetStr(o, "message"); err == nil && !msg.IsUndefined() {
		if s, err := e.vm.ToString(msg); err == nil {
			re.Msg = s
		}
	}
	return re
}

func (e *Engine) hostError(err error) errors.EngineError {
	if stderrors.Is(err, vm.ErrInterrupted) {
		return &errors.RuntimeError{Name: "Interrupted", Msg: err.Error(), Cause: err}
	}
	return &errors.InternalError{Msg: err.Error(), Cause: err}
}

// DisplayResult prints the completion value to the VM's output, or the
// errors to stderr. It reports whether the run completed normally.
func (e *Engine) DisplayResult(comp Completion, errs []errors.EngineError) bool {
	return e.FprintResult(e.vm.Output(), os.Stderr, comp, errs)
}

// FprintResult is DisplayResult with explicit destinations.
func (e *Engine) FprintResult(out, errOut io.Writer, comp Completion, errs []errors.EngineError) bool {
	if len(errs) > 0 {
		errors.FprintErrors(errOut, errs)
		return false
	}
	if comp.Threw() {
		errors.FprintErrors(errOut, []errors.EngineError{comp.Err})
		return false
	}
	if !comp.Value.IsUndefined() {
		fmt.Fprintln(out, vm.Inspect(comp.Value))
	}
	return true
}
