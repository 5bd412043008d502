package compiler

import (
	"fmt"

	"ecmavm/pkg/errors"
	"ecmavm/pkg/lexer"
	"ecmavm/pkg/parser"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"

	"github.com/tliron/commonlog"
)

const debugCompiler = false

var log = commonlog.GetLogger("ecmavm.compiler")

func debugPrintf(format string, args ...interface{}) {
	if debugCompiler {
		fmt.Printf(format, args...)
	}
}

// Options select how a program is compiled.
type Options struct {
	// SourceName is recorded in every template for stack traces.
	SourceName string
	// Eval compiles the program as indirect eval code: sloppy var and
	// function declarations become deletable globals while lexical
	// declarations stay local to the evaluation; strict eval code keeps
	// everything local.
	Eval bool
}

// Compiler transforms an AST into stack machine bytecode. One Compiler
// produces one chunk; nested functions get their own Compiler linked
// through enclosing.
type Compiler struct {
	enclosing *Compiler
	opts      Options
	source    *source.SourceFile

	chunk *vm.Chunk
	tmpl  *vm.FunctionTemplate
	kind  vm.FunctionKind
	// generator and async flags of the function being compiled
	generator bool
	async     bool
	strict    bool

	scope     *Scope // innermost scope at the emission point
	funcScope *Scope // environment created by the call
	varScope  *Scope // where var declarations live; nil for global code
	annexB    map[*parser.FunctionLiteral]bool

	// emission state
	height   int  // operand stack height at the emission point
	dead     bool // the previous instruction never falls through
	envDepth int  // environments pushed above the function environment
	line     int
	col      int

	controls   []*control
	completion bool // statements record the script completion value
	chain      *chainContext

	errors []errors.EngineError
}

// NewCompiler creates a compiler for a top-level script.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{opts: opts, chunk: vm.NewChunk(), line: 1, col: 1}
}

// newFunctionCompiler creates a compiler for a function nested in
// enclosing.
func newFunctionCompiler(enclosing *Compiler) *Compiler {
	return &Compiler{
		enclosing: enclosing,
		opts:      enclosing.opts,
		source:    enclosing.source,
		chunk:     vm.NewChunk(),
		line:      enclosing.line,
		col:       enclosing.col,
	}
}

// Compile compiles a parsed script. The returned template runs with
// vm.RunScript; its completion value is the script's result.
func (c *Compiler) Compile(program *parser.Program) (tmpl *vm.FunctionTemplate, errs []errors.EngineError) {
	c.source = program.Source
	if c.opts.SourceName == "" && program.Source != nil {
		c.opts.SourceName = program.Source.DisplayPath()
	}
	c.strict = program.Strict
	c.kind = vm.FuncScript
	c.completion = true

	scope := newFunctionScope(nil)
	c.scope, c.funcScope = scope, scope
	c.tmpl = &vm.FunctionTemplate{
		Name:       "<script>",
		Kind:       vm.FuncScript,
		Strict:     program.Strict,
		Scope:      scope.Info(),
		Chunk:      c.chunk,
		SourceName: c.opts.SourceName,
	}
	if program.Source != nil {
		c.tmpl.Source = program.Source.Content
	}

	c.compileScriptBody(program.Body)
	c.emit(vm.OpGetCompletion)
	c.emit(vm.OpReturn)
	c.finish()

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	log.Debugf("compiled %s: %d bytes, %d nested functions", c.tmpl.SourceName, len(c.chunk.Code), len(c.chunk.Functions))
	return c.tmpl, nil
}

// compileScriptBody instantiates the top-level declarations of a script
// and compiles its statements.
func (c *Compiler) compileScriptBody(body []parser.Statement) {
	lexicals := lexicalDeclarations(body, true)
	excluded := make(map[string]bool)
	for _, d := range lexicals {
		excluded[d.name] = true
	}
	vars := collectVarScope(body, c.strict, excluded)
	c.annexB = vars.annexB
	funcs := lastDeclarations(functionDeclarations(body))
	scope := c.scope

	localVars := c.opts.Eval && c.strict
	if localVars {
		c.varScope = scope
		for _, name := range vars.names {
			scope.Define(name, vm.BindingMutable)
		}
	} else {
		decls := &vm.GlobalDecls{Deletable: c.opts.Eval}
		isFunc := make(map[string]bool)
		for _, fn := range funcs {
			decls.Funcs = append(decls.Funcs, fn.Name.Value)
			isFunc[fn.Name.Value] = true
		}
		for _, name := range vars.names {
			if !isFunc[name] {
				decls.Vars = append(decls.Vars, name)
			}
		}
		c.tmpl.GlobalDecls = decls
	}

	if c.opts.Eval {
		c.defineLexicals(scope, lexicals)
	} else {
		scope.global = true
		for _, d := range lexicals {
			c.tmpl.GlobalDecls.Lexicals = append(c.tmpl.GlobalDecls.Lexicals, d.name)
			c.tmpl.GlobalDecls.Consts = append(c.tmpl.GlobalDecls.Consts, d.kind == declConst)
		}
	}

	if c.tmpl.GlobalDecls != nil {
		c.emit(vm.OpDeclareGlobals)
	}
	for _, fn := range funcs {
		c.emitClosure(fn, fn.Name.Value)
		if localVars {
			c.emitInitBinding(fn.Name.Value)
		} else {
			c.emitName(vm.OpDefineGlobalFunc, fn.Name.Value)
		}
	}
	c.compileStatements(body)
}

// lastDeclarations keeps the last function declaration of each name, in
// source order.
func lastDeclarations(fns []*parser.FunctionLiteral) []*parser.FunctionLiteral {
	last := make(map[string]int)
	for i, fn := range fns {
		last[fn.Name.Value] = i
	}
	out := make([]*parser.FunctionLiteral, 0, len(last))
	for i, fn := range fns {
		if last[fn.Name.Value] == i {
			out = append(out, fn)
		}
	}
	return out
}

// defineLexicals adds let, const and class bindings to scope.
func (c *Compiler) defineLexicals(scope *Scope, decls []lexicalDecl) {
	for _, d := range decls {
		switch d.kind {
		case declConst:
			scope.Define(d.name, vm.BindingLexical)
		case declFunction:
			scope.Define(d.name, vm.BindingMutable)
		default:
			scope.Define(d.name, vm.BindingLexical|vm.BindingMutable)
		}
	}
}

// finish validates the chunk, which also computes its maximum stack
// height, and records failures as internal errors.
func (c *Compiler) finish() {
	if len(c.errors) > 0 {
		return
	}
	if err := c.chunk.Validate(); err != nil {
		name := "<script>"
		if c.tmpl != nil {
			name = c.tmpl.Name
		}
		debugPrintf("%s\n", c.chunk.DisassembleChunk(name))
		c.addError(&errors.InternalError{Position: c.position(), Msg: fmt.Sprintf("compiled %s is invalid", name), Cause: err})
	}
}

func (c *Compiler) position() errors.Position {
	return errors.Position{Line: c.line, Column: c.col, Source: c.source}
}

// addError records an error on the outermost compiler.
func (c *Compiler) addError(err errors.EngineError) {
	root := c
	for root.enclosing != nil {
		root = root.enclosing
	}
	root.errors = append(root.errors, err)
}

// errorf reports an internal compiler error at the current position.
func (c *Compiler) errorf(format string, args ...interface{}) {
	c.addError(&errors.InternalError{Position: c.position(), Msg: fmt.Sprintf(format, args...)})
}

// at moves the current source position to the start of node.
func (c *Compiler) at(node parser.Node) {
	c.atToken(node.StartToken())
}

func (c *Compiler) atToken(tok lexer.Token) {
	if tok.Line > 0 {
		c.line, c.col = tok.Line, tok.Column
	}
}
