package builtins

import (
	"strings"

	"ecmavm/pkg/compiler"
	"ecmavm/pkg/lexer"
	"ecmavm/pkg/parser"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// FunctionInitializer implements Function, Function.prototype and the
// constructors of generator and async functions.
type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string {
	return "Function"
}

func (f *FunctionInitializer) Priority() int {
	return PriorityFunction // After Object
}

func (f *FunctionInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()
	functionProto := in.FunctionPrototype
	functionProto.SetOwn("length", vm.IntValue(0), vm.FlagConfigurable)
	functionProto.SetOwn("name", vm.StringValue(""), vm.FlagConfigurable)

	method(machine, functionProto, "call", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, machine.NewTypeError("Function.prototype.call called on non-function")
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return machine.Call(this, arg(args, 0), rest)
	})
	method(machine, functionProto, "apply", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !this.IsCallable() {
			return vm.Undefined, machine.NewTypeError("Function.prototype.apply was called on %s, which is not a function", machine.ToDisplayString(this))
		}
		argArray := arg(args, 1)
		if argArray.IsNullish() {
			return machine.Call(this, arg(args, 0), nil)
		}
		list, err := createListFromArrayLike(machine, argArray)
		if err != nil {
			return vm.Undefined, err
		}
		return machine.Call(this, arg(args, 0), list)
	})
	method(machine, functionProto, "bind", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := this.AsObject()
		if target == nil || !target.IsCallable() {
			return vm.Undefined, machine.NewTypeError("Bind must be called on a function")
		}
		var bound []vm.Value
		if len(args) > 1 {
			bound = args[1:]
		}
		fn := machine.NewBoundFunction(target, arg(args, 0), bound)

		length := 0.0
		if target.HasOwnProperty(vm.StringKey("length")) {
			l, err := machine.GetStr(target, "length")
			if err != nil {
				return vm.Undefined, err
			}
			if l.IsNumber() {
				length = max(0, vm.IntegerOrInfinity(l.AsNumber())-float64(len(bound)))
			}
		}
		fn.SetOwn("length", vm.NumberValue(length), vm.FlagConfigurable)

		name, err := machine.GetStr(target, "name")
		if err != nil {
			return vm.Undefined, err
		}
		n := ""
		if name.IsString() {
			n = name.AsString()
		}
		fn.SetOwn("name", vm.StringValue("bound "+n), vm.FlagConfigurable)
		return vm.ObjectValue(fn), nil
	})
	method(machine, functionProto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, ok := vm.FunctionSource(this.AsObject())
		if !ok {
			return vm.Undefined, machine.NewTypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		return vm.StringValue(s), nil
	})
	hasInstance := machine.NewNativeFunction("[Symbol.hasInstance]", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := machine.OrdinaryHasInstance(this, arg(args, 0))
		return vm.BoolValue(ok), err
	})
	functionProto.SetOwnKey(vm.SymbolKey(vm.SymHasInstance), vm.ObjectValue(hasInstance), vm.FlagsNone)

	// %ThrowTypeError% guards the legacy caller and arguments accessors
	thrower := machine.NewNativeFunction("", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Undefined, machine.NewTypeError("'caller', 'callee', and 'arguments' properties may not be accessed on strict mode functions or the arguments objects for calls to them")
	})
	thrower.SetIntegrity(true)
	in.ThrowTypeError = thrower
	functionProto.SetAccessor(vm.StringKey("caller"), thrower, thrower, vm.FlagConfigurable)
	functionProto.SetAccessor(vm.StringKey("arguments"), thrower, thrower, vm.FlagConfigurable)

	functionCtor := dynamicFunctionConstructor(machine, "Function", dynamicNormal)
	linkConstructor(functionCtor, functionProto)
	in.Function = functionCtor

	// Generator, async and async generator function constructors are not
	// globals; they are reached through the prototypes of their instances.
	kinds := []struct {
		name   string
		kind   dynamicKind
		proto  **vm.Object
		tag    string
		linked **vm.Object // prototype of instances' "prototype" objects
	}{
		{"GeneratorFunction", dynamicGenerator, &in.GeneratorFunctionProto, "GeneratorFunction", &in.GeneratorPrototype},
		{"AsyncFunction", dynamicAsync, &in.AsyncFunctionPrototype, "AsyncFunction", nil},
		{"AsyncGeneratorFunction", dynamicAsyncGenerator, &in.AsyncGeneratorFunctionPro, "AsyncGeneratorFunction", &in.AsyncGeneratorPrototype},
	}
	for _, k := range kinds {
		proto := machine.NewObjectWithProto(functionProto)
		toStringTag(proto, k.tag)
		ctor := dynamicFunctionConstructor(machine, k.name, k.kind)
		ctor.SetPrototypeOf(functionCtor)
		ctor.SetOwn("prototype", vm.ObjectValue(proto), vm.FlagsNone)
		proto.SetOwn("constructor", vm.ObjectValue(ctor), vm.FlagConfigurable)
		*k.proto = proto
		if k.linked != nil {
			// The instance prototype objects are created by the generator
			// initializers; reserve them here so both sides can link.
			*k.linked = machine.NewObjectWithProto(nil)
			proto.SetOwn("prototype", vm.ObjectValue(*k.linked), vm.FlagConfigurable)
			(*k.linked).SetOwn("constructor", vm.ObjectValue(proto), vm.FlagConfigurable)
		}
	}

	return ctx.DefineGlobal("Function", vm.ObjectValue(functionCtor))
}

type dynamicKind int

const (
	dynamicNormal dynamicKind = iota
	dynamicGenerator
	dynamicAsync
	dynamicAsyncGenerator
)

func (k dynamicKind) prefix() string {
	switch k {
	case dynamicGenerator:
		return "function*"
	case dynamicAsync:
		return "async function"
	case dynamicAsyncGenerator:
		return "async function*"
	}
	return "function"
}

func (k dynamicKind) fallback(in *vm.Intrinsics) *vm.Object {
	switch k {
	case dynamicGenerator:
		return in.GeneratorFunctionProto
	case dynamicAsync:
		return in.AsyncFunctionPrototype
	case dynamicAsyncGenerator:
		return in.AsyncGeneratorFunctionPro
	}
	return in.FunctionPrototype
}

func dynamicFunctionConstructor(machine *vm.VM, name string, kind dynamicKind) *vm.Object {
	return machine.NewNativeConstructor(name, 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return createDynamicFunction(machine, kind, args, nil)
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return createDynamicFunction(machine, kind, args, newTarget)
		})
}

// createDynamicFunction implements CreateDynamicFunction: the parameters
// and body are checked on their own before the assembled source is
// compiled as a global function.
func createDynamicFunction(machine *vm.VM, kind dynamicKind, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
	var params []string
	body := ""
	for i, a := range args {
		s, err := machine.ToString(a)
		if err != nil {
			return vm.Undefined, err
		}
		if i == len(args)-1 {
			body = s
		} else {
			params = append(params, s)
		}
	}
	paramText := strings.Join(params, ",")
	prefix := kind.prefix()

	if _, err := parseSingleFunction(machine, "("+prefix+" anonymous("+paramText+"\n) {})"); err != nil {
		return vm.Undefined, err
	}
	if _, err := parseSingleFunction(machine, "("+prefix+" anonymous(\n) {\n"+body+"\n})"); err != nil {
		return vm.Undefined, err
	}
	text := prefix + " anonymous(" + paramText + "\n) {\n" + body + "\n}"
	program, err := parseSingleFunction(machine, "("+text+")")
	if err != nil {
		return vm.Undefined, err
	}
	fnLit := program.Body[0].(*parser.ExpressionStatement).Expression.(*parser.FunctionLiteral)
	fnLit.Source = text

	tmpl, err := compileProgram(machine, program, compiler.Options{SourceName: "anonymous"})
	if err != nil {
		return vm.Undefined, err
	}
	realm := machine.CurrentRealm()
	if newTarget != nil {
		realm = machine.FunctionRealm(newTarget)
	}
	v, err := machine.RunScript(nil, tmpl, realm)
	if err != nil {
		return vm.Undefined, err
	}
	if newTarget != nil {
		proto, err := machine.GetPrototypeFromConstructor(newTarget, kind.fallback)
		if err != nil {
			return vm.Undefined, err
		}
		v.AsObject().SetPrototypeOf(proto)
	}
	return v, nil
}

// parseSingleFunction parses src and requires it to be exactly one
// parenthesized function expression.
func parseSingleFunction(machine *vm.VM, src string) (*parser.Program, error) {
	program, err := parseSource(machine, source.NewEvalSource(src))
	if err != nil {
		return nil, err
	}
	if len(program.Body) == 1 {
		if es, ok := program.Body[0].(*parser.ExpressionStatement); ok {
			if _, ok := es.Expression.(*parser.FunctionLiteral); ok {
				return program, nil
			}
		}
	}
	return nil, machine.NewSyntaxError("Arg string terminates parameters early")
}

// parseSource parses a script, reporting the first early error as a
// SyntaxError.
func parseSource(machine *vm.VM, src *source.SourceFile) (*parser.Program, error) {
	p := parser.NewParser(lexer.NewLexer(src))
	program, errs := p.ParseProgram()
	if len(errs) > 0 {
		return nil, machine.NewSyntaxError("%s", errs[0].Message())
	}
	return program, nil
}

// compileProgram compiles a parsed script, reporting compile errors as a
// SyntaxError.
func compileProgram(machine *vm.VM, program *parser.Program, opts compiler.Options) (*vm.FunctionTemplate, error) {
	tmpl, errs := compiler.NewCompiler(opts).Compile(program)
	if len(errs) > 0 {
		return nil, machine.NewSyntaxError("%s", errs[0].Message())
	}
	return tmpl, nil
}
