package vm

// FunctionKind selects the calling convention of compiled code.
type FunctionKind uint8

const (
	FuncNormal FunctionKind = iota
	FuncArrow
	FuncMethod
	FuncGetter
	FuncSetter
	FuncClassConstructor
	FuncDerivedConstructor
	FuncFieldInit // synthesized instance/static element initializer
	FuncScript
)

// FunctionTemplate is the compiled, realm-independent form of a function.
// Closures instantiate it against an environment.
type FunctionTemplate struct {
	Name       string
	Kind       FunctionKind
	Strict     bool
	Async      bool
	Generator  bool
	Length     int
	Scope      *ScopeInfo // shape of the function environment
	Chunk      *Chunk
	Source     string // source text returned by Function.prototype.toString
	SourceName string

	// ParamSlots maps argument indices to function environment slots for
	// a mapped arguments object; nil selects an unmapped one. Duplicate
	// parameter names map only their last occurrence.
	ParamSlots []int

	// Script templates only.
	GlobalDecls *GlobalDecls
}

// IsConstructor reports whether closures of t have [[Construct]].
func (t *FunctionTemplate) IsConstructor() bool {
	switch t.Kind {
	case FuncNormal:
		return !t.Async && !t.Generator
	case FuncClassConstructor, FuncDerivedConstructor:
		return true
	}
	return false
}

// IsClassConstructor reports whether calling without new must throw.
func (t *FunctionTemplate) IsClassConstructor() bool {
	return t.Kind == FuncClassConstructor || t.Kind == FuncDerivedConstructor
}

// lexicalThis reports whether this, arguments and new.target come from
// the enclosing scope.
func (t *FunctionTemplate) lexicalThis() bool {
	return t.Kind == FuncArrow || t.Kind == FuncScript
}

// NativeFunc implements [[Call]] of a builtin.
type NativeFunc func(vm *VM, this Value, args []Value) (Value, error)

// NativeConstructor implements [[Construct]] of a builtin. newTarget is
// never nil.
type NativeConstructor func(vm *VM, args []Value, newTarget *Object) (Value, error)

// Function is the callable state of a function object: either a closure
// over compiled code or a native.
type Function struct {
	Template  *FunctionTemplate
	Env       *Env
	Home      *Object // [[HomeObject]] for super lookups
	FieldInit *Object // class constructors: instance element initializer
	Realm     *Realm

	Native     NativeFunc
	NativeCtor NativeConstructor
	// Captured lists values a native closes over so the collector can
	// see them.
	Captured []Value

	constructor bool
}

// IsNative reports whether the function is implemented in Go.
func (f *Function) IsNative() bool { return f.Native != nil || f.NativeCtor != nil }

// BoundFunction is the internal state of a bound function exotic object.
type BoundFunction struct {
	Target *Object
	This   Value
	Args   []Value
}

// NewNativeFunction creates a builtin function object in the current realm.
func (vm *VM) NewNativeFunction(name string, length int, fn NativeFunc) *Object {
	r := vm.realm
	o := vm.allocObject(ClassFunction, r.Intrinsics.FunctionPrototype)
	o.fn = &Function{Native: fn, Realm: r}
	o.SetOwn("length", IntValue(length), FlagConfigurable)
	o.SetOwn("name", StringValue(name), FlagConfigurable)
	return o
}

// NewNativeConstructor creates a builtin constructor. call may be nil, in
// which case calling without new throws a TypeError.
func (vm *VM) NewNativeConstructor(name string, length int, call NativeFunc, construct NativeConstructor) *Object {
	if call == nil {
		call = func(vm *VM, _ Value, _ []Value) (Value, error) {
			return Undefined, vm.NewTypeError("Constructor %s requires 'new'", name)
		}
	}
	o := vm.NewNativeFunction(name, length, call)
	o.fn.NativeCtor = construct
	o.fn.constructor = true
	return o
}

// NativeClosure wraps fn and records the values it captures.
func (vm *VM) NativeClosure(name string, length int, captured []Value, fn NativeFunc) *Object {
	o := vm.NewNativeFunction(name, length, fn)
	o.fn.Captured = captured
	return o
}

// newClosure instantiates a compiled function (OpClosure).
func (vm *VM) newClosure(t *FunctionTemplate, env *Env, home *Object) *Object {
	r := vm.realm
	in := &r.Intrinsics
	proto := in.FunctionPrototype
	switch {
	case t.Async && t.Generator:
		proto = in.AsyncGeneratorFunctionPro
	case t.Generator:
		proto = in.GeneratorFunctionProto
	case t.Async:
		proto = in.AsyncFunctionPrototype
	}
	if proto == nil {
		proto = in.FunctionPrototype
	}
	o := vm.allocObject(ClassFunction, proto)
	o.fn = &Function{Template: t, Env: env, Home: home, Realm: r, constructor: t.IsConstructor()}
	o.SetOwn("length", IntValue(t.Length), FlagConfigurable)
	o.SetOwn("name", StringValue(t.Name), FlagConfigurable)

	switch {
	case t.Generator:
		gp := in.GeneratorPrototype
		if t.Async {
			gp = in.AsyncGeneratorPrototype
		}
		p := vm.allocObject(ClassObject, gp)
		o.SetOwn("prototype", ObjectValue(p), FlagWritable)
	case t.Kind == FuncNormal && !t.Async:
		p := vm.NewObject()
		p.SetOwn("constructor", ObjectValue(o), FlagsHidden)
		o.SetOwn("prototype", ObjectValue(p), FlagWritable)
	}
	return o
}

// SetFunctionName implements SetFunctionName for closures that were
// created anonymous.
func (vm *VM) SetFunctionName(fn *Object, key PropertyKey, prefix string) {
	fn.DefineOwnProperty(StringKey("name"), DataDescriptor(StringValue(functionName(key, prefix)), FlagConfigurable))
}

// NewBoundFunction implements BoundFunctionCreate.
func (vm *VM) NewBoundFunction(target *Object, this Value, args []Value) *Object {
	o := vm.allocObject(ClassBoundFunction, target.proto)
	o.Internal = &BoundFunction{Target: target, This: this, Args: append([]Value(nil), args...)}
	return o
}

// FunctionRealm returns the realm a function was created in
// (GetFunctionRealm).
func (vm *VM) FunctionRealm(o *Object) *Realm {
	for i := 0; o != nil && i < maxProtoChain; i++ {
		if o.class == ClassBoundFunction {
			o = o.Internal.(*BoundFunction).Target
			continue
		}
		if o.fn != nil && o.fn.Realm != nil {
			return o.fn.Realm
		}
		break
	}
	return vm.realm
}

// GetPrototypeFromConstructor reads newTarget.prototype, falling back to
// the named intrinsic of newTarget's realm when it is not an object.
func (vm *VM) GetPrototypeFromConstructor(newTarget *Object, fallback func(*Intrinsics) *Object) (*Object, error) {
	if newTarget == nil {
		return fallback(&vm.realm.Intrinsics), nil
	}
	p, err := vm.GetStr(newTarget, "prototype")
	if err != nil {
		return nil, err
	}
	if po := p.AsObject(); po != nil {
		return po, nil
	}
	return fallback(&vm.FunctionRealm(newTarget).Intrinsics), nil
}

// makeClassPrototype links a class constructor and its prototype object.
func (vm *VM) makeClassPrototype(ctor *Object, proto *Object) {
	ctor.SetOwn("prototype", ObjectValue(proto), FlagsNone)
	proto.SetOwn("constructor", ObjectValue(ctor), FlagsHidden)
}

// FunctionSource returns the text reported by Function.prototype.toString.
func FunctionSource(o *Object) (string, bool) {
	if o == nil || !o.IsCallable() {
		return "", false
	}
	if o.fn != nil && o.fn.Template != nil && o.fn.Template.Source != "" {
		return o.fn.Template.Source, true
	}
	name := ""
	if p, ok := o.GetOwnProperty(StringKey("name")); ok && p.Value.IsString() {
		name = p.Value.AsString()
	}
	return "function " + name + "() { [native code] }", true
}
