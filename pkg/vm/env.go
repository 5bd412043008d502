package vm

// BindingFlags describe a slot of a compiled scope.
type BindingFlags uint8

const (
	BindingMutable  BindingFlags = 1 << iota // let, var, parameters
	BindingLexical                           // subject to TDZ
	BindingFuncName                          // named function expression self-reference
	BindingHidden                            // this, new.target, home object and similar
)

// ScopeKind distinguishes the scopes that materialize environments.
type ScopeKind uint8

const (
	ScopeFunction ScopeKind = iota
	ScopeBlock
	ScopeCatch
	ScopeClass
	ScopeWith
)

// ScopeInfo is the static shape of an environment record, produced by the
// compiler. Names let dynamic lookups (inside with) find slots by name.
type ScopeInfo struct {
	Kind  ScopeKind
	Names []string
	Flags []BindingFlags
}

// Lookup returns the slot of name, or -1.
func (si *ScopeInfo) Lookup(name string) int {
	for i, n := range si.Names {
		if n == name && si.Flags[i]&BindingHidden == 0 {
			return i
		}
	}
	return -1
}

// Env is a heap environment record. Closures capture Envs by reference so
// mutation after capture stays visible. An Env with a with object is an
// object environment record.
type Env struct {
	slots  []Value
	outer  *Env
	info   *ScopeInfo
	with   *Object
	marked bool
}

// NewEnv creates a declarative environment for info. Lexical bindings start
// uninitialized.
func (vm *VM) NewEnv(info *ScopeInfo, outer *Env) *Env {
	e := &Env{outer: outer, info: info}
	if info != nil && len(info.Names) > 0 {
		e.slots = make([]Value, len(info.Names))
		for i, f := range info.Flags {
			if f&BindingLexical != 0 {
				e.slots[i] = Uninitialized
			} else {
				e.slots[i] = Undefined
			}
		}
	}
	vm.heap.registerEnv(e)
	return e
}

func (vm *VM) newWithEnv(obj *Object, outer *Env) *Env {
	e := &Env{outer: outer, with: obj, info: &ScopeInfo{Kind: ScopeWith}}
	vm.heap.registerEnv(e)
	return e
}

// copyEnv creates the next iteration environment of a for(let ...) loop.
func (vm *VM) copyEnv(e *Env) *Env {
	c := &Env{outer: e.outer, info: e.info, with: e.with}
	c.slots = append([]Value(nil), e.slots...)
	vm.heap.registerEnv(c)
	return c
}

func (e *Env) Outer() *Env { return e.outer }

// at walks depth hops outward.
func (e *Env) at(depth int) *Env {
	for ; depth > 0; depth-- {
		e = e.outer
	}
	return e
}

func (e *Env) name(slot int) string {
	if e.info != nil && slot < len(e.info.Names) {
		return e.info.Names[slot]
	}
	return "?"
}

// --- Realm ---

// Intrinsics are the well-known objects of a realm that the VM itself
// needs. pkg/builtins fills them while installing the standard library.
type Intrinsics struct {
	ObjectPrototype           *Object
	FunctionPrototype         *Object
	ArrayPrototype            *Object
	StringPrototype           *Object
	NumberPrototype           *Object
	BooleanPrototype          *Object
	SymbolPrototype           *Object
	BigIntPrototype           *Object
	ErrorPrototype            *Object
	EvalErrorPrototype        *Object
	RangeErrorPrototype       *Object
	ReferenceErrorPrototype   *Object
	SyntaxErrorPrototype      *Object
	TypeErrorPrototype        *Object
	URIErrorPrototype         *Object
	AggregateErrorPrototype   *Object
	IteratorPrototype         *Object
	AsyncIteratorPrototype    *Object
	ArrayIteratorPrototype    *Object
	GeneratorPrototype        *Object
	AsyncGeneratorPrototype   *Object
	GeneratorFunctionProto    *Object
	AsyncFunctionPrototype    *Object
	AsyncGeneratorFunctionPro *Object
	AsyncFromSyncIteratorProt *Object
	PromisePrototype          *Object
	Promise                   *Object
	RegExpPrototype           *Object
	MapPrototype              *Object
	SetPrototype              *Object
	WeakMapPrototype          *Object
	WeakSetPrototype          *Object
	DatePrototype             *Object
	WeakRefPrototype          *Object
	FinRegistryPrototype      *Object
	Array                     *Object
	Object                    *Object
	Function                  *Object
	ArrayProtoValues          *Object
	ThrowTypeError            *Object
	Eval                      *Object
}

type globalBinding struct {
	value   Value
	mutable bool
}

// Realm is a global environment with its own intrinsics. Realms of one VM
// share no objects.
type Realm struct {
	vm         *VM
	Global     *Object
	Intrinsics Intrinsics

	lexical   map[string]*globalBinding
	lexOrder  []string
	templates map[*TemplateSite]*Object
	extra     map[string]*Object
	// Host carries objects the embedder attaches to the realm (the test
	// harness object, for example). Values here are GC roots.
	Host map[string]Value
}

// NewRealm creates a realm with bare Object.prototype, Function.prototype
// and global object. Standard builtins are installed by pkg/builtins.
func (vm *VM) NewRealm() *Realm {
	r := &Realm{
		vm:        vm,
		lexical:   make(map[string]*globalBinding),
		templates: make(map[*TemplateSite]*Object),
		extra:     make(map[string]*Object),
		Host:      make(map[string]Value),
	}
	objProto := vm.allocObject(ClassObject, nil)
	fnProto := vm.allocObject(ClassFunction, objProto)
	fnProto.fn = &Function{Realm: r, Native: func(*VM, Value, []Value) (Value, error) { return Undefined, nil }}
	r.Intrinsics.ObjectPrototype = objProto
	r.Intrinsics.FunctionPrototype = fnProto
	r.Global = vm.allocObject(ClassObject, objProto)
	vm.realms = append(vm.realms, r)
	if vm.realm == nil {
		vm.realm = r
	}
	return r
}

func (r *Realm) VM() *VM { return r.vm }

// SetIntrinsic records a named intrinsic that has no Intrinsics field
// (%TypedArray%-style helpers of the builtins package).
func (r *Realm) SetIntrinsic(name string, o *Object) { r.extra[name] = o }

// Intrinsic returns a named intrinsic recorded with SetIntrinsic.
func (r *Realm) Intrinsic(name string) *Object { return r.extra[name] }

// GlobalThis returns the global object as a value.
func (r *Realm) GlobalThis() Value { return ObjectValue(r.Global) }

// HasLexical reports whether a top-level let/const/class binding exists.
func (r *Realm) HasLexical(name string) bool {
	_, ok := r.lexical[name]
	return ok
}

// LexicalNames lists the global lexical bindings in declaration order.
func (r *Realm) LexicalNames() []string { return r.lexOrder }

// LookupLexical returns the value of a global lexical binding.
func (r *Realm) LookupLexical(name string) (Value, bool) {
	b, ok := r.lexical[name]
	if !ok {
		return Undefined, false
	}
	return b.value, true
}

// DefineGlobal creates a writable, configurable, non-enumerable global
// property, the way builtin globals are installed.
func (r *Realm) DefineGlobal(name string, v Value) {
	r.Global.SetOwn(name, v, FlagsHidden)
}

// SetCurrentRealm makes r the realm used by native code and new scripts.
func (vm *VM) SetCurrentRealm(r *Realm) { vm.realm = r }

// CurrentRealm returns the realm of the running execution context.
func (vm *VM) CurrentRealm() *Realm { return vm.realm }

// Realms lists every realm created by the VM.
func (vm *VM) Realms() []*Realm { return vm.realms }

// GlobalDecls lists the top-level declarations of a script, instantiated
// before the script runs (GlobalDeclarationInstantiation).
type GlobalDecls struct {
	Vars      []string
	Funcs     []string
	Lexicals  []string
	Consts    []bool // parallel to Lexicals
	Deletable bool   // var bindings created by eval code are configurable
}

func (vm *VM) declareGlobals(r *Realm, d *GlobalDecls) error {
	if d == nil {
		return nil
	}
	g := r.Global
	for _, name := range d.Lexicals {
		if _, ok := r.lexical[name]; ok {
			return vm.NewSyntaxError("Identifier '%s' has already been declared", name)
		}
		if p, ok := g.GetOwnProperty(StringKey(name)); ok && !p.Configurable() {
			return vm.NewSyntaxError("Identifier '%s' has already been declared", name)
		}
	}
	for _, names := range [][]string{d.Vars, d.Funcs} {
		for _, name := range names {
			if _, ok := r.lexical[name]; ok {
				return vm.NewSyntaxError("Identifier '%s' has already been declared", name)
			}
		}
	}
	for _, name := range d.Funcs {
		key := StringKey(name)
		p, ok := g.GetOwnProperty(key)
		if ok && !p.Configurable() && (p.IsAccessor() || !p.Writable() || !p.Enumerable()) {
			return vm.NewTypeError("Cannot redefine global function '%s'", name)
		}
		if !ok && !g.extensible {
			return vm.NewTypeError("Cannot define global function '%s'", name)
		}
	}
	for _, name := range d.Vars {
		if !g.HasOwnProperty(StringKey(name)) && !g.extensible {
			return vm.NewTypeError("Cannot define global variable '%s'", name)
		}
	}

	flags := FlagWritable | FlagEnumerable
	if d.Deletable {
		flags |= FlagConfigurable
	}
	for _, name := range d.Funcs {
		key := StringKey(name)
		if p, ok := g.GetOwnProperty(key); ok && !p.Configurable() {
			continue
		}
		g.DefineOwnProperty(key, DataDescriptor(Undefined, flags))
	}
	for _, name := range d.Vars {
		key := StringKey(name)
		if !g.HasOwnProperty(key) {
			g.DefineOwnProperty(key, DataDescriptor(Undefined, flags))
		}
	}
	for i, name := range d.Lexicals {
		r.lexical[name] = &globalBinding{value: Uninitialized, mutable: !d.Consts[i]}
		r.lexOrder = append(r.lexOrder, name)
	}
	return nil
}

// initGlobalFunction stores a hoisted function declaration.
func (vm *VM) initGlobalFunction(r *Realm, name string, fn Value, deletable bool) error {
	key := StringKey(name)
	p, ok := r.Global.GetOwnProperty(key)
	if ok && !p.Configurable() {
		_, err := vm.Set(r.Global, key, fn, ObjectValue(r.Global))
		return err
	}
	r.Global.DefineOwnProperty(key, PropertyDescriptor{
		Value: fn, HasValue: true,
		Writable: true, HasWritable: true,
		Enumerable: true, HasEnumerable: true,
		HasConfigurable: true, Configurable: deletable,
	})
	return nil
}

func (vm *VM) getGlobal(r *Realm, name string) (Value, error) {
	if b, ok := r.lexical[name]; ok {
		if b.value.IsUninitialized() {
			return Undefined, vm.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		return b.value, nil
	}
	key := StringKey(name)
	if !r.Global.HasProperty(key) {
		return Undefined, vm.NewReferenceError("%s is not defined", name)
	}
	return vm.Get(r.Global, key, ObjectValue(r.Global))
}

func (vm *VM) typeofGlobal(r *Realm, name string) (Value, error) {
	if b, ok := r.lexical[name]; ok {
		if b.value.IsUninitialized() {
			return Undefined, vm.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		return StringValue(TypeOf(b.value)), nil
	}
	key := StringKey(name)
	if !r.Global.HasProperty(key) {
		return StringValue("undefined"), nil
	}
	v, err := vm.Get(r.Global, key, ObjectValue(r.Global))
	if err != nil {
		return Undefined, err
	}
	return StringValue(TypeOf(v)), nil
}

func (vm *VM) setGlobal(r *Realm, name string, v Value, strict bool) error {
	if b, ok := r.lexical[name]; ok {
		if b.value.IsUninitialized() {
			return vm.NewReferenceError("Cannot access '%s' before initialization", name)
		}
		if !b.mutable {
			return vm.NewTypeError("Assignment to constant variable.")
		}
		b.value = v
		return nil
	}
	key := StringKey(name)
	if !r.Global.HasProperty(key) {
		if strict {
			return vm.NewReferenceError("%s is not defined", name)
		}
	}
	return vm.PutValue(ObjectValue(r.Global), key, v, strict)
}

func (vm *VM) initGlobalLexical(r *Realm, name string, v Value) {
	if b, ok := r.lexical[name]; ok {
		b.value = v
		return
	}
	r.lexical[name] = &globalBinding{value: v, mutable: true}
	r.lexOrder = append(r.lexOrder, name)
}

func (vm *VM) deleteGlobal(r *Realm, name string) bool {
	if _, ok := r.lexical[name]; ok {
		return false
	}
	return r.Global.Delete(StringKey(name))
}

// --- Dynamic name resolution (inside with statements) ---

// lookupName walks the runtime environment chain by name. found is false
// when the name must be resolved in the global scope.
func (vm *VM) lookupName(env *Env, name string) (e *Env, slot int, found bool, err error) {
	key := StringKey(name)
	for ; env != nil; env = env.outer {
		if env.with != nil {
			if !env.with.HasProperty(key) {
				continue
			}
			blocked, err := vm.unscopable(env.with, key)
			if err != nil {
				return nil, 0, false, err
			}
			if blocked {
				continue
			}
			return env, -1, true, nil
		}
		if env.info == nil {
			continue
		}
		if i := env.info.Lookup(name); i >= 0 {
			return env, i, true, nil
		}
	}
	return nil, 0, false, nil
}

func (vm *VM) unscopable(obj *Object, key PropertyKey) (bool, error) {
	u, err := vm.Get(obj, SymbolKey(SymUnscopables), ObjectValue(obj))
	if err != nil {
		return false, err
	}
	uo := u.AsObject()
	if uo == nil {
		return false, nil
	}
	v, err := vm.Get(uo, key, u)
	if err != nil {
		return false, err
	}
	return ToBoolean(v), nil
}

func (vm *VM) getName(r *Realm, env *Env, name string, strict bool) (Value, Value, error) {
	e, slot, found, err := vm.lookupName(env, name)
	if err != nil {
		return Undefined, Undefined, err
	}
	if !found {
		v, err := vm.getGlobal(r, name)
		return v, Undefined, err
	}
	if slot < 0 {
		key := StringKey(name)
		// the binding may have been deleted since HasProperty
		if !e.with.HasProperty(key) {
			if strict {
				return Undefined, Undefined, vm.NewReferenceError("%s is not defined", name)
			}
			return Undefined, ObjectValue(e.with), nil
		}
		v, err := vm.Get(e.with, key, ObjectValue(e.with))
		return v, ObjectValue(e.with), err
	}
	v := e.slots[slot]
	if v.IsUninitialized() {
		return Undefined, Undefined, vm.NewReferenceError("Cannot access '%s' before initialization", name)
	}
	return v, Undefined, nil
}

func (vm *VM) setName(r *Realm, env *Env, name string, v Value, strict bool) error {
	e, slot, found, err := vm.lookupName(env, name)
	if err != nil {
		return err
	}
	if !found {
		return vm.setGlobal(r, name, v, strict)
	}
	if slot < 0 {
		key := StringKey(name)
		if strict && !e.with.HasProperty(key) {
			return vm.NewReferenceError("%s is not defined", name)
		}
		return vm.PutValue(ObjectValue(e.with), key, v, strict)
	}
	return vm.assignSlot(e, slot, v, strict)
}

// assignSlot stores into a declarative binding honouring TDZ and constness.
func (vm *VM) assignSlot(e *Env, slot int, v Value, strict bool) error {
	if e.slots[slot].IsUninitialized() {
		return vm.NewReferenceError("Cannot access '%s' before initialization", e.name(slot))
	}
	flags := e.info.Flags[slot]
	if flags&BindingMutable == 0 {
		if flags&BindingFuncName != 0 && !strict {
			return nil
		}
		return vm.NewTypeError("Assignment to constant variable.")
	}
	e.slots[slot] = v
	return nil
}

func (vm *VM) typeofName(r *Realm, env *Env, name string) (Value, error) {
	_, _, found, err := vm.lookupName(env, name)
	if err != nil {
		return Undefined, err
	}
	if !found {
		return vm.typeofGlobal(r, name)
	}
	v, _, err := vm.getName(r, env, name, false)
	if err != nil {
		return Undefined, err
	}
	return StringValue(TypeOf(v)), nil
}

func (vm *VM) deleteName(r *Realm, env *Env, name string) (bool, error) {
	e, slot, found, err := vm.lookupName(env, name)
	if err != nil {
		return false, err
	}
	if !found {
		return vm.deleteGlobal(r, name), nil
	}
	if slot < 0 {
		return e.with.Delete(StringKey(name)), nil
	}
	return false, nil
}
