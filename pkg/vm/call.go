package vm

// Call implements [[Call]] for any callable value.
func (vm *VM) Call(fn Value, this Value, args []Value) (Value, error) {
	o := fn.AsObject()
	if o == nil || !o.IsCallable() {
		return Undefined, vm.NewTypeError("%s is not a function", describeForError(fn))
	}
	return vm.callObject(o, this, args)
}

func (vm *VM) callObject(o *Object, this Value, args []Value) (Value, error) {
	for o.class == ClassBoundFunction {
		b := o.Internal.(*BoundFunction)
		o, this, args = b.Target, b.This, joinArgs(b.Args, args)
	}
	f := o.fn
	if f.Template == nil {
		return vm.callNative(o, this, args)
	}
	if err := vm.pushCallFrame(o, this, args, Undefined); err != nil {
		return Undefined, err
	}
	vm.frames[vm.fp-1].boundary = true
	return vm.run(vm.fp - 1)
}

func joinArgs(bound, args []Value) []Value {
	if len(bound) == 0 {
		return args
	}
	all := make([]Value, 0, len(bound)+len(args))
	all = append(all, bound...)
	return append(all, args...)
}

func (vm *VM) enterNative(f *Function) (*Realm, error) {
	if vm.fp+vm.nativeDepth >= vm.cfg.VM.MaxCallDepth {
		return nil, vm.NewRangeError("Maximum call stack size exceeded")
	}
	prev := vm.realm
	if f.Realm != nil {
		vm.realm = f.Realm
	}
	vm.nativeDepth++
	return prev, nil
}

func (vm *VM) leaveNative(prev *Realm) {
	vm.nativeDepth--
	vm.realm = prev
}

func (vm *VM) callNative(o *Object, this Value, args []Value) (Value, error) {
	f := o.fn
	prev, err := vm.enterNative(f)
	if err != nil {
		return Undefined, err
	}
	defer vm.leaveNative(prev)
	if f.Native == nil {
		return Undefined, vm.NewTypeError("Constructor requires 'new'")
	}
	return f.Native(vm, this, args)
}

// Construct implements [[Construct]]. An undefined newTarget defaults to
// ctor.
func (vm *VM) Construct(ctor Value, args []Value, newTarget Value) (Value, error) {
	o := ctor.AsObject()
	if o == nil || !o.IsConstructor() {
		return Undefined, vm.NewTypeError("%s is not a constructor", describeForError(ctor))
	}
	nt := o
	if t := newTarget.AsObject(); t != nil {
		nt = t
	}
	return vm.constructObject(o, args, nt)
}

func (vm *VM) constructObject(o *Object, args []Value, nt *Object) (Value, error) {
	for o.class == ClassBoundFunction {
		b := o.Internal.(*BoundFunction)
		if nt == o {
			nt = b.Target
		}
		o, args = b.Target, joinArgs(b.Args, args)
	}
	f := o.fn
	if f.Template == nil {
		if f.NativeCtor == nil {
			return Undefined, vm.NewTypeError("%s is not a constructor", describeForError(ObjectValue(o)))
		}
		prev, err := vm.enterNative(f)
		if err != nil {
			return Undefined, err
		}
		defer vm.leaveNative(prev)
		return f.NativeCtor(vm, args, nt)
	}
	this := Uninitialized
	if f.Template.Kind != FuncDerivedConstructor {
		proto, err := vm.GetPrototypeFromConstructor(nt, func(in *Intrinsics) *Object { return in.ObjectPrototype })
		if err != nil {
			return Undefined, err
		}
		// Class constructors initialize fields in their prologue.
		this = ObjectValue(vm.allocObject(ClassObject, proto))
	}
	if err := vm.pushCallFrame(o, this, args, ObjectValue(nt)); err != nil {
		return Undefined, err
	}
	fr := &vm.frames[vm.fp-1]
	fr.boundary = true
	fr.construct = true
	return vm.run(vm.fp - 1)
}

// pushCallFrame activates a compiled function. The frame is not a
// boundary; callers entering from Go mark it.
func (vm *VM) pushCallFrame(callee *Object, this Value, args []Value, newTarget Value) error {
	fn := callee.fn
	t := fn.Template
	if vm.fp >= len(vm.frames) || vm.fp+vm.nativeDepth >= vm.cfg.VM.MaxCallDepth {
		return vm.NewRangeError("Maximum call stack size exceeded")
	}
	if vm.sp+t.Chunk.MaxStack+1 >= len(vm.stack) {
		return vm.NewRangeError("Maximum call stack size exceeded")
	}
	if t.IsClassConstructor() && newTarget.IsUndefined() {
		return vm.NewTypeError("Class constructor %s cannot be invoked without 'new'", t.Name)
	}
	if !t.Strict && !t.lexicalThis() {
		if this.IsNullish() {
			this = ObjectValue(fn.Realm.Global)
		} else if !this.IsObject() {
			prev := vm.realm
			vm.realm = fn.Realm
			o, err := vm.ToObject(this)
			vm.realm = prev
			if err != nil {
				return err
			}
			this = ObjectValue(o)
		}
	}
	f := &vm.frames[vm.fp]
	*f = Frame{
		callee:     callee,
		fn:         fn,
		tmpl:       t,
		chunk:      t.Chunk,
		base:       vm.sp,
		this:       this,
		newTarget:  newTarget,
		args:       append([]Value(nil), args...),
		completion: Undefined,
		realm:      fn.Realm,
		prevRealm:  vm.realm,
	}
	f.env = vm.NewEnv(t.Scope, fn.Env)
	vm.fp++
	vm.realm = fn.Realm
	if t.Async {
		vm.startAsync(f)
	}
	return nil
}

// callAt performs a call whose operands occupy the stack from base
// upward. A compiled callee gets a frame in place of the operands; other
// callees run to completion and leave their result at base.
func (vm *VM) callAt(base int, fn, this Value, args []Value) error {
	o := fn.AsObject()
	if o == nil || !o.IsCallable() {
		return vm.NewTypeError("%s is not a function", describeForError(fn))
	}
	if o.fn != nil && o.fn.Template != nil {
		// pushCallFrame copies args before the slots are reused
		vm.sp = base
		return vm.pushCallFrame(o, this, args, Undefined)
	}
	v, err := vm.callObject(o, this, args)
	if err != nil {
		return err
	}
	vm.truncate(base)
	vm.push(v)
	return nil
}

// createArguments builds the arguments object of the running frame.
func (vm *VM) createArguments(f *Frame, mapped bool) *Object {
	o := vm.allocObject(ClassArguments, f.realm.Intrinsics.ObjectPrototype)
	for i, a := range f.args {
		o.insert(IndexKey(uint32(i)), Property{Value: a, Flags: FlagsDefault})
	}
	o.SetOwn("length", IntValue(len(f.args)), FlagsHidden)
	o.SetOwnKey(SymbolKey(SymIterator), ObjectValue(f.realm.Intrinsics.ArrayProtoValues), FlagsHidden)
	if mapped && f.tmpl.ParamSlots != nil {
		n := len(f.args)
		if n > len(f.tmpl.ParamSlots) {
			n = len(f.tmpl.ParamSlots)
		}
		am := &argumentsMap{env: f.env, slots: make([]int, n)}
		copy(am.slots, f.tmpl.ParamSlots[:n])
		o.Internal = am
		o.SetOwn("callee", ObjectValue(f.callee), FlagsHidden)
	} else {
		thrower := f.realm.Intrinsics.ThrowTypeError
		o.SetAccessor(StringKey("callee"), thrower, thrower, FlagsNone)
	}
	return o
}
