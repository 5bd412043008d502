// Package builtins installs the standard library objects of ecmavm into a
// realm: constructors, prototypes and the global functions.
package builtins

import (
	"ecmavm/pkg/vm"
)

// arg returns args[i] or undefined.
func arg(args []vm.Value, i int) vm.Value {
	if i < len(args) {
		return args[i]
	}
	return vm.Undefined
}

// method installs a builtin method (writable, configurable, not enumerable).
func method(machine *vm.VM, o *vm.Object, name string, length int, fn vm.NativeFunc) *vm.Object {
	f := machine.NewNativeFunction(name, length, fn)
	o.SetOwn(name, vm.ObjectValue(f), vm.FlagsHidden)
	return f
}

// symbolMethod installs a builtin method under a well-known symbol. The
// function name is "[description]".
func symbolMethod(machine *vm.VM, o *vm.Object, sym *vm.Symbol, length int, fn vm.NativeFunc) *vm.Object {
	f := machine.NewNativeFunction("["+sym.Description+"]", length, fn)
	o.SetOwnKey(vm.SymbolKey(sym), vm.ObjectValue(f), vm.FlagsHidden)
	return f
}

// getter installs a configurable accessor with only a getter.
func getter(machine *vm.VM, o *vm.Object, key vm.PropertyKey, fn vm.NativeFunc) *vm.Object {
	name := key.Name()
	if key.IsSymbol() {
		name = "[" + key.Symbol().Description + "]"
	}
	f := machine.NewNativeFunction("get "+name, 0, fn)
	o.SetAccessor(key, f, nil, vm.FlagConfigurable)
	return f
}

// constant installs a non-writable, non-enumerable, non-configurable value.
func constant(o *vm.Object, name string, v vm.Value) {
	o.SetOwn(name, v, vm.FlagsNone)
}

// toStringTag installs the Symbol.toStringTag of a prototype or namespace.
func toStringTag(o *vm.Object, tag string) {
	o.SetOwnKey(vm.SymbolKey(vm.SymToStringTag), vm.StringValue(tag), vm.FlagConfigurable)
}

// linkConstructor connects a constructor and its prototype object.
func linkConstructor(ctor, proto *vm.Object) {
	ctor.SetOwn("prototype", vm.ObjectValue(proto), vm.FlagsNone)
	proto.SetOwn("constructor", vm.ObjectValue(ctor), vm.FlagsHidden)
}

// speciesGetter installs the get [Symbol.species] accessor returning this.
func speciesGetter(machine *vm.VM, ctor *vm.Object) {
	getter(machine, ctor, vm.SymbolKey(vm.SymSpecies), func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return this, nil
	})
}

// thisClass returns this when it is an object of class c.
func thisClass(machine *vm.VM, this vm.Value, c vm.Class, method string) (*vm.Object, error) {
	o := this.AsObject()
	if o == nil || o.Class() != c {
		return nil, machine.NewTypeError("Method %s called on incompatible receiver %s", method, machine.ToDisplayString(this))
	}
	return o, nil
}

// callbackArg returns args[i] when it is callable.
func callbackArg(machine *vm.VM, args []vm.Value, i int) (vm.Value, error) {
	fn := arg(args, i)
	if !fn.IsCallable() {
		return vm.Undefined, machine.NewTypeError("%s is not a function", machine.ToDisplayString(fn))
	}
	return fn, nil
}

// speciesConstructor implements SpeciesConstructor(O, defaultConstructor).
func speciesConstructor(machine *vm.VM, o *vm.Object, def *vm.Object) (vm.Value, error) {
	c, err := machine.GetStr(o, "constructor")
	if err != nil {
		return vm.Undefined, err
	}
	if c.IsUndefined() {
		return vm.ObjectValue(def), nil
	}
	co := c.AsObject()
	if co == nil {
		return vm.Undefined, machine.NewTypeError("object.constructor is not an object")
	}
	s, err := machine.Get(co, vm.SymbolKey(vm.SymSpecies), c)
	if err != nil {
		return vm.Undefined, err
	}
	if s.IsNullish() {
		return vm.ObjectValue(def), nil
	}
	if !s.IsConstructor() {
		return vm.Undefined, machine.NewTypeError("object.constructor[Symbol.species] is not a constructor")
	}
	return s, nil
}

// createListFromArrayLike implements CreateListFromArrayLike.
func createListFromArrayLike(machine *vm.VM, v vm.Value) ([]vm.Value, error) {
	o := v.AsObject()
	if o == nil {
		return nil, machine.NewTypeError("CreateListFromArrayLike called on non-object")
	}
	if elems, ok := o.ArrayElements(); ok {
		out := make([]vm.Value, len(elems))
		copy(out, elems)
		return out, nil
	}
	n, err := machine.LengthOfArrayLike(o)
	if err != nil {
		return nil, err
	}
	if n > 1<<24 {
		return nil, machine.NewRangeError("Too many arguments in function call")
	}
	out := make([]vm.Value, n)
	for i := range out {
		e, err := machine.Get(o, vm.IndexKey(uint32(i)), v)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
