package builtins

import (
	"ecmavm/pkg/vm"
)

type WeakMapInitializer struct{}

func (w *WeakMapInitializer) Name() string {
	return "WeakMap"
}

func (w *WeakMapInitializer) Priority() int {
	return PriorityWeakMap
}

func (w *WeakMapInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	proto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.WeakMapPrototype = proto
	toStringTag(proto, "WeakMap")

	ctor := machine.NewNativeConstructor("WeakMap", 0, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.WeakMapPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o := machine.NewObjectOfClass(vm.ClassWeakMap, proto, vm.NewWeakTable())
			if err := addEntriesFromIterable(machine, o, arg(args, 0), "set", true); err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	linkConstructor(ctor, proto)

	// Lookups with a non-object key miss rather than throw.
	method(machine, proto, "get", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakMap, "WeakMap.prototype.get")
		if err != nil {
			return vm.Undefined, err
		}
		key := arg(args, 0).AsObject()
		if key == nil {
			return vm.Undefined, nil
		}
		v, _ := table.Get(key)
		return v, nil
	})
	method(machine, proto, "set", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakMap, "WeakMap.prototype.set")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := weakKey(machine, arg(args, 0), "weak map key")
		if err != nil {
			return vm.Undefined, err
		}
		table.Set(key, arg(args, 1))
		return this, nil
	})
	method(machine, proto, "has", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakMap, "WeakMap.prototype.has")
		if err != nil {
			return vm.Undefined, err
		}
		key := arg(args, 0).AsObject()
		return vm.BoolValue(key != nil && table.Has(key)), nil
	})
	method(machine, proto, "delete", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakMap, "WeakMap.prototype.delete")
		if err != nil {
			return vm.Undefined, err
		}
		key := arg(args, 0).AsObject()
		return vm.BoolValue(key != nil && table.Delete(key)), nil
	})

	return ctx.DefineGlobal("WeakMap", vm.ObjectValue(ctor))
}

func thisWeakTable(machine *vm.VM, this vm.Value, class vm.Class, method string) (*vm.WeakTable, error) {
	o, err := thisClass(machine, this, class, method)
	if err != nil {
		return nil, err
	}
	table, ok := o.Internal.(*vm.WeakTable)
	if !ok {
		return nil, machine.NewTypeError("Method %s called on incompatible receiver %s", method, machine.ToDisplayString(this))
	}
	return table, nil
}

// weakKey accepts only objects; symbols are not held weakly.
func weakKey(machine *vm.VM, v vm.Value, what string) (*vm.Object, error) {
	o := v.AsObject()
	if o == nil {
		return nil, machine.NewTypeError("Invalid value used as %s", what)
	}
	return o, nil
}
