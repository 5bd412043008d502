package builtins

import (
	"ecmavm/pkg/vm"
)

type WeakSetInitializer struct{}

func (w *WeakSetInitializer) Name() string {
	return "WeakSet"
}

func (w *WeakSetInitializer) Priority() int {
	return PriorityWeakSet
}

func (w *WeakSetInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	proto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.WeakSetPrototype = proto
	toStringTag(proto, "WeakSet")

	ctor := machine.NewNativeConstructor("WeakSet", 0, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.WeakSetPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o := machine.NewObjectOfClass(vm.ClassWeakSet, proto, vm.NewWeakTable())
			if err := addEntriesFromIterable(machine, o, arg(args, 0), "add", false); err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	linkConstructor(ctor, proto)

	method(machine, proto, "add", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakSet, "WeakSet.prototype.add")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := weakKey(machine, arg(args, 0), "weak set value")
		if err != nil {
			return vm.Undefined, err
		}
		table.Set(key, vm.BoolValue(true))
		return this, nil
	})
	method(machine, proto, "has", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakSet, "WeakSet.prototype.has")
		if err != nil {
			return vm.Undefined, err
		}
		key := arg(args, 0).AsObject()
		return vm.BoolValue(key != nil && table.Has(key)), nil
	})
	method(machine, proto, "delete", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		table, err := thisWeakTable(machine, this, vm.ClassWeakSet, "WeakSet.prototype.delete")
		if err != nil {
			return vm.Undefined, err
		}
		key := arg(args, 0).AsObject()
		return vm.BoolValue(key != nil && table.Delete(key)), nil
	})

	return ctx.DefineGlobal("WeakSet", vm.ObjectValue(ctor))
}
