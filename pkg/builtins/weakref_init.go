package builtins

import (
	"ecmavm/pkg/vm"
)

type WeakRefInitializer struct{}

func (w *WeakRefInitializer) Name() string {
	return "WeakRef"
}

func (w *WeakRefInitializer) Priority() int {
	return PriorityWeakRef
}

func (w *WeakRefInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	refProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.WeakRefPrototype = refProto
	toStringTag(refProto, "WeakRef")

	refCtor := machine.NewNativeConstructor("WeakRef", 1, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			target, err := weakKey(machine, arg(args, 0), "WeakRef target")
			if err != nil {
				return vm.Undefined, err
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.WeakRefPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			machine.KeepDuringJob(target)
			return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassWeakRef, proto, &vm.WeakRef{Target: target})), nil
		})
	linkConstructor(refCtor, refProto)

	method(machine, refProto, "deref", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisClass(machine, this, vm.ClassWeakRef, "WeakRef.prototype.deref")
		if err != nil {
			return vm.Undefined, err
		}
		ref, _ := o.Internal.(*vm.WeakRef)
		if ref == nil || ref.Target == nil {
			return vm.Undefined, nil
		}
		machine.KeepDuringJob(ref.Target)
		return vm.ObjectValue(ref.Target), nil
	})

	if err := ctx.DefineGlobal("WeakRef", vm.ObjectValue(refCtor)); err != nil {
		return err
	}

	regProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.FinRegistryPrototype = regProto
	toStringTag(regProto, "FinalizationRegistry")

	regCtor := machine.NewNativeConstructor("FinalizationRegistry", 1, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			cleanup := arg(args, 0)
			if !cleanup.IsCallable() {
				return vm.Undefined, machine.NewTypeError("FinalizationRegistry: cleanup must be callable")
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.FinRegistryPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassFinalizationRegistry, proto, &vm.FinalizationRegistry{Cleanup: cleanup})), nil
		})
	linkConstructor(regCtor, regProto)

	thisRegistry := func(machine *vm.VM, this vm.Value, method string) (*vm.FinalizationRegistry, error) {
		o, err := thisClass(machine, this, vm.ClassFinalizationRegistry, method)
		if err != nil {
			return nil, err
		}
		return o.Internal.(*vm.FinalizationRegistry), nil
	}
	method(machine, regProto, "register", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		reg, err := thisRegistry(machine, this, "FinalizationRegistry.prototype.register")
		if err != nil {
			return vm.Undefined, err
		}
		target, err := weakKey(machine, arg(args, 0), "target")
		if err != nil {
			return vm.Undefined, err
		}
		held := arg(args, 1)
		if held.AsObject() == target {
			return vm.Undefined, machine.NewTypeError("FinalizationRegistry.prototype.register: target and holdings must not be same")
		}
		token := arg(args, 2)
		if !token.IsUndefined() && !token.IsObject() {
			return vm.Undefined, machine.NewTypeError("Invalid value used as unregister token")
		}
		reg.Register(target, held, token.AsObject())
		return vm.Undefined, nil
	})
	method(machine, regProto, "unregister", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		reg, err := thisRegistry(machine, this, "FinalizationRegistry.prototype.unregister")
		if err != nil {
			return vm.Undefined, err
		}
		token, err := weakKey(machine, arg(args, 0), "unregister token")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(reg.Unregister(token)), nil
	})

	return ctx.DefineGlobal("FinalizationRegistry", vm.ObjectValue(regCtor))
}
