package builtins

import (
	"ecmavm/pkg/vm"
)

type BooleanInitializer struct{}

func (b *BooleanInitializer) Name() string {
	return "Boolean"
}

func (b *BooleanInitializer) Priority() int {
	return PriorityBoolean
}

func (b *BooleanInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	booleanProto := machine.NewPrimitiveWrapper(vm.BoolValue(false), in.ObjectPrototype)
	in.BooleanPrototype = booleanProto

	booleanCtor := machine.NewNativeConstructor("Boolean", 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.BoolValue(vm.ToBoolean(arg(args, 0))), nil
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.BooleanPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewPrimitiveWrapper(vm.BoolValue(vm.ToBoolean(arg(args, 0))), proto)), nil
		})
	linkConstructor(booleanCtor, booleanProto)

	method(machine, booleanProto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, err := thisBooleanValue(machine, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		if v {
			return vm.StringValue("true"), nil
		}
		return vm.StringValue("false"), nil
	})
	method(machine, booleanProto, "valueOf", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, err := thisBooleanValue(machine, this, "valueOf")
		return vm.BoolValue(v), err
	})

	return ctx.DefineGlobal("Boolean", vm.ObjectValue(booleanCtor))
}

func thisBooleanValue(machine *vm.VM, this vm.Value, name string) (bool, error) {
	if this.IsBoolean() {
		return this.AsBool(), nil
	}
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassBoolean && o.Primitive().IsBoolean() {
		return o.Primitive().AsBool(), nil
	}
	return false, machine.NewTypeError("Boolean.prototype.%s requires that 'this' be a Boolean", name)
}
