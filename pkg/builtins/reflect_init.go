package builtins

import (
	"ecmavm/pkg/vm"
)

type ReflectInitializer struct{}

func (r *ReflectInitializer) Name() string  { return "Reflect" }
func (r *ReflectInitializer) Priority() int { return PriorityReflect }

func (r *ReflectInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	reflect := machine.NewObject()
	toStringTag(reflect, "Reflect")

	method(machine, reflect, "apply", 3, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := arg(args, 0)
		if !target.IsCallable() {
			return vm.Undefined, machine.NewTypeError("Function.prototype.apply was called on %s, which is not a function", machine.ToDisplayString(target))
		}
		list, err := createListFromArrayLike(machine, arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		return machine.Call(target, arg(args, 1), list)
	})
	method(machine, reflect, "construct", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := arg(args, 0)
		if !target.IsConstructor() {
			return vm.Undefined, machine.NewTypeError("%s is not a constructor", machine.ToDisplayString(target))
		}
		newTarget := target
		if len(args) > 2 {
			newTarget = args[2]
			if !newTarget.IsConstructor() {
				return vm.Undefined, machine.NewTypeError("%s is not a constructor", machine.ToDisplayString(newTarget))
			}
		}
		list, err := createListFromArrayLike(machine, arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return machine.Construct(target, list, newTarget)
	})
	method(machine, reflect, "defineProperty", 3, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "defineProperty")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		desc, err := toPropertyDescriptor(machine, arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		ok, err := machine.DefineOwnProperty(target, key, desc)
		return vm.BoolValue(ok), err
	})
	method(machine, reflect, "deleteProperty", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "deleteProperty")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(target.Delete(key)), nil
	})
	method(machine, reflect, "get", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "get")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		receiver := args[0]
		if len(args) > 2 {
			receiver = args[2]
		}
		return machine.Get(target, key, receiver)
	})
	method(machine, reflect, "getOwnPropertyDescriptor", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "getOwnPropertyDescriptor")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		p, ok := target.GetOwnProperty(key)
		if !ok {
			return vm.Undefined, nil
		}
		return vm.ObjectValue(fromPropertyDescriptor(machine, vm.DescriptorOf(p))), nil
	})
	method(machine, reflect, "getPrototypeOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "getPrototypeOf")
		if err != nil {
			return vm.Undefined, err
		}
		return protoValue(target), nil
	})
	method(machine, reflect, "has", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "has")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(target.HasProperty(key)), nil
	})
	method(machine, reflect, "isExtensible", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "isExtensible")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(target.IsExtensible()), nil
	})
	method(machine, reflect, "ownKeys", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "ownKeys")
		if err != nil {
			return vm.Undefined, err
		}
		keys := target.OwnKeys()
		out := make([]vm.Value, len(keys))
		for i, key := range keys {
			out[i] = key.Value()
		}
		return vm.ObjectValue(machine.NewArray(out)), nil
	})
	method(machine, reflect, "preventExtensions", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "preventExtensions")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(target.PreventExtensions()), nil
	})
	method(machine, reflect, "set", 3, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "set")
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		receiver := args[0]
		if len(args) > 3 {
			receiver = args[3]
		}
		ok, err := machine.Set(target, key, arg(args, 2), receiver)
		return vm.BoolValue(ok), err
	})
	method(machine, reflect, "setPrototypeOf", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := reflectTarget(machine, args, "setPrototypeOf")
		if err != nil {
			return vm.Undefined, err
		}
		proto := arg(args, 1)
		if !proto.IsObject() && !proto.IsNull() {
			return vm.Undefined, machine.NewTypeError("Object prototype may only be an Object or null: %s", machine.ToDisplayString(proto))
		}
		return vm.BoolValue(target.SetPrototypeOf(proto.AsObject())), nil
	})

	return ctx.DefineGlobal("Reflect", vm.ObjectValue(reflect))
}

func reflectTarget(machine *vm.VM, args []vm.Value, name string) (*vm.Object, error) {
	target := arg(args, 0).AsObject()
	if target == nil {
		return nil, machine.NewTypeError("Reflect.%s called on non-object", name)
	}
	return target, nil
}
