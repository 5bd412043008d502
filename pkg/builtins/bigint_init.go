package builtins

import (
	"math/big"

	"ecmavm/pkg/vm"
)

type BigIntInitializer struct{}

func (b *BigIntInitializer) Name() string {
	return "BigInt"
}

func (b *BigIntInitializer) Priority() int {
	return PriorityBigInt
}

func (b *BigIntInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	bigintProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.BigIntPrototype = bigintProto

	bigintCtor := machine.NewNativeConstructor("BigInt", 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			prim, err := machine.ToPrimitive(arg(args, 0), vm.HintNumber)
			if err != nil {
				return vm.Undefined, err
			}
			if prim.IsNumber() {
				n, ok := vm.NumberToBigInt(prim.AsNumber())
				if !ok {
					return vm.Undefined, machine.NewRangeError("The number %s cannot be converted to a BigInt because it is not an integer", vm.NumberToString(prim.AsNumber()))
				}
				return vm.BigIntValue(n), nil
			}
			n, err := machine.ToBigInt(prim)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.BigIntValue(n), nil
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return vm.Undefined, machine.NewTypeError("BigInt is not a constructor")
		})
	linkConstructor(bigintCtor, bigintProto)

	asN := func(name string, signed bool) {
		method(machine, bigintCtor, name, 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			bits, err := machine.ToIndex(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			n, err := machine.ToBigInt(arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			if bits == 0 {
				return vm.BigIntValue(new(big.Int)), nil
			}
			if bits > 1<<32 {
				if signed || n.Sign() >= 0 {
					return vm.BigIntValue(n), nil
				}
				return vm.Undefined, machine.NewRangeError("Maximum BigInt size exceeded")
			}
			modulus := new(big.Int).Lsh(big.NewInt(1), uint(bits))
			r := new(big.Int).Mod(n, modulus)
			if signed && r.Cmp(new(big.Int).Rsh(modulus, 1)) >= 0 {
				r.Sub(r, modulus)
			}
			return vm.BigIntValue(r), nil
		})
	}
	asN("asIntN", true)
	asN("asUintN", false)

	method(machine, bigintProto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := thisBigIntValue(machine, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		radix := 10
		if r := arg(args, 0); !r.IsUndefined() {
			f, err := machine.ToIntegerOrInfinity(r)
			if err != nil {
				return vm.Undefined, err
			}
			if f < 2 || f > 36 {
				return vm.Undefined, machine.NewRangeError("toString() radix must be between 2 and 36")
			}
			radix = int(f)
		}
		return vm.StringValue(n.Text(radix)), nil
	})
	method(machine, bigintProto, "toLocaleString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := thisBigIntValue(machine, this, "toLocaleString")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(n.String()), nil
	})
	method(machine, bigintProto, "valueOf", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		n, err := thisBigIntValue(machine, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BigIntValue(n), nil
	})
	toStringTag(bigintProto, "BigInt")

	return ctx.DefineGlobal("BigInt", vm.ObjectValue(bigintCtor))
}

func thisBigIntValue(machine *vm.VM, this vm.Value, name string) (*big.Int, error) {
	if this.IsBigInt() {
		return this.AsBigInt(), nil
	}
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassBigInt && o.Primitive().IsBigInt() {
		return o.Primitive().AsBigInt(), nil
	}
	return nil, machine.NewTypeError("BigInt.prototype.%s requires that 'this' be a BigInt", name)
}
