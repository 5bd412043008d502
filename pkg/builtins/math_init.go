package builtins

import (
	"math"
	"math/rand/v2"

	"ecmavm/pkg/vm"
)

type MathInitializer struct{}

func (m *MathInitializer) Name() string {
	return "Math"
}

func (m *MathInitializer) Priority() int {
	return PriorityMath
}

func (m *MathInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	mathObj := machine.NewObject()
	toStringTag(mathObj, "Math")

	constants := []struct {
		name string
		v    float64
	}{
		{"E", math.E},
		{"LN10", math.Ln10},
		{"LN2", math.Ln2},
		{"LOG10E", math.Log10E},
		{"LOG2E", math.Log2E},
		{"PI", math.Pi},
		{"SQRT1_2", math.Sqrt2 / 2},
		{"SQRT2", math.Sqrt2},
	}
	for _, c := range constants {
		constant(mathObj, c.name, vm.NumberValue(c.v))
	}

	for _, u := range unaryMath {
		fn := u.fn
		method(machine, mathObj, u.name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			x, err := machine.ToNumber(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.NumberValue(fn(x)), nil
		})
	}

	binary := func(name string, fn func(a, b float64) float64) {
		method(machine, mathObj, name, 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			a, err := machine.ToNumber(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			b, err := machine.ToNumber(arg(args, 1))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.NumberValue(fn(a, b)), nil
		})
	}
	binary("atan2", math.Atan2)
	binary("pow", mathPow)

	method(machine, mathObj, "clz32", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(mathClz32(vm.ToUint32(x))), nil
	})
	method(machine, mathObj, "imul", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		a, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		b, err := machine.ToNumber(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(float64(int32(vm.ToUint32(a) * vm.ToUint32(b)))), nil
	})

	variadic := func(name string, fn func([]float64) float64) {
		method(machine, mathObj, name, 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			xs := make([]float64, len(args))
			for i, a := range args {
				x, err := machine.ToNumber(a)
				if err != nil {
					return vm.Undefined, err
				}
				xs[i] = x
			}
			return vm.NumberValue(fn(xs)), nil
		})
	}
	variadic("hypot", mathHypot)
	variadic("max", func(xs []float64) float64 { return mathExtreme(xs, true) })
	variadic("min", func(xs []float64) float64 { return mathExtreme(xs, false) })

	method(machine, mathObj, "random", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NumberValue(rand.Float64()), nil
	})

	return ctx.DefineGlobal("Math", vm.ObjectValue(mathObj))
}
