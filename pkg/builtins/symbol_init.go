package builtins

import (
	"maps"
	"slices"

	"ecmavm/pkg/vm"
)

type SymbolInitializer struct{}

func (s *SymbolInitializer) Name() string {
	return "Symbol"
}

func (s *SymbolInitializer) Priority() int {
	return PrioritySymbol
}

func (s *SymbolInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	symbolProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.SymbolPrototype = symbolProto

	symbolCtor := machine.NewNativeConstructor("Symbol", 0,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			desc := arg(args, 0)
			if desc.IsUndefined() {
				return vm.SymbolValue(vm.NewAnonymousSymbol()), nil
			}
			str, err := machine.ToString(desc)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.SymbolValue(vm.NewSymbol(str)), nil
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return vm.Undefined, machine.NewTypeError("Symbol is not a constructor")
		})
	linkConstructor(symbolCtor, symbolProto)

	for _, name := range slices.Sorted(maps.Keys(vm.WellKnownSymbols)) {
		constant(symbolCtor, name, vm.SymbolValue(vm.WellKnownSymbols[name]))
	}
	method(machine, symbolCtor, "for", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(machine.SymbolFor(key)), nil
	})
	method(machine, symbolCtor, "keyFor", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym := arg(args, 0)
		if !sym.IsSymbol() {
			return vm.Undefined, machine.NewTypeError("%s is not a symbol", machine.ToDisplayString(sym))
		}
		if key, ok := machine.SymbolKeyFor(sym.AsSymbol()); ok {
			return vm.StringValue(key), nil
		}
		return vm.Undefined, nil
	})

	method(machine, symbolProto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym, err := thisSymbolValue(machine, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(sym.String()), nil
	})
	method(machine, symbolProto, "valueOf", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym, err := thisSymbolValue(machine, this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(sym), nil
	})
	getter(machine, symbolProto, vm.StringKey("description"), func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym, err := thisSymbolValue(machine, this, "description")
		if err != nil {
			return vm.Undefined, err
		}
		if !sym.HasDescription() {
			return vm.Undefined, nil
		}
		return vm.StringValue(sym.Description), nil
	})
	toPrimitive := machine.NewNativeFunction("[Symbol.toPrimitive]", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym, err := thisSymbolValue(machine, this, "[Symbol.toPrimitive]")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.SymbolValue(sym), nil
	})
	symbolProto.SetOwnKey(vm.SymbolKey(vm.SymToPrimitive), vm.ObjectValue(toPrimitive), vm.FlagConfigurable)
	toStringTag(symbolProto, "Symbol")

	return ctx.DefineGlobal("Symbol", vm.ObjectValue(symbolCtor))
}

func thisSymbolValue(machine *vm.VM, this vm.Value, name string) (*vm.Symbol, error) {
	if this.IsSymbol() {
		return this.AsSymbol(), nil
	}
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassSymbol && o.Primitive().IsSymbol() {
		return o.Primitive().AsSymbol(), nil
	}
	return nil, machine.NewTypeError("Symbol.prototype.%s requires that 'this' be a Symbol", name)
}
