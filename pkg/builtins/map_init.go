package builtins

import (
	"strings"

	"ecmavm/pkg/vm"
)

type MapInitializer struct{}

func (m *MapInitializer) Name() string {
	return "Map"
}

func (m *MapInitializer) Priority() int {
	return PriorityMap
}

func (m *MapInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	mapProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.MapPrototype = mapProto
	toStringTag(mapProto, "Map")

	mapCtor := machine.NewNativeConstructor("Map", 0, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.MapPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o := machine.NewObjectOfClass(vm.ClassMap, proto, vm.NewOrderedMap())
			if err := addEntriesFromIterable(machine, o, arg(args, 0), "set", true); err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	linkConstructor(mapCtor, mapProto)
	speciesGetter(machine, mapCtor)

	method(machine, mapCtor, "groupBy", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		groups, err := groupBy(machine, arg(args, 0), arg(args, 1), false)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassMap, machine.CurrentRealm().Intrinsics.MapPrototype, groups)), nil
	})

	method(machine, mapProto, "get", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype.get")
		if err != nil {
			return vm.Undefined, err
		}
		v, _ := data.Get(arg(args, 0))
		return v, nil
	})
	method(machine, mapProto, "set", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype.set")
		if err != nil {
			return vm.Undefined, err
		}
		data.Set(arg(args, 0), arg(args, 1))
		return this, nil
	})
	method(machine, mapProto, "has", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype.has")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(data.Has(arg(args, 0))), nil
	})
	method(machine, mapProto, "delete", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype.delete")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(data.Delete(arg(args, 0))), nil
	})
	method(machine, mapProto, "clear", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype.clear")
		if err != nil {
			return vm.Undefined, err
		}
		data.Clear()
		return vm.Undefined, nil
	})
	method(machine, mapProto, "forEach", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype.forEach")
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callbackArg(machine, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		thisArg := arg(args, 1)
		return vm.Undefined, data.ForEach(func(k, v vm.Value) (bool, error) {
			_, err := machine.Call(fn, thisArg, []vm.Value{v, k, this})
			return err == nil, err
		})
	})
	getter(machine, mapProto, vm.StringKey("size"), func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassMap, "get Map.prototype.size")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(data.Size()), nil
	})

	iterProto := newCollectionIteratorPrototype(ctx, vm.ClassMap, "Map Iterator")
	iterate := func(name string, kind iterKind) *vm.Object {
		return method(machine, mapProto, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			data, err := thisMapData(machine, this, vm.ClassMap, "Map.prototype."+name)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassIterator, iterProto, &collectionIterator{cursor: data.Cursor(), kind: kind, class: vm.ClassMap})), nil
		})
	}
	iterate("keys", iterKeys)
	iterate("values", iterValues)
	entries := iterate("entries", iterEntries)
	mapProto.SetOwnKey(vm.SymbolKey(vm.SymIterator), vm.ObjectValue(entries), vm.FlagsHidden)

	return ctx.DefineGlobal("Map", vm.ObjectValue(mapCtor))
}

// thisMapData returns the entries of a Map or Set receiver.
func thisMapData(machine *vm.VM, this vm.Value, class vm.Class, method string) (*vm.OrderedMap, error) {
	o, err := thisClass(machine, this, class, method)
	if err != nil {
		return nil, err
	}
	data, ok := o.Internal.(*vm.OrderedMap)
	if !ok {
		return nil, machine.NewTypeError("Method %s called on incompatible receiver %s", method, machine.ToDisplayString(this))
	}
	return data, nil
}

// addEntriesFromIterable feeds an iterable to target's adder method, as the
// Map, Set, WeakMap and WeakSet constructors do. With pairs each item must
// be an entry object whose 0 and 1 properties are passed.
func addEntriesFromIterable(machine *vm.VM, target *vm.Object, iterable vm.Value, adderName string, pairs bool) error {
	if iterable.IsNullish() {
		return nil
	}
	adder, err := machine.GetStr(target, adderName)
	if err != nil {
		return err
	}
	if !adder.IsCallable() {
		return machine.NewTypeError("'%s' returned for property '%s' of object '%s' is not a function", machine.ToDisplayString(adder), adderName, target.ClassName())
	}
	self := vm.ObjectValue(target)
	return machine.Iterate(iterable, func(item vm.Value) (bool, error) {
		if !pairs {
			_, err := machine.Call(adder, self, []vm.Value{item})
			return err == nil, err
		}
		entry := item.AsObject()
		if entry == nil {
			return false, machine.NewTypeError("Iterator value %s is not an entry object", machine.ToDisplayString(item))
		}
		k, err := machine.GetStr(entry, "0")
		if err != nil {
			return false, err
		}
		v, err := machine.GetStr(entry, "1")
		if err != nil {
			return false, err
		}
		_, err = machine.Call(adder, self, []vm.Value{k, v})
		return err == nil, err
	})
}

// collectionIterator is the state of Map and Set iterators.
type collectionIterator struct {
	cursor *vm.MapCursor
	kind   iterKind
	class  vm.Class
	done   bool
}

func (it *collectionIterator) Trace(m *vm.Marker) {
	if it.cursor != nil {
		it.cursor.Trace(m)
	}
}

func newCollectionIteratorPrototype(ctx *RuntimeContext, class vm.Class, tag string) *vm.Object {
	machine := ctx.VM
	proto := machine.NewObjectWithProto(ctx.Intrinsics().IteratorPrototype)
	toStringTag(proto, tag)
	method(machine, proto, "next", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var it *collectionIterator
		if o := this.AsObject(); o != nil {
			it, _ = o.Internal.(*collectionIterator)
		}
		if it == nil || it.class != class {
			return vm.Undefined, machine.NewTypeError("next method called on incompatible receiver %s", machine.ToDisplayString(this))
		}
		if it.done {
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		k, v, ok := it.cursor.Next()
		if !ok {
			it.done, it.cursor = true, nil
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		var result vm.Value
		switch it.kind {
		case iterKeys:
			result = k
		case iterValues:
			result = v
		default:
			result = vm.ObjectValue(machine.NewArray([]vm.Value{k, v}))
		}
		return vm.ObjectValue(machine.CreateIterResult(result, false)), nil
	})
	ctx.Realm.SetIntrinsic(strings.ReplaceAll(tag, " ", "")+"Prototype", proto)
	return proto
}
