package builtins

import (
	"math"

	"ecmavm/pkg/vm"
)

type SetInitializer struct{}

func (s *SetInitializer) Name() string {
	return "Set"
}

func (s *SetInitializer) Priority() int {
	return PrioritySet
}

func (s *SetInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	setProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.SetPrototype = setProto
	toStringTag(setProto, "Set")

	setCtor := machine.NewNativeConstructor("Set", 0, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.SetPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			o := machine.NewObjectOfClass(vm.ClassSet, proto, vm.NewOrderedMap())
			if err := addEntriesFromIterable(machine, o, arg(args, 0), "add", false); err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(o), nil
		})
	linkConstructor(setCtor, setProto)
	speciesGetter(machine, setCtor)

	method(machine, setProto, "add", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype.add")
		if err != nil {
			return vm.Undefined, err
		}
		v := arg(args, 0)
		if !data.Has(v) {
			data.Set(v, v)
		}
		return this, nil
	})
	method(machine, setProto, "has", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype.has")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(data.Has(arg(args, 0))), nil
	})
	method(machine, setProto, "delete", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype.delete")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(data.Delete(arg(args, 0))), nil
	})
	method(machine, setProto, "clear", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype.clear")
		if err != nil {
			return vm.Undefined, err
		}
		data.Clear()
		return vm.Undefined, nil
	})
	method(machine, setProto, "forEach", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype.forEach")
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callbackArg(machine, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		thisArg := arg(args, 1)
		return vm.Undefined, data.ForEach(func(k, _ vm.Value) (bool, error) {
			_, err := machine.Call(fn, thisArg, []vm.Value{k, k, this})
			return err == nil, err
		})
	})
	getter(machine, setProto, vm.StringKey("size"), func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		data, err := thisMapData(machine, this, vm.ClassSet, "get Set.prototype.size")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(data.Size()), nil
	})

	iterProto := newCollectionIteratorPrototype(ctx, vm.ClassSet, "Set Iterator")
	iterate := func(name string, kind iterKind) *vm.Object {
		return method(machine, setProto, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype."+name)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassIterator, iterProto, &collectionIterator{cursor: data.Cursor(), kind: kind, class: vm.ClassSet})), nil
		})
	}
	iterate("entries", iterEntries)
	values := iterate("values", iterValues)
	setProto.SetOwn("keys", vm.ObjectValue(values), vm.FlagsHidden)
	setProto.SetOwnKey(vm.SymbolKey(vm.SymIterator), vm.ObjectValue(values), vm.FlagsHidden)

	s.initSetMethods(machine, setProto)

	return ctx.DefineGlobal("Set", vm.ObjectValue(setCtor))
}

// setRecord is the result of GetSetRecord: the size, has and keys of a
// set-like argument.
type setRecord struct {
	obj  vm.Value
	size float64
	has  vm.Value
	keys vm.Value
}

func getSetRecord(machine *vm.VM, v vm.Value) (*setRecord, error) {
	o := v.AsObject()
	if o == nil {
		return nil, machine.NewTypeError("%s is not a set-like object", machine.ToDisplayString(v))
	}
	rawSize, err := machine.GetStr(o, "size")
	if err != nil {
		return nil, err
	}
	numSize, err := machine.ToNumber(rawSize)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(numSize) {
		return nil, machine.NewTypeError("The 'size' property must be a number")
	}
	size := vm.IntegerOrInfinity(numSize)
	if size < 0 {
		return nil, machine.NewRangeError("The 'size' property must not be negative")
	}
	has, err := machine.GetStr(o, "has")
	if err != nil {
		return nil, err
	}
	if !has.IsCallable() {
		return nil, machine.NewTypeError("The 'has' property must be a function")
	}
	keys, err := machine.GetStr(o, "keys")
	if err != nil {
		return nil, err
	}
	if !keys.IsCallable() {
		return nil, machine.NewTypeError("The 'keys' property must be a function")
	}
	return &setRecord{obj: v, size: size, has: has, keys: keys}, nil
}

func (r *setRecord) contains(machine *vm.VM, v vm.Value) (bool, error) {
	res, err := machine.Call(r.has, r.obj, []vm.Value{v})
	return vm.ToBoolean(res), err
}

// eachKey walks the keys iterator of r; fn returning false closes it.
func (r *setRecord) eachKey(machine *vm.VM, fn func(vm.Value) (bool, error)) error {
	rec, err := machine.GetIteratorFromMethod(r.obj, r.keys)
	if err != nil {
		return err
	}
	for {
		v, done, err := machine.Step(rec)
		if err != nil || done {
			return err
		}
		if v.IsNumber() && v.AsNumber() == 0 {
			v = vm.IntValue(0)
		}
		more, err := fn(v)
		if err != nil {
			return machine.IteratorClose(rec, err)
		}
		if !more {
			return machine.IteratorClose(rec, nil)
		}
	}
}

func copySetData(data *vm.OrderedMap) *vm.OrderedMap {
	out := vm.NewOrderedMap()
	data.ForEach(func(k, _ vm.Value) (bool, error) {
		out.Set(k, k)
		return true, nil
	})
	return out
}

func (s *SetInitializer) initSetMethods(machine *vm.VM, proto *vm.Object) {
	newSet := func(machine *vm.VM, data *vm.OrderedMap) vm.Value {
		return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassSet, machine.CurrentRealm().Intrinsics.SetPrototype, data))
	}
	operation := func(name string, fn func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error)) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			data, err := thisMapData(machine, this, vm.ClassSet, "Set.prototype."+name)
			if err != nil {
				return vm.Undefined, err
			}
			other, err := getSetRecord(machine, arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return fn(machine, data, other)
		})
	}

	operation("union", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		result := copySetData(data)
		err := other.eachKey(machine, func(v vm.Value) (bool, error) {
			if !result.Has(v) {
				result.Set(v, v)
			}
			return true, nil
		})
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(machine, result), nil
	})
	operation("intersection", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		result := vm.NewOrderedMap()
		var err error
		if float64(data.Size()) <= other.size {
			err = data.ForEach(func(k, _ vm.Value) (bool, error) {
				in, err := other.contains(machine, k)
				if err != nil {
					return false, err
				}
				if in && !result.Has(k) {
					result.Set(k, k)
				}
				return true, nil
			})
		} else {
			err = other.eachKey(machine, func(v vm.Value) (bool, error) {
				if data.Has(v) && !result.Has(v) {
					result.Set(v, v)
				}
				return true, nil
			})
		}
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(machine, result), nil
	})
	operation("difference", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		result := copySetData(data)
		var err error
		if float64(data.Size()) <= other.size {
			err = data.ForEach(func(k, _ vm.Value) (bool, error) {
				in, err := other.contains(machine, k)
				if err != nil {
					return false, err
				}
				if in {
					result.Delete(k)
				}
				return true, nil
			})
		} else {
			err = other.eachKey(machine, func(v vm.Value) (bool, error) {
				result.Delete(v)
				return true, nil
			})
		}
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(machine, result), nil
	})
	operation("symmetricDifference", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		result := copySetData(data)
		err := other.eachKey(machine, func(v vm.Value) (bool, error) {
			if data.Has(v) {
				result.Delete(v)
			} else if !result.Has(v) {
				result.Set(v, v)
			}
			return true, nil
		})
		if err != nil {
			return vm.Undefined, err
		}
		return newSet(machine, result), nil
	})
	operation("isSubsetOf", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		if float64(data.Size()) > other.size {
			return vm.BoolValue(false), nil
		}
		subset := true
		err := data.ForEach(func(k, _ vm.Value) (bool, error) {
			in, err := other.contains(machine, k)
			if err != nil {
				return false, err
			}
			subset = in
			return in, nil
		})
		return vm.BoolValue(subset), err
	})
	operation("isSupersetOf", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		if float64(data.Size()) < other.size {
			return vm.BoolValue(false), nil
		}
		superset := true
		err := other.eachKey(machine, func(v vm.Value) (bool, error) {
			superset = data.Has(v)
			return superset, nil
		})
		return vm.BoolValue(superset), err
	})
	operation("isDisjointFrom", func(machine *vm.VM, data *vm.OrderedMap, other *setRecord) (vm.Value, error) {
		disjoint := true
		var err error
		if float64(data.Size()) <= other.size {
			err = data.ForEach(func(k, _ vm.Value) (bool, error) {
				in, err := other.contains(machine, k)
				if err != nil {
					return false, err
				}
				disjoint = !in
				return disjoint, nil
			})
		} else {
			err = other.eachKey(machine, func(v vm.Value) (bool, error) {
				disjoint = !data.Has(v)
				return disjoint, nil
			})
		}
		return vm.BoolValue(disjoint), err
	})
}
