package builtins

import (
	"ecmavm/pkg/vm"
)

// ObjectInitializer implements the Object builtin
type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string {
	return "Object"
}

func (o *ObjectInitializer) Priority() int {
	return PriorityObject // Must be first (base prototype)
}

func (o *ObjectInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()
	objectProto := in.ObjectPrototype

	// Prototype methods
	method(machine, objectProto, "hasOwnProperty", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := machine.ToPropertyKey(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		obj, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(obj.HasOwnProperty(key)), nil
	})
	method(machine, objectProto, "isPrototypeOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0).AsObject()
		if v == nil {
			return vm.BoolValue(false), nil
		}
		obj, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		for p := v.Prototype(); p != nil; p = p.Prototype() {
			if p == obj {
				return vm.BoolValue(true), nil
			}
		}
		return vm.BoolValue(false), nil
	})
	method(machine, objectProto, "propertyIsEnumerable", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := machine.ToPropertyKey(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		obj, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		p, ok := obj.GetOwnProperty(key)
		return vm.BoolValue(ok && p.Enumerable()), nil
	})
	method(machine, objectProto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return objectToString(machine, this)
	})
	method(machine, objectProto, "toLocaleString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return machine.Invoke(this, vm.StringKey("toString"))
	})
	method(machine, objectProto, "valueOf", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(obj), nil
	})

	// Annex B accessors and legacy definers
	protoGetter := machine.NewNativeFunction("get __proto__", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return protoValue(obj), nil
	})
	protoSetter := machine.NewNativeFunction("set __proto__", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := machine.RequireObjectCoercible(this, "Object.prototype.__proto__"); err != nil {
			return vm.Undefined, err
		}
		proto := arg(args, 0)
		obj := this.AsObject()
		if obj == nil || (!proto.IsObject() && !proto.IsNull()) {
			return vm.Undefined, nil
		}
		if !obj.SetPrototypeOf(proto.AsObject()) {
			return vm.Undefined, machine.NewTypeError("Object.prototype.__proto__ setter failed")
		}
		return vm.Undefined, nil
	})
	objectProto.SetAccessor(vm.StringKey("__proto__"), protoGetter, protoSetter, vm.FlagConfigurable)

	for _, kind := range []string{"Getter", "Setter"} {
		isGetter := kind == "Getter"
		method(machine, objectProto, "__define"+kind+"__", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			obj, err := machine.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			fn := arg(args, 1)
			if !fn.IsCallable() {
				return vm.Undefined, machine.NewTypeError("Object.prototype.__define%s__: Expecting function", kind)
			}
			key, err := machine.ToPropertyKey(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			desc := vm.PropertyDescriptor{Enumerable: true, HasEnumerable: true, Configurable: true, HasConfigurable: true}
			if isGetter {
				desc.Getter, desc.HasGet = fn.AsObject(), true
			} else {
				desc.Setter, desc.HasSet = fn.AsObject(), true
			}
			return vm.Undefined, machine.DefinePropertyOrThrow(obj, key, desc)
		})
		method(machine, objectProto, "__lookup"+kind+"__", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			obj, err := machine.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			key, err := machine.ToPropertyKey(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			for p := obj; p != nil; p = p.Prototype() {
				prop, ok := p.GetOwnProperty(key)
				if !ok {
					continue
				}
				if !prop.IsAccessor() {
					return vm.Undefined, nil
				}
				f := prop.Setter
				if isGetter {
					f = prop.Getter
				}
				if f == nil {
					return vm.Undefined, nil
				}
				return vm.ObjectValue(f), nil
			}
			return vm.Undefined, nil
		})
	}

	// Object constructor
	var objectCtor *vm.Object
	objectCtor = machine.NewNativeConstructor("Object", 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			v := arg(args, 0)
			if v.IsNullish() {
				return vm.ObjectValue(machine.NewObject()), nil
			}
			obj, err := machine.ToObject(v)
			return vm.ObjectValue(obj), err
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			if newTarget != objectCtor {
				proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.ObjectPrototype })
				if err != nil {
					return vm.Undefined, err
				}
				return vm.ObjectValue(machine.NewObjectWithProto(proto)), nil
			}
			v := arg(args, 0)
			if v.IsNullish() {
				return vm.ObjectValue(machine.NewObject()), nil
			}
			obj, err := machine.ToObject(v)
			return vm.ObjectValue(obj), err
		})
	linkConstructor(objectCtor, objectProto)
	in.Object = objectCtor

	o.initStatics(machine, objectCtor)

	return ctx.DefineGlobal("Object", vm.ObjectValue(objectCtor))
}

func (o *ObjectInitializer) initStatics(machine *vm.VM, ctor *vm.Object) {
	method(machine, ctor, "assign", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		to, err := machine.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		for _, src := range args[min(1, len(args)):] {
			if src.IsNullish() {
				continue
			}
			from, err := machine.ToObject(src)
			if err != nil {
				return vm.Undefined, err
			}
			for _, key := range from.OwnKeys() {
				p, ok := from.GetOwnProperty(key)
				if !ok || !p.Enumerable() {
					continue
				}
				v, err := machine.Get(from, key, vm.ObjectValue(from))
				if err != nil {
					return vm.Undefined, err
				}
				if _, err := setOrThrow(machine, to, key, v); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.ObjectValue(to), nil
	})
	method(machine, ctor, "create", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		proto := arg(args, 0)
		if !proto.IsObject() && !proto.IsNull() {
			return vm.Undefined, machine.NewTypeError("Object prototype may only be an Object or null: %s", machine.ToDisplayString(proto))
		}
		obj := machine.NewObjectWithProto(proto.AsObject())
		if props := arg(args, 1); !props.IsUndefined() {
			if err := defineProperties(machine, obj, props); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(obj), nil
	})
	method(machine, ctor, "defineProperty", 3, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj := arg(args, 0).AsObject()
		if obj == nil {
			return vm.Undefined, machine.NewTypeError("Object.defineProperty called on non-object")
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		desc, err := toPropertyDescriptor(machine, arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		if err := machine.DefinePropertyOrThrow(obj, key, desc); err != nil {
			return vm.Undefined, err
		}
		return args[0], nil
	})
	method(machine, ctor, "defineProperties", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj := arg(args, 0).AsObject()
		if obj == nil {
			return vm.Undefined, machine.NewTypeError("Object.defineProperties called on non-object")
		}
		return args[0], defineProperties(machine, obj, arg(args, 1))
	})
	method(machine, ctor, "getOwnPropertyDescriptor", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := machine.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		p, ok := obj.GetOwnProperty(key)
		if !ok {
			return vm.Undefined, nil
		}
		return vm.ObjectValue(fromPropertyDescriptor(machine, vm.DescriptorOf(p))), nil
	})
	method(machine, ctor, "getOwnPropertyDescriptors", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := machine.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		result := machine.NewObject()
		for _, key := range obj.OwnKeys() {
			if p, ok := obj.GetOwnProperty(key); ok {
				result.SetOwnKey(key, vm.ObjectValue(fromPropertyDescriptor(machine, vm.DescriptorOf(p))), vm.FlagsDefault)
			}
		}
		return vm.ObjectValue(result), nil
	})
	ownKeys := func(name string, symbols bool) {
		method(machine, ctor, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			obj, err := machine.ToObject(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			var out []vm.Value
			for _, key := range obj.OwnKeys() {
				if key.IsSymbol() == symbols {
					out = append(out, key.Value())
				}
			}
			return vm.ObjectValue(machine.NewArray(out)), nil
		})
	}
	ownKeys("getOwnPropertyNames", false)
	ownKeys("getOwnPropertySymbols", true)

	enumerable := func(name string, kind iterKind) {
		method(machine, ctor, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			obj, err := machine.ToObject(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			out, err := enumerableOwnProperties(machine, obj, kind)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewArray(out)), nil
		})
	}
	enumerable("keys", iterKeys)
	enumerable("values", iterValues)
	enumerable("entries", iterEntries)

	method(machine, ctor, "fromEntries", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		iterable := arg(args, 0)
		if err := machine.RequireObjectCoercible(iterable, "Object.fromEntries"); err != nil {
			return vm.Undefined, err
		}
		obj := machine.NewObject()
		err := machine.Iterate(iterable, func(entry vm.Value) (bool, error) {
			eo := entry.AsObject()
			if eo == nil {
				return false, machine.NewTypeError("Iterator value %s is not an entry object", machine.ToDisplayString(entry))
			}
			k, err := machine.Get(eo, vm.IndexKey(0), entry)
			if err != nil {
				return false, err
			}
			v, err := machine.Get(eo, vm.IndexKey(1), entry)
			if err != nil {
				return false, err
			}
			key, err := machine.ToPropertyKey(k)
			if err != nil {
				return false, err
			}
			_, err = machine.CreateDataProperty(obj, key, v)
			return true, err
		})
		return vm.ObjectValue(obj), err
	})
	method(machine, ctor, "getPrototypeOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := machine.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return protoValue(obj), nil
	})
	method(machine, ctor, "setPrototypeOf", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, proto := arg(args, 0), arg(args, 1)
		if err := machine.RequireObjectCoercible(v, "Object.setPrototypeOf"); err != nil {
			return vm.Undefined, err
		}
		if !proto.IsObject() && !proto.IsNull() {
			return vm.Undefined, machine.NewTypeError("Object prototype may only be an Object or null: %s", machine.ToDisplayString(proto))
		}
		if obj := v.AsObject(); obj != nil && !obj.SetPrototypeOf(proto.AsObject()) {
			return vm.Undefined, machine.NewTypeError("Cannot set prototype of %s", machine.ToDisplayString(v))
		}
		return v, nil
	})
	method(machine, ctor, "is", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.BoolValue(vm.SameValue(arg(args, 0), arg(args, 1))), nil
	})
	method(machine, ctor, "hasOwn", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := machine.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		key, err := machine.ToPropertyKey(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(obj.HasOwnProperty(key)), nil
	})
	method(machine, ctor, "groupBy", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		groups, err := groupBy(machine, arg(args, 0), arg(args, 1), true)
		if err != nil {
			return vm.Undefined, err
		}
		obj := machine.NewObjectWithProto(nil)
		err = groups.ForEach(func(k, v vm.Value) (bool, error) {
			key, err := machine.ToPropertyKey(k)
			if err != nil {
				return false, err
			}
			obj.SetOwnKey(key, v, vm.FlagsDefault)
			return true, nil
		})
		return vm.ObjectValue(obj), err
	})

	// Integrity levels
	method(machine, ctor, "preventExtensions", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if obj := arg(args, 0).AsObject(); obj != nil {
			obj.PreventExtensions()
		}
		return arg(args, 0), nil
	})
	method(machine, ctor, "isExtensible", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj := arg(args, 0).AsObject()
		return vm.BoolValue(obj != nil && obj.IsExtensible()), nil
	})
	for _, frozen := range []bool{false, true} {
		name, test := "seal", "isSealed"
		if frozen {
			name, test = "freeze", "isFrozen"
		}
		method(machine, ctor, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if obj := arg(args, 0).AsObject(); obj != nil {
				obj.SetIntegrity(frozen)
			}
			return arg(args, 0), nil
		})
		method(machine, ctor, test, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			obj := arg(args, 0).AsObject()
			return vm.BoolValue(obj == nil || obj.TestIntegrity(frozen)), nil
		})
	}
}

func protoValue(o *vm.Object) vm.Value {
	if p := o.Prototype(); p != nil {
		return vm.ObjectValue(p)
	}
	return vm.Null
}

// setOrThrow performs Set(O, P, V, true).
func setOrThrow(machine *vm.VM, o *vm.Object, key vm.PropertyKey, v vm.Value) (bool, error) {
	ok, err := machine.Set(o, key, v, vm.ObjectValue(o))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, machine.NewTypeError("Cannot assign to read only property '%s' of %s", key.String(), machine.ToDisplayString(vm.ObjectValue(o)))
	}
	return true, nil
}

// objectToString implements Object.prototype.toString.
func objectToString(machine *vm.VM, this vm.Value) (vm.Value, error) {
	if this.IsUndefined() {
		return vm.StringValue("[object Undefined]"), nil
	}
	if this.IsNull() {
		return vm.StringValue("[object Null]"), nil
	}
	obj, err := machine.ToObject(this)
	if err != nil {
		return vm.Undefined, err
	}
	tag := "Object"
	switch obj.Class() {
	case vm.ClassArray:
		tag = "Array"
	case vm.ClassArguments:
		tag = "Arguments"
	case vm.ClassError:
		tag = "Error"
	case vm.ClassBoolean:
		tag = "Boolean"
	case vm.ClassNumber:
		tag = "Number"
	case vm.ClassString:
		tag = "String"
	case vm.ClassDate:
		tag = "Date"
	case vm.ClassRegExp:
		tag = "RegExp"
	default:
		if obj.IsCallable() {
			tag = "Function"
		}
	}
	t, err := machine.Get(obj, vm.SymbolKey(vm.SymToStringTag), vm.ObjectValue(obj))
	if err != nil {
		return vm.Undefined, err
	}
	if t.IsString() {
		tag = t.AsString()
	}
	return vm.StringValue("[object " + tag + "]"), nil
}

// toPropertyDescriptor implements ToPropertyDescriptor.
func toPropertyDescriptor(machine *vm.VM, v vm.Value) (vm.PropertyDescriptor, error) {
	var desc vm.PropertyDescriptor
	obj := v.AsObject()
	if obj == nil {
		return desc, machine.NewTypeError("Property description must be an object: %s", machine.ToDisplayString(v))
	}
	field := func(name string) (vm.Value, bool, error) {
		key := vm.StringKey(name)
		if !obj.HasProperty(key) {
			return vm.Undefined, false, nil
		}
		f, err := machine.Get(obj, key, v)
		return f, true, err
	}
	if f, ok, err := field("enumerable"); err != nil {
		return desc, err
	} else if ok {
		desc.Enumerable, desc.HasEnumerable = vm.ToBoolean(f), true
	}
	if f, ok, err := field("configurable"); err != nil {
		return desc, err
	} else if ok {
		desc.Configurable, desc.HasConfigurable = vm.ToBoolean(f), true
	}
	if f, ok, err := field("value"); err != nil {
		return desc, err
	} else if ok {
		desc.Value, desc.HasValue = f, true
	}
	if f, ok, err := field("writable"); err != nil {
		return desc, err
	} else if ok {
		desc.Writable, desc.HasWritable = vm.ToBoolean(f), true
	}
	if f, ok, err := field("get"); err != nil {
		return desc, err
	} else if ok {
		if !f.IsUndefined() && !f.IsCallable() {
			return desc, machine.NewTypeError("Getter must be a function: %s", machine.ToDisplayString(f))
		}
		desc.Getter, desc.HasGet = f.AsObject(), true
	}
	if f, ok, err := field("set"); err != nil {
		return desc, err
	} else if ok {
		if !f.IsUndefined() && !f.IsCallable() {
			return desc, machine.NewTypeError("Setter must be a function: %s", machine.ToDisplayString(f))
		}
		desc.Setter, desc.HasSet = f.AsObject(), true
	}
	if desc.IsAccessor() && desc.IsData() {
		return desc, machine.NewTypeError("Invalid property descriptor. Cannot both specify accessors and a value or writable attribute")
	}
	return desc, nil
}

// fromPropertyDescriptor implements FromPropertyDescriptor.
func fromPropertyDescriptor(machine *vm.VM, desc vm.PropertyDescriptor) *vm.Object {
	obj := machine.NewObject()
	fn := func(f *vm.Object) vm.Value {
		if f == nil {
			return vm.Undefined
		}
		return vm.ObjectValue(f)
	}
	if desc.HasValue {
		obj.SetOwn("value", desc.Value, vm.FlagsDefault)
	}
	if desc.HasWritable {
		obj.SetOwn("writable", vm.BoolValue(desc.Writable), vm.FlagsDefault)
	}
	if desc.HasGet {
		obj.SetOwn("get", fn(desc.Getter), vm.FlagsDefault)
	}
	if desc.HasSet {
		obj.SetOwn("set", fn(desc.Setter), vm.FlagsDefault)
	}
	if desc.HasEnumerable {
		obj.SetOwn("enumerable", vm.BoolValue(desc.Enumerable), vm.FlagsDefault)
	}
	if desc.HasConfigurable {
		obj.SetOwn("configurable", vm.BoolValue(desc.Configurable), vm.FlagsDefault)
	}
	return obj
}

// defineProperties implements ObjectDefineProperties: every descriptor is
// read before any property is defined.
func defineProperties(machine *vm.VM, obj *vm.Object, props vm.Value) error {
	src, err := machine.ToObject(props)
	if err != nil {
		return err
	}
	type pending struct {
		key  vm.PropertyKey
		desc vm.PropertyDescriptor
	}
	var list []pending
	for _, key := range src.OwnKeys() {
		p, ok := src.GetOwnProperty(key)
		if !ok || !p.Enumerable() {
			continue
		}
		dv, err := machine.Get(src, key, props)
		if err != nil {
			return err
		}
		desc, err := toPropertyDescriptor(machine, dv)
		if err != nil {
			return err
		}
		list = append(list, pending{key, desc})
	}
	for _, p := range list {
		if err := machine.DefinePropertyOrThrow(obj, p.key, p.desc); err != nil {
			return err
		}
	}
	return nil
}

// iterKind selects what keyed iteration produces.
type iterKind int

const (
	iterKeys iterKind = iota
	iterValues
	iterEntries
)

// enumerableOwnProperties implements EnumerableOwnProperties for string
// keys.
func enumerableOwnProperties(machine *vm.VM, obj *vm.Object, kind iterKind) ([]vm.Value, error) {
	var out []vm.Value
	for _, key := range obj.OwnKeys() {
		if key.IsSymbol() {
			continue
		}
		p, ok := obj.GetOwnProperty(key)
		if !ok || !p.Enumerable() {
			continue
		}
		if kind == iterKeys {
			out = append(out, key.Value())
			continue
		}
		v, err := machine.Get(obj, key, vm.ObjectValue(obj))
		if err != nil {
			return nil, err
		}
		if kind == iterValues {
			out = append(out, v)
		} else {
			out = append(out, vm.ObjectValue(machine.NewArray([]vm.Value{key.Value(), v})))
		}
	}
	return out, nil
}

// groupBy implements GroupBy. With propertyKeys the group keys are
// coerced to property keys, otherwise -0 is normalized to +0.
func groupBy(machine *vm.VM, items, callback vm.Value, propertyKeys bool) (*vm.OrderedMap, error) {
	if err := machine.RequireObjectCoercible(items, "groupBy"); err != nil {
		return nil, err
	}
	if !callback.IsCallable() {
		return nil, machine.NewTypeError("%s is not a function", machine.ToDisplayString(callback))
	}
	groups := vm.NewOrderedMap()
	k := 0
	err := machine.Iterate(items, func(v vm.Value) (bool, error) {
		key, err := machine.Call(callback, vm.Undefined, []vm.Value{v, vm.IntValue(k)})
		if err != nil {
			return false, err
		}
		if propertyKeys {
			pk, err := machine.ToPropertyKey(key)
			if err != nil {
				return false, err
			}
			key = pk.Value()
		} else if key.IsNumber() && key.AsNumber() == 0 {
			key = vm.IntValue(0)
		}
		k++
		if g, ok := groups.Get(key); ok {
			g.AsObject().Push(v)
		} else {
			groups.Set(key, vm.ObjectValue(machine.NewArray([]vm.Value{v})))
		}
		return true, nil
	})
	return groups, err
}
