package vm

// Property operations behind the member-access instructions.

func (vm *VM) getProperty(base Value, key PropertyKey) (Value, error) {
	if o := base.AsObject(); o != nil {
		return vm.Get(o, key, base)
	}
	if base.IsNullish() {
		return Undefined, vm.NewTypeError("Cannot read properties of %s (reading '%s')", base.String(), key.String())
	}
	return vm.GetV(base, key)
}

func (vm *VM) getElement(base, key Value) (Value, error) {
	if base.IsNullish() {
		ks := vm.ToDisplayString(key)
		return Undefined, vm.NewTypeError("Cannot read properties of %s (reading '%s')", base.String(), ks)
	}
	if o := base.AsObject(); o != nil && o.class == ClassArray && !o.sparse && key.typ == TypeNumber {
		if n := key.AsNumber(); n >= 0 && n < float64(len(o.elements)) && n == float64(int(n)) {
			if e := o.elements[int(n)]; !e.IsHole() {
				return e, nil
			}
		}
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return Undefined, err
	}
	return vm.GetV(base, k)
}

func (vm *VM) setElement(base, key, v Value, strict bool) error {
	if base.IsNullish() {
		return vm.NewTypeError("Cannot set properties of %s (setting '%s')", base.String(), vm.ToDisplayString(key))
	}
	if o := base.AsObject(); o != nil && o.class == ClassArray && !o.sparse && key.typ == TypeNumber {
		if n := key.AsNumber(); n >= 0 && n < float64(len(o.elements)) && n == float64(int(n)) {
			if !o.elements[int(n)].IsHole() {
				o.elements[int(n)] = v
				return nil
			}
		}
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return err
	}
	return vm.PutValue(base, k, v, strict)
}

func (vm *VM) deleteProperty(base, key Value, strict bool) (bool, error) {
	o, err := vm.ToObject(base)
	if err != nil {
		return false, err
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return false, err
	}
	if !o.Delete(k) {
		if strict {
			return false, vm.NewTypeError("Cannot delete property '%s' of %s", k.String(), describeForError(base))
		}
		return false, nil
	}
	return true, nil
}

func (vm *VM) superBase(home Value) (*Object, error) {
	h := home.AsObject()
	if h == nil {
		return nil, vm.NewSyntaxError("'super' keyword unexpected here")
	}
	return h.proto, nil
}

func (vm *VM) getSuper(home, this, key Value) (Value, error) {
	proto, err := vm.superBase(home)
	if err != nil {
		return Undefined, err
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return Undefined, err
	}
	if proto == nil {
		return Undefined, vm.NewTypeError("Cannot read properties of null (reading '%s')", k.String())
	}
	return vm.Get(proto, k, this)
}

func (vm *VM) setSuper(home, this, key, v Value, strict bool) error {
	proto, err := vm.superBase(home)
	if err != nil {
		return err
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return err
	}
	if proto == nil {
		return vm.NewTypeError("Cannot set properties of null (setting '%s')", k.String())
	}
	ok, err := vm.Set(proto, k, v, this)
	if err != nil {
		return err
	}
	if !ok && strict {
		return vm.NewTypeError("Cannot assign to read only property '%s' of %s", k.String(), describeForError(this))
	}
	return nil
}

// --- private names ---

func (vm *VM) privateElement(obj Value, name *Symbol, writing bool) (*Property, error) {
	var p *Property
	if o := obj.AsObject(); o != nil {
		p = o.lookup(SymbolKey(name))
	}
	if p != nil {
		return p, nil
	}
	if writing {
		return nil, vm.NewTypeError("Cannot write private member %s to an object whose class did not declare it", name.Description)
	}
	return nil, vm.NewTypeError("Cannot read private member %s from an object whose class did not declare it", name.Description)
}

func (vm *VM) getPrivate(obj Value, name *Symbol) (Value, error) {
	p, err := vm.privateElement(obj, name, false)
	if err != nil {
		return Undefined, err
	}
	if !p.IsAccessor() {
		return p.Value, nil
	}
	if p.Getter == nil {
		return Undefined, vm.NewTypeError("'%s' was defined without a getter", name.Description)
	}
	return vm.Call(ObjectValue(p.Getter), obj, nil)
}

func (vm *VM) setPrivate(obj Value, name *Symbol, v Value) error {
	p, err := vm.privateElement(obj, name, true)
	if err != nil {
		return err
	}
	switch {
	case p.IsAccessor():
		if p.Setter == nil {
			return vm.NewTypeError("'%s' was defined without a setter", name.Description)
		}
		_, err := vm.Call(ObjectValue(p.Setter), obj, []Value{v})
		return err
	case !p.Writable():
		return vm.NewTypeError("Private method '%s' is not writable", name.Description)
	}
	p.Value = v
	return nil
}

// definePrivateField implements PrivateFieldAdd. Private elements ignore
// extensibility.
func (vm *VM) definePrivateField(obj Value, name *Symbol, v Value) error {
	o := obj.AsObject()
	if o == nil {
		return vm.NewTypeError("Cannot define private field %s on a non-object", name.Description)
	}
	k := SymbolKey(name)
	if o.lookup(k) != nil {
		return vm.NewTypeError("Cannot initialize %s twice on the same object", name.Description)
	}
	o.insert(k, Property{Value: v, Flags: FlagWritable})
	return nil
}

// definePrivateMethod implements PrivateMethodOrAccessorAdd. A getter and
// a setter of the same name combine into one element.
func (vm *VM) definePrivateMethod(obj Value, name *Symbol, fn *Object, kind byte) error {
	o := obj.AsObject()
	if o == nil {
		return vm.NewTypeError("Cannot define private method %s on a non-object", name.Description)
	}
	k := SymbolKey(name)
	existing := o.lookup(k)
	switch kind & DefineKindMask {
	case DefineGetter, DefineSetter:
		if existing != nil && existing.IsAccessor() {
			if kind&DefineKindMask == DefineGetter && existing.Getter == nil {
				existing.Getter = fn
				return nil
			}
			if kind&DefineKindMask == DefineSetter && existing.Setter == nil {
				existing.Setter = fn
				return nil
			}
		}
		if existing != nil {
			break
		}
		p := Property{Flags: FlagAccessor}
		if kind&DefineKindMask == DefineGetter {
			p.Getter = fn
		} else {
			p.Setter = fn
		}
		o.insert(k, p)
		return nil
	default:
		if existing == nil {
			o.insert(k, Property{Value: ObjectValue(fn), Flags: FlagsNone})
			return nil
		}
	}
	return vm.NewTypeError("Cannot initialize private methods of class %s twice on the same object", name.Description)
}

// --- literals ---

// defineLiteralProperty defines an object literal or class member.
func (vm *VM) defineLiteralProperty(o *Object, key, v Value, kind byte) error {
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return err
	}
	flags := FlagConfigurable
	if kind&DefineEnumerable != 0 {
		flags |= FlagEnumerable
	}
	fn := v.AsObject()
	switch kind & DefineKindMask {
	case DefineGetter, DefineSetter:
		fn.fn.Home = o
		desc := PropertyDescriptor{
			HasEnumerable:   true,
			Enumerable:      flags&FlagEnumerable != 0,
			HasConfigurable: true,
			Configurable:    true,
		}
		if kind&DefineKindMask == DefineGetter {
			vm.SetFunctionName(fn, k, "get")
			desc.Getter, desc.HasGet = fn, true
		} else {
			vm.SetFunctionName(fn, k, "set")
			desc.Setter, desc.HasSet = fn, true
		}
		return vm.DefinePropertyOrThrow(o, k, desc)
	case DefineMethod:
		fn.fn.Home = o
		vm.SetFunctionName(fn, k, "")
	default:
		if kind&DefineSetName != 0 && fn != nil && isAnonymousFunction(fn) {
			vm.SetFunctionName(fn, k, "")
		}
	}
	return vm.DefinePropertyOrThrow(o, k, DataDescriptor(v, flags|FlagWritable))
}

// isAnonymousFunction reports whether fn still carries the empty name
// given to anonymous function and class definitions.
func isAnonymousFunction(fn *Object) bool {
	if !fn.IsCallable() {
		return false
	}
	p := fn.lookup(StringKey("name"))
	return p != nil && !p.IsAccessor() && p.Value.IsString() && p.Value.AsString() == ""
}

// CopyDataProperties copies the own enumerable properties of src onto
// target, skipping excluded keys. Nullish sources copy nothing.
func (vm *VM) CopyDataProperties(target *Object, src Value, excluded []PropertyKey) error {
	if src.IsNullish() {
		return nil
	}
	from, err := vm.ToObject(src)
	if err != nil {
		return err
	}
next:
	for _, k := range from.OwnKeys() {
		for _, x := range excluded {
			if x == k {
				continue next
			}
		}
		p, ok := from.GetOwnProperty(k)
		if !ok || !p.Enumerable() {
			continue
		}
		v, err := vm.Get(from, k, ObjectValue(from))
		if err != nil {
			return err
		}
		if _, err := vm.CreateDataProperty(target, k, v); err != nil {
			return err
		}
	}
	return nil
}

// templateObject returns the frozen strings array of a tagged template
// site, created once per realm.
func (vm *VM) templateObject(r *Realm, site *TemplateSite) *Object {
	if o, ok := r.templates[site]; ok {
		return o
	}
	raw := make([]Value, len(site.Raw))
	for i, s := range site.Raw {
		raw[i] = StringValue(s)
	}
	rawArr := vm.NewArray(raw)
	rawArr.SetIntegrity(true)
	arr := vm.NewArray(site.Cooked)
	arr.SetOwn("raw", ObjectValue(rawArr), FlagsNone)
	arr.SetIntegrity(true)
	r.templates[site] = arr
	return arr
}

// createClass implements the constructor half of ClassDefinitionEvaluation:
// heritage checks, the prototype object and the constructor closure.
func (vm *VM) createClass(f *Frame, t *FunctionTemplate, heritage Value, hasHeritage bool) (*Object, *Object, error) {
	in := &f.realm.Intrinsics
	protoParent := in.ObjectPrototype
	ctorParent := in.FunctionPrototype
	if hasHeritage {
		switch h := heritage.AsObject(); {
		case heritage.IsNull():
			protoParent = nil
		case h == nil || !h.IsConstructor():
			return nil, nil, vm.NewTypeError("Class extends value %s is not a constructor or null", vm.ToDisplayString(heritage))
		default:
			pp, err := vm.GetStr(h, "prototype")
			if err != nil {
				return nil, nil, err
			}
			if !pp.IsObject() && !pp.IsNull() {
				return nil, nil, vm.NewTypeError("Class extends value does not have valid prototype property %s", vm.ToDisplayString(pp))
			}
			protoParent = pp.AsObject()
			ctorParent = h
		}
	}
	proto := vm.allocObject(ClassObject, protoParent)
	ctor := vm.newClosure(t, f.env, proto)
	ctor.proto = ctorParent
	vm.makeClassPrototype(ctor, proto)
	return ctor, proto, nil
}
