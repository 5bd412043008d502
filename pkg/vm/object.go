package vm

import (
	"sort"

	"ecmavm/pkg/source"
)

// maxProtoChain bounds prototype walks; SetPrototypeOf refuses cycles, so
// the bound only guards against pathological depth.
const maxProtoChain = 10000

// Class tags the internal slots an object carries.
type Class uint8

const (
	ClassObject Class = iota
	ClassArray
	ClassFunction
	ClassBoundFunction
	ClassError
	ClassBoolean
	ClassNumber
	ClassString
	ClassSymbol
	ClassBigInt
	ClassArguments
	ClassRegExp
	ClassDate
	ClassMap
	ClassSet
	ClassWeakMap
	ClassWeakSet
	ClassWeakRef
	ClassFinalizationRegistry
	ClassPromise
	ClassGenerator
	ClassAsyncGenerator
	ClassIterator // builtin iterators (array, map, set, string, regexp string)
)

var classNames = [...]string{
	ClassObject:               "Object",
	ClassArray:                "Array",
	ClassFunction:             "Function",
	ClassBoundFunction:        "Function",
	ClassError:                "Error",
	ClassBoolean:              "Boolean",
	ClassNumber:               "Number",
	ClassString:               "String",
	ClassSymbol:               "Symbol",
	ClassBigInt:               "BigInt",
	ClassArguments:            "Arguments",
	ClassRegExp:               "RegExp",
	ClassDate:                 "Date",
	ClassMap:                  "Map",
	ClassSet:                  "Set",
	ClassWeakMap:              "WeakMap",
	ClassWeakSet:              "WeakSet",
	ClassWeakRef:              "WeakRef",
	ClassFinalizationRegistry: "FinalizationRegistry",
	ClassPromise:              "Promise",
	ClassGenerator:            "Generator",
	ClassAsyncGenerator:       "AsyncGenerator",
	ClassIterator:             "Iterator",
}

// PropFlags are the attributes of a property.
type PropFlags uint8

const (
	FlagWritable PropFlags = 1 << iota
	FlagEnumerable
	FlagConfigurable
	FlagAccessor
)

const (
	FlagsDefault = FlagWritable | FlagEnumerable | FlagConfigurable
	// FlagsHidden is used for builtin methods and class members.
	FlagsHidden = FlagWritable | FlagConfigurable
	FlagsNone   = PropFlags(0)
)

// Property is a data or accessor property. A nil Getter/Setter means
// undefined.
type Property struct {
	Value  Value
	Getter *Object
	Setter *Object
	Flags  PropFlags
}

func (p *Property) IsAccessor() bool   { return p.Flags&FlagAccessor != 0 }
func (p *Property) Writable() bool     { return p.Flags&FlagWritable != 0 }
func (p *Property) Enumerable() bool   { return p.Flags&FlagEnumerable != 0 }
func (p *Property) Configurable() bool { return p.Flags&FlagConfigurable != 0 }

type propSlot struct {
	key     PropertyKey
	prop    Property
	deleted bool
}

// Object is every script object. Ordinary properties live in an ordered
// table; exotic behaviour is selected by class.
type Object struct {
	class      Class
	proto      *Object
	extensible bool

	index map[PropertyKey]int
	slots []propSlot
	dead  int

	// Array exotic storage. Elements beyond len(elements) or with
	// non-default attributes force the array into sparse mode, where
	// indices are ordinary properties.
	elements       []Value
	length         uint32
	lengthReadOnly bool
	sparse         bool

	fn        *Function // callable objects
	primitive Value     // wrapped primitive of Boolean/Number/String/Symbol/BigInt objects

	// Internal holds class-specific state (map storage, promise state,
	// generator frames, regexp matcher, bound function data, ...).
	Internal any

	marked bool
}

func (o *Object) Class() Class       { return o.class }
func (o *Object) ClassName() string  { return classNames[o.class] }
func (o *Object) Prototype() *Object { return o.proto }
func (o *Object) IsExtensible() bool { return o.extensible }
func (o *Object) Primitive() Value   { return o.primitive }
func (o *Object) Function() *Function {
	return o.fn
}

// IsCallable reports whether the object has a [[Call]] internal method.
func (o *Object) IsCallable() bool {
	return o.fn != nil || o.class == ClassBoundFunction
}

// IsConstructor reports whether the object has a [[Construct]] internal method.
func (o *Object) IsConstructor() bool {
	if o.class == ClassBoundFunction {
		return o.Internal.(*BoundFunction).Target.IsConstructor()
	}
	return o.fn != nil && o.fn.constructor
}

// SetPrototypeOf implements OrdinarySetPrototypeOf.
func (o *Object) SetPrototypeOf(proto *Object) bool {
	if proto == o.proto {
		return true
	}
	if !o.extensible {
		return false
	}
	for p, depth := proto, 0; p != nil; p, depth = p.proto, depth+1 {
		if p == o || depth > maxProtoChain {
			return false
		}
	}
	o.proto = proto
	return true
}

// PreventExtensions implements OrdinaryPreventExtensions.
func (o *Object) PreventExtensions() bool {
	o.extensible = false
	return true
}

// --- Ordered property table ---

func (o *Object) lookup(key PropertyKey) *Property {
	if o.index == nil {
		return nil
	}
	if i, ok := o.index[key]; ok {
		return &o.slots[i].prop
	}
	return nil
}

func (o *Object) insert(key PropertyKey, prop Property) {
	if o.index == nil {
		o.index = make(map[PropertyKey]int, 4)
	}
	if i, ok := o.index[key]; ok {
		o.slots[i].prop = prop
		return
	}
	o.index[key] = len(o.slots)
	o.slots = append(o.slots, propSlot{key: key, prop: prop})
}

func (o *Object) remove(key PropertyKey) {
	i, ok := o.index[key]
	if !ok {
		return
	}
	delete(o.index, key)
	o.slots[i] = propSlot{deleted: true}
	o.dead++
	if o.dead > 16 && o.dead > len(o.slots)/2 {
		o.compact()
	}
}

func (o *Object) compact() {
	live := o.slots[:0]
	for _, s := range o.slots {
		if !s.deleted {
			live = append(live, s)
		}
	}
	for i := len(live); i < len(o.slots); i++ {
		o.slots[i] = propSlot{}
	}
	o.slots = live
	o.dead = 0
	for i, s := range o.slots {
		o.index[s.key] = i
	}
}

// SetOwn creates or replaces an own data property with the given flags,
// bypassing attribute validation. Used while building intrinsics.
func (o *Object) SetOwn(name string, v Value, flags PropFlags) {
	o.defineRaw(StringKey(name), Property{Value: v, Flags: flags})
}

// SetOwnKey is SetOwn for arbitrary keys.
func (o *Object) SetOwnKey(key PropertyKey, v Value, flags PropFlags) {
	o.defineRaw(key, Property{Value: v, Flags: flags})
}

// SetAccessor installs an accessor property. Either function may be nil.
func (o *Object) SetAccessor(key PropertyKey, getter, setter *Object, flags PropFlags) {
	o.defineRaw(key, Property{Getter: getter, Setter: setter, Flags: flags | FlagAccessor})
}

func (o *Object) defineRaw(key PropertyKey, prop Property) {
	if o.class == ClassArray {
		if idx, ok := key.ArrayIndex(); ok && !o.sparse {
			if prop.Flags == FlagsDefault && o.storeElement(idx, prop.Value) {
				return
			}
			o.makeSparse()
		}
	}
	o.insert(key, prop)
	if o.class == ClassArray && o.sparse {
		if idx, ok := key.ArrayIndex(); ok && idx >= o.length {
			o.length = idx + 1
		}
	}
}

// --- Internal methods ---

// GetOwnProperty implements [[GetOwnProperty]].
func (o *Object) GetOwnProperty(key PropertyKey) (Property, bool) {
	switch o.class {
	case ClassArray:
		return o.arrayGetOwn(key)
	case ClassString:
		if p, ok := o.stringGetOwn(key); ok {
			return p, true
		}
	case ClassArguments:
		return o.argumentsGetOwn(key)
	}
	if p := o.lookup(key); p != nil {
		return *p, true
	}
	return Property{}, false
}

// HasOwnProperty reports whether key is an own property.
func (o *Object) HasOwnProperty(key PropertyKey) bool {
	_, ok := o.GetOwnProperty(key)
	return ok
}

// HasProperty implements [[HasProperty]] along the prototype chain.
func (o *Object) HasProperty(key PropertyKey) bool {
	for p, depth := o, 0; p != nil && depth <= maxProtoChain; p, depth = p.proto, depth+1 {
		if p.HasOwnProperty(key) {
			return true
		}
	}
	return false
}

// Delete implements [[Delete]].
func (o *Object) Delete(key PropertyKey) bool {
	switch o.class {
	case ClassArray:
		return o.arrayDelete(key)
	case ClassString:
		if _, ok := o.stringGetOwn(key); ok {
			return false
		}
	case ClassArguments:
		return o.argumentsDelete(key)
	}
	p := o.lookup(key)
	if p == nil {
		return true
	}
	if !p.Configurable() {
		return false
	}
	o.remove(key)
	return true
}

// OwnKeys implements [[OwnPropertyKeys]]: array indices ascending, then
// strings in insertion order, then symbols in insertion order. Private
// names are never listed.
func (o *Object) OwnKeys() []PropertyKey {
	var indices []uint32
	switch o.class {
	case ClassArray:
		for i, v := range o.elements {
			if !v.IsHole() {
				indices = append(indices, uint32(i))
			}
		}
	case ClassString:
		n := source.UnitLength(o.primitive.AsString())
		for i := 0; i < n; i++ {
			indices = append(indices, uint32(i))
		}
	}
	var strs, syms []PropertyKey
	if o.class == ClassArray {
		strs = append(strs, StringKey("length"))
	}
	for _, s := range o.slots {
		if s.deleted {
			continue
		}
		if s.key.sym != nil {
			if !s.key.sym.private {
				syms = append(syms, s.key)
			}
			continue
		}
		if idx, ok := arrayIndex(s.key.name); ok {
			indices = append(indices, idx)
			continue
		}
		strs = append(strs, s.key)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	keys := make([]PropertyKey, 0, len(indices)+len(strs)+len(syms))
	for _, idx := range indices {
		keys = append(keys, IndexKey(idx))
	}
	keys = append(keys, strs...)
	return append(keys, syms...)
}

// PrivateKeys lists the private elements of the object.
func (o *Object) privateKeys() []PropertyKey {
	var keys []PropertyKey
	for _, s := range o.slots {
		if !s.deleted && s.key.IsPrivate() {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// PropertyDescriptor is a partially specified property, as accepted by
// [[DefineOwnProperty]].
type PropertyDescriptor struct {
	Value  Value
	Getter *Object
	Setter *Object

	Writable, Enumerable, Configurable bool

	HasValue, HasWritable, HasGet, HasSet, HasEnumerable, HasConfigurable bool
}

func (d *PropertyDescriptor) IsAccessor() bool { return d.HasGet || d.HasSet }
func (d *PropertyDescriptor) IsData() bool     { return d.HasValue || d.HasWritable }

// DataDescriptor returns a fully populated data descriptor.
func DataDescriptor(v Value, flags PropFlags) PropertyDescriptor {
	return PropertyDescriptor{
		Value: v, HasValue: true,
		Writable: flags&FlagWritable != 0, HasWritable: true,
		Enumerable: flags&FlagEnumerable != 0, HasEnumerable: true,
		Configurable: flags&FlagConfigurable != 0, HasConfigurable: true,
	}
}

// AccessorDescriptor returns a fully populated accessor descriptor.
func AccessorDescriptor(getter, setter *Object, flags PropFlags) PropertyDescriptor {
	return PropertyDescriptor{
		Getter: getter, HasGet: true, Setter: setter, HasSet: true,
		Enumerable: flags&FlagEnumerable != 0, HasEnumerable: true,
		Configurable: flags&FlagConfigurable != 0, HasConfigurable: true,
	}
}

// DescriptorOf converts an existing property into a complete descriptor.
func DescriptorOf(p Property) PropertyDescriptor {
	if p.IsAccessor() {
		return AccessorDescriptor(p.Getter, p.Setter, p.Flags)
	}
	return DataDescriptor(p.Value, p.Flags)
}

// DefineOwnProperty implements [[DefineOwnProperty]] for every class except
// the array "length" coercion, which VM.DefineOwnProperty performs first.
func (o *Object) DefineOwnProperty(key PropertyKey, desc PropertyDescriptor) bool {
	switch o.class {
	case ClassArray:
		return o.arrayDefineOwn(key, desc)
	case ClassString:
		if cur, ok := o.stringGetOwn(key); ok {
			return validateAndApply(nil, key, true, desc, cur, true)
		}
	case ClassArguments:
		return o.argumentsDefineOwn(key, desc)
	}
	return o.ordinaryDefineOwn(key, desc)
}

func (o *Object) ordinaryDefineOwn(key PropertyKey, desc PropertyDescriptor) bool {
	cur := o.lookup(key)
	if cur == nil {
		return validateAndApply(o, key, o.extensible, desc, Property{}, false)
	}
	return validateAndApply(o, key, o.extensible, desc, *cur, true)
}

// validateAndApply implements ValidateAndApplyPropertyDescriptor. o may be
// nil to validate only.
func validateAndApply(o *Object, key PropertyKey, extensible bool, desc PropertyDescriptor, cur Property, exists bool) bool {
	if !exists {
		if !extensible {
			return false
		}
		if o == nil {
			return true
		}
		var p Property
		if desc.IsAccessor() {
			p.Flags = FlagAccessor
			p.Getter, p.Setter = desc.Getter, desc.Setter
		} else {
			p.Value = desc.Value
			if !desc.HasValue {
				p.Value = Undefined
			}
			if desc.Writable {
				p.Flags |= FlagWritable
			}
		}
		if desc.Enumerable {
			p.Flags |= FlagEnumerable
		}
		if desc.Configurable {
			p.Flags |= FlagConfigurable
		}
		o.defineRaw(key, p)
		return true
	}

	if !cur.Configurable() {
		if desc.HasConfigurable && desc.Configurable {
			return false
		}
		if desc.HasEnumerable && desc.Enumerable != cur.Enumerable() {
			return false
		}
		if !desc.IsAccessor() && !desc.IsData() {
			// generic descriptor
		} else if desc.IsAccessor() != cur.IsAccessor() {
			return false
		} else if cur.IsAccessor() {
			if desc.HasGet && desc.Getter != cur.Getter {
				return false
			}
			if desc.HasSet && desc.Setter != cur.Setter {
				return false
			}
		} else if !cur.Writable() {
			if desc.HasWritable && desc.Writable {
				return false
			}
			if desc.HasValue && !SameValue(desc.Value, cur.Value) {
				return false
			}
		}
	}
	if o == nil {
		return true
	}

	p := cur
	if desc.IsAccessor() && !cur.IsAccessor() {
		p = Property{Flags: cur.Flags&(FlagEnumerable|FlagConfigurable) | FlagAccessor}
	} else if desc.IsData() && cur.IsAccessor() {
		p = Property{Value: Undefined, Flags: cur.Flags & (FlagEnumerable | FlagConfigurable)}
	}
	if desc.HasValue {
		p.Value = desc.Value
	}
	if desc.HasWritable {
		p.Flags = setFlag(p.Flags, FlagWritable, desc.Writable)
	}
	if desc.HasGet {
		p.Getter = desc.Getter
	}
	if desc.HasSet {
		p.Setter = desc.Setter
	}
	if desc.HasEnumerable {
		p.Flags = setFlag(p.Flags, FlagEnumerable, desc.Enumerable)
	}
	if desc.HasConfigurable {
		p.Flags = setFlag(p.Flags, FlagConfigurable, desc.Configurable)
	}
	o.defineRaw(key, p)
	return true
}

func setFlag(flags, f PropFlags, on bool) PropFlags {
	if on {
		return flags | f
	}
	return flags &^ f
}

// SetIntegrity implements SetIntegrityLevel (sealed or frozen).
func (o *Object) SetIntegrity(frozen bool) {
	o.PreventExtensions()
	for _, key := range o.OwnKeys() {
		desc := PropertyDescriptor{Configurable: false, HasConfigurable: true}
		if frozen {
			if p, ok := o.GetOwnProperty(key); ok && !p.IsAccessor() {
				desc.Writable, desc.HasWritable = false, true
			}
		}
		o.DefineOwnProperty(key, desc)
	}
	if frozen && o.class == ClassArray {
		o.lengthReadOnly = true
	}
}

// TestIntegrity implements TestIntegrityLevel.
func (o *Object) TestIntegrity(frozen bool) bool {
	if o.extensible {
		return false
	}
	for _, key := range o.OwnKeys() {
		p, _ := o.GetOwnProperty(key)
		if p.Configurable() {
			return false
		}
		if frozen && !p.IsAccessor() && p.Writable() {
			return false
		}
	}
	return true
}

// --- Property access through the VM (accessors may run script code) ---

// Get implements [[Get]] with an explicit receiver.
func (vm *VM) Get(o *Object, key PropertyKey, receiver Value) (Value, error) {
	for depth := 0; o != nil; depth++ {
		if depth > maxProtoChain {
			return Undefined, vm.NewRangeError("Maximum prototype chain length exceeded")
		}
		if o.class == ClassArray && !o.sparse {
			if idx, ok := key.ArrayIndex(); ok {
				if idx < uint32(len(o.elements)) && !o.elements[idx].IsHole() {
					return o.elements[idx], nil
				}
				o = o.proto
				continue
			}
		}
		p, ok := o.GetOwnProperty(key)
		if ok {
			if !p.IsAccessor() {
				return p.Value, nil
			}
			if p.Getter == nil {
				return Undefined, nil
			}
			return vm.Call(ObjectValue(p.Getter), receiver, nil)
		}
		o = o.proto
	}
	return Undefined, nil
}

// GetV reads a property of any value, boxing primitives for the lookup.
func (vm *VM) GetV(v Value, key PropertyKey) (Value, error) {
	if o := v.AsObject(); o != nil {
		return vm.Get(o, key, v)
	}
	proto, err := vm.protoForPrimitive(v)
	if err != nil {
		return Undefined, err
	}
	if v.IsString() {
		if p, ok := stringOwnProperty(v.AsString(), key); ok {
			return p.Value, nil
		}
	}
	return vm.Get(proto, key, v)
}

// GetStr is Get with a string key and the object itself as receiver.
func (vm *VM) GetStr(o *Object, name string) (Value, error) {
	return vm.Get(o, StringKey(name), ObjectValue(o))
}

// Set implements OrdinarySet. The returned bool is false when the
// assignment was rejected; callers in strict code throw.
func (vm *VM) Set(o *Object, key PropertyKey, v Value, receiver Value) (bool, error) {
	var own Property
	found := false
	for depth := 0; o != nil; depth++ {
		if depth > maxProtoChain {
			return false, vm.NewRangeError("Maximum prototype chain length exceeded")
		}
		if p, ok := o.GetOwnProperty(key); ok {
			own, found = p, true
			break
		}
		o = o.proto
	}
	if found && own.IsAccessor() {
		if own.Setter == nil {
			return false, nil
		}
		_, err := vm.Call(ObjectValue(own.Setter), receiver, []Value{v})
		return err == nil, err
	}
	if found && !own.Writable() {
		return false, nil
	}
	recv := receiver.AsObject()
	if recv == nil {
		return false, nil
	}
	// fast path for dense array elements
	if recv.class == ClassArray && !recv.sparse {
		if idx, ok := key.ArrayIndex(); ok && idx < uint32(len(recv.elements)) && !recv.elements[idx].IsHole() {
			recv.elements[idx] = v
			return true, nil
		}
	}
	if cur, ok := recv.GetOwnProperty(key); ok {
		if cur.IsAccessor() || !cur.Writable() {
			return false, nil
		}
		return vm.DefineOwnProperty(recv, key, PropertyDescriptor{Value: v, HasValue: true})
	}
	return vm.DefineOwnProperty(recv, key, DataDescriptor(v, FlagsDefault))
}

// SetStr is Set with a string key and the object as receiver.
func (vm *VM) SetStr(o *Object, name string, v Value) (bool, error) {
	return vm.Set(o, StringKey(name), v, ObjectValue(o))
}

// PutValue assigns through any base value, throwing in strict code when
// the assignment is rejected.
func (vm *VM) PutValue(base Value, key PropertyKey, v Value, strict bool) error {
	var ok bool
	var err error
	if o := base.AsObject(); o != nil {
		ok, err = vm.Set(o, key, v, base)
	} else {
		if base.IsNullish() {
			return vm.NewTypeError("Cannot set properties of %s (setting '%s')", base.String(), key.String())
		}
		proto, perr := vm.protoForPrimitive(base)
		if perr != nil {
			return perr
		}
		ok, err = vm.Set(proto, key, v, base)
	}
	if err != nil {
		return err
	}
	if !ok && strict {
		return vm.NewTypeError("Cannot assign to read only property '%s' of %s", key.String(), describeForError(base))
	}
	return nil
}

// DefineOwnProperty performs [[DefineOwnProperty]], including the array
// length coercion (ArraySetLength) that may call into script code.
func (vm *VM) DefineOwnProperty(o *Object, key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if o.class == ClassArray && key.sym == nil && key.name == "length" && desc.HasValue {
		newLen, err := vm.toArrayLength(desc.Value)
		if err != nil {
			return false, err
		}
		return o.arraySetLength(newLen, desc), nil
	}
	return o.DefineOwnProperty(key, desc), nil
}

// DefinePropertyOrThrow is DefineOwnProperty raising a TypeError on rejection.
func (vm *VM) DefinePropertyOrThrow(o *Object, key PropertyKey, desc PropertyDescriptor) error {
	ok, err := vm.DefineOwnProperty(o, key, desc)
	if err != nil {
		return err
	}
	if !ok {
		return vm.NewTypeError("Cannot redefine property: %s", key.String())
	}
	return nil
}

// CreateDataProperty defines an enumerable, writable, configurable property.
func (vm *VM) CreateDataProperty(o *Object, key PropertyKey, v Value) (bool, error) {
	return vm.DefineOwnProperty(o, key, DataDescriptor(v, FlagsDefault))
}

// CreateDataPropertyOrThrow raises a TypeError when the property cannot be created.
func (vm *VM) CreateDataPropertyOrThrow(o *Object, key PropertyKey, v Value) error {
	return vm.DefinePropertyOrThrow(o, key, DataDescriptor(v, FlagsDefault))
}

// DeletePropertyOrThrow deletes a property, throwing when it is non-configurable.
func (vm *VM) DeletePropertyOrThrow(o *Object, key PropertyKey) error {
	if !o.Delete(key) {
		return vm.NewTypeError("Cannot delete property '%s' of %s", key.String(), describeForError(ObjectValue(o)))
	}
	return nil
}

// GetMethod returns the function stored under key, or undefined.
func (vm *VM) GetMethod(v Value, key PropertyKey) (Value, error) {
	fn, err := vm.GetV(v, key)
	if err != nil || fn.IsNullish() {
		return Undefined, err
	}
	if !fn.IsCallable() {
		return Undefined, vm.NewTypeError("%s is not a function", key.String())
	}
	return fn, nil
}

// Invoke calls the method named key on v.
func (vm *VM) Invoke(v Value, key PropertyKey, args ...Value) (Value, error) {
	fn, err := vm.GetV(v, key)
	if err != nil {
		return Undefined, err
	}
	if !fn.IsCallable() {
		return Undefined, vm.NewTypeError("%s is not a function", key.String())
	}
	return vm.Call(fn, v, args)
}

// LengthOfArrayLike implements LengthOfArrayLike.
func (vm *VM) LengthOfArrayLike(o *Object) (int64, error) {
	if o.class == ClassArray {
		return int64(o.length), nil
	}
	v, err := vm.GetStr(o, "length")
	if err != nil {
		return 0, err
	}
	return vm.ToLength(v)
}

func describeForError(v Value) string {
	if o := v.AsObject(); o != nil {
		if o.IsCallable() {
			return "function"
		}
		return "object"
	}
	if v.IsString() {
		return "string '" + v.AsString() + "'"
	}
	return v.String()
}
