package vm

import (
	"math"

	"ecmavm/pkg/source"
)

// denseSlack is how far past the end of the element vector a write may
// land before the array switches to sparse storage.
const denseSlack = 1 << 12

// --- Array exotic object ---

func (o *Object) arrayGetOwn(key PropertyKey) (Property, bool) {
	if key.sym == nil && key.name == "length" {
		flags := FlagWritable
		if o.lengthReadOnly {
			flags = FlagsNone
		}
		return Property{Value: NumberValue(float64(o.length)), Flags: flags}, true
	}
	if !o.sparse {
		if idx, ok := key.ArrayIndex(); ok {
			if idx < uint32(len(o.elements)) && !o.elements[idx].IsHole() {
				return Property{Value: o.elements[idx], Flags: FlagsDefault}, true
			}
			return Property{}, false
		}
	}
	if p := o.lookup(key); p != nil {
		return *p, true
	}
	return Property{}, false
}

// storeElement writes a default-attribute element in dense mode. It
// reports false when the index is too far out for dense storage.
func (o *Object) storeElement(idx uint32, v Value) bool {
	n := uint32(len(o.elements))
	if idx < n {
		o.elements[idx] = v
	} else {
		if idx-n > denseSlack && idx > 2*n {
			return false
		}
		for uint32(len(o.elements)) < idx {
			o.elements = append(o.elements, Hole)
		}
		o.elements = append(o.elements, v)
	}
	if idx >= o.length {
		o.length = idx + 1
	}
	return true
}

func (o *Object) makeSparse() {
	if o.sparse {
		return
	}
	o.sparse = true
	elems := o.elements
	o.elements = nil
	for i, v := range elems {
		if !v.IsHole() {
			o.insert(IndexKey(uint32(i)), Property{Value: v, Flags: FlagsDefault})
		}
	}
}

func isDefaultData(desc PropertyDescriptor) bool {
	return !desc.IsAccessor() &&
		desc.HasWritable && desc.Writable &&
		desc.HasEnumerable && desc.Enumerable &&
		desc.HasConfigurable && desc.Configurable
}

func (o *Object) arrayDefineOwn(key PropertyKey, desc PropertyDescriptor) bool {
	if key.sym == nil && key.name == "length" {
		if desc.HasValue {
			v := desc.Value
			if !v.IsNumber() {
				return false
			}
			f := v.AsNumber()
			if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
				return false
			}
			return o.arraySetLength(uint32(f), desc)
		}
		return o.arraySetLength(o.length, desc)
	}
	idx, isIndex := key.ArrayIndex()
	if !isIndex {
		return o.ordinaryDefineOwn(key, desc)
	}
	if idx >= o.length && o.lengthReadOnly {
		return false
	}
	if !o.sparse {
		present := idx < uint32(len(o.elements)) && !o.elements[idx].IsHole()
		if present {
			// changing only the value of a default element stays dense
			if !desc.IsAccessor() &&
				(!desc.HasWritable || desc.Writable) &&
				(!desc.HasEnumerable || desc.Enumerable) &&
				(!desc.HasConfigurable || desc.Configurable) {
				if desc.HasValue {
					o.elements[idx] = desc.Value
				}
				return true
			}
		} else {
			if !o.extensible {
				return false
			}
			if isDefaultData(desc) {
				v := desc.Value
				if !desc.HasValue {
					v = Undefined
				}
				if o.storeElement(idx, v) {
					return true
				}
			}
		}
		o.makeSparse()
	}
	if !o.ordinaryDefineOwn(key, desc) {
		return false
	}
	if idx >= o.length {
		o.length = idx + 1
	}
	return true
}

// arraySetLength implements ArraySetLength once the new length is known.
func (o *Object) arraySetLength(newLen uint32, desc PropertyDescriptor) bool {
	if desc.HasConfigurable && desc.Configurable {
		return false
	}
	if desc.HasEnumerable && desc.Enumerable {
		return false
	}
	if desc.IsAccessor() {
		return false
	}
	if o.lengthReadOnly {
		if desc.HasWritable && desc.Writable {
			return false
		}
		return newLen == o.length
	}
	makeReadOnly := desc.HasWritable && !desc.Writable
	if newLen >= o.length {
		o.length = newLen
		if makeReadOnly {
			o.lengthReadOnly = true
		}
		return true
	}

	if !o.sparse {
		if uint32(len(o.elements)) > newLen {
			for i := newLen; i < uint32(len(o.elements)); i++ {
				o.elements[i] = Undefined
			}
			o.elements = o.elements[:newLen]
		}
		o.length = newLen
	} else {
		var idxs []uint32
		for _, s := range o.slots {
			if s.deleted || s.key.sym != nil {
				continue
			}
			if idx, ok := arrayIndex(s.key.name); ok && idx >= newLen {
				idxs = append(idxs, idx)
			}
		}
		sortDesc(idxs)
		for _, idx := range idxs {
			if !o.Delete(IndexKey(idx)) {
				o.length = idx + 1
				if makeReadOnly {
					o.lengthReadOnly = true
				}
				return false
			}
		}
		o.length = newLen
	}
	if makeReadOnly {
		o.lengthReadOnly = true
	}
	return true
}

func sortDesc(a []uint32) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] > a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

func (o *Object) arrayDelete(key PropertyKey) bool {
	if key.sym == nil && key.name == "length" {
		return false
	}
	if !o.sparse {
		if idx, ok := key.ArrayIndex(); ok {
			if idx < uint32(len(o.elements)) {
				o.elements[idx] = Hole
				if idx == uint32(len(o.elements))-1 {
					for len(o.elements) > 0 && o.elements[len(o.elements)-1].IsHole() {
						o.elements = o.elements[:len(o.elements)-1]
					}
				}
			}
			return true
		}
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

// ArrayElements returns the dense element vector, or nil and false when
// the array is sparse or has holes that require a generic walk.
func (o *Object) ArrayElements() ([]Value, bool) {
	if o.class != ClassArray || o.sparse || uint32(len(o.elements)) != o.length {
		return nil, false
	}
	for _, v := range o.elements {
		if v.IsHole() {
			return nil, false
		}
	}
	return o.elements, true
}

// ArrayLength returns the length of an array object.
func (o *Object) ArrayLength() uint32 { return o.length }

// Push appends to an array without consulting prototypes. Used by the
// compiler's array literal construction.
func (o *Object) Push(v Value) {
	if !o.sparse && uint32(len(o.elements)) == o.length {
		o.elements = append(o.elements, v)
		o.length++
		return
	}
	o.defineRaw(IndexKey(o.length), Property{Value: v, Flags: FlagsDefault})
}

// pushHole extends an array literal with an elision.
func (o *Object) pushHole() {
	if !o.sparse && uint32(len(o.elements)) == o.length {
		o.elements = append(o.elements, Hole)
	}
	o.length++
}

// toArrayLength coerces a value assigned to "length", raising RangeError
// for values that are not valid lengths.
func (vm *VM) toArrayLength(v Value) (uint32, error) {
	n, err := vm.ToNumber(v)
	if err != nil {
		return 0, err
	}
	u := ToUint32(n)
	n2, err := vm.ToNumber(v)
	if err != nil {
		return 0, err
	}
	if float64(u) != n2 {
		return 0, vm.NewRangeError("Invalid array length")
	}
	return u, nil
}

// --- String exotic object ---

func stringOwnProperty(s string, key PropertyKey) (Property, bool) {
	if key.sym != nil {
		return Property{}, false
	}
	if key.name == "length" {
		return Property{Value: IntValue(source.UnitLength(s))}, true
	}
	idx, ok := arrayIndex(key.name)
	if !ok {
		return Property{}, false
	}
	u, ok := source.UnitAt(s, int(idx))
	if !ok {
		return Property{}, false
	}
	return Property{Value: StringValue(source.FromUnits([]uint16{u})), Flags: FlagEnumerable}, true
}

func (o *Object) stringGetOwn(key PropertyKey) (Property, bool) {
	if key.sym == nil && key.name == "length" {
		return Property{}, false // stored as an ordinary own property
	}
	return stringOwnProperty(o.primitive.AsString(), key)
}

// --- Arguments exotic object ---

// argumentsMap aliases the leading indices of a sloppy-mode arguments
// object to the parameter slots of the function environment.
type argumentsMap struct {
	env   *Env
	slots []int // env slot per index; -1 once unmapped
}

func (o *Object) mappedSlot(key PropertyKey) (*argumentsMap, int) {
	am, _ := o.Internal.(*argumentsMap)
	if am == nil {
		return nil, -1
	}
	idx, ok := key.ArrayIndex()
	if !ok || idx >= uint32(len(am.slots)) {
		return nil, -1
	}
	return am, int(idx)
}

func (o *Object) argumentsGetOwn(key PropertyKey) (Property, bool) {
	p := o.lookup(key)
	if p == nil {
		return Property{}, false
	}
	prop := *p
	if am, i := o.mappedSlot(key); am != nil && am.slots[i] >= 0 {
		prop.Value = am.env.slots[am.slots[i]]
	}
	return prop, true
}

func (o *Object) argumentsDefineOwn(key PropertyKey, desc PropertyDescriptor) bool {
	am, i := o.mappedSlot(key)
	mapped := am != nil && am.slots[i] >= 0
	newDesc := desc
	if mapped && desc.IsData() && !desc.HasValue && desc.HasWritable && !desc.Writable {
		newDesc.Value, newDesc.HasValue = am.env.slots[am.slots[i]], true
	}
	if !o.ordinaryDefineOwn(key, newDesc) {
		return false
	}
	if mapped {
		if desc.IsAccessor() {
			am.slots[i] = -1
		} else {
			if desc.HasValue {
				am.env.slots[am.slots[i]] = desc.Value
			}
			if desc.HasWritable && !desc.Writable {
				am.slots[i] = -1
			}
		}
	}
	return true
}

func (o *Object) argumentsDelete(key PropertyKey) bool {
	p := o.lookup(key)
	if p == nil {
		return true
	}
	if !p.Configurable() {
		return false
	}
	o.remove(key)
	if am, i := o.mappedSlot(key); am != nil {
		am.slots[i] = -1
	}
	return true
}
