package vm

import (
	"math"
	"math/big"

	"ecmavm/pkg/source"
)

// ToBoolean never fails.
func ToBoolean(v Value) bool {
	switch v.typ {
	case TypeBoolean:
		return v.AsBool()
	case TypeNumber:
		f := v.AsNumber()
		return f != 0 && !math.IsNaN(f)
	case TypeString:
		return v.AsString() != ""
	case TypeBigInt:
		return v.AsBigInt().Sign() != 0
	case TypeSymbol, TypeObject:
		return true
	}
	return false
}

// Hints accepted by ToPrimitive.
const (
	HintDefault = "default"
	HintNumber  = "number"
	HintString  = "string"
)

// ToPrimitive converts objects through Symbol.toPrimitive or
// OrdinaryToPrimitive; primitives are returned unchanged.
func (vm *VM) ToPrimitive(v Value, hint string) (Value, error) {
	o := v.AsObject()
	if o == nil {
		return v, nil
	}
	exotic, err := vm.GetMethod(v, SymbolKey(SymToPrimitive))
	if err != nil {
		return Undefined, err
	}
	if !exotic.IsUndefined() {
		r, err := vm.Call(exotic, v, []Value{StringValue(hint)})
		if err != nil {
			return Undefined, err
		}
		if r.IsObject() {
			return Undefined, vm.NewTypeError("Cannot convert object to primitive value")
		}
		return r, nil
	}
	if hint == HintDefault {
		hint = HintNumber
	}
	return vm.OrdinaryToPrimitive(o, hint)
}

// OrdinaryToPrimitive tries valueOf and toString in hint order.
func (vm *VM) OrdinaryToPrimitive(o *Object, hint string) (Value, error) {
	names := [2]string{"valueOf", "toString"}
	if hint == HintString {
		names = [2]string{"toString", "valueOf"}
	}
	for _, name := range names {
		m, err := vm.GetStr(o, name)
		if err != nil {
			return Undefined, err
		}
		if m.IsCallable() {
			r, err := vm.Call(m, ObjectValue(o), nil)
			if err != nil {
				return Undefined, err
			}
			if !r.IsObject() {
				return r, nil
			}
		}
	}
	return Undefined, vm.NewTypeError("Cannot convert object to primitive value")
}

// ToNumber converts to a float64; BigInts and Symbols throw.
func (vm *VM) ToNumber(v Value) (float64, error) {
	switch v.typ {
	case TypeNumber:
		return v.AsNumber(), nil
	case TypeUndefined:
		return math.NaN(), nil
	case TypeNull:
		return 0, nil
	case TypeBoolean:
		if v.AsBool() {
			return 1, nil
		}
		return 0, nil
	case TypeString:
		return StringToNumber(v.AsString()), nil
	case TypeBigInt:
		return 0, vm.NewTypeError("Cannot convert a BigInt value to a number")
	case TypeSymbol:
		return 0, vm.NewTypeError("Cannot convert a Symbol value to a number")
	case TypeObject:
		p, err := vm.ToPrimitive(v, HintNumber)
		if err != nil {
			return 0, err
		}
		return vm.ToNumber(p)
	}
	return math.NaN(), nil
}

// ToNumeric returns a Number or BigInt value.
func (vm *VM) ToNumeric(v Value) (Value, error) {
	if v.IsNumeric() {
		return v, nil
	}
	p, err := vm.ToPrimitive(v, HintNumber)
	if err != nil {
		return Undefined, err
	}
	if p.IsBigInt() {
		return p, nil
	}
	f, err := vm.ToNumber(p)
	if err != nil {
		return Undefined, err
	}
	return NumberValue(f), nil
}

// ToString converts to a string; Symbols throw.
func (vm *VM) ToString(v Value) (string, error) {
	switch v.typ {
	case TypeString:
		return v.AsString(), nil
	case TypeSymbol:
		return "", vm.NewTypeError("Cannot convert a Symbol value to a string")
	case TypeObject:
		p, err := vm.ToPrimitive(v, HintString)
		if err != nil {
			return "", err
		}
		return vm.ToString(p)
	}
	return v.String(), nil
}

// ToPropertyKey converts to a string or symbol key.
func (vm *VM) ToPropertyKey(v Value) (PropertyKey, error) {
	switch v.typ {
	case TypeString:
		return StringKey(v.AsString()), nil
	case TypeSymbol:
		return SymbolKey(v.AsSymbol()), nil
	case TypeNumber:
		f := v.AsNumber()
		if f >= 0 && f < math.MaxUint32 && f == math.Trunc(f) {
			return IndexKey(uint32(f)), nil
		}
		return StringKey(NumberToString(f)), nil
	}
	p, err := vm.ToPrimitive(v, HintString)
	if err != nil {
		return PropertyKey{}, err
	}
	if p.IsSymbol() {
		return SymbolKey(p.AsSymbol()), nil
	}
	s, err := vm.ToString(p)
	if err != nil {
		return PropertyKey{}, err
	}
	return StringKey(s), nil
}

// ToObject boxes primitives; undefined and null throw.
func (vm *VM) ToObject(v Value) (*Object, error) {
	if o := v.AsObject(); o != nil {
		return o, nil
	}
	if v.IsNullish() {
		return nil, vm.NewTypeError("Cannot convert undefined or null to object")
	}
	proto, err := vm.protoForPrimitive(v)
	if err != nil {
		return nil, err
	}
	return vm.NewPrimitiveWrapper(v, proto), nil
}

// NewPrimitiveWrapper creates a Boolean, Number, String, Symbol or BigInt
// object around v.
func (vm *VM) NewPrimitiveWrapper(v Value, proto *Object) *Object {
	class := ClassObject
	switch v.typ {
	case TypeBoolean:
		class = ClassBoolean
	case TypeNumber:
		class = ClassNumber
	case TypeString:
		class = ClassString
	case TypeSymbol:
		class = ClassSymbol
	case TypeBigInt:
		class = ClassBigInt
	}
	o := vm.allocObject(class, proto)
	o.primitive = v
	if class == ClassString {
		o.SetOwn("length", IntValue(source.UnitLength(v.AsString())), FlagsNone)
	}
	return o
}

func (vm *VM) protoForPrimitive(v Value) (*Object, error) {
	in := &vm.realm.Intrinsics
	switch v.typ {
	case TypeBoolean:
		return in.BooleanPrototype, nil
	case TypeNumber:
		return in.NumberPrototype, nil
	case TypeString:
		return in.StringPrototype, nil
	case TypeSymbol:
		return in.SymbolPrototype, nil
	case TypeBigInt:
		return in.BigIntPrototype, nil
	}
	return nil, vm.NewTypeError("Cannot read properties of %s", v.String())
}

// ToIntegerOrInfinity truncates toward zero; NaN becomes 0.
func (vm *VM) ToIntegerOrInfinity(v Value) (float64, error) {
	f, err := vm.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return IntegerOrInfinity(f), nil
}

// IntegerOrInfinity is ToIntegerOrInfinity on an already converted number.
func IntegerOrInfinity(f float64) float64 {
	if math.IsNaN(f) || f == 0 {
		return 0
	}
	return math.Trunc(f)
}

// ToLength clamps to 0 .. 2^53-1.
func (vm *VM) ToLength(v Value) (int64, error) {
	f, err := vm.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, nil
	}
	if f > 1<<53-1 {
		return 1<<53 - 1, nil
	}
	return int64(f), nil
}

// ToIndex implements ToIndex, raising RangeError outside 0 .. 2^53-1.
func (vm *VM) ToIndex(v Value) (int64, error) {
	if v.IsUndefined() {
		return 0, nil
	}
	f, err := vm.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 1<<53-1 {
		return 0, vm.NewRangeError("Invalid index")
	}
	return int64(f), nil
}

// RelativeIndex resolves a possibly negative relative index against
// length, clamping to 0 .. length.
func RelativeIndex(rel float64, length int64) int64 {
	if rel < 0 {
		r := float64(length) + rel
		if r < 0 {
			return 0
		}
		return int64(r)
	}
	if rel > float64(length) {
		return length
	}
	return int64(rel)
}

// ToInt32 implements the modular conversion used by bitwise operators.
func ToInt32(f float64) int32 {
	return int32(ToUint32(f))
}

// ToUint32 implements ToUint32 on a number.
func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= 0 && f < math.MaxUint32+1 {
		return uint32(f)
	}
	f = math.Mod(math.Trunc(f), 1<<32)
	if f < 0 {
		f += 1 << 32
	}
	return uint32(f)
}

// ToUint16 implements ToUint16 (String.fromCharCode).
func ToUint16(f float64) uint16 {
	return uint16(ToUint32(f))
}

// ToBigInt converts booleans, strings and bigints; numbers throw.
func (vm *VM) ToBigInt(v Value) (*big.Int, error) {
	p, err := vm.ToPrimitive(v, HintNumber)
	if err != nil {
		return nil, err
	}
	switch p.typ {
	case TypeBigInt:
		return p.AsBigInt(), nil
	case TypeBoolean:
		if p.AsBool() {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	case TypeString:
		b, ok := StringToBigInt(p.AsString())
		if !ok {
			return nil, vm.NewSyntaxError("Cannot convert %s to a BigInt", p.AsString())
		}
		return b, nil
	case TypeNumber:
		return nil, vm.NewTypeError("Cannot convert %s to a BigInt", NumberToString(p.AsNumber()))
	case TypeSymbol:
		return nil, vm.NewTypeError("Cannot convert a Symbol value to a BigInt")
	}
	return nil, vm.NewTypeError("Cannot convert %s to a BigInt", p.String())
}

// NumberToBigInt converts an integral number; ok is false otherwise.
func NumberToBigInt(f float64) (*big.Int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	b, _ := new(big.Float).SetFloat64(f).Int(nil)
	return b, true
}

// BigIntToNumber rounds a bigint to the nearest float64.
func BigIntToNumber(b *big.Int) float64 {
	f, _ := new(big.Float).SetInt(b).Float64()
	return f
}

// RequireObjectCoercible throws for undefined and null.
func (vm *VM) RequireObjectCoercible(v Value, what string) error {
	if v.IsNullish() {
		return vm.NewTypeError("%s called on null or undefined", what)
	}
	return nil
}

// ToDisplayString converts a value for printing without throwing:
// symbols print as Symbol(desc) and objects through toString when possible.
func (vm *VM) ToDisplayString(v Value) string {
	if v.IsSymbol() {
		return v.AsSymbol().String()
	}
	s, err := vm.ToString(v)
	if err != nil {
		return v.String()
	}
	return s
}
