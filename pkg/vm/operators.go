package vm

import (
	"math"
	"math/big"

	"ecmavm/pkg/source"
)

// SameValue distinguishes +0/-0 and equates NaN with itself.
func SameValue(a, b Value) bool {
	if a.typ == TypeNumber && b.typ == TypeNumber {
		x, y := a.AsNumber(), b.AsNumber()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y && math.Signbit(x) == math.Signbit(y)
	}
	return StrictEquals(a, b)
}

// SameValueZero is SameValue with +0 equal to -0.
func SameValueZero(a, b Value) bool {
	if a.typ == TypeNumber && b.typ == TypeNumber {
		x, y := a.AsNumber(), b.AsNumber()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	}
	return StrictEquals(a, b)
}

// StrictEquals implements ===.
func StrictEquals(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeBoolean:
		return a.AsBool() == b.AsBool()
	case TypeNumber:
		return a.AsNumber() == b.AsNumber()
	case TypeString:
		return a.AsString() == b.AsString()
	case TypeBigInt:
		return a.AsBigInt().Cmp(b.AsBigInt()) == 0
	}
	return a.obj == b.obj
}

// LooseEquals implements ==.
func (vm *VM) LooseEquals(a, b Value) (bool, error) {
	for {
		if a.typ == b.typ {
			return StrictEquals(a, b), nil
		}
		switch {
		case a.IsNullish() && b.IsNullish():
			return true, nil
		case a.IsNullish() || b.IsNullish():
			return false, nil
		case a.IsNumber() && b.IsString():
			return a.AsNumber() == StringToNumber(b.AsString()), nil
		case a.IsString() && b.IsNumber():
			return StringToNumber(a.AsString()) == b.AsNumber(), nil
		case a.IsBigInt() && b.IsString():
			n, ok := StringToBigInt(b.AsString())
			return ok && a.AsBigInt().Cmp(n) == 0, nil
		case a.IsString() && b.IsBigInt():
			a, b = b, a
			continue
		case a.IsBoolean():
			a = NumberValue(boolNumber(a))
			continue
		case b.IsBoolean():
			b = NumberValue(boolNumber(b))
			continue
		case !a.IsObject() && b.IsObject():
			p, err := vm.ToPrimitive(b, HintDefault)
			if err != nil {
				return false, err
			}
			b = p
			continue
		case a.IsObject() && !b.IsObject():
			p, err := vm.ToPrimitive(a, HintDefault)
			if err != nil {
				return false, err
			}
			a = p
			continue
		case a.IsBigInt() && b.IsNumber():
			return compareBigNum(a.AsBigInt(), b.AsNumber()) == 0, nil
		case a.IsNumber() && b.IsBigInt():
			return compareBigNum(b.AsBigInt(), a.AsNumber()) == 0, nil
		}
		return false, nil
	}
}

func boolNumber(v Value) float64 {
	if v.AsBool() {
		return 1
	}
	return 0
}

// compareBigNum orders a bigint against a number; 2 means unordered (NaN).
func compareBigNum(b *big.Int, f float64) int {
	switch {
	case math.IsNaN(f):
		return 2
	case math.IsInf(f, 1):
		return -1
	case math.IsInf(f, -1):
		return 1
	}
	bf := new(big.Float).SetInt(b)
	return bf.Cmp(new(big.Float).SetFloat64(f))
}

// Operator identifies a binary arithmetic or bitwise operator.
type Operator uint8

const (
	OperatorAdd Operator = iota
	OperatorSub
	OperatorMul
	OperatorDiv
	OperatorMod
	OperatorExp
	OperatorShl
	OperatorShr
	OperatorUShr
	OperatorBitAnd
	OperatorBitOr
	OperatorBitXor
)

// Add implements the + operator.
func (vm *VM) Add(a, b Value) (Value, error) {
	if a.IsNumber() && b.IsNumber() {
		return NumberValue(a.AsNumber() + b.AsNumber()), nil
	}
	if a.IsString() && b.IsString() {
		return StringValue(source.Concat(a.AsString(), b.AsString())), nil
	}
	pa, err := vm.ToPrimitive(a, HintDefault)
	if err != nil {
		return Undefined, err
	}
	pb, err := vm.ToPrimitive(b, HintDefault)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		sa, err := vm.ToString(pa)
		if err != nil {
			return Undefined, err
		}
		sb, err := vm.ToString(pb)
		if err != nil {
			return Undefined, err
		}
		return StringValue(source.Concat(sa, sb)), nil
	}
	return vm.arithmetic(OperatorAdd, pa, pb)
}

// Arithmetic implements every binary numeric operator except +, which
// additionally concatenates strings.
func (vm *VM) Arithmetic(op Operator, a, b Value) (Value, error) {
	if op == OperatorAdd {
		return vm.Add(a, b)
	}
	if a.IsNumber() && b.IsNumber() {
		return NumberValue(numberOp(op, a.AsNumber(), b.AsNumber())), nil
	}
	return vm.arithmetic(op, a, b)
}

func (vm *VM) arithmetic(op Operator, a, b Value) (Value, error) {
	na, err := vm.ToNumeric(a)
	if err != nil {
		return Undefined, err
	}
	nb, err := vm.ToNumeric(b)
	if err != nil {
		return Undefined, err
	}
	if na.IsBigInt() != nb.IsBigInt() {
		return Undefined, vm.NewTypeError("Cannot mix BigInt and other types, use explicit conversions")
	}
	if na.IsBigInt() {
		return vm.bigIntOp(op, na.AsBigInt(), nb.AsBigInt())
	}
	return NumberValue(numberOp(op, na.AsNumber(), nb.AsNumber())), nil
}

func numberOp(op Operator, x, y float64) float64 {
	switch op {
	case OperatorAdd:
		return x + y
	case OperatorSub:
		return x - y
	case OperatorMul:
		return x * y
	case OperatorDiv:
		return x / y
	case OperatorMod:
		if math.IsInf(y, 0) && !math.IsInf(x, 0) {
			return x
		}
		return math.Mod(x, y)
	case OperatorExp:
		return Exponentiate(x, y)
	case OperatorShl:
		return float64(ToInt32(x) << (ToUint32(y) & 31))
	case OperatorShr:
		return float64(ToInt32(x) >> (ToUint32(y) & 31))
	case OperatorUShr:
		return float64(ToUint32(x) >> (ToUint32(y) & 31))
	case OperatorBitAnd:
		return float64(ToInt32(x) & ToInt32(y))
	case OperatorBitOr:
		return float64(ToInt32(x) | ToInt32(y))
	case OperatorBitXor:
		return float64(ToInt32(x) ^ ToInt32(y))
	}
	return math.NaN()
}

// Exponentiate implements Number::exponentiate, which differs from
// math.Pow for |base| = 1 with infinite or NaN exponents.
func Exponentiate(x, y float64) float64 {
	if math.IsNaN(y) {
		return math.NaN()
	}
	if math.Abs(x) == 1 && math.IsInf(y, 0) {
		return math.NaN()
	}
	return math.Pow(x, y)
}

// maxBigIntShift bounds shifts so a runaway left shift fails instead of
// exhausting memory.
const maxBigIntShift = 1 << 30

func (vm *VM) bigIntOp(op Operator, x, y *big.Int) (Value, error) {
	r := new(big.Int)
	switch op {
	case OperatorAdd:
		r.Add(x, y)
	case OperatorSub:
		r.Sub(x, y)
	case OperatorMul:
		r.Mul(x, y)
	case OperatorDiv:
		if y.Sign() == 0 {
			return Undefined, vm.NewRangeError("Division by zero")
		}
		r.Quo(x, y)
	case OperatorMod:
		if y.Sign() == 0 {
			return Undefined, vm.NewRangeError("Division by zero")
		}
		r.Rem(x, y)
	case OperatorExp:
		if y.Sign() < 0 {
			return Undefined, vm.NewRangeError("Exponent must be non-negative")
		}
		if !y.IsInt64() || (y.Int64() > maxBigIntShift && x.CmpAbs(big.NewInt(1)) > 0) {
			return Undefined, vm.NewRangeError("Maximum BigInt size exceeded")
		}
		r.Exp(x, y, nil)
	case OperatorShl, OperatorShr:
		if !y.IsInt64() || y.Int64() > maxBigIntShift || y.Int64() < -maxBigIntShift {
			if (op == OperatorShl) == (y.Sign() < 0) {
				// shifting right by a huge amount
				if x.Sign() < 0 {
					return BigIntValue(big.NewInt(-1)), nil
				}
				return BigIntValue(new(big.Int)), nil
			}
			return Undefined, vm.NewRangeError("Maximum BigInt size exceeded")
		}
		n := y.Int64()
		if op == OperatorShr {
			n = -n
		}
		if n >= 0 {
			r.Lsh(x, uint(n))
		} else {
			// Rsh on big.Int rounds toward negative infinity, as required
			r.Rsh(x, uint(-n))
		}
	case OperatorUShr:
		return Undefined, vm.NewTypeError("BigInts have no unsigned right shift, use >> instead")
	case OperatorBitAnd:
		r.And(x, y)
	case OperatorBitOr:
		r.Or(x, y)
	case OperatorBitXor:
		r.Xor(x, y)
	}
	return BigIntValue(r), nil
}

// Negate implements unary minus.
func (vm *VM) Negate(v Value) (Value, error) {
	if v.IsNumber() {
		return NumberValue(-v.AsNumber()), nil
	}
	n, err := vm.ToNumeric(v)
	if err != nil {
		return Undefined, err
	}
	if n.IsBigInt() {
		return BigIntValue(new(big.Int).Neg(n.AsBigInt())), nil
	}
	return NumberValue(-n.AsNumber()), nil
}

// BitNot implements ~.
func (vm *VM) BitNot(v Value) (Value, error) {
	n, err := vm.ToNumeric(v)
	if err != nil {
		return Undefined, err
	}
	if n.IsBigInt() {
		return BigIntValue(new(big.Int).Not(n.AsBigInt())), nil
	}
	return NumberValue(float64(^ToInt32(n.AsNumber()))), nil
}

// Increment adds delta (+1 or -1) to a numeric value.
func (vm *VM) Increment(v Value, delta int) (Value, error) {
	if v.IsNumber() {
		return NumberValue(v.AsNumber() + float64(delta)), nil
	}
	if v.IsBigInt() {
		return BigIntValue(new(big.Int).Add(v.AsBigInt(), big.NewInt(int64(delta)))), nil
	}
	n, err := vm.ToNumeric(v)
	if err != nil {
		return Undefined, err
	}
	return vm.Increment(n, delta)
}

// LessThan implements IsLessThan. undefined reports an unordered
// comparison (a NaN was involved). leftFirst controls the order in which
// the operands are converted.
func (vm *VM) LessThan(a, b Value, leftFirst bool) (lt bool, undefined bool, err error) {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsNumber(), b.AsNumber()
		if math.IsNaN(x) || math.IsNaN(y) {
			return false, true, nil
		}
		return x < y, false, nil
	}
	var pa, pb Value
	if leftFirst {
		if pa, err = vm.ToPrimitive(a, HintNumber); err != nil {
			return
		}
		if pb, err = vm.ToPrimitive(b, HintNumber); err != nil {
			return
		}
	} else {
		if pb, err = vm.ToPrimitive(b, HintNumber); err != nil {
			return
		}
		if pa, err = vm.ToPrimitive(a, HintNumber); err != nil {
			return
		}
	}
	if pa.IsString() && pb.IsString() {
		return source.CompareUnits(pa.AsString(), pb.AsString()) < 0, false, nil
	}
	if pa.IsBigInt() && pb.IsString() {
		n, ok := StringToBigInt(pb.AsString())
		if !ok {
			return false, true, nil
		}
		return pa.AsBigInt().Cmp(n) < 0, false, nil
	}
	if pa.IsString() && pb.IsBigInt() {
		n, ok := StringToBigInt(pa.AsString())
		if !ok {
			return false, true, nil
		}
		return n.Cmp(pb.AsBigInt()) < 0, false, nil
	}
	na, err := vm.ToNumeric(pa)
	if err != nil {
		return
	}
	nb, err := vm.ToNumeric(pb)
	if err != nil {
		return
	}
	switch {
	case na.IsNumber() && nb.IsNumber():
		x, y := na.AsNumber(), nb.AsNumber()
		if math.IsNaN(x) || math.IsNaN(y) {
			return false, true, nil
		}
		return x < y, false, nil
	case na.IsBigInt() && nb.IsBigInt():
		return na.AsBigInt().Cmp(nb.AsBigInt()) < 0, false, nil
	case na.IsBigInt():
		c := compareBigNum(na.AsBigInt(), nb.AsNumber())
		return c == -1, c == 2, nil
	default:
		c := compareBigNum(nb.AsBigInt(), na.AsNumber())
		return c == 1, c == 2, nil
	}
}

// Relational operators built on LessThan.
const (
	RelLess Operator = iota
	RelGreater
	RelLessEq
	RelGreaterEq
)

// Compare evaluates <, >, <= or >=.
func (vm *VM) Compare(op Operator, a, b Value) (bool, error) {
	switch op {
	case RelLess:
		lt, undef, err := vm.LessThan(a, b, true)
		return lt && !undef, err
	case RelGreater:
		lt, undef, err := vm.LessThan(b, a, false)
		return lt && !undef, err
	case RelLessEq:
		lt, undef, err := vm.LessThan(b, a, false)
		return !lt && !undef, err
	default:
		lt, undef, err := vm.LessThan(a, b, true)
		return !lt && !undef, err
	}
}

// InstanceOf implements InstanceofOperator.
func (vm *VM) InstanceOf(v, target Value) (bool, error) {
	if !target.IsObject() {
		return false, vm.NewTypeError("Right-hand side of 'instanceof' is not an object")
	}
	h, err := vm.GetMethod(target, SymbolKey(SymHasInstance))
	if err != nil {
		return false, err
	}
	if !h.IsUndefined() {
		r, err := vm.Call(h, target, []Value{v})
		if err != nil {
			return false, err
		}
		return ToBoolean(r), nil
	}
	if !target.IsCallable() {
		return false, vm.NewTypeError("Right-hand side of 'instanceof' is not callable")
	}
	return vm.OrdinaryHasInstance(target, v)
}

// OrdinaryHasInstance walks v's prototype chain looking for C.prototype.
func (vm *VM) OrdinaryHasInstance(c, v Value) (bool, error) {
	co := c.AsObject()
	if co == nil || !co.IsCallable() {
		return false, nil
	}
	if co.class == ClassBoundFunction {
		return vm.InstanceOf(v, ObjectValue(co.Internal.(*BoundFunction).Target))
	}
	o := v.AsObject()
	if o == nil {
		return false, nil
	}
	p, err := vm.GetStr(co, "prototype")
	if err != nil {
		return false, err
	}
	proto := p.AsObject()
	if proto == nil {
		return false, vm.NewTypeError("Function has non-object prototype '%s' in instanceof check", p.String())
	}
	for o = o.proto; o != nil; o = o.proto {
		if o == proto {
			return true, nil
		}
	}
	return false, nil
}

// HasPropertyOp implements the in operator.
func (vm *VM) HasPropertyOp(key, target Value) (bool, error) {
	o := target.AsObject()
	if o == nil {
		return false, vm.NewTypeError("Cannot use 'in' operator to search for '%s' in %s", vm.ToDisplayString(key), vm.ToDisplayString(target))
	}
	k, err := vm.ToPropertyKey(key)
	if err != nil {
		return false, err
	}
	return o.HasProperty(k), nil
}
