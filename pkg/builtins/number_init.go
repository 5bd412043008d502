package builtins

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"ecmavm/pkg/vm"
)

type NumberInitializer struct{}

func (n *NumberInitializer) Name() string {
	return "Number"
}

func (n *NumberInitializer) Priority() int {
	return PriorityNumber
}

func (n *NumberInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	numberProto := machine.NewPrimitiveWrapper(vm.NumberValue(0), in.ObjectPrototype)
	in.NumberPrototype = numberProto

	numberCtor := machine.NewNativeConstructor("Number", 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			f, err := numberArg(machine, args)
			return vm.NumberValue(f), err
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			f, err := numberArg(machine, args)
			if err != nil {
				return vm.Undefined, err
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.NumberPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewPrimitiveWrapper(vm.NumberValue(f), proto)), nil
		})
	linkConstructor(numberCtor, numberProto)

	constant(numberCtor, "EPSILON", vm.NumberValue(math.Nextafter(1, 2)-1))
	constant(numberCtor, "MAX_SAFE_INTEGER", vm.NumberValue(maxSafeLength))
	constant(numberCtor, "MIN_SAFE_INTEGER", vm.NumberValue(-maxSafeLength))
	constant(numberCtor, "MAX_VALUE", vm.NumberValue(math.MaxFloat64))
	constant(numberCtor, "MIN_VALUE", vm.NumberValue(math.SmallestNonzeroFloat64))
	constant(numberCtor, "NaN", vm.NumberValue(math.NaN()))
	constant(numberCtor, "NEGATIVE_INFINITY", vm.NumberValue(math.Inf(-1)))
	constant(numberCtor, "POSITIVE_INFINITY", vm.NumberValue(math.Inf(1)))

	predicate := func(name string, fn func(float64) bool) {
		method(machine, numberCtor, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			v := arg(args, 0)
			return vm.BoolValue(v.IsNumber() && fn(v.AsNumber())), nil
		})
	}
	predicate("isFinite", isFinite)
	predicate("isNaN", math.IsNaN)
	predicate("isInteger", isIntegral)
	predicate("isSafeInteger", func(f float64) bool { return isIntegral(f) && math.Abs(f) <= maxSafeLength })

	// parseInt and parseFloat are shared with the global object.
	parseIntFn := method(machine, numberCtor, "parseInt", 2, parseInt)
	parseFloatFn := method(machine, numberCtor, "parseFloat", 1, parseFloat)
	ctx.Realm.SetIntrinsic("parseInt", parseIntFn)
	ctx.Realm.SetIntrinsic("parseFloat", parseFloatFn)

	n.initPrototype(machine, numberProto)

	return ctx.DefineGlobal("Number", vm.ObjectValue(numberCtor))
}

func numberArg(machine *vm.VM, args []vm.Value) (float64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	prim, err := machine.ToNumeric(args[0])
	if err != nil {
		return 0, err
	}
	if prim.IsBigInt() {
		return vm.BigIntToNumber(prim.AsBigInt()), nil
	}
	return prim.AsNumber(), nil
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func isIntegral(f float64) bool { return isFinite(f) && math.Trunc(f) == f }

func thisNumberValue(machine *vm.VM, this vm.Value, name string) (float64, error) {
	if this.IsNumber() {
		return this.AsNumber(), nil
	}
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassNumber && o.Primitive().IsNumber() {
		return o.Primitive().AsNumber(), nil
	}
	return 0, machine.NewTypeError("Number.prototype.%s requires that 'this' be a Number", name)
}

func (n *NumberInitializer) initPrototype(machine *vm.VM, proto *vm.Object) {
	method(machine, proto, "toString", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumberValue(machine, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		radix := 10
		if r := arg(args, 0); !r.IsUndefined() {
			f, err := machine.ToIntegerOrInfinity(r)
			if err != nil {
				return vm.Undefined, err
			}
			if f < 2 || f > 36 {
				return vm.Undefined, machine.NewRangeError("toString() radix must be between 2 and 36")
			}
			radix = int(f)
		}
		return vm.StringValue(vm.NumberToRadixString(x, radix)), nil
	})
	method(machine, proto, "toLocaleString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumberValue(machine, this, "toLocaleString")
		return vm.StringValue(vm.NumberToString(x)), err
	})
	method(machine, proto, "valueOf", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumberValue(machine, this, "valueOf")
		return vm.NumberValue(x), err
	})

	method(machine, proto, "toFixed", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumberValue(machine, this, "toFixed")
		if err != nil {
			return vm.Undefined, err
		}
		f, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if f < 0 || f > 100 {
			return vm.Undefined, machine.NewRangeError("toFixed() digits argument must be between 0 and 100")
		}
		if !isFinite(x) || math.Abs(x) >= 1e21 {
			return vm.StringValue(vm.NumberToString(x)), nil
		}
		return vm.StringValue(formatFixed(x, int(f))), nil
	})
	method(machine, proto, "toExponential", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumberValue(machine, this, "toExponential")
		if err != nil {
			return vm.Undefined, err
		}
		fd := arg(args, 0)
		f, err := machine.ToIntegerOrInfinity(fd)
		if err != nil {
			return vm.Undefined, err
		}
		if !isFinite(x) {
			return vm.StringValue(vm.NumberToString(x)), nil
		}
		if f < 0 || f > 100 {
			return vm.Undefined, machine.NewRangeError("toExponential() argument must be between 0 and 100")
		}
		sign := ""
		if x < 0 {
			sign, x = "-", -x
		}
		var digits string
		var e int
		if fd.IsUndefined() {
			digits, e = shortestDigits(x)
		} else {
			digits, e = exponentDigits(x, int(f)+1)
		}
		return vm.StringValue(sign + formatExponential(digits, e)), nil
	})
	method(machine, proto, "toPrecision", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := thisNumberValue(machine, this, "toPrecision")
		if err != nil {
			return vm.Undefined, err
		}
		if arg(args, 0).IsUndefined() {
			return vm.StringValue(vm.NumberToString(x)), nil
		}
		p, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if !isFinite(x) {
			return vm.StringValue(vm.NumberToString(x)), nil
		}
		if p < 1 || p > 100 {
			return vm.Undefined, machine.NewRangeError("toPrecision() argument must be between 1 and 100")
		}
		sign := ""
		if x < 0 {
			sign, x = "-", -x
		}
		digits, e := exponentDigits(x, int(p))
		if e < -6 || e >= int(p) {
			return vm.StringValue(sign + formatExponential(digits, e)), nil
		}
		switch {
		case e == int(p)-1:
			return vm.StringValue(sign + digits), nil
		case e >= 0:
			return vm.StringValue(sign + digits[:e+1] + "." + digits[e+1:]), nil
		}
		return vm.StringValue(sign + "0." + strings.Repeat("0", -e-1) + digits), nil
	})
}

// roundScaled returns round-half-up(x * 10^k) for x >= 0.
func roundScaled(x *big.Rat, k int) *big.Int {
	r := new(big.Rat).Set(x)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(k))), nil)
	if k >= 0 {
		r.Mul(r, new(big.Rat).SetInt(scale))
	} else {
		r.Quo(r, new(big.Rat).SetInt(scale))
	}
	r.Add(r, big.NewRat(1, 2))
	return new(big.Int).Quo(r.Num(), r.Denom())
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// formatFixed renders x with exactly digits fraction digits, picking the
// larger candidate on exact ties.
func formatFixed(x float64, digits int) string {
	sign := ""
	if x < 0 {
		sign, x = "-", -x
	}
	s := roundScaled(new(big.Rat).SetFloat64(x), digits).String()
	if digits == 0 {
		return sign + s
	}
	if len(s) <= digits {
		s = strings.Repeat("0", digits-len(s)+1) + s
	}
	return sign + s[:len(s)-digits] + "." + s[len(s)-digits:]
}

// exponentDigits returns the p significant digits of x > 0 and the
// decimal exponent of the first one.
func exponentDigits(x float64, p int) (string, int) {
	if x == 0 {
		return strings.Repeat("0", p), 0
	}
	r := new(big.Rat).SetFloat64(x)
	e := int(math.Floor(math.Log10(x)))
	for range 4 {
		s := roundScaled(r, p-1-e).String()
		switch {
		case len(s) > p:
			e++
		case len(s) < p:
			e--
		default:
			return s, e
		}
	}
	s := roundScaled(r, p-1-e).String()
	return s[:p], e
}

// shortestDigits returns the shortest round-trip digits of x > 0.
func shortestDigits(x float64) (string, int) {
	if x == 0 {
		return "0", 0
	}
	repr := strconv.FormatFloat(x, 'e', -1, 64)
	mant, exp, _ := strings.Cut(repr, "e")
	e, _ := strconv.Atoi(exp)
	return strings.Replace(mant, ".", "", 1), e
}

func formatExponential(digits string, e int) string {
	var b strings.Builder
	b.WriteByte(digits[0])
	if len(digits) > 1 {
		b.WriteByte('.')
		b.WriteString(digits[1:])
	}
	b.WriteByte('e')
	if e >= 0 {
		b.WriteByte('+')
	} else {
		b.WriteByte('-')
	}
	b.WriteString(strconv.Itoa(abs(e)))
	return b.String()
}

func parseFloat(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := machine.ToString(arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	s = strings.TrimLeftFunc(s, vm.IsWhiteSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], "Infinity") {
		if s[0] == '-' {
			return vm.NumberValue(math.Inf(-1)), nil
		}
		return vm.NumberValue(math.Inf(1)), nil
	}
	digits := func() int {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		return i - start
	}
	n := digits()
	if i < len(s) && s[i] == '.' {
		i++
		n += digits()
		if n == 0 {
			return vm.NumberValue(math.NaN()), nil
		}
	}
	if n == 0 {
		return vm.NumberValue(math.NaN()), nil
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		if digits() > 0 {
			end = i
		}
	}
	lit := strings.TrimSuffix(s[:end], ".")
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		// out of range literals still carry their infinity or zero
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return vm.NumberValue(math.NaN()), nil
		}
	}
	return vm.NumberValue(f), nil
}

func parseInt(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
	s, err := machine.ToString(arg(args, 0))
	if err != nil {
		return vm.Undefined, err
	}
	rf, err := machine.ToNumber(arg(args, 1))
	if err != nil {
		return vm.Undefined, err
	}
	s = strings.TrimLeftFunc(s, vm.IsWhiteSpace)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	radix := int(vm.ToInt32(rf))
	stripPrefix := true
	if radix != 0 {
		if radix < 2 || radix > 36 {
			return vm.NumberValue(math.NaN()), nil
		}
		stripPrefix = radix == 16
	} else {
		radix = 10
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < radix {
		end++
	}
	if end == 0 {
		return vm.NumberValue(math.NaN()), nil
	}
	var f float64
	if radix == 10 {
		f, _ = strconv.ParseFloat(s[:end], 64)
	} else {
		b, _ := new(big.Int).SetString(s[:end], radix)
		f = vm.BigIntToNumber(b)
	}
	if neg {
		f = -f
	}
	return vm.NumberValue(f), nil
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}
