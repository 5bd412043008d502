package builtins

import (
	"math"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// maxStringLength bounds the strings repeat and padding may build.
const maxStringLength = 1<<30 - 25

type StringInitializer struct{}

func (s *StringInitializer) Name() string {
	return "String"
}

func (s *StringInitializer) Priority() int {
	return PriorityString
}

func (s *StringInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	stringProto := machine.NewPrimitiveWrapper(vm.StringValue(""), in.ObjectPrototype)
	in.StringPrototype = stringProto

	stringCtor := machine.NewNativeConstructor("String", 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) == 0 {
				return vm.StringValue(""), nil
			}
			if args[0].IsSymbol() {
				return vm.StringValue(args[0].AsSymbol().String()), nil
			}
			str, err := machine.ToString(args[0])
			return vm.StringValue(str), err
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			str := ""
			if len(args) > 0 {
				var err error
				if str, err = machine.ToString(args[0]); err != nil {
					return vm.Undefined, err
				}
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.StringPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewPrimitiveWrapper(vm.StringValue(str), proto)), nil
		})
	linkConstructor(stringCtor, stringProto)

	method(machine, stringCtor, "fromCharCode", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var b source.UnitBuilder
		for _, a := range args {
			f, err := machine.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteUnit(vm.ToUint16(f))
		}
		return vm.StringValue(b.String()), nil
	})
	method(machine, stringCtor, "fromCodePoint", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var b source.UnitBuilder
		for _, a := range args {
			f, err := machine.ToNumber(a)
			if err != nil {
				return vm.Undefined, err
			}
			if f != math.Trunc(f) || f < 0 || f > 0x10FFFF {
				return vm.Undefined, machine.NewRangeError("Invalid code point %s", vm.NumberToString(f))
			}
			b.WriteRune(rune(f))
		}
		return vm.StringValue(b.String()), nil
	})
	method(machine, stringCtor, "raw", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cooked, err := machine.ToObject(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		rawv, err := machine.GetStr(cooked, "raw")
		if err != nil {
			return vm.Undefined, err
		}
		raw, err := machine.ToObject(rawv)
		if err != nil {
			return vm.Undefined, err
		}
		n, err := machine.LengthOfArrayLike(raw)
		if err != nil {
			return vm.Undefined, err
		}
		var b strings.Builder
		for i := int64(0); i < n; i++ {
			seg, err := getIndex(machine, raw, i)
			if err != nil {
				return vm.Undefined, err
			}
			str, err := machine.ToString(seg)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(str)
			if i+1 < n && int(i+1) < len(args) {
				sub, err := machine.ToString(args[i+1])
				if err != nil {
					return vm.Undefined, err
				}
				b.WriteString(sub)
			}
		}
		return vm.StringValue(b.String()), nil
	})

	s.initPrototype(machine, stringProto)
	s.initIterator(ctx, stringProto)

	return ctx.DefineGlobal("String", vm.ObjectValue(stringCtor))
}

// thisStringValue unwraps a string primitive or String object.
func thisStringValue(machine *vm.VM, this vm.Value, name string) (string, error) {
	if this.IsString() {
		return this.AsString(), nil
	}
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassString && o.Primitive().IsString() {
		return o.Primitive().AsString(), nil
	}
	return "", machine.NewTypeError("String.prototype.%s requires that 'this' be a String", name)
}

// thisString coerces the receiver of a generic String.prototype method.
func thisString(machine *vm.VM, this vm.Value, name string) (string, error) {
	if this.IsString() {
		return this.AsString(), nil
	}
	if err := machine.RequireObjectCoercible(this, "String.prototype."+name); err != nil {
		return "", err
	}
	return machine.ToString(this)
}

// isRegExp implements IsRegExp.
func isRegExp(machine *vm.VM, v vm.Value) (bool, error) {
	o := v.AsObject()
	if o == nil {
		return false, nil
	}
	m, err := machine.Get(o, vm.SymbolKey(vm.SymMatch), v)
	if err != nil {
		return false, err
	}
	if !m.IsUndefined() {
		return vm.ToBoolean(m), nil
	}
	return o.Class() == vm.ClassRegExp, nil
}

// indexOfUnits finds search in s at or after the code unit index from.
func indexOfUnits(s, search string, from int) int {
	if source.IsASCII(s) && source.IsASCII(search) {
		if from > len(s) {
			return -1
		}
		i := strings.Index(s[from:], search)
		if i < 0 {
			return -1
		}
		return i + from
	}
	su, tu := source.Units(s), source.Units(search)
	for i := from; i+len(tu) <= len(su); i++ {
		if slices.Equal(su[i:i+len(tu)], tu) {
			return i
		}
	}
	return -1
}

// lastIndexOfUnits finds the last occurrence of search starting at or
// before from.
func lastIndexOfUnits(s, search string, from int) int {
	su, tu := source.Units(s), source.Units(search)
	if from > len(su)-len(tu) {
		from = len(su) - len(tu)
	}
	for i := from; i >= 0; i-- {
		if slices.Equal(su[i:i+len(tu)], tu) {
			return i
		}
	}
	return -1
}

// searchStringArg converts args[i], rejecting regular expressions for the
// methods that take a search string.
func searchStringArg(machine *vm.VM, args []vm.Value, i int, name string) (string, error) {
	re, err := isRegExp(machine, arg(args, i))
	if err != nil {
		return "", err
	}
	if re {
		return "", machine.NewTypeError("First argument to String.prototype.%s must not be a regular expression", name)
	}
	return machine.ToString(arg(args, i))
}

// languageTag resolves an optional locale argument; malformed tags are a
// RangeError.
func languageTag(machine *vm.VM, v vm.Value) (language.Tag, error) {
	if v.IsUndefined() {
		return language.Und, nil
	}
	if o := v.AsObject(); o != nil && o.Class() == vm.ClassArray {
		first, err := getIndex(machine, o, 0)
		if err != nil || first.IsUndefined() {
			return language.Und, err
		}
		v = first
	}
	s, err := machine.ToString(v)
	if err != nil {
		return language.Und, err
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, machine.NewRangeError("Incorrect locale information provided")
	}
	return tag, nil
}

func toUpper(s string, tag language.Tag) string {
	if source.IsASCII(s) && tag == language.Und {
		return strings.ToUpper(s)
	}
	return cases.Upper(tag).String(s)
}

func toLower(s string, tag language.Tag) string {
	if source.IsASCII(s) && tag == language.Und {
		return strings.ToLower(s)
	}
	return cases.Lower(tag).String(s)
}

// isWellFormed reports whether s has no unpaired surrogates.
func isWellFormed(s string) bool {
	for i := 0; i < len(s); {
		r, size := source.DecodeRune(s, i)
		if r >= 0xD800 && r <= 0xDFFF {
			return false
		}
		i += size
	}
	return true
}

func (s *StringInitializer) initPrototype(machine *vm.VM, proto *vm.Object) {
	method(machine, proto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisStringValue(machine, this, "toString")
		return vm.StringValue(str), err
	})
	method(machine, proto, "valueOf", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisStringValue(machine, this, "valueOf")
		return vm.StringValue(str), err
	})

	method(machine, proto, "at", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "at")
		if err != nil {
			return vm.Undefined, err
		}
		rel, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		n := float64(source.UnitLength(str))
		if rel < 0 {
			rel += n
		}
		if rel < 0 || rel >= n {
			return vm.Undefined, nil
		}
		return vm.StringValue(source.Slice(str, int(rel), int(rel)+1)), nil
	})
	method(machine, proto, "charAt", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "charAt")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if pos < 0 || pos >= float64(source.UnitLength(str)) {
			return vm.StringValue(""), nil
		}
		return vm.StringValue(source.Slice(str, int(pos), int(pos)+1)), nil
	})
	method(machine, proto, "charCodeAt", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "charCodeAt")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if pos < 0 || pos > math.MaxInt32 {
			return vm.NumberValue(math.NaN()), nil
		}
		u, ok := source.UnitAt(str, int(pos))
		if !ok {
			return vm.NumberValue(math.NaN()), nil
		}
		return vm.IntValue(int(u)), nil
	})
	method(machine, proto, "codePointAt", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "codePointAt")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if pos < 0 || pos > math.MaxInt32 {
			return vm.Undefined, nil
		}
		first, ok := source.UnitAt(str, int(pos))
		if !ok {
			return vm.Undefined, nil
		}
		if first >= 0xD800 && first <= 0xDBFF {
			if second, ok := source.UnitAt(str, int(pos)+1); ok && second >= 0xDC00 && second <= 0xDFFF {
				return vm.IntValue((int(first)-0xD800)<<10 + (int(second) - 0xDC00) + 0x10000), nil
			}
		}
		return vm.IntValue(int(first)), nil
	})
	method(machine, proto, "concat", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "concat")
		if err != nil {
			return vm.Undefined, err
		}
		for _, a := range args {
			next, err := machine.ToString(a)
			if err != nil {
				return vm.Undefined, err
			}
			str = source.Concat(str, next)
		}
		return vm.StringValue(str), nil
	})

	method(machine, proto, "startsWith", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "startsWith")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := searchStringArg(machine, args, 0, "startsWith")
		if err != nil {
			return vm.Undefined, err
		}
		n := source.UnitLength(str)
		start, err := clampedPosition(machine, arg(args, 1), n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		end := start + source.UnitLength(search)
		if end > n {
			return vm.BoolValue(false), nil
		}
		return vm.BoolValue(source.Slice(str, start, end) == search), nil
	})
	method(machine, proto, "endsWith", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "endsWith")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := searchStringArg(machine, args, 0, "endsWith")
		if err != nil {
			return vm.Undefined, err
		}
		n := source.UnitLength(str)
		end, err := clampedPosition(machine, arg(args, 1), n, n)
		if err != nil {
			return vm.Undefined, err
		}
		start := end - source.UnitLength(search)
		if start < 0 {
			return vm.BoolValue(false), nil
		}
		return vm.BoolValue(source.Slice(str, start, end) == search), nil
	})
	method(machine, proto, "includes", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "includes")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := searchStringArg(machine, args, 0, "includes")
		if err != nil {
			return vm.Undefined, err
		}
		start, err := clampedPosition(machine, arg(args, 1), source.UnitLength(str), 0)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BoolValue(indexOfUnits(str, search, start) >= 0), nil
	})
	method(machine, proto, "indexOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "indexOf")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		start, err := clampedPosition(machine, arg(args, 1), source.UnitLength(str), 0)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(indexOfUnits(str, search, start)), nil
	})
	method(machine, proto, "lastIndexOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "lastIndexOf")
		if err != nil {
			return vm.Undefined, err
		}
		search, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		numPos, err := machine.ToNumber(arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		n := source.UnitLength(str)
		pos := n
		if !math.IsNaN(numPos) {
			pos = int(max(0, min(vm.IntegerOrInfinity(numPos), float64(n))))
		}
		return vm.IntValue(lastIndexOfUnits(str, search, pos)), nil
	})

	method(machine, proto, "slice", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "slice")
		if err != nil {
			return vm.Undefined, err
		}
		n := int64(source.UnitLength(str))
		from, err := relativeArg(machine, args, 0, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		to, err := relativeArg(machine, args, 1, n, n)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(source.Slice(str, int(from), int(to))), nil
	})
	method(machine, proto, "substring", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "substring")
		if err != nil {
			return vm.Undefined, err
		}
		n := source.UnitLength(str)
		start, err := clampedPosition(machine, arg(args, 0), n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		end, err := clampedPosition(machine, arg(args, 1), n, n)
		if err != nil {
			return vm.Undefined, err
		}
		if start > end {
			start, end = end, start
		}
		return vm.StringValue(source.Slice(str, start, end)), nil
	})
	method(machine, proto, "substr", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "substr")
		if err != nil {
			return vm.Undefined, err
		}
		n := int64(source.UnitLength(str))
		start, err := relativeArg(machine, args, 0, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		length := float64(n - start)
		if l := arg(args, 1); !l.IsUndefined() {
			f, err := machine.ToIntegerOrInfinity(l)
			if err != nil {
				return vm.Undefined, err
			}
			length = min(max(f, 0), length)
		}
		if length <= 0 {
			return vm.StringValue(""), nil
		}
		return vm.StringValue(source.Slice(str, int(start), int(start)+int(length))), nil
	})

	method(machine, proto, "toUpperCase", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "toUpperCase")
		return vm.StringValue(toUpper(str, language.Und)), err
	})
	method(machine, proto, "toLowerCase", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "toLowerCase")
		return vm.StringValue(toLower(str, language.Und)), err
	})
	method(machine, proto, "toLocaleUpperCase", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "toLocaleUpperCase")
		if err != nil {
			return vm.Undefined, err
		}
		tag, err := languageTag(machine, arg(args, 0))
		return vm.StringValue(toUpper(str, tag)), err
	})
	method(machine, proto, "toLocaleLowerCase", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "toLocaleLowerCase")
		if err != nil {
			return vm.Undefined, err
		}
		tag, err := languageTag(machine, arg(args, 0))
		return vm.StringValue(toLower(str, tag)), err
	})
	method(machine, proto, "localeCompare", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "localeCompare")
		if err != nil {
			return vm.Undefined, err
		}
		that, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		tag, err := languageTag(machine, arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.IntValue(collate.New(tag).CompareString(str, that)), nil
	})
	method(machine, proto, "normalize", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "normalize")
		if err != nil {
			return vm.Undefined, err
		}
		form := "NFC"
		if f := arg(args, 0); !f.IsUndefined() {
			if form, err = machine.ToString(f); err != nil {
				return vm.Undefined, err
			}
		}
		var nf norm.Form
		switch form {
		case "NFC":
			nf = norm.NFC
		case "NFD":
			nf = norm.NFD
		case "NFKC":
			nf = norm.NFKC
		case "NFKD":
			nf = norm.NFKD
		default:
			return vm.Undefined, machine.NewRangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
		}
		if source.IsASCII(str) {
			return vm.StringValue(str), nil
		}
		return vm.StringValue(nf.String(str)), nil
	})
	method(machine, proto, "isWellFormed", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "isWellFormed")
		return vm.BoolValue(isWellFormed(str)), err
	})
	method(machine, proto, "toWellFormed", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "toWellFormed")
		if err != nil || isWellFormed(str) {
			return vm.StringValue(str), err
		}
		var b []byte
		for i := 0; i < len(str); {
			r, size := source.DecodeRune(str, i)
			if r >= 0xD800 && r <= 0xDFFF {
				r = 0xFFFD
			}
			b = source.AppendRune(b, r)
			i += size
		}
		return vm.StringValue(string(b)), nil
	})

	trim := func(name string, fn func(string) string) *vm.Object {
		return method(machine, proto, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			str, err := thisString(machine, this, name)
			return vm.StringValue(fn(str)), err
		})
	}
	trim("trim", vm.TrimWhiteSpace)
	trimStart := trim("trimStart", func(s string) string { return strings.TrimLeftFunc(s, vm.IsWhiteSpace) })
	trimEnd := trim("trimEnd", func(s string) string { return strings.TrimRightFunc(s, vm.IsWhiteSpace) })
	proto.SetOwn("trimLeft", vm.ObjectValue(trimStart), vm.FlagsHidden)
	proto.SetOwn("trimRight", vm.ObjectValue(trimEnd), vm.FlagsHidden)

	pad := func(name string, atStart bool) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			str, err := thisString(machine, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			maxLength, err := machine.ToLength(arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			n := int64(source.UnitLength(str))
			if maxLength <= n {
				return vm.StringValue(str), nil
			}
			filler := " "
			if f := arg(args, 1); !f.IsUndefined() {
				if filler, err = machine.ToString(f); err != nil {
					return vm.Undefined, err
				}
			}
			if filler == "" {
				return vm.StringValue(str), nil
			}
			if maxLength > maxStringLength {
				return vm.Undefined, machine.NewRangeError("Invalid string length")
			}
			fill := source.Units(filler)
			need := int(maxLength - n)
			units := make([]uint16, 0, need)
			for len(units) < need {
				units = append(units, fill[:min(len(fill), need-len(units))]...)
			}
			padding := source.FromUnits(units)
			if atStart {
				return vm.StringValue(source.Concat(padding, str)), nil
			}
			return vm.StringValue(source.Concat(str, padding)), nil
		})
	}
	pad("padStart", true)
	pad("padEnd", false)

	method(machine, proto, "repeat", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "repeat")
		if err != nil {
			return vm.Undefined, err
		}
		count, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if count < 0 || math.IsInf(count, 1) {
			return vm.Undefined, machine.NewRangeError("Invalid count value: %s", vm.NumberToString(count))
		}
		if count == 0 || str == "" {
			return vm.StringValue(""), nil
		}
		if float64(source.UnitLength(str))*count > maxStringLength {
			return vm.Undefined, machine.NewRangeError("Invalid string length")
		}
		return vm.StringValue(strings.Repeat(str, int(count))), nil
	})

	method(machine, proto, "split", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := machine.RequireObjectCoercible(this, "String.prototype.split"); err != nil {
			return vm.Undefined, err
		}
		separator, limit := arg(args, 0), arg(args, 1)
		if !separator.IsNullish() {
			splitter, err := machine.GetMethod(separator, vm.SymbolKey(vm.SymSplit))
			if err != nil {
				return vm.Undefined, err
			}
			if !splitter.IsUndefined() {
				return machine.Call(splitter, separator, []vm.Value{this, limit})
			}
		}
		str, err := machine.ToString(this)
		if err != nil {
			return vm.Undefined, err
		}
		lim := uint32(math.MaxUint32)
		if !limit.IsUndefined() {
			f, err := machine.ToNumber(limit)
			if err != nil {
				return vm.Undefined, err
			}
			lim = vm.ToUint32(f)
		}
		sep, err := machine.ToString(separator)
		if err != nil {
			return vm.Undefined, err
		}
		if lim == 0 {
			return vm.ObjectValue(machine.NewArray(nil)), nil
		}
		if separator.IsUndefined() {
			return vm.ObjectValue(machine.NewArray([]vm.Value{vm.StringValue(str)})), nil
		}
		var parts []vm.Value
		if sep == "" {
			units := source.Units(str)
			for i := 0; i < len(units) && uint32(len(parts)) < lim; i++ {
				parts = append(parts, vm.StringValue(source.FromUnits(units[i:i+1])))
			}
			return vm.ObjectValue(machine.NewArray(parts)), nil
		}
		sepLen := source.UnitLength(sep)
		p := 0
		for {
			q := indexOfUnits(str, sep, p)
			if q < 0 {
				break
			}
			parts = append(parts, vm.StringValue(source.Slice(str, p, q)))
			if uint32(len(parts)) >= lim {
				return vm.ObjectValue(machine.NewArray(parts)), nil
			}
			p = q + sepLen
		}
		parts = append(parts, vm.StringValue(source.Slice(str, p, source.UnitLength(str))))
		return vm.ObjectValue(machine.NewArray(parts)), nil
	})

	s.initRegExpDispatch(machine, proto)
}

// clampedPosition converts an optional position argument and clamps it to
// 0 .. n.
func clampedPosition(machine *vm.VM, v vm.Value, n, def int) (int, error) {
	if v.IsUndefined() {
		return def, nil
	}
	f, err := machine.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	return int(max(0, min(f, float64(n)))), nil
}

// initRegExpDispatch installs the methods that defer to the Symbol.match
// family on their argument.
func (s *StringInitializer) initRegExpDispatch(machine *vm.VM, proto *vm.Object) {
	dispatch := func(name string, sym *vm.Symbol, flags string) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if err := machine.RequireObjectCoercible(this, "String.prototype."+name); err != nil {
				return vm.Undefined, err
			}
			regexp := arg(args, 0)
			if !regexp.IsNullish() {
				if sym == vm.SymMatchAll {
					if err := requireGlobalFlag(machine, regexp, name); err != nil {
						return vm.Undefined, err
					}
				}
				fn, err := machine.GetMethod(regexp, vm.SymbolKey(sym))
				if err != nil {
					return vm.Undefined, err
				}
				if !fn.IsUndefined() {
					return machine.Call(fn, regexp, []vm.Value{this})
				}
			}
			str, err := machine.ToString(this)
			if err != nil {
				return vm.Undefined, err
			}
			pattern := ""
			if !regexp.IsUndefined() {
				if pattern, err = machine.ToString(regexp); err != nil {
					return vm.Undefined, err
				}
			}
			rx, err := machine.NewRegExp(pattern, flags)
			if err != nil {
				return vm.Undefined, err
			}
			return machine.Invoke(vm.ObjectValue(rx), vm.SymbolKey(sym), vm.StringValue(str))
		})
	}
	dispatch("match", vm.SymMatch, "")
	dispatch("matchAll", vm.SymMatchAll, "g")
	dispatch("search", vm.SymSearch, "")

	replace := func(name string, all bool) {
		method(machine, proto, name, 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if err := machine.RequireObjectCoercible(this, "String.prototype."+name); err != nil {
				return vm.Undefined, err
			}
			searchValue, replaceValue := arg(args, 0), arg(args, 1)
			if !searchValue.IsNullish() {
				if all {
					if err := requireGlobalFlag(machine, searchValue, name); err != nil {
						return vm.Undefined, err
					}
				}
				replacer, err := machine.GetMethod(searchValue, vm.SymbolKey(vm.SymReplace))
				if err != nil {
					return vm.Undefined, err
				}
				if !replacer.IsUndefined() {
					return machine.Call(replacer, searchValue, []vm.Value{this, replaceValue})
				}
			}
			str, err := machine.ToString(this)
			if err != nil {
				return vm.Undefined, err
			}
			search, err := machine.ToString(searchValue)
			if err != nil {
				return vm.Undefined, err
			}
			functional := replaceValue.IsCallable()
			replacement := ""
			if !functional {
				if replacement, err = machine.ToString(replaceValue); err != nil {
					return vm.Undefined, err
				}
			}
			searchLen := source.UnitLength(search)
			advance := max(1, searchLen)
			var positions []int
			for p := indexOfUnits(str, search, 0); p >= 0; p = indexOfUnits(str, search, p+advance) {
				positions = append(positions, p)
				if !all {
					break
				}
			}
			if len(positions) == 0 {
				return vm.StringValue(str), nil
			}
			var b strings.Builder
			end := 0
			for _, p := range positions {
				b.WriteString(source.Slice(str, end, p))
				var sub string
				if functional {
					r, err := machine.Call(replaceValue, vm.Undefined, []vm.Value{vm.StringValue(search), vm.IntValue(p), vm.StringValue(str)})
					if err != nil {
						return vm.Undefined, err
					}
					if sub, err = machine.ToString(r); err != nil {
						return vm.Undefined, err
					}
				} else {
					if sub, err = getSubstitution(machine, search, str, p, nil, vm.Undefined, replacement); err != nil {
						return vm.Undefined, err
					}
				}
				b.WriteString(sub)
				end = p + searchLen
			}
			b.WriteString(source.Slice(str, end, source.UnitLength(str)))
			return vm.StringValue(b.String()), nil
		})
	}
	replace("replace", false)
	replace("replaceAll", true)
}

// requireGlobalFlag rejects non-global regular expressions passed to
// matchAll and replaceAll.
func requireGlobalFlag(machine *vm.VM, v vm.Value, name string) error {
	re, err := isRegExp(machine, v)
	if err != nil || !re {
		return err
	}
	flags, err := machine.GetV(v, vm.StringKey("flags"))
	if err != nil {
		return err
	}
	if err := machine.RequireObjectCoercible(flags, "String.prototype."+name); err != nil {
		return err
	}
	f, err := machine.ToString(flags)
	if err != nil {
		return err
	}
	if !strings.Contains(f, "g") {
		return machine.NewTypeError("String.prototype.%s called with a non-global RegExp argument", name)
	}
	return nil
}

// getSubstitution expands the $ patterns of a replacement template.
// captures hold strings or undefined; position is a code unit index.
func getSubstitution(machine *vm.VM, matched, str string, position int, captures []vm.Value, namedCaptures vm.Value, replacement string) (string, error) {
	if !strings.Contains(replacement, "$") {
		return replacement, nil
	}
	strLen := source.UnitLength(str)
	tailPos := min(position+source.UnitLength(matched), strLen)
	m := len(captures)
	var b strings.Builder
	for i := 0; i < len(replacement); i++ {
		c := replacement[i]
		if c != '$' || i+1 >= len(replacement) {
			b.WriteByte(c)
			continue
		}
		next := replacement[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '&':
			b.WriteString(matched)
			i++
		case next == '`':
			b.WriteString(source.Slice(str, 0, position))
			i++
		case next == '\'':
			b.WriteString(source.Slice(str, tailPos, strLen))
			i++
		case next >= '0' && next <= '9':
			idx, digits := int(next-'0'), 1
			if i+2 < len(replacement) && replacement[i+2] >= '0' && replacement[i+2] <= '9' {
				if two := idx*10 + int(replacement[i+2]-'0'); two >= 1 && two <= m {
					idx, digits = two, 2
				}
			}
			if idx < 1 || idx > m {
				b.WriteByte('$')
				continue
			}
			if capture := captures[idx-1]; !capture.IsUndefined() {
				b.WriteString(capture.AsString())
			}
			i += digits
		case next == '<':
			if namedCaptures.IsUndefined() {
				b.WriteByte('$')
				continue
			}
			end := strings.IndexByte(replacement[i+2:], '>')
			if end < 0 {
				b.WriteByte('$')
				continue
			}
			name := replacement[i+2 : i+2+end]
			v, err := machine.GetV(namedCaptures, vm.StringKey(name))
			if err != nil {
				return "", err
			}
			if !v.IsUndefined() {
				sub, err := machine.ToString(v)
				if err != nil {
					return "", err
				}
				b.WriteString(sub)
			}
			i += 2 + end
		default:
			b.WriteByte('$')
		}
	}
	return b.String(), nil
}

// stringIterator walks a string by code point. pos is a byte offset.
type stringIterator struct {
	s    string
	pos  int
	done bool
}

func (s *StringInitializer) initIterator(ctx *RuntimeContext, stringProto *vm.Object) {
	machine := ctx.VM
	in := ctx.Intrinsics()

	iterProto := machine.NewObjectWithProto(in.IteratorPrototype)
	toStringTag(iterProto, "String Iterator")
	method(machine, iterProto, "next", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var it *stringIterator
		if o := this.AsObject(); o != nil {
			it, _ = o.Internal.(*stringIterator)
		}
		if it == nil {
			return vm.Undefined, machine.NewTypeError("next method called on incompatible receiver %s", machine.ToDisplayString(this))
		}
		if it.done || it.pos >= len(it.s) {
			it.done, it.s = true, ""
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		_, size := source.DecodeRune(it.s, it.pos)
		cp := it.s[it.pos : it.pos+size]
		it.pos += size
		return vm.ObjectValue(machine.CreateIterResult(vm.StringValue(cp), false)), nil
	})
	ctx.Realm.SetIntrinsic("StringIteratorPrototype", iterProto)

	symbolMethod(machine, stringProto, vm.SymIterator, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		str, err := thisString(machine, this, "[Symbol.iterator]")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassIterator, iterProto, &stringIterator{s: str})), nil
	})
}
