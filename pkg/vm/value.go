package vm

import (
	"math"
	"math/big"
	"strconv"
	"unsafe"
)

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeBigInt
	TypeString
	TypeSymbol
	TypeObject

	TypeHole          // Internal marker for array holes (sparse arrays)
	TypeUninitialized // TDZ marker for let/const before initialization
	typeInternal      // Engine records that live on the operand stack (iterators, completions)
)

// String returns a human-readable string representation of the ValueType
func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		return "object"
	case TypeHole:
		return "hole"
	case TypeUninitialized:
		return "uninitialized"
	case typeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Value is a script value. Numbers and booleans live in payload; strings,
// bigints, symbols and objects are referenced through obj.
type Value struct {
	typ     ValueType
	payload uint64
	obj     unsafe.Pointer
}

var (
	Undefined     = Value{typ: TypeUndefined}
	Null          = Value{typ: TypeNull}
	True          = Value{typ: TypeBoolean, payload: 1}
	False         = Value{typ: TypeBoolean}
	Hole          = Value{typ: TypeHole}
	Uninitialized = Value{typ: TypeUninitialized}

	NaN = NumberValue(math.NaN())
)

func NumberValue(f float64) Value {
	return Value{typ: TypeNumber, payload: math.Float64bits(f)}
}

func IntValue(i int) Value {
	return NumberValue(float64(i))
}

func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func StringValue(s string) Value {
	return Value{typ: TypeString, obj: unsafe.Pointer(&s)}
}

func BigIntValue(b *big.Int) Value {
	return Value{typ: TypeBigInt, obj: unsafe.Pointer(b)}
}

func SymbolValue(s *Symbol) Value {
	return Value{typ: TypeSymbol, obj: unsafe.Pointer(s)}
}

// ObjectValue wraps o; a nil object becomes null.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Null
	}
	return Value{typ: TypeObject, obj: unsafe.Pointer(o)}
}

// internal wraps engine records that must travel on the operand stack.
type internal struct {
	ref any
}

func internalValue(ref any) Value {
	return Value{typ: typeInternal, obj: unsafe.Pointer(&internal{ref: ref})}
}

func (v Value) internalRef() any {
	if v.typ != typeInternal {
		return nil
	}
	return (*internal)(v.obj).ref
}

// --- Type predicates ---

func (v Value) Type() ValueType      { return v.typ }
func (v Value) IsUndefined() bool     { return v.typ == TypeUndefined }
func (v Value) IsNull() bool          { return v.typ == TypeNull }
func (v Value) IsNullish() bool       { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool       { return v.typ == TypeBoolean }
func (v Value) IsNumber() bool        { return v.typ == TypeNumber }
func (v Value) IsBigInt() bool        { return v.typ == TypeBigInt }
func (v Value) IsString() bool        { return v.typ == TypeString }
func (v Value) IsSymbol() bool        { return v.typ == TypeSymbol }
func (v Value) IsObject() bool        { return v.typ == TypeObject }
func (v Value) IsHole() bool          { return v.typ == TypeHole }
func (v Value) IsUninitialized() bool { return v.typ == TypeUninitialized }

// IsNumeric reports whether v is a Number or a BigInt.
func (v Value) IsNumeric() bool { return v.typ == TypeNumber || v.typ == TypeBigInt }

// IsCallable reports whether v is an object with a [[Call]] method.
func (v Value) IsCallable() bool {
	return v.typ == TypeObject && v.AsObject().IsCallable()
}

// IsConstructor reports whether v is an object with a [[Construct]] method.
func (v Value) IsConstructor() bool {
	return v.typ == TypeObject && v.AsObject().IsConstructor()
}

// --- Accessors ---

func (v Value) AsNumber() float64 {
	return math.Float64frombits(v.payload)
}

func (v Value) AsBool() bool {
	return v.payload != 0
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		return ""
	}
	return *(*string)(v.obj)
}

func (v Value) AsBigInt() *big.Int {
	if v.typ != TypeBigInt {
		return nil
	}
	return (*big.Int)(v.obj)
}

func (v Value) AsSymbol() *Symbol {
	if v.typ != TypeSymbol {
		return nil
	}
	return (*Symbol)(v.obj)
}

// AsObject returns the referenced object, or nil for non-objects.
func (v Value) AsObject() *Object {
	if v.typ != TypeObject {
		return nil
	}
	return (*Object)(v.obj)
}

// TypeOf implements the typeof operator.
func TypeOf(v Value) string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "object"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		if v.AsObject().IsCallable() {
			return "function"
		}
		return "object"
	}
	return "undefined"
}

// String renders v for diagnostics without calling into script code.
func (v Value) String() string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return strconv.FormatBool(v.AsBool())
	case TypeNumber:
		return NumberToString(v.AsNumber())
	case TypeBigInt:
		return v.AsBigInt().String()
	case TypeString:
		return v.AsString()
	case TypeSymbol:
		return v.AsSymbol().String()
	case TypeObject:
		return "[object " + v.AsObject().ClassName() + "]"
	case TypeHole:
		return "<hole>"
	case TypeUninitialized:
		return "<uninitialized>"
	}
	return "<internal>"
}

// --- Symbols ---

// Symbol is a unique property key. Private names (#x) are symbols that
// never appear in OwnKeys.
type Symbol struct {
	Description    string
	hasDescription bool
	private        bool
}

func NewSymbol(description string) *Symbol {
	return &Symbol{Description: description, hasDescription: true}
}

// NewAnonymousSymbol creates a symbol whose description is undefined.
func NewAnonymousSymbol() *Symbol {
	return &Symbol{}
}

// NewPrivateName creates the key of a private class element.
func NewPrivateName(name string) *Symbol {
	return &Symbol{Description: "#" + name, hasDescription: true, private: true}
}

func (s *Symbol) HasDescription() bool { return s.hasDescription }
func (s *Symbol) IsPrivate() bool      { return s.private }

func (s *Symbol) String() string {
	return "Symbol(" + s.Description + ")"
}

// Well-known symbols are shared by every realm of an agent.
var (
	SymAsyncIterator      = NewSymbol("Symbol.asyncIterator")
	SymHasInstance        = NewSymbol("Symbol.hasInstance")
	SymIsConcatSpreadable = NewSymbol("Symbol.isConcatSpreadable")
	SymIterator           = NewSymbol("Symbol.iterator")
	SymMatch              = NewSymbol("Symbol.match")
	SymMatchAll           = NewSymbol("Symbol.matchAll")
	SymReplace            = NewSymbol("Symbol.replace")
	SymSearch             = NewSymbol("Symbol.search")
	SymSpecies            = NewSymbol("Symbol.species")
	SymSplit              = NewSymbol("Symbol.split")
	SymToPrimitive        = NewSymbol("Symbol.toPrimitive")
	SymToStringTag        = NewSymbol("Symbol.toStringTag")
	SymUnscopables        = NewSymbol("Symbol.unscopables")
)

// WellKnownSymbols maps the property names of the Symbol constructor to
// their symbols.
var WellKnownSymbols = map[string]*Symbol{
	"asyncIterator":      SymAsyncIterator,
	"hasInstance":        SymHasInstance,
	"isConcatSpreadable": SymIsConcatSpreadable,
	"iterator":           SymIterator,
	"match":              SymMatch,
	"matchAll":           SymMatchAll,
	"replace":            SymReplace,
	"search":             SymSearch,
	"species":            SymSpecies,
	"split":              SymSplit,
	"toPrimitive":        SymToPrimitive,
	"toStringTag":        SymToStringTag,
	"unscopables":        SymUnscopables,
}

// --- Property keys ---

// PropertyKey is a string or a symbol. It is comparable and used directly
// as a map key.
type PropertyKey struct {
	name string
	sym  *Symbol
}

func StringKey(s string) PropertyKey      { return PropertyKey{name: s} }
func SymbolKey(s *Symbol) PropertyKey     { return PropertyKey{sym: s} }
func IndexKey(i uint32) PropertyKey       { return PropertyKey{name: strconv.FormatUint(uint64(i), 10)} }
func (k PropertyKey) IsSymbol() bool      { return k.sym != nil }
func (k PropertyKey) IsPrivate() bool     { return k.sym != nil && k.sym.private }
func (k PropertyKey) Name() string        { return k.name }
func (k PropertyKey) Symbol() *Symbol     { return k.sym }
func (k PropertyKey) Equals(o PropertyKey) bool { return k == o }

// Value converts the key back into a script value.
func (k PropertyKey) Value() Value {
	if k.sym != nil {
		return SymbolValue(k.sym)
	}
	return StringValue(k.name)
}

func (k PropertyKey) String() string {
	if k.sym != nil {
		if k.sym.private {
			return k.sym.Description
		}
		return k.sym.String()
	}
	return k.name
}

// ArrayIndex reports whether the key is a canonical array index
// (0 .. 2^32-2).
func (k PropertyKey) ArrayIndex() (uint32, bool) {
	if k.sym != nil {
		return 0, false
	}
	return arrayIndex(k.name)
}

func arrayIndex(s string) (uint32, bool) {
	n := len(s)
	if n == 0 || n > 10 {
		return 0, false
	}
	if s[0] == '0' {
		return 0, n == 1
	}
	var v uint64
	for i := 0; i < n; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	if v >= math.MaxUint32 {
		return 0, false
	}
	return uint32(v), true
}

// functionName derives the name given to an anonymous function stored
// under key (SetFunctionName).
func functionName(key PropertyKey, prefix string) string {
	name := key.name
	if key.sym != nil {
		if key.sym.private {
			name = key.sym.Description
		} else if key.sym.hasDescription {
			name = "[" + key.sym.Description + "]"
		} else {
			name = ""
		}
	}
	if prefix != "" {
		return prefix + " " + name
	}
	return name
}
