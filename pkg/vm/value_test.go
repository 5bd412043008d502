package vm

import (
	"math"
	"math/big"
	"testing"
)

func TestNumberToString(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1, "1"},
		{-42, "-42"},
		{0.1, "0.1"},
		{1.5e-7, "1.5e-7"},
		{0.000001, "0.000001"},
		{1e21, "1e+21"},
		{123456789012345680000, "123456789012345680000"},
		{1.7976931348623157e308, "1.7976931348623157e+308"},
		{5e-324, "5e-324"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := NumberToString(tt.in); got != tt.want {
			t.Errorf("NumberToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStringToNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"  \n\t ", 0},
		{"42", 42},
		{" -3.5 ", -3.5},
		{"0x1F", 31},
		{"0b101", 5},
		{"0o17", 15},
		{".5", 0.5},
		{"5.", 5},
		{"1e3", 1000},
		{"Infinity", math.Inf(1)},
		{"-Infinity", math.Inf(-1)},
		{"1e1000", math.Inf(1)},
		{"abc", math.NaN()},
		{"0x", math.NaN()},
		{"-0x10", math.NaN()},
		{"1_000", math.NaN()},
		{"infinity", math.NaN()},
	}
	for _, tt := range tests {
		got := StringToNumber(tt.in)
		if math.IsNaN(tt.want) {
			if !math.IsNaN(got) {
				t.Errorf("StringToNumber(%q) = %v, want NaN", tt.in, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("StringToNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSameValue(t *testing.T) {
	negZero := NumberValue(math.Copysign(0, -1))
	obj := &Object{}
	tests := []struct {
		name               string
		a, b               Value
		same, zero, strict bool
	}{
		{"nan", NaN, NaN, true, true, false},
		{"zeros", NumberValue(0), negZero, false, true, true},
		{"strings", StringValue("a"), StringValue("a"), true, true, true},
		{"bigints", BigIntValue(big.NewInt(7)), BigIntValue(big.NewInt(7)), true, true, true},
		{"number vs string", NumberValue(1), StringValue("1"), false, false, false},
		{"same object", ObjectValue(obj), ObjectValue(obj), true, true, true},
		{"distinct objects", ObjectValue(obj), ObjectValue(&Object{}), false, false, false},
		{"undefined null", Undefined, Null, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameValue(tt.a, tt.b); got != tt.same {
				t.Errorf("SameValue = %v", got)
			}
			if got := SameValueZero(tt.a, tt.b); got != tt.zero {
				t.Errorf("SameValueZero = %v", got)
			}
			if got := StrictEquals(tt.a, tt.b); got != tt.strict {
				t.Errorf("StrictEquals = %v", got)
			}
		})
	}
}

func TestLooseEquals(t *testing.T) {
	vm, _ := newTestVM()
	tests := []struct {
		a, b Value
		want bool
	}{
		{Undefined, Null, true},
		{NumberValue(1), StringValue("1"), true},
		{True, NumberValue(1), true},
		{StringValue(""), NumberValue(0), true},
		{BigIntValue(big.NewInt(2)), NumberValue(2), true},
		{BigIntValue(big.NewInt(2)), StringValue("2"), true},
		{Null, NumberValue(0), false},
		{NaN, NaN, false},
	}
	for _, tt := range tests {
		got, err := vm.LooseEquals(tt.a, tt.b)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("%v == %v: got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	vm, _ := newTestVM()
	fn := vm.NewNativeFunction("f", 0, func(*VM, Value, []Value) (Value, error) { return Undefined, nil })
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{NumberValue(1), "number"},
		{StringValue("s"), "string"},
		{BigIntValue(big.NewInt(1)), "bigint"},
		{SymbolValue(NewSymbol("x")), "symbol"},
		{ObjectValue(vm.NewObject()), "object"},
		{ObjectValue(fn), "function"},
	}
	for _, tt := range tests {
		if got := TypeOf(tt.v); got != tt.want {
			t.Errorf("TypeOf(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestIntegerConversions(t *testing.T) {
	tests := []struct {
		in     float64
		int32  int32
		uint32 uint32
		uint16 uint16
	}{
		{0, 0, 0, 0},
		{-1, -1, 4294967295, 65535},
		{4294967296, 0, 0, 0},
		{2147483648, -2147483648, 2147483648, 0},
		{3.9, 3, 3, 3},
		{-3.9, -3, 4294967293, 65533},
		{math.NaN(), 0, 0, 0},
		{math.Inf(1), 0, 0, 0},
	}
	for _, tt := range tests {
		if got := ToInt32(tt.in); got != tt.int32 {
			t.Errorf("ToInt32(%v) = %d, want %d", tt.in, got, tt.int32)
		}
		if got := ToUint32(tt.in); got != tt.uint32 {
			t.Errorf("ToUint32(%v) = %d, want %d", tt.in, got, tt.uint32)
		}
		if got := ToUint16(tt.in); got != tt.uint16 {
			t.Errorf("ToUint16(%v) = %d, want %d", tt.in, got, tt.uint16)
		}
	}
}

func TestStringToBigInt(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "0", true},
		{" 123 ", "123", true},
		{"-45", "-45", true},
		{"0xff", "255", true},
		{"1.5", "", false},
		{"1n", "", false},
	}
	for _, tt := range tests {
		got, ok := StringToBigInt(tt.in)
		if ok != tt.ok {
			t.Errorf("StringToBigInt(%q) ok = %v", tt.in, ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("StringToBigInt(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNumberToRadixString(t *testing.T) {
	tests := []struct {
		in    float64
		radix int
		want  string
	}{
		{255, 16, "ff"},
		{-255, 2, "-11111111"},
		{0.5, 2, "0.1"},
		{35, 36, "z"},
	}
	for _, tt := range tests {
		if got := NumberToRadixString(tt.in, tt.radix); got != tt.want {
			t.Errorf("NumberToRadixString(%v, %d) = %q, want %q", tt.in, tt.radix, got, tt.want)
		}
	}
}
