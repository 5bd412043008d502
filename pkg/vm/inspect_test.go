package vm

import (
	"math"
	"math/big"
	"testing"
)

func TestInspectPrimitives(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "null"},
		{True, "true"},
		{NumberValue(1.5), "1.5"},
		{NumberValue(math.Copysign(0, -1)), "-0"},
		{NaN, "NaN"},
		{BigIntValue(big.NewInt(12)), "12n"},
		{StringValue("top level"), "top level"},
	}
	for _, tt := range tests {
		if got := Inspect(tt.v); got != tt.want {
			t.Errorf("Inspect(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestInspectObjects(t *testing.T) {
	vm, realm := newTestVM()

	plain := vm.NewObject()
	plain.SetOwn("a", NumberValue(1), FlagsDefault)
	plain.SetOwn("b c", StringValue("x"), FlagsDefault)
	plain.SetOwn("hidden", True, FlagWritable)

	self := vm.NewObject()
	self.SetOwn("self", ObjectValue(self), FlagsDefault)

	holes := vm.NewArray([]Value{NumberValue(1), Hole, Hole, StringValue("s")})

	m := NewOrderedMap()
	m.Set(StringValue("k"), NumberValue(1))
	mapObj := vm.NewObjectOfClass(ClassMap, realm.Intrinsics.ObjectPrototype, m)
	setObj := vm.NewObjectOfClass(ClassSet, realm.Intrinsics.ObjectPrototype, NewOrderedMap())

	acc := vm.NewObject()
	getter := vm.NewNativeFunction("get", 0, func(vm *VM, this Value, args []Value) (Value, error) {
		return Undefined, nil
	})
	acc.SetAccessor(StringKey("x"), getter, nil, FlagEnumerable|FlagConfigurable)

	deep := vm.NewObject()
	cur := deep
	for i := 0; i < 6; i++ {
		next := vm.NewObject()
		cur.SetOwn("n", ObjectValue(next), FlagsDefault)
		cur = next
	}

	tests := []struct {
		name string
		o    *Object
		want string
	}{
		{"plain", plain, `{ a: 1, "b c": "x" }`},
		{"empty", vm.NewObject(), "{}"},
		{"circular", self, "{ self: [Circular] }"},
		{"holes", holes, `[1, <2 empty items>, "s"]`},
		{"map", mapObj, `Map(1) { "k" => 1 }`},
		{"empty set", setObj, "Set(0) {}"},
		{"accessor", acc, "{ x: [Getter] }"},
		{"function", getter, "[Function: get]"},
		{"error", vm.NewError(nil, "boom"), "Error: boom"},
		{"wrapper", vm.NewPrimitiveWrapper(NumberValue(3), realm.Intrinsics.ObjectPrototype), "[Number: 3]"},
		{"depth", deep, "{ n: { n: { n: { n: [Object] } } } }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Inspect(ObjectValue(tt.o)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInspectLongArray(t *testing.T) {
	vm, _ := newTestVM()
	elems := make([]Value, 150)
	for i := range elems {
		elems[i] = NumberValue(0)
	}
	got := Inspect(ObjectValue(vm.NewArray(elems)))
	want := ", ... 50 more items]"
	if len(got) < len(want) || got[len(got)-len(want):] != want {
		t.Errorf("long array rendered as %q", got)
	}
}
