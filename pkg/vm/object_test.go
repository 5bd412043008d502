package vm

import (
	"strings"
	"testing"
)

func keyNames(keys []PropertyKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

func TestOwnKeysOrder(t *testing.T) {
	vm, _ := newTestVM()
	o := vm.NewObject()
	sym := NewSymbol("s")
	o.SetOwn("b", NumberValue(1), FlagsDefault)
	o.SetOwnKey(SymbolKey(sym), NumberValue(2), FlagsDefault)
	o.SetOwn("10", NumberValue(3), FlagsDefault)
	o.SetOwn("a", NumberValue(4), FlagsDefault)
	o.SetOwn("2", NumberValue(5), FlagsDefault)
	o.SetOwnKey(SymbolKey(NewPrivateName("p")), NumberValue(6), FlagWritable)

	got := keyNames(o.OwnKeys())
	want := "2,10,b,a,Symbol(s)"
	if got != want {
		t.Errorf("OwnKeys = %s, want %s", got, want)
	}

	o.Delete(StringKey("b"))
	o.SetOwn("b", NumberValue(1), FlagsDefault)
	if got, want := keyNames(o.OwnKeys()), "2,10,a,b,Symbol(s)"; got != want {
		t.Errorf("after re-adding b: %s, want %s", got, want)
	}
}

func TestSetRespectsAttributes(t *testing.T) {
	vm, _ := newTestVM()
	o := vm.NewObject()
	o.SetOwn("ro", NumberValue(1), FlagEnumerable)

	ok, err := vm.SetStr(o, "ro", NumberValue(2))
	if err != nil || ok {
		t.Fatalf("Set on read-only property: ok=%v err=%v", ok, err)
	}
	if err := vm.PutValue(ObjectValue(o), StringKey("ro"), NumberValue(2), false); err != nil {
		t.Errorf("sloppy PutValue threw: %v", err)
	}
	err = vm.PutValue(ObjectValue(o), StringKey("ro"), NumberValue(2), true)
	if err == nil || !strings.Contains(err.Error(), "Cannot assign to read only property 'ro'") {
		t.Errorf("strict PutValue: %v", err)
	}

	child := vm.NewObjectWithProto(o)
	if ok, _ := vm.SetStr(child, "ro", NumberValue(3)); ok {
		t.Error("inherited read-only property must block assignment")
	}
	if child.HasOwnProperty(StringKey("ro")) {
		t.Error("rejected assignment created an own property")
	}
}

func TestAccessorProperty(t *testing.T) {
	vm, _ := newTestVM()
	o := vm.NewObject()
	var stored Value
	getter := vm.NewNativeFunction("get", 0, func(vm *VM, this Value, args []Value) (Value, error) {
		return stored, nil
	})
	setter := vm.NewNativeFunction("set", 1, func(vm *VM, this Value, args []Value) (Value, error) {
		stored = args[0]
		return Undefined, nil
	})
	o.SetAccessor(StringKey("x"), getter, setter, FlagConfigurable)

	if _, err := vm.SetStr(o, "x", NumberValue(9)); err != nil {
		t.Fatal(err)
	}
	v, err := vm.GetStr(o, "x")
	if err != nil {
		t.Fatal(err)
	}
	if v.AsNumber() != 9 {
		t.Errorf("got %v, want 9", v)
	}
}

func TestDefineOwnPropertyValidation(t *testing.T) {
	vm, _ := newTestVM()
	o := vm.NewObject()
	if !o.DefineOwnProperty(StringKey("c"), DataDescriptor(NumberValue(1), FlagsNone)) {
		t.Fatal("initial define failed")
	}
	tests := []struct {
		name string
		desc PropertyDescriptor
		ok   bool
	}{
		{"same value", PropertyDescriptor{Value: NumberValue(1), HasValue: true}, true},
		{"different value", PropertyDescriptor{Value: NumberValue(2), HasValue: true}, false},
		{"make configurable", PropertyDescriptor{Configurable: true, HasConfigurable: true}, false},
		{"make enumerable", PropertyDescriptor{Enumerable: true, HasEnumerable: true}, false},
		{"to accessor", PropertyDescriptor{HasGet: true}, false},
		{"empty", PropertyDescriptor{}, true},
	}
	for _, tt := range tests {
		if got := o.DefineOwnProperty(StringKey("c"), tt.desc); got != tt.ok {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.ok)
		}
	}

	o.PreventExtensions()
	if o.DefineOwnProperty(StringKey("new"), DataDescriptor(Undefined, FlagsDefault)) {
		t.Error("defined a property on a non-extensible object")
	}
}

func TestPrototypeCycle(t *testing.T) {
	vm, _ := newTestVM()
	a := vm.NewObject()
	b := vm.NewObjectWithProto(a)
	if a.SetPrototypeOf(b) {
		t.Error("SetPrototypeOf created a cycle")
	}
	if !b.SetPrototypeOf(nil) {
		t.Error("SetPrototypeOf(nil) failed")
	}
	a.PreventExtensions()
	if a.SetPrototypeOf(b) {
		t.Error("changed the prototype of a non-extensible object")
	}
}

func TestArrayLength(t *testing.T) {
	vm, _ := newTestVM()
	arr := vm.NewArray([]Value{NumberValue(1), NumberValue(2), NumberValue(3)})

	if _, err := vm.Set(arr, IndexKey(5), NumberValue(6), ObjectValue(arr)); err != nil {
		t.Fatal(err)
	}
	if arr.ArrayLength() != 6 {
		t.Errorf("length after arr[5]= is %d, want 6", arr.ArrayLength())
	}
	if _, ok := arr.GetOwnProperty(IndexKey(4)); ok {
		t.Error("index 4 should be a hole")
	}

	ok, err := vm.DefineOwnProperty(arr, StringKey("length"), PropertyDescriptor{Value: NumberValue(2), HasValue: true})
	if err != nil || !ok {
		t.Fatalf("truncate: ok=%v err=%v", ok, err)
	}
	if got := keyNames(arr.OwnKeys()); got != "0,1,length" {
		t.Errorf("keys after truncation: %s", got)
	}

	_, err = vm.DefineOwnProperty(arr, StringKey("length"), PropertyDescriptor{Value: NumberValue(-1), HasValue: true})
	if ex, isEx := AsException(err); !isEx || !strings.Contains(ex.Error(), "Invalid array length") {
		t.Errorf("negative length: %v", err)
	}
}

func TestArrayLengthStopsAtNonConfigurable(t *testing.T) {
	vm, _ := newTestVM()
	arr := vm.NewArray([]Value{NumberValue(0), NumberValue(1), NumberValue(2), NumberValue(3)})
	if !arr.DefineOwnProperty(IndexKey(1), DataDescriptor(NumberValue(1), FlagWritable|FlagEnumerable)) {
		t.Fatal("define non-configurable element")
	}
	ok, err := vm.DefineOwnProperty(arr, StringKey("length"), PropertyDescriptor{Value: NumberValue(0), HasValue: true})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("truncation past a non-configurable element succeeded")
	}
	if arr.ArrayLength() != 2 {
		t.Errorf("length = %d, want 2", arr.ArrayLength())
	}
}

func TestSparseArray(t *testing.T) {
	vm, _ := newTestVM()
	arr := vm.NewArray(nil)
	if _, err := vm.Set(arr, IndexKey(1_000_000), True, ObjectValue(arr)); err != nil {
		t.Fatal(err)
	}
	if arr.ArrayLength() != 1_000_001 {
		t.Errorf("length = %d", arr.ArrayLength())
	}
	if _, dense := arr.ArrayElements(); dense {
		t.Error("far write should switch to sparse storage")
	}
	v, _ := vm.Get(arr, IndexKey(1_000_000), ObjectValue(arr))
	if !v.AsBool() {
		t.Errorf("got %v", v)
	}
}

func TestFreeze(t *testing.T) {
	vm, _ := newTestVM()
	arr := vm.NewArray([]Value{NumberValue(1)})
	arr.SetIntegrity(true)
	if !arr.TestIntegrity(true) {
		t.Fatal("array not frozen")
	}
	if ok, _ := vm.Set(arr, IndexKey(0), NumberValue(2), ObjectValue(arr)); ok {
		t.Error("assigned to a frozen element")
	}
	if ok, _ := vm.Set(arr, IndexKey(1), NumberValue(2), ObjectValue(arr)); ok {
		t.Error("grew a frozen array")
	}
	if arr.Delete(IndexKey(0)) {
		t.Error("deleted a frozen element")
	}

	o := vm.NewObject()
	o.SetOwn("a", True, FlagsDefault)
	o.SetIntegrity(false)
	if !o.TestIntegrity(false) || o.TestIntegrity(true) {
		t.Error("sealed object should be sealed but not frozen")
	}
}

func TestStringExoticProperties(t *testing.T) {
	vm, realm := newTestVM()
	s := vm.NewPrimitiveWrapper(StringValue("h\U0001F600"), realm.Intrinsics.ObjectPrototype)
	if got := keyNames(s.OwnKeys()); got != "0,1,2,length" {
		t.Errorf("keys = %s", got)
	}
	p, ok := s.GetOwnProperty(StringKey("length"))
	if !ok || p.Value.AsNumber() != 3 {
		t.Errorf("length = %v", p.Value)
	}
	if s.DefineOwnProperty(IndexKey(0), DataDescriptor(StringValue("x"), FlagsDefault)) {
		t.Error("redefined a string index")
	}
}
