package vm

import (
	"context"
	"testing"

	"ecmavm/pkg/config"
)

func TestCollectSweepsUnreachable(t *testing.T) {
	vm, realm := newTestVM()
	vm.Collect()
	base := vm.HeapSize()

	kept := vm.NewObject()
	realm.DefineGlobal("kept", ObjectValue(kept))
	child := vm.NewObject()
	kept.SetOwn("child", ObjectValue(child), FlagsDefault)
	for i := 0; i < 10; i++ {
		vm.NewObject()
	}

	stats := vm.Collect()
	if stats.Swept != 10 {
		t.Errorf("swept %d objects, want 10", stats.Swept)
	}
	if vm.HeapSize() != base+2 {
		t.Errorf("heap size %d, want %d", vm.HeapSize(), base+2)
	}
	v, _ := vm.GetStr(kept, "child")
	if v.AsObject() != child {
		t.Error("reachable child was lost")
	}
}

func TestCollectKeepsPinnedObjects(t *testing.T) {
	vm, _ := newTestVM()
	o := vm.NewObject()
	o.SetOwn("x", True, FlagsDefault)
	vm.Pin(o)
	vm.Collect()
	if !o.HasOwnProperty(StringKey("x")) {
		t.Fatal("pinned object was swept")
	}
	vm.Unpin(o)
	vm.Collect()
	if o.HasOwnProperty(StringKey("x")) {
		t.Error("unpinned object survived")
	}
}

func TestCollectCycles(t *testing.T) {
	vm, _ := newTestVM()
	vm.Collect()
	base := vm.HeapSize()
	a := vm.NewObject()
	b := vm.NewObject()
	a.SetOwn("b", ObjectValue(b), FlagsDefault)
	b.SetOwn("a", ObjectValue(a), FlagsDefault)
	vm.Collect()
	if vm.HeapSize() != base {
		t.Errorf("cycle not collected: heap %d, want %d", vm.HeapSize(), base)
	}
}

func TestWeakTableEphemerons(t *testing.T) {
	vm, realm := newTestVM()
	table := NewWeakTable()
	wm := vm.NewObjectOfClass(ClassWeakMap, realm.Intrinsics.ObjectPrototype, table)
	realm.DefineGlobal("wm", ObjectValue(wm))

	liveKey := vm.NewObject()
	realm.DefineGlobal("key", ObjectValue(liveKey))
	liveValue := vm.NewObject()
	liveValue.SetOwn("tag", True, FlagsDefault)
	table.Set(liveKey, ObjectValue(liveValue))

	deadKey := vm.NewObject()
	deadValue := vm.NewObject()
	table.Set(deadKey, ObjectValue(deadValue))

	// a value that is itself the key of another entry
	chained := vm.NewObject()
	chained.SetOwn("tag", True, FlagsDefault)
	table.Set(liveValue, ObjectValue(chained))

	vm.Collect()
	if table.Len() != 2 {
		t.Errorf("table has %d entries, want 2", table.Len())
	}
	if table.Has(deadKey) {
		t.Error("entry with an unreachable key survived")
	}
	if !chained.HasOwnProperty(StringKey("tag")) {
		t.Error("value reachable through a live key chain was swept")
	}
}

func TestCollectDuringRun(t *testing.T) {
	cfg := config.Default()
	cfg.GC.Threshold = 50
	vm := New(cfg)
	realm := vm.NewRealm()

	// allocate many short-lived objects in a loop and keep the last one
	a := newAsm()
	a.constant(NumberValue(0))
	a.op(OpInitLocal, 0, 0)
	top := a.pc()
	a.op(OpGetLocal, 0, 0)
	a.constant(NumberValue(1000))
	a.op(OpLess)
	exit := a.jump(OpJumpIfFalse)
	a.op(OpNewObject)
	a.op(OpGetLocal, 0, 0)
	a.op(OpSetProp, a.name("n"))
	a.op(OpPop)
	a.op(OpGetLocal, 0, 0)
	a.op(OpInc)
	a.op(OpSetLocal, 0, 0)
	a.op(OpPop)
	a.loop(top)
	a.patch(exit)
	a.op(OpGetLocal, 0, 0)
	a.op(OpReturn)
	scope := &ScopeInfo{Kind: ScopeFunction, Names: []string{"i"}, Flags: []BindingFlags{BindingMutable}}

	got, err := vm.RunScript(context.Background(), a.script(t, scope), realm)
	if err != nil {
		t.Fatal(err)
	}
	if got.AsNumber() != 1000 {
		t.Errorf("got %v", got)
	}
	if vm.GCStats().Collections == 0 {
		t.Error("no collection ran during the loop")
	}
}

func TestCollectSuspendedCoroutine(t *testing.T) {
	vm, realm := newTestVM()
	co := &coroutine{kind: coGenerator, state: coSuspendedYield}
	co.frame.coro = co
	held := vm.NewObject()
	held.SetOwn("tag", True, FlagsDefault)
	co.stack = []Value{ObjectValue(held)}
	gen := vm.NewObjectOfClass(ClassGenerator, realm.Intrinsics.ObjectPrototype, co)
	realm.DefineGlobal("gen", ObjectValue(gen))

	vm.Collect()
	if !held.HasOwnProperty(StringKey("tag")) {
		t.Error("value on a suspended generator stack was swept")
	}

	// an async function suspended in await
	pending := &coroutine{kind: coAsync, state: coSuspendedYield}
	pending.frame.coro = pending
	pending.promise = vm.NewObject()
	pending.promise.SetOwn("tag", True, FlagsDefault)
	awaited := vm.NewObjectOfClass(ClassObject, realm.Intrinsics.ObjectPrototype, pending)
	realm.DefineGlobal("awaited", ObjectValue(awaited))

	vm.Collect()
	if !pending.promise.HasOwnProperty(StringKey("tag")) {
		t.Error("promise of a suspended async function was swept")
	}
}
