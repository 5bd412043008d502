package vm

import (
	"reflect"
	"time"

	"ecmavm/pkg/config"
)

// Heap registers every object and environment the VM allocates so the
// collector can sweep the ones scripts can no longer reach. Memory itself
// is reclaimed by the Go runtime once the registry lets go.
type Heap struct {
	cfg       config.GCConfig
	objects   []*Object
	envs      []*Env
	allocs    int
	requested bool
	stats     GCStats
}

// GCStats summarizes collector activity.
type GCStats struct {
	Collections int
	Marked      int
	Swept       int
	Live        int
	Duration    time.Duration
}

func newHeap(cfg config.GCConfig) *Heap {
	return &Heap{cfg: cfg}
}

func (h *Heap) registerObject(o *Object) {
	h.objects = append(h.objects, o)
	h.allocs++
}

func (h *Heap) registerEnv(e *Env) {
	h.envs = append(h.envs, e)
	h.allocs++
}

func (h *Heap) due() bool {
	if !h.cfg.Enabled {
		return false
	}
	return h.requested || h.allocs >= h.cfg.Threshold
}

// RequestGC asks for a collection at the next safe point.
func (vm *VM) RequestGC() { vm.heap.requested = true }

// GCStats returns cumulative collector statistics.
func (vm *VM) GCStats() GCStats { return vm.heap.stats }

// HeapSize returns the number of registered objects.
func (vm *VM) HeapSize() int { return len(vm.heap.objects) }

// --- allocation ---

func (vm *VM) allocObject(class Class, proto *Object) *Object {
	o := &Object{class: class, proto: proto, extensible: true}
	vm.heap.registerObject(o)
	return o
}

// NewObject creates an ordinary object inheriting from Object.prototype.
func (vm *VM) NewObject() *Object {
	return vm.allocObject(ClassObject, vm.realm.Intrinsics.ObjectPrototype)
}

// NewObjectWithProto creates an ordinary object with the given prototype.
func (vm *VM) NewObjectWithProto(proto *Object) *Object {
	return vm.allocObject(ClassObject, proto)
}

// NewObjectOfClass creates an object carrying class-specific internal
// state, used by builtins for Map, Promise and similar objects.
func (vm *VM) NewObjectOfClass(class Class, proto *Object, internal any) *Object {
	o := vm.allocObject(class, proto)
	o.Internal = internal
	return o
}

// NewArray creates a dense array holding a copy of elems.
func (vm *VM) NewArray(elems []Value) *Object {
	o := vm.allocObject(ClassArray, vm.realm.Intrinsics.ArrayPrototype)
	o.elements = append([]Value(nil), elems...)
	o.length = uint32(len(elems))
	return o
}

// NewArrayWithProto creates an empty array (ArrayCreate with a prototype).
func (vm *VM) NewArrayWithProto(proto *Object, length uint32) *Object {
	o := vm.allocObject(ClassArray, proto)
	o.length = length
	if length > 0 {
		o.sparse = length > denseSlack
		if !o.sparse {
			o.elements = make([]Value, length)
			for i := range o.elements {
				o.elements[i] = Hole
			}
		}
	}
	return o
}

// --- weak collections ---

// WeakTable is the storage of WeakMap and WeakSet objects. Entries whose
// key is collected disappear; values are kept alive only through their key.
type WeakTable struct {
	entries map[*Object]Value
}

func NewWeakTable() *WeakTable {
	return &WeakTable{entries: make(map[*Object]Value)}
}

func (w *WeakTable) Get(k *Object) (Value, bool) {
	v, ok := w.entries[k]
	return v, ok
}

func (w *WeakTable) Set(k *Object, v Value) { w.entries[k] = v }
func (w *WeakTable) Has(k *Object) bool     { _, ok := w.entries[k]; return ok }

func (w *WeakTable) Delete(k *Object) bool {
	if _, ok := w.entries[k]; !ok {
		return false
	}
	delete(w.entries, k)
	return true
}

func (w *WeakTable) Len() int { return len(w.entries) }

// --- marking ---

// Tracer is implemented by Internal states that reference script values.
type Tracer interface {
	Trace(m *Marker)
}

// Marker is the gray set of a collection in progress.
type Marker struct {
	gray       []*Object
	envs       []*Env
	weak       []*WeakTable
	refs       []*WeakRef
	registries []*FinalizationRegistry
	count      int

	// coroutines already traced; a suspended frame refers back to its
	// own coroutine.
	coros map[*coroutine]bool
}

// Value marks the object referenced by v, if any.
func (m *Marker) Value(v Value) {
	switch v.typ {
	case TypeObject:
		m.Object(v.AsObject())
	case typeInternal:
		m.internal(v.internalRef())
	}
}

// Values marks every value of vs.
func (m *Marker) Values(vs []Value) {
	for _, v := range vs {
		m.Value(v)
	}
}

// Object marks o and schedules its references.
func (m *Marker) Object(o *Object) {
	if o == nil || o.marked {
		return
	}
	o.marked = true
	m.count++
	m.gray = append(m.gray, o)
}

// Env marks an environment record.
func (m *Marker) Env(e *Env) {
	for ; e != nil && !e.marked; e = e.outer {
		e.marked = true
		m.envs = append(m.envs, e)
	}
}

func (m *Marker) internal(ref any) {
	switch r := ref.(type) {
	case *coroutine:
		m.coroutine(r)
	case Tracer:
		r.Trace(m)
	case *returnCompletion:
		m.Value(r.value)
	}
}

func (m *Marker) function(f *Function) {
	if f == nil {
		return
	}
	m.Env(f.Env)
	m.Object(f.Home)
	m.Object(f.FieldInit)
	m.Values(f.Captured)
}

func (m *Marker) frame(f *Frame) {
	m.Object(f.callee)
	m.function(f.fn)
	m.Env(f.env)
	m.Value(f.this)
	m.Value(f.newTarget)
	m.Values(f.args)
	m.Value(f.completion)
	if f.coro != nil {
		m.coroutine(f.coro)
	}
}

func (m *Marker) coroutine(co *coroutine) {
	if m.coros[co] {
		return
	}
	if m.coros == nil {
		m.coros = make(map[*coroutine]bool)
	}
	m.coros[co] = true
	co.Trace(m)
}

func (m *Marker) scan(o *Object) {
	m.Object(o.proto)
	for i := range o.slots {
		s := &o.slots[i]
		if s.deleted {
			continue
		}
		m.Value(s.prop.Value)
		m.Object(s.prop.Getter)
		m.Object(s.prop.Setter)
	}
	m.Values(o.elements)
	m.function(o.fn)
	m.Value(o.primitive)
	switch in := o.Internal.(type) {
	case nil:
	case *BoundFunction:
		m.Object(in.Target)
		m.Value(in.This)
		m.Values(in.Args)
	case *argumentsMap:
		m.Env(in.env)
	case *WeakTable:
		m.weak = append(m.weak, in)
	case *WeakRef:
		m.refs = append(m.refs, in)
	case *FinalizationRegistry:
		in.trace(m)
		m.registries = append(m.registries, in)
	case *coroutine:
		m.coroutine(in)
	case Tracer:
		in.Trace(m)
	}
}

func (m *Marker) drain() {
	for len(m.gray) > 0 || len(m.envs) > 0 {
		for len(m.gray) > 0 {
			o := m.gray[len(m.gray)-1]
			m.gray = m.gray[:len(m.gray)-1]
			m.scan(o)
		}
		for len(m.envs) > 0 {
			e := m.envs[len(m.envs)-1]
			m.envs = m.envs[:len(m.envs)-1]
			m.Values(e.slots)
			m.Object(e.with)
		}
	}
}

// ephemerons marks weak-table values whose keys are live until no table
// changes.
func (m *Marker) ephemerons() {
	for {
		changed := false
		for _, w := range m.weak {
			for k, v := range w.entries {
				if k.marked && v.typ == TypeObject && !v.AsObject().marked {
					m.Value(v)
					changed = true
				}
			}
		}
		if !changed {
			return
		}
		m.drain()
	}
}

func (vm *VM) markRoots(m *Marker) {
	m.Values(vm.stack[:vm.sp])
	for i := 0; i < vm.fp; i++ {
		m.frame(&vm.frames[i])
	}
	for _, r := range vm.realms {
		m.Object(r.Global)
		iv := reflect.ValueOf(&r.Intrinsics).Elem()
		for i := 0; i < iv.NumField(); i++ {
			if o, ok := iv.Field(i).Interface().(*Object); ok {
				m.Object(o)
			}
		}
		for _, o := range r.extra {
			m.Object(o)
		}
		for _, b := range r.lexical {
			m.Value(b.value)
		}
		for _, o := range r.templates {
			m.Object(o)
		}
		for _, v := range r.Host {
			m.Value(v)
		}
	}
	for i := range vm.jobs {
		vm.jobs[i].Trace(m)
	}
	if vm.currentJob != nil {
		vm.currentJob.Trace(m)
	}
	for o := range vm.handles {
		m.Object(o)
	}
	for _, o := range vm.kept {
		m.Object(o)
	}
}

// Collect runs a full mark and sweep. It must only be called when no
// native code holds unrooted values: from the host between runs or at an
// interpreter safe point.
func (vm *VM) Collect() GCStats {
	start := time.Now()
	h := vm.heap
	m := &Marker{}
	vm.markRoots(m)
	m.drain()
	m.ephemerons()

	for _, w := range m.weak {
		for k := range w.entries {
			if !k.marked {
				delete(w.entries, k)
			}
		}
	}
	for _, r := range m.refs {
		if r.Target != nil && !r.Target.marked {
			r.Target = nil
		}
	}
	for _, r := range m.registries {
		vm.sweepCells(r)
	}

	live := h.objects[:0]
	swept := 0
	for _, o := range h.objects {
		if o.marked {
			o.marked = false
			live = append(live, o)
			continue
		}
		swept++
		o.slots = nil
		o.index = nil
		o.elements = nil
		o.Internal = nil
		o.fn = nil
		o.proto = nil
	}
	for i := len(live); i < len(h.objects); i++ {
		h.objects[i] = nil
	}
	h.objects = live

	liveEnvs := h.envs[:0]
	for _, e := range h.envs {
		if e.marked {
			e.marked = false
			liveEnvs = append(liveEnvs, e)
			continue
		}
		e.slots = nil
		e.outer = nil
	}
	for i := len(liveEnvs); i < len(h.envs); i++ {
		h.envs[i] = nil
	}
	h.envs = liveEnvs

	h.allocs = 0
	h.requested = false
	h.stats.Collections++
	h.stats.Marked = m.count
	h.stats.Swept = swept
	h.stats.Live = len(live)
	h.stats.Duration = time.Since(start)
	log.Debugf("gc: marked %d, swept %d objects in %s", m.count, swept, h.stats.Duration)
	return h.stats
}
