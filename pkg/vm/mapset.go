package vm

import (
	"math"
	"unsafe"
)

// OrderedMap is the backing store of Map and Set: a hash map with
// SameValueZero keys that iterates in insertion order. Cursors stay valid
// across deletion and see entries added after they were created.
type OrderedMap struct {
	index map[mapKey]*mapEntry
	// head is a sentinel; the tail is never unlinked so that cursors
	// parked on deleted entries can reach later insertions.
	head *mapEntry
	tail *mapEntry
	size int
}

type mapEntry struct {
	key, value Value
	prev, next *mapEntry
	deleted    bool
}

type mapKey struct {
	typ     ValueType
	payload uint64
	ptr     unsafe.Pointer
	s       string
}

func keyOf(v Value) mapKey {
	switch v.typ {
	case TypeNumber:
		f := v.AsNumber()
		switch {
		case f == 0:
			f = 0
		case math.IsNaN(f):
			f = math.NaN()
		}
		return mapKey{typ: TypeNumber, payload: math.Float64bits(f)}
	case TypeString:
		return mapKey{typ: TypeString, s: v.AsString()}
	case TypeBigInt:
		return mapKey{typ: TypeBigInt, s: v.AsBigInt().String()}
	case TypeBoolean:
		return mapKey{typ: TypeBoolean, payload: v.payload}
	case TypeObject, TypeSymbol:
		return mapKey{typ: v.typ, ptr: v.obj}
	}
	return mapKey{typ: v.typ}
}

// NewOrderedMap creates an empty map.
func NewOrderedMap() *OrderedMap {
	s := &mapEntry{}
	return &OrderedMap{index: make(map[mapKey]*mapEntry), head: s, tail: s}
}

// Size returns the number of live entries.
func (m *OrderedMap) Size() int { return m.size }

// Get returns the value stored under key.
func (m *OrderedMap) Get(key Value) (Value, bool) {
	if e, ok := m.index[keyOf(key)]; ok {
		return e.value, true
	}
	return Undefined, false
}

// Has reports whether key is present.
func (m *OrderedMap) Has(key Value) bool {
	_, ok := m.index[keyOf(key)]
	return ok
}

// Set stores value under key. A new key is appended; -0 is stored as +0.
func (m *OrderedMap) Set(key, value Value) {
	k := keyOf(key)
	if e, ok := m.index[k]; ok {
		e.value = value
		return
	}
	if key.typ == TypeNumber && key.AsNumber() == 0 {
		key = NumberValue(0)
	}
	e := &mapEntry{key: key, value: value, prev: m.tail}
	old := m.tail
	old.next = e
	m.tail = e
	if old.deleted {
		// the old tail can leave the list now that it has a successor
		old.prev.next = e
		e.prev = old.prev
	}
	m.index[k] = e
	m.size++
}

// Delete removes key and reports whether it was present.
func (m *OrderedMap) Delete(key Value) bool {
	k := keyOf(key)
	e, ok := m.index[k]
	if !ok {
		return false
	}
	delete(m.index, k)
	m.size--
	e.deleted = true
	e.value = Undefined
	if e != m.tail {
		e.prev.next = e.next
		e.next.prev = e.prev
	}
	return true
}

// Clear removes every entry.
func (m *OrderedMap) Clear() {
	for e := m.head.next; e != nil; e = e.next {
		e.deleted = true
		e.value = Undefined
	}
	clear(m.index)
	m.size = 0
	if m.tail != m.head {
		m.head.next = m.tail
		m.tail.prev = m.head
	}
}

// Cursor returns an iterator positioned before the first entry.
func (m *OrderedMap) Cursor() *MapCursor {
	return &MapCursor{m: m, cur: m.head}
}

// ForEach visits live entries in order, including entries added during
// the walk, until fn returns false or an error.
func (m *OrderedMap) ForEach(fn func(key, value Value) (bool, error)) error {
	c := m.Cursor()
	for {
		k, v, ok := c.Next()
		if !ok {
			return nil
		}
		more, err := fn(k, v)
		if err != nil || !more {
			return err
		}
	}
}

// Trace marks the live keys and values.
func (m *OrderedMap) Trace(mk *Marker) {
	for e := m.head.next; e != nil; e = e.next {
		if !e.deleted {
			mk.Value(e.key)
			mk.Value(e.value)
		}
	}
}

// MapCursor walks an OrderedMap in insertion order.
type MapCursor struct {
	m    *OrderedMap
	cur  *mapEntry
	done bool
}

// Next advances to the next live entry.
func (c *MapCursor) Next() (key, value Value, ok bool) {
	if c.done {
		return Undefined, Undefined, false
	}
	e := c.cur.next
	for e != nil && e.deleted {
		e = e.next
	}
	if e == nil {
		c.done = true
		c.cur = nil
		return Undefined, Undefined, false
	}
	c.cur = e
	return e.key, e.value, true
}

// Trace keeps the map alive while the cursor is reachable.
func (c *MapCursor) Trace(mk *Marker) {
	if c.m != nil && !c.done {
		c.m.Trace(mk)
	}
}

// WeakRef is the state of a WeakRef object. The collector clears Target
// once nothing else reaches it.
type WeakRef struct {
	Target *Object
}

// FinalizationRegistry is the state of a FinalizationRegistry object.
// Targets and unregister tokens are held weakly; held values strongly.
type FinalizationRegistry struct {
	Cleanup Value
	cells   []finalizationCell
}

type finalizationCell struct {
	target *Object
	held   Value
	token  *Object
}

// Register adds a cell; token may be nil.
func (r *FinalizationRegistry) Register(target *Object, held Value, token *Object) {
	r.cells = append(r.cells, finalizationCell{target: target, held: held, token: token})
}

// Unregister removes every cell registered with token.
func (r *FinalizationRegistry) Unregister(token *Object) bool {
	removed := false
	cells := r.cells[:0]
	for _, c := range r.cells {
		if c.token == token {
			removed = true
			continue
		}
		cells = append(cells, c)
	}
	clear(r.cells[len(cells):])
	r.cells = cells
	return removed
}

// Len returns the number of registered cells.
func (r *FinalizationRegistry) Len() int { return len(r.cells) }

func (r *FinalizationRegistry) trace(m *Marker) {
	m.Value(r.Cleanup)
	for _, c := range r.cells {
		m.Value(c.held)
	}
}

// sweepCells drops cells whose target died and schedules their cleanup
// callbacks.
func (vm *VM) sweepCells(r *FinalizationRegistry) {
	cells := r.cells[:0]
	for _, c := range r.cells {
		if !c.target.marked {
			vm.EnqueueCallback(r.Cleanup, c.held)
			continue
		}
		if c.token != nil && !c.token.marked {
			c.token = nil
		}
		cells = append(cells, c)
	}
	clear(r.cells[len(cells):])
	r.cells = cells
}

// KeepDuringJob keeps o alive until ClearKeptObjects, as WeakRef
// creation and deref require.
func (vm *VM) KeepDuringJob(o *Object) { vm.kept = append(vm.kept, o) }

// ClearKeptObjects ends the current synchronous run for weak references.
func (vm *VM) ClearKeptObjects() {
	clear(vm.kept)
	vm.kept = vm.kept[:0]
}
