package vm

// IteratorRecord is an iterator with its cached next method.
type IteratorRecord struct {
	Iterator Value
	Next     Value
	Done     bool
}

func (r *IteratorRecord) Trace(m *Marker) {
	m.Value(r.Iterator)
	m.Value(r.Next)
}

func iteratorRecordOf(v Value) *IteratorRecord {
	r, _ := v.internalRef().(*IteratorRecord)
	return r
}

// GetIterator implements GetIterator(obj, sync).
func (vm *VM) GetIterator(v Value) (*IteratorRecord, error) {
	method, err := vm.GetMethod(v, SymbolKey(SymIterator))
	if err != nil {
		return nil, err
	}
	if method.IsUndefined() {
		return nil, vm.NewTypeError("%s is not iterable", describeForError(v))
	}
	return vm.GetIteratorFromMethod(v, method)
}

// GetIteratorFromMethod calls method on v and records the iterator.
func (vm *VM) GetIteratorFromMethod(v, method Value) (*IteratorRecord, error) {
	it, err := vm.Call(method, v, nil)
	if err != nil {
		return nil, err
	}
	if !it.IsObject() {
		return nil, vm.NewTypeError("Result of the Symbol.iterator method is not an object")
	}
	next, err := vm.GetV(it, StringKey("next"))
	if err != nil {
		return nil, err
	}
	return &IteratorRecord{Iterator: it, Next: next}, nil
}

// GetAsyncIterator implements GetIterator(obj, async), wrapping sync
// iterators with an async-from-sync iterator.
func (vm *VM) GetAsyncIterator(v Value) (*IteratorRecord, error) {
	method, err := vm.GetMethod(v, SymbolKey(SymAsyncIterator))
	if err != nil {
		return nil, err
	}
	if method.IsUndefined() {
		syncMethod, err := vm.GetMethod(v, SymbolKey(SymIterator))
		if err != nil {
			return nil, err
		}
		if syncMethod.IsUndefined() {
			return nil, vm.NewTypeError("%s is not async iterable", describeForError(v))
		}
		sync, err := vm.GetIteratorFromMethod(v, syncMethod)
		if err != nil {
			return nil, err
		}
		return vm.createAsyncFromSyncIterator(sync), nil
	}
	it, err := vm.Call(method, v, nil)
	if err != nil {
		return nil, err
	}
	if !it.IsObject() {
		return nil, vm.NewTypeError("Result of the Symbol.asyncIterator method is not an object")
	}
	next, err := vm.GetV(it, StringKey("next"))
	if err != nil {
		return nil, err
	}
	return &IteratorRecord{Iterator: it, Next: next}, nil
}

// NextResult calls next and checks that the result is an object.
func (vm *VM) NextResult(r *IteratorRecord, args ...Value) (Value, error) {
	res, err := vm.Call(r.Next, r.Iterator, args)
	if err != nil {
		r.Done = true
		return Undefined, err
	}
	if !res.IsObject() {
		r.Done = true
		return Undefined, vm.NewTypeError("Iterator result %s is not an object", vm.ToDisplayString(res))
	}
	return res, nil
}

// IteratorComplete reads the done flag of an iterator result.
func (vm *VM) IteratorComplete(res Value) (bool, error) {
	d, err := vm.GetV(res, StringKey("done"))
	if err != nil {
		return false, err
	}
	return ToBoolean(d), nil
}

// IteratorValue reads the value of an iterator result.
func (vm *VM) IteratorValue(res Value) (Value, error) {
	return vm.GetV(res, StringKey("value"))
}

// Step implements IteratorStepValue: it returns the next value, or
// done=true once the iterator is exhausted. Any error marks the record done.
func (vm *VM) Step(r *IteratorRecord) (Value, bool, error) {
	res, err := vm.NextResult(r)
	if err != nil {
		r.Done = true
		return Undefined, true, err
	}
	done, err := vm.IteratorComplete(res)
	if err != nil {
		r.Done = true
		return Undefined, true, err
	}
	if done {
		r.Done = true
		return Undefined, true, nil
	}
	v, err := vm.IteratorValue(res)
	if err != nil {
		r.Done = true
	}
	return v, false, err
}

// IteratorClose implements IteratorClose. A non-nil completion error is
// returned unchanged; errors of return() then are discarded.
func (vm *VM) IteratorClose(r *IteratorRecord, completion error) error {
	if completion != nil {
		if _, ok := AsException(completion); ok {
			if err := vm.closeAbrupt(r); err != nil {
				return err
			}
		}
		return completion
	}
	ret, err := vm.GetMethod(r.Iterator, StringKey("return"))
	if err != nil {
		return err
	}
	if ret.IsUndefined() {
		return nil
	}
	res, err := vm.Call(ret, r.Iterator, nil)
	if err != nil {
		return err
	}
	if !res.IsObject() {
		return vm.NewTypeError("Iterator result %s is not an object", vm.ToDisplayString(res))
	}
	return nil
}

// closeAbrupt closes r for a throw completion; the original exception is
// kept, so failures of return() are dropped.
func (vm *VM) closeAbrupt(r *IteratorRecord) error {
	ret, err := vm.GetMethod(r.Iterator, StringKey("return"))
	if err != nil {
		return ignoreException(err)
	}
	if ret.IsUndefined() {
		return nil
	}
	_, err = vm.Call(ret, r.Iterator, nil)
	return ignoreException(err)
}

// Iterate calls fn for each value produced by iterating v. The iterator is
// closed when fn stops early or fails.
func (vm *VM) Iterate(v Value, fn func(Value) (bool, error)) error {
	if o := v.AsObject(); o != nil && vm.plainArrayIteration(o) {
		for i := uint32(0); i < o.length; i++ {
			e := Undefined
			if int(i) < len(o.elements) && !o.elements[i].IsHole() {
				e = o.elements[i]
			} else if !o.sparse {
				ev, err := vm.Get(o, IndexKey(i), v)
				if err != nil {
					return err
				}
				e = ev
			}
			more, err := fn(e)
			if err != nil || !more {
				return err
			}
			if o.sparse {
				return vm.iterateGeneric(v, fn, i+1)
			}
		}
		return nil
	}
	return vm.iterateGeneric(v, fn, 0)
}

func (vm *VM) iterateGeneric(v Value, fn func(Value) (bool, error), skip uint32) error {
	r, err := vm.GetIterator(v)
	if err != nil {
		return err
	}
	for i := uint32(0); ; i++ {
		e, done, err := vm.Step(r)
		if err != nil || done {
			return err
		}
		if i < skip {
			continue
		}
		more, err := fn(e)
		if err != nil {
			return vm.IteratorClose(r, err)
		}
		if !more {
			return vm.IteratorClose(r, nil)
		}
	}
}

// plainArrayIteration reports whether iterating o is unobservable, so
// elements can be read directly.
func (vm *VM) plainArrayIteration(o *Object) bool {
	if o.class != ClassArray || o.sparse {
		return false
	}
	in := &vm.realm.Intrinsics
	if in.ArrayProtoValues == nil || in.ArrayIteratorPrototype == nil || o.proto != in.ArrayPrototype {
		return false
	}
	if o.lookup(SymbolKey(SymIterator)) != nil {
		return false
	}
	p := in.ArrayPrototype.lookup(SymbolKey(SymIterator))
	if p == nil || p.IsAccessor() || p.Value.AsObject() != in.ArrayProtoValues {
		return false
	}
	next := in.ArrayIteratorPrototype.lookup(StringKey("next"))
	return next != nil && !next.IsAccessor() && next.Value.AsObject() == vm.realm.Intrinsic("ArrayIteratorNext")
}

// IterableToList collects the values of an iterable.
func (vm *VM) IterableToList(v Value) ([]Value, error) {
	var out []Value
	err := vm.Iterate(v, func(e Value) (bool, error) {
		out = append(out, e)
		return true, nil
	})
	return out, err
}

// --- for-in ---

type forInIterator struct {
	obj     *Object
	keys    []PropertyKey
	pos     int
	visited map[string]bool
}

func (it *forInIterator) Trace(m *Marker) { m.Object(it.obj) }

func (vm *VM) newForInIterator(v Value) (*forInIterator, error) {
	it := &forInIterator{visited: make(map[string]bool)}
	if v.IsNullish() {
		return it, nil
	}
	o, err := vm.ToObject(v)
	if err != nil {
		return nil, err
	}
	it.obj = o
	it.keys = o.OwnKeys()
	return it, nil
}

// next returns the next enumerable string key not seen before.
func (it *forInIterator) next() (string, bool) {
	for it.obj != nil {
		for it.pos < len(it.keys) {
			k := it.keys[it.pos]
			it.pos++
			if k.IsSymbol() || it.visited[k.name] {
				continue
			}
			p, ok := it.obj.GetOwnProperty(k)
			if !ok {
				continue
			}
			it.visited[k.name] = true
			if p.Enumerable() {
				return k.name, true
			}
		}
		it.obj = it.obj.proto
		it.pos = 0
		if it.obj != nil {
			it.keys = it.obj.OwnKeys()
		}
	}
	return "", false
}

// --- async-from-sync iterators ---

type asyncFromSync struct {
	sync *IteratorRecord
}

func (a *asyncFromSync) Trace(m *Marker) { a.sync.Trace(m) }

func (vm *VM) createAsyncFromSyncIterator(sync *IteratorRecord) *IteratorRecord {
	o := vm.NewObjectOfClass(ClassIterator, vm.asyncFromSyncPrototype(), &asyncFromSync{sync: sync})
	next, _ := o.proto.GetOwnProperty(StringKey("next"))
	return &IteratorRecord{Iterator: ObjectValue(o), Next: next.Value}
}

func (vm *VM) asyncFromSyncPrototype() *Object {
	in := &vm.realm.Intrinsics
	if in.AsyncFromSyncIteratorProt != nil {
		return in.AsyncFromSyncIteratorProt
	}
	parent := in.AsyncIteratorPrototype
	if parent == nil {
		parent = in.ObjectPrototype
	}
	p := vm.allocObject(ClassObject, parent)
	for _, m := range []struct {
		name string
		mode int
	}{{"next", ResumeNext}, {"return", ResumeReturn}, {"throw", ResumeThrow}} {
		mode := m.mode
		p.SetOwn(m.name, ObjectValue(vm.NewNativeFunction(m.name, 1, func(vm *VM, this Value, args []Value) (Value, error) {
			return vm.asyncFromSyncStep(this, mode, args)
		})), FlagsHidden)
	}
	in.AsyncFromSyncIteratorProt = p
	return p
}

func (vm *VM) asyncFromSyncStep(this Value, mode int, args []Value) (Value, error) {
	capability := vm.NewPromiseCapabilityIntrinsic()
	o := this.AsObject()
	st, _ := o.Internal.(*asyncFromSync)
	sync := st.sync
	reject := func(err error) (Value, error) {
		ex, ok := err.(*Exception)
		if !ok {
			return Undefined, err
		}
		_, err = vm.Call(capability.Reject, Undefined, []Value{ex.Value})
		return capability.Promise, err
	}
	var res Value
	var err error
	switch mode {
	case ResumeNext:
		res, err = vm.Call(sync.Next, sync.Iterator, args)
	default:
		name := "return"
		if mode == ResumeThrow {
			name = "throw"
		}
		var m Value
		m, err = vm.GetMethod(sync.Iterator, StringKey(name))
		if err != nil {
			return reject(err)
		}
		if m.IsUndefined() {
			if mode == ResumeReturn {
				_, err = vm.Call(capability.Resolve, Undefined, []Value{ObjectValue(vm.CreateIterResult(argAt(args, 0), true))})
				return capability.Promise, err
			}
			sync.Done = true
			if cerr := vm.IteratorClose(sync, nil); cerr != nil {
				return reject(cerr)
			}
			return reject(vm.NewTypeError("The iterator does not provide a 'throw' method"))
		}
		res, err = vm.Call(m, sync.Iterator, args)
	}
	if err != nil {
		return reject(err)
	}
	if !res.IsObject() {
		return reject(vm.NewTypeError("Iterator result %s is not an object", vm.ToDisplayString(res)))
	}
	done, err := vm.IteratorComplete(res)
	if err != nil {
		return reject(err)
	}
	value, err := vm.IteratorValue(res)
	if err != nil {
		return reject(err)
	}
	wrapper, err := vm.PromiseResolve(vm.realm.Intrinsics.Promise, value)
	if err != nil {
		if !done && mode != ResumeReturn {
			err = vm.IteratorClose(sync, err)
		}
		return reject(err)
	}
	onFulfilled := vm.NativeClosure("", 1, nil, func(vm *VM, _ Value, a []Value) (Value, error) {
		return ObjectValue(vm.CreateIterResult(argAt(a, 0), done)), nil
	})
	onRejected := Undefined
	if !done && mode != ResumeReturn {
		iter := sync.Iterator
		onRejected = ObjectValue(vm.NativeClosure("", 1, []Value{iter}, func(vm *VM, _ Value, a []Value) (Value, error) {
			return Undefined, vm.IteratorClose(&IteratorRecord{Iterator: iter}, &Exception{Value: argAt(a, 0)})
		}))
	}
	vm.PerformPromiseThen(wrapper, ObjectValue(onFulfilled), onRejected, capability)
	return capability.Promise, nil
}
