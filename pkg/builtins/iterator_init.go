package builtins

import (
	"math"

	"ecmavm/pkg/vm"
)

// IteratorInitializer installs %IteratorPrototype%, %AsyncIteratorPrototype%
// and the Iterator constructor with its helper methods.
type IteratorInitializer struct{}

func (i *IteratorInitializer) Name() string {
	return "Iterator"
}

func (i *IteratorInitializer) Priority() int {
	return PriorityIterator
}

func (i *IteratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	iterProto := machine.NewObject()
	symbolMethod(machine, iterProto, vm.SymIterator, 0, func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return this, nil
	})
	in.IteratorPrototype = iterProto

	asyncIterProto := machine.NewObject()
	symbolMethod(machine, asyncIterProto, vm.SymAsyncIterator, 0, func(_ *vm.VM, this vm.Value, _ []vm.Value) (vm.Value, error) {
		return this, nil
	})
	in.AsyncIteratorPrototype = asyncIterProto

	var iteratorCtor *vm.Object
	iteratorCtor = machine.NewNativeConstructor("Iterator", 0, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			if newTarget == iteratorCtor {
				return vm.Undefined, machine.NewTypeError("Abstract class Iterator not directly constructable")
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.IteratorPrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewObjectWithProto(proto)), nil
		})
	linkConstructor(iteratorCtor, iterProto)
	toStringTag(iterProto, "Iterator")

	helperProto := machine.NewObjectWithProto(iterProto)
	toStringTag(helperProto, "Iterator Helper")
	method(machine, helperProto, "next", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		h, err := helperOf(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		return h.next(machine)
	})
	method(machine, helperProto, "return", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		h, err := helperOf(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		if h.running {
			return vm.Undefined, machine.NewTypeError("Generator is already running")
		}
		if !h.done {
			h.done = true
			if err := machine.IteratorClose(h.source, nil); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
	})
	ctx.Realm.SetIntrinsic("IteratorHelperPrototype", helperProto)

	wrapProto := machine.NewObjectWithProto(iterProto)
	method(machine, wrapProto, "next", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		r, err := wrappedOf(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		return machine.Call(r.Next, r.Iterator, nil)
	})
	method(machine, wrapProto, "return", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		r, err := wrappedOf(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		ret, err := machine.GetMethod(r.Iterator, vm.StringKey("return"))
		if err != nil {
			return vm.Undefined, err
		}
		if ret.IsUndefined() {
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		return machine.Call(ret, r.Iterator, nil)
	})

	method(machine, iteratorCtor, "from", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o := arg(args, 0)
		var rec *vm.IteratorRecord
		if o.IsString() {
			r, err := machine.GetIterator(o)
			if err != nil {
				return vm.Undefined, err
			}
			rec = r
		} else {
			if !o.IsObject() {
				return vm.Undefined, machine.NewTypeError("Iterator.from called on non-object")
			}
			m, err := machine.GetMethod(o, vm.SymbolKey(vm.SymIterator))
			if err != nil {
				return vm.Undefined, err
			}
			if m.IsUndefined() {
				next, err := machine.GetV(o, vm.StringKey("next"))
				if err != nil {
					return vm.Undefined, err
				}
				rec = &vm.IteratorRecord{Iterator: o, Next: next}
			} else {
				r, err := machine.GetIteratorFromMethod(o, m)
				if err != nil {
					return vm.Undefined, err
				}
				rec = r
			}
		}
		ok, err := machine.OrdinaryHasInstance(vm.ObjectValue(iteratorCtor), rec.Iterator)
		if err != nil {
			return vm.Undefined, err
		}
		if ok {
			return rec.Iterator, nil
		}
		return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassIterator, wrapProto, rec)), nil
	})

	i.initHelpers(machine, iterProto, helperProto)

	return ctx.DefineGlobal("Iterator", vm.ObjectValue(iteratorCtor))
}

func wrappedOf(machine *vm.VM, this vm.Value) (*vm.IteratorRecord, error) {
	if o := this.AsObject(); o != nil {
		if r, ok := o.Internal.(*vm.IteratorRecord); ok {
			return r, nil
		}
	}
	return nil, machine.NewTypeError("Method called on incompatible receiver %s", machine.ToDisplayString(this))
}

// iteratorHelper is the state of the lazy iterators returned by map,
// filter, take, drop and flatMap.
type iteratorHelper struct {
	source  *vm.IteratorRecord
	fn      vm.Value
	inner   *vm.IteratorRecord // flatMap only
	counter int64
	limit   float64
	step    func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error)
	done    bool
	running bool
}

func (h *iteratorHelper) Trace(m *vm.Marker) {
	h.source.Trace(m)
	m.Value(h.fn)
	if h.inner != nil {
		h.inner.Trace(m)
	}
}

func helperOf(machine *vm.VM, this vm.Value) (*iteratorHelper, error) {
	if o := this.AsObject(); o != nil {
		if h, ok := o.Internal.(*iteratorHelper); ok {
			return h, nil
		}
	}
	return nil, machine.NewTypeError("Iterator helper method called on incompatible receiver %s", machine.ToDisplayString(this))
}

func (h *iteratorHelper) next(machine *vm.VM) (vm.Value, error) {
	if h.running {
		return vm.Undefined, machine.NewTypeError("Generator is already running")
	}
	if h.done {
		return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
	}
	h.running = true
	v, done, err := h.step(machine, h)
	h.running = false
	if err != nil || done {
		h.done = true
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
	}
	return vm.ObjectValue(machine.CreateIterResult(v, false)), nil
}

// getIteratorDirect implements GetIteratorDirect.
func getIteratorDirect(machine *vm.VM, this vm.Value) (*vm.IteratorRecord, error) {
	if !this.IsObject() {
		return nil, machine.NewTypeError("Iterator helper called on non-object")
	}
	next, err := machine.GetV(this, vm.StringKey("next"))
	if err != nil {
		return nil, err
	}
	return &vm.IteratorRecord{Iterator: this, Next: next}, nil
}

func (i *IteratorInitializer) initHelpers(machine *vm.VM, iterProto, helperProto *vm.Object) {
	// lazy returns a helper over this whose values come from step.
	lazy := func(name string, step func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error), setup func(machine *vm.VM, h *iteratorHelper, args []vm.Value) error) {
		method(machine, iterProto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if !this.IsObject() {
				return vm.Undefined, machine.NewTypeError("Iterator.prototype.%s called on non-object", name)
			}
			h := &iteratorHelper{source: &vm.IteratorRecord{Iterator: this, Next: vm.Undefined}, fn: vm.Undefined, step: step}
			if err := setup(machine, h, args); err != nil {
				return vm.Undefined, machine.IteratorClose(h.source, err)
			}
			next, err := machine.GetV(this, vm.StringKey("next"))
			if err != nil {
				return vm.Undefined, err
			}
			h.source.Next = next
			return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassIterator, helperProto, h)), nil
		})
	}
	withCallback := func(machine *vm.VM, h *iteratorHelper, args []vm.Value) error {
		fn, err := callbackArg(machine, args, 0)
		h.fn = fn
		return err
	}
	withLimit := func(machine *vm.VM, h *iteratorHelper, args []vm.Value) error {
		n, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return err
		}
		if math.IsNaN(n) {
			return machine.NewRangeError("%s must be positive", machine.ToDisplayString(arg(args, 0)))
		}
		n = vm.IntegerOrInfinity(n)
		if n < 0 {
			return machine.NewRangeError("%s must be positive", machine.ToDisplayString(arg(args, 0)))
		}
		h.limit = n
		return nil
	}
	// call runs the callback, closing the source when it throws.
	call := func(machine *vm.VM, h *iteratorHelper, v vm.Value) (vm.Value, error) {
		r, err := machine.Call(h.fn, vm.Undefined, []vm.Value{v, vm.NumberValue(float64(h.counter))})
		h.counter++
		if err != nil {
			return vm.Undefined, machine.IteratorClose(h.source, err)
		}
		return r, nil
	}

	lazy("map", func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error) {
		v, done, err := machine.Step(h.source)
		if err != nil || done {
			return vm.Undefined, true, err
		}
		r, err := call(machine, h, v)
		return r, false, err
	}, withCallback)
	lazy("filter", func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error) {
		for {
			v, done, err := machine.Step(h.source)
			if err != nil || done {
				return vm.Undefined, true, err
			}
			keep, err := call(machine, h, v)
			if err != nil {
				return vm.Undefined, false, err
			}
			if vm.ToBoolean(keep) {
				return v, false, nil
			}
		}
	}, withCallback)
	lazy("take", func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error) {
		if h.limit <= float64(h.counter) {
			return vm.Undefined, true, machine.IteratorClose(h.source, nil)
		}
		h.counter++
		v, done, err := machine.Step(h.source)
		return v, done, err
	}, withLimit)
	lazy("drop", func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error) {
		for float64(h.counter) < h.limit {
			h.counter++
			_, done, err := machine.Step(h.source)
			if err != nil || done {
				return vm.Undefined, true, err
			}
		}
		return machine.Step(h.source)
	}, withLimit)
	lazy("flatMap", func(machine *vm.VM, h *iteratorHelper) (vm.Value, bool, error) {
		for {
			if h.inner != nil {
				v, done, err := machine.Step(h.inner)
				if err != nil {
					return vm.Undefined, false, machine.IteratorClose(h.source, err)
				}
				if !done {
					return v, false, nil
				}
				h.inner = nil
			}
			v, done, err := machine.Step(h.source)
			if err != nil || done {
				return vm.Undefined, true, err
			}
			mapped, err := call(machine, h, v)
			if err != nil {
				return vm.Undefined, false, err
			}
			inner, err := getIteratorFlattenable(machine, mapped)
			if err != nil {
				return vm.Undefined, false, machine.IteratorClose(h.source, err)
			}
			h.inner = inner
		}
	}, withCallback)

	// eager consumes this with fn; fn returns false to stop and close.
	eager := func(name string, length int, body func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error)) {
		method(machine, iterProto, name, length, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if !this.IsObject() {
				return vm.Undefined, machine.NewTypeError("Iterator.prototype.%s called on non-object", name)
			}
			if name != "toArray" {
				if !arg(args, 0).IsCallable() {
					return vm.Undefined, machine.IteratorClose(&vm.IteratorRecord{Iterator: this}, machine.NewTypeError("%s is not a function", machine.ToDisplayString(arg(args, 0))))
				}
			}
			rec, err := getIteratorDirect(machine, this)
			if err != nil {
				return vm.Undefined, err
			}
			return body(machine, rec, args)
		})
	}
	// each steps rec, calling fn with value and counter until it returns false.
	each := func(machine *vm.VM, rec *vm.IteratorRecord, fn func(v vm.Value, k int) (bool, error)) error {
		for k := 0; ; k++ {
			v, done, err := machine.Step(rec)
			if err != nil || done {
				return err
			}
			more, err := fn(v, k)
			if err != nil {
				return machine.IteratorClose(rec, err)
			}
			if !more {
				return machine.IteratorClose(rec, nil)
			}
		}
	}
	eager("toArray", 0, func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		var out []vm.Value
		err := each(machine, rec, func(v vm.Value, _ int) (bool, error) {
			out = append(out, v)
			return true, nil
		})
		return vm.ObjectValue(machine.NewArray(out)), err
	})
	eager("forEach", 1, func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		return vm.Undefined, each(machine, rec, func(v vm.Value, k int) (bool, error) {
			_, err := machine.Call(args[0], vm.Undefined, []vm.Value{v, vm.IntValue(k)})
			return true, err
		})
	})
	eager("some", 1, func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		found := false
		err := each(machine, rec, func(v vm.Value, k int) (bool, error) {
			r, err := machine.Call(args[0], vm.Undefined, []vm.Value{v, vm.IntValue(k)})
			found = err == nil && vm.ToBoolean(r)
			return !found, err
		})
		return vm.BoolValue(found), err
	})
	eager("every", 1, func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		all := true
		err := each(machine, rec, func(v vm.Value, k int) (bool, error) {
			r, err := machine.Call(args[0], vm.Undefined, []vm.Value{v, vm.IntValue(k)})
			all = err != nil || vm.ToBoolean(r)
			return all, err
		})
		return vm.BoolValue(all), err
	})
	eager("find", 1, func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		result := vm.Undefined
		err := each(machine, rec, func(v vm.Value, k int) (bool, error) {
			r, err := machine.Call(args[0], vm.Undefined, []vm.Value{v, vm.IntValue(k)})
			if err == nil && vm.ToBoolean(r) {
				result = v
				return false, nil
			}
			return true, err
		})
		return result, err
	})
	eager("reduce", 1, func(machine *vm.VM, rec *vm.IteratorRecord, args []vm.Value) (vm.Value, error) {
		acc := arg(args, 1)
		start := 0
		if len(args) < 2 {
			v, done, err := machine.Step(rec)
			if err != nil {
				return vm.Undefined, err
			}
			if done {
				return vm.Undefined, machine.NewTypeError("Reduce of empty iterator with no initial value")
			}
			acc, start = v, 1
		}
		err := each(machine, rec, func(v vm.Value, k int) (bool, error) {
			r, err := machine.Call(args[0], vm.Undefined, []vm.Value{acc, v, vm.IntValue(k + start)})
			acc = r
			return true, err
		})
		return acc, err
	})
}

// getIteratorFlattenable implements GetIteratorFlattenable with
// reject-primitives.
func getIteratorFlattenable(machine *vm.VM, v vm.Value) (*vm.IteratorRecord, error) {
	if !v.IsObject() {
		return nil, machine.NewTypeError("%s is not an object", machine.ToDisplayString(v))
	}
	m, err := machine.GetMethod(v, vm.SymbolKey(vm.SymIterator))
	if err != nil {
		return nil, err
	}
	if m.IsUndefined() {
		return getIteratorDirect(machine, v)
	}
	return machine.GetIteratorFromMethod(v, m)
}
