package builtins

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

const maxSafeLength = 1<<53 - 1

// ArrayInitializer implements Array, Array.prototype and %ArrayIteratorPrototype%.
type ArrayInitializer struct{}

func (a *ArrayInitializer) Name() string {
	return "Array"
}

func (a *ArrayInitializer) Priority() int {
	return PriorityArray
}

func (a *ArrayInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	arrayProto := machine.NewArrayWithProto(in.ObjectPrototype, 0)
	in.ArrayPrototype = arrayProto

	arrayCtor := machine.NewNativeConstructor("Array", 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return constructArray(machine, args, nil)
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return constructArray(machine, args, newTarget)
		})
	linkConstructor(arrayCtor, arrayProto)
	speciesGetter(machine, arrayCtor)
	in.Array = arrayCtor

	method(machine, arrayCtor, "isArray", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o := arg(args, 0).AsObject()
		return vm.BoolValue(o != nil && o.Class() == vm.ClassArray), nil
	})
	method(machine, arrayCtor, "of", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var out *vm.Object
		if this.IsConstructor() {
			v, err := machine.Construct(this, []vm.Value{vm.IntValue(len(args))}, vm.Undefined)
			if err != nil {
				return vm.Undefined, err
			}
			out = v.AsObject()
		} else {
			out = machine.NewArrayWithProto(in.ArrayPrototype, 0)
		}
		for i, v := range args {
			if err := machine.CreateDataPropertyOrThrow(out, vm.IndexKey(uint32(i)), v); err != nil {
				return vm.Undefined, err
			}
		}
		_, err := setOrThrow(machine, out, vm.StringKey("length"), vm.IntValue(len(args)))
		return vm.ObjectValue(out), err
	})
	method(machine, arrayCtor, "from", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return arrayFrom(machine, this, args)
	})

	a.initPrototype(machine, arrayProto)
	a.initIterator(ctx, arrayProto)

	return ctx.DefineGlobal("Array", vm.ObjectValue(arrayCtor))
}

// constructArray implements the Array constructor.
func constructArray(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
	proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.ArrayPrototype })
	if err != nil {
		return vm.Undefined, err
	}
	if len(args) == 1 {
		if n := args[0]; n.IsNumber() {
			l := vm.ToUint32(n.AsNumber())
			if float64(l) != n.AsNumber() {
				return vm.Undefined, machine.NewRangeError("Invalid array length")
			}
			return vm.ObjectValue(machine.NewArrayWithProto(proto, l)), nil
		}
	}
	arr := machine.NewArrayWithProto(proto, 0)
	for _, v := range args {
		arr.Push(v)
	}
	return vm.ObjectValue(arr), nil
}

func arrayFrom(machine *vm.VM, c vm.Value, args []vm.Value) (vm.Value, error) {
	items, mapFn, thisArg := arg(args, 0), arg(args, 1), arg(args, 2)
	if !mapFn.IsUndefined() && !mapFn.IsCallable() {
		return vm.Undefined, machine.NewTypeError("%s is not a function", machine.ToDisplayString(mapFn))
	}
	create := func(length []vm.Value) (*vm.Object, error) {
		if c.IsConstructor() {
			v, err := machine.Construct(c, length, vm.Undefined)
			if err != nil {
				return nil, err
			}
			return v.AsObject(), nil
		}
		n := 0.0
		if len(length) > 0 {
			n = length[0].AsNumber()
		}
		return arrayCreate(machine, int64(n), nil)
	}
	mapped := func(v vm.Value, k int64) (vm.Value, error) {
		if mapFn.IsUndefined() {
			return v, nil
		}
		return machine.Call(mapFn, thisArg, []vm.Value{v, vm.NumberValue(float64(k))})
	}

	usingIterator, err := machine.GetMethod(items, vm.SymbolKey(vm.SymIterator))
	if err != nil {
		return vm.Undefined, err
	}
	if !usingIterator.IsUndefined() {
		out, err := create(nil)
		if err != nil {
			return vm.Undefined, err
		}
		rec, err := machine.GetIteratorFromMethod(items, usingIterator)
		if err != nil {
			return vm.Undefined, err
		}
		k := int64(0)
		for {
			v, done, err := machine.Step(rec)
			if err != nil {
				return vm.Undefined, err
			}
			if done {
				_, err := setOrThrow(machine, out, vm.StringKey("length"), vm.NumberValue(float64(k)))
				return vm.ObjectValue(out), err
			}
			mv, err := mapped(v, k)
			if err == nil {
				err = machine.CreateDataPropertyOrThrow(out, indexKey(k), mv)
			}
			if err != nil {
				return vm.Undefined, machine.IteratorClose(rec, err)
			}
			k++
		}
	}

	src, err := machine.ToObject(items)
	if err != nil {
		return vm.Undefined, err
	}
	n, err := machine.LengthOfArrayLike(src)
	if err != nil {
		return vm.Undefined, err
	}
	out, err := create([]vm.Value{vm.NumberValue(float64(n))})
	if err != nil {
		return vm.Undefined, err
	}
	for k := int64(0); k < n; k++ {
		v, err := getIndex(machine, src, k)
		if err != nil {
			return vm.Undefined, err
		}
		mv, err := mapped(v, k)
		if err != nil {
			return vm.Undefined, err
		}
		if err := machine.CreateDataPropertyOrThrow(out, indexKey(k), mv); err != nil {
			return vm.Undefined, err
		}
	}
	_, err = setOrThrow(machine, out, vm.StringKey("length"), vm.NumberValue(float64(n)))
	return vm.ObjectValue(out), err
}

// --- array-like helpers ---

func indexKey(i int64) vm.PropertyKey {
	if i >= 0 && i < math.MaxUint32 {
		return vm.IndexKey(uint32(i))
	}
	return vm.StringKey(strconv.FormatInt(i, 10))
}

func getIndex(machine *vm.VM, o *vm.Object, i int64) (vm.Value, error) {
	return machine.Get(o, indexKey(i), vm.ObjectValue(o))
}

func setIndex(machine *vm.VM, o *vm.Object, i int64, v vm.Value) error {
	_, err := setOrThrow(machine, o, indexKey(i), v)
	return err
}

func setLength(machine *vm.VM, o *vm.Object, n int64) error {
	_, err := setOrThrow(machine, o, vm.StringKey("length"), vm.NumberValue(float64(n)))
	return err
}

// arrayCreate implements ArrayCreate.
func arrayCreate(machine *vm.VM, length int64, proto *vm.Object) (*vm.Object, error) {
	if length > math.MaxUint32 {
		return nil, machine.NewRangeError("Invalid array length")
	}
	if proto == nil {
		proto = machine.CurrentRealm().Intrinsics.ArrayPrototype
	}
	return machine.NewArrayWithProto(proto, uint32(length)), nil
}

// arraySpeciesCreate implements ArraySpeciesCreate.
func arraySpeciesCreate(machine *vm.VM, original *vm.Object, length int64) (*vm.Object, error) {
	if original.Class() != vm.ClassArray {
		return arrayCreate(machine, length, nil)
	}
	c, err := machine.GetStr(original, "constructor")
	if err != nil {
		return nil, err
	}
	if co := c.AsObject(); co != nil && co.IsConstructor() {
		if r := machine.FunctionRealm(co); r != machine.CurrentRealm() && co == r.Intrinsics.Array {
			c = vm.Undefined
		}
	}
	if co := c.AsObject(); co != nil {
		c, err = machine.Get(co, vm.SymbolKey(vm.SymSpecies), c)
		if err != nil {
			return nil, err
		}
		if c.IsNull() {
			c = vm.Undefined
		}
	}
	if c.IsUndefined() {
		return arrayCreate(machine, length, nil)
	}
	if !c.IsConstructor() {
		return nil, machine.NewTypeError("object.constructor[Symbol.species] is not a constructor")
	}
	v, err := machine.Construct(c, []vm.Value{vm.NumberValue(float64(length))}, vm.Undefined)
	if err != nil {
		return nil, err
	}
	return v.AsObject(), nil
}

// thisArrayLike converts this to an object and reads its length.
func thisArrayLike(machine *vm.VM, this vm.Value) (*vm.Object, int64, error) {
	o, err := machine.ToObject(this)
	if err != nil {
		return nil, 0, err
	}
	n, err := machine.LengthOfArrayLike(o)
	return o, n, err
}

// relativeArg resolves args[i] as a relative index, def when undefined.
func relativeArg(machine *vm.VM, args []vm.Value, i int, length, def int64) (int64, error) {
	v := arg(args, i)
	if v.IsUndefined() {
		return def, nil
	}
	rel, err := machine.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	return vm.RelativeIndex(rel, length), nil
}

func isConcatSpreadable(machine *vm.VM, v vm.Value) (bool, error) {
	o := v.AsObject()
	if o == nil {
		return false, nil
	}
	s, err := machine.Get(o, vm.SymbolKey(vm.SymIsConcatSpreadable), v)
	if err != nil {
		return false, err
	}
	if !s.IsUndefined() {
		return vm.ToBoolean(s), nil
	}
	return o.Class() == vm.ClassArray, nil
}

// sortCompare implements SortCompare for Array.prototype.sort.
func sortCompare(machine *vm.VM, x, y, comparefn vm.Value) (int, error) {
	if !comparefn.IsUndefined() {
		r, err := machine.Call(comparefn, vm.Undefined, []vm.Value{x, y})
		if err != nil {
			return 0, err
		}
		n, err := machine.ToNumber(r)
		if err != nil || math.IsNaN(n) {
			return 0, err
		}
		switch {
		case n < 0:
			return -1, nil
		case n > 0:
			return 1, nil
		}
		return 0, nil
	}
	xs, err := machine.ToString(x)
	if err != nil {
		return 0, err
	}
	ys, err := machine.ToString(y)
	if err != nil {
		return 0, err
	}
	return source.CompareUnits(xs, ys), nil
}

// sortValues sorts items stably, moving undefined values to the end. The
// first comparator error aborts the sort.
func sortValues(machine *vm.VM, items []vm.Value, comparefn vm.Value) ([]vm.Value, error) {
	defined := items[:0:0]
	undefined := 0
	for _, v := range items {
		if v.IsUndefined() {
			undefined++
		} else {
			defined = append(defined, v)
		}
	}
	var firstErr error
	slices.SortStableFunc(defined, func(a, b vm.Value) int {
		if firstErr != nil {
			return 0
		}
		c, err := sortCompare(machine, a, b, comparefn)
		if err != nil {
			firstErr = err
		}
		return c
	})
	for ; undefined > 0; undefined-- {
		defined = append(defined, vm.Undefined)
	}
	return defined, firstErr
}

func (a *ArrayInitializer) initPrototype(machine *vm.VM, proto *vm.Object) {
	method(machine, proto, "at", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		rel, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		k := rel
		if rel < 0 {
			k = float64(n) + rel
		}
		if k < 0 || k >= float64(n) {
			return vm.Undefined, nil
		}
		return getIndex(machine, o, int64(k))
	})
	method(machine, proto, "concat", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		out, err := arraySpeciesCreate(machine, o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		n := int64(0)
		items := append([]vm.Value{vm.ObjectValue(o)}, args...)
		for _, e := range items {
			spreadable, err := isConcatSpreadable(machine, e)
			if err != nil {
				return vm.Undefined, err
			}
			if !spreadable {
				if n >= maxSafeLength {
					return vm.Undefined, machine.NewTypeError("Invalid array length")
				}
				if err := machine.CreateDataPropertyOrThrow(out, indexKey(n), e); err != nil {
					return vm.Undefined, err
				}
				n++
				continue
			}
			eo := e.AsObject()
			l, err := machine.LengthOfArrayLike(eo)
			if err != nil {
				return vm.Undefined, err
			}
			if n+l > maxSafeLength {
				return vm.Undefined, machine.NewTypeError("Invalid array length")
			}
			for k := int64(0); k < l; k, n = k+1, n+1 {
				if !eo.HasProperty(indexKey(k)) {
					continue
				}
				v, err := getIndex(machine, eo, k)
				if err != nil {
					return vm.Undefined, err
				}
				if err := machine.CreateDataPropertyOrThrow(out, indexKey(n), v); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.ObjectValue(out), setLength(machine, out, n)
	})
	method(machine, proto, "copyWithin", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		to, err := relativeArg(machine, args, 0, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		from, err := relativeArg(machine, args, 1, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeArg(machine, args, 2, n, n)
		if err != nil {
			return vm.Undefined, err
		}
		count := min(final-from, n-to)
		dir := int64(1)
		if from < to && to < from+count {
			dir = -1
			from, to = from+count-1, to+count-1
		}
		for ; count > 0; count-- {
			if o.HasProperty(indexKey(from)) {
				v, err := getIndex(machine, o, from)
				if err != nil {
					return vm.Undefined, err
				}
				if err := setIndex(machine, o, to, v); err != nil {
					return vm.Undefined, err
				}
			} else if err := machine.DeletePropertyOrThrow(o, indexKey(to)); err != nil {
				return vm.Undefined, err
			}
			from, to = from+dir, to+dir
		}
		return vm.ObjectValue(o), nil
	})
	method(machine, proto, "fill", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		k, err := relativeArg(machine, args, 1, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeArg(machine, args, 2, n, n)
		if err != nil {
			return vm.Undefined, err
		}
		for ; k < final; k++ {
			if err := setIndex(machine, o, k, arg(args, 0)); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(o), nil
	})

	// Callback iteration: every, some, forEach, map, filter
	type visit func(v vm.Value, k int64, result vm.Value) (stop bool, err error)
	iterate := func(name string, create func(machine *vm.VM, o *vm.Object, n int64) (*vm.Object, error), body func(machine *vm.VM, out *vm.Object) visit, finish func(out *vm.Object, stopped bool) vm.Value) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, n, err := thisArrayLike(machine, this)
			if err != nil {
				return vm.Undefined, err
			}
			fn, err := callbackArg(machine, args, 0)
			if err != nil {
				return vm.Undefined, err
			}
			var out *vm.Object
			if create != nil {
				if out, err = create(machine, o, n); err != nil {
					return vm.Undefined, err
				}
			}
			step := body(machine, out)
			for k := int64(0); k < n; k++ {
				if !o.HasProperty(indexKey(k)) {
					continue
				}
				v, err := getIndex(machine, o, k)
				if err != nil {
					return vm.Undefined, err
				}
				r, err := machine.Call(fn, arg(args, 1), []vm.Value{v, vm.NumberValue(float64(k)), vm.ObjectValue(o)})
				if err != nil {
					return vm.Undefined, err
				}
				stop, err := step(v, k, r)
				if err != nil {
					return vm.Undefined, err
				}
				if stop {
					return finish(out, true), nil
				}
			}
			return finish(out, false), nil
		})
	}
	iterate("every", nil, func(*vm.VM, *vm.Object) visit {
		return func(_ vm.Value, _ int64, r vm.Value) (bool, error) { return !vm.ToBoolean(r), nil }
	}, func(_ *vm.Object, stopped bool) vm.Value { return vm.BoolValue(!stopped) })
	iterate("some", nil, func(*vm.VM, *vm.Object) visit {
		return func(_ vm.Value, _ int64, r vm.Value) (bool, error) { return vm.ToBoolean(r), nil }
	}, func(_ *vm.Object, stopped bool) vm.Value { return vm.BoolValue(stopped) })
	iterate("forEach", nil, func(*vm.VM, *vm.Object) visit {
		return func(vm.Value, int64, vm.Value) (bool, error) { return false, nil }
	}, func(*vm.Object, bool) vm.Value { return vm.Undefined })
	iterate("map", arraySpeciesCreate, func(machine *vm.VM, out *vm.Object) visit {
		return func(_ vm.Value, k int64, r vm.Value) (bool, error) {
			return false, machine.CreateDataPropertyOrThrow(out, indexKey(k), r)
		}
	}, func(out *vm.Object, _ bool) vm.Value { return vm.ObjectValue(out) })
	iterate("filter", func(machine *vm.VM, o *vm.Object, _ int64) (*vm.Object, error) {
		return arraySpeciesCreate(machine, o, 0)
	}, func(machine *vm.VM, out *vm.Object) visit {
		to := int64(0)
		return func(v vm.Value, _ int64, r vm.Value) (bool, error) {
			if !vm.ToBoolean(r) {
				return false, nil
			}
			to++
			return false, machine.CreateDataPropertyOrThrow(out, indexKey(to-1), v)
		}
	}, func(out *vm.Object, _ bool) vm.Value { return vm.ObjectValue(out) })

	// find family: holes are visited as undefined
	find := func(name string, fromEnd, wantIndex bool) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, n, err := thisArrayLike(machine, this)
			if err != nil {
				return vm.Undefined, err
			}
			fn, err := callbackArg(machine, args, 0)
			if err != nil {
				return vm.Undefined, err
			}
			for i := int64(0); i < n; i++ {
				k := i
				if fromEnd {
					k = n - 1 - i
				}
				v, err := getIndex(machine, o, k)
				if err != nil {
					return vm.Undefined, err
				}
				r, err := machine.Call(fn, arg(args, 1), []vm.Value{v, vm.NumberValue(float64(k)), vm.ObjectValue(o)})
				if err != nil {
					return vm.Undefined, err
				}
				if vm.ToBoolean(r) {
					if wantIndex {
						return vm.NumberValue(float64(k)), nil
					}
					return v, nil
				}
			}
			if wantIndex {
				return vm.IntValue(-1), nil
			}
			return vm.Undefined, nil
		})
	}
	find("find", false, false)
	find("findIndex", false, true)
	find("findLast", true, false)
	find("findLastIndex", true, true)

	method(machine, proto, "flat", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		depth := 1.0
		if d := arg(args, 0); !d.IsUndefined() {
			if depth, err = machine.ToIntegerOrInfinity(d); err != nil {
				return vm.Undefined, err
			}
			depth = max(depth, 0)
		}
		out, err := arraySpeciesCreate(machine, o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		_, err = flattenIntoArray(machine, out, o, n, 0, depth, vm.Undefined, vm.Undefined)
		return vm.ObjectValue(out), err
	})
	method(machine, proto, "flatMap", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callbackArg(machine, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		out, err := arraySpeciesCreate(machine, o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		_, err = flattenIntoArray(machine, out, o, n, 0, 1, fn, arg(args, 1))
		return vm.ObjectValue(out), err
	})

	method(machine, proto, "includes", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil || n == 0 {
			return vm.BoolValue(false), err
		}
		k, err := relativeArg(machine, args, 1, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		for ; k < n; k++ {
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.SameValueZero(v, arg(args, 0)) {
				return vm.BoolValue(true), nil
			}
		}
		return vm.BoolValue(false), nil
	})
	method(machine, proto, "indexOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil || n == 0 {
			return vm.IntValue(-1), err
		}
		k, err := relativeArg(machine, args, 1, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		for ; k < n; k++ {
			if !o.HasProperty(indexKey(k)) {
				continue
			}
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.StrictEquals(v, arg(args, 0)) {
				return vm.NumberValue(float64(k)), nil
			}
		}
		return vm.IntValue(-1), nil
	})
	method(machine, proto, "lastIndexOf", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil || n == 0 {
			return vm.IntValue(-1), err
		}
		k := n - 1
		if len(args) > 1 {
			rel, err := machine.ToIntegerOrInfinity(args[1])
			if err != nil {
				return vm.Undefined, err
			}
			if rel >= 0 {
				k = int64(min(rel, float64(n-1)))
			} else {
				k = int64(float64(n) + max(rel, -float64(n)-1))
			}
		}
		for ; k >= 0; k-- {
			if !o.HasProperty(indexKey(k)) {
				continue
			}
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.StrictEquals(v, arg(args, 0)) {
				return vm.NumberValue(float64(k)), nil
			}
		}
		return vm.IntValue(-1), nil
	})

	method(machine, proto, "join", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		sep := ","
		if s := arg(args, 0); !s.IsUndefined() {
			if sep, err = machine.ToString(s); err != nil {
				return vm.Undefined, err
			}
		}
		var b strings.Builder
		for k := int64(0); k < n; k++ {
			if k > 0 {
				b.WriteString(sep)
			}
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if v.IsNullish() {
				continue
			}
			s, err := machine.ToString(v)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(s)
		}
		return vm.StringValue(b.String()), nil
	})
	method(machine, proto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := machine.GetStr(o, "join")
		if err != nil {
			return vm.Undefined, err
		}
		if !fn.IsCallable() {
			return objectToString(machine, vm.ObjectValue(o))
		}
		return machine.Call(fn, vm.ObjectValue(o), nil)
	})
	method(machine, proto, "toLocaleString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		var b strings.Builder
		for k := int64(0); k < n; k++ {
			if k > 0 {
				b.WriteString(",")
			}
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if v.IsNullish() {
				continue
			}
			r, err := machine.Invoke(v, vm.StringKey("toLocaleString"))
			if err != nil {
				return vm.Undefined, err
			}
			s, err := machine.ToString(r)
			if err != nil {
				return vm.Undefined, err
			}
			b.WriteString(s)
		}
		return vm.StringValue(b.String()), nil
	})

	method(machine, proto, "push", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		if n+int64(len(args)) > maxSafeLength {
			return vm.Undefined, machine.NewTypeError("Pushing %d elements on an array-like of length %d is disallowed, as the total surpasses 2**53-1", len(args), n)
		}
		for _, v := range args {
			if err := setIndex(machine, o, n, v); err != nil {
				return vm.Undefined, err
			}
			n++
		}
		return vm.NumberValue(float64(n)), setLength(machine, o, n)
	})
	method(machine, proto, "pop", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		if n == 0 {
			return vm.Undefined, setLength(machine, o, 0)
		}
		v, err := getIndex(machine, o, n-1)
		if err != nil {
			return vm.Undefined, err
		}
		if err := machine.DeletePropertyOrThrow(o, indexKey(n-1)); err != nil {
			return vm.Undefined, err
		}
		return v, setLength(machine, o, n-1)
	})
	method(machine, proto, "shift", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		if n == 0 {
			return vm.Undefined, setLength(machine, o, 0)
		}
		first, err := getIndex(machine, o, 0)
		if err != nil {
			return vm.Undefined, err
		}
		if err := moveElements(machine, o, 1, 0, n-1); err != nil {
			return vm.Undefined, err
		}
		if err := machine.DeletePropertyOrThrow(o, indexKey(n-1)); err != nil {
			return vm.Undefined, err
		}
		return first, setLength(machine, o, n-1)
	})
	method(machine, proto, "unshift", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		c := int64(len(args))
		if c > 0 {
			if n+c > maxSafeLength {
				return vm.Undefined, machine.NewTypeError("Invalid array length")
			}
			if err := moveElements(machine, o, 0, c, n); err != nil {
				return vm.Undefined, err
			}
			for j, v := range args {
				if err := setIndex(machine, o, int64(j), v); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.NumberValue(float64(n + c)), setLength(machine, o, n+c)
	})

	reduce := func(name string, fromEnd bool) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, n, err := thisArrayLike(machine, this)
			if err != nil {
				return vm.Undefined, err
			}
			fn, err := callbackArg(machine, args, 0)
			if err != nil {
				return vm.Undefined, err
			}
			k, end, step := int64(0), n, int64(1)
			if fromEnd {
				k, end, step = n-1, -1, -1
			}
			var acc vm.Value
			if len(args) > 1 {
				acc = args[1]
			} else {
				found := false
				for ; k != end; k += step {
					if o.HasProperty(indexKey(k)) {
						if acc, err = getIndex(machine, o, k); err != nil {
							return vm.Undefined, err
						}
						found = true
						k += step
						break
					}
				}
				if !found {
					return vm.Undefined, machine.NewTypeError("Reduce of empty array with no initial value")
				}
			}
			for ; k != end; k += step {
				if !o.HasProperty(indexKey(k)) {
					continue
				}
				v, err := getIndex(machine, o, k)
				if err != nil {
					return vm.Undefined, err
				}
				acc, err = machine.Call(fn, vm.Undefined, []vm.Value{acc, v, vm.NumberValue(float64(k)), vm.ObjectValue(o)})
				if err != nil {
					return vm.Undefined, err
				}
			}
			return acc, nil
		})
	}
	reduce("reduce", false)
	reduce("reduceRight", true)

	method(machine, proto, "reverse", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		for lower := int64(0); lower < n/2; lower++ {
			upper := n - 1 - lower
			lk, uk := indexKey(lower), indexKey(upper)
			lowerExists, upperExists := o.HasProperty(lk), o.HasProperty(uk)
			var lv, uv vm.Value
			if lowerExists {
				if lv, err = getIndex(machine, o, lower); err != nil {
					return vm.Undefined, err
				}
			}
			if upperExists {
				if uv, err = getIndex(machine, o, upper); err != nil {
					return vm.Undefined, err
				}
			}
			switch {
			case lowerExists && upperExists:
				if err := setIndex(machine, o, lower, uv); err != nil {
					return vm.Undefined, err
				}
				err = setIndex(machine, o, upper, lv)
			case upperExists:
				if err := setIndex(machine, o, lower, uv); err != nil {
					return vm.Undefined, err
				}
				err = machine.DeletePropertyOrThrow(o, uk)
			case lowerExists:
				if err := machine.DeletePropertyOrThrow(o, lk); err != nil {
					return vm.Undefined, err
				}
				err = setIndex(machine, o, upper, lv)
			}
			if err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(o), nil
	})
	method(machine, proto, "slice", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		k, err := relativeArg(machine, args, 0, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		final, err := relativeArg(machine, args, 1, n, n)
		if err != nil {
			return vm.Undefined, err
		}
		count := max(final-k, 0)
		out, err := arraySpeciesCreate(machine, o, count)
		if err != nil {
			return vm.Undefined, err
		}
		i := int64(0)
		for ; k < final; k, i = k+1, i+1 {
			if !o.HasProperty(indexKey(k)) {
				continue
			}
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := machine.CreateDataPropertyOrThrow(out, indexKey(i), v); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(out), setLength(machine, out, i)
	})
	method(machine, proto, "sort", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cmp := arg(args, 0)
		if !cmp.IsUndefined() && !cmp.IsCallable() {
			return vm.Undefined, machine.NewTypeError("The comparison function must be either a function or undefined")
		}
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		var items []vm.Value
		for k := int64(0); k < n; k++ {
			if !o.HasProperty(indexKey(k)) {
				continue
			}
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			items = append(items, v)
		}
		sorted, err := sortValues(machine, items, cmp)
		if err != nil {
			return vm.Undefined, err
		}
		k := int64(0)
		for ; k < int64(len(sorted)); k++ {
			if err := setIndex(machine, o, k, sorted[k]); err != nil {
				return vm.Undefined, err
			}
		}
		for ; k < n; k++ {
			if o.HasProperty(indexKey(k)) {
				if err := machine.DeletePropertyOrThrow(o, indexKey(k)); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return vm.ObjectValue(o), nil
	})
	method(machine, proto, "splice", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		start, err := relativeArg(machine, args, 0, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		var items []vm.Value
		deleteCount := int64(0)
		switch len(args) {
		case 0:
		case 1:
			deleteCount = n - start
		default:
			dc, err := machine.ToIntegerOrInfinity(args[1])
			if err != nil {
				return vm.Undefined, err
			}
			deleteCount = int64(min(max(dc, 0), float64(n-start)))
			items = args[2:]
		}
		itemCount := int64(len(items))
		if n+itemCount-deleteCount > maxSafeLength {
			return vm.Undefined, machine.NewTypeError("Invalid array length")
		}
		removed, err := arraySpeciesCreate(machine, o, deleteCount)
		if err != nil {
			return vm.Undefined, err
		}
		for k := int64(0); k < deleteCount; k++ {
			if !o.HasProperty(indexKey(start + k)) {
				continue
			}
			v, err := getIndex(machine, o, start+k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := machine.CreateDataPropertyOrThrow(removed, indexKey(k), v); err != nil {
				return vm.Undefined, err
			}
		}
		if err := setLength(machine, removed, deleteCount); err != nil {
			return vm.Undefined, err
		}
		if itemCount < deleteCount {
			if err := moveElements(machine, o, start+deleteCount, start+itemCount, n-start-deleteCount); err != nil {
				return vm.Undefined, err
			}
			for k := n; k > n-deleteCount+itemCount; k-- {
				if err := machine.DeletePropertyOrThrow(o, indexKey(k-1)); err != nil {
					return vm.Undefined, err
				}
			}
		} else if itemCount > deleteCount {
			if err := moveElements(machine, o, start+deleteCount, start+itemCount, n-start-deleteCount); err != nil {
				return vm.Undefined, err
			}
		}
		for i, v := range items {
			if err := setIndex(machine, o, start+int64(i), v); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(removed), setLength(machine, o, n-deleteCount+itemCount)
	})

	// Copying variants
	method(machine, proto, "toReversed", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		out, err := arrayCreate(machine, n, nil)
		if err != nil {
			return vm.Undefined, err
		}
		for k := int64(0); k < n; k++ {
			v, err := getIndex(machine, o, n-1-k)
			if err != nil {
				return vm.Undefined, err
			}
			if err := machine.CreateDataPropertyOrThrow(out, indexKey(k), v); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(out), nil
	})
	method(machine, proto, "toSorted", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cmp := arg(args, 0)
		if !cmp.IsUndefined() && !cmp.IsCallable() {
			return vm.Undefined, machine.NewTypeError("The comparison function must be either a function or undefined")
		}
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		if n > math.MaxUint32 {
			return vm.Undefined, machine.NewRangeError("Invalid array length")
		}
		items := make([]vm.Value, 0, n)
		for k := int64(0); k < n; k++ {
			v, err := getIndex(machine, o, k)
			if err != nil {
				return vm.Undefined, err
			}
			items = append(items, v)
		}
		sorted, err := sortValues(machine, items, cmp)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(machine.NewArray(sorted)), nil
	})
	method(machine, proto, "toSpliced", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		start, err := relativeArg(machine, args, 0, n, 0)
		if err != nil {
			return vm.Undefined, err
		}
		var items []vm.Value
		skip := int64(0)
		switch len(args) {
		case 0:
		case 1:
			skip = n - start
		default:
			dc, err := machine.ToIntegerOrInfinity(args[1])
			if err != nil {
				return vm.Undefined, err
			}
			skip = int64(min(max(dc, 0), float64(n-start)))
			items = args[2:]
		}
		newLen := n + int64(len(items)) - skip
		if newLen > maxSafeLength {
			return vm.Undefined, machine.NewTypeError("Invalid array length")
		}
		out, err := arrayCreate(machine, newLen, nil)
		if err != nil {
			return vm.Undefined, err
		}
		i := int64(0)
		put := func(v vm.Value) error {
			i++
			return machine.CreateDataPropertyOrThrow(out, indexKey(i-1), v)
		}
		for r := int64(0); r < start; r++ {
			v, err := getIndex(machine, o, r)
			if err == nil {
				err = put(v)
			}
			if err != nil {
				return vm.Undefined, err
			}
		}
		for _, v := range items {
			if err := put(v); err != nil {
				return vm.Undefined, err
			}
		}
		for r := start + skip; r < n; r++ {
			v, err := getIndex(machine, o, r)
			if err == nil {
				err = put(v)
			}
			if err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(out), nil
	})
	method(machine, proto, "with", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, n, err := thisArrayLike(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		rel, err := machine.ToIntegerOrInfinity(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		idx := rel
		if rel < 0 {
			idx = float64(n) + rel
		}
		if idx < 0 || idx >= float64(n) {
			return vm.Undefined, machine.NewRangeError("Invalid index : %s", vm.NumberToString(rel))
		}
		out, err := arrayCreate(machine, n, nil)
		if err != nil {
			return vm.Undefined, err
		}
		for k := int64(0); k < n; k++ {
			v := arg(args, 1)
			if k != int64(idx) {
				if v, err = getIndex(machine, o, k); err != nil {
					return vm.Undefined, err
				}
			}
			if err := machine.CreateDataPropertyOrThrow(out, indexKey(k), v); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(out), nil
	})

	unscopables := machine.NewObjectWithProto(nil)
	for _, name := range []string{"at", "copyWithin", "entries", "fill", "find", "findIndex", "findLast", "findLastIndex", "flat", "flatMap", "includes", "keys", "toReversed", "toSorted", "toSpliced", "values"} {
		unscopables.SetOwn(name, vm.BoolValue(true), vm.FlagsDefault)
	}
	proto.SetOwnKey(vm.SymbolKey(vm.SymUnscopables), vm.ObjectValue(unscopables), vm.FlagConfigurable)
}

// moveElements copies count elements from..from+count to to..to+count,
// preserving holes, in the order that keeps overlapping ranges intact.
func moveElements(machine *vm.VM, o *vm.Object, from, to, count int64) error {
	move := func(k int64) error {
		src, dst := indexKey(from+k), indexKey(to+k)
		if !o.HasProperty(src) {
			return machine.DeletePropertyOrThrow(o, dst)
		}
		v, err := machine.Get(o, src, vm.ObjectValue(o))
		if err != nil {
			return err
		}
		return setIndex(machine, o, to+k, v)
	}
	if from > to {
		for k := int64(0); k < count; k++ {
			if err := move(k); err != nil {
				return err
			}
		}
		return nil
	}
	for k := count - 1; k >= 0; k-- {
		if err := move(k); err != nil {
			return err
		}
	}
	return nil
}

// flattenIntoArray implements FlattenIntoArray.
func flattenIntoArray(machine *vm.VM, target, src *vm.Object, n, start int64, depth float64, mapper, thisArg vm.Value) (int64, error) {
	idx := start
	for k := int64(0); k < n; k++ {
		if !src.HasProperty(indexKey(k)) {
			continue
		}
		v, err := getIndex(machine, src, k)
		if err != nil {
			return 0, err
		}
		if !mapper.IsUndefined() {
			if v, err = machine.Call(mapper, thisArg, []vm.Value{v, vm.NumberValue(float64(k)), vm.ObjectValue(src)}); err != nil {
				return 0, err
			}
		}
		if eo := v.AsObject(); depth > 0 && eo != nil && eo.Class() == vm.ClassArray {
			l, err := machine.LengthOfArrayLike(eo)
			if err != nil {
				return 0, err
			}
			if idx, err = flattenIntoArray(machine, target, eo, l, idx, depth-1, vm.Undefined, vm.Undefined); err != nil {
				return 0, err
			}
			continue
		}
		if idx >= maxSafeLength {
			return 0, machine.NewTypeError("Invalid array length")
		}
		if err := machine.CreateDataPropertyOrThrow(target, indexKey(idx), v); err != nil {
			return 0, err
		}
		idx++
	}
	return idx, nil
}

// arrayIterator is the state of %ArrayIteratorPrototype% objects.
type arrayIterator struct {
	target vm.Value
	index  int64
	kind   iterKind
	done   bool
}

func (it *arrayIterator) Trace(m *vm.Marker) { m.Value(it.target) }

func (a *ArrayInitializer) initIterator(ctx *RuntimeContext, arrayProto *vm.Object) {
	machine := ctx.VM
	in := ctx.Intrinsics()

	iterProto := machine.NewObjectWithProto(in.IteratorPrototype)
	toStringTag(iterProto, "Array Iterator")
	next := method(machine, iterProto, "next", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var it *arrayIterator
		if o := this.AsObject(); o != nil {
			it, _ = o.Internal.(*arrayIterator)
		}
		if it == nil {
			return vm.Undefined, machine.NewTypeError("next method called on incompatible receiver %s", machine.ToDisplayString(this))
		}
		if it.done {
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		o := it.target.AsObject()
		n, err := machine.LengthOfArrayLike(o)
		if err != nil {
			return vm.Undefined, err
		}
		if it.index >= n {
			it.done, it.target = true, vm.Undefined
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		k := it.index
		it.index++
		if it.kind == iterKeys {
			return vm.ObjectValue(machine.CreateIterResult(vm.NumberValue(float64(k)), false)), nil
		}
		v, err := getIndex(machine, o, k)
		if err != nil {
			return vm.Undefined, err
		}
		if it.kind == iterEntries {
			v = vm.ObjectValue(machine.NewArray([]vm.Value{vm.NumberValue(float64(k)), v}))
		}
		return vm.ObjectValue(machine.CreateIterResult(v, false)), nil
	})
	in.ArrayIteratorPrototype = iterProto
	ctx.Realm.SetIntrinsic("ArrayIteratorNext", next)

	create := func(name string, kind iterKind) *vm.Object {
		return method(machine, arrayProto, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := machine.ToObject(this)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(createArrayIterator(machine, vm.ObjectValue(o), kind)), nil
		})
	}
	create("keys", iterKeys)
	create("entries", iterEntries)
	values := create("values", iterValues)
	arrayProto.SetOwnKey(vm.SymbolKey(vm.SymIterator), vm.ObjectValue(values), vm.FlagsHidden)
	in.ArrayProtoValues = values
}

func createArrayIterator(machine *vm.VM, target vm.Value, kind iterKind) *vm.Object {
	proto := machine.CurrentRealm().Intrinsics.ArrayIteratorPrototype
	return machine.NewObjectOfClass(vm.ClassIterator, proto, &arrayIterator{target: target, kind: kind})
}
