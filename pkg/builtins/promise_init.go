package builtins

import (
	"ecmavm/pkg/vm"
)

type PromiseInitializer struct{}

func (p *PromiseInitializer) Name() string {
	return "Promise"
}

func (p *PromiseInitializer) Priority() int {
	return PriorityPromise
}

func (p *PromiseInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	promiseProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.PromisePrototype = promiseProto
	toStringTag(promiseProto, "Promise")

	promiseCtor := machine.NewNativeConstructor("Promise", 1, nil,
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			executor := arg(args, 0)
			if !executor.IsCallable() {
				return vm.Undefined, machine.NewTypeError("Promise resolver %s is not a function", machine.ToDisplayString(executor))
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.PromisePrototype })
			if err != nil {
				return vm.Undefined, err
			}
			promise := machine.NewPromise(proto)
			resolve, reject := machine.CreateResolvingFunctions(promise)
			if _, err := machine.Call(executor, vm.Undefined, []vm.Value{vm.ObjectValue(resolve), vm.ObjectValue(reject)}); err != nil {
				exc, ok := vm.AsException(err)
				if !ok {
					return vm.Undefined, err
				}
				if _, err := machine.Call(vm.ObjectValue(reject), vm.Undefined, []vm.Value{exc.Value}); err != nil {
					return vm.Undefined, err
				}
			}
			return vm.ObjectValue(promise), nil
		})
	linkConstructor(promiseCtor, promiseProto)
	speciesGetter(machine, promiseCtor)
	in.Promise = promiseCtor

	p.initPrototype(machine, promiseProto)
	p.initStatics(machine, promiseCtor)

	return ctx.DefineGlobal("Promise", vm.ObjectValue(promiseCtor))
}

// rejectAbrupt implements IfAbruptRejectPromise: script exceptions reject
// the capability, anything else (an interrupt) propagates.
func rejectAbrupt(machine *vm.VM, capability *vm.PromiseCapability, err error) (vm.Value, error) {
	exc, ok := vm.AsException(err)
	if !ok {
		return vm.Undefined, err
	}
	if _, err := machine.Call(capability.Reject, vm.Undefined, []vm.Value{exc.Value}); err != nil {
		return vm.Undefined, err
	}
	return capability.Promise, nil
}

func capabilityValues(c *vm.PromiseCapability) []vm.Value {
	return []vm.Value{c.Promise, c.Resolve, c.Reject}
}

func thisPromise(machine *vm.VM, this vm.Value, name string) (*vm.Object, error) {
	if !vm.IsPromise(this) {
		return nil, machine.NewTypeError("Method Promise.prototype.%s called on incompatible receiver %s", name, machine.ToDisplayString(this))
	}
	return this.AsObject(), nil
}

func (p *PromiseInitializer) initPrototype(machine *vm.VM, proto *vm.Object) {
	method(machine, proto, "then", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		promise, err := thisPromise(machine, this, "then")
		if err != nil {
			return vm.Undefined, err
		}
		c, err := speciesConstructor(machine, promise, machine.CurrentRealm().Intrinsics.Promise)
		if err != nil {
			return vm.Undefined, err
		}
		capability, err := machine.NewPromiseCapability(c)
		if err != nil {
			return vm.Undefined, err
		}
		return machine.PerformPromiseThen(promise, arg(args, 0), arg(args, 1), capability), nil
	})
	method(machine, proto, "catch", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return machine.Invoke(this, vm.StringKey("then"), vm.Undefined, arg(args, 0))
	})
	method(machine, proto, "finally", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		promise := this.AsObject()
		if promise == nil {
			return vm.Undefined, machine.NewTypeError("Promise.prototype.finally called on non-object %s", machine.ToDisplayString(this))
		}
		c, err := speciesConstructor(machine, promise, machine.CurrentRealm().Intrinsics.Promise)
		if err != nil {
			return vm.Undefined, err
		}
		onFinally := arg(args, 0)
		if !onFinally.IsCallable() {
			return machine.Invoke(this, vm.StringKey("then"), onFinally, onFinally)
		}
		captured := []vm.Value{onFinally, c}
		settle := func(rejected bool) vm.Value {
			return vm.ObjectValue(machine.NativeClosure("", 1, captured, func(machine *vm.VM, _ vm.Value, a []vm.Value) (vm.Value, error) {
				result, err := machine.Call(onFinally, vm.Undefined, nil)
				if err != nil {
					return vm.Undefined, err
				}
				resolved, err := machine.PromiseResolve(c.AsObject(), result)
				if err != nil {
					return vm.Undefined, err
				}
				outcome := arg(a, 0)
				thunk := machine.NativeClosure("", 0, []vm.Value{outcome}, func(machine *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
					if rejected {
						return vm.Undefined, machine.Throw(outcome)
					}
					return outcome, nil
				})
				return machine.Invoke(vm.ObjectValue(resolved), vm.StringKey("then"), vm.ObjectValue(thunk))
			}))
		}
		return machine.Invoke(this, vm.StringKey("then"), settle(false), settle(true))
	})
}

// combinator runs the shared loop of Promise.all, allSettled, any and
// race over an iterable. step receives each value already passed through
// C.resolve; finish runs once the iterable is exhausted.
type combinator struct {
	c          vm.Value
	capability *vm.PromiseCapability
	resolveFn  vm.Value
}

func newCombinator(machine *vm.VM, c vm.Value) (*combinator, error) {
	capability, err := machine.NewPromiseCapability(c)
	if err != nil {
		return nil, err
	}
	return &combinator{c: c, capability: capability}, nil
}

func (cb *combinator) run(machine *vm.VM, iterable vm.Value, step func(index int, next vm.Value) error, finish func() error) (vm.Value, error) {
	resolveFn, err := machine.GetStr(cb.c.AsObject(), "resolve")
	if err == nil && !resolveFn.IsCallable() {
		err = machine.NewTypeError("Promise resolve or reject function is not callable")
	}
	if err != nil {
		return rejectAbrupt(machine, cb.capability, err)
	}
	cb.resolveFn = resolveFn
	rec, err := machine.GetIterator(iterable)
	if err != nil {
		return rejectAbrupt(machine, cb.capability, err)
	}
	for index := 0; ; index++ {
		v, done, err := machine.Step(rec)
		if err != nil {
			return rejectAbrupt(machine, cb.capability, err)
		}
		if done {
			if err := finish(); err != nil {
				return rejectAbrupt(machine, cb.capability, err)
			}
			return cb.capability.Promise, nil
		}
		next, err := machine.Call(resolveFn, cb.c, []vm.Value{v})
		if err == nil {
			err = step(index, next)
		}
		if err != nil {
			return rejectAbrupt(machine, cb.capability, machine.IteratorClose(rec, err))
		}
	}
}

// settleOnce wraps fn so that only the first call has an effect.
func settleOnce(machine *vm.VM, captured []vm.Value, called *bool, fn func(v vm.Value) error) vm.Value {
	return vm.ObjectValue(machine.NativeClosure("", 1, captured, func(machine *vm.VM, _ vm.Value, a []vm.Value) (vm.Value, error) {
		if *called {
			return vm.Undefined, nil
		}
		*called = true
		return vm.Undefined, fn(arg(a, 0))
	}))
}

func thisConstructorObject(machine *vm.VM, this vm.Value, name string) error {
	if !this.IsObject() {
		return machine.NewTypeError("Promise.%s called on non-object", name)
	}
	return nil
}

func (p *PromiseInitializer) initStatics(machine *vm.VM, ctor *vm.Object) {
	method(machine, ctor, "resolve", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := thisConstructorObject(machine, this, "resolve"); err != nil {
			return vm.Undefined, err
		}
		promise, err := machine.PromiseResolve(this.AsObject(), arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.ObjectValue(promise), nil
	})
	method(machine, ctor, "reject", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		capability, err := machine.NewPromiseCapability(this)
		if err != nil {
			return vm.Undefined, err
		}
		if _, err := machine.Call(capability.Reject, vm.Undefined, []vm.Value{arg(args, 0)}); err != nil {
			return vm.Undefined, err
		}
		return capability.Promise, nil
	})
	method(machine, ctor, "withResolvers", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		capability, err := machine.NewPromiseCapability(this)
		if err != nil {
			return vm.Undefined, err
		}
		o := machine.NewObject()
		o.SetOwn("promise", capability.Promise, vm.FlagsDefault)
		o.SetOwn("resolve", capability.Resolve, vm.FlagsDefault)
		o.SetOwn("reject", capability.Reject, vm.FlagsDefault)
		return vm.ObjectValue(o), nil
	})
	method(machine, ctor, "try", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := thisConstructorObject(machine, this, "try"); err != nil {
			return vm.Undefined, err
		}
		capability, err := machine.NewPromiseCapability(this)
		if err != nil {
			return vm.Undefined, err
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		result, err := machine.Call(arg(args, 0), vm.Undefined, rest)
		if err != nil {
			return rejectAbrupt(machine, capability, err)
		}
		if _, err := machine.Call(capability.Resolve, vm.Undefined, []vm.Value{result}); err != nil {
			return vm.Undefined, err
		}
		return capability.Promise, nil
	})

	method(machine, ctor, "all", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cb, err := newCombinator(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		values := machine.NewArray(nil)
		captured := append(capabilityValues(cb.capability), vm.ObjectValue(values))
		remaining := 1
		resolveAll := func() error {
			elems, _ := values.ArrayElements()
			_, err := machine.Call(cb.capability.Resolve, vm.Undefined, []vm.Value{vm.ObjectValue(machine.NewArray(append([]vm.Value(nil), elems...)))})
			return err
		}
		return cb.run(machine, arg(args, 0), func(index int, next vm.Value) error {
			values.Push(vm.Undefined)
			remaining++
			called := false
			onFulfilled := settleOnce(machine, captured, &called, func(v vm.Value) error {
				if err := machine.CreateDataPropertyOrThrow(values, vm.IndexKey(uint32(index)), v); err != nil {
					return err
				}
				if remaining--; remaining == 0 {
					return resolveAll()
				}
				return nil
			})
			_, err := machine.Invoke(next, vm.StringKey("then"), onFulfilled, cb.capability.Reject)
			return err
		}, func() error {
			if remaining--; remaining == 0 {
				return resolveAll()
			}
			return nil
		})
	})

	method(machine, ctor, "allSettled", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cb, err := newCombinator(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		values := machine.NewArray(nil)
		captured := append(capabilityValues(cb.capability), vm.ObjectValue(values))
		remaining := 1
		resolveAll := func() error {
			elems, _ := values.ArrayElements()
			_, err := machine.Call(cb.capability.Resolve, vm.Undefined, []vm.Value{vm.ObjectValue(machine.NewArray(append([]vm.Value(nil), elems...)))})
			return err
		}
		return cb.run(machine, arg(args, 0), func(index int, next vm.Value) error {
			values.Push(vm.Undefined)
			remaining++
			called := false
			record := func(status, key string) vm.Value {
				return settleOnce(machine, captured, &called, func(v vm.Value) error {
					o := machine.NewObject()
					o.SetOwn("status", vm.StringValue(status), vm.FlagsDefault)
					o.SetOwn(key, v, vm.FlagsDefault)
					if err := machine.CreateDataPropertyOrThrow(values, vm.IndexKey(uint32(index)), vm.ObjectValue(o)); err != nil {
						return err
					}
					if remaining--; remaining == 0 {
						return resolveAll()
					}
					return nil
				})
			}
			_, err := machine.Invoke(next, vm.StringKey("then"), record("fulfilled", "value"), record("rejected", "reason"))
			return err
		}, func() error {
			if remaining--; remaining == 0 {
				return resolveAll()
			}
			return nil
		})
	})

	method(machine, ctor, "any", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cb, err := newCombinator(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		errs := machine.NewArray(nil)
		captured := append(capabilityValues(cb.capability), vm.ObjectValue(errs))
		remaining := 1
		rejectAll := func() error {
			elems, _ := errs.ArrayElements()
			aggregate := machine.NewError(machine.CurrentRealm().Intrinsics.AggregateErrorPrototype, "All promises were rejected")
			aggregate.SetOwn("errors", vm.ObjectValue(machine.NewArray(append([]vm.Value(nil), elems...))), vm.FlagsHidden)
			return machine.Throw(vm.ObjectValue(aggregate))
		}
		return cb.run(machine, arg(args, 0), func(index int, next vm.Value) error {
			errs.Push(vm.Undefined)
			remaining++
			called := false
			onRejected := settleOnce(machine, captured, &called, func(v vm.Value) error {
				if err := machine.CreateDataPropertyOrThrow(errs, vm.IndexKey(uint32(index)), v); err != nil {
					return err
				}
				if remaining--; remaining == 0 {
					thrown := rejectAll()
					exc, _ := vm.AsException(thrown)
					_, err := machine.Call(cb.capability.Reject, vm.Undefined, []vm.Value{exc.Value})
					return err
				}
				return nil
			})
			_, err := machine.Invoke(next, vm.StringKey("then"), cb.capability.Resolve, onRejected)
			return err
		}, func() error {
			if remaining--; remaining == 0 {
				return rejectAll()
			}
			return nil
		})
	})

	method(machine, ctor, "race", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		cb, err := newCombinator(machine, this)
		if err != nil {
			return vm.Undefined, err
		}
		return cb.run(machine, arg(args, 0), func(_ int, next vm.Value) error {
			_, err := machine.Invoke(next, vm.StringKey("then"), cb.capability.Resolve, cb.capability.Reject)
			return err
		}, func() error { return nil })
	})
}
