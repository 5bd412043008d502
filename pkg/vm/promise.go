package vm

import "context"

// PromiseState is the settlement state of a promise.
type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

// Promise is the internal state of a promise object.
type Promise struct {
	State   PromiseState
	Result  Value
	Handled bool

	fulfillReactions []*promiseReaction
	rejectReactions  []*promiseReaction
}

func (p *Promise) Trace(m *Marker) {
	m.Value(p.Result)
	for _, r := range p.fulfillReactions {
		r.trace(m)
	}
	for _, r := range p.rejectReactions {
		r.trace(m)
	}
}

// PromiseCapability is a promise with its resolving functions.
type PromiseCapability struct {
	Promise Value
	Resolve Value
	Reject  Value
}

func (c *PromiseCapability) trace(m *Marker) {
	if c == nil {
		return
	}
	m.Value(c.Promise)
	m.Value(c.Resolve)
	m.Value(c.Reject)
}

type reactionType uint8

const (
	reactFulfill reactionType = iota
	reactReject
)

// awaitKind selects how a settled await resumes its coroutine.
type awaitKind uint8

const (
	awaitPlain       awaitKind = iota // await expression
	awaitYieldReturn                  // return() delivered at an async generator yield
	awaitDelegate                     // inner result of an async yield*
	awaitGenReturn                    // return() on a completed async generator
)

type promiseReaction struct {
	typ        reactionType
	capability *PromiseCapability
	handler    Value

	coro      *coroutine
	await     awaitKind
	delegMode int
}

func (r *promiseReaction) trace(m *Marker) {
	r.capability.trace(m)
	m.Value(r.handler)
	if r.coro != nil {
		m.coroutine(r.coro)
	}
}

type jobKind uint8

const (
	jobReaction jobKind = iota
	jobThenable
	jobCallback
)

// Job is a pending promise job.
type Job struct {
	kind     jobKind
	reaction *promiseReaction
	argument Value
	promise  *Object
	thenable Value
	then     Value
	args     []Value
}

func (j *Job) Trace(m *Marker) {
	if j.reaction != nil {
		j.reaction.trace(m)
	}
	m.Value(j.argument)
	m.Object(j.promise)
	m.Value(j.thenable)
	m.Value(j.then)
	m.Values(j.args)
}

func (vm *VM) enqueue(j Job) { vm.jobs = append(vm.jobs, j) }

// EnqueueCallback schedules fn(args...) as a job (HostEnqueueGenericJob).
func (vm *VM) EnqueueCallback(fn Value, args ...Value) {
	vm.enqueue(Job{kind: jobCallback, then: fn, args: args})
}

// PendingJobs reports the number of queued jobs.
func (vm *VM) PendingJobs() int { return len(vm.jobs) }

// RunJobs drains the job queue. Script exceptions thrown by callback jobs
// are returned after the queue is empty; the first one wins.
func (vm *VM) RunJobs(ctx context.Context) error {
	if ctx != nil && vm.runDepth == 0 {
		prev := vm.ctx
		vm.ctx = ctx
		defer func() { vm.ctx = prev }()
	}
	var first error
	for len(vm.jobs) > 0 {
		j := vm.jobs[0]
		vm.jobs[0] = Job{}
		vm.jobs = vm.jobs[1:]
		vm.currentJob = &j
		err := vm.runJob(&j)
		vm.currentJob = nil
		vm.ClearKeptObjects()
		if err == nil {
			continue
		}
		if _, ok := err.(*Exception); !ok {
			return err
		}
		if first == nil {
			first = err
		}
	}
	vm.jobs = nil
	return first
}

func (vm *VM) runJob(j *Job) error {
	switch j.kind {
	case jobCallback:
		_, err := vm.Call(j.then, Undefined, j.args)
		return err
	case jobThenable:
		resolve, reject := vm.createResolvingFunctions(j.promise)
		_, err := vm.Call(j.then, j.thenable, []Value{ObjectValue(resolve), ObjectValue(reject)})
		if err != nil {
			ex, ok := err.(*Exception)
			if !ok {
				return err
			}
			_, err = vm.Call(ObjectValue(reject), Undefined, []Value{ex.Value})
		}
		return err
	}
	r := j.reaction
	if r.coro != nil {
		return vm.resumeAwait(r, j.argument)
	}
	var result Value
	var err error
	if r.handler.IsUndefined() {
		if r.typ == reactFulfill {
			result = j.argument
		} else {
			err = &Exception{Value: j.argument}
		}
	} else {
		result, err = vm.Call(r.handler, Undefined, []Value{j.argument})
	}
	if r.capability == nil {
		if _, ok := err.(*Exception); ok {
			return nil
		}
		return err
	}
	if err != nil {
		ex, ok := err.(*Exception)
		if !ok {
			return err
		}
		_, err = vm.Call(r.capability.Reject, Undefined, []Value{ex.Value})
		return err
	}
	_, err = vm.Call(r.capability.Resolve, Undefined, []Value{result})
	return err
}

// --- promise objects ---

// IsPromise reports whether v is a promise object.
func IsPromise(v Value) bool {
	o := v.AsObject()
	if o == nil {
		return false
	}
	_, ok := o.Internal.(*Promise)
	return ok && o.class == ClassPromise
}

// PromiseOf returns the promise state of o.
func PromiseOf(o *Object) (*Promise, bool) {
	if o == nil || o.class != ClassPromise {
		return nil, false
	}
	p, ok := o.Internal.(*Promise)
	return p, ok
}

// NewPromise creates a pending promise with the given prototype.
func (vm *VM) NewPromise(proto *Object) *Object {
	if proto == nil {
		proto = vm.realm.Intrinsics.PromisePrototype
	}
	return vm.NewObjectOfClass(ClassPromise, proto, &Promise{Result: Undefined})
}

// NewPromiseCapabilityIntrinsic creates a capability over a fresh
// %Promise% instance without calling script code.
func (vm *VM) NewPromiseCapabilityIntrinsic() *PromiseCapability {
	p := vm.NewPromise(nil)
	resolve, reject := vm.createResolvingFunctions(p)
	return &PromiseCapability{Promise: ObjectValue(p), Resolve: ObjectValue(resolve), Reject: ObjectValue(reject)}
}

// NewPromiseCapability implements NewPromiseCapability(C).
func (vm *VM) NewPromiseCapability(c Value) (*PromiseCapability, error) {
	if co := c.AsObject(); co == vm.realm.Intrinsics.Promise && co != nil {
		return vm.NewPromiseCapabilityIntrinsic(), nil
	}
	if !c.IsConstructor() {
		return nil, vm.NewTypeError("Promise resolver %s is not a constructor", describeForError(c))
	}
	capability := &PromiseCapability{Resolve: Undefined, Reject: Undefined}
	executor := vm.NativeClosure("", 2, nil, func(vm *VM, _ Value, args []Value) (Value, error) {
		if !capability.Resolve.IsUndefined() || !capability.Reject.IsUndefined() {
			return Undefined, vm.NewTypeError("Promise executor has already been invoked with non-undefined arguments")
		}
		capability.Resolve = argAt(args, 0)
		capability.Reject = argAt(args, 1)
		return Undefined, nil
	})
	p, err := vm.Construct(c, []Value{ObjectValue(executor)}, Undefined)
	if err != nil {
		return nil, err
	}
	if !capability.Resolve.IsCallable() {
		return nil, vm.NewTypeError("Promise resolve function is not callable")
	}
	if !capability.Reject.IsCallable() {
		return nil, vm.NewTypeError("Promise reject function is not callable")
	}
	capability.Promise = p
	return capability, nil
}

func argAt(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// CreateResolvingFunctions returns the resolve and reject functions of p
// (the Promise constructor passes them to its executor).
func (vm *VM) CreateResolvingFunctions(p *Object) (resolve, reject *Object) {
	return vm.createResolvingFunctions(p)
}

// createResolvingFunctions returns the resolve and reject functions of p.
func (vm *VM) createResolvingFunctions(p *Object) (resolve, reject *Object) {
	alreadyResolved := false
	captured := []Value{ObjectValue(p)}
	resolve = vm.NativeClosure("", 1, captured, func(vm *VM, _ Value, args []Value) (Value, error) {
		if alreadyResolved {
			return Undefined, nil
		}
		alreadyResolved = true
		return Undefined, vm.ResolvePromise(p, argAt(args, 0))
	})
	reject = vm.NativeClosure("", 1, captured, func(vm *VM, _ Value, args []Value) (Value, error) {
		if alreadyResolved {
			return Undefined, nil
		}
		alreadyResolved = true
		vm.RejectPromise(p, argAt(args, 0))
		return Undefined, nil
	})
	return resolve, reject
}

// ResolvePromise runs the promise resolve function steps for p.
func (vm *VM) ResolvePromise(p *Object, resolution Value) error {
	if ro := resolution.AsObject(); ro != nil {
		if ro == p {
			vm.RejectPromise(p, ObjectValue(vm.NewError(vm.realm.Intrinsics.TypeErrorPrototype, "Chaining cycle detected for promise")))
			return nil
		}
		then, err := vm.Get(ro, StringKey("then"), resolution)
		if err != nil {
			ex, ok := err.(*Exception)
			if !ok {
				return err
			}
			vm.RejectPromise(p, ex.Value)
			return nil
		}
		if then.IsCallable() {
			vm.enqueue(Job{kind: jobThenable, promise: p, thenable: resolution, then: then})
			return nil
		}
	}
	vm.FulfillPromise(p, resolution)
	return nil
}

// FulfillPromise settles a pending promise with v.
func (vm *VM) FulfillPromise(o *Object, v Value) {
	p := o.Internal.(*Promise)
	if p.State != PromisePending {
		return
	}
	reactions := p.fulfillReactions
	p.State, p.Result = PromiseFulfilled, v
	p.fulfillReactions, p.rejectReactions = nil, nil
	for _, r := range reactions {
		vm.enqueue(Job{kind: jobReaction, reaction: r, argument: v})
	}
}

// RejectPromise settles a pending promise with reason.
func (vm *VM) RejectPromise(o *Object, reason Value) {
	p := o.Internal.(*Promise)
	if p.State != PromisePending {
		return
	}
	reactions := p.rejectReactions
	p.State, p.Result = PromiseRejected, reason
	p.fulfillReactions, p.rejectReactions = nil, nil
	if !p.Handled {
		log.Debugf("promise rejected without handler: %s", vm.ToDisplayString(reason))
	}
	for _, r := range reactions {
		vm.enqueue(Job{kind: jobReaction, reaction: r, argument: reason})
	}
}

// PerformPromiseThen subscribes handlers to promise o. capability may be
// nil when the result promise is not needed.
func (vm *VM) PerformPromiseThen(o *Object, onFulfilled, onRejected Value, capability *PromiseCapability) Value {
	if !onFulfilled.IsCallable() {
		onFulfilled = Undefined
	}
	if !onRejected.IsCallable() {
		onRejected = Undefined
	}
	fr := &promiseReaction{typ: reactFulfill, capability: capability, handler: onFulfilled}
	rr := &promiseReaction{typ: reactReject, capability: capability, handler: onRejected}
	vm.subscribe(o, fr, rr)
	if capability == nil {
		return Undefined
	}
	return capability.Promise
}

func (vm *VM) subscribe(o *Object, fr, rr *promiseReaction) {
	p := o.Internal.(*Promise)
	switch p.State {
	case PromisePending:
		p.fulfillReactions = append(p.fulfillReactions, fr)
		p.rejectReactions = append(p.rejectReactions, rr)
	case PromiseFulfilled:
		vm.enqueue(Job{kind: jobReaction, reaction: fr, argument: p.Result})
	case PromiseRejected:
		vm.enqueue(Job{kind: jobReaction, reaction: rr, argument: p.Result})
	}
	p.Handled = true
}

// PromiseResolve implements PromiseResolve(C, x).
func (vm *VM) PromiseResolve(c *Object, x Value) (*Object, error) {
	if IsPromise(x) {
		ctor, err := vm.GetV(x, StringKey("constructor"))
		if err != nil {
			return nil, err
		}
		if ctor.AsObject() == c {
			return x.AsObject(), nil
		}
	}
	if c == vm.realm.Intrinsics.Promise || c == nil {
		p := vm.NewPromise(nil)
		if err := vm.ResolvePromise(p, x); err != nil {
			return nil, err
		}
		return p, nil
	}
	capability, err := vm.NewPromiseCapability(ObjectValue(c))
	if err != nil {
		return nil, err
	}
	if _, err := vm.Call(capability.Resolve, Undefined, []Value{x}); err != nil {
		return nil, err
	}
	return capability.Promise.AsObject(), nil
}

// awaitValue subscribes co to the settlement of v.
func (vm *VM) awaitValue(co *coroutine, v Value, kind awaitKind, delegMode int) error {
	p, err := vm.PromiseResolve(vm.realm.Intrinsics.Promise, v)
	if err != nil {
		return err
	}
	fr := &promiseReaction{typ: reactFulfill, handler: Undefined, coro: co, await: kind, delegMode: delegMode}
	rr := &promiseReaction{typ: reactReject, handler: Undefined, coro: co, await: kind, delegMode: delegMode}
	vm.subscribe(p, fr, rr)
	return nil
}
