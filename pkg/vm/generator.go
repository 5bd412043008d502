package vm

type coroKind uint8

const (
	coGenerator coroKind = iota
	coAsync
	coAsyncGenerator
)

type coState uint8

const (
	coSuspendedStart coState = iota
	coSuspendedYield
	coExecuting
	coAwaitingReturn
	coCompleted
)

// resumeRaise throws the resumption value even while delegating.
const resumeRaise = 5

// coroutine is the suspended execution state shared by generators, async
// functions and async generators. While suspended the frame and its
// operand stack segment live here; resume copies them back onto the VM.
type coroutine struct {
	kind    coroKind
	state   coState
	frame   Frame
	stack   []Value
	promise *Object // async function result
	gen     *Object // generator object

	// delegating is set while suspended inside yield*; resumption pushes
	// the received value and mode and re-executes the instruction.
	delegating bool
	// yieldRaw marks a sync yield* step whose result object is passed
	// through unchanged.
	yieldRaw bool

	queue []*asyncGenRequest
}

type asyncGenRequest struct {
	mode       int
	value      Value
	capability *PromiseCapability
}

func (co *coroutine) Trace(m *Marker) {
	m.frame(&co.frame)
	m.Values(co.stack)
	m.Object(co.promise)
	m.Object(co.gen)
	for _, r := range co.queue {
		m.Value(r.value)
		r.capability.trace(m)
	}
}

// startAsync prepares a freshly pushed async function frame. Async
// generators get their coroutine at OpGeneratorStart instead.
func (vm *VM) startAsync(f *Frame) {
	if f.tmpl.Generator {
		return
	}
	co := &coroutine{kind: coAsync, state: coExecuting}
	co.promise = vm.NewPromise(f.realm.Intrinsics.PromisePrototype)
	f.coro = co
}

// suspend saves the running frame into its coroutine.
func (vm *VM) suspend(f *Frame) {
	co := f.coro
	co.frame = *f
	co.frame.boundary = false
	co.frame.prevRealm = nil
	co.stack = append(co.stack[:0], vm.stack[f.base:vm.sp]...)
}

// resume reinstates a suspended coroutine as a boundary frame and runs it
// until it suspends again or completes.
func (vm *VM) resume(co *coroutine, mode int, v Value) (Value, error) {
	if vm.fp >= len(vm.frames) || vm.fp+vm.nativeDepth >= vm.cfg.VM.MaxCallDepth {
		return Undefined, vm.NewRangeError("Maximum call stack size exceeded")
	}
	if vm.sp+len(co.stack)+co.frame.chunk.MaxStack+2 >= len(vm.stack) {
		return Undefined, vm.NewRangeError("Maximum call stack size exceeded")
	}
	f := &vm.frames[vm.fp]
	*f = co.frame
	f.base = vm.sp
	f.boundary = true
	f.prevRealm = vm.realm
	f.coro = co
	copy(vm.stack[vm.sp:], co.stack)
	vm.sp += len(co.stack)
	co.frame = Frame{}
	co.stack = co.stack[:0]
	co.state = coExecuting
	vm.fp++
	vm.realm = f.realm

	var err error
	if co.delegating {
		co.delegating = false
		if mode == resumeRaise {
			err = &Exception{Value: v}
		} else {
			vm.push(v)
			vm.push(IntValue(mode))
		}
	} else {
		switch mode {
		case ResumeNext:
			vm.push(v)
		case ResumeReturn:
			err = &returnCompletion{value: v}
		default:
			err = &Exception{Value: v}
		}
	}
	if err != nil {
		action, val, uerr := vm.unwind(err, vm.fp-1)
		switch action {
		case unwindReturn:
			return val, nil
		case unwindError:
			return Undefined, uerr
		}
	}
	return vm.run(vm.fp - 1)
}

// finishCoroutine records the completion of a coroutine frame, either a
// return value or an exception, and returns the frame's result for its
// caller. A non-nil error propagates further.
func (vm *VM) finishCoroutine(f *Frame, v Value, ex *Exception) (Value, error) {
	co := f.coro
	co.state = coCompleted
	switch co.kind {
	case coGenerator:
		if ex != nil {
			return Undefined, ex
		}
		return v, nil
	case coAsync:
		if ex != nil {
			vm.RejectPromise(co.promise, ex.Value)
		} else if err := vm.ResolvePromise(co.promise, v); err != nil {
			return Undefined, err
		}
		return ObjectValue(co.promise), nil
	}
	if ex != nil {
		vm.asyncGenCompleteStep(co, true, ex.Value, true)
	} else {
		vm.asyncGenCompleteStep(co, false, v, true)
	}
	return Undefined, vm.asyncGenDrain(co)
}

// generatorStart handles OpGeneratorStart: the frame is parked in a new
// generator object which becomes the call result.
func (vm *VM) generatorStart(f *Frame) (Value, bool, error) {
	in := &f.realm.Intrinsics
	kind, fallback, class := coGenerator, in.GeneratorPrototype, ClassGenerator
	if f.tmpl.Async {
		kind, fallback, class = coAsyncGenerator, in.AsyncGeneratorPrototype, ClassAsyncGenerator
	}
	proto, err := vm.GetPrototypeFromConstructor(f.callee, func(*Intrinsics) *Object { return fallback })
	if err != nil {
		return Undefined, false, err
	}
	co := &coroutine{kind: kind, state: coSuspendedStart}
	gen := vm.NewObjectOfClass(class, proto, co)
	co.gen = gen
	f.coro = co
	vm.suspend(f)
	result := ObjectValue(gen)
	return result, vm.popFrameWithResult(result), nil
}

func (vm *VM) generatorOf(v Value, class Class, method string) (*coroutine, error) {
	o := v.AsObject()
	if o != nil && o.class == class {
		if co, ok := o.Internal.(*coroutine); ok {
			return co, nil
		}
	}
	return nil, vm.NewTypeError("%s method called on incompatible receiver %s", method, vm.ToDisplayString(v))
}

// GeneratorResume implements Generator.prototype.next, throw and return.
func (vm *VM) GeneratorResume(gen Value, mode int, v Value, method string) (Value, error) {
	co, err := vm.generatorOf(gen, ClassGenerator, method)
	if err != nil {
		return Undefined, err
	}
	switch co.state {
	case coExecuting:
		return Undefined, vm.NewTypeError("Generator is already running")
	case coSuspendedStart:
		if mode != ResumeNext {
			co.state = coCompleted
			co.frame = Frame{}
			co.stack = nil
		}
	}
	if co.state == coCompleted {
		switch mode {
		case ResumeThrow:
			return Undefined, &Exception{Value: v}
		case ResumeReturn:
			return ObjectValue(vm.CreateIterResult(v, true)), nil
		}
		return ObjectValue(vm.CreateIterResult(Undefined, true)), nil
	}
	result, err := vm.resume(co, mode, v)
	if err != nil {
		co.state = coCompleted
		return Undefined, err
	}
	if co.state == coCompleted {
		return ObjectValue(vm.CreateIterResult(result, true)), nil
	}
	if co.yieldRaw {
		co.yieldRaw = false
		return result, nil
	}
	return ObjectValue(vm.CreateIterResult(result, false)), nil
}

// CreateIterResult implements CreateIterResultObject.
func (vm *VM) CreateIterResult(v Value, done bool) *Object {
	o := vm.NewObject()
	o.SetOwn("value", v, FlagsDefault)
	o.SetOwn("done", BoolValue(done), FlagsDefault)
	return o
}

// --- async generators ---

// AsyncGeneratorEnqueue implements AsyncGenerator.prototype.next, throw
// and return. It always returns a promise.
func (vm *VM) AsyncGeneratorEnqueue(gen Value, mode int, v Value, method string) (Value, error) {
	capability := vm.NewPromiseCapabilityIntrinsic()
	co, err := vm.generatorOf(gen, ClassAsyncGenerator, method)
	if err != nil {
		ex, ok := err.(*Exception)
		if !ok {
			return Undefined, err
		}
		if _, err := vm.Call(capability.Reject, Undefined, []Value{ex.Value}); err != nil {
			return Undefined, err
		}
		return capability.Promise, nil
	}
	if co.state == coSuspendedStart && mode != ResumeNext {
		co.state = coCompleted
		co.frame = Frame{}
		co.stack = nil
	}
	if co.state == coCompleted && len(co.queue) == 0 {
		switch mode {
		case ResumeNext:
			_, err = vm.Call(capability.Resolve, Undefined, []Value{ObjectValue(vm.CreateIterResult(Undefined, true))})
			return capability.Promise, err
		case ResumeThrow:
			_, err = vm.Call(capability.Reject, Undefined, []Value{v})
			return capability.Promise, err
		}
	}
	co.queue = append(co.queue, &asyncGenRequest{mode: mode, value: v, capability: capability})
	switch co.state {
	case coCompleted:
		if len(co.queue) == 1 {
			if err := vm.asyncGenAwaitReturn(co); err != nil {
				return Undefined, err
			}
		}
	case coSuspendedStart, coSuspendedYield:
		if err := vm.asyncGenResumeHead(co); err != nil {
			return Undefined, err
		}
	}
	return capability.Promise, nil
}

// asyncGenResumeHead resumes a suspended async generator with the
// completion at the head of its queue.
func (vm *VM) asyncGenResumeHead(co *coroutine) error {
	req := co.queue[0]
	if req.mode == ResumeReturn && co.state == coSuspendedYield {
		co.state = coExecuting
		if err := vm.awaitValue(co, req.value, awaitYieldReturn, 0); err != nil {
			ex, ok := err.(*Exception)
			if !ok {
				return err
			}
			_, err = vm.resume(co, ResumeThrow, ex.Value)
			return ignoreException(err)
		}
		return nil
	}
	_, err := vm.resume(co, req.mode, req.value)
	return ignoreException(err)
}

// Async generator bodies settle their requests instead of throwing, so
// only host errors escape.
func ignoreException(err error) error {
	if _, ok := err.(*Exception); ok {
		return nil
	}
	return err
}

func (vm *VM) asyncGenCompleteStep(co *coroutine, isThrow bool, v Value, done bool) {
	if len(co.queue) == 0 {
		return
	}
	req := co.queue[0]
	co.queue[0] = nil
	co.queue = co.queue[1:]
	if isThrow {
		vm.Call(req.capability.Reject, Undefined, []Value{v})
		return
	}
	vm.Call(req.capability.Resolve, Undefined, []Value{ObjectValue(vm.CreateIterResult(v, done))})
}

func (vm *VM) asyncGenDrain(co *coroutine) error {
	for len(co.queue) > 0 {
		req := co.queue[0]
		switch req.mode {
		case ResumeReturn:
			return vm.asyncGenAwaitReturn(co)
		case ResumeThrow:
			vm.asyncGenCompleteStep(co, true, req.value, true)
		default:
			vm.asyncGenCompleteStep(co, false, Undefined, true)
		}
	}
	return nil
}

func (vm *VM) asyncGenAwaitReturn(co *coroutine) error {
	co.state = coAwaitingReturn
	req := co.queue[0]
	if err := vm.awaitValue(co, req.value, awaitGenReturn, 0); err != nil {
		ex, ok := err.(*Exception)
		if !ok {
			return err
		}
		co.state = coCompleted
		vm.asyncGenCompleteStep(co, true, ex.Value, true)
		return vm.asyncGenDrain(co)
	}
	return nil
}

// resumeAwait continues a coroutine after an awaited promise settled.
func (vm *VM) resumeAwait(r *promiseReaction, v Value) error {
	co := r.coro
	rejected := r.typ == reactReject
	switch r.await {
	case awaitGenReturn:
		co.state = coCompleted
		vm.asyncGenCompleteStep(co, rejected, v, true)
		return vm.asyncGenDrain(co)
	case awaitYieldReturn:
		mode := ResumeReturn
		if rejected {
			mode = ResumeThrow
		}
		_, err := vm.resume(co, mode, v)
		return ignoreException(err)
	case awaitDelegate:
		mode := r.delegMode
		if rejected {
			mode = resumeRaise
		}
		_, err := vm.resume(co, mode, v)
		return ignoreException(err)
	}
	mode := ResumeNext
	if rejected {
		mode = ResumeThrow
	}
	_, err := vm.resume(co, mode, v)
	return ignoreException(err)
}

// opAwait suspends the running async frame until v settles. It reports
// whether the frame was a boundary, with the value run must return.
func (vm *VM) opAwait(f *Frame, v Value, kind awaitKind, delegMode int) (Value, bool, error) {
	co := f.coro
	if err := vm.awaitValue(co, v, kind, delegMode); err != nil {
		return Undefined, false, err
	}
	vm.suspend(f)
	result := Undefined
	if co.kind == coAsync {
		result = ObjectValue(co.promise)
	}
	return result, vm.popFrameWithResult(result), nil
}

// opYield handles OpYield. For async generators the head request is
// settled and, when more requests are queued, execution continues
// without suspending.
func (vm *VM) opYield(f *Frame, v Value) (Value, bool, bool, error) {
	co := f.coro
	if co.kind == coAsyncGenerator {
		vm.asyncGenCompleteStep(co, false, v, false)
		if len(co.queue) > 0 {
			req := co.queue[0]
			switch req.mode {
			case ResumeNext:
				vm.push(req.value)
				return Undefined, false, true, nil
			case ResumeThrow:
				return Undefined, false, false, &Exception{Value: req.value}
			}
			r, boundary, err := vm.opAwait(f, req.value, awaitYieldReturn, 0)
			return r, boundary, false, err
		}
		v = Undefined
	}
	co.state = coSuspendedYield
	vm.suspend(f)
	return v, vm.popFrameWithResult(v), false, nil
}
