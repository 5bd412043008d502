package builtins

import (
	"ecmavm/pkg/vm"
)

// ErrorInitializer implements Error, the native error constructors and
// AggregateError.
type ErrorInitializer struct{}

func (e *ErrorInitializer) Name() string {
	return "Error"
}

func (e *ErrorInitializer) Priority() int {
	return PriorityError
}

func (e *ErrorInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	errorProto := machine.NewObject()
	errorProto.SetOwn("name", vm.StringValue("Error"), vm.FlagsHidden)
	errorProto.SetOwn("message", vm.StringValue(""), vm.FlagsHidden)
	method(machine, errorProto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o := this.AsObject()
		if o == nil {
			return vm.Undefined, machine.NewTypeError("Error.prototype.toString called on non-object")
		}
		name, err := stringProperty(machine, o, "name", "Error")
		if err != nil {
			return vm.Undefined, err
		}
		msg, err := stringProperty(machine, o, "message", "")
		if err != nil {
			return vm.Undefined, err
		}
		switch {
		case name == "":
			return vm.StringValue(msg), nil
		case msg == "":
			return vm.StringValue(name), nil
		}
		return vm.StringValue(name + ": " + msg), nil
	})
	in.ErrorPrototype = errorProto

	errorCtor := e.errorConstructor(machine, "Error", func(in *vm.Intrinsics) *vm.Object { return in.ErrorPrototype })
	linkConstructor(errorCtor, errorProto)
	if err := ctx.DefineGlobal("Error", vm.ObjectValue(errorCtor)); err != nil {
		return err
	}

	natives := []struct {
		name string
		slot func(*vm.Intrinsics) **vm.Object
	}{
		{"EvalError", func(in *vm.Intrinsics) **vm.Object { return &in.EvalErrorPrototype }},
		{"RangeError", func(in *vm.Intrinsics) **vm.Object { return &in.RangeErrorPrototype }},
		{"ReferenceError", func(in *vm.Intrinsics) **vm.Object { return &in.ReferenceErrorPrototype }},
		{"SyntaxError", func(in *vm.Intrinsics) **vm.Object { return &in.SyntaxErrorPrototype }},
		{"TypeError", func(in *vm.Intrinsics) **vm.Object { return &in.TypeErrorPrototype }},
		{"URIError", func(in *vm.Intrinsics) **vm.Object { return &in.URIErrorPrototype }},
	}
	for _, n := range natives {
		slot := n.slot
		proto := machine.NewObjectWithProto(errorProto)
		proto.SetOwn("name", vm.StringValue(n.name), vm.FlagsHidden)
		proto.SetOwn("message", vm.StringValue(""), vm.FlagsHidden)
		*slot(in) = proto
		ctor := e.errorConstructor(machine, n.name, func(in *vm.Intrinsics) *vm.Object { return *slot(in) })
		ctor.SetPrototypeOf(errorCtor)
		linkConstructor(ctor, proto)
		if err := ctx.DefineGlobal(n.name, vm.ObjectValue(ctor)); err != nil {
			return err
		}
	}

	aggregateProto := machine.NewObjectWithProto(errorProto)
	aggregateProto.SetOwn("name", vm.StringValue("AggregateError"), vm.FlagsHidden)
	aggregateProto.SetOwn("message", vm.StringValue(""), vm.FlagsHidden)
	in.AggregateErrorPrototype = aggregateProto
	construct := func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
		o, err := newErrorFromConstructor(machine, newTarget, func(in *vm.Intrinsics) *vm.Object { return in.AggregateErrorPrototype }, arg(args, 1), arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		errors, err := machine.IterableToList(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		o.SetOwn("errors", vm.ObjectValue(machine.NewArray(errors)), vm.FlagsHidden)
		return vm.ObjectValue(o), nil
	}
	var aggregateCtor *vm.Object
	aggregateCtor = machine.NewNativeConstructor("AggregateError", 2,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return construct(machine, args, aggregateCtor)
		}, construct)
	aggregateCtor.SetPrototypeOf(errorCtor)
	linkConstructor(aggregateCtor, aggregateProto)
	return ctx.DefineGlobal("AggregateError", vm.ObjectValue(aggregateCtor))
}

func (e *ErrorInitializer) errorConstructor(machine *vm.VM, name string, fallback func(*vm.Intrinsics) *vm.Object) *vm.Object {
	var ctor *vm.Object
	construct := func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
		o, err := newErrorFromConstructor(machine, newTarget, fallback, arg(args, 0), arg(args, 1))
		return vm.ObjectValue(o), err
	}
	ctor = machine.NewNativeConstructor(name, 1,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return construct(machine, args, ctor)
		}, construct)
	return ctor
}

// newErrorFromConstructor creates an error object for newTarget with the
// message and options.cause of a native error constructor call.
func newErrorFromConstructor(machine *vm.VM, newTarget *vm.Object, fallback func(*vm.Intrinsics) *vm.Object, message, options vm.Value) (*vm.Object, error) {
	proto, err := machine.GetPrototypeFromConstructor(newTarget, fallback)
	if err != nil {
		return nil, err
	}
	o := machine.NewObjectOfClass(vm.ClassError, proto, nil)
	if !message.IsUndefined() {
		msg, err := machine.ToString(message)
		if err != nil {
			return nil, err
		}
		o.SetOwn("message", vm.StringValue(msg), vm.FlagsHidden)
	}
	if opts := options.AsObject(); opts != nil && opts.HasProperty(vm.StringKey("cause")) {
		cause, err := machine.GetStr(opts, "cause")
		if err != nil {
			return nil, err
		}
		o.SetOwn("cause", cause, vm.FlagsHidden)
	}
	return o, nil
}

// stringProperty reads o[name] as a string, def when undefined.
func stringProperty(machine *vm.VM, o *vm.Object, name, def string) (string, error) {
	v, err := machine.GetStr(o, name)
	if err != nil || v.IsUndefined() {
		return def, err
	}
	return machine.ToString(v)
}
