package builtins

import (
	"ecmavm/pkg/vm"
)

// AsyncGeneratorInitializer fills in %AsyncGeneratorPrototype%. Requests
// are queued on the generator and answered with promises.
type AsyncGeneratorInitializer struct{}

func (g *AsyncGeneratorInitializer) Name() string {
	return "AsyncGenerator"
}

func (g *AsyncGeneratorInitializer) Priority() int {
	return PriorityAsyncGenerator
}

func (g *AsyncGeneratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	proto := in.AsyncGeneratorPrototype
	proto.SetPrototypeOf(in.AsyncIteratorPrototype)
	toStringTag(proto, "AsyncGenerator")

	enqueue := func(name string, mode int) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return machine.AsyncGeneratorEnqueue(this, mode, arg(args, 0), "AsyncGenerator.prototype."+name)
		})
	}
	enqueue("next", vm.ResumeNext)
	enqueue("return", vm.ResumeReturn)
	enqueue("throw", vm.ResumeThrow)
	return nil
}
