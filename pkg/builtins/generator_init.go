package builtins

import (
	"ecmavm/pkg/vm"
)

// GeneratorInitializer fills in %GeneratorPrototype%. The object itself is
// created together with %GeneratorFunction.prototype%.
type GeneratorInitializer struct{}

func (g *GeneratorInitializer) Name() string {
	return "Generator"
}

func (g *GeneratorInitializer) Priority() int {
	return PriorityGenerator
}

func (g *GeneratorInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	proto := in.GeneratorPrototype
	proto.SetPrototypeOf(in.IteratorPrototype)
	toStringTag(proto, "Generator")

	resume := func(name string, mode int) {
		method(machine, proto, name, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return machine.GeneratorResume(this, mode, arg(args, 0), "Generator.prototype."+name)
		})
	}
	resume("next", vm.ResumeNext)
	resume("return", vm.ResumeReturn)
	resume("throw", vm.ResumeThrow)
	return nil
}
