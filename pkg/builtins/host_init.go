package builtins

import (
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

// HostInitializer installs $262, the host object test harnesses use to
// create realms, evaluate scripts and trigger collection.
type HostInitializer struct{}

func (h *HostInitializer) Name() string {
	return "$262"
}

func (h *HostInitializer) Priority() int {
	return PriorityHost
}

func (h *HostInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	realm := ctx.Realm
	host := machine.NewObject()

	method(machine, host, "createRealm", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		r, err := NewRealm(machine)
		if err != nil {
			return vm.Undefined, err
		}
		log.Debugf("created realm %d", len(machine.Realms()))
		return r.Host["$262"], nil
	})
	method(machine, host, "evalScript", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		src, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return evalScript(machine, realm, source.NewSourceFile("<evalScript>", "", src), false)
	})
	method(machine, host, "gc", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		machine.RequestGC()
		return vm.Undefined, nil
	})
	host.SetOwn("global", realm.GlobalThis(), vm.FlagsHidden)

	realm.Host["$262"] = vm.ObjectValue(host)
	return ctx.DefineGlobal("$262", vm.ObjectValue(host))
}
