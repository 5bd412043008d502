package builtins

import (
	"fmt"
	"time"

	"ecmavm/pkg/vm"
)

type ConsoleInitializer struct{}

func (c *ConsoleInitializer) Name() string {
	return "console"
}

func (c *ConsoleInitializer) Priority() int {
	return PriorityConsole
}

func (c *ConsoleInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	consoleObj := machine.NewObject()
	toStringTag(consoleObj, "console")
	state := newConsoleState()

	logger := func(name, prefix string) {
		method(machine, consoleObj, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			msg, err := state.format(machine, args)
			if err != nil {
				return vm.Undefined, err
			}
			state.print(machine, prefix, msg)
			return vm.Undefined, nil
		})
	}
	logger("log", "")
	logger("info", "")
	logger("debug", "")
	logger("error", "")
	logger("warn", "")
	logger("trace", "Trace: ")

	method(machine, consoleObj, "assert", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if vm.ToBoolean(arg(args, 0)) {
			return vm.Undefined, nil
		}
		msg, err := state.format(machine, args[min(1, len(args)):])
		if err != nil {
			return vm.Undefined, err
		}
		if msg == "" {
			state.print(machine, "", "Assertion failed")
		} else {
			state.print(machine, "Assertion failed: ", msg)
		}
		return vm.Undefined, nil
	})
	method(machine, consoleObj, "clear", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		state.depth = 0
		return vm.Undefined, nil
	})
	method(machine, consoleObj, "count", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		label, err := state.label(machine, args)
		if err != nil {
			return vm.Undefined, err
		}
		state.counters[label]++
		state.print(machine, "", fmt.Sprintf("%s: %d", label, state.counters[label]))
		return vm.Undefined, nil
	})
	method(machine, consoleObj, "countReset", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		label, err := state.label(machine, args)
		if err != nil {
			return vm.Undefined, err
		}
		delete(state.counters, label)
		return vm.Undefined, nil
	})
	method(machine, consoleObj, "time", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		label, err := state.label(machine, args)
		if err != nil {
			return vm.Undefined, err
		}
		state.timers[label] = time.Now()
		return vm.Undefined, nil
	})
	timeReport := func(name string, end bool) {
		method(machine, consoleObj, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			label, err := state.label(machine, args)
			if err != nil {
				return vm.Undefined, err
			}
			start, ok := state.timers[label]
			if !ok {
				state.print(machine, "", fmt.Sprintf("Timer '%s' does not exist", label))
				return vm.Undefined, nil
			}
			elapsed := float64(time.Since(start).Nanoseconds()) / 1e6
			state.print(machine, "", fmt.Sprintf("%s: %.3fms", label, elapsed))
			if end {
				delete(state.timers, label)
			}
			return vm.Undefined, nil
		})
	}
	timeReport("timeLog", false)
	timeReport("timeEnd", true)

	group := func(name string) {
		method(machine, consoleObj, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			if len(args) > 0 {
				msg, err := state.format(machine, args)
				if err != nil {
					return vm.Undefined, err
				}
				state.print(machine, "", msg)
			}
			state.depth++
			return vm.Undefined, nil
		})
	}
	group("group")
	group("groupCollapsed")
	method(machine, consoleObj, "groupEnd", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if state.depth > 0 {
			state.depth--
		}
		return vm.Undefined, nil
	})

	if err := ctx.DefineGlobal("console", vm.ObjectValue(consoleObj)); err != nil {
		return err
	}

	// print is the shell convention test harnesses rely on.
	printFn := machine.NewNativeFunction("print", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		msg, err := newConsoleState().format(machine, args)
		if err != nil {
			return vm.Undefined, err
		}
		fmt.Fprintln(machine.Output(), msg)
		return vm.Undefined, nil
	})
	return ctx.DefineGlobal("print", vm.ObjectValue(printFn))
}
