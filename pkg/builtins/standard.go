package builtins

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"

	"ecmavm/pkg/vm"
)

var log = commonlog.GetLogger("ecmavm.builtins")

// GetStandardInitializers returns all built-in initializers sorted by priority
func GetStandardInitializers() []BuiltinInitializer {
	initializers := []BuiltinInitializer{
		&ObjectInitializer{},
		&FunctionInitializer{},
		&IteratorInitializer{},
		&ArrayInitializer{},
		&ErrorInitializer{},
		&GeneratorInitializer{},
		&AsyncGeneratorInitializer{},
		&StringInitializer{},
		&NumberInitializer{},
		&BooleanInitializer{},
		&RegExpInitializer{},
		&SymbolInitializer{},
		&BigIntInitializer{},
		&PromiseInitializer{},
		&MapInitializer{},
		&SetInitializer{},
		&WeakMapInitializer{},
		&WeakSetInitializer{},
		&WeakRefInitializer{},
		&ReflectInitializer{},
		&MathInitializer{},
		&JSONInitializer{},
		&ConsoleInitializer{},
		&DateInitializer{},
		&GlobalsInitializer{},
		&HostInitializer{},
	}

	// Sort by priority (lower numbers first)
	sort.SliceStable(initializers, func(i, j int) bool {
		return initializers[i].Priority() < initializers[j].Priority()
	})

	return initializers
}

// Install runs every standard initializer against realm. Native functions
// are allocated in the current realm, so realm is made current for the
// duration of the call.
func Install(machine *vm.VM, realm *vm.Realm) error {
	prev := machine.CurrentRealm()
	machine.SetCurrentRealm(realm)
	defer machine.SetCurrentRealm(prev)

	ctx := &RuntimeContext{
		VM:    machine,
		Realm: realm,
		DefineGlobal: func(name string, value vm.Value) error {
			realm.DefineGlobal(name, value)
			return nil
		},
	}
	for _, init := range GetStandardInitializers() {
		if err := init.InitRuntime(ctx); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", init.Name(), err)
		}
		log.Debugf("initialized %s", init.Name())
	}
	return nil
}

// NewRealm creates a realm of machine populated with the standard
// builtins.
func NewRealm(machine *vm.VM) (*vm.Realm, error) {
	realm := machine.NewRealm()
	if err := Install(machine, realm); err != nil {
		return nil, err
	}
	return realm, nil
}
