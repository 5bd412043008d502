package builtins

import (
	"ecmavm/pkg/vm"
)

// BuiltinInitializer is implemented by each builtin module
type BuiltinInitializer interface {
	// Name returns the module name (e.g., "Array", "String", "Math")
	Name() string

	// Priority returns initialization order (lower = earlier)
	Priority() int

	// InitRuntime creates the runtime values of the module in ctx.Realm
	InitRuntime(ctx *RuntimeContext) error
}

// RuntimeContext provides everything needed for runtime initialization
type RuntimeContext struct {
	// The VM instance
	VM *vm.VM

	// The realm being populated; it is the current realm of VM while
	// initializers run
	Realm *vm.Realm

	// Define a global value
	DefineGlobal func(name string, value vm.Value) error
}

// Intrinsics returns the intrinsic table of the realm being populated.
func (ctx *RuntimeContext) Intrinsics() *vm.Intrinsics { return &ctx.Realm.Intrinsics }

// Priority constants for initialization order
const (
	PriorityObject         = 0  // Object must be first (base prototype)
	PriorityFunction       = 1  // Function second (inherits from Object)
	PriorityIterator       = 2  // Iterator prototypes (needed for iterables)
	PriorityArray          = 3  // Array third (inherits from Object, implements Iterable)
	PriorityError          = 4  // Error hierarchy, before anything that throws
	PriorityGenerator      = 5  // Generator objects (inherits from Object, implements Iterable)
	PriorityAsyncGenerator = 6  // AsyncGenerator objects (like Generator but returns Promises)
	PriorityString         = 10 // String primitives
	PriorityNumber         = 11 // Number primitives
	PriorityBoolean        = 12 // Boolean primitives
	PriorityRegExp         = 13 // RegExp constructor
	PrioritySymbol         = 14 // Symbol primitives
	PriorityBigInt         = 15 // BigInt primitives
	PriorityPromise        = 20 // Promise and async function prototypes
	PriorityMap            = 21
	PrioritySet            = 22
	PriorityWeakMap        = 23
	PriorityWeakSet        = 24
	PriorityWeakRef        = 25 // WeakRef and FinalizationRegistry
	PriorityReflect        = 30
	PriorityMath           = 100 // Math object
	PriorityJSON           = 101 // JSON object
	PriorityConsole        = 102 // Console object
	PriorityDate           = 103 // Date constructor
	PriorityGlobals        = 110 // globalThis, eval and the global functions
	PriorityHost           = 120 // host hooks ($262), last
)
