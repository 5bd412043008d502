package compiler

import (
	"strings"

	"ecmavm/pkg/vm"
)

// Binding is a declared name and the environment slot that holds it.
type Binding struct {
	Name  string
	Slot  int
	Flags vm.BindingFlags
}

// IsConst reports whether assignments to the binding must fail.
func (b *Binding) IsConst() bool {
	return b.Flags&vm.BindingMutable == 0 && b.Flags&vm.BindingFuncName == 0
}

// IsLexical reports whether the binding starts in its temporal dead zone.
func (b *Binding) IsLexical() bool { return b.Flags&vm.BindingLexical != 0 }

// Scope is the compile-time mirror of one environment record. Scopes
// without bindings materialize no environment at run time and are skipped
// when counting environment hops.
type Scope struct {
	Outer *Scope
	Kind  vm.ScopeKind
	store map[string]*Binding
	info  *vm.ScopeInfo

	hasEnv bool
	// function scopes mark the boundary of a compiled chunk
	function bool
	// the scope of a script whose top-level declarations live in the realm
	global bool
}

// NewScope creates a scope enclosed by outer (nil for a script).
func NewScope(kind vm.ScopeKind, outer *Scope) *Scope {
	return &Scope{
		Outer: outer,
		Kind:  kind,
		store: make(map[string]*Binding),
		info:  &vm.ScopeInfo{Kind: kind},
	}
}

// Define adds a binding to this scope. Redefining a name returns the
// existing binding, which keeps duplicate parameters and var
// redeclarations on one slot.
func (s *Scope) Define(name string, flags vm.BindingFlags) *Binding {
	if b, ok := s.store[name]; ok {
		return b
	}
	b := &Binding{Name: name, Slot: len(s.info.Names), Flags: flags}
	s.store[name] = b
	s.info.Names = append(s.info.Names, name)
	s.info.Flags = append(s.info.Flags, flags)
	s.hasEnv = true
	return b
}

// DefineHidden adds an internal slot that dynamic lookups never see.
func (s *Scope) DefineHidden(name string, flags vm.BindingFlags) *Binding {
	return s.Define(name, flags|vm.BindingHidden)
}

// Lookup returns the binding for name declared directly in this scope.
func (s *Scope) Lookup(name string) (*Binding, bool) {
	b, ok := s.store[name]
	return b, ok
}

// Info returns the runtime shape of the scope.
func (s *Scope) Info() *vm.ScopeInfo { return s.info }

// HasEnv reports whether entering the scope creates an environment.
func (s *Scope) HasEnv() bool { return s.hasEnv || s.Kind == vm.ScopeWith }

// refKind classifies how a name reference is compiled.
type refKind int

const (
	refLocal   refKind = iota // slot at a known environment depth
	refGlobal                 // global lexical record, then the global object
	refDynamic                // looked up by name through with environments
)

// resolution is the result of resolving a name from a scope.
type resolution struct {
	kind    refKind
	depth   int
	binding *Binding
}

// internalName reports names that no source identifier can spell.
func internalName(name string) bool {
	return strings.HasPrefix(name, "%") || strings.HasPrefix(name, "#")
}

// Resolve looks a name up from s outward. Environments without the name
// add one hop each; crossing a with environment makes the reference
// dynamic since the object may gain or lose the property at run time.
func (s *Scope) Resolve(name string) resolution {
	depth := 0
	dynamic := false
	for sc := s; sc != nil; sc = sc.Outer {
		if sc.Kind == vm.ScopeWith {
			if !internalName(name) {
				dynamic = true
			}
			depth++
			continue
		}
		if b, ok := sc.store[name]; ok {
			if dynamic {
				return resolution{kind: refDynamic}
			}
			return resolution{kind: refLocal, depth: depth, binding: b}
		}
		if sc.HasEnv() {
			depth++
		}
	}
	if dynamic {
		return resolution{kind: refDynamic}
	}
	return resolution{kind: refGlobal}
}

// newFunctionScope creates the scope of a compiled chunk. Its environment
// is created by the call itself, so it always exists.
func newFunctionScope(outer *Scope) *Scope {
	s := NewScope(vm.ScopeFunction, outer)
	s.function = true
	s.hasEnv = true
	return s
}

// functionScope returns the nearest enclosing function scope.
func (s *Scope) functionScope() *Scope {
	for sc := s; sc != nil; sc = sc.Outer {
		if sc.function {
			return sc
		}
	}
	return nil
}

// depthOf counts the environments from s out to the enclosing scope
// target.
func (s *Scope) depthOf(target *Scope) int {
	depth := 0
	for sc := s; sc != nil && sc != target; sc = sc.Outer {
		if sc.HasEnv() {
			depth++
		}
	}
	return depth
}
