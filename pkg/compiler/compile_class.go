package compiler

import (
	"fmt"

	"ecmavm/pkg/parser"
	"ecmavm/pkg/vm"
)

// classSlots names the hidden class scope bindings of members: computed
// field keys are evaluated once at class definition, instance private
// methods are created once and installed into every instance.
type classSlots struct {
	fieldKeys map[*parser.ClassMember]string
	methods   map[*parser.ClassMember]string
}

func methodDefineKind(k parser.MemberKind) byte {
	switch k {
	case parser.MemberGetter:
		return vm.DefineGetter
	case parser.MemberSetter:
		return vm.DefineSetter
	}
	return vm.DefineMethod
}

func isMethodMember(m *parser.ClassMember) bool {
	switch m.Kind {
	case parser.MemberMethod, parser.MemberGetter, parser.MemberSetter:
		return true
	}
	return false
}

// privateFunctionName is the name of a private method closure.
func privateFunctionName(m *parser.ClassMember, name string) string {
	switch m.Kind {
	case parser.MemberGetter:
		return "get #" + name
	case parser.MemberSetter:
		return "set #" + name
	}
	return "#" + name
}

// compileClass evaluates a class definition and leaves the constructor on
// the stack. The class scope holds the inner name binding, the private
// names and the hidden member slots.
//
//	[heritage] Class            [ctor proto]
//	methods                     defined on proto or ctor
//	instance initializer        SetFieldInit on ctor
//	static elements             run with this = ctor
//	Pop                         [ctor]
func (c *Compiler) compileClass(node *parser.ClassLiteral, name string) {
	c.at(node)
	if node.Name != nil {
		name = node.Name.Value
	}
	outer := c.scope
	scope := NewScope(vm.ScopeClass, outer)
	if node.Name != nil {
		scope.Define(name, vm.BindingLexical)
	}
	var privates []string
	seen := make(map[string]bool)
	for _, m := range node.Members {
		if pn, ok := m.Key.(*parser.PrivateName); ok && !seen[pn.Name] {
			seen[pn.Name] = true
			privates = append(privates, pn.Name)
			scope.DefineHidden("#"+pn.Name, vm.BindingMutable)
		}
	}
	slots := classSlots{
		fieldKeys: make(map[*parser.ClassMember]string),
		methods:   make(map[*parser.ClassMember]string),
	}
	for i, m := range node.Members {
		switch {
		case m.Kind == parser.MemberField && m.Computed:
			slots.fieldKeys[m] = fmt.Sprintf("%%fk%d", i)
			scope.DefineHidden(slots.fieldKeys[m], vm.BindingMutable)
		case isMethodMember(m) && m.IsPrivate() && !m.Static:
			slots.methods[m] = fmt.Sprintf("%%pm%d", i)
			scope.DefineHidden(slots.methods[m], vm.BindingMutable)
		}
	}

	var envCtl *control
	if scope.HasEnv() {
		envCtl = c.enterScope(scope)
	} else {
		c.scope = scope
	}
	for _, p := range privates {
		c.emitName(vm.OpPrivateName, p)
		c.emitInitBinding("#" + p)
	}

	hasHeritage := 0
	if node.SuperClass != nil {
		c.compileExpression(node.SuperClass)
		hasHeritage = 1
	}
	var ctor *vm.FunctionTemplate
	if node.Constructor != nil {
		ctor = c.compileFunction(node.Constructor, name, false)
		ctor.Name = name
	} else {
		ctor = c.compileDefaultConstructor(name, node.SuperClass != nil, node.Source)
	}
	ctor.Source = node.Source
	c.at(node)
	c.emit(vm.OpClass, int(c.chunk.AddFunction(ctor)), hasHeritage)

	var instance, static, privateMethods []*parser.ClassMember
	for _, m := range node.Members {
		c.atToken(m.Token)
		switch m.Kind {
		case parser.MemberMethod, parser.MemberGetter, parser.MemberSetter:
			c.compileClassMethod(m, slots)
			if _, ok := slots.methods[m]; ok {
				privateMethods = append(privateMethods, m)
			}
		case parser.MemberField:
			if key, ok := slots.fieldKeys[m]; ok {
				c.compileExpression(m.Key)
				c.emit(vm.OpToPropertyKey)
				c.emitInitBinding(key)
			}
			if m.Static {
				static = append(static, m)
			} else {
				instance = append(instance, m)
			}
		case parser.MemberStaticBlock:
			static = append(static, m)
		}
	}

	if len(instance) > 0 || len(privateMethods) > 0 {
		t := c.compileInitializer(name, instance, privateMethods, slots)
		c.emit(vm.OpOver)
		c.emit(vm.OpOver)
		c.emit(vm.OpClosure, int(c.chunk.AddFunction(t)))
		c.emit(vm.OpSetHome)
		c.emit(vm.OpSwap)
		c.emit(vm.OpPop)
		c.emit(vm.OpSetFieldInit)
		c.emit(vm.OpPop)
	}
	if node.Name != nil {
		c.emit(vm.OpOver)
		c.emitInitBinding(name)
	}
	if len(static) > 0 {
		t := c.compileInitializer(name, static, nil, slots)
		c.emit(vm.OpOver)
		c.emit(vm.OpClosure, int(c.chunk.AddFunction(t)))
		c.emit(vm.OpSetHome)
		c.emit(vm.OpSwap)
		c.emit(vm.OpCall, 0)
		c.emit(vm.OpPop)
	}
	c.emit(vm.OpPop)

	if envCtl != nil {
		c.leaveScope(envCtl)
	} else {
		c.scope = outer
	}
}

// compileClassMethod defines a method or accessor with the stack at
// [ctor proto].
func (c *Compiler) compileClassMethod(m *parser.ClassMember, slots classSlots) {
	fn := m.Value.(*parser.FunctionLiteral)
	kind := methodDefineKind(m.Kind)

	if pn, ok := m.Key.(*parser.PrivateName); ok {
		fname := privateFunctionName(m, pn.Name)
		if m.Static {
			// [ctor proto] -> [ctor proto ctor name fn] -> [ctor proto]
			c.emit(vm.OpOver)
			c.loadPrivateName(pn.Name)
			c.emit(vm.OpPick, 1)
			c.emitClosure(fn, fname)
			c.emit(vm.OpSetHome)
			c.emit(vm.OpSwap)
			c.emit(vm.OpPop)
			c.emit(vm.OpDefinePrivateMethod, int(kind))
			c.emit(vm.OpPop)
			return
		}
		c.emit(vm.OpDup)
		c.emitClosure(fn, fname)
		c.emit(vm.OpSetHome)
		c.emit(vm.OpSwap)
		c.emit(vm.OpPop)
		c.emitInitBinding(slots.methods[m])
		return
	}

	if m.Static {
		c.emit(vm.OpOver)
	}
	name := ""
	if m.Computed {
		c.compileExpression(m.Key)
		c.emit(vm.OpToPropertyKey)
	} else {
		name = propertyKeyString(m.Key)
		c.emitString(name)
	}
	c.emitClosure(fn, name)
	c.emit(vm.OpDefineProperty, int(kind))
	if m.Static {
		c.emit(vm.OpPop)
	}
}

// compileInitializer builds the function that initializes the elements of
// an instance (called by the constructor through InitFields) or the static
// elements of the class (called once with the constructor as this).
func (c *Compiler) compileInitializer(className string, elems, privateMethods []*parser.ClassMember, slots classSlots) *vm.FunctionTemplate {
	fc := newFunctionCompiler(c)
	fc.kind = vm.FuncFieldInit
	fc.strict = true
	scope := newFunctionScope(c.scope)
	fc.scope, fc.funcScope = scope, scope
	fc.tmpl = &vm.FunctionTemplate{
		Name:       className,
		Kind:       vm.FuncFieldInit,
		Strict:     true,
		Scope:      scope.Info(),
		Chunk:      fc.chunk,
		SourceName: c.opts.SourceName,
	}

	var values []parser.Node
	for _, m := range elems {
		if m.Kind == parser.MemberField && m.Value != nil {
			values = append(values, m.Value)
		}
	}
	fc.bindActivation(scanUsage(values...))

	for _, m := range privateMethods {
		fc.atToken(m.Token)
		fc.emit(vm.OpThisArg)
		fc.loadPrivateName(m.Key.(*parser.PrivateName).Name)
		fc.loadName(slots.methods[m])
		fc.emit(vm.OpDefinePrivateMethod, int(methodDefineKind(m.Kind)))
		fc.emit(vm.OpPop)
	}

	for _, m := range elems {
		fc.atToken(m.Token)
		if m.Kind == parser.MemberStaticBlock {
			fc.emit(vm.OpHomeObject)
			fc.emitClosure(m.Value.(*parser.FunctionLiteral), "")
			fc.emit(vm.OpSetHome)
			fc.emit(vm.OpSwap)
			fc.emit(vm.OpPop)
			fc.emit(vm.OpThisArg)
			fc.emit(vm.OpCall, 0)
			fc.emit(vm.OpPop)
			continue
		}
		fc.emit(vm.OpThisArg)
		switch key := m.Key.(type) {
		case *parser.PrivateName:
			fc.loadPrivateName(key.Name)
			fc.compileFieldValue(m.Value, "#"+key.Name)
			fc.emit(vm.OpDefinePrivate)
		default:
			kind := vm.DefineData | vm.DefineEnumerable
			if slot, ok := slots.fieldKeys[m]; ok {
				fc.loadName(slot)
				fc.compileFieldValue(m.Value, "")
				kind |= vm.DefineSetName
			} else {
				name := propertyKeyString(m.Key)
				fc.emitString(name)
				fc.compileFieldValue(m.Value, name)
			}
			fc.emit(vm.OpDefineProperty, int(kind))
		}
		fc.emit(vm.OpPop)
	}
	fc.emit(vm.OpUndefined)
	fc.emit(vm.OpReturn)
	fc.finish()
	return fc.tmpl
}

func (c *Compiler) compileFieldValue(value parser.Expression, name string) {
	if value == nil {
		c.emit(vm.OpUndefined)
		return
	}
	c.compileNamedExpression(value, name)
}
