package builtins

import (
	"math"
	"strings"

	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

type RegExpInitializer struct{}

func (r *RegExpInitializer) Name() string {
	return "RegExp"
}

func (r *RegExpInitializer) Priority() int {
	return PriorityRegExp
}

func (r *RegExpInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	regexpProto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.RegExpPrototype = regexpProto

	var regexpCtor *vm.Object
	regexpCtor = machine.NewNativeConstructor("RegExp", 2,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return constructRegExp(machine, args, regexpCtor, true)
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			return constructRegExp(machine, args, newTarget, false)
		})
	linkConstructor(regexpCtor, regexpProto)
	speciesGetter(machine, regexpCtor)
	ctx.Realm.SetIntrinsic("RegExp", regexpCtor)

	r.initPrototype(machine, regexpProto)
	r.initSymbols(machine, regexpProto)
	r.initIterator(ctx)

	return ctx.DefineGlobal("RegExp", vm.ObjectValue(regexpCtor))
}

// constructRegExp implements the RegExp constructor. A call without new
// passes the constructor itself as newTarget.
func constructRegExp(machine *vm.VM, args []vm.Value, newTarget *vm.Object, called bool) (vm.Value, error) {
	pattern, flags := arg(args, 0), arg(args, 1)
	patternIsRegExp, err := isRegExp(machine, pattern)
	if err != nil {
		return vm.Undefined, err
	}
	if called && patternIsRegExp && flags.IsUndefined() {
		c, err := machine.GetV(pattern, vm.StringKey("constructor"))
		if err != nil {
			return vm.Undefined, err
		}
		if vm.SameValue(c, vm.ObjectValue(newTarget)) {
			return pattern, nil
		}
	}
	var p, f vm.Value
	if re, ok := vm.RegExpOf(pattern); ok {
		p = vm.StringValue(re.Source)
		f = flags
		if flags.IsUndefined() {
			f = vm.StringValue(re.Flags)
		}
	} else if patternIsRegExp {
		if p, err = machine.GetV(pattern, vm.StringKey("source")); err != nil {
			return vm.Undefined, err
		}
		f = flags
		if flags.IsUndefined() {
			if f, err = machine.GetV(pattern, vm.StringKey("flags")); err != nil {
				return vm.Undefined, err
			}
		}
	} else {
		p, f = pattern, flags
	}
	proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.RegExpPrototype })
	if err != nil {
		return vm.Undefined, err
	}
	ps, fs, err := regexpSourceAndFlags(machine, p, f)
	if err != nil {
		return vm.Undefined, err
	}
	o, err := machine.NewRegExp(ps, fs)
	if err != nil {
		return vm.Undefined, err
	}
	o.SetPrototypeOf(proto)
	return vm.ObjectValue(o), nil
}

func regexpSourceAndFlags(machine *vm.VM, p, f vm.Value) (string, string, error) {
	var ps, fs string
	var err error
	if !p.IsUndefined() {
		if ps, err = machine.ToString(p); err != nil {
			return "", "", err
		}
	}
	if !f.IsUndefined() {
		if fs, err = machine.ToString(f); err != nil {
			return "", "", err
		}
	}
	return ps, fs, nil
}

func setLastIndex(machine *vm.VM, o *vm.Object, i int64) error {
	_, err := setOrThrow(machine, o, vm.StringKey("lastIndex"), vm.NumberValue(float64(i)))
	return err
}

func getLastIndex(machine *vm.VM, o *vm.Object) (int64, error) {
	v, err := machine.GetStr(o, "lastIndex")
	if err != nil {
		return 0, err
	}
	return machine.ToLength(v)
}

// advanceStringIndex implements AdvanceStringIndex.
func advanceStringIndex(s string, index int64, unicode bool) int64 {
	if !unicode {
		return index + 1
	}
	first, ok := source.UnitAt(s, int(index))
	if !ok || first < 0xD800 || first > 0xDBFF {
		return index + 1
	}
	if second, ok := source.UnitAt(s, int(index)+1); ok && second >= 0xDC00 && second <= 0xDFFF {
		return index + 2
	}
	return index + 1
}

// regexpBuiltinExec implements RegExpBuiltinExec.
func regexpBuiltinExec(machine *vm.VM, o *vm.Object, re *vm.RegExp, s string) (vm.Value, error) {
	lastIndex, err := getLastIndex(machine, o)
	if err != nil {
		return vm.Undefined, err
	}
	global, sticky := re.Global, re.Sticky
	if !global && !sticky {
		lastIndex = 0
	}
	length := int64(source.UnitLength(s))
	if lastIndex > length {
		if global || sticky {
			if err := setLastIndex(machine, o, 0); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.Null, nil
	}
	m, err := re.Exec(s, int(lastIndex))
	if err != nil {
		return vm.Undefined, machine.NewRangeError("Regular expression match failed: %s", err.Error())
	}
	if m == nil {
		if global || sticky {
			if err := setLastIndex(machine, o, 0); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.Null, nil
	}
	if global || sticky {
		if err := setLastIndex(machine, o, int64(m.End)); err != nil {
			return vm.Undefined, err
		}
	}

	elems := make([]vm.Value, len(m.Groups))
	for i, g := range m.Groups {
		if i == 0 {
			g = [2]int{m.Start, m.End}
		}
		if g[0] < 0 {
			elems[i] = vm.Undefined
			continue
		}
		elems[i] = vm.StringValue(source.Slice(s, g[0], g[1]))
	}
	a := machine.NewArray(elems)
	a.SetOwn("index", vm.IntValue(m.Start), vm.FlagsDefault)
	a.SetOwn("input", vm.StringValue(s), vm.FlagsDefault)

	groups := vm.Undefined
	var groupObj *vm.Object
	if re.HasNamedGroups() {
		groupObj = machine.NewObjectWithProto(nil)
		for i, name := range m.Names {
			if name == "" {
				continue
			}
			// with duplicate names the participating group wins
			if prev, ok := groupObj.GetOwnProperty(vm.StringKey(name)); ok && !prev.Value.IsUndefined() {
				continue
			}
			groupObj.SetOwn(name, elems[i], vm.FlagsDefault)
		}
		groups = vm.ObjectValue(groupObj)
	}
	a.SetOwn("groups", groups, vm.FlagsDefault)

	if re.HasIndices {
		pairs := make([]vm.Value, len(m.Groups))
		var groupIndices *vm.Object
		if groupObj != nil {
			groupIndices = machine.NewObjectWithProto(nil)
		}
		for i, g := range m.Groups {
			if i == 0 {
				g = [2]int{m.Start, m.End}
			}
			pairs[i] = vm.Undefined
			if g[0] >= 0 {
				pairs[i] = vm.ObjectValue(machine.NewArray([]vm.Value{vm.IntValue(g[0]), vm.IntValue(g[1])}))
			}
			if groupIndices != nil && i < len(m.Names) && m.Names[i] != "" {
				if prev, ok := groupIndices.GetOwnProperty(vm.StringKey(m.Names[i])); ok && !prev.Value.IsUndefined() {
					continue
				}
				groupIndices.SetOwn(m.Names[i], pairs[i], vm.FlagsDefault)
			}
		}
		indices := machine.NewArray(pairs)
		gi := vm.Undefined
		if groupIndices != nil {
			gi = vm.ObjectValue(groupIndices)
		}
		indices.SetOwn("groups", gi, vm.FlagsDefault)
		a.SetOwn("indices", vm.ObjectValue(indices), vm.FlagsDefault)
	}
	return vm.ObjectValue(a), nil
}

// regexpExec implements RegExpExec: a user exec method wins over the
// builtin matcher.
func regexpExec(machine *vm.VM, o *vm.Object, s string) (vm.Value, error) {
	exec, err := machine.GetStr(o, "exec")
	if err != nil {
		return vm.Undefined, err
	}
	if exec.IsCallable() {
		result, err := machine.Call(exec, vm.ObjectValue(o), []vm.Value{vm.StringValue(s)})
		if err != nil {
			return vm.Undefined, err
		}
		if !result.IsObject() && !result.IsNull() {
			return vm.Undefined, machine.NewTypeError("exec result must be an object or null")
		}
		return result, nil
	}
	re, ok := vm.RegExpOf(vm.ObjectValue(o))
	if !ok {
		return vm.Undefined, machine.NewTypeError("RegExp exec method called on an incompatible receiver %s", machine.ToDisplayString(vm.ObjectValue(o)))
	}
	return regexpBuiltinExec(machine, o, re, s)
}

func thisRegExpObject(machine *vm.VM, this vm.Value, name string) (*vm.Object, error) {
	o := this.AsObject()
	if o == nil {
		return nil, machine.NewTypeError("RegExp.prototype.%s called on non-object %s", name, machine.ToDisplayString(this))
	}
	return o, nil
}

// escapeRegExpPattern renders a pattern so that /source/ reparses to it.
func escapeRegExpPattern(p string) string {
	if p == "" {
		return "(?:)"
	}
	var b strings.Builder
	escaped := false
	for _, c := range p {
		switch {
		case escaped:
			escaped = false
			switch c {
			case '\n':
				b.WriteString("n")
				continue
			case '\r':
				b.WriteString("r")
				continue
			}
		case c == '\\':
			escaped = true
		case c == '/':
			b.WriteString(`\/`)
			continue
		case c == '\n':
			b.WriteString(`\n`)
			continue
		case c == '\r':
			b.WriteString(`\r`)
			continue
		case c == 0x2028:
			b.WriteString(`\u2028`)
			continue
		case c == 0x2029:
			b.WriteString(`\u2029`)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

var regexpFlagGetters = []struct {
	name string
	char byte
	get  func(*vm.RegExp) bool
}{
	{"hasIndices", 'd', func(r *vm.RegExp) bool { return r.HasIndices }},
	{"global", 'g', func(r *vm.RegExp) bool { return r.Global }},
	{"ignoreCase", 'i', func(r *vm.RegExp) bool { return r.IgnoreCase }},
	{"multiline", 'm', func(r *vm.RegExp) bool { return r.Multiline }},
	{"dotAll", 's', func(r *vm.RegExp) bool { return r.DotAll }},
	{"unicode", 'u', func(r *vm.RegExp) bool { return r.Unicode }},
	{"unicodeSets", 'v', func(r *vm.RegExp) bool { return r.UnicodeSets }},
	{"sticky", 'y', func(r *vm.RegExp) bool { return r.Sticky }},
}

func (r *RegExpInitializer) initPrototype(machine *vm.VM, proto *vm.Object) {
	method(machine, proto, "exec", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		re, ok := vm.RegExpOf(this)
		if !ok {
			return vm.Undefined, machine.NewTypeError("RegExp.prototype.exec called on incompatible receiver %s", machine.ToDisplayString(this))
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return regexpBuiltinExec(machine, this.AsObject(), re, s)
	})
	method(machine, proto, "test", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisRegExpObject(machine, this, "test")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		result, err := regexpExec(machine, o, s)
		return vm.BoolValue(!result.IsNull()), err
	})
	method(machine, proto, "toString", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisRegExpObject(machine, this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		var parts [2]string
		for i, name := range []string{"source", "flags"} {
			v, err := machine.GetStr(o, name)
			if err != nil {
				return vm.Undefined, err
			}
			if parts[i], err = machine.ToString(v); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.StringValue("/" + parts[0] + "/" + parts[1]), nil
	})
	method(machine, proto, "compile", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, ok := vm.RegExpOf(this); !ok {
			return vm.Undefined, machine.NewTypeError("RegExp.prototype.compile called on incompatible receiver %s", machine.ToDisplayString(this))
		}
		pattern, flags := arg(args, 0), arg(args, 1)
		if re, ok := vm.RegExpOf(pattern); ok {
			if !flags.IsUndefined() {
				return vm.Undefined, machine.NewTypeError("Cannot supply flags when constructing one RegExp from another")
			}
			pattern, flags = vm.StringValue(re.Source), vm.StringValue(re.Flags)
		}
		ps, fs, err := regexpSourceAndFlags(machine, pattern, flags)
		if err != nil {
			return vm.Undefined, err
		}
		compiled, err := machine.CompileRegExp(ps, fs)
		if err != nil {
			return vm.Undefined, err
		}
		o := this.AsObject()
		o.Internal = compiled
		return this, setLastIndex(machine, o, 0)
	})

	getter(machine, proto, vm.StringKey("flags"), func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisRegExpObject(machine, this, "flags")
		if err != nil {
			return vm.Undefined, err
		}
		var b strings.Builder
		for _, f := range regexpFlagGetters {
			v, err := machine.GetStr(o, f.name)
			if err != nil {
				return vm.Undefined, err
			}
			if vm.ToBoolean(v) {
				b.WriteByte(f.char)
			}
		}
		return vm.StringValue(b.String()), nil
	})
	getter(machine, proto, vm.StringKey("source"), func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := thisRegExpObject(machine, this, "source")
		if err != nil {
			return vm.Undefined, err
		}
		re, ok := vm.RegExpOf(this)
		if !ok {
			if o == machine.CurrentRealm().Intrinsics.RegExpPrototype {
				return vm.StringValue("(?:)"), nil
			}
			return vm.Undefined, machine.NewTypeError("RegExp.prototype.source getter called on non-RegExp object")
		}
		return vm.StringValue(escapeRegExpPattern(re.Source)), nil
	})
	for _, f := range regexpFlagGetters {
		getter(machine, proto, vm.StringKey(f.name), func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			o, err := thisRegExpObject(machine, this, f.name)
			if err != nil {
				return vm.Undefined, err
			}
			re, ok := vm.RegExpOf(this)
			if !ok {
				if o == machine.CurrentRealm().Intrinsics.RegExpPrototype {
					return vm.Undefined, nil
				}
				return vm.Undefined, machine.NewTypeError("RegExp.prototype.%s getter called on non-RegExp object", f.name)
			}
			return vm.BoolValue(f.get(re)), nil
		})
	}
}

// regexpFlags reads rx.flags as a string.
func regexpFlags(machine *vm.VM, rx *vm.Object) (string, error) {
	v, err := machine.GetStr(rx, "flags")
	if err != nil {
		return "", err
	}
	return machine.ToString(v)
}

func unicodeFlag(flags string) bool {
	return strings.ContainsAny(flags, "uv")
}

// advanceAfterEmptyMatch moves lastIndex past an empty match.
func advanceAfterEmptyMatch(machine *vm.VM, rx *vm.Object, s string, fullUnicode bool) error {
	thisIndex, err := getLastIndex(machine, rx)
	if err != nil {
		return err
	}
	return setLastIndex(machine, rx, advanceStringIndex(s, thisIndex, fullUnicode))
}

func matchString(machine *vm.VM, result vm.Value) (string, error) {
	v, err := machine.GetV(result, vm.StringKey("0"))
	if err != nil {
		return "", err
	}
	return machine.ToString(v)
}

func (r *RegExpInitializer) initSymbols(machine *vm.VM, proto *vm.Object) {
	symbolMethod(machine, proto, vm.SymMatch, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, err := thisRegExpObject(machine, this, "[Symbol.match]")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		flags, err := regexpFlags(machine, rx)
		if err != nil {
			return vm.Undefined, err
		}
		if !strings.Contains(flags, "g") {
			return regexpExec(machine, rx, s)
		}
		fullUnicode := unicodeFlag(flags)
		if err := setLastIndex(machine, rx, 0); err != nil {
			return vm.Undefined, err
		}
		var matches []vm.Value
		for {
			result, err := regexpExec(machine, rx, s)
			if err != nil {
				return vm.Undefined, err
			}
			if result.IsNull() {
				if len(matches) == 0 {
					return vm.Null, nil
				}
				return vm.ObjectValue(machine.NewArray(matches)), nil
			}
			m, err := matchString(machine, result)
			if err != nil {
				return vm.Undefined, err
			}
			matches = append(matches, vm.StringValue(m))
			if m == "" {
				if err := advanceAfterEmptyMatch(machine, rx, s, fullUnicode); err != nil {
					return vm.Undefined, err
				}
			}
		}
	})

	symbolMethod(machine, proto, vm.SymMatchAll, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, err := thisRegExpObject(machine, this, "[Symbol.matchAll]")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		c, err := speciesConstructor(machine, rx, machine.CurrentRealm().Intrinsic("RegExp"))
		if err != nil {
			return vm.Undefined, err
		}
		flags, err := regexpFlags(machine, rx)
		if err != nil {
			return vm.Undefined, err
		}
		matcher, err := machine.Construct(c, []vm.Value{vm.ObjectValue(rx), vm.StringValue(flags)}, vm.Undefined)
		if err != nil {
			return vm.Undefined, err
		}
		lastIndex, err := getLastIndex(machine, rx)
		if err != nil {
			return vm.Undefined, err
		}
		if err := setLastIndex(machine, matcher.AsObject(), lastIndex); err != nil {
			return vm.Undefined, err
		}
		it := &regexpStringIterator{
			matcher:     matcher,
			s:           s,
			global:      strings.Contains(flags, "g"),
			fullUnicode: unicodeFlag(flags),
		}
		proto := machine.CurrentRealm().Intrinsic("RegExpStringIteratorPrototype")
		return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassIterator, proto, it)), nil
	})

	symbolMethod(machine, proto, vm.SymReplace, 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, err := thisRegExpObject(machine, this, "[Symbol.replace]")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return regexpReplace(machine, rx, s, arg(args, 1))
	})

	symbolMethod(machine, proto, vm.SymSearch, 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, err := thisRegExpObject(machine, this, "[Symbol.search]")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		previous, err := machine.GetStr(rx, "lastIndex")
		if err != nil {
			return vm.Undefined, err
		}
		if !vm.SameValue(previous, vm.IntValue(0)) {
			if err := setLastIndex(machine, rx, 0); err != nil {
				return vm.Undefined, err
			}
		}
		result, err := regexpExec(machine, rx, s)
		if err != nil {
			return vm.Undefined, err
		}
		current, err := machine.GetStr(rx, "lastIndex")
		if err != nil {
			return vm.Undefined, err
		}
		if !vm.SameValue(current, previous) {
			if _, err := setOrThrow(machine, rx, vm.StringKey("lastIndex"), previous); err != nil {
				return vm.Undefined, err
			}
		}
		if result.IsNull() {
			return vm.IntValue(-1), nil
		}
		return machine.GetV(result, vm.StringKey("index"))
	})

	symbolMethod(machine, proto, vm.SymSplit, 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		rx, err := thisRegExpObject(machine, this, "[Symbol.split]")
		if err != nil {
			return vm.Undefined, err
		}
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return regexpSplit(machine, rx, s, arg(args, 1))
	})
}

func regexpReplace(machine *vm.VM, rx *vm.Object, s string, replaceValue vm.Value) (vm.Value, error) {
	lengthS := source.UnitLength(s)
	functional := replaceValue.IsCallable()
	template := ""
	if !functional {
		var err error
		if template, err = machine.ToString(replaceValue); err != nil {
			return vm.Undefined, err
		}
	}
	flags, err := regexpFlags(machine, rx)
	if err != nil {
		return vm.Undefined, err
	}
	global := strings.Contains(flags, "g")
	fullUnicode := false
	if global {
		fullUnicode = unicodeFlag(flags)
		if err := setLastIndex(machine, rx, 0); err != nil {
			return vm.Undefined, err
		}
	}
	var results []vm.Value
	for {
		result, err := regexpExec(machine, rx, s)
		if err != nil {
			return vm.Undefined, err
		}
		if result.IsNull() {
			break
		}
		results = append(results, result)
		if !global {
			break
		}
		m, err := matchString(machine, result)
		if err != nil {
			return vm.Undefined, err
		}
		if m == "" {
			if err := advanceAfterEmptyMatch(machine, rx, s, fullUnicode); err != nil {
				return vm.Undefined, err
			}
		}
	}

	var b strings.Builder
	next := 0
	for _, result := range results {
		ro := result.AsObject()
		n, err := machine.LengthOfArrayLike(ro)
		if err != nil {
			return vm.Undefined, err
		}
		nCaptures := max(n-1, 0)
		matched, err := matchString(machine, result)
		if err != nil {
			return vm.Undefined, err
		}
		idx, err := machine.GetStr(ro, "index")
		if err != nil {
			return vm.Undefined, err
		}
		pf, err := machine.ToIntegerOrInfinity(idx)
		if err != nil {
			return vm.Undefined, err
		}
		position := int(max(min(pf, float64(lengthS)), 0))
		captures := make([]vm.Value, 0, nCaptures)
		for i := int64(1); i <= nCaptures; i++ {
			c, err := getIndex(machine, ro, i)
			if err != nil {
				return vm.Undefined, err
			}
			if !c.IsUndefined() {
				str, err := machine.ToString(c)
				if err != nil {
					return vm.Undefined, err
				}
				c = vm.StringValue(str)
			}
			captures = append(captures, c)
		}
		named, err := machine.GetStr(ro, "groups")
		if err != nil {
			return vm.Undefined, err
		}
		var replacement string
		if functional {
			callArgs := append([]vm.Value{vm.StringValue(matched)}, captures...)
			callArgs = append(callArgs, vm.IntValue(position), vm.StringValue(s))
			if !named.IsUndefined() {
				callArgs = append(callArgs, named)
			}
			v, err := machine.Call(replaceValue, vm.Undefined, callArgs)
			if err != nil {
				return vm.Undefined, err
			}
			if replacement, err = machine.ToString(v); err != nil {
				return vm.Undefined, err
			}
		} else {
			if !named.IsUndefined() {
				o, err := machine.ToObject(named)
				if err != nil {
					return vm.Undefined, err
				}
				named = vm.ObjectValue(o)
			}
			if replacement, err = getSubstitution(machine, matched, s, position, captures, named, template); err != nil {
				return vm.Undefined, err
			}
		}
		if position >= next {
			b.WriteString(source.Slice(s, next, position))
			b.WriteString(replacement)
			next = position + source.UnitLength(matched)
		}
	}
	if next >= lengthS {
		return vm.StringValue(b.String()), nil
	}
	b.WriteString(source.Slice(s, next, lengthS))
	return vm.StringValue(b.String()), nil
}

func regexpSplit(machine *vm.VM, rx *vm.Object, s string, limit vm.Value) (vm.Value, error) {
	c, err := speciesConstructor(machine, rx, machine.CurrentRealm().Intrinsic("RegExp"))
	if err != nil {
		return vm.Undefined, err
	}
	flags, err := regexpFlags(machine, rx)
	if err != nil {
		return vm.Undefined, err
	}
	unicodeMatching := unicodeFlag(flags)
	newFlags := flags
	if !strings.Contains(flags, "y") {
		newFlags += "y"
	}
	sv, err := machine.Construct(c, []vm.Value{vm.ObjectValue(rx), vm.StringValue(newFlags)}, vm.Undefined)
	if err != nil {
		return vm.Undefined, err
	}
	splitter := sv.AsObject()
	lim := uint32(math.MaxUint32)
	if !limit.IsUndefined() {
		f, err := machine.ToNumber(limit)
		if err != nil {
			return vm.Undefined, err
		}
		lim = vm.ToUint32(f)
	}
	if lim == 0 {
		return vm.ObjectValue(machine.NewArray(nil)), nil
	}
	size := int64(source.UnitLength(s))
	if size == 0 {
		z, err := regexpExec(machine, splitter, s)
		if err != nil {
			return vm.Undefined, err
		}
		if !z.IsNull() {
			return vm.ObjectValue(machine.NewArray(nil)), nil
		}
		return vm.ObjectValue(machine.NewArray([]vm.Value{vm.StringValue(s)})), nil
	}
	var parts []vm.Value
	p, q := int64(0), int64(0)
	for q < size {
		if err := setLastIndex(machine, splitter, q); err != nil {
			return vm.Undefined, err
		}
		z, err := regexpExec(machine, splitter, s)
		if err != nil {
			return vm.Undefined, err
		}
		if z.IsNull() {
			q = advanceStringIndex(s, q, unicodeMatching)
			continue
		}
		e, err := getLastIndex(machine, splitter)
		if err != nil {
			return vm.Undefined, err
		}
		e = min(e, size)
		if e == p {
			q = advanceStringIndex(s, q, unicodeMatching)
			continue
		}
		parts = append(parts, vm.StringValue(source.Slice(s, int(p), int(q))))
		if uint32(len(parts)) == lim {
			return vm.ObjectValue(machine.NewArray(parts)), nil
		}
		p = e
		zo := z.AsObject()
		n, err := machine.LengthOfArrayLike(zo)
		if err != nil {
			return vm.Undefined, err
		}
		for i := int64(1); i < n; i++ {
			capture, err := getIndex(machine, zo, i)
			if err != nil {
				return vm.Undefined, err
			}
			parts = append(parts, capture)
			if uint32(len(parts)) == lim {
				return vm.ObjectValue(machine.NewArray(parts)), nil
			}
		}
		q = p
	}
	parts = append(parts, vm.StringValue(source.Slice(s, int(p), int(size))))
	return vm.ObjectValue(machine.NewArray(parts)), nil
}

// regexpStringIterator is the state of %RegExpStringIteratorPrototype%
// objects created by matchAll.
type regexpStringIterator struct {
	matcher     vm.Value
	s           string
	global      bool
	fullUnicode bool
	done        bool
}

func (it *regexpStringIterator) Trace(m *vm.Marker) { m.Value(it.matcher) }

func (r *RegExpInitializer) initIterator(ctx *RuntimeContext) {
	machine := ctx.VM
	in := ctx.Intrinsics()

	iterProto := machine.NewObjectWithProto(in.IteratorPrototype)
	toStringTag(iterProto, "RegExp String Iterator")
	method(machine, iterProto, "next", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		var it *regexpStringIterator
		if o := this.AsObject(); o != nil {
			it, _ = o.Internal.(*regexpStringIterator)
		}
		if it == nil {
			return vm.Undefined, machine.NewTypeError("next method called on incompatible receiver %s", machine.ToDisplayString(this))
		}
		if it.done {
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		rx := it.matcher.AsObject()
		match, err := regexpExec(machine, rx, it.s)
		if err != nil {
			return vm.Undefined, err
		}
		if match.IsNull() {
			it.done, it.matcher = true, vm.Undefined
			return vm.ObjectValue(machine.CreateIterResult(vm.Undefined, true)), nil
		}
		if !it.global {
			it.done, it.matcher = true, vm.Undefined
			return vm.ObjectValue(machine.CreateIterResult(match, false)), nil
		}
		m, err := matchString(machine, match)
		if err != nil {
			return vm.Undefined, err
		}
		if m == "" {
			if err := advanceAfterEmptyMatch(machine, rx, it.s, it.fullUnicode); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.ObjectValue(machine.CreateIterResult(match, false)), nil
	})
	ctx.Realm.SetIntrinsic("RegExpStringIteratorPrototype", iterProto)
}
