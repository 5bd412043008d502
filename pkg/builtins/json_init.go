package builtins

import (
	"math"
	"strings"

	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string {
	return "JSON"
}

func (j *JSONInitializer) Priority() int {
	return PriorityJSON
}

func (j *JSONInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	jsonObj := machine.NewObject()
	toStringTag(jsonObj, "JSON")

	method(machine, jsonObj, "parse", 2, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		text, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		v, err := parseJSON(machine, text)
		if err != nil {
			return vm.Undefined, err
		}
		reviver := arg(args, 1)
		if !reviver.IsCallable() {
			return v, nil
		}
		root := machine.NewObject()
		if _, err := machine.CreateDataProperty(root, vm.StringKey(""), v); err != nil {
			return vm.Undefined, err
		}
		return internalizeJSONProperty(machine, root, vm.StringKey(""), reviver)
	})

	method(machine, jsonObj, "stringify", 3, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		st := &jsonStringifier{machine: machine}
		if err := st.setReplacer(arg(args, 1)); err != nil {
			return vm.Undefined, err
		}
		if err := st.setGap(arg(args, 2)); err != nil {
			return vm.Undefined, err
		}
		wrapper := machine.NewObject()
		if _, err := machine.CreateDataProperty(wrapper, vm.StringKey(""), arg(args, 0)); err != nil {
			return vm.Undefined, err
		}
		s, ok, err := st.property(wrapper, vm.StringKey(""))
		if err != nil || !ok {
			return vm.Undefined, err
		}
		return vm.StringValue(s), nil
	})

	return ctx.DefineGlobal("JSON", vm.ObjectValue(jsonObj))
}

// internalizeJSONProperty walks the parsed value bottom-up, passing every
// property through reviver.
func internalizeJSONProperty(machine *vm.VM, holder *vm.Object, name vm.PropertyKey, reviver vm.Value) (vm.Value, error) {
	val, err := machine.Get(holder, name, vm.ObjectValue(holder))
	if err != nil {
		return vm.Undefined, err
	}
	if o := val.AsObject(); o != nil {
		revive := func(key vm.PropertyKey) error {
			nv, err := internalizeJSONProperty(machine, o, key, reviver)
			if err != nil {
				return err
			}
			if nv.IsUndefined() {
				o.Delete(key)
				return nil
			}
			_, err = machine.CreateDataProperty(o, key, nv)
			return err
		}
		if o.Class() == vm.ClassArray {
			n, err := machine.LengthOfArrayLike(o)
			if err != nil {
				return vm.Undefined, err
			}
			for i := int64(0); i < n; i++ {
				if err := revive(indexKey(i)); err != nil {
					return vm.Undefined, err
				}
			}
		} else {
			keys, err := enumerableOwnProperties(machine, o, iterKeys)
			if err != nil {
				return vm.Undefined, err
			}
			for _, k := range keys {
				if err := revive(vm.StringKey(k.AsString())); err != nil {
					return vm.Undefined, err
				}
			}
		}
	}
	return machine.Call(reviver, vm.ObjectValue(holder), []vm.Value{name.Value(), val})
}

// maxJSONDepth bounds the nesting of serialized values.
const maxJSONDepth = 10000

type jsonStringifier struct {
	machine      *vm.VM
	replacer     vm.Value
	propertyList []vm.PropertyKey
	hasList      bool
	gap          string
	indent       string
	stack        []*vm.Object
}

func (st *jsonStringifier) setReplacer(replacer vm.Value) error {
	o := replacer.AsObject()
	if o == nil {
		return nil
	}
	if o.IsCallable() {
		st.replacer = replacer
		return nil
	}
	if o.Class() != vm.ClassArray {
		return nil
	}
	machine := st.machine
	n, err := machine.LengthOfArrayLike(o)
	if err != nil {
		return err
	}
	st.hasList = true
	seen := make(map[string]bool)
	for i := int64(0); i < n; i++ {
		v, err := getIndex(machine, o, i)
		if err != nil {
			return err
		}
		var item string
		switch {
		case v.IsString():
			item = v.AsString()
		case v.IsNumber():
			item = vm.NumberToString(v.AsNumber())
		case v.IsObject() && (v.AsObject().Class() == vm.ClassString || v.AsObject().Class() == vm.ClassNumber):
			if item, err = machine.ToString(v); err != nil {
				return err
			}
		default:
			continue
		}
		if !seen[item] {
			seen[item] = true
			st.propertyList = append(st.propertyList, vm.StringKey(item))
		}
	}
	return nil
}

func (st *jsonStringifier) setGap(space vm.Value) error {
	machine := st.machine
	if o := space.AsObject(); o != nil {
		var err error
		switch o.Class() {
		case vm.ClassNumber:
			var f float64
			f, err = machine.ToNumber(space)
			space = vm.NumberValue(f)
		case vm.ClassString:
			var s string
			s, err = machine.ToString(space)
			space = vm.StringValue(s)
		}
		if err != nil {
			return err
		}
	}
	switch {
	case space.IsNumber():
		n := min(10, vm.IntegerOrInfinity(space.AsNumber()))
		if n >= 1 {
			st.gap = strings.Repeat(" ", int(n))
		}
	case space.IsString():
		st.gap = source.Slice(space.AsString(), 0, min(10, source.UnitLength(space.AsString())))
	}
	return nil
}

// property implements SerializeJSONProperty. ok is false when the value
// has no JSON representation.
func (st *jsonStringifier) property(holder *vm.Object, key vm.PropertyKey) (string, bool, error) {
	machine := st.machine
	value, err := machine.Get(holder, key, vm.ObjectValue(holder))
	if err != nil {
		return "", false, err
	}
	if value.IsObject() || value.IsBigInt() {
		toJSON, err := machine.GetV(value, vm.StringKey("toJSON"))
		if err != nil {
			return "", false, err
		}
		if toJSON.IsCallable() {
			if value, err = machine.Call(toJSON, value, []vm.Value{key.Value()}); err != nil {
				return "", false, err
			}
		}
	}
	if !st.replacer.IsUndefined() {
		if value, err = machine.Call(st.replacer, vm.ObjectValue(holder), []vm.Value{key.Value(), value}); err != nil {
			return "", false, err
		}
	}
	if o := value.AsObject(); o != nil {
		switch o.Class() {
		case vm.ClassNumber:
			f, err := machine.ToNumber(value)
			if err != nil {
				return "", false, err
			}
			value = vm.NumberValue(f)
		case vm.ClassString:
			s, err := machine.ToString(value)
			if err != nil {
				return "", false, err
			}
			value = vm.StringValue(s)
		case vm.ClassBoolean, vm.ClassBigInt:
			value = o.Primitive()
		}
	}
	switch {
	case value.IsNull():
		return "null", true, nil
	case value.IsBoolean():
		if value.AsBool() {
			return "true", true, nil
		}
		return "false", true, nil
	case value.IsString():
		return quoteJSONString(value.AsString()), true, nil
	case value.IsNumber():
		f := value.AsNumber()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "null", true, nil
		}
		return vm.NumberToString(f), true, nil
	case value.IsBigInt():
		return "", false, machine.NewTypeError("Do not know how to serialize a BigInt")
	case value.IsObject() && !value.IsCallable():
		o := value.AsObject()
		if o.Class() == vm.ClassArray {
			s, err := st.array(o)
			return s, err == nil, err
		}
		s, err := st.object(o)
		return s, err == nil, err
	}
	return "", false, nil
}

func (st *jsonStringifier) enter(o *vm.Object) (string, error) {
	for _, seen := range st.stack {
		if seen == o {
			return "", st.machine.NewTypeError("Converting circular structure to JSON")
		}
	}
	if len(st.stack) >= maxJSONDepth {
		return "", st.machine.NewRangeError("Maximum call stack size exceeded")
	}
	st.stack = append(st.stack, o)
	stepback := st.indent
	st.indent += st.gap
	return stepback, nil
}

func (st *jsonStringifier) leave(stepback string) {
	st.stack = st.stack[:len(st.stack)-1]
	st.indent = stepback
}

func (st *jsonStringifier) join(open, close byte, parts []string, stepback string) string {
	if len(parts) == 0 {
		return string([]byte{open, close})
	}
	var b strings.Builder
	b.WriteByte(open)
	if st.gap == "" {
		b.WriteString(strings.Join(parts, ","))
	} else {
		sep := ",\n" + st.indent
		b.WriteString("\n" + st.indent)
		b.WriteString(strings.Join(parts, sep))
		b.WriteString("\n" + stepback)
	}
	b.WriteByte(close)
	return b.String()
}

func (st *jsonStringifier) object(o *vm.Object) (string, error) {
	stepback, err := st.enter(o)
	if err != nil {
		return "", err
	}
	defer st.leave(stepback)

	keys := st.propertyList
	if !st.hasList {
		names, err := enumerableOwnProperties(st.machine, o, iterKeys)
		if err != nil {
			return "", err
		}
		keys = make([]vm.PropertyKey, len(names))
		for i, n := range names {
			keys[i] = vm.StringKey(n.AsString())
		}
	}
	colon := ":"
	if st.gap != "" {
		colon = ": "
	}
	var parts []string
	for _, k := range keys {
		s, ok, err := st.property(o, k)
		if err != nil {
			return "", err
		}
		if ok {
			parts = append(parts, quoteJSONString(k.Name())+colon+s)
		}
	}
	return st.join('{', '}', parts, stepback), nil
}

func (st *jsonStringifier) array(o *vm.Object) (string, error) {
	stepback, err := st.enter(o)
	if err != nil {
		return "", err
	}
	defer st.leave(stepback)

	n, err := st.machine.LengthOfArrayLike(o)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, min(n, 1024))
	for i := int64(0); i < n; i++ {
		s, ok, err := st.property(o, indexKey(i))
		if err != nil {
			return "", err
		}
		if !ok {
			s = "null"
		}
		parts = append(parts, s)
	}
	return st.join('[', ']', parts, stepback), nil
}
