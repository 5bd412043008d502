package builtins

import (
	"math"
	"time"

	"ecmavm/pkg/vm"
)

type DateInitializer struct{}

func (d *DateInitializer) Name() string {
	return "Date"
}

func (d *DateInitializer) Priority() int {
	return PriorityDate
}

func now() float64 {
	return float64(time.Now().UnixMilli())
}

func (d *DateInitializer) InitRuntime(ctx *RuntimeContext) error {
	machine := ctx.VM
	in := ctx.Intrinsics()

	proto := machine.NewObjectWithProto(in.ObjectPrototype)
	in.DatePrototype = proto

	ctor := machine.NewNativeConstructor("Date", 7,
		func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.StringValue(toDateString(now())), nil
		},
		func(machine *vm.VM, args []vm.Value, newTarget *vm.Object) (vm.Value, error) {
			tv, err := constructTimeValue(machine, args)
			if err != nil {
				return vm.Undefined, err
			}
			proto, err := machine.GetPrototypeFromConstructor(newTarget, func(in *vm.Intrinsics) *vm.Object { return in.DatePrototype })
			if err != nil {
				return vm.Undefined, err
			}
			return vm.ObjectValue(machine.NewObjectOfClass(vm.ClassDate, proto, &dateValue{t: tv})), nil
		})
	linkConstructor(ctor, proto)

	method(machine, ctor, "now", 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NumberValue(now()), nil
	})
	method(machine, ctor, "parse", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := machine.ToString(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(parseDate(s)), nil
	})
	method(machine, ctor, "UTC", 7, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		fields, err := dateFields(machine, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumberValue(timeClip(fields.time())), nil
	})

	d.initGetters(machine, proto)
	d.initSetters(machine, proto)
	d.initFormatting(machine, proto)

	return ctx.DefineGlobal("Date", vm.ObjectValue(ctor))
}

// constructTimeValue computes the time value of new Date(...args).
func constructTimeValue(machine *vm.VM, args []vm.Value) (float64, error) {
	switch len(args) {
	case 0:
		return now(), nil
	case 1:
		if o := args[0].AsObject(); o != nil && o.Class() == vm.ClassDate {
			if dv, ok := o.Internal.(*dateValue); ok {
				return dv.t, nil
			}
		}
		prim, err := machine.ToPrimitive(args[0], vm.HintDefault)
		if err != nil {
			return 0, err
		}
		if prim.IsString() {
			return parseDate(prim.AsString()), nil
		}
		f, err := machine.ToNumber(prim)
		if err != nil {
			return 0, err
		}
		return timeClip(f), nil
	}
	fields, err := dateFields(machine, args, 0)
	if err != nil {
		return 0, err
	}
	return timeClip(utcTime(fields.time())), nil
}

type dateParts struct {
	year, month, date, hour, min, sec, ms float64
}

func (p dateParts) time() float64 {
	return makeDate(makeDay(p.year, p.month, p.date), makeTime(p.hour, p.min, p.sec, p.ms))
}

// dateFields converts the year, month, ... arguments of the Date
// constructor and Date.UTC. Two-digit years map to 19xx.
func dateFields(machine *vm.VM, args []vm.Value, defMonth float64) (dateParts, error) {
	p := dateParts{month: defMonth, date: 1}
	fields := []*float64{&p.year, &p.month, &p.date, &p.hour, &p.min, &p.sec, &p.ms}
	for i, f := range fields {
		if i >= len(args) {
			break
		}
		n, err := machine.ToNumber(args[i])
		if err != nil {
			return p, err
		}
		*f = n
	}
	if !math.IsNaN(p.year) {
		if y := math.Trunc(p.year); y >= 0 && y <= 99 {
			p.year = 1900 + y
		}
	}
	return p, nil
}

func thisDate(machine *vm.VM, this vm.Value, method string) (*dateValue, error) {
	if o := this.AsObject(); o != nil && o.Class() == vm.ClassDate {
		if dv, ok := o.Internal.(*dateValue); ok {
			return dv, nil
		}
	}
	return nil, machine.NewTypeError("%s called on incompatible receiver %s", method, machine.ToDisplayString(this))
}

func (d *DateInitializer) initGetters(machine *vm.VM, proto *vm.Object) {
	get := func(name string, local bool, fn func(float64) float64) {
		method(machine, proto, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			dv, err := thisDate(machine, this, "Date.prototype."+name)
			if err != nil {
				return vm.Undefined, err
			}
			t := dv.t
			if math.IsNaN(t) {
				return vm.NaN, nil
			}
			if local {
				t = localTime(t)
			}
			return vm.NumberValue(fn(t)), nil
		})
	}
	identity := func(t float64) float64 { return t }
	get("getTime", false, identity)
	get("valueOf", false, identity)
	for _, local := range []bool{true, false} {
		prefix := "get"
		if !local {
			prefix = "getUTC"
		}
		get(prefix+"FullYear", local, yearFromTime)
		get(prefix+"Month", local, monthFromTime)
		get(prefix+"Date", local, dateFromTime)
		get(prefix+"Day", local, weekDay)
		get(prefix+"Hours", local, hourFromTime)
		get(prefix+"Minutes", local, minFromTime)
		get(prefix+"Seconds", local, secFromTime)
		get(prefix+"Milliseconds", local, msFromTime)
	}
	get("getYear", true, func(t float64) float64 { return yearFromTime(t) - 1900 })
	get("getTimezoneOffset", false, func(t float64) float64 { return (t - localTime(t)) / msPerMinute })
}

// dateSetter describes one set* method: which components its arguments
// replace, starting at first, and how many it accepts.
type dateSetter struct {
	name  string
	first int // index into year, month, date, hour, min, sec, ms
	max   int
}

func (d *DateInitializer) initSetters(machine *vm.VM, proto *vm.Object) {
	method(machine, proto, "setTime", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		dv, err := thisDate(machine, this, "Date.prototype.setTime")
		if err != nil {
			return vm.Undefined, err
		}
		t, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		dv.t = timeClip(t)
		return vm.NumberValue(dv.t), nil
	})

	setters := []dateSetter{
		{"Milliseconds", 6, 1},
		{"Seconds", 5, 2},
		{"Minutes", 4, 3},
		{"Hours", 3, 4},
		{"Date", 2, 1},
		{"Month", 1, 2},
		{"FullYear", 0, 3},
	}
	for _, local := range []bool{true, false} {
		for _, s := range setters {
			name := "set" + s.name
			if !local {
				name = "setUTC" + s.name
			}
			d.setter(machine, proto, name, s, local)
		}
	}

	method(machine, proto, "setYear", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		dv, err := thisDate(machine, this, "Date.prototype.setYear")
		if err != nil {
			return vm.Undefined, err
		}
		y, err := machine.ToNumber(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if math.IsNaN(y) {
			dv.t = math.NaN()
			return vm.NaN, nil
		}
		t := 0.0
		if !math.IsNaN(dv.t) {
			t = localTime(dv.t)
		}
		if yi := math.Trunc(y); yi >= 0 && yi <= 99 {
			y = 1900 + yi
		}
		dn := makeDay(y, monthFromTime(t), dateFromTime(t))
		dv.t = timeClip(utcTime(makeDate(dn, timeWithinDay(t))))
		return vm.NumberValue(dv.t), nil
	})
}

func (d *DateInitializer) setter(machine *vm.VM, proto *vm.Object, name string, s dateSetter, local bool) {
	method(machine, proto, name, s.max, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		dv, err := thisDate(machine, this, "Date.prototype."+name)
		if err != nil {
			return vm.Undefined, err
		}
		t := dv.t
		n := max(1, min(len(args), s.max))
		vals := make([]float64, n)
		for i := range vals {
			if vals[i], err = machine.ToNumber(arg(args, i)); err != nil {
				return vm.Undefined, err
			}
		}
		if math.IsNaN(t) {
			if s.first != 0 {
				return vm.NaN, nil
			}
			t = 0
		} else if local {
			t = localTime(t)
		}
		p := dateParts{
			year: yearFromTime(t), month: monthFromTime(t), date: dateFromTime(t),
			hour: hourFromTime(t), min: minFromTime(t), sec: secFromTime(t), ms: msFromTime(t),
		}
		fields := []*float64{&p.year, &p.month, &p.date, &p.hour, &p.min, &p.sec, &p.ms}
		for i, v := range vals {
			*fields[s.first+i] = v
		}
		u := p.time()
		if local {
			u = utcTime(u)
		}
		dv.t = timeClip(u)
		return vm.NumberValue(dv.t), nil
	})
}

func (d *DateInitializer) initFormatting(machine *vm.VM, proto *vm.Object) {
	format := func(name string, fn func(machine *vm.VM, t float64) (vm.Value, error)) *vm.Object {
		return method(machine, proto, name, 0, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
			dv, err := thisDate(machine, this, "Date.prototype."+name)
			if err != nil {
				return vm.Undefined, err
			}
			return fn(machine, dv.t)
		})
	}
	invalid := vm.StringValue("Invalid Date")
	text := func(fn func(float64) string) func(*vm.VM, float64) (vm.Value, error) {
		return func(machine *vm.VM, t float64) (vm.Value, error) {
			if math.IsNaN(t) {
				return invalid, nil
			}
			return vm.StringValue(fn(t)), nil
		}
	}

	format("toString", text(toDateString))
	format("toDateString", text(func(t float64) string { return dateString(localTime(t)) }))
	format("toTimeString", text(func(t float64) string { return timeString(localTime(t)) + timeZoneString(t) }))
	utc := format("toUTCString", text(toUTCString))
	proto.SetOwn("toGMTString", vm.ObjectValue(utc), vm.FlagsHidden)
	format("toISOString", func(machine *vm.VM, t float64) (vm.Value, error) {
		if math.IsNaN(t) {
			return vm.Undefined, machine.NewRangeError("Invalid time value")
		}
		return vm.StringValue(toISOString(t)), nil
	})
	format("toLocaleString", text(func(t float64) string { lt := localTime(t); return toLocaleDate(lt) + ", " + toLocaleTime(lt) }))
	format("toLocaleDateString", text(func(t float64) string { return toLocaleDate(localTime(t)) }))
	format("toLocaleTimeString", text(func(t float64) string { return toLocaleTime(localTime(t)) }))

	method(machine, proto, "toJSON", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o, err := machine.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		tv, err := machine.ToPrimitive(vm.ObjectValue(o), vm.HintNumber)
		if err != nil {
			return vm.Undefined, err
		}
		if tv.IsNumber() && (math.IsNaN(tv.AsNumber()) || math.IsInf(tv.AsNumber(), 0)) {
			return vm.Null, nil
		}
		return machine.Invoke(vm.ObjectValue(o), vm.StringKey("toISOString"))
	})

	toPrim := machine.NewNativeFunction("[Symbol.toPrimitive]", 1, func(machine *vm.VM, this vm.Value, args []vm.Value) (vm.Value, error) {
		o := this.AsObject()
		if o == nil {
			return vm.Undefined, machine.NewTypeError("Date.prototype[Symbol.toPrimitive] called on non-object")
		}
		hint := arg(args, 0)
		if !hint.IsString() {
			return vm.Undefined, machine.NewTypeError("Invalid hint: %s", machine.ToDisplayString(hint))
		}
		switch hint.AsString() {
		case vm.HintString, vm.HintDefault:
			return machine.OrdinaryToPrimitive(o, vm.HintString)
		case vm.HintNumber:
			return machine.OrdinaryToPrimitive(o, vm.HintNumber)
		}
		return vm.Undefined, machine.NewTypeError("Invalid hint: %s", hint.AsString())
	})
	proto.SetOwnKey(vm.SymbolKey(vm.SymToPrimitive), vm.ObjectValue(toPrim), vm.FlagConfigurable)
}
